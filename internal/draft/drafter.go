package draft

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ShayCichocki/glassbox/internal/invoke"
	"github.com/ShayCichocki/glassbox/internal/prompt"
	"github.com/ShayCichocki/glassbox/pkg/models"
)

// DiagramsDir is the run-output subdirectory holding sources and images.
const DiagramsDir = "diagrams"

const maxSlugLen = 50

// Invoker is the supervised LLM boundary the drafter and critic share.
type Invoker interface {
	Invoke(ctx context.Context, req invoke.Request) (any, error)
}

// Drafter produces one DiagramArtifact per selected plan item, with each
// draft reviewed by the critic before it is persisted.
type Drafter struct {
	invoker  Invoker
	prompts  *prompt.Registry
	critic   *Critic
	debugLog func(format string, args ...interface{})
}

// New creates a drafter whose outputs are reviewed by critic.
func New(invoker Invoker, prompts *prompt.Registry, critic *Critic) *Drafter {
	return &Drafter{
		invoker:  invoker,
		prompts:  prompts,
		critic:   critic,
		debugLog: func(format string, args ...interface{}) {},
	}
}

// SetDebugLog sets the debug logging function.
func (d *Drafter) SetDebugLog(fn func(format string, args ...interface{})) {
	if fn != nil {
		d.debugLog = fn
	}
}

// Report summarizes one drafting run.
type Report struct {
	// Drafted counts artifacts produced, in any validation state.
	Drafted int
	// Rendered counts artifacts that rendered successfully.
	Rendered int
	// RenderFailed counts artifacts kept with a render failure.
	RenderFailed int
	// Failures lists items whose draft call produced no source at all.
	Failures []string
}

// Draft generates, reviews, and persists one diagram per selected plan
// item. Sources land in outDir/diagrams as <id>_<slug>.puml with rendered
// images beside them; render-failed sources are still written so a human
// can repair them. An item whose draft call yields no source is recorded
// in the report and skipped; only context cancellation or a filesystem
// error aborts the stage.
func (d *Drafter) Draft(ctx context.Context, plan *models.DiagramPlan, artifact *models.KnowledgeArtifact, outDir string) ([]*models.DiagramArtifact, *Report, error) {
	diagramsDir := filepath.Join(outDir, DiagramsDir)
	if err := os.MkdirAll(diagramsDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("creating diagrams dir: %w", err)
	}

	tmpl, err := d.prompts.Get(prompt.RoleDraft, models.TierDeep)
	if err != nil {
		return nil, nil, err
	}

	report := &Report{}
	var artifacts []*models.DiagramArtifact

	for _, item := range plan.Items {
		if item.Status != models.PlanSelected {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		d.debugLog("[draft] drafting %s: %s", item.ID, item.Name)
		value, err := d.invoker.Invoke(ctx, invoke.Request{
			System: tmpl.System,
			Prompt: fmt.Sprintf(tmpl.User, item.Name, item.Type, item.Focus, scopeSections(artifact, item.Files)),
			Tier:   models.TierDeep,
			Schema: SourceSchema(prompt.RoleDraft),
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil, ctx.Err()
			}
			d.debugLog("[draft] %s produced no source: %v", item.ID, err)
			report.Failures = append(report.Failures, fmt.Sprintf("%s: %v", item.ID, err))
			continue
		}

		art := &models.DiagramArtifact{
			PlanID: item.ID,
			Name:   item.Name,
			Type:   item.Type,
			Files:  append([]string(nil), item.Files...),
			Source: value.(string),
			State:  models.ArtifactUnvalidated,
		}

		image, err := d.critic.Review(ctx, art)
		if err != nil {
			return nil, nil, err
		}

		base := filepath.Join(diagramsDir, item.ID+"_"+Slug(item.Name))
		art.SourcePath = base + ".puml"
		if err := os.WriteFile(art.SourcePath, []byte(art.Source+"\n"), 0644); err != nil {
			return nil, nil, fmt.Errorf("writing %s: %w", art.SourcePath, err)
		}
		if art.State == models.ArtifactRendered && len(image) > 0 {
			art.ImagePath = base + "." + d.critic.ImageExt()
			if err := os.WriteFile(art.ImagePath, image, 0644); err != nil {
				return nil, nil, fmt.Errorf("writing %s: %w", art.ImagePath, err)
			}
		}

		artifacts = append(artifacts, art)
		report.Drafted++
		switch art.State {
		case models.ArtifactRendered:
			report.Rendered++
		case models.ArtifactRenderFailed:
			report.RenderFailed++
		}
	}

	return artifacts, report, nil
}

// scopeSections renders the source material for a draft prompt: each
// in-scope unit's verbatim content or summary under a path header.
func scopeSections(artifact *models.KnowledgeArtifact, files []string) string {
	var b strings.Builder
	for _, id := range files {
		unit, ok := artifact.Units[id]
		if !ok {
			continue
		}
		b.WriteString("=== ")
		b.WriteString(id)
		b.WriteString(" ===\n")
		switch {
		case unit.Mode == models.UnitVerbatim:
			b.WriteString(unit.Content)
		case unit.Summary != "":
			b.WriteString(unit.Summary)
		default:
			b.WriteString("(summary unavailable)")
		}
		b.WriteString("\n\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// Slug converts a diagram name into a filesystem-safe fragment:
// lowercased, spaces to underscores, everything outside [a-z0-9_-]
// dropped, capped at 50 bytes.
func Slug(name string) string {
	s := strings.ToLower(name)
	s = strings.ReplaceAll(s, " ", "_")

	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		}
	}

	out := b.String()
	if len(out) > maxSlugLen {
		out = out[:maxSlugLen]
	}
	return out
}
