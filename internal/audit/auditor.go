// Package audit implements the post-draft duplicate audit: a structural
// pre-filter flags artifact pairs with overlapping scope or similar
// titles, and one supervised comparison per flagged pair decides whether
// both stay live. A redundant verdict deprecates the inferior artifact;
// nothing is ever deleted.
package audit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ShayCichocki/glassbox/internal/graph"
	"github.com/ShayCichocki/glassbox/internal/invoke"
	"github.com/ShayCichocki/glassbox/internal/prompt"
	"github.com/ShayCichocki/glassbox/internal/validation"
	"github.com/ShayCichocki/glassbox/pkg/models"
)

// DeprecatedDir is the output subdirectory superseded diagrams move into.
const DeprecatedDir = "_deprecated"

// maxComparedSource caps how much of each source goes into a comparison
// prompt.
const maxComparedSource = 3000

// Invoker is the supervised LLM boundary.
type Invoker interface {
	Invoke(ctx context.Context, req invoke.Request) (any, error)
}

// Options tunes the structural pre-filter.
type Options struct {
	// OverlapThreshold is the minimum scope Jaccard that flags a pair.
	OverlapThreshold float64
	// TitleThreshold is the minimum title similarity that flags a pair.
	TitleThreshold float64
}

// Auditor compares drafted diagrams for redundancy and supersedes the
// inferior member of each confirmed duplicate pair.
type Auditor struct {
	invoker  Invoker
	prompts  *prompt.Registry
	opts     Options
	debugLog func(format string, args ...interface{})
}

// New creates an auditor. Zero thresholds select the defaults (0.5 scope
// overlap, 0.6 title similarity).
func New(invoker Invoker, prompts *prompt.Registry, opts Options) *Auditor {
	if opts.OverlapThreshold <= 0 {
		opts.OverlapThreshold = 0.5
	}
	if opts.TitleThreshold <= 0 {
		opts.TitleThreshold = 0.6
	}
	return &Auditor{
		invoker:  invoker,
		prompts:  prompts,
		opts:     opts,
		debugLog: func(format string, args ...interface{}) {},
	}
}

// SetDebugLog sets the debug logging function.
func (a *Auditor) SetDebugLog(fn func(format string, args ...interface{})) {
	if fn != nil {
		a.debugLog = fn
	}
}

// Verdict is the parsed content-comparison response.
type Verdict struct {
	// AreDuplicates is the model's redundancy call.
	AreDuplicates bool
	// Winner is "A", "B", or "BOTH".
	Winner string
	// Confidence gates whether a redundancy verdict is acted on.
	Confidence models.AuditConfidence
	// Reasoning is the model's explanation, kept for the report.
	Reasoning string
}

// Audit runs both phases over the drafted artifacts. Confirmed-redundant
// losers are marked superseded and their files moved under _deprecated
// in outDir. Every flagged pair yields exactly one AuditRecord; a failed
// comparison keeps both artifacts rather than aborting the stage.
func (a *Auditor) Audit(ctx context.Context, artifacts []*models.DiagramArtifact, outDir string) ([]models.AuditRecord, error) {
	pairs := Prefilter(artifacts, a.opts.OverlapThreshold, a.opts.TitleThreshold)
	a.debugLog("[audit] %d candidate pair(s) from %d artifact(s)", len(pairs), len(artifacts))

	// Supersessions must stay acyclic: skipping superseded artifacts
	// already guarantees it, and the graph enforces it independently.
	supersessions := graph.New()
	for _, art := range artifacts {
		supersessions.AddNode(art.PlanID)
	}

	records := make([]models.AuditRecord, 0, len(pairs))
	for _, pair := range pairs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rec := models.AuditRecord{
			PairA:   pair.A.PlanID,
			PairB:   pair.B.PlanID,
			Trigger: pair.Trigger,
		}

		if pair.A.Superseded() || pair.B.Superseded() {
			rec.Status = models.AuditSkipped
			rec.Reasoning = "pair member already superseded"
			records = append(records, rec)
			continue
		}

		verdict, err := a.compare(ctx, pair.A, pair.B)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			a.debugLog("[audit] comparison %s/%s failed: %v", rec.PairA, rec.PairB, err)
			rec.Verdict = models.VerdictDistinct
			rec.Status = models.AuditKeepBoth
			rec.Reasoning = "comparison failed: " + err.Error()
			records = append(records, rec)
			continue
		}

		rec.Confidence = verdict.Confidence
		rec.Reasoning = verdict.Reasoning

		switch {
		case !verdict.AreDuplicates || verdict.Winner == "BOTH":
			rec.Verdict = models.VerdictDistinct
			rec.Status = models.AuditKeepBoth

		case verdict.Confidence == models.ConfidenceLow:
			// Redundant, but not confident enough to act on.
			rec.Verdict = models.VerdictRedundant
			rec.Status = models.AuditKeepBoth

		default:
			rec.Verdict = models.VerdictRedundant
			winner, loser, status := pair.A, pair.B, models.AuditDropB
			if verdict.Winner == "B" {
				winner, loser, status = pair.B, pair.A, models.AuditDropA
			}

			if err := supersessions.AddEdge(loser.PlanID, winner.PlanID); err != nil {
				rec.Status = models.AuditKeepBoth
				rec.Reasoning = "supersession rejected: " + err.Error()
				records = append(records, rec)
				continue
			}

			if err := a.deprecate(loser, outDir); err != nil {
				return nil, err
			}
			loser.SupersededBy = winner.PlanID
			rec.Deprecated = loser.PlanID
			rec.Status = status
			a.debugLog("[audit] %s superseded by %s (%s)", loser.PlanID, winner.PlanID, verdict.Confidence)
		}

		records = append(records, rec)
	}

	return records, nil
}

// compare runs one supervised content comparison.
func (a *Auditor) compare(ctx context.Context, artA, artB *models.DiagramArtifact) (Verdict, error) {
	tmpl, err := a.prompts.Get(prompt.RoleAudit, models.TierDeep)
	if err != nil {
		return Verdict{}, err
	}
	value, err := a.invoker.Invoke(ctx, invoke.Request{
		System: tmpl.System,
		Prompt: fmt.Sprintf(tmpl.User, diagramSection(artA), diagramSection(artB)),
		Tier:   models.TierDeep,
		Schema: VerdictSchema(),
	})
	if err != nil {
		return Verdict{}, err
	}
	return value.(Verdict), nil
}

// diagramSection renders one artifact for the comparison prompt.
func diagramSection(art *models.DiagramArtifact) string {
	source := art.Source
	if len(source) > maxComparedSource {
		source = source[:maxComparedSource] + "\n... (truncated)"
	}
	return fmt.Sprintf("%s: %s (%s)\n%s", art.PlanID, art.Name, art.Type, source)
}

// deprecate moves the artifact's source and image under _deprecated,
// updating its recorded paths. The files are moved, never deleted; a
// path that is already gone is skipped.
func (a *Auditor) deprecate(art *models.DiagramArtifact, outDir string) error {
	dir := filepath.Join(outDir, DeprecatedDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	move := func(path string) (string, error) {
		if path == "" {
			return "", nil
		}
		dest := filepath.Join(dir, filepath.Base(path))
		if err := os.Rename(path, dest); err != nil {
			if os.IsNotExist(err) {
				return path, nil
			}
			return "", fmt.Errorf("deprecating %s: %w", path, err)
		}
		return dest, nil
	}

	sourcePath, err := move(art.SourcePath)
	if err != nil {
		return err
	}
	imagePath, err := move(art.ImagePath)
	if err != nil {
		return err
	}
	art.SourcePath = sourcePath
	art.ImagePath = imagePath
	return nil
}

// VerdictSchema validates a content-comparison response.
func VerdictSchema() validation.Schema {
	return validation.Schema{
		Name:         prompt.RoleAudit,
		Instructions: `a JSON object of the form {"are_duplicates": true|false, "winner": "A"|"B"|"BOTH", "confidence": "HIGH"|"MEDIUM"|"LOW", "reasoning": "<explanation>"}`,
		Check: func(raw string) (any, []validation.Violation) {
			var payload struct {
				AreDuplicates bool   `json:"are_duplicates"`
				Winner        string `json:"winner"`
				Confidence    string `json:"confidence"`
				Reasoning     string `json:"reasoning"`
			}
			if vs := validation.DecodeJSON(raw, &payload); vs != nil {
				return nil, vs
			}

			var violations []validation.Violation
			winner := strings.ToUpper(strings.TrimSpace(payload.Winner))
			if v := validation.RequireEnum("winner", winner, []string{"A", "B", "BOTH"}); v != nil {
				violations = append(violations, *v)
			}
			confidence := strings.ToUpper(strings.TrimSpace(payload.Confidence))
			if v := validation.RequireEnum("confidence", confidence, []string{
				string(models.ConfidenceHigh), string(models.ConfidenceMedium), string(models.ConfidenceLow),
			}); v != nil {
				violations = append(violations, *v)
			}
			if len(violations) > 0 {
				return nil, violations
			}

			return Verdict{
				AreDuplicates: payload.AreDuplicates,
				Winner:        winner,
				Confidence:    models.AuditConfidence(confidence),
				Reasoning:     strings.TrimSpace(payload.Reasoning),
			}, nil
		},
	}
}
