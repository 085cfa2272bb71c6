package distill

import (
	"context"
	"fmt"
	"strings"

	"github.com/ShayCichocki/glassbox/internal/invoke"
	"github.com/ShayCichocki/glassbox/internal/knowledge"
	"github.com/ShayCichocki/glassbox/internal/prompt"
	"github.com/ShayCichocki/glassbox/internal/validation"
	"github.com/ShayCichocki/glassbox/pkg/models"
)

// reduce infers relationship edges over the merged unit set and installs
// them on the artifact. Proposed edges naming unknown identifiers are
// rejected individually and recorded; the validated set replaces whatever
// the artifact held, so re-running cannot accumulate edges. Any call
// failure here aborts the stage.
func (d *Distiller) reduce(ctx context.Context, artifact *models.KnowledgeArtifact) error {
	tmpl, err := d.prompts.Get(prompt.RoleReduce, models.TierDeep)
	if err != nil {
		return err
	}

	value, err := d.invoker.Invoke(ctx, invoke.Request{
		System: tmpl.System,
		Prompt: fmt.Sprintf(tmpl.User, unitIndex(artifact)),
		Tier:   models.TierDeep,
		Schema: ReduceSchema(),
	})
	if err != nil {
		return err
	}
	proposed := value.([]models.Relationship)

	valid, rejected := knowledge.ScreenEdges(artifact, proposed)
	for _, r := range rejected {
		d.debugLog("[distill.reduce] rejected edge %s -> %s (%s): %s",
			r.Edge.Source, r.Edge.Target, r.Edge.Kind, r.Reason)
	}
	artifact.SetInferred(valid, rejected)
	return nil
}

// unitIndex renders the slim per-unit index the Reduce prompt works from.
func unitIndex(artifact *models.KnowledgeArtifact) string {
	var b strings.Builder
	for _, id := range artifact.UnitIDs() {
		u := artifact.Units[id]
		fmt.Fprintf(&b, "%s | %s | %s\n", u.ID, u.Role, unitBrief(u))
	}
	return strings.TrimRight(b.String(), "\n")
}

// unitBrief is a one-line description of a unit for the index.
func unitBrief(u *models.KnowledgeUnit) string {
	switch u.Mode {
	case models.UnitVerbatim:
		return fmt.Sprintf("verbatim, %d lines", u.Lines)
	case models.UnitSummary:
		return firstLine(u.Summary, 160)
	default:
		return "summary unavailable"
	}
}

// firstLine truncates s to its first line, capped at max runes.
func firstLine(s string, max int) string {
	s = strings.TrimSpace(s)
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[:idx]
	}
	runes := []rune(s)
	if len(runes) > max {
		return string(runes[:max]) + "..."
	}
	return s
}

// ReduceSchema validates the Reduce response: a JSON object with a
// relationships array of {source, target, kind} edges. Identifier
// resolution is not checked here; unknown identifiers are screened and
// recorded by the caller rather than retried.
func ReduceSchema() validation.Schema {
	kinds := []string{
		string(models.RelCalls), string(models.RelImports), string(models.RelDataFlow),
	}

	return validation.Schema{
		Name:         "reduce-relationships",
		Instructions: `a JSON object {"relationships": [{"source": "<id>", "target": "<id>", "kind": "calls"|"imports"|"data_flow"}]}`,
		Check: func(raw string) (any, []validation.Violation) {
			var payload struct {
				Relationships []struct {
					Source string `json:"source"`
					Target string `json:"target"`
					Kind   string `json:"kind"`
				} `json:"relationships"`
			}
			if v := validation.DecodeJSON(raw, &payload); v != nil {
				return nil, v
			}

			var violations []validation.Violation
			edges := make([]models.Relationship, 0, len(payload.Relationships))
			for i, r := range payload.Relationships {
				field := fmt.Sprintf("relationships[%d]", i)
				if v := validation.RequireNonEmpty(field+".source", r.Source); v != nil {
					violations = append(violations, *v)
					continue
				}
				if v := validation.RequireNonEmpty(field+".target", r.Target); v != nil {
					violations = append(violations, *v)
					continue
				}
				if v := validation.RequireEnum(field+".kind", r.Kind, kinds); v != nil {
					violations = append(violations, *v)
					continue
				}
				edges = append(edges, models.Relationship{
					Source: r.Source,
					Target: r.Target,
					Kind:   models.RelationshipKind(r.Kind),
				})
			}

			if len(violations) > 0 {
				return nil, violations
			}
			return edges, nil
		},
	}
}
