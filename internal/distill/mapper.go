package distill

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ShayCichocki/glassbox/internal/invoke"
	"github.com/ShayCichocki/glassbox/internal/prompt"
	"github.com/ShayCichocki/glassbox/internal/validation"
	"github.com/ShayCichocki/glassbox/pkg/models"
)

// MakeBatches sorts entries by path and chunks them. Batching is
// deterministic so a re-run produces the same batch for every file.
func MakeBatches(entries []models.FileInventoryEntry, size int) [][]models.FileInventoryEntry {
	if size <= 0 {
		size = 1
	}
	sorted := make([]models.FileInventoryEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	var batches [][]models.FileInventoryEntry
	for start := 0; start < len(sorted); start += size {
		end := start + size
		if end > len(sorted) {
			end = len(sorted)
		}
		batches = append(batches, sorted[start:end])
	}
	return batches
}

// batchResult is one Map batch's output.
type batchResult struct {
	units    []*models.KnowledgeUnit
	degraded []models.DegradedUnit
}

// mapBatch turns one batch into knowledge units. Small files become
// verbatim units locally; larger ones go through the model. A failed call
// degrades the batch instead of failing it; only cancellation returns an
// error.
func (d *Distiller) mapBatch(ctx context.Context, batch []models.FileInventoryEntry) (batchResult, error) {
	var res batchResult
	contents := make(map[string]string, len(batch))
	var large []models.FileInventoryEntry

	for _, e := range batch {
		content, err := d.resolver.Resolve(e.Ref)
		if err != nil {
			d.debugLog("[distill.mapBatch] %s unreadable: %v", e.Path, err)
			res.units = append(res.units, &models.KnowledgeUnit{
				ID: e.Path, Role: e.Role, Mode: models.UnitUnavailable,
				Lines: e.Lines, Degraded: true,
			})
			res.degraded = append(res.degraded, models.DegradedUnit{
				UnitID: e.Path, Reason: "content unavailable: " + err.Error(),
			})
			continue
		}
		contents[e.Path] = content

		if e.Lines < d.opts.SmallFileThreshold {
			res.units = append(res.units, &models.KnowledgeUnit{
				ID: e.Path, Role: e.Role, Mode: models.UnitVerbatim,
				Lines: e.Lines, Content: content,
			})
			continue
		}
		large = append(large, e)
	}
	if len(large) == 0 {
		return res, nil
	}

	summaries, err := d.summarize(ctx, batch, large, contents)
	if err != nil {
		if ctx.Err() != nil {
			return batchResult{}, ctx.Err()
		}
		d.debugLog("[distill.mapBatch] batch degraded: %v", err)
		for _, e := range large {
			res.units = append(res.units, degradedUnit(e, contents[e.Path], d.opts.SmallFileThreshold))
			res.degraded = append(res.degraded, models.DegradedUnit{
				UnitID: e.Path, Reason: err.Error(),
			})
		}
		return res, nil
	}

	for _, e := range large {
		res.units = append(res.units, &models.KnowledgeUnit{
			ID: e.Path, Role: e.Role, Mode: models.UnitSummary,
			Lines: e.Lines, Summary: summaries[e.Path],
		})
	}
	return res, nil
}

// summarize runs the Map call for a batch's large files.
func (d *Distiller) summarize(ctx context.Context, batch, large []models.FileInventoryEntry, contents map[string]string) (map[string]string, error) {
	tmpl, err := d.prompts.Get(prompt.RoleMap, models.TierFast)
	if err != nil {
		return nil, err
	}

	var sections strings.Builder
	for _, e := range batch {
		content, ok := contents[e.Path]
		if !ok {
			continue
		}
		fmt.Fprintf(&sections, "=== %s ===\n%s\n\n", e.Path, content)
	}
	paths := make([]string, len(large))
	for i, e := range large {
		paths[i] = e.Path
	}

	value, err := d.invoker.Invoke(ctx, invoke.Request{
		System: tmpl.System,
		Prompt: fmt.Sprintf(tmpl.User, sections.String(), strings.Join(paths, "\n")),
		Tier:   models.TierFast,
		Schema: MapSchema(paths),
	})
	if err != nil {
		return nil, err
	}
	return value.(map[string]string), nil
}

// degradedUnit builds the fallback unit for a file whose summarization
// failed: verbatim when the file is within 4x the small-file threshold,
// summary-unavailable beyond that.
func degradedUnit(e models.FileInventoryEntry, content string, threshold int) *models.KnowledgeUnit {
	u := &models.KnowledgeUnit{
		ID: e.Path, Role: e.Role, Lines: e.Lines, Degraded: true,
	}
	if e.Lines <= 4*threshold && content != "" {
		u.Mode = models.UnitVerbatim
		u.Content = content
	} else {
		u.Mode = models.UnitUnavailable
	}
	return u
}

// MapSchema validates one Map response: a JSON object mapping exactly the
// requested paths to non-empty summaries.
func MapSchema(paths []string) validation.Schema {
	want := make(map[string]bool, len(paths))
	for _, p := range paths {
		want[p] = true
	}

	return validation.Schema{
		Name:         "map-summaries",
		Instructions: `a JSON object {"summaries": {"<path>": "<summary>"}} covering exactly the requested files`,
		Check: func(raw string) (any, []validation.Violation) {
			var payload struct {
				Summaries map[string]string `json:"summaries"`
			}
			if v := validation.DecodeJSON(raw, &payload); v != nil {
				return nil, v
			}

			var violations []validation.Violation
			out := make(map[string]string, len(paths))
			for p, s := range payload.Summaries {
				if !want[p] {
					violations = append(violations, validation.Violation{
						Field: "summaries." + p, Rule: validation.RuleCoverage,
						Detail: "path was not in the requested set",
					})
					continue
				}
				if strings.TrimSpace(s) == "" {
					violations = append(violations, validation.Violation{
						Field: "summaries." + p, Rule: validation.RuleRequired,
						Detail: "summary must not be empty",
					})
					continue
				}
				out[p] = strings.TrimSpace(s)
			}
			for _, p := range paths {
				if _, ok := out[p]; !ok {
					if _, answered := payload.Summaries[p]; !answered {
						violations = append(violations, validation.Violation{
							Field: "summaries." + p, Rule: validation.RuleCoverage,
							Detail: "missing from the response",
						})
					}
				}
			}

			if len(violations) > 0 {
				return nil, violations
			}
			return out, nil
		},
	}
}
