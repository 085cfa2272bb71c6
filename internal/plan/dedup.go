package plan

import (
	"context"
	"fmt"
	"strings"

	"github.com/ShayCichocki/glassbox/internal/invoke"
	"github.com/ShayCichocki/glassbox/internal/prompt"
	"github.com/ShayCichocki/glassbox/internal/validation"
	"github.com/ShayCichocki/glassbox/pkg/models"
)

// DedupDecision is one adjudication outcome.
type DedupDecision struct {
	ID     string
	Action string
	Reason string
}

// dedup groups surviving proposals by scope overlap and adjudicates each
// multi-item group with one call. Rejected items become
// rejected-duplicate. A failed adjudication keeps its group whole:
// residual duplicates are caught again by the post-draft audit, so
// keeping both is the safe degradation.
func (p *Planner) dedup(ctx context.Context, plan *models.DiagramPlan, report *Report) error {
	pending := plan.Pending()
	groups := overlapGroups(pending, p.opts.OverlapThreshold)

	for _, group := range groups {
		if len(group) < 2 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		decisions, err := p.adjudicate(ctx, group)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.debugLog("[plan.dedup] group %v kept whole: %v", groupIDs(group), err)
			report.DegradedGroups++
			continue
		}
		for _, d := range decisions {
			if d.Action != "reject" {
				continue
			}
			if it := plan.Item(d.ID); it != nil && it.Status == models.PlanProposed {
				it.Status = models.PlanRejectedDuplicate
				report.Duplicates++
				p.debugLog("[plan.dedup] rejected %s: %s", d.ID, d.Reason)
			}
		}
	}
	return nil
}

// adjudicate runs the dedup call for one overlap group.
func (p *Planner) adjudicate(ctx context.Context, group []models.DiagramPlanItem) ([]DedupDecision, error) {
	tmpl, err := p.prompts.Get(prompt.RolePlanDedup, models.TierDeep)
	if err != nil {
		return nil, err
	}

	var listing strings.Builder
	ids := make([]string, len(group))
	for i, it := range group {
		ids[i] = it.ID
		fmt.Fprintf(&listing, "%s | %s | %s | %s | covers: %s\n",
			it.ID, it.Name, it.Type, it.Focus, strings.Join(it.Files, ", "))
	}

	value, err := p.invoker.Invoke(ctx, invoke.Request{
		System: tmpl.System,
		Prompt: fmt.Sprintf(tmpl.User, strings.TrimRight(listing.String(), "\n")),
		Tier:   models.TierDeep,
		Schema: DedupSchema(ids),
	})
	if err != nil {
		return nil, err
	}
	return value.([]DedupDecision), nil
}

// DedupSchema validates one adjudication response: a JSON array covering
// every listed ID exactly once with a keep/reject action, keeping at
// least one.
func DedupSchema(ids []string) validation.Schema {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}

	return validation.Schema{
		Name:         "plan-dedup",
		Instructions: `a JSON array [{"id", "action": "keep"|"reject", "reason"}] covering every listed id exactly once, with at least one keep`,
		Check: func(raw string) (any, []validation.Violation) {
			var payload []struct {
				ID     string `json:"id"`
				Action string `json:"action"`
				Reason string `json:"reason"`
			}
			if v := validation.DecodeJSON(raw, &payload); v != nil {
				return nil, v
			}

			var violations []validation.Violation
			seen := make(map[string]bool)
			keeps := 0
			decisions := make([]DedupDecision, 0, len(payload))
			for i, item := range payload {
				field := fmt.Sprintf("[%d]", i)
				if !want[item.ID] {
					violations = append(violations, validation.Violation{
						Field: field + ".id", Rule: validation.RuleCoverage,
						Detail: fmt.Sprintf("id %q was not in the group", item.ID),
					})
					continue
				}
				if seen[item.ID] {
					violations = append(violations, validation.Violation{
						Field: field + ".id", Rule: validation.RuleCoverage,
						Detail: fmt.Sprintf("id %q decided twice", item.ID),
					})
					continue
				}
				seen[item.ID] = true
				if v := validation.RequireEnum(field+".action", item.Action, []string{"keep", "reject"}); v != nil {
					violations = append(violations, *v)
					continue
				}
				if item.Action == "keep" {
					keeps++
				}
				decisions = append(decisions, DedupDecision{
					ID: item.ID, Action: item.Action, Reason: strings.TrimSpace(item.Reason),
				})
			}
			for _, id := range ids {
				if !seen[id] {
					violations = append(violations, validation.Violation{
						Field: id, Rule: validation.RuleCoverage,
						Detail: "missing from the response",
					})
				}
			}
			if keeps == 0 && len(violations) == 0 {
				violations = append(violations, validation.Violation{
					Rule:   validation.RuleRange,
					Detail: "every proposal was rejected; at least one must be kept",
				})
			}

			if len(violations) > 0 {
				return nil, violations
			}
			return decisions, nil
		},
	}
}

// overlapGroups partitions items into connected components of the
// pairwise scope-overlap graph.
func overlapGroups(items []models.DiagramPlanItem, threshold float64) [][]models.DiagramPlanItem {
	n := len(items)
	adj := make([][]int, n)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if scopeOverlap(items[i].Files, items[j].Files) >= threshold {
				adj[i] = append(adj[i], j)
				adj[j] = append(adj[j], i)
			}
		}
	}

	visited := make([]bool, n)
	var groups [][]models.DiagramPlanItem
	for i := 0; i < n; i++ {
		if visited[i] {
			continue
		}
		var group []models.DiagramPlanItem
		stack := []int{i}
		visited[i] = true
		for len(stack) > 0 {
			cur := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			group = append(group, items[cur])
			for _, next := range adj[cur] {
				if !visited[next] {
					visited[next] = true
					stack = append(stack, next)
				}
			}
		}
		groups = append(groups, group)
	}
	return groups
}

// scopeOverlap is the Jaccard similarity of two identifier sets.
func scopeOverlap(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	setA := make(map[string]bool, len(a))
	for _, x := range a {
		setA[x] = true
	}
	setB := make(map[string]bool, len(b))
	for _, y := range b {
		setB[y] = true
	}
	inter := 0
	for y := range setB {
		if setA[y] {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	return float64(inter) / float64(union)
}

// groupIDs lists a group's plan identifiers for logging.
func groupIDs(group []models.DiagramPlanItem) []string {
	ids := make([]string, len(group))
	for i, it := range group {
		ids[i] = it.ID
	}
	return ids
}
