// Package plan turns the frozen knowledge artifact into a diagram plan.
// Two independent passes propose behavioral and structural diagrams; a
// deterministic feasibility check rejects proposals referencing unknown
// units; overlapping survivors go through one adjudication call per
// group. Rejected items stay in the plan with their rejection status.
package plan

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/ShayCichocki/glassbox/internal/invoke"
	"github.com/ShayCichocki/glassbox/internal/knowledge"
	"github.com/ShayCichocki/glassbox/internal/prompt"
	"github.com/ShayCichocki/glassbox/internal/validation"
	"github.com/ShayCichocki/glassbox/pkg/models"
)

// PlanName is the persisted plan filename.
const PlanName = "diagram_plan.json"

// Invoker is the supervised LLM caller the planner depends on.
type Invoker interface {
	Invoke(ctx context.Context, req invoke.Request) (any, error)
}

// Options tunes the planning pass.
type Options struct {
	// OverlapThreshold is the scope Jaccard at or above which two
	// proposals compete in dedup.
	OverlapThreshold float64
	// MaxPerPass bounds proposals per planning pass.
	MaxPerPass int
}

// Report summarizes one planning pass.
type Report struct {
	// Proposed counts candidates across both passes before filtering.
	Proposed int
	// Infeasible counts candidates rejected by the referential check.
	Infeasible int
	// Duplicates counts candidates rejected by adjudication.
	Duplicates int
	// DegradedGroups counts overlap groups kept whole because their
	// adjudication call failed.
	DegradedGroups int
}

// Planner builds the diagram plan for one run.
type Planner struct {
	invoker  Invoker
	prompts  *prompt.Registry
	opts     Options
	debugLog func(format string, args ...interface{})
}

// New creates a planner. Zero option fields fall back to defaults.
func New(invoker Invoker, prompts *prompt.Registry, opts Options) *Planner {
	if opts.OverlapThreshold <= 0 {
		opts.OverlapThreshold = 0.5
	}
	if opts.MaxPerPass <= 0 {
		opts.MaxPerPass = 8
	}
	return &Planner{
		invoker:  invoker,
		prompts:  prompts,
		opts:     opts,
		debugLog: func(format string, args ...interface{}) {},
	}
}

// SetDebugLog sets the debug logging function.
func (p *Planner) SetDebugLog(fn func(format string, args ...interface{})) {
	if fn != nil {
		p.debugLog = fn
	}
}

// Proposal is one planner candidate before it gets an ID.
type Proposal struct {
	Name       string
	Type       models.DiagramType
	Focus      string
	Files      []string
	Complexity string
}

var behavioralTypes = []models.DiagramType{models.DiagramSequence, models.DiagramState}

var structuralTypes = []models.DiagramType{
	models.DiagramComponent, models.DiagramClass, models.DiagramEntity, models.DiagramDataFlow,
}

// Plan runs both proposal passes, assigns deterministic identifiers in
// pass order, rejects infeasible scopes, and adjudicates overlapping
// survivors. A failed proposal pass aborts; a failed adjudication keeps
// its group whole.
func (p *Planner) Plan(ctx context.Context, artifact *models.KnowledgeArtifact) (*models.DiagramPlan, *Report, error) {
	doc, err := knowledge.Encode(artifact)
	if err != nil {
		return nil, nil, err
	}

	behavioral, err := p.pass(ctx, prompt.RolePlanBehavioral, behavioralTypes, string(doc))
	if err != nil {
		return nil, nil, fmt.Errorf("behavioral pass: %w", err)
	}
	structural, err := p.pass(ctx, prompt.RolePlanStructural, structuralTypes, string(doc))
	if err != nil {
		return nil, nil, fmt.Errorf("structural pass: %w", err)
	}

	plan := &models.DiagramPlan{Target: artifact.Target}
	for _, prop := range append(behavioral, structural...) {
		plan.Items = append(plan.Items, models.DiagramPlanItem{
			ID:         fmt.Sprintf("D%02d", len(plan.Items)+1),
			Name:       prop.Name,
			Type:       prop.Type,
			Focus:      prop.Focus,
			Files:      prop.Files,
			Complexity: prop.Complexity,
			Status:     models.PlanProposed,
		})
	}

	report := &Report{Proposed: len(plan.Items)}
	report.Infeasible = CheckFeasibility(plan, artifact)

	if err := p.dedup(ctx, plan, report); err != nil {
		return nil, nil, err
	}

	p.debugLog("[plan.Plan] %d proposed, %d infeasible, %d duplicates, %d pending",
		report.Proposed, report.Infeasible, report.Duplicates, len(plan.Pending()))
	return plan, report, nil
}

// pass runs one proposal call and returns its candidates.
func (p *Planner) pass(ctx context.Context, role string, allowed []models.DiagramType, doc string) ([]Proposal, error) {
	tmpl, err := p.prompts.Get(role, models.TierDeep)
	if err != nil {
		return nil, err
	}

	value, err := p.invoker.Invoke(ctx, invoke.Request{
		System: tmpl.System,
		Prompt: fmt.Sprintf(tmpl.User, doc, p.opts.MaxPerPass),
		Tier:   models.TierDeep,
		Schema: ProposalSchema(role, allowed, p.opts.MaxPerPass),
	})
	if err != nil {
		return nil, err
	}
	return value.([]Proposal), nil
}

// ProposalSchema validates one planning pass response: a JSON array of
// proposals typed within the pass's allowed set, at most max entries.
func ProposalSchema(name string, allowed []models.DiagramType, max int) validation.Schema {
	allowedNames := make([]string, len(allowed))
	for i, t := range allowed {
		allowedNames[i] = string(t)
	}
	complexities := []string{"low", "medium", "high"}

	return validation.Schema{
		Name:         name,
		Instructions: `a JSON array [{"name", "type", "focus", "files", "complexity"}] using only the allowed types: ` + strings.Join(allowedNames, ", "),
		Check: func(raw string) (any, []validation.Violation) {
			var payload []struct {
				Name       string   `json:"name"`
				Type       string   `json:"type"`
				Focus      string   `json:"focus"`
				Files      []string `json:"files"`
				Complexity string   `json:"complexity"`
			}
			if v := validation.DecodeJSON(raw, &payload); v != nil {
				return nil, v
			}

			var violations []validation.Violation
			if len(payload) > max {
				violations = append(violations, validation.Violation{
					Rule:   validation.RuleRange,
					Detail: fmt.Sprintf("%d proposals returned, at most %d requested", len(payload), max),
				})
			}

			proposals := make([]Proposal, 0, len(payload))
			for i, item := range payload {
				field := fmt.Sprintf("[%d]", i)
				if v := validation.RequireNonEmpty(field+".name", item.Name); v != nil {
					violations = append(violations, *v)
					continue
				}
				if v := validation.RequireEnum(field+".type", item.Type, allowedNames); v != nil {
					violations = append(violations, *v)
					continue
				}
				if v := validation.RequireNonEmpty(field+".focus", item.Focus); v != nil {
					violations = append(violations, *v)
					continue
				}
				if len(item.Files) == 0 {
					violations = append(violations, validation.Violation{
						Field: field + ".files", Rule: validation.RuleRequired,
						Detail: "must list at least one module identifier",
					})
					continue
				}
				if v := validation.RequireEnum(field+".complexity", item.Complexity, complexities); v != nil {
					violations = append(violations, *v)
					continue
				}
				proposals = append(proposals, Proposal{
					Name:       strings.TrimSpace(item.Name),
					Type:       models.DiagramType(item.Type),
					Focus:      strings.TrimSpace(item.Focus),
					Files:      item.Files,
					Complexity: item.Complexity,
				})
			}

			if len(violations) > 0 {
				return nil, violations
			}
			return proposals, nil
		},
	}
}

// WritePlan persists the plan as indented JSON.
func WritePlan(path string, plan *models.DiagramPlan) error {
	data, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding diagram plan: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("writing diagram plan: %w", err)
	}
	return nil
}

// ReadPlan loads a persisted plan.
func ReadPlan(path string) (*models.DiagramPlan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading diagram plan: %w", err)
	}
	var plan models.DiagramPlan
	if err := json.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("parsing diagram plan: %w", err)
	}
	return &plan, nil
}
