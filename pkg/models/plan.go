package models

// DiagramType names a concrete diagram kind the planner can propose.
type DiagramType string

const (
	// DiagramSequence is a behavioral sequence diagram.
	DiagramSequence DiagramType = "sequence"
	// DiagramState is a behavioral state-machine diagram.
	DiagramState DiagramType = "state"
	// DiagramComponent is a structural component diagram.
	DiagramComponent DiagramType = "component"
	// DiagramClass is a structural class diagram.
	DiagramClass DiagramType = "class"
	// DiagramEntity is a structural entity-relationship diagram.
	DiagramEntity DiagramType = "entity"
	// DiagramDataFlow is a structural data-flow diagram.
	DiagramDataFlow DiagramType = "data_flow"
)

// Valid returns true if the type is a known value.
func (t DiagramType) Valid() bool {
	switch t {
	case DiagramSequence, DiagramState, DiagramComponent,
		DiagramClass, DiagramEntity, DiagramDataFlow:
		return true
	default:
		return false
	}
}

// Behavioral reports whether the type is a dynamic-interaction view
// (sequence/state) as opposed to a static-relationship view.
func (t DiagramType) Behavioral() bool {
	return t == DiagramSequence || t == DiagramState
}

// PlanStatus tracks a DiagramPlanItem through dedup and selection.
type PlanStatus string

const (
	// PlanProposed is the initial status of every planner candidate.
	PlanProposed PlanStatus = "proposed"
	// PlanSelected marks items the human checkpoint chose for drafting.
	PlanSelected PlanStatus = "selected"
	// PlanRejectedDuplicate marks items the dedup pass folded into a
	// better-covering candidate.
	PlanRejectedDuplicate PlanStatus = "rejected-duplicate"
	// PlanRejectedInfeasible marks items that reference unit identifiers
	// absent from the knowledge artifact.
	PlanRejectedInfeasible PlanStatus = "rejected-infeasible"
)

// Valid returns true if the status is a known value.
func (s PlanStatus) Valid() bool {
	switch s {
	case PlanProposed, PlanSelected, PlanRejectedDuplicate, PlanRejectedInfeasible:
		return true
	default:
		return false
	}
}

// DiagramPlanItem is one proposed diagram. Items are created by the
// planner passes, have their status mutated by dedup and by the human
// checkpoint, and are immutable once drafting starts.
type DiagramPlanItem struct {
	// ID is the deterministic plan identifier (D01, D02, ...).
	ID string `json:"id"`
	// Name is the diagram title.
	Name string `json:"name"`
	// Type is the concrete diagram kind.
	Type DiagramType `json:"type"`
	// Focus is the planner's rationale: what question the diagram answers.
	Focus string `json:"focus"`
	// Files is the target scope: the KnowledgeUnit identifiers covered.
	Files []string `json:"files"`
	// Complexity is the planner's low/medium/high estimate.
	Complexity string `json:"complexity,omitempty"`
	// Status tracks the item through dedup and selection.
	Status PlanStatus `json:"status"`
}

// DiagramPlan is the persisted planner output (diagram_plan.json).
type DiagramPlan struct {
	// Target is the repository locator.
	Target string `json:"target"`
	// Items lists every candidate, including rejected ones.
	Items []DiagramPlanItem `json:"items"`
}

// Pending returns the items still eligible for the checkpoint, in order.
func (p *DiagramPlan) Pending() []DiagramPlanItem {
	var out []DiagramPlanItem
	for _, it := range p.Items {
		if it.Status == PlanProposed {
			out = append(out, it)
		}
	}
	return out
}

// Selected returns the items chosen at the checkpoint, in order.
func (p *DiagramPlan) Selected() []DiagramPlanItem {
	var out []DiagramPlanItem
	for _, it := range p.Items {
		if it.Status == PlanSelected {
			out = append(out, it)
		}
	}
	return out
}

// Item returns a pointer to the item with the given ID, or nil.
func (p *DiagramPlan) Item(id string) *DiagramPlanItem {
	for i := range p.Items {
		if p.Items[i].ID == id {
			return &p.Items[i]
		}
	}
	return nil
}
