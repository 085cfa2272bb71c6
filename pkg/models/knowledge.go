package models

import (
	"sort"
	"time"
)

// UnitMode says how a KnowledgeUnit represents its file.
type UnitMode string

const (
	// UnitVerbatim keeps the full file content (small files lose nothing).
	UnitVerbatim UnitMode = "verbatim"
	// UnitSummary replaces the content with a generated summary.
	UnitSummary UnitMode = "summary"
	// UnitUnavailable marks a unit whose summarization failed repeatedly
	// and whose content was too large to fall back to verbatim.
	UnitUnavailable UnitMode = "summary-unavailable"
)

// RelationshipKind classifies an edge between two KnowledgeUnits.
type RelationshipKind string

const (
	// RelCalls is a call dependency (source invokes target).
	RelCalls RelationshipKind = "calls"
	// RelImports is an import/include dependency.
	RelImports RelationshipKind = "imports"
	// RelDataFlow is a data-flow edge (source's output feeds target).
	RelDataFlow RelationshipKind = "data_flow"
)

// Valid returns true if the kind is a known value.
func (k RelationshipKind) Valid() bool {
	switch k {
	case RelCalls, RelImports, RelDataFlow:
		return true
	default:
		return false
	}
}

// Relationship is a directed edge between two KnowledgeUnit identifiers.
type Relationship struct {
	// Source is the identifier of the unit the edge leaves.
	Source string `json:"source"`
	// Target is the identifier of the unit the edge enters.
	Target string `json:"target"`
	// Kind classifies the dependency.
	Kind RelationshipKind `json:"kind"`
}

// RejectedEdge records an inferred relationship that failed referential
// validation. Rejections are kept, never silently dropped.
type RejectedEdge struct {
	// Edge is the relationship as the LLM proposed it.
	Edge Relationship `json:"edge"`
	// Reason says which endpoint was unresolvable.
	Reason string `json:"reason"`
}

// KnowledgeUnit is one file's distilled representation. Units are created
// by the Map phase and frozen once Reduce completes.
type KnowledgeUnit struct {
	// ID is the unit identifier: the file path relative to the target root.
	ID string `json:"id"`
	// Role is the surveyor's classification, carried through for planning.
	Role Role `json:"role"`
	// Mode says whether Content or Summary holds the representation.
	Mode UnitMode `json:"mode"`
	// Lines is the source line count.
	Lines int `json:"lines"`
	// Content holds the verbatim file text when Mode is UnitVerbatim.
	Content string `json:"content,omitempty"`
	// Summary holds the generated summary when Mode is UnitSummary.
	Summary string `json:"summary,omitempty"`
	// Degraded marks a unit whose summarization exhausted retries.
	Degraded bool `json:"degraded,omitempty"`
}

// KnowledgeArtifact is the complete distilled view of the target: the unit
// mapping plus the inferred relationship edges. Exactly one exists per run.
// It is append-only during the Map phase, mutated once by Reduce, and
// frozen afterward.
type KnowledgeArtifact struct {
	// Target is the repository locator.
	Target string `json:"target"`
	// GeneratedAt is when distillation finished.
	GeneratedAt time.Time `json:"generated_at"`
	// Units maps unit identifier to unit.
	Units map[string]*KnowledgeUnit `json:"units"`
	// Relationships is the inferred cross-unit edge list.
	Relationships []Relationship `json:"relationships"`
	// Rejected records edges that failed referential validation.
	Rejected []RejectedEdge `json:"rejected,omitempty"`
}

// NewKnowledgeArtifact returns an empty artifact for the given target.
func NewKnowledgeArtifact(target string) *KnowledgeArtifact {
	return &KnowledgeArtifact{
		Target: target,
		Units:  make(map[string]*KnowledgeUnit),
	}
}

// Has reports whether id resolves to a unit in this artifact.
func (a *KnowledgeArtifact) Has(id string) bool {
	_, ok := a.Units[id]
	return ok
}

// UnitIDs returns every unit identifier, sorted.
func (a *KnowledgeArtifact) UnitIDs() []string {
	ids := make([]string, 0, len(a.Units))
	for id := range a.Units {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SetInferred replaces the artifact's relationship set wholesale. Reduce
// calls this so re-running on the same Map output cannot accumulate
// duplicate edges.
func (a *KnowledgeArtifact) SetInferred(edges []Relationship, rejected []RejectedEdge) {
	sorted := make([]Relationship, len(edges))
	copy(sorted, edges)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Source != sorted[j].Source {
			return sorted[i].Source < sorted[j].Source
		}
		if sorted[i].Target != sorted[j].Target {
			return sorted[i].Target < sorted[j].Target
		}
		return sorted[i].Kind < sorted[j].Kind
	})
	a.Relationships = sorted
	a.Rejected = rejected
}

// DegradedUnit is the per-run record of a unit that fell back after its
// summarization batch exhausted retries.
type DegradedUnit struct {
	// UnitID is the affected unit identifier.
	UnitID string `json:"unit_id"`
	// Reason is the last validation or transport error, summarized.
	Reason string `json:"reason"`
}
