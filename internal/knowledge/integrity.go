package knowledge

import (
	"fmt"

	"github.com/ShayCichocki/glassbox/pkg/models"
)

// IntegrityError reports relationship edges whose endpoints name no unit
// in the artifact.
type IntegrityError struct {
	// Dangling holds every offending edge with the reason it failed.
	Dangling []models.RejectedEdge
}

// Error implements the error interface.
func (e *IntegrityError) Error() string {
	if len(e.Dangling) == 1 {
		d := e.Dangling[0]
		return fmt.Sprintf("knowledge integrity: edge %s -> %s (%s): %s",
			d.Edge.Source, d.Edge.Target, d.Edge.Kind, d.Reason)
	}
	return fmt.Sprintf("knowledge integrity: %d dangling relationship edges", len(e.Dangling))
}

// ValidateIntegrity checks that every relationship endpoint resolves to a
// unit identifier. Planning must never see a dangling edge.
func ValidateIntegrity(a *models.KnowledgeArtifact) error {
	var dangling []models.RejectedEdge
	for _, r := range a.Relationships {
		if reason := rejectReason(a, r); reason != "" {
			dangling = append(dangling, models.RejectedEdge{Edge: r, Reason: reason})
		}
	}
	if len(dangling) > 0 {
		return &IntegrityError{Dangling: dangling}
	}
	return nil
}

// ScreenEdges partitions proposed edges into referentially valid ones and
// rejects. Each reject carries the reason it failed; rejects are recorded,
// never silently dropped. Exact duplicate edges collapse to one.
func ScreenEdges(a *models.KnowledgeArtifact, proposed []models.Relationship) ([]models.Relationship, []models.RejectedEdge) {
	var valid []models.Relationship
	var rejected []models.RejectedEdge
	seen := make(map[models.Relationship]bool)

	for _, e := range proposed {
		if reason := rejectReason(a, e); reason != "" {
			rejected = append(rejected, models.RejectedEdge{Edge: e, Reason: reason})
			continue
		}
		if seen[e] {
			continue
		}
		seen[e] = true
		valid = append(valid, e)
	}
	return valid, rejected
}

// rejectReason says why the edge fails referential validation, or ""
// when both endpoints resolve and the kind is known.
func rejectReason(a *models.KnowledgeArtifact, e models.Relationship) string {
	switch {
	case !e.Kind.Valid():
		return fmt.Sprintf("unknown relationship kind %q", e.Kind)
	case !a.Has(e.Source):
		return fmt.Sprintf("source %q is not a known unit", e.Source)
	case !a.Has(e.Target):
		return fmt.Sprintf("target %q is not a known unit", e.Target)
	}
	return ""
}
