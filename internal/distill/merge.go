package distill

import (
	"fmt"

	"github.com/ShayCichocki/glassbox/pkg/models"
)

// DuplicateUnitError means two Map batches produced a unit with the same
// identifier. Batching assigns each file to exactly one batch, so this is
// a construction bug, not bad input, and the stage aborts.
type DuplicateUnitError struct {
	// ID is the identifier that appeared twice.
	ID string
}

// Error implements error.
func (e *DuplicateUnitError) Error() string {
	return fmt.Sprintf("merge conflict: unit %q produced by more than one batch", e.ID)
}

// Merge unions batch outputs into one unit map. The union is commutative:
// batch order cannot change the result, because identifiers never collide
// across batches and a collision is a hard error.
func Merge(unitSets ...[]*models.KnowledgeUnit) (map[string]*models.KnowledgeUnit, error) {
	merged := make(map[string]*models.KnowledgeUnit)
	for _, units := range unitSets {
		for _, u := range units {
			if _, ok := merged[u.ID]; ok {
				return nil, &DuplicateUnitError{ID: u.ID}
			}
			merged[u.ID] = u
		}
	}
	return merged, nil
}
