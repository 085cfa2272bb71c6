package audit

import "github.com/ShayCichocki/glassbox/pkg/models"

// Pre-filter trigger labels, recorded on every AuditRecord.
const (
	TriggerScope = "scope-overlap"
	TriggerTitle = "title-similarity"
)

// Pair is a candidate duplicate pair flagged by the structural pre-filter.
type Pair struct {
	A, B *models.DiagramArtifact
	// Trigger says which pre-filter fired.
	Trigger string
}

// Prefilter returns the artifact pairs worth an expensive content
// comparison: scope Jaccard at or above overlapThreshold, or title
// similarity at or above titleThreshold. Everything else is assumed
// distinct without an LLM call. Pair order follows the artifact slice,
// so a rerun on the same input visits pairs in the same order.
func Prefilter(artifacts []*models.DiagramArtifact, overlapThreshold, titleThreshold float64) []Pair {
	var pairs []Pair
	for i := 0; i < len(artifacts); i++ {
		for j := i + 1; j < len(artifacts); j++ {
			a, b := artifacts[i], artifacts[j]
			switch {
			case ScopeJaccard(a.Files, b.Files) >= overlapThreshold:
				pairs = append(pairs, Pair{A: a, B: b, Trigger: TriggerScope})
			case TitleSimilarity(a.Name, b.Name) >= titleThreshold:
				pairs = append(pairs, Pair{A: a, B: b, Trigger: TriggerTitle})
			}
		}
	}
	return pairs
}
