package plan

import (
	"github.com/ShayCichocki/glassbox/pkg/models"
)

// CheckFeasibility rejects proposals whose scope names identifiers absent
// from the artifact. This is a referential-integrity constraint, so it is
// enforced here in code; the model is never asked to police it. Returns
// how many items were rejected.
func CheckFeasibility(plan *models.DiagramPlan, artifact *models.KnowledgeArtifact) int {
	rejected := 0
	for i := range plan.Items {
		it := &plan.Items[i]
		if it.Status != models.PlanProposed {
			continue
		}
		for _, f := range it.Files {
			if !artifact.Has(f) {
				it.Status = models.PlanRejectedInfeasible
				rejected++
				break
			}
		}
	}
	return rejected
}
