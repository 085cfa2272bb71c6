package pipeline

import (
	"fmt"

	"github.com/ShayCichocki/glassbox/internal/state"
	"github.com/ShayCichocki/glassbox/pkg/models"
)

// Context carries one run's accumulated results between stages. Each field
// is written by exactly one stage and read by later ones; the executor
// snapshots the producing stage's output into the state store at every
// boundary, so a Context can be rebuilt for resume.
type Context struct {
	RunID     string
	Target    string
	OutputDir string
	// Root is the local directory the scout walked: the target itself,
	// or the shallow clone for remote targets.
	Root string

	Inventory *models.FileInventory
	Artifact  *models.KnowledgeArtifact
	Plan      *models.DiagramPlan
	Drafted   []*models.DiagramArtifact
	Records   []models.AuditRecord
}

// Checkpoint payloads, one per producing stage. JSON shape is part of the
// state schema: resume deserializes whatever version wrote the row.

type scoutedPayload struct {
	Root      string                `json:"root"`
	Inventory *models.FileInventory `json:"inventory"`
}

type inventoryPayload struct {
	Inventory *models.FileInventory `json:"inventory"`
}

type artifactPayload struct {
	Artifact *models.KnowledgeArtifact `json:"artifact"`
}

type planPayload struct {
	Plan *models.DiagramPlan `json:"plan"`
}

type draftedPayload struct {
	Artifacts []*models.DiagramArtifact `json:"artifacts"`
}

type auditedPayload struct {
	Artifacts []*models.DiagramArtifact `json:"artifacts"`
	Records   []models.AuditRecord      `json:"records"`
}

// restore rebuilds a run's Context from its persisted boundaries. For each
// field the latest producing stage wins: the uploaded inventory supersedes
// the surveyed one, the selected plan supersedes the proposed one.
func restore(store state.CheckpointStore, run *state.Run) (*Context, error) {
	rc := &Context{
		RunID:     run.ID,
		Target:    run.Target,
		OutputDir: run.OutputDir,
	}

	var scouted scoutedPayload
	if ok, err := store.LoadCheckpoint(run.ID, models.StageScouted, &scouted); err != nil {
		return nil, fmt.Errorf("restore scouted: %w", err)
	} else if ok {
		rc.Root = scouted.Root
		rc.Inventory = scouted.Inventory
	}

	for _, stage := range []models.Stage{models.StageSurveyed, models.StageUploaded} {
		var inv inventoryPayload
		if ok, err := store.LoadCheckpoint(run.ID, stage, &inv); err != nil {
			return nil, fmt.Errorf("restore %s: %w", stage, err)
		} else if ok {
			rc.Inventory = inv.Inventory
		}
	}

	var distilled artifactPayload
	if ok, err := store.LoadCheckpoint(run.ID, models.StageDistilled, &distilled); err != nil {
		return nil, fmt.Errorf("restore distilled: %w", err)
	} else if ok {
		rc.Artifact = distilled.Artifact
	}

	for _, stage := range []models.Stage{models.StagePlanned, models.StageAwaitingSelection} {
		var plan planPayload
		if ok, err := store.LoadCheckpoint(run.ID, stage, &plan); err != nil {
			return nil, fmt.Errorf("restore %s: %w", stage, err)
		} else if ok {
			rc.Plan = plan.Plan
		}
	}

	var drafted draftedPayload
	if ok, err := store.LoadCheckpoint(run.ID, models.StageDrafted, &drafted); err != nil {
		return nil, fmt.Errorf("restore drafted: %w", err)
	} else if ok {
		rc.Drafted = drafted.Artifacts
	}

	var audited auditedPayload
	if ok, err := store.LoadCheckpoint(run.ID, models.StageAudited, &audited); err != nil {
		return nil, fmt.Errorf("restore audited: %w", err)
	} else if ok {
		rc.Drafted = audited.Artifacts
		rc.Records = audited.Records
	}

	return rc, nil
}
