package state

import (
	"io"

	"github.com/ShayCichocki/glassbox/pkg/models"
)

// RunStore handles run-row persistence operations.
type RunStore interface {
	CreateRun(r *Run) error
	GetRun(id string) (*Run, error)
	UpdateRun(r *Run) error
	ListRuns(status *models.RunStatus) ([]Run, error)
	LatestRun() (*Run, error)
}

// CheckpointStore handles stage-boundary persistence operations.
type CheckpointStore interface {
	SaveCheckpoint(runID string, stage models.Stage, payload any) error
	LoadCheckpoint(runID string, stage models.Stage, v any) (bool, error)
	CheckpointStages(runID string) ([]models.Stage, error)
}

// DegradedStore records units that fell back instead of failing the run.
type DegradedStore interface {
	RecordDegraded(runID string, stage models.Stage, unit, reason string) error
	ListDegraded(runID string) ([]DegradedUnit, error)
}

// Migrator handles database schema migrations.
// Separating this allows clients to depend only on migration functionality.
type Migrator interface {
	// Migrate applies all pending schema migrations.
	Migrate() error
}

// Store defines the interface for run persistence.
// This interface allows the pipeline executor to work with any state backend
// without depending on the concrete SQLite implementation.
// It composes focused sub-interfaces for better modularity.
type Store interface {
	io.Closer
	Migrator
	RunStore
	CheckpointStore
	DegradedStore
}

// Compile-time verification that DB implements all interfaces.
var (
	_ Store           = (*DB)(nil)
	_ Migrator        = (*DB)(nil)
	_ RunStore        = (*DB)(nil)
	_ CheckpointStore = (*DB)(nil)
	_ DegradedStore   = (*DB)(nil)
)
