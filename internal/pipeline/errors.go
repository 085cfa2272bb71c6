package pipeline

import (
	"errors"
	"fmt"

	"github.com/ShayCichocki/glassbox/internal/invoke"
	"github.com/ShayCichocki/glassbox/internal/knowledge"
	"github.com/ShayCichocki/glassbox/internal/upload"
	"github.com/ShayCichocki/glassbox/pkg/models"
)

// RunError is the terminal failure of a run: the stage that was executing,
// the classified kind driving the exit code, and the underlying cause.
type RunError struct {
	Stage models.Stage
	Kind  models.ErrorKind
	Err   error
}

// Error implements error.
func (e *RunError) Error() string {
	return fmt.Sprintf("stage %s failed (%s): %v", e.Stage, e.Kind, e.Err)
}

// Unwrap exposes the underlying error.
func (e *RunError) Unwrap() error {
	return e.Err
}

// classify extends the invoker's error taxonomy with the failure classes
// raised outside LLM calls: referential integrity and staging exhaustion.
func classify(err error) models.ErrorKind {
	var integrityErr *knowledge.IntegrityError
	if errors.As(err, &integrityErr) {
		return models.ErrKindIntegrity
	}
	var exhaustionErr *upload.ExhaustionError
	if errors.As(err, &exhaustionErr) {
		return models.ErrKindResource
	}
	return invoke.Classify(err)
}
