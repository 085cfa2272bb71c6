package invoke

import (
	"context"
	"errors"
	"fmt"

	"github.com/ShayCichocki/glassbox/internal/validation"
	"github.com/ShayCichocki/glassbox/pkg/models"
)

// SchemaError means every attempt produced structurally invalid output.
// It carries the last violation list so callers can report what was wrong
// without dumping raw LLM output.
type SchemaError struct {
	// Schema is the name of the schema that kept failing.
	Schema string
	// Attempts is how many responses were validated and rejected.
	Attempts int
	// Violations is the violation list from the final attempt.
	Violations []validation.Violation
	// LastResponse is the final raw response, kept for diagnosis.
	LastResponse string
}

// Error implements error.
func (e *SchemaError) Error() string {
	return fmt.Sprintf("response failed %s validation after %d attempts: %s",
		e.Schema, e.Attempts, validation.FormatViolations(e.Violations))
}

// TransportError means the service stayed unreachable through every
// backoff retry: timeouts, rate limits, server errors.
type TransportError struct {
	// Attempts is how many sends were tried.
	Attempts int
	// Status is the last HTTP status, when one was seen.
	Status int
	// Err is the last underlying error.
	Err error
}

// Error implements error.
func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("llm transport failed after %d attempts (status %d): %v",
			e.Attempts, e.Status, e.Err)
	}
	return fmt.Sprintf("llm transport failed after %d attempts: %v", e.Attempts, e.Err)
}

// Unwrap exposes the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// Classify maps an invocation error onto the run-level error taxonomy.
func Classify(err error) models.ErrorKind {
	var schemaErr *SchemaError
	if errors.As(err, &schemaErr) {
		return models.ErrKindSchema
	}
	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		return models.ErrKindTransport
	}
	if errors.Is(err, context.Canceled) {
		return models.ErrKindCanceled
	}
	return models.ErrKindInternal
}
