package models

// ErrorKind classifies a run failure for reporting and for the CLI exit
// code. Kinds map one-to-one onto the failure classes the pipeline
// distinguishes: structural validation, transport, referential integrity,
// and resource exhaustion.
type ErrorKind string

const (
	// ErrKindSchema means LLM output failed structural validation after
	// exhausting retries.
	ErrKindSchema ErrorKind = "schema"
	// ErrKindTransport means timeouts or rate limiting persisted through
	// backoff.
	ErrKindTransport ErrorKind = "transport"
	// ErrKindIntegrity means an entity referenced a nonexistent identifier.
	ErrKindIntegrity ErrorKind = "integrity"
	// ErrKindResource means an upload/staging quota was exceeded.
	ErrKindResource ErrorKind = "resource"
	// ErrKindCanceled means the run was stopped by signal or stop file.
	ErrKindCanceled ErrorKind = "canceled"
	// ErrKindInternal covers everything else.
	ErrKindInternal ErrorKind = "internal"
)

// ExitCode maps the kind to the process exit code contract:
// 0 success, 2 schema, 3 transport, 4 integrity, 5 resource, 1 other.
func (k ErrorKind) ExitCode() int {
	switch k {
	case ErrKindSchema:
		return 2
	case ErrKindTransport:
		return 3
	case ErrKindIntegrity:
		return 4
	case ErrKindResource:
		return 5
	default:
		return 1
	}
}
