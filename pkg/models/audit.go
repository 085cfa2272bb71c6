package models

// AuditVerdict is the content-comparison outcome for a candidate pair.
type AuditVerdict string

const (
	// VerdictDistinct means the two diagrams cover genuinely different
	// concerns and both stay live.
	VerdictDistinct AuditVerdict = "distinct"
	// VerdictRedundant means one diagram is strictly inferior and gets
	// superseded by the other.
	VerdictRedundant AuditVerdict = "redundant"
)

// AuditConfidence is the LLM's self-reported confidence in its verdict.
// Low-confidence redundancy verdicts are not acted on.
type AuditConfidence string

const (
	// ConfidenceHigh marks a verdict safe to act on.
	ConfidenceHigh AuditConfidence = "HIGH"
	// ConfidenceMedium marks a verdict safe to act on.
	ConfidenceMedium AuditConfidence = "MEDIUM"
	// ConfidenceLow marks a verdict that keeps both artifacts.
	ConfidenceLow AuditConfidence = "LOW"
)

// Valid returns true if the confidence is a known value.
func (c AuditConfidence) Valid() bool {
	switch c {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow:
		return true
	default:
		return false
	}
}

// Audit pair statuses as written to the audit report.
const (
	// AuditDropA means artifact A was superseded by B.
	AuditDropA = "DROP_A"
	// AuditDropB means artifact B was superseded by A.
	AuditDropB = "DROP_B"
	// AuditKeepBoth means both artifacts stay live.
	AuditKeepBoth = "KEEP_BOTH"
	// AuditSkipped means a pair member was already superseded when the
	// comparison came up.
	AuditSkipped = "SKIPPED"
)

// AuditRecord documents one candidate-pair comparison. Records are
// append-only; deprecation never deletes artifact data.
type AuditRecord struct {
	// PairA is the plan ID of the first artifact in the pair.
	PairA string `json:"pair_a"`
	// PairB is the plan ID of the second artifact in the pair.
	PairB string `json:"pair_b"`
	// Trigger says which pre-filter fired: scope-overlap or title-similarity.
	Trigger string `json:"trigger"`
	// Verdict is the content-comparison outcome.
	Verdict AuditVerdict `json:"verdict"`
	// Confidence is the LLM's reported confidence.
	Confidence AuditConfidence `json:"confidence,omitempty"`
	// Deprecated is the plan ID of the superseded artifact, if any.
	Deprecated string `json:"deprecated,omitempty"`
	// Status is the report status: DROP_A, DROP_B, KEEP_BOTH, or SKIPPED.
	Status string `json:"status"`
	// Reasoning is the LLM's explanation, kept for the report.
	Reasoning string `json:"reasoning,omitempty"`
}
