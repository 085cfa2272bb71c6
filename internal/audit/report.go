package audit

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ShayCichocki/glassbox/pkg/models"
)

// ReportName is the audit report file name.
const ReportName = "audit_report.md"

// WriteReport renders the audit records as markdown under outDir and
// returns the report path.
func WriteReport(outDir string, records []models.AuditRecord) (string, error) {
	deprecated := 0
	for _, r := range records {
		if r.Deprecated != "" {
			deprecated++
		}
	}

	var b strings.Builder
	b.WriteString("# Diagram Audit Report\n\n")
	fmt.Fprintf(&b, "**Pairs analyzed:** %d\n", len(records))
	fmt.Fprintf(&b, "**Diagrams deprecated:** %d\n\n", deprecated)
	b.WriteString("---\n")

	if len(records) == 0 {
		b.WriteString("\nNo candidate pairs found; every diagram kept.\n")
	}

	for _, r := range records {
		b.WriteString("\n")
		switch r.Status {
		case models.AuditDropA:
			fmt.Fprintf(&b, "## %s: %s superseded by %s\n", r.Status, r.PairA, r.PairB)
		case models.AuditDropB:
			fmt.Fprintf(&b, "## %s: %s superseded by %s\n", r.Status, r.PairB, r.PairA)
		default:
			fmt.Fprintf(&b, "## %s: %s / %s\n", r.Status, r.PairA, r.PairB)
		}
		fmt.Fprintf(&b, "- **Trigger:** %s\n", r.Trigger)
		if r.Confidence != "" {
			fmt.Fprintf(&b, "- **Confidence:** %s\n", r.Confidence)
		}
		if r.Reasoning != "" {
			fmt.Fprintf(&b, "- **Reasoning:** %s\n", r.Reasoning)
		}
	}

	path := filepath.Join(outDir, ReportName)
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return "", fmt.Errorf("writing audit report: %w", err)
	}
	return path, nil
}
