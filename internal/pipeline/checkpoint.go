package pipeline

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ShayCichocki/glassbox/pkg/models"
)

// Selection is the outcome of the human checkpoint.
type Selection struct {
	// IDs are the chosen plan item IDs. Empty with Quit false means the
	// user selected none: the run completes with nothing drafted.
	IDs []string
	// Quit means the user ended the session without deciding; the run
	// stays suspended and can be resumed.
	Quit bool
}

// Checkpoint presents pending plan items and returns the user's selection.
// The TUI implements it for interactive runs; HeadlessCheckpoint covers
// pipes and --select.
type Checkpoint interface {
	Present(items []models.DiagramPlanItem) (Selection, error)
}

// ParseSelection interprets one line of checkpoint input against the
// pending items: "all"/"a"/"*", "none", "quit"/"q"/"exit", or a
// comma-separated list of positions (1-based) or plan IDs.
func ParseSelection(input string, items []models.DiagramPlanItem) (Selection, error) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "":
		return Selection{}, fmt.Errorf("empty selection")
	case "all", "a", "*":
		return selectAll(items), nil
	case "none":
		return Selection{}, nil
	case "quit", "q", "exit":
		return Selection{Quit: true}, nil
	}

	var ids []string
	seen := make(map[string]bool)
	for _, tok := range strings.Split(input, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		item, err := matchItem(tok, items)
		if err != nil {
			return Selection{}, err
		}
		if !seen[item.ID] {
			seen[item.ID] = true
			ids = append(ids, item.ID)
		}
	}
	if len(ids) == 0 {
		return Selection{}, fmt.Errorf("no diagrams matched %q", input)
	}
	return Selection{IDs: ids}, nil
}

// matchItem resolves one token to a pending item, by position or by ID.
func matchItem(tok string, items []models.DiagramPlanItem) (*models.DiagramPlanItem, error) {
	if n, err := strconv.Atoi(tok); err == nil {
		if n < 1 || n > len(items) {
			return nil, fmt.Errorf("position %d out of range (1-%d)", n, len(items))
		}
		return &items[n-1], nil
	}
	for i := range items {
		if strings.EqualFold(items[i].ID, tok) {
			return &items[i], nil
		}
	}
	return nil, fmt.Errorf("unknown diagram %q", tok)
}

func selectAll(items []models.DiagramPlanItem) Selection {
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	return Selection{IDs: ids}
}

// ApplySelection marks the chosen pending items selected. Unselected items
// stay proposed; nothing is ever deleted from the plan. Returns how many
// items were selected.
func ApplySelection(plan *models.DiagramPlan, sel Selection) int {
	chosen := make(map[string]bool, len(sel.IDs))
	for _, id := range sel.IDs {
		chosen[id] = true
	}
	count := 0
	for i := range plan.Items {
		if plan.Items[i].Status != models.PlanProposed {
			continue
		}
		if chosen[plan.Items[i].ID] {
			plan.Items[i].Status = models.PlanSelected
			count++
		}
	}
	return count
}

// HeadlessCheckpoint reads the selection from a stream, or takes it from a
// preselect spec without reading at all. EOF selects everything, so piped
// runs complete unattended.
type HeadlessCheckpoint struct {
	In  io.Reader
	Out io.Writer
	// Preselect, when non-empty, answers the checkpoint without reading
	// In (the --select flag).
	Preselect string
}

// Present implements Checkpoint.
func (h *HeadlessCheckpoint) Present(items []models.DiagramPlanItem) (Selection, error) {
	if h.Preselect != "" {
		return ParseSelection(h.Preselect, items)
	}

	fmt.Fprintln(h.Out, FormatPlanTable(items))
	fmt.Fprint(h.Out, "Select diagrams to generate: ")

	scanner := bufio.NewScanner(h.In)
	for {
		if !scanner.Scan() {
			// EOF or read error: non-interactive mode selects all.
			fmt.Fprintln(h.Out, "no input; selecting all diagrams")
			return selectAll(items), nil
		}
		sel, err := ParseSelection(scanner.Text(), items)
		if err != nil {
			fmt.Fprintf(h.Out, "%v\nSelect diagrams to generate: ", err)
			continue
		}
		return sel, nil
	}
}

// FormatPlanTable renders pending plan items for the checkpoint prompt.
func FormatPlanTable(items []models.DiagramPlanItem) string {
	var b strings.Builder
	b.WriteString("Proposed diagrams:\n")
	for i, it := range items {
		fmt.Fprintf(&b, "  %d. [%s] %s (%s", i+1, it.ID, it.Name, it.Type)
		if it.Complexity != "" {
			fmt.Fprintf(&b, ", %s", it.Complexity)
		}
		b.WriteString(")\n")
		if it.Focus != "" {
			fmt.Fprintf(&b, "     %s\n", it.Focus)
		}
		if len(it.Files) > 0 {
			scope := it.Files
			suffix := ""
			if len(scope) > 3 {
				scope = scope[:3]
				suffix = ", ..."
			}
			fmt.Fprintf(&b, "     scope: %s%s\n", strings.Join(scope, ", "), suffix)
		}
	}
	b.WriteString("Enter positions or IDs separated by commas (e.g. 1,3), 'all', 'none', or 'quit'.")
	return b.String()
}
