// Package tui provides the interactive terminal surfaces for glassbox.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/ShayCichocki/glassbox/internal/pipeline"
	"github.com/ShayCichocki/glassbox/pkg/models"
)

// SelectCheckpoint presents the diagram plan in a full-screen picker. It
// implements pipeline.Checkpoint for TTY sessions; piped runs use the
// headless checkpoint instead.
type SelectCheckpoint struct{}

// Present implements pipeline.Checkpoint.
func (SelectCheckpoint) Present(items []models.DiagramPlanItem) (pipeline.Selection, error) {
	model := NewSelectModel(items)
	final, err := tea.NewProgram(model, tea.WithAltScreen()).Run()
	if err != nil {
		return pipeline.Selection{}, fmt.Errorf("selection ui: %w", err)
	}
	m, ok := final.(*SelectModel)
	if !ok {
		return pipeline.Selection{}, fmt.Errorf("selection ui returned unexpected model %T", final)
	}
	return m.Selection(), nil
}

// SelectModel is the checkpoint picker: a cursor-driven checklist over the
// pending plan items, with an expression field that accepts the same
// grammar as the headless prompt.
type SelectModel struct {
	items   []models.DiagramPlanItem
	cursor  int
	checked map[int]bool

	input       textinput.Model
	inputActive bool
	inputErr    string

	confirmed bool
	quitting  bool
	width     int
	height    int

	styles selectStyles
}

// NewSelectModel creates the picker over the pending plan items.
func NewSelectModel(items []models.DiagramPlanItem) *SelectModel {
	ti := textinput.New()
	ti.Placeholder = "1,3 / all / none / quit"
	ti.CharLimit = 120
	ti.Width = 40

	return &SelectModel{
		items:   items,
		checked: make(map[int]bool),
		input:   ti,
		width:   80,
		height:  24,
		styles:  newSelectStyles(),
	}
}

// Init implements tea.Model.
func (m *SelectModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m *SelectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		if m.inputActive {
			return m.updateInput(msg)
		}

		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.quitting = true
			return m, tea.Quit

		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}

		case "down", "j":
			if m.cursor < len(m.items)-1 {
				m.cursor++
			}

		case " ", "x":
			m.checked[m.cursor] = !m.checked[m.cursor]

		case "a":
			for i := range m.items {
				m.checked[i] = true
			}

		case "n":
			m.checked = make(map[int]bool)

		case "tab", "/":
			m.inputActive = true
			m.inputErr = ""
			return m, m.input.Focus()

		case "enter":
			m.confirmed = true
			return m, tea.Quit
		}
	}

	return m, nil
}

// updateInput handles keys while the expression field has focus.
func (m *SelectModel) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "tab":
		m.inputActive = false
		m.inputErr = ""
		m.input.Blur()
		return m, nil

	case "enter":
		sel, err := pipeline.ParseSelection(m.input.Value(), m.items)
		if err != nil {
			m.inputErr = err.Error()
			return m, nil
		}
		if sel.Quit {
			m.quitting = true
			return m, tea.Quit
		}

		m.checked = make(map[int]bool, len(sel.IDs))
		index := make(map[string]int, len(m.items))
		for i, it := range m.items {
			index[it.ID] = i
		}
		for _, id := range sel.IDs {
			m.checked[index[id]] = true
		}
		m.confirmed = true
		return m, tea.Quit
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View implements tea.Model.
func (m *SelectModel) View() string {
	var b strings.Builder

	b.WriteString(m.styles.title.Render(" Select diagrams to draft "))
	b.WriteString("\n\n")

	for i, it := range m.items {
		cursor := "  "
		if i == m.cursor && !m.inputActive {
			cursor = m.styles.cursor.Render("> ")
		}
		box := "[ ]"
		if m.checked[i] {
			box = m.styles.checked.Render("[x]")
		}

		fmt.Fprintf(&b, "%s%s %d. [%s] %s (%s", cursor, box, i+1, it.ID, it.Name, it.Type)
		if it.Complexity != "" {
			b.WriteString(", " + it.Complexity)
		}
		b.WriteString(")\n")

		if it.Focus != "" {
			b.WriteString(m.styles.dim.Render("         "+it.Focus) + "\n")
		}
		if len(it.Files) > 0 {
			scope := it.Files
			suffix := ""
			if len(scope) > 3 {
				scope = scope[:3]
				suffix = ", ..."
			}
			b.WriteString(m.styles.dim.Render("         scope: "+strings.Join(scope, ", ")+suffix) + "\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(m.styles.count.Render(fmt.Sprintf("%d of %d selected", m.selectedCount(), len(m.items))))
	b.WriteString("\n\n")

	if m.inputActive {
		b.WriteString(m.styles.prompt.Render("> ") + m.input.View() + "\n")
		if m.inputErr != "" {
			b.WriteString(m.styles.errMsg.Render(m.inputErr) + "\n")
		}
		b.WriteString(m.styles.dim.Render("enter apply · esc back"))
	} else {
		b.WriteString(m.styles.dim.Render("space toggle · a all · n none · tab expression · enter confirm · q quit"))
	}

	return b.String()
}

// Selection returns the outcome once the program has finished. A picker
// that was quit rather than confirmed suspends the run.
func (m *SelectModel) Selection() pipeline.Selection {
	if m.quitting || !m.confirmed {
		return pipeline.Selection{Quit: true}
	}
	var ids []string
	for i, it := range m.items {
		if m.checked[i] {
			ids = append(ids, it.ID)
		}
	}
	return pipeline.Selection{IDs: ids}
}

func (m *SelectModel) selectedCount() int {
	n := 0
	for _, on := range m.checked {
		if on {
			n++
		}
	}
	return n
}
