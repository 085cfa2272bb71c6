package tui

import (
	"reflect"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ShayCichocki/glassbox/pkg/models"
)

func pickerItems() []models.DiagramPlanItem {
	return []models.DiagramPlanItem{
		{ID: "D01", Name: "Request flow", Type: models.DiagramSequence, Status: models.PlanProposed},
		{ID: "D02", Name: "Store internals", Type: models.DiagramComponent, Status: models.PlanProposed},
		{ID: "D03", Name: "Entity map", Type: models.DiagramEntity, Status: models.PlanProposed},
	}
}

func keyRunes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestSelectModel_ToggleAndConfirm(t *testing.T) {
	m := NewSelectModel(pickerItems())

	// Check the first item, move down twice, check the third.
	m.Update(keyRunes("x"))
	m.Update(keyRunes("j"))
	m.Update(keyRunes("j"))
	m.Update(keyRunes("x"))
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})

	if cmd == nil {
		t.Fatal("enter returned no command, want tea.Quit")
	}
	sel := m.Selection()
	if sel.Quit {
		t.Fatal("Selection() quit = true after confirm")
	}
	if !reflect.DeepEqual(sel.IDs, []string{"D01", "D03"}) {
		t.Errorf("Selection() = %v, want [D01 D03]", sel.IDs)
	}
}

func TestSelectModel_ToggleOff(t *testing.T) {
	m := NewSelectModel(pickerItems())

	m.Update(keyRunes("x"))
	m.Update(keyRunes("x"))
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})

	if sel := m.Selection(); len(sel.IDs) != 0 {
		t.Errorf("Selection() = %v, want empty after double toggle", sel.IDs)
	}
}

func TestSelectModel_SelectAllKey(t *testing.T) {
	m := NewSelectModel(pickerItems())

	m.Update(keyRunes("a"))
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})

	if sel := m.Selection(); len(sel.IDs) != 3 {
		t.Errorf("Selection() = %v, want all three", sel.IDs)
	}
}

func TestSelectModel_ClearKey(t *testing.T) {
	m := NewSelectModel(pickerItems())

	m.Update(keyRunes("a"))
	m.Update(keyRunes("n"))
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})

	if sel := m.Selection(); len(sel.IDs) != 0 {
		t.Errorf("Selection() = %v, want empty after clear", sel.IDs)
	}
}

func TestSelectModel_QuitSuspends(t *testing.T) {
	m := NewSelectModel(pickerItems())

	m.Update(keyRunes("x"))
	_, cmd := m.Update(keyRunes("q"))

	if cmd == nil {
		t.Fatal("q returned no command, want tea.Quit")
	}
	if sel := m.Selection(); !sel.Quit {
		t.Errorf("Selection() = %+v, want quit", sel)
	}
}

func TestSelectModel_UnconfirmedIsQuit(t *testing.T) {
	// A program torn down without enter must not half-select.
	m := NewSelectModel(pickerItems())
	m.Update(keyRunes("x"))

	if sel := m.Selection(); !sel.Quit {
		t.Errorf("Selection() = %+v, want quit for unconfirmed picker", sel)
	}
}

func TestSelectModel_ExpressionSelects(t *testing.T) {
	m := NewSelectModel(pickerItems())

	m.Update(tea.KeyMsg{Type: tea.KeyTab})
	if !m.inputActive {
		t.Fatal("tab did not focus the expression field")
	}
	m.input.SetValue("1,3")
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})

	sel := m.Selection()
	if !reflect.DeepEqual(sel.IDs, []string{"D01", "D03"}) {
		t.Errorf("Selection() = %v, want [D01 D03]", sel.IDs)
	}
}

func TestSelectModel_ExpressionErrorReprompts(t *testing.T) {
	m := NewSelectModel(pickerItems())

	m.Update(tea.KeyMsg{Type: tea.KeyTab})
	m.input.SetValue("99")
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})

	if m.inputErr == "" {
		t.Error("invalid expression left no error message")
	}
	if m.confirmed {
		t.Error("invalid expression confirmed the picker")
	}

	m.input.SetValue("2")
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if sel := m.Selection(); !reflect.DeepEqual(sel.IDs, []string{"D02"}) {
		t.Errorf("Selection() = %v, want [D02]", sel.IDs)
	}
}

func TestSelectModel_ExpressionQuit(t *testing.T) {
	m := NewSelectModel(pickerItems())

	m.Update(tea.KeyMsg{Type: tea.KeyTab})
	m.input.SetValue("quit")
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})

	if sel := m.Selection(); !sel.Quit {
		t.Errorf("Selection() = %+v, want quit", sel)
	}
}

func TestSelectModel_ViewMarksChecked(t *testing.T) {
	m := NewSelectModel(pickerItems())
	m.Update(keyRunes("x"))

	view := m.View()
	if !strings.Contains(view, "[x]") {
		t.Error("view missing checked marker")
	}
	if !strings.Contains(view, "1 of 3 selected") {
		t.Errorf("view missing selection count:\n%s", view)
	}
}
