package tui

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Bigsy/mcpherd/internal/testutil"
	"github.com/Bigsy/mcpherd/internal/tui/views"
)

func TestModel_SelectionNavigation(t *testing.T) {
	m := resize(t, newTestModel(t, stdioServer("alpha"), stdioServer("beta"), stdioServer("gamma")), 100, 40)

	if sel := m.serverList.Selected(); sel != "alpha" {
		t.Fatalf("expected initial selection alpha, got %q", sel)
	}

	m, _ = pressKey(t, m, 'j')
	if sel := m.serverList.Selected(); sel != "beta" {
		t.Errorf("expected beta after j, got %q", sel)
	}

	// Moving past the last row clamps.
	m, _ = pressKey(t, m, 'j')
	m, _ = pressKey(t, m, 'j')
	if sel := m.serverList.Selected(); sel != "gamma" {
		t.Errorf("expected gamma at bottom, got %q", sel)
	}

	m, _ = pressKey(t, m, 'k')
	if sel := m.serverList.Selected(); sel != "beta" {
		t.Errorf("expected beta after k, got %q", sel)
	}

	m, _ = pressKey(t, m, 'g')
	if sel := m.serverList.Selected(); sel != "alpha" {
		t.Errorf("expected alpha after g, got %q", sel)
	}

	m, _ = pressKey(t, m, 'G')
	if sel := m.serverList.Selected(); sel != "gamma" {
		t.Errorf("expected gamma after G, got %q", sel)
	}
}

func TestModel_QuitKey(t *testing.T) {
	m := resize(t, newTestModel(t), 100, 40)

	_, cmd := pressKey(t, m, 'q')
	if cmd == nil {
		t.Fatal("expected quit command, got nil")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Errorf("expected tea.QuitMsg from quit command")
	}
}

func TestModel_CtrlCQuits(t *testing.T) {
	m := resize(t, newTestModel(t, stdioServer("db")), 100, 40)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil {
		t.Fatal("expected quit command, got nil")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Errorf("expected tea.QuitMsg from ctrl+c")
	}
}

func TestModel_AddOpensForm(t *testing.T) {
	m := resize(t, newTestModel(t), 100, 40)

	m, _ = pressKey(t, m, 'a')
	if !m.serverForm.IsVisible() {
		t.Fatal("expected server form to be visible after a")
	}

	// While the form is up the list keys go to the form, not the dashboard.
	before := m.serverList.Selected()
	m, _ = pressKey(t, m, 'j')
	if m.serverList.Selected() != before {
		t.Errorf("expected list selection untouched while form is visible")
	}
}

func TestModel_DeleteWithEmptyListNoDialog(t *testing.T) {
	m := resize(t, newTestModel(t), 100, 40)

	m, _ = pressKey(t, m, 'd')
	if m.confirmDlg.IsVisible() {
		t.Error("expected no confirm dialog with an empty server list")
	}
}

func TestModel_DeleteConfirmedRemovesServer(t *testing.T) {
	m := resize(t, newTestModel(t, stdioServer("alpha")), 100, 40)

	m, _ = pressKey(t, m, 'd')
	if !m.confirmDlg.IsVisible() {
		t.Fatal("expected confirm dialog after d")
	}

	model, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'y'}})
	m = model.(Model)
	if cmd == nil {
		t.Fatal("expected ConfirmResult command from y")
	}
	result, ok := cmd().(views.ConfirmResult)
	if !ok || !result.Confirmed {
		t.Fatalf("expected confirmed ConfirmResult, got %#v", result)
	}

	model, cmd = m.Update(result)
	m = model.(Model)
	if cmd == nil {
		t.Fatal("expected delete command after confirmation")
	}
	if msg := cmd(); msg != nil {
		t.Fatalf("delete failed: %v", msg)
	}

	if m.cfg.GetServer("alpha") != nil {
		t.Error("expected alpha removed from config")
	}
	if _, err := m.manager.Status("alpha"); err == nil {
		t.Error("expected alpha unregistered from the supervisor")
	}
}

func TestModel_DeleteDeclinedKeepsServer(t *testing.T) {
	m := resize(t, newTestModel(t, stdioServer("alpha")), 100, 40)

	m, _ = pressKey(t, m, 'd')
	model, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'n'}})
	m = model.(Model)
	if cmd == nil {
		t.Fatal("expected ConfirmResult command from n")
	}
	result := cmd().(views.ConfirmResult)
	if result.Confirmed {
		t.Fatal("expected declined result")
	}

	model, _ = m.Update(result)
	m = model.(Model)
	if m.cfg.GetServer("alpha") == nil {
		t.Error("expected alpha kept in config after declining")
	}
}

func TestModel_FormSubmissionRegistersServer(t *testing.T) {
	m := resize(t, newTestModel(t), 100, 40)

	m, _ = pressKey(t, m, 'a')
	model, _ := m.Update(views.ServerFormResult{Server: stdioServer("fresh"), Submitted: true})
	m = model.(Model)

	if m.serverForm.IsVisible() {
		t.Error("expected form hidden after submission")
	}
	if m.cfg.GetServer("fresh") == nil {
		t.Error("expected fresh added to config")
	}
	if _, err := m.manager.Status("fresh"); err != nil {
		t.Errorf("expected fresh registered with the supervisor: %v", err)
	}
}

func TestModel_ActionErrorGoesToActivityPanel(t *testing.T) {
	m := resize(t, newTestModel(t, stdioServer("db")), 100, 40)

	model, _ := m.Update(actionErrorMsg{server: "db", err: errors.New("spawn failed: boom")})
	m = model.(Model)

	m, _ = pressKey(t, m, 'l')
	view := testutil.StripANSI(m.View())
	if !strings.Contains(view, "spawn failed: boom") {
		t.Errorf("expected action error in activity panel, got:\n%s", view)
	}
}
