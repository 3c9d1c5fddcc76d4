package tui

import (
	"strings"
	"testing"
)

func TestModel_NavigateUp(t *testing.T) {
	m, _, _ := newTestModel(t)
	m.selection = 2

	m = m.navigateUp()

	if m.selection != 1 {
		t.Errorf("Expected selection 1, got %d", m.selection)
	}
}

func TestModel_NavigateUp_WrapAround(t *testing.T) {
	m, _, _ := newTestModel(t)
	m.selection = 0

	m = m.navigateUp()

	expectedIndex := len(DefaultMenuItems()) - 1
	if m.selection != expectedIndex {
		t.Errorf("Expected selection %d (wrap to bottom), got %d", expectedIndex, m.selection)
	}
}

func TestModel_NavigateDown(t *testing.T) {
	m, _, _ := newTestModel(t)
	m.selection = 1

	m = m.navigateDown()

	if m.selection != 2 {
		t.Errorf("Expected selection 2, got %d", m.selection)
	}
}

func TestModel_NavigateDown_WrapAround(t *testing.T) {
	m, _, _ := newTestModel(t)
	m.selection = len(DefaultMenuItems()) - 1

	m = m.navigateDown()

	if m.selection != 0 {
		t.Errorf("Expected selection 0 (wrap to top), got %d", m.selection)
	}
}

func TestModel_SelectMenuItem(t *testing.T) {
	m, _, _ := newTestModel(t)
	m.selection = 1
	m.lastError = "stale error"

	m = m.selectMenuItem()

	if m.currentScreen != ScreenCredentials {
		t.Errorf("Expected screen credentials, got %s", m.currentScreen)
	}
	if m.lastError != "" {
		t.Errorf("Expected empty error after selection, got %s", m.lastError)
	}
}

func TestModel_SelectMenuByKey(t *testing.T) {
	tests := []struct {
		key            string
		expectedScreen Screen
		expectedIndex  int
	}{
		{"1", ScreenStatus, 0},
		{"2", ScreenCredentials, 1},
		{"3", ScreenPeers, 2},
		{"?", ScreenHelp, 3},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			m, _, _ := newTestModel(t)
			m = m.selectMenuByKey(tt.key)

			if m.currentScreen != tt.expectedScreen {
				t.Errorf("Expected screen %s, got %s", tt.expectedScreen, m.currentScreen)
			}
			if m.selection != tt.expectedIndex {
				t.Errorf("Expected selection %d, got %d", tt.expectedIndex, m.selection)
			}
		})
	}
}

func TestModel_ReturnToMenu(t *testing.T) {
	m, _, _ := newTestModel(t)
	m = press(t, m, "2", "x")

	m = press(t, m, "esc")

	if m.currentScreen != ScreenMenu {
		t.Errorf("Expected menu screen, got %s", m.currentScreen)
	}
	if m.pendingConfirm != "" || m.statusMessage != "" {
		t.Error("Returning to the menu should clear pending confirmation and status")
	}
}

func TestModel_EnterSelectsHighlighted(t *testing.T) {
	m, _, _ := newTestModel(t)
	m = press(t, m, "down", "down", "enter")

	if m.currentScreen != ScreenPeers {
		t.Errorf("Expected peers screen, got %s", m.currentScreen)
	}
}

func TestRenderMenu(t *testing.T) {
	m, _, _ := newTestModel(t)
	view := m.renderMenu()

	for _, item := range DefaultMenuItems() {
		if !strings.Contains(view, item.Label) {
			t.Errorf("Menu should contain %q", item.Label)
		}
	}

	m.lastError = "something failed"
	if !strings.Contains(m.renderMenu(), "something failed") {
		t.Error("Menu should show the last error")
	}
}

func TestRenderHelpScreen(t *testing.T) {
	m, _, _ := newTestModel(t)
	view := m.renderHelpScreen()

	for _, want := range []string{"Navigation", "Credentials", "Peers", "never shown"} {
		if !strings.Contains(view, want) {
			t.Errorf("Help should contain %q", want)
		}
	}
}
