package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00d7ff")).MarginBottom(1)
	sectionStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#ffd700")).MarginTop(1)
	labelStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#87d7af"))
	valueStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#ffffff"))
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#000000")).Background(lipgloss.Color("#00d7ff")).Bold(true)
	descStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#808080")).PaddingLeft(2)
	hintStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#5fafff")).MarginTop(1)
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#ff5f5f")).Bold(true)
	okStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("#5fd75f"))
)

// renderMenu renders the main menu screen
func (m Model) renderMenu() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Ruby Security Console"))
	b.WriteString("\n\n")

	for i, item := range DefaultMenuItems() {
		text := fmt.Sprintf("[%s] %s", item.Key, item.Label)
		if i == m.selection {
			b.WriteString(selectedStyle.Render(text))
		} else {
			b.WriteString(valueStyle.Render(text))
		}
		b.WriteString("\n")
		b.WriteString(descStyle.Render(item.Description))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(hintStyle.Render("Navigate: ↑/↓ or numbers | Select: Enter/Space | Back: Esc | Quit: q"))
	b.WriteString("\n")

	if m.lastError != "" {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render("⚠ " + m.lastError))
		b.WriteString("\n")
	}

	return b.String()
}

// renderHelpScreen renders the help screen
func (m Model) renderHelpScreen() string {
	var b strings.Builder
	keyStyle := labelStyle.Bold(true)

	line := func(key, desc string) {
		b.WriteString(keyStyle.Render(fmt.Sprintf("%-12s", key)))
		b.WriteString(valueStyle.Render(desc))
		b.WriteString("\n")
	}

	b.WriteString(titleStyle.Render("Help: Keyboard Shortcuts"))
	b.WriteString("\n\n")

	b.WriteString(sectionStyle.Render("Navigation"))
	b.WriteString("\n")
	line("1-3, ?", "Quick menu selection")
	line("↑ / ↓", "Navigate menu items")
	line("Enter/Space", "Select highlighted item")
	line("Esc", "Return to main menu")
	line("q / Ctrl+C", "Quit")

	b.WriteString(sectionStyle.Render("Credentials"))
	b.WriteString("\n")
	line("r", "Refresh names")
	line("x", "Rotate vault key (press twice)")

	b.WriteString(sectionStyle.Render("Peers"))
	b.WriteString("\n")
	line("↑ / ↓", "Select peer")
	line("d", "Revoke selected peer (press twice)")
	line("r", "Refresh allowlist")

	b.WriteString("\n")
	b.WriteString(hintStyle.Render("Credential values are never shown here; use 'rubysec vault get'."))
	b.WriteString("\n")

	return b.String()
}

// navigateUp moves selection up in the menu
func (m Model) navigateUp() Model {
	if m.selection > 0 {
		m.selection--
	} else {
		m.selection = len(DefaultMenuItems()) - 1
	}
	return m
}

// navigateDown moves selection down in the menu
func (m Model) navigateDown() Model {
	if m.selection < len(DefaultMenuItems())-1 {
		m.selection++
	} else {
		m.selection = 0
	}
	return m
}

// selectMenuItem opens the highlighted screen
func (m Model) selectMenuItem() Model {
	items := DefaultMenuItems()
	if m.selection >= 0 && m.selection < len(items) {
		m = m.enterScreen(items[m.selection].Screen)
	}
	return m
}

// selectMenuByKey handles direct menu selection by key press
func (m Model) selectMenuByKey(key string) Model {
	for i, item := range DefaultMenuItems() {
		if item.Key == key {
			m.selection = i
			m = m.enterScreen(item.Screen)
			break
		}
	}
	return m
}

// returnToMenu returns to the main menu
func (m Model) returnToMenu() Model {
	m.currentScreen = ScreenMenu
	m.lastError = ""
	m.statusMessage = ""
	m.pendingConfirm = ""
	return m
}
