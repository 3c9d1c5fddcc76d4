// Package tui implements the interactive security console: vault status,
// credential names, and the peer allowlist.
package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"rubysec/internal/logging"
	"rubysec/internal/vault"
)

// Model represents the TUI application state
type Model struct {
	startTime time.Time
	quitting  bool

	logger   *logging.Logger
	stateDir string

	// UI State
	currentScreen Screen
	selection     int
	lastError     string
	stateManager  *UIStateManager

	store CredentialStore
	peers PeerDirectory

	vaultInfo    vault.Info
	hasVaultInfo bool
	vaultLocked  bool
	vaultError   string
	names        []string

	peerList      []string
	peerSelection int
	tampered      int

	statusMessage string
	// pendingConfirm holds the key of a destructive action awaiting a
	// second press
	pendingConfirm string
}

const down = "down"

// NewModel creates the console model. Either collaborator may be nil when
// it could not be opened; its screens then show an error.
func NewModel(logger *logging.Logger, store CredentialStore, peers PeerDirectory, stateDir string) Model {
	m := Model{
		startTime:     time.Now(),
		logger:        logger,
		stateDir:      stateDir,
		currentScreen: ScreenMenu,
		stateManager:  NewUIStateManager(stateDir, logger),
		store:         store,
		peers:         peers,
	}

	if state, err := m.stateManager.Load(); err == nil {
		m.currentScreen = state.CurrentScreen
		m.selection = state.Selection
		m.lastError = state.LastError
	}

	m.loadPeers()
	if m.store != nil {
		m.vaultLocked = m.store.IsLocked()
	}
	if m.currentScreen != ScreenMenu {
		m = m.enterScreen(m.currentScreen)
	}

	return m
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages and updates the model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	key := keyMsg.String()

	if next, handled, cmd := m.handleQuitKeys(key); handled {
		return next, cmd
	}

	if next, handled := m.handleEscapeKey(key); handled {
		return next, nil
	}

	if next, handled := m.handleMenuNavigationKeys(key); handled {
		return next, nil
	}

	if next, handled := m.handleMenuSelectionKey(key); handled {
		return next, nil
	}

	if next, handled := m.handleShortcutKeys(key); handled {
		return next, nil
	}

	if next, handled := m.handleCredentialsScreenKeys(key); handled {
		return next, nil
	}

	if next, handled := m.handlePeersScreenKeys(key); handled {
		return next, nil
	}

	if next, handled := m.handleStatusScreenKeys(key); handled {
		return next, nil
	}

	return m, nil
}

func (m Model) handleQuitKeys(key string) (tea.Model, bool, tea.Cmd) {
	switch key {
	case "ctrl+c", "q":
		m.quitting = true
		m.saveState()
		return m, true, tea.Quit
	}
	return m, false, nil
}

func (m Model) handleEscapeKey(key string) (tea.Model, bool) {
	if key == "esc" && m.currentScreen != ScreenMenu {
		m = m.returnToMenu()
		m.saveState()
		return m, true
	}
	return m, false
}

func (m Model) handleMenuNavigationKeys(key string) (tea.Model, bool) {
	if m.currentScreen != ScreenMenu {
		return m, false
	}

	switch key {
	case "up", "k":
		return m.navigateUp(), true
	case down, "j":
		return m.navigateDown(), true
	}
	return m, false
}

func (m Model) handleMenuSelectionKey(key string) (tea.Model, bool) {
	if m.currentScreen != ScreenMenu {
		return m, false
	}

	if key == "enter" || key == " " {
		updated := m.selectMenuItem()
		updated.saveState()
		return updated, true
	}
	return m, false
}

func (m Model) handleShortcutKeys(key string) (tea.Model, bool) {
	switch key {
	case "1", "2", "3", "?":
		updated := m.selectMenuByKey(key)
		updated.saveState()
		return updated, true
	}
	return m, false
}

func (m Model) handleStatusScreenKeys(key string) (tea.Model, bool) {
	if m.currentScreen != ScreenStatus {
		return m, false
	}

	if key == "r" {
		m.loadVault()
		m.loadPeers()
		m.statusMessage = "Refreshed"
		return m, true
	}
	return m, false
}

func (m Model) handleCredentialsScreenKeys(key string) (tea.Model, bool) {
	if m.currentScreen != ScreenCredentials {
		return m, false
	}

	switch key {
	case "r":
		m.pendingConfirm = ""
		m.loadNames()
		m.statusMessage = "Refreshed"
		return m, true
	case "x":
		return m.rotateVaultKey(), true
	}
	return m, false
}

func (m Model) handlePeersScreenKeys(key string) (tea.Model, bool) {
	if m.currentScreen != ScreenPeers {
		return m, false
	}

	switch key {
	case "up", "k":
		m.pendingConfirm = ""
		if m.peerSelection > 0 {
			m.peerSelection--
		} else if len(m.peerList) > 0 {
			m.peerSelection = len(m.peerList) - 1
		}
		return m, true
	case down, "j":
		m.pendingConfirm = ""
		if m.peerSelection < len(m.peerList)-1 {
			m.peerSelection++
		} else {
			m.peerSelection = 0
		}
		return m, true
	case "d":
		return m.revokeSelectedPeer(), true
	case "r":
		m.pendingConfirm = ""
		m.loadPeers()
		m.statusMessage = "Refreshed"
		return m, true
	}
	return m, false
}

// View renders the TUI
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	switch m.currentScreen {
	case ScreenMenu:
		return m.renderMenu()
	case ScreenStatus:
		return m.renderStatusScreen()
	case ScreenCredentials:
		return m.renderCredentialsScreen()
	case ScreenPeers:
		return m.renderPeersScreen()
	case ScreenHelp:
		return m.renderHelpScreen()
	default:
		return m.renderMenu()
	}
}

// enterScreen switches screens and loads what the target displays
func (m Model) enterScreen(screen Screen) Model {
	m.currentScreen = screen
	m.lastError = ""
	m.statusMessage = ""
	m.pendingConfirm = ""

	switch screen {
	case ScreenStatus:
		m.loadVault()
		m.loadPeers()
	case ScreenCredentials:
		m.loadNames()
	case ScreenPeers:
		m.loadPeers()
	}
	return m
}

// saveState persists the current UI state
func (m *Model) saveState() {
	state := &UIState{
		CurrentScreen: m.currentScreen,
		Selection:     m.selection,
		LastError:     m.lastError,
		Updated:       time.Now().UTC(),
	}

	if err := m.stateManager.Save(state); err != nil {
		m.logger.Warn("tui.state.save_failed", "Failed to save UI state", map[string]interface{}{
			"error": err.Error(),
		})
	}
}
