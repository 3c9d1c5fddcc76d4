package tui

import (
	"time"

	"rubysec/internal/vault"
)

// Screen represents different TUI screens
type Screen string

const (
	// ScreenMenu is the main menu screen
	ScreenMenu Screen = "menu"
	// ScreenStatus shows vault and identity status
	ScreenStatus Screen = "status"
	// ScreenCredentials lists stored credential names
	ScreenCredentials Screen = "credentials"
	// ScreenPeers lists allowed peers
	ScreenPeers Screen = "peers"
	// ScreenHelp shows help overlay
	ScreenHelp Screen = "help"
)

// MenuItem represents a menu item
type MenuItem struct {
	Key         string // Number key or letter
	Label       string // Display label
	Description string // Short description
	Screen      Screen // Target screen
}

// UIState represents the persisted UI state in ui_state.json
type UIState struct {
	CurrentScreen Screen    `json:"menu"`
	Selection     int       `json:"selection"`
	LastError     string    `json:"last_error"`
	Updated       time.Time `json:"updated"`
}

// CredentialStore is the vault surface the console needs. Values are never
// read by the console.
type CredentialStore interface {
	ListNames() ([]string, error)
	Info() (vault.Info, error)
	IsLocked() bool
	RotateKey() error
}

// PeerDirectory is the identity surface the console needs
type PeerDirectory interface {
	ListAllowedPeers() []string
	RevokePeer(peerID string) error
	TamperedCount() int
}

// DefaultMenuItems returns the default main menu items
func DefaultMenuItems() []MenuItem {
	return []MenuItem{
		{Key: "1", Label: "Status", Description: "Vault and identity status", Screen: ScreenStatus},
		{Key: "2", Label: "Credentials", Description: "Stored credential names", Screen: ScreenCredentials},
		{Key: "3", Label: "Peers", Description: "Allowed peers", Screen: ScreenPeers},
		{Key: "?", Label: "Help", Description: "Show help", Screen: ScreenHelp},
	}
}
