package main

import (
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"rubysec/internal/tui"
)

func runTUI() {
	a := loadApp()
	defer a.close()

	startTime := time.Now()
	a.logger.Info("app.started", "Application started", map[string]interface{}{
		"version": version,
		"ts":      startTime.UTC().Format(time.RFC3339),
	})

	// The vault may need a passphrase prompt, so it is opened before the
	// terminal switches to raw mode.
	var store tui.CredentialStore
	v := a.openVault()
	if err := v.Unlock(); err != nil {
		a.logger.Warn("app.vault.unavailable", "Vault could not be opened", map[string]interface{}{
			"error": err.Error(),
		})
		fmt.Fprintf(os.Stderr, "Warning: vault unavailable: %v\n", err)
	} else {
		store = v
	}

	p := tea.NewProgram(tui.NewModel(a.logger.Component("tui"), store, a.openIdentity(), uiStateDir()))

	exitReason := "normal"
	if _, err := p.Run(); err != nil {
		exitReason = "error"
		a.logger.Error("app.error", "Application error", map[string]interface{}{
			"error": err.Error(),
		})
		fmt.Fprintf(os.Stderr, "Error running TUI: %v\n", err)
		exitWithError(err)
	}

	a.logger.Info("app.exited", "Application exited", map[string]interface{}{
		"ts":     time.Now().UTC().Format(time.RFC3339),
		"reason": exitReason,
	})
}
