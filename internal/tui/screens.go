package tui

import (
	"fmt"
	"strings"
)

const vaultUnavailable = "Vault not configured"

const peersUnavailable = "Identity store not configured"

func (m *Model) loadVault() {
	if m.store == nil {
		m.hasVaultInfo = false
		m.vaultError = vaultUnavailable
		return
	}

	info, err := m.store.Info()
	m.vaultLocked = m.store.IsLocked()
	if err != nil {
		m.hasVaultInfo = false
		m.vaultError = err.Error()
		return
	}
	m.vaultInfo = info
	m.hasVaultInfo = true
	m.vaultError = ""
}

func (m *Model) loadNames() {
	if m.store == nil {
		m.names = nil
		m.vaultError = vaultUnavailable
		return
	}

	names, err := m.store.ListNames()
	m.vaultLocked = m.store.IsLocked()
	if err != nil {
		m.names = nil
		m.vaultError = err.Error()
		return
	}
	m.names = names
	m.vaultError = ""
}

func (m *Model) loadPeers() {
	if m.peers == nil {
		m.peerList = nil
		m.tampered = 0
		return
	}

	m.peerList = m.peers.ListAllowedPeers()
	m.tampered = m.peers.TamperedCount()
	if m.peerSelection >= len(m.peerList) {
		m.peerSelection = 0
	}
}

// rotateVaultKey rotates on the second consecutive press
func (m Model) rotateVaultKey() Model {
	if m.store == nil {
		m.lastError = vaultUnavailable
		return m
	}
	if m.pendingConfirm != "x" {
		m.pendingConfirm = "x"
		m.statusMessage = "Press x again to rotate the vault key"
		return m
	}
	m.pendingConfirm = ""

	if err := m.store.RotateKey(); err != nil {
		m.lastError = fmt.Sprintf("Key rotation failed: %v", err)
		m.statusMessage = ""
		m.logger.Error("tui.vault.rotate_failed", "Vault key rotation failed", map[string]interface{}{
			"error": err.Error(),
		})
		return m
	}

	m.lastError = ""
	m.statusMessage = "Vault key rotated"
	m.loadNames()
	return m
}

// revokeSelectedPeer revokes on the second consecutive press
func (m Model) revokeSelectedPeer() Model {
	if m.peers == nil {
		m.lastError = peersUnavailable
		return m
	}
	if len(m.peerList) == 0 {
		m.statusMessage = "No peers to revoke"
		return m
	}

	peerID := m.peerList[m.peerSelection]
	if m.pendingConfirm != "d" {
		m.pendingConfirm = "d"
		m.statusMessage = fmt.Sprintf("Press d again to revoke %s", peerID)
		return m
	}
	m.pendingConfirm = ""

	if err := m.peers.RevokePeer(peerID); err != nil {
		m.lastError = fmt.Sprintf("Revoke failed: %v", err)
		m.statusMessage = ""
		return m
	}

	m.lastError = ""
	m.statusMessage = fmt.Sprintf("Revoked %s", peerID)
	m.loadPeers()
	return m
}

func (m Model) renderStatusScreen() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Security Status"))
	b.WriteString("\n\n")

	b.WriteString(sectionStyle.Render("Vault"))
	b.WriteString("\n")
	if m.hasVaultInfo {
		b.WriteString(field("Path", m.vaultInfo.Path))
		b.WriteString(field("Key mode", m.vaultInfo.ModeName))
		b.WriteString(field("Format", fmt.Sprintf("v%d", m.vaultInfo.FormatVersion)))
		b.WriteString(field("Credentials", fmt.Sprintf("%d", m.vaultInfo.Entries)))
		b.WriteString(field("Locked", fmt.Sprintf("%t", m.vaultLocked)))
	} else {
		b.WriteString(errorStyle.Render("  " + m.vaultError))
		b.WriteString("\n")
	}

	b.WriteString(sectionStyle.Render("Identity"))
	b.WriteString("\n")
	if m.peers == nil {
		b.WriteString(errorStyle.Render("  " + peersUnavailable))
		b.WriteString("\n")
	} else {
		b.WriteString(field("Allowed peers", fmt.Sprintf("%d", len(m.peerList))))
		tampered := fmt.Sprintf("%d", m.tampered)
		if m.tampered > 0 {
			b.WriteString("  " + labelStyle.Render("Tampered entries: ") + errorStyle.Render(tampered) + "\n")
		} else {
			b.WriteString("  " + labelStyle.Render("Tampered entries: ") + okStyle.Render(tampered) + "\n")
		}
	}

	b.WriteString(m.renderFooter("Press 'r' to refresh, Esc to return to menu, 'q' to quit"))
	return b.String()
}

func (m Model) renderCredentialsScreen() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Credentials"))
	b.WriteString("\n\n")

	switch {
	case m.vaultError != "":
		b.WriteString(errorStyle.Render(m.vaultError))
		b.WriteString("\n")
	case len(m.names) == 0:
		b.WriteString(descStyle.Render("No credentials stored"))
		b.WriteString("\n")
	default:
		for _, name := range m.names {
			b.WriteString(valueStyle.Render("  • " + name))
			b.WriteString("\n")
		}
	}

	b.WriteString(m.renderFooter("Press 'r' to refresh, 'x' to rotate the vault key, Esc to return"))
	return b.String()
}

func (m Model) renderPeersScreen() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Allowed Peers"))
	b.WriteString("\n\n")

	switch {
	case m.peers == nil:
		b.WriteString(errorStyle.Render(peersUnavailable))
		b.WriteString("\n")
	case len(m.peerList) == 0:
		b.WriteString(descStyle.Render("No peers allowed"))
		b.WriteString("\n")
	default:
		for i, peer := range m.peerList {
			if i == m.peerSelection {
				b.WriteString(selectedStyle.Render("> " + peer))
			} else {
				b.WriteString(valueStyle.Render("  " + peer))
			}
			b.WriteString("\n")
		}
	}

	if m.tampered > 0 {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render(fmt.Sprintf("⚠ %d allowlist entries failed verification and are ignored", m.tampered)))
		b.WriteString("\n")
	}

	b.WriteString(m.renderFooter("↑/↓ select, 'd' revoke, 'r' refresh, Esc to return"))
	return b.String()
}

func (m Model) renderFooter(hint string) string {
	var b strings.Builder
	if m.statusMessage != "" {
		b.WriteString("\n")
		b.WriteString(okStyle.Render(m.statusMessage))
		b.WriteString("\n")
	}
	if m.lastError != "" {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render("⚠ " + m.lastError))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(hintStyle.Render(hint))
	b.WriteString("\n")
	return b.String()
}

func field(label, value string) string {
	return "  " + labelStyle.Render(label+": ") + valueStyle.Render(value) + "\n"
}
