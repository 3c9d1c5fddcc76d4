package identity

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

func newTestManager(t *testing.T, dir string, clock *fakeClock) *Manager {
	t.Helper()
	m, err := NewManager(Options{
		Dir:      dir,
		TokenTTL: 300 * time.Second,
		Now:      clock.Now,
	}, testLogger())
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	return m
}

func TestManager_Scenario(t *testing.T) {
	m := newTestManager(t, t.TempDir(), newClock())

	if err := m.AllowPeer("telegram:42"); err != nil {
		t.Fatalf("AllowPeer() error = %v", err)
	}
	if !m.IsPeerAllowed("telegram:42") {
		t.Error("IsPeerAllowed(telegram:42) = false after allow")
	}
	if err := m.RevokePeer("telegram:42"); err != nil {
		t.Fatalf("RevokePeer() error = %v", err)
	}
	if m.IsPeerAllowed("telegram:42") {
		t.Error("IsPeerAllowed(telegram:42) = true after revoke")
	}

	token, err := m.IssuePairingToken("device:7")
	if err != nil {
		t.Fatalf("IssuePairingToken() error = %v", err)
	}
	if n := len(strings.Split(token, ":")); n != 5 {
		t.Errorf("token has %d colon-delimited fields, want 5", n)
	}
	peer, err := m.VerifyPairingToken(token)
	if err != nil {
		t.Fatalf("VerifyPairingToken() error = %v", err)
	}
	if peer != "device:7" {
		t.Errorf("VerifyPairingToken() = %q, want device:7", peer)
	}
}

func TestManager_TokenExpiryBoundaries(t *testing.T) {
	clock := newClock()
	m := newTestManager(t, t.TempDir(), clock)

	expired, err := m.IssuePairingToken("device:7")
	if err != nil {
		t.Fatal(err)
	}
	clock.now = clock.now.Add(301 * time.Second)
	if _, err := m.VerifyPairingToken(expired); !errors.Is(err, ErrExpired) {
		t.Errorf("token aged TTL+1 error = %v, want ErrExpired", err)
	}

	valid, err := m.IssuePairingToken("device:7")
	if err != nil {
		t.Fatal(err)
	}
	clock.now = clock.now.Add(299 * time.Second)
	if _, err := m.VerifyPairingToken(valid); err != nil {
		t.Errorf("token aged TTL-1 error = %v, want success", err)
	}
	if _, err := m.VerifyPairingToken(valid); !errors.Is(err, ErrReplayed) {
		t.Errorf("second verification error = %v, want ErrReplayed", err)
	}
}

func TestManager_PersistsAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	clock := newClock()

	first := newTestManager(t, dir, clock)
	if err := first.AllowPeer("telegram:42"); err != nil {
		t.Fatal(err)
	}
	token, err := first.IssuePairingToken("device:7")
	if err != nil {
		t.Fatal(err)
	}

	second := newTestManager(t, dir, clock)
	if !second.IsPeerAllowed("telegram:42") {
		t.Error("allowlist not persisted")
	}
	if peer, err := second.VerifyPairingToken(token); err != nil || peer != "device:7" {
		t.Errorf("VerifyPairingToken() on new instance = %q, %v", peer, err)
	}

	key, err := os.ReadFile(filepath.Join(dir, SigningKeyFile))
	if err != nil {
		t.Fatal(err)
	}
	if len(key) != SigningKeySize {
		t.Errorf("signing key length = %d, want %d", len(key), SigningKeySize)
	}
	if runtime.GOOS != "windows" {
		info, err := os.Stat(filepath.Join(dir, SigningKeyFile))
		if err != nil {
			t.Fatal(err)
		}
		if info.Mode().Perm() != 0o600 {
			t.Errorf("signing key permissions = %o, want 600", info.Mode().Perm())
		}
	}
}

func TestManager_AllowlistTamper(t *testing.T) {
	dir := t.TempDir()
	m := newTestManager(t, dir, newClock())
	for _, peer := range []string{"telegram:42", "discord:1"} {
		if err := m.AllowPeer(peer); err != nil {
			t.Fatal(err)
		}
	}

	path := filepath.Join(dir, AllowlistFile)
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	sig := signHex(m.key, "allow:telegram:42")
	tamperedSig := strings.Repeat("f", len(sig))
	if err := os.WriteFile(path, bytes.Replace(raw, []byte(sig), []byte(tamperedSig), 1), 0o600); err != nil {
		t.Fatal(err)
	}

	reloaded := newTestManager(t, dir, newClock())
	if reloaded.IsPeerAllowed("telegram:42") {
		t.Error("tampered peer should not be allowed")
	}
	if got := reloaded.ListAllowedPeers(); len(got) != 1 || got[0] != "discord:1" {
		t.Errorf("ListAllowedPeers() = %v, want [discord:1]", got)
	}
	if reloaded.TamperedCount() != 1 {
		t.Errorf("TamperedCount() = %d, want 1", reloaded.TamperedCount())
	}
	if err := reloaded.AssertPeerAllowed("telegram:42"); !errors.Is(err, ErrPeerNotAllowed) {
		t.Errorf("AssertPeerAllowed() error = %v, want ErrPeerNotAllowed", err)
	}
	if err := reloaded.AssertPeerAllowed("discord:1"); err != nil {
		t.Errorf("AssertPeerAllowed(discord:1) error = %v", err)
	}
}

func TestManager_RotateSigningKey(t *testing.T) {
	dir := t.TempDir()
	clock := newClock()
	m := newTestManager(t, dir, clock)

	if err := m.AllowPeer("telegram:42"); err != nil {
		t.Fatal(err)
	}
	token, err := m.IssuePairingToken("device:7")
	if err != nil {
		t.Fatal(err)
	}
	oldKey, err := os.ReadFile(filepath.Join(dir, SigningKeyFile))
	if err != nil {
		t.Fatal(err)
	}

	if err := m.RotateSigningKey(); err != nil {
		t.Fatalf("RotateSigningKey() error = %v", err)
	}

	newKey, err := os.ReadFile(filepath.Join(dir, SigningKeyFile))
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(oldKey, newKey) {
		t.Error("signing key file unchanged after rotation")
	}
	if _, err := m.VerifyPairingToken(token); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("old token after rotation error = %v, want ErrInvalidSignature", err)
	}
	if !m.IsPeerAllowed("telegram:42") {
		t.Error("allowed peer lost after rotation")
	}

	reloaded := newTestManager(t, dir, clock)
	if !reloaded.IsPeerAllowed("telegram:42") || reloaded.TamperedCount() != 0 {
		t.Error("re-signed allowlist should verify under the persisted new key")
	}

	fresh, err := m.IssuePairingToken("device:7")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := reloaded.VerifyPairingToken(fresh); err != nil {
		t.Errorf("token issued after rotation error = %v", err)
	}
}

func TestManager_RotateSigningKeyRollsBack(t *testing.T) {
	dir := t.TempDir()
	clock := newClock()
	m := newTestManager(t, dir, clock)

	if err := m.AllowPeer("telegram:42"); err != nil {
		t.Fatal(err)
	}
	token, err := m.IssuePairingToken("device:7")
	if err != nil {
		t.Fatal(err)
	}
	keyPath := filepath.Join(dir, SigningKeyFile)
	oldKey, err := os.ReadFile(keyPath)
	if err != nil {
		t.Fatal(err)
	}

	// A non-empty directory at the allowlist path makes the final rename fail.
	allowlistPath := filepath.Join(dir, AllowlistFile)
	if err := os.Remove(allowlistPath); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(allowlistPath, "blocker"), 0o700); err != nil {
		t.Fatal(err)
	}

	if err := m.RotateSigningKey(); err == nil {
		t.Fatal("RotateSigningKey() should fail when the allowlist cannot be written")
	}

	restored, err := os.ReadFile(keyPath)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(oldKey, restored) {
		t.Error("previous signing key was not restored on disk")
	}
	if !m.IsPeerAllowed("telegram:42") {
		t.Error("allowed peer lost after failed rotation")
	}
	peerID, err := m.VerifyPairingToken(token)
	if err != nil {
		t.Fatalf("token issued before failed rotation error = %v", err)
	}
	if peerID != "device:7" {
		t.Errorf("VerifyPairingToken() = %q, want device:7", peerID)
	}

	if err := os.RemoveAll(allowlistPath); err != nil {
		t.Fatal(err)
	}
	if err := m.AllowPeer("telegram:42"); err != nil {
		t.Fatal(err)
	}
	if !newTestManager(t, dir, clock).IsPeerAllowed("telegram:42") {
		t.Error("allowlist written after failed rotation should verify under the restored key")
	}
}

func TestManager_RegeneratesInvalidSigningKey(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, SigningKeyFile), []byte("short"), 0o600); err != nil {
		t.Fatal(err)
	}

	m := newTestManager(t, dir, newClock())
	if len(m.key) != SigningKeySize {
		t.Errorf("key length = %d, want %d", len(m.key), SigningKeySize)
	}
	onDisk, err := os.ReadFile(filepath.Join(dir, SigningKeyFile))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(onDisk, m.key) {
		t.Error("regenerated key was not persisted")
	}
}

func TestManager_RevokeUnknown(t *testing.T) {
	m := newTestManager(t, t.TempDir(), newClock())
	if err := m.RevokePeer("nobody"); !errors.Is(err, ErrNotFound) {
		t.Errorf("RevokePeer() error = %v, want ErrNotFound", err)
	}
}

func TestNewManager_RequiresDir(t *testing.T) {
	if _, err := NewManager(Options{}, testLogger()); err == nil {
		t.Error("NewManager() without a directory should fail")
	}
}
