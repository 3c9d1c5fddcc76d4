// Package identity issues and verifies pairing tokens and keeps the
// allowlist of approved peers, both keyed by one local signing secret.
package identity

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/awnumar/memguard"

	"rubysec/internal/fsutil"
	"rubysec/internal/logging"
)

// Options configures a Manager
type Options struct {
	// Dir holds signing.key and allowlist.json
	Dir            string
	TokenTTL       time.Duration
	NonceRetention time.Duration
	// Now overrides the clock used for token issue and verification
	Now func() time.Time
}

// Manager combines the token service and the allowlist around one signing
// key. It is safe for concurrent use within one process.
type Manager struct {
	logger *logging.Logger

	mu        sync.Mutex
	keys      *SigningKeyStore
	key       []byte
	tokens    *TokenService
	allowlist *Allowlist
}

// NewManager loads or creates the signing key and loads the allowlist
func NewManager(opts Options, logger *logging.Logger) (*Manager, error) {
	if opts.Dir == "" {
		return nil, errors.New("identity directory must not be empty")
	}
	if err := fsutil.EnsurePrivateDir(opts.Dir, logger); err != nil {
		return nil, fmt.Errorf("failed to create identity directory: %w", err)
	}

	keys := NewSigningKeyStore(filepath.Join(opts.Dir, SigningKeyFile), logger)
	key, err := keys.LoadOrCreate()
	if err != nil {
		return nil, err
	}

	allowlist, err := LoadAllowlist(filepath.Join(opts.Dir, AllowlistFile), key, logger)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		logger:    logger,
		keys:      keys,
		key:       key,
		tokens:    NewTokenService(key, opts.TokenTTL, opts.NonceRetention, opts.Now),
		allowlist: allowlist,
	}

	logger.Debug("identity.loaded", "Identity store loaded", map[string]interface{}{
		"dir":      opts.Dir,
		"peers":    len(allowlist.trusted),
		"tampered": allowlist.TamperedCount(),
	})
	return m, nil
}

// IssuePairingToken mints a single-use token for peerID
func (m *Manager) IssuePairingToken(peerID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	token, err := m.tokens.Issue(peerID)
	if err != nil {
		return "", err
	}

	m.logger.Info("identity.token.issued", "Pairing token issued", map[string]interface{}{
		"peer_id":     peerID,
		"ttl_seconds": int64(m.tokens.TTL() / time.Second),
	})
	return token, nil
}

// VerifyPairingToken returns the peer id a valid, unused token was issued for
func (m *Manager) VerifyPairingToken(token string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	peerID, err := m.tokens.Verify(token)
	if err != nil {
		m.logger.Warn("identity.token.rejected", "Pairing token rejected", map[string]interface{}{
			"reason": err.Error(),
		})
		return "", err
	}

	m.logger.Info("identity.token.verified", "Pairing token verified", map[string]interface{}{
		"peer_id": peerID,
	})
	return peerID, nil
}

// AllowPeer adds peerID to the allowlist
func (m *Manager) AllowPeer(peerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.allowlist.Allow(peerID); err != nil {
		return err
	}

	m.logger.Info("identity.peer.allowed", "Peer allowed", map[string]interface{}{
		"peer_id": peerID,
	})
	return nil
}

// RevokePeer removes peerID from the allowlist
func (m *Manager) RevokePeer(peerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.allowlist.Revoke(peerID); err != nil {
		return err
	}

	m.logger.Info("identity.peer.revoked", "Peer revoked", map[string]interface{}{
		"peer_id": peerID,
	})
	return nil
}

// IsPeerAllowed reports whether peerID has a valid allowlist entry
func (m *Manager) IsPeerAllowed(peerID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.allowlist.IsAllowed(peerID)
}

// AssertPeerAllowed returns ErrPeerNotAllowed unless peerID is allowed
func (m *Manager) AssertPeerAllowed(peerID string) error {
	if !m.IsPeerAllowed(peerID) {
		return fmt.Errorf("%w: %s", ErrPeerNotAllowed, peerID)
	}
	return nil
}

// ListAllowedPeers returns the verified peers in sorted order
func (m *Manager) ListAllowedPeers() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.allowlist.List()
}

// TamperedCount returns how many allowlist entries failed verification
func (m *Manager) TamperedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.allowlist.TamperedCount()
}

// RotateSigningKey replaces the signing key and re-signs the allowlist.
// Every previously issued token stops verifying. If the allowlist cannot be
// written the old key is restored.
func (m *Manager) RotateSigningKey() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	next, err := GenerateSigningKey()
	if err != nil {
		return err
	}
	if err := m.keys.Persist(next); err != nil {
		return err
	}

	if err := m.allowlist.Rekey(next); err != nil {
		if rbErr := m.keys.Persist(m.key); rbErr != nil {
			m.logger.Error("identity.signing_key.rollback_failed", "Failed to restore previous signing key", map[string]interface{}{
				"error": rbErr.Error(),
			})
			return fmt.Errorf("%w (restoring previous key also failed: %v)", err, rbErr)
		}
		return err
	}

	previous := m.key
	m.key = next
	m.tokens.SetKey(next)
	memguard.WipeBytes(previous)

	m.logger.Info("identity.signing_key.rotated", "Signing key rotated", map[string]interface{}{
		"peers": len(m.allowlist.trusted),
	})
	return nil
}
