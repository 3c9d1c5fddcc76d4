package keywrap

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/awnumar/memguard"

	"rubysec/internal/fsutil"
	"rubysec/internal/logging"
)

// ProtectDescription labels the protected blob for the OS service
const ProtectDescription = "Ruby Vault Key"

const pendingSuffix = ".pending"

// PlatformWrapper keeps a random vault key protected by the OS service in a
// sidecar file. The vault header stores SHA-256 of the sidecar blob so a
// replaced or foreign sidecar is rejected before it is used.
//
// A new key is staged in "<sidecar>.pending" and only promoted by Commit,
// so an interrupted rotation leaves either the old or the new pair intact.
type PlatformWrapper struct {
	protector   Protector
	sidecarPath string
	logger      *logging.Logger

	mu      sync.Mutex
	pending bool
}

// NewPlatformWrapper creates a wrapper storing its blob at sidecarPath
func NewPlatformWrapper(protector Protector, sidecarPath string, logger *logging.Logger) (*PlatformWrapper, error) {
	if protector == nil {
		return nil, ErrPlatformUnavailable
	}
	if sidecarPath == "" {
		return nil, errors.New("sidecar path must not be empty")
	}
	return &PlatformWrapper{
		protector:   protector,
		sidecarPath: sidecarPath,
		logger:      logger,
	}, nil
}

// Mode implements KeyWrapper
func (w *PlatformWrapper) Mode() Mode { return ModePlatform }

// SidecarPath returns the committed sidecar location
func (w *PlatformWrapper) SidecarPath() string { return w.sidecarPath }

func (w *PlatformWrapper) pendingPath() string { return w.sidecarPath + pendingSuffix }

// Generate creates a random key, protects it and stages the blob
func (w *PlatformWrapper) Generate() (Key, error) {
	raw, err := randomBytes(KeySize)
	if err != nil {
		return Key{}, err
	}
	material, err := w.Wrap(raw)
	if err != nil {
		memguard.WipeBytes(raw)
		return Key{}, err
	}
	return Key{Raw: raw, Material: material}, nil
}

// Wrap protects raw with the OS service and stages the resulting blob at the
// pending sidecar path. The returned material is the blob fingerprint.
func (w *PlatformWrapper) Wrap(raw []byte) (Material, error) {
	if len(raw) != KeySize {
		return Material{}, fmt.Errorf("vault key must be %d bytes, got %d", KeySize, len(raw))
	}

	blob, err := w.protector.Protect(raw, ProtectDescription)
	if err != nil {
		return Material{}, fmt.Errorf("failed to protect vault key: %w", err)
	}

	if err := fsutil.EnsurePrivateDir(filepath.Dir(w.sidecarPath), w.logger); err != nil {
		return Material{}, err
	}
	if err := fsutil.AtomicWriteFile(w.pendingPath(), blob, fsutil.PrivateFilePermissions, w.logger); err != nil {
		return Material{}, fmt.Errorf("failed to stage sidecar: %w", err)
	}

	w.mu.Lock()
	w.pending = true
	w.mu.Unlock()

	return fingerprint(blob), nil
}

// Commit promotes a staged sidecar over the current one
func (w *PlatformWrapper) Commit() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.pending {
		return nil
	}
	if err := os.Rename(w.pendingPath(), w.sidecarPath); err != nil {
		return fmt.Errorf("failed to commit sidecar: %w", err)
	}
	w.pending = false

	w.logger.Debug("keywrap.sidecar.committed", "Platform key sidecar committed", map[string]interface{}{
		"path": w.sidecarPath,
	})
	return nil
}

// Discard drops a staged sidecar after the vault write failed
func (w *PlatformWrapper) Discard() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.pending {
		return
	}
	if err := os.Remove(w.pendingPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		w.logger.Warn("keywrap.sidecar.discard_failed", "Failed to remove staged sidecar", map[string]interface{}{
			"error": err.Error(),
		})
	}
	w.pending = false
}

// Unwrap reads the sidecar whose fingerprint matches m and asks the OS
// service to release the key. A staged sidecar left behind by an
// interrupted rotation is promoted when it is the one the header names.
func (w *PlatformWrapper) Unwrap(m Material) ([]byte, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	blob, err := os.ReadFile(w.sidecarPath)
	switch {
	case err == nil && matches(blob, m):
		return w.unprotect(blob)
	case err != nil && !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("failed to read sidecar: %w", err)
	}
	committedMissing := err != nil

	staged, stagedErr := os.ReadFile(w.pendingPath())
	if stagedErr == nil && matches(staged, m) {
		if err := os.Rename(w.pendingPath(), w.sidecarPath); err != nil {
			return nil, fmt.Errorf("failed to recover staged sidecar: %w", err)
		}
		w.pending = false
		w.logger.Warn("keywrap.sidecar.recovered", "Recovered platform key sidecar from interrupted rotation", map[string]interface{}{
			"path": w.sidecarPath,
		})
		return w.unprotect(staged)
	}

	if committedMissing {
		return nil, ErrSidecarMissing
	}
	return nil, ErrSidecarCorrupt
}

func (w *PlatformWrapper) unprotect(blob []byte) ([]byte, error) {
	raw, err := w.protector.Unprotect(blob)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnprotectFailed, err)
	}
	if len(raw) != KeySize {
		memguard.WipeBytes(raw)
		return nil, fmt.Errorf("%w: unwrapped key has %d bytes", ErrSidecarCorrupt, len(raw))
	}
	return raw, nil
}

func fingerprint(blob []byte) Material {
	return Material(sha256.Sum256(blob))
}

func matches(blob []byte, m Material) bool {
	fp := fingerprint(blob)
	return subtle.ConstantTimeCompare(fp[:], m[:]) == 1
}
