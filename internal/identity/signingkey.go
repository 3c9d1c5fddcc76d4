package identity

import (
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"rubysec/internal/fsutil"
	"rubysec/internal/logging"
)

// SigningKeySize is the length of the HMAC signing key
const SigningKeySize = 32

// SigningKeyFile is the key file name inside the identity directory
const SigningKeyFile = "signing.key"

// SigningKeyStore persists the signing key. Rotation is orchestrated by
// Manager so the allowlist is re-signed together with the key swap.
type SigningKeyStore struct {
	path   string
	logger *logging.Logger
}

// NewSigningKeyStore creates a store for the key file at path
func NewSigningKeyStore(path string, logger *logging.Logger) *SigningKeyStore {
	return &SigningKeyStore{path: path, logger: logger}
}

// Path returns the key file location
func (s *SigningKeyStore) Path() string {
	return s.path
}

// LoadOrCreate returns the persisted key, generating and persisting a new
// one when the file is missing or has the wrong length.
func (s *SigningKeyStore) LoadOrCreate() ([]byte, error) {
	raw, err := os.ReadFile(s.path) // #nosec G304 -- path is from config
	switch {
	case err == nil && len(raw) == SigningKeySize:
		if permErr := fsutil.VerifyPermissions(s.path, fsutil.PrivateFilePermissions); permErr != nil {
			s.logger.Warn("identity.signing_key.permissions", "Signing key file permissions are too open", map[string]interface{}{
				"path":  s.path,
				"error": permErr.Error(),
			})
		}
		return raw, nil
	case err == nil:
		s.logger.Warn("identity.signing_key.invalid", "Signing key has wrong length, generating a new one", map[string]interface{}{
			"path":   s.path,
			"length": len(raw),
		})
	case !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("failed to read signing key: %w", err)
	}

	key, err := GenerateSigningKey()
	if err != nil {
		return nil, err
	}
	if err := s.Persist(key); err != nil {
		return nil, err
	}

	s.logger.Info("identity.signing_key.created", "Signing key created", map[string]interface{}{
		"path": s.path,
	})
	return key, nil
}

// Persist atomically writes key with owner-only permissions
func (s *SigningKeyStore) Persist(key []byte) error {
	if len(key) != SigningKeySize {
		return fmt.Errorf("signing key must be %d bytes, got %d", SigningKeySize, len(key))
	}
	if err := fsutil.EnsurePrivateDir(filepath.Dir(s.path), s.logger); err != nil {
		return fmt.Errorf("failed to create identity directory: %w", err)
	}
	if err := fsutil.AtomicWriteFile(s.path, key, fsutil.PrivateFilePermissions, s.logger); err != nil {
		return fmt.Errorf("failed to write signing key: %w", err)
	}
	return nil
}

// GenerateSigningKey returns a new random signing key
func GenerateSigningKey() ([]byte, error) {
	key := make([]byte, SigningKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate signing key: %w", err)
	}
	return key, nil
}
