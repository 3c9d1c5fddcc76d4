// Package keywrap produces and recovers the 256-bit vault key. The vault
// header stores a fixed 32-byte key material per mode: a fingerprint of the
// platform-protected sidecar blob, or the salt of a passphrase derivation.
package keywrap

import (
	"crypto/rand"
	"errors"
	"fmt"

	"rubysec/internal/logging"
)

// KeySize is the size of the symmetric vault key
const KeySize = 32

// MaterialSize is the size of the key material stored in the vault header
const MaterialSize = 32

var (
	// ErrPlatformUnavailable is returned when the OS data-protection service cannot be used.
	ErrPlatformUnavailable = errors.New("platform key protection is unavailable")

	// ErrPassphraseRequired is returned when passphrase mode has no passphrase.
	ErrPassphraseRequired = errors.New("a passphrase is required for this vault")

	// ErrSidecarMissing is returned when the platform-protected key file does not exist.
	ErrSidecarMissing = errors.New("platform key sidecar file is missing")

	// ErrSidecarCorrupt is returned when the sidecar does not match the header fingerprint.
	ErrSidecarCorrupt = errors.New("platform key sidecar does not match vault header")

	// ErrUnprotectFailed is returned when the platform service refuses to release the key.
	ErrUnprotectFailed = errors.New("platform key unprotect failed")

	// ErrUnknownMode is returned for key modes this build does not understand.
	ErrUnknownMode = errors.New("unknown key mode")
)

// Mode identifies how the vault key is protected. Values are the on-disk
// key_mode byte.
type Mode uint8

const (
	// ModePlatform wraps a random key with the user-scoped OS service
	ModePlatform Mode = 0
	// ModePassphrase derives the key from a passphrase and a stored salt
	ModePassphrase Mode = 1
)

func (m Mode) String() string {
	switch m {
	case ModePlatform:
		return "platform"
	case ModePassphrase:
		return "passphrase"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// ParseMode maps a configured mode name to a Mode
func ParseMode(name string) (Mode, error) {
	switch name {
	case "platform":
		return ModePlatform, nil
	case "passphrase":
		return ModePassphrase, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownMode, name)
	}
}

// Valid reports whether m is a known key mode
func (m Mode) Valid() bool {
	return m == ModePlatform || m == ModePassphrase
}

// Material is the fixed-size value stored inline in the vault header
type Material [MaterialSize]byte

// Key pairs a raw vault key with the material that recovers it
type Key struct {
	Raw      []byte
	Material Material
}

// KeyWrapper generates and recovers vault keys for one mode
type KeyWrapper interface {
	Mode() Mode
	Generate() (Key, error)
	Unwrap(m Material) ([]byte, error)
}

// Committer is implemented by wrappers that stage side files during
// Generate. Commit is called once the vault file referencing the new key has
// been written; Discard when that write failed.
type Committer interface {
	Commit() error
	Discard()
}

// Protector is a user-account-scoped data protection service
type Protector interface {
	Protect(plain []byte, description string) ([]byte, error)
	Unprotect(blob []byte) ([]byte, error)
}

// Options configures wrapper construction
type Options struct {
	Passphrase  []byte
	SidecarPath string
	// Protector overrides the OS service; nil selects SystemProtector.
	Protector Protector
	Logger    *logging.Logger
}

// ForMode builds the wrapper for a specific mode, typically the one named by
// an existing vault header.
func ForMode(mode Mode, opts Options) (KeyWrapper, error) {
	switch mode {
	case ModePlatform:
		protector := opts.Protector
		if protector == nil {
			p, err := SystemProtector()
			if err != nil {
				return nil, err
			}
			protector = p
		}
		return NewPlatformWrapper(protector, opts.SidecarPath, opts.Logger)
	case ModePassphrase:
		return NewPassphraseWrapper(opts.Passphrase), nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownMode, uint8(mode))
	}
}

// Preferred picks platform wrapping when a protection service is reachable
// and passphrase derivation otherwise.
func Preferred(opts Options) Mode {
	if opts.Protector != nil {
		return ModePlatform
	}
	if _, err := SystemProtector(); err == nil {
		return ModePlatform
	}
	return ModePassphrase
}

func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("failed to read random bytes: %w", err)
	}
	return b, nil
}
