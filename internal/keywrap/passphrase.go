package keywrap

import (
	"crypto/sha256"
	"fmt"

	"github.com/awnumar/memguard"
	"golang.org/x/crypto/pbkdf2"
)

// Iterations is the PBKDF2-HMAC-SHA256 work factor
const Iterations = 600_000

// PassphraseWrapper derives the vault key from a passphrase and a random
// salt kept in the header. There is no stored wrapped key: rotating means a
// fresh salt, and therefore a fresh key, under the same passphrase.
type PassphraseWrapper struct {
	passphrase *memguard.Enclave
}

// NewPassphraseWrapper seals a copy of the passphrase; an empty one defers
// the failure to the first Generate or Unwrap.
func NewPassphraseWrapper(passphrase []byte) *PassphraseWrapper {
	w := &PassphraseWrapper{}
	if len(passphrase) > 0 {
		w.passphrase = memguard.NewEnclave(append([]byte(nil), passphrase...))
	}
	return w
}

// Mode implements KeyWrapper
func (w *PassphraseWrapper) Mode() Mode { return ModePassphrase }

// Generate draws a new salt and derives the key from it
func (w *PassphraseWrapper) Generate() (Key, error) {
	if w.passphrase == nil {
		return Key{}, ErrPassphraseRequired
	}
	salt, err := randomBytes(MaterialSize)
	if err != nil {
		return Key{}, err
	}
	var m Material
	copy(m[:], salt)

	raw, err := w.derive(m)
	if err != nil {
		return Key{}, err
	}
	return Key{Raw: raw, Material: m}, nil
}

// Unwrap re-derives the key from the stored salt
func (w *PassphraseWrapper) Unwrap(m Material) ([]byte, error) {
	if w.passphrase == nil {
		return nil, ErrPassphraseRequired
	}
	return w.derive(m)
}

// Wipe drops the sealed passphrase
func (w *PassphraseWrapper) Wipe() {
	w.passphrase = nil
}

func (w *PassphraseWrapper) derive(m Material) ([]byte, error) {
	buf, err := w.passphrase.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open passphrase: %w", err)
	}
	defer buf.Destroy()
	return DeriveKey(buf.Bytes(), m[:]), nil
}

// DeriveKey runs PBKDF2-HMAC-SHA256 with the package work factor
func DeriveKey(passphrase, salt []byte) []byte {
	return pbkdf2.Key(passphrase, salt, Iterations, KeySize, sha256.New)
}
