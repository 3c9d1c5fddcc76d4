// Package vault keeps named credentials in a single AES-256-GCM encrypted
// file. The whole credential map is re-encrypted under a fresh nonce on
// every mutation and replaced atomically.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"unicode/utf8"

	"github.com/awnumar/memguard"

	"rubysec/internal/fsutil"
	"rubysec/internal/keywrap"
	"rubysec/internal/logging"
)

// Vault is the encrypted credential store. It opens lazily on first use and
// is safe for concurrent use within one process.
type Vault struct {
	opts       Options
	logger     *logging.Logger
	passphrase *memguard.Enclave

	mu       sync.Mutex
	wrapper  keywrap.KeyWrapper
	key      *memguard.Enclave
	material keywrap.Material
	data     map[string]string
}

// New creates a vault handle. No file is touched until the first operation.
// The passphrase is copied into a sealed enclave; the caller keeps ownership
// of opts.Passphrase.
func New(opts Options, logger *logging.Logger) *Vault {
	v := &Vault{logger: logger}
	if len(opts.Passphrase) > 0 {
		v.passphrase = memguard.NewEnclave(append([]byte(nil), opts.Passphrase...))
	}
	opts.Passphrase = nil
	v.opts = opts
	return v
}

// Path returns the vault file location
func (v *Vault) Path() string {
	return v.opts.Path
}

// IsLocked reports whether the vault file exists but has not been decrypted
// yet. A handle whose file does not exist yet is not locked.
func (v *Vault) IsLocked() bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.data != nil {
		return false
	}
	exists, err := fsutil.FileExists(v.opts.Path)
	return exists || err != nil
}

// Unlock opens the vault now instead of on first access, creating it if
// absent. Decryption problems surface here.
func (v *Vault) Unlock() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.open()
}

// Lock drops the decrypted credentials and the key. The passphrase, if any,
// stays sealed in its enclave so the next operation can open the vault again.
func (v *Vault) Lock() {
	v.mu.Lock()
	defer v.mu.Unlock()

	if w, ok := v.wrapper.(*keywrap.PassphraseWrapper); ok {
		w.Wipe()
	}
	v.data = nil
	v.key = nil
	v.wrapper = nil
	v.material = keywrap.Material{}

	v.logger.Debug("vault.locked", "Vault locked", nil)
}

// Store sets name to value, replacing any previous value
func (v *Vault) Store(name, value string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !utf8.ValidString(name) || !utf8.ValidString(value) {
		return fmt.Errorf("%w: %q", ErrInvalidEncoding, name)
	}
	if err := v.open(); err != nil {
		return err
	}

	previous, existed := v.data[name]
	v.data[name] = value
	if err := v.persist(); err != nil {
		if existed {
			v.data[name] = previous
		} else {
			delete(v.data, name)
		}
		return err
	}

	v.logger.Info("vault.stored", "Credential stored", map[string]interface{}{
		"name":     name,
		"replaced": existed,
	})
	return nil
}

// Retrieve returns the value stored under name
func (v *Vault) Retrieve(name string) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.open(); err != nil {
		return "", err
	}

	value, ok := v.data[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	v.logger.Debug("vault.retrieved", "Credential retrieved", map[string]interface{}{
		"name": name,
	})
	return value, nil
}

// Delete removes name from the vault
func (v *Vault) Delete(name string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.open(); err != nil {
		return err
	}

	previous, ok := v.data[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	delete(v.data, name)
	if err := v.persist(); err != nil {
		v.data[name] = previous
		return err
	}

	v.logger.Info("vault.deleted", "Credential deleted", map[string]interface{}{
		"name": name,
	})
	return nil
}

// ListNames returns the stored credential names in sorted order
func (v *Vault) ListNames() ([]string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.open(); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(v.data))
	for name := range v.data {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// RotateKey re-encrypts every credential under a newly generated key of the
// same mode. Passphrase vaults keep their passphrase and get a new salt.
func (v *Vault) RotateKey() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.open(); err != nil {
		return err
	}

	next, err := v.wrapper.Generate()
	if err != nil {
		return fmt.Errorf("failed to generate vault key: %w", err)
	}

	if err := v.writeFile(next.Raw, next.Material); err != nil {
		memguard.WipeBytes(next.Raw)
		if c, ok := v.wrapper.(keywrap.Committer); ok {
			c.Discard()
		}
		return err
	}

	v.key = memguard.NewEnclave(next.Raw)
	v.material = next.Material
	v.commit()

	v.logger.Info("vault.key.rotated", "Vault key rotated", map[string]interface{}{
		"key_mode": v.wrapper.Mode().String(),
		"entries":  len(v.data),
	})
	return nil
}

// Info opens the vault and describes it
func (v *Vault) Info() (Info, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.open(); err != nil {
		return Info{}, err
	}

	mode := v.wrapper.Mode()
	return Info{
		Path:          v.opts.Path,
		FormatVersion: FormatVersion,
		Mode:          mode,
		ModeName:      mode.String(),
		Entries:       len(v.data),
	}, nil
}

// open loads or creates the vault; callers hold v.mu
func (v *Vault) open() error {
	if v.data != nil {
		return nil
	}

	raw, err := os.ReadFile(v.opts.Path) // #nosec G304 -- path is from config
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return v.create()
		}
		return fmt.Errorf("failed to read vault: %w", err)
	}
	return v.load(raw)
}

func (v *Vault) create() error {
	mode, err := v.creationMode()
	if err != nil {
		return err
	}

	wrapper, err := v.newWrapper(mode)
	if err != nil {
		return err
	}

	if err := fsutil.EnsurePrivateDir(filepath.Dir(v.opts.Path), v.logger); err != nil {
		return fmt.Errorf("failed to create vault directory: %w", err)
	}

	key, err := wrapper.Generate()
	if err != nil {
		return fmt.Errorf("failed to generate vault key: %w", err)
	}

	v.data = map[string]string{}
	v.wrapper = wrapper
	if err := v.writeFile(key.Raw, key.Material); err != nil {
		memguard.WipeBytes(key.Raw)
		if c, ok := wrapper.(keywrap.Committer); ok {
			c.Discard()
		}
		v.data = nil
		v.wrapper = nil
		return err
	}

	v.key = memguard.NewEnclave(key.Raw)
	v.material = key.Material
	v.commit()

	v.logger.Info("vault.created", "Vault created", map[string]interface{}{
		"path":     v.opts.Path,
		"key_mode": mode.String(),
	})
	return nil
}

func (v *Vault) load(raw []byte) error {
	h, ciphertext, err := parseFile(raw)
	if err != nil {
		return err
	}

	wrapper, err := v.newWrapper(h.mode)
	if err != nil {
		return err
	}

	key, err := wrapper.Unwrap(h.material)
	if err != nil {
		if errors.Is(err, keywrap.ErrSidecarCorrupt) || errors.Is(err, keywrap.ErrUnprotectFailed) {
			return fmt.Errorf("%w: %w", ErrDecryptionFailed, err)
		}
		return fmt.Errorf("failed to recover vault key: %w", err)
	}

	plaintext, err := decrypt(key, h.nonce[:], ciphertext)
	if err != nil {
		memguard.WipeBytes(key)
		return err
	}
	defer memguard.WipeBytes(plaintext)

	data := map[string]string{}
	if err := json.Unmarshal(plaintext, &data); err != nil {
		memguard.WipeBytes(key)
		return fmt.Errorf("%w: credential map is not a JSON object", ErrCorrupt)
	}

	v.key = memguard.NewEnclave(key)
	v.wrapper = wrapper
	v.material = h.material
	v.data = data

	v.logger.Debug("vault.opened", "Vault opened", map[string]interface{}{
		"key_mode": h.mode.String(),
		"entries":  len(data),
	})
	return nil
}

// persist re-encrypts the current map under the current key
func (v *Vault) persist() error {
	buf, err := v.key.Open()
	if err != nil {
		return fmt.Errorf("failed to open vault key: %w", err)
	}
	defer buf.Destroy()

	return v.writeFile(buf.Bytes(), v.material)
}

// writeFile serializes v.data, seals it under key with a fresh nonce and
// atomically replaces the vault file
func (v *Vault) writeFile(key []byte, material keywrap.Material) error {
	plaintext, err := json.Marshal(v.data)
	if err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}
	defer memguard.WipeBytes(plaintext)

	h := header{
		version:  FormatVersion,
		mode:     v.wrapper.Mode(),
		material: material,
	}
	if _, err := rand.Read(h.nonce[:]); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}

	aead, err := newAEAD(key)
	if err != nil {
		return err
	}
	out := aead.Seal(h.marshal(), h.nonce[:], plaintext, nil)

	if err := fsutil.AtomicWriteFile(v.opts.Path, out, fsutil.PrivateFilePermissions, v.logger); err != nil {
		return fmt.Errorf("failed to write vault: %w", err)
	}
	return nil
}

// commit promotes a staged platform sidecar. A failure here is recovered on
// the next open because the header already names the staged blob.
func (v *Vault) commit() {
	c, ok := v.wrapper.(keywrap.Committer)
	if !ok {
		return
	}
	if err := c.Commit(); err != nil {
		v.logger.Warn("vault.sidecar.commit_failed", "Failed to promote key sidecar; it will be recovered on next open", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

func (v *Vault) creationMode() (keywrap.Mode, error) {
	switch v.opts.KeyMode {
	case "", KeyModeAuto:
		return keywrap.Preferred(keywrap.Options{Protector: v.opts.Protector}), nil
	default:
		return keywrap.ParseMode(v.opts.KeyMode)
	}
}

// newWrapper builds the key wrapper for mode. The passphrase is only
// unsealed for the duration of the call; the wrapper seals its own copy.
func (v *Vault) newWrapper(mode keywrap.Mode) (keywrap.KeyWrapper, error) {
	opts := keywrap.Options{
		SidecarPath: v.opts.SidecarPath,
		Protector:   v.opts.Protector,
		Logger:      v.logger,
	}
	if v.passphrase != nil && mode == keywrap.ModePassphrase {
		buf, err := v.passphrase.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open passphrase: %w", err)
		}
		defer buf.Destroy()
		opts.Passphrase = buf.Bytes()
	}
	return keywrap.ForMode(mode, opts)
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return aead, nil
}

func decrypt(key, nonce, ciphertext []byte) ([]byte, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}
