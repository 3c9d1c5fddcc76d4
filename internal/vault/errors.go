package vault

import "errors"

var (
	// ErrNotFound is returned when a credential name is not stored.
	ErrNotFound = errors.New("credential not found")

	// ErrDecryptionFailed is returned when the vault cannot be authenticated
	// with the recovered key. The vault refuses to proceed.
	ErrDecryptionFailed = errors.New("vault decryption failed")

	// ErrCorrupt is returned when the vault file is not a readable vault.
	ErrCorrupt = errors.New("vault file is corrupt")

	// ErrInvalidEncoding is returned when a credential name or value is not
	// valid UTF-8 and could not be stored unchanged.
	ErrInvalidEncoding = errors.New("credential name and value must be valid UTF-8")

	// ErrUnsupportedVersion is returned for vault files written by a newer format.
	ErrUnsupportedVersion = errors.New("unsupported vault format version")
)
