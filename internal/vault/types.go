package vault

import "rubysec/internal/keywrap"

// Key mode names accepted in Options.KeyMode
const (
	KeyModeAuto       = "auto"
	KeyModePlatform   = "platform"
	KeyModePassphrase = "passphrase"
)

// Options configures a Vault
type Options struct {
	// Path of the encrypted vault file
	Path string
	// SidecarPath holds the platform-protected key blob
	SidecarPath string
	// KeyMode selects the mode of a newly created vault; an existing
	// vault always uses the mode recorded in its header.
	KeyMode string
	// Passphrase for passphrase-derived vaults
	Passphrase []byte
	// Protector overrides the OS data protection service
	Protector keywrap.Protector
}

// Info describes an opened vault
type Info struct {
	Path          string       `json:"path"`
	FormatVersion uint16       `json:"format_version"`
	Mode          keywrap.Mode `json:"-"`
	ModeName      string       `json:"key_mode"`
	Entries       int          `json:"entries"`
}
