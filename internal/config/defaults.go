package config

import (
	"path/filepath"

	"rubysec/internal/configdir"
	"rubysec/internal/vault"
)

// DefaultPassphraseEnv names the environment variable carrying the vault passphrase
const DefaultPassphraseEnv = "RUBY_VAULT_PASSPHRASE"

// DefaultConfig returns a configuration rooted at the resolved data directory
func DefaultConfig() Config {
	return DefaultConfigAt(configdir.DataDir())
}

// DefaultConfigAt returns defaults with every path under dataDir
func DefaultConfigAt(dataDir string) Config {
	return Config{
		Vault: VaultConfig{
			Path:          filepath.Join(dataDir, "vault", "vault.enc"),
			SidecarPath:   filepath.Join(dataDir, "vault", ".dpapi_key"),
			KeyMode:       vault.KeyModeAuto,
			PassphraseEnv: DefaultPassphraseEnv,
		},
		Identity: IdentityConfig{
			Dir:                   filepath.Join(dataDir, "security"),
			TokenTTLSeconds:       300,
			NonceRetentionSeconds: 24 * 60 * 60,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}
