package config

import "time"

// Config represents the complete rubysec configuration
type Config struct {
	Vault    VaultConfig    `yaml:"vault"`
	Identity IdentityConfig `yaml:"identity"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// VaultConfig locates the vault file and selects how its key is wrapped
type VaultConfig struct {
	Path          string `yaml:"path"`
	SidecarPath   string `yaml:"sidecar_path"`
	KeyMode       string `yaml:"key_mode"`
	PassphraseEnv string `yaml:"passphrase_env"`
}

// IdentityConfig configures pairing tokens and the peer allowlist
type IdentityConfig struct {
	Dir                   string `yaml:"dir"`
	TokenTTLSeconds       int    `yaml:"token_ttl_seconds"`
	NonceRetentionSeconds int    `yaml:"nonce_retention_seconds"`
}

// TokenTTL returns the pairing token lifetime
func (c IdentityConfig) TokenTTL() time.Duration {
	return time.Duration(c.TokenTTLSeconds) * time.Second
}

// NonceRetention returns how long used nonces stay in the replay ledger
func (c IdentityConfig) NonceRetention() time.Duration {
	return time.Duration(c.NonceRetentionSeconds) * time.Second
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Path    string
	Message string
}

func (e ValidationError) Error() string {
	return e.Path + ": " + e.Message
}
