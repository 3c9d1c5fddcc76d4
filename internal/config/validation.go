package config

import (
	"fmt"

	"rubysec/internal/vault"
)

// Validate checks if the configuration is valid
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateVault()...)
	errors = append(errors, c.validateIdentity()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

func (c *Config) validateVault() []ValidationError {
	var errors []ValidationError

	if c.Vault.Path == "" {
		errors = append(errors, ValidationError{Path: "vault.path", Message: "must not be empty"})
	}
	if c.Vault.SidecarPath == "" {
		errors = append(errors, ValidationError{Path: "vault.sidecar_path", Message: "must not be empty"})
	}
	if c.Vault.SidecarPath != "" && c.Vault.SidecarPath == c.Vault.Path {
		errors = append(errors, ValidationError{Path: "vault.sidecar_path", Message: "must differ from vault.path"})
	}

	validModes := []string{vault.KeyModeAuto, vault.KeyModePlatform, vault.KeyModePassphrase}
	if !contains(validModes, c.Vault.KeyMode) {
		errors = append(errors, ValidationError{
			Path:    "vault.key_mode",
			Message: fmt.Sprintf("must be one of %v, got '%s'", validModes, c.Vault.KeyMode),
		})
	}

	return errors
}

func (c *Config) validateIdentity() []ValidationError {
	var errors []ValidationError

	if c.Identity.Dir == "" {
		errors = append(errors, ValidationError{Path: "identity.dir", Message: "must not be empty"})
	}

	if c.Identity.TokenTTLSeconds <= 0 {
		errors = append(errors, ValidationError{
			Path:    "identity.token_ttl_seconds",
			Message: fmt.Sprintf("must be positive, got %d", c.Identity.TokenTTLSeconds),
		})
	}

	// A nonce must outlive the token it protects or a replay could land
	// after eviction but before expiry.
	if c.Identity.NonceRetentionSeconds < c.Identity.TokenTTLSeconds {
		errors = append(errors, ValidationError{
			Path: "identity.nonce_retention_seconds",
			Message: fmt.Sprintf("must be at least token_ttl_seconds (%d), got %d",
				c.Identity.TokenTTLSeconds, c.Identity.NonceRetentionSeconds),
		})
	}

	return errors
}

func (c *Config) validateLogging() []ValidationError {
	validLevels := []string{"debug", "info", "warn", "error"}
	if contains(validLevels, c.Logging.Level) {
		return nil
	}

	return []ValidationError{{
		Path:    "logging.level",
		Message: fmt.Sprintf("must be one of %v, got '%s'", validLevels, c.Logging.Level),
	}}
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
