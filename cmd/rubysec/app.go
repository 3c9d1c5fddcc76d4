package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/awnumar/memguard"
	"golang.org/x/term"

	"rubysec/internal/config"
	"rubysec/internal/configdir"
	"rubysec/internal/identity"
	"rubysec/internal/keywrap"
	"rubysec/internal/logging"
	"rubysec/internal/vault"
)

// app bundles what every command needs
type app struct {
	cfg    config.Config
	logger *logging.Logger
}

func loadApp() *app {
	cfg, err := config.Load()
	if err != nil {
		exitWithError(err)
	}

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		exitWithError(err)
	}

	logger := logging.New("rubysec", level)
	if cfg.Logging.File != "" {
		fileLogger, err := logging.NewFileLogger("rubysec", level, cfg.Logging.File)
		if err != nil {
			exitWithError(err)
		}
		logger = fileLogger
	}

	return &app{cfg: cfg, logger: logger}
}

func (a *app) close() {
	if err := a.logger.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to close log file: %v\n", err)
	}
}

// openVault builds a vault handle, resolving a passphrase only when the
// existing header or the creation mode needs one
func (a *app) openVault() *vault.Vault {
	opts := vault.Options{
		Path:        a.cfg.Vault.Path,
		SidecarPath: a.cfg.Vault.SidecarPath,
		KeyMode:     a.cfg.Vault.KeyMode,
	}

	needs, creating, err := a.needsPassphrase()
	if err != nil {
		exitWithError(err)
	}
	if needs {
		passphrase, err := resolvePassphrase(a.cfg.Vault.PassphraseEnv, creating)
		if err != nil {
			exitWithError(err)
		}
		opts.Passphrase = passphrase
		defer memguard.WipeBytes(passphrase)
	}

	return vault.New(opts, a.logger.Component("vault"))
}

func (a *app) needsPassphrase() (needs bool, creating bool, err error) {
	mode, err := vault.PeekMode(a.cfg.Vault.Path)
	switch {
	case err == nil:
		return mode == keywrap.ModePassphrase, false, nil
	case !errors.Is(err, os.ErrNotExist):
		return false, false, err
	}

	switch a.cfg.Vault.KeyMode {
	case vault.KeyModePassphrase:
		return true, true, nil
	case vault.KeyModePlatform:
		return false, true, nil
	default:
		return keywrap.Preferred(keywrap.Options{}) == keywrap.ModePassphrase, true, nil
	}
}

func (a *app) openIdentity() *identity.Manager {
	m, err := identity.NewManager(identity.Options{
		Dir:            a.cfg.Identity.Dir,
		TokenTTL:       a.cfg.Identity.TokenTTL(),
		NonceRetention: a.cfg.Identity.NonceRetention(),
	}, a.logger.Component("identity"))
	if err != nil {
		exitWithError(err)
	}
	if n := m.TamperedCount(); n > 0 {
		fmt.Fprintf(os.Stderr, "Warning: %d allowlist entries failed verification and are ignored\n", n)
	}
	return m
}

// resolvePassphrase reads the passphrase from envName, or prompts on a
// terminal. A new vault asks twice.
func resolvePassphrase(envName string, confirm bool) ([]byte, error) {
	if envName != "" {
		if v, ok := os.LookupEnv(envName); ok && v != "" {
			return []byte(v), nil
		}
	}

	fd := int(os.Stdin.Fd()) // #nosec G115 -- stdin descriptor fits in int
	if !term.IsTerminal(fd) {
		return nil, keywrap.ErrPassphraseRequired
	}

	first, err := promptHidden(fd, "Vault passphrase: ")
	if err != nil {
		return nil, err
	}
	if len(first) == 0 {
		return nil, keywrap.ErrPassphraseRequired
	}
	if !confirm {
		return first, nil
	}

	second, err := promptHidden(fd, "Confirm passphrase: ")
	if err != nil {
		memguard.WipeBytes(first)
		return nil, err
	}
	defer memguard.WipeBytes(second)

	if string(first) != string(second) {
		memguard.WipeBytes(first)
		return nil, errors.New("passphrases do not match")
	}
	return first, nil
}

func promptHidden(fd int, prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	value, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("failed to read passphrase: %w", err)
	}
	return value, nil
}

// readSecretValue takes a credential value from a hidden prompt or, when
// stdin is not a terminal, from stdin without the trailing newline
func readSecretValue(name string) (string, error) {
	fd := int(os.Stdin.Fd()) // #nosec G115 -- stdin descriptor fits in int
	if term.IsTerminal(fd) {
		value, err := promptHidden(fd, fmt.Sprintf("Value for %s: ", name))
		if err != nil {
			return "", err
		}
		defer memguard.WipeBytes(value)
		return string(value), nil
	}
	return readValue(os.Stdin)
}

func readValue(r io.Reader) (string, error) {
	data, err := io.ReadAll(bufio.NewReader(r))
	if err != nil {
		return "", fmt.Errorf("failed to read value from stdin: %w", err)
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}

func uiStateDir() string {
	return configdir.DataDir()
}
