package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/awnumar/memguard"

	"rubysec/internal/identity"
	"rubysec/internal/keywrap"
	"rubysec/internal/vault"
)

const version = "0.1.0-dev"

func main() {
	memguard.CatchInterrupt()
	defer memguard.Purge()

	if len(os.Args) <= 1 {
		runTUI()
		return
	}

	command := strings.ToLower(os.Args[1])
	if handler, ok := commandHandlers()[command]; ok {
		handler()
		return
	}

	fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
	printUsage()
	memguard.SafeExit(1)
}

func commandHandlers() map[string]func() {
	return map[string]func(){
		"vault":    runVault,
		"peer":     runPeer,
		"pair":     runPair,
		"identity": runIdentity,
		"config":   runConfig,
		"tui":      runTUI,
		"version":  runVersion,
		"help":     printUsage,
		"--help":   printUsage,
		"-h":       printUsage,
	}
}

func runVersion() {
	fmt.Printf("rubysec version %s\n", version)
}

// exitWithError prints err with guidance for configuration problems and
// exits after wiping guarded memory
func exitWithError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	if hint := errorHint(err); hint != "" {
		fmt.Fprintf(os.Stderr, "Hint: %s\n", hint)
	}
	memguard.SafeExit(1)
}

func exitUsage(usage string) {
	fmt.Fprintf(os.Stderr, "Usage: %s\n", usage)
	memguard.SafeExit(2)
}

func errorHint(err error) string {
	switch {
	case errors.Is(err, keywrap.ErrPassphraseRequired):
		return "set the passphrase environment variable named in vault.passphrase_env or run in a terminal to be prompted"
	case errors.Is(err, keywrap.ErrPlatformUnavailable):
		return "this system has no user-scoped key protection; set vault.key_mode to passphrase"
	case errors.Is(err, keywrap.ErrSidecarMissing):
		return "the platform key file next to the vault is gone; restore it from backup"
	case errors.Is(err, vault.ErrDecryptionFailed):
		return "wrong passphrase, a different user account, or a tampered vault file; the vault will not be modified"
	case errors.Is(err, vault.ErrUnsupportedVersion):
		return "the vault was written by a newer rubysec"
	case errors.Is(err, identity.ErrExpired), errors.Is(err, identity.ErrReplayed):
		return "issue a fresh pairing token"
	}
	return ""
}

func printUsage() {
	fmt.Printf(`rubysec - local credential vault and peer pairing (version %s)

Usage:
  rubysec                              Start the interactive console (default)
  rubysec tui                          Start the interactive console
  rubysec vault list                   List stored credential names
  rubysec vault get <name>             Print a credential value
  rubysec vault set <name> [value]     Store a credential (prompts or reads stdin without value)
  rubysec vault delete <name>          Delete a credential
  rubysec vault rotate                 Re-encrypt the vault under a new key
  rubysec vault status                 Show vault path, key mode and entry count
  rubysec peer allow <peer-id>         Add a peer to the allowlist
  rubysec peer revoke <peer-id>        Remove a peer from the allowlist
  rubysec peer check <peer-id>         Exit 0 if the peer is allowed, 1 otherwise
  rubysec peer list                    List allowed peers
  rubysec pair issue <peer-id>         Issue a single-use pairing token
  rubysec pair verify <token> [--allow] Verify a token; --allow adds the peer
  rubysec identity rotate-key          Rotate the signing key (invalidates issued tokens)
  rubysec config show                  Print the effective configuration
  rubysec config test [path]           Validate configuration
  rubysec version                      Print version information
  rubysec help                         Show this help message

Environment:
  RUBY_HOME                Data directory (default: %%APPDATA%%\Ruby or ~/.ruby/Ruby)
  RUBY_CONFIG_DIR          System configuration directory
  RUBY_VAULT_PASSPHRASE    Vault passphrase (name configurable via vault.passphrase_env)
`, version)
}
