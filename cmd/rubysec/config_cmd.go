package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/awnumar/memguard"

	"rubysec/internal/config"
	"rubysec/internal/logging"
)

func runConfig() {
	if len(os.Args) < 3 {
		fmt.Fprintf(os.Stderr, "Usage: rubysec config <subcommand>\n")
		fmt.Fprintf(os.Stderr, "Subcommands:\n")
		fmt.Fprintf(os.Stderr, "  show         Print the effective configuration\n")
		fmt.Fprintf(os.Stderr, "  test [path]  Test configuration file for validity\n")
		exitUsage("rubysec config <show|test>")
	}

	subcommand := strings.ToLower(os.Args[2])

	switch subcommand {
	case "show":
		runConfigShow()
	case "test":
		runConfigTest(logging.New("rubysec", logging.LevelInfo))
	default:
		fmt.Fprintf(os.Stderr, "Unknown config subcommand: %s\n", subcommand)
		exitUsage("rubysec config <show|test>")
	}
}

func runConfigShow() {
	cfg, err := config.Load()
	if err != nil {
		exitWithError(err)
	}
	data, err := cfg.Marshal()
	if err != nil {
		exitWithError(err)
	}
	fmt.Print(string(data))
}

// runConfigTest validates configuration file(s)
func runConfigTest(logger *logging.Logger) {
	var cfg config.Config
	var configErr error

	if len(os.Args) > 3 {
		path := os.Args[3]
		fmt.Printf("Testing configuration file: %s\n", path)
		cfg, configErr = config.LoadFrom(path)
	} else {
		fmt.Println("Testing configuration (system + user merge):")
		fmt.Printf("  System config: %s\n", config.SystemConfigPath())
		if userPath := config.UserConfigPath(); userPath != "" {
			fmt.Printf("  User config:   %s\n", userPath)
		}
		fmt.Println()

		cfg, configErr = config.Load()
	}

	if configErr != nil {
		fmt.Fprintf(os.Stderr, "❌ Configuration validation FAILED:\n")
		fmt.Fprintf(os.Stderr, "   %v\n", configErr)

		logger.Error("config.validation.error", "Configuration validation failed", map[string]interface{}{
			"error": configErr.Error(),
		})
		memguard.SafeExit(1)
	}

	fmt.Println("✓ Configuration is VALID")
	fmt.Println()
	fmt.Println("Configuration Summary:")
	fmt.Printf("  Vault path:           %s\n", cfg.Vault.Path)
	fmt.Printf("  Key mode:             %s\n", cfg.Vault.KeyMode)
	fmt.Printf("  Passphrase env:       %s\n", cfg.Vault.PassphraseEnv)
	fmt.Printf("  Identity dir:         %s\n", cfg.Identity.Dir)
	fmt.Printf("  Token TTL:            %s\n", cfg.Identity.TokenTTL())
	fmt.Printf("  Nonce retention:      %s\n", cfg.Identity.NonceRetention())
	fmt.Printf("  Log level:            %s\n", cfg.Logging.Level)
}
