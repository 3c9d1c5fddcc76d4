package main

import (
	"fmt"
	"os"
	"strings"
)

func runVault() {
	if len(os.Args) < 3 {
		exitUsage("rubysec vault <list|get|set|delete|rotate|status>")
	}

	a := loadApp()
	defer a.close()

	subcommand := strings.ToLower(os.Args[2])
	args := os.Args[3:]

	switch subcommand {
	case "list":
		runVaultList(a)
	case "get":
		runVaultGet(a, args)
	case "set":
		runVaultSet(a, args)
	case "delete":
		runVaultDelete(a, args)
	case "rotate":
		runVaultRotate(a)
	case "status":
		runVaultStatus(a)
	default:
		fmt.Fprintf(os.Stderr, "Unknown vault subcommand: %s\n", subcommand)
		exitUsage("rubysec vault <list|get|set|delete|rotate|status>")
	}
}

func runVaultList(a *app) {
	names, err := a.openVault().ListNames()
	if err != nil {
		exitWithError(err)
	}
	if len(names) == 0 {
		fmt.Println("No credentials stored")
		return
	}
	for _, name := range names {
		fmt.Println(name)
	}
}

func runVaultGet(a *app, args []string) {
	if len(args) != 1 {
		exitUsage("rubysec vault get <name>")
	}
	value, err := a.openVault().Retrieve(args[0])
	if err != nil {
		exitWithError(err)
	}
	fmt.Println(value)
}

func runVaultSet(a *app, args []string) {
	if len(args) < 1 || len(args) > 2 {
		exitUsage("rubysec vault set <name> [value]")
	}
	name := args[0]
	if strings.TrimSpace(name) == "" {
		exitUsage("rubysec vault set <name> [value]")
	}

	v := a.openVault()

	var value string
	if len(args) == 2 {
		value = args[1]
	} else {
		read, err := readSecretValue(name)
		if err != nil {
			exitWithError(err)
		}
		value = read
	}

	if err := v.Store(name, value); err != nil {
		exitWithError(err)
	}
	fmt.Printf("✓ Stored %s\n", name)
}

func runVaultDelete(a *app, args []string) {
	if len(args) != 1 {
		exitUsage("rubysec vault delete <name>")
	}
	if err := a.openVault().Delete(args[0]); err != nil {
		exitWithError(err)
	}
	fmt.Printf("✓ Deleted %s\n", args[0])
}

func runVaultRotate(a *app) {
	if err := a.openVault().RotateKey(); err != nil {
		exitWithError(err)
	}
	fmt.Println("✓ Vault key rotated")
}

func runVaultStatus(a *app) {
	v := a.openVault()
	info, err := v.Info()
	if err != nil {
		exitWithError(err)
	}

	fmt.Println("Vault Status:")
	fmt.Printf("  Path:         %s\n", info.Path)
	fmt.Printf("  Sidecar:      %s\n", a.cfg.Vault.SidecarPath)
	fmt.Printf("  Format:       v%d\n", info.FormatVersion)
	fmt.Printf("  Key mode:     %s\n", info.ModeName)
	fmt.Printf("  Credentials:  %d\n", info.Entries)
}
