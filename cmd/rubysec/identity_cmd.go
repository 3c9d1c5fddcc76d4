package main

import (
	"fmt"
	"os"
	"strings"
)

func runPeer() {
	if len(os.Args) < 3 {
		exitUsage("rubysec peer <allow|revoke|check|list>")
	}

	a := loadApp()
	defer a.close()

	subcommand := strings.ToLower(os.Args[2])
	args := os.Args[3:]
	m := a.openIdentity()

	switch subcommand {
	case "allow":
		if len(args) != 1 {
			exitUsage("rubysec peer allow <peer-id>")
		}
		if err := m.AllowPeer(args[0]); err != nil {
			exitWithError(err)
		}
		fmt.Printf("✓ Allowed %s\n", args[0])
	case "revoke":
		if len(args) != 1 {
			exitUsage("rubysec peer revoke <peer-id>")
		}
		if err := m.RevokePeer(args[0]); err != nil {
			exitWithError(err)
		}
		fmt.Printf("✓ Revoked %s\n", args[0])
	case "check":
		if len(args) != 1 {
			exitUsage("rubysec peer check <peer-id>")
		}
		if err := m.AssertPeerAllowed(args[0]); err != nil {
			exitWithError(err)
		}
		fmt.Printf("✓ %s is allowed\n", args[0])
	case "list":
		peers := m.ListAllowedPeers()
		if len(peers) == 0 {
			fmt.Println("No peers allowed")
			return
		}
		for _, peer := range peers {
			fmt.Println(peer)
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown peer subcommand: %s\n", subcommand)
		exitUsage("rubysec peer <allow|revoke|check|list>")
	}
}

func runPair() {
	if len(os.Args) < 3 {
		exitUsage("rubysec pair <issue|verify>")
	}

	a := loadApp()
	defer a.close()

	subcommand := strings.ToLower(os.Args[2])
	args := os.Args[3:]
	m := a.openIdentity()

	switch subcommand {
	case "issue":
		if len(args) != 1 {
			exitUsage("rubysec pair issue <peer-id>")
		}
		token, err := m.IssuePairingToken(args[0])
		if err != nil {
			exitWithError(err)
		}
		fmt.Println(token)
	case "verify":
		if len(args) < 1 || len(args) > 2 || (len(args) == 2 && args[1] != "--allow") {
			exitUsage("rubysec pair verify <token> [--allow]")
		}
		peerID, err := m.VerifyPairingToken(args[0])
		if err != nil {
			exitWithError(err)
		}
		fmt.Printf("✓ Token valid for %s\n", peerID)
		if len(args) == 2 {
			if err := m.AllowPeer(peerID); err != nil {
				exitWithError(err)
			}
			fmt.Printf("✓ Allowed %s\n", peerID)
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown pair subcommand: %s\n", subcommand)
		exitUsage("rubysec pair <issue|verify>")
	}
}

func runIdentity() {
	if len(os.Args) < 3 || strings.ToLower(os.Args[2]) != "rotate-key" {
		exitUsage("rubysec identity rotate-key")
	}

	a := loadApp()
	defer a.close()

	if err := a.openIdentity().RotateSigningKey(); err != nil {
		exitWithError(err)
	}
	fmt.Println("✓ Signing key rotated; previously issued pairing tokens are no longer valid")
}
