//go:build windows

package fsutil

import (
	"fmt"
	"os"
	"os/exec"
)

const posixModes = false

// restrictToOwner removes inherited ACEs and grants full control to the
// current user only.
func restrictToOwner(path string) error {
	username := os.Getenv("USERNAME")
	if username == "" {
		return fmt.Errorf("USERNAME is not set")
	}
	cmd := exec.Command("icacls", path, "/inheritance:r", "/grant:r", username+":(OI)(CI)F") // #nosec G204 -- fixed binary, path from config
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("icacls failed: %w: %s", err, out)
	}
	return nil
}

func syncDir(string) {}
