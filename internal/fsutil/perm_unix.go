//go:build !windows

package fsutil

import "os"

const posixModes = true

func restrictToOwner(path string) error {
	return os.Chmod(path, PrivateDirPermissions)
}

// syncDir flushes the directory entry after a rename; failures are ignored
// because not every filesystem supports fsync on directories.
func syncDir(dir string) {
	d, err := os.Open(dir) // #nosec G304 -- dir is the parent of a controlled path
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
