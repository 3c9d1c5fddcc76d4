package fsutil

import (
	"fmt"
	"os"
	"path/filepath"

	"rubysec/internal/logging"
)

const (
	// PrivateDirPermissions is the permission for directories holding key material
	PrivateDirPermissions = 0o700
	// PrivateFilePermissions is the permission for vault, key and allowlist files
	PrivateFilePermissions = 0o600
)

// EnsurePrivateDir creates path if needed and restricts it to the current
// user. Restriction is best effort; only creation failures are returned.
func EnsurePrivateDir(path string, logger *logging.Logger) error {
	if err := os.MkdirAll(path, PrivateDirPermissions); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := restrictToOwner(path); err != nil {
		logger.Warn("fsutil.restrict.failed", "Failed to restrict directory to current user", map[string]interface{}{
			"path":  path,
			"error": err.Error(),
		})
	}
	return nil
}

// AtomicWriteFile writes data to a temp file in the target directory, syncs
// it and renames it over path. A crash leaves either the old or the new
// content, never a partial file.
func AtomicWriteFile(path string, data []byte, perm os.FileMode, logger *logging.Logger) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	cleanup := func() {
		if removeErr := os.Remove(tmpPath); removeErr != nil && !os.IsNotExist(removeErr) {
			logger.Warn("fsutil.cleanup.failed", "Failed to remove temp file", map[string]interface{}{
				"path":  tmpPath,
				"error": removeErr.Error(),
			})
		}
	}

	if _, err := tmp.Write(data); err != nil {
		CloseWithError(tmp.Close, logger, tmpPath)
		cleanup()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		CloseWithError(tmp.Close, logger, tmpPath)
		cleanup()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		cleanup()
		return fmt.Errorf("failed to set permissions: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		cleanup()
		return fmt.Errorf("failed to rename file: %w", err)
	}

	syncDir(dir)
	return nil
}

// VerifyPermissions checks that path carries exactly perm. Always nil on
// platforms without POSIX modes.
func VerifyPermissions(path string, perm os.FileMode) error {
	if !posixModes {
		return nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.Mode().Perm() != perm {
		return fmt.Errorf("file has permissions %o, expected %o", info.Mode().Perm(), perm)
	}
	return nil
}

// FileExists reports whether path exists. Errors other than not-exist are
// returned so callers never mistake an unreadable file for a missing one.
func FileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// CloseWithError closes a resource and logs any error if a logger is provided.
func CloseWithError(closer func() error, logger *logging.Logger, resource string) {
	if err := closer(); err != nil {
		logger.Warn("fsutil.close.failed", fmt.Sprintf("Failed to close %s", resource), map[string]interface{}{
			"error": err.Error(),
		})
	}
}
