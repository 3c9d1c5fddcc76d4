package configdir

import (
	"os"
	"path/filepath"
	"runtime"
)

const appName = "Ruby"

// DataDir resolves the per-user data directory that holds the vault and the
// identity files. RUBY_HOME overrides the platform default.
func DataDir() string {
	if env := os.Getenv("RUBY_HOME"); env != "" {
		if abs, err := filepath.Abs(env); err == nil {
			return abs
		}
		return env
	}

	if runtime.GOOS == "windows" {
		base := os.Getenv("APPDATA")
		if base == "" {
			if home, err := os.UserHomeDir(); err == nil {
				base = filepath.Join(home, "AppData", "Roaming")
			}
		}
		return filepath.Join(base, appName)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".ruby", appName)
	}
	return filepath.Join(home, ".ruby", appName)
}

// ConfigDir resolves the configuration directory respecting overrides
func ConfigDir() string {
	if env := os.Getenv("RUBY_CONFIG_DIR"); env != "" {
		if abs, err := filepath.Abs(env); err == nil {
			return abs
		}
	}
	return DataDir()
}
