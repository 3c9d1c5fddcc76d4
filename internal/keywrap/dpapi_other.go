//go:build !windows

package keywrap

import (
	"fmt"
	"runtime"
)

// SystemProtector reports that no user-scoped protection service is wired
// for this platform; passphrase mode is the fallback.
func SystemProtector() (Protector, error) {
	return nil, fmt.Errorf("%w on %s", ErrPlatformUnavailable, runtime.GOOS)
}
