package identity

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"
	"unicode/utf8"

	"rubysec/internal/fsutil"
	"rubysec/internal/logging"
)

// AllowlistFile is the allowlist file name inside the identity directory
const AllowlistFile = "allowlist.json"

const allowPrefix = "allow:"

// Allowlist is the set of approved peers. Each entry carries
// hex(HMAC(key, "allow:"+peer_id)); entries that fail the check under the
// current key are quarantined: never trusted, but written back verbatim so
// they survive until an older key is restored or they are revoked.
type Allowlist struct {
	path   string
	key    []byte
	logger *logging.Logger

	trusted     map[string]string
	quarantined map[string]json.RawMessage
}

// LoadAllowlist reads the allowlist at path and verifies every entry with key
func LoadAllowlist(path string, key []byte, logger *logging.Logger) (*Allowlist, error) {
	a := &Allowlist{
		path:        path,
		key:         key,
		logger:      logger,
		trusted:     make(map[string]string),
		quarantined: make(map[string]json.RawMessage),
	}

	raw, err := os.ReadFile(path) // #nosec G304 -- path is from config
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return a, nil
		}
		return nil, fmt.Errorf("failed to read allowlist: %w", err)
	}

	var entries map[string]json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		a.setAsideUnreadable(err)
		return a, nil
	}

	for peerID, value := range entries {
		var signature string
		if json.Unmarshal(value, &signature) == nil && a.verify(peerID, signature) {
			a.trusted[peerID] = signature
			continue
		}
		a.quarantined[peerID] = value
	}

	if len(a.quarantined) > 0 {
		a.logger.Warn("identity.allowlist.tampered", "Allowlist entries failed verification and are not trusted", map[string]interface{}{
			"count": len(a.quarantined),
			"path":  path,
		})
	}
	return a, nil
}

// Allow signs and persists peerID. A quarantined entry for the same peer is
// replaced by a freshly signed one.
func (a *Allowlist) Allow(peerID string) error {
	if peerID == "" {
		return fmt.Errorf("%w: peer id must not be empty", ErrMalformed)
	}
	if !utf8.ValidString(peerID) {
		return fmt.Errorf("%w: peer id is not valid UTF-8", ErrMalformed)
	}

	previous, wasTrusted := a.trusted[peerID]
	quarantined, wasQuarantined := a.quarantined[peerID]

	a.trusted[peerID] = signHex(a.key, allowPrefix+peerID)
	delete(a.quarantined, peerID)

	if err := a.persist(a.trusted); err != nil {
		if wasTrusted {
			a.trusted[peerID] = previous
		} else {
			delete(a.trusted, peerID)
		}
		if wasQuarantined {
			a.quarantined[peerID] = quarantined
		}
		return err
	}
	return nil
}

// Revoke removes peerID, whether trusted or quarantined
func (a *Allowlist) Revoke(peerID string) error {
	previous, wasTrusted := a.trusted[peerID]
	quarantined, wasQuarantined := a.quarantined[peerID]
	if !wasTrusted && !wasQuarantined {
		return fmt.Errorf("%w: %s", ErrNotFound, peerID)
	}

	delete(a.trusted, peerID)
	delete(a.quarantined, peerID)

	if err := a.persist(a.trusted); err != nil {
		if wasTrusted {
			a.trusted[peerID] = previous
		}
		if wasQuarantined {
			a.quarantined[peerID] = quarantined
		}
		return err
	}
	return nil
}

// IsAllowed recomputes the entry signature; it never fails
func (a *Allowlist) IsAllowed(peerID string) bool {
	signature, ok := a.trusted[peerID]
	return ok && a.verify(peerID, signature)
}

// List returns the verified peers in sorted order
func (a *Allowlist) List() []string {
	peers := make([]string, 0, len(a.trusted))
	for peerID, signature := range a.trusted {
		if a.verify(peerID, signature) {
			peers = append(peers, peerID)
		}
	}
	sort.Strings(peers)
	return peers
}

// TamperedCount returns the number of quarantined entries
func (a *Allowlist) TamperedCount() int {
	return len(a.quarantined)
}

// Rekey re-signs every trusted entry with key and persists the result. On
// failure the allowlist keeps its previous key and signatures.
func (a *Allowlist) Rekey(key []byte) error {
	resigned := make(map[string]string, len(a.trusted))
	for peerID := range a.trusted {
		resigned[peerID] = signHex(key, allowPrefix+peerID)
	}
	if err := a.persist(resigned); err != nil {
		return err
	}
	a.key = key
	a.trusted = resigned
	return nil
}

func (a *Allowlist) verify(peerID, signature string) bool {
	expected := signHex(a.key, allowPrefix+peerID)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}

// persist writes trusted plus the quarantined entries verbatim
func (a *Allowlist) persist(trusted map[string]string) error {
	out := make(map[string]json.RawMessage, len(trusted)+len(a.quarantined))
	for peerID, value := range a.quarantined {
		out[peerID] = value
	}
	for peerID, signature := range trusted {
		encoded, err := json.Marshal(signature)
		if err != nil {
			return fmt.Errorf("failed to encode allowlist entry: %w", err)
		}
		out[peerID] = encoded
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode allowlist: %w", err)
	}

	if err := fsutil.EnsurePrivateDir(filepath.Dir(a.path), a.logger); err != nil {
		return fmt.Errorf("failed to create identity directory: %w", err)
	}
	if err := fsutil.AtomicWriteFile(a.path, data, fsutil.PrivateFilePermissions, a.logger); err != nil {
		return fmt.Errorf("failed to write allowlist: %w", err)
	}
	return nil
}

// setAsideUnreadable moves an unparseable allowlist out of the way so the
// next write cannot destroy it
func (a *Allowlist) setAsideUnreadable(parseErr error) {
	aside := a.path + ".corrupt-" + strconv.FormatInt(time.Now().Unix(), 10)
	payload := map[string]interface{}{
		"path":  a.path,
		"error": parseErr.Error(),
	}
	if err := os.Rename(a.path, aside); err != nil {
		payload["rename_error"] = err.Error()
	} else {
		payload["moved_to"] = aside
	}
	a.logger.Error("identity.allowlist.unreadable", "Allowlist is not valid JSON; starting with no trusted peers", payload)
}
