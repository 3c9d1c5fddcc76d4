package identity

import "time"

// ReplayLedger remembers accepted token nonces until their retention expiry.
// It lives for the process lifetime only.
type ReplayLedger struct {
	entries map[string]time.Time
}

// NewReplayLedger creates an empty ledger
func NewReplayLedger() *ReplayLedger {
	return &ReplayLedger{entries: make(map[string]time.Time)}
}

// Evict drops every nonce whose expiry is before now
func (l *ReplayLedger) Evict(now time.Time) int {
	evicted := 0
	for nonce, expiry := range l.entries {
		if now.After(expiry) {
			delete(l.entries, nonce)
			evicted++
		}
	}
	return evicted
}

// Seen reports whether nonce is still recorded
func (l *ReplayLedger) Seen(nonce string) bool {
	_, ok := l.entries[nonce]
	return ok
}

// Record stores nonce until expiry
func (l *ReplayLedger) Record(nonce string, expiry time.Time) {
	l.entries[nonce] = expiry
}

// Len returns the number of recorded nonces
func (l *ReplayLedger) Len() int {
	return len(l.entries)
}
