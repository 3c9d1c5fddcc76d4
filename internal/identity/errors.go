package identity

import "errors"

var (
	// ErrNotFound is returned when revoking a peer that is not on the allowlist.
	ErrNotFound = errors.New("peer not in allowlist")

	// ErrMalformed is returned for tokens or peer ids that do not parse.
	ErrMalformed = errors.New("malformed pairing token")

	// ErrInvalidSignature is returned when a token was not signed with the current key.
	ErrInvalidSignature = errors.New("invalid pairing token signature")

	// ErrExpired is returned when a token is older than its TTL or issued in the future.
	ErrExpired = errors.New("pairing token expired")

	// ErrReplayed is returned when a token nonce was already accepted.
	ErrReplayed = errors.New("pairing token already used")

	// ErrPeerNotAllowed is returned by AssertPeerAllowed for untrusted peers.
	ErrPeerNotAllowed = errors.New("peer not authorised")
)
