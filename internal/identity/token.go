package identity

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	// TokenVersion is the only token format this package issues and accepts
	TokenVersion = "1"

	// DefaultTokenTTL bounds how long an issued token verifies
	DefaultTokenTTL = 5 * time.Minute

	// DefaultNonceRetention keeps accepted nonces well past the TTL
	DefaultNonceRetention = 24 * time.Hour

	tokenFields    = 5
	tokenNonceSize = 16
)

// TokenService issues and verifies single-use pairing tokens of the form
//
//	1:<base64url(peer_id)>:<issued_at>:<nonce_hex>:<hmac_hex>
//
// Verification checks structure, then signature, then age, then replay.
type TokenService struct {
	key       []byte
	ttl       time.Duration
	retention time.Duration
	now       func() time.Time
	ledger    *ReplayLedger
}

// NewTokenService creates a token service signing with key. Zero durations
// select the defaults and a nil clock selects time.Now.
func NewTokenService(key []byte, ttl, retention time.Duration, now func() time.Time) *TokenService {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	if retention <= 0 {
		retention = DefaultNonceRetention
	}
	if now == nil {
		now = time.Now
	}
	return &TokenService{
		key:       key,
		ttl:       ttl,
		retention: retention,
		now:       now,
		ledger:    NewReplayLedger(),
	}
}

// SetKey switches the signing key; tokens signed with the old key stop verifying
func (s *TokenService) SetKey(key []byte) {
	s.key = key
}

// TTL returns the token lifetime
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// Ledger exposes the replay ledger
func (s *TokenService) Ledger() *ReplayLedger {
	return s.ledger
}

// Issue mints a token for peerID. It does not touch the replay ledger.
func (s *TokenService) Issue(peerID string) (string, error) {
	if peerID == "" {
		return "", fmt.Errorf("%w: peer id must not be empty", ErrMalformed)
	}
	if !utf8.ValidString(peerID) {
		return "", fmt.Errorf("%w: peer id is not valid UTF-8", ErrMalformed)
	}

	nonceBytes := make([]byte, tokenNonceSize)
	if _, err := rand.Read(nonceBytes); err != nil {
		return "", fmt.Errorf("failed to generate token nonce: %w", err)
	}

	issuedAt := strconv.FormatInt(s.now().Unix(), 10)
	nonce := hex.EncodeToString(nonceBytes)
	signature := s.sign(TokenVersion, peerID, issuedAt, nonce)

	return strings.Join([]string{
		TokenVersion,
		base64.RawURLEncoding.EncodeToString([]byte(peerID)),
		issuedAt,
		nonce,
		signature,
	}, ":"), nil
}

// Verify returns the peer id bound to token and consumes its nonce
func (s *TokenService) Verify(token string) (string, error) {
	parts := strings.Split(token, ":")
	if len(parts) != tokenFields {
		return "", fmt.Errorf("%w: expected %d fields, got %d", ErrMalformed, tokenFields, len(parts))
	}
	version, encodedPeer, issuedAtField, nonce, signature := parts[0], parts[1], parts[2], parts[3], parts[4]

	if version != TokenVersion {
		return "", fmt.Errorf("%w: unsupported version %q", ErrMalformed, version)
	}

	peerBytes, err := base64.RawURLEncoding.DecodeString(encodedPeer)
	if err != nil || len(peerBytes) == 0 || !utf8.Valid(peerBytes) {
		return "", fmt.Errorf("%w: peer id is not valid base64url", ErrMalformed)
	}
	peerID := string(peerBytes)

	issuedAt, err := parseTimestamp(issuedAtField)
	if err != nil {
		return "", err
	}

	if decoded, err := hex.DecodeString(nonce); err != nil || len(decoded) != tokenNonceSize {
		return "", fmt.Errorf("%w: nonce is not %d hex-encoded bytes", ErrMalformed, tokenNonceSize)
	}

	expected := s.sign(version, peerID, issuedAtField, nonce)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) != 1 {
		return "", ErrInvalidSignature
	}

	now := s.now()
	issued := time.Unix(issuedAt, 0)
	age := now.Sub(issued)
	if age < 0 || age > s.ttl {
		return "", fmt.Errorf("%w: token is %ds old, TTL is %ds", ErrExpired, int64(age/time.Second), int64(s.ttl/time.Second))
	}

	s.ledger.Evict(now)
	if s.ledger.Seen(nonce) {
		return "", ErrReplayed
	}
	s.ledger.Record(nonce, issued.Add(s.retention))

	return peerID, nil
}

func (s *TokenService) sign(version, peerID, issuedAt, nonce string) string {
	return signHex(s.key, version+"|"+peerID+"|"+issuedAt+"|"+nonce)
}

func parseTimestamp(field string) (int64, error) {
	if field == "" {
		return 0, fmt.Errorf("%w: empty issued_at", ErrMalformed)
	}
	for _, r := range field {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("%w: issued_at is not a decimal timestamp", ErrMalformed)
		}
	}
	v, err := strconv.ParseInt(field, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: issued_at out of range", ErrMalformed)
	}
	return v, nil
}

// signHex returns hex(HMAC-SHA256(key, message))
func signHex(key []byte, message string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}
