package domain

import "time"

// RefreshToken is one link in a session's rotation chain. Only the SHA-256
// hash of the raw secret is stored; the raw value exists only in transit.
//
// Tokens form a singly linked, forward-only chain per session via
// ReplacedByTokenID: at most one successor per token, no branching. State
// transitions are monotonic and terminal; a revoked or expired token is never
// resurrected.
type RefreshToken struct {
	ID                string
	SessionID         string
	TokenHash         string // hex SHA-256 of the raw secret; globally unique
	CreatedAt         time.Time
	ExpiresAt         time.Time
	RevokedAt         *time.Time // nil while the token is the session's active link
	RevokeReason      RevokeReason
	ReplacedByTokenID string // id of the successor token; set when reason is rotated
}

// RevokeReason records the terminal state a token entered when revoked.
type RevokeReason string

const (
	RevokeReasonRotated        RevokeReason = "rotated"
	RevokeReasonReuseDetected  RevokeReason = "reuse_detected"
	RevokeReasonSessionRevoked RevokeReason = "session_revoked"
)

// Status is the derived lifecycle state of a refresh token.
type Status string

const (
	StatusActive         Status = "ACTIVE"
	StatusRotated        Status = "ROTATED"
	StatusExpired        Status = "EXPIRED"
	StatusRevokedReuse   Status = "REVOKED_REUSE"
	StatusRevokedSession Status = "REVOKED_SESSION"
)

// StatusAt derives the token state at the given instant. Revocation wins over
// expiry: a token revoked before its expiry stays in its revoked state.
func (t *RefreshToken) StatusAt(now time.Time) Status {
	if t.RevokedAt != nil {
		switch t.RevokeReason {
		case RevokeReasonRotated:
			return StatusRotated
		case RevokeReasonReuseDetected:
			return StatusRevokedReuse
		default:
			return StatusRevokedSession
		}
	}
	if now.After(t.ExpiresAt) {
		return StatusExpired
	}
	return StatusActive
}

// Active reports whether the token is neither revoked nor expired at now.
func (t *RefreshToken) Active(now time.Time) bool {
	return t.RevokedAt == nil && !now.After(t.ExpiresAt)
}
