package domain

import "time"

// Session represents a user session created on a successful credential
// exchange. A session owns a chain of refresh tokens; the tokens reference the
// session by id, the session holds no direct reference back.
type Session struct {
	ID           string
	UserID       string
	JTI          string // token identifier embedded in access tokens issued under this session
	DeviceID     string
	UserAgent    string
	IPAddress    string
	CreatedAt    time.Time
	RevokedAt    *time.Time // nil when not revoked
	RevokeReason RevokeReason
}

// RevokeReason records why a session was revoked.
type RevokeReason string

const (
	RevokeReasonLogout        RevokeReason = "logout"
	RevokeReasonReuseDetected RevokeReason = "reuse_detected"
	RevokeReasonAdmin         RevokeReason = "admin"
)

// Revoked reports whether the session has been revoked. A revoked session
// invalidates every token under it regardless of individual token state.
func (s *Session) Revoked() bool {
	return s.RevokedAt != nil
}
