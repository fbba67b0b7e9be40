package domain

import "time"

// Payloads serialized into Event.Payload. Every payload carries OccurredAt and
// the CorrelationID propagated from the inbound request, in addition to the
// copies stored on the row itself, so consumers can dedupe without reading
// row metadata.

type UserRegisteredPayload struct {
	UserID        string    `json:"user_id"`
	Email         string    `json:"email"`
	OccurredAt    time.Time `json:"occurred_at"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

type SessionCreatedPayload struct {
	SessionID     string    `json:"session_id"`
	UserID        string    `json:"user_id"`
	DeviceID      string    `json:"device_id,omitempty"`
	IPAddress     string    `json:"ip_address,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

type SessionRevokedPayload struct {
	SessionID     string    `json:"session_id"`
	UserID        string    `json:"user_id"`
	Reason        string    `json:"reason"`
	OccurredAt    time.Time `json:"occurred_at"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

type RefreshTokenRotatedPayload struct {
	SessionID     string    `json:"session_id"`
	UserID        string    `json:"user_id"`
	OldTokenID    string    `json:"old_token_id"`
	NewTokenID    string    `json:"new_token_id"`
	OccurredAt    time.Time `json:"occurred_at"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

type RefreshTokenReuseDetectedPayload struct {
	SessionID     string    `json:"session_id"`
	UserID        string    `json:"user_id"`
	TokenID       string    `json:"token_id"`
	OccurredAt    time.Time `json:"occurred_at"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}
