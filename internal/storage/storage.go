// Package storage defines the persistence boundary for the auth service and
// the outbox dispatcher. Store.InTx is the single atomic unit: every aggregate
// mutation and the outbox row describing it commit through one call.
package storage

import (
	"context"
	"errors"
	"time"

	outboxdomain "session-plane/backend/internal/outbox/domain"
	sessiondomain "session-plane/backend/internal/session/domain"
	tokendomain "session-plane/backend/internal/token/domain"
	userdomain "session-plane/backend/internal/user/domain"
)

// ErrNotFound is returned by lookups that require the row to exist.
// Get* methods return (nil, nil) for missing rows instead.
var ErrNotFound = errors.New("storage: not found")

// Store opens transactions against the backing database.
type Store interface {
	// InTx runs fn inside one transaction. If fn returns an error the
	// transaction rolls back and the error is returned; otherwise it commits.
	InTx(ctx context.Context, fn func(tx TxStore) error) error
}

// TxStore is the full repository surface available inside a transaction.
type TxStore interface {
	UserStore
	SessionStore
	TokenStore
	OutboxStore
}

// UserStore persists users.
type UserStore interface {
	CreateUser(ctx context.Context, u *userdomain.User) error
	// GetUserByID returns (nil, nil) when no user exists with id.
	GetUserByID(ctx context.Context, id string) (*userdomain.User, error)
	// GetUserByNormalizedEmail returns (nil, nil) when no user matches.
	GetUserByNormalizedEmail(ctx context.Context, normalizedEmail string) (*userdomain.User, error)
}

// SessionStore persists sessions.
type SessionStore interface {
	CreateSession(ctx context.Context, s *sessiondomain.Session) error
	// GetSessionByID returns (nil, nil) when no session exists with id.
	GetSessionByID(ctx context.Context, id string) (*sessiondomain.Session, error)
	// RevokeSession marks the session revoked only if it is not already.
	// Returns false when the session was already revoked (idempotent no-op).
	RevokeSession(ctx context.Context, id string, reason sessiondomain.RevokeReason, at time.Time) (bool, error)
}

// TokenStore persists the refresh-token rotation chain.
type TokenStore interface {
	CreateRefreshToken(ctx context.Context, t *tokendomain.RefreshToken) error
	// GetRefreshTokenByHash returns (nil, nil) when no token matches the hash.
	GetRefreshTokenByHash(ctx context.Context, tokenHash string) (*tokendomain.RefreshToken, error)
	// GetActiveTokenForSession returns the session's single non-revoked token,
	// or (nil, nil) when none exists.
	GetActiveTokenForSession(ctx context.Context, sessionID string) (*tokendomain.RefreshToken, error)
	// RevokeRefreshToken marks the token revoked only if currently not revoked.
	// This conditional update is the serialization point for concurrent
	// rotations: exactly one caller observes true. replacedBy may be empty.
	RevokeRefreshToken(ctx context.Context, id string, reason tokendomain.RevokeReason, replacedBy string, at time.Time) (bool, error)
	// RevokeActiveTokensForSession revokes every non-revoked token under the
	// session and returns how many rows changed.
	RevokeActiveTokensForSession(ctx context.Context, sessionID string, reason tokendomain.RevokeReason, at time.Time) (int64, error)
}

// OutboxStore persists and claims outbox events.
type OutboxStore interface {
	AppendOutboxEvent(ctx context.Context, e *outboxdomain.Event) error
	// ClaimPendingOutboxEvents selects up to limit PENDING rows ordered by
	// occurred_at, locked so concurrent dispatchers claim disjoint batches
	// without blocking each other. The claim lasts until the transaction ends.
	ClaimPendingOutboxEvents(ctx context.Context, limit int) ([]*outboxdomain.Event, error)
	// MarkOutboxDispatched records a broker acknowledgment.
	MarkOutboxDispatched(ctx context.Context, id, brokerMessageID string, at time.Time) error
	// MarkOutboxDispatchFailed increments the attempt count and records the
	// error; the row moves to FAILED (dead-letter) once attempts reach
	// maxAttempts, otherwise it stays PENDING for the next tick.
	MarkOutboxDispatchFailed(ctx context.Context, id, lastError string, maxAttempts int) error
	// GetOutboxEvent returns (nil, nil) when no event exists with id.
	GetOutboxEvent(ctx context.Context, id string) (*outboxdomain.Event, error)
}
