package domain

import "time"

// Status is the delivery state of an outbox event row.
type Status string

const (
	// StatusPending marks a row awaiting dispatch (or retry).
	StatusPending Status = "PENDING"
	// StatusDispatched marks a row acknowledged by the broker.
	StatusDispatched Status = "DISPATCHED"
	// StatusFailed marks a dead-lettered row that exceeded max attempts.
	StatusFailed Status = "FAILED"
)

// Aggregate types referenced by events.
const (
	AggregateTypeUser    = "user"
	AggregateTypeSession = "session"
)

// Event types emitted by the auth service.
const (
	EventTypeUserRegistered            = "auth.user.registered"
	EventTypeSessionCreated            = "auth.session.created"
	EventTypeSessionRevoked            = "auth.session.revoked"
	EventTypeRefreshTokenRotated       = "auth.refresh_token.rotated"
	EventTypeRefreshTokenReuseDetected = "auth.refresh_token.reuse_detected"
)

// Event is one outbox row. All event types share this shape (EventType
// discriminant plus opaque payload) so the dispatcher stays generic over types
// it has never seen. A row commits in the same transaction as the aggregate
// mutation it describes, never one without the other.
type Event struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte // serialized JSON; opaque to storage and dispatcher
	OccurredAt    time.Time
	CorrelationID string
	PartitionKey  string // aggregate id; preserves per-aggregate broker ordering
	Status        Status
	AttemptCount  int
	LastError     string
	// BrokerMessageID and DispatchedAt are set when the row reaches StatusDispatched.
	BrokerMessageID string
	DispatchedAt    *time.Time
}
