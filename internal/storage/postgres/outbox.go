package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"session-plane/backend/internal/outbox/domain"
)

const outboxColumns = `id, aggregate_type, aggregate_id, event_type, payload, occurred_at,
	correlation_id, partition_key, status, attempt_count, last_error, broker_message_id, dispatched_at`

// AppendOutboxEvent inserts a PENDING row. Callers invoke this inside the same
// transaction as the aggregate mutation the event describes.
func (s *queries) AppendOutboxEvent(ctx context.Context, e *domain.Event) error {
	_, err := s.q.ExecContext(ctx, `
INSERT INTO outbox_events (`+outboxColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		e.ID, e.AggregateType, e.AggregateID, e.EventType, e.Payload, e.OccurredAt,
		nullString(e.CorrelationID), e.PartitionKey, string(e.Status), e.AttemptCount,
		nullString(e.LastError), nullString(e.BrokerMessageID), e.DispatchedAt,
	)
	if err != nil {
		return fmt.Errorf("append outbox event: %w", err)
	}
	return nil
}

// ClaimPendingOutboxEvents locks up to limit PENDING rows in occurred_at order.
// SKIP LOCKED lets concurrent dispatcher instances claim disjoint batches
// without blocking each other; the locks hold until the transaction ends.
func (s *queries) ClaimPendingOutboxEvents(ctx context.Context, limit int) ([]*domain.Event, error) {
	rows, err := s.q.QueryContext(ctx, `
SELECT `+outboxColumns+` FROM outbox_events
WHERE status = $1
ORDER BY occurred_at ASC, id ASC
LIMIT $2
FOR UPDATE SKIP LOCKED`,
		string(domain.StatusPending), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("claim outbox events: %w", err)
	}
	defer rows.Close()

	var out []*domain.Event
	for rows.Next() {
		e, err := scanOutboxEvent(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox events: %w", err)
	}
	return out, nil
}

// MarkOutboxDispatched records the broker acknowledgment for the row.
func (s *queries) MarkOutboxDispatched(ctx context.Context, id, brokerMessageID string, at time.Time) error {
	res, err := s.q.ExecContext(ctx, `
UPDATE outbox_events
SET status = $2, broker_message_id = $3, dispatched_at = $4, last_error = NULL
WHERE id = $1`,
		id, string(domain.StatusDispatched), brokerMessageID, at,
	)
	if err != nil {
		return fmt.Errorf("mark outbox dispatched: %w", err)
	}
	return requireOneRow(res, id)
}

// MarkOutboxDispatchFailed bumps attempt_count and dead-letters the row at maxAttempts.
func (s *queries) MarkOutboxDispatchFailed(ctx context.Context, id, lastError string, maxAttempts int) error {
	res, err := s.q.ExecContext(ctx, `
UPDATE outbox_events
SET attempt_count = attempt_count + 1,
    last_error = $2,
    status = CASE WHEN attempt_count + 1 >= $3 THEN $4 ELSE status END
WHERE id = $1`,
		id, lastError, maxAttempts, string(domain.StatusFailed),
	)
	if err != nil {
		return fmt.Errorf("mark outbox failed: %w", err)
	}
	return requireOneRow(res, id)
}

// GetOutboxEvent returns the event for id, or nil if not found.
func (s *queries) GetOutboxEvent(ctx context.Context, id string) (*domain.Event, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+outboxColumns+` FROM outbox_events WHERE id = $1`, id)
	e, err := scanOutboxEvent(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return e, nil
}

func requireOneRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("outbox rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("outbox event %s: no row updated", id)
	}
	return nil
}

func scanOutboxEvent(scan func(dest ...any) error) (*domain.Event, error) {
	var e domain.Event
	var status string
	var correlationID, lastError, brokerMessageID sql.NullString
	var dispatchedAt sql.NullTime
	err := scan(&e.ID, &e.AggregateType, &e.AggregateID, &e.EventType, &e.Payload,
		&e.OccurredAt, &correlationID, &e.PartitionKey, &status, &e.AttemptCount,
		&lastError, &brokerMessageID, &dispatchedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan outbox event: %w", err)
	}
	e.Status = domain.Status(status)
	e.CorrelationID = correlationID.String
	e.LastError = lastError.String
	e.BrokerMessageID = brokerMessageID.String
	if dispatchedAt.Valid {
		e.DispatchedAt = &dispatchedAt.Time
	}
	return &e, nil
}
