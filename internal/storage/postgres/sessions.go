package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"session-plane/backend/internal/session/domain"
)

const sessionColumns = `id, user_id, jti, device_id, user_agent, ip_address, created_at, revoked_at, revoke_reason`

// CreateSession persists the session. The session must have ID and JTI set.
func (s *queries) CreateSession(ctx context.Context, sess *domain.Session) error {
	_, err := s.q.ExecContext(ctx, `
INSERT INTO sessions (`+sessionColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		sess.ID, sess.UserID, sess.JTI, sess.DeviceID, sess.UserAgent, sess.IPAddress,
		sess.CreatedAt, sess.RevokedAt, nullString(string(sess.RevokeReason)),
	)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// GetSessionByID returns the session for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (s *queries) GetSessionByID(ctx context.Context, id string) (*domain.Session, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
	var sess domain.Session
	var revokedAt sql.NullTime
	var reason sql.NullString
	err := row.Scan(&sess.ID, &sess.UserID, &sess.JTI, &sess.DeviceID, &sess.UserAgent,
		&sess.IPAddress, &sess.CreatedAt, &revokedAt, &reason)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	if revokedAt.Valid {
		sess.RevokedAt = &revokedAt.Time
	}
	sess.RevokeReason = domain.RevokeReason(reason.String)
	return &sess, nil
}

// RevokeSession marks the session revoked only if currently not revoked.
// Returns false when zero rows changed (already revoked or missing).
func (s *queries) RevokeSession(ctx context.Context, id string, reason domain.RevokeReason, at time.Time) (bool, error) {
	res, err := s.q.ExecContext(ctx, `
UPDATE sessions SET revoked_at = $2, revoke_reason = $3
WHERE id = $1 AND revoked_at IS NULL`,
		id, at, string(reason),
	)
	if err != nil {
		return false, fmt.Errorf("revoke session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("revoke session rows: %w", err)
	}
	return n > 0, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
