package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"session-plane/backend/internal/token/domain"
)

const tokenColumns = `id, session_id, token_hash, created_at, expires_at, revoked_at, revoke_reason, replaced_by_token_id`

// CreateRefreshToken persists the token. token_hash is globally unique; a
// collision means the same raw secret was issued twice and is a hard error.
func (s *queries) CreateRefreshToken(ctx context.Context, t *domain.RefreshToken) error {
	_, err := s.q.ExecContext(ctx, `
INSERT INTO refresh_tokens (`+tokenColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		t.ID, t.SessionID, t.TokenHash, t.CreatedAt, t.ExpiresAt,
		t.RevokedAt, nullString(string(t.RevokeReason)), nullString(t.ReplacedByTokenID),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("create refresh token: duplicate hash: %w", err)
		}
		return fmt.Errorf("create refresh token: %w", err)
	}
	return nil
}

// GetRefreshTokenByHash returns the token for the hash, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (s *queries) GetRefreshTokenByHash(ctx context.Context, tokenHash string) (*domain.RefreshToken, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+tokenColumns+` FROM refresh_tokens WHERE token_hash = $1`, tokenHash)
	return scanRefreshToken(row)
}

// GetActiveTokenForSession returns the session's single non-revoked token, or nil if none.
func (s *queries) GetActiveTokenForSession(ctx context.Context, sessionID string) (*domain.RefreshToken, error) {
	row := s.q.QueryRowContext(ctx, `
SELECT `+tokenColumns+` FROM refresh_tokens
WHERE session_id = $1 AND revoked_at IS NULL`, sessionID)
	return scanRefreshToken(row)
}

// RevokeRefreshToken marks the token revoked only if currently not revoked.
// Zero rows affected means another caller already consumed the token; the
// rotation service routes that outcome into reuse detection.
func (s *queries) RevokeRefreshToken(ctx context.Context, id string, reason domain.RevokeReason, replacedBy string, at time.Time) (bool, error) {
	res, err := s.q.ExecContext(ctx, `
UPDATE refresh_tokens SET revoked_at = $2, revoke_reason = $3, replaced_by_token_id = $4
WHERE id = $1 AND revoked_at IS NULL`,
		id, at, string(reason), nullString(replacedBy),
	)
	if err != nil {
		return false, fmt.Errorf("revoke refresh token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("revoke refresh token rows: %w", err)
	}
	return n > 0, nil
}

// RevokeActiveTokensForSession revokes every non-revoked token under the session.
func (s *queries) RevokeActiveTokensForSession(ctx context.Context, sessionID string, reason domain.RevokeReason, at time.Time) (int64, error) {
	res, err := s.q.ExecContext(ctx, `
UPDATE refresh_tokens SET revoked_at = $2, revoke_reason = $3
WHERE session_id = $1 AND revoked_at IS NULL`,
		sessionID, at, string(reason),
	)
	if err != nil {
		return 0, fmt.Errorf("revoke session tokens: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("revoke session tokens rows: %w", err)
	}
	return n, nil
}

func scanRefreshToken(row *sql.Row) (*domain.RefreshToken, error) {
	var t domain.RefreshToken
	var revokedAt sql.NullTime
	var reason, replacedBy sql.NullString
	err := row.Scan(&t.ID, &t.SessionID, &t.TokenHash, &t.CreatedAt, &t.ExpiresAt,
		&revokedAt, &reason, &replacedBy)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan refresh token: %w", err)
	}
	if revokedAt.Valid {
		t.RevokedAt = &revokedAt.Time
	}
	t.RevokeReason = domain.RevokeReason(reason.String)
	t.ReplacedByTokenID = replacedBy.String
	return &t, nil
}
