package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"session-plane/backend/internal/user/domain"
)

const userColumns = `id, email, normalized_email, password_hash, status, mfa_enabled, version, created_at, updated_at`

// CreateUser persists the user. A unique violation on normalized_email is
// surfaced as a plain error; the service checks for duplicates first.
func (s *queries) CreateUser(ctx context.Context, u *domain.User) error {
	_, err := s.q.ExecContext(ctx, `
INSERT INTO users (`+userColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		u.ID, u.Email, u.NormalizedEmail, u.PasswordHash, string(u.Status),
		u.MFAEnabled, u.Version, u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("create user: duplicate email: %w", err)
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// GetUserByID returns the user for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (s *queries) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// GetUserByNormalizedEmail returns the user for the normalized email, or nil if not found.
func (s *queries) GetUserByNormalizedEmail(ctx context.Context, normalizedEmail string) (*domain.User, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE normalized_email = $1`, normalizedEmail)
	return scanUser(row)
}

func scanUser(row *sql.Row) (*domain.User, error) {
	var u domain.User
	var status string
	err := row.Scan(&u.ID, &u.Email, &u.NormalizedEmail, &u.PasswordHash, &status,
		&u.MFAEnabled, &u.Version, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.Status = domain.UserStatus(status)
	return &u, nil
}
