package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"session-plane/backend/internal/ids"
	outboxdomain "session-plane/backend/internal/outbox/domain"
	"session-plane/backend/internal/security"
	"session-plane/backend/internal/server/middleware"
	sessiondomain "session-plane/backend/internal/session/domain"
	"session-plane/backend/internal/storage"
	tokendomain "session-plane/backend/internal/token/domain"
	userdomain "session-plane/backend/internal/user/domain"
)

// Sentinel errors for the auth service; the HTTP layer maps them to responses.
var (
	// ErrValidation wraps bad-input failures so the HTTP layer can map them
	// to 400 without inspecting messages.
	ErrValidation             = errors.New("validation failed")
	ErrEmailAlreadyRegistered = errors.New("email already registered")
	ErrInvalidCredentials     = errors.New("invalid credentials")
	// ErrInvalidToken means the presented refresh token hash matched nothing.
	ErrInvalidToken = errors.New("invalid refresh token")
	// ErrTokenExpired means the token was found but is past expiry; the
	// owning session stays active.
	ErrTokenExpired = errors.New("refresh token expired")
	// ErrSessionRevoked means the token was already consumed (reuse signal)
	// or its session was revoked; the session is revoked as a side effect.
	ErrSessionRevoked = errors.New("session revoked")
)

// AuthResult holds the outcome of Login or Refresh.
type AuthResult struct {
	AccessToken  string
	RefreshToken string // raw opaque secret; never stored or logged
	ExpiresAt    time.Time
	UserID       string
	SessionID    string
}

// AuthService implements register, login, refresh-token rotation with reuse
// detection, logout, and admin session revocation. Every mutation commits in
// one transaction together with the outbox event describing it.
type AuthService struct {
	store      storage.Store
	hasher     *security.Hasher
	tokens     *security.TokenProvider
	refreshTTL time.Duration
	logger     *zap.Logger

	// Injected for deterministic tests; default time.Now, ids.New, and
	// security.NewRefreshSecret.
	clock     func() time.Time
	newID     func() string
	newSecret func() (string, error)
}

// NewAuthService returns an AuthService with the given dependencies.
func NewAuthService(store storage.Store, hasher *security.Hasher, tokens *security.TokenProvider, refreshTTL time.Duration, logger *zap.Logger) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		store:      store,
		hasher:     hasher,
		tokens:     tokens,
		refreshTTL: refreshTTL,
		logger:     logger,
		clock:      time.Now,
		newID:      ids.New,
		newSecret:  security.NewRefreshSecret,
	}
}

// Register creates a user with the given email and password and records a
// UserRegistered event in the same transaction.
func (s *AuthService) Register(ctx context.Context, email, password string) (*userdomain.User, error) {
	email = strings.TrimSpace(email)
	if err := validateEmail(userdomain.NormalizeEmail(email)); err != nil {
		return nil, err
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}
	hashed, err := s.hasher.Hash([]byte(password))
	if err != nil {
		return nil, err
	}
	now := s.clock().UTC()
	user := &userdomain.User{
		ID:              s.newID(),
		Email:           email,
		NormalizedEmail: userdomain.NormalizeEmail(email),
		PasswordHash:    hashed,
		Status:          userdomain.UserStatusActive,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := user.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	err = s.store.InTx(ctx, func(tx storage.TxStore) error {
		existing, err := tx.GetUserByNormalizedEmail(ctx, user.NormalizedEmail)
		if err != nil {
			return err
		}
		if existing != nil {
			return ErrEmailAlreadyRegistered
		}
		if err := tx.CreateUser(ctx, user); err != nil {
			return err
		}
		return s.appendEvent(ctx, tx, outboxdomain.AggregateTypeUser, user.ID,
			outboxdomain.EventTypeUserRegistered, outboxdomain.UserRegisteredPayload{
				UserID:        user.ID,
				Email:         user.Email,
				OccurredAt:    now,
				CorrelationID: middleware.GetCorrelationID(ctx),
			}, now)
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// Login verifies the credential, creates a session with its first refresh
// token, and returns tokens. The session, the token, and the SessionCreated
// event commit as one unit.
func (s *AuthService) Login(ctx context.Context, email, password, deviceID, userAgent, ip string) (*AuthResult, error) {
	norm := userdomain.NormalizeEmail(email)
	if norm == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	// Credential verification happens outside the write transaction so the
	// bcrypt comparison does not hold a database transaction open.
	var user *userdomain.User
	err := s.store.InTx(ctx, func(tx storage.TxStore) error {
		u, err := tx.GetUserByNormalizedEmail(ctx, norm)
		if err != nil {
			return err
		}
		user = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	if user == nil || user.Status != userdomain.UserStatusActive {
		return nil, ErrInvalidCredentials
	}
	if err := s.hasher.Compare(user.PasswordHash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	now := s.clock().UTC()
	sess := &sessiondomain.Session{
		ID:        s.newID(),
		UserID:    user.ID,
		JTI:       s.newID(),
		DeviceID:  strings.TrimSpace(deviceID),
		UserAgent: userAgent,
		IPAddress: ip,
		CreatedAt: now,
	}
	raw, tok, err := s.mintToken(sess.ID, now)
	if err != nil {
		return nil, err
	}
	err = s.store.InTx(ctx, func(tx storage.TxStore) error {
		if err := tx.CreateSession(ctx, sess); err != nil {
			return err
		}
		if err := tx.CreateRefreshToken(ctx, tok); err != nil {
			return err
		}
		return s.appendEvent(ctx, tx, outboxdomain.AggregateTypeSession, sess.ID,
			outboxdomain.EventTypeSessionCreated, outboxdomain.SessionCreatedPayload{
				SessionID:     sess.ID,
				UserID:        user.ID,
				DeviceID:      sess.DeviceID,
				IPAddress:     sess.IPAddress,
				OccurredAt:    now,
				CorrelationID: middleware.GetCorrelationID(ctx),
			}, now)
	})
	if err != nil {
		return nil, err
	}
	access, exp, err := s.tokens.IssueAccess(user.ID, sess.ID, sess.JTI, now)
	if err != nil {
		return nil, err
	}
	return &AuthResult{
		AccessToken:  access,
		RefreshToken: raw,
		ExpiresAt:    exp,
		UserID:       user.ID,
		SessionID:    sess.ID,
	}, nil
}

// Refresh rotates the presented refresh token and returns new tokens.
//
// Presenting an already-consumed token is treated as a theft signal
// unconditionally: the owning session is revoked with all its tokens, a
// RefreshTokenReuseDetected event is recorded, and the call fails with
// ErrSessionRevoked. Two concurrent calls on the same token race on the
// conditional revoke; the loser is routed into the same reuse path even when
// it is a benign retry (security over availability).
func (s *AuthService) Refresh(ctx context.Context, rawToken string) (*AuthResult, error) {
	ctx, span := otel.Tracer("identity.auth").Start(ctx, "AuthService.Refresh")
	defer span.End()

	if rawToken == "" {
		return nil, ErrInvalidToken
	}
	hash := security.HashRefreshToken(rawToken)

	var (
		res    *AuthResult
		outErr error
	)
	// Failure outcomes that must still commit writes (the reuse cascade) are
	// carried in outErr with a nil return from the callback.
	err := s.store.InTx(ctx, func(tx storage.TxStore) error {
		tok, err := tx.GetRefreshTokenByHash(ctx, hash)
		if err != nil {
			return err
		}
		if tok == nil {
			outErr = ErrInvalidToken
			return nil
		}
		sess, err := tx.GetSessionByID(ctx, tok.SessionID)
		if err != nil {
			return err
		}
		if sess == nil {
			outErr = ErrInvalidToken
			return nil
		}
		now := s.clock().UTC()
		if sess.Revoked() {
			// Already punished; replaying the stolen token again is a no-op.
			outErr = ErrSessionRevoked
			return nil
		}
		if tok.RevokedAt != nil {
			perr := s.punishReuse(ctx, tx, sess, tok, now)
			if !errors.Is(perr, ErrSessionRevoked) {
				return perr
			}
			outErr = perr
			return nil
		}
		if now.After(tok.ExpiresAt) {
			// Soft failure: the session stays active.
			outErr = ErrTokenExpired
			return nil
		}

		newRaw, newTok, err := s.mintToken(sess.ID, now)
		if err != nil {
			return err
		}
		ok, err := tx.RevokeRefreshToken(ctx, tok.ID, tokendomain.RevokeReasonRotated, newTok.ID, now)
		if err != nil {
			return err
		}
		if !ok {
			// Lost the rotation race: another call consumed the token first.
			perr := s.punishReuse(ctx, tx, sess, tok, now)
			if !errors.Is(perr, ErrSessionRevoked) {
				return perr
			}
			outErr = perr
			return nil
		}
		if err := tx.CreateRefreshToken(ctx, newTok); err != nil {
			return err
		}
		if err := s.appendEvent(ctx, tx, outboxdomain.AggregateTypeSession, sess.ID,
			outboxdomain.EventTypeRefreshTokenRotated, outboxdomain.RefreshTokenRotatedPayload{
				SessionID:     sess.ID,
				UserID:        sess.UserID,
				OldTokenID:    tok.ID,
				NewTokenID:    newTok.ID,
				OccurredAt:    now,
				CorrelationID: middleware.GetCorrelationID(ctx),
			}, now); err != nil {
			return err
		}
		access, exp, err := s.tokens.IssueAccess(sess.UserID, sess.ID, sess.JTI, now)
		if err != nil {
			return err
		}
		res = &AuthResult{
			AccessToken:  access,
			RefreshToken: newRaw,
			ExpiresAt:    exp,
			UserID:       sess.UserID,
			SessionID:    sess.ID,
		}
		return nil
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if outErr != nil {
		span.SetAttributes(attribute.String("refresh.outcome", outErr.Error()))
		return nil, outErr
	}
	span.SetAttributes(attribute.String("refresh.outcome", "rotated"))
	return res, nil
}

// punishReuse revokes the owning session and every token under it and records
// the reuse event. Idempotent: a session that is already revoked is left
// untouched and no second event is recorded. Always returns ErrSessionRevoked
// for the caller to surface; the cascade writes commit because the
// transaction callback returns nil.
func (s *AuthService) punishReuse(ctx context.Context, tx storage.TxStore, sess *sessiondomain.Session, tok *tokendomain.RefreshToken, now time.Time) error {
	revoked, err := tx.RevokeSession(ctx, sess.ID, sessiondomain.RevokeReasonReuseDetected, now)
	if err != nil {
		return err
	}
	if !revoked {
		return ErrSessionRevoked
	}
	if _, err := tx.RevokeActiveTokensForSession(ctx, sess.ID, tokendomain.RevokeReasonReuseDetected, now); err != nil {
		return err
	}
	s.logger.Warn("refresh token reuse detected; session revoked",
		zap.String("session_id", sess.ID),
		zap.String("user_id", sess.UserID),
		zap.String("token_id", tok.ID),
	)
	if err := s.appendEvent(ctx, tx, outboxdomain.AggregateTypeSession, sess.ID,
		outboxdomain.EventTypeRefreshTokenReuseDetected, outboxdomain.RefreshTokenReuseDetectedPayload{
			SessionID:     sess.ID,
			UserID:        sess.UserID,
			TokenID:       tok.ID,
			OccurredAt:    now,
			CorrelationID: middleware.GetCorrelationID(ctx),
		}, now); err != nil {
		return err
	}
	return ErrSessionRevoked
}

// Logout revokes the session owning the presented refresh token. Unknown or
// already-revoked tokens are a silent no-op so logout never leaks token state.
func (s *AuthService) Logout(ctx context.Context, rawToken string) error {
	if rawToken == "" {
		return nil
	}
	hash := security.HashRefreshToken(rawToken)
	return s.store.InTx(ctx, func(tx storage.TxStore) error {
		tok, err := tx.GetRefreshTokenByHash(ctx, hash)
		if err != nil {
			return err
		}
		if tok == nil {
			return nil
		}
		return s.revokeSessionTx(ctx, tx, tok.SessionID, sessiondomain.RevokeReasonLogout)
	})
}

// RevokeSession revokes the session and all its tokens (admin action).
// Idempotent: revoking an already-revoked session is a no-op with no event.
func (s *AuthService) RevokeSession(ctx context.Context, sessionID string, reason sessiondomain.RevokeReason) error {
	if reason == "" {
		reason = sessiondomain.RevokeReasonAdmin
	}
	return s.store.InTx(ctx, func(tx storage.TxStore) error {
		return s.revokeSessionTx(ctx, tx, sessionID, reason)
	})
}

func (s *AuthService) revokeSessionTx(ctx context.Context, tx storage.TxStore, sessionID string, reason sessiondomain.RevokeReason) error {
	sess, err := tx.GetSessionByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess == nil {
		return nil
	}
	now := s.clock().UTC()
	revoked, err := tx.RevokeSession(ctx, sessionID, reason, now)
	if err != nil {
		return err
	}
	if !revoked {
		return nil
	}
	if _, err := tx.RevokeActiveTokensForSession(ctx, sessionID, tokendomain.RevokeReasonSessionRevoked, now); err != nil {
		return err
	}
	return s.appendEvent(ctx, tx, outboxdomain.AggregateTypeSession, sessionID,
		outboxdomain.EventTypeSessionRevoked, outboxdomain.SessionRevokedPayload{
			SessionID:     sessionID,
			UserID:        sess.UserID,
			Reason:        string(reason),
			OccurredAt:    now,
			CorrelationID: middleware.GetCorrelationID(ctx),
		}, now)
}

// mintToken generates a raw refresh secret and the token row storing its hash.
func (s *AuthService) mintToken(sessionID string, now time.Time) (string, *tokendomain.RefreshToken, error) {
	raw, err := s.newSecret()
	if err != nil {
		return "", nil, fmt.Errorf("mint refresh secret: %w", err)
	}
	return raw, &tokendomain.RefreshToken{
		ID:        s.newID(),
		SessionID: sessionID,
		TokenHash: security.HashRefreshToken(raw),
		CreatedAt: now,
		ExpiresAt: now.Add(s.refreshTTL),
	}, nil
}

func (s *AuthService) appendEvent(ctx context.Context, tx storage.TxStore, aggregateType, aggregateID, eventType string, payload any, now time.Time) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return tx.AppendOutboxEvent(ctx, &outboxdomain.Event{
		ID:            s.newID(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       body,
		OccurredAt:    now,
		CorrelationID: middleware.GetCorrelationID(ctx),
		PartitionKey:  aggregateID,
		Status:        outboxdomain.StatusPending,
	})
}

func validateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("%w: email is required", ErrValidation)
	}
	const simpleEmail = `^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`
	ok, _ := regexp.MatchString(simpleEmail, email)
	if !ok {
		return fmt.Errorf("%w: invalid email format", ErrValidation)
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < 12 {
		return fmt.Errorf("%w: password must be at least 12 characters", ErrValidation)
	}
	return nil
}
