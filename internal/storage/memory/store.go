// Package memory implements storage.Store in memory for unit tests. InTx
// clones the current state, runs the callback against the clone, and swaps it
// in only on success, so a failing transaction really does roll back every
// write made inside it.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	outboxdomain "session-plane/backend/internal/outbox/domain"
	sessiondomain "session-plane/backend/internal/session/domain"
	tokendomain "session-plane/backend/internal/token/domain"
	userdomain "session-plane/backend/internal/user/domain"

	"session-plane/backend/internal/storage"
)

// Store is an in-memory storage.Store. Transactions are serialized by a
// mutex, which models the database's conflict resolution closely enough for
// the rotation race: the second transaction observes the first one's commit.
type Store struct {
	mu sync.Mutex
	st *state
}

type state struct {
	users    map[string]*userdomain.User
	sessions map[string]*sessiondomain.Session
	tokens   map[string]*tokendomain.RefreshToken
	events   map[string]*outboxdomain.Event
}

// NewStore returns an empty in-memory store.
func NewStore() *Store {
	return &Store{st: newState()}
}

var _ storage.Store = (*Store)(nil)

func newState() *state {
	return &state{
		users:    make(map[string]*userdomain.User),
		sessions: make(map[string]*sessiondomain.Session),
		tokens:   make(map[string]*tokendomain.RefreshToken),
		events:   make(map[string]*outboxdomain.Event),
	}
}

func (st *state) clone() *state {
	next := &state{
		users:    make(map[string]*userdomain.User, len(st.users)),
		sessions: make(map[string]*sessiondomain.Session, len(st.sessions)),
		tokens:   make(map[string]*tokendomain.RefreshToken, len(st.tokens)),
		events:   make(map[string]*outboxdomain.Event, len(st.events)),
	}
	for id, u := range st.users {
		c := *u
		next.users[id] = &c
	}
	for id, s := range st.sessions {
		c := *s
		next.sessions[id] = &c
	}
	for id, t := range st.tokens {
		c := *t
		next.tokens[id] = &c
	}
	for id, e := range st.events {
		c := *e
		next.events[id] = &c
	}
	return next
}

// InTx runs fn against a clone of the state and commits by swapping it in.
func (s *Store) InTx(ctx context.Context, fn func(tx storage.TxStore) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.st.clone()
	if err := fn(&txStore{st: next}); err != nil {
		return err
	}
	s.st = next
	return nil
}

// Events returns a snapshot of all outbox events ordered by occurred_at,
// ties broken by event id. Test helper; not part of storage.Store.
func (s *Store) Events() []*outboxdomain.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*outboxdomain.Event, 0, len(s.st.events))
	for _, e := range s.st.events {
		c := *e
		out = append(out, &c)
	}
	sortEvents(out)
	return out
}

// Session returns a snapshot of the session, or nil. Test helper.
func (s *Store) Session(id string) *sessiondomain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.st.sessions[id]
	if !ok {
		return nil
	}
	c := *sess
	return &c
}

// Tokens returns snapshots of all refresh tokens for the session. Test helper.
func (s *Store) Tokens(sessionID string) []*tokendomain.RefreshToken {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*tokendomain.RefreshToken
	for _, t := range s.st.tokens {
		if t.SessionID == sessionID {
			c := *t
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

type txStore struct {
	st *state
}

var _ storage.TxStore = (*txStore)(nil)

func (tx *txStore) CreateUser(ctx context.Context, u *userdomain.User) error {
	c := *u
	tx.st.users[u.ID] = &c
	return nil
}

func (tx *txStore) GetUserByID(ctx context.Context, id string) (*userdomain.User, error) {
	u, ok := tx.st.users[id]
	if !ok {
		return nil, nil
	}
	c := *u
	return &c, nil
}

func (tx *txStore) GetUserByNormalizedEmail(ctx context.Context, normalizedEmail string) (*userdomain.User, error) {
	for _, u := range tx.st.users {
		if u.NormalizedEmail == normalizedEmail {
			c := *u
			return &c, nil
		}
	}
	return nil, nil
}

func (tx *txStore) CreateSession(ctx context.Context, sess *sessiondomain.Session) error {
	c := *sess
	tx.st.sessions[sess.ID] = &c
	return nil
}

func (tx *txStore) GetSessionByID(ctx context.Context, id string) (*sessiondomain.Session, error) {
	sess, ok := tx.st.sessions[id]
	if !ok {
		return nil, nil
	}
	c := *sess
	return &c, nil
}

func (tx *txStore) RevokeSession(ctx context.Context, id string, reason sessiondomain.RevokeReason, at time.Time) (bool, error) {
	sess, ok := tx.st.sessions[id]
	if !ok || sess.RevokedAt != nil {
		return false, nil
	}
	t := at
	sess.RevokedAt = &t
	sess.RevokeReason = reason
	return true, nil
}

func (tx *txStore) CreateRefreshToken(ctx context.Context, t *tokendomain.RefreshToken) error {
	c := *t
	tx.st.tokens[t.ID] = &c
	return nil
}

func (tx *txStore) GetRefreshTokenByHash(ctx context.Context, tokenHash string) (*tokendomain.RefreshToken, error) {
	for _, t := range tx.st.tokens {
		if t.TokenHash == tokenHash {
			c := *t
			return &c, nil
		}
	}
	return nil, nil
}

func (tx *txStore) GetActiveTokenForSession(ctx context.Context, sessionID string) (*tokendomain.RefreshToken, error) {
	for _, t := range tx.st.tokens {
		if t.SessionID == sessionID && t.RevokedAt == nil {
			c := *t
			return &c, nil
		}
	}
	return nil, nil
}

func (tx *txStore) RevokeRefreshToken(ctx context.Context, id string, reason tokendomain.RevokeReason, replacedBy string, at time.Time) (bool, error) {
	t, ok := tx.st.tokens[id]
	if !ok || t.RevokedAt != nil {
		return false, nil
	}
	ts := at
	t.RevokedAt = &ts
	t.RevokeReason = reason
	t.ReplacedByTokenID = replacedBy
	return true, nil
}

func (tx *txStore) RevokeActiveTokensForSession(ctx context.Context, sessionID string, reason tokendomain.RevokeReason, at time.Time) (int64, error) {
	var n int64
	for _, t := range tx.st.tokens {
		if t.SessionID == sessionID && t.RevokedAt == nil {
			ts := at
			t.RevokedAt = &ts
			t.RevokeReason = reason
			n++
		}
	}
	return n, nil
}

func (tx *txStore) AppendOutboxEvent(ctx context.Context, e *outboxdomain.Event) error {
	c := *e
	tx.st.events[e.ID] = &c
	return nil
}

func (tx *txStore) ClaimPendingOutboxEvents(ctx context.Context, limit int) ([]*outboxdomain.Event, error) {
	var out []*outboxdomain.Event
	for _, e := range tx.st.events {
		if e.Status == outboxdomain.StatusPending {
			c := *e
			out = append(out, &c)
		}
	}
	sortEvents(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (tx *txStore) MarkOutboxDispatched(ctx context.Context, id, brokerMessageID string, at time.Time) error {
	e, ok := tx.st.events[id]
	if !ok {
		return storage.ErrNotFound
	}
	ts := at
	e.Status = outboxdomain.StatusDispatched
	e.BrokerMessageID = brokerMessageID
	e.DispatchedAt = &ts
	e.LastError = ""
	return nil
}

func (tx *txStore) MarkOutboxDispatchFailed(ctx context.Context, id, lastError string, maxAttempts int) error {
	e, ok := tx.st.events[id]
	if !ok {
		return storage.ErrNotFound
	}
	e.AttemptCount++
	e.LastError = lastError
	if e.AttemptCount >= maxAttempts {
		e.Status = outboxdomain.StatusFailed
	}
	return nil
}

func (tx *txStore) GetOutboxEvent(ctx context.Context, id string) (*outboxdomain.Event, error) {
	e, ok := tx.st.events[id]
	if !ok {
		return nil, nil
	}
	c := *e
	return &c, nil
}

func sortEvents(events []*outboxdomain.Event) {
	sort.Slice(events, func(i, j int) bool {
		if events[i].OccurredAt.Equal(events[j].OccurredAt) {
			return events[i].ID < events[j].ID
		}
		return events[i].OccurredAt.Before(events[j].OccurredAt)
	})
}
