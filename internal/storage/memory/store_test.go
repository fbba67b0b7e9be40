package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	outboxdomain "session-plane/backend/internal/outbox/domain"
	sessiondomain "session-plane/backend/internal/session/domain"
	"session-plane/backend/internal/storage"
	tokendomain "session-plane/backend/internal/token/domain"
	userdomain "session-plane/backend/internal/user/domain"
)

func TestInTx_RollsBackOnError(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.InTx(ctx, func(tx storage.TxStore) error {
		if err := tx.CreateUser(ctx, &userdomain.User{ID: "u1", NormalizedEmail: "a@b.co"}); err != nil {
			return err
		}
		if err := tx.AppendOutboxEvent(ctx, &outboxdomain.Event{ID: "e1", Status: outboxdomain.StatusPending}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("InTx err = %v, want boom", err)
	}

	err = store.InTx(ctx, func(tx storage.TxStore) error {
		u, err := tx.GetUserByID(ctx, "u1")
		if err != nil {
			return err
		}
		if u != nil {
			t.Error("user should have rolled back")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("InTx: %v", err)
	}
	if len(store.Events()) != 0 {
		t.Error("event should have rolled back")
	}
}

func TestInTx_CommitsOnSuccess(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	now := time.Now().UTC()

	err := store.InTx(ctx, func(tx storage.TxStore) error {
		if err := tx.CreateSession(ctx, &sessiondomain.Session{ID: "s1", UserID: "u1", CreatedAt: now}); err != nil {
			return err
		}
		return tx.CreateRefreshToken(ctx, &tokendomain.RefreshToken{
			ID: "t1", SessionID: "s1", TokenHash: "h1", CreatedAt: now, ExpiresAt: now.Add(time.Hour),
		})
	})
	if err != nil {
		t.Fatalf("InTx: %v", err)
	}

	if store.Session("s1") == nil {
		t.Error("session should have committed")
	}
	if got := len(store.Tokens("s1")); got != 1 {
		t.Errorf("tokens = %d, want 1", got)
	}
}

func TestRevokeRefreshToken_Conditional(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	now := time.Now().UTC()

	err := store.InTx(ctx, func(tx storage.TxStore) error {
		return tx.CreateRefreshToken(ctx, &tokendomain.RefreshToken{
			ID: "t1", SessionID: "s1", TokenHash: "h1", CreatedAt: now, ExpiresAt: now.Add(time.Hour),
		})
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	err = store.InTx(ctx, func(tx storage.TxStore) error {
		ok, err := tx.RevokeRefreshToken(ctx, "t1", tokendomain.RevokeReasonRotated, "t2", now)
		if err != nil {
			return err
		}
		if !ok {
			t.Error("first revoke should win")
		}
		// Second attempt sees the revocation and loses.
		ok, err = tx.RevokeRefreshToken(ctx, "t1", tokendomain.RevokeReasonRotated, "t3", now)
		if err != nil {
			return err
		}
		if ok {
			t.Error("second revoke should lose")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("InTx: %v", err)
	}

	toks := store.Tokens("s1")
	if toks[0].ReplacedByTokenID != "t2" {
		t.Errorf("ReplacedByTokenID = %q, want t2", toks[0].ReplacedByTokenID)
	}
}

func TestClaimPendingOutboxEvents_OrderAndLimit(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	err := store.InTx(ctx, func(tx storage.TxStore) error {
		for i, id := range []string{"e3", "e1", "e2"} {
			if err := tx.AppendOutboxEvent(ctx, &outboxdomain.Event{
				ID:         id,
				OccurredAt: base.Add(time.Duration(3-i) * time.Second),
				Status:     outboxdomain.StatusPending,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	err = store.InTx(ctx, func(tx storage.TxStore) error {
		events, err := tx.ClaimPendingOutboxEvents(ctx, 2)
		if err != nil {
			return err
		}
		if len(events) != 2 {
			t.Fatalf("claimed = %d, want 2", len(events))
		}
		// e2 has the earliest occurred_at, then e1.
		if events[0].ID != "e2" || events[1].ID != "e1" {
			t.Errorf("order = [%s %s], want [e2 e1]", events[0].ID, events[1].ID)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("InTx: %v", err)
	}
}

func TestClaimPendingOutboxEvents_TiesBreakOnID(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	err := store.InTx(ctx, func(tx storage.TxStore) error {
		for _, id := range []string{"e2", "e3", "e1"} {
			if err := tx.AppendOutboxEvent(ctx, &outboxdomain.Event{
				ID:         id,
				OccurredAt: at,
				Status:     outboxdomain.StatusPending,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	err = store.InTx(ctx, func(tx storage.TxStore) error {
		events, err := tx.ClaimPendingOutboxEvents(ctx, 3)
		if err != nil {
			return err
		}
		// Equal occurred_at orders by id; the service's UUIDv7 ids make that
		// insertion order in practice.
		for i, want := range []string{"e1", "e2", "e3"} {
			if events[i].ID != want {
				t.Errorf("events[%d] = %s, want %s", i, events[i].ID, want)
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("InTx: %v", err)
	}
}

func TestMarkOutboxDispatchFailed_DeadLetters(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	err := store.InTx(ctx, func(tx storage.TxStore) error {
		return tx.AppendOutboxEvent(ctx, &outboxdomain.Event{ID: "e1", Status: outboxdomain.StatusPending})
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	for i := 0; i < 2; i++ {
		err = store.InTx(ctx, func(tx storage.TxStore) error {
			return tx.MarkOutboxDispatchFailed(ctx, "e1", "broker down", 2)
		})
		if err != nil {
			t.Fatalf("mark failed %d: %v", i, err)
		}
	}

	events := store.Events()
	if events[0].Status != outboxdomain.StatusFailed {
		t.Errorf("status = %q, want FAILED", events[0].Status)
	}
	if events[0].AttemptCount != 2 {
		t.Errorf("attempt_count = %d, want 2", events[0].AttemptCount)
	}
	if events[0].LastError != "broker down" {
		t.Errorf("last_error = %q", events[0].LastError)
	}
}
