// Package dispatcher drains the outbox: it claims batches of pending events
// and publishes them to the broker on a fixed interval. Multiple instances
// run safely side by side because the claim read locks disjoint rows.
package dispatcher

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"session-plane/backend/internal/outbox/domain"
	"session-plane/backend/internal/storage"
)

// Publisher delivers one event to the broker and returns the broker message
// id. Implementations must not return a nil error without an acknowledgment.
type Publisher interface {
	Publish(ctx context.Context, e *domain.Event) (string, error)
	Close() error
}

// Config controls the dispatch loop. Zero fields take defaults.
type Config struct {
	// Interval between ticks. Default 2s.
	Interval time.Duration
	// BatchSize is the max rows claimed per tick. Default 100.
	BatchSize int
	// MaxAttempts before a row is dead-lettered (FAILED). Default 10.
	MaxAttempts int
	// PublishTimeout bounds a single broker publish. Default 5s.
	PublishTimeout time.Duration
}

func (c Config) normalized() Config {
	if c.Interval <= 0 {
		c.Interval = 2 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 10
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = 5 * time.Second
	}
	return c
}

// Dispatcher is one dispatch worker.
type Dispatcher struct {
	store  storage.Store
	pub    Publisher
	cfg    Config
	logger *zap.Logger
	clock  func() time.Time

	tracer       trace.Tracer
	dispatched   metric.Int64Counter
	failed       metric.Int64Counter
	deadLettered metric.Int64Counter
}

// New returns a Dispatcher. logger may be nil.
func New(store storage.Store, pub Publisher, cfg Config, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	meter := otel.Meter("outbox/dispatcher")
	dispatched, _ := meter.Int64Counter("outbox.events.dispatched")
	failed, _ := meter.Int64Counter("outbox.events.failed")
	deadLettered, _ := meter.Int64Counter("outbox.events.dead_lettered")
	return &Dispatcher{
		store:        store,
		pub:          pub,
		cfg:          cfg.normalized(),
		logger:       logger,
		clock:        time.Now,
		tracer:       otel.Tracer("outbox/dispatcher"),
		dispatched:   dispatched,
		failed:       failed,
		deadLettered: deadLettered,
	}
}

// Run ticks until ctx is done. The shutdown signal is checked between ticks
// only; an in-flight batch finishes before Run returns.
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()
	d.logger.Info("outbox dispatcher started",
		zap.Duration("interval", d.cfg.Interval),
		zap.Int("batch_size", d.cfg.BatchSize),
	)
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("outbox dispatcher stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, _, err := d.Tick(context.WithoutCancel(ctx)); err != nil {
				d.logger.Error("outbox tick failed", zap.Error(err))
			}
		}
	}
}

// Tick claims one batch and publishes it. Returns how many events were
// dispatched and how many failed. The claim transaction spans the whole
// batch, so rows stay invisible to concurrent dispatchers until it commits.
// One event's publish failure never blocks the rest of the batch.
func (d *Dispatcher) Tick(ctx context.Context) (dispatched, failed int, err error) {
	ctx, span := d.tracer.Start(ctx, "outbox.tick")
	defer span.End()

	err = d.store.InTx(ctx, func(tx storage.TxStore) error {
		events, err := tx.ClaimPendingOutboxEvents(ctx, d.cfg.BatchSize)
		if err != nil {
			return err
		}
		for _, e := range events {
			if d.publishOne(ctx, tx, e) {
				dispatched++
			} else {
				failed++
			}
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	span.SetAttributes(
		attribute.Int("outbox.dispatched", dispatched),
		attribute.Int("outbox.failed", failed),
	)
	return dispatched, failed, nil
}

// publishOne publishes a single event and records the outcome on its row.
// Returns true when the broker acknowledged the message.
func (d *Dispatcher) publishOne(ctx context.Context, tx storage.TxStore, e *domain.Event) bool {
	pubCtx, cancel := context.WithTimeout(ctx, d.cfg.PublishTimeout)
	msgID, pubErr := d.pub.Publish(pubCtx, e)
	cancel()

	if pubErr == nil {
		if err := tx.MarkOutboxDispatched(ctx, e.ID, msgID, d.clock().UTC()); err != nil {
			d.logger.Error("mark dispatched failed", zap.String("event_id", e.ID), zap.Error(err))
			return false
		}
		d.dispatched.Add(ctx, 1, metric.WithAttributes(attribute.String("event_type", e.EventType)))
		return true
	}

	if err := tx.MarkOutboxDispatchFailed(ctx, e.ID, pubErr.Error(), d.cfg.MaxAttempts); err != nil {
		d.logger.Error("mark failed failed", zap.String("event_id", e.ID), zap.Error(err))
		return false
	}
	d.failed.Add(ctx, 1, metric.WithAttributes(attribute.String("event_type", e.EventType)))
	if e.AttemptCount+1 >= d.cfg.MaxAttempts {
		d.deadLettered.Add(ctx, 1, metric.WithAttributes(attribute.String("event_type", e.EventType)))
		d.logger.Error("outbox event dead-lettered",
			zap.String("event_id", e.ID),
			zap.String("event_type", e.EventType),
			zap.Int("attempts", e.AttemptCount+1),
			zap.Error(pubErr),
		)
	} else {
		d.logger.Warn("outbox publish failed; will retry",
			zap.String("event_id", e.ID),
			zap.String("event_type", e.EventType),
			zap.Int("attempts", e.AttemptCount+1),
			zap.Error(pubErr),
		)
	}
	return false
}
