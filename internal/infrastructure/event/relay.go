package event

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/persona/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// RelayConfig holds configuration for the relay
type RelayConfig struct {
	BatchSize    int
	PollInterval time.Duration

	// Grace leaves events that were never attempted alone until they are
	// this old, so the command service's own publish finishes first. Zero
	// relays every due event.
	Grace time.Duration
}

// DefaultRelayConfig returns default configuration
func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		BatchSize:    100,
		PollInterval: 5 * time.Second,
		Grace:        10 * time.Second,
	}
}

// Relay republishes stored events that never reached the bus. The command
// service publishes right after appending; the relay covers crashes and
// handler failures between append and publish, which makes delivery to
// projections at-least-once.
type Relay struct {
	store  shared.EventStore
	bus    shared.EventPublisher
	config RelayConfig
	logger *zap.Logger
	now    func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRelay creates a new relay
func NewRelay(store shared.EventStore, bus shared.EventPublisher, config RelayConfig, logger *zap.Logger) *Relay {
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultRelayConfig().BatchSize
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultRelayConfig().PollInterval
	}
	return &Relay{
		store:  store,
		bus:    bus,
		config: config,
		logger: logger,
		now:    time.Now,
	}
}

// Start starts polling in the background
func (r *Relay) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	r.wg.Add(1)
	go r.loop(ctx)

	r.logger.Info("event relay started",
		zap.Int("batch_size", r.config.BatchSize),
		zap.Duration("poll_interval", r.config.PollInterval),
		zap.Duration("grace", r.config.Grace),
	)
	return nil
}

// Stop gracefully stops the relay
func (r *Relay) Stop(ctx context.Context) error {
	if r.cancel != nil {
		r.cancel()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("event relay stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Relay) loop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
				r.logger.Error("relay batch failed", zap.Error(err))
			}
		}
	}
}

// RunOnce publishes one batch of due events and returns how many were
// published. Once an event of an aggregate fails or is still within the
// grace window, later events of the same aggregate in the batch are left for
// the next run.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	now := r.now()
	due, err := r.store.FindUnpublished(ctx, now, r.config.BatchSize)
	if err != nil {
		return 0, err
	}

	blocked := make(map[uuid.UUID]bool)
	published := make([]uuid.UUID, 0, len(due))
	for _, rec := range due {
		ev := rec.Event
		if blocked[ev.AggregateID()] {
			continue
		}
		if r.fresh(rec, now) {
			blocked[ev.AggregateID()] = true
			continue
		}
		if err := r.bus.Publish(ctx, ev); err != nil {
			blocked[ev.AggregateID()] = true
			r.recordFailure(ctx, rec, err, now)
			continue
		}
		published = append(published, ev.EventID())
	}

	if len(published) > 0 {
		if err := r.store.MarkPublished(ctx, now, published...); err != nil {
			return 0, err
		}
		r.logger.Debug("relay published events", zap.Int("count", len(published)))
	}
	return len(published), nil
}

// fresh reports whether rec was appended within the grace window and never
// attempted, meaning the command that stored it may still be delivering it
func (r *Relay) fresh(rec shared.RecordedEvent, now time.Time) bool {
	if r.config.Grace <= 0 || rec.Publication.Attempts > 0 {
		return false
	}
	return rec.RecordedAt.After(now.Add(-r.config.Grace))
}

func (r *Relay) recordFailure(ctx context.Context, rec shared.RecordedEvent, cause error, at time.Time) {
	ev := rec.Event
	fields := []zap.Field{
		zap.String("event_id", ev.EventID().String()),
		zap.String("event_type", ev.EventType()),
		zap.String("aggregate_id", ev.AggregateID().String()),
		zap.Int64("aggregate_version", ev.AggregateVersion()),
		zap.Error(cause),
	}

	pub := rec.Publication
	pub.MarkFailed(cause.Error(), at)
	if pub.IsDead() {
		r.logger.Warn("event exhausted publish attempts", append(fields, zap.Int("attempts", pub.Attempts))...)
	} else {
		r.logger.Error("failed to publish event", fields...)
	}

	if err := r.store.MarkPublishFailed(ctx, ev.EventID(), cause.Error(), at); err != nil {
		r.logger.Error("failed to record publish failure", zap.String("event_id", ev.EventID().String()), zap.Error(err))
	}
}
