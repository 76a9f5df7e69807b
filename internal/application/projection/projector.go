// Package projection keeps the person read models up to date by folding
// published person events through the pure projections of the readmodel
// package.
package projection

import (
	"context"
	"fmt"
	"time"

	apperson "github.com/persona/backend/internal/application/person"
	"github.com/persona/backend/internal/domain/person"
	"github.com/persona/backend/internal/domain/readmodel"
	"github.com/persona/backend/internal/domain/shared"
	"github.com/persona/backend/internal/infrastructure/logger"
	"github.com/persona/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// HandlerName identifies the projector in idempotency keys
const HandlerName = "person-projector"

// Projection names
const (
	ViewSummary  = "summary"
	ViewSearch   = "search"
	ViewTimeline = "timeline"
)

// CategoryViewName returns the projection name of a category view
func CategoryViewName(c person.Category) string {
	return "category_" + string(c)
}

// Projector is the event handler that maintains every read model. Views
// are updated in parallel; events of one person are applied one at a time.
type Projector struct {
	views     []view
	history   shared.EventStore
	locker    *apperson.KeyedLocker
	metrics   *telemetry.PersonMetrics
	logger    *zap.Logger
	batchSize int
}

// Option configures a Projector
type Option func(*Projector)

// WithMetrics records projection metrics
func WithMetrics(m *telemetry.PersonMetrics) Option {
	return func(p *Projector) {
		p.metrics = m
	}
}

// WithBatchSize sets how many events Rebuild reads at a time
func WithBatchSize(n int) Option {
	return func(p *Projector) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// NewProjector creates a projector over stores. history is read to fill
// version gaps and to rebuild.
func NewProjector(stores readmodel.Stores, history shared.EventStore, logger *zap.Logger, opts ...Option) *Projector {
	p := &Projector{
		history:   history,
		locker:    apperson.NewKeyedLocker(),
		logger:    logger,
		batchSize: 500,
	}
	if stores.Summary != nil {
		p.views = append(p.views, newStoreView(ViewSummary, stores.Summary, readmodel.ProjectSummary, history, logger))
	}
	if stores.Search != nil {
		p.views = append(p.views, newStoreView(ViewSearch, stores.Search, readmodel.ProjectSearch, history, logger))
	}
	if stores.Timeline != nil {
		p.views = append(p.views, newStoreView(ViewTimeline, stores.Timeline, readmodel.ProjectTimeline, history, logger))
	}
	for _, c := range person.Categories() {
		if store, ok := stores.Categories[c]; ok {
			p.views = append(p.views, newStoreView(CategoryViewName(c), store, readmodel.CategoryViewProjection(c), history, logger))
		}
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// HandlerName returns the name used in idempotency keys
func (p *Projector) HandlerName() string {
	return HandlerName
}

// EventTypes returns the person event types
func (p *Projector) EventTypes() []string {
	return person.EventTypes()
}

// Views returns the names of the maintained projections
func (p *Projector) Views() []string {
	names := make([]string, len(p.views))
	for i, v := range p.views {
		names[i] = v.Name()
	}
	return names
}

// Handle folds one event into every read model. Events that are not
// person events are logged and skipped. A storage failure is returned so
// the event is delivered again.
func (p *Projector) Handle(ctx context.Context, event shared.DomainEvent) error {
	e, ok := event.(person.Event)
	if !ok {
		logger.WithLogger(ctx, p.logger).Error("unexpected event type, skipped",
			zap.String("event_type", event.EventType()),
			zap.String("event_id", event.EventID().String()),
		)
		return nil
	}

	ctx, span := telemetry.StartServiceSpan(ctx, "PersonProjector", "Handle",
		telemetry.SpanEventType.String(e.EventType()),
		telemetry.SpanPersonID.String(e.AggregateID().String()),
		telemetry.SpanEventVersion.Int64(e.AggregateVersion()),
	)
	defer span.End()

	if err := p.applyLocked(ctx, e); err != nil {
		telemetry.RecordError(span, err)
		return err
	}
	telemetry.SetOK(span)
	return nil
}

// applyLocked applies e while holding the lock of its person
func (p *Projector) applyLocked(ctx context.Context, e person.Event) error {
	unlock, err := p.locker.Lock(ctx, e.AggregateID())
	if err != nil {
		return err
	}
	defer unlock()
	return p.apply(ctx, e)
}

// apply fans e out to every view
func (p *Projector) apply(ctx context.Context, e person.Event) error {
	var g errgroup.Group
	for _, v := range p.views {
		g.Go(func() error {
			var err error
			start := time.Now()
			telemetry.WithProfilingLabels(ctx, telemetry.ProjectionLabels(v.Name()), func(ctx context.Context) {
				err = v.Apply(ctx, e)
			})
			outcome := telemetry.OutcomeSuccess
			if err != nil {
				outcome = telemetry.OutcomeError
				logger.WithLogger(ctx, p.logger).Error("projection store failed",
					zap.String("projection", v.Name()),
					zap.String("event_id", e.EventID().String()),
					zap.Int64("version", e.AggregateVersion()),
					zap.Error(err),
				)
			}
			p.metrics.RecordProjection(ctx, v.Name(), outcome, time.Since(start))
			return err
		})
	}
	return g.Wait()
}

// RebuildStats describes a finished rebuild
type RebuildStats struct {
	Events   int           `json:"events"`
	Views    []string      `json:"views"`
	Duration time.Duration `json:"duration"`
}

// Rebuild clears every read model and replays the whole event log into
// them. Each replayed event takes the same per-person lock as Handle, and
// records skip versions they already hold, so live events may keep arriving.
func (p *Projector) Rebuild(ctx context.Context) (RebuildStats, error) {
	start := time.Now()
	ctx, span := telemetry.StartServiceSpan(ctx, "PersonProjector", "Rebuild")
	defer span.End()
	log := logger.WithLogger(ctx, p.logger)

	g, gctx := errgroup.WithContext(ctx)
	for _, v := range p.views {
		g.Go(func() error { return v.Reset(gctx) })
	}
	if err := g.Wait(); err != nil {
		telemetry.RecordError(span, err)
		return RebuildStats{}, err
	}

	stats := RebuildStats{Views: p.Views()}
	var after int64
	for {
		batch, err := p.history.ReadAll(ctx, after, p.batchSize)
		if err != nil {
			telemetry.RecordError(span, err)
			return stats, fmt.Errorf("reading event log after %d: %w", after, err)
		}
		if len(batch) == 0 {
			break
		}
		for _, rec := range batch {
			after = rec.Position
			e, ok := rec.Event.(person.Event)
			if !ok {
				log.Warn("skipping foreign event during rebuild", zap.String("event_type", rec.Event.EventType()))
				continue
			}
			if err := p.applyLocked(ctx, e); err != nil {
				telemetry.RecordError(span, err)
				return stats, err
			}
			stats.Events++
		}
		if len(batch) < p.batchSize {
			break
		}
	}

	stats.Duration = time.Since(start)
	telemetry.SetOK(span)
	log.Info("read models rebuilt",
		zap.Int("events", stats.Events),
		zap.Strings("views", stats.Views),
		zap.Duration("duration", stats.Duration),
	)
	return stats, nil
}

var _ shared.EventHandler = (*Projector)(nil)
