package projection

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/persona/backend/internal/domain/person"
	"github.com/persona/backend/internal/domain/readmodel"
	"github.com/persona/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// view keeps one read model collection in step with the event log
type view interface {
	Name() string
	// Apply folds e into the read model of its person. It returns an error
	// only when storage fails, in which case the event should be redelivered.
	Apply(ctx context.Context, e person.Event) error
	// Reset removes every read model of the collection
	Reset(ctx context.Context) error
}

// storeView applies a pure projection between a Get and a Put on a store.
// Each record remembers the last version folded into it: older events are
// ignored and a version gap is filled from the event log first.
type storeView[M any] struct {
	name    string
	store   readmodel.Store[M]
	project readmodel.Projection[M]
	history shared.EventStore
	logger  *zap.Logger
}

func newStoreView[M any](name string, store readmodel.Store[M], project readmodel.Projection[M], history shared.EventStore, logger *zap.Logger) *storeView[M] {
	return &storeView[M]{
		name:    name,
		store:   store,
		project: project,
		history: history,
		logger:  logger.With(zap.String("projection", name)),
	}
}

func (v *storeView[M]) Name() string {
	return v.name
}

func (v *storeView[M]) Apply(ctx context.Context, e person.Event) error {
	id := e.AggregateID()

	var (
		current *M
		version int64
	)
	rec, err := v.store.Get(ctx, id)
	switch {
	case err == nil:
		current, version = &rec.Model, rec.Version
	case errors.Is(err, shared.ErrNotFound):
	default:
		return fmt.Errorf("loading %s for %s: %w", v.name, id, err)
	}

	target := e.AggregateVersion()
	if target <= version {
		return nil
	}
	pending := []person.Event{e}
	if target > version+1 {
		if pending, err = v.catchUp(ctx, id, version, target); err != nil {
			return err
		}
	}

	for _, ev := range pending {
		current = v.fold(current, ev)
	}
	if current == nil {
		return nil
	}
	if err := v.store.Put(ctx, readmodel.Record[M]{
		ID:        id,
		Version:   target,
		Model:     *current,
		UpdatedAt: e.OccurredAt(),
	}); err != nil {
		return fmt.Errorf("saving %s for %s: %w", v.name, id, err)
	}
	return nil
}

func (v *storeView[M]) Reset(ctx context.Context) error {
	if err := v.store.Clear(ctx); err != nil {
		return fmt.Errorf("clearing %s: %w", v.name, err)
	}
	return nil
}

// catchUp returns the events after version up to and including target
func (v *storeView[M]) catchUp(ctx context.Context, id uuid.UUID, version, target int64) ([]person.Event, error) {
	stored, err := v.history.Load(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading history of %s: %w", id, err)
	}
	var pending []person.Event
	for _, se := range stored {
		n := se.AggregateVersion()
		if n <= version || n > target {
			continue
		}
		pe, ok := se.(person.Event)
		if !ok {
			v.logger.Error("skipping foreign event in person history",
				zap.String("event_id", se.EventID().String()),
				zap.String("event_type", se.EventType()),
			)
			continue
		}
		pending = append(pending, pe)
	}
	if int64(len(pending)) != target-version {
		return nil, fmt.Errorf("history of %s has %d events between versions %d and %d", id, len(pending), version, target)
	}
	v.logger.Debug("caught up missed events",
		zap.String("person_id", id.String()),
		zap.Int64("from_version", version),
		zap.Int64("to_version", target),
	)
	return pending, nil
}

// fold applies the projection, logging and skipping an event the
// projection cannot handle so the read model keeps moving
func (v *storeView[M]) fold(current *M, e person.Event) (next *M) {
	defer func() {
		if r := recover(); r != nil {
			v.logger.Error("projection failed, event skipped",
				zap.String("event_id", e.EventID().String()),
				zap.String("event_type", e.EventType()),
				zap.Any("panic", r),
			)
			next = current
		}
	}()
	return v.project(current, e)
}
