package event

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/persona/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// ErrSkippedAfterFailure marks an event held back from a handler because an
// earlier event of the same person failed in that handler
var ErrSkippedAfterFailure = errors.New("skipped after earlier failure of the same person")

// InMemoryEventBus delivers events synchronously, in the order given, to the
// handlers registered for their type. A failing or panicking handler does
// not stop the others. Once a handler fails on a person, that handler gets
// no later events of the person in the same Publish, so it never observes a
// gap in the version sequence. The joined error tells the caller to leave
// the batch unpublished for the relay.
type InMemoryEventBus struct {
	registry *HandlerRegistry
	logger   *zap.Logger
	running  atomic.Bool
}

// NewInMemoryEventBus creates a bus with an empty registry
func NewInMemoryEventBus(logger *zap.Logger) *InMemoryEventBus {
	return &InMemoryEventBus{
		registry: NewHandlerRegistry(),
		logger:   logger.Named("event_bus"),
	}
}

type blockKey struct {
	handler shared.EventHandler
	person  uuid.UUID
}

// Publish implements shared.EventPublisher
func (b *InMemoryEventBus) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	var (
		errs    []error
		blocked map[blockKey]bool
	)
	for _, event := range events {
		for _, handler := range b.registry.GetHandlers(event.EventType()) {
			key := blockKey{handler: handler, person: event.AggregateID()}
			if blocked[key] {
				errs = append(errs, fmt.Errorf("%s %s: %w", event.EventType(), event.EventID(), ErrSkippedAfterFailure))
				continue
			}
			err := b.dispatch(ctx, handler, event)
			if err == nil {
				continue
			}
			if blocked == nil {
				blocked = make(map[blockKey]bool)
			}
			blocked[key] = true
			b.logger.Error("event handler failed",
				zap.String("event_type", event.EventType()),
				zap.Stringer("event_id", event.EventID()),
				zap.Stringer("person_id", event.AggregateID()),
				zap.Int64("version", event.AggregateVersion()),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("%s %s: %w", event.EventType(), event.EventID(), err))
		}
	}
	return errors.Join(errs...)
}

func (b *InMemoryEventBus) dispatch(ctx context.Context, handler shared.EventHandler, event shared.DomainEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return handler.Handle(ctx, event)
}

// Subscribe implements shared.EventSubscriber
func (b *InMemoryEventBus) Subscribe(handler shared.EventHandler, eventTypes ...string) {
	if len(eventTypes) == 0 {
		eventTypes = handler.EventTypes()
	}
	b.registry.Register(handler, eventTypes...)
	b.logger.Debug("handler subscribed", zap.Strings("event_types", eventTypes))
}

// Unsubscribe implements shared.EventSubscriber
func (b *InMemoryEventBus) Unsubscribe(handler shared.EventHandler) {
	b.registry.Unregister(handler)
}

// Start marks the bus running. Delivery does not depend on it.
func (b *InMemoryEventBus) Start(context.Context) error {
	b.running.Store(true)
	b.logger.Info("event bus started", zap.Int("handlers", len(b.registry.GetAllHandlers())))
	return nil
}

// Stop marks the bus stopped
func (b *InMemoryEventBus) Stop(context.Context) error {
	b.running.Store(false)
	b.logger.Info("event bus stopped")
	return nil
}

// IsRunning reports whether Start was called without a matching Stop
func (b *InMemoryEventBus) IsRunning() bool {
	return b.running.Load()
}

var _ shared.EventBus = (*InMemoryEventBus)(nil)
