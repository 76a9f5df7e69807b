package shared

import "context"

// EventHandler consumes published events. Delivery is at-least-once: the
// relay republishes stored events that were not acknowledged, so a handler
// must tolerate seeing the same EventID twice. Events of one person arrive
// in version order.
type EventHandler interface {
	Handle(ctx context.Context, event DomainEvent) error
	// EventTypes narrows delivery; nil or empty subscribes to everything
	EventTypes() []string
}

// EventPublisher hands appended events to subscribers. A returned error
// leaves the events unpublished in the store for the relay to pick up.
type EventPublisher interface {
	Publish(ctx context.Context, events ...DomainEvent) error
}

// EventSubscriber manages handler registration. Types passed to Subscribe
// take precedence over the handler's own EventTypes.
type EventSubscriber interface {
	Subscribe(handler EventHandler, eventTypes ...string)
	Unsubscribe(handler EventHandler)
}

// EventBus is the message transport between the command side and the
// projections
type EventBus interface {
	EventPublisher
	EventSubscriber
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}
