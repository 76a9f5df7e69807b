package event

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/persona/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// ErrDeliveryInFlight is returned when the same event is already being
// handled by another delivery. The caller should retry later; the running
// delivery may still fail and release the key.
var ErrDeliveryInFlight = errors.New("delivery already in flight")

// DeliveryStats counts what an IdempotentHandler did with its deliveries
type DeliveryStats struct {
	Applied    int64 `json:"applied"`
	Duplicates int64 `json:"duplicates"`
	Deferred   int64 `json:"deferred"`
	Failed     int64 `json:"failed"`
}

// NamedHandler is implemented by handlers that want a stable name in
// idempotency keys. Two handlers sharing a store must have distinct names.
type NamedHandler interface {
	HandlerName() string
}

// IdempotentHandler applies each person version at most once per handler.
// The relay redelivers unacknowledged events, so a handler may see the same
// version again; the key "<handler>:<person id>@<version>" is marked before
// the wrapped handler runs and released when it fails, letting the next
// delivery retry. While a delivery runs, a concurrent one for the same key
// gets ErrDeliveryInFlight instead of being counted as a duplicate, so it is
// not acknowledged before the first outcome is known.
type IdempotentHandler struct {
	handler shared.EventHandler
	name    string
	store   shared.IdempotencyStore
	config  shared.IdempotencyConfig
	logger  *zap.Logger

	inflight sync.Map

	applied    atomic.Int64
	duplicates atomic.Int64
	deferred   atomic.Int64
	failed     atomic.Int64
}

// IdempotentHandlerOption configures an IdempotentHandler
type IdempotentHandlerOption func(*IdempotentHandler)

// WithIdempotencyConfig replaces shared.DefaultIdempotencyConfig
func WithIdempotencyConfig(config shared.IdempotencyConfig) IdempotentHandlerOption {
	return func(h *IdempotentHandler) {
		h.config = config
	}
}

// WithHandlerName overrides the name used in keys
func WithHandlerName(name string) IdempotentHandlerOption {
	return func(h *IdempotentHandler) {
		h.name = name
	}
}

// NewIdempotentHandler wraps handler with the store
func NewIdempotentHandler(handler shared.EventHandler, store shared.IdempotencyStore, logger *zap.Logger, opts ...IdempotentHandlerOption) *IdempotentHandler {
	h := &IdempotentHandler{
		handler: handler,
		store:   store,
		config:  shared.DefaultIdempotencyConfig(),
		logger:  logger,
	}
	if n, ok := handler.(NamedHandler); ok {
		h.name = n.HandlerName()
	} else {
		h.name = fmt.Sprintf("%T", handler)
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// EventTypes delegates to the wrapped handler
func (h *IdempotentHandler) EventTypes() []string {
	return h.handler.EventTypes()
}

// HandlerName returns the name used in keys
func (h *IdempotentHandler) HandlerName() string {
	return h.name
}

// Key returns the idempotency key of event for this handler
func (h *IdempotentHandler) Key(event shared.DomainEvent) string {
	return h.name + ":" + event.AggregateID().String() + "@" + strconv.FormatInt(event.AggregateVersion(), 10)
}

// Handle implements shared.EventHandler
func (h *IdempotentHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	if !h.config.Enabled {
		return h.handler.Handle(ctx, event)
	}

	key := h.Key(event)
	if _, busy := h.inflight.LoadOrStore(key, struct{}{}); busy {
		h.deferred.Add(1)
		h.logger.Debug("delivery deferred, same event in flight", zap.String("key", key))
		return fmt.Errorf("%s: %w", key, ErrDeliveryInFlight)
	}
	defer h.inflight.Delete(key)

	fresh, err := h.store.MarkProcessed(ctx, key, h.config.TTL)
	switch {
	case err != nil:
		// projections skip versions they already hold, so a lost store
		// only costs a redundant apply
		h.logger.Warn("idempotency store unavailable, applying anyway",
			zap.String("key", key), zap.Error(err))
	case !fresh:
		h.duplicates.Add(1)
		h.logger.Debug("duplicate delivery skipped", zap.String("key", key))
		return nil
	}

	if err := h.handler.Handle(ctx, event); err != nil {
		h.failed.Add(1)
		if ferr := h.store.Forget(ctx, key); ferr != nil {
			h.logger.Warn("idempotency key not released", zap.String("key", key), zap.Error(ferr))
		}
		return err
	}
	h.applied.Add(1)
	return nil
}

// Stats returns a snapshot of the delivery counters
func (h *IdempotentHandler) Stats() DeliveryStats {
	return DeliveryStats{
		Applied:    h.applied.Load(),
		Duplicates: h.duplicates.Load(),
		Deferred:   h.deferred.Load(),
		Failed:     h.failed.Load(),
	}
}

// Unwrap returns the wrapped handler
func (h *IdempotentHandler) Unwrap() shared.EventHandler {
	return h.handler
}

var _ shared.EventHandler = (*IdempotentHandler)(nil)
