package event

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/persona/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// DeadLetterService lets operators inspect and requeue events the relay
// gave up publishing
type DeadLetterService struct {
	store  shared.DeadLetterStore
	logger *zap.Logger
}

// NewDeadLetterService creates a new dead letter service
func NewDeadLetterService(
	store shared.DeadLetterStore,
	logger *zap.Logger,
) *DeadLetterService {
	return &DeadLetterService{
		store:  store,
		logger: logger,
	}
}

// DeadEventDTO represents a dead event data transfer object
type DeadEventDTO struct {
	Position         int64     `json:"position"`
	EventID          uuid.UUID `json:"event_id"`
	EventType        string    `json:"event_type"`
	PersonID         uuid.UUID `json:"person_id"`
	AggregateVersion int64     `json:"aggregate_version"`
	Attempts         int       `json:"attempts"`
	LastError        string    `json:"last_error,omitempty"`
	OccurredAt       time.Time `json:"occurred_at"`
	RecordedAt       time.Time `json:"recorded_at"`
}

// DeadLetterFilter limits a dead letter listing
type DeadLetterFilter struct {
	Limit int `form:"limit,omitempty" binding:"omitempty,min=1,max=500"`
}

// retryBatch is how many dead events RetryAll requeues per round
const retryBatch = 100

// ListDead returns dead events in append order
func (s *DeadLetterService) ListDead(ctx context.Context, filter DeadLetterFilter) ([]DeadEventDTO, error) {
	limit := filter.Limit
	if limit < 1 {
		limit = 50
	}
	records, err := s.store.FindDead(ctx, limit)
	if err != nil {
		s.logger.Error("Failed to find dead events", zap.Error(err))
		return nil, err
	}

	dtos := make([]DeadEventDTO, len(records))
	for i, rec := range records {
		dtos[i] = toDeadEventDTO(rec)
	}
	return dtos, nil
}

// Retry makes one dead event due for publishing again
func (s *DeadLetterService) Retry(ctx context.Context, eventID uuid.UUID) error {
	if err := s.store.RetryDead(ctx, eventID); err != nil {
		if !errors.Is(err, shared.ErrNotFound) && !errors.Is(err, shared.ErrNotDead) {
			s.logger.Error("Failed to retry dead event", zap.Error(err), zap.String("event_id", eventID.String()))
		}
		return err
	}
	s.logger.Info("Dead event reset for retry", zap.String("event_id", eventID.String()))
	return nil
}

// RetryAll requeues every dead event and returns how many were reset
func (s *DeadLetterService) RetryAll(ctx context.Context) (int, error) {
	count := 0
	for {
		records, err := s.store.FindDead(ctx, retryBatch)
		if err != nil {
			s.logger.Error("Failed to find dead events", zap.Error(err))
			return count, err
		}
		if len(records) == 0 {
			break
		}

		reset := 0
		for _, rec := range records {
			if err := s.store.RetryDead(ctx, rec.Event.EventID()); err != nil {
				s.logger.Error("Failed to retry dead event", zap.Error(err), zap.String("event_id", rec.Event.EventID().String()))
				continue
			}
			reset++
		}
		count += reset
		// Every event of this round failed to reset; stop rather than spin.
		if reset == 0 || len(records) < retryBatch {
			break
		}
	}

	s.logger.Info("Retried dead events", zap.Int("count", count))
	return count, nil
}

func toDeadEventDTO(rec shared.RecordedEvent) DeadEventDTO {
	return DeadEventDTO{
		Position:         rec.Position,
		EventID:          rec.Event.EventID(),
		EventType:        rec.Event.EventType(),
		PersonID:         rec.Event.AggregateID(),
		AggregateVersion: rec.Event.AggregateVersion(),
		Attempts:         rec.Publication.Attempts,
		LastError:        rec.Publication.LastError,
		OccurredAt:       rec.Event.OccurredAt(),
		RecordedAt:       rec.RecordedAt,
	}
}
