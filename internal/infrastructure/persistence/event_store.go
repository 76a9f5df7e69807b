package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/persona/backend/internal/domain/shared"
	"github.com/persona/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

const defaultReadBatch = 500

// EventCodec turns domain events into stored payloads and back
type EventCodec interface {
	Serialize(event shared.DomainEvent) ([]byte, error)
	Deserialize(eventType string, data []byte) (shared.DomainEvent, error)
}

// GormEventStore implements shared.EventStore on the person_events table
type GormEventStore struct {
	db    *gorm.DB
	codec EventCodec
	now   func() time.Time
}

// NewGormEventStore creates a new GORM-based event store
func NewGormEventStore(db *gorm.DB, codec EventCodec) *GormEventStore {
	return &GormEventStore{db: db, codec: codec, now: time.Now}
}

// Append stores events in one transaction. The version read inside the
// transaction and the unique (person_id, version) index both guard against
// concurrent writers.
func (s *GormEventStore) Append(ctx context.Context, aggregateID uuid.UUID, expectedVersion int64, events ...shared.DomainEvent) error {
	if len(events) == 0 {
		return nil
	}

	recordedAt := s.now().UTC()
	rows := make([]models.PersonEventModel, 0, len(events))
	for i, ev := range events {
		if err := checkSequence(aggregateID, expectedVersion, i, ev); err != nil {
			return err
		}
		payload, err := s.codec.Serialize(ev)
		if err != nil {
			return fmt.Errorf("failed to serialize event %s: %w", ev.EventID(), err)
		}
		rows = append(rows, models.PersonEventModel{
			EventID:       ev.EventID(),
			PersonID:      aggregateID,
			Version:       ev.AggregateVersion(),
			EventType:     ev.EventType(),
			AggregateType: ev.AggregateType(),
			SchemaVersion: schemaVersionOf(ev),
			Payload:       payload,
			Actor:         actorOf(ev),
			OccurredAt:    ev.OccurredAt().UTC(),
			RecordedAt:    recordedAt,
		})
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := currentVersion(tx, aggregateID)
		if err != nil {
			return err
		}
		if current != expectedVersion {
			return shared.NewConcurrencyConflictError(expectedVersion, current)
		}
		return tx.Create(&rows).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		actual, verr := s.Version(ctx, aggregateID)
		if verr != nil {
			actual = expectedVersion + 1
		}
		return shared.NewConcurrencyConflictError(expectedVersion, actual)
	}
	var conflict *shared.ConcurrencyConflictError
	if err != nil && !errors.As(err, &conflict) {
		return fmt.Errorf("failed to append events: %w", err)
	}
	return err
}

// Load returns the events of aggregateID in version order
func (s *GormEventStore) Load(ctx context.Context, aggregateID uuid.UUID) ([]shared.DomainEvent, error) {
	var rows []models.PersonEventModel
	err := s.db.WithContext(ctx).
		Where("person_id = ?", aggregateID).
		Order("version ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load events: %w", err)
	}

	events := make([]shared.DomainEvent, 0, len(rows))
	for i := range rows {
		ev, err := s.codec.Deserialize(rows[i].EventType, rows[i].Payload)
		if err != nil {
			return nil, fmt.Errorf("failed to decode event %s: %w", rows[i].EventID, err)
		}
		events = append(events, ev)
	}
	return events, nil
}

// Version returns the current version of aggregateID, 0 when it has no events
func (s *GormEventStore) Version(ctx context.Context, aggregateID uuid.UUID) (int64, error) {
	v, err := currentVersion(s.db.WithContext(ctx), aggregateID)
	if err != nil {
		return 0, err
	}
	return v, nil
}

// ReadAll returns events after the given global position
func (s *GormEventStore) ReadAll(ctx context.Context, after int64, limit int) ([]shared.RecordedEvent, error) {
	if limit <= 0 {
		limit = defaultReadBatch
	}
	var rows []models.PersonEventModel
	err := s.db.WithContext(ctx).
		Where("position > ?", after).
		Order("position ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}
	return s.toRecorded(rows)
}

// FindUnpublished returns events that are neither published nor dead and
// whose backoff has elapsed at the given time
func (s *GormEventStore) FindUnpublished(ctx context.Context, at time.Time, limit int) ([]shared.RecordedEvent, error) {
	if limit <= 0 {
		limit = defaultReadBatch
	}
	var rows []models.PersonEventModel
	err := s.db.WithContext(ctx).
		Where("published_at IS NULL AND publish_attempts < ?", shared.DefaultMaxPublishAttempts).
		Where("next_attempt_at IS NULL OR next_attempt_at <= ?", at.UTC()).
		Order("position ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find unpublished events: %w", err)
	}
	return s.toRecorded(rows)
}

// MarkPublished records successful publication of the given events
func (s *GormEventStore) MarkPublished(ctx context.Context, at time.Time, eventIDs ...uuid.UUID) error {
	if len(eventIDs) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).
		Model(&models.PersonEventModel{}).
		Where("event_id IN ?", eventIDs).
		Updates(map[string]any{
			"published_at":    at.UTC(),
			"last_error":      "",
			"next_attempt_at": nil,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to mark events published: %w", err)
	}
	return nil
}

// MarkPublishFailed records a failed attempt and schedules the next one
func (s *GormEventStore) MarkPublishFailed(ctx context.Context, eventID uuid.UUID, errMsg string, at time.Time) error {
	return s.updatePublication(ctx, eventID, func(p *shared.Publication) error {
		p.MarkFailed(errMsg, at.UTC())
		return nil
	})
}

// FindDead returns events that exhausted their publish attempts
func (s *GormEventStore) FindDead(ctx context.Context, limit int) ([]shared.RecordedEvent, error) {
	if limit <= 0 {
		limit = defaultReadBatch
	}
	var rows []models.PersonEventModel
	err := s.db.WithContext(ctx).
		Where("published_at IS NULL AND publish_attempts >= ?", shared.DefaultMaxPublishAttempts).
		Order("position ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find dead events: %w", err)
	}
	return s.toRecorded(rows)
}

// RetryDead resets the publish attempts of a dead event
func (s *GormEventStore) RetryDead(ctx context.Context, eventID uuid.UUID) error {
	return s.updatePublication(ctx, eventID, func(p *shared.Publication) error {
		return p.ResetForRetry()
	})
}

func (s *GormEventStore) updatePublication(ctx context.Context, eventID uuid.UUID, change func(*shared.Publication) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row models.PersonEventModel
		if err := tx.Where("event_id = ?", eventID).First(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("event %s: %w", eventID, shared.ErrNotFound)
			}
			return fmt.Errorf("failed to load event %s: %w", eventID, err)
		}

		pub := row.Publication()
		if err := change(&pub); err != nil {
			return err
		}
		row.SetPublication(pub)

		return tx.Model(&row).Updates(map[string]any{
			"publish_attempts": row.PublishAttempts,
			"last_error":       row.LastError,
			"next_attempt_at":  row.NextAttemptAt,
		}).Error
	})
}

func (s *GormEventStore) toRecorded(rows []models.PersonEventModel) ([]shared.RecordedEvent, error) {
	out := make([]shared.RecordedEvent, 0, len(rows))
	for i := range rows {
		ev, err := s.codec.Deserialize(rows[i].EventType, rows[i].Payload)
		if err != nil {
			return nil, fmt.Errorf("failed to decode event %s: %w", rows[i].EventID, err)
		}
		out = append(out, shared.RecordedEvent{
			Position:    rows[i].Position,
			Event:       ev,
			RecordedAt:  rows[i].RecordedAt.UTC(),
			Publication: rows[i].Publication(),
		})
	}
	return out, nil
}

func currentVersion(db *gorm.DB, aggregateID uuid.UUID) (int64, error) {
	var v int64
	err := db.Model(&models.PersonEventModel{}).
		Select("COALESCE(MAX(version), 0)").
		Where("person_id = ?", aggregateID).
		Scan(&v).Error
	if err != nil {
		return 0, fmt.Errorf("failed to read version of %s: %w", aggregateID, err)
	}
	return v, nil
}

// checkSequence verifies that the i-th event of a batch continues the
// aggregate's version sequence
func checkSequence(aggregateID uuid.UUID, expectedVersion int64, i int, ev shared.DomainEvent) error {
	if ev.AggregateID() != aggregateID {
		return fmt.Errorf("event %s belongs to aggregate %s, not %s", ev.EventID(), ev.AggregateID(), aggregateID)
	}
	if want := expectedVersion + int64(i) + 1; ev.AggregateVersion() != want {
		return fmt.Errorf("event %s has version %d, want %d", ev.EventID(), ev.AggregateVersion(), want)
	}
	return nil
}

func schemaVersionOf(ev shared.DomainEvent) int {
	if v, ok := ev.(shared.VersionedEvent); ok {
		return v.SchemaVersion()
	}
	return 1
}

func actorOf(ev shared.DomainEvent) string {
	if a, ok := ev.(interface{ Actor() string }); ok {
		return a.Actor()
	}
	return ""
}

var (
	_ shared.EventStore      = (*GormEventStore)(nil)
	_ shared.DeadLetterStore = (*GormEventStore)(nil)
)
