package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/persona/backend/internal/domain/shared"
)

// PersonEventModel is one row of the append-only person event log.
// Position orders events globally; (person_id, version) orders them per person.
type PersonEventModel struct {
	Position        int64      `gorm:"primaryKey;autoIncrement"`
	EventID         uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_person_events_event_id"`
	PersonID        uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_person_events_person_version,priority:1"`
	Version         int64      `gorm:"not null;uniqueIndex:idx_person_events_person_version,priority:2"`
	EventType       string     `gorm:"type:varchar(100);not null"`
	AggregateType   string     `gorm:"type:varchar(100);not null"`
	SchemaVersion   int        `gorm:"not null;default:1"`
	Payload         []byte     `gorm:"type:jsonb;not null"`
	Actor           string     `gorm:"type:varchar(255)"`
	OccurredAt      time.Time  `gorm:"not null"`
	RecordedAt      time.Time  `gorm:"not null"`
	PublishedAt     *time.Time `gorm:"index:idx_person_events_unpublished,priority:1"`
	PublishAttempts int        `gorm:"not null;default:0"`
	LastError       string     `gorm:"type:text"`
	NextAttemptAt   *time.Time `gorm:"index:idx_person_events_unpublished,priority:2"`
}

// TableName returns the table name for GORM
func (PersonEventModel) TableName() string {
	return "person_events"
}

// Publication returns the delivery state of the row
func (m *PersonEventModel) Publication() shared.Publication {
	return shared.Publication{
		PublishedAt:   m.PublishedAt,
		Attempts:      m.PublishAttempts,
		LastError:     m.LastError,
		NextAttemptAt: m.NextAttemptAt,
	}
}

// SetPublication copies delivery state onto the row
func (m *PersonEventModel) SetPublication(p shared.Publication) {
	m.PublishedAt = p.PublishedAt
	m.PublishAttempts = p.Attempts
	m.LastError = p.LastError
	m.NextAttemptAt = p.NextAttemptAt
}
