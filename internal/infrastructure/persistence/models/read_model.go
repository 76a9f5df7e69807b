package models

import (
	"time"

	"github.com/google/uuid"
)

// ReadModelDocument stores one read model as a JSON document. Every
// collection (summary, search, timeline, category views) shares the table.
type ReadModelDocument struct {
	Collection string    `gorm:"type:varchar(100);primaryKey"`
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Version    int64     `gorm:"not null"`
	Payload    []byte    `gorm:"type:jsonb;not null"`
	UpdatedAt  time.Time `gorm:"not null;index;autoUpdateTime:false"`
}

// TableName returns the table name for GORM
func (ReadModelDocument) TableName() string {
	return "read_models"
}
