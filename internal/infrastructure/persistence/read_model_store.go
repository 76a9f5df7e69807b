package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/persona/backend/internal/domain/readmodel"
	"github.com/persona/backend/internal/domain/shared"
	"github.com/persona/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormReadModelStore keeps the read models of one collection as JSON
// documents in the read_models table
type GormReadModelStore[M any] struct {
	db         *gorm.DB
	collection string
}

// NewGormReadModelStore creates a store for collection
func NewGormReadModelStore[M any](db *gorm.DB, collection string) *GormReadModelStore[M] {
	return &GormReadModelStore[M]{db: db, collection: collection}
}

// Collection returns the collection name
func (s *GormReadModelStore[M]) Collection() string {
	return s.collection
}

// Get returns the record for id
func (s *GormReadModelStore[M]) Get(ctx context.Context, id uuid.UUID) (readmodel.Record[M], error) {
	var doc models.ReadModelDocument
	err := s.db.WithContext(ctx).
		Where("collection = ? AND id = ?", s.collection, id).
		First(&doc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return readmodel.Record[M]{}, fmt.Errorf("%s %s: %w", s.collection, id, shared.ErrNotFound)
		}
		return readmodel.Record[M]{}, fmt.Errorf("failed to get %s %s: %w", s.collection, id, err)
	}
	return decodeDocument[M](doc)
}

// Put inserts or replaces the record
func (s *GormReadModelStore[M]) Put(ctx context.Context, rec readmodel.Record[M]) error {
	payload, err := json.Marshal(rec.Model)
	if err != nil {
		return fmt.Errorf("failed to encode %s %s: %w", s.collection, rec.ID, err)
	}
	doc := models.ReadModelDocument{
		Collection: s.collection,
		ID:         rec.ID,
		Version:    rec.Version,
		Payload:    payload,
		UpdatedAt:  rec.UpdatedAt.UTC(),
	}
	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "collection"}, {Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"version", "payload", "updated_at"}),
		}).
		Create(&doc).Error
	if err != nil {
		return fmt.Errorf("failed to put %s %s: %w", s.collection, rec.ID, err)
	}
	return nil
}

// Delete removes the record for id. Deleting an absent record is not an error.
func (s *GormReadModelStore[M]) Delete(ctx context.Context, id uuid.UUID) error {
	err := s.db.WithContext(ctx).
		Where("collection = ? AND id = ?", s.collection, id).
		Delete(&models.ReadModelDocument{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete %s %s: %w", s.collection, id, err)
	}
	return nil
}

// List returns the records for ids, or the whole collection when ids is
// empty, most recently updated first
func (s *GormReadModelStore[M]) List(ctx context.Context, ids ...uuid.UUID) ([]readmodel.Record[M], error) {
	query := s.db.WithContext(ctx).Where("collection = ?", s.collection)
	if len(ids) > 0 {
		query = query.Where("id IN ?", ids)
	}

	var docs []models.ReadModelDocument
	if err := query.Order("updated_at DESC").Order("id ASC").Find(&docs).Error; err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", s.collection, err)
	}

	out := make([]readmodel.Record[M], 0, len(docs))
	for _, doc := range docs {
		rec, err := decodeDocument[M](doc)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// Clear removes every record of the collection
func (s *GormReadModelStore[M]) Clear(ctx context.Context) error {
	err := s.db.WithContext(ctx).
		Where("collection = ?", s.collection).
		Delete(&models.ReadModelDocument{}).Error
	if err != nil {
		return fmt.Errorf("failed to clear %s: %w", s.collection, err)
	}
	return nil
}

func decodeDocument[M any](doc models.ReadModelDocument) (readmodel.Record[M], error) {
	var model M
	if err := json.Unmarshal(doc.Payload, &model); err != nil {
		return readmodel.Record[M]{}, fmt.Errorf("failed to decode %s %s: %w", doc.Collection, doc.ID, err)
	}
	return readmodel.Record[M]{
		ID:        doc.ID,
		Version:   doc.Version,
		Model:     model,
		UpdatedAt: doc.UpdatedAt.UTC(),
	}, nil
}
