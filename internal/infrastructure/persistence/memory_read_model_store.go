package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/persona/backend/internal/domain/readmodel"
	"github.com/persona/backend/internal/domain/shared"
)

type memoryDocument struct {
	version   int64
	payload   []byte
	updatedAt time.Time
}

// MemoryReadModelStore keeps read models in memory. Models are stored as
// JSON so callers never share slices or maps with the store.
type MemoryReadModelStore[M any] struct {
	mu         sync.RWMutex
	collection string
	docs       map[uuid.UUID]memoryDocument
}

// NewMemoryReadModelStore creates an empty store for collection
func NewMemoryReadModelStore[M any](collection string) *MemoryReadModelStore[M] {
	return &MemoryReadModelStore[M]{collection: collection, docs: make(map[uuid.UUID]memoryDocument)}
}

// Collection returns the collection name
func (s *MemoryReadModelStore[M]) Collection() string {
	return s.collection
}

// Get returns the record for id
func (s *MemoryReadModelStore[M]) Get(_ context.Context, id uuid.UUID) (readmodel.Record[M], error) {
	s.mu.RLock()
	doc, ok := s.docs[id]
	s.mu.RUnlock()
	if !ok {
		return readmodel.Record[M]{}, fmt.Errorf("%s %s: %w", s.collection, id, shared.ErrNotFound)
	}
	return s.decode(id, doc)
}

// Put inserts or replaces the record
func (s *MemoryReadModelStore[M]) Put(_ context.Context, rec readmodel.Record[M]) error {
	payload, err := json.Marshal(rec.Model)
	if err != nil {
		return fmt.Errorf("failed to encode %s %s: %w", s.collection, rec.ID, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[rec.ID] = memoryDocument{version: rec.Version, payload: payload, updatedAt: rec.UpdatedAt.UTC()}
	return nil
}

// Delete removes the record for id
func (s *MemoryReadModelStore[M]) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, id)
	return nil
}

// List returns the records for ids, or all records when ids is empty,
// most recently updated first
func (s *MemoryReadModelStore[M]) List(_ context.Context, ids ...uuid.UUID) ([]readmodel.Record[M], error) {
	s.mu.RLock()
	selected := make(map[uuid.UUID]memoryDocument, len(s.docs))
	if len(ids) == 0 {
		for id, doc := range s.docs {
			selected[id] = doc
		}
	} else {
		for _, id := range ids {
			if doc, ok := s.docs[id]; ok {
				selected[id] = doc
			}
		}
	}
	s.mu.RUnlock()

	out := make([]readmodel.Record[M], 0, len(selected))
	for id, doc := range selected {
		rec, err := s.decode(id, doc)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

// Clear removes every record
func (s *MemoryReadModelStore[M]) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = make(map[uuid.UUID]memoryDocument)
	return nil
}

func (s *MemoryReadModelStore[M]) decode(id uuid.UUID, doc memoryDocument) (readmodel.Record[M], error) {
	var model M
	if err := json.Unmarshal(doc.payload, &model); err != nil {
		return readmodel.Record[M]{}, fmt.Errorf("failed to decode %s %s: %w", s.collection, id, err)
	}
	return readmodel.Record[M]{ID: id, Version: doc.version, Model: model, UpdatedAt: doc.updatedAt}, nil
}
