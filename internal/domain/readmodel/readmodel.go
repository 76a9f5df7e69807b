// Package readmodel holds the query-side views of person records and the
// pure projections that build them from person events.
package readmodel

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/persona/backend/internal/domain/person"
)

// Projection folds an event into a read model. A nil model means absent.
// Projections do no I/O; events a projection does not care about return
// current unchanged.
type Projection[M any] func(current *M, e person.Event) *M

// Collection names used by read model stores
const (
	CollectionSummary  = "person_summary"
	CollectionSearch   = "person_search"
	CollectionTimeline = "person_timeline"
)

// CategoryCollection returns the collection name of a category view
func CategoryCollection(c person.Category) string {
	return "person_category_" + string(c)
}

// Record is a stored read model together with the last event version folded into it
type Record[M any] struct {
	ID        uuid.UUID
	Version   int64
	Model     M
	UpdatedAt time.Time
}

// Store persists read models of one collection
type Store[M any] interface {
	// Get returns shared.ErrNotFound when no record exists
	Get(ctx context.Context, id uuid.UUID) (Record[M], error)
	Put(ctx context.Context, rec Record[M]) error
	Delete(ctx context.Context, id uuid.UUID) error
	// List returns the records for ids, or every record when ids is empty
	List(ctx context.Context, ids ...uuid.UUID) ([]Record[M], error)
	// Clear removes every record of the collection
	Clear(ctx context.Context) error
}

// Stores groups the read model stores of every person view. Categories
// holds one store per category that has a materialized view.
type Stores struct {
	Summary    Store[PersonSummary]
	Search     Store[SearchDocument]
	Timeline   Store[Timeline]
	Categories map[person.Category]Store[CategoryView]
}

// MaterializedCategories are the categories that get a CategoryView
var MaterializedCategories = []person.Category{person.CategoryHealthcare, person.CategoryPhysical}
