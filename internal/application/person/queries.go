package person

import (
	"time"

	"github.com/google/uuid"
	"github.com/persona/backend/internal/domain/person"
	"github.com/persona/backend/internal/domain/readmodel"
)

// Query kinds, used in metrics and spans
const (
	QueryKindSummary    = "summary"
	QueryKindSearch     = "search"
	QueryKindTimeline   = "timeline"
	QueryKindAttributes = "attributes"
	QueryKindCategory   = "category"
	QueryKindSimilarity = "similarity"
)

// Query paging limits
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Order is a sort direction
type Order string

// Order values
const (
	OrderAsc  Order = "asc"
	OrderDesc Order = "desc"
)

// SummaryFilter narrows a summary listing. Zero fields match everything.
type SummaryFilter struct {
	State  person.LifecycleState
	Active *bool
	// Name matches legal names containing it, ignoring case and accents
	Name string
}

// SummaryQuery lists person summaries, most recently changed first
type SummaryQuery struct {
	IDs      []uuid.UUID
	Filter   SummaryFilter
	Page     int
	PageSize int
}

// SearchQuery ranks persons by relevance to Text. Filters are exact
// matches on "state" or on an attribute type such as "identifying.birth_place".
type SearchQuery struct {
	Text         string
	Filters      map[string]string
	MinRelevance float64
	Limit        int
}

// DateRange is the half-open interval [From, Until). Nil bounds are open.
type DateRange struct {
	From  *time.Time
	Until *time.Time
}

// Contains reports whether t falls in the range
func (r DateRange) Contains(t time.Time) bool {
	if r.From != nil && t.Before(*r.From) {
		return false
	}
	if r.Until != nil && !t.Before(*r.Until) {
		return false
	}
	return true
}

// TimelineQuery returns the history of one person
type TimelineQuery struct {
	ID        uuid.UUID
	DateRange *DateRange
	Limit     int
	Order     Order
}

// AttributeQuery returns the attributes of one person valid at ValidAt
// (now when nil), or the full history when IncludeHistory is set. It is
// answered from the event log so any instant can be asked about.
type AttributeQuery struct {
	ID             uuid.UUID
	Type           *person.AttributeType
	Category       person.Category
	ValueKind      person.ValueKind
	ValidAt        *time.Time
	IncludeHistory bool
}

// CategoryQuery returns a materialized category view narrowed to ValidAt
type CategoryQuery struct {
	ID       uuid.UUID
	Category person.Category
	ValidAt  *time.Time
}

// SimilarityQuery scores two persons against each other
type SimilarityQuery struct {
	ID      uuid.UUID
	OtherID uuid.UUID
	At      *time.Time
}

// SearchResult is one ranked search hit
type SearchResult struct {
	Document  readmodel.SearchDocument `json:"document"`
	Relevance float64                  `json:"relevance"`
}

// AttributeView is the answer to an AttributeQuery
type AttributeView struct {
	PersonID   uuid.UUID          `json:"person_id"`
	Version    int64              `json:"version"`
	ValidAt    *time.Time         `json:"valid_at,omitempty"`
	Attributes []person.Attribute `json:"attributes"`
}

// SimilarityResult is the answer to a SimilarityQuery
type SimilarityResult struct {
	PersonID  uuid.UUID `json:"person_id"`
	OtherID   uuid.UUID `json:"other_id"`
	Score     float64   `json:"score"`
	Threshold float64   `json:"threshold"`
	Mergeable bool      `json:"mergeable"`
}
