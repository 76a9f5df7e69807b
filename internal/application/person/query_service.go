package person

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/persona/backend/internal/domain/person"
	"github.com/persona/backend/internal/domain/readmodel"
	"github.com/persona/backend/internal/domain/shared"
	"github.com/persona/backend/internal/infrastructure/logger"
	"github.com/persona/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// QueryService is the read side. Listing queries are served from the read
// models; attribute and similarity queries replay the event log.
type QueryService struct {
	stores    readmodel.Stores
	events    shared.EventStore
	threshold float64
	metrics   *telemetry.PersonMetrics
	logger    *zap.Logger
	now       func() time.Time
}

// QueryServiceOption configures a QueryService
type QueryServiceOption func(*QueryService)

// WithQueryMetrics records query metrics
func WithQueryMetrics(m *telemetry.PersonMetrics) QueryServiceOption {
	return func(s *QueryService) {
		s.metrics = m
	}
}

// WithQueryClock overrides the clock used for "now"
func WithQueryClock(now func() time.Time) QueryServiceOption {
	return func(s *QueryService) {
		s.now = now
	}
}

// WithSimilarityThreshold sets the score reported as mergeable
func WithSimilarityThreshold(threshold float64) QueryServiceOption {
	return func(s *QueryService) {
		s.threshold = threshold
	}
}

// NewQueryService creates a new QueryService
func NewQueryService(stores readmodel.Stores, events shared.EventStore, logger *zap.Logger, opts ...QueryServiceOption) *QueryService {
	s := &QueryService{
		stores:    stores,
		events:    events,
		threshold: person.DefaultMergeThreshold,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Execute runs any query spec and returns its typed result
func (s *QueryService) Execute(ctx context.Context, spec any) (any, error) {
	switch q := spec.(type) {
	case SummaryQuery:
		return s.Summaries(ctx, q)
	case SearchQuery:
		return s.Search(ctx, q)
	case TimelineQuery:
		return s.Timeline(ctx, q)
	case AttributeQuery:
		return s.Attributes(ctx, q)
	case CategoryQuery:
		return s.Category(ctx, q)
	case SimilarityQuery:
		return s.Similarity(ctx, q)
	}
	return nil, shared.NewValidationError("query", fmt.Sprintf("unsupported query %T", spec))
}

// Summaries lists person summaries, most recently updated first
func (s *QueryService) Summaries(ctx context.Context, q SummaryQuery) (shared.Paginated[readmodel.PersonSummary], error) {
	var result shared.Paginated[readmodel.PersonSummary]
	err := s.observe(ctx, QueryKindSummary, func(ctx context.Context) error {
		records, err := s.stores.Summary.List(ctx, q.IDs...)
		if err != nil {
			return fmt.Errorf("listing summaries: %w", err)
		}
		name := person.FoldName(q.Filter.Name)
		matched := make([]readmodel.PersonSummary, 0, len(records))
		for _, rec := range records {
			m := rec.Model
			if q.Filter.State != "" && m.State != q.Filter.State {
				continue
			}
			if q.Filter.Active != nil && m.Active != *q.Filter.Active {
				continue
			}
			if name != "" && !strings.Contains(person.FoldName(m.LegalName), name) {
				continue
			}
			matched = append(matched, m)
		}

		result = shared.PageOf(matched, shared.PageRequest{Page: q.Page, PageSize: q.PageSize})
		return nil
	})
	return result, err
}

// Search ranks persons by relevance to the query text
func (s *QueryService) Search(ctx context.Context, q SearchQuery) ([]SearchResult, error) {
	var results []SearchResult
	err := s.observe(ctx, QueryKindSearch, func(ctx context.Context) error {
		if q.MinRelevance < 0 || q.MinRelevance > 1 {
			return shared.NewValidationError("min_relevance", "must be between 0 and 1")
		}
		limit := q.Limit
		if limit <= 0 {
			limit = DefaultPageSize
		}
		limit = min(limit, MaxPageSize)

		records, err := s.stores.Search.List(ctx)
		if err != nil {
			return fmt.Errorf("listing search documents: %w", err)
		}
		results = make([]SearchResult, 0, len(records))
		for _, rec := range records {
			doc := rec.Model
			if !doc.Matches(q.Filters) {
				continue
			}
			relevance := doc.Relevance(q.Text)
			if relevance == 0 || relevance < q.MinRelevance {
				continue
			}
			results = append(results, SearchResult{Document: doc, Relevance: relevance})
		}
		sort.SliceStable(results, func(i, j int) bool {
			a, b := results[i], results[j]
			if a.Relevance != b.Relevance {
				return a.Relevance > b.Relevance
			}
			if a.Document.LegalName != b.Document.LegalName {
				return a.Document.LegalName < b.Document.LegalName
			}
			return a.Document.ID.String() < b.Document.ID.String()
		})
		if len(results) > limit {
			results = results[:limit]
		}
		return nil
	})
	return results, err
}

// Timeline returns the history of one person
func (s *QueryService) Timeline(ctx context.Context, q TimelineQuery) (readmodel.Timeline, error) {
	var timeline readmodel.Timeline
	err := s.observe(ctx, QueryKindTimeline, func(ctx context.Context) error {
		switch q.Order {
		case "", OrderAsc, OrderDesc:
		default:
			return shared.NewValidationError("order", "must be asc or desc")
		}
		rec, err := s.stores.Timeline.Get(ctx, q.ID)
		if err != nil {
			return notFoundAs(err, q.ID)
		}

		entries := make([]readmodel.TimelineEntry, 0, len(rec.Model.Entries))
		for _, e := range rec.Model.Entries {
			if q.DateRange != nil && !q.DateRange.Contains(e.OccurredAt) {
				continue
			}
			entries = append(entries, e)
		}
		sort.SliceStable(entries, func(i, j int) bool {
			if q.Order == OrderDesc {
				return entries[i].Version > entries[j].Version
			}
			return entries[i].Version < entries[j].Version
		})
		if q.Limit > 0 && len(entries) > q.Limit {
			entries = entries[:q.Limit]
		}
		timeline = readmodel.Timeline{PersonID: rec.Model.PersonID, Entries: entries}
		return nil
	})
	return timeline, err
}

// Attributes answers a temporal attribute query by replaying the person
func (s *QueryService) Attributes(ctx context.Context, q AttributeQuery) (AttributeView, error) {
	var view AttributeView
	err := s.observe(ctx, QueryKindAttributes, func(ctx context.Context) error {
		if q.Category != "" && !q.Category.IsValid() {
			return shared.NewValidationError("category", fmt.Sprintf("unknown category %q", q.Category))
		}
		p, err := s.load(ctx, q.ID)
		if err != nil {
			return err
		}

		attrs := p.Attributes
		view = AttributeView{PersonID: p.ID, Version: p.Version}
		if !q.IncludeHistory {
			at := s.now().UTC()
			if q.ValidAt != nil {
				at = *q.ValidAt
			}
			attrs = attrs.ValidAt(at)
			view.ValidAt = &at
		}
		if q.Type != nil {
			attrs = attrs.OfType(*q.Type)
		}
		if q.Category != "" {
			attrs = attrs.InCategory(q.Category)
		}
		if q.ValueKind != "" {
			attrs = attrs.Filter(func(a person.Attribute) bool { return a.Value.Kind() == q.ValueKind })
		}
		view.Attributes = attrs.All()
		return nil
	})
	return view, err
}

// Category returns a materialized category view narrowed to the facts
// valid at the requested instant
func (s *QueryService) Category(ctx context.Context, q CategoryQuery) (readmodel.CategoryView, error) {
	var view readmodel.CategoryView
	err := s.observe(ctx, QueryKindCategory, func(ctx context.Context) error {
		store, ok := s.stores.Categories[q.Category]
		if !ok {
			return shared.NewValidationError("category", fmt.Sprintf("no view is kept for category %q", q.Category))
		}
		rec, err := store.Get(ctx, q.ID)
		if err != nil {
			return notFoundAs(err, q.ID)
		}
		at := s.now().UTC()
		if q.ValidAt != nil {
			at = *q.ValidAt
		}
		view = rec.Model
		view.Attributes = view.Attributes.ValidAt(at)
		return nil
	})
	return view, err
}

// Similarity scores two persons with the disambiguation rules used by merges
func (s *QueryService) Similarity(ctx context.Context, q SimilarityQuery) (SimilarityResult, error) {
	var result SimilarityResult
	err := s.observe(ctx, QueryKindSimilarity, func(ctx context.Context) error {
		if q.ID == q.OtherID {
			return shared.NewValidationError("other_id", "must differ from id")
		}
		a, err := s.load(ctx, q.ID)
		if err != nil {
			return err
		}
		b, err := s.load(ctx, q.OtherID)
		if err != nil {
			return err
		}
		at := s.now().UTC()
		if q.At != nil {
			at = *q.At
		}
		score := person.Similarity(a, b, at)
		result = SimilarityResult{
			PersonID:  a.ID,
			OtherID:   b.ID,
			Score:     score,
			Threshold: s.threshold,
			Mergeable: score >= s.threshold,
		}
		return nil
	})
	return result, err
}

func (s *QueryService) load(ctx context.Context, id uuid.UUID) (person.Person, error) {
	p, err := LoadPerson(ctx, s.events, id)
	if err != nil {
		return person.Person{}, err
	}
	if !p.Exists() {
		return person.Person{}, shared.NewNotFoundError(id)
	}
	return p, nil
}

// observe wraps a query with a span, metrics and logging
func (s *QueryService) observe(ctx context.Context, kind string, fn func(context.Context) error) error {
	ctx, span := telemetry.StartServiceSpan(ctx, "PersonQueryService", kind)
	defer span.End()

	start := s.now()
	err := fn(ctx)
	elapsed := s.now().Sub(start)

	switch {
	case err == nil:
		telemetry.SetOK(span)
		s.metrics.RecordQuery(ctx, kind, telemetry.OutcomeSuccess, elapsed)
	case isRejection(err):
		telemetry.RecordRejection(span, ErrorCode(err), err)
		s.metrics.RecordQuery(ctx, kind, telemetry.OutcomeRejected, elapsed)
	default:
		telemetry.RecordError(span, err)
		s.metrics.RecordQuery(ctx, kind, telemetry.OutcomeError, elapsed)
		logger.WithLogger(ctx, s.logger).Error("query failed", zap.String("query", kind), zap.Error(err))
	}
	return err
}

// notFoundAs turns a missing read model into a NotFoundError for id
func notFoundAs(err error, id uuid.UUID) error {
	if errors.Is(err, shared.ErrNotFound) {
		return shared.NewNotFoundError(id)
	}
	return err
}
