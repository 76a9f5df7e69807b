package person

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/persona/backend/internal/domain/person"
	"github.com/persona/backend/internal/domain/readmodel"
	"github.com/persona/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newQueryService(t *testing.T, f *fixture) *QueryService {
	t.Helper()
	return NewQueryService(f.materialize(t), f.store, zap.NewNop(), WithQueryClock(f.clock.Now))
}

func TestQueryService_BirthDateHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.create(t, "Alice Smith")

	recorded := f.submit(t, person.RecordAttribute{
		CommandMeta: meta(id),
		Type:        person.BirthDate,
		Value:       person.NewDate(1990, time.May, 15),
		Source:      person.SourceDocumentVerified,
	})
	f.submit(t, person.UpdateAttribute{
		CommandMeta: meta(id),
		Type:        person.BirthDate,
		Value:       person.NewDate(1990, time.May, 16),
		Source:      person.SourceDocumentVerified,
	})
	q := newQueryService(t, f)
	birthDate := person.BirthDate

	current, err := q.Attributes(ctx, AttributeQuery{ID: id, Type: &birthDate})
	require.NoError(t, err)
	require.Len(t, current.Attributes, 1)
	assert.Equal(t, "1990-05-16", current.Attributes[0].Value.String())
	assert.Equal(t, int64(3), current.Version)

	recordedAt := recorded[0].OccurredAt()
	past, err := q.Attributes(ctx, AttributeQuery{ID: id, Type: &birthDate, ValidAt: &recordedAt})
	require.NoError(t, err)
	require.Len(t, past.Attributes, 1)
	assert.Equal(t, "1990-05-15", past.Attributes[0].Value.String())

	history, err := q.Attributes(ctx, AttributeQuery{ID: id, IncludeHistory: true})
	require.NoError(t, err)
	assert.Len(t, history.Attributes, 2)
	assert.Nil(t, history.ValidAt)
}

func TestQueryService_AttributeFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.create(t, "Alice Smith")
	height, err := person.NewMeasurement(decimal.NewFromInt(172), "cm")
	require.NoError(t, err)
	f.submit(t, person.RecordAttribute{CommandMeta: meta(id), Type: person.Height, Value: height, Source: person.SourceClinicalRecord})
	f.submit(t, person.RecordAttribute{CommandMeta: meta(id), Type: person.BirthDate, Value: person.NewDate(1990, time.May, 15), Source: person.SourceSelfReported})
	q := newQueryService(t, f)

	tests := []struct {
		name    string
		query   AttributeQuery
		want    int
		wantErr error
	}{
		{"all current", AttributeQuery{ID: id}, 2, nil},
		{"by category", AttributeQuery{ID: id, Category: person.CategoryPhysical}, 1, nil},
		{"by value kind", AttributeQuery{ID: id, ValueKind: person.ValueKindDate}, 1, nil},
		{"unknown category", AttributeQuery{ID: id, Category: "astrology"}, 0, shared.ErrValidation},
		{"unknown person", AttributeQuery{ID: uuid.New()}, 0, shared.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			view, err := q.Attributes(ctx, tt.query)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Len(t, view.Attributes, tt.want)
		})
	}

	t.Run("category view", func(t *testing.T) {
		view, err := q.Category(ctx, CategoryQuery{ID: id, Category: person.CategoryPhysical})
		require.NoError(t, err)
		require.Equal(t, 1, view.Attributes.Len())
		assert.Equal(t, person.Height, view.Attributes.All()[0].Type)

		_, err = q.Category(ctx, CategoryQuery{ID: id, Category: person.CategoryIdentifying})
		assert.ErrorIs(t, err, shared.ErrValidation)
		_, err = q.Category(ctx, CategoryQuery{ID: uuid.New(), Category: person.CategoryPhysical})
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}

func TestQueryService_Summaries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.create(t, "Alice Smith")
	bob := f.create(t, "Bob Smithson")
	carol := f.create(t, "Carol Jones")
	f.submit(t, person.DeactivatePerson{CommandMeta: meta(bob), Reason: "duplicate"})
	q := newQueryService(t, f)

	t.Run("most recently updated first", func(t *testing.T) {
		page, err := q.Summaries(ctx, SummaryQuery{})
		require.NoError(t, err)
		assert.Equal(t, int64(3), page.Total)
		require.Len(t, page.Items, 3)
		assert.Equal(t, []uuid.UUID{bob, carol, alice}, summaryIDs(page.Items))
	})

	t.Run("filters", func(t *testing.T) {
		inactive := false
		page, err := q.Summaries(ctx, SummaryQuery{Filter: SummaryFilter{Active: &inactive}})
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{bob}, summaryIDs(page.Items))

		page, err = q.Summaries(ctx, SummaryQuery{Filter: SummaryFilter{Name: "SMITH"}})
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{bob, alice}, summaryIDs(page.Items))

		page, err = q.Summaries(ctx, SummaryQuery{Filter: SummaryFilter{State: person.StateActive}})
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{carol, alice}, summaryIDs(page.Items))
	})

	t.Run("ids and paging", func(t *testing.T) {
		page, err := q.Summaries(ctx, SummaryQuery{IDs: []uuid.UUID{alice, carol}, Page: 2, PageSize: 1})
		require.NoError(t, err)
		assert.Equal(t, int64(2), page.Total)
		assert.Equal(t, 2, page.TotalPages)
		assert.Equal(t, []uuid.UUID{alice}, summaryIDs(page.Items))

		page, err = q.Summaries(ctx, SummaryQuery{Page: 9})
		require.NoError(t, err)
		assert.Empty(t, page.Items)
	})
}

func TestQueryService_Search(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.create(t, "Alice Smith")
	alicia := f.create(t, "Alicia Smithers")
	f.create(t, "Bob Jones")
	f.submit(t, person.RecordAttribute{
		CommandMeta: meta(alicia),
		Type:        person.BirthPlace,
		Value:       person.TextValue{Text: "Zürich"},
		Source:      person.SourceSelfReported,
	})
	q := newQueryService(t, f)

	results, err := q.Search(ctx, SearchQuery{Text: "smith"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, alice, results[0].Document.ID)
	assert.Equal(t, 1.0, results[0].Relevance)
	assert.Equal(t, alicia, results[1].Document.ID)
	assert.Equal(t, 0.5, results[1].Relevance)

	results, err = q.Search(ctx, SearchQuery{Text: "smith", MinRelevance: 0.9})
	require.NoError(t, err)
	assert.Len(t, results, 1)

	results, err = q.Search(ctx, SearchQuery{Filters: map[string]string{"identifying.birth_place": "zurich"}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, alicia, results[0].Document.ID)

	results, err = q.Search(ctx, SearchQuery{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, results, 1)

	_, err = q.Search(ctx, SearchQuery{MinRelevance: 2})
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestQueryService_Timeline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.create(t, "Alice Smith")
	renamed := f.submit(t, person.UpdateName{CommandMeta: meta(id), LegalName: "Alice Jones"})
	f.submit(t, person.DeactivatePerson{CommandMeta: meta(id), Reason: "moved abroad"})
	q := newQueryService(t, f)

	timeline, err := q.Timeline(ctx, TimelineQuery{ID: id})
	require.NoError(t, err)
	require.Len(t, timeline.Entries, 3)
	assert.Equal(t, "Name changed from Alice Smith to Alice Jones", timeline.Entries[1].Summary)

	timeline, err = q.Timeline(ctx, TimelineQuery{ID: id, Order: OrderDesc, Limit: 2})
	require.NoError(t, err)
	require.Len(t, timeline.Entries, 2)
	assert.Equal(t, int64(3), timeline.Entries[0].Version)
	assert.Equal(t, int64(2), timeline.Entries[1].Version)

	from := renamed[0].OccurredAt()
	timeline, err = q.Timeline(ctx, TimelineQuery{ID: id, DateRange: &DateRange{Until: &from}})
	require.NoError(t, err)
	require.Len(t, timeline.Entries, 1, "the range end is exclusive")
	assert.Equal(t, person.EventTypePersonCreated, timeline.Entries[0].EventType)

	_, err = q.Timeline(ctx, TimelineQuery{ID: id, Order: "sideways"})
	assert.ErrorIs(t, err, shared.ErrValidation)
	_, err = q.Timeline(ctx, TimelineQuery{ID: uuid.New()})
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestQueryService_Similarity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.create(t, "José Álvarez")
	b := f.create(t, "jose alvarez")
	q := newQueryService(t, f)

	result, err := q.Similarity(ctx, SimilarityQuery{ID: a, OtherID: b})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, result.Score, 1e-9)
	assert.True(t, result.Mergeable)
	assert.Equal(t, person.DefaultMergeThreshold, result.Threshold)

	_, err = q.Similarity(ctx, SimilarityQuery{ID: a, OtherID: a})
	assert.ErrorIs(t, err, shared.ErrValidation)
	_, err = q.Similarity(ctx, SimilarityQuery{ID: a, OtherID: uuid.New()})
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestQueryService_Execute(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, "Alice Smith")
	q := newQueryService(t, f)

	got, err := q.Execute(context.Background(), TimelineQuery{ID: id})
	require.NoError(t, err)
	assert.IsType(t, readmodel.Timeline{}, got)

	_, err = q.Execute(context.Background(), "not a query")
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestDateRange_Contains(t *testing.T) {
	from, until := t0, t0.Add(time.Hour)
	r := DateRange{From: &from, Until: &until}
	assert.True(t, r.Contains(t0))
	assert.True(t, r.Contains(t0.Add(59*time.Minute)))
	assert.False(t, r.Contains(t0.Add(time.Hour)))
	assert.False(t, r.Contains(t0.Add(-time.Second)))
	assert.True(t, DateRange{}.Contains(t0))
}

func summaryIDs(items []readmodel.PersonSummary) []uuid.UUID {
	ids := make([]uuid.UUID, len(items))
	for i, s := range items {
		ids[i] = s.ID
	}
	return ids
}
