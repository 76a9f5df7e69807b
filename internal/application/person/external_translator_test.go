package person

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/persona/backend/internal/domain/person"
	"github.com/persona/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockSubmitter is a mock implementation of Submitter
type MockSubmitter struct {
	mock.Mock
}

func (m *MockSubmitter) Submit(ctx context.Context, cmd person.Command) ([]person.Event, error) {
	args := m.Called(ctx, cmd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]person.Event), args.Error(1)
}

func deathNoticeEvent(id uuid.UUID, date string) ExternalEvent {
	payload, _ := json.Marshal(map[string]string{"death_date": date, "reference": "CR-2024-118"})
	return ExternalEvent{
		ID:         "notice-118",
		Source:     "civil-registry",
		Type:       ExternalDeathNotice,
		PersonID:   id,
		OccurredAt: t0,
		Payload:    payload,
	}
}

func TestExternalTranslator_Translate(t *testing.T) {
	tr := NewExternalTranslator(new(MockSubmitter), zap.NewNop())
	id := uuid.New()

	cmd, err := tr.Translate(deathNoticeEvent(id, "2024-02-27"))
	require.NoError(t, err)
	death, ok := cmd.(person.RecordDeath)
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 2, 27, 0, 0, 0, 0, time.UTC), death.DeathDate)
	assert.Equal(t, id, death.PersonID)
	assert.Equal(t, "civil-registry", death.Actor)
	assert.Equal(t, t0, death.IssuedAt)

	again, err := tr.Translate(deathNoticeEvent(id, "2024-02-27"))
	require.NoError(t, err)
	assert.Equal(t, death.CommandID, again.Metadata().CommandID, "redelivered notices keep their command id")

	t.Run("invalid events", func(t *testing.T) {
		tests := []struct {
			name string
			mod  func(*ExternalEvent)
		}{
			{"missing id", func(e *ExternalEvent) { e.ID = "" }},
			{"missing source", func(e *ExternalEvent) { e.Source = "" }},
			{"missing person", func(e *ExternalEvent) { e.PersonID = uuid.Nil }},
			{"unknown type", func(e *ExternalEvent) { e.Type = "registry.tax_return" }},
			{"missing payload", func(e *ExternalEvent) { e.Payload = nil }},
			{"bad date", func(e *ExternalEvent) { e.Payload = json.RawMessage(`{"death_date":"27/02/2024"}`) }},
			{"malformed payload", func(e *ExternalEvent) { e.Payload = json.RawMessage(`{`) }},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				ev := deathNoticeEvent(id, "2024-02-27")
				tt.mod(&ev)
				_, err := tr.Translate(ev)
				assert.ErrorIs(t, err, shared.ErrValidation)
			})
		}
	})
}

func TestExternalTranslator_HandleSubmits(t *testing.T) {
	submitter := new(MockSubmitter)
	tr := NewExternalTranslator(submitter, zap.NewNop())
	id := uuid.New()

	submitter.On("Submit", mock.Anything, mock.MatchedBy(func(cmd person.Command) bool {
		d, ok := cmd.(person.RecordDeath)
		return ok && d.PersonID == id
	})).Return([]person.Event{}, nil).Once()

	_, err := tr.Handle(context.Background(), deathNoticeEvent(id, "2024-02-27"))
	require.NoError(t, err)
	submitter.AssertExpectations(t)

	_, err = tr.Handle(context.Background(), deathNoticeEvent(id, "yesterday"))
	assert.ErrorIs(t, err, shared.ErrValidation)
	submitter.AssertNumberOfCalls(t, "Submit", 1)
}

func TestExternalTranslator_EndToEnd(t *testing.T) {
	f := newFixture(t)
	tr := NewExternalTranslator(f.svc, zap.NewNop())
	ctx := context.Background()
	id := uuid.New()

	registration, _ := json.Marshal(map[string]string{"legal_name": "Alice Smith", "birth_date": "1950-04-02"})
	_, err := tr.Handle(ctx, ExternalEvent{
		ID: "reg-1", Source: "civil-registry", Type: ExternalRegistration,
		PersonID: id, OccurredAt: t0, Payload: registration,
	})
	require.NoError(t, err)

	notice := deathNoticeEvent(id, "2024-02-27")
	notice.OccurredAt = t0.Add(time.Hour)
	events, err := tr.Handle(ctx, notice)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, person.EventTypePersonDeceased, events[0].EventType())
	assert.Equal(t, "civil-registry", events[0].Actor())

	_, err = tr.Handle(ctx, notice)
	assert.ErrorIs(t, err, shared.ErrInvalidStateTransition, "a deceased person cannot die twice")

	assert.Equal(t, []string{ExternalDeathNotice, ExternalNameChange, ExternalRegistration}, tr.Types())
}
