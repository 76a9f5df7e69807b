package handler

import (
	"net/http"
	"testing"

	"github.com/google/uuid"
	apperson "github.com/persona/backend/internal/application/person"
	"github.com/persona/backend/internal/domain/person"
	"github.com/persona/backend/internal/domain/readmodel"
	"github.com/persona/backend/internal/interfaces/http/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExternalEventHandler_Receive(t *testing.T) {
	f := newAPIFixture(t)
	id := uuid.New()

	registration := map[string]any{
		"id":          "reg-2024-0001",
		"source":      "civil-registry",
		"type":        apperson.ExternalRegistration,
		"person_id":   id,
		"occurred_at": "2024-03-01T09:00:00Z",
		"payload":     map[string]any{"legal_name": "Alice Smith", "birth_date": "1990-04-12"},
	}
	w := do(t, f.engine, http.MethodPost, "/external-events", registration)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decodeData[CommandResponse](t, w)
	assert.Equal(t, id, resp.PersonID)
	assert.Equal(t, int64(1), resp.Version)
	assert.Equal(t, `"1"`, w.Header().Get("ETag"))

	w = do(t, f.engine, http.MethodPost, "/external-events", map[string]any{
		"id":        "death-77",
		"source":    "civil-registry",
		"type":      apperson.ExternalDeathNotice,
		"person_id": id,
		"payload":   map[string]any{"death_date": "2024-02-20"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, person.EventTypePersonDeceased, decodeData[CommandResponse](t, w).Events[0].EventType)

	w = do(t, f.engine, http.MethodGet, "/persons/"+id.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, person.StateDeceased, decodeData[readmodel.PersonSummary](t, w).State)
}

func TestExternalEventHandler_Rejects(t *testing.T) {
	f := newAPIFixture(t)

	tests := []struct {
		name string
		body map[string]any
		code string
	}{
		{
			name: "missing source",
			body: map[string]any{"id": "x-1", "type": apperson.ExternalNameChange, "person_id": uuid.New()},
			code: dto.ErrCodeValidation,
		},
		{
			name: "unknown type",
			body: map[string]any{
				"id": "x-2", "source": "tax-office", "type": "tax.assessment", "person_id": uuid.New(),
				"payload": map[string]any{},
			},
			code: dto.ErrCodeValidation,
		},
		{
			name: "bad payload date",
			body: map[string]any{
				"id": "x-3", "source": "civil-registry", "type": apperson.ExternalDeathNotice, "person_id": uuid.New(),
				"payload": map[string]any{"death_date": "last tuesday"},
			},
			code: dto.ErrCodeValidation,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, f.engine, http.MethodPost, "/external-events", tt.body)
			require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			assert.Equal(t, tt.code, decode(t, w).Error.Code)
		})
	}

	t.Run("unknown person", func(t *testing.T) {
		w := do(t, f.engine, http.MethodPost, "/external-events", map[string]any{
			"id": "x-4", "source": "civil-registry", "type": apperson.ExternalNameChange, "person_id": uuid.New(),
			"payload": map[string]any{"legal_name": "Alice Jones"},
		})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestExternalEventHandler_Types(t *testing.T) {
	f := newAPIFixture(t)

	w := do(t, f.engine, http.MethodGet, "/external-events/types", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{
		apperson.ExternalDeathNotice,
		apperson.ExternalNameChange,
		apperson.ExternalRegistration,
	}, decodeData[[]string](t, w))
}
