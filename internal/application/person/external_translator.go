package person

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/persona/backend/internal/domain/person"
	"github.com/persona/backend/internal/domain/shared"
	"github.com/persona/backend/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// External event types understood out of the box
const (
	ExternalDeathNotice  = "registry.death_notice"
	ExternalNameChange   = "registry.name_change"
	ExternalRegistration = "registry.registration"
)

// externalNamespace derives command ids from external event ids so a
// redelivered notice decides into the same event ids
var externalNamespace = uuid.MustParse("0c7d3a52-8e41-4f6b-b1d2-5a9e63c4f870")

// ExternalEvent is a notification from another system about a person
type ExternalEvent struct {
	ID         string          `json:"id" binding:"required"`
	Source     string          `json:"source" binding:"required"`
	Type       string          `json:"type" binding:"required"`
	PersonID   uuid.UUID       `json:"person_id" binding:"required"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// Translation maps an external event to a command. The returned command's
// metadata is completed by the translator.
type Translation func(ExternalEvent) (person.Command, error)

// Submitter accepts commands
type Submitter interface {
	Submit(ctx context.Context, cmd person.Command) ([]person.Event, error)
}

// ExternalTranslator is the boundary where other systems' events become
// person commands
type ExternalTranslator struct {
	submitter Submitter
	logger    *zap.Logger

	mu           sync.RWMutex
	translations map[string]Translation
}

// NewExternalTranslator creates a translator with the registry mappings
// registered
func NewExternalTranslator(submitter Submitter, logger *zap.Logger) *ExternalTranslator {
	t := &ExternalTranslator{
		submitter:    submitter,
		logger:       logger,
		translations: make(map[string]Translation),
	}
	t.Register(ExternalDeathNotice, translateDeathNotice)
	t.Register(ExternalNameChange, translateNameChange)
	t.Register(ExternalRegistration, translateRegistration)
	return t
}

// Register adds or replaces the translation of eventType
func (t *ExternalTranslator) Register(eventType string, fn Translation) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.translations[eventType] = fn
}

// Types returns the external event types that can be translated
func (t *ExternalTranslator) Types() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	types := make([]string, 0, len(t.translations))
	for k := range t.translations {
		types = append(types, k)
	}
	sort.Strings(types)
	return types
}

// Translate maps ev to a command carrying the person id, a command id
// derived from the external id and an actor naming the source
func (t *ExternalTranslator) Translate(ev ExternalEvent) (person.Command, error) {
	if ev.ID == "" {
		return nil, shared.NewValidationError("id", "is required")
	}
	if ev.Source == "" {
		return nil, shared.NewValidationError("source", "is required")
	}
	if ev.PersonID == uuid.Nil {
		return nil, shared.NewValidationError("person_id", "is required")
	}

	t.mu.RLock()
	fn, ok := t.translations[ev.Type]
	t.mu.RUnlock()
	if !ok {
		return nil, shared.NewValidationError("type", fmt.Sprintf("no translation for %q", ev.Type))
	}

	cmd, err := fn(ev)
	if err != nil {
		return nil, err
	}
	meta := cmd.Metadata()
	meta.PersonID = ev.PersonID
	meta.CommandID = uuid.NewSHA1(externalNamespace, []byte(ev.Source+"/"+ev.ID))
	meta.Actor = ev.Source
	if meta.IssuedAt.IsZero() && !ev.OccurredAt.IsZero() {
		meta.IssuedAt = ev.OccurredAt.UTC()
	}
	return person.WithMetadata(cmd, meta)
}

// Handle translates ev and submits the resulting command
func (t *ExternalTranslator) Handle(ctx context.Context, ev ExternalEvent) ([]person.Event, error) {
	log := logger.WithLogger(ctx, t.logger).With(
		zap.String("external_id", ev.ID),
		zap.String("external_source", ev.Source),
		zap.String("external_type", ev.Type),
	)

	cmd, err := t.Translate(ev)
	if err != nil {
		log.Warn("external event not translated", zap.Error(err))
		return nil, err
	}
	events, err := t.submitter.Submit(ctx, cmd)
	if err != nil {
		return nil, err
	}
	log.Info("external event applied", zap.String("command", cmd.CommandType()))
	return events, nil
}

type deathNotice struct {
	DeathDate string `json:"death_date"`
	Reference string `json:"reference"`
}

func translateDeathNotice(ev ExternalEvent) (person.Command, error) {
	var n deathNotice
	if err := decodePayload(ev, &n); err != nil {
		return nil, err
	}
	date, err := time.Parse(time.DateOnly, n.DeathDate)
	if err != nil {
		return nil, shared.NewValidationError("payload.death_date", "must be a YYYY-MM-DD date")
	}
	return person.RecordDeath{DeathDate: date}, nil
}

type nameChange struct {
	LegalName string `json:"legal_name"`
}

func translateNameChange(ev ExternalEvent) (person.Command, error) {
	var n nameChange
	if err := decodePayload(ev, &n); err != nil {
		return nil, err
	}
	return person.UpdateName{LegalName: n.LegalName}, nil
}

type registration struct {
	LegalName string `json:"legal_name"`
	BirthDate string `json:"birth_date"`
}

func translateRegistration(ev ExternalEvent) (person.Command, error) {
	var r registration
	if err := decodePayload(ev, &r); err != nil {
		return nil, err
	}
	cmd := person.CreatePerson{LegalName: r.LegalName}
	if r.BirthDate != "" {
		date, err := time.Parse(time.DateOnly, r.BirthDate)
		if err != nil {
			return nil, shared.NewValidationError("payload.birth_date", "must be a YYYY-MM-DD date")
		}
		cmd.BirthDate = &date
	}
	return cmd, nil
}

func decodePayload(ev ExternalEvent, into any) error {
	if len(ev.Payload) == 0 {
		return shared.NewValidationError("payload", "is required")
	}
	if err := json.Unmarshal(ev.Payload, into); err != nil {
		return shared.NewValidationError("payload", err.Error())
	}
	return nil
}
