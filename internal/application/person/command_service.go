package person

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/persona/backend/internal/domain/person"
	"github.com/persona/backend/internal/domain/shared"
	"github.com/persona/backend/internal/infrastructure/logger"
	"github.com/persona/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// CommandService is the write side: it loads a person from the event
// store, lets the decider turn a command into events, appends them and
// publishes them. Commands for one person run one at a time.
type CommandService struct {
	store   shared.EventStore
	bus     shared.EventPublisher
	decider *person.Decider
	locker  *KeyedLocker
	metrics *telemetry.PersonMetrics
	logger  *zap.Logger
	now     func() time.Time
}

// CommandServiceOption configures a CommandService
type CommandServiceOption func(*CommandService)

// WithPersonMetrics records command metrics
func WithPersonMetrics(m *telemetry.PersonMetrics) CommandServiceOption {
	return func(s *CommandService) {
		s.metrics = m
	}
}

// WithClock overrides the clock used to stamp commands
func WithClock(now func() time.Time) CommandServiceOption {
	return func(s *CommandService) {
		s.now = now
	}
}

// WithLocker shares a locker between services
func WithLocker(l *KeyedLocker) CommandServiceOption {
	return func(s *CommandService) {
		s.locker = l
	}
}

// NewCommandService creates a new CommandService
func NewCommandService(
	store shared.EventStore,
	bus shared.EventPublisher,
	decider *person.Decider,
	logger *zap.Logger,
	opts ...CommandServiceOption,
) *CommandService {
	s := &CommandService{
		store:   store,
		bus:     bus,
		decider: decider,
		locker:  NewKeyedLocker(),
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Decider returns the decider commands are handled with
func (s *CommandService) Decider() *person.Decider {
	return s.decider
}

// Submit handles cmd and returns the events it produced. A rejected
// command returns a domain error and stores nothing. Once events are
// appended Submit succeeds even if publishing fails; the relay delivers
// them later.
func (s *CommandService) Submit(ctx context.Context, cmd person.Command) ([]person.Event, error) {
	if cmd == nil {
		return nil, shared.NewValidationError("command", "must not be empty")
	}
	cmd, err := s.stamp(ctx, cmd)
	if err != nil {
		return nil, err
	}
	meta := cmd.Metadata()
	if meta.PersonID == uuid.Nil {
		return nil, shared.NewValidationError("person_id", "is required")
	}

	ctx = logger.WithPersonID(ctx, meta.PersonID.String())
	ctx, span := telemetry.StartServiceSpan(ctx, "PersonCommandService", "Submit",
		telemetry.SpanPersonID.String(meta.PersonID.String()),
		telemetry.SpanCommandType.String(cmd.CommandType()),
		telemetry.SpanCommandID.String(meta.CommandID.String()),
	)
	defer span.End()
	if meta.ExpectedVersion != nil {
		span.SetAttributes(telemetry.SpanExpectedVersion.Int64(*meta.ExpectedVersion))
	}

	start := s.now()
	var events []person.Event
	telemetry.WithProfilingLabels(ctx, telemetry.CommandLabels(cmd.CommandType()), func(ctx context.Context) {
		events, err = s.submit(ctx, cmd)
	})

	log := logger.WithLogger(ctx, s.logger).With(
		zap.String("command", cmd.CommandType()),
		zap.String("command_id", meta.CommandID.String()),
	)
	elapsed := s.now().Sub(start)
	switch {
	case err == nil:
		telemetry.SetOK(span)
		span.SetAttributes(telemetry.SpanEventCount.Int(len(events)))
		s.metrics.RecordCommand(ctx, cmd.CommandType(), telemetry.OutcomeSuccess, "", elapsed)
		log.Info("command accepted",
			zap.Int("events", len(events)),
			zap.Int64("version", events[len(events)-1].AggregateVersion()),
		)
	case isRejection(err):
		telemetry.RecordRejection(span, ErrorCode(err), err)
		s.metrics.RecordCommand(ctx, cmd.CommandType(), telemetry.OutcomeRejected, ErrorCode(err), elapsed)
		log.Warn("command rejected", zap.String("error_code", ErrorCode(err)), zap.Error(err))
	default:
		telemetry.RecordError(span, err)
		s.metrics.RecordCommand(ctx, cmd.CommandType(), telemetry.OutcomeError, ErrorCode(err), elapsed)
		log.Error("command failed", zap.Error(err))
	}
	return events, err
}

func (s *CommandService) submit(ctx context.Context, cmd person.Command) ([]person.Event, error) {
	meta := cmd.Metadata()

	unlock, err := s.locker.Lock(ctx, meta.PersonID)
	if err != nil {
		return nil, fmt.Errorf("waiting for person %s: %w", meta.PersonID, err)
	}
	defer unlock()

	current, err := LoadPerson(ctx, s.store, meta.PersonID)
	if err != nil {
		return nil, err
	}
	if meta.ExpectedVersion != nil && *meta.ExpectedVersion != current.Version {
		return nil, shared.NewConcurrencyConflictError(*meta.ExpectedVersion, current.Version)
	}

	if merge, ok := cmd.(person.MergePerson); ok && merge.Target == nil && merge.TargetID != uuid.Nil {
		target, err := LoadPerson(ctx, s.store, merge.TargetID)
		if err != nil {
			return nil, fmt.Errorf("loading merge target: %w", err)
		}
		merge.Target = &target
		cmd = merge
	}

	events, err := s.decider.Handle(current, cmd)
	if err != nil {
		return nil, err
	}

	domainEvents := make([]shared.DomainEvent, len(events))
	for i, e := range events {
		domainEvents[i] = e
	}
	if err := s.store.Append(ctx, meta.PersonID, current.Version, domainEvents...); err != nil {
		return nil, err
	}
	for _, e := range events {
		s.metrics.RecordEventAppended(ctx, e.EventType())
	}

	s.publish(ctx, domainEvents)
	return events, nil
}

// publish hands freshly stored events to the bus. Failures are recorded on
// the stored events so the relay retries them with the same payload.
func (s *CommandService) publish(ctx context.Context, events []shared.DomainEvent) {
	log := logger.WithLogger(ctx, s.logger)
	at := s.now().UTC()

	if err := s.bus.Publish(ctx, events...); err != nil {
		log.Warn("publishing events failed, leaving them to the relay", zap.Error(err))
		for _, e := range events {
			if markErr := s.store.MarkPublishFailed(ctx, e.EventID(), err.Error(), at); markErr != nil {
				log.Error("failed to record publish failure",
					zap.String("event_id", e.EventID().String()),
					zap.Error(markErr),
				)
			}
		}
		return
	}

	ids := make([]uuid.UUID, len(events))
	for i, e := range events {
		ids[i] = e.EventID()
	}
	if err := s.store.MarkPublished(ctx, at, ids...); err != nil {
		// The relay will deliver them again; handlers are idempotent.
		log.Warn("failed to mark events published", zap.Error(err))
	}
}

// stamp fills in the command id, issue time and actor when the caller left
// them empty
func (s *CommandService) stamp(ctx context.Context, cmd person.Command) (person.Command, error) {
	meta := cmd.Metadata()
	changed := false
	if meta.CommandID == uuid.Nil {
		meta.CommandID = uuid.New()
		changed = true
	}
	if meta.IssuedAt.IsZero() {
		meta.IssuedAt = s.now().UTC()
		changed = true
	}
	if meta.Actor == "" {
		if actor := logger.GetActor(ctx); actor != "" {
			meta.Actor = actor
			changed = true
		}
	}
	if !changed {
		return cmd, nil
	}
	stamped, err := person.WithMetadata(cmd, meta)
	if err != nil {
		return nil, shared.NewValidationError("command", err.Error())
	}
	return stamped, nil
}

// LoadPerson rebuilds a person from its stored events. An unknown id
// yields the zero Person.
func LoadPerson(ctx context.Context, store shared.EventStore, id uuid.UUID) (person.Person, error) {
	stored, err := store.Load(ctx, id)
	if err != nil {
		return person.Person{}, fmt.Errorf("loading person %s: %w", id, err)
	}
	events, err := ToPersonEvents(stored)
	if err != nil {
		return person.Person{}, fmt.Errorf("loading person %s: %w", id, err)
	}
	return person.Replay(events), nil
}

// ToPersonEvents narrows stored domain events to person events
func ToPersonEvents(stored []shared.DomainEvent) ([]person.Event, error) {
	events := make([]person.Event, len(stored))
	for i, e := range stored {
		pe, ok := e.(person.Event)
		if !ok {
			return nil, fmt.Errorf("event %s has unexpected type %T", e.EventID(), e)
		}
		events[i] = pe
	}
	return events, nil
}

// ErrorCode returns the domain error code of err, or INTERNAL_ERROR
func ErrorCode(err error) string {
	var de *shared.DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return "INTERNAL_ERROR"
}

func isRejection(err error) bool {
	var de *shared.DomainError
	return errors.As(err, &de)
}
