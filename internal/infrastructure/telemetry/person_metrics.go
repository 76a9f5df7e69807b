package telemetry

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ErrMeterNil is returned when a metrics constructor receives no meter
var ErrMeterNil = errors.New("meter cannot be nil")

// PersonMetrics records command, projection and query activity. A nil
// *PersonMetrics is valid and records nothing.
type PersonMetrics struct {
	commandsTotal      *Counter
	commandDuration    *Histogram
	eventsAppended     *Counter
	projectionsTotal   *Counter
	projectionDuration *Histogram
	queriesTotal       *Counter
	queryDuration      *Histogram
}

// NewPersonMetrics creates the instruments on meter
func NewPersonMetrics(meter metric.Meter) (*PersonMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}

	m := &PersonMetrics{}
	var err error

	if m.commandsTotal, err = NewCounter(meter,
		"persona_commands_total",
		"Commands submitted, by command type and outcome",
		"{command}",
	); err != nil {
		return nil, err
	}
	if m.commandDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "persona_command_duration_seconds",
		Description: "Time from submit to published events",
		Unit:        "s",
		Boundaries:  CommandDurationBuckets,
	}); err != nil {
		return nil, err
	}
	if m.eventsAppended, err = NewCounter(meter,
		"persona_events_appended_total",
		"Events appended to the person event log",
		"{event}",
	); err != nil {
		return nil, err
	}
	if m.projectionsTotal, err = NewCounter(meter,
		"persona_projection_events_total",
		"Events folded into read models, by projection and outcome",
		"{event}",
	); err != nil {
		return nil, err
	}
	if m.projectionDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "persona_projection_duration_seconds",
		Description: "Time to load, project and save one read model",
		Unit:        "s",
		Boundaries:  CommandDurationBuckets,
	}); err != nil {
		return nil, err
	}
	if m.queriesTotal, err = NewCounter(meter,
		"persona_queries_total",
		"Queries served, by kind and outcome",
		"{query}",
	); err != nil {
		return nil, err
	}
	if m.queryDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "persona_query_duration_seconds",
		Description: "Query latency",
		Unit:        "s",
		Boundaries:  CommandDurationBuckets,
	}); err != nil {
		return nil, err
	}

	return m, nil
}

// RecordCommand records one submitted command. errorCode is empty on success.
func (m *PersonMetrics) RecordCommand(ctx context.Context, commandType, outcome, errorCode string, d time.Duration) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{AttrCommand.String(commandType), AttrOutcome.String(outcome)}
	if errorCode != "" {
		attrs = append(attrs, AttrErrorCode.String(errorCode))
	}
	m.commandsTotal.Inc(ctx, attrs...)
	m.commandDuration.RecordDuration(ctx, d, AttrCommand.String(commandType))
}

// RecordEventAppended counts one stored event
func (m *PersonMetrics) RecordEventAppended(ctx context.Context, eventType string) {
	if m == nil {
		return
	}
	m.eventsAppended.Inc(ctx, AttrEventType.String(eventType))
}

// RecordProjection records one event handled by a projection
func (m *PersonMetrics) RecordProjection(ctx context.Context, projection, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.projectionsTotal.Inc(ctx, AttrProjection.String(projection), AttrOutcome.String(outcome))
	m.projectionDuration.RecordDuration(ctx, d, AttrProjection.String(projection))
}

// RecordQuery records one query
func (m *PersonMetrics) RecordQuery(ctx context.Context, kind, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.queriesTotal.Inc(ctx, AttrQuery.String(kind), AttrOutcome.String(outcome))
	m.queryDuration.RecordDuration(ctx, d, AttrQuery.String(kind))
}
