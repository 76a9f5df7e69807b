package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope of application spans
const TracerName = "persona"

// Span attribute keys
const (
	SpanPersonID        = attribute.Key("person.id")
	SpanCommandType     = attribute.Key("command.type")
	SpanCommandID       = attribute.Key("command.id")
	SpanExpectedVersion = attribute.Key("command.expected_version")
	SpanEventType       = attribute.Key("event.type")
	SpanEventVersion    = attribute.Key("event.version")
	SpanEventCount      = attribute.Key("events.count")
	SpanRejection       = attribute.Key("rejection.code")
)

// StartSpan starts an internal span on the global tracer provider. The caller
// must end it.
//
//	ctx, span := telemetry.StartSpan(ctx, "PersonProjector.Rebuild")
//	defer span.End()
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.GetTracerProvider().Tracer(TracerName).Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
}

// StartServiceSpan starts a span named {service}.{method}
func StartServiceSpan(ctx context.Context, service, method string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return StartSpan(ctx, service+"."+method, attrs...)
}

// RecordError records err on the span and marks the span failed
func RecordError(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// RecordRejection notes a refused command or query on the span. The span
// keeps an unset status: the service behaved correctly.
func RecordRejection(span trace.Span, code string, err error) {
	if span == nil || err == nil {
		return
	}
	span.SetAttributes(SpanRejection.String(code))
	span.AddEvent("rejected", trace.WithAttributes(attribute.String("reason", err.Error())))
}

// SetOK marks the span as successful
func SetOK(span trace.Span) {
	if span == nil {
		return
	}
	span.SetStatus(codes.Ok, "")
}
