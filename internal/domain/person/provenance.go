package person

import (
	"encoding/json"
	"time"

	"github.com/persona/backend/internal/domain/shared"
)

// Source classifies where a fact came from
type Source string

const (
	SourceSelfReported     Source = "self_reported"
	SourceDocumentVerified Source = "document_verified"
	SourceClinicalRecord   Source = "clinical_record"
	SourceThirdParty       Source = "third_party"
	SourceSystemDerived    Source = "system_derived"
)

// IsValid returns true for known sources
func (s Source) IsValid() bool {
	switch s {
	case SourceSelfReported, SourceDocumentVerified, SourceClinicalRecord, SourceThirdParty, SourceSystemDerived:
		return true
	}
	return false
}

// DefaultConfidence is the confidence assumed when a command does not state one
func (s Source) DefaultConfidence() Confidence {
	switch s {
	case SourceDocumentVerified:
		return ConfidenceVerified
	case SourceClinicalRecord:
		return ConfidenceHigh
	case SourceThirdParty, SourceSystemDerived:
		return ConfidenceMedium
	}
	return ConfidenceLow
}

// Confidence is an ordered trust level
type Confidence string

const (
	ConfidenceLow      Confidence = "low"
	ConfidenceMedium   Confidence = "medium"
	ConfidenceHigh     Confidence = "high"
	ConfidenceVerified Confidence = "verified"
)

// Rank orders confidence levels; unknown levels rank 0
func (c Confidence) Rank() int {
	switch c {
	case ConfidenceLow:
		return 1
	case ConfidenceMedium:
		return 2
	case ConfidenceHigh:
		return 3
	case ConfidenceVerified:
		return 4
	}
	return 0
}

// IsValid returns true for known confidence levels
func (c Confidence) IsValid() bool { return c.Rank() > 0 }

// TraceStep is one transformation applied to a fact
type TraceStep struct {
	Operation string    `json:"operation"`
	Timestamp time.Time `json:"timestamp"`
	Actor     string    `json:"actor,omitempty"`
}

func (s TraceStep) equal(o TraceStep) bool {
	return s.Operation == o.Operation && s.Actor == o.Actor && s.Timestamp.Equal(o.Timestamp)
}

// Trace is an immutable append-only sequence of steps. Appending shares the
// existing steps with the original trace.
type Trace struct {
	last   *traceNode
	length int
}

type traceNode struct {
	step TraceStep
	prev *traceNode
}

// NewTrace builds a trace from steps in order
func NewTrace(steps ...TraceStep) Trace {
	var t Trace
	for _, s := range steps {
		t = t.Append(s)
	}
	return t
}

// Append returns a trace with step added at the end
func (t Trace) Append(step TraceStep) Trace {
	return Trace{last: &traceNode{step: step, prev: t.last}, length: t.length + 1}
}

// Concat returns t followed by the steps of o
func (t Trace) Concat(o Trace) Trace {
	out := t
	for _, s := range o.Steps() {
		out = out.Append(s)
	}
	return out
}

// Len returns the number of steps
func (t Trace) Len() int { return t.length }

// Steps returns the steps oldest first
func (t Trace) Steps() []TraceStep {
	steps := make([]TraceStep, t.length)
	i := t.length - 1
	for n := t.last; n != nil; n = n.prev {
		steps[i] = n.step
		i--
	}
	return steps
}

// Last returns the most recent step
func (t Trace) Last() (TraceStep, bool) {
	if t.last == nil {
		return TraceStep{}, false
	}
	return t.last.step, true
}

// Equal compares steps in order
func (t Trace) Equal(o Trace) bool {
	if t.length != o.length {
		return false
	}
	a, b := t.last, o.last
	for a != nil && b != nil {
		if a == b {
			return true
		}
		if !a.step.equal(b.step) {
			return false
		}
		a, b = a.prev, b.prev
	}
	return a == nil && b == nil
}

// MarshalJSON encodes the trace as an array of steps
func (t Trace) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Steps())
}

// UnmarshalJSON decodes an array of steps
func (t *Trace) UnmarshalJSON(data []byte) error {
	var steps []TraceStep
	if err := json.Unmarshal(data, &steps); err != nil {
		return err
	}
	*t = NewTrace(steps...)
	return nil
}

// Provenance describes the origin, confidence and history of a fact
type Provenance struct {
	Source     Source     `json:"source"`
	Confidence Confidence `json:"confidence"`
	RecordedAt time.Time  `json:"recorded_at"`
	Trace      Trace      `json:"trace"`
}

// NewProvenance creates a provenance whose trace starts with a record step
func NewProvenance(source Source, confidence Confidence, recordedAt time.Time, actor string) (Provenance, error) {
	if !source.IsValid() {
		return Provenance{}, shared.NewValidationError("source", "unknown source "+string(source))
	}
	if confidence == "" {
		confidence = source.DefaultConfidence()
	}
	if !confidence.IsValid() {
		return Provenance{}, shared.NewValidationError("confidence", "unknown confidence "+string(confidence))
	}
	return Provenance{
		Source:     source,
		Confidence: confidence,
		RecordedAt: recordedAt,
		Trace:      NewTrace(TraceStep{Operation: "record", Timestamp: recordedAt, Actor: actor}),
	}, nil
}

// WithStep returns a copy with step appended to the trace
func (p Provenance) WithStep(step TraceStep) Provenance {
	p.Trace = p.Trace.Append(step)
	return p
}

// ComposeProvenance merges two provenances. Traces are concatenated a then b;
// source and recorded_at come from whichever was recorded later and the
// confidence is the lower of the two.
func ComposeProvenance(a, b Provenance) Provenance {
	later := b
	if a.RecordedAt.After(b.RecordedAt) {
		later = a
	}
	confidence := a.Confidence
	if b.Confidence.Rank() < confidence.Rank() {
		confidence = b.Confidence
	}
	return Provenance{
		Source:     later.Source,
		Confidence: confidence,
		RecordedAt: later.RecordedAt,
		Trace:      a.Trace.Concat(b.Trace),
	}
}

// Equal compares all fields including the trace
func (p Provenance) Equal(o Provenance) bool {
	return p.Source == o.Source && p.Confidence == o.Confidence &&
		p.RecordedAt.Equal(o.RecordedAt) && p.Trace.Equal(o.Trace)
}
