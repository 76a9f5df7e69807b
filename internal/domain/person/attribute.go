package person

import (
	"encoding/json"
	"fmt"
	"time"
)

// Attribute is a typed, time-bounded, provenance-tracked fact about a person.
// It is immutable; every transformation returns a new Attribute.
type Attribute struct {
	Type       AttributeType
	Value      Value
	Temporal   TemporalValidity
	Provenance Provenance
}

// ValueFunc transforms an attribute value
type ValueFunc func(Value) Value

// IdentityValue returns its argument unchanged
func IdentityValue(v Value) Value { return v }

// Then returns the function applying f and then g
func (f ValueFunc) Then(g ValueFunc) ValueFunc {
	return func(v Value) Value { return g(f(v)) }
}

// Map applies f to the value and records step in the provenance trace.
// Type and temporal validity are preserved. No semantic validation is done.
func (a Attribute) Map(f ValueFunc, step TraceStep) Attribute {
	out := a.MapValue(f)
	out.Provenance = a.Provenance.WithStep(step)
	return out
}

// MapValue applies f to the value, leaving type, validity and provenance as they are
func (a Attribute) MapValue(f ValueFunc) Attribute {
	return Attribute{
		Type:       a.Type,
		Value:      f(a.Value),
		Temporal:   a.Temporal,
		Provenance: a.Provenance,
	}
}

// IsValidAt reports whether the fact holds at t
func (a Attribute) IsValidAt(t time.Time) bool {
	return a.Temporal.IsValidAt(t)
}

// ClosedAt returns a copy whose validity ends at t
func (a Attribute) ClosedAt(t time.Time, step TraceStep) Attribute {
	out := a
	out.Temporal = a.Temporal.ClosedAt(t)
	out.Provenance = a.Provenance.WithStep(step)
	return out
}

// SameFact compares type, value and validity, ignoring provenance
func (a Attribute) SameFact(o Attribute) bool {
	return a.Type == o.Type && valuesEqual(a.Value, o.Value) && a.Temporal.Equal(o.Temporal)
}

// Equal compares every field including provenance
func (a Attribute) Equal(o Attribute) bool {
	return a.SameFact(o) && a.Provenance.Equal(o.Provenance)
}

func valuesEqual(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(b)
}

type attributeJSON struct {
	Type       AttributeType    `json:"type"`
	Value      json.RawMessage  `json:"value"`
	Temporal   TemporalValidity `json:"temporal"`
	Provenance Provenance       `json:"provenance"`
}

// MarshalJSON encodes the value with its variant tag
func (a Attribute) MarshalJSON() ([]byte, error) {
	value, err := MarshalValue(a.Value)
	if err != nil {
		return nil, err
	}
	return json.Marshal(attributeJSON{Type: a.Type, Value: value, Temporal: a.Temporal, Provenance: a.Provenance})
}

// UnmarshalJSON decodes an attribute produced by MarshalJSON
func (a *Attribute) UnmarshalJSON(data []byte) error {
	var raw attributeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	value, err := UnmarshalValue(raw.Value)
	if err != nil {
		return fmt.Errorf("attribute %s: %w", raw.Type, err)
	}
	*a = Attribute{Type: raw.Type, Value: value, Temporal: raw.Temporal, Provenance: raw.Provenance}
	return nil
}
