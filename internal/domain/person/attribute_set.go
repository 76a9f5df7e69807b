package person

import (
	"encoding/json"
	"time"
)

// AttributeSet is an ordered, immutable collection of attributes.
// Under Compose it is a monoid with Empty as identity; Of and Bind make it a monad.
type AttributeSet struct {
	attrs []Attribute
}

// Empty returns the empty set
func Empty() AttributeSet {
	return AttributeSet{}
}

// Of returns a set holding only a
func Of(a Attribute) AttributeSet {
	return AttributeSet{attrs: []Attribute{a}}
}

// SetOf returns a set holding attrs in order
func SetOf(attrs ...Attribute) AttributeSet {
	if len(attrs) == 0 {
		return Empty()
	}
	return AttributeSet{attrs: append([]Attribute(nil), attrs...)}
}

// Compose concatenates a and b
func Compose(a, b AttributeSet) AttributeSet {
	if len(a.attrs) == 0 {
		return b
	}
	if len(b.attrs) == 0 {
		return a
	}
	out := make([]Attribute, 0, len(a.attrs)+len(b.attrs))
	out = append(out, a.attrs...)
	out = append(out, b.attrs...)
	return AttributeSet{attrs: out}
}

// Append returns s with a added at the end
func (s AttributeSet) Append(a Attribute) AttributeSet {
	return Compose(s, Of(a))
}

// Map applies f to every attribute
func (s AttributeSet) Map(f func(Attribute) Attribute) AttributeSet {
	if len(s.attrs) == 0 {
		return s
	}
	out := make([]Attribute, len(s.attrs))
	for i, a := range s.attrs {
		out[i] = f(a)
	}
	return AttributeSet{attrs: out}
}

// Filter keeps the attributes matching keep
func (s AttributeSet) Filter(keep func(Attribute) bool) AttributeSet {
	var out []Attribute
	for _, a := range s.attrs {
		if keep(a) {
			out = append(out, a)
		}
	}
	return AttributeSet{attrs: out}
}

// Bind maps every attribute to a set and flattens the results in order
func (s AttributeSet) Bind(f func(Attribute) AttributeSet) AttributeSet {
	result := Empty()
	for _, a := range s.attrs {
		result = Compose(result, f(a))
	}
	return result
}

// FindByType returns the most recently recorded attribute of type t.
// Ties on recorded_at go to the later insertion.
func (s AttributeSet) FindByType(t AttributeType) (Attribute, bool) {
	var (
		found Attribute
		ok    bool
	)
	for _, a := range s.attrs {
		if a.Type != t {
			continue
		}
		if !ok || !a.Temporal.RecordedAt.Before(found.Temporal.RecordedAt) {
			found, ok = a, true
		}
	}
	return found, ok
}

// OfType keeps the attributes of type t
func (s AttributeSet) OfType(t AttributeType) AttributeSet {
	return s.Filter(func(a Attribute) bool { return a.Type == t })
}

// InCategory keeps the attributes of category c
func (s AttributeSet) InCategory(c Category) AttributeSet {
	return s.Filter(func(a Attribute) bool { return a.Type.Category == c })
}

// ValidAt keeps the attributes whose validity covers t
func (s AttributeSet) ValidAt(t time.Time) AttributeSet {
	return s.Filter(func(a Attribute) bool { return a.IsValidAt(t) })
}

// CurrentAt returns the attribute of type t in force at instant at
func (s AttributeSet) CurrentAt(t AttributeType, at time.Time) (Attribute, bool) {
	return s.ValidAt(at).FindByType(t)
}

// Len returns the number of attributes
func (s AttributeSet) Len() int { return len(s.attrs) }

// IsEmpty returns true when the set has no attributes
func (s AttributeSet) IsEmpty() bool { return len(s.attrs) == 0 }

// All returns a copy of the attributes in order
func (s AttributeSet) All() []Attribute {
	return append([]Attribute(nil), s.attrs...)
}

// Equal compares attributes pairwise in order
func (s AttributeSet) Equal(o AttributeSet) bool {
	if len(s.attrs) != len(o.attrs) {
		return false
	}
	for i := range s.attrs {
		if !s.attrs[i].Equal(o.attrs[i]) {
			return false
		}
	}
	return true
}

// MarshalJSON encodes the set as an array
func (s AttributeSet) MarshalJSON() ([]byte, error) {
	if s.attrs == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s.attrs)
}

// UnmarshalJSON decodes an array of attributes
func (s *AttributeSet) UnmarshalJSON(data []byte) error {
	var attrs []Attribute
	if err := json.Unmarshal(data, &attrs); err != nil {
		return err
	}
	*s = SetOf(attrs...)
	return nil
}
