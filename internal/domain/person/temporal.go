package person

import (
	"time"

	"github.com/persona/backend/internal/domain/shared"
)

// TemporalValidity records when a fact was recorded and the half-open
// interval [ValidFrom, ValidUntil) during which it holds. A nil bound is open.
type TemporalValidity struct {
	RecordedAt time.Time  `json:"recorded_at"`
	ValidFrom  *time.Time `json:"valid_from,omitempty"`
	ValidUntil *time.Time `json:"valid_until,omitempty"`
}

// NewTemporalValidity validates and builds a TemporalValidity
func NewTemporalValidity(recordedAt time.Time, validFrom, validUntil *time.Time) (TemporalValidity, error) {
	t := TemporalValidity{
		RecordedAt: recordedAt,
		ValidFrom:  copyTime(validFrom),
		ValidUntil: copyTime(validUntil),
	}
	if err := t.Validate(); err != nil {
		return TemporalValidity{}, err
	}
	return t, nil
}

// Validate checks ValidFrom < ValidUntil when both are present
func (t TemporalValidity) Validate() error {
	if t.ValidFrom != nil && t.ValidUntil != nil && !t.ValidFrom.Before(*t.ValidUntil) {
		return shared.NewValidationError("valid_until", "must be after valid_from")
	}
	return nil
}

// IsValidAt reports whether at falls inside [ValidFrom, ValidUntil)
func (t TemporalValidity) IsValidAt(at time.Time) bool {
	if t.ValidFrom != nil && at.Before(*t.ValidFrom) {
		return false
	}
	if t.ValidUntil != nil && !at.Before(*t.ValidUntil) {
		return false
	}
	return true
}

// IsOpenEnded returns true when no end bound has been set
func (t TemporalValidity) IsOpenEnded() bool {
	return t.ValidUntil == nil
}

// ClosedAt returns a copy ending at until. An earlier existing end is kept.
func (t TemporalValidity) ClosedAt(until time.Time) TemporalValidity {
	out := TemporalValidity{RecordedAt: t.RecordedAt, ValidFrom: copyTime(t.ValidFrom), ValidUntil: copyTime(t.ValidUntil)}
	if out.ValidUntil == nil || until.Before(*out.ValidUntil) {
		out.ValidUntil = &until
	}
	return out
}

// Equal compares instants rather than representations
func (t TemporalValidity) Equal(o TemporalValidity) bool {
	return t.RecordedAt.Equal(o.RecordedAt) && equalTimePtr(t.ValidFrom, o.ValidFrom) && equalTimePtr(t.ValidUntil, o.ValidUntil)
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func equalTimePtr(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
