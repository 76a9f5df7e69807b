package person

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/persona/backend/internal/domain/shared"
)

const maxLegalNameLength = 200

// CoreIdentity is the minimal identity record of a person.
// It is replaced as a whole, never edited in place.
type CoreIdentity struct {
	LegalName string     `json:"legal_name"`
	BirthDate *time.Time `json:"birth_date,omitempty"`
	DeathDate *time.Time `json:"death_date,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// WithLegalName returns a copy carrying name
func (c CoreIdentity) WithLegalName(name string, at time.Time) CoreIdentity {
	out := c.clone()
	out.LegalName = name
	out.UpdatedAt = at
	return out
}

// WithDeathDate returns a copy carrying the death date
func (c CoreIdentity) WithDeathDate(d time.Time, at time.Time) CoreIdentity {
	out := c.clone()
	out.DeathDate = &d
	out.UpdatedAt = at
	return out
}

// Touched returns a copy with UpdatedAt set
func (c CoreIdentity) Touched(at time.Time) CoreIdentity {
	out := c.clone()
	out.UpdatedAt = at
	return out
}

// Equal compares instants rather than representations
func (c CoreIdentity) Equal(o CoreIdentity) bool {
	return c.LegalName == o.LegalName &&
		equalTimePtr(c.BirthDate, o.BirthDate) &&
		equalTimePtr(c.DeathDate, o.DeathDate) &&
		c.CreatedAt.Equal(o.CreatedAt) &&
		c.UpdatedAt.Equal(o.UpdatedAt)
}

func (c CoreIdentity) clone() CoreIdentity {
	c.BirthDate = copyTime(c.BirthDate)
	c.DeathDate = copyTime(c.DeathDate)
	return c
}

// NormalizeLegalName trims and validates a legal name
func NormalizeLegalName(name string) (string, error) {
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return "", shared.NewValidationError("legal_name", "must not be empty")
	}
	if utf8.RuneCountInString(name) > maxLegalNameLength {
		return "", shared.NewValidationError("legal_name", "must not exceed 200 characters")
	}
	return name, nil
}
