package person

import (
	"time"

	"github.com/google/uuid"
)

// AggregateTypePerson is the aggregate type recorded on person events
const AggregateTypePerson = "Person"

// Person is the aggregate: identity, lifecycle, attributes and version.
// Values of Person are never mutated; Apply returns a new one.
type Person struct {
	ID         uuid.UUID
	Identity   CoreIdentity
	Attributes AttributeSet
	Lifecycle  Lifecycle
	// Version counts applied events; zero means the person does not exist
	Version int64
}

// Exists returns true once a PersonCreated event has been applied
func (p Person) Exists() bool {
	return p.Version > 0 && p.Lifecycle != nil
}

// State returns the lifecycle state, or "" before creation
func (p Person) State() LifecycleState {
	if p.Lifecycle == nil {
		return ""
	}
	return p.Lifecycle.State()
}

// IsActive returns true in the Active state
func (p Person) IsActive() bool {
	return p.State() == StateActive
}

// Observation is a read-only view of a person's structure
type Observation struct {
	ID         uuid.UUID
	Identity   CoreIdentity
	State      LifecycleState
	Lifecycle  Lifecycle
	Attributes []Attribute
	Version    int64
}

// Unfold exposes the person's structure without giving access to its internals
func (p Person) Unfold() Observation {
	return Observation{
		ID:         p.ID,
		Identity:   p.Identity.clone(),
		State:      p.State(),
		Lifecycle:  p.Lifecycle,
		Attributes: p.Attributes.All(),
		Version:    p.Version,
	}
}

// CurrentAttributes returns the attributes valid at t
func (p Person) CurrentAttributes(t time.Time) AttributeSet {
	return p.Attributes.ValidAt(t)
}

// Equal compares full state
func (p Person) Equal(o Person) bool {
	return p.ID == o.ID &&
		p.Version == o.Version &&
		p.Identity.Equal(o.Identity) &&
		lifecyclesEqual(p.Lifecycle, o.Lifecycle) &&
		p.Attributes.Equal(o.Attributes)
}
