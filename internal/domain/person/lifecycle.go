package person

import (
	"time"

	"github.com/google/uuid"
)

// LifecycleState names a lifecycle state
type LifecycleState string

const (
	StateActive      LifecycleState = "Active"
	StateDeactivated LifecycleState = "Deactivated"
	StateDeceased    LifecycleState = "Deceased"
	StateMergedInto  LifecycleState = "MergedInto"
)

// IsValid returns true for known states
func (s LifecycleState) IsValid() bool {
	switch s {
	case StateActive, StateDeactivated, StateDeceased, StateMergedInto:
		return true
	}
	return false
}

// Lifecycle is the state of a person record. The set of implementations is closed.
//
//	Active --Deactivate--> Deactivated --Reactivate--> Active
//	Active|Deactivated --RecordDeath--> Deceased     (terminal)
//	Active|Deactivated --Merge--> MergedInto         (terminal)
type Lifecycle interface {
	State() LifecycleState
	// IsTerminal reports whether the state rejects every mutation
	IsTerminal() bool
	isLifecycle()
}

// Active is the initial state
type Active struct{}

func (Active) State() LifecycleState { return StateActive }
func (Active) IsTerminal() bool      { return false }
func (Active) isLifecycle()          {}

// Deactivated records are kept but flagged inactive
type Deactivated struct {
	Reason string
	Since  time.Time
}

func (Deactivated) State() LifecycleState { return StateDeactivated }
func (Deactivated) IsTerminal() bool      { return false }
func (Deactivated) isLifecycle()          {}

// Deceased is terminal
type Deceased struct {
	DeathDate time.Time
}

func (Deceased) State() LifecycleState { return StateDeceased }
func (Deceased) IsTerminal() bool      { return true }
func (Deceased) isLifecycle()          {}

// MergedInto is terminal; the surviving record is referenced by id only
type MergedInto struct {
	TargetID uuid.UUID
	MergedAt time.Time
}

func (MergedInto) State() LifecycleState { return StateMergedInto }
func (MergedInto) IsTerminal() bool      { return true }
func (MergedInto) isLifecycle()          {}

func lifecyclesEqual(a, b Lifecycle) bool {
	switch x := a.(type) {
	case nil:
		return b == nil
	case Active:
		_, ok := b.(Active)
		return ok
	case Deactivated:
		y, ok := b.(Deactivated)
		return ok && x.Reason == y.Reason && x.Since.Equal(y.Since)
	case Deceased:
		y, ok := b.(Deceased)
		return ok && x.DeathDate.Equal(y.DeathDate)
	case MergedInto:
		y, ok := b.(MergedInto)
		return ok && x.TargetID == y.TargetID && x.MergedAt.Equal(y.MergedAt)
	}
	return false
}
