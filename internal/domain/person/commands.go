package person

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Command type names
const (
	CommandCreatePerson        = "CreatePerson"
	CommandUpdateName          = "UpdateName"
	CommandRecordAttribute     = "RecordAttribute"
	CommandUpdateAttribute     = "UpdateAttribute"
	CommandInvalidateAttribute = "InvalidateAttribute"
	CommandDeactivatePerson    = "DeactivatePerson"
	CommandReactivatePerson    = "ReactivatePerson"
	CommandRecordDeath         = "RecordDeath"
	CommandMergePerson         = "MergePerson"
	CommandBatch               = "Batch"
)

// CommandMeta carries what every command needs besides its payload.
// CommandID and IssuedAt are stamped by the command service when empty.
type CommandMeta struct {
	PersonID  uuid.UUID
	CommandID uuid.UUID
	IssuedAt  time.Time
	Actor     string
	// ExpectedVersion, when set, must equal the person's current version
	ExpectedVersion *int64
}

// Metadata returns the command metadata
func (m CommandMeta) Metadata() CommandMeta { return m }

// Command is a request to change a person
type Command interface {
	Metadata() CommandMeta
	CommandType() string
}

// CreatePerson creates a new person record in the Active state
type CreatePerson struct {
	CommandMeta
	LegalName string
	BirthDate *time.Time
}

// UpdateName replaces the legal name
type UpdateName struct {
	CommandMeta
	LegalName string
}

// RecordAttribute adds a fact
type RecordAttribute struct {
	CommandMeta
	Type       AttributeType
	Value      Value
	ValidFrom  *time.Time
	ValidUntil *time.Time
	Source     Source
	Confidence Confidence
}

// UpdateAttribute supersedes the fact of Type in force at ValidFrom
// (or at IssuedAt when ValidFrom is nil) with a new value.
type UpdateAttribute struct {
	CommandMeta
	Type       AttributeType
	Value      Value
	ValidFrom  *time.Time
	ValidUntil *time.Time
	Source     Source
	Confidence Confidence
}

// InvalidateAttribute ends the validity of the fact of Type in force at At
// (or at IssuedAt when At is nil).
type InvalidateAttribute struct {
	CommandMeta
	Type   AttributeType
	At     *time.Time
	Reason string
}

// DeactivatePerson moves an Active person to Deactivated
type DeactivatePerson struct {
	CommandMeta
	Reason string
}

// ReactivatePerson moves a Deactivated person back to Active
type ReactivatePerson struct {
	CommandMeta
}

// RecordDeath moves a person to Deceased
type RecordDeath struct {
	CommandMeta
	DeathDate time.Time
}

// MergePerson marks this person as a duplicate of TargetID. Target is the
// current state of the surviving record, loaded by the caller before handling.
// Force skips the similarity check.
type MergePerson struct {
	CommandMeta
	TargetID uuid.UUID
	Target   *Person
	Force    bool
}

// Batch applies several commands to one person atomically
type Batch struct {
	CommandMeta
	Commands []Command
}

func (CreatePerson) CommandType() string        { return CommandCreatePerson }
func (UpdateName) CommandType() string          { return CommandUpdateName }
func (RecordAttribute) CommandType() string     { return CommandRecordAttribute }
func (UpdateAttribute) CommandType() string     { return CommandUpdateAttribute }
func (InvalidateAttribute) CommandType() string { return CommandInvalidateAttribute }
func (DeactivatePerson) CommandType() string    { return CommandDeactivatePerson }
func (ReactivatePerson) CommandType() string    { return CommandReactivatePerson }
func (RecordDeath) CommandType() string         { return CommandRecordDeath }
func (MergePerson) CommandType() string         { return CommandMergePerson }
func (Batch) CommandType() string               { return CommandBatch }

// WithMetadata returns a copy of cmd carrying meta
func WithMetadata(cmd Command, meta CommandMeta) (Command, error) {
	switch c := cmd.(type) {
	case CreatePerson:
		c.CommandMeta = meta
		return c, nil
	case UpdateName:
		c.CommandMeta = meta
		return c, nil
	case RecordAttribute:
		c.CommandMeta = meta
		return c, nil
	case UpdateAttribute:
		c.CommandMeta = meta
		return c, nil
	case InvalidateAttribute:
		c.CommandMeta = meta
		return c, nil
	case DeactivatePerson:
		c.CommandMeta = meta
		return c, nil
	case ReactivatePerson:
		c.CommandMeta = meta
		return c, nil
	case RecordDeath:
		c.CommandMeta = meta
		return c, nil
	case MergePerson:
		c.CommandMeta = meta
		return c, nil
	case Batch:
		c.CommandMeta = meta
		return c, nil
	}
	return nil, fmt.Errorf("unsupported command %T", cmd)
}
