package handler

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	apperson "github.com/persona/backend/internal/application/person"
	"github.com/persona/backend/internal/domain/person"
)

// CommandSubmitter accepts person commands
type CommandSubmitter interface {
	Submit(ctx context.Context, cmd person.Command) ([]person.Event, error)
}

var _ CommandSubmitter = (*apperson.CommandService)(nil)

// PersonCommandHandler serves the write side of the person API
type PersonCommandHandler struct {
	BaseHandler
	commands CommandSubmitter
}

// NewPersonCommandHandler creates a new PersonCommandHandler
func NewPersonCommandHandler(commands CommandSubmitter) *PersonCommandHandler {
	return &PersonCommandHandler{commands: commands}
}

// CreatePersonRequest registers a new person. ID may be supplied by the
// caller to make retries safe.
type CreatePersonRequest struct {
	ID        *uuid.UUID `json:"id"`
	LegalName string     `json:"legal_name" binding:"required,min=1,max=300"`
	BirthDate string     `json:"birth_date" binding:"omitempty,datetime=2006-01-02"`
}

// UpdateNameRequest replaces the legal name
type UpdateNameRequest struct {
	LegalName       string `json:"legal_name" binding:"required,min=1,max=300"`
	ExpectedVersion *int64 `json:"expected_version" binding:"omitempty,gte=0"`
}

// AttributeRequest records or supersedes a fact. Value is the tagged
// envelope {"kind": ..., "data": ...}.
type AttributeRequest struct {
	AttributeType   string          `json:"attribute_type" binding:"required,attrtype"`
	Value           json.RawMessage `json:"value" binding:"required"`
	ValidFrom       *time.Time      `json:"valid_from"`
	ValidUntil      *time.Time      `json:"valid_until"`
	Source          string          `json:"source" binding:"required,source"`
	Confidence      string          `json:"confidence" binding:"omitempty,confidence"`
	ExpectedVersion *int64          `json:"expected_version" binding:"omitempty,gte=0"`
}

// InvalidateAttributeRequest ends the validity of a fact
type InvalidateAttributeRequest struct {
	AttributeType   string     `json:"attribute_type" binding:"required,attrtype"`
	At              *time.Time `json:"at"`
	Reason          string     `json:"reason" binding:"max=500"`
	ExpectedVersion *int64     `json:"expected_version" binding:"omitempty,gte=0"`
}

// DeactivateRequest deactivates a person
type DeactivateRequest struct {
	Reason          string `json:"reason" binding:"required,max=500"`
	ExpectedVersion *int64 `json:"expected_version" binding:"omitempty,gte=0"`
}

// ReactivateRequest reactivates a person; the body is optional
type ReactivateRequest struct {
	ExpectedVersion *int64 `json:"expected_version" binding:"omitempty,gte=0"`
}

// RecordDeathRequest records a death
type RecordDeathRequest struct {
	DeathDate       time.Time `json:"death_date" binding:"required"`
	ExpectedVersion *int64    `json:"expected_version" binding:"omitempty,gte=0"`
}

// MergeRequest marks the person a duplicate of TargetID
type MergeRequest struct {
	TargetID        uuid.UUID `json:"target_id" binding:"required"`
	Force           bool      `json:"force"`
	ExpectedVersion *int64    `json:"expected_version" binding:"omitempty,gte=0"`
}

// EventResponse describes one stored event
type EventResponse struct {
	EventID    uuid.UUID `json:"event_id"`
	EventType  string    `json:"event_type"`
	Version    int64     `json:"version"`
	OccurredAt time.Time `json:"occurred_at"`
}

// CommandResponse is returned by every accepted command
type CommandResponse struct {
	PersonID uuid.UUID       `json:"person_id"`
	Version  int64           `json:"version"`
	Events   []EventResponse `json:"events"`
}

func toCommandResponse(id uuid.UUID, events []person.Event) CommandResponse {
	resp := CommandResponse{PersonID: id, Events: make([]EventResponse, len(events))}
	for i, e := range events {
		resp.Events[i] = EventResponse{
			EventID:    e.EventID(),
			EventType:  e.EventType(),
			Version:    e.AggregateVersion(),
			OccurredAt: e.OccurredAt(),
		}
		resp.Version = e.AggregateVersion()
	}
	return resp
}

// Create godoc
// @ID           createPerson
// @Summary      Register a person
// @Description  Registers a new person
// @Tags         persons
// @Accept       json
// @Produce      json
// @Param        request body CreatePersonRequest true "Person registration request"
// @Success      201 {object} APIResponse[CommandResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      401 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /persons [post]
func (h *PersonCommandHandler) Create(c *gin.Context) {
	var req CreatePersonRequest
	if !h.BindJSON(c, &req) {
		return
	}

	cmd := person.CreatePerson{LegalName: req.LegalName}
	cmd.PersonID = uuid.New()
	if req.ID != nil && *req.ID != uuid.Nil {
		cmd.PersonID = *req.ID
	}
	if req.BirthDate != "" {
		birth, err := time.Parse(time.DateOnly, req.BirthDate)
		if err != nil {
			h.BadRequest(c, "Invalid birth_date: "+req.BirthDate)
			return
		}
		cmd.BirthDate = &birth
	}

	events, err := h.commands.Submit(c.Request.Context(), cmd)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	resp := toCommandResponse(cmd.PersonID, events)
	setETag(c, resp.Version)
	c.Header("Location", c.FullPath()+"/"+cmd.PersonID.String())
	h.Created(c, resp)
}

// UpdateName godoc
// @ID           updatePersonName
// @Summary      Update legal name
// @Description  Replaces the legal name
// @Tags         persons
// @Accept       json
// @Produce      json
// @Param        id path string true "Person ID" format(uuid)
// @Param        If-Match header string false "Expected person version as an ETag, e.g. \"3\""
// @Param        request body UpdateNameRequest true "Update legal name request"
// @Success      200 {object} APIResponse[CommandResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      401 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /persons/{id}/name [put]
func (h *PersonCommandHandler) UpdateName(c *gin.Context) {
	var req UpdateNameRequest
	meta, ok := h.bindCommand(c, &req, func() *int64 { return req.ExpectedVersion })
	if !ok {
		return
	}
	h.submit(c, person.UpdateName{CommandMeta: meta, LegalName: req.LegalName})
}

// RecordAttribute godoc
// @ID           recordPersonAttribute
// @Summary      Record an attribute
// @Description  Adds a fact
// @Tags         persons
// @Accept       json
// @Produce      json
// @Param        id path string true "Person ID" format(uuid)
// @Param        If-Match header string false "Expected person version as an ETag, e.g. \"3\""
// @Param        request body AttributeRequest true "Record an attribute request"
// @Success      200 {object} APIResponse[CommandResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      401 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /persons/{id}/attributes [post]
func (h *PersonCommandHandler) RecordAttribute(c *gin.Context) {
	var req AttributeRequest
	meta, ok := h.bindCommand(c, &req, func() *int64 { return req.ExpectedVersion })
	if !ok {
		return
	}
	at, value, ok := h.attributeInput(c, req)
	if !ok {
		return
	}
	h.submit(c, person.RecordAttribute{
		CommandMeta: meta,
		Type:        at,
		Value:       value,
		ValidFrom:   req.ValidFrom,
		ValidUntil:  req.ValidUntil,
		Source:      person.Source(req.Source),
		Confidence:  person.Confidence(req.Confidence),
	})
}

// UpdateAttribute godoc
// @ID           updatePersonAttribute
// @Summary      Supersede an attribute
// @Description  Supersedes the fact in force at valid_from
// @Tags         persons
// @Accept       json
// @Produce      json
// @Param        id path string true "Person ID" format(uuid)
// @Param        If-Match header string false "Expected person version as an ETag, e.g. \"3\""
// @Param        request body AttributeRequest true "Supersede an attribute request"
// @Success      200 {object} APIResponse[CommandResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      401 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /persons/{id}/attributes [put]
func (h *PersonCommandHandler) UpdateAttribute(c *gin.Context) {
	var req AttributeRequest
	meta, ok := h.bindCommand(c, &req, func() *int64 { return req.ExpectedVersion })
	if !ok {
		return
	}
	at, value, ok := h.attributeInput(c, req)
	if !ok {
		return
	}
	h.submit(c, person.UpdateAttribute{
		CommandMeta: meta,
		Type:        at,
		Value:       value,
		ValidFrom:   req.ValidFrom,
		ValidUntil:  req.ValidUntil,
		Source:      person.Source(req.Source),
		Confidence:  person.Confidence(req.Confidence),
	})
}

// InvalidateAttribute godoc
// @ID           invalidatePersonAttribute
// @Summary      Invalidate an attribute
// @Description  Ends the validity of the fact in force at the given instant
// @Tags         persons
// @Accept       json
// @Produce      json
// @Param        id path string true "Person ID" format(uuid)
// @Param        If-Match header string false "Expected person version as an ETag, e.g. \"3\""
// @Param        request body InvalidateAttributeRequest true "Invalidate an attribute request"
// @Success      200 {object} APIResponse[CommandResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      401 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /persons/{id}/attributes/invalidate [post]
func (h *PersonCommandHandler) InvalidateAttribute(c *gin.Context) {
	var req InvalidateAttributeRequest
	meta, ok := h.bindCommand(c, &req, func() *int64 { return req.ExpectedVersion })
	if !ok {
		return
	}
	at, err := person.ParseAttributeType(req.AttributeType)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.submit(c, person.InvalidateAttribute{CommandMeta: meta, Type: at, At: req.At, Reason: req.Reason})
}

// Deactivate godoc
// @ID           deactivatePerson
// @Summary      Deactivate a person
// @Description  Moves an active person to Deactivated
// @Tags         persons
// @Accept       json
// @Produce      json
// @Param        id path string true "Person ID" format(uuid)
// @Param        If-Match header string false "Expected person version as an ETag, e.g. \"3\""
// @Param        request body DeactivateRequest true "Deactivate a person request"
// @Success      200 {object} APIResponse[CommandResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      401 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /persons/{id}/deactivate [post]
func (h *PersonCommandHandler) Deactivate(c *gin.Context) {
	var req DeactivateRequest
	meta, ok := h.bindCommand(c, &req, func() *int64 { return req.ExpectedVersion })
	if !ok {
		return
	}
	h.submit(c, person.DeactivatePerson{CommandMeta: meta, Reason: req.Reason})
}

// Reactivate godoc
// @ID           reactivatePerson
// @Summary      Reactivate a person
// @Description  Moves a deactivated person back to Active
// @Tags         persons
// @Accept       json
// @Produce      json
// @Param        id path string true "Person ID" format(uuid)
// @Param        If-Match header string false "Expected person version as an ETag, e.g. \"3\""
// @Param        request body ReactivateRequest false "Optional expected version"
// @Success      200 {object} APIResponse[CommandResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      401 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /persons/{id}/reactivate [post]
func (h *PersonCommandHandler) Reactivate(c *gin.Context) {
	var req ReactivateRequest
	var body any = &req
	if c.Request.ContentLength == 0 {
		body = nil
	}
	meta, ok := h.bindCommand(c, body, func() *int64 { return req.ExpectedVersion })
	if !ok {
		return
	}
	h.submit(c, person.ReactivatePerson{CommandMeta: meta})
}

// RecordDeath godoc
// @ID           recordPersonDeath
// @Summary      Record a death
// @Description  Moves a person to Deceased
// @Tags         persons
// @Accept       json
// @Produce      json
// @Param        id path string true "Person ID" format(uuid)
// @Param        If-Match header string false "Expected person version as an ETag, e.g. \"3\""
// @Param        request body RecordDeathRequest true "Record a death request"
// @Success      200 {object} APIResponse[CommandResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      401 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /persons/{id}/death [post]
func (h *PersonCommandHandler) RecordDeath(c *gin.Context) {
	var req RecordDeathRequest
	meta, ok := h.bindCommand(c, &req, func() *int64 { return req.ExpectedVersion })
	if !ok {
		return
	}
	h.submit(c, person.RecordDeath{CommandMeta: meta, DeathDate: req.DeathDate})
}

// Merge godoc
// @ID           mergePerson
// @Summary      Merge into another person
// @Description  Marks the person a duplicate of the target
// @Tags         persons
// @Accept       json
// @Produce      json
// @Param        id path string true "Person ID" format(uuid)
// @Param        If-Match header string false "Expected person version as an ETag, e.g. \"3\""
// @Param        request body MergeRequest true "Merge into another person request"
// @Success      200 {object} APIResponse[CommandResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      401 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /persons/{id}/merge [post]
func (h *PersonCommandHandler) Merge(c *gin.Context) {
	var req MergeRequest
	meta, ok := h.bindCommand(c, &req, func() *int64 { return req.ExpectedVersion })
	if !ok {
		return
	}
	h.submit(c, person.MergePerson{CommandMeta: meta, TargetID: req.TargetID, Force: req.Force})
}

// bindCommand reads the person id, the body and the expected version
// shared by every command on an existing person. A nil req skips the body.
func (h *PersonCommandHandler) bindCommand(c *gin.Context, req any, bodyVersion func() *int64) (person.CommandMeta, bool) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return person.CommandMeta{}, false
	}
	if req != nil && !h.BindJSON(c, req) {
		return person.CommandMeta{}, false
	}
	expected, ok := h.expectedVersion(c, bodyVersion())
	if !ok {
		return person.CommandMeta{}, false
	}
	return person.CommandMeta{PersonID: id, ExpectedVersion: expected}, true
}

func (h *PersonCommandHandler) attributeInput(c *gin.Context, req AttributeRequest) (person.AttributeType, person.Value, bool) {
	at, err := person.ParseAttributeType(req.AttributeType)
	if err != nil {
		h.HandleError(c, err)
		return person.AttributeType{}, nil, false
	}
	value, err := person.UnmarshalValue(req.Value)
	if err != nil {
		h.BadRequest(c, "Invalid value: "+err.Error())
		return person.AttributeType{}, nil, false
	}
	if value == nil {
		h.BadRequest(c, "Invalid value: must not be null")
		return person.AttributeType{}, nil, false
	}
	return at, value, true
}

func (h *PersonCommandHandler) submit(c *gin.Context, cmd person.Command) {
	events, err := h.commands.Submit(c.Request.Context(), cmd)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	resp := toCommandResponse(cmd.Metadata().PersonID, events)
	setETag(c, resp.Version)
	h.Success(c, resp)
}
