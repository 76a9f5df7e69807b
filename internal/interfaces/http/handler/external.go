package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	apperson "github.com/persona/backend/internal/application/person"
	"github.com/persona/backend/internal/domain/person"
)

// ExternalEventApplier turns notifications from other systems into commands
type ExternalEventApplier interface {
	Handle(ctx context.Context, ev apperson.ExternalEvent) ([]person.Event, error)
	Types() []string
}

var _ ExternalEventApplier = (*apperson.ExternalTranslator)(nil)

// ExternalEventHandler accepts notifications such as registry death notices
type ExternalEventHandler struct {
	BaseHandler
	translator ExternalEventApplier
}

// NewExternalEventHandler creates a new ExternalEventHandler
func NewExternalEventHandler(translator ExternalEventApplier) *ExternalEventHandler {
	return &ExternalEventHandler{translator: translator}
}

// Receive godoc
// @ID           receiveExternalEvent
// @Summary      Apply an external event
// @Description  Applies one external event. Redelivering the same event id decides into the same command id.
// @Tags         external
// @Accept       json
// @Produce      json
// @Param        request body apperson.ExternalEvent true "External event"
// @Success      200 {object} APIResponse[CommandResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      401 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /external-events [post]
func (h *ExternalEventHandler) Receive(c *gin.Context) {
	var ev apperson.ExternalEvent
	if !h.BindJSON(c, &ev) {
		return
	}

	events, err := h.translator.Handle(c.Request.Context(), ev)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	resp := toCommandResponse(ev.PersonID, events)
	setETag(c, resp.Version)
	h.Success(c, resp)
}

// Types godoc
// @ID           listExternalEventTypes
// @Summary      List external event types
// @Description  Lists the external event types that are understood
// @Tags         external
// @Produce      json
// @Success      200 {object} APIResponse[[]string]
// @Failure      401 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /external-events/types [get]
func (h *ExternalEventHandler) Types(c *gin.Context) {
	h.Success(c, h.translator.Types())
}
