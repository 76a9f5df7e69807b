package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	appevent "github.com/persona/backend/internal/application/event"
	"github.com/persona/backend/internal/application/projection"
)

// ReadModelRebuilder replays the event log into the read models
type ReadModelRebuilder interface {
	Rebuild(ctx context.Context) (projection.RebuildStats, error)
}

var _ ReadModelRebuilder = (*projection.Projector)(nil)

// AdminHandler serves operator endpoints: the dead letter queue of the
// event relay and read model rebuilds
type AdminHandler struct {
	BaseHandler
	deadLetters *appevent.DeadLetterService
	rebuilder   ReadModelRebuilder
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(deadLetters *appevent.DeadLetterService, rebuilder ReadModelRebuilder) *AdminHandler {
	return &AdminHandler{
		deadLetters: deadLetters,
		rebuilder:   rebuilder,
	}
}

// RetryAllResponse reports how many dead events were requeued
type RetryAllResponse struct {
	Count int `json:"count"`
}

// ListDeadLetters godoc
// @ID           listDeadLetters
// @Summary      List dead letters
// @Description  Lists events the relay gave up publishing
// @Tags         admin
// @Produce      json
// @Param        limit query int false "Maximum entries" maximum(500)
// @Success      200 {object} APIResponse[[]appevent.DeadEventDTO]
// @Failure      400 {object} ErrorResponse
// @Failure      401 {object} ErrorResponse
// @Failure      403 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /admin/dead-letters [get]
func (h *AdminHandler) ListDeadLetters(c *gin.Context) {
	var filter appevent.DeadLetterFilter
	if !h.BindQuery(c, &filter) {
		return
	}

	entries, err := h.deadLetters.ListDead(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, entries)
}

// RetryDeadLetter godoc
// @ID           retryDeadLetter
// @Summary      Retry a dead letter
// @Description  Makes one dead event due for publishing again
// @Tags         admin
// @Produce      json
// @Param        event_id path string true "Event ID" format(uuid)
// @Success      200 {object} APIResponse[EventIDData]
// @Failure      400 {object} ErrorResponse
// @Failure      401 {object} ErrorResponse
// @Failure      403 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /admin/dead-letters/{event_id}/retry [post]
func (h *AdminHandler) RetryDeadLetter(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "event_id")
	if !ok {
		return
	}
	if err := h.deadLetters.Retry(c.Request.Context(), id); err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, EventIDData{EventID: id.String()})
}

// RetryAllDeadLetters godoc
// @ID           retryAllDeadLetters
// @Summary      Retry every dead letter
// @Description  Requeues every dead event
// @Tags         admin
// @Produce      json
// @Success      200 {object} APIResponse[RetryAllResponse]
// @Failure      401 {object} ErrorResponse
// @Failure      403 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /admin/dead-letters/retry-all [post]
func (h *AdminHandler) RetryAllDeadLetters(c *gin.Context) {
	count, err := h.deadLetters.RetryAll(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, RetryAllResponse{Count: count})
}

// RebuildReadModels godoc
// @ID           rebuildReadModels
// @Summary      Rebuild read models
// @Description  Clears the read models and replays the event log
// @Tags         admin
// @Produce      json
// @Success      200 {object} APIResponse[projection.RebuildStats]
// @Failure      401 {object} ErrorResponse
// @Failure      403 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /admin/projections/rebuild [post]
func (h *AdminHandler) RebuildReadModels(c *gin.Context) {
	stats, err := h.rebuilder.Rebuild(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, stats)
}
