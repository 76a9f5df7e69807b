package handler

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	apperson "github.com/persona/backend/internal/application/person"
	"github.com/persona/backend/internal/domain/person"
	"github.com/persona/backend/internal/domain/shared"
)

// PersonQueryHandler serves the read side of the person API
type PersonQueryHandler struct {
	BaseHandler
	queries *apperson.QueryService
}

// NewPersonQueryHandler creates a new PersonQueryHandler
func NewPersonQueryHandler(queries *apperson.QueryService) *PersonQueryHandler {
	return &PersonQueryHandler{queries: queries}
}

// ListPersonsRequest filters the summary listing
type ListPersonsRequest struct {
	Page     int    `form:"page" binding:"omitempty,min=1"`
	PageSize int    `form:"page_size" binding:"omitempty,min=1,max=100"`
	State    string `form:"state" binding:"omitempty,oneof=Active Deactivated Deceased MergedInto"`
	Active   *bool  `form:"active"`
	Name     string `form:"name" binding:"max=300"`
	IDs      string `form:"ids"`
}

// SearchPersonsRequest ranks persons by relevance. Exact filters are passed
// as filter[state]=Active or filter[identifying.birth_place]=Zürich.
type SearchPersonsRequest struct {
	Query        string  `form:"q" binding:"required,min=1,max=300"`
	MinRelevance float64 `form:"min_relevance" binding:"gte=0,lte=1"`
	Limit        int     `form:"limit" binding:"omitempty,min=1,max=100"`
}

// TimelineRequest narrows a timeline; from and until are RFC 3339 times
type TimelineRequest struct {
	Limit int    `form:"limit" binding:"omitempty,min=1"`
	Order string `form:"order" binding:"omitempty,oneof=asc desc"`
}

// AttributesRequest narrows the attribute view; valid_at is an RFC 3339 time
type AttributesRequest struct {
	Category  string `form:"category" binding:"omitempty,category"`
	Kind      string `form:"kind" binding:"max=100"`
	ValueKind string `form:"value_kind" binding:"max=50"`
	History   bool   `form:"history"`
}

// List godoc
// @ID           listPersons
// @Summary      List persons
// @Description  Returns person summaries, most recently changed first
// @Tags         persons
// @Produce      json
// @Param        page query int false "Page number" default(1)
// @Param        page_size query int false "Items per page" default(20) maximum(100)
// @Param        state query string false "Lifecycle state" Enums(Active, Deactivated, Deceased, MergedInto)
// @Param        active query bool false "Only active or only inactive persons"
// @Param        name query string false "Legal name substring"
// @Param        ids query string false "Comma separated person IDs"
// @Success      200 {object} APIResponse[[]readmodel.PersonSummary]
// @Failure      400 {object} ErrorResponse
// @Failure      401 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /persons [get]
func (h *PersonQueryHandler) List(c *gin.Context) {
	var req ListPersonsRequest
	if !h.BindQuery(c, &req) {
		return
	}
	q := apperson.SummaryQuery{
		Filter: apperson.SummaryFilter{
			State:  person.LifecycleState(req.State),
			Active: req.Active,
			Name:   req.Name,
		},
		Page:     req.Page,
		PageSize: req.PageSize,
	}
	if req.IDs != "" {
		for _, raw := range strings.Split(req.IDs, ",") {
			id, err := uuid.Parse(strings.TrimSpace(raw))
			if err != nil {
				h.BadRequest(c, "Invalid id in ids: "+raw)
				return
			}
			q.IDs = append(q.IDs, id)
		}
	}

	page, err := h.queries.Summaries(c.Request.Context(), q)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	successPage(c, page)
}

// Get godoc
// @ID           getPerson
// @Summary      Get a person
// @Description  Returns the summary of one person
// @Tags         persons
// @Produce      json
// @Param        id path string true "Person ID" format(uuid)
// @Success      200 {object} APIResponse[readmodel.PersonSummary]
// @Failure      400 {object} ErrorResponse
// @Failure      401 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /persons/{id} [get]
func (h *PersonQueryHandler) Get(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	page, err := h.queries.Summaries(c.Request.Context(), apperson.SummaryQuery{IDs: []uuid.UUID{id}})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if len(page.Items) == 0 {
		h.HandleError(c, shared.NewNotFoundError(id))
		return
	}
	h.Success(c, page.Items[0])
}

// Search godoc
// @ID           searchPersons
// @Summary      Search persons
// @Description  Ranks persons by relevance to q
// @Tags         persons
// @Produce      json
// @Param        q query string true "Search text"
// @Param        min_relevance query number false "Minimum relevance between 0 and 1"
// @Param        limit query int false "Maximum results" maximum(100)
// @Param        filter query object false "Exact filters, e.g. filter[state]=Active"
// @Success      200 {object} APIResponse[[]apperson.SearchResult]
// @Failure      400 {object} ErrorResponse
// @Failure      401 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /persons/search [get]
func (h *PersonQueryHandler) Search(c *gin.Context) {
	var req SearchPersonsRequest
	if !h.BindQuery(c, &req) {
		return
	}
	results, err := h.queries.Search(c.Request.Context(), apperson.SearchQuery{
		Text:         req.Query,
		Filters:      c.QueryMap("filter"),
		MinRelevance: req.MinRelevance,
		Limit:        req.Limit,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, results)
}

// Timeline godoc
// @ID           getPersonTimeline
// @Summary      Get a person timeline
// @Description  Returns the history of a person
// @Tags         persons
// @Produce      json
// @Param        id path string true "Person ID" format(uuid)
// @Param        from query string false "Start of the range (RFC 3339)" format(date-time)
// @Param        until query string false "End of the range (RFC 3339)" format(date-time)
// @Param        limit query int false "Maximum entries"
// @Param        order query string false "Entry order" Enums(asc, desc)
// @Success      200 {object} APIResponse[readmodel.Timeline]
// @Failure      400 {object} ErrorResponse
// @Failure      401 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /persons/{id}/timeline [get]
func (h *PersonQueryHandler) Timeline(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req TimelineRequest
	if !h.BindQuery(c, &req) {
		return
	}
	from, ok := h.parseTimeQuery(c, "from")
	if !ok {
		return
	}
	until, ok := h.parseTimeQuery(c, "until")
	if !ok {
		return
	}

	q := apperson.TimelineQuery{ID: id, Limit: req.Limit, Order: apperson.Order(req.Order)}
	if from != nil || until != nil {
		q.DateRange = &apperson.DateRange{From: from, Until: until}
	}
	timeline, err := h.queries.Timeline(c.Request.Context(), q)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, timeline)
}

// Attributes godoc
// @ID           getPersonAttributes
// @Summary      Get person attributes
// @Description  Returns the facts of a person valid at valid_at, or their full history with history=true
// @Tags         persons
// @Produce      json
// @Param        id path string true "Person ID" format(uuid)
// @Param        valid_at query string false "Instant the facts must hold at (RFC 3339)" format(date-time)
// @Param        category query string false "Attribute category"
// @Param        kind query string false "Attribute kind, requires category"
// @Param        value_kind query string false "Value kind"
// @Param        history query bool false "Return every recorded fact"
// @Success      200 {object} APIResponse[apperson.AttributeView]
// @Failure      400 {object} ErrorResponse
// @Failure      401 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /persons/{id}/attributes [get]
func (h *PersonQueryHandler) Attributes(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req AttributesRequest
	if !h.BindQuery(c, &req) {
		return
	}
	validAt, ok := h.parseTimeQuery(c, "valid_at")
	if !ok {
		return
	}

	q := apperson.AttributeQuery{
		ID:             id,
		ValueKind:      person.ValueKind(req.ValueKind),
		ValidAt:        validAt,
		IncludeHistory: req.History,
	}
	switch {
	case req.Kind != "" && req.Category == "":
		h.BadRequest(c, "kind requires category")
		return
	case req.Kind != "":
		at, err := person.ParseAttributeType(req.Category + "." + req.Kind)
		if err != nil {
			h.HandleError(c, err)
			return
		}
		q.Type = &at
	default:
		q.Category = person.Category(req.Category)
	}

	view, err := h.queries.Attributes(c.Request.Context(), q)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	setETag(c, view.Version)
	h.Success(c, view)
}

// Category godoc
// @ID           getPersonCategory
// @Summary      Get a category view
// @Description  Returns a materialized category view
// @Tags         persons
// @Produce      json
// @Param        id path string true "Person ID" format(uuid)
// @Param        category path string true "Attribute category"
// @Param        valid_at query string false "Instant the facts must hold at (RFC 3339)" format(date-time)
// @Success      200 {object} APIResponse[readmodel.CategoryView]
// @Failure      400 {object} ErrorResponse
// @Failure      401 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /persons/{id}/categories/{category} [get]
func (h *PersonQueryHandler) Category(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	category := person.Category(c.Param("category"))
	if !category.IsValid() {
		h.HandleError(c, shared.NewValidationError("category", "unknown category "+string(category)))
		return
	}
	validAt, ok := h.parseTimeQuery(c, "valid_at")
	if !ok {
		return
	}

	view, err := h.queries.Category(c.Request.Context(), apperson.CategoryQuery{ID: id, Category: category, ValidAt: validAt})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, view)
}

// Similarity godoc
// @ID           getPersonSimilarity
// @Summary      Score two persons
// @Description  Scores two persons against each other
// @Tags         persons
// @Produce      json
// @Param        id path string true "Person ID" format(uuid)
// @Param        other path string true "Other person ID" format(uuid)
// @Param        at query string false "Instant to compare at (RFC 3339)" format(date-time)
// @Success      200 {object} APIResponse[apperson.SimilarityResult]
// @Failure      400 {object} ErrorResponse
// @Failure      401 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /persons/{id}/similarity/{other} [get]
func (h *PersonQueryHandler) Similarity(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	other, ok := h.parseUUIDParam(c, "other")
	if !ok {
		return
	}
	at, ok := h.parseTimeQuery(c, "at")
	if !ok {
		return
	}

	result, err := h.queries.Similarity(c.Request.Context(), apperson.SimilarityQuery{ID: id, OtherID: other, At: at})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}
