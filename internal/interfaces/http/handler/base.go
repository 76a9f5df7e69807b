// Package handler holds the gin handlers of the person records API.
package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/persona/backend/internal/domain/shared"
	"github.com/persona/backend/internal/infrastructure/logger"
	"github.com/persona/backend/internal/interfaces/http/dto"
	"github.com/persona/backend/internal/interfaces/http/middleware"
	"go.uber.org/zap"
)

// IfMatchHeader carries the person version a write expects
const IfMatchHeader = "If-Match"

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// getRequestID extracts the request ID from the context
func getRequestID(c *gin.Context) string {
	if id := c.GetString(middleware.RequestIDKey); id != "" {
		return id
	}
	return c.GetHeader(middleware.RequestIDHeader)
}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// successPage sends one page of a listing with its totals in meta
func successPage[T any](c *gin.Context, page shared.Paginated[T]) {
	c.JSON(http.StatusOK, dto.NewPageResponse(page))
}

// Created sends a 201 created response
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(data))
}

// Error sends an error response with the appropriate status code
func (h *BaseHandler) Error(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, dto.NewErrorResponseWithRequestID(code, message, getRequestID(c)))
}

// BadRequest sends a 400 bad request response
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.Error(c, http.StatusBadRequest, dto.ErrCodeBadRequest, message)
}

// NotFound sends a 404 not found response
func (h *BaseHandler) NotFound(c *gin.Context, message string) {
	h.Error(c, http.StatusNotFound, dto.ErrCodeNotFound, message)
}

// InternalError sends a 500 internal server error response
func (h *BaseHandler) InternalError(c *gin.Context, message string) {
	h.Error(c, http.StatusInternalServerError, dto.ErrCodeInternal, message)
}

// BindJSON binds the request body into req and writes the validation
// response on failure
func (h *BaseHandler) BindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		h.bindError(c, err)
		return false
	}
	return true
}

// BindQuery binds query parameters into req and writes the validation
// response on failure
func (h *BaseHandler) BindQuery(c *gin.Context, req any) bool {
	if err := c.ShouldBindQuery(req); err != nil {
		h.bindError(c, err)
		return false
	}
	return true
}

func (h *BaseHandler) bindError(c *gin.Context, err error) {
	details := middleware.FormatValidationErrors(err, getRequestID(c)).Error.Details
	if len(details) > 0 {
		middleware.HandleValidationError(c, err)
		return
	}
	h.BadRequest(c, "Malformed request: "+err.Error())
}

// HandleError converts domain errors to HTTP responses. The message of a
// domain error is passed through; anything else is logged and reported as
// an internal error.
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}

	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		code := dto.NormalizeErrorCode(domainErr.Code)
		h.Error(c, dto.GetHTTPStatus(code), code, err.Error())
		return
	}

	logger.GetGinLogger(c).Error("request failed", zap.Error(err))
	_ = c.Error(err)
	h.InternalError(c, "An unexpected error occurred")
}

// parseUUIDParam reads a UUID path parameter, writing a 400 when malformed
func (h *BaseHandler) parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		h.BadRequest(c, "Invalid "+name+": "+c.Param(name))
		return uuid.Nil, false
	}
	return id, true
}

// parseTimeQuery reads an optional RFC 3339 query parameter
func (h *BaseHandler) parseTimeQuery(c *gin.Context, name string) (*time.Time, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		h.BadRequest(c, "Invalid "+name+", expected RFC 3339 time: "+raw)
		return nil, false
	}
	return &t, true
}

// expectedVersion resolves the optimistic concurrency guard of a write from
// the If-Match header and the body's expected_version. Both may be given
// only when they agree.
func (h *BaseHandler) expectedVersion(c *gin.Context, fromBody *int64) (*int64, bool) {
	header := c.GetHeader(IfMatchHeader)
	if header == "" || header == "*" {
		return fromBody, true
	}
	v, err := parseETag(header)
	if err != nil {
		h.BadRequest(c, "Invalid If-Match header: "+header)
		return nil, false
	}
	if fromBody != nil && *fromBody != v {
		h.BadRequest(c, "If-Match and expected_version disagree")
		return nil, false
	}
	return &v, true
}

// setETag exposes the person version a response reflects
func setETag(c *gin.Context, version int64) {
	c.Header("ETag", formatETag(version))
}

func formatETag(version int64) string {
	return `"` + strconv.FormatInt(version, 10) + `"`
}

func parseETag(tag string) (int64, error) {
	tag = strings.TrimPrefix(strings.TrimSpace(tag), "W/")
	return strconv.ParseInt(strings.Trim(tag, `"`), 10, 64)
}
