package handler

import "github.com/persona/backend/internal/interfaces/http/dto"

// APIResponse is the documented shape of dto.Response with a typed data field
// @Description Standard API response wrapper with typed data field
type APIResponse[T any] struct {
	Success bool           `json:"success" example:"true"`
	Data    T              `json:"data,omitempty"`
	Error   *dto.ErrorInfo `json:"error,omitempty"`
	Meta    *dto.Meta      `json:"meta,omitempty"`
}

// ErrorResponse is the documented shape of a failed request
// @Description Standard error response
type ErrorResponse struct {
	Success bool           `json:"success" example:"false"`
	Error   *dto.ErrorInfo `json:"error,omitempty"`
}

// EventIDData is returned when a single dead event is requeued
// @Description Requeued event id
type EventIDData struct {
	EventID string `json:"event_id" example:"0b6f3c1e-5a4d-4e7b-9b71-2f0a9d7c6e15"`
}
