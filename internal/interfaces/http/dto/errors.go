package dto

import (
	"net/http"

	"github.com/persona/backend/internal/domain/shared"
)

// API error codes. Every code returned in an ErrorInfo is one of these.
const (
	ErrCodeInternal = "ERR_INTERNAL"

	ErrCodeBadRequest   = "ERR_BAD_REQUEST"
	ErrCodeInvalidInput = "ERR_INVALID_INPUT"
	ErrCodeValidation   = "ERR_VALIDATION"

	ErrCodeUnauthorized = "ERR_UNAUTHORIZED"
	ErrCodeTokenExpired = "ERR_TOKEN_EXPIRED"
	ErrCodeTokenInvalid = "ERR_TOKEN_INVALID"
	ErrCodeForbidden    = "ERR_FORBIDDEN"

	ErrCodeNotFound            = "ERR_NOT_FOUND"
	ErrCodeConcurrencyConflict = "ERR_CONCURRENCY_CONFLICT"

	// rejected by the person lifecycle or the merge similarity check
	ErrCodeInvalidState     = "ERR_INVALID_STATE"
	ErrCodeIdentityMismatch = "ERR_IDENTITY_MISMATCH"
)

// ErrorCodeHTTPStatus maps API codes to response statuses. Lifecycle and
// merge refusals are well-formed requests the domain declines, hence 422.
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeInternal: http.StatusInternalServerError,

	ErrCodeBadRequest:   http.StatusBadRequest,
	ErrCodeInvalidInput: http.StatusBadRequest,
	ErrCodeValidation:   http.StatusBadRequest,

	ErrCodeUnauthorized: http.StatusUnauthorized,
	ErrCodeTokenExpired: http.StatusUnauthorized,
	ErrCodeTokenInvalid: http.StatusUnauthorized,
	ErrCodeForbidden:    http.StatusForbidden,

	ErrCodeNotFound:            http.StatusNotFound,
	ErrCodeConcurrencyConflict: http.StatusConflict,

	ErrCodeInvalidState:     http.StatusUnprocessableEntity,
	ErrCodeIdentityMismatch: http.StatusUnprocessableEntity,
}

// GetHTTPStatus returns the status for code, 500 when the code is unknown
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DomainErrorCodeMapping translates shared.DomainError codes to API codes
var DomainErrorCodeMapping = map[string]string{
	shared.ErrValidation.Code:             ErrCodeValidation,
	shared.ErrNotFound.Code:               ErrCodeNotFound,
	shared.ErrInvalidStateTransition.Code: ErrCodeInvalidState,
	shared.ErrConcurrencyConflict.Code:    ErrCodeConcurrencyConflict,
	shared.ErrIdentityMismatch.Code:       ErrCodeIdentityMismatch,
	shared.ErrInvalidInput.Code:           ErrCodeInvalidInput,
	shared.ErrUnauthorized.Code:           ErrCodeUnauthorized,
	"INTERNAL_ERROR":                      ErrCodeInternal,
}

// NormalizeErrorCode translates a domain code; API and unknown codes pass
// through.
func NormalizeErrorCode(code string) string {
	if api, ok := DomainErrorCodeMapping[code]; ok {
		return api
	}
	return code
}
