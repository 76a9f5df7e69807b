package middleware

import (
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/persona/backend/internal/domain/person"
	"github.com/persona/backend/internal/interfaces/http/dto"
)

// Custom validation tags
const (
	TagAttrType   = "attrtype"
	TagSource     = "source"
	TagConfidence = "confidence"
	TagCategory   = "category"
)

// SetupValidator configures gin's validator: JSON field names in errors and
// the person tags checked against taxonomy.
func SetupValidator(taxonomy *person.Taxonomy) error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return errors.New("gin validator engine is not go-playground/validator")
	}
	return RegisterValidations(v, taxonomy)
}

// RegisterValidations adds the person tags to v
func RegisterValidations(v *validator.Validate, taxonomy *person.Taxonomy) error {
	// Use JSON tag names for field names in errors
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			name = strings.SplitN(fld.Tag.Get("form"), ",", 2)[0]
		}
		return name
	})

	validations := map[string]validator.Func{
		TagAttrType: func(fl validator.FieldLevel) bool {
			at, err := person.ParseAttributeType(fl.Field().String())
			if err != nil {
				return false
			}
			_, ok := taxonomy.Lookup(at)
			return ok
		},
		TagSource: func(fl validator.FieldLevel) bool {
			return person.Source(fl.Field().String()).IsValid()
		},
		TagConfidence: func(fl validator.FieldLevel) bool {
			return person.Confidence(fl.Field().String()).Rank() > 0
		},
		TagCategory: func(fl validator.FieldLevel) bool {
			return person.Category(fl.Field().String()).IsValid()
		},
	}
	for tag, fn := range validations {
		if err := v.RegisterValidation(tag, fn); err != nil {
			return err
		}
	}
	return nil
}

// FormatValidationErrors formats validation errors into a standard response
func FormatValidationErrors(err error, requestID string) dto.Response {
	var details []dto.ValidationDetail

	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		for _, e := range validationErrors {
			details = append(details, dto.ValidationDetail{
				Field:   e.Field(),
				Message: getValidationMessage(e),
			})
		}
	}

	return dto.NewValidationErrorResponse(
		"Request validation failed",
		requestID,
		details,
	)
}

// HandleValidationError returns a validation error response
func HandleValidationError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, FormatValidationErrors(err, c.GetString(RequestIDKey)))
}

// getValidationMessage returns a human-readable validation message
func getValidationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "This field is required"
	case "min":
		if e.Type().Kind() == reflect.String {
			return "Must be at least " + e.Param() + " characters"
		}
		return "Must be at least " + e.Param()
	case "max":
		if e.Type().Kind() == reflect.String {
			return "Must be at most " + e.Param() + " characters"
		}
		return "Must be at most " + e.Param()
	case "uuid":
		return "Invalid UUID format"
	case "oneof":
		return "Must be one of: " + e.Param()
	case "gte":
		return "Must be greater than or equal to " + e.Param()
	case "lte":
		return "Must be less than or equal to " + e.Param()
	case TagAttrType:
		return "Unknown attribute type, expected category.kind"
	case TagSource:
		return "Unknown source"
	case TagConfidence:
		return "Must be one of: low medium high verified"
	case TagCategory:
		return "Unknown category"
	default:
		return "Invalid value"
	}
}
