package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/condopay/internal/authorization"
	changefeed "github.com/smallbiznis/condopay/internal/changefeed/domain"
	condominiumdomain "github.com/smallbiznis/condopay/internal/condominium/domain"
	contributiondomain "github.com/smallbiznis/condopay/internal/contribution/domain"
	"github.com/smallbiznis/condopay/internal/export"
	"github.com/smallbiznis/condopay/internal/livesync"
	paymentdomain "github.com/smallbiznis/condopay/internal/payment/domain"
	"github.com/smallbiznis/condopay/internal/ratelimit"
	residentdomain "github.com/smallbiznis/condopay/internal/resident/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationErrors is a 400 response listing every rejected field.
type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	if len(v.Errors) == 1 {
		return v.Errors[0].Code
	}
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

// ErrorHandlingMiddleware renders the last handler error as JSON unless the
// handler already wrote a response.
func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{Errors: []ValidationError{{Field: field, Code: code, Message: message}}}
}

// errorClass is one non-validation response shape and the errors that map
// to it. Classes are checked in order.
type errorClass struct {
	status  int
	typ     string
	message string
	errs    []error
}

var errorClasses = []errorClass{
	{http.StatusUnauthorized, "unauthorized", "unauthorized", []error{
		ErrUnauthorized, authorization.ErrInvalidActor, authorization.ErrInvalidRole,
	}},
	{http.StatusForbidden, "forbidden", "forbidden", []error{
		ErrForbidden, authorization.ErrForbidden,
	}},
	{http.StatusConflict, "conflict", "conflict", []error{
		ErrConflict, condominiumdomain.ErrDuplicateSlug, paymentdomain.ErrAlreadyPaid, paymentdomain.ErrCancelled,
	}},
	{http.StatusTooManyRequests, "rate_limited", "too many requests", []error{
		ratelimit.ErrRateLimited, ratelimit.ErrExportInProgress,
	}},
	{http.StatusNotFound, "not_found", "not found", []error{
		ErrNotFound,
		condominiumdomain.ErrNotFound,
		residentdomain.ErrNotFound,
		paymentdomain.ErrNotFound,
		contributiondomain.ErrResidentNotFound,
		contributiondomain.ErrNoSnapshot,
		gorm.ErrRecordNotFound,
	}},
	// A failed fetch with no snapshot to fall back on is an outage, not a
	// client error.
	{http.StatusServiceUnavailable, "service_unavailable", "service unavailable", []error{
		ErrServiceUnavailable,
		contributiondomain.ErrFetchFailed,
		changefeed.ErrFeedUnavailable,
		livesync.ErrSessionClosed,
	}},
}

var internalError = errorPayload{Type: "internal_error", Message: "internal server error"}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, internalError
	}

	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}
	for _, sentinel := range validationErrors {
		if errors.Is(err, sentinel) {
			code := sentinel.Error()
			return http.StatusBadRequest, errorPayload{
				Type:    "validation_error",
				Message: "validation error",
				Errors:  []ValidationError{{Field: fieldOf(code), Code: code, Message: "invalid value"}},
			}
		}
	}

	for _, class := range errorClasses {
		for _, target := range class.errs {
			if errors.Is(err, target) {
				return class.status, errorPayload{Type: class.typ, Message: class.message}
			}
		}
	}
	return http.StatusInternalServerError, internalError
}

// validationErrors are the domain sentinels answered with 400. Their text
// doubles as the error code, e.g. "invalid_year".
var validationErrors = []error{
	ErrInvalidRequest,
	condominiumdomain.ErrInvalidName,
	condominiumdomain.ErrInvalidCurrency,
	condominiumdomain.ErrInvalidID,
	residentdomain.ErrInvalidCondominium,
	residentdomain.ErrInvalidApartment,
	residentdomain.ErrInvalidName,
	residentdomain.ErrInvalidID,
	paymentdomain.ErrInvalidCondominium,
	paymentdomain.ErrInvalidResident,
	paymentdomain.ErrInvalidAmount,
	paymentdomain.ErrInvalidCurrency,
	paymentdomain.ErrInvalidReferenceMonth,
	paymentdomain.ErrInvalidID,
	contributiondomain.ErrInvalidCondominium,
	contributiondomain.ErrInvalidResident,
	contributiondomain.ErrInvalidYear,
	livesync.ErrInvalidCondominium,
	livesync.ErrInvalidYear,
	export.ErrUnsupportedFormat,
	authorization.ErrInvalidObject,
	authorization.ErrInvalidAction,
}

// fieldOf derives the offending field from a code: invalid_year -> year.
func fieldOf(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	for _, prefix := range []string{"invalid_", "unsupported_"} {
		if field, ok := strings.CutPrefix(code, prefix); ok {
			return field
		}
	}
	return ""
}

// classifyErrorForLog reports the error type and code the response carries.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	return payload.Type, code
}
