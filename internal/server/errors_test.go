package server

import (
	"fmt"
	"net/http"
	"testing"

	contributiondomain "github.com/smallbiznis/condopay/internal/contribution/domain"
	paymentdomain "github.com/smallbiznis/condopay/internal/payment/domain"
	"github.com/smallbiznis/condopay/internal/ratelimit"
	"github.com/stretchr/testify/assert"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		err    error
		status int
		typ    string
	}{
		{nil, http.StatusInternalServerError, "internal_error"},
		{fmt.Errorf("approve: %w", paymentdomain.ErrAlreadyPaid), http.StatusConflict, "conflict"},
		{ratelimit.ErrExportInProgress, http.StatusTooManyRequests, "rate_limited"},
		{fmt.Errorf("%w: timeout", contributiondomain.ErrFetchFailed), http.StatusServiceUnavailable, "service_unavailable"},
		{paymentdomain.ErrNotFound, http.StatusNotFound, "not_found"},
		{ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
		{fmt.Errorf("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		status, payload := mapError(tt.err)
		assert.Equal(t, tt.status, status, "%v", tt.err)
		assert.Equal(t, tt.typ, payload.Type, "%v", tt.err)
	}
}

func TestMapErrorValidationSentinel(t *testing.T) {
	status, payload := mapError(fmt.Errorf("parse: %w", contributiondomain.ErrInvalidYear))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "validation_error", payload.Type)
	assert.Equal(t, []ValidationError{{Field: "year", Code: "invalid_year", Message: "invalid value"}}, payload.Errors)

	typ, code := classifyErrorForLog(newValidationError("due_date", "invalid_due_date", "invalid due_date"))
	assert.Equal(t, "validation_error", typ)
	assert.Equal(t, "invalid_due_date", code)
}
