package tracing

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func TestSafeAttributesDropsBlockedAndEmpty(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("http.route", "/api/condominiums/:id/contributions"),
		attribute.String("resident.name", "Ana"),
		attribute.String("condominium.id", " "),
		attribute.Int("http.status_code", 200),
	)

	assert.Equal(t, []attribute.KeyValue{
		attribute.String("http.route", "/api/condominiums/:id/contributions"),
		attribute.Int("http.status_code", 200),
	}, attrs)
}

func TestSafeError(t *testing.T) {
	assert.Nil(t, SafeError(nil))

	cause := errors.New("connection refused")
	err := SafeError(fmt.Errorf("fetch payments: %w", cause))
	assert.EqualError(t, err, "fetch payments: connection refused")
	assert.False(t, errors.Is(err, cause))
}
