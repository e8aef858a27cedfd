package correlation

import (
	"context"
	"net/http"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromRequestKeepsCallerID(t *testing.T) {
	h := http.Header{}
	h.Set(Header, " upstream-42 ")

	ctx, id := FromRequest(context.Background(), h)
	assert.Equal(t, "upstream-42", id)
	assert.Equal(t, "upstream-42", ID(ctx))
}

func TestFromRequestGeneratesID(t *testing.T) {
	ctx, id := FromRequest(context.Background(), http.Header{})
	require.NotEmpty(t, id)
	assert.Equal(t, id, ID(ctx))

	_, err := ulid.Parse(id)
	assert.NoError(t, err)
}

func TestFromRequestReusesContextID(t *testing.T) {
	ctx := WithID(context.Background(), "recompute-1")
	_, id := FromRequest(ctx, http.Header{})
	assert.Equal(t, "recompute-1", id)
}

func TestWithIDIgnoresBlank(t *testing.T) {
	ctx := WithID(context.Background(), "  ")
	assert.Empty(t, ID(ctx))
}
