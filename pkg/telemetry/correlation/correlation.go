// Package correlation tags a context with an id shared by every log line and
// span produced for one unit of work: an HTTP request or a live recompute.
package correlation

import (
	"context"
	"net/http"
	"strings"

	"github.com/oklog/ulid/v2"
)

// Header is the request and response header carrying the id.
const Header = "X-Correlation-Id"

type key struct{}

// ID returns the correlation id on ctx, or "" when there is none.
func ID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(key{}).(string)
	return id
}

// WithID stores id on ctx. Blank ids leave ctx untouched.
func WithID(ctx context.Context, id string) context.Context {
	id = strings.TrimSpace(id)
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, key{}, id)
}

// NewID returns a fresh, time-ordered id.
func NewID() string {
	return ulid.Make().String()
}

// FromRequest continues the caller's id when the header is set and starts a
// new one otherwise.
func FromRequest(ctx context.Context, h http.Header) (context.Context, string) {
	if id := strings.TrimSpace(h.Get(Header)); id != "" {
		return WithID(ctx, id), id
	}
	if id := ID(ctx); id != "" {
		return ctx, id
	}
	id := NewID()
	return WithID(ctx, id), id
}
