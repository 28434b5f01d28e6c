// Package trace carries a per-message trace ID through a context so one chat
// message can be followed from transport to pipeline to model call in the
// logs.
package trace

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// Header is the HTTP header a client may use to supply its own trace ID.
const Header = "X-Trace-ID"

// maxLen bounds client-supplied IDs.
const maxLen = 64

type traceKey struct{}

// NewID returns a fresh trace ID ("t_" followed by 32 hex digits).
func NewID() string {
	return "t_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// WithID returns a child context carrying id.
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceKey{}, id)
}

// Ensure returns ctx and its trace ID, attaching a new one when ctx has none.
func Ensure(ctx context.Context) (context.Context, string) {
	if id := FromContext(ctx); id != "" {
		return ctx, id
	}
	id := NewID()
	return WithID(ctx, id), id
}

// FromContext returns the trace ID in ctx, or "".
func FromContext(ctx context.Context) string {
	id, _ := ctx.Value(traceKey{}).(string)
	return id
}

// FromRequest returns r's context carrying the Header value when it is a
// plausible ID, or a new ID otherwise.
func FromRequest(r *http.Request) (context.Context, string) {
	if id := strings.TrimSpace(r.Header.Get(Header)); id != "" && len(id) <= maxLen && printable(id) {
		return WithID(r.Context(), id), id
	}
	return Ensure(r.Context())
}

func printable(s string) bool {
	for _, c := range s {
		if c <= ' ' || c > '~' {
			return false
		}
	}
	return true
}
