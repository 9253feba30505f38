package rxid

import (
	"context"
	"net/http"

	"github.com/rs/xid"
)

// Header carries the request ID between client, gateway and backend.
const Header = "X-Request-ID"

type key int

const (
	requestIDKey key = 0
)

// NewContextWithID stores the request's incoming ID on ctx, generating one
// when the client did not send any.
func NewContextWithID(ctx context.Context, r *http.Request) context.Context {
	reqID := r.Header.Get(Header)
	if reqID == "" {
		reqID = xid.New().String()
	}

	return context.WithValue(ctx, requestIDKey, reqID)
}

// FromContext returns the request ID, or "" if none is set.
func FromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// Handler assigns a request ID to each request and echoes it on the response.
func Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := NewContextWithID(r.Context(), r)
		w.Header().Set(Header, FromContext(ctx))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
