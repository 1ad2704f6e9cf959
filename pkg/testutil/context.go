package testutil

import (
	"net/http"
	"time"

	id "presence/pkg/domain"
	"presence/pkg/requestcontext"
)

// WithPrincipal injects an authenticated principal into the request context,
// simulating what the auth middleware does for authenticated requests.
func WithPrincipal(req *http.Request, pid id.PrincipalID, role string) *http.Request {
	return req.WithContext(requestcontext.WithPrincipal(req.Context(), pid, role))
}

// WithRequestTime freezes the request-scoped clock, simulating the
// request-time middleware with a deterministic instant.
func WithRequestTime(req *http.Request, t time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), t))
}

// WithRequestID injects a request ID into the request context.
func WithRequestID(req *http.Request, requestID string) *http.Request {
	return req.WithContext(requestcontext.WithRequestID(req.Context(), requestID))
}
