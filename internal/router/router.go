// Package router serves the users/posts/comments HTTP API.
package router

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"userposts/internal/apperr"
	"userposts/internal/db"
	"userposts/internal/seed"
)

// Seeder replaces the stored dataset.
type Seeder interface {
	Load(ctx context.Context) (seed.Summary, error)
}

// Router dispatches requests by method and path. It holds no state of its
// own beyond the injected store and seeder.
type Router struct {
	store  db.Gateway
	seeder Seeder
	tp     trace.TracerProvider
}

// Option customizes a Router.
type Option func(*Router)

// WithTracerProvider overrides the global tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(rt *Router) {
		if tp != nil {
			rt.tp = tp
		}
	}
}

// New builds a Router over store. seeder backs GET /load.
func New(store db.Gateway, seeder Seeder, opts ...Option) *Router {
	rt := &Router{store: store, seeder: seeder, tp: otel.GetTracerProvider()}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

// Handler returns the router wrapped in the standard middleware chain.
func (rt *Router) Handler() http.Handler {
	return Chain(rt,
		RequestID(),
		AccessLog(),
		Trace(rt.tp),
		RecoverPanic(),
	)
}

type handlerFunc func(w http.ResponseWriter, r *http.Request) error

var errRouteNotFound = apperr.NotFound("Route not found")

// ServeHTTP implements http.Handler.
func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := rt.match(r)(w, r); err != nil {
		writeError(w, r, err)
	}
}

// match picks the handler for r. Paths under /users/ take their id from the
// second segment; anything after it is ignored. Matching runs on the escaped
// path, so percent-encoded bytes stay part of the segment they appear in.
func (rt *Router) match(r *http.Request) handlerFunc {
	path := r.URL.EscapedPath()
	switch r.Method {
	case http.MethodGet:
		switch {
		case path == "/load":
			return rt.load
		case path == "/users":
			return rt.listUsers
		case strings.HasPrefix(path, "/users/"):
			return rt.getUser
		}
	case http.MethodPost:
		if path == "/users" {
			return rt.createUser
		}
	case http.MethodDelete:
		switch {
		case path == "/users":
			return rt.deleteAll
		case strings.HasPrefix(path, "/users/"):
			return rt.deleteUser
		}
	}
	return func(http.ResponseWriter, *http.Request) error { return errRouteNotFound }
}

// routeName is the low-cardinality name used for spans.
func routeName(r *http.Request) string {
	path := r.URL.EscapedPath()
	if strings.HasPrefix(path, "/users/") {
		path = "/users/{id}"
	}
	return r.Method + " " + path
}

// userIDSegment returns the escaped path segment holding the user id.
func userIDSegment(path string) string {
	parts := strings.Split(path, "/")
	if len(parts) < 3 {
		return ""
	}
	return parts[2]
}

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes a JSON response with the provided status code.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("write response: %v", err)
	}
}

// writeError maps err to a status and exposes its message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		rid, _ := GetRequestID(r.Context())
		log.Printf("request failed method=%s path=%s request_id=%s err=%v", r.Method, r.URL.Path, rid, err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
