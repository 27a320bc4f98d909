// Package http provides net/http middleware that gates resource creation on
// the caller's entitlement. A slot is reserved before the handler runs; when
// the handler fails the reservation is released so a failed creation never
// burns credit.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/foliokit/foliokit/pkg/foliokit"
)

// UserIDExtractor extracts the user ID from an HTTP request.
// Return empty string if the user is not authenticated.
type UserIDExtractor func(r *http.Request) string

// ResourceExtractor extracts the gated resource kind from an HTTP request.
type ResourceExtractor func(r *http.Request) foliokit.Resource

// Config holds middleware configuration
type Config struct {
	// Manager is the entitlement manager instance (required)
	Manager *foliokit.Manager

	// GetUserID extracts user ID from request (required)
	GetUserID UserIDExtractor

	// GetResource extracts the resource kind from request (required)
	GetResource ResourceExtractor

	// LimitStatusCode is the HTTP status returned at the ceiling
	// Default: 429 (Too Many Requests)
	LimitStatusCode int

	// KeepSlotOnFailure disables the automatic release of the reserved slot
	// when the wrapped handler responds with a 4xx or 5xx status
	KeepSlotOnFailure bool

	// OnLimitReached is called when the user is at their ceiling.
	// If nil, responds LimitStatusCode with a JSON body carrying the numbers.
	OnLimitReached func(w http.ResponseWriter, r *http.Request, limitErr *foliokit.LimitError)

	// OnUnauthorized is called when the user is not authenticated
	// If nil, returns 401 Unauthorized
	OnUnauthorized func(w http.ResponseWriter, r *http.Request)

	// OnError is called when an internal error occurs
	// If nil, returns 500 Internal Server Error
	OnError func(w http.ResponseWriter, r *http.Request, err error)
}

// Middleware creates an HTTP middleware that reserves one slot of the
// extracted resource before invoking the next handler.
func Middleware(config Config) func(http.Handler) http.Handler {
	if config.Manager == nil {
		panic("foliokit/http: Config.Manager is required")
	}
	if config.GetUserID == nil {
		panic("foliokit/http: Config.GetUserID is required")
	}
	if config.GetResource == nil {
		panic("foliokit/http: Config.GetResource is required")
	}
	if config.LimitStatusCode == 0 {
		config.LimitStatusCode = http.StatusTooManyRequests
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := config.GetUserID(r)
			if userID == "" {
				if config.OnUnauthorized != nil {
					config.OnUnauthorized(w, r)
				} else {
					http.Error(w, "Unauthorized", http.StatusUnauthorized)
				}
				return
			}

			resource := config.GetResource(r)
			ctx := r.Context()

			err := config.Manager.Consume(ctx, userID, resource)
			if err != nil {
				var limitErr *foliokit.LimitError
				if errors.As(err, &limitErr) {
					if config.OnLimitReached != nil {
						config.OnLimitReached(w, r, limitErr)
					} else {
						writeLimitResponse(w, config.LimitStatusCode, limitErr)
					}
					return
				}
				if config.OnError != nil {
					config.OnError(w, r, err)
				} else {
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				}
				return
			}

			if config.KeepSlotOnFailure {
				next.ServeHTTP(w, r)
				return
			}

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			if rec.status >= http.StatusBadRequest {
				// The creation failed downstream; hand the slot back
				_ = config.Manager.Release(ctx, userID, resource)
			}
		})
	}
}

// HandlerFunc creates an HTTP middleware that gates creation (HandlerFunc version)
func HandlerFunc(config Config) func(http.HandlerFunc) http.HandlerFunc {
	middleware := Middleware(config)
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			middleware(next).ServeHTTP(w, r)
		}
	}
}

func writeLimitResponse(w http.ResponseWriter, status int, limitErr *foliokit.LimitError) {
	w.Header().Set("X-Limit", strconv.Itoa(limitErr.Limit))
	w.Header().Set("X-Limit-Used", strconv.Itoa(limitErr.Used))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error":    "limit reached",
		"resource": limitErr.Resource,
		"used":     limitErr.Used,
		"limit":    limitErr.Limit,
	})
}

// statusRecorder captures the status the wrapped handler wrote
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(status int) {
	rec.status = status
	rec.ResponseWriter.WriteHeader(status)
}

// Common extractors for convenience

// ContextKey is a type for context keys
type ContextKey string

// UserIDKey is the context key for user ID
const UserIDKey ContextKey = "foliokit:userID"

// FromContext returns a UserIDExtractor that gets the user ID from the request context
func FromContext(key ContextKey) UserIDExtractor {
	return func(r *http.Request) string {
		if userID, ok := r.Context().Value(key).(string); ok {
			return userID
		}
		return ""
	}
}

// FromHeader returns a UserIDExtractor that gets the user ID from a header
func FromHeader(headerName string) UserIDExtractor {
	return func(r *http.Request) string {
		return r.Header.Get(headerName)
	}
}

// FixedResource returns a ResourceExtractor that always returns one resource kind
func FixedResource(resource foliokit.Resource) ResourceExtractor {
	return func(r *http.Request) foliokit.Resource {
		return resource
	}
}

// WithUserID adds a user ID to the request context
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}
