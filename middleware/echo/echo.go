// Package echo provides Echo middleware that gates resource creation on the
// caller's entitlement.
package echo

import (
	"errors"
	"net/http"
	"strconv"

	goecho "github.com/labstack/echo/v4"

	"github.com/foliokit/foliokit/pkg/foliokit"
)

// UserIDExtractor extracts the user ID from an Echo context.
// Return empty string if the user is not authenticated.
type UserIDExtractor func(c goecho.Context) string

// ResourceExtractor extracts the gated resource kind from an Echo context.
type ResourceExtractor func(c goecho.Context) foliokit.Resource

// Config holds middleware configuration
type Config struct {
	// Manager is the entitlement manager instance (required)
	Manager *foliokit.Manager

	// GetUserID extracts user ID from context (required)
	GetUserID UserIDExtractor

	// GetResource extracts the resource kind from context (required)
	GetResource ResourceExtractor

	// LimitStatusCode is the HTTP status returned at the ceiling
	// Default: 429 (Too Many Requests)
	LimitStatusCode int

	// KeepSlotOnFailure disables the automatic release of the reserved slot
	// when the wrapped handler fails or responds with a 4xx or 5xx status
	KeepSlotOnFailure bool

	// OnLimitReached is called when the user is at their ceiling.
	// If nil, responds LimitStatusCode with a JSON body carrying the numbers.
	OnLimitReached func(c goecho.Context, limitErr *foliokit.LimitError) error

	// OnUnauthorized is called when the user is not authenticated
	// If nil, returns 401 Unauthorized
	OnUnauthorized func(c goecho.Context) error

	// OnError is called when an internal error occurs
	// If nil, returns 500 Internal Server Error
	OnError func(c goecho.Context, err error) error
}

// Middleware creates an Echo middleware that reserves one slot of the
// extracted resource before invoking the next handler.
func Middleware(cfg Config) goecho.MiddlewareFunc {
	// Validate required configuration at startup (fail fast)
	if cfg.Manager == nil {
		panic("foliokit/echo: Config.Manager is required")
	}
	if cfg.GetUserID == nil {
		panic("foliokit/echo: Config.GetUserID is required")
	}
	if cfg.GetResource == nil {
		panic("foliokit/echo: Config.GetResource is required")
	}
	if cfg.LimitStatusCode == 0 {
		cfg.LimitStatusCode = http.StatusTooManyRequests
	}

	return func(next goecho.HandlerFunc) goecho.HandlerFunc {
		return func(c goecho.Context) error {
			userID := cfg.GetUserID(c)
			if userID == "" {
				if cfg.OnUnauthorized != nil {
					return cfg.OnUnauthorized(c)
				}
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
			}

			resource := cfg.GetResource(c)
			ctx := c.Request().Context()

			err := cfg.Manager.Consume(ctx, userID, resource)
			if err != nil {
				var limitErr *foliokit.LimitError
				if errors.As(err, &limitErr) {
					if cfg.OnLimitReached != nil {
						return cfg.OnLimitReached(c, limitErr)
					}
					c.Response().Header().Set("X-Limit", strconv.Itoa(limitErr.Limit))
					c.Response().Header().Set("X-Limit-Used", strconv.Itoa(limitErr.Used))
					return c.JSON(cfg.LimitStatusCode, map[string]interface{}{
						"error":    "limit reached",
						"resource": limitErr.Resource,
						"used":     limitErr.Used,
						"limit":    limitErr.Limit,
					})
				}
				if cfg.OnError != nil {
					return cfg.OnError(c, err)
				}
				return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
			}

			handlerErr := next(c)

			if !cfg.KeepSlotOnFailure {
				if handlerErr != nil || c.Response().Status >= http.StatusBadRequest {
					// The creation failed downstream; hand the slot back
					_ = cfg.Manager.Release(ctx, userID, resource)
				}
			}
			return handlerErr
		}
	}
}

// Common extractors for convenience

// FromHeader returns a UserIDExtractor that gets the user ID from a header
func FromHeader(headerName string) UserIDExtractor {
	return func(c goecho.Context) string {
		return c.Request().Header.Get(headerName)
	}
}

// FromEchoContext returns a UserIDExtractor that gets the user ID from the
// Echo context, for use behind an authentication middleware that calls c.Set.
func FromEchoContext(key string) UserIDExtractor {
	return func(c goecho.Context) string {
		if userID, ok := c.Get(key).(string); ok {
			return userID
		}
		return ""
	}
}

// FixedResource returns a ResourceExtractor that always returns one resource kind
func FixedResource(resource foliokit.Resource) ResourceExtractor {
	return func(c goecho.Context) foliokit.Resource {
		return resource
	}
}
