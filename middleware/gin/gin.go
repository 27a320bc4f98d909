// Package gin provides Gin middleware that gates resource creation on the
// caller's entitlement.
package gin

import (
	"errors"
	"net/http"
	"strconv"

	gongin "github.com/gin-gonic/gin"

	"github.com/foliokit/foliokit/pkg/foliokit"
)

// UserIDExtractor extracts the user ID from a Gin context.
// Return empty string if the user is not authenticated.
type UserIDExtractor func(c *gongin.Context) string

// ResourceExtractor extracts the gated resource kind from a Gin context.
type ResourceExtractor func(c *gongin.Context) foliokit.Resource

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
	// when a later handler responds with a 4xx or 5xx status
	KeepSlotOnFailure bool

	// OnLimitReached is called when the user is at their ceiling.
	// If nil, responds LimitStatusCode with a JSON body carrying the numbers.
	OnLimitReached func(c *gongin.Context, limitErr *foliokit.LimitError)

	// OnUnauthorized is called when the user is not authenticated
	// If nil, returns 401 Unauthorized
	OnUnauthorized func(c *gongin.Context)

	// OnError is called when an internal error occurs
	// If nil, returns 500 Internal Server Error
	OnError func(c *gongin.Context, err error)
}

// Middleware creates a Gin middleware that reserves one slot of the extracted
// resource before running the rest of the chain.
func Middleware(cfg Config) gongin.HandlerFunc {
	// Validate required configuration at startup (fail fast)
	if cfg.Manager == nil {
		panic("foliokit/gin: Config.Manager is required")
	}
	if cfg.GetUserID == nil {
		panic("foliokit/gin: Config.GetUserID is required")
	}
	if cfg.GetResource == nil {
		panic("foliokit/gin: Config.GetResource is required")
	}
	if cfg.LimitStatusCode == 0 {
		cfg.LimitStatusCode = http.StatusTooManyRequests
	}

	return func(c *gongin.Context) {
		userID := cfg.GetUserID(c)
		if userID == "" {
			if cfg.OnUnauthorized != nil {
				cfg.OnUnauthorized(c)
			} else {
				c.JSON(http.StatusUnauthorized, gongin.H{"error": "Unauthorized"})
			}
			c.Abort()
			return
		}

		resource := cfg.GetResource(c)
		ctx := c.Request.Context()

		err := cfg.Manager.Consume(ctx, userID, resource)
		if err != nil {
			var limitErr *foliokit.LimitError
			if errors.As(err, &limitErr) {
				if cfg.OnLimitReached != nil {
					cfg.OnLimitReached(c, limitErr)
				} else {
					c.Header("X-Limit", strconv.Itoa(limitErr.Limit))
					c.Header("X-Limit-Used", strconv.Itoa(limitErr.Used))
					c.JSON(cfg.LimitStatusCode, gongin.H{
						"error":    "limit reached",
						"resource": limitErr.Resource,
						"used":     limitErr.Used,
						"limit":    limitErr.Limit,
					})
				}
				c.Abort()
				return
			}
			if cfg.OnError != nil {
				cfg.OnError(c, err)
			} else {
				c.JSON(http.StatusInternalServerError, gongin.H{"error": "Internal Server Error"})
			}
			c.Abort()
			return
		}

		c.Next()

		if !cfg.KeepSlotOnFailure && c.Writer.Status() >= http.StatusBadRequest {
			// The creation failed downstream; hand the slot back
			_ = cfg.Manager.Release(ctx, userID, resource)
		}
	}
}

// Common extractors for convenience

// FromHeader returns a UserIDExtractor that gets the user ID from a header
func FromHeader(headerName string) UserIDExtractor {
	return func(c *gongin.Context) string {
		return c.GetHeader(headerName)
	}
}

// FromGinContext returns a UserIDExtractor that gets the user ID from the Gin
// context, for use behind an authentication middleware that calls c.Set.
func FromGinContext(key string) UserIDExtractor {
	return func(c *gongin.Context) string {
		if userID, ok := c.Get(key); ok {
			if s, ok := userID.(string); ok {
				return s
			}
		}
		return ""
	}
}

// FixedResource returns a ResourceExtractor that always returns one resource kind
func FixedResource(resource foliokit.Resource) ResourceExtractor {
	return func(c *gongin.Context) foliokit.Resource {
		return resource
	}
}
