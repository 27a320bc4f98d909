// Package fiber provides Fiber middleware that gates resource creation on the
// caller's entitlement.
package fiber

import (
	"errors"
	"strconv"

	gofiber "github.com/gofiber/fiber/v2"

	"github.com/foliokit/foliokit/pkg/foliokit"
)

// UserIDExtractor extracts the user ID from a Fiber context.
// Return empty string if the user is not authenticated.
type UserIDExtractor func(c *gofiber.Ctx) string

// ResourceExtractor extracts the gated resource kind from a Fiber context.
type ResourceExtractor func(c *gofiber.Ctx) foliokit.Resource

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
	// when a later handler fails or responds with a 4xx or 5xx status
	KeepSlotOnFailure bool

	// OnLimitReached is called when the user is at their ceiling.
	// If nil, responds LimitStatusCode with a JSON body carrying the numbers.
	OnLimitReached func(c *gofiber.Ctx, limitErr *foliokit.LimitError) error

	// OnUnauthorized is called when the user is not authenticated
	// If nil, returns 401 Unauthorized
	OnUnauthorized func(c *gofiber.Ctx) error

	// OnError is called when an internal error occurs
	// If nil, returns 500 Internal Server Error
	OnError func(c *gofiber.Ctx, err error) error
}

// Middleware creates a Fiber middleware that reserves one slot of the
// extracted resource before invoking the next handler.
func Middleware(cfg Config) gofiber.Handler {
	// Validate required configuration at startup (fail fast)
	if cfg.Manager == nil {
		panic("foliokit/fiber: Config.Manager is required")
	}
	if cfg.GetUserID == nil {
		panic("foliokit/fiber: Config.GetUserID is required")
	}
	if cfg.GetResource == nil {
		panic("foliokit/fiber: Config.GetResource is required")
	}
	if cfg.LimitStatusCode == 0 {
		cfg.LimitStatusCode = gofiber.StatusTooManyRequests
	}

	return func(c *gofiber.Ctx) error {
		userID := cfg.GetUserID(c)
		if userID == "" {
			if cfg.OnUnauthorized != nil {
				return cfg.OnUnauthorized(c)
			}
			return c.Status(gofiber.StatusUnauthorized).JSON(gofiber.Map{"error": "Unauthorized"})
		}

		resource := cfg.GetResource(c)
		ctx := c.UserContext()

		err := cfg.Manager.Consume(ctx, userID, resource)
		if err != nil {
			var limitErr *foliokit.LimitError
			if errors.As(err, &limitErr) {
				if cfg.OnLimitReached != nil {
					return cfg.OnLimitReached(c, limitErr)
				}
				c.Set("X-Limit", strconv.Itoa(limitErr.Limit))
				c.Set("X-Limit-Used", strconv.Itoa(limitErr.Used))
				return c.Status(cfg.LimitStatusCode).JSON(gofiber.Map{
					"error":    "limit reached",
					"resource": limitErr.Resource,
					"used":     limitErr.Used,
					"limit":    limitErr.Limit,
				})
			}
			if cfg.OnError != nil {
				return cfg.OnError(c, err)
			}
			return c.Status(gofiber.StatusInternalServerError).JSON(gofiber.Map{"error": "Internal Server Error"})
		}

		handlerErr := c.Next()

		if !cfg.KeepSlotOnFailure {
			if handlerErr != nil || c.Response().StatusCode() >= gofiber.StatusBadRequest {
				// The creation failed downstream; hand the slot back
				_ = cfg.Manager.Release(ctx, userID, resource)
			}
		}
		return handlerErr
	}
}

// Common extractors for convenience

// FromHeader returns a UserIDExtractor that gets the user ID from a header
func FromHeader(headerName string) UserIDExtractor {
	return func(c *gofiber.Ctx) string {
		return c.Get(headerName)
	}
}

// FromLocals returns a UserIDExtractor that gets the user ID from Fiber
// locals, for use behind an authentication middleware that calls c.Locals.
func FromLocals(key string) UserIDExtractor {
	return func(c *gofiber.Ctx) string {
		if userID, ok := c.Locals(key).(string); ok {
			return userID
		}
		return ""
	}
}

// FixedResource returns a ResourceExtractor that always returns one resource kind
func FixedResource(resource foliokit.Resource) ResourceExtractor {
	return func(c *gofiber.Ctx) foliokit.Resource {
		return resource
	}
}
