// Package api exposes the entitlement and billing surface over HTTP: checkout
// creation, the webhook mount, purchase history, the per-resource entitlement
// summary and a health probe. Routing uses chi; responses are JSON with a
// uniform error envelope.
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/foliokit/foliokit/pkg/billing"
	"github.com/foliokit/foliokit/pkg/foliokit"
)

// Pinger is implemented by storage backends that can verify connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config holds configuration for the API handler
type Config struct {
	// Manager is the entitlement manager instance (required)
	Manager *foliokit.Manager

	// Billing is the payment provider serving checkout creation and the
	// webhook mount. When nil the billing routes respond 503.
	Billing billing.Provider

	// GetUserID extracts the caller's user ID from the request (required).
	// An empty return means unauthenticated.
	GetUserID func(*http.Request) string

	// Pinger optionally backs the health endpoint with a storage check
	Pinger Pinger

	// OnError overrides the default JSON error envelope when set
	OnError func(http.ResponseWriter, *http.Request, error, int)

	// Logger is used for structured logging (default: NoopLogger)
	Logger foliokit.Logger
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Manager == nil {
		return fmt.Errorf("manager is required")
	}
	if c.GetUserID == nil {
		return fmt.Errorf("getUserID is required")
	}
	return nil
}

// NewHandler creates a new API handler with the given configuration
func NewHandler(config Config) (*Handler, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if config.Logger == nil {
		config.Logger = &foliokit.NoopLogger{}
	}
	return &Handler{config: config}, nil
}

// Helper functions for common UserID extraction patterns

// FromHeader returns a GetUserID function that extracts the user ID from a header
func FromHeader(headerName string) func(*http.Request) string {
	return func(r *http.Request) string {
		return r.Header.Get(headerName)
	}
}

// FromContext returns a GetUserID function that extracts the user ID from the
// request context, for use behind an authentication middleware.
func FromContext(key interface{}) func(*http.Request) string {
	return func(r *http.Request) string {
		if userID, ok := r.Context().Value(key).(string); ok {
			return userID
		}
		return ""
	}
}
