// Package stripe implements the billing.Provider interface on top of Stripe
// Checkout and webhooks. A checkout session carries {user_id, sku, quantity}
// metadata; the webhook consumer re-validates that metadata against the
// catalog and credits the purchase through the Manager, keyed by session ID.
package stripe

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/foliokit/foliokit/pkg/billing"
	"github.com/foliokit/foliokit/pkg/billing/internal"
	"github.com/foliokit/foliokit/pkg/foliokit"
)

const (
	providerName             = "stripe"
	defaultHTTPTimeout       = 10 * time.Second
	defaultRateLimitWindow   = time.Minute
	defaultRateLimitRequests = 100
	checkoutCurrency         = "eur"
	maxWebhookBodyBytes      = 256 * 1024
)

// Config extends billing.Config with Stripe-specific options
type Config struct {
	billing.Config // Base config (Manager, WebhookSecret, etc.)

	// Stripe-specific
	StripeAPIKey        string
	StripeWebhookSecret string

	// UserExists is an optional hook to verify a user ID before starting
	// checkout and before crediting a webhook purchase. When nil, any
	// non-empty user ID is accepted.
	UserExists func(ctx context.Context, userID string) (bool, error)
}

// Provider implements the billing.Provider interface for Stripe
type Provider struct {
	manager       *foliokit.Manager
	config        Config
	httpClient    *http.Client
	rateLimiter   *internal.RateLimiter
	webhookSecret []byte
	apiKey        string
	stripeClient  *stripe.Client
	logger        foliokit.Logger
	metrics       billing.Metrics
}

// NewProvider creates a new Stripe billing provider
func NewProvider(config Config) (*Provider, error) {
	if config.Manager == nil {
		return nil, billing.ErrProviderNotConfigured
	}

	apiKey := strings.TrimSpace(config.StripeAPIKey)
	if apiKey == "" {
		apiKey = strings.TrimSpace(config.APIKey)
	}
	if apiKey == "" {
		return nil, billing.ErrProviderNotConfigured
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: defaultHTTPTimeout,
		}
	}

	webhookSecret := strings.TrimSpace(config.StripeWebhookSecret)
	if webhookSecret == "" {
		webhookSecret = strings.TrimSpace(config.WebhookSecret)
	}

	logger := config.Logger
	if logger == nil {
		logger = &foliokit.NoopLogger{}
	}

	metrics := config.Metrics
	if metrics == nil {
		metrics = &billing.NoopMetrics{}
	}

	return &Provider{
		manager:       config.Manager,
		config:        config,
		httpClient:    httpClient,
		rateLimiter:   internal.NewRateLimiter(defaultRateLimitRequests, defaultRateLimitWindow),
		webhookSecret: []byte(webhookSecret),
		apiKey:        apiKey,
		stripeClient:  stripe.NewClient(apiKey),
		logger:        logger,
		metrics:       metrics,
	}, nil
}

// Name returns the provider name
func (p *Provider) Name() string {
	return providerName
}

// WebhookHandler returns the HTTP handler for Stripe webhooks
func (p *Provider) WebhookHandler() http.Handler {
	handler := http.HandlerFunc(p.handleWebhook)
	return p.rateLimiter.Middleware(handler)
}
