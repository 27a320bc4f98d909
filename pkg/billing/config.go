package billing

import (
	"net/http"

	"github.com/foliokit/foliokit/pkg/foliokit"
)

// Config defines the standard configuration all providers should accept
type Config struct {
	// Manager is the foliokit Manager that purchases are credited through.
	Manager *foliokit.Manager

	// WebhookSecret is used to verify incoming webhook requests.
	WebhookSecret string

	// APIKey is used for outbound API calls to the payment provider.
	APIKey string

	// SuccessURL is where the buyer lands after a completed payment.
	SuccessURL string

	// CancelURL is where the buyer lands after abandoning checkout.
	CancelURL string

	// HTTPClient is an optional HTTP client for API calls.
	// If nil, a default client with 10s timeout will be used.
	// Allows custom timeouts, proxies, or instrumentation.
	HTTPClient *http.Client

	// WebhookCallback is invoked after a webhook event has been fully
	// processed. Useful for cache invalidation or notifying the user.
	// Called synchronously; keep it fast or dispatch to a goroutine.
	WebhookCallback func(event *WebhookEvent)

	// Logger is an optional structured logger for webhook processing.
	// If nil, logging is silently ignored (no-op).
	Logger foliokit.Logger

	// Metrics is an optional metrics collector for tracking provider operations.
	// If nil, metrics will be silently ignored (no-op).
	// Use billing/metrics/prometheus.DefaultMetrics(namespace) for Prometheus metrics.
	Metrics Metrics
}
