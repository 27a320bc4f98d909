package billing

import "time"

// Metrics defines the interface for tracking payment provider operations.
// All methods are optional - providers should gracefully handle nil metrics.
type Metrics interface {
	// RecordWebhookEvent records a webhook event received from the provider.
	// eventType: The type of event (e.g., "checkout.session.completed")
	// status: "success", "ignored" or "error"
	RecordWebhookEvent(provider, eventType, status string)

	// RecordWebhookProcessingDuration records how long it took to process a webhook.
	RecordWebhookProcessingDuration(provider, eventType string, duration time.Duration)

	// RecordWebhookError records a webhook processing error.
	// errorType: The type of error (e.g., "auth_failed", "invalid_payload", "processing_error")
	RecordWebhookError(provider, errorType string)

	// RecordCheckoutSession records a checkout session creation attempt.
	// sku: The credit pack being bought
	// status: "success" or "error"
	RecordCheckoutSession(provider, sku, status string)

	// RecordCreditsApplied records credits granted through a webhook event.
	RecordCreditsApplied(provider, sku string, credits int)

	// RecordAPICall records an API call to the payment provider.
	// endpoint: The API endpoint called (e.g., "/checkout/sessions")
	// status: Outcome label (e.g., "success", "error")
	RecordAPICall(provider, endpoint, status string)

	// RecordAPICallDuration records how long an API call took.
	RecordAPICallDuration(provider, endpoint string, duration time.Duration)
}

// NoopMetrics is a no-op implementation of the Metrics interface.
type NoopMetrics struct{}

func (n *NoopMetrics) RecordWebhookEvent(_, _, _ string)                            {}
func (n *NoopMetrics) RecordWebhookProcessingDuration(_, _ string, _ time.Duration) {}
func (n *NoopMetrics) RecordWebhookError(_, _ string)                               {}
func (n *NoopMetrics) RecordCheckoutSession(_, _, _ string)                         {}
func (n *NoopMetrics) RecordCreditsApplied(_, _ string, _ int)                      {}
func (n *NoopMetrics) RecordAPICall(_, _, _ string)                                 {}
func (n *NoopMetrics) RecordAPICallDuration(_, _ string, _ time.Duration)           {}
