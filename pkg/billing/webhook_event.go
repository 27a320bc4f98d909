package billing

import "time"

// WebhookEvent contains information about a processed webhook event.
// It is passed to the WebhookCallback after the provider has finished
// handling the notification.
type WebhookEvent struct {
	// UserID is the internal user identifier
	UserID string

	// SessionID is the payment session the event belongs to
	SessionID string

	// SKU is the credit pack that was bought (empty for non-purchase events)
	SKU string

	// Quantity is the number of packs bought
	Quantity int

	// CreditsAdded is the total number of credits granted
	CreditsAdded int

	// Applied reports whether this delivery actually granted credits.
	// False for redeliveries of an already-processed session.
	Applied bool

	// Provider is the payment provider name ("stripe")
	Provider string

	// EventType is the provider-specific event type
	// Stripe: "checkout.session.completed", "payment_intent.succeeded", etc.
	EventType string

	// EventTimestamp is when the event occurred (from provider)
	EventTimestamp time.Time
}
