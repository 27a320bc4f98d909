package billing

import (
	"context"
	"net/http"

	"github.com/foliokit/foliokit/pkg/foliokit"
)

// Provider is the generic interface that any payment backend must implement.
// This allows the application to swap Stripe for another processor with zero
// logic changes.
type Provider interface {
	// Name returns the provider name (e.g., "stripe")
	Name() string

	// WebhookHandler returns the HTTP handler that processes payment events.
	// The implementation handles signature verification, parsing, and credit
	// application internally.
	WebhookHandler() http.Handler

	// CreateCheckout starts a hosted payment session for a credit pack.
	// The returned session carries the redirect URL for the buyer.
	CreateCheckout(ctx context.Context, req *CheckoutRequest) (*CheckoutSession, error)
}

// CheckoutRequest describes the credit pack a user wants to buy.
type CheckoutRequest struct {
	// UserID is the internal user identifier, carried through the payment
	// session metadata so the webhook can credit the right account.
	UserID string

	// SKU identifies the credit pack in the catalog.
	SKU foliokit.SKU

	// Quantity is the number of packs (minimum 1).
	Quantity int

	// SuccessURL and CancelURL override the provider-level defaults when set.
	SuccessURL string
	CancelURL  string
}

// CheckoutSession is the provider's handle on a created payment session.
type CheckoutSession struct {
	// SessionID is the provider's session identifier. After payment it
	// becomes the idempotency key for the resulting purchase.
	SessionID string

	// URL is the hosted payment page to redirect the buyer to.
	URL string
}
