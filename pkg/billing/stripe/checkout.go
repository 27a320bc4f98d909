package stripe

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/foliokit/foliokit/pkg/billing"
)

// CreateCheckout creates a one-time payment Checkout Session for a credit pack.
// The SKU is resolved against the catalog before any Stripe call, so an
// unknown product never reaches the payment provider.
func (p *Provider) CreateCheckout(
	ctx context.Context, req *billing.CheckoutRequest,
) (*billing.CheckoutSession, error) {
	startTime := time.Now()

	if req == nil || req.UserID == "" {
		return nil, fmt.Errorf("%w: user id is required", billing.ErrInvalidCheckoutRequest)
	}
	if req.Quantity < 1 {
		return nil, fmt.Errorf("%w: quantity must be at least 1", billing.ErrInvalidCheckoutRequest)
	}

	product, err := p.manager.Catalog().Lookup(string(req.SKU))
	if err != nil {
		p.metrics.RecordCheckoutSession(providerName, string(req.SKU), "unknown_product")
		return nil, err
	}

	if p.config.UserExists != nil {
		exists, err := p.config.UserExists(ctx, req.UserID)
		if err != nil {
			p.metrics.RecordCheckoutSession(providerName, string(req.SKU), "user_lookup_failed")
			return nil, fmt.Errorf("failed to verify user: %w", err)
		}
		if !exists {
			return nil, fmt.Errorf("%w: unknown user", billing.ErrInvalidCheckoutRequest)
		}
	}

	successURL := req.SuccessURL
	if successURL == "" {
		successURL = p.config.SuccessURL
	}
	cancelURL := req.CancelURL
	if cancelURL == "" {
		cancelURL = p.config.CancelURL
	}

	params := &stripe.CheckoutSessionCreateParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionCreateLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionCreateLineItemPriceDataParams{
					Currency: stripe.String(checkoutCurrency),
					ProductData: &stripe.CheckoutSessionCreateLineItemPriceDataProductDataParams{
						Name:        stripe.String(product.Name),
						Description: stripe.String(product.Description),
					},
					UnitAmount: stripe.Int64(product.UnitPriceCents),
				},
				Quantity: stripe.Int64(int64(req.Quantity)),
			},
		},
		SuccessURL:        stripe.String(successURL),
		CancelURL:         stripe.String(cancelURL),
		ClientReferenceID: stripe.String(req.UserID),
	}

	// The webhook consumer reads these back; without them a completed
	// session cannot be credited.
	params.Metadata = map[string]string{
		"user_id":  req.UserID,
		"sku":      string(product.SKU),
		"quantity": strconv.Itoa(req.Quantity),
	}

	session, err := p.stripeClient.V1CheckoutSessions.Create(ctx, params)
	if err != nil {
		p.metrics.RecordCheckoutSession(providerName, string(req.SKU), "error")
		p.metrics.RecordAPICall(providerName, "/checkout/sessions", "error")
		p.metrics.RecordAPICallDuration(providerName, "/checkout/sessions", time.Since(startTime))
		return nil, fmt.Errorf("%w: failed to create checkout session: %v", billing.ErrProviderAPIError, err)
	}

	p.metrics.RecordCheckoutSession(providerName, string(req.SKU), "success")
	p.metrics.RecordAPICall(providerName, "/checkout/sessions", "success")
	p.metrics.RecordAPICallDuration(providerName, "/checkout/sessions", time.Since(startTime))

	return &billing.CheckoutSession{
		SessionID: session.ID,
		URL:       session.URL,
	}, nil
}
