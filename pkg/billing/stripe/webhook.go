package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/foliokit/foliokit/pkg/billing"
	"github.com/foliokit/foliokit/pkg/billing/internal"
	"github.com/foliokit/foliokit/pkg/foliokit"
)

// handleWebhook processes incoming Stripe webhook events.
//
// Response codes steer Stripe's retry behavior: 2xx acknowledges the
// delivery, anything else schedules a retry. Malformed metadata is
// acknowledged (a retry would carry the same bad payload), storage
// failures are not (a retry can succeed once the backend recovers).
func (p *Provider) handleWebhook(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	setSecurityHeaders(w)

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if len(p.webhookSecret) == 0 {
		http.Error(w, "webhook not configured", http.StatusServiceUnavailable)
		return
	}

	select {
	case <-r.Context().Done():
		http.Error(w, "request timeout", http.StatusRequestTimeout)
		return
	default:
	}

	// Read and validate body (with size limit protection)
	body, err := internal.ReadBodyStrict(w, r, maxWebhookBodyBytes)
	if err != nil {
		if errors.Is(err, internal.ErrPayloadTooLarge) {
			http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
			p.metrics.RecordWebhookError(providerName, "payload_too_large")
		} else {
			http.Error(w, fmt.Sprintf("invalid payload: %v", err), http.StatusBadRequest)
			p.metrics.RecordWebhookError(providerName, "invalid_payload")
		}
		return
	}

	sig := r.Header.Get("Stripe-Signature")
	if sig == "" {
		sig = r.Header.Get("stripe-signature")
	}

	// Verify the HMAC signature before trusting a single byte of the payload.
	// Endpoints pinned to an older Stripe API version must still verify, so
	// the SDK's version check is relaxed.
	event, err := stripe.ConstructEvent(body, sig, string(p.webhookSecret),
		stripe.WithIgnoreAPIVersionMismatch())
	if err != nil {
		sigErr := fmt.Errorf("%w: %v", billing.ErrInvalidWebhookSignature, err)
		p.logger.Warn("rejected webhook delivery",
			foliokit.Field{Key: "error", Value: sigErr.Error()},
		)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		p.metrics.RecordWebhookError(providerName, "auth_failed")
		return
	}

	eventType := string(event.Type)
	if eventType == "" {
		eventType = "UNKNOWN"
	}

	if err := p.processWebhookEvent(r.Context(), &event); err != nil {
		if errors.Is(err, billing.ErrInvalidWebhookPayload) {
			// Acknowledge: redelivery would fail the same way
			p.logger.Warn("ignoring webhook with invalid payload",
				foliokit.Field{Key: "event_type", Value: eventType},
				foliokit.Field{Key: "error", Value: err.Error()},
			)
			p.metrics.RecordWebhookEvent(providerName, eventType, "ignored")
			p.metrics.RecordWebhookProcessingDuration(providerName, eventType, time.Since(startTime))
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ignored"))
			return
		}

		p.logger.Error("webhook processing failed",
			foliokit.Field{Key: "event_type", Value: eventType},
			foliokit.Field{Key: "error", Value: err.Error()},
		)
		http.Error(w, "failed to process webhook", http.StatusInternalServerError)
		p.metrics.RecordWebhookEvent(providerName, eventType, "error")
		p.metrics.RecordWebhookError(providerName, "processing_error")
		p.metrics.RecordWebhookProcessingDuration(providerName, eventType, time.Since(startTime))
		return
	}

	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok")); err != nil {
		return
	}

	p.metrics.RecordWebhookEvent(providerName, eventType, "success")
	p.metrics.RecordWebhookProcessingDuration(providerName, eventType, time.Since(startTime))
}

// processWebhookEvent dispatches a verified event to its handler
func (p *Provider) processWebhookEvent(ctx context.Context, event *stripe.Event) error {
	eventTimestamp := time.Unix(event.Created, 0)

	switch event.Type {
	case "checkout.session.completed":
		return p.handleSessionCompleted(ctx, event, eventTimestamp)
	case "checkout.session.async_payment_succeeded":
		// Delayed payment methods complete here instead; crediting is
		// idempotent either way.
		return p.handleSessionCompleted(ctx, event, eventTimestamp)
	case "checkout.session.async_payment_failed", "checkout.session.expired":
		return p.handleSessionAbandoned(event, eventTimestamp)
	case "payment_intent.succeeded", "payment_intent.payment_failed":
		// Informational only: crediting happens on the session events.
		p.logger.Debug("acknowledged payment intent event",
			foliokit.Field{Key: "event_type", Value: string(event.Type)},
		)
		return nil
	default:
		// Unknown event type - acknowledge silently
		return nil
	}
}

// handleSessionCompleted credits a paid checkout session exactly once
func (p *Provider) handleSessionCompleted(
	ctx context.Context, event *stripe.Event, eventTimestamp time.Time,
) error {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return fmt.Errorf("%w: failed to unmarshal checkout session: %v",
			billing.ErrInvalidWebhookPayload, err)
	}
	if session.ID == "" {
		return fmt.Errorf("%w: checkout session without id", billing.ErrInvalidWebhookPayload)
	}

	if session.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		// completed but unpaid: async payment still pending, the
		// async_payment_succeeded event will follow
		p.logger.Debug("skipping unpaid checkout session",
			foliokit.Field{Key: "session_id", Value: session.ID},
			foliokit.Field{Key: "payment_status", Value: string(session.PaymentStatus)},
		)
		return nil
	}

	userID, sku, quantity, err := parseSessionMetadata(&session)
	if err != nil {
		return err
	}

	// Metadata is untrusted; re-derive that the user still resolves before
	// crediting anything
	if p.config.UserExists != nil {
		exists, err := p.config.UserExists(ctx, userID)
		if err != nil {
			return fmt.Errorf("failed to verify user %q: %w", userID, err)
		}
		if !exists {
			return fmt.Errorf("%w: unknown user %q", billing.ErrInvalidWebhookPayload, userID)
		}
	}

	paymentID := ""
	if session.PaymentIntent != nil {
		paymentID = session.PaymentIntent.ID
	}

	purchase := &foliokit.Purchase{
		SessionID:   session.ID,
		PaymentID:   paymentID,
		UserID:      userID,
		SKU:         foliokit.SKU(sku),
		Quantity:    quantity,
		AmountCents: session.AmountTotal,
		Status:      foliokit.PurchaseStatusCompleted,
		CreatedAt:   eventTimestamp.UTC(),
	}

	applied, err := p.manager.ApplyPurchase(ctx, purchase)
	if errors.Is(err, foliokit.ErrUnknownProduct) || errors.Is(err, foliokit.ErrInvalidQuantity) {
		// Metadata passed shape validation but fails business validation;
		// a retry cannot fix it
		return fmt.Errorf("%w: %v", billing.ErrInvalidWebhookPayload, err)
	}
	if err != nil {
		return fmt.Errorf("failed to apply purchase: %w", err)
	}

	if applied {
		p.metrics.RecordCreditsApplied(providerName, sku, purchase.CreditsAdded)
	}

	if p.config.WebhookCallback != nil {
		p.config.WebhookCallback(&billing.WebhookEvent{
			UserID:         userID,
			SessionID:      session.ID,
			SKU:            sku,
			Quantity:       quantity,
			CreditsAdded:   purchase.CreditsAdded,
			Applied:        applied,
			Provider:       providerName,
			EventType:      string(event.Type),
			EventTimestamp: eventTimestamp,
		})
	}

	return nil
}

// handleSessionAbandoned logs sessions that will never be credited
func (p *Provider) handleSessionAbandoned(event *stripe.Event, eventTimestamp time.Time) error {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return fmt.Errorf("%w: failed to unmarshal checkout session: %v",
			billing.ErrInvalidWebhookPayload, err)
	}

	p.logger.Info("checkout session abandoned",
		foliokit.Field{Key: "session_id", Value: session.ID},
		foliokit.Field{Key: "event_type", Value: string(event.Type)},
		foliokit.Field{Key: "event_time", Value: eventTimestamp},
	)
	return nil
}

// parseSessionMetadata validates the {user_id, sku, quantity} metadata a
// checkout session must carry. The values originate from our own
// CreateCheckout but arrive through Stripe, so they are treated as untrusted.
func parseSessionMetadata(session *stripe.CheckoutSession) (userID, sku string, quantity int, err error) {
	if session.Metadata == nil {
		return "", "", 0, fmt.Errorf("%w: session %s has no metadata",
			billing.ErrInvalidWebhookPayload, session.ID)
	}

	userID = session.Metadata["user_id"]
	if userID == "" {
		return "", "", 0, fmt.Errorf("%w: metadata.user_id missing on session %s",
			billing.ErrInvalidWebhookPayload, session.ID)
	}

	sku = session.Metadata["sku"]
	if sku == "" {
		return "", "", 0, fmt.Errorf("%w: metadata.sku missing on session %s",
			billing.ErrInvalidWebhookPayload, session.ID)
	}

	rawQuantity := session.Metadata["quantity"]
	if rawQuantity == "" {
		rawQuantity = "1"
	}
	quantity, err = strconv.Atoi(rawQuantity)
	if err != nil || quantity < 1 {
		return "", "", 0, fmt.Errorf("%w: metadata.quantity %q invalid on session %s",
			billing.ErrInvalidWebhookPayload, rawQuantity, session.ID)
	}

	return userID, sku, quantity, nil
}

func setSecurityHeaders(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
}
