package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/foliokit/foliokit/pkg/billing"
	"github.com/foliokit/foliokit/pkg/foliokit"
)

const (
	maxUserIDLen         = 255
	maxCheckoutBodyBytes = 4 * 1024
	healthStatusOK       = "ok"
	healthStatusDegraded = "degraded"
)

// Handler serves the entitlement and billing endpoints.
type Handler struct {
	config Config
}

// CreateCheckout handles POST /billing/checkout. The body names a product and
// quantity; the response carries the hosted payment session.
func (h *Handler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.config.Billing == nil {
		h.writeError(w, r, fmt.Errorf("billing is not configured"), http.StatusServiceUnavailable)
		return
	}

	userID := h.config.GetUserID(r)
	if userID == "" {
		h.writeError(w, r, fmt.Errorf("authentication required"), http.StatusUnauthorized)
		return
	}
	if len(userID) > maxUserIDLen {
		h.writeError(w, r, fmt.Errorf("invalid user ID"), http.StatusBadRequest)
		return
	}

	var req CheckoutRequest
	body := http.MaxBytesReader(w, r.Body, maxCheckoutBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		h.writeError(w, r, fmt.Errorf("invalid request body"), http.StatusBadRequest)
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	session, err := h.config.Billing.CreateCheckout(ctx, &billing.CheckoutRequest{
		UserID:     userID,
		SKU:        foliokit.SKU(req.ProductType),
		Quantity:   req.Quantity,
		SuccessURL: req.SuccessURL,
		CancelURL:  req.CancelURL,
	})
	switch {
	case err == nil:
	case errors.Is(err, foliokit.ErrUnknownProduct),
		errors.Is(err, foliokit.ErrInvalidQuantity),
		errors.Is(err, billing.ErrInvalidCheckoutRequest):
		h.writeError(w, r, err, http.StatusBadRequest)
		return
	default:
		h.config.Logger.Error("checkout creation failed",
			foliokit.Field{Key: "user_id", Value: userID},
			foliokit.Field{Key: "error", Value: err},
		)
		h.writeError(w, r, fmt.Errorf("payment processor unavailable"), http.StatusBadGateway)
		return
	}

	h.writeJSON(w, http.StatusOK, CheckoutResponse{
		SessionID: session.SessionID,
		URL:       session.URL,
	})
}

// GetEntitlements handles GET /entitlements: the caller's plan and the
// per-resource used/limit/remaining standing.
func (h *Handler) GetEntitlements(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := h.config.GetUserID(r)
	if userID == "" {
		h.writeError(w, r, fmt.Errorf("authentication required"), http.StatusUnauthorized)
		return
	}

	ent, err := h.config.Manager.GetEntitlement(ctx, userID)
	if err != nil {
		h.writeError(w, r, fmt.Errorf("failed to load entitlement"), http.StatusInternalServerError)
		return
	}

	resources := make(map[string]ResourceUsage, len(foliokit.Resources()))
	for _, resource := range foliokit.Resources() {
		usage, err := h.config.Manager.GetUsage(ctx, userID, resource)
		if err != nil {
			h.writeError(w, r, fmt.Errorf("failed to load usage"), http.StatusInternalServerError)
			return
		}
		resources[string(resource)] = ResourceUsage{
			Used:      usage.Used,
			Limit:     usage.Limit,
			Remaining: usage.Remaining(),
		}
	}

	h.writeJSON(w, http.StatusOK, EntitlementResponse{
		UserID:    userID,
		Plan:      ent.Plan,
		Resources: resources,
	})
}

// GetPurchases handles GET /billing/purchases: the caller's purchase history,
// newest first.
func (h *Handler) GetPurchases(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := h.config.GetUserID(r)
	if userID == "" {
		h.writeError(w, r, fmt.Errorf("authentication required"), http.StatusUnauthorized)
		return
	}

	purchases, err := h.config.Manager.Purchases(ctx, userID)
	if err != nil {
		h.writeError(w, r, fmt.Errorf("failed to load purchases"), http.StatusInternalServerError)
		return
	}

	records := make([]PurchaseRecord, 0, len(purchases))
	for _, p := range purchases {
		records = append(records, PurchaseRecord{
			SessionID:    p.SessionID,
			SKU:          string(p.SKU),
			Quantity:     p.Quantity,
			AmountCents:  p.AmountCents,
			CreditsAdded: p.CreditsAdded,
			Status:       p.Status,
			CreatedAt:    p.CreatedAt,
		})
	}

	h.writeJSON(w, http.StatusOK, PurchasesResponse{
		UserID:    userID,
		Purchases: records,
	})
}

// Healthz handles GET /healthz. With a Pinger configured a failing storage
// check reports 503.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	if h.config.Pinger != nil {
		if err := h.config.Pinger.Ping(r.Context()); err != nil {
			h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": healthStatusDegraded})
			return
		}
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": healthStatusOK})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.config.Logger.Error("failed to encode response", foliokit.Field{Key: "error", Value: err})
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	if h.config.OnError != nil {
		h.config.OnError(w, r, err, statusCode)
		return
	}
	h.writeJSON(w, statusCode, ErrorResponse{Error: err.Error()})
}
