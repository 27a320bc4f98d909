package api

import "time"

// CheckoutRequest is the body of POST /billing/checkout.
type CheckoutRequest struct {
	ProductType string `json:"product_type"`
	Quantity    int    `json:"quantity"`
	SuccessURL  string `json:"success_url,omitempty"`
	CancelURL   string `json:"cancel_url,omitempty"`
}

// CheckoutResponse is the body of a successful checkout creation.
type CheckoutResponse struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

// ResourceUsage is one resource's standing in the entitlement summary.
type ResourceUsage struct {
	Used      int `json:"used"`
	Limit     int `json:"limit"`
	Remaining int `json:"remaining"`
}

// EntitlementResponse is the body of GET /entitlements.
type EntitlementResponse struct {
	UserID    string                   `json:"user_id"`
	Plan      string                   `json:"plan"`
	Resources map[string]ResourceUsage `json:"resources"`
}

// PurchaseRecord is one entry in the purchase history.
type PurchaseRecord struct {
	SessionID    string    `json:"session_id"`
	SKU          string    `json:"sku"`
	Quantity     int       `json:"quantity"`
	AmountCents  int64     `json:"amount_cents"`
	CreditsAdded int       `json:"credits_added"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}

// PurchasesResponse is the body of GET /billing/purchases.
type PurchasesResponse struct {
	UserID    string           `json:"user_id"`
	Purchases []PurchaseRecord `json:"purchases"`
}

// ErrorResponse is the uniform error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}
