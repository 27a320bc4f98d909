package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// Router assembles the full HTTP surface on a chi router:
//
//	POST /billing/checkout   create a hosted payment session
//	POST /billing/webhook    payment provider event sink
//	GET  /billing/purchases  caller's purchase history
//	GET  /entitlements       caller's per-resource standing
//	GET  /healthz            liveness probe
func Router(config Config) (chi.Router, error) {
	handler, err := NewHandler(config)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)

	r.Route("/billing", func(r chi.Router) {
		r.Post("/checkout", handler.CreateCheckout)
		r.Get("/purchases", handler.GetPurchases)
		if config.Billing != nil {
			r.Method(http.MethodPost, "/webhook", config.Billing.WebhookHandler())
		}
	})
	r.Get("/entitlements", handler.GetEntitlements)
	r.Get("/healthz", handler.Healthz)

	return r, nil
}
