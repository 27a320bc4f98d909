package prommetrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func gatherCounter(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if matchLabels(m, labels) {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func matchLabels(m *dto.Metric, labels map[string]string) bool {
	got := make(map[string]string, len(m.GetLabel()))
	for _, lp := range m.GetLabel() {
		got[lp.GetName()] = lp.GetValue()
	}
	for k, v := range labels {
		if got[k] != v {
			return false
		}
	}
	return true
}

func TestMetrics_RecordWebhookEvent(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg, "foliokit")

	metrics.RecordWebhookEvent("stripe", "checkout.session.completed", "success")
	metrics.RecordWebhookEvent("stripe", "checkout.session.completed", "success")
	metrics.RecordWebhookEvent("stripe", "checkout.session.completed", "ignored")

	succeeded := gatherCounter(t, reg, "foliokit_billing_webhook_events_total", map[string]string{
		"provider":   "stripe",
		"event_type": "checkout.session.completed",
		"status":     "success",
	})
	if succeeded != 2 {
		t.Errorf("Expected 2 successful events, got %v", succeeded)
	}

	ignored := gatherCounter(t, reg, "foliokit_billing_webhook_events_total", map[string]string{
		"provider": "stripe",
		"status":   "ignored",
	})
	if ignored != 1 {
		t.Errorf("Expected 1 ignored event, got %v", ignored)
	}
}

func TestMetrics_RecordCreditsApplied(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg, "foliokit")

	metrics.RecordCreditsApplied("stripe", "projects_pack", 5)
	metrics.RecordCreditsApplied("stripe", "projects_pack", 10)

	credits := gatherCounter(t, reg, "foliokit_billing_credits_applied_total", map[string]string{
		"provider": "stripe",
		"sku":      "projects_pack",
	})
	if credits != 15 {
		t.Errorf("Expected 15 credits, got %v", credits)
	}
}

func TestMetrics_RecordCheckoutSession(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg, "foliokit")

	metrics.RecordCheckoutSession("stripe", "blog_pack", "success")
	metrics.RecordCheckoutSession("stripe", "blog_pack", "error")

	succeeded := gatherCounter(t, reg, "foliokit_billing_checkout_sessions_total", map[string]string{
		"sku":    "blog_pack",
		"status": "success",
	})
	if succeeded != 1 {
		t.Errorf("Expected 1 successful checkout, got %v", succeeded)
	}
}

func TestMetrics_Durations(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg, "foliokit")

	metrics.RecordWebhookProcessingDuration("stripe", "checkout.session.completed", 25*time.Millisecond)
	metrics.RecordAPICallDuration("stripe", "/checkout/sessions", 120*time.Millisecond)
	metrics.RecordWebhookError("stripe", "auth_failed")
	metrics.RecordAPICall("stripe", "/checkout/sessions", "success")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	if len(families) != 4 {
		t.Errorf("Expected 4 metric families, got %d", len(families))
	}
}
