package stripe

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/foliokit/foliokit/pkg/billing"
	"github.com/foliokit/foliokit/pkg/foliokit"
	"github.com/foliokit/foliokit/storage/memory"
)

const (
	testStripeAPIKey        = "sk_test_123"
	testStripeWebhookSecret = "whsec_test_secret"
	testUserID              = "user_123"
)

func newTestManager(t *testing.T) (*foliokit.Manager, *memory.Storage) {
	t.Helper()
	storage := memory.New()
	manager, err := foliokit.NewManager(storage, foliokit.Config{})
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}
	return manager, storage
}

func newTestProvider(t *testing.T, config Config) *Provider {
	t.Helper()
	if config.StripeAPIKey == "" {
		config.StripeAPIKey = testStripeAPIKey
	}
	if config.StripeWebhookSecret == "" {
		config.StripeWebhookSecret = testStripeWebhookSecret
	}
	provider, err := NewProvider(config)
	if err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}
	return provider
}

// signPayload produces a Stripe-Signature header for a payload, the same
// scheme ConstructEvent verifies: HMAC-SHA256 over "<timestamp>.<payload>".
func signPayload(t *testing.T, payload []byte, secret string, ts time.Time) string {
	t.Helper()
	signedPayload := fmt.Sprintf("%d.%s", ts.Unix(), payload)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(signedPayload))
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

// sessionEvent builds a signed webhook payload for a checkout session event
func sessionEvent(t *testing.T, eventType string, session map[string]interface{}) []byte {
	t.Helper()
	payload, err := json.Marshal(map[string]interface{}{
		"id":          "evt_test_1",
		"object":      "event",
		"api_version": stripe.APIVersion,
		"type":        eventType,
		"created":     time.Now().Unix(),
		"data": map[string]interface{}{
			"object": session,
		},
	})
	if err != nil {
		t.Fatalf("Failed to marshal event: %v", err)
	}
	return payload
}

func completedSession(sessionID, userID, sku, quantity string) map[string]interface{} {
	session := map[string]interface{}{
		"id":             sessionID,
		"object":         "checkout.session",
		"payment_status": "paid",
		"amount_total":   499,
		"payment_intent": "pi_test_1",
		"metadata":       map[string]string{},
	}
	metadata := map[string]string{}
	if userID != "" {
		metadata["user_id"] = userID
	}
	if sku != "" {
		metadata["sku"] = sku
	}
	if quantity != "" {
		metadata["quantity"] = quantity
	}
	session["metadata"] = metadata
	return session
}

func postWebhook(t *testing.T, provider *Provider, payload []byte, signature string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/billing/webhook", bytes.NewReader(payload))
	if signature != "" {
		req.Header.Set("Stripe-Signature", signature)
	}
	rec := httptest.NewRecorder()
	provider.WebhookHandler().ServeHTTP(rec, req)
	return rec
}

func TestWebhook_MethodNotAllowed(t *testing.T) {
	manager, _ := newTestManager(t)
	provider := newTestProvider(t, Config{Config: billing.Config{Manager: manager}})

	req := httptest.NewRequest(http.MethodGet, "/billing/webhook", nil)
	rec := httptest.NewRecorder()
	provider.WebhookHandler().ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", rec.Code)
	}
}

func TestWebhook_MissingSignature(t *testing.T) {
	manager, _ := newTestManager(t)
	provider := newTestProvider(t, Config{Config: billing.Config{Manager: manager}})

	payload := sessionEvent(t, "checkout.session.completed",
		completedSession("cs_1", testUserID, "projects_pack", "1"))

	rec := postWebhook(t, provider, payload, "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", rec.Code)
	}
}

func TestWebhook_BadSignature(t *testing.T) {
	manager, storage := newTestManager(t)
	provider := newTestProvider(t, Config{Config: billing.Config{Manager: manager}})

	payload := sessionEvent(t, "checkout.session.completed",
		completedSession("cs_1", testUserID, "projects_pack", "1"))

	// Signed with the wrong secret
	sig := signPayload(t, payload, "whsec_wrong_secret", time.Now())
	rec := postWebhook(t, provider, payload, sig)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", rec.Code)
	}

	// Nothing was credited
	if _, err := storage.GetPurchase(context.Background(), "cs_1"); err != foliokit.ErrPurchaseNotFound {
		t.Errorf("Expected no purchase recorded, got %v", err)
	}
}

func TestWebhook_TamperedPayload(t *testing.T) {
	manager, _ := newTestManager(t)
	provider := newTestProvider(t, Config{Config: billing.Config{Manager: manager}})

	payload := sessionEvent(t, "checkout.session.completed",
		completedSession("cs_1", testUserID, "projects_pack", "1"))
	sig := signPayload(t, payload, testStripeWebhookSecret, time.Now())

	tampered := bytes.Replace(payload, []byte(`"quantity":"1"`), []byte(`"quantity":"9"`), 1)

	rec := postWebhook(t, provider, tampered, sig)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 for tampered payload, got %d", rec.Code)
	}
}

func TestWebhook_SessionCompleted_Credits(t *testing.T) {
	manager, storage := newTestManager(t)
	provider := newTestProvider(t, Config{Config: billing.Config{Manager: manager}})
	ctx := context.Background()

	payload := sessionEvent(t, "checkout.session.completed",
		completedSession("cs_1", testUserID, "projects_pack", "2"))
	sig := signPayload(t, payload, testStripeWebhookSecret, time.Now())

	rec := postWebhook(t, provider, payload, sig)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	// Two projects packs on top of the free tier
	ent, err := manager.GetEntitlement(ctx, testUserID)
	if err != nil {
		t.Fatalf("GetEntitlement failed: %v", err)
	}
	if ent.Limits.Projects != 13 {
		t.Errorf("Expected projects limit 13, got %d", ent.Limits.Projects)
	}

	purchase, err := storage.GetPurchase(ctx, "cs_1")
	if err != nil {
		t.Fatalf("GetPurchase failed: %v", err)
	}
	if purchase.SKU != foliokit.SKUProjectsPack || purchase.Quantity != 2 {
		t.Errorf("Purchase mismatch: %+v", purchase)
	}
	if purchase.PaymentID != "pi_test_1" {
		t.Errorf("Expected payment id pi_test_1, got %s", purchase.PaymentID)
	}
	if purchase.AmountCents != 499 {
		t.Errorf("Expected amount 499, got %d", purchase.AmountCents)
	}
	if purchase.CreditsAdded != 10 {
		t.Errorf("Expected 10 credits added, got %d", purchase.CreditsAdded)
	}
}

func TestWebhook_OlderAPIVersionAccepted(t *testing.T) {
	manager, storage := newTestManager(t)
	provider := newTestProvider(t, Config{Config: billing.Config{Manager: manager}})

	// Endpoints pinned to an API version older than the SDK's still deliver
	// signed events; they must verify and credit, not 401 forever.
	payload, err := json.Marshal(map[string]interface{}{
		"id":          "evt_test_1",
		"object":      "event",
		"api_version": "2020-08-27",
		"type":        "checkout.session.completed",
		"created":     time.Now().Unix(),
		"data": map[string]interface{}{
			"object": completedSession("cs_1", testUserID, "projects_pack", "1"),
		},
	})
	if err != nil {
		t.Fatalf("Failed to marshal event: %v", err)
	}
	sig := signPayload(t, payload, testStripeWebhookSecret, time.Now())

	rec := postWebhook(t, provider, payload, sig)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if _, err := storage.GetPurchase(context.Background(), "cs_1"); err != nil {
		t.Errorf("Expected purchase recorded, got %v", err)
	}
}

func TestWebhook_Redelivery_CreditsOnce(t *testing.T) {
	manager, _ := newTestManager(t)
	provider := newTestProvider(t, Config{Config: billing.Config{Manager: manager}})
	ctx := context.Background()

	payload := sessionEvent(t, "checkout.session.completed",
		completedSession("cs_1", testUserID, "blog_pack", "1"))
	sig := signPayload(t, payload, testStripeWebhookSecret, time.Now())

	// Stripe may deliver the same event several times; every delivery must
	// be acknowledged but only the first one credits.
	for i := 0; i < 3; i++ {
		rec := postWebhook(t, provider, payload, sig)
		if rec.Code != http.StatusOK {
			t.Fatalf("Delivery %d: expected 200, got %d", i+1, rec.Code)
		}
	}

	ent, err := manager.GetEntitlement(ctx, testUserID)
	if err != nil {
		t.Fatalf("GetEntitlement failed: %v", err)
	}
	if ent.Limits.BlogPosts != 5 {
		t.Errorf("Expected blog posts limit 5 (credited once), got %d", ent.Limits.BlogPosts)
	}

	purchases, err := manager.Purchases(ctx, testUserID)
	if err != nil {
		t.Fatalf("Purchases failed: %v", err)
	}
	if len(purchases) != 1 {
		t.Errorf("Expected 1 purchase record, got %d", len(purchases))
	}
}

func TestWebhook_MalformedMetadata_Acknowledged(t *testing.T) {
	tests := []struct {
		name    string
		session map[string]interface{}
	}{
		{
			name:    "missing user_id",
			session: completedSession("cs_1", "", "projects_pack", "1"),
		},
		{
			name:    "missing sku",
			session: completedSession("cs_1", testUserID, "", "1"),
		},
		{
			name:    "unknown sku",
			session: completedSession("cs_1", testUserID, "mega_pack", "1"),
		},
		{
			name:    "non-numeric quantity",
			session: completedSession("cs_1", testUserID, "projects_pack", "lots"),
		},
		{
			name:    "zero quantity",
			session: completedSession("cs_1", testUserID, "projects_pack", "0"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			manager, storage := newTestManager(t)
			provider := newTestProvider(t, Config{Config: billing.Config{Manager: manager}})

			payload := sessionEvent(t, "checkout.session.completed", tt.session)
			sig := signPayload(t, payload, testStripeWebhookSecret, time.Now())

			// Acknowledged so Stripe stops redelivering a payload that can
			// never be processed
			rec := postWebhook(t, provider, payload, sig)
			if rec.Code != http.StatusOK {
				t.Errorf("Expected 200, got %d", rec.Code)
			}

			if _, err := storage.GetPurchase(context.Background(), "cs_1"); err != foliokit.ErrPurchaseNotFound {
				t.Errorf("Expected no purchase recorded, got %v", err)
			}
		})
	}
}

func TestWebhook_UnknownUserNotCredited(t *testing.T) {
	manager, storage := newTestManager(t)
	provider := newTestProvider(t, Config{
		Config: billing.Config{Manager: manager},
		UserExists: func(_ context.Context, userID string) (bool, error) {
			return userID == testUserID, nil
		},
	})

	payload := sessionEvent(t, "checkout.session.completed",
		completedSession("cs_1", "user_deleted", "projects_pack", "1"))
	sig := signPayload(t, payload, testStripeWebhookSecret, time.Now())

	// Metadata names a user that no longer resolves; acknowledged, not credited
	rec := postWebhook(t, provider, payload, sig)
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", rec.Code)
	}
	if _, err := storage.GetPurchase(context.Background(), "cs_1"); err != foliokit.ErrPurchaseNotFound {
		t.Errorf("Expected no purchase recorded, got %v", err)
	}

	// A resolvable user is credited as usual
	payload = sessionEvent(t, "checkout.session.completed",
		completedSession("cs_2", testUserID, "projects_pack", "1"))
	sig = signPayload(t, payload, testStripeWebhookSecret, time.Now())

	rec = postWebhook(t, provider, payload, sig)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if _, err := storage.GetPurchase(context.Background(), "cs_2"); err != nil {
		t.Errorf("Expected purchase recorded, got %v", err)
	}
}

func TestWebhook_MissingQuantityDefaultsToOne(t *testing.T) {
	manager, storage := newTestManager(t)
	provider := newTestProvider(t, Config{Config: billing.Config{Manager: manager}})

	payload := sessionEvent(t, "checkout.session.completed",
		completedSession("cs_1", testUserID, "projects_pack", ""))
	sig := signPayload(t, payload, testStripeWebhookSecret, time.Now())

	rec := postWebhook(t, provider, payload, sig)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	purchase, err := storage.GetPurchase(context.Background(), "cs_1")
	if err != nil {
		t.Fatalf("GetPurchase failed: %v", err)
	}
	if purchase.Quantity != 1 {
		t.Errorf("Expected quantity 1, got %d", purchase.Quantity)
	}
}

func TestWebhook_UnpaidSessionNotCredited(t *testing.T) {
	manager, storage := newTestManager(t)
	provider := newTestProvider(t, Config{Config: billing.Config{Manager: manager}})

	session := completedSession("cs_1", testUserID, "projects_pack", "1")
	session["payment_status"] = "unpaid"

	payload := sessionEvent(t, "checkout.session.completed", session)
	sig := signPayload(t, payload, testStripeWebhookSecret, time.Now())

	rec := postWebhook(t, provider, payload, sig)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	if _, err := storage.GetPurchase(context.Background(), "cs_1"); err != foliokit.ErrPurchaseNotFound {
		t.Errorf("Expected no purchase for unpaid session, got %v", err)
	}
}

func TestWebhook_IgnoredEventTypes(t *testing.T) {
	for _, eventType := range []string{
		"payment_intent.succeeded",
		"payment_intent.payment_failed",
		"checkout.session.expired",
		"customer.created",
	} {
		t.Run(eventType, func(t *testing.T) {
			manager, storage := newTestManager(t)
			provider := newTestProvider(t, Config{Config: billing.Config{Manager: manager}})

			payload := sessionEvent(t, eventType,
				completedSession("cs_1", testUserID, "projects_pack", "1"))
			sig := signPayload(t, payload, testStripeWebhookSecret, time.Now())

			rec := postWebhook(t, provider, payload, sig)
			if rec.Code != http.StatusOK {
				t.Errorf("Expected 200, got %d", rec.Code)
			}

			if _, err := storage.GetPurchase(context.Background(), "cs_1"); err != foliokit.ErrPurchaseNotFound {
				t.Errorf("Expected no purchase for %s, got %v", eventType, err)
			}
		})
	}
}

func TestWebhook_PayloadTooLarge(t *testing.T) {
	manager, _ := newTestManager(t)
	provider := newTestProvider(t, Config{Config: billing.Config{Manager: manager}})

	payload := []byte(strings.Repeat("x", maxWebhookBodyBytes+1))
	rec := postWebhook(t, provider, payload, "t=1,v1=deadbeef")
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("Expected 413, got %d", rec.Code)
	}
}

// failingStorage wraps memory storage and fails ApplyPurchase to simulate a
// backend outage during crediting
type failingStorage struct {
	*memory.Storage
}

func (f *failingStorage) ApplyPurchase(
	_ context.Context, _ *foliokit.Purchase, _ foliokit.CreditGrant,
) error {
	return foliokit.ErrStorageUnavailable
}

func TestWebhook_StorageFailureIsRetryable(t *testing.T) {
	storage := &failingStorage{Storage: memory.New()}
	manager, err := foliokit.NewManager(storage, foliokit.Config{})
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}
	provider := newTestProvider(t, Config{Config: billing.Config{Manager: manager}})

	payload := sessionEvent(t, "checkout.session.completed",
		completedSession("cs_1", testUserID, "projects_pack", "1"))
	sig := signPayload(t, payload, testStripeWebhookSecret, time.Now())

	// 500 tells Stripe to retry once the backend is healthy again
	rec := postWebhook(t, provider, payload, sig)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("Expected 500, got %d", rec.Code)
	}
}

func TestWebhook_CallbackInvoked(t *testing.T) {
	manager, _ := newTestManager(t)

	var events []*billing.WebhookEvent
	provider := newTestProvider(t, Config{
		Config: billing.Config{
			Manager: manager,
			WebhookCallback: func(event *billing.WebhookEvent) {
				events = append(events, event)
			},
		},
	})

	payload := sessionEvent(t, "checkout.session.completed",
		completedSession("cs_1", testUserID, "projects_pack", "1"))
	sig := signPayload(t, payload, testStripeWebhookSecret, time.Now())

	postWebhook(t, provider, payload, sig)
	postWebhook(t, provider, payload, sig)

	if len(events) != 2 {
		t.Fatalf("Expected 2 callback invocations, got %d", len(events))
	}
	if !events[0].Applied {
		t.Error("First delivery should report Applied=true")
	}
	if events[1].Applied {
		t.Error("Redelivery should report Applied=false")
	}
	if events[0].SKU != "projects_pack" || events[0].CreditsAdded != 5 {
		t.Errorf("Unexpected callback event: %+v", events[0])
	}
	if events[0].Provider != providerName {
		t.Errorf("Expected provider %s, got %s", providerName, events[0].Provider)
	}
	if events[0].SessionID != "cs_1" {
		t.Errorf("Expected session cs_1, got %s", events[0].SessionID)
	}
}

func TestWebhook_SecurityHeaders(t *testing.T) {
	manager, _ := newTestManager(t)
	provider := newTestProvider(t, Config{Config: billing.Config{Manager: manager}})

	payload := sessionEvent(t, "checkout.session.completed",
		completedSession("cs_1", testUserID, "projects_pack", "1"))
	sig := signPayload(t, payload, testStripeWebhookSecret, time.Now())

	rec := postWebhook(t, provider, payload, sig)
	if got := rec.Header().Get("Cache-Control"); got != "no-store" {
		t.Errorf("Expected Cache-Control no-store, got %q", got)
	}
	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("Expected X-Content-Type-Options nosniff, got %q", got)
	}
}
