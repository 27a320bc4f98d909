package http_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/foliokit/foliokit/pkg/foliokit"
	"github.com/foliokit/foliokit/storage/memory"

	fkhttp "github.com/foliokit/foliokit/middleware/http"
)

func newTestManager(t *testing.T) *foliokit.Manager {
	t.Helper()
	manager, err := foliokit.NewManager(memory.New(), foliokit.Config{})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	return manager
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})
}

func TestMiddleware_AllowsUnderLimit(t *testing.T) {
	manager := newTestManager(t)
	handler := fkhttp.Middleware(fkhttp.Config{
		Manager:     manager,
		GetUserID:   fkhttp.FromHeader("X-User-ID"),
		GetResource: fkhttp.FixedResource(foliokit.ResourceProjects),
	})(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/projects", nil)
	req.Header.Set("X-User-ID", "user-1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Errorf("Expected 201, got %d", rec.Code)
	}

	usage, err := manager.GetUsage(context.Background(), "user-1", foliokit.ResourceProjects)
	if err != nil {
		t.Fatalf("GetUsage failed: %v", err)
	}
	if usage.Used != 1 {
		t.Errorf("Expected 1 slot used, got %d", usage.Used)
	}
}

func TestMiddleware_BlocksAtLimit(t *testing.T) {
	manager := newTestManager(t)
	handler := fkhttp.Middleware(fkhttp.Config{
		Manager:     manager,
		GetUserID:   fkhttp.FromHeader("X-User-ID"),
		GetResource: fkhttp.FixedResource(foliokit.ResourceProjects),
	})(okHandler())

	// Free tier allows three projects
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/projects", nil)
		req.Header.Set("X-User-ID", "user-1")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusCreated {
			t.Fatalf("Request %d: expected 201, got %d", i, rec.Code)
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/projects", nil)
	req.Header.Set("X-User-ID", "user-1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("Expected 429, got %d", rec.Code)
	}
	if got := rec.Header().Get("X-Limit"); got != "3" {
		t.Errorf("Expected X-Limit 3, got %q", got)
	}
	if got := rec.Header().Get("X-Limit-Used"); got != "3" {
		t.Errorf("Expected X-Limit-Used 3, got %q", got)
	}
}

func TestMiddleware_Unauthenticated(t *testing.T) {
	manager := newTestManager(t)
	handler := fkhttp.Middleware(fkhttp.Config{
		Manager:     manager,
		GetUserID:   fkhttp.FromHeader("X-User-ID"),
		GetResource: fkhttp.FixedResource(foliokit.ResourcePortfolios),
	})(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/portfolios", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", rec.Code)
	}
}

func TestMiddleware_ReleasesSlotOnHandlerFailure(t *testing.T) {
	manager := newTestManager(t)
	failing := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slug taken", http.StatusConflict)
	})
	handler := fkhttp.Middleware(fkhttp.Config{
		Manager:     manager,
		GetUserID:   fkhttp.FromHeader("X-User-ID"),
		GetResource: fkhttp.FixedResource(foliokit.ResourcePortfolios),
	})(failing)

	req := httptest.NewRequest(http.MethodPost, "/portfolios", nil)
	req.Header.Set("X-User-ID", "user-1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("Expected 409, got %d", rec.Code)
	}
	usage, err := manager.GetUsage(context.Background(), "user-1", foliokit.ResourcePortfolios)
	if err != nil {
		t.Fatalf("GetUsage failed: %v", err)
	}
	if usage.Used != 0 {
		t.Errorf("Expected slot released after handler failure, got used=%d", usage.Used)
	}
}

func TestMiddleware_KeepSlotOnFailure(t *testing.T) {
	manager := newTestManager(t)
	failing := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "oops", http.StatusInternalServerError)
	})
	handler := fkhttp.Middleware(fkhttp.Config{
		Manager:           manager,
		GetUserID:         fkhttp.FromHeader("X-User-ID"),
		GetResource:       fkhttp.FixedResource(foliokit.ResourcePortfolios),
		KeepSlotOnFailure: true,
	})(failing)

	req := httptest.NewRequest(http.MethodPost, "/portfolios", nil)
	req.Header.Set("X-User-ID", "user-1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	usage, err := manager.GetUsage(context.Background(), "user-1", foliokit.ResourcePortfolios)
	if err != nil {
		t.Fatalf("GetUsage failed: %v", err)
	}
	if usage.Used != 1 {
		t.Errorf("Expected slot kept, got used=%d", usage.Used)
	}
}

func TestMiddleware_CustomLimitHandler(t *testing.T) {
	manager := newTestManager(t)
	var captured *foliokit.LimitError
	handler := fkhttp.Middleware(fkhttp.Config{
		Manager:     manager,
		GetUserID:   fkhttp.FromHeader("X-User-ID"),
		GetResource: fkhttp.FixedResource(foliokit.ResourceBlogPosts),
		OnLimitReached: func(w http.ResponseWriter, r *http.Request, limitErr *foliokit.LimitError) {
			captured = limitErr
			w.WriteHeader(http.StatusPaymentRequired)
		},
	})(okHandler())

	// Free tier grants zero blog posts
	req := httptest.NewRequest(http.MethodPost, "/posts", nil)
	req.Header.Set("X-User-ID", "user-1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusPaymentRequired {
		t.Errorf("Expected 402, got %d", rec.Code)
	}
	if captured == nil || captured.Limit != 0 {
		t.Errorf("Expected captured limit error with zero limit, got %+v", captured)
	}
}

func TestFromContextExtractor(t *testing.T) {
	manager := newTestManager(t)
	handler := fkhttp.Middleware(fkhttp.Config{
		Manager:     manager,
		GetUserID:   fkhttp.FromContext(fkhttp.UserIDKey),
		GetResource: fkhttp.FixedResource(foliokit.ResourceProjects),
	})(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/projects", nil)
	req = req.WithContext(fkhttp.WithUserID(req.Context(), "user-7"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Errorf("Expected 201, got %d", rec.Code)
	}
}

func TestHandlerFuncWrapper(t *testing.T) {
	manager := newTestManager(t)
	wrapped := fkhttp.HandlerFunc(fkhttp.Config{
		Manager:     manager,
		GetUserID:   fkhttp.FromHeader("X-User-ID"),
		GetResource: fkhttp.FixedResource(foliokit.ResourceProjects),
	})(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})

	req := httptest.NewRequest(http.MethodPost, "/projects", nil)
	req.Header.Set("X-User-ID", "user-1")
	rec := httptest.NewRecorder()
	wrapped(rec, req)

	if rec.Code != http.StatusCreated {
		t.Errorf("Expected 201, got %d", rec.Code)
	}
}
