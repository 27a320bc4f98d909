package echo_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	goecho "github.com/labstack/echo/v4"

	fkecho "github.com/foliokit/foliokit/middleware/echo"
	"github.com/foliokit/foliokit/pkg/foliokit"
	"github.com/foliokit/foliokit/storage/memory"
)

func newTestManager(t *testing.T) *foliokit.Manager {
	t.Helper()
	manager, err := foliokit.NewManager(memory.New(), foliokit.Config{})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	return manager
}

func newTestApp(manager *foliokit.Manager, handler goecho.HandlerFunc) *goecho.Echo {
	e := goecho.New()
	e.POST("/projects", handler, fkecho.Middleware(fkecho.Config{
		Manager:     manager,
		GetUserID:   fkecho.FromHeader("X-User-ID"),
		GetResource: fkecho.FixedResource(foliokit.ResourceProjects),
	}))
	return e
}

func created(c goecho.Context) error { return c.NoContent(http.StatusCreated) }

func doPost(e *goecho.Echo, userID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/projects", nil)
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestMiddleware_AllowsUnderLimit(t *testing.T) {
	manager := newTestManager(t)
	e := newTestApp(manager, created)

	rec := doPost(e, "user-1")
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
	e := newTestApp(manager, created)

	for i := 0; i < 3; i++ {
		if rec := doPost(e, "user-1"); rec.Code != http.StatusCreated {
			t.Fatalf("Request %d: expected 201, got %d", i, rec.Code)
		}
	}

	rec := doPost(e, "user-1")
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("Expected 429, got %d", rec.Code)
	}
	if got := rec.Header().Get("X-Limit-Used"); got != "3" {
		t.Errorf("Expected X-Limit-Used 3, got %q", got)
	}
}

func TestMiddleware_Unauthenticated(t *testing.T) {
	manager := newTestManager(t)
	e := newTestApp(manager, created)

	rec := doPost(e, "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", rec.Code)
	}
}

func TestMiddleware_ReleasesSlotOnHandlerError(t *testing.T) {
	manager := newTestManager(t)
	e := newTestApp(manager, func(c goecho.Context) error {
		return goecho.NewHTTPError(http.StatusConflict, "slug taken")
	})

	rec := doPost(e, "user-1")
	if rec.Code != http.StatusConflict {
		t.Fatalf("Expected 409, got %d", rec.Code)
	}

	usage, err := manager.GetUsage(context.Background(), "user-1", foliokit.ResourceProjects)
	if err != nil {
		t.Fatalf("GetUsage failed: %v", err)
	}
	if usage.Used != 0 {
		t.Errorf("Expected slot released after handler error, got used=%d", usage.Used)
	}
}

func TestFromEchoContext(t *testing.T) {
	manager := newTestManager(t)

	e := goecho.New()
	auth := func(next goecho.HandlerFunc) goecho.HandlerFunc {
		return func(c goecho.Context) error {
			c.Set("userID", "user-9")
			return next(c)
		}
	}
	e.POST("/projects", created, auth, fkecho.Middleware(fkecho.Config{
		Manager:     manager,
		GetUserID:   fkecho.FromEchoContext("userID"),
		GetResource: fkecho.FixedResource(foliokit.ResourceProjects),
	}))

	rec := doPost(e, "")
	if rec.Code != http.StatusCreated {
		t.Errorf("Expected 201, got %d", rec.Code)
	}
}
