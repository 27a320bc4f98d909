package gin_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	gongin "github.com/gin-gonic/gin"

	fkgin "github.com/foliokit/foliokit/middleware/gin"
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

func newTestApp(manager *foliokit.Manager, cfg fkgin.Config, handler gongin.HandlerFunc) *gongin.Engine {
	gongin.SetMode(gongin.TestMode)
	cfg.Manager = manager
	if cfg.GetUserID == nil {
		cfg.GetUserID = fkgin.FromHeader("X-User-ID")
	}
	if cfg.GetResource == nil {
		cfg.GetResource = fkgin.FixedResource(foliokit.ResourceProjects)
	}
	router := gongin.New()
	router.POST("/projects", fkgin.Middleware(cfg), handler)
	return router
}

func created(c *gongin.Context) { c.Status(http.StatusCreated) }

func doPost(router *gongin.Engine, userID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/projects", nil)
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestMiddleware_AllowsUnderLimit(t *testing.T) {
	manager := newTestManager(t)
	router := newTestApp(manager, fkgin.Config{}, created)

	rec := doPost(router, "user-1")
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
	router := newTestApp(manager, fkgin.Config{}, created)

	for i := 0; i < 3; i++ {
		if rec := doPost(router, "user-1"); rec.Code != http.StatusCreated {
			t.Fatalf("Request %d: expected 201, got %d", i, rec.Code)
		}
	}

	rec := doPost(router, "user-1")
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("Expected 429, got %d", rec.Code)
	}
	if got := rec.Header().Get("X-Limit"); got != "3" {
		t.Errorf("Expected X-Limit 3, got %q", got)
	}
}

func TestMiddleware_Unauthenticated(t *testing.T) {
	manager := newTestManager(t)
	router := newTestApp(manager, fkgin.Config{}, created)

	rec := doPost(router, "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", rec.Code)
	}
}

func TestMiddleware_ReleasesSlotOnHandlerFailure(t *testing.T) {
	manager := newTestManager(t)
	router := newTestApp(manager, fkgin.Config{}, func(c *gongin.Context) {
		c.JSON(http.StatusConflict, gongin.H{"error": "slug taken"})
	})

	rec := doPost(router, "user-1")
	if rec.Code != http.StatusConflict {
		t.Fatalf("Expected 409, got %d", rec.Code)
	}

	usage, err := manager.GetUsage(context.Background(), "user-1", foliokit.ResourceProjects)
	if err != nil {
		t.Fatalf("GetUsage failed: %v", err)
	}
	if usage.Used != 0 {
		t.Errorf("Expected slot released after handler failure, got used=%d", usage.Used)
	}
}

func TestFromGinContext(t *testing.T) {
	manager := newTestManager(t)

	gongin.SetMode(gongin.TestMode)
	router := gongin.New()
	router.POST("/projects",
		func(c *gongin.Context) { c.Set("userID", "user-9") },
		fkgin.Middleware(fkgin.Config{
			Manager:     manager,
			GetUserID:   fkgin.FromGinContext("userID"),
			GetResource: fkgin.FixedResource(foliokit.ResourceProjects),
		}),
		created,
	)

	rec := doPost(router, "")
	if rec.Code != http.StatusCreated {
		t.Errorf("Expected 201, got %d", rec.Code)
	}
}
