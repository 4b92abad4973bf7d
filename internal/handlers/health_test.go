package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/orthanc-go/orthanc/internal/database"
)

// newTestDatabase points the package-level database.DB at a fresh
// in-memory sqlite connection, the same Config{} zero-value Connect's own
// isSQLite() branch falls back to -- HealthHandler pings this global
// directly rather than taking a database collaborator of its own.
func newTestDatabase(t *testing.T) {
	t.Helper()
	if err := database.Connect(database.Config{}); err != nil {
		t.Fatalf("database.Connect: %v", err)
	}
	t.Cleanup(func() { database.Close() })
}

func TestHealthReportsHealthyWithLiveDatabase(t *testing.T) {
	newTestDatabase(t)
	stack := newTestStack(t)
	h := NewHealthHandler(stack.store, zerolog.Nop())

	router := newRouter(nil, nil, nil, h)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp healthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "healthy" {
		t.Fatalf("expected healthy, got %q", resp.Status)
	}
	if resp.Services["database"] != "healthy" {
		t.Fatalf("expected database service healthy, got %q", resp.Services["database"])
	}
}

func TestReadyServesOKWhenDatabaseIsLive(t *testing.T) {
	newTestDatabase(t)
	stack := newTestStack(t)
	h := NewHealthHandler(stack.store, zerolog.Nop())

	router := newRouter(nil, nil, nil, h)

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != "OK" {
		t.Fatalf("expected body OK, got %q", rec.Body.String())
	}
}

func TestReadyFailsWhenDatabaseIsDown(t *testing.T) {
	newTestDatabase(t)
	database.Close()

	stack := newTestStack(t)
	h := NewHealthHandler(stack.store, zerolog.Nop())

	router := newRouter(nil, nil, nil, h)

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d: %s", rec.Code, rec.Body.String())
	}
}
