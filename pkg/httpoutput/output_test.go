package httpoutput

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

func TestSendJSONSetsContentType(t *testing.T) {
	rec := httptest.NewRecorder()
	o := New(rec, zerolog.Nop(), false)

	if err := o.SendJSON(http.StatusOK, map[string]string{"Type": "Series"}); err != nil {
		t.Fatalf("SendJSON: %v", err)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected application/json, got %q", ct)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestSendStatusRejectsReservedCodes(t *testing.T) {
	rec := httptest.NewRecorder()
	o := New(rec, zerolog.Nop(), false)

	for _, status := range []int{http.StatusOK, http.StatusMovedPermanently, http.StatusUnauthorized, http.StatusMethodNotAllowed} {
		if err := o.SendStatus(status); err != ErrReservedStatus {
			t.Fatalf("status %d: expected ErrReservedStatus, got %v", status, err)
		}
	}
}

func TestSendMethodNotAllowedSetsAllowHeader(t *testing.T) {
	rec := httptest.NewRecorder()
	o := New(rec, zerolog.Nop(), false)

	if err := o.SendMethodNotAllowed("GET, POST"); err != nil {
		t.Fatalf("SendMethodNotAllowed: %v", err)
	}
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
	if rec.Header().Get("Allow") != "GET, POST" {
		t.Fatalf("unexpected Allow header %q", rec.Header().Get("Allow"))
	}
}
