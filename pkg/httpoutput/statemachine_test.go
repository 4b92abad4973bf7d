package httpoutput

import (
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

func newTestMachine() (*StateMachine, *httptest.ResponseRecorder) {
	rec := httptest.NewRecorder()
	log := zerolog.Nop()
	return NewStateMachine(rec, log, false), rec
}

func TestSendBodyWritesStatusAndBody(t *testing.T) {
	m, rec := newTestMachine()

	if err := m.SetHTTPStatus(201); err != nil {
		t.Fatalf("SetHTTPStatus: %v", err)
	}
	if err := m.SendBody([]byte("hello")); err != nil {
		t.Fatalf("SendBody: %v", err)
	}
	if m.State() != StateDone {
		t.Fatalf("expected Done, got %v", m.State())
	}
	if rec.Code != 201 {
		t.Fatalf("expected status 201, got %d", rec.Code)
	}
	if rec.Body.String() != "hello" {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
}

func TestHeaderCallsRejectedAfterBodyStarted(t *testing.T) {
	m, _ := newTestMachine()
	if err := m.SendBody([]byte("x")); err != nil {
		t.Fatalf("SendBody: %v", err)
	}
	if err := m.AddHeader("X-Test", "1"); err != ErrBadSequenceOfCalls {
		t.Fatalf("expected ErrBadSequenceOfCalls, got %v", err)
	}
	if err := m.SetHTTPStatus(404); err != ErrBadSequenceOfCalls {
		t.Fatalf("expected ErrBadSequenceOfCalls, got %v", err)
	}
}

func TestSendBodyAfterDoneWithEmptyBufferIsNoop(t *testing.T) {
	m, _ := newTestMachine()
	if err := m.SendBody([]byte("x")); err != nil {
		t.Fatalf("SendBody: %v", err)
	}
	if err := m.SendBody(nil); err != nil {
		t.Fatalf("expected no-op send after Done, got %v", err)
	}
}

func TestSendBodyAfterDoneWithNonEmptyBufferFails(t *testing.T) {
	m, _ := newTestMachine()
	if err := m.SendBody([]byte("x")); err != nil {
		t.Fatalf("SendBody: %v", err)
	}
	if err := m.SendBody([]byte("y")); err != ErrBadSequenceOfCalls {
		t.Fatalf("expected ErrBadSequenceOfCalls, got %v", err)
	}
}

func TestContentLengthOverflowRejected(t *testing.T) {
	m, _ := newTestMachine()
	if err := m.SetContentLength(3); err != nil {
		t.Fatalf("SetContentLength: %v", err)
	}
	if err := m.SendBody([]byte("too long")); err != ErrBadSequenceOfCalls {
		t.Fatalf("expected ErrBadSequenceOfCalls, got %v", err)
	}
}

func TestDeclaredContentLengthOnlyHonoredOn200(t *testing.T) {
	m, rec := newTestMachine()
	if err := m.SetContentLength(100); err != nil {
		t.Fatalf("SetContentLength: %v", err)
	}
	if err := m.SetHTTPStatus(404); err != nil {
		t.Fatalf("SetHTTPStatus: %v", err)
	}
	if err := m.SendBody([]byte("not found")); err != nil {
		t.Fatalf("SendBody: %v", err)
	}
	if got := rec.Header().Get("Content-Length"); got != "9" {
		t.Fatalf("expected actual body length 9, got %q", got)
	}
}

func TestKeepAliveSetsConnectionHeader(t *testing.T) {
	rec := httptest.NewRecorder()
	m := NewStateMachine(rec, zerolog.Nop(), true)
	if err := m.SendBody([]byte("x")); err != nil {
		t.Fatalf("SendBody: %v", err)
	}
	if rec.Header().Get("Connection") != "keep-alive" {
		t.Fatalf("expected keep-alive Connection header")
	}
}
