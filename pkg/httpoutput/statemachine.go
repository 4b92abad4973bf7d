// Package httpoutput implements the write-once HTTP response state machine
// every REST handler in this server answers through. It exists to catch, at
// the call site rather than on the wire, the two mistakes that corrupt a
// keep-alive connection: writing a header field after the body has started,
// and sending a body whose length disagrees with a previously declared
// Content-Length.
package httpoutput

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"
)

// State is the position of a StateMachine in its one-way lifecycle:
// WritingHeader -> WritingBody -> Done. There is no way back.
type State int

const (
	StateWritingHeader State = iota
	StateWritingBody
	StateDone
)

func (s State) String() string {
	switch s {
	case StateWritingHeader:
		return "WritingHeader"
	case StateWritingBody:
		return "WritingBody"
	case StateDone:
		return "Done"
	default:
		return "Unknown"
	}
}

// ErrBadSequenceOfCalls is returned whenever a call is made out of order:
// setting a header after the body has started, or sending more bytes than
// a declared Content-Length allows.
var ErrBadSequenceOfCalls = errors.New("httpoutput: bad sequence of calls")

// StateMachine enforces the WritingHeader/WritingBody/Done lifecycle on top
// of a standard http.ResponseWriter. Headers, status and Content-Length may
// only be set while in WritingHeader; the first call to SendBody flushes
// them and moves to WritingBody, and on to Done once the declared length
// is reached (straight to Done when no length was declared).
type StateMachine struct {
	w                 http.ResponseWriter
	log               zerolog.Logger
	state             State
	status            int
	hasContentLength  bool
	contentLength     uint64
	contentPosition   uint64
	keepAlive         bool
}

// NewStateMachine wraps w in a fresh StateMachine, defaulting to a 200 OK status.
// keepAlive mirrors whether the underlying connection should be kept open;
// it only affects the advisory Connection header, since net/http owns the
// real connection lifecycle.
func NewStateMachine(w http.ResponseWriter, log zerolog.Logger, keepAlive bool) *StateMachine {
	return &StateMachine{
		w:         w,
		log:       log,
		state:     StateWritingHeader,
		status:    http.StatusOK,
		keepAlive: keepAlive,
	}
}

// Close reports, via a log line rather than a panic, the two conditions the
// original C++ destructor flagged: a response that was never finished, and
// a body whose length didn't match a declared Content-Length. Call it with
// defer right after New.
func (m *StateMachine) Close() {
	if m.state != StateDone {
		m.log.Warn().Msg("http response was never finished")
	}
	if m.hasContentLength && m.contentPosition != m.contentLength {
		m.log.Error().
			Uint64("declared", m.contentLength).
			Uint64("sent", m.contentPosition).
			Msg("http response did not send the declared number of bytes")
	}
}

// State reports the current lifecycle state.
func (m *StateMachine) State() State {
	return m.state
}

func (m *StateMachine) requireWritingHeader() error {
	if m.state != StateWritingHeader {
		return ErrBadSequenceOfCalls
	}
	return nil
}

// SetHTTPStatus sets the status code to send with the header.
func (m *StateMachine) SetHTTPStatus(status int) error {
	if err := m.requireWritingHeader(); err != nil {
		return err
	}
	m.status = status
	return nil
}

// SetContentLength declares the exact number of body bytes that will
// follow. SendBody rejects any attempt to send more than this many bytes.
func (m *StateMachine) SetContentLength(length uint64) error {
	if err := m.requireWritingHeader(); err != nil {
		return err
	}
	m.hasContentLength = true
	m.contentLength = length
	return nil
}

// SetContentType sets the Content-Type header.
func (m *StateMachine) SetContentType(contentType string) error {
	return m.AddHeader("Content-Type", contentType)
}

// SetContentFilename sets a Content-Disposition header carrying filename.
func (m *StateMachine) SetContentFilename(filename string) error {
	return m.AddHeader("Content-Disposition", fmt.Sprintf(`filename="%s"`, filename))
}

// SetCookie sets a Set-Cookie header.
func (m *StateMachine) SetCookie(name, value string) error {
	return m.AddHeader("Set-Cookie", name+"="+value)
}

// AddHeader appends an arbitrary response header.
func (m *StateMachine) AddHeader(header, value string) error {
	if err := m.requireWritingHeader(); err != nil {
		return err
	}
	m.w.Header().Add(header, value)
	return nil
}

// ClearHeaders discards every header set so far.
func (m *StateMachine) ClearHeaders() error {
	if err := m.requireWritingHeader(); err != nil {
		return err
	}
	h := m.w.Header()
	for k := range h {
		h.Del(k)
	}
	return nil
}

// SendBody writes a chunk of the response body, flushing the header first
// if this is the first call. Passing a nil/empty buffer after the header
// has already been flushed and no Content-Length remains outstanding is a
// no-op; passing bytes once the response is Done is a sequencing error.
func (m *StateMachine) SendBody(buffer []byte) error {
	if m.state == StateDone {
		if len(buffer) == 0 {
			return nil
		}
		m.log.Error().Msg("entire body must be sent at once or Content-Length must be set")
		return ErrBadSequenceOfCalls
	}

	if m.state == StateWritingHeader {
		if m.keepAlive {
			m.w.Header().Set("Connection", "keep-alive")
		}

		contentLength := uint64(len(buffer))
		if m.hasContentLength && m.status == http.StatusOK {
			contentLength = m.contentLength
		} else {
			m.hasContentLength = false
		}
		m.w.Header().Set("Content-Length", fmt.Sprintf("%d", contentLength))

		m.w.WriteHeader(m.status)
		m.state = StateWritingBody
	}

	if m.hasContentLength && m.contentPosition+uint64(len(buffer)) > m.contentLength {
		m.log.Error().Msg("body size exceeds the declared Content-Length")
		return ErrBadSequenceOfCalls
	}

	if len(buffer) > 0 {
		if _, err := m.w.Write(buffer); err != nil {
			return err
		}
		m.contentPosition += uint64(len(buffer))
	}

	if !m.hasContentLength || m.contentPosition == m.contentLength {
		m.state = StateDone
	}

	return nil
}
