package httpoutput

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"
)

// ErrReservedStatus is returned by SendStatus for status codes that have
// their own dedicated method and must not be sent through the generic path.
var ErrReservedStatus = errors.New("httpoutput: use the dedicated method for this status code")

// Output is the per-request façade handlers use; it owns a StateMachine and
// adds the handful of canned responses every REST endpoint needs.
type Output struct {
	machine *StateMachine
}

// New wraps w for a single request/response cycle.
func New(w http.ResponseWriter, log zerolog.Logger, keepAlive bool) *Output {
	return &Output{machine: NewStateMachine(w, log, keepAlive)}
}

// Close finalizes the underlying state machine; call with defer.
func (o *Output) Close() {
	o.machine.Close()
}

// SendMethodNotAllowed answers 405 with an Allow header listing the
// methods that would have been accepted.
func (o *Output) SendMethodNotAllowed(allowed string) error {
	if err := o.machine.ClearHeaders(); err != nil {
		return err
	}
	if err := o.machine.SetHTTPStatus(http.StatusMethodNotAllowed); err != nil {
		return err
	}
	if err := o.machine.AddHeader("Allow", allowed); err != nil {
		return err
	}
	return o.machine.SendBody(nil)
}

// SendStatus answers with an empty body and the given status code. The
// four statuses with dedicated methods (200, 301, 401, 405) are rejected
// since using those bypasses header bookkeeping those methods perform.
func (o *Output) SendStatus(status int) error {
	switch status {
	case http.StatusOK, http.StatusMovedPermanently, http.StatusUnauthorized, http.StatusMethodNotAllowed:
		return ErrReservedStatus
	}
	if err := o.machine.ClearHeaders(); err != nil {
		return err
	}
	if err := o.machine.SetHTTPStatus(status); err != nil {
		return err
	}
	return o.machine.SendBody(nil)
}

// Redirect answers 301 pointing at path.
func (o *Output) Redirect(path string) error {
	if err := o.machine.ClearHeaders(); err != nil {
		return err
	}
	if err := o.machine.SetHTTPStatus(http.StatusMovedPermanently); err != nil {
		return err
	}
	if err := o.machine.AddHeader("Location", path); err != nil {
		return err
	}
	return o.machine.SendBody(nil)
}

// SendUnauthorized answers 401 with a WWW-Authenticate challenge for realm.
func (o *Output) SendUnauthorized(realm string) error {
	if err := o.machine.ClearHeaders(); err != nil {
		return err
	}
	if err := o.machine.SetHTTPStatus(http.StatusUnauthorized); err != nil {
		return err
	}
	if err := o.machine.AddHeader("WWW-Authenticate", fmt.Sprintf(`Basic realm="%s"`, realm)); err != nil {
		return err
	}
	return o.machine.SendBody(nil)
}

// SendBody writes buffer as the full response body.
func (o *Output) SendBody(buffer []byte) error {
	return o.machine.SendBody(buffer)
}

// SendNoBody finishes the response with no body at all.
func (o *Output) SendNoBody() error {
	return o.machine.SendBody(nil)
}

// SendJSON marshals v and sends it as an application/json body with the
// given status code.
func (o *Output) SendJSON(status int, v interface{}) error {
	buffer, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := o.machine.SetHTTPStatus(status); err != nil {
		return err
	}
	if err := o.machine.SetContentType("application/json"); err != nil {
		return err
	}
	if err := o.machine.SetContentLength(uint64(len(buffer))); err != nil {
		return err
	}
	return o.machine.SendBody(buffer)
}

// Machine exposes the underlying StateMachine for handlers that need the
// lower-level header controls (content-disposition, cookies, etc).
func (o *Output) Machine() *StateMachine {
	return o.machine
}
