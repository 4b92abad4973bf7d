// Package handlers wires internal/index, internal/modification and
// internal/dicomcache onto the REST surface, following the teacher's
// one-handler-struct-per-concern layout: each handler owns exactly the
// collaborators it needs and exposes plain http.HandlerFunc methods for
// cmd/server/main.go to register against chi.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/orthanc-go/orthanc/internal/apierror"
	"github.com/orthanc-go/orthanc/pkg/httpoutput"
)

// errorBody is the JSON shape every failed request answers with.
type errorBody struct {
	HTTPError  string `json:"HttpError"`
	HTTPStatus int    `json:"HttpStatus"`
	Message    string `json:"Message"`
	Method     string `json:"Method"`
	URI        string `json:"Uri"`
}

// writeError maps err onto an HTTP status via apierror.Kind and answers
// with the standard error body, through the C2 state machine like every
// other response.
func writeError(out *httpoutput.Output, r *http.Request, err error, log zerolog.Logger) {
	apiErr := apierror.As(err)
	if apiErr == nil {
		apiErr = apierror.New(apierror.InternalError, "unexpected error", err)
	}

	status := apiErr.Kind.StatusCode()
	if status >= http.StatusInternalServerError {
		log.Error().Err(apiErr).Str("method", r.Method).Str("uri", r.URL.Path).Msg("request failed")
	} else {
		log.Warn().Err(apiErr).Str("method", r.Method).Str("uri", r.URL.Path).Msg("request rejected")
	}

	body := errorBody{
		HTTPError:  apiErr.Kind.String(),
		HTTPStatus: status,
		Message:    apiErr.Message,
		Method:     r.Method,
		URI:        r.URL.Path,
	}
	if err := out.SendJSON(status, body); err != nil {
		log.Error().Err(err).Msg("failed to write error response")
	}
}

// decodeJSON reads and decodes the request body into v, wrapping any
// failure as a BadRequest apierror.
func decodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apierror.New(apierror.BadRequest, "malformed JSON request body", err)
	}
	return nil
}

func keepAlive(r *http.Request) bool {
	if r.Close {
		return false
	}
	return r.ProtoAtLeast(1, 1)
}
