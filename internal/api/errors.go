package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/nerrad567/gray-logic-fauxmo/internal/device"
	"github.com/nerrad567/gray-logic-fauxmo/internal/responder"
)

// Error is the body of every non-2xx response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes.
const (
	ErrCodeBadRequest         = "bad_request"
	ErrCodeNotFound           = "not_found"
	ErrCodeInternal           = "internal_error"
	ErrCodeValidation         = "validation_error"
	ErrCodeServiceUnavailable = "service_unavailable"
	ErrCodeNotInitialized     = "not_initialized"
)

// errTrailingData rejects bodies that carry more than one JSON value.
var errTrailingData = errors.New("unexpected data after JSON body")

// deviceErrors maps responder and registry failures onto responses.
// Anything not listed is a 500.
var deviceErrors = []struct {
	err  error
	resp Error
}{
	{device.ErrUnknownDevice, Error{http.StatusNotFound, ErrCodeNotFound, "device not found"}},
	{device.ErrMalformedRequest, Error{http.StatusBadRequest, ErrCodeValidation, "on or intensity is required"}},
	{responder.ErrNotInitialized, Error{http.StatusServiceUnavailable, ErrCodeNotInitialized, "responder has not completed network initialization"}},
	{responder.ErrDisabled, Error{http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "responder is disabled"}},
}

// writeDeviceError writes the response for a failed device operation.
func (s *Server) writeDeviceError(w http.ResponseWriter, err error) {
	for _, e := range deviceErrors {
		if errors.Is(err, e.err) {
			writeJSON(w, e.resp.Status, e.resp)
			return
		}
	}
	s.logger.Error("device request failed", "error", err)
	writeInternalError(w, "device request failed")
}

// decodeJSON decodes exactly one JSON value from body into v.
func decodeJSON(body io.Reader, v any) error {
	dec := json.NewDecoder(body)
	if err := dec.Decode(v); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w at offset %d", errTrailingData, dec.InputOffset())
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v) //nolint:errcheck // Client may have gone away
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{Status: status, Code: code, Message: message})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}
