package hue

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/gray-logic-fauxmo/internal/device"
	"github.com/nerrad567/gray-logic-fauxmo/internal/netstatus"
)

// Hue API error types.
const (
	ErrTypeInvalidJSON         = 2
	ErrTypeResourceUnavailable = 3
	ErrTypeMethodUnavailable   = 4
	ErrTypeInternal            = 901
)

// APIError is the payload of one Hue error entry.
type APIError struct {
	Type        int    `json:"type"`
	Address     string `json:"address"`
	Description string `json:"description"`
}

type errorEntry struct {
	Error APIError `json:"error"`
}

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // Best-effort write to response; connection may be closed
	json.NewEncoder(w).Encode(v)
}

// writeError writes a single-entry Hue error array.
func writeError(w http.ResponseWriter, status int, e APIError) {
	writeJSON(w, status, []errorEntry{{Error: e}})
}

// writeDomainError maps a backend error onto the Hue error it surfaces as.
func writeDomainError(w http.ResponseWriter, err error, address string) {
	switch {
	case errors.Is(err, device.ErrUnknownDevice):
		writeError(w, http.StatusNotFound, resourceUnavailable(address))
	case errors.Is(err, device.ErrMalformedRequest):
		writeError(w, http.StatusBadRequest, invalidJSON(address))
	case errors.Is(err, netstatus.ErrNetworkNotReady):
		writeError(w, http.StatusServiceUnavailable, APIError{
			Type:        ErrTypeInternal,
			Address:     address,
			Description: "Internal error, 503, network not ready",
		})
	default:
		writeError(w, http.StatusInternalServerError, APIError{
			Type:        ErrTypeInternal,
			Address:     address,
			Description: "Internal error, 500",
		})
	}
}

func resourceUnavailable(address string) APIError {
	return APIError{
		Type:        ErrTypeResourceUnavailable,
		Address:     address,
		Description: "resource, " + address + ", not available",
	}
}

func invalidJSON(address string) APIError {
	return APIError{
		Type:        ErrTypeInvalidJSON,
		Address:     address,
		Description: "body contains invalid json",
	}
}
