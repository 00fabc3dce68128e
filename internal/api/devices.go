package api

import (
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-fauxmo/internal/device"
)

// maxQueryParamLen bounds path and query parameters.
const maxQueryParamLen = 64

// SetStateRequest is the body of PUT /devices/{ref}/state.
type SetStateRequest struct {
	On        *bool `json:"on"`
	Intensity *int  `json:"intensity"`
}

// refParam parses the {ref} path parameter as an id or a name.
func refParam(r *http.Request) (device.Ref, bool) {
	raw := chi.URLParam(r, "ref")
	if s, err := url.PathUnescape(raw); err == nil {
		raw = s
	}
	if raw == "" || len(raw) > maxQueryParamLen {
		return device.Ref{}, false
	}
	return device.ParseRef(raw), true
}

// handleListDevices returns all devices in id order.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	devices := s.responder.Devices()
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleGetDevice returns a single device by id or name.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	ref, ok := refParam(r)
	if !ok {
		writeBadRequest(w, "invalid device reference")
		return
	}

	dev, err := s.responder.Query(ref)
	if err != nil {
		s.writeDeviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dev)
}

// handleSetDeviceState pushes a host-originated state change.
//
// Omitted fields follow the same rules as a voice control request: an
// intensity alone switches the device, and switching on a device at zero
// intensity restores full intensity.
func (s *Server) handleSetDeviceState(w http.ResponseWriter, r *http.Request) {
	ref, ok := refParam(r)
	if !ok {
		writeBadRequest(w, "invalid device reference")
		return
	}

	var body SetStateRequest
	if err := decodeJSON(r.Body, &body); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	req := device.ControlRequest{Target: ref, On: body.On}
	if body.Intensity != nil {
		if *body.Intensity < 0 || *body.Intensity > int(device.FullIntensity) {
			writeError(w, http.StatusBadRequest, ErrCodeValidation, "intensity must be between 0 and 255")
			return
		}
		v := uint8(*body.Intensity)
		req.Intensity = &v
	}

	dev, err := s.responder.PushControl(r.Context(), req)
	if err != nil {
		s.writeDeviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dev)
}
