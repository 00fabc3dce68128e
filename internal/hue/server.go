package hue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-fauxmo/internal/device"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 5 * time.Second

// maxRequestBodySize bounds control request bodies. Hue state bodies are tiny.
const maxRequestBodySize = 4 << 10

// Logger defines the logging interface used by the Server.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Backend owns the devices the bridge exposes.
type Backend interface {
	// Devices returns every device in id order.
	Devices() []device.Device

	// Query returns one device or device.ErrUnknownDevice.
	Query(ref device.Ref) (device.Device, error)

	// Control applies a state change and returns the updated device.
	Control(ctx context.Context, req device.ControlRequest) (device.Device, error)
}

// Server is the emulated bridge HTTP server.
type Server struct {
	backend  Backend
	logger   Logger
	username string
	handler  http.Handler

	// serial admits one request at a time.
	serial sync.Mutex

	idMu     sync.RWMutex
	identity Identity

	mu     sync.Mutex
	server *http.Server
	ln     net.Listener
	done   chan struct{}
}

// NewServer creates a bridge server for backend advertising identity.
//
// The server is not listening until Serve is called.
func NewServer(backend Backend, identity Identity) *Server {
	s := &Server{
		backend:  backend,
		logger:   noopLogger{},
		username: strings.ReplaceAll(uuid.NewString(), "-", ""),
		identity: identity,
	}
	s.handler = s.buildRouter()
	return s
}

// SetLogger sets the logger for the server.
func (s *Server) SetLogger(logger Logger) {
	s.logger = logger
}

// SetIdentity replaces the advertised identity, e.g. after the address changed.
func (s *Server) SetIdentity(identity Identity) {
	s.idMu.Lock()
	s.identity = identity
	s.idMu.Unlock()
}

// Identity returns the advertised identity.
func (s *Server) Identity() Identity {
	s.idMu.RLock()
	defer s.idMu.RUnlock()
	return s.identity
}

// Username returns the user name handed to clients that register.
func (s *Server) Username() string {
	return s.username
}

// Handler returns the bridge router.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Serve starts serving ln in a background goroutine. The server owns ln
// from then on.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return errors.New("hue server already serving")
	}

	s.ln = ln
	s.done = make(chan struct{})
	s.server = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       30 * time.Second,
	}

	srv, done := s.server, s.done
	go func() {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("hue server error", "error", err)
		}
	}()

	s.logger.Info("hue server listening", "address", ln.Addr().String())
	return nil
}

// Addr returns the listening address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Close gracefully shuts the server down and releases the listener.
func (s *Server) Close() error {
	s.mu.Lock()
	srv, done := s.server, s.done
	s.server, s.ln, s.done = nil, nil, nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down hue server: %w", err)
	}
	<-done
	return nil
}

// buildRouter creates the bridge router.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.recoveryMiddleware)
	r.Use(s.serialMiddleware)
	r.Use(s.loggingMiddleware)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, resourceUnavailable(r.URL.Path))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, APIError{
			Type:        ErrTypeMethodUnavailable,
			Address:     r.URL.Path,
			Description: "method, " + r.Method + ", not available for resource, " + r.URL.Path,
		})
	})

	r.Get("/description.xml", s.handleDescription)
	r.Post("/api", s.handleRegister)
	r.Post("/api/", s.handleRegister)

	r.Route("/api/{user}", func(r chi.Router) {
		r.Get("/", s.handleBridge)
		r.Get("/lights", s.handleListLights)
		r.Get("/lights/{light}", s.handleGetLight)
		r.Put("/lights/{light}/state", s.handleSetLightState)
	})

	return r
}

// handleDescription serves the UPnP root device document.
func (s *Server) handleDescription(w http.ResponseWriter, _ *http.Request) {
	body, err := s.Identity().Description()
	if err != nil {
		writeDomainError(w, err, "/description.xml")
		return
	}
	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(body) //nolint:errcheck // Best-effort write to response
}

// handleRegister accepts any user registration and hands out the
// process-wide username.
func (s *Server) handleRegister(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, []map[string]any{
		{"success": map[string]string{"username": s.username}},
	})
}

// handleBridge returns the full bridge state. Only lights are emulated.
func (s *Server) handleBridge(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"lights": s.Identity().Lights(s.backend.Devices()),
	})
}

// handleListLights returns every light keyed by number.
func (s *Server) handleListLights(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.Identity().Lights(s.backend.Devices()))
}

// handleGetLight returns one light.
func (s *Server) handleGetLight(w http.ResponseWriter, r *http.Request) {
	segment := lightParam(r)
	address := "/lights/" + segment

	ref, ok := ParseLight(segment)
	if !ok {
		writeError(w, http.StatusNotFound, resourceUnavailable(address))
		return
	}

	d, err := s.backend.Query(ref)
	if err != nil {
		writeDomainError(w, err, address)
		return
	}
	writeJSON(w, http.StatusOK, s.Identity().Light(d))
}

// stateRequest is the subset of a Hue light state body the bridge honours.
type stateRequest struct {
	On  *bool `json:"on"`
	Bri *int  `json:"bri"`
}

// handleSetLightState applies a control request and echoes each applied
// attribute as a Hue success entry.
func (s *Server) handleSetLightState(w http.ResponseWriter, r *http.Request) {
	segment := lightParam(r)
	address := "/lights/" + segment

	ref, ok := ParseLight(segment)
	if !ok {
		writeError(w, http.StatusNotFound, resourceUnavailable(address))
		return
	}

	req, err := decodeControl(w, r, ref)
	if err != nil {
		s.logger.Debug("rejected control request", "light", segment, "error", err)
		writeError(w, http.StatusBadRequest, invalidJSON(address+"/state"))
		return
	}

	d, err := s.backend.Control(r.Context(), req)
	if err != nil {
		writeDomainError(w, err, address)
		return
	}

	prefix := "/lights/" + strconv.Itoa(LightNumber(d.ID)) + "/state/"
	var entries []map[string]any
	if req.On != nil {
		entries = append(entries, map[string]any{"success": map[string]any{prefix + "on": d.State.On}})
	}
	if req.Intensity != nil {
		entries = append(entries, map[string]any{"success": map[string]any{prefix + "bri": d.State.Intensity}})
	}
	writeJSON(w, http.StatusOK, entries)
}

// decodeControl parses a state body into a control request for ref.
func decodeControl(w http.ResponseWriter, r *http.Request, ref device.Ref) (device.ControlRequest, error) {
	var body stateRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodySize))
	if err := dec.Decode(&body); err != nil {
		return device.ControlRequest{}, fmt.Errorf("%w: %w", device.ErrMalformedRequest, err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return device.ControlRequest{}, fmt.Errorf("%w: unexpected data after body at offset %d", device.ErrMalformedRequest, dec.InputOffset())
	}

	req := device.ControlRequest{Target: ref, On: body.On}
	if body.Bri != nil {
		if *body.Bri < 0 || *body.Bri > int(device.FullIntensity) {
			return device.ControlRequest{}, fmt.Errorf("%w: bri %d out of range", device.ErrMalformedRequest, *body.Bri)
		}
		bri := uint8(*body.Bri)
		req.Intensity = &bri
	}

	if err := req.Validate(); err != nil {
		return device.ControlRequest{}, err
	}
	return req, nil
}

// lightParam returns the unescaped {light} segment.
func lightParam(r *http.Request) string {
	raw := chi.URLParam(r, "light")
	if s, err := url.PathUnescape(raw); err == nil {
		return s
	}
	return raw
}

// serialMiddleware runs handlers one at a time.
func (s *Server) serialMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.serial.Lock()
		defer s.serial.Unlock()
		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs each request at debug level.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		s.logger.Debug("hue request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"remote", r.RemoteAddr,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

// recoveryMiddleware catches panics in handlers and returns a Hue internal error.
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.Error("panic recovered in hue handler",
					"error", err,
					"method", r.Method,
					"path", r.URL.Path,
				)
				writeDomainError(w, fmt.Errorf("panic: %v", err), r.URL.Path)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
