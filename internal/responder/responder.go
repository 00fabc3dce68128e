package responder

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-fauxmo/internal/device"
	"github.com/nerrad567/gray-logic-fauxmo/internal/dispatch"
	"github.com/nerrad567/gray-logic-fauxmo/internal/hue"
	"github.com/nerrad567/gray-logic-fauxmo/internal/netstatus"
	"github.com/nerrad567/gray-logic-fauxmo/internal/ssdp"
)

// standardPort is the only bridge port Echo devices accept.
const standardPort = 80

// Logger defines the logging interface used by the Responder.
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

// ListenHTTPFunc opens the bridge HTTP listener.
type ListenHTTPFunc func(addr string) (net.Listener, error)

// Options configures a Responder.
type Options struct {
	Registry   *device.Registry
	Dispatcher *dispatch.Dispatcher
	Network    netstatus.Status

	// Enabled gates all network activity and host pushes.
	Enabled bool

	// Port is the bridge HTTP port. Zero picks an ephemeral port, which is
	// only useful in tests.
	Port int

	// TickBudget bounds the time one OnTick spends reading discovery traffic.
	TickBudget time.Duration

	// NotifyInterval enables periodic discovery announcements when positive.
	NotifyInterval time.Duration

	// ListenHTTP and ListenSSDP open the sockets. Nil uses the real network.
	ListenHTTP ListenHTTPFunc
	ListenSSDP ssdp.ListenFunc
}

// Status is a point-in-time snapshot of the responder.
type Status struct {
	Enabled        bool       `json:"enabled"`
	Initialized    bool       `json:"initialized"`
	NetworkReady   bool       `json:"network_ready"`
	Address        string     `json:"address,omitempty"`
	Port           int        `json:"port"`
	Location       string     `json:"location,omitempty"`
	Devices        int        `json:"devices"`
	DiscoveryState string     `json:"discovery_state"`
	Discovery      ssdp.Stats `json:"discovery"`
}

// Responder is the discoverable device responder.
//
// All methods are safe for concurrent use. Control requests and host
// pushes are applied one at a time.
type Responder struct {
	registry   *device.Registry
	dispatcher *dispatch.Dispatcher
	network    netstatus.Status
	enabled    bool
	port       int
	listenHTTP ListenHTTPFunc
	discovery  *ssdp.Responder
	now        func() time.Time
	logger     Logger

	mu          sync.Mutex
	bridge      *hue.Server
	addr        netstatus.Address
	boundPort   int
	bound       bool
	initialized bool
	closed      bool

	// controlMu serialises state changes so the registry update and its
	// dispatch are observed in the same order.
	controlMu sync.Mutex
}

// New creates a responder. Nothing is opened until the network is ready.
func New(opts Options) (*Responder, error) {
	if opts.Registry == nil {
		return nil, errors.New("device registry is required")
	}
	if opts.Network == nil {
		return nil, errors.New("network status is required")
	}
	if opts.Dispatcher == nil {
		opts.Dispatcher = dispatch.New()
	}
	if opts.ListenHTTP == nil {
		opts.ListenHTTP = func(addr string) (net.Listener, error) {
			return net.Listen("tcp4", addr)
		}
	}

	return &Responder{
		registry:   opts.Registry,
		dispatcher: opts.Dispatcher,
		network:    opts.Network,
		enabled:    opts.Enabled,
		port:       opts.Port,
		listenHTTP: opts.ListenHTTP,
		discovery: ssdp.NewResponder(ssdp.Config{
			ReadBudget:     opts.TickBudget,
			NotifyInterval: opts.NotifyInterval,
			Listen:         opts.ListenSSDP,
		}),
		now:    func() time.Time { return time.Now().UTC() },
		logger: noopLogger{},
	}, nil
}

// SetLogger sets the logger for the responder and its discovery and bridge servers.
func (r *Responder) SetLogger(logger Logger) {
	r.logger = logger
	r.discovery.SetLogger(logger)
}

// Dispatcher returns the dispatcher state changes are delivered through.
func (r *Responder) Dispatcher() *dispatch.Dispatcher {
	return r.dispatcher
}

// LogConfig logs the responder configuration once at startup.
func (r *Responder) LogConfig() {
	names := make([]string, 0, r.registry.Count())
	for _, d := range r.registry.List() {
		names = append(names, d.Name)
	}

	r.logger.Info("responder configuration",
		"enabled", r.enabled,
		"port", r.port,
		"devices", names,
	)
	if r.port != standardPort {
		r.logger.Warn("bridge port is not 80; Echo devices will not discover this responder",
			"port", r.port,
		)
	}
}

// OnTick performs one cooperative poll. It checks network readiness until
// the responder is bound, then answers discovery traffic within the tick budget.
func (r *Responder) OnTick(ctx context.Context) error {
	if !r.enabled {
		return nil
	}

	r.mu.Lock()
	bound, closed := r.bound, r.closed
	r.mu.Unlock()

	if closed {
		return nil
	}

	if !bound {
		if !r.network.Ready() {
			return nil
		}
		addr, ok := r.network.LocalAddress()
		if !ok {
			return nil
		}
		if err := r.OnNetworkReady(ctx, addr); err != nil {
			return err
		}
	}

	return r.discovery.Poll(ctx)
}

// OnNetworkReady initializes the responder for addr.
//
// The first call opens the bridge HTTP listener and binds discovery.
// Calling it again with the same address does nothing; a new address
// re-binds discovery and updates the advertised identity.
func (r *Responder) OnNetworkReady(_ context.Context, addr netstatus.Address) error {
	if !r.enabled {
		r.logger.Debug("responder disabled, ignoring network ready")
		return nil
	}
	if err := addr.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return errors.New("responder closed")
	}
	if r.bound && r.addr.Equal(addr) {
		return nil
	}

	if r.bridge == nil {
		if err := r.startBridgeLocked(addr); err != nil {
			return err
		}
	}

	identity := hue.NewIdentity(addr, r.boundPort)
	r.bridge.SetIdentity(identity)

	adv := ssdp.Advertisement{
		Location: identity.Location(),
		UUID:     identity.UUID().String(),
		BridgeID: identity.BridgeID(),
	}
	if err := r.discovery.Bind(addr, adv); err != nil {
		r.bound = false
		return fmt.Errorf("binding discovery: %w", err)
	}

	rebind := r.initialized
	r.addr = addr
	r.bound = true
	r.initialized = true

	if rebind {
		r.logger.Info("responder re-bound", "address", addr.IP.String(), "location", identity.Location())
	} else {
		r.logger.Info("responder initialized",
			"address", addr.IP.String(),
			"mac", addr.MAC.String(),
			"location", identity.Location(),
			"devices", r.registry.Count(),
		)
	}
	return nil
}

func (r *Responder) startBridgeLocked(addr netstatus.Address) error {
	ln, err := r.listenHTTP(net.JoinHostPort("", strconv.Itoa(r.port)))
	if err != nil {
		return fmt.Errorf("opening bridge listener on port %d: %w", r.port, err)
	}

	port := r.port
	if tcp, ok := ln.Addr().(*net.TCPAddr); ok {
		port = tcp.Port
	}

	bridge := hue.NewServer(r, hue.NewIdentity(addr, port))
	bridge.SetLogger(r.logger)
	if err := bridge.Serve(ln); err != nil {
		ln.Close() //nolint:errcheck // Best effort cleanup on error path
		return fmt.Errorf("serving bridge: %w", err)
	}

	r.bridge = bridge
	r.boundPort = port
	return nil
}

// NetworkLost suspends discovery and makes control requests fail until the
// network is ready again. Initialization is kept, so host pushes still apply.
func (r *Responder) NetworkLost() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.bound {
		return
	}
	r.bound = false
	r.addr = netstatus.Address{}
	if err := r.discovery.Unbind(); err != nil {
		r.logger.Warn("closing discovery socket", "error", err)
	}
	r.logger.Warn("network lost, discovery suspended")
}

// Close releases the discovery socket and the bridge listener in one step.
//
// The bridge is shut down after r.mu is released: in-flight bridge
// handlers read responder state and must be able to finish.
func (r *Responder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.bound = false
	bridge := r.bridge

	var errs []error
	if err := r.discovery.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing discovery: %w", err))
	}
	r.mu.Unlock()

	if bridge != nil {
		if err := bridge.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Initialized reports whether network-ready initialization has completed.
func (r *Responder) Initialized() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.initialized
}

// Identity returns the advertised bridge identity while bound.
func (r *Responder) Identity() (hue.Identity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.bound || r.bridge == nil {
		return hue.Identity{}, false
	}
	return r.bridge.Identity(), true
}

// Status returns a snapshot for health reporting.
func (r *Responder) Status() Status {
	r.mu.Lock()
	st := Status{
		Enabled:      r.enabled,
		Initialized:  r.initialized,
		NetworkReady: r.bound,
		Port:         r.port,
		Devices:      r.registry.Count(),
	}
	if r.bound {
		st.Address = r.addr.IP.String()
		st.Port = r.boundPort
		st.Location = r.bridge.Identity().Location()
	}
	r.mu.Unlock()

	st.DiscoveryState = r.discovery.State().String()
	st.Discovery = r.discovery.Stats()
	return st
}

// BoundAddress returns the address discovery and the bridge are bound to,
// or false while the responder is unbound.
func (r *Responder) BoundAddress() (netstatus.Address, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.addr, r.bound
}

// Devices returns every registered device in id order.
func (r *Responder) Devices() []device.Device {
	return r.registry.List()
}

// Query returns the current state of one device.
func (r *Responder) Query(ref device.Ref) (device.Device, error) {
	return r.registry.Resolve(ref)
}

// Control applies a voice-client state change and dispatches it with
// source control.
//
// Returns netstatus.ErrNetworkNotReady while unbound, device.ErrMalformedRequest
// for a request with nothing to apply and device.ErrUnknownDevice for an
// unknown target. No state is changed on error.
func (r *Responder) Control(ctx context.Context, req device.ControlRequest) (device.Device, error) {
	r.mu.Lock()
	bound := r.bound
	r.mu.Unlock()

	if !bound {
		return device.Device{}, fmt.Errorf("control %s: %w", req.Target, netstatus.ErrNetworkNotReady)
	}
	if err := req.Validate(); err != nil {
		return device.Device{}, err
	}

	r.controlMu.Lock()
	defer r.controlMu.Unlock()

	d, err := r.registry.Resolve(req.Target)
	if err != nil {
		return device.Device{}, err
	}
	return r.applyLocked(ctx, d, req.Apply(d.State), device.SourceControl)
}

// PushState reflects an externally driven change into the responder and
// dispatches it with source host.
//
// Returns ErrDisabled, ErrNotInitialized or device.ErrUnknownDevice, in
// which case nothing is changed.
func (r *Responder) PushState(ctx context.Context, ref device.Ref, on bool, intensity uint8) (device.Device, error) {
	return r.push(ctx, ref, func(device.State) device.State {
		return device.State{On: on, Intensity: intensity}
	})
}

// PushControl applies a partial host change, such as intensity alone, to
// the device's current state. Reading, applying and storing happen under
// the same lock as voice control, so neither overwrites the other.
func (r *Responder) PushControl(ctx context.Context, req device.ControlRequest) (device.Device, error) {
	if err := req.Validate(); err != nil {
		return device.Device{}, err
	}
	return r.push(ctx, req.Target, req.Apply)
}

func (r *Responder) push(ctx context.Context, ref device.Ref, next func(device.State) device.State) (device.Device, error) {
	if !r.enabled {
		return device.Device{}, ErrDisabled
	}
	if !r.Initialized() {
		return device.Device{}, ErrNotInitialized
	}

	r.controlMu.Lock()
	defer r.controlMu.Unlock()

	d, err := r.registry.Resolve(ref)
	if err != nil {
		return device.Device{}, err
	}
	return r.applyLocked(ctx, d, next(d.State), device.SourceHost)
}

// SetDeviceState is the boolean form of PushState. Failures are logged.
func (r *Responder) SetDeviceState(ref device.Ref, on bool, intensity uint8) bool {
	if _, err := r.PushState(context.Background(), ref, on, intensity); err != nil {
		r.logger.Warn("state push rejected", "device", ref.String(), "error", err)
		return false
	}
	return true
}

// applyLocked stores next and dispatches the change. controlMu must be held.
func (r *Responder) applyLocked(ctx context.Context, d device.Device, next device.State, source device.Source) (device.Device, error) {
	previous, err := r.registry.SetState(d.ID, next)
	if err != nil {
		return device.Device{}, err
	}

	updated, err := r.registry.Get(d.ID)
	if err != nil {
		return device.Device{}, err
	}

	r.logger.Info("device state changed",
		"device_id", d.ID,
		"device_name", d.Name,
		"on", next.On,
		"intensity", next.Intensity,
		"source", source,
	)

	// Listener failures are logged by the dispatcher and never fail the change.
	_ = r.dispatcher.Dispatch(ctx, dispatch.Event{ //nolint:errcheck // see above
		DeviceID:   d.ID,
		DeviceName: d.Name,
		On:         next.On,
		Intensity:  next.Intensity,
		Previous:   previous,
		Source:     source,
		At:         r.now(),
	})
	return updated, nil
}
