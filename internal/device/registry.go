package device

import (
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry is the ordered, append-only collection of virtual devices.
//
// Insertion order defines id assignment: the n-th registered device gets
// id n-1. Names are unique ignoring case. A lowercase name index keeps
// name lookups constant-time without disturbing id order.
//
// All public methods are thread-safe. Devices are returned by value so
// callers never hold a reference into the registry.
type Registry struct {
	mu      sync.RWMutex
	devices []Device
	byName  map[string]ID
	now     func() time.Time
	logger  Logger
}

// NewRegistry creates an empty device registry.
func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]ID),
		now:    func() time.Time { return time.Now().UTC() },
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Register appends a device named name and returns its id.
//
// The device starts off, at zero intensity, and reachable.
//
// Returns:
//   - ID: The assigned id (equal to the number of devices registered before it)
//   - error: ErrInvalidName, ErrDuplicateName or ErrRegistryFull; the registry is unchanged on error
//
// A name made only of digits is rejected: ParseRef reads it as an id.
func (r *Registry) Register(name string) (ID, error) {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > MaxNameLength {
		return 0, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if allDigits(name) {
		return 0, fmt.Errorf("%w: %q would be read as a device id", ErrInvalidName, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := nameKey(name)
	if existing, ok := r.byName[key]; ok {
		return 0, fmt.Errorf("%w: %q already registered as id %d", ErrDuplicateName, name, existing)
	}
	if len(r.devices) >= MaxDevices {
		return 0, ErrRegistryFull
	}

	id := ID(len(r.devices))
	r.devices = append(r.devices, Device{
		ID:        id,
		Name:      name,
		Reachable: true,
		UpdatedAt: r.now(),
	})
	r.byName[key] = id

	r.logger.Info("device registered", "id", id, "name", name)
	return id, nil
}

// Get returns the device with the given id, or ErrUnknownDevice.
func (r *Registry) Get(id ID) (Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if int(id) >= len(r.devices) {
		return Device{}, fmt.Errorf("%w: id %d", ErrUnknownDevice, id)
	}
	return r.devices[id], nil
}

// FindByName returns the device whose name matches ignoring case, or ErrUnknownDevice.
func (r *Registry) FindByName(name string) (Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byName[nameKey(strings.TrimSpace(name))]
	if !ok {
		return Device{}, fmt.Errorf("%w: name %q", ErrUnknownDevice, name)
	}
	return r.devices[id], nil
}

// Resolve returns the device a reference points at, or ErrUnknownDevice.
func (r *Registry) Resolve(ref Ref) (Device, error) {
	if name, byName := ref.Name(); byName {
		return r.FindByName(name)
	}
	id, _ := ref.ID()
	return r.Get(id)
}

// SetState replaces the state of device id and returns the previous state.
func (r *Registry) SetState(id ID, state State) (State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if int(id) >= len(r.devices) {
		return State{}, fmt.Errorf("%w: id %d", ErrUnknownDevice, id)
	}

	d := &r.devices[id]
	previous := d.State
	d.State = state
	d.UpdatedAt = r.now()

	r.logger.Debug("device state updated", "id", id, "name", d.Name, "on", state.On, "intensity", state.Intensity)
	return previous, nil
}

// List returns every device in id order.
func (r *Registry) List() []Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	devices := make([]Device, len(r.devices))
	copy(devices, r.devices)
	return devices
}

// Count returns the number of registered devices.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}

func nameKey(name string) string {
	return strings.ToLower(name)
}

func allDigits(s string) bool {
	return s != "" && strings.TrimLeft(s, "0123456789") == ""
}
