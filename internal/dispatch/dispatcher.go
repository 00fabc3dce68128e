package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-fauxmo/internal/device"
)

// Logger defines the logging interface used by the Dispatcher.
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

// Event describes one applied state change.
type Event struct {
	DeviceID   device.ID     `json:"device_id"`
	DeviceName string        `json:"device_name"`
	On         bool          `json:"on"`
	Intensity  uint8         `json:"intensity"`
	Previous   device.State  `json:"previous"`
	Source     device.Source `json:"source"`
	At         time.Time     `json:"at"`
}

// State returns the new state carried by the event.
func (e Event) State() device.State {
	return device.State{On: e.On, Intensity: e.Intensity}
}

// Changed reports whether the event differs from the previous state.
func (e Event) Changed() bool {
	return e.State() != e.Previous
}

// Listener receives state-change events.
//
// Listeners run synchronously on the dispatching goroutine and must not
// call Dispatch for the same device.
type Listener interface {
	HandleStateChange(ctx context.Context, e Event) error
}

// ListenerFunc adapts a function to the Listener interface.
type ListenerFunc func(ctx context.Context, e Event) error

// HandleStateChange calls f(ctx, e).
func (f ListenerFunc) HandleStateChange(ctx context.Context, e Event) error {
	return f(ctx, e)
}

// Subscription identifies a registered listener.
type Subscription struct {
	seq uint64
}

type registration struct {
	seq      uint64
	all      bool
	deviceID device.ID
	name     string
	listener Listener
}

func (r registration) matches(id device.ID) bool {
	return r.all || r.deviceID == id
}

// Dispatcher fans applied state changes out to registered listeners.
//
// Listeners are invoked in registration order, each exactly once per event.
// Events for one device are delivered one at a time in the order Dispatch
// was called; events for different devices may interleave. A failing or
// panicking listener is logged and does not stop delivery to the rest.
type Dispatcher struct {
	mu      sync.RWMutex
	regs    []registration
	nextSeq uint64

	locksMu sync.Mutex
	locks   map[device.ID]*sync.Mutex

	logger Logger
}

// New creates an empty dispatcher.
func New() *Dispatcher {
	return &Dispatcher{
		locks:  make(map[device.ID]*sync.Mutex),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger used for listener failures.
func (d *Dispatcher) SetLogger(logger Logger) {
	d.logger = logger
}

// Subscribe registers l for events of a single device. name labels the
// listener in logs and errors.
func (d *Dispatcher) Subscribe(id device.ID, name string, l Listener) Subscription {
	return d.add(registration{deviceID: id, name: name, listener: l})
}

// SubscribeAll registers l for events of every device.
func (d *Dispatcher) SubscribeAll(name string, l Listener) Subscription {
	return d.add(registration{all: true, name: name, listener: l})
}

func (d *Dispatcher) add(r registration) Subscription {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextSeq++
	r.seq = d.nextSeq
	d.regs = append(d.regs, r)
	return Subscription{seq: r.seq}
}

// Unsubscribe removes a listener. It reports whether the subscription was found.
// An event already being dispatched may still reach the listener.
func (d *Dispatcher) Unsubscribe(s Subscription) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i, r := range d.regs {
		if r.seq == s.seq {
			d.regs = append(d.regs[:i:i], d.regs[i+1:]...)
			return true
		}
	}
	return false
}

// ListenerCount returns the number of listeners that would receive an event for id.
func (d *Dispatcher) ListenerCount(id device.ID) int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	n := 0
	for _, r := range d.regs {
		if r.matches(id) {
			n++
		}
	}
	return n
}

// Dispatch delivers e to every matching listener and waits for all of them.
//
// Returns:
//   - error: nil when every listener succeeded, otherwise the joined
//     listener failures, each wrapping ErrListenerFailed
func (d *Dispatcher) Dispatch(ctx context.Context, e Event) error {
	lock := d.deviceLock(e.DeviceID)
	lock.Lock()
	defer lock.Unlock()

	d.mu.RLock()
	targets := make([]registration, 0, len(d.regs))
	for _, r := range d.regs {
		if r.matches(e.DeviceID) {
			targets = append(targets, r)
		}
	}
	d.mu.RUnlock()

	var errs []error
	for _, r := range targets {
		if err := d.invoke(ctx, r, e); err != nil {
			d.logger.Warn("state listener failed",
				"listener", r.name,
				"device_id", e.DeviceID,
				"device_name", e.DeviceName,
				"error", err,
			)
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// invoke runs one listener, converting a panic into an error.
func (d *Dispatcher) invoke(ctx context.Context, r registration, e Event) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %s: panic: %v", ErrListenerFailed, r.name, p)
		}
	}()

	if lerr := r.listener.HandleStateChange(ctx, e); lerr != nil {
		return fmt.Errorf("%w: %s: %w", ErrListenerFailed, r.name, lerr)
	}
	return nil
}

func (d *Dispatcher) deviceLock(id device.ID) *sync.Mutex {
	d.locksMu.Lock()
	defer d.locksMu.Unlock()

	lock, ok := d.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		d.locks[id] = lock
	}
	return lock
}
