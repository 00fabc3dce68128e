package hostlink

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-fauxmo/internal/device"
	"github.com/nerrad567/gray-logic-fauxmo/internal/dispatch"
	"github.com/nerrad567/gray-logic-fauxmo/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-fauxmo/internal/responder"
)

// commandTimeout bounds a single host push received over MQTT.
const commandTimeout = 5 * time.Second

// Logger defines the logging interface used by the Link.
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

// Publisher is the broker connection the link drives.
// *mqtt.Client satisfies it.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	IsConnected() bool
}

// Controller is the responder surface the link drives.
// *responder.Responder satisfies it.
type Controller interface {
	Devices() []device.Device
	PushControl(ctx context.Context, req device.ControlRequest) (device.Device, error)
	Status() responder.Status
}

// Options configures a Link.
type Options struct {
	// QoS is used for every publish and the command subscription.
	QoS byte

	// HealthInterval is the period of fauxmo/health messages. Zero disables them.
	HealthInterval time.Duration
}

// Link publishes state changes to MQTT and applies host commands.
type Link struct {
	pub    Publisher
	ctl    Controller
	opts   Options
	topics mqtt.Topics
	logger Logger
	now    func() time.Time

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// New creates a link. It does nothing until Start.
func New(pub Publisher, ctl Controller, opts Options) (*Link, error) {
	if pub == nil {
		return nil, fmt.Errorf("hostlink: publisher is required")
	}
	if ctl == nil {
		return nil, fmt.Errorf("hostlink: controller is required")
	}
	return &Link{
		pub:    pub,
		ctl:    ctl,
		opts:   opts,
		logger: noopLogger{},
		now:    time.Now,
	}, nil
}

// SetLogger sets the logger for the link.
func (l *Link) SetLogger(logger Logger) {
	l.logger = logger
}

// Start subscribes to command topics, publishes the retained state of
// every device and starts the health loop.
func (l *Link) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.started {
		return ErrAlreadyStarted
	}

	if err := l.pub.Subscribe(l.topics.AllDeviceCommands(), l.opts.QoS, l.handleCommand); err != nil {
		return fmt.Errorf("subscribing to commands: %w", err)
	}

	l.ctx, l.cancel = context.WithCancel(ctx)
	l.started = true

	if err := l.PublishAll(); err != nil {
		l.logger.Warn("initial state publish incomplete", "error", err)
	}

	if l.opts.HealthInterval > 0 {
		l.wg.Add(1)
		go l.healthLoop(l.ctx)
	}

	l.logger.Info("host link started", "commands", l.topics.AllDeviceCommands(), "health_interval", l.opts.HealthInterval)
	return nil
}

// Close stops the health loop and drops the command subscription.
func (l *Link) Close() error {
	l.mu.Lock()
	if !l.started {
		l.mu.Unlock()
		return nil
	}
	l.started = false
	l.cancel()
	l.mu.Unlock()

	l.wg.Wait()

	if !l.pub.IsConnected() {
		return nil
	}
	if err := l.pub.Unsubscribe(l.topics.AllDeviceCommands()); err != nil {
		return fmt.Errorf("unsubscribing from commands: %w", err)
	}
	return nil
}

// PublishAll publishes the retained state of every device. It is called
// on Start and should be called again after the broker reconnects.
func (l *Link) PublishAll() error {
	var firstErr error
	at := l.now()
	for _, d := range l.ctl.Devices() {
		if err := l.publishJSON(l.topics.DeviceState(strconv.Itoa(int(d.ID))), stateFromDevice(d, "", at), true); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// HandleStateChange publishes the retained state of the changed device.
// It implements dispatch.Listener.
func (l *Link) HandleStateChange(_ context.Context, e dispatch.Event) error {
	if !l.pub.IsConnected() {
		l.logger.Debug("broker offline, state publish skipped", "device_id", e.DeviceID)
		return nil
	}
	return l.publishJSON(l.topics.DeviceState(strconv.Itoa(int(e.DeviceID))), stateFromEvent(e), true)
}

// Trigger returns a listener that publishes a TriggerMessage on topic
// for every change a voice client makes. Host pushes are ignored.
func (l *Link) Trigger(topic string) dispatch.Listener {
	return dispatch.ListenerFunc(func(_ context.Context, e dispatch.Event) error {
		if e.Source != device.SourceControl {
			return nil
		}
		msg := TriggerMessage{Device: e.DeviceName, State: e.On, Intensity: e.Intensity}
		if err := l.publishJSON(topic, msg, false); err != nil {
			return fmt.Errorf("trigger %s: %w", topic, err)
		}
		l.logger.Debug("device trigger published", "topic", topic, "device", e.DeviceName, "on", e.On)
		return nil
	})
}

// PublishHealth publishes the current responder status on fauxmo/health.
func (l *Link) PublishHealth() error {
	st := l.ctl.Status()
	return l.publishJSON(l.topics.Health(), HealthMessage{
		Status:    healthStatus(st),
		Responder: st,
		Timestamp: l.now().UTC().Format(time.RFC3339),
	}, false)
}

func (l *Link) healthLoop(ctx context.Context) {
	defer l.wg.Done()

	ticker := time.NewTicker(l.opts.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !l.pub.IsConnected() {
				continue
			}
			if err := l.PublishHealth(); err != nil {
				l.logger.Warn("health publish failed", "error", err)
			}
		}
	}
}

// handleCommand applies a host push received on fauxmo/command/{ref}.
func (l *Link) handleCommand(topic string, payload []byte) error {
	raw, ok := l.topics.CommandRef(topic)
	if !ok {
		return fmt.Errorf("%w: unexpected topic %q", ErrInvalidCommand, topic)
	}
	ref := device.ParseRef(raw)

	var msg CommandMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}

	req := device.ControlRequest{Target: ref, On: msg.On}
	if msg.Intensity != nil {
		if *msg.Intensity < 0 || *msg.Intensity > int(device.FullIntensity) {
			return fmt.Errorf("%w: intensity %d out of range", ErrInvalidCommand, *msg.Intensity)
		}
		v := uint8(*msg.Intensity)
		req.Intensity = &v
	}
	if err := req.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}

	ctx, cancel := context.WithTimeout(l.baseContext(), commandTimeout)
	defer cancel()

	d, err := l.ctl.PushControl(ctx, req)
	if err != nil {
		return fmt.Errorf("pushing %s: %w", ref, err)
	}
	l.logger.Info("host command applied", "device_id", d.ID, "name", d.Name, "on", d.State.On, "intensity", d.State.Intensity)
	return nil
}

func (l *Link) baseContext() context.Context {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ctx == nil {
		return context.Background()
	}
	return l.ctx
}

func (l *Link) publishJSON(topic string, v any, retained bool) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", topic, err)
	}
	return l.pub.Publish(topic, data, l.opts.QoS, retained)
}
