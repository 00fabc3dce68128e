package responder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/nerrad567/gray-logic-fauxmo/internal/device"
	"github.com/nerrad567/gray-logic-fauxmo/internal/dispatch"
	"github.com/nerrad567/gray-logic-fauxmo/internal/netstatus"
	"github.com/nerrad567/gray-logic-fauxmo/internal/ssdp"
)

// ─── Fakes ──────────────────────────────────────────────────────────

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

// udpConn is an in-memory discovery socket.
type udpConn struct {
	mu     sync.Mutex
	inbox  [][]byte
	sent   []string
	closed bool
}

var searcher = &net.UDPAddr{IP: net.IPv4(192, 168, 1, 20), Port: 40000}

func (c *udpConn) ReadFrom(p []byte) (int, net.Addr, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, nil, net.ErrClosed
	}
	if len(c.inbox) == 0 {
		return 0, nil, timeoutError{}
	}
	b := c.inbox[0]
	c.inbox = c.inbox[1:]
	return copy(p, b), searcher, nil
}

func (c *udpConn) WriteTo(p []byte, _ net.Addr) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, string(p))
	return len(p), nil
}

func (c *udpConn) SetReadDeadline(time.Time) error { return nil }

func (c *udpConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *udpConn) search() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inbox = append(c.inbox, []byte("M-SEARCH * HTTP/1.1\r\n"+
		"HOST: 239.255.255.250:1900\r\n"+
		"MAN: \"ssdp:discover\"\r\n"+
		"MX: 2\r\n"+
		"ST: urn:schemas-upnp-org:device:basic:1\r\n\r\n"))
}

func (c *udpConn) replies() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sent...)
}

// recordingLogger keeps messages per level.
type recordingLogger struct {
	mu    sync.Mutex
	warns []string
}

func (*recordingLogger) Debug(string, ...any) {}
func (*recordingLogger) Info(string, ...any)  {}
func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}
func (*recordingLogger) Error(string, ...any) {}

// harness wires a responder to fake sockets and a settable network.
type harness struct {
	r       *Responder
	network *netstatus.Static
	events  []dispatch.Event
	conns   []*udpConn
	mu      sync.Mutex
}

func newHarness(t *testing.T, enabled bool, names ...string) *harness {
	t.Helper()

	reg := device.NewRegistry()
	for _, n := range names {
		if _, err := reg.Register(n); err != nil {
			t.Fatalf("Register(%q) error = %v", n, err)
		}
	}

	h := &harness{network: &netstatus.Static{}}
	disp := dispatch.New()
	disp.SubscribeAll("recorder", dispatch.ListenerFunc(func(_ context.Context, e dispatch.Event) error {
		h.mu.Lock()
		h.events = append(h.events, e)
		h.mu.Unlock()
		return nil
	}))

	r, err := New(Options{
		Registry:   reg,
		Dispatcher: disp,
		Network:    h.network,
		Enabled:    enabled,
		TickBudget: time.Millisecond,
		ListenHTTP: func(string) (net.Listener, error) {
			return net.Listen("tcp4", "127.0.0.1:0")
		},
		ListenSSDP: func(netstatus.Address) (ssdp.PacketConn, error) {
			c := &udpConn{}
			h.mu.Lock()
			h.conns = append(h.conns, c)
			h.mu.Unlock()
			return c, nil
		},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() {
		r.Close() //nolint:errcheck // Test cleanup
	})

	h.r = r
	return h
}

func (h *harness) ready(t *testing.T, ip, mac string) netstatus.Address {
	t.Helper()
	addr, err := netstatus.ParseAddress(ip, mac)
	if err != nil {
		t.Fatalf("ParseAddress() error = %v", err)
	}
	if err := h.network.Set(addr); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	return addr
}

func (h *harness) tick(t *testing.T) {
	t.Helper()
	if err := h.r.OnTick(context.Background()); err != nil {
		t.Fatalf("OnTick() error = %v", err)
	}
}

func (h *harness) lastConn(t *testing.T) *udpConn {
	t.Helper()
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.conns) == 0 {
		t.Fatal("no discovery socket opened")
	}
	return h.conns[len(h.conns)-1]
}

func (h *harness) recorded() []dispatch.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]dispatch.Event(nil), h.events...)
}

func (h *harness) baseURL(t *testing.T) string {
	t.Helper()
	id, ok := h.r.Identity()
	if !ok {
		t.Fatal("responder not bound")
	}
	return fmt.Sprintf("http://127.0.0.1:%d", id.Port)
}

func httpDo(t *testing.T, method, url, body string) (int, string) {
	t.Helper()

	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s error = %v", method, url, err)
	}
	defer resp.Body.Close() //nolint:errcheck // Test cleanup

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, string(b)
}

func boolPtr(b bool) *bool { return &b }

// ─── Construction ───────────────────────────────────────────────────

func TestNew_RequiresCollaborators(t *testing.T) {
	if _, err := New(Options{Network: &netstatus.Static{}}); err == nil {
		t.Error("New() without registry should fail")
	}
	if _, err := New(Options{Registry: device.NewRegistry()}); err == nil {
		t.Error("New() without network status should fail")
	}
}

// ─── Before network ready ───────────────────────────────────────────

func TestResponder_NotReady(t *testing.T) {
	h := newHarness(t, true, "Lamp")

	h.tick(t)

	if len(h.conns) != 0 {
		t.Error("discovery socket opened before network ready")
	}
	if h.r.Initialized() {
		t.Error("Initialized() = true before network ready")
	}

	_, err := h.r.Control(context.Background(), device.ControlRequest{Target: device.ByName("Lamp"), On: boolPtr(true)})
	if !errors.Is(err, netstatus.ErrNetworkNotReady) {
		t.Errorf("Control() error = %v, want ErrNetworkNotReady", err)
	}
	if h.r.SetDeviceState(device.ByName("Lamp"), true, 255) {
		t.Error("SetDeviceState() = true before initialization")
	}
	if _, err := h.r.PushState(context.Background(), device.ByID(0), true, 255); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("PushState() error = %v, want ErrNotInitialized", err)
	}

	d, _ := h.r.Query(device.ByID(0))
	if d.State != (device.State{}) {
		t.Errorf("state mutated before init: %+v", d.State)
	}
	if len(h.recorded()) != 0 {
		t.Error("events dispatched before init")
	}
}

// ─── Discovery ──────────────────────────────────────────────────────

func TestResponder_DiscoveryAdvertisesReadyAddress(t *testing.T) {
	h := newHarness(t, true, "Lamp")
	h.ready(t, "1.2.3.4", "AA:BB:CC:DD:EE:FF")

	h.tick(t)
	if !h.r.Initialized() {
		t.Fatal("not initialized after ready tick")
	}

	conn := h.lastConn(t)
	conn.search()
	h.tick(t)

	replies := conn.replies()
	if len(replies) != 1 {
		t.Fatalf("got %d replies, want 1", len(replies))
	}
	id, _ := h.r.Identity()
	wantLocation := fmt.Sprintf("LOCATION: http://1.2.3.4:%d/description.xml\r\n", id.Port)
	if !strings.Contains(replies[0], wantLocation) {
		t.Errorf("reply missing %q:\n%s", wantLocation, replies[0])
	}
	if !strings.Contains(replies[0], "hue-bridgeid: aabbccddeeff\r\n") {
		t.Errorf("reply missing bridge id:\n%s", replies[0])
	}
	if got := h.r.Status().Discovery.Answered; got != 1 {
		t.Errorf("Status().Discovery.Answered = %d, want 1", got)
	}
}

func TestResponder_OnNetworkReadyIdempotentAndRebinds(t *testing.T) {
	h := newHarness(t, true, "Lamp")
	ctx := context.Background()

	first := h.ready(t, "10.0.0.5", "AA:BB:CC:DD:EE:FF")
	if err := h.r.OnNetworkReady(ctx, first); err != nil {
		t.Fatalf("OnNetworkReady() error = %v", err)
	}
	if err := h.r.OnNetworkReady(ctx, first); err != nil {
		t.Fatalf("repeat OnNetworkReady() error = %v", err)
	}
	if len(h.conns) != 1 {
		t.Fatalf("discovery sockets = %d, want 1", len(h.conns))
	}
	port := h.r.Status().Port

	second, err := netstatus.ParseAddress("1.2.3.4", "AA:BB:CC:DD:EE:FF")
	if err != nil {
		t.Fatalf("ParseAddress() error = %v", err)
	}
	if err := h.r.OnNetworkReady(ctx, second); err != nil {
		t.Fatalf("rebind error = %v", err)
	}
	if len(h.conns) != 2 || !h.conns[0].closed {
		t.Fatal("rebind did not replace the discovery socket")
	}

	st := h.r.Status()
	if st.Address != "1.2.3.4" || st.Port != port {
		t.Errorf("Status() = %+v, want address 1.2.3.4 on port %d", st, port)
	}

	// The bridge keeps serving on the same listener with the new identity.
	code, body := httpDo(t, http.MethodGet, h.baseURL(t)+"/description.xml", "")
	if code != http.StatusOK || !strings.Contains(body, fmt.Sprintf("http://1.2.3.4:%d/", port)) {
		t.Errorf("description after rebind: %d %s", code, body)
	}
}

func TestResponder_OnNetworkReadyRejectsInvalidAddress(t *testing.T) {
	h := newHarness(t, true, "Lamp")

	bad := netstatus.Address{IP: net.IPv4zero, MAC: net.HardwareAddr{1, 2, 3, 4, 5, 6}}
	if err := h.r.OnNetworkReady(context.Background(), bad); !errors.Is(err, netstatus.ErrInvalidAddress) {
		t.Errorf("OnNetworkReady() error = %v, want ErrInvalidAddress", err)
	}
	if h.r.Initialized() {
		t.Error("initialized with an invalid address")
	}
}

// ─── End to end ─────────────────────────────────────────────────────

func TestResponder_EndToEnd(t *testing.T) {
	h := newHarness(t, true, "Lamp", "Fan")

	lamp, _ := h.r.Query(device.ByName("Lamp"))
	fan, _ := h.r.Query(device.ByName("Fan"))
	if lamp.ID != 0 || fan.ID != 1 {
		t.Fatalf("ids = %d, %d, want 0, 1", lamp.ID, fan.ID)
	}

	h.ready(t, "127.0.0.1", "AA:BB:CC:DD:EE:FF")
	h.tick(t)
	base := h.baseURL(t)

	code, body := httpDo(t, http.MethodPut, base+"/api/user/lights/Lamp/state", `{"on":true}`)
	if code != http.StatusOK || !strings.Contains(body, `"success"`) {
		t.Fatalf("control: %d %s", code, body)
	}

	code, body = httpDo(t, http.MethodGet, base+"/api/user/lights/Lamp", "")
	if code != http.StatusOK || !strings.Contains(body, `"on":true`) {
		t.Errorf("query Lamp: %d %s", code, body)
	}

	code, body = httpDo(t, http.MethodGet, base+"/api/user/lights/Heater", "")
	if code != http.StatusNotFound || !strings.Contains(body, `"type":3`) {
		t.Errorf("query Heater: %d %s", code, body)
	}

	want := []dispatch.Event{{
		DeviceID:   0,
		DeviceName: "Lamp",
		On:         true,
		Intensity:  device.FullIntensity,
		Source:     device.SourceControl,
	}}
	if diff := cmp.Diff(want, h.recorded(), cmpopts.IgnoreFields(dispatch.Event{}, "At")); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestResponder_ControlUnknownDeviceLeavesStateUnchanged(t *testing.T) {
	h := newHarness(t, true, "Lamp", "Fan")
	h.ready(t, "1.2.3.4", "AA:BB:CC:DD:EE:FF")
	h.tick(t)

	before := h.r.Devices()
	_, err := h.r.Control(context.Background(), device.ControlRequest{Target: device.ByName("Heater"), On: boolPtr(true)})
	if !errors.Is(err, device.ErrUnknownDevice) {
		t.Fatalf("Control() error = %v, want ErrUnknownDevice", err)
	}
	if diff := cmp.Diff(before, h.r.Devices()); diff != "" {
		t.Errorf("devices changed (-before +after):\n%s", diff)
	}
	if len(h.recorded()) != 0 {
		t.Error("event dispatched for unknown device")
	}
}

// ─── Host push ──────────────────────────────────────────────────────

func TestResponder_PushState(t *testing.T) {
	h := newHarness(t, true, "Lamp", "Fan")
	h.ready(t, "1.2.3.4", "AA:BB:CC:DD:EE:FF")
	h.tick(t)

	if !h.r.SetDeviceState(device.ByID(1), true, 255) {
		t.Fatal("SetDeviceState() = false after initialization")
	}
	d, err := h.r.Query(device.ByID(1))
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if !d.State.On || d.State.Intensity != 255 {
		t.Errorf("state = %+v, want on at 255", d.State)
	}

	events := h.recorded()
	if len(events) != 1 || events[0].Source != device.SourceHost {
		t.Errorf("events = %+v, want one host event", events)
	}

	if h.r.SetDeviceState(device.ByName("Heater"), true, 1) {
		t.Error("SetDeviceState() = true for unknown device")
	}
	if _, err := h.r.PushState(context.Background(), device.ByName("Heater"), true, 1); !errors.Is(err, device.ErrUnknownDevice) {
		t.Errorf("PushState() error = %v, want ErrUnknownDevice", err)
	}
}

func TestResponder_PushControl(t *testing.T) {
	h := newHarness(t, true, "Lamp")
	ctx := context.Background()
	dim := uint8(40)

	if _, err := h.r.PushControl(ctx, device.ControlRequest{Target: device.ByID(0), Intensity: &dim}); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("PushControl() before init error = %v, want ErrNotInitialized", err)
	}

	h.ready(t, "1.2.3.4", "AA:BB:CC:DD:EE:FF")
	h.tick(t)

	if _, err := h.r.Control(ctx, device.ControlRequest{Target: device.ByID(0), On: boolPtr(true)}); err != nil {
		t.Fatalf("Control() error = %v", err)
	}
	d, err := h.r.PushControl(ctx, device.ControlRequest{Target: device.ByName("lamp"), Intensity: &dim})
	if err != nil {
		t.Fatalf("PushControl() error = %v", err)
	}
	if want := (device.State{On: true, Intensity: 40}); d.State != want {
		t.Errorf("state = %+v, want %+v", d.State, want)
	}

	d, err = h.r.PushControl(ctx, device.ControlRequest{Target: device.ByID(0), On: boolPtr(false)})
	if err != nil {
		t.Fatalf("PushControl() error = %v", err)
	}
	if want := (device.State{On: false, Intensity: 40}); d.State != want {
		t.Errorf("state after off = %+v, want %+v", d.State, want)
	}

	before := h.r.Devices()
	if _, err := h.r.PushControl(ctx, device.ControlRequest{Target: device.ByID(0)}); !errors.Is(err, device.ErrMalformedRequest) {
		t.Errorf("empty PushControl() error = %v, want ErrMalformedRequest", err)
	}
	if diff := cmp.Diff(before, h.r.Devices()); diff != "" {
		t.Errorf("devices changed by rejected push (-before +after):\n%s", diff)
	}

	events := h.recorded()
	if len(events) != 3 || events[1].Source != device.SourceHost || events[2].Source != device.SourceHost {
		t.Errorf("events = %+v, want control then two host events", events)
	}
}

func TestResponder_PushControlWaitsForVoiceControl(t *testing.T) {
	h := newHarness(t, true, "Lamp")
	h.ready(t, "1.2.3.4", "AA:BB:CC:DD:EE:FF")
	h.tick(t)

	entered := make(chan struct{})
	release := make(chan struct{})
	h.r.Dispatcher().Subscribe(0, "gate", dispatch.ListenerFunc(func(_ context.Context, e dispatch.Event) error {
		if e.Source == device.SourceControl {
			close(entered)
			<-release
		}
		return nil
	}))

	ctx := context.Background()
	bright := uint8(200)
	controlDone := make(chan error, 1)
	go func() {
		_, err := h.r.Control(ctx, device.ControlRequest{Target: device.ByID(0), On: boolPtr(true), Intensity: &bright})
		controlDone <- err
	}()
	<-entered

	pushDone := make(chan device.Device, 1)
	go func() {
		d, err := h.r.PushControl(ctx, device.ControlRequest{Target: device.ByID(0), On: boolPtr(false)})
		if err != nil {
			t.Errorf("PushControl() error = %v", err)
		}
		pushDone <- d
	}()

	select {
	case <-pushDone:
		t.Fatal("PushControl() completed while voice control was still dispatching")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)

	if err := <-controlDone; err != nil {
		t.Fatalf("Control() error = %v", err)
	}
	d := <-pushDone
	if want := (device.State{On: false, Intensity: 200}); d.State != want {
		t.Errorf("state = %+v, want %+v", d.State, want)
	}
}

func TestResponder_Disabled(t *testing.T) {
	h := newHarness(t, false, "Lamp")
	h.ready(t, "1.2.3.4", "AA:BB:CC:DD:EE:FF")

	h.tick(t)
	if len(h.conns) != 0 || h.r.Initialized() {
		t.Error("disabled responder initialized")
	}
	if _, err := h.r.PushState(context.Background(), device.ByID(0), true, 255); !errors.Is(err, ErrDisabled) {
		t.Errorf("PushState() error = %v, want ErrDisabled", err)
	}
	if h.r.SetDeviceState(device.ByID(0), true, 255) {
		t.Error("SetDeviceState() = true while disabled")
	}
}

// ─── Network loss & teardown ────────────────────────────────────────

func TestResponder_NetworkLost(t *testing.T) {
	h := newHarness(t, true, "Lamp")
	addr := h.ready(t, "1.2.3.4", "AA:BB:CC:DD:EE:FF")
	h.tick(t)
	if bound, ok := h.r.BoundAddress(); !ok || !bound.Equal(addr) {
		t.Fatalf("BoundAddress() = %v, %v, want %v", bound, ok, addr)
	}

	h.network.Clear()
	h.r.NetworkLost()
	if _, ok := h.r.BoundAddress(); ok {
		t.Error("BoundAddress() still bound after network loss")
	}

	if !h.lastConn(t).closed {
		t.Error("discovery socket left open after network loss")
	}
	_, err := h.r.Control(context.Background(), device.ControlRequest{Target: device.ByID(0), On: boolPtr(true)})
	if !errors.Is(err, netstatus.ErrNetworkNotReady) {
		t.Errorf("Control() error = %v, want ErrNetworkNotReady", err)
	}
	if !h.r.SetDeviceState(device.ByID(0), true, 10) {
		t.Error("SetDeviceState() should still succeed once initialized")
	}

	h.tick(t)
	if h.r.Status().NetworkReady {
		t.Fatal("bound while network is down")
	}

	h.ready(t, "1.2.3.5", "AA:BB:CC:DD:EE:FF")
	h.tick(t)
	if st := h.r.Status(); !st.NetworkReady || st.Address != "1.2.3.5" {
		t.Errorf("Status() after recovery = %+v", st)
	}
}

func TestResponder_Close(t *testing.T) {
	h := newHarness(t, true, "Lamp")
	h.ready(t, "127.0.0.1", "AA:BB:CC:DD:EE:FF")
	h.tick(t)
	base := h.baseURL(t)

	if err := h.r.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !h.lastConn(t).closed {
		t.Error("discovery socket not closed")
	}
	if _, err := http.Get(base + "/description.xml"); err == nil {
		t.Error("bridge still reachable after Close")
	}
	if err := h.r.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if err := h.r.OnTick(context.Background()); err != nil {
		t.Errorf("OnTick() after Close error = %v", err)
	}
}

func TestResponder_CloseWithRequestsInFlight(t *testing.T) {
	h := newHarness(t, true, "Lamp")
	h.ready(t, "127.0.0.1", "AA:BB:CC:DD:EE:FF")
	h.tick(t)
	base := h.baseURL(t)

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	h.r.Dispatcher().Subscribe(0, "gate", dispatch.ListenerFunc(func(context.Context, dispatch.Event) error {
		once.Do(func() { close(entered) })
		<-release
		return nil
	}))

	put := func(body string) {
		req, err := http.NewRequest(http.MethodPut, base+"/api/user/lights/1/state", strings.NewReader(body))
		if err != nil {
			return
		}
		if resp, err := http.DefaultClient.Do(req); err == nil {
			resp.Body.Close() //nolint:errcheck // Test cleanup
		}
	}
	go put(`{"on":true}`)
	<-entered
	// Queued behind the first request on the bridge's serial lock.
	go put(`{"on":false}`)
	time.Sleep(20 * time.Millisecond)

	closed := make(chan error, 1)
	go func() { closed <- h.r.Close() }()
	time.Sleep(20 * time.Millisecond)
	close(release)

	select {
	case err := <-closed:
		if err != nil {
			t.Errorf("Close() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Close() stalled behind in-flight bridge requests")
	}
}

func TestResponder_LogConfigWarnsOnNonStandardPort(t *testing.T) {
	for _, tt := range []struct {
		port     int
		wantWarn bool
	}{
		{80, false},
		{8080, true},
	} {
		t.Run(fmt.Sprint(tt.port), func(t *testing.T) {
			r, err := New(Options{Registry: device.NewRegistry(), Network: &netstatus.Static{}, Port: tt.port})
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			log := &recordingLogger{}
			r.SetLogger(log)

			r.LogConfig()
			if got := len(log.warns) > 0; got != tt.wantWarn {
				t.Errorf("warned = %v, want %v (%v)", got, tt.wantWarn, log.warns)
			}
		})
	}
}
