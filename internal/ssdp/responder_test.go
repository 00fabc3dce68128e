package ssdp

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/nerrad567/gray-logic-fauxmo/internal/netstatus"
)

// timeoutError mimics the error a socket returns when its read deadline passes.
type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

type datagram struct {
	data []byte
	addr net.Addr
}

// fakeConn is an in-memory PacketConn. Reads drain the inbox, then time out.
type fakeConn struct {
	mu       sync.Mutex
	inbox    []datagram
	sent     []datagram
	closed   bool
	writeErr error
}

func (c *fakeConn) ReadFrom(p []byte) (int, net.Addr, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return 0, nil, net.ErrClosed
	}
	if len(c.inbox) == 0 {
		return 0, nil, timeoutError{}
	}
	d := c.inbox[0]
	c.inbox = c.inbox[1:]
	return copy(p, d.data), d.addr, nil
}

func (c *fakeConn) WriteTo(p []byte, addr net.Addr) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.writeErr != nil {
		return 0, c.writeErr
	}
	c.sent = append(c.sent, datagram{data: append([]byte(nil), p...), addr: addr})
	return len(p), nil
}

func (c *fakeConn) SetReadDeadline(time.Time) error { return nil }

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) deliver(data string, from net.Addr) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inbox = append(c.inbox, datagram{data: []byte(data), addr: from})
}

func (c *fakeConn) sentTo(addr string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []string
	for _, d := range c.sent {
		if d.addr.String() == addr {
			out = append(out, string(d.data))
		}
	}
	return out
}

// fakeListener hands out a new fakeConn per Bind and remembers them.
type fakeListener struct {
	conns []*fakeConn
	err   error
}

func (l *fakeListener) listen(netstatus.Address) (PacketConn, error) {
	if l.err != nil {
		return nil, l.err
	}
	c := &fakeConn{}
	l.conns = append(l.conns, c)
	return c, nil
}

func (l *fakeListener) last() *fakeConn {
	return l.conns[len(l.conns)-1]
}

var client = &net.UDPAddr{IP: net.IPv4(192, 168, 1, 50), Port: 50000}

const searchBasic = "M-SEARCH * HTTP/1.1\r\n" +
	"HOST: 239.255.255.250:1900\r\n" +
	"MAN: \"ssdp:discover\"\r\n" +
	"MX: 3\r\n" +
	"ST: urn:schemas-upnp-org:device:basic:1\r\n\r\n"

func mustAddress(t *testing.T, ip, mac string) netstatus.Address {
	t.Helper()
	a, err := netstatus.ParseAddress(ip, mac)
	if err != nil {
		t.Fatalf("ParseAddress() error = %v", err)
	}
	return a
}

func advFor(ip string) Advertisement {
	return Advertisement{
		Location: "http://" + ip + ":80/description.xml",
		UUID:     "2f402f80-da50-11e1-9b23-aabbccddeeff",
		BridgeID: "aabbccddeeff",
	}
}

func newTestResponder(cfg Config) (*Responder, *fakeListener) {
	l := &fakeListener{}
	cfg.Listen = l.listen
	if cfg.ReadBudget == 0 {
		cfg.ReadBudget = time.Millisecond
	}
	return NewResponder(cfg), l
}

// ─── Suspension ─────────────────────────────────────────────────────

func TestResponder_SuspendedDropsQueries(t *testing.T) {
	r, l := newTestResponder(Config{})

	if r.State() != StateSuspended {
		t.Fatalf("initial State() = %v, want suspended", r.State())
	}
	if err := r.Poll(context.Background()); err != nil {
		t.Fatalf("Poll() while suspended error = %v", err)
	}
	if len(l.conns) != 0 {
		t.Error("suspended responder opened a socket")
	}
	if _, bound := r.Bound(); bound {
		t.Error("Bound() = true while suspended")
	}
}

func TestResponder_BindRejectsInvalidAddress(t *testing.T) {
	r, l := newTestResponder(Config{})

	zero := netstatus.Address{IP: net.IPv4zero, MAC: net.HardwareAddr{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff}}
	if err := r.Bind(zero, advFor("0.0.0.0")); !errors.Is(err, netstatus.ErrInvalidAddress) {
		t.Fatalf("Bind(0.0.0.0) error = %v, want ErrInvalidAddress", err)
	}
	if r.State() != StateSuspended || len(l.conns) != 0 {
		t.Error("invalid Bind left suspension")
	}
}

func TestResponder_BindListenFailureStaysSuspended(t *testing.T) {
	r, l := newTestResponder(Config{})
	l.err = errors.New("address in use")

	if err := r.Bind(mustAddress(t, "1.2.3.4", "AA:BB:CC:DD:EE:FF"), advFor("1.2.3.4")); err == nil {
		t.Fatal("Bind() error = nil, want listen failure")
	}
	if r.State() != StateSuspended {
		t.Errorf("State() = %v, want suspended", r.State())
	}
}

// ─── Answering ──────────────────────────────────────────────────────

func TestResponder_AnswersSearchOnSameTick(t *testing.T) {
	r, l := newTestResponder(Config{})

	var transitions []string
	r.SetObserver(func(from, to State) { transitions = append(transitions, from.String()+">"+to.String()) })

	addr := mustAddress(t, "1.2.3.4", "AA:BB:CC:DD:EE:FF")
	if err := r.Bind(addr, advFor("1.2.3.4")); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	conn := l.last()
	conn.deliver(searchBasic, client)

	if err := r.Poll(context.Background()); err != nil {
		t.Fatalf("Poll() error = %v", err)
	}

	replies := conn.sentTo(client.String())
	if len(replies) != 1 {
		t.Fatalf("got %d replies, want 1", len(replies))
	}
	reply := replies[0]
	for _, want := range []string{
		"HTTP/1.1 200 OK\r\n",
		"EXT:\r\n",
		"CACHE-CONTROL: max-age=100\r\n",
		"LOCATION: http://1.2.3.4:80/description.xml\r\n",
		"SERVER: " + ServerHeader + "\r\n",
		"hue-bridgeid: aabbccddeeff\r\n",
		"ST: urn:schemas-upnp-org:device:basic:1\r\n",
		"USN: uuid:2f402f80-da50-11e1-9b23-aabbccddeeff::urn:schemas-upnp-org:device:basic:1\r\n",
	} {
		if !strings.Contains(reply, want) {
			t.Errorf("reply missing %q:\n%s", want, reply)
		}
	}
	if !strings.HasSuffix(reply, "\r\n\r\n") {
		t.Error("reply not terminated by an empty line")
	}

	wantTransitions := []string{
		"suspended>idle",
		"idle>query_received",
		"query_received>response_sent",
		"response_sent>idle",
	}
	if diff := cmp.Diff(wantTransitions, transitions); diff != "" {
		t.Errorf("transitions mismatch (-want +got):\n%s", diff)
	}
	if r.State() != StateIdle {
		t.Errorf("State() after Poll = %v, want idle", r.State())
	}
	if got := r.Stats().Answered; got != 1 {
		t.Errorf("Stats().Answered = %d, want 1", got)
	}
}

func TestResponder_IgnoresOtherTraffic(t *testing.T) {
	r, l := newTestResponder(Config{})
	if err := r.Bind(mustAddress(t, "1.2.3.4", "AA:BB:CC:DD:EE:FF"), advFor("1.2.3.4")); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	conn := l.last()

	conn.deliver("NOTIFY * HTTP/1.1\r\nHOST: 239.255.255.250:1900\r\nNT: upnp:rootdevice\r\nNTS: ssdp:alive\r\n\r\n", client)
	conn.deliver(strings.Replace(searchBasic, "urn:schemas-upnp-org:device:basic:1", "urn:dial-multiscreen-org:service:dial:1", 1), client)
	conn.deliver("garbage", client)

	if err := r.Poll(context.Background()); err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	if replies := conn.sentTo(client.String()); len(replies) != 0 {
		t.Errorf("got %d replies to non-matching traffic, want 0", len(replies))
	}
	if got := r.Stats().Ignored; got != 3 {
		t.Errorf("Stats().Ignored = %d, want 3", got)
	}
}

func TestResponder_WriteFailureReturnsToIdle(t *testing.T) {
	r, l := newTestResponder(Config{})
	if err := r.Bind(mustAddress(t, "1.2.3.4", "AA:BB:CC:DD:EE:FF"), advFor("1.2.3.4")); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	conn := l.last()
	conn.writeErr = errors.New("network unreachable")
	conn.deliver(searchBasic, client)

	if err := r.Poll(context.Background()); err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	if r.State() != StateIdle {
		t.Errorf("State() = %v, want idle", r.State())
	}
	if got := r.Stats().Answered; got != 0 {
		t.Errorf("Stats().Answered = %d, want 0", got)
	}
}

// ─── Rebinding ──────────────────────────────────────────────────────

func TestResponder_RebindAdvertisesNewAddress(t *testing.T) {
	r, l := newTestResponder(Config{})
	mac := "AA:BB:CC:DD:EE:FF"

	if err := r.Bind(mustAddress(t, "10.0.0.9", mac), advFor("10.0.0.9")); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	old := l.last()

	// Same address: idempotent, no new socket.
	if err := r.Bind(mustAddress(t, "10.0.0.9", mac), advFor("10.0.0.9")); err != nil {
		t.Fatalf("second Bind() error = %v", err)
	}
	if len(l.conns) != 1 {
		t.Fatalf("same-address Bind opened %d sockets, want 1", len(l.conns))
	}

	if err := r.Bind(mustAddress(t, "1.2.3.4", mac), advFor("1.2.3.4")); err != nil {
		t.Fatalf("rebind error = %v", err)
	}
	if !old.closed {
		t.Error("old socket not closed on rebind")
	}

	conn := l.last()
	conn.deliver(searchBasic, client)
	if err := r.Poll(context.Background()); err != nil {
		t.Fatalf("Poll() error = %v", err)
	}

	replies := conn.sentTo(client.String())
	if len(replies) != 1 || !strings.Contains(replies[0], "LOCATION: http://1.2.3.4:80/") {
		t.Fatalf("reply does not advertise the new address: %q", replies)
	}
	if strings.Contains(replies[0], "10.0.0.9") {
		t.Error("reply still mentions the stale address")
	}
}

func TestResponder_UnbindSuspends(t *testing.T) {
	r, l := newTestResponder(Config{})
	if err := r.Bind(mustAddress(t, "1.2.3.4", "AA:BB:CC:DD:EE:FF"), advFor("1.2.3.4")); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}

	if err := r.Unbind(); err != nil {
		t.Fatalf("Unbind() error = %v", err)
	}
	if r.State() != StateSuspended || !l.last().closed {
		t.Errorf("after Unbind: state=%v closed=%v", r.State(), l.last().closed)
	}
	if err := r.Close(); err != nil {
		t.Errorf("Close() after Unbind error = %v", err)
	}
}

// ─── Announcements ──────────────────────────────────────────────────

func TestResponder_Notify(t *testing.T) {
	r, l := newTestResponder(Config{NotifyInterval: time.Minute})
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	if err := r.Bind(mustAddress(t, "1.2.3.4", "AA:BB:CC:DD:EE:FF"), advFor("1.2.3.4")); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	conn := l.last()

	if got := len(conn.sentTo(GroupAddress)); got != 1 {
		t.Fatalf("announcements after Bind = %d, want 1", got)
	}

	now = now.Add(30 * time.Second)
	_ = r.Poll(context.Background()) //nolint:errcheck // fake conn
	if got := len(conn.sentTo(GroupAddress)); got != 1 {
		t.Errorf("announcements before interval = %d, want 1", got)
	}

	now = now.Add(31 * time.Second)
	_ = r.Poll(context.Background()) //nolint:errcheck // fake conn
	alive := conn.sentTo(GroupAddress)
	if len(alive) != 2 {
		t.Fatalf("announcements after interval = %d, want 2", len(alive))
	}
	if !strings.Contains(alive[1], "NTS: ssdp:alive\r\n") || !strings.HasPrefix(alive[1], "NOTIFY * HTTP/1.1\r\n") {
		t.Errorf("unexpected announcement:\n%s", alive[1])
	}

	if err := r.Unbind(); err != nil {
		t.Fatalf("Unbind() error = %v", err)
	}
	all := conn.sentTo(GroupAddress)
	if !strings.Contains(all[len(all)-1], "NTS: ssdp:byebye") {
		t.Error("Unbind did not announce byebye")
	}
	if got := r.Stats().Notified; got != 3 {
		t.Errorf("Stats().Notified = %d, want 3", got)
	}
}

func TestResponder_PollContextCancelled(t *testing.T) {
	r, l := newTestResponder(Config{})
	if err := r.Bind(mustAddress(t, "1.2.3.4", "AA:BB:CC:DD:EE:FF"), advFor("1.2.3.4")); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	l.last().deliver(searchBasic, client)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := r.Poll(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Poll() error = %v, want context.Canceled", err)
	}
}
