package ssdp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/net/ipv4"

	"github.com/nerrad567/gray-logic-fauxmo/internal/netstatus"
)

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

// State is the discovery state machine position.
type State int

// Discovery states.
const (
	// StateSuspended means no valid address is bound; queries are dropped.
	StateSuspended State = iota
	StateIdle
	StateQueryReceived
	StateResponseSent
)

func (s State) String() string {
	switch s {
	case StateSuspended:
		return "suspended"
	case StateIdle:
		return "idle"
	case StateQueryReceived:
		return "query_received"
	case StateResponseSent:
		return "response_sent"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// PacketConn is the datagram socket the responder reads queries from and
// writes replies to. *net.UDPConn satisfies it.
type PacketConn interface {
	ReadFrom(p []byte) (n int, addr net.Addr, err error)
	WriteTo(p []byte, addr net.Addr) (n int, err error)
	SetReadDeadline(t time.Time) error
	Close() error
}

// ListenFunc opens the discovery socket for a bound address.
type ListenFunc func(addr netstatus.Address) (PacketConn, error)

// ListenMulticast joins the SSDP group on the interface carrying addr.
func ListenMulticast(addr netstatus.Address) (PacketConn, error) {
	group, err := net.ResolveUDPAddr("udp4", GroupAddress)
	if err != nil {
		return nil, fmt.Errorf("resolving group address: %w", err)
	}

	var ifi *net.Interface
	if addr.Interface != "" {
		ifi, err = net.InterfaceByName(addr.Interface)
		if err != nil {
			return nil, fmt.Errorf("finding interface %q: %w", addr.Interface, err)
		}
	}

	conn, err := net.ListenMulticastUDP("udp4", ifi, group)
	if err != nil {
		return nil, fmt.Errorf("joining %s: %w", GroupAddress, err)
	}

	// Announcements must leave the local segment at most one router hop.
	pc := ipv4.NewPacketConn(conn)
	if err := pc.SetMulticastTTL(2); err != nil {
		conn.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("setting multicast ttl: %w", err)
	}
	if ifi != nil {
		if err := pc.SetMulticastInterface(ifi); err != nil {
			conn.Close() //nolint:errcheck // Best effort cleanup on error path
			return nil, fmt.Errorf("setting multicast interface: %w", err)
		}
	}

	return conn, nil
}

// Config tunes the responder.
type Config struct {
	// ReadBudget bounds how long one Poll may wait for datagrams.
	ReadBudget time.Duration

	// NotifyInterval enables periodic ssdp:alive announcements when positive.
	NotifyInterval time.Duration

	// MaxAge is the advertised cache lifetime in seconds. Zero means DefaultMaxAge.
	MaxAge int

	// Listen opens the socket on Bind. Nil means ListenMulticast.
	Listen ListenFunc
}

// Stats counts discovery traffic since the responder was created.
type Stats struct {
	Answered uint64 `json:"answered"`
	Ignored  uint64 `json:"ignored"`
	Notified uint64 `json:"notified"`
}

// Responder answers SSDP searches on behalf of the emulated bridge.
//
// It is driven by Poll from the host tick. While no address is bound it is
// suspended: the socket is closed and queries are never seen, so nothing
// is queued for later.
type Responder struct {
	cfg    Config
	group  net.Addr
	now    func() time.Time
	logger Logger

	mu         sync.Mutex
	conn       PacketConn
	addr       netstatus.Address
	adv        Advertisement
	state      State
	lastNotify time.Time
	stats      Stats
	observer   func(from, to State)
	buf        []byte
}

// NewResponder creates a suspended responder.
func NewResponder(cfg Config) *Responder {
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultMaxAge
	}
	if cfg.Listen == nil {
		cfg.Listen = ListenMulticast
	}
	group, _ := net.ResolveUDPAddr("udp4", GroupAddress) //nolint:errcheck // constant address

	return &Responder{
		cfg:    cfg,
		group:  group,
		now:    time.Now,
		logger: noopLogger{},
		state:  StateSuspended,
		buf:    make([]byte, 2048),
	}
}

// SetLogger sets the logger for the responder.
func (r *Responder) SetLogger(logger Logger) {
	r.logger = logger
}

// SetObserver registers a callback invoked on every state transition.
func (r *Responder) SetObserver(fn func(from, to State)) {
	r.mu.Lock()
	r.observer = fn
	r.mu.Unlock()
}

// State returns the current state.
func (r *Responder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Stats returns the traffic counters.
func (r *Responder) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// Bound returns the address currently advertised, if any.
func (r *Responder) Bound() (netstatus.Address, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.addr, r.state != StateSuspended
}

// Bind starts advertising adv for addr, leaving suspension.
//
// Binding the same address again is a no-op apart from refreshing adv.
// A different address closes the old socket and opens a new one.
// Invalid addresses are rejected and the responder stays as it was.
func (r *Responder) Bind(addr netstatus.Address, adv Advertisement) error {
	if err := addr.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateSuspended && r.addr.Equal(addr) {
		r.adv = adv
		return nil
	}

	if r.conn != nil {
		_ = r.closeLocked() //nolint:errcheck // rebinding replaces the socket regardless
	}

	conn, err := r.cfg.Listen(addr)
	if err != nil {
		return fmt.Errorf("binding discovery socket: %w", err)
	}

	r.conn = conn
	r.addr = addr
	r.adv = adv
	r.transitionLocked(StateIdle)
	r.logger.Info("discovery bound", "address", addr.IP.String(), "location", adv.Location)

	if r.cfg.NotifyInterval > 0 {
		r.notifyLocked("ssdp:alive")
	}
	return nil
}

// Unbind closes the socket and suspends the responder.
func (r *Responder) Unbind() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn == nil {
		return nil
	}
	err := r.closeLocked()
	r.logger.Info("discovery suspended")
	return err
}

// Close releases the socket. It is equivalent to Unbind.
func (r *Responder) Close() error {
	return r.Unbind()
}

func (r *Responder) closeLocked() error {
	if r.cfg.NotifyInterval > 0 {
		r.notifyLocked("ssdp:byebye")
	}
	err := r.conn.Close()
	r.conn = nil
	r.addr = netstatus.Address{}
	r.transitionLocked(StateSuspended)
	return err
}

// Poll services every query that arrives within the read budget and
// answers each one before returning. It returns nil when suspended.
func (r *Responder) Poll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == StateSuspended {
		return nil
	}

	now := r.now()
	if r.cfg.NotifyInterval > 0 && now.Sub(r.lastNotify) >= r.cfg.NotifyInterval {
		r.notifyLocked("ssdp:alive")
	}

	if err := r.conn.SetReadDeadline(now.Add(r.cfg.ReadBudget)); err != nil {
		return fmt.Errorf("setting read deadline: %w", err)
	}

	for ctx.Err() == nil {
		n, from, err := r.conn.ReadFrom(r.buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				return nil
			}
			return fmt.Errorf("reading discovery socket: %w", err)
		}
		r.handleLocked(r.buf[:n], from)
	}
	return ctx.Err()
}

func (r *Responder) handleLocked(b []byte, from net.Addr) {
	search, err := ParseSearch(b)
	if err != nil {
		r.stats.Ignored++
		return
	}

	r.transitionLocked(StateQueryReceived)
	target := search.ResponseTarget()
	if _, err := r.conn.WriteTo(buildResponse(r.adv, target, r.cfg.MaxAge), from); err != nil {
		r.logger.Warn("discovery response failed", "to", from.String(), "error", err)
	} else {
		r.stats.Answered++
		r.transitionLocked(StateResponseSent)
		r.logger.Debug("discovery response sent", "to", from.String(), "st", target)
	}
	r.transitionLocked(StateIdle)
}

func (r *Responder) notifyLocked(nts string) {
	r.lastNotify = r.now()
	if _, err := r.conn.WriteTo(buildNotify(r.adv, nts, r.cfg.MaxAge), r.group); err != nil {
		r.logger.Warn("discovery notify failed", "nts", nts, "error", err)
		return
	}
	r.stats.Notified++
}

func (r *Responder) transitionLocked(to State) {
	from := r.state
	if from == to {
		return
	}
	r.state = to
	if r.observer != nil {
		r.observer(from, to)
	}
}
