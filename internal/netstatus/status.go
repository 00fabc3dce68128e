package netstatus

import (
	"fmt"
	"net"
	"sync"
)

// Status answers whether the host has obtained a usable network address.
//
// The responder polls it every tick until it reports ready, then latches
// the returned address.
type Status interface {
	Ready() bool
	LocalAddress() (Address, bool)
}

// Static is a Status with a fixed, settable address. It is used when the
// operator pins the advertised address, and by tests.
type Static struct {
	mu   sync.RWMutex
	addr Address
	ok   bool
}

// NewStatic returns a Static that is already ready with addr.
func NewStatic(addr Address) (*Static, error) {
	if err := addr.Validate(); err != nil {
		return nil, err
	}
	return &Static{addr: addr, ok: true}, nil
}

// Set makes the status ready with addr. Invalid addresses are rejected.
func (s *Static) Set(addr Address) error {
	if err := addr.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.addr, s.ok = addr, true
	s.mu.Unlock()
	return nil
}

// Clear makes the status not ready.
func (s *Static) Clear() {
	s.mu.Lock()
	s.addr, s.ok = Address{}, false
	s.mu.Unlock()
}

// Ready implements Status.
func (s *Static) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ok
}

// LocalAddress implements Status.
func (s *Static) LocalAddress() (Address, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addr, s.ok
}

// iface is the subset of net.Interface the probe inspects.
type iface struct {
	Name  string
	Flags net.Flags
	MTU   int
	MAC   net.HardwareAddr
	Addrs []net.Addr
}

// InterfaceProbe derives readiness from the host's network interfaces.
//
// With a preferred name only that interface is considered; otherwise the
// first up, non-loopback interface with an IPv4 address and a MAC wins.
type InterfaceProbe struct {
	Preferred string
	list      func() ([]iface, error)
}

// NewInterfaceProbe returns a probe over the real host interfaces.
func NewInterfaceProbe(preferred string) *InterfaceProbe {
	return &InterfaceProbe{Preferred: preferred, list: systemInterfaces}
}

// Ready implements Status.
func (p *InterfaceProbe) Ready() bool {
	_, ok := p.LocalAddress()
	return ok
}

// LocalAddress implements Status.
func (p *InterfaceProbe) LocalAddress() (Address, bool) {
	addr, err := p.Probe()
	return addr, err == nil
}

// Probe returns the first usable address, or an error wrapping ErrNetworkNotReady.
func (p *InterfaceProbe) Probe() (Address, error) {
	ifs, err := p.list()
	if err != nil {
		return Address{}, fmt.Errorf("%w: listing interfaces: %w", ErrNetworkNotReady, err)
	}

	for _, ifc := range ifs {
		if p.Preferred != "" && ifc.Name != p.Preferred {
			continue
		}
		if ifc.Flags&net.FlagUp == 0 || ifc.Flags&net.FlagLoopback != 0 || ifc.MTU <= 0 {
			continue
		}
		for _, a := range ifc.Addrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok || ipnet.IP.To4() == nil {
				continue
			}
			addr := Address{IP: ipnet.IP.To4(), MAC: ifc.MAC, Interface: ifc.Name}
			if addr.Valid() {
				return addr, nil
			}
		}
	}

	if p.Preferred != "" {
		return Address{}, fmt.Errorf("%w: interface %q has no usable address", ErrNetworkNotReady, p.Preferred)
	}
	return Address{}, fmt.Errorf("%w: no usable interface", ErrNetworkNotReady)
}

func systemInterfaces() ([]iface, error) {
	ifs, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	out := make([]iface, 0, len(ifs))
	for _, ifc := range ifs {
		addrs, err := ifc.Addrs()
		if err != nil {
			continue
		}
		out = append(out, iface{
			Name:  ifc.Name,
			Flags: ifc.Flags,
			MTU:   ifc.MTU,
			MAC:   ifc.HardwareAddr,
			Addrs: addrs,
		})
	}
	return out, nil
}
