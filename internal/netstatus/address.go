package netstatus

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"net"
)

// Address is the identity the responder advertises: an IPv4 address and
// the hardware address of the interface carrying it.
type Address struct {
	IP        net.IP
	MAC       net.HardwareAddr
	Interface string
}

// ParseAddress builds an Address from textual IP and MAC values.
func ParseAddress(ip, mac string) (Address, error) {
	parsedIP := net.ParseIP(ip)
	if parsedIP == nil {
		return Address{}, fmt.Errorf("%w: ip %q", ErrInvalidAddress, ip)
	}
	parsedMAC, err := net.ParseMAC(mac)
	if err != nil {
		return Address{}, fmt.Errorf("%w: mac %q: %w", ErrInvalidAddress, mac, err)
	}

	a := Address{IP: parsedIP, MAC: parsedMAC}
	if err := a.Validate(); err != nil {
		return Address{}, err
	}
	return a, nil
}

// Validate reports ErrInvalidAddress unless the address carries a specific
// IPv4 address and a non-zero 48-bit MAC.
func (a Address) Validate() error {
	ip4 := a.IP.To4()
	switch {
	case ip4 == nil:
		return fmt.Errorf("%w: %v is not IPv4", ErrInvalidAddress, a.IP)
	case ip4.IsUnspecified():
		return fmt.Errorf("%w: unspecified ip", ErrInvalidAddress)
	case len(a.MAC) != 6:
		return fmt.Errorf("%w: mac %v is not 48-bit", ErrInvalidAddress, a.MAC)
	case bytes.Equal(a.MAC, make(net.HardwareAddr, 6)):
		return fmt.Errorf("%w: zero mac", ErrInvalidAddress)
	}
	return nil
}

// Valid reports whether Validate succeeds.
func (a Address) Valid() bool {
	return a.Validate() == nil
}

// Equal reports whether a and b advertise the same identity.
func (a Address) Equal(b Address) bool {
	return a.IP.Equal(b.IP) && bytes.Equal(a.MAC, b.MAC)
}

// CompactMAC returns the MAC as lowercase hex without separators.
func (a Address) CompactMAC() string {
	return hex.EncodeToString(a.MAC)
}

func (a Address) String() string {
	return fmt.Sprintf("%s (%s)", a.IP, a.MAC)
}
