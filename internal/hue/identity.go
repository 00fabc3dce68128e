package hue

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-fauxmo/internal/device"
	"github.com/nerrad567/gray-logic-fauxmo/internal/netstatus"
)

// bridgeUUIDBase holds the fixed leading ten bytes every emulated bridge
// UDN shares. The trailing six bytes are the interface MAC.
var bridgeUUIDBase = uuid.MustParse("2f402f80-da50-11e1-9b23-000000000000")

// Identity is how the bridge presents itself on the network.
type Identity struct {
	IP   net.IP
	MAC  net.HardwareAddr
	Port int
}

// NewIdentity builds the bridge identity for a bound address and HTTP port.
func NewIdentity(addr netstatus.Address, port int) Identity {
	return Identity{IP: addr.IP, MAC: addr.MAC, Port: port}
}

// Host returns "ip:port".
func (i Identity) Host() string {
	return net.JoinHostPort(i.IP.String(), strconv.Itoa(i.Port))
}

// BaseURL returns the bridge URL base with a trailing slash.
func (i Identity) BaseURL() string {
	return "http://" + i.Host() + "/"
}

// Location returns the description document URL advertised over SSDP.
func (i Identity) Location() string {
	return i.BaseURL() + "description.xml"
}

// BridgeID returns the MAC as lowercase hex without separators.
func (i Identity) BridgeID() string {
	return strings.ToLower(strings.ReplaceAll(i.MAC.String(), ":", ""))
}

// UUID returns the bridge UDN without its "uuid:" prefix.
func (i Identity) UUID() uuid.UUID {
	u := bridgeUUIDBase
	copy(u[10:], i.MAC)
	return u
}

// UDN returns the UPnP unique device name.
func (i Identity) UDN() string {
	return "uuid:" + i.UUID().String()
}

// UniqueID returns the Hue uniqueid of a light, unique per bridge and device.
func (i Identity) UniqueID(id device.ID) string {
	return fmt.Sprintf("%s:00:00-%02X", strings.ToUpper(i.MAC.String()), uint8(id))
}
