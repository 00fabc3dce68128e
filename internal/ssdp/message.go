package ssdp

import (
	"bufio"
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// Protocol constants.
const (
	// GroupAddress is the SSDP multicast group and port.
	GroupAddress = "239.255.255.250:1900"

	// ServerHeader is what a second-generation Hue bridge reports.
	ServerHeader = "FreeRTOS/6.0.5, UPnP/1.0, IpBridge/1.17.0"

	// TargetAll, TargetRootDevice and TargetBasicDevice are the search
	// targets the responder answers.
	TargetAll         = "ssdp:all"
	TargetRootDevice  = "upnp:rootdevice"
	TargetBasicDevice = "urn:schemas-upnp-org:device:basic:1"

	// DefaultMaxAge is the advertised CACHE-CONTROL max-age in seconds.
	DefaultMaxAge = 100

	methodSearch   = "M-SEARCH"
	manDiscover    = "ssdp:discover"
	basicDeviceKey = "device:basic:1"
)

// Search is a parsed M-SEARCH request.
type Search struct {
	// Target is the ST header as sent.
	Target string

	// MX is the requested maximum response delay in seconds. Responses are
	// always sent on the tick the query is observed, well inside MX.
	MX int
}

// ResponseTarget returns the ST value to answer with.
func (s Search) ResponseTarget() string {
	if strings.EqualFold(s.Target, TargetRootDevice) {
		return TargetRootDevice
	}
	return TargetBasicDevice
}

// ParseSearch parses a datagram as an SSDP M-SEARCH request.
//
// Returns ErrNotSearch for anything that is not a discover request and
// ErrUnsupportedTarget for searches aimed at other device types.
func ParseSearch(b []byte) (Search, error) {
	req, err := http.ReadRequest(bufio.NewReader(bytes.NewReader(b)))
	if err != nil {
		return Search{}, fmt.Errorf("%w: %w", ErrNotSearch, err)
	}
	defer req.Body.Close()

	if req.Method != methodSearch {
		return Search{}, fmt.Errorf("%w: method %s", ErrNotSearch, req.Method)
	}
	if man := strings.Trim(req.Header.Get("Man"), `" `); man != "" && man != manDiscover {
		return Search{}, fmt.Errorf("%w: man %s", ErrNotSearch, man)
	}

	s := Search{Target: strings.TrimSpace(req.Header.Get("St"))}
	if mx, err := strconv.Atoi(strings.TrimSpace(req.Header.Get("Mx"))); err == nil {
		s.MX = mx
	}

	target := strings.ToLower(s.Target)
	switch {
	case target == TargetAll, target == TargetRootDevice, strings.Contains(target, basicDeviceKey):
		return s, nil
	default:
		return Search{}, fmt.Errorf("%w: %q", ErrUnsupportedTarget, s.Target)
	}
}

// Advertisement is what the responder tells discovery clients about the bridge.
type Advertisement struct {
	// Location is the absolute URL of the bridge description document.
	Location string

	// UUID is the bridge UDN without the "uuid:" prefix.
	UUID string

	// BridgeID is the hue-bridgeid header value.
	BridgeID string
}

// usn builds the unique service name for a target.
func (a Advertisement) usn(target string) string {
	return "uuid:" + a.UUID + "::" + target
}

// buildResponse renders the unicast reply to a search.
func buildResponse(a Advertisement, target string, maxAge int) []byte {
	var b strings.Builder
	b.WriteString("HTTP/1.1 200 OK\r\n")
	b.WriteString("EXT:\r\n")
	fmt.Fprintf(&b, "CACHE-CONTROL: max-age=%d\r\n", maxAge)
	fmt.Fprintf(&b, "LOCATION: %s\r\n", a.Location)
	fmt.Fprintf(&b, "SERVER: %s\r\n", ServerHeader)
	fmt.Fprintf(&b, "hue-bridgeid: %s\r\n", a.BridgeID)
	fmt.Fprintf(&b, "ST: %s\r\n", target)
	fmt.Fprintf(&b, "USN: %s\r\n", a.usn(target))
	b.WriteString("\r\n")
	return []byte(b.String())
}

// buildNotify renders a multicast NOTIFY with the given NTS (ssdp:alive or ssdp:byebye).
func buildNotify(a Advertisement, nts string, maxAge int) []byte {
	var b strings.Builder
	b.WriteString("NOTIFY * HTTP/1.1\r\n")
	fmt.Fprintf(&b, "HOST: %s\r\n", GroupAddress)
	fmt.Fprintf(&b, "CACHE-CONTROL: max-age=%d\r\n", maxAge)
	fmt.Fprintf(&b, "LOCATION: %s\r\n", a.Location)
	fmt.Fprintf(&b, "SERVER: %s\r\n", ServerHeader)
	fmt.Fprintf(&b, "NT: %s\r\n", TargetRootDevice)
	fmt.Fprintf(&b, "NTS: %s\r\n", nts)
	fmt.Fprintf(&b, "USN: %s\r\n", a.usn(TargetRootDevice))
	fmt.Fprintf(&b, "hue-bridgeid: %s\r\n", a.BridgeID)
	b.WriteString("\r\n")
	return []byte(b.String())
}
