package discovery

import (
	"errors"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	// ServiceTypeMoonraker is the DNS-SD service type Moonraker registers.
	ServiceTypeMoonraker = "_moonraker._tcp"

	// Domain is the mDNS domain.
	Domain = "local"

	// DefaultPort is Moonraker's default HTTP port.
	DefaultPort = 7125

	// WebsocketPath is where Moonraker serves its JSON-RPC socket.
	WebsocketPath = "/websocket"

	// BrowseTimeout is the default time to wait for an instance.
	BrowseTimeout = 5 * time.Second
)

// TXT record keys read from Moonraker's advertisement.
const (
	TXTKeyVersion = "version"
	TXTKeyPath    = "path"
)

// Errors.
var (
	ErrNotFound = errors.New("no moonraker instance found")
)

// TXTRecordMap is a map of TXT record key-value pairs.
type TXTRecordMap map[string]string

// StringsToTXTRecords parses a slice of "key=value" strings into a TXTRecordMap.
func StringsToTXTRecords(strs []string) TXTRecordMap {
	txt := make(TXTRecordMap)
	for _, s := range strs {
		parts := strings.SplitN(s, "=", 2)
		if len(parts) == 2 {
			txt[parts[0]] = parts[1]
		} else if len(parts) == 1 && parts[0] != "" {
			// Key without value (boolean flag)
			txt[parts[0]] = ""
		}
	}
	return txt
}

// ServiceEntry is a browse result before conversion.
type ServiceEntry struct {
	Instance string
	Host     string
	Port     uint16
	Text     []string
	Addrs    []string
}

// MoonrakerService is a discovered Moonraker instance.
type MoonrakerService struct {
	InstanceName string
	Host         string
	Port         uint16
	Addresses    []string
	Version      string

	// Path is the HTTP path prefix Moonraker is served under, if any.
	Path string
}

// ToMoonrakerService converts a ServiceEntry to a MoonrakerService.
func (e *ServiceEntry) ToMoonrakerService() *MoonrakerService {
	txt := StringsToTXTRecords(e.Text)
	port := e.Port
	if port == 0 {
		port = DefaultPort
	}
	return &MoonrakerService{
		InstanceName: e.Instance,
		Host:         strings.TrimSuffix(e.Host, "."),
		Port:         port,
		Addresses:    append([]string(nil), e.Addrs...),
		Version:      txt[TXTKeyVersion],
		Path:         strings.Trim(txt[TXTKeyPath], "/"),
	}
}

// URL returns the WebSocket endpoint of the instance. The first address is
// preferred over the host name so that resolution does not depend on mDNS
// name lookup support.
func (s *MoonrakerService) URL() string {
	host := s.Host
	if len(s.Addresses) > 0 {
		host = s.Addresses[0]
	}
	// IPv6 zones are not valid in a URL host without escaping.
	host, _, _ = strings.Cut(host, "%")

	path := WebsocketPath
	if s.Path != "" {
		path = "/" + s.Path + WebsocketPath
	}

	u := url.URL{
		Scheme: "ws",
		Host:   net.JoinHostPort(host, strconv.Itoa(int(s.Port))),
		Path:   path,
	}
	return u.String()
}
