package riakpb

import (
	"net"
	"regexp"
	"strconv"
)

const (
	DefaultHost = "127.0.0.1"
	DefaultPort = 8087
)

// DefaultAddress is used when a client is created without servers.
var DefaultAddress = net.JoinHostPort(DefaultHost, strconv.Itoa(DefaultPort))

// Servers provides the list of node addresses ("host:port") a client talks to.
type Servers interface {
	List() []string
}

// StaticServers is a fixed list of node addresses.
type StaticServers struct {
	addrs []string
}

// NewStaticServers returns a server list. With no address it returns
// DefaultAddress.
func NewStaticServers(addrs ...string) *StaticServers {
	if len(addrs) == 0 {
		addrs = []string{DefaultAddress}
	}
	return &StaticServers{addrs: append([]string(nil), addrs...)}
}

func (s *StaticServers) List() []string {
	return s.addrs
}

var hostnamePattern = regexp.MustCompile(`^[[:alnum:]]([[:alnum:]-]*[[:alnum:]])?(\.[[:alnum:]]([[:alnum:]-]*[[:alnum:]])?)*$`)

// ValidateHost accepts IP addresses and dot-separated alphanumeric hostnames
// (labels may contain inner hyphens).
func ValidateHost(host string) error {
	if host == "" {
		return &ValidationError{Field: "host", Message: "must not be empty"}
	}
	if net.ParseIP(host) != nil {
		return nil
	}
	if !hostnamePattern.MatchString(host) {
		return &ValidationError{Field: "host", Message: strconv.Quote(host) + " is not a hostname or IP address"}
	}
	return nil
}

// ValidatePort accepts ports in 0..65535.
func ValidatePort(port int) error {
	if port < 0 || port > 65535 {
		return &ValidationError{Field: "port", Message: strconv.Itoa(port) + " is outside 0..65535"}
	}
	return nil
}

// ValidateAddress checks a "host:port" node address.
func ValidateAddress(addr string) error {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return &ValidationError{Field: "address", Message: err.Error()}
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return &ValidationError{Field: "port", Message: strconv.Quote(portStr) + " is not a number"}
	}
	if err := ValidateHost(host); err != nil {
		return err
	}
	return ValidatePort(port)
}
