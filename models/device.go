package models

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Address is a network transport endpoint for a device.
type Address struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// ParseAddress parses "host:port". The port must be a positive integer.
func ParseAddress(s string) (Address, error) {
	host, portStr, err := net.SplitHostPort(strings.TrimSpace(s))
	if err != nil {
		return Address{}, fmt.Errorf("invalid address %q: %w", s, err)
	}
	if host == "" {
		return Address{}, fmt.Errorf("invalid address %q: empty host", s)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return Address{}, fmt.Errorf("invalid address %q: bad port", s)
	}
	return Address{Host: host, Port: port}, nil
}

func (a Address) String() string {
	if a.Host == "" {
		return ""
	}
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// IsZero reports whether no address has been obtained yet.
func (a Address) IsZero() bool {
	return a.Host == ""
}

// Property is one human-readable device property, e.g. "Model: Pixel 7".
type Property struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// DeviceRecord is the last successfully used device, persisted between runs.
type DeviceRecord struct {
	Address    Address    `json:"address"`
	Properties []Property `json:"properties"`
}

// Device is one line of the debugging tool's long device listing.
type Device struct {
	Serial      string            `json:"serial"`
	State       string            `json:"state"`
	Model       string            `json:"model,omitempty"`
	Product     string            `json:"product,omitempty"`
	DeviceName  string            `json:"device,omitempty"`
	TransportID string            `json:"transport_id,omitempty"`
	Fields      map[string]string `json:"fields,omitempty"`
}

// Online reports whether the device is attached and authorized.
func (d Device) Online() bool {
	return d.State == "device"
}

// IsNetwork reports whether the serial names a network transport
// (ip:port or an mDNS service name) rather than a cable session.
func (d Device) IsNetwork() bool {
	return strings.Contains(d.Serial, ":") || strings.Contains(d.Serial, ".")
}
