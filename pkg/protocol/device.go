// ABOUTME: Device identity types shared by discovery, registry and transport
// ABOUTME: Defines DeviceType, ConnectedDevice and the local Identity
package protocol

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// DeviceType is the category a peer advertises. It is metadata only.
type DeviceType string

const (
	DeviceTypePhone   DeviceType = "phone"
	DeviceTypeTablet  DeviceType = "tablet"
	DeviceTypeDesktop DeviceType = "desktop"
	DeviceTypeUnknown DeviceType = "unknown"
)

// ParseDeviceType maps a raw TXT value to a DeviceType, falling back to unknown
func ParseDeviceType(raw string) DeviceType {
	switch DeviceType(raw) {
	case DeviceTypePhone, DeviceTypeTablet, DeviceTypeDesktop:
		return DeviceType(raw)
	default:
		return DeviceTypeUnknown
	}
}

// ConnectedDevice is the last known record of a discovered peer
type ConnectedDevice struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	IPAddress  string     `json:"ipAddress"`
	Port       int        `json:"port"`
	DeviceType DeviceType `json:"deviceType"`
	LastSeen   time.Time  `json:"lastSeen"`
}

// Addr returns the host:port the peer accepts sync connections on
func (d ConnectedDevice) Addr() string {
	return net.JoinHostPort(d.IPAddress, strconv.Itoa(d.Port))
}

func (d ConnectedDevice) String() string {
	return fmt.Sprintf("%s (%s) at %s", d.Name, d.ID, d.Addr())
}

// Identity is the local instance's advertised identity
type Identity struct {
	ID   string
	Name string
	Type DeviceType
}

// Validate checks that the identity can be advertised
func (i Identity) Validate() error {
	if i.ID == "" {
		return fmt.Errorf("device id is required")
	}
	if i.Name == "" {
		return fmt.Errorf("device name is required")
	}
	return nil
}
