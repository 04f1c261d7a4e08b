// ABOUTME: Turns resolved mDNS entries into ConnectedDevice records
// ABOUTME: Filters self-discovery, missing ids and IPv6-only peers
package discovery

import (
	"errors"
	"time"

	"github.com/yaba-app/yaba-sync/pkg/protocol"
)

var (
	errMissingDeviceID = errors.New("advertisement has no deviceId")
	errSelf            = errors.New("advertisement is our own")
	errNoIPv4          = errors.New("advertisement has no IPv4 address")
	errNoPort          = errors.New("advertisement has no port")
)

// ResolveDevice builds the device for entry. selfID is never returned.
func ResolveDevice(entry Entry, selfID string, now time.Time) (protocol.ConnectedDevice, error) {
	txt := ParseTXT(entry.Text)

	id := txt[TXTDeviceID]
	if id == "" {
		return protocol.ConnectedDevice{}, errMissingDeviceID
	}
	if id == selfID {
		return protocol.ConnectedDevice{}, errSelf
	}
	if entry.Port <= 0 {
		return protocol.ConnectedDevice{}, errNoPort
	}

	var ip string
	for _, addr := range entry.AddrsV4 {
		if v4 := addr.To4(); v4 != nil {
			ip = v4.String()
			break
		}
	}
	if ip == "" {
		return protocol.ConnectedDevice{}, errNoIPv4
	}

	return protocol.ConnectedDevice{
		ID:         id,
		Name:       entry.Instance,
		IPAddress:  ip,
		Port:       entry.Port,
		DeviceType: protocol.ParseDeviceType(txt[TXTDeviceType]),
		LastSeen:   now,
	}, nil
}
