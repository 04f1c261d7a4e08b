// ABOUTME: Tests for entry resolution
// ABOUTME: Covers self-discovery exclusion and address selection
package discovery

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/yaba-app/yaba-sync/pkg/protocol"
)

func TestResolveDevice(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	entry := Entry{
		Instance: "Alpha",
		AddrsV4:  []net.IP{net.ParseIP("192.168.1.20"), net.ParseIP("10.0.0.5")},
		Port:     51234,
		Text:     []string{"deviceId=A1", "deviceType=tablet", "version=1.0"},
	}

	d, err := ResolveDevice(entry, "B1", now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := protocol.ConnectedDevice{
		ID:         "A1",
		Name:       "Alpha",
		IPAddress:  "192.168.1.20",
		Port:       51234,
		DeviceType: protocol.DeviceTypeTablet,
		LastSeen:   now,
	}
	if d != want {
		t.Errorf("got %+v, want %+v", d, want)
	}
}

func TestResolveDeviceRejects(t *testing.T) {
	base := func() Entry {
		return Entry{
			Instance: "Alpha",
			AddrsV4:  []net.IP{net.ParseIP("192.168.1.20")},
			Port:     51234,
			Text:     []string{"deviceId=A1", "deviceType=phone"},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Entry)
		selfID string
		want   error
	}{
		{"self", func(e *Entry) {}, "A1", errSelf},
		{"missing id", func(e *Entry) { e.Text = []string{"deviceType=phone"} }, "B1", errMissingDeviceID},
		{"empty id", func(e *Entry) { e.Text = []string{"deviceId="} }, "B1", errMissingDeviceID},
		{"ipv6 only", func(e *Entry) {
			e.AddrsV4 = nil
			e.AddrsV6 = []net.IP{net.ParseIP("fe80::1")}
		}, "B1", errNoIPv4},
		{"ipv6 in v4 list", func(e *Entry) { e.AddrsV4 = []net.IP{net.ParseIP("fe80::1")} }, "B1", errNoIPv4},
		{"no port", func(e *Entry) { e.Port = 0 }, "B1", errNoPort},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := base()
			tt.mutate(&e)
			_, err := ResolveDevice(e, tt.selfID, time.Now())
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestResolveDeviceUnknownType(t *testing.T) {
	e := Entry{
		Instance: "Gamma",
		AddrsV4:  []net.IP{net.ParseIP("192.168.1.30")},
		Port:     4000,
		Text:     []string{"deviceId=G1"},
	}
	d, err := ResolveDevice(e, "", time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.DeviceType != protocol.DeviceTypeUnknown {
		t.Errorf("expected unknown device type, got %q", d.DeviceType)
	}
}
