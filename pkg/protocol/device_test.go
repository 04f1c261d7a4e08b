// ABOUTME: Tests for device identity types and error taxonomy
// ABOUTME: Covers DeviceType parsing, identity validation and errors.Is matching
package protocol

import (
	"errors"
	"fmt"
	"net"
	"testing"
)

func TestParseDeviceType(t *testing.T) {
	tests := []struct {
		raw  string
		want DeviceType
	}{
		{"phone", DeviceTypePhone},
		{"tablet", DeviceTypeTablet},
		{"desktop", DeviceTypeDesktop},
		{"unknown", DeviceTypeUnknown},
		{"", DeviceTypeUnknown},
		{"toaster", DeviceTypeUnknown},
	}

	for _, tt := range tests {
		if got := ParseDeviceType(tt.raw); got != tt.want {
			t.Errorf("ParseDeviceType(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestDeviceAddr(t *testing.T) {
	d := ConnectedDevice{ID: "A1", Name: "Alpha", IPAddress: "192.168.1.20", Port: 51234}
	if d.Addr() != "192.168.1.20:51234" {
		t.Errorf("unexpected addr %s", d.Addr())
	}
}

func TestIdentityValidate(t *testing.T) {
	if err := (Identity{ID: "A1", Name: "Alpha"}).Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := (Identity{Name: "Alpha"}).Validate(); err == nil {
		t.Error("expected error for missing id")
	}
	if err := (Identity{ID: "A1"}).Validate(); err == nil {
		t.Error("expected error for missing name")
	}
}

func TestErrorMatchesByKind(t *testing.T) {
	cause := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	err := fmt.Errorf("send to Alpha: %w", NewError(KindPeerUnreachable, "dial", cause))

	if !errors.Is(err, ErrPeerUnreachable) {
		t.Error("expected peer unreachable to match")
	}
	if errors.Is(err, ErrTimeout) {
		t.Error("peer unreachable must not match timeout")
	}

	var opErr *net.OpError
	if !errors.As(err, &opErr) {
		t.Error("expected underlying transport error to be reachable")
	}

	if KindOf(err) != KindPeerUnreachable {
		t.Errorf("expected KindPeerUnreachable, got %v", KindOf(err))
	}
	if KindOf(errors.New("plain")) != 0 {
		t.Error("plain errors have no kind")
	}
}

func TestErrorString(t *testing.T) {
	err := NewError(KindServiceUnavailable, "bind", errors.New("address in use"))
	want := "bind: service unavailable: address in use"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}
