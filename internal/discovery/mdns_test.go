// ABOUTME: Tests for mDNS backends and name helpers
// ABOUTME: Tests backend selection, TXT parsing and instance name extraction
package discovery

import (
	"testing"
)

func TestNewBackend(t *testing.T) {
	tests := []struct {
		name      string
		backend   string
		expectErr bool
	}{
		{name: "default", backend: ""},
		{name: "mdns", backend: "mdns"},
		{name: "zeroconf", backend: "zeroconf"},
		{name: "unknown", backend: "bonjour", expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := NewBackend(tt.backend)
			if tt.expectErr {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if b == nil {
				t.Fatal("expected backend to be created")
			}
		})
	}
}

func TestParseTXT(t *testing.T) {
	fields := ParseTXT([]string{"deviceId=A1", "deviceType=phone", "version=1.0", "flag", "=orphan", "note=a=b"})

	if fields["deviceId"] != "A1" {
		t.Errorf("expected deviceId A1, got %q", fields["deviceId"])
	}
	if fields["deviceType"] != "phone" {
		t.Errorf("expected deviceType phone, got %q", fields["deviceType"])
	}
	if v, ok := fields["flag"]; !ok || v != "" {
		t.Errorf("expected bare key with empty value, got %q, %v", v, ok)
	}
	if fields["note"] != "a=b" {
		t.Errorf("expected value split on first '=', got %q", fields["note"])
	}
	if _, ok := fields[""]; ok {
		t.Error("empty keys should be skipped")
	}
}

func TestInstanceFromName(t *testing.T) {
	tests := []struct {
		name string
		full string
		want string
	}{
		{"plain", "Alpha._yaba-sync._tcp.local.", "Alpha"},
		{"no trailing dot", "Alpha._yaba-sync._tcp.local", "Alpha"},
		{"escaped space", `My\ Phone._yaba-sync._tcp.local.`, "My Phone"},
		{"escaped dot", `v1\.2._yaba-sync._tcp.local.`, "v1.2"},
		{"decimal escape", `Caf\195\169._yaba-sync._tcp.local.`, "Café"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := instanceFromName(tt.full, ServiceType, Domain)
			if got != tt.want {
				t.Errorf("instanceFromName(%q) = %q, want %q", tt.full, got, tt.want)
			}
		})
	}
}

func TestGetLocalIPs(t *testing.T) {
	ips, err := getLocalIPs()

	if err != nil {
		t.Fatalf("getLocalIPs failed: %v", err)
	}

	// Environment dependent: only check what was returned
	for _, ip := range ips {
		if ip.To4() == nil {
			t.Errorf("getLocalIPs returned non-IPv4 address: %v", ip)
		}
		if ip.IsLoopback() {
			t.Errorf("getLocalIPs returned loopback address: %v", ip)
		}
	}
}
