// ABOUTME: Discovery backend abstraction over mDNS implementations
// ABOUTME: Defines announcements, resolved entries and TXT helpers
package discovery

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

const (
	// ServiceType is the DNS-SD service type peers advertise under
	ServiceType = "_yaba-sync._tcp"

	// Domain is the mDNS browse domain
	Domain = "local."

	// TXT keys
	TXTDeviceID   = "deviceId"
	TXTDeviceType = "deviceType"
	TXTVersion    = "version"

	// DefaultResolveTimeout bounds each browse round
	DefaultResolveTimeout = 5 * time.Second
)

// Announcement describes the service this instance publishes
type Announcement struct {
	Instance string
	Service  string
	Domain   string
	Port     int
	Text     []string
}

// Entry is a resolved advertisement seen during a browse round
type Entry struct {
	Instance string
	Host     string
	AddrsV4  []net.IP
	AddrsV6  []net.IP
	Port     int
	Text     []string
}

// Publication is a live advertisement
type Publication interface {
	Shutdown() error
}

// Backend publishes and browses DNS-SD services on the local network
type Backend interface {
	// Publish starts answering queries for a until the publication is shut down
	Publish(a Announcement) (Publication, error)

	// Browse sends every entry resolved before ctx is done to entries.
	// It blocks until ctx is done and never closes entries.
	Browse(ctx context.Context, service, domain string, entries chan<- Entry) error
}

// NewBackend returns the backend registered under name
func NewBackend(name string) (Backend, error) {
	switch name {
	case "", "mdns":
		return NewMDNSBackend(), nil
	case "zeroconf":
		return NewZeroconfBackend(), nil
	default:
		return nil, fmt.Errorf("unknown discovery backend %q", name)
	}
}

// ParseTXT splits key=value records. Later keys win.
func ParseTXT(records []string) map[string]string {
	fields := make(map[string]string, len(records))
	for _, rec := range records {
		key, value, _ := strings.Cut(rec, "=")
		if key == "" {
			continue
		}
		fields[key] = value
	}
	return fields
}

// instanceFromName extracts the instance label from a full service name
// like "My\ Phone._yaba-sync._tcp.local."
func instanceFromName(name, service, domain string) string {
	suffix := "." + strings.Trim(service, ".") + "." + strings.Trim(domain, ".")
	trimmed := strings.TrimSuffix(strings.TrimSuffix(name, "."), suffix)
	return unescapeLabel(trimmed)
}

// unescapeLabel reverses DNS presentation escaping (\. \  and \DDD)
func unescapeLabel(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}

	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i+1 >= len(s) {
			b.WriteByte(s[i])
			continue
		}
		if i+4 <= len(s) && isDigits(s[i+1:i+4]) {
			if n, err := strconv.Atoi(s[i+1 : i+4]); err == nil && n < 256 {
				b.WriteByte(byte(n))
				i += 3
				continue
			}
		}
		b.WriteByte(s[i+1])
		i++
	}
	return b.String()
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
