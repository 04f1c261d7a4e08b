// ABOUTME: hashicorp/mdns discovery backend
// ABOUTME: Handles both advertisement and browse rounds for yaba-sync peers
package discovery

import (
	"context"
	"fmt"
	"log"
	"net"
	"strings"
	"time"

	"github.com/hashicorp/mdns"
)

// MDNSBackend advertises and browses with github.com/hashicorp/mdns
type MDNSBackend struct{}

// NewMDNSBackend creates the default backend
func NewMDNSBackend() *MDNSBackend {
	return &MDNSBackend{}
}

// Publish advertises a on every up, non-loopback IPv4 address
func (b *MDNSBackend) Publish(a Announcement) (Publication, error) {
	ips, err := getLocalIPs()
	if err != nil {
		return nil, fmt.Errorf("failed to get local IPs: %w", err)
	}

	service, err := mdns.NewMDNSService(
		a.Instance,
		strings.TrimSuffix(a.Service, "."),
		a.Domain,
		"",
		a.Port,
		ips,
		a.Text,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return nil, fmt.Errorf("failed to create mdns server: %w", err)
	}

	log.Printf("Advertising mDNS service: %s on port %d (type: %s)", a.Instance, a.Port, a.Service)
	return server, nil
}

// Browse runs one mDNS query that lasts until ctx is done
func (b *MDNSBackend) Browse(ctx context.Context, service, domain string, entries chan<- Entry) error {
	timeout := DefaultResolveTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if timeout <= 0 {
		return ctx.Err()
	}

	raw := make(chan *mdns.ServiceEntry, 16)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for e := range raw {
			entry := Entry{
				Instance: instanceFromName(e.Name, service, domain),
				Host:     e.Host,
				Port:     e.Port,
				Text:     e.InfoFields,
			}
			if e.AddrV4 != nil {
				entry.AddrsV4 = []net.IP{e.AddrV4}
			}
			if e.AddrV6 != nil {
				entry.AddrsV6 = []net.IP{e.AddrV6}
			}

			select {
			case entries <- entry:
			case <-ctx.Done():
			}
		}
	}()

	params := mdns.DefaultParams(strings.TrimSuffix(service, "."))
	params.Domain = strings.TrimSuffix(domain, ".")
	params.Timeout = timeout
	params.Entries = raw
	params.DisableIPv6 = true

	err := mdns.QueryContext(ctx, params)
	close(raw)
	<-done

	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("mdns query failed: %w", err)
	}
	<-ctx.Done()
	return nil
}

// getLocalIPs returns local IP addresses
func getLocalIPs() ([]net.IP, error) {
	var ips []net.IP

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
				if ipnet.IP.To4() != nil {
					ips = append(ips, ipnet.IP)
				}
			}
		}
	}

	return ips, nil
}
