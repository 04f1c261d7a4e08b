// ABOUTME: grandcat/zeroconf discovery backend
// ABOUTME: Alternate responder and resolver selectable with -backend zeroconf
package discovery

import (
	"context"
	"fmt"
	"log"

	"github.com/grandcat/zeroconf"
)

// ZeroconfBackend advertises and browses with github.com/grandcat/zeroconf
type ZeroconfBackend struct{}

// NewZeroconfBackend creates a zeroconf backend
func NewZeroconfBackend() *ZeroconfBackend {
	return &ZeroconfBackend{}
}

type zeroconfPublication struct {
	server *zeroconf.Server
}

func (p zeroconfPublication) Shutdown() error {
	p.server.Shutdown()
	return nil
}

// Publish registers a on all interfaces
func (b *ZeroconfBackend) Publish(a Announcement) (Publication, error) {
	server, err := zeroconf.Register(a.Instance, a.Service, a.Domain, a.Port, a.Text, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to register service: %w", err)
	}

	log.Printf("Announcing zeroconf service: %s on port %d (type: %s)", a.Instance, a.Port, a.Service)
	return zeroconfPublication{server: server}, nil
}

// Browse resolves services with a fresh resolver until ctx is done
func (b *ZeroconfBackend) Browse(ctx context.Context, service, domain string, entries chan<- Entry) error {
	resolver, err := zeroconf.NewResolver(zeroconf.SelectIPTraffic(zeroconf.IPv4))
	if err != nil {
		return fmt.Errorf("failed to initialize resolver: %w", err)
	}

	raw := make(chan *zeroconf.ServiceEntry, 16)
	if err := resolver.Browse(ctx, service, domain, raw); err != nil {
		return fmt.Errorf("failed to browse: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-raw:
			if !ok {
				<-ctx.Done()
				return nil
			}
			entry := Entry{
				Instance: unescapeLabel(e.Instance),
				Host:     e.HostName,
				AddrsV4:  e.AddrIPv4,
				AddrsV6:  e.AddrIPv6,
				Port:     e.Port,
				Text:     e.Text,
			}
			select {
			case entries <- entry:
			case <-ctx.Done():
				return nil
			}
		}
	}
}
