// ABOUTME: In-memory discovery network for tests
// ABOUTME: Backends sharing a Network see each other's announcements on loopback
package discoverytest

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/yaba-app/yaba-sync/internal/discovery"
)

// Network is a shared in-memory service directory
type Network struct {
	mu      sync.Mutex
	entries map[string]discovery.Entry
}

// NewNetwork creates an empty network
func NewNetwork() *Network {
	return &Network{entries: make(map[string]discovery.Entry)}
}

// Backend returns a discovery backend attached to the network
func (n *Network) Backend() discovery.Backend {
	return &backend{net: n}
}

// Inject adds or replaces an arbitrary entry, keyed by instance
func (n *Network) Inject(entry discovery.Entry) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.entries[entry.Instance] = entry
}

// Withdraw removes an entry as if its advertisement disappeared
func (n *Network) Withdraw(instance string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.entries, instance)
}

// Instances lists the currently advertised instance names
func (n *Network) Instances() []string {
	n.mu.Lock()
	defer n.mu.Unlock()

	out := make([]string, 0, len(n.entries))
	for name := range n.entries {
		out = append(out, name)
	}
	return out
}

func (n *Network) snapshot() []discovery.Entry {
	n.mu.Lock()
	defer n.mu.Unlock()

	out := make([]discovery.Entry, 0, len(n.entries))
	for _, e := range n.entries {
		out = append(out, e)
	}
	return out
}

type backend struct {
	net *Network
}

type publication struct {
	net      *Network
	instance string
	once     sync.Once
}

func (p *publication) Shutdown() error {
	p.once.Do(func() {
		p.net.Withdraw(p.instance)
	})
	return nil
}

func (b *backend) Publish(a discovery.Announcement) (discovery.Publication, error) {
	if a.Instance == "" {
		return nil, fmt.Errorf("instance name is required")
	}
	b.net.Inject(discovery.Entry{
		Instance: a.Instance,
		Host:     "localhost.",
		AddrsV4:  []net.IP{net.IPv4(127, 0, 0, 1)},
		Port:     a.Port,
		Text:     append([]string(nil), a.Text...),
	})
	return &publication{net: b.net, instance: a.Instance}, nil
}

func (b *backend) Browse(ctx context.Context, service, domain string, entries chan<- discovery.Entry) error {
	for _, e := range b.net.snapshot() {
		select {
		case entries <- e:
		case <-ctx.Done():
			return nil
		}
	}
	<-ctx.Done()
	return nil
}
