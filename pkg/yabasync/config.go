// ABOUTME: Sync service configuration
// ABOUTME: Plain config struct with defaults filled in by NewService
package yabasync

import (
	"time"

	"github.com/yaba-app/yaba-sync/internal/discovery"
	"github.com/yaba-app/yaba-sync/internal/transport"
)

// Config configures a sync Service. Zero values select defaults.
type Config struct {
	// Backend selects the mDNS implementation: "mdns" (default) or "zeroconf"
	Backend string

	// ListenAddr is the sync socket bind address (default ":0", an ephemeral port)
	ListenAddr string

	// ResolveTimeout bounds each discovery round (default 5s)
	ResolveTimeout time.Duration

	// ExpireAfter is how long a peer may go unseen before removal (default 3 rounds)
	ExpireAfter time.Duration

	// DialTimeout bounds outbound connects (default 5s)
	DialTimeout time.Duration

	// ReadTimeout is the idle timeout on inbound reads (default 30s, negative disables)
	ReadTimeout time.Duration

	// MaxMessageSize caps inbound payloads (default 4 MiB)
	MaxMessageSize int

	// StreamBuffer is the capacity of each incoming stream (default 64)
	StreamBuffer int

	// PublishTimeout is how long an inbound event waits for a slow consumer
	// before it is dropped (default 5s)
	PublishTimeout time.Duration

	// Debug enables debug logging
	Debug bool

	// discovery overrides Backend; tests use an in-memory network
	discovery discovery.Backend
}

func (c *Config) applyDefaults() {
	if c.ResolveTimeout <= 0 {
		c.ResolveTimeout = discovery.DefaultResolveTimeout
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = transport.DefaultDialTimeout
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = transport.DefaultMaxMessageSize
	}
	if c.StreamBuffer <= 0 {
		c.StreamBuffer = 64
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = 5 * time.Second
	}
}
