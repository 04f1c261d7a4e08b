// ABOUTME: Service browser for yaba-sync peers
// ABOUTME: Runs bounded browse rounds and emits found/removed events on one channel
package discovery

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

// EventKind distinguishes browse events
type EventKind int

const (
	EventFound EventKind = iota + 1
	EventRemoved
)

func (k EventKind) String() string {
	switch k {
	case EventFound:
		return "found"
	case EventRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Event is a single browse observation. Entry is only set for EventFound.
type Event struct {
	Kind     EventKind
	Instance string
	Entry    Entry
}

// BrowserConfig configures a Browser
type BrowserConfig struct {
	// ResolveTimeout bounds each browse round (default 5s)
	ResolveTimeout time.Duration

	// ExpireAfter is how long an instance may go unseen before it is
	// reported removed (default three rounds)
	ExpireAfter time.Duration

	// Debug enables debug logging
	Debug bool
}

// Browser discovers other advertisements of ServiceType
type Browser struct {
	backend Backend
	config  BrowserConfig

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

var errBrowserStarted = errors.New("browser already started")

// NewBrowser creates a browser over backend
func NewBrowser(backend Backend, config BrowserConfig) *Browser {
	if config.ResolveTimeout <= 0 {
		config.ResolveTimeout = DefaultResolveTimeout
	}
	if config.ExpireAfter <= 0 {
		config.ExpireAfter = 3 * config.ResolveTimeout
	}
	return &Browser{
		backend: backend,
		config:  config,
	}
}

// Start begins the browse session. The returned channel is closed when the
// session ends; a Browser cannot be restarted.
func (b *Browser) Start(ctx context.Context) (<-chan Event, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.started {
		return nil, errBrowserStarted
	}
	b.started = true

	ctx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.done = make(chan struct{})

	events := make(chan Event, 16)
	go func() {
		defer close(b.done)
		defer close(events)
		b.run(ctx, events)
	}()

	log.Printf("Browsing for %s peers", ServiceType)
	return events, nil
}

// Stop ends the browse session and waits for the round loop to exit
func (b *Browser) Stop() {
	b.mu.Lock()
	cancel, done := b.cancel, b.done
	b.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (b *Browser) run(ctx context.Context, events chan<- Event) {
	seen := make(map[string]time.Time)

	for ctx.Err() == nil {
		started := time.Now()
		err := b.round(ctx, events, seen)
		if err != nil && ctx.Err() == nil {
			log.Printf("Browse round failed: %v", err)
			// avoid spinning when the backend fails immediately
			if wait := b.config.ResolveTimeout - time.Since(started); wait > 0 {
				select {
				case <-ctx.Done():
				case <-time.After(wait):
				}
			}
		}

		now := time.Now()
		for instance, last := range seen {
			if now.Sub(last) < b.config.ExpireAfter {
				continue
			}
			delete(seen, instance)
			if b.config.Debug {
				log.Printf("Peer advertisement expired: %s", instance)
			}
			b.emit(ctx, events, Event{Kind: EventRemoved, Instance: instance})
		}
	}
}

// round runs one bounded browse and reports each entry as found
func (b *Browser) round(ctx context.Context, events chan<- Event, seen map[string]time.Time) error {
	roundCtx, cancel := context.WithTimeout(ctx, b.config.ResolveTimeout)
	defer cancel()

	entries := make(chan Entry, 16)
	errCh := make(chan error, 1)
	go func() {
		errCh <- b.backend.Browse(roundCtx, ServiceType, Domain, entries)
		close(entries)
	}()

	for entry := range entries {
		if entry.Instance == "" {
			continue
		}
		seen[entry.Instance] = time.Now()
		b.emit(ctx, events, Event{Kind: EventFound, Instance: entry.Instance, Entry: entry})
	}

	return <-errCh
}

func (b *Browser) emit(ctx context.Context, events chan<- Event, ev Event) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
