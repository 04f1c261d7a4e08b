// ABOUTME: High-level sync Service API
// ABOUTME: Owns discovery, registry and transport lifecycle and exposes peer and message streams
package yabasync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yaba-app/yaba-sync/internal/discovery"
	"github.com/yaba-app/yaba-sync/internal/registry"
	"github.com/yaba-app/yaba-sync/internal/transport"
	"github.com/yaba-app/yaba-sync/pkg/protocol"
)

// State is the discovery lifecycle state
type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// ErrClosed is returned by operations on a closed Service
var ErrClosed = errors.New("sync service closed")

// Service discovers peers on the local network and exchanges sync messages with them
type Service struct {
	config   Config
	backend  discovery.Backend
	registry *registry.Registry
	sender   *transport.Sender
	listener *transport.Listener

	// Incoming streams live as long as the Service
	requests  chan protocol.SyncRequestMessage
	responses chan protocol.SyncRequestResponse
	data      chan protocol.SyncDataMessage
	errs      chan error

	state    atomic.Int32
	handlers sync.WaitGroup
	done     chan struct{}

	// Lifecycle, guarded by mu
	mu         sync.Mutex
	closed     bool
	identity   protocol.Identity
	advertiser *discovery.Advertiser
	browser    *discovery.Browser
	pumpDone   chan struct{}
}

// NewService creates a stopped service
func NewService(config Config) (*Service, error) {
	config.applyDefaults()

	backend := config.discovery
	if backend == nil {
		var err error
		backend, err = discovery.NewBackend(config.Backend)
		if err != nil {
			return nil, err
		}
	}

	s := &Service{
		config:   config,
		backend:  backend,
		registry: registry.New(),
		sender: transport.NewSender(transport.SenderConfig{
			DialTimeout: config.DialTimeout,
			Debug:       config.Debug,
		}),
		requests:  make(chan protocol.SyncRequestMessage, config.StreamBuffer),
		responses: make(chan protocol.SyncRequestResponse, config.StreamBuffer),
		data:      make(chan protocol.SyncDataMessage, config.StreamBuffer),
		errs:      make(chan error, config.StreamBuffer),
		done:      make(chan struct{}),
	}
	s.listener = transport.NewListener(inbound{s}, transport.ListenerConfig{
		MaxMessageSize: config.MaxMessageSize,
		ReadTimeout:    config.ReadTimeout,
		Debug:          config.Debug,
	})

	return s, nil
}

// StartDiscovery advertises id and starts browsing for peers. It returns
// once the sync socket is listening. Calling it while running is a no-op.
func (s *Service) StartDiscovery(ctx context.Context, id protocol.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.State() != StateStopped {
		return nil
	}
	if err := id.Validate(); err != nil {
		return fmt.Errorf("invalid identity: %w", err)
	}
	if id.Type == "" {
		id.Type = protocol.DeviceTypeUnknown
	}

	s.state.Store(int32(StateStarting))
	log.Printf("Sync service starting: %s (ID: %s)", id.Name, id.ID)

	advertiser := discovery.NewAdvertiser(s.backend, discovery.AdvertiserConfig{
		ListenAddr: s.config.ListenAddr,
		Debug:      s.config.Debug,
	})
	port, err := advertiser.Start(ctx, id, s.handleConn)
	if err != nil {
		s.state.Store(int32(StateStopped))
		return err
	}

	browser := discovery.NewBrowser(s.backend, discovery.BrowserConfig{
		ResolveTimeout: s.config.ResolveTimeout,
		ExpireAfter:    s.config.ExpireAfter,
		Debug:          s.config.Debug,
	})
	events, err := browser.Start(context.Background())
	if err != nil {
		advertiser.Stop()
		s.state.Store(int32(StateStopped))
		return protocol.NewError(protocol.KindServiceUnavailable, "browse", err)
	}

	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		s.pump(events, id.ID)
	}()

	s.identity = id
	s.advertiser = advertiser
	s.browser = browser
	s.pumpDone = pumpDone
	s.state.Store(int32(StateRunning))

	log.Printf("Sync service running on port %d", port)
	return nil
}

// StopDiscovery withdraws the advertisement, stops browsing, closes the
// sync socket and clears the peer list. Calling it while stopped is a no-op.
func (s *Service) StopDiscovery() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopLocked()
}

func (s *Service) stopLocked() error {
	if s.State() != StateRunning {
		return nil
	}
	s.state.Store(int32(StateStopping))

	err := s.advertiser.Stop()
	s.browser.Stop()
	<-s.pumpDone
	s.registry.Clear()

	s.advertiser = nil
	s.browser = nil
	s.pumpDone = nil
	s.state.Store(int32(StateStopped))

	log.Printf("Sync service stopped")
	return err
}

// Close stops discovery, waits for inbound handlers and closes every stream
func (s *Service) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	err := s.stopLocked()
	s.mu.Unlock()

	close(s.done)
	s.handlers.Wait()
	s.registry.Close()

	close(s.requests)
	close(s.responses)
	close(s.data)
	close(s.errs)
	return err
}

// State returns the current lifecycle state
func (s *Service) State() State {
	return State(s.state.Load())
}

// Identity returns the identity being advertised, if running
func (s *Service) Identity() (protocol.Identity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity, s.advertiser != nil
}

// Port returns the sync socket port, or 0 when stopped
func (s *Service) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.advertiser == nil {
		return 0
	}
	return s.advertiser.Port()
}

// Peers returns the current peers sorted by name, then id
func (s *Service) Peers() []protocol.ConnectedDevice {
	return s.registry.Snapshot()
}

// Peer looks up a discovered peer by id
func (s *Service) Peer(id string) (protocol.ConnectedDevice, bool) {
	for _, d := range s.registry.Snapshot() {
		if d.ID == id {
			return d, true
		}
	}
	return protocol.ConnectedDevice{}, false
}

// SubscribePeers returns a latest-value stream of peer snapshots. The
// current snapshot is delivered immediately.
func (s *Service) SubscribePeers(ctx context.Context) <-chan []protocol.ConnectedDevice {
	return s.registry.Subscribe(ctx)
}

// Requests streams incoming sync requests
func (s *Service) Requests() <-chan protocol.SyncRequestMessage {
	return s.requests
}

// Responses streams incoming sync responses
func (s *Service) Responses() <-chan protocol.SyncRequestResponse {
	return s.responses
}

// Data streams incoming sync data
func (s *Service) Data() <-chan protocol.SyncDataMessage {
	return s.data
}

// Errors streams inbound failures such as undecodable payloads
func (s *Service) Errors() <-chan error {
	return s.errs
}

// SendSyncRequest delivers msg to device
func (s *Service) SendSyncRequest(ctx context.Context, msg protocol.SyncRequestMessage, to protocol.ConnectedDevice) error {
	return s.send(ctx, msg, to)
}

// SendSyncResponse delivers msg to device
func (s *Service) SendSyncResponse(ctx context.Context, msg protocol.SyncRequestResponse, to protocol.ConnectedDevice) error {
	return s.send(ctx, msg, to)
}

// SendSyncData delivers msg to device
func (s *Service) SendSyncData(ctx context.Context, msg protocol.SyncDataMessage, to protocol.ConnectedDevice) error {
	return s.send(ctx, msg, to)
}

// Send delivers any sync message to device
func (s *Service) Send(ctx context.Context, msg protocol.Message, to protocol.ConnectedDevice) error {
	return s.send(ctx, msg, to)
}

func (s *Service) send(ctx context.Context, msg protocol.Message, to protocol.ConnectedDevice) error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}
	return s.sender.Send(ctx, msg, to)
}

// handleConn runs on the accept goroutine; the read happens on its own goroutine
func (s *Service) handleConn(conn net.Conn) {
	s.handlers.Add(1)
	go func() {
		defer s.handlers.Done()
		s.listener.Serve(conn)
	}()
}

// inbound adapts the Service to transport.Sink
type inbound struct {
	s *Service
}

func (in inbound) HandleMessage(msg protocol.Message, from net.Addr) {
	switch m := msg.(type) {
	case protocol.SyncRequestMessage:
		publish(in.s, in.s.requests, m)
	case protocol.SyncRequestResponse:
		publish(in.s, in.s.responses, m)
	case protocol.SyncDataMessage:
		publish(in.s, in.s.data, m)
	}
}

func (in inbound) HandleError(err error) {
	publish(in.s, in.s.errs, err)
}

func publish[T any](s *Service, ch chan T, v T) {
	select {
	case ch <- v:
	case <-s.done:
	case <-time.After(s.config.PublishTimeout):
		log.Printf("Incoming stream full, dropping %T", v)
	}
}

// pump is the only writer to the registry while discovery runs
func (s *Service) pump(events <-chan discovery.Event, selfID string) {
	instances := make(map[string]string)

	for ev := range events {
		switch ev.Kind {
		case discovery.EventFound:
			device, err := discovery.ResolveDevice(ev.Entry, selfID, time.Now())
			if err != nil {
				if s.config.Debug {
					log.Printf("Ignoring advertisement %q: %v", ev.Instance, err)
				}
				continue
			}

			prev, known := instances[ev.Instance]
			if known && prev != device.ID && !otherInstanceHas(instances, ev.Instance, prev) {
				s.registry.Remove(prev)
			}
			if !known {
				log.Printf("Discovered peer: %s", device)
			}
			instances[ev.Instance] = device.ID
			s.registry.Upsert(device)

		case discovery.EventRemoved:
			id, ok := instances[ev.Instance]
			if !ok {
				continue
			}
			delete(instances, ev.Instance)
			if otherInstanceHas(instances, ev.Instance, id) {
				continue
			}
			log.Printf("Peer gone: %s (%s)", ev.Instance, id)
			s.registry.Remove(id)
		}
	}
}

// otherInstanceHas reports whether an instance other than skip maps to id
func otherInstanceHas(instances map[string]string, skip, id string) bool {
	for instance, other := range instances {
		if instance != skip && other == id {
			return true
		}
	}
	return false
}
