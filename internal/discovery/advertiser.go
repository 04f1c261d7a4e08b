// ABOUTME: Service advertiser for the local sync endpoint
// ABOUTME: Claims an ephemeral TCP port, accepts connections and publishes TXT metadata
package discovery

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/yaba-app/yaba-sync/internal/version"
	"github.com/yaba-app/yaba-sync/pkg/protocol"
)

// AdvertiserConfig configures an Advertiser
type AdvertiserConfig struct {
	// ListenAddr is the TCP address to bind (default ":0", an ephemeral port)
	ListenAddr string

	// Debug enables debug logging
	Debug bool
}

// Advertiser owns the listening socket and the mDNS publication
type Advertiser struct {
	backend Backend
	config  AdvertiserConfig

	mu       sync.Mutex
	listener net.Listener
	pub      Publication
	wg       sync.WaitGroup
}

// NewAdvertiser creates an advertiser publishing through backend
func NewAdvertiser(backend Backend, config AdvertiserConfig) *Advertiser {
	if config.ListenAddr == "" {
		config.ListenAddr = ":0"
	}
	return &Advertiser{
		backend: backend,
		config:  config,
	}
}

// Start binds the listening socket, hands every accepted connection to
// handle and publishes the advertisement. It returns the bound port.
// handle runs on the accept goroutine and must not block.
func (a *Advertiser) Start(ctx context.Context, id protocol.Identity, handle func(net.Conn)) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.listener != nil {
		return listenerPort(a.listener), nil
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", a.config.ListenAddr)
	if err != nil {
		return 0, protocol.NewError(protocol.KindServiceUnavailable, "bind", err)
	}
	port := listenerPort(ln)

	// The socket is ready once Listen returns; the accept loop runs from here on.
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.acceptLoop(ln, handle)
	}()

	pub, err := a.backend.Publish(Announcement{
		Instance: id.Name,
		Service:  ServiceType,
		Domain:   Domain,
		Port:     port,
		Text: []string{
			TXTDeviceID + "=" + id.ID,
			TXTDeviceType + "=" + string(id.Type),
			TXTVersion + "=" + version.ProtocolVersion,
		},
	})
	if err != nil {
		ln.Close()
		a.wg.Wait()
		return 0, protocol.NewError(protocol.KindServiceUnavailable, "publish", err)
	}

	a.listener = ln
	a.pub = pub

	log.Printf("Advertising %s (ID: %s, type: %s) on port %d", id.Name, id.ID, id.Type, port)
	return port, nil
}

// Port returns the bound port, or 0 when stopped
func (a *Advertiser) Port() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.listener == nil {
		return 0
	}
	return listenerPort(a.listener)
}

// Stop withdraws the advertisement and closes the listening socket.
// Connections already accepted are left to finish.
func (a *Advertiser) Stop() error {
	a.mu.Lock()
	ln, pub := a.listener, a.pub
	a.listener, a.pub = nil, nil
	a.mu.Unlock()

	if ln == nil {
		return nil
	}

	var errs []error
	if err := pub.Shutdown(); err != nil {
		errs = append(errs, fmt.Errorf("withdraw advertisement: %w", err))
	}
	if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		errs = append(errs, fmt.Errorf("close listener: %w", err))
	}
	a.wg.Wait()

	log.Printf("Advertisement withdrawn")
	return errors.Join(errs...)
}

func (a *Advertiser) acceptLoop(ln net.Listener, handle func(net.Conn)) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.Printf("Error accepting connection: %v", err)
			time.Sleep(50 * time.Millisecond)
			continue
		}

		if a.config.Debug {
			log.Printf("New connection accepted from %s", conn.RemoteAddr())
		}
		handle(conn)
	}
}

func listenerPort(ln net.Listener) int {
	if addr, ok := ln.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return 0
}
