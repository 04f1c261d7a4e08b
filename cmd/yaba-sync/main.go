// ABOUTME: Entry point for the yaba-sync daemon
// ABOUTME: Parses CLI flags, runs discovery and fans service events out to the TUI and bridge
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/yaba-app/yaba-sync/internal/bridge"
	"github.com/yaba-app/yaba-sync/internal/ui"
	"github.com/yaba-app/yaba-sync/internal/version"
	"github.com/yaba-app/yaba-sync/pkg/protocol"
	"github.com/yaba-app/yaba-sync/pkg/yabasync"
)

var (
	name       = flag.String("name", "", "Device friendly name (default: hostname)")
	deviceID   = flag.String("id", "", "Stable device id (default: random per run)")
	deviceType = flag.String("type", "desktop", "Device type: phone, tablet, desktop")
	backend    = flag.String("backend", "mdns", "mDNS implementation: mdns or zeroconf")
	listenAddr = flag.String("listen", ":0", "Sync socket bind address")
	bridgePort = flag.Int("bridge-port", 8937, "Local WebSocket bridge port (0 disables)")
	accept     = flag.Bool("accept", false, "Automatically accept incoming sync requests")
	logFile    = flag.String("log-file", "yaba-sync.log", "Log file path")
	noTUI      = flag.Bool("no-tui", false, "Disable TUI, use streaming logs instead")
	debug      = flag.Bool("debug", false, "Enable debug logging")
)

func main() {
	flag.Parse()

	useTUI := !*noTUI

	f, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer func() { _ = f.Close() }()

	if useTUI {
		// TUI mode: log only to file
		log.SetOutput(f)
	} else {
		log.SetOutput(io.MultiWriter(os.Stdout, f))
	}

	identity := protocol.Identity{
		ID:   *deviceID,
		Name: *name,
		Type: protocol.ParseDeviceType(*deviceType),
	}
	if identity.Name == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		identity.Name = hostname
	}
	if identity.ID == "" {
		identity.ID = uuid.NewString()
	}

	log.Printf("Starting %s %s by %s: %s (ID: %s)", version.Product, version.Version, version.Manufacturer, identity.Name, identity.ID)
	if *debug {
		log.Printf("Debug logging enabled")
	}
	log.Printf("Logging to: %s", *logFile)

	svc, err := yabasync.NewService(yabasync.Config{
		Backend:    *backend,
		ListenAddr: *listenAddr,
		Debug:      *debug,
	})
	if err != nil {
		log.Fatalf("Failed to create sync service: %v", err)
	}

	var tui *ui.TUI
	if useTUI {
		tui = ui.New(identity)
	}
	updateTUI := func(msg any) {
		if tui != nil {
			tui.Send(msg)
		}
	}

	var events *bridge.Server
	if *bridgePort > 0 {
		events = bridge.New(svc, bridge.Config{
			Addr:  fmt.Sprintf("127.0.0.1:%d", *bridgePort),
			Debug: *debug,
		})
		addr, err := events.Start()
		if err != nil {
			log.Fatalf("Failed to start event bridge: %v", err)
		}
		updateTUI(ui.StatusMsg{BridgeAddr: addr})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := svc.StartDiscovery(ctx, identity); err != nil {
		log.Fatalf("Failed to start discovery: %v", err)
	}
	running := true
	updateTUI(ui.StatusMsg{Running: &running, Port: svc.Port()})

	fan := &fanout{svc: svc, identity: identity, events: events, updateTUI: updateTUI, accept: *accept}
	go fan.peers(ctx)
	go fan.messages()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var tuiQuit <-chan struct{}
	if tui != nil {
		tuiQuit = tui.QuitChan()
		go func() {
			if err := tui.Run(); err != nil {
				log.Printf("TUI error: %v", err)
			}
		}()
	} else {
		log.Printf("Press Ctrl-C to stop")
	}

	select {
	case sig := <-sigChan:
		log.Printf("Received %v signal, shutting down gracefully...", sig)
	case <-tuiQuit:
		log.Printf("TUI quit requested, shutting down...")
	}

	cancel()
	if tui != nil {
		tui.Stop()
	}
	if err := svc.Close(); err != nil {
		log.Printf("Error closing sync service: %v", err)
	}
	if events != nil {
		events.Stop()
	}

	log.Printf("Sync service stopped")
}

// fanout copies service streams to the TUI and bridge
type fanout struct {
	svc       *yabasync.Service
	identity  protocol.Identity
	events    *bridge.Server
	updateTUI func(any)
	accept    bool
}

func (f *fanout) peers(ctx context.Context) {
	for peers := range f.svc.SubscribePeers(ctx) {
		f.updateTUI(ui.PeersMsg(peers))
		if f.events != nil {
			f.events.PublishPeers(peers)
		}
	}
}

// messages runs until Close ends the service streams
func (f *fanout) messages() {
	requests, responses, data, errs := f.svc.Requests(), f.svc.Responses(), f.svc.Data(), f.svc.Errors()

	for requests != nil || responses != nil || data != nil || errs != nil {
		select {
		case m, ok := <-requests:
			if !ok {
				requests = nil
				continue
			}
			f.message(m)
			if f.accept {
				go f.respond(m)
			}
		case m, ok := <-responses:
			if !ok {
				responses = nil
				continue
			}
			f.message(m)
		case m, ok := <-data:
			if !ok {
				data = nil
				continue
			}
			f.message(m)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			log.Printf("Sync error: %v", err)
			f.updateTUI(ui.ActivityMsg{Err: err, At: time.Now()})
			if f.events != nil {
				f.events.PublishError(err)
			}
		}
	}
}

func (f *fanout) message(m protocol.Message) {
	log.Printf("Received %s", ui.Describe(m))
	f.updateTUI(ui.ActivityMsg{Message: m, At: time.Now()})
	if f.events != nil {
		f.events.PublishMessage(m)
	}
}

// respond accepts req when its sender is a known peer
func (f *fanout) respond(req protocol.SyncRequestMessage) {
	peer, ok := f.svc.Peer(req.SenderID)
	if !ok {
		log.Printf("Cannot answer request %s: sender %s not discovered", req.RequestID, req.SenderID)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	resp := protocol.NewSyncResponse(req, f.identity, true, "")
	if err := f.svc.SendSyncResponse(ctx, resp, peer); err != nil {
		log.Printf("Failed to answer %s: %v", peer.Name, err)
		f.updateTUI(ui.ActivityMsg{Err: err, At: time.Now()})
	}
}
