// ABOUTME: Local WebSocket bridge for the sync service
// ABOUTME: Streams peer and message events to local UIs and accepts send commands
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/yaba-app/yaba-sync/pkg/protocol"
)

// Envelope types sent to bridge clients
const (
	TypePeers    = "peers"
	TypeRequest  = "sync/request"
	TypeResponse = "sync/response"
	TypeData     = "sync/data"
	TypeError    = "error"
	TypeSent     = "sent"
)

// Command types accepted from bridge clients
const (
	CommandSendRequest  = "send/request"
	CommandSendResponse = "send/response"
	CommandSendData     = "send/data"
)

const (
	writeDeadline = 10 * time.Second
	pingInterval  = 30 * time.Second
	sendBuffer    = 64
)

// Envelope is the frame exchanged with bridge clients
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// SendCommand asks the bridge to deliver message to a discovered peer
type SendCommand struct {
	DeviceID string          `json:"deviceId"`
	Message  json.RawMessage `json:"message"`
}

// SentNotice acknowledges a delivered SendCommand
type SentNotice struct {
	DeviceID  string `json:"deviceId"`
	RequestID string `json:"requestId"`
}

// ErrorNotice reports a failure to bridge clients
type ErrorNotice struct {
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message"`
}

// Service is the part of the sync service the bridge drives
type Service interface {
	Peer(id string) (protocol.ConnectedDevice, bool)
	Send(ctx context.Context, msg protocol.Message, to protocol.ConnectedDevice) error
}

// Config configures a bridge Server
type Config struct {
	// Addr is the HTTP listen address (default "127.0.0.1:0")
	Addr string

	// SendTimeout bounds each peer delivery requested by a client (default 15s)
	SendTimeout time.Duration

	Debug bool
}

// Server serves the /events WebSocket endpoint
type Server struct {
	config   Config
	service  Service
	upgrader websocket.Upgrader

	httpServer *http.Server

	clients   map[*client]struct{}
	clientsMu sync.RWMutex

	// Last peer list, replayed to new clients
	lastPeers json.RawMessage

	stopOnce sync.Once
	stopChan chan struct{}
	wg       sync.WaitGroup
}

type client struct {
	conn     *websocket.Conn
	sendChan chan []byte
	once     sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.sendChan) })
}

// New creates a bridge over service
func New(service Service, config Config) *Server {
	if config.Addr == "" {
		config.Addr = "127.0.0.1:0"
	}
	if config.SendTimeout <= 0 {
		config.SendTimeout = 15 * time.Second
	}

	s := &Server{
		config:  config,
		service: service,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					// Non-browser clients send no Origin
					return true
				}
				if localOrigin(origin) {
					return true
				}
				log.Printf("Rejecting bridge connection from origin: %s", origin)
				return false
			},
		},
		clients:  make(map[*client]struct{}),
		stopChan: make(chan struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/events", s.handleWebSocket)
	s.httpServer = &http.Server{Handler: mux}
	return s
}

// Start binds the HTTP listener and serves in the background
func (s *Server) Start() (string, error) {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return "", fmt.Errorf("bridge listen: %w", err)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Bridge server error: %v", err)
		}
	}()

	log.Printf("Event bridge listening on ws://%s/events", ln.Addr())
	return ln.Addr().String(), nil
}

// Stop closes the listener and every client connection
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		s.clientsMu.Lock()
		close(s.stopChan)
		// Hijacked connections are not closed by Shutdown
		for c := range s.clients {
			c.conn.Close()
		}
		s.clientsMu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(ctx); err != nil {
			log.Printf("Bridge shutdown error: %v", err)
		}

		s.wg.Wait()
	})
}

// spawn runs f on a tracked goroutine unless the bridge is stopping
func (s *Server) spawn(f func()) bool {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()

	select {
	case <-s.stopChan:
		return false
	default:
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		f()
	}()
	return true
}

// ClientCount returns the number of connected clients
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

// PublishPeers broadcasts the current peer list
func (s *Server) PublishPeers(peers []protocol.ConnectedDevice) {
	if peers == nil {
		peers = []protocol.ConnectedDevice{}
	}
	data, err := json.Marshal(peers)
	if err != nil {
		log.Printf("Error marshaling peers: %v", err)
		return
	}

	s.clientsMu.Lock()
	s.lastPeers = data
	s.clientsMu.Unlock()

	s.broadcast(TypePeers, data)
}

// PublishMessage broadcasts an incoming sync message
func (s *Server) PublishMessage(msg protocol.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("Error marshaling %v: %v", msg.Kind(), err)
		return
	}
	s.broadcast(msg.Kind().String(), data)
}

// PublishError broadcasts an inbound failure
func (s *Server) PublishError(err error) {
	data, merr := json.Marshal(errorNotice(err))
	if merr != nil {
		log.Printf("Error marshaling error notice: %v", merr)
		return
	}
	s.broadcast(TypeError, data)
}

func (s *Server) broadcast(typ string, payload json.RawMessage) {
	frame, err := json.Marshal(Envelope{Type: typ, Payload: payload})
	if err != nil {
		log.Printf("Error marshaling envelope: %v", err)
		return
	}

	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	for c := range s.clients {
		s.queue(c, frame)
	}
}

// queue must be called with clientsMu held
func (s *Server) queue(c *client, frame []byte) {
	select {
	case c.sendChan <- frame:
	default:
		log.Printf("Bridge client %s send buffer full, dropping frame", c.conn.RemoteAddr())
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	if s.config.Debug {
		log.Printf("[DEBUG] Bridge client connected from %s", r.RemoteAddr)
	}
	s.handleConnection(conn)
}

func (s *Server) handleConnection(conn *websocket.Conn) {
	defer conn.Close()

	c := &client{conn: conn, sendChan: make(chan []byte, sendBuffer)}

	s.clientsMu.Lock()
	select {
	case <-s.stopChan:
		s.clientsMu.Unlock()
		return
	default:
	}
	s.clients[c] = struct{}{}
	if s.lastPeers != nil {
		if frame, err := json.Marshal(Envelope{Type: TypePeers, Payload: s.lastPeers}); err != nil {
			log.Printf("Error marshaling peers replay: %v", err)
		} else {
			s.queue(c, frame)
		}
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.clientWriter(c)
	}()
	s.clientsMu.Unlock()

	defer func() {
		s.clientsMu.Lock()
		delete(s.clients, c)
		c.close()
		s.clientsMu.Unlock()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("Bridge WebSocket error: %v", err)
			}
			return
		}
		s.handleCommand(c, data)
	}
}

// clientWriter owns all writes to the client connection
func (s *Server) clientWriter(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case frame, ok := <-c.sendChan:
			if !ok {
				c.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(time.Second))
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.Printf("Error writing bridge frame: %v", err)
				c.conn.Close()
				return
			}

		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(writeDeadline)); err != nil {
				return
			}
		}
	}
}

func (s *Server) handleCommand(c *client, data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		s.reply(c, TypeError, ErrorNotice{Message: fmt.Sprintf("invalid envelope: %v", err)})
		return
	}

	var cmd SendCommand
	if err := json.Unmarshal(env.Payload, &cmd); err != nil {
		s.reply(c, TypeError, ErrorNotice{Message: fmt.Sprintf("invalid %s payload: %v", env.Type, err)})
		return
	}

	msg, requestID, err := decodeCommand(env.Type, cmd.Message)
	if err != nil {
		s.reply(c, TypeError, errorNotice(err))
		return
	}

	peer, ok := s.service.Peer(cmd.DeviceID)
	if !ok {
		s.reply(c, TypeError, ErrorNotice{
			Kind:    protocol.KindPeerUnreachable.String(),
			Message: fmt.Sprintf("unknown peer %q", cmd.DeviceID),
		})
		return
	}

	// Delivery can take up to the dial timeout; keep reading meanwhile
	s.spawn(func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.config.SendTimeout)
		defer cancel()

		if err := s.service.Send(ctx, msg, peer); err != nil {
			log.Printf("Bridge send to %s failed: %v", peer.Name, err)
			s.reply(c, TypeError, errorNotice(err))
			return
		}
		s.reply(c, TypeSent, SentNotice{DeviceID: peer.ID, RequestID: requestID})
	})
}

func (s *Server) reply(c *client, typ string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("Error marshaling %s reply: %v", typ, err)
		return
	}
	frame, err := json.Marshal(Envelope{Type: typ, Payload: data})
	if err != nil {
		log.Printf("Error marshaling %s envelope: %v", typ, err)
		return
	}

	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	if _, ok := s.clients[c]; ok {
		s.queue(c, frame)
	}
}

func decodeCommand(typ string, raw json.RawMessage) (protocol.Message, string, error) {
	switch typ {
	case CommandSendRequest:
		m, err := protocol.DecodeRequest(raw)
		return m, m.RequestID, err
	case CommandSendResponse:
		m, err := protocol.DecodeResponse(raw)
		return m, m.RequestID, err
	case CommandSendData:
		m, err := protocol.DecodeData(raw)
		return m, m.RequestID, err
	default:
		return nil, "", fmt.Errorf("unknown command %q", typ)
	}
}

// localOrigin reports whether a browser Origin points at this machine
func localOrigin(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}

func errorNotice(err error) ErrorNotice {
	n := ErrorNotice{Message: err.Error()}
	var perr *protocol.Error
	if errors.As(err, &perr) {
		n.Kind = perr.Kind.String()
	}
	return n
}
