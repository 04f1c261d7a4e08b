// ABOUTME: WebSocket client for the local event bridge
// ABOUTME: Receives service events and submits send commands on behalf of a local UI
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/yaba-app/yaba-sync/pkg/protocol"
)

// Client is a bridge client
type Client struct {
	conn *websocket.Conn
	mu   sync.Mutex

	// Events carries every envelope received from the bridge
	Events chan Envelope

	connected bool
	ctx       context.Context
	cancel    context.CancelFunc
}

// Dial connects to the bridge at addr (host:port)
func Dial(ctx context.Context, addr string) (*Client, error) {
	u := url.URL{Scheme: "ws", Host: addr, Path: "/events"}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial failed: %w", err)
	}

	cctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		conn:      conn,
		Events:    make(chan Envelope, 64),
		connected: true,
		ctx:       cctx,
		cancel:    cancel,
	}

	go c.readMessages()
	return c, nil
}

// readMessages reads envelopes until the connection closes, then closes Events
func (c *Client) readMessages() {
	defer close(c.Events)
	defer c.Close()

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("Bridge read error: %v", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.Printf("Failed to parse bridge envelope: %v", err)
			continue
		}

		select {
		case c.Events <- env:
		case <-c.ctx.Done():
			return
		case <-time.After(time.Second):
			log.Printf("Bridge event channel full, dropping %s", env.Type)
		}
	}
}

// SendRequest asks the bridge to deliver a sync request to deviceID
func (c *Client) SendRequest(deviceID string, msg protocol.SyncRequestMessage) error {
	return c.command(CommandSendRequest, deviceID, msg)
}

// SendResponse asks the bridge to deliver a sync response to deviceID
func (c *Client) SendResponse(deviceID string, msg protocol.SyncRequestResponse) error {
	return c.command(CommandSendResponse, deviceID, msg)
}

// SendData asks the bridge to deliver sync data to deviceID
func (c *Client) SendData(deviceID string, msg protocol.SyncDataMessage) error {
	return c.command(CommandSendData, deviceID, msg)
}

func (c *Client) command(typ, deviceID string, msg protocol.Message) error {
	body, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(SendCommand{DeviceID: deviceID, Message: body})
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", typ, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return fmt.Errorf("not connected")
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	return c.conn.WriteJSON(Envelope{Type: typ, Payload: payload})
}

// Close closes the connection
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		c.connected = false
		c.cancel()
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.conn.Close()
	}
}
