// ABOUTME: Message sender for outbound sync traffic
// ABOUTME: One connection per message: dial, write, half-close, close
package transport

import (
	"context"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/yaba-app/yaba-sync/pkg/protocol"
)

// DefaultDialTimeout bounds connection establishment
const DefaultDialTimeout = 5 * time.Second

// SenderConfig configures a Sender
type SenderConfig struct {
	// DialTimeout bounds connect (default 5s)
	DialTimeout time.Duration

	// WriteTimeout bounds the write; zero means DialTimeout
	WriteTimeout time.Duration

	// Debug enables debug logging
	Debug bool
}

// Sender delivers single encoded messages to peers
type Sender struct {
	config SenderConfig
	dialer net.Dialer
}

// NewSender creates a sender
func NewSender(config SenderConfig) *Sender {
	if config.DialTimeout <= 0 {
		config.DialTimeout = DefaultDialTimeout
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = config.DialTimeout
	}
	return &Sender{
		config: config,
		dialer: net.Dialer{Timeout: config.DialTimeout},
	}
}

// Send encodes msg and writes it to device on a fresh connection. No
// acknowledgement is read back.
func (s *Sender) Send(ctx context.Context, msg protocol.Message, device protocol.ConnectedDevice) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}

	op := fmt.Sprintf("send %s to %s", msg.Kind(), device.Name)
	addr := device.Addr()

	// DialContext returning is the readiness point; no settling delay
	conn, err := s.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return protocol.NewError(protocol.KindPeerUnreachable, op, err)
	}
	defer conn.Close()

	conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	if _, err := conn.Write(data); err != nil {
		return protocol.NewError(protocol.KindPeerUnreachable, op, err)
	}

	// Half-close so the receiver sees EOF right away
	if tcp, ok := conn.(*net.TCPConn); ok {
		if err := tcp.CloseWrite(); err != nil {
			return protocol.NewError(protocol.KindPeerUnreachable, op, err)
		}
	}

	if s.config.Debug {
		log.Printf("Sent %s to %s at %s (%d bytes)", msg.Kind(), device.Name, addr, len(data))
	}
	return nil
}
