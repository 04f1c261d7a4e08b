// ABOUTME: Connection listener for inbound sync traffic
// ABOUTME: Reads one payload per connection, classifies it and hands it to a sink
package transport

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"time"

	"github.com/yaba-app/yaba-sync/pkg/protocol"
)

const (
	// ReadChunkSize is the size of each receive call
	ReadChunkSize = 64 * 1024

	// DefaultMaxMessageSize caps a single inbound payload
	DefaultMaxMessageSize = 4 * 1024 * 1024

	// DefaultReadTimeout bounds the silence between two reads
	DefaultReadTimeout = 30 * time.Second
)

// Sink receives classified inbound messages and inbound failures
type Sink interface {
	HandleMessage(msg protocol.Message, from net.Addr)
	HandleError(err error)
}

// ListenerConfig configures a Listener
type ListenerConfig struct {
	// MaxMessageSize caps a payload; larger ones are dropped (default 4 MiB)
	MaxMessageSize int

	// ReadTimeout is the idle timeout per read; negative disables it (default 30s)
	ReadTimeout time.Duration

	// Debug enables debug logging
	Debug bool
}

// Listener turns accepted connections into typed sync events
type Listener struct {
	config ListenerConfig
	sink   Sink
}

// NewListener creates a listener delivering to sink
func NewListener(sink Sink, config ListenerConfig) *Listener {
	if config.MaxMessageSize <= 0 {
		config.MaxMessageSize = DefaultMaxMessageSize
	}
	if config.ReadTimeout == 0 {
		config.ReadTimeout = DefaultReadTimeout
	}
	return &Listener{
		config: config,
		sink:   sink,
	}
}

// Serve handles a single inbound connection and always closes it
func (l *Listener) Serve(conn net.Conn) {
	remote := conn.RemoteAddr()
	defer conn.Close()

	data, err := l.readAll(conn)
	if err != nil {
		if l.config.Debug {
			log.Printf("Read from %s failed: %v", remote, err)
		}
		if errors.Is(err, errTooLarge) {
			l.sink.HandleError(protocol.NewError(protocol.KindDecodeFailure,
				fmt.Sprintf("receive from %s", remote), err))
			return
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			l.sink.HandleError(protocol.NewError(protocol.KindTimeout,
				fmt.Sprintf("receive from %s", remote), err))
			return
		}
		// A reset after partial data still gets a decode attempt
		if len(data) == 0 {
			return
		}
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return
	}

	msg, err := protocol.Classify(data)
	if err != nil {
		log.Printf("Dropping unrecognized payload (%d bytes) from %s", len(data), remote)
		l.sink.HandleError(fmt.Errorf("receive from %s: %w", remote, err))
		return
	}

	if l.config.Debug {
		log.Printf("Received %s from %s (%d bytes)", msg.Kind(), remote, len(data))
	}
	l.sink.HandleMessage(msg, remote)
}

var errTooLarge = errors.New("message exceeds size limit")

// readAll accumulates chunks until EOF
func (l *Listener) readAll(conn net.Conn) ([]byte, error) {
	var buf bytes.Buffer
	chunk := make([]byte, ReadChunkSize)

	for {
		if l.config.ReadTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(l.config.ReadTimeout))
		}

		n, err := conn.Read(chunk)
		if n > 0 {
			if buf.Len()+n > l.config.MaxMessageSize {
				return nil, errTooLarge
			}
			buf.Write(chunk[:n])
		}
		if err == io.EOF {
			return buf.Bytes(), nil
		}
		if err != nil {
			return buf.Bytes(), err
		}
	}
}
