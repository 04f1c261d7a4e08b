// ABOUTME: Tests for the connection listener and message sender
// ABOUTME: Exercises real loopback TCP connections end to end
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/yaba-app/yaba-sync/pkg/protocol"
)

var alpha = protocol.Identity{ID: "A1", Name: "Alpha", Type: protocol.DeviceTypePhone}

type recordingSink struct {
	messages chan protocol.Message
	errors   chan error
}

func newRecordingSink() *recordingSink {
	return &recordingSink{
		messages: make(chan protocol.Message, 10),
		errors:   make(chan error, 10),
	}
}

func (s *recordingSink) HandleMessage(msg protocol.Message, from net.Addr) {
	s.messages <- msg
}

func (s *recordingSink) HandleError(err error) {
	s.errors <- err
}

// serve starts a loopback accept loop feeding l and returns the peer record
func serve(t *testing.T, l *Listener) protocol.ConnectedDevice {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go l.Serve(conn)
		}
	}()

	return protocol.ConnectedDevice{
		ID:        "B1",
		Name:      "Bravo",
		IPAddress: "127.0.0.1",
		Port:      ln.Addr().(*net.TCPAddr).Port,
	}
}

func TestSendRequestIsReceived(t *testing.T) {
	sink := newRecordingSink()
	bravo := serve(t, NewListener(sink, ListenerConfig{}))

	sender := NewSender(SenderConfig{})
	req := protocol.NewSyncRequest(alpha, "c1")
	if err := sender.Send(context.Background(), req, bravo); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	select {
	case msg := <-sink.messages:
		got, ok := msg.(protocol.SyncRequestMessage)
		if !ok {
			t.Fatalf("expected SyncRequestMessage, got %T", msg)
		}
		if got.CollectionID != "c1" || got.RequestID != req.RequestID {
			t.Errorf("unexpected request %+v", got)
		}
	case err := <-sink.errors:
		t.Fatalf("unexpected error: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("request was not delivered")
	}
}

func TestSendEachKind(t *testing.T) {
	sink := newRecordingSink()
	bravo := serve(t, NewListener(sink, ListenerConfig{}))
	sender := NewSender(SenderConfig{})

	req := protocol.NewSyncRequest(alpha, "c1")
	messages := []protocol.Message{
		req,
		protocol.NewSyncResponse(req, alpha, true, ""),
		protocol.NewSyncData(req.RequestID, alpha, "c1", json.RawMessage(`[1,2,3]`)),
	}

	for _, msg := range messages {
		if err := sender.Send(context.Background(), msg, bravo); err != nil {
			t.Fatalf("send %v failed: %v", msg.Kind(), err)
		}
		select {
		case got := <-sink.messages:
			if got.Kind() != msg.Kind() {
				t.Errorf("sent %v, received %v", msg.Kind(), got.Kind())
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("%v was not delivered", msg.Kind())
		}
	}
}

func TestLargePayloadSpansChunks(t *testing.T) {
	sink := newRecordingSink()
	bravo := serve(t, NewListener(sink, ListenerConfig{}))

	big := `"` + strings.Repeat("x", 3*ReadChunkSize) + `"`
	msg := protocol.NewSyncData("r1", alpha, "c1", json.RawMessage(big))

	if err := NewSender(SenderConfig{}).Send(context.Background(), msg, bravo); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	select {
	case got := <-sink.messages:
		data := got.(protocol.SyncDataMessage)
		if len(data.Payload) != len(big) {
			t.Errorf("payload truncated: %d != %d", len(data.Payload), len(big))
		}
	case err := <-sink.errors:
		t.Fatalf("unexpected error: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("large payload was not delivered")
	}
}

func TestSendToRefusingPeer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	device := protocol.ConnectedDevice{ID: "B1", Name: "Bravo", IPAddress: "127.0.0.1", Port: port}
	err = NewSender(SenderConfig{DialTimeout: time.Second}).Send(context.Background(), protocol.NewSyncRequest(alpha, "c1"), device)

	if !errors.Is(err, protocol.ErrPeerUnreachable) {
		t.Fatalf("expected peer unreachable, got %v", err)
	}
}

func TestSendEncodeFailure(t *testing.T) {
	device := protocol.ConnectedDevice{ID: "B1", Name: "Bravo", IPAddress: "127.0.0.1", Port: 1}
	err := NewSender(SenderConfig{}).Send(context.Background(), protocol.SyncDataMessage{Payload: json.RawMessage(`{broken`)}, device)

	if !errors.Is(err, protocol.ErrEncodeFailure) {
		t.Fatalf("expected encode failure, got %v", err)
	}
}

func rawSend(t *testing.T, device protocol.ConnectedDevice, payload string) {
	t.Helper()
	conn, err := net.Dial("tcp", net.JoinHostPort(device.IPAddress, strconv.Itoa(device.Port)))
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	defer conn.Close()
	if _, err := conn.Write([]byte(payload)); err != nil {
		t.Fatalf("failed to write: %v", err)
	}
}

func TestUnrecognizedPayloadReportsDecodeFailure(t *testing.T) {
	sink := newRecordingSink()
	bravo := serve(t, NewListener(sink, ListenerConfig{}))

	rawSend(t, bravo, `{"hello":"world"}`)

	select {
	case err := <-sink.errors:
		if !errors.Is(err, protocol.ErrDecodeFailure) {
			t.Errorf("expected decode failure, got %v", err)
		}
	case msg := <-sink.messages:
		t.Fatalf("garbage classified as %v", msg.Kind())
	case <-time.After(2 * time.Second):
		t.Fatal("decode failure was not reported")
	}
}

func TestEmptyConnectionIsIgnored(t *testing.T) {
	sink := newRecordingSink()
	bravo := serve(t, NewListener(sink, ListenerConfig{}))

	rawSend(t, bravo, "")

	select {
	case err := <-sink.errors:
		t.Errorf("unexpected error: %v", err)
	case msg := <-sink.messages:
		t.Errorf("unexpected message %v", msg.Kind())
	case <-time.After(200 * time.Millisecond):
	}
}

func TestOversizedPayloadIsRejected(t *testing.T) {
	sink := newRecordingSink()
	bravo := serve(t, NewListener(sink, ListenerConfig{MaxMessageSize: 128}))

	msg := protocol.NewSyncData("r1", alpha, "c1", json.RawMessage(`"`+strings.Repeat("y", 512)+`"`))
	// The receiver may close before the write finishes; only the sink matters
	NewSender(SenderConfig{}).Send(context.Background(), msg, bravo)

	select {
	case err := <-sink.errors:
		if !errors.Is(err, protocol.ErrDecodeFailure) {
			t.Errorf("expected decode failure, got %v", err)
		}
	case <-sink.messages:
		t.Fatal("oversized payload should not be delivered")
	case <-time.After(2 * time.Second):
		t.Fatal("oversized payload was not reported")
	}
}

func TestIdleConnectionTimesOut(t *testing.T) {
	sink := newRecordingSink()
	bravo := serve(t, NewListener(sink, ListenerConfig{ReadTimeout: 50 * time.Millisecond}))

	conn, err := net.Dial("tcp", bravo.Addr())
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	defer conn.Close()

	select {
	case err := <-sink.errors:
		if !errors.Is(err, protocol.ErrTimeout) {
			t.Errorf("expected timeout, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("idle connection did not time out")
	}
}
