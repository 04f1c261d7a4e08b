// ABOUTME: Sync message type definitions
// ABOUTME: Request, response and data payloads exchanged between peers
package protocol

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// MessageKind names the three payload kinds. It never appears on the wire.
type MessageKind int

const (
	KindRequest MessageKind = iota + 1
	KindResponse
	KindData
)

func (k MessageKind) String() string {
	switch k {
	case KindRequest:
		return "sync/request"
	case KindResponse:
		return "sync/response"
	case KindData:
		return "sync/data"
	default:
		return "unknown"
	}
}

// Message is implemented by the three sync payloads
type Message interface {
	Kind() MessageKind
}

// SyncRequestMessage asks a peer to start a sync exchange for a collection.
// requestedAt is unique to this kind.
type SyncRequestMessage struct {
	RequestID    string    `json:"requestId"`
	SenderID     string    `json:"senderId"`
	SenderName   string    `json:"senderName"`
	CollectionID string    `json:"collectionId"`
	RequestedAt  time.Time `json:"requestedAt"`
}

// SyncRequestResponse answers a request. accepted and responderId are unique to this kind.
type SyncRequestResponse struct {
	RequestID   string `json:"requestId"`
	ResponderID string `json:"responderId"`
	Accepted    bool   `json:"accepted"`
	Reason      string `json:"reason"`
}

// SyncDataMessage carries the synchronized payload. payload and sentAt are unique to this kind.
// Payload is re-marshaled on encode, so whitespace inside it is compacted and
// only the JSON value survives a round trip, not the exact bytes.
type SyncDataMessage struct {
	RequestID    string          `json:"requestId"`
	SenderID     string          `json:"senderId"`
	CollectionID string          `json:"collectionId"`
	Payload      json.RawMessage `json:"payload"`
	SentAt       time.Time       `json:"sentAt"`
}

func (SyncRequestMessage) Kind() MessageKind  { return KindRequest }
func (SyncRequestResponse) Kind() MessageKind { return KindResponse }
func (SyncDataMessage) Kind() MessageKind     { return KindData }

// NewSyncRequest builds a request with a fresh request id
func NewSyncRequest(from Identity, collectionID string) SyncRequestMessage {
	return SyncRequestMessage{
		RequestID:    uuid.New().String(),
		SenderID:     from.ID,
		SenderName:   from.Name,
		CollectionID: collectionID,
		RequestedAt:  time.Now().UTC().Truncate(time.Millisecond),
	}
}

// NewSyncResponse answers req on behalf of the local identity
func NewSyncResponse(req SyncRequestMessage, from Identity, accepted bool, reason string) SyncRequestResponse {
	return SyncRequestResponse{
		RequestID:   req.RequestID,
		ResponderID: from.ID,
		Accepted:    accepted,
		Reason:      reason,
	}
}

// NewSyncData wraps payload for the exchange started by requestID
func NewSyncData(requestID string, from Identity, collectionID string, payload json.RawMessage) SyncDataMessage {
	return SyncDataMessage{
		RequestID:    requestID,
		SenderID:     from.ID,
		CollectionID: collectionID,
		Payload:      payload,
		SentAt:       time.Now().UTC().Truncate(time.Millisecond),
	}
}
