// ABOUTME: Message codec for the sync wire format
// ABOUTME: Strict JSON encoding and trial-decode classification of untagged payloads
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Each kind lists every field it always emits. A payload is only accepted
// as a kind when all of these are present and no other field is.
var (
	requestFields  = []string{"requestId", "senderId", "senderName", "collectionId", "requestedAt"}
	responseFields = []string{"requestId", "responderId", "accepted", "reason"}
	dataFields     = []string{"requestId", "senderId", "collectionId", "payload", "sentAt"}
)

// Encode serializes a sync message
func Encode(msg Message) ([]byte, error) {
	if msg == nil {
		return nil, NewError(KindEncodeFailure, "encode", errors.New("nil message"))
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, NewError(KindEncodeFailure, "encode "+msg.Kind().String(), err)
	}
	return data, nil
}

// DecodeRequest strictly decodes a SyncRequestMessage
func DecodeRequest(data []byte) (SyncRequestMessage, error) {
	var msg SyncRequestMessage
	err := decodeStrict(data, &msg, requestFields)
	return msg, err
}

// DecodeResponse strictly decodes a SyncRequestResponse
func DecodeResponse(data []byte) (SyncRequestResponse, error) {
	var msg SyncRequestResponse
	err := decodeStrict(data, &msg, responseFields)
	return msg, err
}

// DecodeData strictly decodes a SyncDataMessage
func DecodeData(data []byte) (SyncDataMessage, error) {
	var msg SyncDataMessage
	err := decodeStrict(data, &msg, dataFields)
	return msg, err
}

// Classify trial-decodes data as a request, then a response, then a data
// message. The first kind that decodes wins.
func Classify(data []byte) (Message, error) {
	req, reqErr := DecodeRequest(data)
	if reqErr == nil {
		return req, nil
	}
	resp, respErr := DecodeResponse(data)
	if respErr == nil {
		return resp, nil
	}
	dm, dataErr := DecodeData(data)
	if dataErr == nil {
		return dm, nil
	}
	return nil, NewError(KindDecodeFailure, "classify",
		fmt.Errorf("not a request (%v), response (%v) or data message (%v)", reqErr, respErr, dataErr))
}

func decodeStrict(data []byte, v any, fields []string) error {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(data, &keys); err != nil {
		return err
	}
	if keys == nil {
		return errors.New("payload is not an object")
	}
	for _, f := range fields {
		if _, ok := keys[f]; !ok {
			return fmt.Errorf("missing field %q", f)
		}
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); err != io.EOF {
		return errors.New("trailing data after message")
	}
	return nil
}
