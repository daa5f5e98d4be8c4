// Package api defines the wire types exchanged between the stockline
// server and its sync clients. The WebSocket protocol is JSON: every frame
// carries exactly one Message, and the payload shape is determined by the
// message kind. Field names are camelCase because desktop and Electron
// clients share this contract.
package api

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// MessageKind identifies the payload variant carried by a Message.
type MessageKind string

const (
	KindSyncRequest    MessageKind = "SYNC_REQUEST"
	KindSyncResponse   MessageKind = "SYNC_RESPONSE"
	KindSyncError      MessageKind = "SYNC_ERROR"
	KindDataChange     MessageKind = "DATA_CHANGE"
	KindSyncComplete   MessageKind = "SYNC_COMPLETE"
	KindCapabilities   MessageKind = "CAPABILITIES"
	KindHeartbeat      MessageKind = "HEARTBEAT"
	KindConnectionInfo MessageKind = "CONNECTION_INFO"
)

// Valid reports whether k is one of the known message kinds.
func (k MessageKind) Valid() bool {
	switch k {
	case KindSyncRequest, KindSyncResponse, KindSyncError, KindDataChange,
		KindSyncComplete, KindCapabilities, KindHeartbeat, KindConnectionInfo:
		return true
	}
	return false
}

// Message is the envelope for every frame on the sync socket.
//
// SequenceNumber is assigned by the server per connection, starting at 0
// and increasing by exactly 1 per message sent on that connection. Clients
// use it only for gap detection; it carries no cross-connection meaning.
//
// When Compressed is true, Payload is a JSON string holding the
// base64-encoded gzip stream of the real payload JSON.
type Message struct {
	Kind               MessageKind     `json:"kind"`
	Payload            json.RawMessage `json:"payload,omitempty"`
	IssuedAt           time.Time       `json:"issuedAt"`
	OriginConnectionID string          `json:"originConnectionId,omitempty"`
	SequenceNumber     uint64          `json:"sequenceNumber"`
	Compressed         bool            `json:"isCompressed,omitempty"`
}

// DecodePayload unmarshals the message payload into v, transparently
// decompressing it first when the compressed flag is set.
func (m *Message) DecodePayload(v any) error {
	raw := m.Payload
	if m.Compressed {
		plain, err := DecompressPayload(raw)
		if err != nil {
			return err
		}
		raw = plain
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", m.Kind, err)
	}
	return nil
}

// CompressPayload gzips a serialized payload and wraps it as a JSON string
// ([]byte marshals to base64) so the envelope stays valid JSON.
func CompressPayload(payload []byte) (json.RawMessage, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(payload); err != nil {
		return nil, fmt.Errorf("failed to compress payload: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to compress payload: %w", err)
	}
	blob, err := json.Marshal(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("failed to encode compressed payload: %w", err)
	}
	return blob, nil
}

// DecompressPayload reverses CompressPayload.
func DecompressPayload(raw json.RawMessage) (json.RawMessage, error) {
	var blob []byte
	if err := json.Unmarshal(raw, &blob); err != nil {
		return nil, fmt.Errorf("invalid compressed payload wrapper: %w", err)
	}
	zr, err := gzip.NewReader(bytes.NewReader(blob))
	if err != nil {
		return nil, fmt.Errorf("invalid compressed payload: %w", err)
	}
	defer zr.Close()
	plain, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress payload: %w", err)
	}
	return plain, nil
}
