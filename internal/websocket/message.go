package websocket

import (
	"encoding/json"
	"time"

	"quillsync/internal/domain"
)

type MessageType string

const (
	// Server to client.
	TypeStatusUpdate MessageType = "status_update"
	TypeSyncResult   MessageType = "sync_result"

	// Client to server.
	TypeSyncRequest MessageType = "sync_request"
	TypePing        MessageType = "ping"
	TypePong        MessageType = "pong"
)

type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// StatusPayload mirrors the tracker's observable status.
type StatusPayload struct {
	State        domain.SyncState `json:"state"`
	LastSyncTime *int64           `json:"last_sync_time,omitempty"`
}

// ResultPayload is pushed once per finished run.
type ResultPayload struct {
	Result *domain.SyncResult `json:"result"`
}

func NewMessage(msgType MessageType, payload any) (*Message, error) {
	var payloadBytes json.RawMessage
	if payload != nil {
		bytes, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		payloadBytes = bytes
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now(),
		Payload:   payloadBytes,
	}, nil
}

func (m *Message) UnmarshalPayload(v any) error {
	if m.Payload == nil {
		return nil
	}
	return json.Unmarshal(m.Payload, v)
}
