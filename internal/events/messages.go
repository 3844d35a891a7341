package events

import (
	"encoding/json"
	"time"
)

// MessageType identifies the type of WebSocket message.
type MessageType string

const (
	// Server -> Client event types
	TypeSyncCompleted      MessageType = "sync.completed"
	TypeSyncError          MessageType = "sync.error"
	TypeCredentialsChanged MessageType = "credentials.changed"
	TypeNotification       MessageType = "notification"

	// Client -> Server command types
	TypePing MessageType = "ping"

	// Server -> Client response types
	TypePong  MessageType = "pong"
	TypeError MessageType = "error"
)

// Message represents a WebSocket message envelope.
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   any         `json:"payload"`
}

// NewMessage creates a new message with the current timestamp.
func NewMessage(msgType MessageType, payload any) Message {
	return Message{
		Type:      msgType,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// JSON serializes the message to JSON bytes.
func (m Message) JSON() ([]byte, error) {
	return json.Marshal(m)
}

// SyncErrorPayload is the payload for sync.error events.
type SyncErrorPayload struct {
	ListingID   int64  `json:"listing_id"`
	ListingName string `json:"listing_name"`
	Error       string `json:"error"`
}

// CredentialsChangedPayload is the payload for credentials.changed
// events, emitted when the stored connection becomes valid or invalid.
type CredentialsChangedPayload struct {
	State string `json:"state"`
}

// NotificationPayload is the payload for notification events.
type NotificationPayload struct {
	Level   string `json:"level"` // info, warning, error, success
	Title   string `json:"title"`
	Message string `json:"message"`
}
