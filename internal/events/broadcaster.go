package events

import (
	"github.com/sirupsen/logrus"

	syncpkg "github.com/rentalsync-bridge/backend/internal/sync"
)

// Broadcaster publishes sync outcomes and notifications to connected
// WebSocket clients. It satisfies the sync engine's Notifier.
type Broadcaster struct {
	hub *Hub
	log *logrus.Logger
}

// NewBroadcaster creates an event broadcaster.
func NewBroadcaster(hub *Hub, log *logrus.Logger) *Broadcaster {
	return &Broadcaster{hub: hub, log: log}
}

// SyncCompleted sends a sync.completed event.
func (b *Broadcaster) SyncCompleted(result *syncpkg.Result) {
	b.broadcast(NewMessage(TypeSyncCompleted, result))
}

// SyncFailed sends a sync.error event.
func (b *Broadcaster) SyncFailed(listingID int64, listingName string, err error) {
	b.broadcast(NewMessage(TypeSyncError, SyncErrorPayload{
		ListingID:   listingID,
		ListingName: listingName,
		Error:       err.Error(),
	}))
}

// CredentialsChanged sends a credentials.changed event.
func (b *Broadcaster) CredentialsChanged(state string) {
	b.broadcast(NewMessage(TypeCredentialsChanged, CredentialsChangedPayload{State: state}))
}

// Notify sends a notification to all connected clients.
func (b *Broadcaster) Notify(level, title, message string) {
	b.broadcast(NewMessage(TypeNotification, NotificationPayload{
		Level:   level,
		Title:   title,
		Message: message,
	}))
}

func (b *Broadcaster) broadcast(msg Message) {
	data, err := msg.JSON()
	if err != nil {
		b.log.WithError(err).Error("Failed to encode WebSocket message")
		return
	}
	b.hub.Broadcast(data)
}
