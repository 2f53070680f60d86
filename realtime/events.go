package realtime

import (
	"encoding/json"
	"time"
)

// Event names exchanged over the socket.
const (
	EventJoin             = "join"
	EventSendMessage      = "sendMessage"
	EventSendNotification = "sendNotification"
	EventOnlineUsers      = "onlineUsers"
	EventUserOnline       = "userOnline"
	EventUserOffline      = "userOffline"
	EventReceiveMessage   = "receiveMessage"
	EventNewMessage       = "newMessage"
	EventNotification     = "notification"
)

// An Envelope wraps every frame on the wire. The payload is decoded lazily,
// per event.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// A ChatPayload is the transient message forwarded to an online receiver. It
// is constructed per relay call and never stored.
type ChatPayload struct {
	SenderID  string    `json:"senderId"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}

// A Notification is the record persisted by the NotificationStore and
// forwarded to the receiver when online.
type Notification struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"senderId"`
	ReceiverID string    `json:"receiverId"`
	Type       string    `json:"type"`
	PostID     string    `json:"postId,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// sendMessagePayload is the client request to relay a chat message. The
// sender is always taken from the connection's verified identity, never from
// the payload.
type sendMessagePayload struct {
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
	Message    string `json:"message"`
}

// sendNotificationPayload is the client request to persist and push a
// notification.
type sendNotificationPayload struct {
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
	Type       string `json:"type"`
	PostID     string `json:"postId,omitempty"`
}

func mustEnvelope(event string, payload any) []byte {
	raw, err := json.Marshal(payload)
	if err != nil {
		panic(err) // all payload types marshal
	}
	b, err := json.Marshal(Envelope{Event: event, Payload: raw})
	if err != nil {
		panic(err)
	}
	return b
}
