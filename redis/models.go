package redis

import (
	"time"

	"github.com/creative-threads/threads-api/api"
)

// A message represents a cached direct message.
type message struct {
	ID         string    `redis:"id"`
	SenderID   string    `redis:"sender_id"`
	ReceiverID string    `redis:"receiver_id"`
	Text       string    `redis:"text"`
	ImageURL   string    `redis:"image_url"`
	CreatedAt  time.Time `redis:"created_at"`
}

func (m message) APIMessage() api.Message {
	return api.Message{
		ID:         m.ID,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		Text:       m.Text,
		ImageURL:   m.ImageURL,
		CreatedAt:  m.CreatedAt,
	}
}

func toRedisMessage(msg api.Message) message {
	return message{
		ID:         msg.ID,
		SenderID:   msg.SenderID,
		ReceiverID: msg.ReceiverID,
		Text:       msg.Text,
		ImageURL:   msg.ImageURL,
		CreatedAt:  msg.CreatedAt,
	}
}
