// Package realtime implements the presence-tracking relay: a websocket hub
// that maps users to live connections and forwards chat messages and
// notifications to online receivers, best effort.
package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// A NotificationStore persists notification records before they are
// forwarded.
type NotificationStore interface {
	Create(ctx context.Context, n Notification) (Notification, error)
}

// An IdentityVerifier checks a credential presented at connection time and
// returns the user ID it belongs to.
type IdentityVerifier interface {
	Verify(token string) (string, error)
}

// Hub owns the presence table and all live sessions. It is constructed once
// at startup and handed to the HTTP server; clients connect by upgrading a
// request carrying the same token the REST layer issues. The user identity
// attached to each connection comes from that verified token, never from a
// client-supplied field.
type Hub struct {
	Logger   *slog.Logger
	presence *Presence
	store    NotificationStore
	verifier IdentityVerifier
	upgrader websocket.Upgrader

	mu       sync.RWMutex
	sessions map[string]*session // connection ID -> session
}

// NewHub returns a hub with an empty presence table.
func NewHub(store NotificationStore, verifier IdentityVerifier, logger *slog.Logger) *Hub {
	return &Hub{
		Logger:   logger,
		presence: NewPresence(),
		store:    store,
		verifier: verifier,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // origin is not the trust boundary; the token is
			},
		},
		sessions: make(map[string]*session),
	}
}

// ServeHTTP authenticates and upgrades a connection, then reads events until
// the client goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, err := h.verifier.Verify(connToken(r))
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Logger.Error("Could not upgrade connection", "error", err.Error())
		return
	}

	s := newSession(uuid.NewString(), userID, conn)
	h.mu.Lock()
	h.sessions[s.id] = s
	h.mu.Unlock()
	go s.writePump()

	h.Logger.Info("Client connected", "user_id", userID, "conn_id", s.id)
	defer h.disconnect(s)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			h.Logger.Warn("Dropping malformed frame", "conn_id", s.id, "error", err.Error())
			continue
		}
		h.dispatch(r.Context(), s, env)
	}
}

func (h *Hub) dispatch(ctx context.Context, s *session, env Envelope) {
	switch env.Event {
	case EventJoin:
		h.handleJoin(s)
	case EventSendMessage:
		h.handleSendMessage(s, env.Payload)
	case EventSendNotification:
		h.handleSendNotification(ctx, s, env.Payload)
	default:
		h.Logger.Warn("Unknown event", "event", env.Event, "conn_id", s.id)
	}
}

// handleJoin registers the connection's verified identity, replies with the
// online snapshot and announces the user to everyone.
func (h *Hub) handleJoin(s *session) {
	h.presence.Register(s.userID, s.id)
	h.sendTo(s.id, mustEnvelope(EventOnlineUsers, h.presence.Snapshot()))
	h.broadcast(mustEnvelope(EventUserOnline, s.userID))
	h.Logger.Info("User joined", "user_id", s.userID, "conn_id", s.id)
}

// handleSendMessage forwards a chat payload to the receiver's connection if
// one is registered. Offline receivers are not an error; the message is
// dropped. Nothing is persisted on this path.
func (h *Hub) handleSendMessage(s *session, raw json.RawMessage) {
	var p sendMessagePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		h.Logger.Warn("Dropping malformed sendMessage", "conn_id", s.id, "error", err.Error())
		return
	}
	h.Relay(s.userID, p.ReceiverID, p.Message)
}

// Relay delivers a chat payload to receiverID's connection if online,
// stamping the delivery time. At-most-once, fire and forget.
func (h *Hub) Relay(senderID, receiverID, message string) {
	connID, ok := h.presence.Lookup(receiverID)
	if !ok {
		return
	}
	h.sendTo(connID, mustEnvelope(EventReceiveMessage, ChatPayload{
		SenderID:  senderID,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	}))
}

// handleSendNotification persists the notification and, only on success,
// forwards the stored record to the receiver if online. Persistence failures
// are logged and invisible to the sender.
func (h *Hub) handleSendNotification(ctx context.Context, s *session, raw json.RawMessage) {
	var p sendNotificationPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		h.Logger.Warn("Dropping malformed sendNotification", "conn_id", s.id, "error", err.Error())
		return
	}
	stored, err := h.store.Create(ctx, Notification{
		SenderID:   s.userID,
		ReceiverID: p.ReceiverID,
		Type:       p.Type,
		PostID:     p.PostID,
	})
	if err != nil {
		h.Logger.Error("Could not store notification", "receiver_id", p.ReceiverID, "error", err.Error())
		return
	}
	h.PushNotification(stored.ReceiverID, stored)
}

// PushNotification forwards an already persisted notification to the
// receiver's connection if online. Used by the socket path and by the REST
// send-message path.
func (h *Hub) PushNotification(receiverID string, n Notification) {
	connID, ok := h.presence.Lookup(receiverID)
	if !ok {
		return
	}
	h.sendTo(connID, mustEnvelope(EventNotification, n))
}

// PushMessage announces a REST-persisted chat message to the receiver if
// online.
func (h *Hub) PushMessage(receiverID string, payload ChatPayload) {
	connID, ok := h.presence.Lookup(receiverID)
	if !ok {
		return
	}
	h.sendTo(connID, mustEnvelope(EventNewMessage, payload))
}

// Online reports whether userID currently has a registered connection.
func (h *Hub) Online(userID string) bool {
	_, ok := h.presence.Lookup(userID)
	return ok
}

func (h *Hub) disconnect(s *session) {
	h.mu.Lock()
	delete(h.sessions, s.id)
	// Closed under the lock so senders never race a closed channel.
	close(s.send)
	h.mu.Unlock()

	userID, ok := h.presence.Unregister(s.id)
	if !ok {
		// Never joined, or superseded by a later join for the same user.
		h.Logger.Info("Client disconnected", "conn_id", s.id)
		return
	}
	h.broadcast(mustEnvelope(EventUserOffline, userID))
	h.Logger.Info("User disconnected", "user_id", userID, "conn_id", s.id)
}

// broadcast queues msg on every live connection, joined or not. A consumer
// whose send buffer is full is cut off rather than back-pressured; its read
// loop observes the close and runs the normal disconnect path.
func (h *Hub) broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.sessions {
		select {
		case s.send <- msg:
		default:
			h.Logger.Warn("Disconnecting slow consumer", "conn_id", s.id)
			s.conn.Close()
		}
	}
}

// sendTo queues msg on a single connection, subject to the same slow-consumer
// policy as broadcast.
func (h *Hub) sendTo(connID string, msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.sessions[connID]
	if !ok {
		return
	}
	select {
	case s.send <- msg:
	default:
		h.Logger.Warn("Disconnecting slow consumer", "conn_id", connID)
		s.conn.Close()
	}
}

// Close tears down every live connection. Read loops observe the close and
// run their normal disconnect path.
func (h *Hub) Close() {
	h.mu.RLock()
	sessions := make([]*session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.RUnlock()
	for _, s := range sessions {
		s.conn.Close()
	}
}

// connToken pulls the credential from the query string, the jwt cookie, or a
// bearer header, in that order.
func connToken(r *http.Request) string {
	if tok := r.URL.Query().Get("token"); tok != "" {
		return tok
	}
	if c, err := r.Cookie("jwt"); err == nil {
		return c.Value
	}
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}
