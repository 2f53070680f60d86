package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"time"
)

type messageResponse struct {
	ID         string `json:"id"`
	SenderID   string `json:"sender_id"`
	ReceiverID string `json:"receiver_id"`
	Text       string `json:"text"`
	ImageURL   string `json:"image_url,omitempty"`
	CreatedAt  string `json:"created_at"`
}

func toMessageResponse(m Message) messageResponse {
	return messageResponse{
		ID:         m.ID,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		Text:       m.Text,
		ImageURL:   m.ImageURL,
		CreatedAt:  m.CreatedAt.Format(time.RFC1123),
	}
}

// listChatPartners returns the users the caller has exchanged messages with,
// for the chat sidebar.
func (a *API) listChatPartners(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Users []userResponse `json:"users"`
	}

	users, err := a.DB.ListChatPartners(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		a.respondError(w, http.StatusInternalServerError, err, "Could not list chat partners")
		return
	}

	out := make([]userResponse, len(users))
	for i, u := range users {
		out[i] = toUserResponse(u)
	}
	a.respond(w, http.StatusOK, response{Users: out})
}

// getConversation returns the message history with one other user, oldest
// first. Recent messages come from the cache; the remainder from the
// database.
func (a *API) getConversation(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Messages []messageResponse `json:"messages"`
	}

	me := userIDFrom(r.Context())
	other := r.PathValue("userID")

	msgs, err := a.Cache.ListConversation(r.Context(), me, other)
	if err != nil && !errors.Is(err, ErrConversationNotCached) {
		a.Logger.Error("Error listing conversation from cache, trying database", "error", err.Error())
	}
	a.Logger.Info("Got messages from cache", "count", len(msgs))

	msgIDs := make([]string, len(msgs))
	for i, msg := range msgs {
		msgIDs[i] = msg.ID
	}
	dbMsgs, err := a.DB.ListConversation(r.Context(), me, other, msgIDs...)
	if err != nil {
		a.respondError(w, http.StatusInternalServerError, err, "Could not list messages")
		return
	}
	msgs = append(msgs, dbMsgs...)
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].CreatedAt.Before(msgs[j].CreatedAt) })

	out := make([]messageResponse, len(msgs))
	for i, msg := range msgs {
		out[i] = toMessageResponse(msg)
	}
	a.respond(w, http.StatusOK, response{Messages: out})
}

// sendMessage is the authenticated, durable send path: it persists the
// message, records a notification, and announces the message to the receiver
// if online. Realtime delivery is best effort; persistence is not.
func (a *API) sendMessage(w http.ResponseWriter, r *http.Request) {
	type request struct {
		Text     string `json:"text"`
		ImageURL string `json:"image_url"`
	}

	me := userIDFrom(r.Context())
	receiver := r.PathValue("userID")

	var body request
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		a.respondError(w, http.StatusBadRequest, err, "Could not decode request body")
		return
	}
	r.Body.Close()

	if body.Text == "" && body.ImageURL == "" {
		a.respondError(w, http.StatusBadRequest, errors.New("empty message"), "Message text or image is required")
		return
	}

	msg, err := a.DB.InsertMessage(r.Context(), Message{
		SenderID:   me,
		ReceiverID: receiver,
		Text:       body.Text,
		ImageURL:   body.ImageURL,
	})
	if err != nil {
		a.respondError(w, http.StatusInternalServerError, err, "Could not insert message")
		return
	}

	if err := a.Cache.InsertMessage(r.Context(), msg); err != nil {
		a.Logger.Error("Could not cache message", "error", err.Error())
	}

	if _, err := a.DB.InsertNotification(r.Context(), Notification{
		SenderID:    me,
		RecipientID: receiver,
		Type:        NotificationMessage,
	}); err != nil {
		a.Logger.Error("Could not record message notification", "error", err.Error())
	}

	a.Pusher.PushMessage(receiver, msg)

	a.respond(w, http.StatusCreated, toMessageResponse(msg))
}
