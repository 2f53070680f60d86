package api

import (
	"net/http"
	"time"
)

type notificationResponse struct {
	ID        string `json:"id"`
	SenderID  string `json:"sender_id"`
	Type      string `json:"type"`
	PostID    string `json:"post_id,omitempty"`
	Read      bool   `json:"read"`
	CreatedAt string `json:"created_at"`
}

// listNotifications returns the caller's notifications, newest first. This is
// also the catch-up path for anything the realtime channel did not deliver.
func (a *API) listNotifications(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Notifications []notificationResponse `json:"notifications"`
	}

	notifs, err := a.DB.ListNotifications(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		a.respondError(w, http.StatusInternalServerError, err, "Could not list notifications")
		return
	}

	out := make([]notificationResponse, len(notifs))
	for i, n := range notifs {
		out[i] = notificationResponse{
			ID:        n.ID,
			SenderID:  n.SenderID,
			Type:      n.Type,
			PostID:    n.PostID,
			Read:      n.Read,
			CreatedAt: n.CreatedAt.Format(time.RFC1123),
		}
	}
	a.respond(w, http.StatusOK, response{Notifications: out})
}

func (a *API) markNotificationsRead(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Read bool `json:"read"`
	}

	if err := a.DB.MarkNotificationsRead(r.Context(), userIDFrom(r.Context())); err != nil {
		a.respondError(w, http.StatusInternalServerError, err, "Could not mark notifications read")
		return
	}
	a.respond(w, http.StatusOK, response{Read: true})
}
