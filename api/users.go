package api

import "net/http"

// getUserProfile returns another user's public profile by username.
func (a *API) getUserProfile(w http.ResponseWriter, r *http.Request) {
	user, err := a.DB.GetUserByUsername(r.Context(), r.PathValue("username"))
	if err != nil {
		a.notFound(w, err, "User not found")
		return
	}
	a.respond(w, http.StatusOK, toUserResponse(user))
}

// listUserPosts returns all posts by the named user, newest first.
func (a *API) listUserPosts(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Posts []postResponse `json:"posts"`
	}

	user, err := a.DB.GetUserByUsername(r.Context(), r.PathValue("username"))
	if err != nil {
		a.notFound(w, err, "User not found")
		return
	}

	posts, err := a.DB.ListPostsByAuthor(r.Context(), user.ID)
	if err != nil {
		a.respondError(w, http.StatusInternalServerError, err, "Could not list posts")
		return
	}

	out := make([]postResponse, len(posts))
	for i, post := range posts {
		out[i] = toPostResponse(post)
	}
	a.respond(w, http.StatusOK, response{Posts: out})
}
