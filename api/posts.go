package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/uptrace/bun/driver/pgdriver"
)

type commentResponse struct {
	ID        string            `json:"id"`
	UserID    string            `json:"user_id"`
	Text      string            `json:"text"`
	CreatedAt string            `json:"created_at"`
	Replies   []commentResponse `json:"replies"`
}

type postResponse struct {
	ID           string            `json:"id"`
	AuthorID     string            `json:"author_id"`
	Title        string            `json:"title"`
	Description  string            `json:"description"`
	ImageURLs    []string          `json:"image_urls"`
	LikeCount    int               `json:"like_count"`
	LikedBy      []string          `json:"liked_by,omitempty"`
	CommentCount int               `json:"comment_count"`
	Comments     []commentResponse `json:"comments,omitempty"`
	CreatedAt    string            `json:"created_at"`
}

func toCommentResponse(c Comment) commentResponse {
	out := commentResponse{
		ID:        c.ID,
		UserID:    c.UserID,
		Text:      c.Text,
		CreatedAt: c.CreatedAt.Format(time.RFC1123),
		Replies:   make([]commentResponse, 0, len(c.Replies)),
	}
	for _, reply := range c.Replies {
		out.Replies = append(out.Replies, toCommentResponse(reply))
	}
	return out
}

func toPostResponse(p Post) postResponse {
	out := postResponse{
		ID:           p.ID,
		AuthorID:     p.AuthorID,
		Title:        p.Title,
		Description:  p.Description,
		ImageURLs:    p.ImageURLs,
		LikeCount:    p.LikeCount,
		LikedBy:      p.LikedBy,
		CommentCount: p.CommentCount,
		CreatedAt:    p.CreatedAt.Format(time.RFC1123),
	}
	if out.ImageURLs == nil {
		out.ImageURLs = make([]string, 0)
	}
	for _, c := range p.Comments {
		out.Comments = append(out.Comments, toCommentResponse(c))
	}
	return out
}

func (a *API) createPost(w http.ResponseWriter, r *http.Request) {
	type request struct {
		Title       string   `json:"title"`
		Description string   `json:"description"`
		ImageURLs   []string `json:"image_urls"`
	}

	var body request
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		a.respondError(w, http.StatusBadRequest, err, "Could not decode request body")
		return
	}
	r.Body.Close()

	if body.Title == "" || body.Description == "" {
		a.respondError(w, http.StatusBadRequest, errors.New("missing fields"), "Title and description are required")
		return
	}
	if len(body.ImageURLs) == 0 {
		a.respondError(w, http.StatusBadRequest, errors.New("missing images"), "At least one image is required")
		return
	}

	post, err := a.DB.InsertPost(r.Context(), Post{
		AuthorID:    userIDFrom(r.Context()),
		Title:       body.Title,
		Description: body.Description,
		ImageURLs:   body.ImageURLs,
	})
	if err != nil {
		a.respondError(w, http.StatusInternalServerError, err, "Could not insert post")
		return
	}
	a.respond(w, http.StatusCreated, toPostResponse(post))
}

// listPosts returns a page of the feed, newest first.
func (a *API) listPosts(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Posts []postResponse `json:"posts"`
	}

	p := r.URL.Query().Get("page")
	page, err := strconv.Atoi(p)
	if err != nil || page < 1 {
		page = 1
	}
	offset := (page - 1) * pageSize

	posts, err := a.DB.ListPosts(r.Context(), pageSize, offset)
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

func (a *API) getPost(w http.ResponseWriter, r *http.Request) {
	post, err := a.DB.GetPost(r.Context(), r.PathValue("postID"))
	if err != nil {
		a.notFound(w, err, "Post not found")
		return
	}
	a.respond(w, http.StatusOK, toPostResponse(post))
}

func (a *API) listMyPosts(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Posts []postResponse `json:"posts"`
	}

	posts, err := a.DB.ListPostsByAuthor(r.Context(), userIDFrom(r.Context()))
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

func (a *API) likePost(w http.ResponseWriter, r *http.Request) {
	type response struct {
		PostID    string `json:"post_id"`
		LikeCount int    `json:"like_count"`
	}

	postID := r.PathValue("postID")
	count, err := a.DB.LikePost(r.Context(), postID, userIDFrom(r.Context()))
	if err != nil {
		var pgErr pgdriver.Error
		if errors.As(err, &pgErr) && pgErr.IntegrityViolation() {
			a.respondError(w, http.StatusConflict, err, "Already liked this post")
			return
		}
		a.notFound(w, err, "Post not found")
		return
	}
	a.respond(w, http.StatusOK, response{PostID: postID, LikeCount: count})
}

func (a *API) unlikePost(w http.ResponseWriter, r *http.Request) {
	type response struct {
		PostID    string `json:"post_id"`
		LikeCount int    `json:"like_count"`
	}

	postID := r.PathValue("postID")
	count, err := a.DB.UnlikePost(r.Context(), postID, userIDFrom(r.Context()))
	if err != nil {
		if errors.Is(err, ErrNotLiked) {
			a.respondError(w, http.StatusConflict, err, "Post was not liked")
			return
		}
		a.notFound(w, err, "Post not found")
		return
	}
	a.respond(w, http.StatusOK, response{PostID: postID, LikeCount: count})
}

// updatePost edits a post owned by the caller. Fields left empty keep
// their current value.
func (a *API) updatePost(w http.ResponseWriter, r *http.Request) {
	type request struct {
		Title       string `json:"title"`
		Description string `json:"description"`
	}

	var body request
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		a.respondError(w, http.StatusBadRequest, err, "Could not decode request body")
		return
	}
	r.Body.Close()

	if body.Title == "" && body.Description == "" {
		a.respondError(w, http.StatusBadRequest, errors.New("empty update"), "Nothing to update")
		return
	}

	post, err := a.DB.UpdatePost(r.Context(), r.PathValue("postID"), userIDFrom(r.Context()), body.Title, body.Description)
	if err != nil {
		a.notFound(w, err, "Post not found")
		return
	}
	a.respond(w, http.StatusOK, toPostResponse(post))
}

// deletePost removes a post owned by the caller.
func (a *API) deletePost(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Deleted bool `json:"deleted"`
	}

	err := a.DB.DeletePost(r.Context(), r.PathValue("postID"), userIDFrom(r.Context()))
	if err != nil {
		a.notFound(w, err, "Post not found")
		return
	}
	a.respond(w, http.StatusOK, response{Deleted: true})
}

// updateComment edits a comment or reply owned by the caller.
func (a *API) updateComment(w http.ResponseWriter, r *http.Request) {
	type request struct {
		Text string `json:"text"`
	}

	var body request
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		a.respondError(w, http.StatusBadRequest, err, "Could not decode request body")
		return
	}
	r.Body.Close()

	if body.Text == "" {
		a.respondError(w, http.StatusBadRequest, errors.New("empty comment"), "Comment text is required")
		return
	}

	comment, err := a.DB.UpdateComment(r.Context(), r.PathValue("postID"), r.PathValue("commentID"), userIDFrom(r.Context()), body.Text)
	if err != nil {
		a.notFound(w, err, "Comment not found")
		return
	}
	a.respond(w, http.StatusOK, toCommentResponse(comment))
}

// addComment adds a top-level comment, or a reply when parent_id is set.
func (a *API) addComment(w http.ResponseWriter, r *http.Request) {
	type request struct {
		Text     string `json:"text"`
		ParentID string `json:"parent_id"`
	}

	var body request
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		a.respondError(w, http.StatusBadRequest, err, "Could not decode request body")
		return
	}
	r.Body.Close()

	if body.Text == "" {
		a.respondError(w, http.StatusBadRequest, errors.New("empty comment"), "Comment text is required")
		return
	}

	comment, err := a.DB.InsertComment(r.Context(), Comment{
		PostID:   r.PathValue("postID"),
		UserID:   userIDFrom(r.Context()),
		ParentID: body.ParentID,
		Text:     body.Text,
	})
	if err != nil {
		var pgErr pgdriver.Error
		if errors.As(err, &pgErr) && pgErr.IntegrityViolation() {
			a.respondError(w, http.StatusNotFound, err, "Post or comment not found")
			return
		}
		a.notFound(w, err, "Post or comment not found")
		return
	}
	a.respond(w, http.StatusCreated, toCommentResponse(comment))
}

// deleteComment removes a comment (and its replies) owned by the caller.
func (a *API) deleteComment(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Deleted bool `json:"deleted"`
	}

	err := a.DB.DeleteComment(r.Context(), r.PathValue("postID"), r.PathValue("commentID"), userIDFrom(r.Context()))
	if err != nil {
		a.notFound(w, err, "Comment not found")
		return
	}
	a.respond(w, http.StatusOK, response{Deleted: true})
}
