package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

const pageSize = 10

var (
	// ErrNotFound is returned by a DB when the requested record does not exist.
	ErrNotFound = fmt.Errorf("not found")
	// ErrNotLiked is returned by a DB when unliking a post the user never liked.
	ErrNotLiked = fmt.Errorf("post not liked by user")
	// ErrConversationNotCached is returned by a Cache on a conversation miss.
	ErrConversationNotCached = fmt.Errorf("conversation not found in cache")
)

// A DB provides the storage layer that persists users, messages, posts, and
// notifications.
type DB interface {
	GetUserByEmail(ctx context.Context, email string) (User, error)
	GetUserByID(ctx context.Context, id string) (User, error)
	GetUserByUsername(ctx context.Context, username string) (User, error)
	InsertUser(ctx context.Context, u User) (User, error)
	MarkUserVerified(ctx context.Context, id string) error
	SetVerificationCode(ctx context.Context, id, code string) error
	SetPassword(ctx context.Context, id, passwordHash string) error
	SetEmail(ctx context.Context, id, email string) error

	ListConversation(ctx context.Context, userA, userB string, excludeMsgIDs ...string) ([]Message, error)
	ListChatPartners(ctx context.Context, userID string) ([]User, error)
	InsertMessage(ctx context.Context, msg Message) (Message, error)

	InsertPost(ctx context.Context, p Post) (Post, error)
	GetPost(ctx context.Context, postID string) (Post, error)
	UpdatePost(ctx context.Context, postID, authorID, title, description string) (Post, error)
	DeletePost(ctx context.Context, postID, authorID string) error
	ListPosts(ctx context.Context, limit, offset int) ([]Post, error)
	ListPostsByAuthor(ctx context.Context, authorID string) ([]Post, error)
	LikePost(ctx context.Context, postID, userID string) (int, error)
	UnlikePost(ctx context.Context, postID, userID string) (int, error)
	InsertComment(ctx context.Context, c Comment) (Comment, error)
	UpdateComment(ctx context.Context, postID, commentID, userID, text string) (Comment, error)
	DeleteComment(ctx context.Context, postID, commentID, userID string) error

	InsertNotification(ctx context.Context, n Notification) (Notification, error)
	ListNotifications(ctx context.Context, recipientID string) ([]Notification, error)
	MarkNotificationsRead(ctx context.Context, recipientID string) error
}

// A Cache provides a storage layer that caches recent conversation messages.
type Cache interface {
	ListConversation(ctx context.Context, userA, userB string) ([]Message, error)
	InsertMessage(ctx context.Context, msg Message) error
}

// A TokenProvider issues and verifies the credentials carried by the jwt
// cookie.
type TokenProvider interface {
	Issue(userID string) (string, time.Time, error)
	Verify(token string) (string, error)
}

// A Mailer delivers signup and verification mail. Failures never fail the
// request that triggered them.
type Mailer interface {
	SendVerificationCode(ctx context.Context, email, code string) error
	SendWelcome(ctx context.Context, email string) error
}

// A Pusher announces a freshly persisted message to the receiver's live
// connection, best effort.
type Pusher interface {
	PushMessage(receiverID string, msg Message)
}

// API provides the REST endpoints for the application.
type API struct {
	Logger *slog.Logger
	DB     DB
	Cache  Cache
	Tokens TokenProvider
	Mailer Mailer
	Pusher Pusher

	once sync.Once
	mux  *http.ServeMux
}

func (a *API) setupRoutes() {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /auth/signup", a.signup)
	mux.HandleFunc("POST /auth/login", a.login)
	mux.HandleFunc("POST /auth/logout", a.logout)
	mux.HandleFunc("POST /auth/verify-email", a.verifyEmail)
	mux.Handle("GET /auth/me", a.requireAuth(a.me))
	mux.Handle("POST /auth/change-password", a.requireAuth(a.changePassword))
	mux.Handle("POST /auth/send-otp", a.requireAuth(a.sendOTP))
	mux.Handle("POST /auth/verify-otp", a.requireAuth(a.verifyOTP))

	mux.HandleFunc("GET /users/{username}", a.getUserProfile)
	mux.HandleFunc("GET /users/{username}/posts", a.listUserPosts)

	mux.Handle("GET /messages/users", a.requireAuth(a.listChatPartners))
	mux.Handle("GET /messages/{userID}", a.requireAuth(a.getConversation))
	mux.Handle("POST /messages/{userID}", a.requireAuth(a.sendMessage))

	mux.HandleFunc("GET /posts", a.listPosts)
	mux.Handle("POST /posts", a.requireAuth(a.createPost))
	mux.Handle("GET /posts/mine", a.requireAuth(a.listMyPosts))
	mux.HandleFunc("GET /posts/{postID}", a.getPost)
	mux.Handle("PATCH /posts/{postID}", a.requireAuth(a.updatePost))
	mux.Handle("DELETE /posts/{postID}", a.requireAuth(a.deletePost))
	mux.Handle("POST /posts/{postID}/likes", a.requireAuth(a.likePost))
	mux.Handle("DELETE /posts/{postID}/likes", a.requireAuth(a.unlikePost))
	mux.Handle("POST /posts/{postID}/comments", a.requireAuth(a.addComment))
	mux.Handle("PATCH /posts/{postID}/comments/{commentID}", a.requireAuth(a.updateComment))
	mux.Handle("DELETE /posts/{postID}/comments/{commentID}", a.requireAuth(a.deleteComment))

	mux.Handle("GET /notifications", a.requireAuth(a.listNotifications))
	mux.Handle("POST /notifications/read", a.requireAuth(a.markNotificationsRead))

	a.mux = mux
}

func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.once.Do(a.setupRoutes)
	a.Logger.Info("Request received", "method", r.Method, "path", r.URL.Path)
	a.mux.ServeHTTP(w, r)
}

func (a *API) respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		a.Logger.Error("Could not encode JSON body", "error", err.Error())
	}
}

func (a *API) respondError(w http.ResponseWriter, status int, err error, msg string) {
	type response struct {
		Error string `json:"error"`
	}
	a.Logger.Error("Error", "error", err.Error())
	a.respond(w, status, response{Error: msg})
}

type ctxKey int

const userIDKey ctxKey = iota

// requireAuth verifies the request credential and stores the authenticated
// user ID on the context.
func (a *API) requireAuth(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := a.Tokens.Verify(requestToken(r))
		if err != nil {
			a.respondError(w, http.StatusUnauthorized, err, "Unauthorized")
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), userIDKey, userID)))
	})
}

// userIDFrom returns the authenticated user ID set by requireAuth.
func userIDFrom(ctx context.Context) string {
	userID, _ := ctx.Value(userIDKey).(string)
	return userID
}

// requestToken pulls the credential from the jwt cookie or a bearer header.
func requestToken(r *http.Request) string {
	if c, err := r.Cookie("jwt"); err == nil && c.Value != "" {
		return c.Value
	}
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

func (a *API) setAuthCookie(w http.ResponseWriter, tok string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     "jwt",
		Value:    tok,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (a *API) clearAuthCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     "jwt",
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// notFound maps storage misses to 404 and everything else to 500.
func (a *API) notFound(w http.ResponseWriter, err error, msg string) {
	if errors.Is(err, ErrNotFound) {
		a.respondError(w, http.StatusNotFound, err, msg)
		return
	}
	a.respondError(w, http.StatusInternalServerError, err, "Internal server error")
}
