package api

import "time"

// A User represents a registered account.
type User struct {
	ID               string
	Username         string
	Email            string
	Role             string
	PasswordHash     string
	ProfilePic       string
	Verified         bool
	VerificationCode string
	CreatedAt        time.Time
}

// A Message represents a persisted direct message.
type Message struct {
	ID         string
	SenderID   string
	ReceiverID string
	Text       string
	ImageURL   string
	CreatedAt  time.Time
}

// A Post represents an image post in the feed.
type Post struct {
	ID           string
	AuthorID     string
	Title        string
	Description  string
	ImageURLs    []string
	LikeCount    int
	LikedBy      []string
	CommentCount int
	Comments     []Comment
	CreatedAt    time.Time
}

// A Comment is a comment on a post. Replies are comments whose ParentID
// references another comment on the same post.
type Comment struct {
	ID        string
	PostID    string
	UserID    string
	ParentID  string
	Text      string
	CreatedAt time.Time
	Replies   []Comment
}

// A Notification records a social event addressed to a user.
type Notification struct {
	ID          string
	SenderID    string
	RecipientID string
	Type        string
	PostID      string
	Read        bool
	CreatedAt   time.Time
}

// Notification types.
const (
	NotificationMessage = "message"
	NotificationLike    = "like"
	NotificationComment = "comment"
	NotificationFollow  = "follow"
)
