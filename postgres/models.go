package postgres

import (
	"time"

	"github.com/creative-threads/threads-api/api"
)

// A user represents a user row in the database.
type user struct {
	ID               string    `bun:",pk,type:uuid,default:uuid_generate_v4()"`
	Username         string    `bun:",notnull"`
	Email            string    `bun:",notnull"`
	Role             string    `bun:",notnull"`
	PasswordHash     string    `bun:"password_hash,notnull"`
	ProfilePic       string    `bun:"profile_pic"`
	IsVerified       bool      `bun:"is_verified"`
	VerificationCode string    `bun:"verification_code"`
	CreatedAt        time.Time `bun:",nullzero,default:now()"`
}

func (u user) APIUser() api.User {
	return api.User{
		ID:               u.ID,
		Username:         u.Username,
		Email:            u.Email,
		Role:             u.Role,
		PasswordHash:     u.PasswordHash,
		ProfilePic:       u.ProfilePic,
		Verified:         u.IsVerified,
		VerificationCode: u.VerificationCode,
		CreatedAt:        u.CreatedAt,
	}
}

// A message represents a direct message row in the database.
type message struct {
	ID          string    `bun:",pk,type:uuid,default:uuid_generate_v4()"`
	SenderID    string    `bun:"sender_id,notnull,type:uuid"`
	ReceiverID  string    `bun:"receiver_id,notnull,type:uuid"`
	MessageText string    `bun:"message_text"`
	ImageURL    string    `bun:"image_url"`
	CreatedAt   time.Time `bun:",nullzero,default:now()"`
}

func (m message) APIMessage() api.Message {
	return api.Message{
		ID:         m.ID,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		Text:       m.MessageText,
		ImageURL:   m.ImageURL,
		CreatedAt:  m.CreatedAt,
	}
}

// A post represents a post row in the database.
type post struct {
	ID          string    `bun:",pk,type:uuid,default:uuid_generate_v4()"`
	AuthorID    string    `bun:"author_id,notnull,type:uuid"`
	Title       string    `bun:",notnull"`
	Description string    `bun:",notnull"`
	ImageURLs   []string  `bun:"image_urls,array"`
	CreatedAt   time.Time `bun:",nullzero,default:now()"`
}

func (p post) APIPost() api.Post {
	return api.Post{
		ID:          p.ID,
		AuthorID:    p.AuthorID,
		Title:       p.Title,
		Description: p.Description,
		ImageURLs:   p.ImageURLs,
		CreatedAt:   p.CreatedAt,
	}
}

// postWithCounts is the scan target for feed queries that aggregate like and
// comment counts alongside the post columns.
type postWithCounts struct {
	post
	LikeCount    int `bun:"like_count"`
	CommentCount int `bun:"comment_count"`
}

func (p postWithCounts) APIPost() api.Post {
	out := p.post.APIPost()
	out.LikeCount = p.LikeCount
	out.CommentCount = p.CommentCount
	return out
}

// A postLike represents one user's like of one post.
type postLike struct {
	PostID    string    `bun:"post_id,pk,type:uuid"`
	UserID    string    `bun:"user_id,pk,type:uuid"`
	CreatedAt time.Time `bun:",nullzero,default:now()"`
}

// A postComment represents a comment row; replies reference their parent
// comment.
type postComment struct {
	ID          string    `bun:",pk,type:uuid,default:uuid_generate_v4()"`
	PostID      string    `bun:"post_id,notnull,type:uuid"`
	UserID      string    `bun:"user_id,notnull,type:uuid"`
	ParentID    string    `bun:"parent_id,nullzero,type:uuid"`
	CommentText string    `bun:"comment_text,notnull"`
	CreatedAt   time.Time `bun:",nullzero,default:now()"`
}

func (c postComment) APIComment() api.Comment {
	return api.Comment{
		ID:        c.ID,
		PostID:    c.PostID,
		UserID:    c.UserID,
		ParentID:  c.ParentID,
		Text:      c.CommentText,
		CreatedAt: c.CreatedAt,
	}
}

// A notification represents a notification row in the database.
type notification struct {
	ID          string    `bun:",pk,type:uuid,default:uuid_generate_v4()"`
	SenderID    string    `bun:"sender_id,notnull,type:uuid"`
	RecipientID string    `bun:"recipient_id,notnull,type:uuid"`
	Type        string    `bun:"notification_type,notnull"`
	PostID      string    `bun:"post_id,nullzero,type:uuid"`
	IsRead      bool      `bun:"is_read"`
	CreatedAt   time.Time `bun:",nullzero,default:now()"`
}

func (n notification) APINotification() api.Notification {
	return api.Notification{
		ID:          n.ID,
		SenderID:    n.SenderID,
		RecipientID: n.RecipientID,
		Type:        n.Type,
		PostID:      n.PostID,
		Read:        n.IsRead,
		CreatedAt:   n.CreatedAt,
	}
}
