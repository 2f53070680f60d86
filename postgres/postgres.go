// Package postgres provides storage in PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/creative-threads/threads-api/api"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

// Postgres provides storage in PostgreSQL.
type Postgres struct {
	bun *bun.DB
}

// Connect connects to the database and pings the DB to ensure the connection
// is working.
func Connect(ctx context.Context, connStr string) (*Postgres, error) {
	sqlDB := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(connStr)))
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	db := bun.NewDB(sqlDB, pgdialect.New())
	return &Postgres{
		bun: db,
	}, nil
}

// GetUserByEmail returns the user registered with the given email address.
func (pg *Postgres) GetUserByEmail(ctx context.Context, email string) (api.User, error) {
	var u user
	err := pg.bun.NewSelect().Model(&u).Where("email = ?", email).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return api.User{}, api.ErrNotFound
		}
		return api.User{}, fmt.Errorf("scan: %w", err)
	}
	return u.APIUser(), nil
}

// GetUserByID returns the user with the given ID.
func (pg *Postgres) GetUserByID(ctx context.Context, id string) (api.User, error) {
	var u user
	err := pg.bun.NewSelect().Model(&u).Where("id = ?", id).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return api.User{}, api.ErrNotFound
		}
		return api.User{}, fmt.Errorf("scan: %w", err)
	}
	return u.APIUser(), nil
}

// GetUserByUsername returns the user with the given username.
func (pg *Postgres) GetUserByUsername(ctx context.Context, username string) (api.User, error) {
	var u user
	err := pg.bun.NewSelect().Model(&u).Where("username = ?", username).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return api.User{}, api.ErrNotFound
		}
		return api.User{}, fmt.Errorf("scan: %w", err)
	}
	return u.APIUser(), nil
}

// InsertUser inserts a user into the database. The returned user holds auto
// generated fields, such as the user id.
func (pg *Postgres) InsertUser(ctx context.Context, in api.User) (api.User, error) {
	u := &user{
		Username:         in.Username,
		Email:            in.Email,
		Role:             in.Role,
		PasswordHash:     in.PasswordHash,
		ProfilePic:       in.ProfilePic,
		IsVerified:       in.Verified,
		VerificationCode: in.VerificationCode,
	}
	if _, err := pg.bun.NewInsert().Model(u).Returning("*").Exec(ctx); err != nil {
		return api.User{}, fmt.Errorf("insert: %w", err)
	}
	return u.APIUser(), nil
}

// MarkUserVerified flags the user as verified and clears the pending code.
func (pg *Postgres) MarkUserVerified(ctx context.Context, id string) error {
	res, err := pg.bun.NewUpdate().
		Model((*user)(nil)).
		Set("is_verified = TRUE").
		Set("verification_code = ''").
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return api.ErrNotFound
	}
	return nil
}

// SetVerificationCode replaces the user's pending verification code.
func (pg *Postgres) SetVerificationCode(ctx context.Context, id, code string) error {
	res, err := pg.bun.NewUpdate().
		Model((*user)(nil)).
		Set("verification_code = ?", code).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return api.ErrNotFound
	}
	return nil
}

// SetPassword replaces the user's password hash.
func (pg *Postgres) SetPassword(ctx context.Context, id, passwordHash string) error {
	res, err := pg.bun.NewUpdate().
		Model((*user)(nil)).
		Set("password_hash = ?", passwordHash).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return api.ErrNotFound
	}
	return nil
}

// SetEmail replaces the user's email address and clears the pending code.
func (pg *Postgres) SetEmail(ctx context.Context, id, email string) error {
	res, err := pg.bun.NewUpdate().
		Model((*user)(nil)).
		Set("email = ?", email).
		Set("verification_code = ''").
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return api.ErrNotFound
	}
	return nil
}

// ListConversation returns all messages exchanged between the two users,
// newest first.
func (pg *Postgres) ListConversation(ctx context.Context, userA, userB string, excludeMsgIDs ...string) ([]api.Message, error) {
	var msgs []message
	q := pg.bun.NewSelect().
		Model(&msgs).
		Where("(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)",
			userA, userB, userB, userA).
		Order("message.created_at DESC")

	if len(excludeMsgIDs) > 0 {
		q = q.Where("message.id NOT IN (?)", bun.In(excludeMsgIDs))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}

	out := make([]api.Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.APIMessage()
	}
	return out, nil
}

// ListChatPartners returns every user the given user has exchanged at least
// one message with, most recent conversation first.
func (pg *Postgres) ListChatPartners(ctx context.Context, userID string) ([]api.User, error) {
	partnerIDs := pg.bun.NewSelect().
		Model((*message)(nil)).
		ColumnExpr("DISTINCT CASE WHEN message.sender_id = ? THEN message.receiver_id ELSE message.sender_id END", userID).
		Where("message.sender_id = ? OR message.receiver_id = ?", userID, userID)

	var users []user
	err := pg.bun.NewSelect().
		Model(&users).
		Where("id IN (?)", partnerIDs).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}

	out := make([]api.User, len(users))
	for i, u := range users {
		out[i] = u.APIUser()
	}
	return out, nil
}

// InsertMessage inserts a message into the database. The returned message
// holds auto generated fields, such as the message id.
func (pg *Postgres) InsertMessage(ctx context.Context, msg api.Message) (api.Message, error) {
	m := &message{
		SenderID:    msg.SenderID,
		ReceiverID:  msg.ReceiverID,
		MessageText: msg.Text,
		ImageURL:    msg.ImageURL,
	}
	if _, err := pg.bun.NewInsert().Model(m).Returning("*").Exec(ctx); err != nil {
		return api.Message{}, fmt.Errorf("insert: %w", err)
	}
	return m.APIMessage(), nil
}

// InsertPost inserts a post into the database.
func (pg *Postgres) InsertPost(ctx context.Context, in api.Post) (api.Post, error) {
	p := &post{
		AuthorID:    in.AuthorID,
		Title:       in.Title,
		Description: in.Description,
		ImageURLs:   in.ImageURLs,
	}
	if _, err := pg.bun.NewInsert().Model(p).Returning("*").Exec(ctx); err != nil {
		return api.Post{}, fmt.Errorf("insert: %w", err)
	}
	return p.APIPost(), nil
}

// UpdatePost edits a post's title and/or description. Empty fields are left
// untouched. Only the author may edit, so a mismatched authorID reports
// ErrNotFound.
func (pg *Postgres) UpdatePost(ctx context.Context, postID, authorID, title, description string) (api.Post, error) {
	p := new(post)
	q := pg.bun.NewUpdate().
		Model(p).
		Where("id = ?", postID).
		Where("author_id = ?", authorID).
		Returning("*")
	if title != "" {
		q = q.Set("title = ?", title)
	}
	if description != "" {
		q = q.Set("description = ?", description)
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return api.Post{}, fmt.Errorf("update: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return api.Post{}, api.ErrNotFound
	}
	return p.APIPost(), nil
}

// DeletePost removes a post and, through cascading foreign keys, its likes
// and comments. Only the author may delete.
func (pg *Postgres) DeletePost(ctx context.Context, postID, authorID string) error {
	res, err := pg.bun.NewDelete().
		Model((*post)(nil)).
		Where("id = ?", postID).
		Where("author_id = ?", authorID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return api.ErrNotFound
	}
	return nil
}

// GetPost returns a post with its like set and full comment tree.
func (pg *Postgres) GetPost(ctx context.Context, postID string) (api.Post, error) {
	var p post
	err := pg.bun.NewSelect().Model(&p).Where("id = ?", postID).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return api.Post{}, api.ErrNotFound
		}
		return api.Post{}, fmt.Errorf("scan: %w", err)
	}
	out := p.APIPost()

	var likes []postLike
	if err := pg.bun.NewSelect().Model(&likes).Where("post_id = ?", postID).Scan(ctx); err != nil {
		return api.Post{}, fmt.Errorf("scan likes: %w", err)
	}
	out.LikedBy = make([]string, len(likes))
	for i, l := range likes {
		out.LikedBy[i] = l.UserID
	}
	out.LikeCount = len(likes)

	var comments []postComment
	err = pg.bun.NewSelect().
		Model(&comments).
		Where("post_id = ?", postID).
		Order("post_comment.created_at ASC").
		Scan(ctx)
	if err != nil {
		return api.Post{}, fmt.Errorf("scan comments: %w", err)
	}
	out.Comments = buildCommentTree(comments)
	out.CommentCount = len(out.Comments)

	return out, nil
}

// buildCommentTree nests replies under their parent comment. Comments arrive
// ordered by creation time, so parents precede their replies.
func buildCommentTree(comments []postComment) []api.Comment {
	top := make([]api.Comment, 0)
	index := make(map[string]int) // comment ID -> position in top

	for _, c := range comments {
		if c.ParentID == "" {
			top = append(top, c.APIComment())
			index[c.ID] = len(top) - 1
			continue
		}
		if i, ok := index[c.ParentID]; ok {
			top[i].Replies = append(top[i].Replies, c.APIComment())
		}
	}
	return top
}

// ListPosts returns a page of posts with their like and top-level comment
// counts, newest first.
func (pg *Postgres) ListPosts(ctx context.Context, limit, offset int) ([]api.Post, error) {
	return pg.listPosts(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Limit(limit).Offset(offset)
	})
}

// ListPostsByAuthor returns all posts by one author, newest first.
func (pg *Postgres) ListPostsByAuthor(ctx context.Context, authorID string) ([]api.Post, error) {
	return pg.listPosts(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("post.author_id = ?", authorID)
	})
}

func (pg *Postgres) listPosts(ctx context.Context, apply func(*bun.SelectQuery) *bun.SelectQuery) ([]api.Post, error) {
	var posts []post
	q := pg.bun.NewSelect().
		Model(&posts).
		ColumnExpr("post.*").
		ColumnExpr("(SELECT COUNT(*) FROM post_likes AS pl WHERE pl.post_id = post.id) AS like_count").
		ColumnExpr("(SELECT COUNT(*) FROM post_comments AS pc WHERE pc.post_id = post.id AND pc.parent_id IS NULL) AS comment_count").
		Order("post.created_at DESC")
	q = apply(q)

	var rows []postWithCounts
	if err := q.Scan(ctx, &rows); err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}

	out := make([]api.Post, len(rows))
	for i, row := range rows {
		out[i] = row.APIPost()
	}
	return out, nil
}

// LikePost records userID's like of postID and returns the new like count.
// Liking twice violates the primary key, which the API layer maps to a
// conflict.
func (pg *Postgres) LikePost(ctx context.Context, postID, userID string) (int, error) {
	exists, err := pg.bun.NewSelect().Model((*post)(nil)).Where("id = ?", postID).Exists(ctx)
	if err != nil {
		return 0, fmt.Errorf("select: %w", err)
	}
	if !exists {
		return 0, api.ErrNotFound
	}

	l := &postLike{PostID: postID, UserID: userID}
	if _, err := pg.bun.NewInsert().Model(l).Exec(ctx); err != nil {
		return 0, fmt.Errorf("insert: %w", err)
	}
	return pg.countLikes(ctx, postID)
}

// UnlikePost removes userID's like of postID and returns the new like count.
func (pg *Postgres) UnlikePost(ctx context.Context, postID, userID string) (int, error) {
	res, err := pg.bun.NewDelete().
		Model((*postLike)(nil)).
		Where("post_id = ? AND user_id = ?", postID, userID).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("delete: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		exists, err := pg.bun.NewSelect().Model((*post)(nil)).Where("id = ?", postID).Exists(ctx)
		if err != nil {
			return 0, fmt.Errorf("select: %w", err)
		}
		if !exists {
			return 0, api.ErrNotFound
		}
		return 0, api.ErrNotLiked
	}
	return pg.countLikes(ctx, postID)
}

func (pg *Postgres) countLikes(ctx context.Context, postID string) (int, error) {
	count, err := pg.bun.NewSelect().
		Model((*postLike)(nil)).
		Where("post_id = ?", postID).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return count, nil
}

// InsertComment inserts a comment. When ParentID is set the parent must be a
// top-level comment on the same post; threading is one level deep, so a reply
// cannot parent another reply.
func (pg *Postgres) InsertComment(ctx context.Context, in api.Comment) (api.Comment, error) {
	if in.ParentID != "" {
		var parent postComment
		err := pg.bun.NewSelect().Model(&parent).Where("id = ?", in.ParentID).Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return api.Comment{}, api.ErrNotFound
			}
			return api.Comment{}, fmt.Errorf("scan parent: %w", err)
		}
		if parent.PostID != in.PostID || parent.ParentID != "" {
			return api.Comment{}, api.ErrNotFound
		}
	}

	c := &postComment{
		PostID:      in.PostID,
		UserID:      in.UserID,
		ParentID:    in.ParentID,
		CommentText: in.Text,
	}
	if _, err := pg.bun.NewInsert().Model(c).Returning("*").Exec(ctx); err != nil {
		return api.Comment{}, fmt.Errorf("insert: %w", err)
	}
	return c.APIComment(), nil
}

// UpdateComment replaces the text of a comment owned by userID.
func (pg *Postgres) UpdateComment(ctx context.Context, postID, commentID, userID, text string) (api.Comment, error) {
	c := new(postComment)
	res, err := pg.bun.NewUpdate().
		Model(c).
		Set("comment_text = ?", text).
		Where("id = ? AND post_id = ? AND user_id = ?", commentID, postID, userID).
		Returning("*").
		Exec(ctx)
	if err != nil {
		return api.Comment{}, fmt.Errorf("update: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return api.Comment{}, api.ErrNotFound
	}
	return c.APIComment(), nil
}

// DeleteComment removes a comment owned by userID; replies cascade.
func (pg *Postgres) DeleteComment(ctx context.Context, postID, commentID, userID string) error {
	res, err := pg.bun.NewDelete().
		Model((*postComment)(nil)).
		Where("id = ? AND post_id = ? AND user_id = ?", commentID, postID, userID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return api.ErrNotFound
	}
	return nil
}

// InsertNotification inserts a notification into the database. The returned
// record holds auto generated fields, such as the notification id.
func (pg *Postgres) InsertNotification(ctx context.Context, in api.Notification) (api.Notification, error) {
	n := &notification{
		SenderID:    in.SenderID,
		RecipientID: in.RecipientID,
		Type:        in.Type,
		PostID:      in.PostID,
		IsRead:      in.Read,
	}
	if _, err := pg.bun.NewInsert().Model(n).Returning("*").Exec(ctx); err != nil {
		return api.Notification{}, fmt.Errorf("insert: %w", err)
	}
	return n.APINotification(), nil
}

// ListNotifications returns the recipient's notifications, newest first.
func (pg *Postgres) ListNotifications(ctx context.Context, recipientID string) ([]api.Notification, error) {
	var notifs []notification
	err := pg.bun.NewSelect().
		Model(&notifs).
		Where("recipient_id = ?", recipientID).
		Order("notification.created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}

	out := make([]api.Notification, len(notifs))
	for i, n := range notifs {
		out[i] = n.APINotification()
	}
	return out, nil
}

// MarkNotificationsRead flags all of the recipient's notifications as read.
func (pg *Postgres) MarkNotificationsRead(ctx context.Context, recipientID string) error {
	_, err := pg.bun.NewUpdate().
		Model((*notification)(nil)).
		Set("is_read = TRUE").
		Where("recipient_id = ? AND is_read = FALSE", recipientID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update: %w", err)
	}
	return nil
}
