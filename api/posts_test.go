package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/neilotoole/slogt"
)

func TestAPI_createPost(t *testing.T) {
	tests := []struct {
		name       string
		db         *testdb
		req        string
		wantStatus int
		wantBody   string
	}{
		{
			name:       "InvalidJSON",
			req:        `not json`,
			wantStatus: 400,
			wantBody: `{
				"error": "Could not decode request body"
			}`,
		},
		{
			name: "MissingTitle",
			req: `{
				"description": "A sunset",
				"image_urls": ["https://img.example.com/1.jpg"]
			}`,
			wantStatus: 400,
			wantBody: `{
				"error": "Title and description are required"
			}`,
		},
		{
			name: "NoImages",
			req: `{
				"title": "Sunset",
				"description": "A sunset",
				"image_urls": []
			}`,
			wantStatus: 400,
			wantBody: `{
				"error": "At least one image is required"
			}`,
		},
		{
			name: "OK",
			req: `{
				"title": "Sunset",
				"description": "A sunset",
				"image_urls": ["https://img.example.com/1.jpg"]
			}`,
			db: &testdb{
				insertPost: func(t *testing.T, p Post) (Post, error) {
					if p.AuthorID != "alice" {
						t.Errorf("Got AuthorID %q, want alice", p.AuthorID)
					}
					p.ID = "1"
					p.CreatedAt = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
					return p, nil
				},
			},
			wantStatus: 201,
			wantBody: `{
				"id": "1",
				"author_id": "alice",
				"title": "Sunset",
				"description": "A sunset",
				"image_urls": ["https://img.example.com/1.jpg"],
				"like_count": 0,
				"comment_count": 0,
				"created_at": "Mon, 01 Jan 2024 00:00:00 UTC"
			}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.db != nil {
				tt.db.T = t
			}
			api := &API{
				DB:     tt.db,
				Tokens: &testtokens{T: t},
				Logger: slogt.New(t),
			}

			srv := httptest.NewServer(api)
			defer srv.Close()

			resp, err := http.DefaultClient.Do(authedRequest(t, "POST", srv.URL+"/posts", "alice", tt.req))
			if err != nil {
				t.Fatal(err)
			}
			checkStatus(t, resp.StatusCode, tt.wantStatus)
			checkBody(t, resp, tt.wantBody)
		})
	}
}

func TestAPI_listPosts(t *testing.T) {
	tests := []struct {
		name       string
		page       string
		db         *testdb
		wantStatus int
		wantBody   string
	}{
		{
			name: "DBError",
			db: &testdb{
				listPosts: func(t *testing.T, limit, offset int) ([]Post, error) {
					return nil, errors.New("something went wrong")
				},
			},
			wantStatus: 500,
			wantBody: `{
				"error": "Could not list posts"
			}`,
		},
		{
			name: "DefaultsToFirstPage",
			page: "garbage",
			db: &testdb{
				listPosts: func(t *testing.T, limit, offset int) ([]Post, error) {
					if offset != 0 {
						t.Errorf("Got offset %d, want 0", offset)
					}
					return nil, nil
				},
			},
			wantStatus: 200,
			wantBody: `{
				"posts": []
			}`,
		},
		{
			name: "SecondPage",
			page: "2",
			db: &testdb{
				listPosts: func(t *testing.T, limit, offset int) ([]Post, error) {
					if limit != pageSize {
						t.Errorf("Got limit %d, want %d", limit, pageSize)
					}
					if offset != pageSize {
						t.Errorf("Got offset %d, want %d", offset, pageSize)
					}
					return []Post{
						{
							ID:           "11",
							AuthorID:     "alice",
							Title:        "Sunset",
							Description:  "A sunset",
							ImageURLs:    []string{"https://img.example.com/1.jpg"},
							LikeCount:    3,
							CommentCount: 1,
							CreatedAt:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
						},
					}, nil
				},
			},
			wantStatus: 200,
			wantBody: `{
				"posts": [
					{
						"id": "11",
						"author_id": "alice",
						"title": "Sunset",
						"description": "A sunset",
						"image_urls": ["https://img.example.com/1.jpg"],
						"like_count": 3,
						"comment_count": 1,
						"created_at": "Mon, 01 Jan 2024 00:00:00 UTC"
					}
				]
			}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.db.T = t
			api := &API{
				DB:     tt.db,
				Logger: slogt.New(t),
			}

			srv := httptest.NewServer(api)
			defer srv.Close()

			url := srv.URL + "/posts"
			if tt.page != "" {
				url += "?page=" + tt.page
			}
			req, _ := http.NewRequest("GET", url, nil)
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			checkStatus(t, resp.StatusCode, tt.wantStatus)
			checkBody(t, resp, tt.wantBody)
		})
	}
}

func TestAPI_getPost(t *testing.T) {
	tests := []struct {
		name       string
		db         *testdb
		wantStatus int
		wantBody   string
	}{
		{
			name: "NotFound",
			db: &testdb{
				getPost: func(t *testing.T, postID string) (Post, error) {
					return Post{}, ErrNotFound
				},
			},
			wantStatus: 404,
			wantBody: `{
				"error": "Post not found"
			}`,
		},
		{
			name: "OK",
			db: &testdb{
				getPost: func(t *testing.T, postID string) (Post, error) {
					if postID != "1" {
						t.Errorf("Got postID %q, want 1", postID)
					}
					return Post{
						ID:          "1",
						AuthorID:    "alice",
						Title:       "Sunset",
						Description: "A sunset",
						ImageURLs:   []string{"https://img.example.com/1.jpg"},
						LikeCount:   1,
						LikedBy:     []string{"bob"},
						Comments: []Comment{
							{
								ID:        "c1",
								PostID:    "1",
								UserID:    "bob",
								Text:      "Nice",
								CreatedAt: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
								Replies: []Comment{
									{
										ID:        "c2",
										PostID:    "1",
										UserID:    "alice",
										ParentID:  "c1",
										Text:      "Thanks",
										CreatedAt: time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC),
									},
								},
							},
						},
						CommentCount: 2,
						CreatedAt:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
					}, nil
				},
			},
			wantStatus: 200,
			wantBody: `{
				"id": "1",
				"author_id": "alice",
				"title": "Sunset",
				"description": "A sunset",
				"image_urls": ["https://img.example.com/1.jpg"],
				"like_count": 1,
				"liked_by": ["bob"],
				"comment_count": 2,
				"comments": [
					{
						"id": "c1",
						"user_id": "bob",
						"text": "Nice",
						"created_at": "Tue, 02 Jan 2024 00:00:00 UTC",
						"replies": [
							{
								"id": "c2",
								"user_id": "alice",
								"text": "Thanks",
								"created_at": "Wed, 03 Jan 2024 00:00:00 UTC",
								"replies": []
							}
						]
					}
				],
				"created_at": "Mon, 01 Jan 2024 00:00:00 UTC"
			}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.db.T = t
			api := &API{
				DB:     tt.db,
				Logger: slogt.New(t),
			}

			srv := httptest.NewServer(api)
			defer srv.Close()

			req, _ := http.NewRequest("GET", srv.URL+"/posts/1", nil)
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			checkStatus(t, resp.StatusCode, tt.wantStatus)
			checkBody(t, resp, tt.wantBody)
		})
	}
}

func TestAPI_likePost(t *testing.T) {
	tests := []struct {
		name       string
		db         *testdb
		wantStatus int
		wantBody   string
	}{
		{
			name: "NotFound",
			db: &testdb{
				likePost: func(t *testing.T, postID, userID string) (int, error) {
					return 0, ErrNotFound
				},
			},
			wantStatus: 404,
			wantBody: `{
				"error": "Post not found"
			}`,
		},
		{
			name: "OK",
			db: &testdb{
				likePost: func(t *testing.T, postID, userID string) (int, error) {
					if userID != "alice" {
						t.Errorf("Got userID %q, want alice", userID)
					}
					return 4, nil
				},
			},
			wantStatus: 200,
			wantBody: `{
				"post_id": "1",
				"like_count": 4
			}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.db.T = t
			api := &API{
				DB:     tt.db,
				Tokens: &testtokens{T: t},
				Logger: slogt.New(t),
			}

			srv := httptest.NewServer(api)
			defer srv.Close()

			resp, err := http.DefaultClient.Do(authedRequest(t, "POST", srv.URL+"/posts/1/likes", "alice", ""))
			if err != nil {
				t.Fatal(err)
			}
			checkStatus(t, resp.StatusCode, tt.wantStatus)
			checkBody(t, resp, tt.wantBody)
		})
	}
}

func TestAPI_unlikePost(t *testing.T) {
	tests := []struct {
		name       string
		db         *testdb
		wantStatus int
		wantBody   string
	}{
		{
			name: "NotLiked",
			db: &testdb{
				unlikePost: func(t *testing.T, postID, userID string) (int, error) {
					return 0, ErrNotLiked
				},
			},
			wantStatus: 409,
			wantBody: `{
				"error": "Post was not liked"
			}`,
		},
		{
			name: "OK",
			db: &testdb{
				unlikePost: func(t *testing.T, postID, userID string) (int, error) {
					return 2, nil
				},
			},
			wantStatus: 200,
			wantBody: `{
				"post_id": "1",
				"like_count": 2
			}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.db.T = t
			api := &API{
				DB:     tt.db,
				Tokens: &testtokens{T: t},
				Logger: slogt.New(t),
			}

			srv := httptest.NewServer(api)
			defer srv.Close()

			resp, err := http.DefaultClient.Do(authedRequest(t, "DELETE", srv.URL+"/posts/1/likes", "alice", ""))
			if err != nil {
				t.Fatal(err)
			}
			checkStatus(t, resp.StatusCode, tt.wantStatus)
			checkBody(t, resp, tt.wantBody)
		})
	}
}

func TestAPI_updatePost(t *testing.T) {
	tests := []struct {
		name       string
		db         *testdb
		req        string
		wantStatus int
		wantBody   string
	}{
		{
			name:       "Empty",
			req:        `{}`,
			wantStatus: 400,
			wantBody: `{
				"error": "Nothing to update"
			}`,
		},
		{
			name: "NotOwner",
			req: `{
				"title": "New title"
			}`,
			db: &testdb{
				updatePost: func(t *testing.T, postID, authorID, title, description string) (Post, error) {
					return Post{}, ErrNotFound
				},
			},
			wantStatus: 404,
			wantBody: `{
				"error": "Post not found"
			}`,
		},
		{
			name: "TitleOnly",
			req: `{
				"title": "New title"
			}`,
			db: &testdb{
				updatePost: func(t *testing.T, postID, authorID, title, description string) (Post, error) {
					if postID != "1" || authorID != "alice" {
						t.Errorf("Got (%q, %q), want (1, alice)", postID, authorID)
					}
					if description != "" {
						t.Errorf("Got description %q, want it untouched", description)
					}
					return Post{
						ID:          "1",
						AuthorID:    "alice",
						Title:       title,
						Description: "Old description",
						ImageURLs:   []string{"https://img.example.com/1.png"},
						CreatedAt:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
					}, nil
				},
			},
			wantStatus: 200,
			wantBody: `{
				"id": "1",
				"author_id": "alice",
				"title": "New title",
				"description": "Old description",
				"image_urls": ["https://img.example.com/1.png"],
				"like_count": 0,
				"comment_count": 0,
				"created_at": "Mon, 01 Jan 2024 00:00:00 UTC"
			}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.db != nil {
				tt.db.T = t
			}
			api := &API{
				DB:     tt.db,
				Tokens: &testtokens{T: t},
				Logger: slogt.New(t),
			}

			srv := httptest.NewServer(api)
			defer srv.Close()

			resp, err := http.DefaultClient.Do(authedRequest(t, "PATCH", srv.URL+"/posts/1", "alice", tt.req))
			if err != nil {
				t.Fatal(err)
			}
			checkStatus(t, resp.StatusCode, tt.wantStatus)
			checkBody(t, resp, tt.wantBody)
		})
	}
}

func TestAPI_deletePost(t *testing.T) {
	tests := []struct {
		name       string
		db         *testdb
		wantStatus int
		wantBody   string
	}{
		{
			name: "NotOwner",
			db: &testdb{
				deletePost: func(t *testing.T, postID, authorID string) error {
					return ErrNotFound
				},
			},
			wantStatus: 404,
			wantBody: `{
				"error": "Post not found"
			}`,
		},
		{
			name: "OK",
			db: &testdb{
				deletePost: func(t *testing.T, postID, authorID string) error {
					if postID != "1" || authorID != "alice" {
						t.Errorf("Got (%q, %q), want (1, alice)", postID, authorID)
					}
					return nil
				},
			},
			wantStatus: 200,
			wantBody: `{
				"deleted": true
			}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.db.T = t
			api := &API{
				DB:     tt.db,
				Tokens: &testtokens{T: t},
				Logger: slogt.New(t),
			}

			srv := httptest.NewServer(api)
			defer srv.Close()

			resp, err := http.DefaultClient.Do(authedRequest(t, "DELETE", srv.URL+"/posts/1", "alice", ""))
			if err != nil {
				t.Fatal(err)
			}
			checkStatus(t, resp.StatusCode, tt.wantStatus)
			checkBody(t, resp, tt.wantBody)
		})
	}
}

func TestAPI_updateComment(t *testing.T) {
	tests := []struct {
		name       string
		db         *testdb
		req        string
		wantStatus int
		wantBody   string
	}{
		{
			name:       "Empty",
			req:        `{}`,
			wantStatus: 400,
			wantBody: `{
				"error": "Comment text is required"
			}`,
		},
		{
			name: "NotOwner",
			req: `{
				"text": "Edited"
			}`,
			db: &testdb{
				updateComment: func(t *testing.T, postID, commentID, userID, text string) (Comment, error) {
					return Comment{}, ErrNotFound
				},
			},
			wantStatus: 404,
			wantBody: `{
				"error": "Comment not found"
			}`,
		},
		{
			name: "OK",
			req: `{
				"text": "Edited"
			}`,
			db: &testdb{
				updateComment: func(t *testing.T, postID, commentID, userID, text string) (Comment, error) {
					if postID != "1" || commentID != "c1" || userID != "alice" {
						t.Errorf("Got (%q, %q, %q), want (1, c1, alice)", postID, commentID, userID)
					}
					return Comment{
						ID:        "c1",
						UserID:    "alice",
						Text:      text,
						CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
					}, nil
				},
			},
			wantStatus: 200,
			wantBody: `{
				"id": "c1",
				"user_id": "alice",
				"text": "Edited",
				"created_at": "Mon, 01 Jan 2024 00:00:00 UTC",
				"replies": []
			}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.db != nil {
				tt.db.T = t
			}
			api := &API{
				DB:     tt.db,
				Tokens: &testtokens{T: t},
				Logger: slogt.New(t),
			}

			srv := httptest.NewServer(api)
			defer srv.Close()

			resp, err := http.DefaultClient.Do(authedRequest(t, "PATCH", srv.URL+"/posts/1/comments/c1", "alice", tt.req))
			if err != nil {
				t.Fatal(err)
			}
			checkStatus(t, resp.StatusCode, tt.wantStatus)
			checkBody(t, resp, tt.wantBody)
		})
	}
}

func TestAPI_addComment(t *testing.T) {
	tests := []struct {
		name       string
		db         *testdb
		req        string
		wantStatus int
		wantBody   string
	}{
		{
			name:       "Empty",
			req:        `{}`,
			wantStatus: 400,
			wantBody: `{
				"error": "Comment text is required"
			}`,
		},
		{
			name: "PostNotFound",
			req: `{
				"text": "Nice"
			}`,
			db: &testdb{
				insertComment: func(t *testing.T, c Comment) (Comment, error) {
					return Comment{}, ErrNotFound
				},
			},
			wantStatus: 404,
			wantBody: `{
				"error": "Post or comment not found"
			}`,
		},
		{
			name: "Reply",
			req: `{
				"text": "Thanks",
				"parent_id": "c1"
			}`,
			db: &testdb{
				insertComment: func(t *testing.T, c Comment) (Comment, error) {
					if c.ParentID != "c1" {
						t.Errorf("Got ParentID %q, want c1", c.ParentID)
					}
					if c.UserID != "alice" {
						t.Errorf("Got UserID %q, want alice", c.UserID)
					}
					c.ID = "c2"
					c.CreatedAt = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
					return c, nil
				},
			},
			wantStatus: 201,
			wantBody: `{
				"id": "c2",
				"user_id": "alice",
				"text": "Thanks",
				"created_at": "Mon, 01 Jan 2024 00:00:00 UTC",
				"replies": []
			}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.db != nil {
				tt.db.T = t
			}
			api := &API{
				DB:     tt.db,
				Tokens: &testtokens{T: t},
				Logger: slogt.New(t),
			}

			srv := httptest.NewServer(api)
			defer srv.Close()

			resp, err := http.DefaultClient.Do(authedRequest(t, "POST", srv.URL+"/posts/1/comments", "alice", tt.req))
			if err != nil {
				t.Fatal(err)
			}
			checkStatus(t, resp.StatusCode, tt.wantStatus)
			checkBody(t, resp, tt.wantBody)
		})
	}
}

func TestAPI_deleteComment(t *testing.T) {
	tests := []struct {
		name       string
		db         *testdb
		wantStatus int
		wantBody   string
	}{
		{
			name: "NotFound",
			db: &testdb{
				deleteComment: func(t *testing.T, postID, commentID, userID string) error {
					return ErrNotFound
				},
			},
			wantStatus: 404,
			wantBody: `{
				"error": "Comment not found"
			}`,
		},
		{
			name: "OK",
			db: &testdb{
				deleteComment: func(t *testing.T, postID, commentID, userID string) error {
					if postID != "1" || commentID != "c1" || userID != "alice" {
						t.Errorf("Got (%q, %q, %q), want (1, c1, alice)", postID, commentID, userID)
					}
					return nil
				},
			},
			wantStatus: 200,
			wantBody: `{
				"deleted": true
			}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.db.T = t
			api := &API{
				DB:     tt.db,
				Tokens: &testtokens{T: t},
				Logger: slogt.New(t),
			}

			srv := httptest.NewServer(api)
			defer srv.Close()

			resp, err := http.DefaultClient.Do(authedRequest(t, "DELETE", srv.URL+"/posts/1/comments/c1", "alice", ""))
			if err != nil {
				t.Fatal(err)
			}
			checkStatus(t, resp.StatusCode, tt.wantStatus)
			checkBody(t, resp, tt.wantBody)
		})
	}
}
