package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/on-cure/oncare/internal/errors"
)

// Post audiences.
const (
	PrivacyPublic        = "public"
	PrivacyAlmostPrivate = "almost_private"
	PrivacyPrivate       = "private"
)

// Post is one entry of the community feed.
type Post struct {
	ID           int       `json:"id"`
	UserID       int       `json:"user_id"`
	Content      string    `json:"content"`
	ImageURL     string    `json:"image_url,omitempty"`
	Privacy      string    `json:"privacy"`
	LikeCount    int       `json:"like_count"`
	DislikeCount int       `json:"dislike_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	User         *User     `json:"user,omitempty"`
}

// Author is the name shown above the post.
func (p Post) Author() string {
	if p.User != nil {
		return p.User.DisplayName()
	}
	return fmt.Sprintf("user %d", p.UserID)
}

// NewPost is the body of a create request.
type NewPost struct {
	Content  string `json:"content"`
	Privacy  string `json:"privacy"`
	ImageURL string `json:"image_url,omitempty"`
}

// Validate checks required fields and fills in the default audience.
func (p *NewPost) Validate() error {
	p.Content = strings.TrimSpace(p.Content)
	if p.Content == "" {
		return errors.FieldRequired("content")
	}
	switch p.Privacy {
	case "":
		p.Privacy = PrivacyPublic
	case PrivacyPublic, PrivacyAlmostPrivate, PrivacyPrivate:
	default:
		return errors.New(errors.ErrCodeFieldRequired, fmt.Sprintf("unknown privacy %q", p.Privacy)).
			WithSuggestion("Use one of: public, almost_private, private")
	}
	return nil
}

// ListPosts returns a page of the feed, newest first. page starts at 1;
// zero values use the backend defaults. Both a bare array and a
// {"posts": [...]} envelope are accepted.
func (c *Client) ListPosts(ctx context.Context, page, limit int) ([]Post, error) {
	q := url.Values{}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/api/posts"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	resp, err := c.do(ctx, http.MethodGet, "/api/posts", path, nil)
	if err != nil {
		return nil, err
	}

	var raw json.RawMessage
	if err := parseResponse(resp, &raw); err != nil {
		return nil, err
	}
	return decodePosts(raw)
}

func decodePosts(raw json.RawMessage) ([]Post, error) {
	raw = bytes.TrimSpace(raw)
	var out []Post
	switch {
	case len(raw) == 0 || bytes.Equal(raw, []byte("null")):
	case raw[0] == '{':
		var env struct {
			Posts []Post `json:"posts"`
		}
		if err := json.Unmarshal(raw, &env); err != nil {
			return nil, errors.DecodeFailed("posts", err)
		}
		out = env.Posts
	default:
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, errors.DecodeFailed("posts", err)
		}
	}
	if out == nil {
		out = []Post{}
	}
	return out, nil
}

// CreatePost publishes a post as the logged-in user.
func (c *Client) CreatePost(ctx context.Context, p NewPost) (*Post, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	resp, err := c.do(ctx, http.MethodPost, "/api/posts", "/api/posts", p)
	if err != nil {
		return nil, err
	}

	var out Post
	if err := parseResponse(resp, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
