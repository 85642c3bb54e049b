package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/on-cure/oncare/internal/errors"
)

// FollowCounts are the follower and following totals for a user.
type FollowCounts struct {
	Followers int `json:"followers"`
	Following int `json:"following"`
}

// Connections is the sum shown on the feed header.
func (f FollowCounts) Connections() int {
	return f.Followers + f.Following
}

func userPath(userID int, suffix string) (route, path string) {
	if userID <= 0 {
		return "/api/users/" + suffix, "/api/users/" + suffix
	}
	return "/api/users/{userID}/" + suffix, fmt.Sprintf("/api/users/%d/%s", userID, suffix)
}

// GetProfile returns a user's profile. userID 0 means the logged-in user.
func (c *Client) GetProfile(ctx context.Context, userID int) (*User, error) {
	route, path := userPath(userID, "profile")
	resp, err := c.do(ctx, http.MethodGet, route, path, nil)
	if err != nil {
		return nil, err
	}

	var u User
	if err := parseResponse(resp, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// FollowCounts returns follower totals. userID 0 means the logged-in user.
func (c *Client) FollowCounts(ctx context.Context, userID int) (*FollowCounts, error) {
	route, path := userPath(userID, "counts")
	resp, err := c.do(ctx, http.MethodGet, route, path, nil)
	if err != nil {
		return nil, err
	}

	var out FollowCounts
	if err := parseResponse(resp, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Follow follows userID, or sends a follow request for a private profile.
func (c *Client) Follow(ctx context.Context, userID int) error {
	return c.userAction(ctx, http.MethodPost, userID, "follow")
}

// Unfollow stops following userID.
func (c *Client) Unfollow(ctx context.Context, userID int) error {
	return c.userAction(ctx, http.MethodDelete, userID, "follow")
}

// AcceptFollowRequest accepts a pending request from userID.
func (c *Client) AcceptFollowRequest(ctx context.Context, userID int) error {
	return c.userAction(ctx, http.MethodPost, userID, "accept-follow")
}

// CancelFollowRequest withdraws or declines a pending request with userID.
func (c *Client) CancelFollowRequest(ctx context.Context, userID int) error {
	return c.userAction(ctx, http.MethodDelete, userID, "follow-request")
}

func (c *Client) userAction(ctx context.Context, method string, userID int, suffix string) error {
	if userID <= 0 {
		return errors.New(errors.ErrCodeFieldRequired, fmt.Sprintf("invalid user id %d", userID)).
			WithSuggestion("Pass the member's numeric user id")
	}
	route, path := userPath(userID, suffix)
	resp, err := c.do(ctx, method, route, path, nil)
	if err != nil {
		return err
	}
	return parseResponse(resp, nil)
}
