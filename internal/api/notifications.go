package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/on-cure/oncare/internal/errors"
)

// Notification types produced by the backend.
const (
	NotificationFollow           = "follow"
	NotificationFollowRequest    = "follow_request"
	NotificationGroupInvitation  = "group_invitation"
	NotificationGroupJoinRequest = "group_join_request"
	NotificationLike             = "like"
	NotificationComment          = "comment"
)

// Notification is an entry in the user's notification feed.
type Notification struct {
	ID        int       `json:"id"`
	UserID    int       `json:"user_id"`
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	RelatedID int       `json:"related_id,omitempty"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}

// Actionable reports whether the notification asks the user to accept or
// decline something.
func (n Notification) Actionable() bool {
	switch n.Type {
	case NotificationFollowRequest, NotificationGroupInvitation, NotificationGroupJoinRequest:
		return true
	default:
		return false
	}
}

// ListNotifications returns a page of notifications, newest first. page
// starts at 1; zero values use the backend defaults.
func (c *Client) ListNotifications(ctx context.Context, page, limit int) ([]Notification, error) {
	q := url.Values{}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/api/notifications"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	resp, err := c.do(ctx, http.MethodGet, "/api/notifications", path, nil)
	if err != nil {
		return nil, err
	}

	var out []Notification
	if err := parseResponse(resp, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []Notification{}
	}
	return out, nil
}

// MarkNotificationRead marks one notification as read.
func (c *Client) MarkNotificationRead(ctx context.Context, id int) error {
	if id <= 0 {
		return errors.New(errors.ErrCodeFieldRequired, fmt.Sprintf("invalid notification id %d", id))
	}
	body := map[string]int{"notification_id": id}
	resp, err := c.do(ctx, http.MethodPut, "/api/notifications/read", "/api/notifications/read", body)
	if err != nil {
		return err
	}
	return parseResponse(resp, nil)
}

// MarkAllNotificationsRead marks every notification as read.
func (c *Client) MarkAllNotificationsRead(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodPut, "/api/notifications/read-all", "/api/notifications/read-all", nil)
	if err != nil {
		return err
	}
	return parseResponse(resp, nil)
}

// UnreadNotificationCount returns the number of unread notifications.
func (c *Client) UnreadNotificationCount(ctx context.Context) (int, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/notifications/unread-count", "/api/notifications/unread-count", nil)
	if err != nil {
		return 0, err
	}

	var out struct {
		Count int `json:"count"`
	}
	if err := parseResponse(resp, &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}
