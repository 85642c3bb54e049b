// Package realtime implements the push channel the backend uses to deliver
// notifications to a logged-in user.
package realtime

import (
	"context"
	"encoding/json"
	"time"

	"github.com/on-cure/oncare/internal/api"
	"github.com/on-cure/oncare/internal/errors"
)

// Message is one frame received from the backend.
type Message struct {
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	ReceivedAt time.Time       `json:"-"`
}

// Notification decodes the payload of a "notification" message.
func (m Message) Notification() (*api.Notification, error) {
	if m.Type != "notification" {
		return nil, errors.New(errors.ErrCodeDecode, "message of type "+m.Type+" is not a notification")
	}
	var n api.Notification
	if err := json.Unmarshal(m.Payload, &n); err != nil {
		return nil, errors.DecodeFailed("notification payload", err)
	}
	return &n, nil
}

// Handler receives messages on the connection's read goroutine. It must not
// call Close on the same connection.
type Handler func(Message)

// Conn is an open realtime channel.
type Conn interface {
	// Close shuts the channel down and returns once its goroutines have
	// exited. It is safe to call more than once.
	Close() error
	// Done is closed when the channel ends, for any reason.
	Done() <-chan struct{}
	// Err is nil while open and after Close; otherwise it reports why the
	// channel ended.
	Err() error
}

// Dialer opens realtime channels.
type Dialer interface {
	Dial(ctx context.Context, handler Handler) (Conn, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, handler Handler) (Conn, error)

// Dial calls f.
func (f DialerFunc) Dial(ctx context.Context, handler Handler) (Conn, error) {
	return f(ctx, handler)
}
