package realtime

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/on-cure/oncare/internal/errors"
	"github.com/on-cure/oncare/internal/log"
)

// RetryPolicy bounds reconnection attempts.
type RetryPolicy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// MaxAttempts counts dials per outage, including the first. Zero means 5.
	MaxAttempts uint
}

func (p RetryPolicy) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	return b
}

func (p RetryPolicy) attempts() uint {
	if p.MaxAttempts == 0 {
		return 5
	}
	return p.MaxAttempts
}

// ResilientDialer retries failed dials with exponential backoff and redials
// connections that drop. Rejected handshakes (401/403) are not retried.
type ResilientDialer struct {
	Dialer Dialer
	Policy RetryPolicy
	Logger *log.Logger
}

// Dial opens a supervised channel. The returned Conn stays open across
// reconnects and ends only on Close or when a reconnect gives up.
func (r *ResilientDialer) Dial(ctx context.Context, handler Handler) (Conn, error) {
	logger := r.Logger
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent("realtime")

	first, err := r.dialWithRetry(ctx, handler, logger)
	if err != nil {
		return nil, err
	}

	superviseCtx, cancel := context.WithCancel(context.Background())
	s := &supervisedConn{
		current: first,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go s.supervise(superviseCtx, func(ctx context.Context) (Conn, error) {
		return r.dialWithRetry(ctx, handler, logger)
	}, logger)
	return s, nil
}

func (r *ResilientDialer) dialWithRetry(ctx context.Context, handler Handler, logger *log.Logger) (Conn, error) {
	op := func() (Conn, error) {
		conn, err := r.Dialer.Dial(ctx, handler)
		if err != nil && rejected(err) {
			return nil, backoff.Permanent(err)
		}
		return conn, err
	}

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(r.Policy.backOff()),
		backoff.WithMaxTries(r.Policy.attempts()),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.Warn("realtime dial failed, retrying", "error", err, "retry_in", next)
		}),
	)
}

func rejected(err error) bool {
	switch errors.StatusOf(err) {
	case http.StatusUnauthorized, http.StatusForbidden:
		return true
	default:
		return false
	}
}

type supervisedConn struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	current Conn
	closed  bool
	err     error
}

func (s *supervisedConn) supervise(ctx context.Context, redial func(context.Context) (Conn, error), logger *log.Logger) {
	defer close(s.done)

	for {
		s.mu.Lock()
		conn := s.current
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			_ = conn.Close()
			return
		case <-conn.Done():
		}

		if ctx.Err() != nil {
			return
		}
		cause := conn.Err()
		logger.Warn("realtime channel dropped, reconnecting", "error", cause)

		next, err := redial(ctx)
		if err != nil {
			s.mu.Lock()
			if !s.closed {
				s.err = err
			}
			s.mu.Unlock()
			return
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			_ = next.Close()
			return
		}
		s.current = next
		s.mu.Unlock()
		logger.Info("realtime channel reconnected")
	}
}

func (s *supervisedConn) Close() error {
	s.mu.Lock()
	s.closed = true
	conn := s.current
	s.mu.Unlock()

	s.cancel()
	_ = conn.Close()
	<-s.done
	return nil
}

func (s *supervisedConn) Done() <-chan struct{} { return s.done }

func (s *supervisedConn) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
