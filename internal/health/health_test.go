package health

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/on-cure/oncare/internal/api"
	"github.com/on-cure/oncare/internal/config"
	"github.com/on-cure/oncare/internal/errors"
	"github.com/on-cure/oncare/internal/realtime"
)

type sessionFunc func(ctx context.Context) (*api.User, error)

func (f sessionFunc) GetSession(ctx context.Context) (*api.User, error) { return f(ctx) }

type closedConn struct{ done chan struct{} }

func (c closedConn) Close() error { return nil }
func (c closedConn) Done() <-chan struct{} { return c.done }
func (c closedConn) Err() error { return nil }

func static(name string, status Status) Checker {
	return CheckerFunc{CheckName: name, Fn: func(context.Context) *Result {
		return NewResult(status, name)
	}}
}

func TestManagerRunsAllCheckers(t *testing.T) {
	m := NewManager()
	m.AddChecker(static("a", StatusHealthy), static("b", StatusDegraded))

	results := m.Check(context.Background())
	require.Len(t, results, 2)
	assert.Equal(t, StatusHealthy, results["a"].Status)
	assert.Equal(t, StatusDegraded, results["b"].Status)
	assert.Equal(t, []string{"a", "b"}, m.CheckNames())
}

func TestManagerTimesOutSlowChecks(t *testing.T) {
	m := NewManager().WithTimeout(20 * time.Millisecond)
	m.AddChecker(CheckerFunc{CheckName: "slow", Fn: func(ctx context.Context) *Result {
		<-ctx.Done()
		return Healthy("finished")
	}})

	results := m.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, results["slow"].Status)
	assert.Equal(t, "check timed out", results["slow"].Message)
	assert.Greater(t, int64(results["slow"].Latency), int64(0))
}

func TestManagerNilResult(t *testing.T) {
	m := NewManager()
	m.AddChecker(CheckerFunc{CheckName: "nil", Fn: func(context.Context) *Result { return nil }})
	assert.Equal(t, StatusUnhealthy, m.Check(context.Background())["nil"].Status)
}

func TestOverallStatus(t *testing.T) {
	tests := []struct {
		name     string
		statuses []Status
		want     Status
	}{
		{"empty", nil, StatusHealthy},
		{"all healthy", []Status{StatusHealthy, StatusHealthy}, StatusHealthy},
		{"one degraded", []Status{StatusHealthy, StatusDegraded}, StatusDegraded},
		{"unhealthy wins", []Status{StatusDegraded, StatusUnhealthy}, StatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results := map[string]*Result{}
			for i, s := range tt.statuses {
				results[string(rune('a'+i))] = NewResult(s, "")
			}
			assert.Equal(t, tt.want, OverallStatus(results))
		})
	}
}

func TestConfigCheck(t *testing.T) {
	cfg := config.Default()
	assert.Equal(t, StatusHealthy, ConfigCheck(cfg, "/tmp/config.yaml").Check(context.Background()).Status)

	cfg.API.BaseURL = "not-a-url"
	res := ConfigCheck(cfg, "/tmp/config.yaml").Check(context.Background())
	assert.Equal(t, StatusUnhealthy, res.Status)
	assert.Equal(t, "/tmp/config.yaml", res.Details["path"])
}

func TestBackendCheck(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Status
	}{
		{"session", nil, StatusHealthy},
		{"unauthorized", errors.StatusError(http.StatusUnauthorized, "no session"), StatusHealthy},
		{"server error", errors.StatusError(http.StatusBadGateway, "bad gateway"), StatusDegraded},
		{"unreachable", errors.NetworkFailure("http://localhost:1", context.DeadlineExceeded), StatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := sessionFunc(func(context.Context) (*api.User, error) {
				if tt.err != nil {
					return nil, tt.err
				}
				return &api.User{ID: 1}, nil
			})
			assert.Equal(t, tt.want, BackendCheck(src, "http://backend").Check(context.Background()).Status)
		})
	}
}

func TestSessionCheck(t *testing.T) {
	anon := sessionFunc(func(context.Context) (*api.User, error) {
		return nil, errors.StatusError(http.StatusUnauthorized, "no session")
	})
	assert.Equal(t, StatusDegraded, SessionCheck(anon).Check(context.Background()).Status)

	user := sessionFunc(func(context.Context) (*api.User, error) {
		return &api.User{ID: 4, FirstName: "Achieng", LastName: "Odhiambo"}, nil
	})
	res := SessionCheck(user).Check(context.Background())
	assert.Equal(t, StatusHealthy, res.Status)
	assert.Equal(t, "logged in as Achieng Odhiambo", res.Message)
	assert.Equal(t, 4, res.Details["user_id"])
}

func TestRealtimeCheck(t *testing.T) {
	assert.Equal(t, StatusDegraded, RealtimeCheck(nil, "").Check(context.Background()).Status)

	failing := realtime.DialerFunc(func(context.Context, realtime.Handler) (realtime.Conn, error) {
		return nil, errors.ChannelDial("ws://backend/ws", context.DeadlineExceeded)
	})
	assert.Equal(t, StatusDegraded, RealtimeCheck(failing, "ws://backend/ws").Check(context.Background()).Status)

	ok := realtime.DialerFunc(func(context.Context, realtime.Handler) (realtime.Conn, error) {
		return closedConn{done: make(chan struct{})}, nil
	})
	assert.Equal(t, StatusHealthy, RealtimeCheck(ok, "ws://backend/ws").Check(context.Background()).Status)
}
