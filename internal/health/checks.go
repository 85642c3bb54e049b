package health

import (
	"context"

	"github.com/on-cure/oncare/internal/api"
	"github.com/on-cure/oncare/internal/config"
	"github.com/on-cure/oncare/internal/errors"
	"github.com/on-cure/oncare/internal/realtime"
)

// SessionSource is the backend call the session checks use.
type SessionSource interface {
	GetSession(ctx context.Context) (*api.User, error)
}

// ConfigCheck validates the loaded configuration.
func ConfigCheck(cfg *config.Config, path string) Checker {
	return CheckerFunc{CheckName: "config", Fn: func(context.Context) *Result {
		if err := cfg.Validate(); err != nil {
			return Unhealthy(err.Error()).WithDetail("path", path)
		}
		return Healthy("configuration is valid").
			WithDetail("path", path).
			WithDetail("api", cfg.API.BaseURL)
	}}
}

// BackendCheck reports whether the backend answers the session endpoint at
// all. A 401 still proves the backend is reachable.
func BackendCheck(src SessionSource, baseURL string) Checker {
	return CheckerFunc{CheckName: "backend", Fn: func(ctx context.Context) *Result {
		_, err := src.GetSession(ctx)
		switch {
		case err == nil, errors.IsUnauthorized(err), errors.HasCode(err, errors.ErrCodeMalformedUser):
			return Healthy("backend is reachable").WithDetail("url", baseURL)
		case errors.StatusOf(err) >= 500:
			return Degraded(err.Error()).WithDetail("status", errors.StatusOf(err))
		default:
			return Unhealthy(err.Error()).WithDetail("url", baseURL)
		}
	}}
}

// SessionCheck reports whether the stored cookie still names a user.
func SessionCheck(src SessionSource) Checker {
	return CheckerFunc{CheckName: "session", Fn: func(ctx context.Context) *Result {
		u, err := src.GetSession(ctx)
		if err != nil || u == nil {
			return Degraded("not logged in")
		}
		return Healthy("logged in as " + u.DisplayName()).WithDetail("user_id", u.ID)
	}}
}

// RealtimeCheck opens and closes the realtime channel. A nil dialer means
// the channel is disabled.
func RealtimeCheck(d realtime.Dialer, url string) Checker {
	return CheckerFunc{CheckName: "realtime", Fn: func(ctx context.Context) *Result {
		if d == nil {
			return Degraded("realtime channel disabled")
		}
		conn, err := d.Dial(ctx, func(realtime.Message) {})
		if err != nil {
			return Degraded(err.Error()).WithDetail("url", url)
		}
		_ = conn.Close()
		return Healthy("realtime channel accepted the connection").WithDetail("url", url)
	}}
}
