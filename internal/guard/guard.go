// Package guard gates protected views on the session state.
package guard

import (
	"context"

	"github.com/on-cure/oncare/internal/api"
	"github.com/on-cure/oncare/internal/errors"
	"github.com/on-cure/oncare/internal/session"
)

const (
	LoadingText     = "Checking authentication..."
	RedirectingText = "Redirecting..."
)

// Decision is what a guard does with a snapshot.
type Decision int

const (
	// Wait while the initial session check runs. Never redirects.
	Wait Decision = iota
	Render
	Redirect
)

func (d Decision) String() string {
	switch d {
	case Render:
		return "render"
	case Redirect:
		return "redirect"
	default:
		return "wait"
	}
}

// Decide maps a snapshot to a decision.
func Decide(s session.Snapshot) Decision {
	switch {
	case s.Loading:
		return Wait
	case s.User == nil:
		return Redirect
	default:
		return Render
	}
}

// Mode controls what a guard shows before it renders the protected view.
type Mode int

const (
	// ModeBlank shows nothing until the user is known.
	ModeBlank Mode = iota
	// ModeLoading shows a loading message while waiting and a redirect
	// message while the redirect is pending.
	ModeLoading
)

// Guard wraps a protected view.
type Guard struct {
	Mode       Mode
	LoginRoute string
}

// New returns a guard that redirects to loginRoute.
func New(mode Mode, loginRoute string) Guard {
	return Guard{Mode: mode, LoginRoute: loginRoute}
}

func (g Guard) loginRoute() string {
	if g.LoginRoute == "" {
		return session.DefaultLoginRoute
	}
	return g.LoginRoute
}

// View renders children for an authenticated snapshot. Otherwise it
// returns the placeholder for the guard's mode.
func (g Guard) View(s session.Snapshot, children func(*api.User) string) string {
	switch Decide(s) {
	case Render:
		return children(s.User)
	case Wait:
		if g.Mode == ModeLoading {
			return LoadingText
		}
	case Redirect:
		if g.Mode == ModeLoading {
			return RedirectingText
		}
	}
	return ""
}

// Effect returns the navigation to perform for s, if any. Hosts apply it
// after rendering.
func (g Guard) Effect(s session.Snapshot) (session.Navigation, bool) {
	if Decide(s) != Redirect {
		return session.Navigation{}, false
	}
	return session.Navigation{Path: g.loginRoute(), Mode: session.NavigateReplace}, true
}

// Source is what Require reads the session from. *session.Provider
// satisfies it.
type Source interface {
	Snapshot() session.Snapshot
	Ready() <-chan struct{}
}

// Require waits for the initial session check and returns the current
// user. When there is none it navigates to the login route (if nav is
// non-nil) and returns a SESSION-002 error.
func Require(ctx context.Context, src Source, nav session.Navigator) (*api.User, error) {
	select {
	case <-src.Ready():
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	snap := src.Snapshot()
	if Decide(snap) == Render {
		return snap.User, nil
	}
	if nav != nil {
		nav.Navigate(session.Navigation{Path: session.DefaultLoginRoute, Mode: session.NavigateReplace})
	}
	return nil, errors.NotAuthenticated()
}

// Require is the package-level Require using the guard's login route.
func (g Guard) Require(ctx context.Context, src Source, nav session.Navigator) (*api.User, error) {
	if nav == nil {
		return Require(ctx, src, nil)
	}
	return Require(ctx, src, session.NavigatorFunc(func(n session.Navigation) {
		n.Path = g.loginRoute()
		nav.Navigate(n)
	}))
}
