package guard

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/on-cure/oncare/internal/api"
	"github.com/on-cure/oncare/internal/errors"
	"github.com/on-cure/oncare/internal/session"
)

var (
	loading   = session.Snapshot{State: session.StateUnknown, Loading: true}
	anonymous = session.Snapshot{State: session.StateAnonymous}
	signedIn  = session.Snapshot{State: session.StateAuthenticated, User: &api.User{ID: 3, FirstName: "Achieng"}}
)

func TestDecide(t *testing.T) {
	assert.Equal(t, Wait, Decide(loading))
	assert.Equal(t, Redirect, Decide(anonymous))
	assert.Equal(t, Render, Decide(signedIn))

	// A user present while loading is still a wait.
	assert.Equal(t, Wait, Decide(session.Snapshot{Loading: true, User: &api.User{ID: 1}}))
}

func TestView(t *testing.T) {
	children := func(u *api.User) string { return "hello " + u.FirstName }

	tests := []struct {
		name string
		mode Mode
		snap session.Snapshot
		want string
	}{
		{"blank waiting", ModeBlank, loading, ""},
		{"blank redirect", ModeBlank, anonymous, ""},
		{"blank render", ModeBlank, signedIn, "hello Achieng"},
		{"loading waiting", ModeLoading, loading, LoadingText},
		{"loading redirect", ModeLoading, anonymous, RedirectingText},
		{"loading render", ModeLoading, signedIn, "hello Achieng"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := New(tt.mode, "/login")
			assert.Equal(t, tt.want, g.View(tt.snap, children))
		})
	}
}

func TestEffect(t *testing.T) {
	g := New(ModeLoading, "/signin")

	_, ok := g.Effect(loading)
	assert.False(t, ok, "loading must never redirect")
	_, ok = g.Effect(signedIn)
	assert.False(t, ok)

	nav, ok := g.Effect(anonymous)
	require.True(t, ok)
	assert.Equal(t, "/signin", nav.Path)
	assert.Equal(t, session.NavigateReplace, nav.Mode)

	nav, _ = Guard{}.Effect(anonymous)
	assert.Equal(t, session.DefaultLoginRoute, nav.Path)
}

type staticSource struct {
	snap  session.Snapshot
	ready chan struct{}
}

func (s *staticSource) Snapshot() session.Snapshot { return s.snap }
func (s *staticSource) Ready() <-chan struct{}     { return s.ready }

func readySource(snap session.Snapshot) *staticSource {
	s := &staticSource{snap: snap, ready: make(chan struct{})}
	close(s.ready)
	return s
}

func TestRequireAuthenticated(t *testing.T) {
	u, err := Require(context.Background(), readySource(signedIn), nil)
	require.NoError(t, err)
	assert.Equal(t, 3, u.ID)
}

func TestRequireAnonymousNavigates(t *testing.T) {
	var got []session.Navigation
	nav := session.NavigatorFunc(func(n session.Navigation) { got = append(got, n) })

	_, err := New(ModeBlank, "/signin").Require(context.Background(), readySource(anonymous), nav)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeNotAuthenticated))
	require.Len(t, got, 1)
	assert.Equal(t, "/signin", got[0].Path)
}

func TestRequireWaitsForReady(t *testing.T) {
	src := &staticSource{snap: loading, ready: make(chan struct{})}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := Require(ctx, src, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
