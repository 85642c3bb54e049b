package session

import "github.com/on-cure/oncare/internal/api"

// State is the authentication state of the provider.
type State int

const (
	// StateUnknown holds until the initial session check completes.
	StateUnknown State = iota
	StateAnonymous
	StateAuthenticated
)

// String returns the lower-case state name used in logs and metrics.
func (s State) String() string {
	switch s {
	case StateAnonymous:
		return "anonymous"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// Snapshot is a consistent, read-only view of the session.
type Snapshot struct {
	State State
	// User is a copy; mutating it does not affect the provider.
	User        *api.User
	Loading     bool
	ChannelOpen bool
}

// Authenticated reports whether a user is present.
func (s Snapshot) Authenticated() bool {
	return s.User != nil
}

func deriveState(user *api.User, loading bool) State {
	switch {
	case user != nil:
		return StateAuthenticated
	case loading:
		return StateUnknown
	default:
		return StateAnonymous
	}
}

func copyUser(u *api.User) *api.User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}
