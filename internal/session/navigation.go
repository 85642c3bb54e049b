package session

import "net/url"

// NavigationMode says how a route change is applied by the host.
type NavigationMode int

const (
	// NavigatePush adds an entry to the history.
	NavigatePush NavigationMode = iota
	// NavigateReplace replaces the current entry.
	NavigateReplace
	// NavigateFull discards client-side state and reloads at the target.
	NavigateFull
)

// String returns the mode name.
func (m NavigationMode) String() string {
	switch m {
	case NavigateReplace:
		return "replace"
	case NavigateFull:
		return "full"
	default:
		return "push"
	}
}

// Navigation is a requested route change.
type Navigation struct {
	Path  string
	Query url.Values
	Mode  NavigationMode
}

// URL returns the path with its encoded query.
func (n Navigation) URL() string {
	if len(n.Query) == 0 {
		return n.Path
	}
	return n.Path + "?" + n.Query.Encode()
}

// Navigator applies route changes requested by the provider and guards.
type Navigator interface {
	Navigate(Navigation)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(Navigation)

// Navigate calls f.
func (f NavigatorFunc) Navigate(n Navigation) { f(n) }
