// Package tui is the interactive terminal front end: a login form and the
// guarded feed and notification views, driven by the session provider.
package tui

import (
	"context"
	"net/url"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"

	"github.com/on-cure/oncare/internal/api"
	"github.com/on-cure/oncare/internal/guard"
	"github.com/on-cure/oncare/internal/realtime"
	"github.com/on-cure/oncare/internal/session"
	"github.com/on-cure/oncare/internal/tokenomics"
)

// Routes rendered by the program.
const (
	RouteLogin         = "/login"
	RouteFeed          = "/feed"
	RouteNotifications = "/notifications"
)

const (
	notificationPageSize = 20
	feedPageSize         = 10
	maxLiveMessages      = 10
)

// Session is the part of the session provider the UI drives.
type Session interface {
	Snapshot() session.Snapshot
	Subscribe() (<-chan session.Snapshot, func())
	Login(ctx context.Context, email, password string) (bool, error)
	Logout(ctx context.Context) error
}

// Backend supplies the data shown in the guarded views.
type Backend interface {
	GetProfile(ctx context.Context, userID int) (*api.User, error)
	FollowCounts(ctx context.Context, userID int) (*api.FollowCounts, error)
	ListPosts(ctx context.Context, page, limit int) ([]api.Post, error)
	ListNotifications(ctx context.Context, page, limit int) ([]api.Notification, error)
	MarkAllNotificationsRead(ctx context.Context) error
}

// Options configures a Model.
type Options struct {
	Session Session
	Backend Backend
	// Ledger is optional; when set the feed header shows the wallet balance.
	Ledger tokenomics.Ledger
	// Route is the first route shown. Defaults to the feed.
	Route string
}

type keyMap struct {
	Quit          key.Binding
	Feed          key.Binding
	Notifications key.Binding
	Refresh       key.Binding
	Logout        key.Binding
	MarkAllRead   key.Binding
	Up            key.Binding
	Down          key.Binding
}

var keys = keyMap{
	Quit:          key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	Feed:          key.NewBinding(key.WithKeys("f", "esc"), key.WithHelp("f", "feed")),
	Notifications: key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "notifications")),
	Refresh:       key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
	Logout:        key.NewBinding(key.WithKeys("o"), key.WithHelp("o", "log out")),
	MarkAllRead:   key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "mark all read")),
	Up:            key.NewBinding(key.WithKeys("k", "up")),
	Down:          key.NewBinding(key.WithKeys("j", "down")),
}

// loginFields is shared with the huh form, which writes through pointers.
type loginFields struct {
	Email    string
	Password string
}

// Model represents the TUI application state
type Model struct {
	ctx     context.Context
	sess    Session
	backend Backend
	ledger  tokenomics.Ledger
	styles  Styles
	spinner spinner.Model

	snapshots   <-chan session.Snapshot
	unsubscribe func()
	snap        session.Snapshot

	route string
	query url.Values

	form      *huh.Form
	fields    *loginFields
	loggingIn bool
	loginErr  string

	profile       *api.User
	counts        *api.FollowCounts
	balance       *tokenomics.Balance
	posts         []api.Post
	notifications []api.Notification
	loaded        bool
	live          []realtime.Message
	selected      int
	lastErr       string

	width    int
	height   int
	quitting bool
}

// New creates the model and subscribes it to session changes.
func New(ctx context.Context, opts Options) Model {
	ch, cancel := opts.Session.Subscribe()
	route := opts.Route
	if route == "" {
		route = RouteFeed
	}

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	m := Model{
		ctx:         ctx,
		sess:        opts.Session,
		backend:     opts.Backend,
		ledger:      opts.Ledger,
		styles:      DefaultStyles(),
		spinner:     sp,
		snapshots:   ch,
		unsubscribe: cancel,
		snap:        opts.Session.Snapshot(),
		route:       route,
		query:       url.Values{},
		fields:      &loginFields{},
	}
	return m
}

// Route returns the current route.
func (m Model) Route() string { return m.route }

// Close releases the session subscription.
func (m Model) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
}

// Init starts the spinner, the session subscription and the first route.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		waitForSnapshot(m.snapshots),
		func() tea.Msg {
			return NavigateMsg{Navigation: session.Navigation{Path: m.route, Mode: session.NavigateReplace}}
		},
	)
}

// Messages produced by commands.

type snapshotMsg struct{ snap session.Snapshot }

type loginResultMsg struct {
	ok  bool
	err error
}

type logoutResultMsg struct{ err error }

type feedMsg struct {
	profile *api.User
	counts  *api.FollowCounts
	balance *tokenomics.Balance
	posts   []api.Post
}

type notificationsMsg struct{ items []api.Notification }

type markedAllReadMsg struct{}

type errMsg struct{ err error }

func waitForSnapshot(ch <-chan session.Snapshot) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		snap, ok := <-ch
		if !ok {
			return nil
		}
		return snapshotMsg{snap: snap}
	}
}

// Update handles messages and updates the model state (required by Bubble Tea)
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case snapshotMsg:
		m.snap = msg.snap
		next, cmd := m.enforceGuard()
		return next, tea.Batch(cmd, waitForSnapshot(m.snapshots))

	case NavigateMsg:
		return m.navigate(msg.Navigation)

	case PushMsg:
		return m.receive(msg.Message), nil

	case loginResultMsg:
		m.loggingIn = false
		switch {
		case msg.err != nil:
			m.loginErr = msg.err.Error()
		case !msg.ok:
			m.loginErr = "Login failed: the server response did not include a user"
		default:
			m.loginErr = ""
			return m, nil
		}
		m.fields.Password = ""
		m.form = newLoginForm(m.fields)
		return m, m.form.Init()

	case logoutResultMsg:
		if msg.err != nil {
			m.lastErr = "Logged out locally; server said: " + msg.err.Error()
		}
		return m, nil

	case feedMsg:
		m.profile = msg.profile
		m.counts = msg.counts
		m.balance = msg.balance
		m.posts = msg.posts
		return m, nil

	case notificationsMsg:
		m.notifications = msg.items
		m.loaded = true
		if m.selected >= len(m.notifications) {
			m.selected = 0
		}
		return m, nil

	case markedAllReadMsg:
		for i := range m.notifications {
			m.notifications[i].IsRead = true
		}
		return m, nil

	case errMsg:
		m.lastErr = msg.err.Error()
		return m, nil

	case tea.KeyMsg:
		return m.handleKeyPress(msg)
	}

	if m.route == RouteLogin && m.form != nil {
		return m.updateForm(msg)
	}
	return m, nil
}

func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		m.quitting = true
		return m, tea.Quit
	}
	if m.route == RouteLogin {
		if msg.String() == "esc" {
			m.quitting = true
			return m, tea.Quit
		}
		return m.updateForm(msg)
	}

	switch {
	case key.Matches(msg, keys.Quit):
		m.quitting = true
		return m, tea.Quit
	case key.Matches(msg, keys.Notifications):
		return m.navigate(session.Navigation{Path: RouteNotifications, Mode: session.NavigatePush})
	case key.Matches(msg, keys.Feed):
		return m.navigate(session.Navigation{Path: RouteFeed, Mode: session.NavigatePush})
	case key.Matches(msg, keys.Refresh):
		return m, m.load()
	case key.Matches(msg, keys.Logout):
		return m, m.logout()
	case key.Matches(msg, keys.MarkAllRead):
		if m.route == RouteNotifications {
			return m, m.markAllRead()
		}
	case key.Matches(msg, keys.Up):
		if m.selected > 0 {
			m.selected--
		}
	case key.Matches(msg, keys.Down):
		if m.selected < len(m.notifications)-1 {
			m.selected++
		}
	}
	return m, nil
}

func (m Model) updateForm(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.form == nil || m.loggingIn {
		return m, nil
	}
	next, cmd := m.form.Update(msg)
	if f, ok := next.(*huh.Form); ok {
		m.form = f
	}
	if m.form.State == huh.StateCompleted {
		m.loggingIn = true
		return m, tea.Batch(cmd, m.login(), m.spinner.Tick)
	}
	return m, cmd
}

// navigate applies a route change. A full navigation drops every cached
// view so the landing route starts from a clean slate.
func (m Model) navigate(n session.Navigation) (tea.Model, tea.Cmd) {
	if n.Mode == session.NavigateFull {
		m.profile = nil
		m.counts = nil
		m.balance = nil
		m.posts = nil
		m.notifications = nil
		m.loaded = false
		m.live = nil
		m.selected = 0
		m.lastErr = ""
		m.snap = m.sess.Snapshot()
	}

	m.route = n.Path
	m.query = n.Query
	if m.query == nil {
		m.query = url.Values{}
	}

	if m.route == RouteLogin {
		m.loggingIn = false
		m.fields.Password = ""
		m.form = newLoginForm(m.fields)
		return m, m.form.Init()
	}
	m.form = nil
	return m.enforceGuard()
}

func guardFor(route string) (guard.Guard, bool) {
	switch route {
	case RouteFeed:
		return guard.New(guard.ModeLoading, RouteLogin), true
	case RouteNotifications:
		return guard.New(guard.ModeBlank, RouteLogin), true
	default:
		return guard.Guard{}, false
	}
}

// enforceGuard redirects away from a protected route once the session is
// known to be anonymous, and loads the route's data once it may render.
func (m Model) enforceGuard() (tea.Model, tea.Cmd) {
	g, protected := guardFor(m.route)
	if !protected {
		return m, nil
	}
	if nav, redirect := g.Effect(m.snap); redirect {
		return m.navigate(nav)
	}
	if guard.Decide(m.snap) == guard.Render && !m.hasData() {
		return m, m.load()
	}
	return m, nil
}

func (m Model) hasData() bool {
	switch m.route {
	case RouteFeed:
		return m.profile != nil
	case RouteNotifications:
		return m.loaded
	}
	return true
}

func (m Model) receive(msg realtime.Message) Model {
	m.live = append([]realtime.Message{msg}, m.live...)
	if len(m.live) > maxLiveMessages {
		m.live = m.live[:maxLiveMessages]
	}
	if n, err := msg.Notification(); err == nil {
		m.notifications = append([]api.Notification{*n}, m.notifications...)
	}
	return m
}

func (m Model) login() tea.Cmd {
	ctx, sess := m.ctx, m.sess
	email, password := m.fields.Email, m.fields.Password
	return func() tea.Msg {
		ok, err := sess.Login(ctx, email, password)
		return loginResultMsg{ok: ok, err: err}
	}
}

func (m Model) logout() tea.Cmd {
	ctx, sess := m.ctx, m.sess
	return func() tea.Msg {
		return logoutResultMsg{err: sess.Logout(ctx)}
	}
}

func (m Model) load() tea.Cmd {
	ctx, backend, ledger := m.ctx, m.backend, m.ledger
	if backend == nil {
		return nil
	}
	switch m.route {
	case RouteFeed:
		return func() tea.Msg {
			profile, err := backend.GetProfile(ctx, 0)
			if err != nil {
				return errMsg{err}
			}
			out := feedMsg{profile: profile}
			if counts, err := backend.FollowCounts(ctx, 0); err == nil {
				out.counts = counts
			}
			if posts, err := backend.ListPosts(ctx, 1, feedPageSize); err == nil {
				out.posts = posts
			}
			if ledger != nil {
				if b, err := ledger.Balance(ctx); err == nil {
					out.balance = &b
				}
			}
			return out
		}
	case RouteNotifications:
		return func() tea.Msg {
			items, err := backend.ListNotifications(ctx, 1, notificationPageSize)
			if err != nil {
				return errMsg{err}
			}
			return notificationsMsg{items: items}
		}
	}
	return nil
}

func (m Model) markAllRead() tea.Cmd {
	ctx, backend := m.ctx, m.backend
	return func() tea.Msg {
		if err := backend.MarkAllNotificationsRead(ctx); err != nil {
			return errMsg{err}
		}
		return markedAllReadMsg{}
	}
}

func newLoginForm(f *loginFields) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Key("email").
				Title("Email").
				Placeholder("you@example.com").
				Value(&f.Email).
				Validate(required("email")),
			huh.NewInput().
				Key("password").
				Title("Password").
				EchoMode(huh.EchoModePassword).
				Value(&f.Password).
				Validate(required("password")),
		),
	).WithShowHelp(false)
}
