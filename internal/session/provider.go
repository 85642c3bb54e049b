// Package session owns the client's notion of who is logged in.
//
// A Provider is the single writer of the current user and of the realtime
// channel bound to that user. Everything else reads snapshots. The channel
// is open only while a user is present: it is dialed after a user appears
// and closed before the user is cleared.
package session

import (
	"context"
	stderrors "errors"
	"net/url"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/on-cure/oncare/internal/api"
	"github.com/on-cure/oncare/internal/errors"
	"github.com/on-cure/oncare/internal/log"
	"github.com/on-cure/oncare/internal/metrics"
	"github.com/on-cure/oncare/internal/realtime"
)

const (
	// DefaultSessionTimeout bounds the initial session check.
	DefaultSessionTimeout = 5 * time.Second
	// DefaultDialTimeout bounds the first realtime dial after login.
	DefaultDialTimeout = 15 * time.Second

	DefaultLandingRoute = "/feed"
	DefaultLoginRoute   = "/login"

	tracerName = "github.com/on-cure/oncare/internal/session"
)

// Backend is the subset of the API client the provider needs.
type Backend interface {
	GetSession(ctx context.Context) (*api.User, error)
	Login(ctx context.Context, email, password string) (api.UserPayload, error)
	Register(ctx context.Context, req api.RegisterRequest) (*api.RegisterResponse, error)
	Logout(ctx context.Context) error
}

// Option configures a Provider.
type Option func(*Provider)

// WithDialer enables the realtime channel. Without a dialer the provider
// manages the user only.
func WithDialer(d realtime.Dialer) Option {
	return func(p *Provider) { p.dialer = d }
}

// WithNavigator sets where route changes are sent.
func WithNavigator(n Navigator) Option {
	return func(p *Provider) { p.nav = n }
}

// WithLogger sets the provider logger.
func WithLogger(l *log.Logger) Option {
	return func(p *Provider) { p.logger = l }
}

// WithMetrics records transitions and channel lifecycle.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Provider) { p.metrics = m }
}

// WithSessionTimeout bounds the initial session check.
func WithSessionTimeout(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.sessionTimeout = d
		}
	}
}

// WithDialTimeout bounds how long a login or init waits on the channel dial.
func WithDialTimeout(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.dialTimeout = d
		}
	}
}

// WithRoutes sets the landing route used after login and the login route
// used after logout.
func WithRoutes(landing, login string) Option {
	return func(p *Provider) {
		if landing != "" {
			p.landingRoute = landing
		}
		if login != "" {
			p.loginRoute = login
		}
	}
}

// WithMessageHandler receives realtime messages. It runs on the channel's
// read goroutine and must not block for long.
func WithMessageHandler(h realtime.Handler) Option {
	return func(p *Provider) { p.onMessage = h }
}

// Provider is the session state machine.
type Provider struct {
	backend        Backend
	dialer         realtime.Dialer
	nav            Navigator
	logger         *log.Logger
	metrics        *metrics.Metrics
	tracer         trace.Tracer
	sessionTimeout time.Duration
	dialTimeout    time.Duration
	landingRoute   string
	loginRoute     string
	onMessage      realtime.Handler

	initOnce sync.Once
	ready    chan struct{}

	// opMu serializes state transitions and channel dial/close.
	opMu   sync.Mutex
	closed bool

	mu          sync.RWMutex
	user        *api.User
	loading     bool
	version     uint64
	channel     realtime.Conn
	channelUser int
	channelGen  uint64

	subMu   sync.Mutex
	subs    map[int]chan Snapshot
	nextSub int
}

// NewProvider creates a provider in StateUnknown. Call Initialize once the
// host is ready.
func NewProvider(backend Backend, opts ...Option) *Provider {
	p := &Provider{
		backend:        backend,
		logger:         log.Discard(),
		tracer:         otel.Tracer(tracerName),
		sessionTimeout: DefaultSessionTimeout,
		dialTimeout:    DefaultDialTimeout,
		landingRoute:   DefaultLandingRoute,
		loginRoute:     DefaultLoginRoute,
		ready:          make(chan struct{}),
		loading:        true,
		subs:           make(map[int]chan Snapshot),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.WithComponent("session")
	return p
}

// Snapshot returns the current session view.
func (p *Provider) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snapshotLocked()
}

func (p *Provider) snapshotLocked() Snapshot {
	return Snapshot{
		State:       deriveState(p.user, p.loading),
		User:        copyUser(p.user),
		Loading:     p.loading,
		ChannelOpen: p.channel != nil,
	}
}

// User returns a copy of the current user, or nil.
func (p *Provider) User() *api.User {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return copyUser(p.user)
}

// Loading reports whether the initial session check is still running.
func (p *Provider) Loading() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.loading
}

// Ready is closed once the initial session check has completed.
func (p *Provider) Ready() <-chan struct{} {
	return p.ready
}

// LandingRoute is where a successful login leads.
func (p *Provider) LandingRoute() string { return p.landingRoute }

// LoginRoute is where logout and guards send anonymous users.
func (p *Provider) LoginRoute() string { return p.loginRoute }

// Subscribe returns a channel that receives the latest snapshot after every
// change. Slow readers only see the most recent snapshot. Call cancel to
// stop receiving.
func (p *Provider) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	p.subMu.Lock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = ch
	p.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.subMu.Lock()
			delete(p.subs, id)
			p.subMu.Unlock()
		})
	}
}

func (p *Provider) publish(snap Snapshot) {
	p.subMu.Lock()
	defer p.subMu.Unlock()
	for _, ch := range p.subs {
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}

// commit applies mutate under the state lock, then records the transition
// and notifies subscribers.
func (p *Provider) commit(cause string, mutate func()) {
	p.mu.Lock()
	from := deriveState(p.user, p.loading)
	mutate()
	to := deriveState(p.user, p.loading)
	snap := p.snapshotLocked()
	p.mu.Unlock()

	if from != to {
		p.metrics.RecordTransition(from.String(), to.String(), cause)
		p.logger.Info("session state changed", "from", from.String(), "to", to.String(), "cause", cause)
	}
	p.publish(snap)
}

// Initialize performs the one-time session check. Any failure, including
// the check exceeding the session timeout, leaves the session anonymous;
// Initialize itself never fails. Later calls return the current snapshot.
func (p *Provider) Initialize(ctx context.Context) Snapshot {
	p.initOnce.Do(func() {
		p.initialize(ctx)
	})
	return p.Snapshot()
}

func (p *Provider) initialize(ctx context.Context) {
	ctx, span := p.tracer.Start(ctx, "session.Initialize")
	defer span.End()
	defer close(p.ready)

	p.mu.RLock()
	startVersion := p.version
	p.mu.RUnlock()

	user, err := p.checkSession(ctx)

	outcome := "authenticated"
	switch {
	case err == nil && user == nil:
		outcome = "anonymous"
	case err != nil && errors.HasCode(err, errors.ErrCodeTimeout):
		outcome = "timeout"
	case err != nil && errors.IsUnauthorized(err):
		outcome = "anonymous"
	case err != nil:
		outcome = "error"
	}
	if err != nil {
		user = nil
		p.logger.WithContext(ctx).WithError(err).Info("no active session", "outcome", outcome)
	}
	p.metrics.RecordInitialization(outcome)
	span.SetAttributes(attribute.String("session.outcome", outcome))

	p.opMu.Lock()
	defer p.opMu.Unlock()

	stale := false
	p.commit("initialize", func() {
		// A login or logout that finished during the check wins.
		if p.version == startVersion {
			p.user = copyUser(user)
			p.version++
		} else {
			stale = true
		}
		p.loading = false
	})
	if stale {
		p.logger.Debug("discarding initial session result superseded by a later transition")
		return
	}
	p.reconcileChannelLocked(ctx)
}

func (p *Provider) checkSession(ctx context.Context) (*api.User, error) {
	checkCtx, cancel := context.WithTimeout(ctx, p.sessionTimeout)
	defer cancel()

	type result struct {
		user *api.User
		err  error
	}
	done := make(chan result, 1)
	go func() {
		u, err := p.backend.GetSession(checkCtx)
		done <- result{u, err}
	}()

	select {
	case r := <-done:
		if r.err != nil && stderrors.Is(r.err, context.DeadlineExceeded) {
			return nil, errors.Timeout("session check", r.err)
		}
		return r.user, r.err
	case <-checkCtx.Done():
		return nil, errors.Timeout("session check", checkCtx.Err())
	}
}

// Login authenticates and, on success, stores the user, opens the realtime
// channel and navigates to the landing route with a full reload.
//
// Backend errors are returned unchanged. A successful response that carries
// no user returns (false, nil) and leaves the session untouched.
func (p *Provider) Login(ctx context.Context, email, password string) (bool, error) {
	ctx, span := p.tracer.Start(ctx, "session.Login")
	defer span.End()

	payload, err := p.backend.Login(ctx, email, password)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "login failed")
		p.metrics.RecordError(err)
		return false, err
	}

	if !payload.OK() || payload.User == nil {
		p.logger.WithContext(ctx).Warn("login response carried no user")
		span.SetAttributes(attribute.String("login.payload", payload.Shape.String()))
		return false, nil
	}
	user := payload.User

	p.opMu.Lock()
	p.commit("login", func() {
		p.user = copyUser(user)
		p.version++
	})
	p.reconcileChannelLocked(ctx)
	p.opMu.Unlock()

	span.SetAttributes(attribute.Int("user.id", user.ID))
	p.navigate(Navigation{Path: p.landingRoute, Mode: NavigateFull})
	return true, nil
}

// Register creates an account and navigates to the login route with
// registered=true. The session is not changed.
func (p *Provider) Register(ctx context.Context, req api.RegisterRequest) (*api.RegisterResponse, error) {
	ctx, span := p.tracer.Start(ctx, "session.Register")
	defer span.End()

	resp, err := p.backend.Register(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "register failed")
		return nil, err
	}

	p.navigate(Navigation{
		Path:  p.loginRoute,
		Query: url.Values{"registered": []string{"true"}},
		Mode:  NavigatePush,
	})
	return resp, nil
}

// Logout closes the realtime channel, ends the backend session and clears
// the user, then navigates to the login route replacing the current entry.
//
// The user is cleared even when the backend call fails; that error is
// returned afterwards. A 401 from the backend means there was no session to
// end and is not an error.
func (p *Provider) Logout(ctx context.Context) error {
	ctx, span := p.tracer.Start(ctx, "session.Logout")
	defer span.End()

	p.opMu.Lock()
	p.closeChannelLocked("logout")

	err := p.backend.Logout(ctx)
	if errors.IsUnauthorized(err) {
		// The backend has no session for us: already logged out.
		p.logger.WithContext(ctx).Debug("backend had no session to end")
		err = nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "backend logout failed")
		p.logger.WithContext(ctx).WithError(err).Warn("backend logout failed, clearing local session anyway")
	}

	p.commit("logout", func() {
		p.user = nil
		p.version++
	})
	p.opMu.Unlock()

	p.navigate(Navigation{Path: p.loginRoute, Mode: NavigateReplace})
	return err
}

// Invalidate drops the user without contacting the backend, for example
// after an API call was rejected with 401. It is a no-op when anonymous.
func (p *Provider) Invalidate(reason string) {
	p.opMu.Lock()
	p.mu.RLock()
	hadUser := p.user != nil
	p.mu.RUnlock()
	if !hadUser {
		p.opMu.Unlock()
		return
	}

	p.closeChannelLocked("invalidated")
	p.commit("invalidated", func() {
		p.user = nil
		p.version++
	})
	p.opMu.Unlock()

	p.logger.Warn("session invalidated", "reason", reason)
	p.navigate(Navigation{Path: p.loginRoute, Mode: NavigateReplace})
}

// Close tears the provider down, closing any open channel. The user is kept
// so a final snapshot is still meaningful.
func (p *Provider) Close() error {
	p.opMu.Lock()
	defer p.opMu.Unlock()
	p.closed = true
	p.closeChannelLocked("shutdown")
	return nil
}

// reconcileChannelLocked makes the channel follow the user. Callers hold
// opMu, so at most one dial or close runs at a time.
func (p *Provider) reconcileChannelLocked(ctx context.Context) {
	p.mu.RLock()
	user := p.user
	hasChannel := p.channel != nil
	channelUser := p.channelUser
	p.mu.RUnlock()

	switch {
	case user == nil && hasChannel:
		p.closeChannelLocked("signed_out")
	case user != nil && hasChannel && channelUser != user.ID:
		p.closeChannelLocked("user_changed")
		p.dialLocked(ctx, user.ID)
	case user != nil && !hasChannel:
		p.dialLocked(ctx, user.ID)
	}
}

func (p *Provider) dialLocked(ctx context.Context, userID int) {
	if p.dialer == nil || p.closed {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.dialTimeout)
	defer cancel()
	ctx, span := p.tracer.Start(ctx, "session.OpenChannel")
	defer span.End()

	conn, err := p.dialer.Dial(ctx, p.dispatch)
	p.metrics.RecordChannelOpen(err)
	if err != nil {
		// Best effort: the session stays authenticated without push updates.
		span.RecordError(err)
		p.logger.WithContext(ctx).WithError(err).Warn("realtime channel unavailable")
		return
	}

	var gen uint64
	p.commit("channel_open", func() {
		p.channel = conn
		p.channelUser = userID
		p.channelGen++
		gen = p.channelGen
	})
	p.logger.Debug("realtime channel open", "user_id", userID)

	go p.watchChannel(conn, gen)
}

func (p *Provider) closeChannelLocked(reason string) {
	var conn realtime.Conn
	p.mu.Lock()
	conn = p.channel
	p.channel = nil
	p.channelUser = 0
	p.channelGen++
	snap := p.snapshotLocked()
	p.mu.Unlock()

	if conn == nil {
		return
	}
	if err := conn.Close(); err != nil {
		p.logger.WithError(err).Warn("closing realtime channel")
	}
	p.metrics.RecordChannelClose(reason)
	p.logger.Debug("realtime channel closed", "reason", reason)
	p.publish(snap)
}

// watchChannel clears the handle when the connection ends on its own. A
// close initiated by the provider bumps the generation first, so the
// watcher finds nothing to do.
func (p *Provider) watchChannel(conn realtime.Conn, gen uint64) {
	<-conn.Done()

	p.opMu.Lock()
	defer p.opMu.Unlock()

	p.mu.Lock()
	if p.channelGen != gen || p.channel != conn {
		p.mu.Unlock()
		return
	}
	p.channel = nil
	p.channelUser = 0
	p.channelGen++
	snap := p.snapshotLocked()
	p.mu.Unlock()

	p.metrics.RecordChannelClose("dropped")
	p.logger.WithError(conn.Err()).Warn("realtime channel lost")
	p.publish(snap)
}

func (p *Provider) dispatch(msg realtime.Message) {
	if p.onMessage != nil {
		p.onMessage(msg)
	}
}

func (p *Provider) navigate(n Navigation) {
	if p.nav == nil {
		return
	}
	p.logger.Debug("navigate", "url", n.URL(), "mode", n.Mode.String())
	p.nav.Navigate(n)
}
