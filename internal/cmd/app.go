package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"

	"github.com/on-cure/oncare/internal/api"
	"github.com/on-cure/oncare/internal/config"
	"github.com/on-cure/oncare/internal/cookiestore"
	"github.com/on-cure/oncare/internal/errors"
	"github.com/on-cure/oncare/internal/guard"
	"github.com/on-cure/oncare/internal/log"
	"github.com/on-cure/oncare/internal/metrics"
	"github.com/on-cure/oncare/internal/realtime"
	"github.com/on-cure/oncare/internal/session"
	"github.com/on-cure/oncare/internal/telemetry"
	"github.com/on-cure/oncare/internal/tokenomics"
	"github.com/on-cure/oncare/internal/tui"
	"github.com/on-cure/oncare/internal/version"
)

const (
	keepaliveInterval = 30 * time.Second
	inboxSize         = 64
)

// App is the composition root for one command invocation: the session
// provider and everything it depends on.
type App struct {
	Home     string
	Config   *config.Config
	Logger   *log.Logger
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Jar      *cookiestore.Jar
	Client   *api.Client
	Session  *session.Provider
	Ledger   tokenomics.Ledger
	Nav      *recordingNavigator
	// Bridge is set for the interactive UI; navigations and realtime
	// messages go to the program instead of Nav and Inbox.
	Bridge   *tui.Bridge
	Inbox    chan realtime.Message

	span              trace.Span
	shutdownTelemetry func(context.Context) error
	logFile           io.Closer
}

// current is the App of the running command.
var current *App

func app() *App {
	return current
}

type appOptions struct {
	realtime bool
	tui      bool
}

func setupApp(cmd *cobra.Command, _ []string) error {
	if cmd.Annotations[annotationNoApp] == "true" {
		return nil
	}

	opts := appOptions{
		realtime: cmd.Annotations[annotationRealtime] == "true",
		tui:      cmd.Annotations[annotationTUI] == "true",
	}
	a, err := newApp(cmd.Context(), opts)
	if err != nil {
		return err
	}
	current = a

	ctx, span := telemetry.StartCommandSpan(cmd.Context(), cmd.CommandPath())
	a.span = span
	cmd.SetContext(ctx)
	return nil
}

// loadConfig reads the configuration for the selected home directory and
// applies command-line overrides.
func loadConfig() (string, *config.Config, error) {
	home := rootFlags.home
	if home == "" {
		var err error
		if home, err = config.HomeDir(); err != nil {
			return "", nil, errors.Wrap(errors.ErrCodeConfigLoad, "cannot locate home directory", err)
		}
	}

	cfg, err := config.Load(home)
	if err != nil {
		return "", nil, err
	}

	if rootFlags.apiURL != "" {
		cfg.API.BaseURL = rootFlags.apiURL
	}
	if rootFlags.logLevel != "" {
		cfg.Logging.Level = rootFlags.logLevel
	}
	if rootFlags.verbose {
		cfg.Logging.Level = "debug"
	}
	if rootFlags.logFormat != "" {
		cfg.Logging.Format = rootFlags.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return "", nil, err
	}
	return home, cfg, nil
}

// newLogger builds the command logger. The interactive UI owns the
// terminal, so it logs errors only, to a file under home. The returned
// closer is nil when logging goes to stderr.
func newLogger(cfg *config.Config, home string, tui bool) (*log.Logger, io.Closer, error) {
	level, err := log.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, nil, errors.ConfigInvalid("logging.level", err.Error())
	}

	lc := log.DefaultConfig()
	lc.Level = level
	if rootFlags.debug {
		lc = log.DebugConfig()
	}

	var closer io.Closer
	if tui {
		path := config.UILogPath(home)
		if err := os.MkdirAll(home, 0o700); err != nil {
			return nil, nil, errors.FileWrite(path, err)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, nil, errors.FileWrite(path, err)
		}
		quiet := log.QuietConfig(f)
		if rootFlags.debug {
			quiet.Level = lc.Level
			quiet.AddSource = lc.AddSource
		}
		lc, closer = quiet, f
	}

	lc.Format = log.ParseFormat(cfg.Logging.Format)
	lc.ServiceVersion = version.Version
	return log.New(lc), closer, nil
}

func newApp(ctx context.Context, opts appOptions) (*App, error) {
	home, cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logger, logFile, err := newLogger(cfg, home, opts.tui)
	if err != nil {
		return nil, err
	}

	shutdown, err := telemetry.InitProvider(ctx, telemetry.FromConfig(cfg.Telemetry))
	if err != nil {
		logger.WithError(err).Warn("tracing disabled")
		shutdown = func(context.Context) error { return nil }
	}

	registry, m := metrics.NewRegistry()

	jar, err := cookiestore.Open(config.CookiePath(home))
	if err != nil {
		return nil, err
	}

	clientOpts := []api.Option{
		api.WithJar(jar),
		api.WithTimeout(cfg.API.Timeout),
		api.WithLogger(logger),
		api.WithMetrics(m),
	}
	if cfg.API.WebSocketURL != "" {
		clientOpts = append(clientOpts, api.WithWebSocketURL(cfg.API.WebSocketURL))
	}
	if cfg.API.ValidateContract {
		contract, err := api.LoadContract(ctx, cfg.API.BaseURL)
		if err != nil {
			return nil, err
		}
		clientOpts = append(clientOpts, api.WithContract(contract))
	}
	client, err := api.NewClient(cfg.API.BaseURL, clientOpts...)
	if err != nil {
		return nil, err
	}
	// Same value as the X-Client-ID request header.
	logger = logger.With("client_id", client.ClientID())

	a := &App{
		Home:              home,
		Config:            cfg,
		Logger:            logger,
		Registry:          registry,
		Metrics:           m,
		Jar:               jar,
		Client:            client,
		Nav:               &recordingNavigator{logger: logger},
		Inbox:             make(chan realtime.Message, inboxSize),
		shutdownTelemetry: shutdown,
		logFile:           logFile,
	}

	var nav session.Navigator = a.Nav
	if opts.tui {
		a.Bridge = tui.NewBridge()
		nav = a.Bridge
	}

	sessionOpts := []session.Option{
		session.WithLogger(logger),
		session.WithMetrics(m),
		session.WithSessionTimeout(cfg.API.SessionTimeout),
		session.WithRoutes(cfg.Routes.Landing, cfg.Routes.Login),
		session.WithNavigator(nav),
		session.WithMessageHandler(a.dispatch),
	}
	if opts.realtime && cfg.Realtime.Enabled {
		sessionOpts = append(sessionOpts, session.WithDialer(a.dialer()))
	}
	a.Session = session.NewProvider(client, sessionOpts...)

	ledgerOpts := []tokenomics.MockOption{
		tokenomics.WithLedgerLogger(logger),
		tokenomics.WithLedgerMetrics(m),
	}
	if !cfg.Wallet.SimulateLatency {
		ledgerOpts = append(ledgerOpts, tokenomics.WithLatencies(tokenomics.Latencies{}))
	}
	a.Ledger = tokenomics.NewMockLedger(ledgerOpts...)
	return a, nil
}

func (a *App) dialer() realtime.Dialer {
	ws := &realtime.WSDialer{
		URL:          a.Client.WebSocketURL(),
		Jar:          a.Jar,
		PingInterval: keepaliveInterval,
		Logger:       a.Logger,
		Metrics:      a.Metrics,
	}
	retry := a.Config.Realtime.Retry
	if !retry.Enabled {
		return ws
	}
	return &realtime.ResilientDialer{
		Dialer: ws,
		Policy: realtime.RetryPolicy{
			InitialInterval: retry.InitialInterval,
			MaxInterval:     retry.MaxInterval,
			MaxAttempts:     retry.MaxAttempts,
		},
		Logger: a.Logger,
	}
}

func (a *App) dispatch(msg realtime.Message) {
	if a.Bridge != nil {
		a.Bridge.HandleMessage(msg)
		return
	}
	select {
	case a.Inbox <- msg:
	default:
		a.Logger.Warn("dropping realtime message, inbox full", "type", msg.Type)
	}
}

// RequireUser runs the initial session check and returns the user, or a
// SESSION-002 error when nobody is logged in.
func (a *App) RequireUser(ctx context.Context) (*api.User, error) {
	a.Session.Initialize(ctx)
	return guard.New(guard.ModeBlank, a.Config.Routes.Login).Require(ctx, a.Session, a.Nav)
}

// checkSession invalidates the local session when the backend rejected the
// cookie, so the next command does not present it again.
func (a *App) checkSession(err error) error {
	if err == nil || !errors.IsUnauthorized(err) {
		return err
	}
	a.Session.Invalidate("backend rejected session")
	if clearErr := a.Jar.Clear(); clearErr != nil {
		a.Logger.WithError(clearErr).Warn("failed to clear cookie store")
	}
	return err
}

// Close persists cookies, ends the command span and flushes telemetry.
func (a *App) Close(ctx context.Context, cmdErr error) {
	if err := a.Session.Close(); err != nil {
		a.Logger.WithError(err).Warn("closing session")
	}
	if err := a.Jar.Save(); err != nil {
		a.Logger.WithError(err).Warn("failed to save cookies")
	}

	if cmdErr != nil && (a.logFile != nil || a.Logger.Enabled(ctx, log.LevelDebug)) {
		a.Logger.LogError(ctx, "command failed", cmdErr)
	}

	if a.span != nil {
		if cmdErr != nil {
			telemetry.RecordError(a.span, cmdErr)
		} else {
			telemetry.RecordSuccess(a.span)
		}
		a.span.End()
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := a.shutdownTelemetry(ctx); err != nil {
		a.Logger.WithError(err).Debug("telemetry shutdown")
	}
	if a.logFile != nil {
		_ = a.logFile.Close()
	}
}

// recordingNavigator is the CLI's navigator: there is no page to move to,
// so it remembers the last request for the command to act on.
type recordingNavigator struct {
	logger *log.Logger
	last   *session.Navigation
}

func (n *recordingNavigator) Navigate(nav session.Navigation) {
	n.logger.Debug("navigation requested", "url", nav.URL(), "mode", nav.Mode.String())
	n.last = &nav
}

// Last returns the most recent navigation, if any.
func (n *recordingNavigator) Last() (session.Navigation, bool) {
	if n.last == nil {
		return session.Navigation{}, false
	}
	return *n.last, true
}

func printf(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}
