package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/on-cure/oncare/internal/api"
	"github.com/on-cure/oncare/internal/errors"
	"github.com/on-cure/oncare/internal/metrics"
	"github.com/on-cure/oncare/internal/realtime"
	"github.com/on-cure/oncare/internal/session"
)

var notificationsCmd = &cobra.Command{
	Use:     "notifications",
	Aliases: []string{"notif"},
	Short:   "List and manage notifications",
}

var notificationsFlags struct {
	page        int
	limit       int
	unread      bool
	json        bool
	poll        time.Duration
	count       int
	metricsAddr string
}

var notificationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List notifications, newest first",
	RunE:  runNotificationsList,
}

var notificationsReadCmd = &cobra.Command{
	Use:   "read <id>",
	Short: "Mark one notification as read",
	Args:  cobra.ExactArgs(1),
	RunE:  runNotificationsRead,
}

var notificationsReadAllCmd = &cobra.Command{
	Use:   "read-all",
	Short: "Mark every notification as read",
	RunE:  runNotificationsReadAll,
}

var notificationsUnreadCmd = &cobra.Command{
	Use:   "unread",
	Short: "Print the unread notification count",
	RunE:  runNotificationsUnread,
}

var notificationsWatchCmd = withRealtime(&cobra.Command{
	Use:   "watch",
	Short: "Stream notifications as they arrive",
	Long: `Open the realtime channel and print notifications as the backend pushes
them. The command exits when interrupted, when the session ends, or after
--count messages.`,
	RunE: runNotificationsWatch,
})

func init() {
	rootCmd.AddCommand(notificationsCmd)
	notificationsCmd.AddCommand(notificationsListCmd, notificationsReadCmd, notificationsReadAllCmd,
		notificationsUnreadCmd, notificationsWatchCmd)

	lf := notificationsListCmd.Flags()
	lf.IntVar(&notificationsFlags.page, "page", 1, "page number")
	lf.IntVar(&notificationsFlags.limit, "limit", 20, "notifications per page")
	lf.BoolVar(&notificationsFlags.unread, "unread", false, "only show unread notifications")
	lf.BoolVar(&notificationsFlags.json, "json", false, "print as JSON")

	wf := notificationsWatchCmd.Flags()
	wf.DurationVar(&notificationsFlags.poll, "poll", 0, "also print the unread count at this interval")
	wf.IntVar(&notificationsFlags.count, "count", 0, "exit after this many messages (0 = unlimited)")
	wf.StringVar(&notificationsFlags.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	wf.BoolVar(&notificationsFlags.json, "json", false, "print messages as JSON lines")
}

func runNotificationsList(cmd *cobra.Command, _ []string) error {
	a := app()
	ctx := cmd.Context()
	if _, err := a.RequireUser(ctx); err != nil {
		return err
	}

	items, err := a.Client.ListNotifications(ctx, notificationsFlags.page, notificationsFlags.limit)
	if err != nil {
		return a.checkSession(err)
	}
	if notificationsFlags.unread {
		unread := items[:0]
		for _, n := range items {
			if !n.IsRead {
				unread = append(unread, n)
			}
		}
		items = unread
	}

	if notificationsFlags.json {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(items)
	}
	if len(items) == 0 {
		printf(cmd, "No notifications\n")
		return nil
	}
	for _, n := range items {
		writeNotification(cmd.OutOrStdout(), n)
	}
	return nil
}

func writeNotification(w io.Writer, n api.Notification) {
	marker := " "
	if !n.IsRead {
		marker = "*"
	}
	when := ""
	if !n.CreatedAt.IsZero() {
		when = n.CreatedAt.Local().Format("2006-01-02 15:04")
	}
	fmt.Fprintf(w, "%s %5d  %-18s %s  %s\n", marker, n.ID, n.Type, when, n.Message)
}

func parseID(arg string) (int, error) {
	id, err := strconv.Atoi(arg)
	if err != nil || id <= 0 {
		return 0, errors.New(errors.ErrCodeFieldRequired, fmt.Sprintf("invalid id %q", arg)).
			WithSuggestion("IDs are positive integers")
	}
	return id, nil
}

func runNotificationsRead(cmd *cobra.Command, args []string) error {
	a := app()
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if _, err := a.RequireUser(ctx); err != nil {
		return err
	}
	if err := a.Client.MarkNotificationRead(ctx, id); err != nil {
		return a.checkSession(err)
	}
	printf(cmd, "Marked notification %d as read\n", id)
	return nil
}

func runNotificationsReadAll(cmd *cobra.Command, _ []string) error {
	a := app()
	ctx := cmd.Context()
	if _, err := a.RequireUser(ctx); err != nil {
		return err
	}
	if err := a.Client.MarkAllNotificationsRead(ctx); err != nil {
		return a.checkSession(err)
	}
	printf(cmd, "All notifications marked as read\n")
	return nil
}

func runNotificationsUnread(cmd *cobra.Command, _ []string) error {
	a := app()
	ctx := cmd.Context()
	if _, err := a.RequireUser(ctx); err != nil {
		return err
	}
	n, err := a.Client.UnreadNotificationCount(ctx)
	if err != nil {
		return a.checkSession(err)
	}
	printf(cmd, "%d\n", n)
	return nil
}

var errWatchDone = errors.New(errors.ErrCodeChannelClosed, "watch finished")

func runNotificationsWatch(cmd *cobra.Command, _ []string) error {
	a := app()
	if !a.Config.Realtime.Enabled {
		return errors.ConfigInvalid("realtime.enabled", "the realtime channel is disabled").
			WithSuggestion("Set realtime.enabled: true or ONCARE_REALTIME_ENABLED=true")
	}

	user, err := a.RequireUser(cmd.Context())
	if err != nil {
		return err
	}
	printf(cmd, "Watching notifications for %s (Ctrl+C to stop)\n", user.DisplayName())

	snaps, unsubscribe := a.Session.Subscribe()
	defer unsubscribe()

	initial := a.Session.Snapshot()
	if !initial.ChannelOpen {
		if notificationsFlags.poll <= 0 {
			return errors.New(errors.ErrCodeChannelDial, "realtime channel unavailable").
				WithSuggestion("Check the backend with: oncare doctor").
				WithSuggestion("Fall back to polling with: oncare notifications watch --poll 30s")
		}
		fmt.Fprintln(cmd.ErrOrStderr(), "realtime channel unavailable, polling only")
	}

	g, ctx := errgroup.WithContext(cmd.Context())
	g.Go(func() error { return printMessages(ctx, cmd, a.Inbox, notificationsFlags.count) })
	g.Go(func() error { return followSession(ctx, cmd, initial, snaps) })
	if notificationsFlags.poll > 0 {
		g.Go(func() error { return pollUnread(ctx, cmd, a, notificationsFlags.poll) })
	}
	if addr := notificationsFlags.metricsAddr; addr != "" {
		g.Go(func() error { return serveMetrics(ctx, a, addr) })
	}

	if err := g.Wait(); err != errWatchDone && err != context.Canceled {
		return err
	}
	return nil
}

func printMessages(ctx context.Context, cmd *cobra.Command, inbox <-chan realtime.Message, limit int) error {
	out := cmd.OutOrStdout()
	seen := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-inbox:
			if notificationsFlags.json {
				if err := json.NewEncoder(out).Encode(msg); err != nil {
					return err
				}
			} else if n, err := msg.Notification(); err == nil && n != nil {
				writeNotification(out, *n)
			} else {
				fmt.Fprintf(out, "  [%s] %s\n", msg.Type, string(msg.Payload))
			}
			seen++
			if limit > 0 && seen >= limit {
				return errWatchDone
			}
		}
	}
}

// followSession reports channel state changes after initial and stops the
// watch when the user goes away.
func followSession(ctx context.Context, cmd *cobra.Command, initial session.Snapshot, snaps <-chan session.Snapshot) error {
	channelOpen := initial.ChannelOpen
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case snap, ok := <-snaps:
			if !ok {
				return nil
			}
			if !snap.Loading && !snap.Authenticated() {
				return errors.NotAuthenticated().WithSuggestion("The session ended; log in again with: oncare auth login")
			}
			if channelOpen != snap.ChannelOpen {
				channelOpen = snap.ChannelOpen
				if channelOpen {
					fmt.Fprintln(cmd.ErrOrStderr(), "realtime channel connected")
				} else {
					fmt.Fprintln(cmd.ErrOrStderr(), "realtime channel closed")
				}
			}
		}
	}
}

func pollUnread(ctx context.Context, cmd *cobra.Command, a *App, every time.Duration) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			n, err := a.Client.UnreadNotificationCount(ctx)
			if err != nil {
				if errors.IsUnauthorized(err) {
					return a.checkSession(err)
				}
				a.Logger.WithError(err).Warn("unread count failed")
				continue
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "unread: %d\n", n)
		}
	}
}

func serveMetrics(ctx context.Context, a *App, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.HandlerFor(a.Registry))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	a.Logger.Info("serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return errors.Wrap(errors.ErrCodeNetwork, "metrics server failed", err)
	}
	return nil
}
