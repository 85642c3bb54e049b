package cmd

import (
	"github.com/spf13/cobra"

	"github.com/on-cure/oncare/internal/errors"
	"github.com/on-cure/oncare/internal/tui"
)

var uiFlags struct {
	route string
}

var uiCmd = withRealtime(&cobra.Command{
	Use:   "ui",
	Short: "Open the interactive client",
	Long: `Open the full-screen client. The feed and notifications views require a
session; without one you are taken to the login form.

Keys: f feed, n notifications, r refresh, a mark all read, o log out, q quit.`,
	RunE:        runUI,
	Annotations: map[string]string{annotationTUI: "true"},
})

func init() {
	rootCmd.AddCommand(uiCmd)
	uiCmd.Flags().StringVar(&uiFlags.route, "route", tui.RouteFeed, "first view: /feed, /notifications or /login")
}

func runUI(cmd *cobra.Command, _ []string) error {
	a := app()
	if !tui.IsInteractive() {
		return errors.New(errors.ErrCodeConfigInvalid, "the interactive client needs a terminal").
			WithSuggestion("Use the auth, notifications, profile and wallet commands in scripts")
	}

	ctx := cmd.Context()
	go a.Session.Initialize(ctx)

	return tui.Run(ctx, tui.Options{
		Session: a.Session,
		Backend: a.Client,
		Ledger:  a.Ledger,
		Route:   uiFlags.route,
	}, a.Bridge)
}
