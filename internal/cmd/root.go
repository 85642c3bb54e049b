package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"
)

// annotationNoApp marks commands that run without a backend connection.
const annotationNoApp = "oncare/no-app"

// annotationRealtime marks commands that keep the realtime channel open.
const annotationRealtime = "oncare/realtime"

// annotationTUI marks the full-screen client.
const annotationTUI = "oncare/tui"

var rootCmd = &cobra.Command{
	Use:   "oncare",
	Short: "Terminal client for the onCare community",
	Long: `oncare is a terminal client for onCare, the cancer support network.

It keeps your session in ~/.oncare (override with ONCARE_HOME), shows your
feed and notifications, streams live updates, and manages your wallet.

Start with:
  oncare auth login
  oncare ui`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setupApp,
}

var rootFlags struct {
	home      string
	apiURL    string
	logLevel  string
	logFormat string
	verbose   bool
	debug     bool
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&rootFlags.home, "home", "", "client home directory (default $ONCARE_HOME or ~/.oncare)")
	pf.StringVar(&rootFlags.apiURL, "api-url", "", "backend base URL (overrides config)")
	pf.StringVar(&rootFlags.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&rootFlags.logFormat, "log-format", "", "log format: text or json")
	pf.BoolVarP(&rootFlags.verbose, "verbose", "v", false, "shorthand for --log-level debug")
	pf.BoolVar(&rootFlags.debug, "debug", false, "log everything with source locations")
}

// Execute runs the root command
func Execute() error {
	return ExecuteContext(context.Background())
}

// ExecuteContext runs the root command with ctx, records the command in the
// metrics registry and tears the application down afterwards.
func ExecuteContext(ctx context.Context) error {
	start := time.Now()
	executed, err := rootCmd.ExecuteContextC(ctx)

	if a := current; a != nil {
		name := rootCmd.Name()
		if executed != nil {
			name = executed.CommandPath()
		}
		a.Metrics.RecordCommand(name, time.Since(start), err)
		a.Close(context.WithoutCancel(ctx), err)
		current = nil
	}
	return err
}

func noApp(c *cobra.Command) *cobra.Command {
	if c.Annotations == nil {
		c.Annotations = map[string]string{}
	}
	c.Annotations[annotationNoApp] = "true"
	return c
}

func withRealtime(c *cobra.Command) *cobra.Command {
	if c.Annotations == nil {
		c.Annotations = map[string]string{}
	}
	c.Annotations[annotationRealtime] = "true"
	return c
}
