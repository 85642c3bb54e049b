package cmd

import (
	"encoding/json"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/on-cure/oncare/internal/config"
	"github.com/on-cure/oncare/internal/errors"
	"github.com/on-cure/oncare/internal/health"
	"github.com/on-cure/oncare/internal/realtime"
)

var doctorFlags struct {
	json bool
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the configuration, backend, session and realtime channel",
	RunE:  runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.Flags().BoolVar(&doctorFlags.json, "json", false, "print results as JSON")
}

var statusStyles = map[health.Status]lipgloss.Style{
	health.StatusHealthy:   lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
	health.StatusDegraded:  lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
	health.StatusUnhealthy: lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
}

type doctorOutput struct {
	Status health.Status             `json:"status"`
	Checks map[string]*health.Result `json:"checks"`
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	a := app()

	var dialer realtime.Dialer
	if a.Config.Realtime.Enabled {
		dialer = a.dialer()
	}

	m := health.NewManager()
	m.AddChecker(
		health.ConfigCheck(a.Config, config.Path(a.Home)),
		health.BackendCheck(a.Client, a.Config.API.BaseURL),
		health.SessionCheck(a.Client),
		health.RealtimeCheck(dialer, a.Client.WebSocketURL()),
	)
	results := m.Check(cmd.Context())
	overall := health.OverallStatus(results)

	if doctorFlags.json {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(doctorOutput{Status: overall, Checks: results}); err != nil {
			return err
		}
	} else {
		for _, name := range m.CheckNames() {
			r := results[name]
			printf(cmd, "%-10s %s  %s\n", name, statusStyles[r.Status].Render(r.Status.String()), r.Message)
		}
		printf(cmd, "\nOverall: %s\n", statusStyles[overall].Render(overall.String()))
	}

	if overall == health.StatusUnhealthy {
		return errors.New(errors.ErrCodeNetwork, "one or more checks failed").
			WithSuggestion("Check api.base_url with: oncare config view")
	}
	return nil
}
