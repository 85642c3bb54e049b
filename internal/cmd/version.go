package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/on-cure/oncare/internal/version"
)

var versionFlags struct {
	json    bool
	verbose bool
}

var versionCmd = noApp(&cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, _ []string) error {
		info := version.GetInfo()
		switch {
		case versionFlags.json:
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(info)
		case versionFlags.verbose:
			printf(cmd, "%s\n", info.String())
		default:
			printf(cmd, "oncare %s\n", info.Short())
		}
		return nil
	},
})

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().BoolVar(&versionFlags.json, "json", false, "print as JSON")
	versionCmd.Flags().BoolVar(&versionFlags.verbose, "long", false, "print build details")
}
