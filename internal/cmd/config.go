package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/on-cure/oncare/internal/config"
	"github.com/on-cure/oncare/internal/errors"
)

var configCmd = noApp(&cobra.Command{
	Use:   "config",
	Short: "Inspect and initialize the client configuration",
})

var configFlags struct {
	force bool
}

var configViewCmd = noApp(&cobra.Command{
	Use:   "view",
	Short: "Print the effective configuration",
	Long:  "Print the configuration after the file, environment and flags are applied.",
	RunE:  runConfigView,
})

var configPathCmd = noApp(&cobra.Command{
	Use:   "path",
	Short: "Print the configuration file location",
	RunE:  runConfigPath,
})

var configInitCmd = noApp(&cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	RunE:  runConfigInit,
})

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configViewCmd, configPathCmd, configInitCmd)
	configInitCmd.Flags().BoolVar(&configFlags.force, "force", false, "overwrite an existing file")
}

func runConfigView(cmd *cobra.Command, _ []string) error {
	_, cfg, err := loadConfig()
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return errors.Wrap(errors.ErrCodeConfigInvalid, "failed to encode config", err)
	}
	return enc.Close()
}

func homeDir() (string, error) {
	if rootFlags.home != "" {
		return rootFlags.home, nil
	}
	return config.HomeDir()
}

func runConfigPath(cmd *cobra.Command, _ []string) error {
	home, err := homeDir()
	if err != nil {
		return err
	}
	printf(cmd, "%s\n", config.Path(home))
	return nil
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	home, err := homeDir()
	if err != nil {
		return err
	}

	path := config.Path(home)
	if _, err := os.Stat(path); err == nil && !configFlags.force {
		return errors.New(errors.ErrCodeConfigInvalid, "config already exists at "+path).
			WithSuggestion("Pass --force to overwrite it")
	}

	cfg := config.Default()
	if rootFlags.apiURL != "" {
		cfg.API.BaseURL = rootFlags.apiURL
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	if err := config.Save(home, cfg); err != nil {
		return err
	}
	printf(cmd, "Wrote %s\n", path)
	return nil
}
