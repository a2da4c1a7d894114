package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"commentdedup/internal/config"
)

// defaultsForFlags значения по умолчанию для справки флагов
func defaultsForFlags() *config.Config {
	return config.Default()
}

func newShowConfigCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show the effective configuration",
		Long:  `Show the configuration after merging defaults, the config file, DEDUP_* environment variables and flags.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.v, a.cfgFile)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if file := a.v.ConfigFileUsed(); file == "" {
				fmt.Fprintln(out, "# No config file loaded (using defaults and environment).")
			} else {
				fmt.Fprintf(out, "# Config file: %s\n", file)
			}

			encoder := yaml.NewEncoder(out)
			encoder.SetIndent(2)
			if err := encoder.Encode(cfg); err != nil {
				return fmt.Errorf("failed to encode config: %w", err)
			}
			if err := encoder.Close(); err != nil {
				return err
			}

			if err := cfg.Validate(); err != nil {
				fmt.Fprintf(out, "# Invalid: %v\n", err)
			}
			return nil
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "commentdedup %s\n", Version)
		},
	}
}
