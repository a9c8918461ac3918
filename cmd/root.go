// Package cmd wires the alertwatch command line.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/civicwatch/alertwatch/cmd/actor"
	"github.com/civicwatch/alertwatch/cmd/config"
	"github.com/civicwatch/alertwatch/cmd/migrate"
	"github.com/civicwatch/alertwatch/cmd/recount"
	"github.com/civicwatch/alertwatch/cmd/serve"
	"github.com/civicwatch/alertwatch/internal/buildinfo"
	"github.com/civicwatch/alertwatch/internal/conf"
)

// RootCommand creates and returns the root command. Settings are loaded
// before any subcommand runs and shared through the settings pointer.
func RootCommand(build *buildinfo.Context) *cobra.Command {
	settings := &conf.Settings{}
	var configFile string

	rootCmd := &cobra.Command{
		Use:           "alertwatch",
		Short:         "Community alert validation and consensus service",
		Version:       build.Version(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to the configuration file")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug output")

	configCmd := config.Command(settings)
	rootCmd.AddCommand(
		serve.Command(settings, build),
		migrate.Command(settings),
		recount.Command(settings),
		actor.Command(settings),
		configCmd,
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
			return fmt.Errorf("error binding flags: %w", err)
		}

		// config subcommands work from defaults and must not require a readable file.
		if cmd.Parent() == configCmd {
			defaults, err := conf.DefaultSettings()
			if err != nil {
				return err
			}
			*settings = *defaults
			return nil
		}

		loaded, err := conf.Load(configFile)
		if err != nil {
			return err
		}
		*settings = *loaded
		return nil
	}

	return rootCmd
}
