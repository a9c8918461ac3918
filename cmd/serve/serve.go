// Package serve provides the serve command, which runs the HTTP API.
package serve

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/civicwatch/alertwatch/internal/alerts"
	"github.com/civicwatch/alertwatch/internal/api"
	"github.com/civicwatch/alertwatch/internal/app"
	"github.com/civicwatch/alertwatch/internal/buildinfo"
	"github.com/civicwatch/alertwatch/internal/conf"
	"github.com/civicwatch/alertwatch/internal/logger"
	"github.com/civicwatch/alertwatch/internal/telemetry"
)

// Command creates the serve command.
func Command(settings *conf.Settings, build *buildinfo.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the alert API server",
		Long:  "Serve opens the alert store, starts notification delivery and serves the HTTP API until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, settings, build)
		},
	}

	if err := setupFlags(cmd); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}
	return cmd
}

func setupFlags(cmd *cobra.Command) error {
	cmd.Flags().String("host", viper.GetString("server.host"), "Address to bind the HTTP server to")
	cmd.Flags().Int("port", viper.GetInt("server.port"), "Port to listen on")
	cmd.Flags().String("db", viper.GetString("database.sqlite.path"), "Path of the SQLite database")

	for key, flag := range map[string]string{
		"server.host":          "host",
		"server.port":          "port",
		"database.sqlite.path": "db",
	} {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return fmt.Errorf("error binding flag %s: %w", flag, err)
		}
	}
	return nil
}

func run(ctx context.Context, settings *conf.Settings, build *buildinfo.Context) error {
	if _, err := telemetry.Init(&settings.Telemetry, build.Release()); err != nil {
		return err
	}
	defer telemetry.Close()

	a, err := app.Open(settings)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			a.Log.Warn("error during shutdown", logger.Error(err))
		}
	}()

	var observers []alerts.Observer
	dispatcher, err := a.NewDispatcher(ctx)
	if err != nil {
		return err
	}
	if dispatcher != nil {
		observers = append(observers, dispatcher)
	}

	svc, err := a.NewService(observers...)
	if err != nil {
		return err
	}
	a.Log.Info("consensus rule", logger.String("rule", svc.Rule().String()))

	server, err := api.New(api.ConfigFromSettings(settings), svc, a.Identity,
		api.WithLogger(a.Logger("api")),
		api.WithMetrics(a.Metrics),
		api.WithVersion(build.Version()),
		api.WithHealthCheck(func(ctx context.Context) error {
			sqlDB, err := a.Store.DB().DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}),
	)
	if err != nil {
		return err
	}
	return server.Run(ctx)
}
