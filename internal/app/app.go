// Package app assembles the alertwatch components from settings. Commands
// open an App, use the parts they need and Close it on exit.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/civicwatch/alertwatch/internal/alerts"
	"github.com/civicwatch/alertwatch/internal/conf"
	"github.com/civicwatch/alertwatch/internal/consensus"
	"github.com/civicwatch/alertwatch/internal/datastore"
	"github.com/civicwatch/alertwatch/internal/datastore/repository"
	"github.com/civicwatch/alertwatch/internal/identity"
	"github.com/civicwatch/alertwatch/internal/logger"
	"github.com/civicwatch/alertwatch/internal/mqtt"
	"github.com/civicwatch/alertwatch/internal/notification"
	"github.com/civicwatch/alertwatch/internal/observability"
)

// App holds the long-lived components shared by the commands.
type App struct {
	Settings *conf.Settings
	Log      logger.Logger
	Store    datastore.Manager
	Identity *identity.Directory
	Metrics  *observability.Metrics

	central *logger.CentralLogger
	closers []func(ctx context.Context) error
}

// NewLogger creates the central logger described by settings.
func NewLogger(settings *conf.Settings) (*logger.CentralLogger, error) {
	level := settings.Logging.Level
	if settings.Debug {
		level = "debug"
	}
	return logger.NewCentralLogger(logger.Config{
		Level:        level,
		JSON:         settings.Logging.JSON,
		FilePath:     settings.Logging.File,
		Timezone:     settings.Logging.Timezone,
		ModuleLevels: settings.Logging.ModuleLevels,
	})
}

// Open creates the logger, opens and migrates the store and sets up the
// actor directory and metrics registry.
func Open(settings *conf.Settings) (*App, error) {
	central, err := NewLogger(settings)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	a := &App{
		Settings: settings,
		Log:      central.Module("app"),
		central:  central,
	}

	store, err := datastore.Open(&settings.Database, central.Module("datastore"))
	if err != nil {
		_ = central.Close()
		return nil, fmt.Errorf("failed to open datastore: %w", err)
	}
	a.Store = store
	a.Log.Info("datastore opened",
		logger.String("type", settings.Database.Type),
		logger.String("location", store.Path()))

	a.Identity = identity.NewDirectory(
		repository.NewActorRepository(store.DB()),
		settings.Identity.CacheTTL,
		central.Module("identity"))

	metrics, err := observability.NewMetrics()
	if err != nil {
		_ = store.Close()
		_ = central.Close()
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}
	a.Metrics = metrics
	return a, nil
}

// Logger returns a logger scoped to module.
func (a *App) Logger(module string) logger.Logger {
	return a.central.Module(module)
}

// Rule returns the consensus rule configured in settings.
func (a *App) Rule() (consensus.Rule, error) {
	policy, err := consensus.ParseVotingPolicy(a.Settings.Consensus.VotingPolicy)
	if err != nil {
		return consensus.Rule{}, err
	}
	return consensus.NewRule(a.Settings.Consensus.ConfirmThreshold, a.Settings.Consensus.RejectThreshold, policy)
}

// NewService builds the alert service over the store with the configured rule.
func (a *App) NewService(observers ...alerts.Observer) (*alerts.Service, error) {
	rule, err := a.Rule()
	if err != nil {
		return nil, err
	}

	opts := []alerts.Option{
		alerts.WithRule(rule),
		alerts.WithGate(consensus.Gate{ForbidAuthorVote: !a.Settings.Consensus.AllowAuthorVote}),
		alerts.WithRecorder(a.Metrics.Consensus),
		alerts.WithLogger(a.central.Module("alerts")),
	}
	for _, o := range observers {
		opts = append(opts, alerts.WithObserver(o))
	}

	repo := repository.NewAlertRepository(a.Store.DB(), a.Store.IsMySQL())
	return alerts.New(repo, a.Identity, opts...)
}

// NewDispatcher starts the notification dispatcher with the providers enabled
// in settings. It returns nil when no provider is enabled. The dispatcher and
// the MQTT connection are closed by Close.
func (a *App) NewDispatcher(ctx context.Context) (*notification.Dispatcher, error) {
	log := a.central.Module("notification")
	var providers []notification.Provider

	ns := a.Settings.Notification
	if ns.Enabled && len(ns.URLs) > 0 {
		p, err := notification.NewShoutrrrProvider("shoutrrr", ns.URLs, ns.Timeout)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}

	ms := a.Settings.MQTT
	if ms.Enabled {
		cfg := mqtt.DefaultConfig()
		cfg.Broker = ms.Broker
		if ms.ClientID != "" {
			cfg.ClientID = ms.ClientID
		}
		cfg.Username = ms.Username
		cfg.Password = ms.Password
		cfg.QoS = byte(ms.QoS)
		cfg.Retain = ms.Retain

		client, err := mqtt.NewClient(cfg, a.Metrics.MQTT, a.central.Module("mqtt"))
		if err != nil {
			return nil, err
		}
		// The paho client reconnects on its own; a broker that is down at
		// startup is logged and retried on publish.
		if err := client.Connect(ctx); err != nil {
			log.Warn("MQTT broker unavailable at startup", logger.String("broker", ms.Broker), logger.Error(err))
		}
		a.closers = append(a.closers, func(context.Context) error {
			client.Disconnect()
			return nil
		})
		providers = append(providers, notification.NewMQTTProvider(client, ms.Topic))
	}

	if len(providers) == 0 {
		return nil, nil
	}

	d := notification.NewDispatcher(notification.DispatcherConfig{
		QueueSize: ns.QueueSize,
		Timeout:   ns.Timeout,
	}, a.Metrics.Notification, log, providers...)
	// Registered after the MQTT closer so that it runs first.
	a.closers = append(a.closers, d.Close)
	log.Info("notifications enabled", logger.Int("providers", len(providers)))
	return d, nil
}

// Close releases everything opened by the App in reverse order.
func (a *App) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var firstErr error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := a.central.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
