// Package telemetry initializes Sentry error reporting and installs the
// reporter used by the errors package.
package telemetry

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/civicwatch/alertwatch/internal/conf"
	"github.com/civicwatch/alertwatch/internal/errors"
)

// defaultFlushTimeout bounds how long Close waits for queued events.
const defaultFlushTimeout = 2 * time.Second

// Option customizes the Sentry client.
type Option func(*sentry.ClientOptions)

// WithTransport replaces the HTTP transport, used by tests.
func WithTransport(t sentry.Transport) Option {
	return func(o *sentry.ClientOptions) { o.Transport = t }
}

// Init configures Sentry from settings and registers the error reporter.
// It returns false without error when telemetry is disabled.
func Init(settings *conf.TelemetrySettings, release string, opts ...Option) (bool, error) {
	if settings == nil || !settings.Enabled {
		errors.SetTelemetryReporter(nil)
		return false, nil
	}

	environment := settings.Environment
	if environment == "" {
		environment = "production"
	}

	options := sentry.ClientOptions{
		Dsn:              settings.DSN,
		SampleRate:       1.0,
		AttachStacktrace: false,
		Environment:      environment,
		ServerName:       "",
		Release:          release,
		BeforeSend:       applyPrivacyFilters,
	}
	for _, opt := range opts {
		opt(&options)
	}

	if err := sentry.Init(options); err != nil {
		return false, errors.New(fmt.Errorf("sentry initialization failed: %w", err)).
			Component("telemetry").
			Category(errors.CategoryConfiguration).
			Build()
	}

	errors.SetTelemetryReporter(errors.NewSentryReporter(true))
	return true, nil
}

// Close flushes queued events and detaches the reporter.
func Close() {
	errors.SetTelemetryReporter(nil)
	sentry.Flush(defaultFlushTimeout)
}

// applyPrivacyFilters strips host and user details before an event leaves the process.
func applyPrivacyFilters(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
	event.User = sentry.User{}
	event.ServerName = ""
	event.Request = nil

	if event.Contexts != nil {
		delete(event.Contexts, "device")
		delete(event.Contexts, "os")
		delete(event.Contexts, "runtime")
	}
	if event.Tags != nil {
		delete(event.Tags, "server_name")
		delete(event.Tags, "hostname")
	}
	return event
}
