package bootstrap

import (
	"log/slog"

	"github.com/alungalsinan/groot-scribe-studio/config"
	"github.com/alungalsinan/groot-scribe-studio/internal/observability/notify"
	"github.com/alungalsinan/groot-scribe-studio/internal/observability/notify/slack"
	"github.com/alungalsinan/groot-scribe-studio/internal/observability/statsd"
	"github.com/alungalsinan/groot-scribe-studio/internal/service/notifier"
)

// Observability bundles the metrics client and notification fan-out.
type Observability struct {
	Metrics  *statsd.Client
	Notifier *notifier.Service
}

// BuildObservability configures metrics and notification adapters. Failures
// to initialise optional sinks are logged and the sink is skipped.
func BuildObservability(logger *slog.Logger, cfg config.ObservabilityConfig) Observability {
	if logger == nil {
		logger = slog.Default()
	}

	var metricsSink *statsd.Client
	if cfg.Metrics.IsEnabled() {
		client, err := statsd.NewClient(statsd.Config{
			Enabled: true,
			Address: cfg.Metrics.StatsdAddress,
			Prefix:  cfg.Metrics.Prefix,
			Logger:  logger,
		})
		if err != nil {
			logger.Error("failed to initialise statsd client", "error", err)
		} else {
			metricsSink = client
		}
	}

	return Observability{
		Metrics:  metricsSink,
		Notifier: buildNotifier(logger, cfg.Notifications),
	}
}

func buildNotifier(logger *slog.Logger, cfg config.ObservabilityNotificationsConfig) *notifier.Service {
	notifierLogger := logger.With("component", "notifier")
	if !cfg.Enabled {
		return notifier.NewService(notifier.Options{Logger: notifierLogger})
	}

	sinks := []notifier.SinkRegistration{{
		Name: "log",
		Sink: notify.LogSink{Logger: logger.With("component", "notifications")},
	}}

	if cfg.Slack.Enabled {
		client, err := slack.NewClient(slack.Config{
			WebhookURL:      cfg.Slack.WebhookURL,
			Channel:         cfg.Slack.Channel,
			Username:        cfg.Slack.Username,
			Timeout:         cfg.Timeout,
			RetryLimit:      cfg.RetryLimit,
			DestructiveOnly: cfg.Slack.DestructiveOnly,
		})
		if err != nil {
			logger.Error("failed to initialise slack notifier", "error", err)
		} else {
			sinks = append(sinks, notifier.SinkRegistration{Name: "slack", Sink: client})
		}
	}

	return notifier.NewService(notifier.Options{
		Logger: notifierLogger,
		Sinks:  sinks,
	})
}
