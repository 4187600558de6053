package cmd

import (
	"github.com/psantana5/wfrunner/internal/config"
	"github.com/psantana5/wfrunner/internal/controller"
	"github.com/psantana5/wfrunner/internal/report"
	"github.com/psantana5/wfrunner/internal/spec"
	"github.com/psantana5/wfrunner/internal/status"
	"github.com/psantana5/wfrunner/internal/supervisor"
	"github.com/psantana5/wfrunner/pkg/logging"
	"github.com/psantana5/wfrunner/pkg/tls"
)

func statusConfig(cfg *config.Config) status.Config {
	return status.Config{
		Channel: cfg.Status.Channel,
		DSN:     cfg.Status.DSN,
		HTTP: status.HTTPConfig{
			URL:     cfg.Status.URL,
			APIKey:  cfg.Status.APIKey,
			Timeout: cfg.Status.Timeout,
			TLS: tls.ClientConfig{
				CertFile: cfg.Status.TLS.Cert,
				KeyFile:  cfg.Status.TLS.Key,
				CAFile:   cfg.Status.TLS.CA,
			},
		},
	}
}

// newReporter never fails: when the status channel cannot be opened the
// reporter logs every status as undeliverable instead
func newReporter(cfg *config.Config, logger *logging.Logger, metrics *report.Metrics) *status.Reporter {
	publisher, err := status.New(statusConfig(cfg), logger)
	if err != nil {
		logger.Error("Failed to open status channel", logging.Fields{
			"channel":        cfg.Status.Channel,
			logging.ErrorKey: err,
		})
		publisher = nil
	}
	return status.NewReporter(publisher, logger, metrics)
}

func newLoader(cfg *config.Config, logger *logging.Logger) *spec.Loader {
	return spec.NewLoader(spec.Config{
		RemoteBaseURL: cfg.Spec.RemoteBaseURL,
		Timeout:       cfg.Spec.Timeout,
	}, logger)
}

func newChecker(cfg *config.Config, logger *logging.Logger) (*controller.Checker, error) {
	return controller.NewChecker(controller.Config{
		URL:     cfg.Controller.URL,
		Retries: cfg.Controller.Retries,
		Timeout: cfg.Controller.Timeout,
	}, logger)
}

func supervisorSettings(cfg *config.Config) supervisor.Settings {
	return supervisor.Settings{
		Schema:         cfg.Spec.Schema,
		Backend:        cfg.Engine.Backend,
		Visualize:      cfg.Engine.Visualize,
		UpdateInterval: cfg.Engine.UpdateInterval,
		LogInterval:    cfg.Engine.LogInterval,
		MinFreeMB:      cfg.Workspace.MinFreeMB,
	}
}
