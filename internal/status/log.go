package status

import (
	"context"

	"github.com/psantana5/wfrunner/pkg/logging"
	"github.com/psantana5/wfrunner/pkg/models"
)

// LogPublisher writes status events to the logger. Used for local runs
// without a status channel.
type LogPublisher struct {
	logger *logging.Logger
}

// NewLogPublisher creates a log-only publisher
func NewLogPublisher(logger *logging.Logger) *LogPublisher {
	if logger == nil {
		logger = logging.Discard()
	}
	return &LogPublisher{logger: logger}
}

// Publish logs the event
func (p *LogPublisher) Publish(ctx context.Context, event models.StatusEvent) error {
	fields := logging.Fields{
		logging.RunIDKey: event.RunID,
		logging.StateKey: string(event.State),
		"status":         event.Code,
		"event_id":       event.ID,
	}
	if event.Logs != "" {
		fields["logs"] = event.Logs
	}
	p.logger.Info("Workflow status changed", fields)
	return nil
}

// Close is a no-op
func (p *LogPublisher) Close() error { return nil }
