package status

import (
	"context"
	"time"

	"github.com/psantana5/wfrunner/internal/report"
	"github.com/psantana5/wfrunner/pkg/logging"
	"github.com/psantana5/wfrunner/pkg/models"
)

// Delivery is the outcome of one best-effort publish
type Delivery struct {
	Event models.StatusEvent
	Err   error
}

// Delivered returns true if the event reached the channel
func (d Delivery) Delivered() bool {
	return d.Err == nil
}

// Reporter wraps a Publisher so that delivery failures are logged and
// counted but never returned to the caller
type Reporter struct {
	publisher Publisher
	logger    *logging.Logger
	metrics   *report.Metrics
	timeout   time.Duration
}

// NewReporter creates a best-effort reporter. A nil publisher is allowed:
// every report is then logged as undeliverable.
func NewReporter(publisher Publisher, logger *logging.Logger, metrics *report.Metrics) *Reporter {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Reporter{
		publisher: publisher,
		logger:    logger,
		metrics:   metrics,
		timeout:   30 * time.Second,
	}
}

// Report makes one delivery attempt for the given state. It never panics
// and never returns an error; the Delivery says what happened.
func (r *Reporter) Report(ctx context.Context, runID string, state models.RunState, logs string) (d Delivery) {
	d.Event = NewEvent(runID, state, logs)

	fields := logging.Fields{
		logging.RunIDKey: runID,
		logging.StateKey: string(state),
		"status":         d.Event.Code,
	}

	if r.publisher == nil {
		d.Err = &PublishError{Channel: "none", RunID: runID, State: state, Err: errNoPublisher}
		r.logger.Error("Workflow status could not be published", fields)
		r.metrics.RecordPublish(state, false)
		return d
	}

	defer func() {
		if p := recover(); p != nil {
			d.Err = &PublishError{Channel: "unknown", RunID: runID, State: state, Err: panicError{p}}
			fields[logging.ErrorKey] = d.Err
			r.logger.Error("Status publisher panicked", fields)
			r.metrics.RecordPublish(state, false)
		}
	}()

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	if err := r.publisher.Publish(pubCtx, d.Event); err != nil {
		d.Err = err
		fields[logging.ErrorKey] = err
		r.logger.Error("Failed to publish workflow status", fields)
		r.metrics.RecordPublish(state, false)
		return d
	}

	r.logger.Debug("Published workflow status", fields)
	r.metrics.RecordPublish(state, true)
	return d
}

// Close closes the underlying publisher
func (r *Reporter) Close() error {
	if r.publisher == nil {
		return nil
	}
	return r.publisher.Close()
}
