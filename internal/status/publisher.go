// Package status delivers run lifecycle events to the status channel.
package status

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/psantana5/wfrunner/pkg/models"
)

// Publisher delivers a single status event. Implementations make at most
// one delivery attempt per call.
type Publisher interface {
	Publish(ctx context.Context, event models.StatusEvent) error
	Close() error
}

// PublishError wraps a failed delivery
type PublishError struct {
	Channel string
	RunID   string
	State   models.RunState
	Err     error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("failed to publish %s status for run %s via %s: %v", e.State, e.RunID, e.Channel, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

// NewEvent builds a status event with a fresh id
func NewEvent(runID string, state models.RunState, logs string) models.StatusEvent {
	return models.StatusEvent{
		ID:        uuid.New().String(),
		RunID:     runID,
		State:     state,
		Code:      state.Code(),
		Logs:      logs,
		Timestamp: time.Now().UTC(),
	}
}
