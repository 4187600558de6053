package report

// A run ends with exactly one terminal state.
// The result records it once and is never updated.

import (
	"fmt"
	"strings"
	"time"

	"github.com/psantana5/wfrunner/pkg/logging"
	"github.com/psantana5/wfrunner/pkg/models"
)

// Result is the immutable record of a finished run. It is the source of
// truth for the summary line and the run metrics.
type Result struct {
	RunID     string          `json:"run_id"`
	Workspace string          `json:"workspace"`
	State     models.RunState `json:"state"`
	Error     string          `json:"error,omitempty"`

	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"runtime_seconds"`

	// Phase durations keyed by phase name
	Phases map[string]time.Duration `json:"phases,omitempty"`
}

// NewResult freezes a run outcome
func NewResult(outcome *models.RunOutcome, phases map[string]time.Duration) *Result {
	copied := make(map[string]time.Duration, len(phases))
	for k, v := range phases {
		copied[k] = v
	}
	return &Result{
		RunID:     outcome.RunID,
		Workspace: outcome.Workspace,
		State:     outcome.State,
		Error:     outcome.Error,
		StartTime: outcome.StartedAt,
		EndTime:   outcome.CompletedAt,
		Duration:  outcome.CompletedAt.Sub(outcome.StartedAt),
		Phases:    copied,
	}
}

// Summary is the one-line human-readable form of the result
func (r *Result) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "RUN %s | state=%s | runtime=%.0fs | workspace=%s",
		r.RunID,
		strings.ToUpper(string(r.State)),
		r.Duration.Seconds(),
		r.Workspace,
	)
	if r.Error != "" {
		fmt.Fprintf(&b, " | error=%q", r.Error)
	}
	return b.String()
}

// LogSummary emits the summary line. This is what ops grep for.
func (r *Result) LogSummary(logger *logging.Logger) {
	fields := logging.Fields{
		logging.RunIDKey: r.RunID,
		logging.StateKey: string(r.State),
	}
	if r.State == models.RunStateFailed {
		logger.Error(r.Summary(), fields)
		return
	}
	logger.Info(r.Summary(), fields)
}
