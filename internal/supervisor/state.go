package supervisor

import (
	"fmt"
	"time"

	"github.com/psantana5/wfrunner/pkg/models"
)

// Supervisor phases, used in logs and spans
type Phase string

const (
	PhasePrepare Phase = "prepare"
	PhaseExecute Phase = "execute"
	PhaseReport  Phase = "report"
)

// lifecycle tracks the run state. States are only ever entered once.
type lifecycle struct {
	state       models.RunState
	phase       Phase
	transitions []models.StateTransition
	now         func() time.Time
}

func newLifecycle(now func() time.Time) *lifecycle {
	return &lifecycle{
		state: models.RunStateCreated,
		phase: PhasePrepare,
		now:   now,
	}
}

func (l *lifecycle) advance(to models.RunState, reason string) error {
	if err := models.ValidateTransition(l.state, to); err != nil {
		return fmt.Errorf("run lifecycle: %w", err)
	}
	l.transitions = append(l.transitions, models.StateTransition{
		From:      l.state,
		To:        to,
		Timestamp: l.now(),
		Reason:    reason,
	})
	l.state = to
	return nil
}
