package models

import (
	"time"
)

// RunState represents the lifecycle state of a workflow run
type RunState string

const (
	RunStateCreated  RunState = "created"
	RunStateRunning  RunState = "running"
	RunStateFinished RunState = "finished"
	RunStateFailed   RunState = "failed"
)

// Code returns the numeric status code understood by the status channel
func (s RunState) Code() int {
	switch s {
	case RunStateRunning:
		return 1
	case RunStateFinished:
		return 2
	case RunStateFailed:
		return 3
	default:
		return 0
	}
}

// RunStateFromCode maps a numeric status code back to a RunState
func RunStateFromCode(code int) (RunState, bool) {
	switch code {
	case 0:
		return RunStateCreated, true
	case 1:
		return RunStateRunning, true
	case 2:
		return RunStateFinished, true
	case 3:
		return RunStateFailed, true
	default:
		return "", false
	}
}

// RunRequest is the input to a single supervised workflow run
type RunRequest struct {
	RunID              string                 `json:"run_id"`
	WorkspaceName      string                 `json:"workspace_name"`
	WorkspaceRoot      string                 `json:"workspace_root"` // <shared volume>/<workspace name>
	SpecPath           string                 `json:"spec_path"`      // relative file path or remote reference
	Parameters         map[string]interface{} `json:"parameters,omitempty"`
	OperationalOptions map[string]interface{} `json:"operational_options,omitempty"`
}

// StatusEvent is a single lifecycle notification sent to the status channel
type StatusEvent struct {
	ID        string    `json:"event_id"`
	RunID     string    `json:"workflow_uuid"`
	State     RunState  `json:"-"`
	Code      int       `json:"status"`
	Logs      string    `json:"logs,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// RunOutcome is the result of a supervised run
type RunOutcome struct {
	RunID       string            `json:"run_id"`
	Workspace   string            `json:"workspace"`
	State       RunState          `json:"state"`
	Error       string            `json:"error,omitempty"`
	StartedAt   time.Time         `json:"started_at"`
	CompletedAt time.Time         `json:"completed_at"`
	Duration    time.Duration     `json:"duration"`
	Transitions []StateTransition `json:"state_transitions,omitempty"`
}

// Succeeded returns true if the run reached the finished state
func (o *RunOutcome) Succeeded() bool {
	return o != nil && o.State == RunStateFinished
}

// StateTransition tracks run state changes with timestamps
type StateTransition struct {
	From      RunState  `json:"from"`
	To        RunState  `json:"to"`
	Timestamp time.Time `json:"timestamp"`
	Reason    string    `json:"reason,omitempty"`
}
