// Package engine is the boundary to the external workflow-execution engine.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DataOptions tells the engine where workflow data lives
type DataOptions struct {
	InitDir string `json:"initdir"`
}

// ExecutionRequest is everything the engine needs to run one workflow
type ExecutionRequest struct {
	RunID          string
	Workspace      string
	Spec           map[string]interface{}
	SpecLocation   string
	DataOptions    DataOptions
	InitialData    map[string]interface{}
	Backend        string
	AcceptMetadir  bool
	Visualize      bool
	UpdateInterval time.Duration
	LogInterval    time.Duration
	Passthrough    map[string]interface{}
}

// ProgressReport is a step-level progress notification from the engine
type ProgressReport struct {
	Event   string         `json:"event"`
	Step    string         `json:"step,omitempty"`
	State   string         `json:"state,omitempty"`
	Steps   map[string]int `json:"steps,omitempty"`
	Message string         `json:"message,omitempty"`
}

// Observer is notified of engine progress. The runner supplies one but
// does not interpret the reports itself.
type Observer interface {
	Initialize(ctx context.Context, req *ExecutionRequest)
	Track(ctx context.Context, report ProgressReport)
	Finalize(ctx context.Context, err error)
}

// Engine runs a workflow to completion, returning nil on success
type Engine interface {
	Execute(ctx context.Context, req *ExecutionRequest, observer Observer) error
}

// Func adapts an in-process function to the Engine interface
type Func func(ctx context.Context, req *ExecutionRequest, observer Observer) error

// Execute calls f
func (f Func) Execute(ctx context.Context, req *ExecutionRequest, observer Observer) error {
	return f(ctx, req, observer)
}

// ExecutionError wraps any failure raised during delegated execution
type ExecutionError struct {
	ExitCode int // -1 when the engine did not exit normally
	Err      error
}

func (e *ExecutionError) Error() string {
	if e.ExitCode > 0 {
		return fmt.Sprintf("engine exited with code %d: %v", e.ExitCode, e.Err)
	}
	return fmt.Sprintf("engine execution failed: %v", e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// Run drives the observer lifecycle around a single engine call. Any error
// or panic from the engine comes back as an *ExecutionError.
func Run(ctx context.Context, e Engine, req *ExecutionRequest, observer Observer) (err error) {
	if observer == nil {
		observer = Observers()
	}

	observer.Initialize(ctx, req)
	defer func() {
		if p := recover(); p != nil {
			err = &ExecutionError{ExitCode: -1, Err: fmt.Errorf("engine panicked: %v", p)}
		}
		observer.Finalize(ctx, err)
	}()

	if err := e.Execute(ctx, req, observer); err != nil {
		var execErr *ExecutionError
		if errors.As(err, &execErr) {
			return err
		}
		return &ExecutionError{ExitCode: -1, Err: err}
	}
	return nil
}

type multiObserver []Observer

// Observers fans notifications out to each observer in order
func Observers(observers ...Observer) Observer {
	var list multiObserver
	for _, o := range observers {
		if o != nil {
			list = append(list, o)
		}
	}
	return list
}

func (m multiObserver) Initialize(ctx context.Context, req *ExecutionRequest) {
	for _, o := range m {
		o.Initialize(ctx, req)
	}
}

func (m multiObserver) Track(ctx context.Context, report ProgressReport) {
	for _, o := range m {
		o.Track(ctx, report)
	}
}

func (m multiObserver) Finalize(ctx context.Context, err error) {
	for _, o := range m {
		o.Finalize(ctx, err)
	}
}
