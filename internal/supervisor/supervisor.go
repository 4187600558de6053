// Package supervisor runs a single workflow and guarantees that exactly one
// terminal status is reported for it.
package supervisor

// Every run ends in FINISHED or FAILED, reported once.
// RUNNING is only reported after preparation has fully succeeded.
// A failed status delivery is logged and never fails the run a second time.

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/psantana5/wfrunner/internal/engine"
	"github.com/psantana5/wfrunner/internal/initdata"
	"github.com/psantana5/wfrunner/internal/observe"
	"github.com/psantana5/wfrunner/internal/options"
	"github.com/psantana5/wfrunner/internal/report"
	"github.com/psantana5/wfrunner/internal/spec"
	"github.com/psantana5/wfrunner/internal/status"
	"github.com/psantana5/wfrunner/internal/tracker"
	"github.com/psantana5/wfrunner/pkg/logging"
	"github.com/psantana5/wfrunner/pkg/models"
	"github.com/psantana5/wfrunner/pkg/resources"
	"github.com/psantana5/wfrunner/pkg/tracing"
)

// SpecLoader loads and validates a workflow spec
type SpecLoader interface {
	Load(ctx context.Context, req spec.LoadRequest) (*spec.Document, error)
}

// ConnectivityChecker verifies an external collaborator is reachable
type ConnectivityChecker interface {
	Check(ctx context.Context) error
}

// Settings are the engine and preparation knobs taken from configuration
type Settings struct {
	Schema         string
	Backend        string
	Visualize      bool
	UpdateInterval time.Duration
	LogInterval    time.Duration
	MinFreeMB      int
	// SkipValidation loads the spec without checking it against Schema.
	// Only dry runs set it.
	SkipValidation bool
}

// DefaultSettings mirror the engine defaults
func DefaultSettings() Settings {
	return Settings{
		Schema:         spec.DefaultSchema,
		Backend:        "fromenv",
		Visualize:      true,
		UpdateInterval: 5 * time.Second,
		LogInterval:    5 * time.Second,
	}
}

// Supervisor drives one run through preparation, execution and reporting
type Supervisor struct {
	loader    SpecLoader
	engine    engine.Engine
	reporter  *status.Reporter
	checker   ConnectivityChecker
	logger    *logging.Logger
	metrics   *report.Metrics
	tracer    *tracing.Provider
	settings  Settings
	observers []engine.Observer
	onTracker func(*tracker.Tracker)
	now       func() time.Time
}

// Option configures a Supervisor
type Option func(*Supervisor)

// WithChecker adds a connectivity check to the preparation phase
func WithChecker(c ConnectivityChecker) Option {
	return func(s *Supervisor) { s.checker = c }
}

// WithMetrics records run metrics
func WithMetrics(m *report.Metrics) Option {
	return func(s *Supervisor) { s.metrics = m }
}

// WithTracer traces the run and its phases
func WithTracer(p *tracing.Provider) Option {
	return func(s *Supervisor) { s.tracer = p }
}

// WithSettings overrides DefaultSettings
func WithSettings(settings Settings) Option {
	return func(s *Supervisor) { s.settings = settings }
}

// WithObserver attaches an additional engine observer
func WithObserver(o engine.Observer) Option {
	return func(s *Supervisor) { s.observers = append(s.observers, o) }
}

// WithTrackerHook is called with the run's tracker before the engine starts
func WithTrackerHook(fn func(*tracker.Tracker)) Option {
	return func(s *Supervisor) { s.onTracker = fn }
}

// New creates a supervisor. A nil reporter is tolerated: terminal states
// are then only logged.
func New(loader SpecLoader, eng engine.Engine, reporter *status.Reporter, logger *logging.Logger, opts ...Option) *Supervisor {
	if logger == nil {
		logger = logging.Discard()
	}
	s := &Supervisor{
		loader:   loader,
		engine:   eng,
		reporter: reporter,
		logger:   logger,
		settings: DefaultSettings(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// prepared is the output of a successful preparation phase
type prepared struct {
	resolved    *options.Resolved
	document    *spec.Document
	initialData map[string]interface{}
}

// Preparation is the outcome of a dry run
type Preparation struct {
	Options     *options.Resolved
	Spec        *spec.Document
	InitialData map[string]interface{}
}

// Prepare runs the preparation phase alone. Nothing is published and the
// engine is never started.
func (s *Supervisor) Prepare(ctx context.Context, req models.RunRequest) (*Preparation, error) {
	logger := s.logger.WithFields(logging.Fields{
		logging.RunIDKey:     req.RunID,
		logging.WorkspaceKey: req.WorkspaceRoot,
	})
	p, err := s.prepare(ctx, req, logger)
	if err != nil {
		return nil, err
	}
	return &Preparation{Options: p.resolved, Spec: p.document, InitialData: p.initialData}, nil
}

// Run supervises a single workflow run. It blocks until the engine returns
// and never panics; the outcome carries the terminal state.
func (s *Supervisor) Run(ctx context.Context, req models.RunRequest) (outcome *models.RunOutcome) {
	timing := observe.NewTiming()
	life := newLifecycle(s.now)
	logger := s.logger.WithFields(logging.Fields{
		logging.RunIDKey:     req.RunID,
		logging.WorkspaceKey: req.WorkspaceRoot,
	})

	ctx, span := s.tracer.StartSpan(ctx, "workflow.run",
		tracing.RunIDKey.String(req.RunID),
		tracing.WorkspaceKey.String(req.WorkspaceRoot),
	)

	var runErr error
	defer func() {
		if p := recover(); p != nil {
			runErr = fmt.Errorf("panic during %s: %v", life.phase, p)
		}
		outcome = s.finish(ctx, req, life, timing, runErr, logger)
		span.SetAttributes(tracing.StateKey.String(string(outcome.State)))
		if runErr != nil {
			tracing.SetError(ctx, runErr)
		}
		span.End()
	}()

	logger.Info("Preparing workflow run", logging.Fields{logging.PhaseKey: string(PhasePrepare)})

	stopPrepare := timing.StartPhase(string(PhasePrepare))
	p, err := s.prepare(ctx, req, logger)
	stopPrepare()
	if err != nil {
		runErr = err
		return
	}

	life.phase = PhaseExecute
	if err := life.advance(models.RunStateRunning, "preparation complete"); err != nil {
		runErr = err
		return
	}
	s.publish(ctx, req.RunID, models.RunStateRunning, "", logger)

	stopExecute := timing.StartPhase(string(PhaseExecute))
	runErr = s.execute(ctx, req, p, logger)
	stopExecute()
	return
}

// prepare resolves options, loads the spec, merges initial data and checks
// collaborators. Nothing here is published.
func (s *Supervisor) prepare(ctx context.Context, req models.RunRequest, logger *logging.Logger) (*prepared, error) {
	ctx, span := s.tracer.StartSpan(ctx, "workflow.prepare")
	defer span.End()

	opts, err := options.ParseOperationalOptions(req.OperationalOptions)
	if err != nil {
		return nil, &PreparationError{Step: StepOptions, Err: err}
	}
	resolved := options.Resolve(req.WorkspaceRoot, opts)
	logger.Debug("Resolved operational options", logging.Fields{
		"toplevel":  resolved.Toplevel,
		"initdir":   resolved.InitDir,
		"initfiles": resolved.InitFiles,
	})

	if s.settings.MinFreeMB > 0 {
		info, err := resources.EnsureSufficientDiskSpace(req.WorkspaceRoot, s.settings.MinFreeMB)
		if err != nil {
			return nil, &PreparationError{Step: StepWorkspace, Err: err}
		}
		logger.Debug("Workspace disk space ok", logging.Fields{"available_mb": info.AvailableMB})
	}

	specPath := req.SpecPath
	if !options.IsRemote(req.SpecPath) && !options.IsRemote(resolved.Toplevel) {
		specPath = options.JoinWorkspace(resolved.Toplevel, req.SpecPath)
		if err := spec.CheckWorkflowFile(req.SpecPath, specPath); err != nil {
			return nil, &PreparationError{Step: StepSpecFile, Err: err}
		}
	}

	doc, err := s.loader.Load(ctx, spec.LoadRequest{
		SpecPath: specPath,
		Toplevel: resolved.Toplevel,
		Schema:   s.settings.Schema,
		Validate: !s.settings.SkipValidation,
	})
	if err != nil {
		return nil, &PreparationError{Step: StepSpec, Err: err}
	}
	tracing.AddEvent(ctx, "spec.loaded", attribute.String("location", doc.Location))

	data, err := initdata.Merge(resolved.InitFiles, req.Parameters)
	if err != nil {
		return nil, &PreparationError{Step: StepInitData, Err: err}
	}

	if s.checker != nil {
		if err := s.checker.Check(ctx); err != nil {
			return nil, &PreparationError{Step: StepController, Err: err}
		}
	}

	return &prepared{resolved: resolved, document: doc, initialData: data}, nil
}

// execute hands the prepared run to the engine with a tracker attached
func (s *Supervisor) execute(ctx context.Context, req models.RunRequest, p *prepared, logger *logging.Logger) error {
	ctx, span := s.tracer.StartSpan(ctx, "workflow.execute")
	defer span.End()

	execReq := &engine.ExecutionRequest{
		RunID:          req.RunID,
		Workspace:      req.WorkspaceRoot,
		Spec:           p.document.Content,
		SpecLocation:   p.document.Location,
		DataOptions:    engine.DataOptions{InitDir: p.resolved.InitDir},
		InitialData:    p.initialData,
		Backend:        s.settings.Backend,
		AcceptMetadir:  p.resolved.AcceptMetadir,
		Visualize:      s.settings.Visualize,
		UpdateInterval: s.settings.UpdateInterval,
		LogInterval:    s.settings.LogInterval,
		Passthrough:    p.resolved.Passthrough,
	}

	t := tracker.New(tracker.Config{
		RunID:       req.RunID,
		Workspace:   req.WorkspaceRoot,
		LogInterval: s.settings.LogInterval,
	}, s.logger, s.metrics, s.tracer)
	if s.onTracker != nil {
		s.onTracker(t)
	}

	observers := append([]engine.Observer{t}, s.observers...)

	logger.Info("Running workflow", logging.Fields{
		logging.PhaseKey: string(PhaseExecute),
		"backend":        execReq.Backend,
		"initdir":        execReq.DataOptions.InitDir,
	})
	return engine.Run(ctx, s.engine, execReq, engine.Observers(observers...))
}

// finish moves the run into its terminal state and reports it. It runs
// exactly once per Run, on every exit path.
func (s *Supervisor) finish(ctx context.Context, req models.RunRequest, life *lifecycle, timing *observe.Timing, runErr error, logger *logging.Logger) *models.RunOutcome {
	life.phase = PhaseReport
	fields := logging.Fields{logging.PhaseKey: string(PhaseReport)}

	terminal := models.RunStateFinished
	reason := "engine returned"
	if runErr != nil {
		terminal = models.RunStateFailed
		reason = runErr.Error()
	}
	if err := life.advance(terminal, reason); err != nil {
		// Only reachable if the lifecycle is already terminal
		logger.Error("Invalid terminal transition", logging.Fields{logging.ErrorKey: err})
	}

	if runErr != nil {
		fields[logging.ErrorKey] = runErr
		logger.Error(fmt.Sprintf("Workflow failed: %v", runErr), fields)
		s.publish(ctx, req.RunID, models.RunStateFailed, fmt.Sprintf("workflow failed: %v", runErr), logger)
	} else {
		s.publish(ctx, req.RunID, models.RunStateFinished, "", logger)
		logger.Info(fmt.Sprintf("Workflow %s finished. Files available at %s.", req.RunID, req.WorkspaceRoot), fields)
	}

	timing.Complete()
	outcome := &models.RunOutcome{
		RunID:       req.RunID,
		Workspace:   req.WorkspaceRoot,
		State:       life.state,
		StartedAt:   timing.StartedAt,
		CompletedAt: timing.CompletedAt,
		Duration:    timing.Duration(),
		Transitions: life.transitions,
	}
	if runErr != nil {
		outcome.Error = runErr.Error()
	}

	result := report.NewResult(outcome, timing.Phases())
	result.LogSummary(logger)
	s.metrics.RecordResult(result)

	return outcome
}

func (s *Supervisor) publish(ctx context.Context, runID string, state models.RunState, logs string, logger *logging.Logger) {
	if s.reporter == nil {
		logger.Error(fmt.Sprintf("Workflow %s is %s but status could not be published.", runID, state))
		return
	}
	s.reporter.Report(ctx, runID, state, logs)
}
