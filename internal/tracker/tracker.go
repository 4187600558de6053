// Package tracker observes engine progress for a single run.
package tracker

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/psantana5/wfrunner/internal/engine"
	"github.com/psantana5/wfrunner/internal/report"
	"github.com/psantana5/wfrunner/pkg/logging"
	"github.com/psantana5/wfrunner/pkg/tracing"
)

// Config identifies the run being tracked. Run id and workspace are passed
// in explicitly; the tracker never reads them from the environment.
type Config struct {
	RunID       string
	Workspace   string
	LogInterval time.Duration
}

// HostSample is a snapshot of host load taken when tracking starts
type HostSample struct {
	Load1          float64
	Load5          float64
	MemUsedPercent float64
}

// Snapshot is the tracker's view of engine progress
type Snapshot struct {
	RunID     string         `json:"run_id"`
	Workspace string         `json:"workspace"`
	Reports   int            `json:"reports"`
	LastStep  string         `json:"last_step,omitempty"`
	LastState string         `json:"last_state,omitempty"`
	Steps     map[string]int `json:"steps,omitempty"`
	Finished  bool           `json:"finished"`
}

// Tracker implements engine.Observer
type Tracker struct {
	cfg     Config
	logger  *logging.Logger
	metrics *report.Metrics
	tracer  *tracing.Provider
	limiter *rate.Limiter

	sampleHost func() (*HostSample, error)

	mu      sync.Mutex
	spanCtx context.Context
	span    trace.Span
	state   Snapshot
}

var _ engine.Observer = (*Tracker)(nil)

// New creates a tracker. metrics and tracer may be nil.
func New(cfg Config, logger *logging.Logger, metrics *report.Metrics, tracer *tracing.Provider) *Tracker {
	if logger == nil {
		logger = logging.Discard()
	}

	limit := rate.Inf
	if cfg.LogInterval > 0 {
		limit = rate.Every(cfg.LogInterval)
	}

	return &Tracker{
		cfg: cfg,
		logger: logger.WithFields(logging.Fields{
			logging.RunIDKey:     cfg.RunID,
			logging.WorkspaceKey: cfg.Workspace,
		}),
		metrics:    metrics,
		tracer:     tracer,
		limiter:    rate.NewLimiter(limit, 1),
		sampleHost: sampleHost,
		state: Snapshot{
			RunID:     cfg.RunID,
			Workspace: cfg.Workspace,
			Steps:     make(map[string]int),
		},
	}
}

// Initialize starts the tracking span and logs host load
func (t *Tracker) Initialize(ctx context.Context, req *engine.ExecutionRequest) {
	spanCtx, span := t.tracer.StartSpan(ctx, "engine.track",
		tracing.RunIDKey.String(t.cfg.RunID),
		tracing.WorkspaceKey.String(t.cfg.Workspace),
	)

	t.mu.Lock()
	t.spanCtx, t.span = spanCtx, span
	t.mu.Unlock()

	fields := logging.Fields{}
	if req != nil {
		fields["backend"] = req.Backend
		fields["initdir"] = req.DataOptions.InitDir
	}
	if host, err := t.sampleHost(); err == nil {
		fields["load1"] = host.Load1
		fields["load5"] = host.Load5
		fields["mem_used_percent"] = host.MemUsedPercent
		span.SetAttributes(attribute.Float64("host.load1", host.Load1))
	} else {
		t.logger.Debug("Host load not available", logging.Fields{logging.ErrorKey: err})
	}

	t.logger.Info("Tracking workflow", fields)
}

// Track records a progress report. Step state changes to a terminal state
// are always logged; other reports are throttled to one per LogInterval.
func (t *Tracker) Track(ctx context.Context, r engine.ProgressReport) {
	t.mu.Lock()
	t.state.Reports++
	if r.Step != "" {
		t.state.LastStep = r.Step
	}
	if r.State != "" {
		t.state.LastState = r.State
	}
	if len(r.Steps) > 0 {
		t.state.Steps = make(map[string]int, len(r.Steps))
		for state, n := range r.Steps {
			t.state.Steps[state] = n
		}
	}
	reports := t.state.Reports
	spanCtx := t.spanCtx
	t.mu.Unlock()

	for state, n := range r.Steps {
		t.metrics.SetEngineSteps(state, n)
	}

	if spanCtx != nil {
		tracing.AddEvent(spanCtx, "progress",
			attribute.String("step", r.Step),
			attribute.String("state", r.State),
		)
	}

	if !isTerminalStep(r.State) && !t.limiter.Allow() {
		return
	}

	fields := logging.Fields{"reports": reports}
	if r.Step != "" {
		fields["step"] = r.Step
	}
	if r.State != "" {
		fields["step_state"] = r.State
	}
	if len(r.Steps) > 0 {
		fields["steps"] = formatSteps(r.Steps)
	}
	msg := r.Message
	if msg == "" {
		msg = "Workflow progress"
	}
	t.logger.Info(msg, fields)
}

// Finalize ends the tracking span
func (t *Tracker) Finalize(ctx context.Context, err error) {
	t.mu.Lock()
	t.state.Finished = true
	span, spanCtx := t.span, t.spanCtx
	reports := t.state.Reports
	t.mu.Unlock()

	fields := logging.Fields{"reports": reports}
	if err != nil {
		fields[logging.ErrorKey] = err
		if spanCtx != nil {
			tracing.SetError(spanCtx, err)
		}
		t.logger.Warn("Workflow tracking ended with error", fields)
	} else {
		t.logger.Info("Workflow tracking finished", fields)
	}

	if span != nil {
		span.End()
	}
}

// Snapshot returns a copy of the current progress view
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.state
	s.Steps = make(map[string]int, len(t.state.Steps))
	for k, v := range t.state.Steps {
		s.Steps[k] = v
	}
	return s
}

func isTerminalStep(state string) bool {
	switch state {
	case "done", "finished", "failed", "error":
		return true
	}
	return false
}

// formatSteps renders step counts as "state=n" pairs in sorted order
func formatSteps(steps map[string]int) []string {
	keys := make([]string, 0, len(steps))
	for k := range steps {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+strconv.Itoa(steps[k]))
	}
	return out
}

func sampleHost() (*HostSample, error) {
	avg, err := load.Avg()
	if err != nil {
		return nil, err
	}
	sample := &HostSample{Load1: avg.Load1, Load5: avg.Load5}
	if vm, err := mem.VirtualMemory(); err == nil {
		sample.MemUsedPercent = vm.UsedPercent
	}
	return sample, nil
}
