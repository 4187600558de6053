package engine

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/psantana5/wfrunner/internal/observe"
	"github.com/psantana5/wfrunner/pkg/logging"
)

const (
	requestDir    = ".wfrunner"
	stderrTailLen = 20
)

// wireRequest is the JSON document handed to the engine command
type wireRequest struct {
	RunID          string                 `json:"workflow_uuid"`
	Workspace      string                 `json:"workflow_workspace"`
	WorkflowJSON   map[string]interface{} `json:"workflow_json"`
	SpecLocation   string                 `json:"spec_location,omitempty"`
	DataOptions    DataOptions            `json:"dataopts"`
	InitialData    map[string]interface{} `json:"initdata"`
	Backend        string                 `json:"backend"`
	AcceptMetadir  bool                   `json:"accept_metadir"`
	Visualize      bool                   `json:"visualize"`
	UpdateInterval float64                `json:"updateinterval"`
	LogInterval    float64                `json:"loginterval"`
	Options        map[string]interface{} `json:"options,omitempty"`
}

// CommandEngine runs an external engine process. The request is written to
// <workspace>/.wfrunner/request-<run_id>.json and its path is appended to
// the command line.
type CommandEngine struct {
	command []string
	logger  *logging.Logger
	grace   time.Duration
}

// NewCommandEngine creates an engine that runs command
func NewCommandEngine(command []string, logger *logging.Logger) (*CommandEngine, error) {
	if len(command) == 0 || command[0] == "" {
		return nil, errors.New("engine command is empty")
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &CommandEngine{
		command: append([]string(nil), command...),
		logger:  logger,
		grace:   10 * time.Second,
	}, nil
}

// WriteRequest writes the request file and returns its path
func WriteRequest(req *ExecutionRequest) (string, error) {
	if !validRunID(req.RunID) {
		return "", fmt.Errorf("run id %q cannot name a request file", req.RunID)
	}
	dir := filepath.Join(req.Workspace, requestDir)
	if err := os.MkdirAll(dir, 0o775); err != nil {
		return "", fmt.Errorf("failed to create request directory: %w", err)
	}

	data, err := json.MarshalIndent(wireRequest{
		RunID:          req.RunID,
		Workspace:      req.Workspace,
		WorkflowJSON:   req.Spec,
		SpecLocation:   req.SpecLocation,
		DataOptions:    req.DataOptions,
		InitialData:    req.InitialData,
		Backend:        req.Backend,
		AcceptMetadir:  req.AcceptMetadir,
		Visualize:      req.Visualize,
		UpdateInterval: req.UpdateInterval.Seconds(),
		LogInterval:    req.LogInterval.Seconds(),
		Options:        req.Passthrough,
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	path := filepath.Join(dir, "request-"+req.RunID+".json")
	if err := os.WriteFile(path, data, 0o664); err != nil {
		return "", fmt.Errorf("failed to write request: %w", err)
	}
	return path, nil
}

// validRunID reports whether id is a single path element
func validRunID(id string) bool {
	return id != "" && id != "." && id != ".." && filepath.Base(id) == id && !strings.ContainsRune(id, '\\')
}

// Execute runs the engine command in the workspace and blocks until it exits
func (e *CommandEngine) Execute(ctx context.Context, req *ExecutionRequest, observer Observer) error {
	requestPath, err := WriteRequest(req)
	if err != nil {
		return &ExecutionError{ExitCode: -1, Err: err}
	}

	args := append(append([]string(nil), e.command[1:]...), requestPath)
	cmd := exec.CommandContext(ctx, e.command[0], args...)
	cmd.Dir = req.Workspace

	// Own process group so the engine and its steps can be signalled together
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
		Pgid:    0,
	}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
	}
	cmd.WaitDelay = e.grace

	outR, outW := io.Pipe()
	errR, errW := io.Pipe()
	cmd.Stdout = outW
	cmd.Stderr = errW

	logger := e.logger.WithField(logging.RunIDKey, req.RunID)

	tail := newLineTail(stderrTailLen)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		e.forwardStdout(ctx, outR, observer, logger)
	}()
	go func() {
		defer wg.Done()
		scanLines(errR, func(line string) {
			tail.add(line)
			logger.Warn(line, logging.Fields{"stream": "stderr"})
		})
	}()

	closeStreams := func() {
		outW.Close()
		errW.Close()
		wg.Wait()
	}

	if err := cmd.Start(); err != nil {
		closeStreams()
		return &ExecutionError{ExitCode: -1, Err: fmt.Errorf("failed to start %s: %w", e.command[0], err)}
	}
	pid := cmd.Process.Pid
	logger.Info("Engine started", logging.Fields{"pid": pid, "command": strings.Join(e.command, " ")})

	waitErr := cmd.Wait()
	closeStreams()

	if observe.NewGroupWatcher(pid).Reap(e.grace) {
		logger.Warn("Engine left processes behind, process group terminated", logging.Fields{"pgid": pid})
	}

	if errors.Is(waitErr, exec.ErrWaitDelay) {
		// Exited cleanly but a child kept the output streams open
		logger.Warn("Engine output streams were still open after exit", logging.Fields{"pid": pid})
		waitErr = nil
	}
	if waitErr == nil {
		logger.Info("Engine finished", logging.Fields{"pid": pid})
		return nil
	}

	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) && exitErr.ExitCode() > 0 {
		return &ExecutionError{ExitCode: exitErr.ExitCode(), Err: tail.err(waitErr)}
	}
	if ctx.Err() != nil {
		return &ExecutionError{ExitCode: -1, Err: ctx.Err()}
	}
	return &ExecutionError{ExitCode: -1, Err: tail.err(waitErr)}
}

// forwardStdout hands progress lines to the observer and logs the rest
func (e *CommandEngine) forwardStdout(ctx context.Context, r io.Reader, observer Observer, logger *logging.Logger) {
	scanLines(r, func(line string) {
		if report, ok := parseProgress(line); ok {
			if observer != nil {
				observer.Track(ctx, report)
			}
			return
		}
		logger.Info(line, logging.Fields{"stream": "stdout"})
	})
}

func parseProgress(line string) (ProgressReport, bool) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "{") {
		return ProgressReport{}, false
	}
	var report ProgressReport
	if err := json.Unmarshal([]byte(trimmed), &report); err != nil {
		return ProgressReport{}, false
	}
	return report, report.Event == "progress"
}

func scanLines(r io.Reader, fn func(string)) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			fn(line)
		}
	}
	// Drain whatever is left so the child never blocks on a full pipe
	_, _ = io.Copy(io.Discard, r)
}

// lineTail keeps the last n stderr lines for the failure message
type lineTail struct {
	mu    sync.Mutex
	n     int
	lines []string
}

func newLineTail(n int) *lineTail {
	return &lineTail{n: n}
}

func (t *lineTail) add(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines = append(t.lines, line)
	if len(t.lines) > t.n {
		t.lines = t.lines[len(t.lines)-t.n:]
	}
}

func (t *lineTail) err(cause error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.lines) == 0 {
		return cause
	}
	return fmt.Errorf("%w: %s", cause, t.lines[len(t.lines)-1])
}
