package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psantana5/wfrunner/internal/config"
	"github.com/psantana5/wfrunner/internal/options"
	"github.com/psantana5/wfrunner/internal/report"
	"github.com/psantana5/wfrunner/internal/status"
	"github.com/psantana5/wfrunner/pkg/auth"
	"github.com/psantana5/wfrunner/pkg/logging"
	"github.com/psantana5/wfrunner/pkg/models"
)

const workflowSpec = `stages:
  - name: hello
    dependencies: [init]
    scheduler:
      scheduler_type: singlestep-stage
      step: {process: {process_type: string-interpolated-cmd, cmd: 'echo {x}'}}
`

type cliEnv struct {
	volume    string
	workspace string
	dbPath    string
}

// newCLIEnv points the CLI at a temporary shared volume and a SQLite status
// channel
func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	volume := t.TempDir()
	env := &cliEnv{
		volume:    volume,
		workspace: filepath.Join(volume, "users", "u1", "workflows", "w1"),
		dbPath:    filepath.Join(t.TempDir(), "status.db"),
	}
	require.NoError(t, os.MkdirAll(env.workspace, 0o755))

	t.Setenv("HOME", t.TempDir())
	t.Setenv("WFRUNNER_SHARED_VOLUME_PATH", volume)
	t.Setenv("WFRUNNER_WORKFLOW_UMASK", "0022")
	t.Setenv("WFRUNNER_STATUS_CHANNEL", "sqlite")
	t.Setenv("WFRUNNER_STATUS_DSN", env.dbPath)
	t.Setenv("WFRUNNER_LOG_LEVEL", "error")
	t.Setenv("WFRUNNER_CONTROLLER_URL", "")
	return env
}

func (e *cliEnv) write(t *testing.T, name, content string, mode os.FileMode) string {
	t.Helper()
	path := filepath.Join(e.workspace, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), mode))
	return path
}

func (e *cliEnv) engine(t *testing.T, script string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "engine.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0o755))
	t.Setenv("WFRUNNER_ENGINE_COMMAND", path)
}

func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	defer func() {
		rootCmd.SetArgs(nil)
		resetRunFlags(runRunFlags)
		resetRunFlags(resolveRunFlags)
	}()
	err := rootCmd.Execute()
	return buf.String(), err
}

// resetRunFlags clears values left behind by a previous command execution
func resetRunFlags(f *runFlags) {
	f.uuid, f.workspace, f.file = "", "", ""
	*f.parameters = *newPayloadValue(f.parameters.field)
	*f.options = *newPayloadValue(f.options.field)
}

func encode(t *testing.T, v map[string]interface{}) string {
	t.Helper()
	s, err := options.EncodePayload(v)
	require.NoError(t, err)
	return s
}

func history(t *testing.T, dbPath, runID string) []models.StatusEvent {
	t.Helper()
	store, err := status.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer store.Close()
	events, err := store.History(t.Context(), runID)
	require.NoError(t, err)
	return events
}

func states(events []models.StatusEvent) []models.RunState {
	out := make([]models.RunState, 0, len(events))
	for _, e := range events {
		out = append(out, e.State)
	}
	return out
}

func TestPayloadValueRejectsMalformedInput(t *testing.T) {
	v := newPayloadValue("workflow parameters")
	err := v.Set("b!!not-base64!!")
	require.Error(t, err)

	var decodeErr *options.DecodeError
	require.True(t, errors.As(err, &decodeErr))
	assert.Equal(t, "workflow parameters", decodeErr.Field)
	assert.Empty(t, v.data)

	require.NoError(t, v.Set(encode(t, map[string]interface{}{"x": 1.0})))
	assert.Equal(t, map[string]interface{}{"x": 1.0}, v.data)
	assert.Equal(t, "payload", v.Type())
}

func TestRunFinished(t *testing.T) {
	env := newCLIEnv(t)
	env.write(t, "workflow.yaml", workflowSpec, 0o644)
	env.engine(t, `echo '{"event":"progress","step":"hello","state":"done"}'`)

	_, err := executeCommand(t, "run",
		"--workflow-uuid", "run-ok",
		"--workflow-workspace", "users/u1/workflows/w1",
		"--workflow-file", "workflow.yaml",
		"--workflow-parameters", encode(t, map[string]interface{}{"x": "hi"}),
		"--operational-options", encode(t, map[string]interface{}{}),
	)
	require.NoError(t, err)

	assert.Equal(t,
		[]models.RunState{models.RunStateRunning, models.RunStateFinished},
		states(history(t, env.dbPath, "run-ok")))
}

func TestRunFailedExitsWithOne(t *testing.T) {
	env := newCLIEnv(t)
	env.write(t, "workflow.yaml", workflowSpec, 0o644)
	env.engine(t, "echo 'step hello crashed' >&2\nexit 4")

	_, err := executeCommand(t, "run",
		"--workflow-uuid", "run-bad",
		"--workflow-workspace", "users/u1/workflows/w1",
		"--workflow-file", "workflow.yaml",
	)
	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr), "got %v", err)
	assert.Equal(t, 1, exitErr.Code)

	events := history(t, env.dbPath, "run-bad")
	assert.Equal(t, []models.RunState{models.RunStateRunning, models.RunStateFailed}, states(events))
	assert.Contains(t, events[1].Logs, "workflow failed:")
	assert.Contains(t, events[1].Logs, "step hello crashed")
}

func TestRunMissingSpecReportsOnlyFailed(t *testing.T) {
	env := newCLIEnv(t)
	env.engine(t, "exit 0")

	_, err := executeCommand(t, "run",
		"--workflow-uuid", "run-missing",
		"--workflow-workspace", "users/u1/workflows/w1",
		"--workflow-file", "nope.yaml",
	)
	require.Error(t, err)

	events := history(t, env.dbPath, "run-missing")
	require.Len(t, events, 1)
	assert.Equal(t, models.RunStateFailed, events[0].State)
	assert.Equal(t, "workflow failed: Workflow file nope.yaml does not exist", events[0].Logs)
}

func TestRunMalformedPayloadPublishesNothing(t *testing.T) {
	env := newCLIEnv(t)
	env.write(t, "workflow.yaml", workflowSpec, 0o644)
	env.engine(t, "exit 0")

	_, err := executeCommand(t, "run",
		"--workflow-uuid", "run-garbled",
		"--workflow-workspace", "users/u1/workflows/w1",
		"--workflow-file", "workflow.yaml",
		"--operational-options", "b%%%",
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid operational options")
	assert.Empty(t, history(t, env.dbPath, "run-garbled"))
}

func TestRunBadMetricsTokenHashFailsBeforeStarting(t *testing.T) {
	env := newCLIEnv(t)
	env.write(t, "workflow.yaml", workflowSpec, 0o644)
	env.engine(t, "exit 0")
	t.Setenv("WFRUNNER_METRICS_ADDR", "127.0.0.1:0")
	t.Setenv("WFRUNNER_METRICS_TOKEN_HASH", "not-a-bcrypt-hash")

	_, err := executeCommand(t, "run",
		"--workflow-uuid", "run-badhash",
		"--workflow-workspace", "users/u1/workflows/w1",
		"--workflow-file", "workflow.yaml",
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "metrics.token_hash")
	assert.Empty(t, history(t, env.dbPath, "run-badhash"))
}

func TestFailSetupReportsFailed(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "status.db")
	cfg := &config.Config{Status: config.StatusConfig{Channel: status.ChannelSQLite, DSN: dbPath}}
	logger := logging.Discard()
	reporter := newReporter(cfg, logger, report.NewMetrics())

	err := failSetup(t.Context(), reporter, logger, "run-setup", errors.New("engine command is empty"))
	require.NoError(t, reporter.Close())

	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 1, exitErr.Code)

	events := history(t, dbPath, "run-setup")
	require.Len(t, events, 1)
	assert.Equal(t, models.RunStateFailed, events[0].State)
	assert.Equal(t, "workflow failed: engine command is empty", events[0].Logs)
}

func TestResolveJSON(t *testing.T) {
	env := newCLIEnv(t)
	env.write(t, "workflow.yaml", workflowSpec, 0o644)
	env.write(t, "inputs/a.yaml", "x: 1\ny: 2\n", 0o644)

	out, err := executeCommand(t, "resolve", "--output", "json",
		"--workflow-uuid", "run-dry",
		"--workflow-workspace", "users/u1/workflows/w1",
		"--workflow-file", "workflow.yaml",
		"--workflow-parameters", encode(t, map[string]interface{}{"y": 3}),
		"--operational-options", encode(t, map[string]interface{}{
			"initdir":   "inputs",
			"initfiles": []interface{}{"inputs/a.yaml"},
		}),
	)
	require.NoError(t, err)

	var result resolveResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, env.workspace, result.Workspace)
	assert.Equal(t, env.workspace, result.Toplevel)
	assert.Equal(t, filepath.Join(env.workspace, "inputs"), result.InitDir)
	assert.Equal(t, []string{filepath.Join(env.workspace, "inputs", "a.yaml")}, result.InitFiles)
	assert.Equal(t, map[string]interface{}{"x": 1.0, "y": 3.0}, result.InitialData)

	assert.Empty(t, history(t, env.dbPath, "run-dry"))
}

func TestResolveTable(t *testing.T) {
	env := newCLIEnv(t)
	env.write(t, "workflow.yaml", workflowSpec, 0o644)

	out, err := executeCommand(t, "resolve", "--output", "table",
		"--workflow-uuid", "run-table",
		"--workflow-workspace", "users/u1/workflows/w1",
		"--workflow-file", "workflow.yaml",
	)
	require.NoError(t, err)
	assert.Contains(t, out, "Run ID")
	assert.Contains(t, out, "run-table")
}

func TestValidate(t *testing.T) {
	env := newCLIEnv(t)
	env.write(t, "specs/workflow.yaml", workflowSpec, 0o644)
	env.write(t, "specs/broken.yaml", "stages: [{name: a}]\n", 0o644)

	out, err := executeCommand(t, "validate",
		"--workflow-workspace", "users/u1/workflows/w1",
		"--toplevel", "specs",
		"--workflow-file", "workflow.yaml",
	)
	require.NoError(t, err)
	assert.Contains(t, out, "is valid (yadage/workflow-schema)")

	_, err = executeCommand(t, "validate",
		"--workflow-workspace", "users/u1/workflows/w1",
		"--toplevel", "specs",
		"--workflow-file", "broken.yaml",
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed validation against")
}

func TestEventsRequiresSQLChannel(t *testing.T) {
	newCLIEnv(t)
	t.Setenv("WFRUNNER_STATUS_CHANNEL", "log")

	_, err := executeCommand(t, "events", "--workflow-uuid", "run-x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "keeps no history")
}

func TestEventsTable(t *testing.T) {
	env := newCLIEnv(t)
	store, err := status.NewSQLiteStore(env.dbPath)
	require.NoError(t, err)
	require.NoError(t, store.Publish(t.Context(), status.NewEvent("run-h", models.RunStateRunning, "")))
	require.NoError(t, store.Publish(t.Context(), status.NewEvent("run-h", models.RunStateFinished, "")))
	require.NoError(t, store.Close())

	out, err := executeCommand(t, "events", "--output", "table", "--workflow-uuid", "run-h")
	require.NoError(t, err)
	assert.Contains(t, out, "running")
	assert.Contains(t, out, "finished")
}

func TestVersion(t *testing.T) {
	out, err := executeCommand(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "wfrunner "+Version)
}

func TestConfigShowRedactsAPIKey(t *testing.T) {
	env := newCLIEnv(t)
	t.Setenv("WFRUNNER_STATUS_API_KEY", "s3cret")

	out, err := executeCommand(t, "config", "show", "--output", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "shared_volume_path: "+env.volume)
	assert.Contains(t, out, "api_key: <redacted>")
	assert.NotContains(t, out, "s3cret")
}

func TestConfigHashToken(t *testing.T) {
	newCLIEnv(t)
	rootCmd.SetIn(strings.NewReader("scrape-token\n"))
	defer rootCmd.SetIn(nil)

	out, err := executeCommand(t, "config", "hash-token")
	require.NoError(t, err)

	v, err := auth.NewHashVerifier(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.NoError(t, v.Verify("scrape-token"))
}
