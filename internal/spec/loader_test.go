package spec

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const workflowYAML = `stages:
  - name: hello
    dependencies: [init]
    scheduler:
      scheduler_type: singlestep-stage
      parameters:
        message: {step: init, output: msg}
      step: {$ref: 'steps.yaml#/hello'}
`

const stepsYAML = `hello:
  process:
    process_type: string-interpolated-cmd
    cmd: 'echo {message}'
  environment:
    environment_type: docker-encapsulated
    image: busybox
`

func writeSpec(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func stageStep(t *testing.T, doc *Document) map[string]interface{} {
	t.Helper()
	stages, ok := doc.Content["stages"].([]interface{})
	require.True(t, ok)
	require.Len(t, stages, 1)
	stage := stages[0].(map[string]interface{})
	scheduler := stage["scheduler"].(map[string]interface{})
	return scheduler["step"].(map[string]interface{})
}

func TestLoadLocalWithRefs(t *testing.T) {
	dir := t.TempDir()
	writeSpec(t, dir, "workflow.yaml", workflowYAML)
	writeSpec(t, dir, "steps.yaml", stepsYAML)

	loader := NewLoader(Config{}, nil)
	doc, err := loader.Load(context.Background(), LoadRequest{
		SpecPath: "workflow.yaml",
		Toplevel: dir,
		Validate: true,
	})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "workflow.yaml"), doc.Location)
	assert.Equal(t, DefaultSchema, doc.Schema)

	step := stageStep(t, doc)
	process := step["process"].(map[string]interface{})
	assert.Equal(t, "echo {message}", process["cmd"])
}

func TestLoadNestedRefDirectories(t *testing.T) {
	dir := t.TempDir()
	writeSpec(t, dir, "workflow.yaml", `stages: {$ref: 'parts/stages.yaml'}`)
	writeSpec(t, dir, "parts/stages.yaml", `- name: only
  scheduler: {$ref: 'scheduler.yaml'}
`)
	writeSpec(t, dir, "parts/scheduler.yaml", `scheduler_type: singlestep-stage`)

	doc, err := NewLoader(Config{}, nil).Load(context.Background(), LoadRequest{
		SpecPath: "workflow.yaml",
		Toplevel: dir,
		Validate: true,
	})
	require.NoError(t, err)

	stages := doc.Content["stages"].([]interface{})
	scheduler := stages[0].(map[string]interface{})["scheduler"].(map[string]interface{})
	assert.Equal(t, "singlestep-stage", scheduler["scheduler_type"])
}

func TestLoadMissingSpec(t *testing.T) {
	_, err := NewLoader(Config{}, nil).Load(context.Background(), LoadRequest{
		SpecPath: "nope.yaml",
		Toplevel: t.TempDir(),
		Validate: true,
	})

	var notFound *NotFoundError
	require.True(t, errors.As(err, &notFound), "got %v", err)
}

func TestLoadValidationFailures(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"missing stages", "name: workflow\n"},
		{"stage without scheduler", "stages:\n  - name: a\n"},
		{"stage with empty name", "stages:\n  - name: ''\n    scheduler: {scheduler_type: x}\n"},
		{"stages not a list", "stages: 3\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeSpec(t, dir, "workflow.yaml", tt.content)

			_, err := NewLoader(Config{}, nil).Load(context.Background(), LoadRequest{
				SpecPath: "workflow.yaml",
				Toplevel: dir,
				Validate: true,
			})

			var validationErr *ValidationError
			require.True(t, errors.As(err, &validationErr), "got %v", err)
			assert.Equal(t, DefaultSchema, validationErr.Schema)
		})
	}
}

func TestLoadWithoutValidation(t *testing.T) {
	dir := t.TempDir()
	writeSpec(t, dir, "workflow.yaml", "name: not-a-workflow\n")

	doc, err := NewLoader(Config{}, nil).Load(context.Background(), LoadRequest{
		SpecPath: "workflow.yaml",
		Toplevel: dir,
	})
	require.NoError(t, err)
	assert.Empty(t, doc.Schema)
	assert.Equal(t, "not-a-workflow", doc.Content["name"])
}

func TestLoadUnknownSchema(t *testing.T) {
	dir := t.TempDir()
	writeSpec(t, dir, "workflow.yaml", workflowYAML)
	writeSpec(t, dir, "steps.yaml", stepsYAML)

	_, err := NewLoader(Config{}, nil).Load(context.Background(), LoadRequest{
		SpecPath: "workflow.yaml",
		Toplevel: dir,
		Schema:   "yadage/no-such-schema",
		Validate: true,
	})

	var validationErr *ValidationError
	require.True(t, errors.As(err, &validationErr))
	assert.Contains(t, err.Error(), "unknown schema")
}

func TestLoadRefCycle(t *testing.T) {
	dir := t.TempDir()
	writeSpec(t, dir, "workflow.yaml", `stages: {$ref: 'a.yaml'}`)
	writeSpec(t, dir, "a.yaml", `{$ref: 'b.yaml'}`)
	writeSpec(t, dir, "b.yaml", `{$ref: 'a.yaml'}`)

	_, err := NewLoader(Config{}, nil).Load(context.Background(), LoadRequest{
		SpecPath: "workflow.yaml",
		Toplevel: dir,
	})

	var validationErr *ValidationError
	require.True(t, errors.As(err, &validationErr))
	assert.Contains(t, err.Error(), "nesting exceeds")
}

func TestLoadBadPointer(t *testing.T) {
	dir := t.TempDir()
	writeSpec(t, dir, "workflow.yaml", `stages: {$ref: 'steps.yaml#/missing'}`)
	writeSpec(t, dir, "steps.yaml", stepsYAML)

	_, err := NewLoader(Config{}, nil).Load(context.Background(), LoadRequest{
		SpecPath: "workflow.yaml",
		Toplevel: dir,
	})

	var validationErr *ValidationError
	require.True(t, errors.As(err, &validationErr))
}

func TestLoadRemoteGitHub(t *testing.T) {
	files := map[string]string{
		"/reanahub/demo/main/workflow/yadage/workflow.yaml": workflowYAML,
		"/reanahub/demo/main/workflow/yadage/steps.yaml":    stepsYAML,
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := files[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	defer server.Close()

	loader := NewLoader(Config{RemoteBaseURL: server.URL}, nil)

	doc, err := loader.Load(context.Background(), LoadRequest{
		SpecPath: "workflow.yaml",
		Toplevel: "github:reanahub/demo:workflow/yadage",
		Validate: true,
	})
	require.NoError(t, err)
	assert.Equal(t, server.URL+"/reanahub/demo/main/workflow/yadage/workflow.yaml", doc.Location)
	assert.NotEmpty(t, stageStep(t, doc)["environment"])

	_, err = loader.Load(context.Background(), LoadRequest{
		SpecPath: "workflow.yaml",
		Toplevel: "github:reanahub/demo:workflow/yadage@v2",
		Validate: true,
	})
	var notFound *NotFoundError
	require.True(t, errors.As(err, &notFound), "got %v", err)
}

func TestLoadRemoteURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/specs/workflow.yaml":
			_, _ = w.Write([]byte(workflowYAML))
		case "/specs/steps.yaml":
			_, _ = w.Write([]byte(stepsYAML))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer server.Close()

	doc, err := NewLoader(Config{}, nil).Load(context.Background(), LoadRequest{
		SpecPath: "workflow.yaml",
		Toplevel: server.URL + "/specs",
		Validate: true,
	})
	require.NoError(t, err)
	assert.Equal(t, server.URL+"/specs/workflow.yaml", doc.Location)

	_, err = NewLoader(Config{}, nil).Load(context.Background(), LoadRequest{
		SpecPath: "other.yaml",
		Toplevel: server.URL + "/specs",
	})
	require.Error(t, err)
	var notFound *NotFoundError
	assert.False(t, errors.As(err, &notFound), "a 500 is not a missing spec")
}

func TestParseGitHubRef(t *testing.T) {
	tests := []struct {
		in      string
		want    *GitHubRef
		wantErr bool
	}{
		{in: "github:owner/repo", want: &GitHubRef{Owner: "owner", Repo: "repo", Ref: "main"}},
		{in: "github:owner/repo:sub/dir", want: &GitHubRef{Owner: "owner", Repo: "repo", Subdir: "sub/dir", Ref: "main"}},
		{in: "github:owner/repo:sub@v1.0", want: &GitHubRef{Owner: "owner", Repo: "repo", Subdir: "sub", Ref: "v1.0"}},
		{in: "github:owner/repo@dev", want: &GitHubRef{Owner: "owner", Repo: "repo", Ref: "dev"}},
		{in: "github:owner", wantErr: true},
		{in: "github:/repo", wantErr: true},
		{in: "github:owner/repo@", wantErr: true},
		{in: "owner/repo", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseGitHubRef(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLocate(t *testing.T) {
	loc, err := Locate("/ws/run", "workflow.yaml", DefaultRemoteBaseURL)
	require.NoError(t, err)
	assert.Equal(t, "/ws/run/workflow.yaml", loc)

	loc, err = Locate("/ws/run", "/abs/workflow.yaml", DefaultRemoteBaseURL)
	require.NoError(t, err)
	assert.Equal(t, "/abs/workflow.yaml", loc)

	loc, err = Locate("github:o/r:d", "workflow.yaml", DefaultRemoteBaseURL)
	require.NoError(t, err)
	assert.Equal(t, "https://raw.githubusercontent.com/o/r/main/d/workflow.yaml", loc)

	// A remote spec path wins over any toplevel
	loc, err = Locate("/ws/run", "https://specs.example.org/flows/workflow.yaml", DefaultRemoteBaseURL)
	require.NoError(t, err)
	assert.Equal(t, "https://specs.example.org/flows/workflow.yaml", loc)

	loc, err = Locate("github:o/r", "github:x/y:flows/workflow.yaml@v1", DefaultRemoteBaseURL)
	require.NoError(t, err)
	assert.Equal(t, "https://raw.githubusercontent.com/x/y/v1/flows/workflow.yaml", loc)

	_, err = Locate("/ws/run", "github:x/y", DefaultRemoteBaseURL)
	assert.Error(t, err)
}

func TestLookupPointer(t *testing.T) {
	doc := map[string]interface{}{
		"a/b": map[string]interface{}{"list": []interface{}{"zero", "one"}},
		"t~x": 1,
	}

	v, err := lookupPointer(doc, "/a~1b/list/1")
	require.NoError(t, err)
	assert.Equal(t, "one", v)

	v, err = lookupPointer(doc, "/t~0x")
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	_, err = lookupPointer(doc, "/a~1b/list/7")
	assert.Error(t, err)

	_, err = lookupPointer(doc, "/t~0x/deeper")
	assert.Error(t, err)
}

func TestCheckWorkflowFile(t *testing.T) {
	dir := t.TempDir()
	writeSpec(t, dir, "workflow.yaml", workflowYAML)

	assert.NoError(t, CheckWorkflowFile("workflow.yaml", filepath.Join(dir, "workflow.yaml")))

	err := CheckWorkflowFile("missing.yaml", filepath.Join(dir, "missing.yaml"))
	var missing *FileMissingError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "Workflow file missing.yaml does not exist", err.Error())
}

func TestSchemas(t *testing.T) {
	assert.Contains(t, Schemas(), DefaultSchema)
}
