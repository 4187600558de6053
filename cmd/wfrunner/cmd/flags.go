package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/psantana5/wfrunner/internal/config"
	"github.com/psantana5/wfrunner/internal/options"
	"github.com/psantana5/wfrunner/pkg/models"
)

// payloadValue decodes a <marker><base64(json)> payload as soon as the flag
// is parsed, so a malformed payload is rejected before anything else runs
type payloadValue struct {
	field string
	raw   string
	data  map[string]interface{}
}

func newPayloadValue(field string) *payloadValue {
	return &payloadValue{field: field, data: map[string]interface{}{}}
}

func (p *payloadValue) Set(s string) error {
	data, err := options.DecodePayload(p.field, s)
	if err != nil {
		return err
	}
	p.raw = s
	p.data = data
	return nil
}

func (p *payloadValue) String() string { return p.raw }

func (p *payloadValue) Type() string { return "payload" }

// runFlags are the flags that identify a workflow run
type runFlags struct {
	uuid       string
	workspace  string
	file       string
	parameters *payloadValue
	options    *payloadValue
}

func newRunFlags() *runFlags {
	return &runFlags{
		parameters: newPayloadValue("workflow parameters"),
		options:    newPayloadValue("operational options"),
	}
}

func (f *runFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.uuid, "workflow-uuid", "", "workflow run id (required)")
	cmd.Flags().StringVar(&f.workspace, "workflow-workspace", "", "workspace name under the shared volume (required)")
	cmd.Flags().StringVar(&f.file, "workflow-file", "", "workflow spec path relative to the toplevel, or a remote reference (required)")
	cmd.Flags().Var(f.parameters, "workflow-parameters", "encoded workflow parameters")
	cmd.Flags().Var(f.options, "operational-options", "encoded operational options")
	cmd.MarkFlagRequired("workflow-uuid")
	cmd.MarkFlagRequired("workflow-workspace")
	cmd.MarkFlagRequired("workflow-file")
}

// request builds the run request for the configured shared volume
func (f *runFlags) request(cfg *config.Config) (models.RunRequest, error) {
	if f.uuid == "" {
		return models.RunRequest{}, fmt.Errorf("--workflow-uuid must not be empty")
	}
	return models.RunRequest{
		RunID:              f.uuid,
		WorkspaceName:      f.workspace,
		WorkspaceRoot:      cfg.WorkspaceRoot(f.workspace),
		SpecPath:           f.file,
		Parameters:         f.parameters.data,
		OperationalOptions: f.options.data,
	}, nil
}
