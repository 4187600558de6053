package cmd

import (
	"fmt"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/psantana5/wfrunner/internal/supervisor"
)

var (
	resolveRunFlags   = newRunFlags()
	resolveNoValidate bool
)

// resolveCmd represents the resolve command
var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Show how a run would be prepared",
	Long: `Run the preparation phase only: resolve operational options under the
workspace, load the workflow spec and merge the initial data. No status is
published and the engine is not started.`,
	RunE: runResolve,
}

func init() {
	rootCmd.AddCommand(resolveCmd)
	resolveRunFlags.register(resolveCmd)
	resolveCmd.Flags().BoolVar(&resolveNoValidate, "no-validate", false, "load the spec without schema validation")
}

type resolveResult struct {
	RunID         string                 `json:"run_id" yaml:"run_id"`
	Workspace     string                 `json:"workspace" yaml:"workspace"`
	Toplevel      string                 `json:"toplevel" yaml:"toplevel"`
	InitDir       string                 `json:"initdir" yaml:"initdir"`
	InitFiles     []string               `json:"initfiles" yaml:"initfiles"`
	AcceptMetadir bool                   `json:"accept_metadir" yaml:"accept_metadir"`
	Passthrough   map[string]interface{} `json:"passthrough,omitempty" yaml:"passthrough,omitempty"`
	SpecLocation  string                 `json:"spec_location" yaml:"spec_location"`
	InitialData   map[string]interface{} `json:"initial_data" yaml:"initial_data"`
}

func runResolve(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	req, err := resolveRunFlags.request(cfg)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg, "wfrunner-resolve")
	if err != nil {
		return err
	}
	defer logger.Close()

	settings := supervisorSettings(cfg)
	settings.SkipValidation = resolveNoValidate
	sup := supervisor.New(newLoader(cfg, logger), nil, nil, logger, supervisor.WithSettings(settings))

	prep, err := sup.Prepare(cmd.Context(), req)
	if err != nil {
		return fmt.Errorf("preparation failed: %w", err)
	}

	result := resolveResult{
		RunID:         req.RunID,
		Workspace:     req.WorkspaceRoot,
		Toplevel:      prep.Options.Toplevel,
		InitDir:       prep.Options.InitDir,
		InitFiles:     prep.Options.InitFiles,
		AcceptMetadir: prep.Options.AcceptMetadir,
		Passthrough:   prep.Options.Passthrough,
		SpecLocation:  prep.Spec.Location,
		InitialData:   prep.InitialData,
	}

	out := cmd.OutOrStdout()
	if ok, err := writeStructured(out, result); ok {
		return err
	}

	table := tablewriter.NewWriter(out)
	table.Header("Field", "Value")
	table.Append("Run ID", result.RunID)
	table.Append("Workspace", result.Workspace)
	table.Append("Toplevel", result.Toplevel)
	table.Append("Init Dir", result.InitDir)
	table.Append("Init Files", strings.Join(result.InitFiles, "\n"))
	table.Append("Accept Metadir", fmt.Sprintf("%t", result.AcceptMetadir))
	if len(result.Passthrough) > 0 {
		table.Append("Passthrough", compactJSON(result.Passthrough))
	}
	table.Append("Spec", result.SpecLocation)
	table.Append("Initial Data", compactJSON(result.InitialData))
	return table.Render()
}
