package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/psantana5/wfrunner/internal/options"
	"github.com/psantana5/wfrunner/internal/spec"
)

var (
	validateWorkspace string
	validateFile      string
	validateToplevel  string
	validateSchema    string
)

// validateCmd represents the validate command
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a workflow spec",
	Long: `Load a workflow spec, resolve its $ref references and validate it
against the configured schema. Remote toplevels (github:, http(s)://)
are fetched.`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVar(&validateWorkspace, "workflow-workspace", "", "workspace name under the shared volume (required)")
	validateCmd.Flags().StringVar(&validateFile, "workflow-file", "", "workflow spec path relative to the toplevel (required)")
	validateCmd.Flags().StringVar(&validateToplevel, "toplevel", "", "toplevel directory or remote reference (default is the workspace)")
	validateCmd.Flags().StringVar(&validateSchema, "schema", "", "schema name (default from config)")
	validateCmd.MarkFlagRequired("workflow-workspace")
	validateCmd.MarkFlagRequired("workflow-file")
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg, "wfrunner-validate")
	if err != nil {
		return err
	}
	defer logger.Close()

	resolved := options.Resolve(cfg.WorkspaceRoot(validateWorkspace), &options.OperationalOptions{Toplevel: validateToplevel})

	specPath := validateFile
	if !options.IsRemote(resolved.Toplevel) {
		specPath = options.JoinWorkspace(resolved.Toplevel, validateFile)
		if err := spec.CheckWorkflowFile(validateFile, specPath); err != nil {
			return err
		}
	}

	schema := validateSchema
	if schema == "" {
		schema = cfg.Spec.Schema
	}

	doc, err := newLoader(cfg, logger).Load(cmd.Context(), spec.LoadRequest{
		SpecPath: specPath,
		Toplevel: resolved.Toplevel,
		Schema:   schema,
		Validate: true,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s is valid (%s)\n", doc.Location, doc.Schema)
	return nil
}
