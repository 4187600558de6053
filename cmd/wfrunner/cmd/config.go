package cmd

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/psantana5/wfrunner/pkg/auth"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Print the configuration after merging defaults, the config file and the
environment. The status API key is redacted.`,
	RunE: runConfigShow,
}

var configHashTokenCmd = &cobra.Command{
	Use:   "hash-token",
	Short: "Hash a metrics bearer token for metrics.token_hash",
	Long:  `Read a token from stdin and print its bcrypt hash.`,
	RunE:  runConfigHashToken,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configHashTokenCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Status.APIKey != "" {
		cfg.Status.APIKey = "<redacted>"
	}
	if cfg.Metrics.TokenHash != "" {
		cfg.Metrics.TokenHash = "<redacted>"
	}

	out := cmd.OutOrStdout()
	if IsJSONOutput() {
		_, err := writeStructured(out, cfg)
		return err
	}

	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(cfg)
}

func runConfigHashToken(cmd *cobra.Command, args []string) error {
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return fmt.Errorf("failed to read token from stdin: %w", err)
	}
	hash, err := auth.HashToken(strings.TrimSpace(line))
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), hash)
	return nil
}
