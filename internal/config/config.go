// Package config loads wfrunner process configuration through viper.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/psantana5/wfrunner/internal/options"
	"github.com/psantana5/wfrunner/internal/status"
	"github.com/psantana5/wfrunner/pkg/auth"
)

// EnvPrefix is prepended to every configuration key in the environment
const EnvPrefix = "WFRUNNER"

// Config is the validated process configuration
type Config struct {
	SharedVolumePath string           `mapstructure:"shared_volume_path" yaml:"shared_volume_path"`
	WorkflowUmask    string           `mapstructure:"workflow_umask" yaml:"workflow_umask"`
	Log              LogConfig        `mapstructure:"log" yaml:"log"`
	Status           StatusConfig     `mapstructure:"status" yaml:"status"`
	Controller       ControllerConfig `mapstructure:"controller" yaml:"controller"`
	Engine           EngineConfig     `mapstructure:"engine" yaml:"engine"`
	Spec             SpecConfig       `mapstructure:"spec" yaml:"spec"`
	Workspace        WorkspaceConfig  `mapstructure:"workspace" yaml:"workspace"`
	Metrics          MetricsConfig    `mapstructure:"metrics" yaml:"metrics"`
	Tracing          TracingConfig    `mapstructure:"tracing" yaml:"tracing"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	Dir    string `mapstructure:"dir" yaml:"dir"`
}

type StatusConfig struct {
	Channel string        `mapstructure:"channel" yaml:"channel"`
	URL     string        `mapstructure:"url" yaml:"url"`
	APIKey  string        `mapstructure:"api_key" yaml:"api_key,omitempty"`
	DSN     string        `mapstructure:"dsn" yaml:"dsn,omitempty"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
	TLS     TLSConfig     `mapstructure:"tls" yaml:"tls"`
}

type TLSConfig struct {
	Cert string `mapstructure:"cert" yaml:"cert,omitempty"`
	Key  string `mapstructure:"key" yaml:"key,omitempty"`
	CA   string `mapstructure:"ca" yaml:"ca,omitempty"`
}

type ControllerConfig struct {
	URL     string        `mapstructure:"url" yaml:"url"`
	Retries int           `mapstructure:"retries" yaml:"retries"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

type EngineConfig struct {
	Command        []string      `mapstructure:"command" yaml:"command"`
	Backend        string        `mapstructure:"backend" yaml:"backend"`
	UpdateInterval time.Duration `mapstructure:"update_interval" yaml:"update_interval"`
	LogInterval    time.Duration `mapstructure:"log_interval" yaml:"log_interval"`
	Visualize      bool          `mapstructure:"visualize" yaml:"visualize"`
}

type SpecConfig struct {
	Schema        string        `mapstructure:"schema" yaml:"schema"`
	RemoteBaseURL string        `mapstructure:"remote_base_url" yaml:"remote_base_url"`
	Timeout       time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

type WorkspaceConfig struct {
	MinFreeMB int `mapstructure:"min_free_mb" yaml:"min_free_mb"`
}

type MetricsConfig struct {
	Addr      string `mapstructure:"addr" yaml:"addr"`
	Textfile  string `mapstructure:"textfile" yaml:"textfile"`
	TokenHash string `mapstructure:"token_hash" yaml:"token_hash,omitempty"` // bcrypt hash; empty serves /metrics without auth
}

type TracingConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
	Insecure bool   `mapstructure:"insecure" yaml:"insecure"`
}

// SetDefaults registers every key with its default value
func SetDefaults(v *viper.Viper) {
	v.SetDefault("shared_volume_path", "/var/reana")
	v.SetDefault("workflow_umask", "0002")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.dir", "")

	v.SetDefault("status.channel", status.ChannelHTTP)
	v.SetDefault("status.url", "")
	v.SetDefault("status.api_key", "")
	v.SetDefault("status.dsn", "")
	v.SetDefault("status.timeout", 10*time.Second)
	v.SetDefault("status.tls.cert", "")
	v.SetDefault("status.tls.key", "")
	v.SetDefault("status.tls.ca", "")

	v.SetDefault("controller.url", "")
	v.SetDefault("controller.retries", 5)
	v.SetDefault("controller.timeout", 5*time.Second)

	v.SetDefault("engine.command", []string{"yadage-engine"})
	v.SetDefault("engine.backend", "fromenv")
	v.SetDefault("engine.update_interval", 5*time.Second)
	v.SetDefault("engine.log_interval", 5*time.Second)
	v.SetDefault("engine.visualize", true)

	v.SetDefault("spec.schema", "yadage/workflow-schema")
	v.SetDefault("spec.remote_base_url", "https://raw.githubusercontent.com")
	v.SetDefault("spec.timeout", 30*time.Second)

	v.SetDefault("workspace.min_free_mb", 0)

	v.SetDefault("metrics.addr", "")
	v.SetDefault("metrics.textfile", "")
	v.SetDefault("metrics.token_hash", "")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "localhost:4318")
	v.SetDefault("tracing.insecure", true)
}

// BindEnv maps WFRUNNER_<KEY> variables and the platform's legacy names
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("shared_volume_path", EnvPrefix+"_SHARED_VOLUME_PATH", "SHARED_VOLUME_PATH")
	_ = v.BindEnv("workflow_umask", EnvPrefix+"_WORKFLOW_UMASK", "REANA_WORKFLOW_UMASK")
}

// legacyControllerURL builds the controller URL from the platform's
// JOB_CONTROLLER_SERVICE_HOST/_PORT variables
func legacyControllerURL() string {
	host := os.Getenv("JOB_CONTROLLER_SERVICE_HOST")
	if host == "" {
		return ""
	}
	port := os.Getenv("JOB_CONTROLLER_SERVICE_PORT")
	if port == "" {
		port = "5000"
	}
	return fmt.Sprintf("http://%s:%s", host, port)
}

// Load decodes and validates the configuration held by v
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}

	if cfg.Controller.URL == "" {
		cfg.Controller.URL = legacyControllerURL()
	}

	// Env vars arrive as a single string
	if len(cfg.Engine.Command) == 1 && strings.Contains(cfg.Engine.Command[0], " ") {
		cfg.Engine.Command = strings.Fields(cfg.Engine.Command[0])
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that cannot be expressed as defaults
func (c *Config) Validate() error {
	if c.SharedVolumePath == "" {
		return fmt.Errorf("shared_volume_path must not be empty")
	}
	if !filepath.IsAbs(c.SharedVolumePath) {
		return fmt.Errorf("shared_volume_path must be absolute, got %q", c.SharedVolumePath)
	}
	if _, err := c.Umask(); err != nil {
		return err
	}

	switch c.Status.Channel {
	case status.ChannelHTTP:
		if c.Status.URL == "" {
			return fmt.Errorf("status.url is required for the http status channel")
		}
	case status.ChannelSQLite, status.ChannelPostgres:
		if c.Status.DSN == "" {
			return fmt.Errorf("status.dsn is required for the %s status channel", c.Status.Channel)
		}
	case status.ChannelLog:
	default:
		return fmt.Errorf("unknown status.channel %q (expected http, sqlite, postgres or log)", c.Status.Channel)
	}

	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log.format %q (expected text or json)", c.Log.Format)
	}

	if len(c.Engine.Command) == 0 || c.Engine.Command[0] == "" {
		return fmt.Errorf("engine.command must not be empty")
	}
	if c.Controller.Retries < 0 {
		return fmt.Errorf("controller.retries must not be negative")
	}
	if c.Workspace.MinFreeMB < 0 {
		return fmt.Errorf("workspace.min_free_mb must not be negative")
	}
	if c.Metrics.TokenHash != "" {
		if _, err := auth.NewHashVerifier(c.Metrics.TokenHash); err != nil {
			return fmt.Errorf("metrics.token_hash: %w", err)
		}
	}
	return nil
}

// Umask parses workflow_umask as an octal mode
func (c *Config) Umask() (int, error) {
	mask, err := strconv.ParseUint(c.WorkflowUmask, 8, 32)
	if err != nil || mask > 0o777 {
		return 0, fmt.Errorf("workflow_umask must be an octal mode such as 0002, got %q", c.WorkflowUmask)
	}
	return int(mask), nil
}

// WorkspaceRoot returns <shared_volume_path>/<name>. Names that already point
// inside the shared volume are kept.
func (c *Config) WorkspaceRoot(name string) string {
	return options.JoinWorkspace(c.SharedVolumePath, name)
}
