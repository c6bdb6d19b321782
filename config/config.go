package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of environment variables overriding config keys,
// e.g. POLYRUN_SANDBOX_MAX_TIMEOUT_SEC.
const EnvPrefix = "POLYRUN"

// DefaultInheritEnv lists the host variables passed through to sandboxed
// processes. Everything else in the service environment is withheld.
var DefaultInheritEnv = []string{
	"PATH", "LANG", "LC_ALL", "TZ",
	"JAVA_HOME", "GOROOT", "NODE_PATH", "MONO_PATH",
}

// Transports selectable with server.transport.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
	TransportREST  = "rest"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig        `mapstructure:"server" yaml:"server"`
	Sandbox   SandboxConfig       `mapstructure:"sandbox" yaml:"sandbox"`
	Logging   LoggingConfig       `mapstructure:"logging" yaml:"logging"`
	Languages map[string]Language `mapstructure:"languages" yaml:"languages,omitempty"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Transport string `mapstructure:"transport" yaml:"transport"`
	HTTPPort  int    `mapstructure:"http_port" yaml:"http_port"`
}

// SandboxConfig holds sandbox configuration
type SandboxConfig struct {
	ScratchRoot       string        `mapstructure:"scratch_root" yaml:"scratch_root"`
	WorkspacePrefix   string        `mapstructure:"workspace_prefix" yaml:"workspace_prefix"`
	MaxTimeoutSec     int           `mapstructure:"max_timeout_sec" yaml:"max_timeout_sec"`
	CompileTimeoutSec int           `mapstructure:"compile_timeout_sec" yaml:"compile_timeout_sec"`
	MaxOutputBytes    int           `mapstructure:"max_output_bytes" yaml:"max_output_bytes"`
	MaxSourceBytes    int           `mapstructure:"max_source_bytes" yaml:"max_source_bytes"`
	MaxProcesses      int           `mapstructure:"max_processes" yaml:"max_processes"`
	EnforceLimits     bool          `mapstructure:"enforce_limits" yaml:"enforce_limits"`
	InheritEnv        []string      `mapstructure:"inherit_env" yaml:"inherit_env"`
	StaleWorkspaceAge time.Duration `mapstructure:"stale_workspace_age" yaml:"stale_workspace_age"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Mode  string `mapstructure:"mode" yaml:"mode"`
	Level string `mapstructure:"level" yaml:"level"`
}

// Language holds per-language overrides. Environment entries are KEY=VALUE
// strings; a list is used because viper lower-cases map keys.
type Language struct {
	Environment []string `mapstructure:"environment" yaml:"environment,omitempty"`
}

// New loads and validates the application configuration from config.yaml in
// the working directory (or ./config), falling back to defaults.
func New() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	return load(v)
}

// NewFromFile loads the configuration from an explicit YAML file.
func NewFromFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// If config file not found, continue with defaults
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation error: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.transport", TransportREST)
	v.SetDefault("server.http_port", 8080)

	v.SetDefault("sandbox.scratch_root", filepath.Join(os.TempDir(), "polyrun"))
	v.SetDefault("sandbox.workspace_prefix", "exec-")
	v.SetDefault("sandbox.max_timeout_sec", 60)
	v.SetDefault("sandbox.compile_timeout_sec", 30)
	v.SetDefault("sandbox.max_output_bytes", 1<<20)
	v.SetDefault("sandbox.max_source_bytes", 1<<20)
	v.SetDefault("sandbox.max_processes", 256)
	v.SetDefault("sandbox.enforce_limits", true)
	v.SetDefault("sandbox.inherit_env", DefaultInheritEnv)
	v.SetDefault("sandbox.stale_workspace_age", "1h")

	v.SetDefault("logging.mode", "production")
	v.SetDefault("logging.level", "info")
}

// validate ensures the configuration is valid
func (c *Config) validate() error {
	switch c.Server.Transport {
	case TransportStdio, TransportHTTP, TransportREST:
	default:
		return fmt.Errorf("invalid server.transport: %s, must be 'stdio', 'http' or 'rest'", c.Server.Transport)
	}

	if c.Server.Transport != TransportStdio && (c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535) {
		return fmt.Errorf("server.http_port must be in 1-65535, got: %d", c.Server.HTTPPort)
	}

	if c.Sandbox.ScratchRoot == "" {
		return fmt.Errorf("sandbox.scratch_root must not be empty")
	}

	if c.Sandbox.WorkspacePrefix == "" || strings.ContainsRune(c.Sandbox.WorkspacePrefix, filepath.Separator) {
		return fmt.Errorf("invalid sandbox.workspace_prefix: %q", c.Sandbox.WorkspacePrefix)
	}

	if c.Sandbox.MaxTimeoutSec <= 0 {
		return fmt.Errorf("sandbox.max_timeout_sec must be positive, got: %d", c.Sandbox.MaxTimeoutSec)
	}

	if c.Sandbox.CompileTimeoutSec <= 0 {
		return fmt.Errorf("sandbox.compile_timeout_sec must be positive, got: %d", c.Sandbox.CompileTimeoutSec)
	}

	if c.Sandbox.MaxOutputBytes <= 0 {
		return fmt.Errorf("sandbox.max_output_bytes must be positive, got: %d", c.Sandbox.MaxOutputBytes)
	}

	if c.Sandbox.MaxSourceBytes <= 0 {
		return fmt.Errorf("sandbox.max_source_bytes must be positive, got: %d", c.Sandbox.MaxSourceBytes)
	}

	if c.Sandbox.MaxProcesses <= 0 {
		return fmt.Errorf("sandbox.max_processes must be positive, got: %d", c.Sandbox.MaxProcesses)
	}

	for _, key := range c.Sandbox.InheritEnv {
		if key == "" || strings.ContainsRune(key, '=') {
			return fmt.Errorf("invalid sandbox.inherit_env entry: %q, must be a variable name", key)
		}
	}

	if c.Sandbox.StaleWorkspaceAge < 0 {
		return fmt.Errorf("sandbox.stale_workspace_age must not be negative, got: %s", c.Sandbox.StaleWorkspaceAge)
	}

	for id, lang := range c.Languages {
		for _, kv := range lang.Environment {
			if key, _, ok := strings.Cut(kv, "="); !ok || key == "" {
				return fmt.Errorf("invalid languages.%s.environment entry: %q, must be KEY=VALUE", id, kv)
			}
		}
	}

	if c.Logging.Mode != "development" && c.Logging.Mode != "production" {
		return fmt.Errorf("invalid logging.mode: %s, must be 'development' or 'production'", c.Logging.Mode)
	}

	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("invalid logging.level: %s", c.Logging.Level)
	}

	return nil
}

// CompileTimeout returns the compile-stage ceiling as a duration
func (c *Config) CompileTimeout() time.Duration {
	return time.Duration(c.Sandbox.CompileTimeoutSec) * time.Second
}

// LanguageEnvironments returns the per-language environment overrides keyed
// by language id.
func (c *Config) LanguageEnvironments() map[string]map[string]string {
	envs := make(map[string]map[string]string, len(c.Languages))
	for id, lang := range c.Languages {
		if len(lang.Environment) == 0 {
			continue
		}
		env := make(map[string]string, len(lang.Environment))
		for _, kv := range lang.Environment {
			key, value, _ := strings.Cut(kv, "=")
			env[key] = value
		}
		envs[id] = env
	}
	return envs
}

// YAML renders the effective configuration.
func (c *Config) YAML() (string, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to marshal config: %w", err)
	}
	return string(out), nil
}
