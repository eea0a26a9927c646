package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Transport names accepted by server.transport
const (
	TransportREST  = "rest"
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// Backend names accepted by sandbox.backend
const (
	BackendProcess = "process"
	BackendInline  = "inline"
)

// Config represents the application configuration
type Config struct {
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Sandbox SandboxConfig `mapstructure:"sandbox" yaml:"sandbox"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Transport string `mapstructure:"transport" yaml:"transport"`
	HTTPPort  int    `mapstructure:"http_port" yaml:"http_port"`
}

// SandboxConfig holds sandbox configuration
type SandboxConfig struct {
	Backend             string `mapstructure:"backend" yaml:"backend"`
	TimeoutSec          int    `mapstructure:"timeout_sec" yaml:"timeout_sec"`
	MaxOutputKB         int    `mapstructure:"max_output_kb" yaml:"max_output_kb"`
	WorkerPath          string `mapstructure:"worker_path" yaml:"worker_path"`
	EnableInlineBackend bool   `mapstructure:"enable_inline_backend" yaml:"enable_inline_backend"`
}

// LoggingConfig holds logger configuration
type LoggingConfig struct {
	Mode  string `mapstructure:"mode" yaml:"mode"`
	Level string `mapstructure:"level" yaml:"level"`
}

// New loads and validates the application configuration.
// It is called once at startup; the returned Config is never re-read.
func New() (*Config, error) {
	return Load(viper.New())
}

// Load reads the configuration through the given viper instance.
func Load(v *viper.Viper) (*Config, error) {
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	setDefaults(v)

	v.SetEnvPrefix("EVALBOX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unprefixed names used by existing deployments
	_ = v.BindEnv("sandbox.timeout_sec", "EVALBOX_SANDBOX_TIMEOUT_SEC", "EXECUTION_TIMEOUT")
	_ = v.BindEnv("server.http_port", "EVALBOX_SERVER_HTTP_PORT", "PORT")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
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

	v.SetDefault("sandbox.backend", BackendProcess)
	v.SetDefault("sandbox.timeout_sec", 30)
	v.SetDefault("sandbox.max_output_kb", 1024)
	v.SetDefault("sandbox.worker_path", "")
	v.SetDefault("sandbox.enable_inline_backend", false)

	v.SetDefault("logging.mode", "production")
	v.SetDefault("logging.level", "info")
}

// validate ensures the configuration is valid
func (c *Config) validate() error {
	switch c.Server.Transport {
	case TransportREST, TransportStdio, TransportHTTP:
	default:
		return fmt.Errorf("invalid server.transport: %s, must be 'rest', 'stdio' or 'http'", c.Server.Transport)
	}

	if c.Server.Transport != TransportStdio && (c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535) {
		return fmt.Errorf("server.http_port out of range: %d", c.Server.HTTPPort)
	}

	if c.Sandbox.TimeoutSec <= 0 {
		return fmt.Errorf("sandbox.timeout_sec must be positive, got: %d", c.Sandbox.TimeoutSec)
	}

	if c.Sandbox.MaxOutputKB <= 0 {
		return fmt.Errorf("sandbox.max_output_kb must be positive, got: %d", c.Sandbox.MaxOutputKB)
	}

	supportedBackends := map[string]bool{
		BackendProcess: true,
		BackendInline:  c.Sandbox.EnableInlineBackend, // inline only enabled if specifically allowed
	}

	if !supportedBackends[c.Sandbox.Backend] {
		return fmt.Errorf("unsupported sandbox.backend: %s", c.Sandbox.Backend)
	}

	if c.Logging.Mode != "production" && c.Logging.Mode != "development" {
		return fmt.Errorf("invalid logging.mode: %s, must be 'production' or 'development'", c.Logging.Mode)
	}

	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("invalid logging.level: %s", c.Logging.Level)
	}

	return nil
}

// GetTimeout returns the execution timeout as a duration
func (c *Config) GetTimeout() time.Duration {
	return time.Duration(c.Sandbox.TimeoutSec) * time.Second
}

// MaxOutputBytes returns the captured output cap in bytes
func (c *Config) MaxOutputBytes() int {
	return c.Sandbox.MaxOutputKB * 1024
}

// YAML renders the effective configuration.
func (c *Config) YAML() ([]byte, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("error marshaling config: %w", err)
	}
	return out, nil
}
