// Package config provides layered configuration loading for mindmux:
// defaults, then an optional config file, then MINDMUX_-prefixed
// environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds every configuration section consumed by the orchestration core.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Multiplexer MultiplexerConfig `mapstructure:"multiplexer"`
	Agent       AgentConfig       `mapstructure:"agent"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Sandbox     SandboxConfig     `mapstructure:"sandbox"`
	NATS        NATSConfig        `mapstructure:"nats"`
}

// ServerConfig holds the façade HTTP server's listen address and timeouts.
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"readTimeout"`
	WriteTimeout int    `mapstructure:"writeTimeout"`
}

func (s ServerConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

func (s ServerConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// DatabaseConfig selects and configures the durable store.
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"` // "sqlite" | "postgres" | "legacyjson"
	Path     string `mapstructure:"path"`   // sqlite file path
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbName"`
	SSLMode  string `mapstructure:"sslMode"`
}

// DSN returns the PostgreSQL connection string for this configuration.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

// MultiplexerConfig configures the terminal multiplexer driver.
type MultiplexerConfig struct {
	Binary        string `mapstructure:"binary"`        // e.g. "tmux"
	SessionPrefix string `mapstructure:"sessionPrefix"` // default "mindmux"
	PollInterval  int    `mapstructure:"pollIntervalMs"`
	IdleThreshold int    `mapstructure:"idleThresholdMs"`
	DefaultTimeout int   `mapstructure:"defaultTimeoutSec"`
}

func (m MultiplexerConfig) PollIntervalDuration() time.Duration {
	return time.Duration(m.PollInterval) * time.Millisecond
}

func (m MultiplexerConfig) IdleThresholdDuration() time.Duration {
	return time.Duration(m.IdleThreshold) * time.Millisecond
}

func (m MultiplexerConfig) DefaultTimeoutDuration() time.Duration {
	return time.Duration(m.DefaultTimeout) * time.Second
}

// AgentConfig holds default agent runtime parameters.
type AgentConfig struct {
	DefaultMaxConcurrentTasks int `mapstructure:"defaultMaxConcurrentTasks"`
	DefaultTaskTimeoutSec     int `mapstructure:"defaultTaskTimeoutSec"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"outputPath"`
}

// SandboxConfig enables Docker-backed session isolation for spawned CLIs.
type SandboxConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Image   string `mapstructure:"image"`
	Host    string `mapstructure:"host"`
}

// NATSConfig configures the optional audit fan-out sink.
type NATSConfig struct {
	URL     string `mapstructure:"url"` // empty disables the sink
	Subject string `mapstructure:"subject"`
}

// Load reads configuration from environment variables, an optional config
// file, and defaults, in that order of decreasing precedence.
func Load() (*Config, error) {
	return LoadWithPath("")
}

// LoadWithPath is like Load but also searches configPath for mindmux.yaml.
func LoadWithPath(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("MINDMUX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("mindmux")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/mindmux/")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 30)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./mindmux.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "mindmux")
	v.SetDefault("database.dbName", "mindmux")
	v.SetDefault("database.sslMode", "disable")

	v.SetDefault("multiplexer.binary", "tmux")
	v.SetDefault("multiplexer.sessionPrefix", "mindmux")
	v.SetDefault("multiplexer.pollIntervalMs", 500)
	v.SetDefault("multiplexer.idleThresholdMs", 2000)
	v.SetDefault("multiplexer.defaultTimeoutSec", 300)

	v.SetDefault("agent.defaultMaxConcurrentTasks", 1)
	v.SetDefault("agent.defaultTaskTimeoutSec", 300)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.outputPath", "stdout")

	v.SetDefault("sandbox.enabled", false)
	v.SetDefault("sandbox.image", "mindmux/session-sandbox:latest")
	v.SetDefault("sandbox.host", "unix:///var/run/docker.sock")

	v.SetDefault("nats.url", "")
	v.SetDefault("nats.subject", "mindmux.audit")
}

func validate(cfg *Config) error {
	var errs []string

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}
	if cfg.Database.Driver != "sqlite" && cfg.Database.Driver != "postgres" && cfg.Database.Driver != "legacyjson" {
		errs = append(errs, "database.driver must be one of: sqlite, postgres, legacyjson")
	}
	if cfg.Database.Driver == "postgres" && (cfg.Database.User == "" || cfg.Database.DBName == "") {
		errs = append(errs, "database.user and database.dbName are required for the postgres driver")
	}
	if cfg.Multiplexer.SessionPrefix == "" {
		errs = append(errs, "multiplexer.sessionPrefix must not be empty")
	}
	if cfg.Agent.DefaultMaxConcurrentTasks <= 0 {
		errs = append(errs, "agent.defaultMaxConcurrentTasks must be positive")
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}
