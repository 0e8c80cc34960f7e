// Package config loads the immutable application configuration from
// environment variables layered over an optional YAML file. Components
// receive the parts they need as explicit values; nothing reads ambient
// process state after Load returns.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server" envconfig:"SERVER"`
	Logging  LoggingConfig  `yaml:"logging" envconfig:"LOGGING"`
	Database DatabaseConfig `yaml:"database" envconfig:"DATABASE"`
	Paths    PathsConfig    `yaml:"paths" envconfig:"PATHS"`
	Pipeline PipelineConfig `yaml:"pipeline" envconfig:"PIPELINE"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT" default:"8080" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"60s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LEVEL" default:"info" validate:"oneof=debug info warn error"`
	Format      string `yaml:"format" envconfig:"FORMAT" default:"json" validate:"oneof=json console"`
	Output      string `yaml:"output" envconfig:"OUTPUT" default:"console" validate:"oneof=console file both"`
	FilePath    string `yaml:"file_path" envconfig:"FILE_PATH" default:"logs/idamart.log"`
	Development bool   `yaml:"development" envconfig:"DEVELOPMENT" default:"false"`
}

// DatabaseConfig contains the data mart store coordinates. An empty DSN
// selects the in-memory store, which keeps dry runs and tests off Postgres.
type DatabaseConfig struct {
	DSN       string `yaml:"dsn" envconfig:"DSN"`
	ChunkSize int    `yaml:"chunk_size" envconfig:"CHUNK_SIZE" default:"1000" validate:"min=1"`
}

// PathsConfig contains file system paths configuration.
type PathsConfig struct {
	DataDir   string `yaml:"data_dir" envconfig:"DATA_DIR" default:"data/ida" validate:"required"`
	ExportDir string `yaml:"export_dir" envconfig:"EXPORT_DIR" default:"data/exports" validate:"required"`
	LogsDir   string `yaml:"logs_dir" envconfig:"LOGS_DIR" default:"logs"`
}

// PipelineConfig contains the run options that change computed figures and
// must therefore be explicit per deployment.
type PipelineConfig struct {
	// MarketVarianceMode picks the market-change partition strategy:
	// "global" (one market series) or "per_entity" (market change recomputed
	// inside each entity's observed periods). The two disagree whenever an
	// entity has period gaps.
	MarketVarianceMode string `yaml:"market_variance_mode" envconfig:"MARKET_VARIANCE_MODE" default:"global" validate:"oneof=global per_entity"`
}

// Load loads configuration from environment variables and an optional config
// file (IDAMART_CONFIG_FILE, default "config.yaml" when present).
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("IDAMART", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	configFile := os.Getenv("IDAMART_CONFIG_FILE")
	if configFile == "" {
		configFile = "config.yaml"
	}
	if _, err := os.Stat(configFile); err == nil {
		fileCfg, err := loadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
		cfg = mergeConfigs(*fileCfg, cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// loadFromFile loads configuration from a YAML file.
func loadFromFile(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// mergeConfigs overlays environment values on top of file values. Environment
// wins wherever it differs from the zero value.
func mergeConfigs(file, env Config) Config {
	merged := file

	if env.Server.Port != 0 {
		merged.Server.Port = env.Server.Port
	}
	if env.Server.ReadTimeout != 0 {
		merged.Server.ReadTimeout = env.Server.ReadTimeout
	}
	if env.Server.WriteTimeout != 0 {
		merged.Server.WriteTimeout = env.Server.WriteTimeout
	}
	if env.Server.IdleTimeout != 0 {
		merged.Server.IdleTimeout = env.Server.IdleTimeout
	}
	if env.Server.ShutdownTimeout != 0 {
		merged.Server.ShutdownTimeout = env.Server.ShutdownTimeout
	}
	if env.Logging.Level != "" {
		merged.Logging.Level = env.Logging.Level
	}
	if env.Logging.Format != "" {
		merged.Logging.Format = env.Logging.Format
	}
	if env.Logging.Output != "" {
		merged.Logging.Output = env.Logging.Output
	}
	if env.Logging.FilePath != "" {
		merged.Logging.FilePath = env.Logging.FilePath
	}
	if env.Database.DSN != "" {
		merged.Database.DSN = env.Database.DSN
	}
	if env.Database.ChunkSize != 0 {
		merged.Database.ChunkSize = env.Database.ChunkSize
	}
	if env.Paths.DataDir != "" {
		merged.Paths.DataDir = env.Paths.DataDir
	}
	if env.Paths.ExportDir != "" {
		merged.Paths.ExportDir = env.Paths.ExportDir
	}
	if env.Paths.LogsDir != "" {
		merged.Paths.LogsDir = env.Paths.LogsDir
	}
	if env.Pipeline.MarketVarianceMode != "" {
		merged.Pipeline.MarketVarianceMode = env.Pipeline.MarketVarianceMode
	}
	return merged
}

// Validate checks the configuration invariants.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return err
	}
	return nil
}
