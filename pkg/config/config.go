// Package config loads server settings from an optional YAML file and the
// environment. Command-line flags are applied on top by the CLI.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/lemonberrylabs/calcd/pkg/runtime"
)

// Config holds the server settings.
type Config struct {
	Host                string        `yaml:"host"`
	Port                int           `yaml:"port"`
	GRPCPort            int           `yaml:"grpc_port"`
	Project             string        `yaml:"project"`
	Location            string        `yaml:"location"`
	ProgramsDir         string        `yaml:"programs_dir"`
	Timeout             time.Duration `yaml:"timeout"`
	MaxExpressionLength int           `yaml:"max_expression_length"`
	LogLevel            string        `yaml:"log_level"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Host:                "0.0.0.0",
		Port:                8787,
		GRPCPort:            8788,
		Project:             "my-project",
		Location:            "us-central1",
		Timeout:             runtime.DefaultTimeout,
		MaxExpressionLength: runtime.DefaultMaxExpressionLength,
		LogLevel:            "info",
	}
}

// Load returns the defaults overlaid with the YAML file at path (if path is
// not empty) and then with the environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// ApplyEnv overlays PORT, GRPC_PORT, HOST, PROJECT, LOCATION, PROGRAMS_DIR,
// CALCD_TIMEOUT and CALCD_LOG_LEVEL. Empty variables are ignored.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	strs := map[string]*string{
		"HOST":            &c.Host,
		"PROJECT":         &c.Project,
		"LOCATION":        &c.Location,
		"PROGRAMS_DIR":    &c.ProgramsDir,
		"CALCD_LOG_LEVEL": &c.LogLevel,
	}
	for key, dst := range strs {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{"PORT": &c.Port, "GRPC_PORT": &c.GRPCPort}
	for key, dst := range ints {
		if v := getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid %s %q: %w", key, v, err)
			}
			*dst = n
		}
	}

	if v := getenv("CALCD_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid CALCD_TIMEOUT %q: %w", v, err)
		}
		c.Timeout = d
	}
	return nil
}

// Validate checks ranges.
func (c *Config) Validate() error {
	var errs []error
	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.GRPCPort < 0 || c.GRPCPort > 65535 {
		errs = append(errs, fmt.Errorf("grpc_port %d out of range", c.GRPCPort))
	}
	if c.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("timeout must be positive, got %s", c.Timeout))
	}
	if c.MaxExpressionLength < 0 {
		errs = append(errs, fmt.Errorf("max_expression_length must not be negative"))
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("unknown log_level %q", c.LogLevel))
	}
	return errors.Join(errs...)
}

// Addr is the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GRPCAddr is the gRPC listen address.
func (c *Config) GRPCAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.GRPCPort)
}

// Engine returns the engine limits.
func (c *Config) Engine() runtime.Config {
	return runtime.Config{Timeout: c.Timeout, MaxExpressionLength: c.MaxExpressionLength}
}
