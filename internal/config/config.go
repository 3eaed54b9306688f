// Package config loads the TOML settings shared by the kernel and the REPL
// and the JSON connection file handed to the kernel by its frontend.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	defaultEvalTimeout    = 10 * time.Second
	defaultLogLevel       = "info"
	defaultHistoryEnabled = true
	defaultServiceName    = "gomathics"
	defaultHistoryName    = "history.db"
)

// Config stores runtime settings loaded from TOML files.
type Config struct {
	// EvalTimeout bounds one top-level evaluation. Zero disables it.
	EvalTimeout    time.Duration
	LogLevel       string
	HistoryFile    string
	HistoryEnabled bool
	// EchoInput makes script mode print each input before its result.
	EchoInput      bool
	RecursionLimit int
	IterationLimit int
	OTel           OTelConfig
}

// OTelConfig selects where traces go.
type OTelConfig struct {
	Endpoint    string
	ServiceName string
}

type fileConfig struct {
	EvalTimeout    *string      `toml:"eval_timeout"`
	LogLevel       *string      `toml:"log_level"`
	HistoryFile    *string      `toml:"history_file"`
	HistoryEnabled *bool        `toml:"history_enabled"`
	EchoInput      *bool        `toml:"echo_input"`
	Limits         *limitsTable `toml:"limits"`
	OTel           *otelTable   `toml:"otel"`
}

type limitsTable struct {
	Recursion *int `toml:"recursion"`
	Iteration *int `toml:"iteration"`
}

type otelTable struct {
	Endpoint    *string `toml:"endpoint"`
	ServiceName *string `toml:"service_name"`
}

// Dir returns ~/.mathics, where settings, logs and history live.
func Dir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(homeDir, ".mathics"), nil
}

// Load reads config from ~/.mathics/config.toml and overlays a
// project-local .mathics/config.toml.
func Load(ctx context.Context) (*Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	dir, err := Dir()
	if err != nil {
		return nil, err
	}
	cfg := defaults(dir)

	workingDir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("resolve working directory: %w", err)
	}

	paths := []string{
		filepath.Join(dir, "config.toml"),
		filepath.Join(workingDir, ".mathics", "config.toml"),
	}

	for _, path := range paths {
		if err := overlayFromFile(&cfg, path); err != nil {
			return nil, err
		}
	}

	return &cfg, nil
}

func defaults(dir string) Config {
	return Config{
		EvalTimeout:    defaultEvalTimeout,
		LogLevel:       defaultLogLevel,
		HistoryFile:    filepath.Join(dir, defaultHistoryName),
		HistoryEnabled: defaultHistoryEnabled,
		OTel: OTelConfig{
			ServiceName: defaultServiceName,
		},
	}
}

func overlayFromFile(cfg *Config, path string) error {
	if cfg == nil {
		return errors.New("config must not be nil")
	}

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat config file %q: %w", path, err)
	}

	var decoded fileConfig
	meta, err := toml.DecodeFile(path, &decoded)
	if err != nil {
		return fmt.Errorf("decode config file %q: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return fmt.Errorf("decode config file %q: unsupported keys %s", path, strings.Join(keys, ", "))
	}

	if err := applyScalarOverrides(cfg, decoded, path); err != nil {
		return err
	}
	if err := applyLimitOverrides(cfg, decoded, path); err != nil {
		return err
	}
	applyOTelOverrides(cfg, decoded)
	return nil
}

func parseDuration(value, key, path string) (time.Duration, error) {
	parsed, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("parse %s in %q: %w", key, path, err)
	}
	if parsed < 0 {
		return 0, fmt.Errorf("parse %s in %q: must be >= 0", key, path)
	}
	return parsed, nil
}

func applyScalarOverrides(cfg *Config, decoded fileConfig, path string) error {
	if decoded.EvalTimeout != nil {
		value, err := parseDuration(*decoded.EvalTimeout, "eval_timeout", path)
		if err != nil {
			return err
		}
		cfg.EvalTimeout = value
	}
	if decoded.LogLevel != nil {
		level := normalizeKey(*decoded.LogLevel)
		switch level {
		case "debug", "info", "warn", "error":
			cfg.LogLevel = level
		default:
			return fmt.Errorf("parse log_level in %q: unknown level %q", path, *decoded.LogLevel)
		}
	}
	if decoded.HistoryFile != nil {
		cfg.HistoryFile = expandHome(strings.TrimSpace(*decoded.HistoryFile))
	}
	if decoded.HistoryEnabled != nil {
		cfg.HistoryEnabled = *decoded.HistoryEnabled
	}
	if decoded.EchoInput != nil {
		cfg.EchoInput = *decoded.EchoInput
	}
	return nil
}

func applyLimitOverrides(cfg *Config, decoded fileConfig, path string) error {
	if decoded.Limits == nil {
		return nil
	}
	if decoded.Limits.Recursion != nil {
		if *decoded.Limits.Recursion <= 0 {
			return fmt.Errorf("parse limits.recursion in %q: must be > 0", path)
		}
		cfg.RecursionLimit = *decoded.Limits.Recursion
	}
	if decoded.Limits.Iteration != nil {
		if *decoded.Limits.Iteration <= 0 {
			return fmt.Errorf("parse limits.iteration in %q: must be > 0", path)
		}
		cfg.IterationLimit = *decoded.Limits.Iteration
	}
	return nil
}

func applyOTelOverrides(cfg *Config, decoded fileConfig) {
	if decoded.OTel == nil {
		return
	}
	if decoded.OTel.Endpoint != nil {
		cfg.OTel.Endpoint = strings.TrimSpace(*decoded.OTel.Endpoint)
	}
	if decoded.OTel.ServiceName != nil {
		if name := strings.TrimSpace(*decoded.OTel.ServiceName); name != "" {
			cfg.OTel.ServiceName = name
		}
	}
}

func normalizeKey(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(homeDir, strings.TrimPrefix(path, "~"))
}
