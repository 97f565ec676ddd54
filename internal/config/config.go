// Package config loads gfx settings from TOML files.
//
// A file has three optional tables:
//
//	[device]
//	backends = ["vulkan", "empty"]
//	label = "main"
//	shader_cache_size = 128
//
//	[graph]
//	parallel = true
//	workers = 4
//	transient_budget_mb = 128
//	schedule_cache_size = 32
//
//	[log]
//	level = "debug"
//
// Omitted keys keep the values from Default.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/gogpu/gfx"
	"github.com/gogpu/gfx/rendergraph"
)

// ErrInvalid is matched by every validation error.
var ErrInvalid = errors.New("config: invalid value")

// Config is the whole configuration file.
type Config struct {
	Device DeviceConfig `toml:"device"`
	Graph  GraphConfig  `toml:"graph"`
	Log    LogConfig    `toml:"log"`
}

// DeviceConfig selects and labels the device.
type DeviceConfig struct {
	// Backends is the probe order. Empty means the registry default.
	Backends        []string `toml:"backends"`
	Label           string   `toml:"label"`
	ShaderCacheSize int      `toml:"shader_cache_size"`
	Debug           bool     `toml:"debug"`
}

// GraphConfig tunes the render graph executor.
type GraphConfig struct {
	Parallel          bool `toml:"parallel"`
	Workers           int  `toml:"workers"`
	TransientBudgetMB int  `toml:"transient_budget_mb"`
	ScheduleCacheSize int  `toml:"schedule_cache_size"`
}

// LogConfig sets the log level: debug, info, warn or error.
type LogConfig struct {
	Level string `toml:"level"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Device: DeviceConfig{
			ShaderCacheSize: gfx.DefaultShaderCacheSize,
		},
		Graph: GraphConfig{
			Parallel:          true,
			TransientBudgetMB: rendergraph.DefaultTransientBudget >> 20,
			ScheduleCacheSize: rendergraph.DefaultScheduleCacheSize,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads and parses a TOML file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes TOML over Default. Unknown keys are errors.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, col := derr.Position()
			return Config{}, fmt.Errorf("config: line %d, column %d: %w", row, col, err)
		}
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks ranges and names.
func (c Config) Validate() error {
	if c.Device.ShaderCacheSize < 0 {
		return fmt.Errorf("%w: device.shader_cache_size %d", ErrInvalid, c.Device.ShaderCacheSize)
	}
	if c.Graph.Workers < 0 {
		return fmt.Errorf("%w: graph.workers %d", ErrInvalid, c.Graph.Workers)
	}
	if c.Graph.TransientBudgetMB < 0 {
		return fmt.Errorf("%w: graph.transient_budget_mb %d", ErrInvalid, c.Graph.TransientBudgetMB)
	}
	if c.Graph.ScheduleCacheSize < 0 {
		return fmt.Errorf("%w: graph.schedule_cache_size %d", ErrInvalid, c.Graph.ScheduleCacheSize)
	}
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	return nil
}

// LogLevel parses Log.Level.
func (c Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if c.Log.Level == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("%w: log.level %q", ErrInvalid, c.Log.Level)
	}
	return level, nil
}

// DeviceOptions converts the [device] table.
func (c Config) DeviceOptions() []gfx.DeviceOption {
	var opts []gfx.DeviceOption
	if len(c.Device.Backends) > 0 {
		opts = append(opts, gfx.WithBackends(c.Device.Backends...))
	}
	if c.Device.Label != "" {
		opts = append(opts, gfx.WithLabel(c.Device.Label))
	}
	if c.Device.ShaderCacheSize > 0 {
		opts = append(opts, gfx.WithShaderCacheSize(c.Device.ShaderCacheSize))
	}
	if c.Device.Debug {
		opts = append(opts, gfx.WithDebug(true))
	}
	return opts
}

// ExecutorOptions converts the [graph] table.
func (c Config) ExecutorOptions() []rendergraph.ExecutorOption {
	opts := []rendergraph.ExecutorOption{rendergraph.WithParallel(c.Graph.Parallel)}
	if c.Graph.Workers > 0 {
		opts = append(opts, rendergraph.WithWorkers(c.Graph.Workers))
	}
	if c.Graph.TransientBudgetMB > 0 {
		opts = append(opts, rendergraph.WithTransientBudget(uint64(c.Graph.TransientBudgetMB)<<20))
	}
	if c.Graph.ScheduleCacheSize > 0 {
		opts = append(opts, rendergraph.WithScheduleCacheSize(c.Graph.ScheduleCacheSize))
	}
	return opts
}
