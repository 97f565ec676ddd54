package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/gogpu/gfx"
	"github.com/gogpu/gfx/rendergraph"
)

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(`
[device]
backends = ["empty"]
label = "test"

[graph]
parallel = false
workers = 3
transient_budget_mb = 64

[log]
level = "debug"
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !slices.Equal(cfg.Device.Backends, []string{"empty"}) || cfg.Device.Label != "test" {
		t.Errorf("Device = %+v", cfg.Device)
	}
	if cfg.Device.ShaderCacheSize != gfx.DefaultShaderCacheSize {
		t.Errorf("omitted key lost its default: %d", cfg.Device.ShaderCacheSize)
	}
	if cfg.Graph.Parallel || cfg.Graph.Workers != 3 || cfg.Graph.TransientBudgetMB != 64 {
		t.Errorf("Graph = %+v", cfg.Graph)
	}
	if cfg.Graph.ScheduleCacheSize != rendergraph.DefaultScheduleCacheSize {
		t.Errorf("ScheduleCacheSize = %d", cfg.Graph.ScheduleCacheSize)
	}
	if level, _ := cfg.LogLevel(); level != slog.LevelDebug {
		t.Errorf("LogLevel() = %v", level)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		invalid bool
	}{
		{"syntax", "[device\nlabel = 1", false},
		{"unknown key", "[device]\ncolor = true", false},
		{"wrong type", "[graph]\nworkers = \"four\"", false},
		{"negative workers", "[graph]\nworkers = -1", true},
		{"negative budget", "[graph]\ntransient_budget_mb = -5", true},
		{"bad level", "[log]\nlevel = \"loud\"", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.input))
			if err == nil {
				t.Fatal("Parse succeeded")
			}
			if got := errors.Is(err, ErrInvalid); got != tt.invalid {
				t.Errorf("errors.Is(err, ErrInvalid) = %v, want %v (err %v)", got, tt.invalid, err)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gfx.toml")
	if err := os.WriteFile(path, []byte("[device]\nbackends = [\"empty\"]\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	dev, err := gfx.NewDevice(cfg.DeviceOptions()...)
	if err != nil {
		t.Fatalf("NewDevice from config: %v", err)
	}
	defer dev.Destroy()
	if dev.Backend() != gfx.BackendEmpty {
		t.Errorf("Backend() = %q", dev.Backend())
	}

	exec := rendergraph.NewExecutor(dev, cfg.ExecutorOptions()...)
	exec.Close()

	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Load(missing) = %v, want ErrNotExist", err)
	}
}

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatal(err)
	}
	if len(Default().DeviceOptions()) == 0 {
		t.Error("default shader cache size should produce an option")
	}
}
