package graphfile

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/gfx/rendergraph"
)

const deferredYAML = `
resources:
  - name: backbuffer
    lifetime: imported
    width: 64
    height: 64
    format: bgra8unorm
    present: true
  - name: hdr
    width: 64
    height: 64
    format: rgba16float
  - name: accum
    lifetime: history
    width: 64
    height: 64
    format: rgba16float
  - name: counters
    kind: buffer
    size: 256
    usage: [storage, copy-src]
passes:
  - name: scene
    writes: [hdr]
  - name: taa
    reads: [hdr]
    writes: [accum]
    history: [accum]
  - name: tonemap
    reads: [accum]
    writes: [backbuffer]
  - name: stats
    writes: [counters]
`

const deferredTOML = `
[[resources]]
name = "backbuffer"
lifetime = "imported"
width = 64
height = 64
format = "bgra8unorm"
present = true

[[resources]]
name = "hdr"
width = 64
height = 64
format = "rgba16float"

[[resources]]
name = "accum"
lifetime = "history"
width = 64
height = 64
format = "rgba16float"

[[resources]]
name = "counters"
kind = "buffer"
size = 256
usage = ["storage", "copy-src"]

[[passes]]
name = "scene"
writes = ["hdr"]

[[passes]]
name = "taa"
reads = ["hdr"]
writes = ["accum"]
history = ["accum"]

[[passes]]
name = "tonemap"
reads = ["accum"]
writes = ["backbuffer"]

[[passes]]
name = "stats"
writes = ["counters"]
`

func TestParseAndCompile(t *testing.T) {
	for _, tt := range []struct {
		name   string
		format Format
		data   string
	}{{"yaml", YAML, deferredYAML}, {"toml", TOML, deferredTOML}} {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Parse([]byte(tt.data), tt.format)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if len(f.Resources) != 4 || len(f.Passes) != 4 {
				t.Fatalf("decoded %d resources, %d passes", len(f.Resources), len(f.Passes))
			}

			var built []string
			g, err := f.Build(func(p *Pass, _ map[string]rendergraph.ResourceID) func(*rendergraph.PassContext) error {
				built = append(built, p.Name)
				return nil
			})
			if err != nil {
				t.Fatalf("Build: %v", err)
			}
			if !slices.Equal(built, []string{"scene", "taa", "tonemap", "stats"}) {
				t.Errorf("execute hook saw %v", built)
			}

			plan, err := g.Compile()
			if err != nil {
				t.Fatalf("Compile: %v", err)
			}
			if got := plan.Order(); !slices.Equal(got, []string{"scene", "taa", "tonemap"}) {
				t.Errorf("Order() = %v", got)
			}
			if got := plan.Culled(); !slices.Equal(got, []string{"stats"}) {
				t.Errorf("Culled() = %v", got)
			}
		})
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in   string
		want gputypes.TextureFormat
	}{
		{"rgba8unorm", gputypes.TextureFormatRGBA8Unorm},
		{"BGRA8Unorm", gputypes.TextureFormatBGRA8Unorm},
		{"depth24plus-stencil8", gputypes.TextureFormatDepth24PlusStencil8},
		{"rgba16float", gputypes.TextureFormatRGBA16Float},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParseFormat(%q) = %v, %v, want %v", tt.in, got, err, tt.want)
		}
	}
	if _, err := ParseFormat("rgb565"); !errors.Is(err, ErrFormat) {
		t.Errorf("unknown format: %v", err)
	}
}

func TestBuildErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"unknown key", "resources:\n  - name: a\n    colour: red\n"},
		{"undeclared resource", "passes:\n  - name: p\n    reads: [ghost]\n"},
		{"texture without size", "resources:\n  - name: t\n    format: rgba8unorm\n"},
		{"bad format", "resources:\n  - name: t\n    width: 4\n    height: 4\n    format: nope\n"},
		{"buffer without size", "resources:\n  - name: b\n    kind: buffer\n"},
		{"bad usage", "resources:\n  - name: b\n    kind: buffer\n    size: 4\n    usage: [teleport]\n"},
		{"present on transient", "resources:\n  - name: t\n    width: 4\n    height: 4\n    format: r8unorm\n    present: true\n"},
		{"history buffer", "resources:\n  - name: b\n    kind: buffer\n    lifetime: history\n    size: 4\n"},
		{"unknown lifetime", "resources:\n  - name: t\n    width: 4\n    height: 4\n    format: r8unorm\n    lifetime: forever\n"},
		{"unknown kind", "resources:\n  - name: t\n    kind: sampler\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Parse([]byte(tt.data), YAML)
			if err == nil {
				_, err = f.Build(nil)
			}
			if !errors.Is(err, ErrFormat) {
				t.Errorf("err = %v, want ErrFormat", err)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	for name, data := range map[string]string{"frame.yml": deferredYAML, "frame.toml": deferredTOML} {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
			t.Fatal(err)
		}
		f, err := Load(path)
		if err != nil {
			t.Fatalf("Load(%s): %v", name, err)
		}
		if len(f.Passes) != 4 {
			t.Errorf("Load(%s): %d passes", name, len(f.Passes))
		}
	}
	if _, err := Load(filepath.Join(dir, "frame.json")); !errors.Is(err, ErrFormat) {
		t.Errorf("Load(.json) = %v, want ErrFormat", err)
	}
}
