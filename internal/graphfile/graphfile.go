// Package graphfile reads render graph descriptions from YAML or TOML.
//
// A description lists resources and passes by name:
//
//	resources:
//	  - name: backbuffer
//	    kind: texture
//	    lifetime: imported
//	    width: 1280
//	    height: 720
//	    format: bgra8unorm
//	    present: true
//	  - name: hdr
//	    width: 1280
//	    height: 720
//	    format: rgba16float
//	passes:
//	  - name: scene
//	    writes: [hdr]
//	  - name: tonemap
//	    reads: [hdr]
//	    writes: [backbuffer]
//
// Kind defaults to texture and lifetime to transient.
package graphfile

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/gogpu/gfx/rendergraph"
)

// ErrFormat reports an unreadable or inconsistent description.
var ErrFormat = errors.New("graphfile: invalid description")

// Format is a description encoding.
type Format int

const (
	// YAML is selected for .yaml and .yml files.
	YAML Format = iota
	// TOML is selected for .toml files.
	TOML
)

// FormatOf picks the encoding from a file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return YAML, nil
	case ".toml":
		return TOML, nil
	default:
		return 0, fmt.Errorf("%w: unknown extension %q", ErrFormat, filepath.Ext(path))
	}
}

// File is a decoded description.
type File struct {
	Resources []Resource `yaml:"resources" toml:"resources"`
	Passes    []Pass     `yaml:"passes" toml:"passes"`
}

// Resource declares one texture or buffer.
type Resource struct {
	Name     string   `yaml:"name" toml:"name"`
	Kind     string   `yaml:"kind" toml:"kind"`         // texture or buffer
	Lifetime string   `yaml:"lifetime" toml:"lifetime"` // transient, imported or history
	Width    uint32   `yaml:"width" toml:"width"`
	Height   uint32   `yaml:"height" toml:"height"`
	Format   string   `yaml:"format" toml:"format"`
	Samples  uint32   `yaml:"samples" toml:"samples"`
	Size     uint64   `yaml:"size" toml:"size"`
	Usage    []string `yaml:"usage" toml:"usage"`
	Present  bool     `yaml:"present" toml:"present"`
	Persist  bool     `yaml:"persist" toml:"persist"`
}

// Pass declares one pass.
type Pass struct {
	Name       string   `yaml:"name" toml:"name"`
	Reads      []string `yaml:"reads" toml:"reads"`
	Writes     []string `yaml:"writes" toml:"writes"`
	History    []string `yaml:"history" toml:"history"`
	SideEffect bool     `yaml:"side_effect" toml:"side_effect"`
}

// Load reads a description, choosing the decoder by extension.
func Load(path string) (*File, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("graphfile: %w", err)
	}
	f, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Parse decodes a description. Unknown keys are errors.
func Parse(data []byte, format Format) (*File, error) {
	var f File
	switch format {
	case YAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&f); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrFormat, err)
		}
	case TOML:
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&f); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrFormat, err)
		}
	default:
		return nil, fmt.Errorf("%w: format %d", ErrFormat, format)
	}
	return &f, nil
}

// ExecuteFunc supplies a pass's recording callback. ids maps every
// resource name to its id in the built graph. A nil result leaves the
// pass without a callback.
type ExecuteFunc func(p *Pass, ids map[string]rendergraph.ResourceID) func(*rendergraph.PassContext) error

// Build declares the description on a new graph.
func (f *File) Build(execute ExecuteFunc) (*rendergraph.Graph, error) {
	g := rendergraph.New()
	ids := make(map[string]rendergraph.ResourceID, len(f.Resources))

	for i := range f.Resources {
		r := &f.Resources[i]
		id, err := declare(g, r)
		if err != nil {
			return nil, err
		}
		ids[r.Name] = id
	}

	lookup := func(pass, name string) (rendergraph.ResourceID, error) {
		id, ok := ids[name]
		if !ok {
			return rendergraph.InvalidResource, fmt.Errorf("%w: pass %q uses undeclared resource %q", ErrFormat, pass, name)
		}
		return id, nil
	}

	for i := range f.Passes {
		p := &f.Passes[i]
		var reads, writes, history []rendergraph.ResourceID
		for _, list := range []struct {
			names []string
			out   *[]rendergraph.ResourceID
		}{{p.Reads, &reads}, {p.Writes, &writes}, {p.History, &history}} {
			for _, name := range list.names {
				id, err := lookup(p.Name, name)
				if err != nil {
					return nil, err
				}
				*list.out = append(*list.out, id)
			}
		}

		var fn func(*rendergraph.PassContext) error
		if execute != nil {
			fn = execute(p, ids)
		}
		g.AddPass(p.Name, func(b *rendergraph.PassBuilder) {
			for _, id := range reads {
				b.Read(id)
			}
			for _, id := range writes {
				b.Write(id)
			}
			for _, id := range history {
				b.ReadHistory(id)
			}
			if p.SideEffect {
				b.SideEffect()
			}
			if fn != nil {
				b.Execute(fn)
			}
		})
	}
	return g, nil
}

func declare(g *rendergraph.Graph, r *Resource) (rendergraph.ResourceID, error) {
	var flags rendergraph.ImportFlags
	if r.Present {
		flags |= rendergraph.Present
	}
	if r.Persist {
		flags |= rendergraph.Persist
	}
	lifetime := strings.ToLower(r.Lifetime)
	if flags != 0 && lifetime != "imported" {
		return 0, fmt.Errorf("%w: resource %q: present/persist apply to imported resources", ErrFormat, r.Name)
	}

	switch strings.ToLower(r.Kind) {
	case "", "texture":
		desc, err := textureDesc(r)
		if err != nil {
			return 0, err
		}
		switch lifetime {
		case "", "transient":
			return g.CreateTexture(r.Name, desc), nil
		case "imported":
			return g.ImportTexture(r.Name, desc, flags), nil
		case "history":
			return g.CreateHistoryTexture(r.Name, desc), nil
		}
	case "buffer":
		desc, err := bufferDesc(r)
		if err != nil {
			return 0, err
		}
		switch lifetime {
		case "", "transient":
			return g.CreateBuffer(r.Name, desc), nil
		case "imported":
			return g.ImportBuffer(r.Name, desc, flags), nil
		case "history":
			return 0, fmt.Errorf("%w: resource %q: history buffers are not supported", ErrFormat, r.Name)
		}
	default:
		return 0, fmt.Errorf("%w: resource %q: unknown kind %q", ErrFormat, r.Name, r.Kind)
	}
	return 0, fmt.Errorf("%w: resource %q: unknown lifetime %q", ErrFormat, r.Name, r.Lifetime)
}
