// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rendergraph

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/fnv"

	"github.com/gogpu/gfx"
)

// access is one resource use declared by a pass.
type access struct {
	id   ResourceID
	mode accessMode
}

type accessMode uint8

const (
	accessRead accessMode = iota
	accessWrite
	accessReadHistory
)

// pass is one declared node.
type pass struct {
	name       string
	accesses   []access
	sideEffect bool
	execute    func(*PassContext) error
}

func (p *pass) writes(id ResourceID) bool {
	for _, a := range p.accesses {
		if a.id == id && a.mode == accessWrite {
			return true
		}
	}
	return false
}

// uses reports the access modes p declares for id.
func (p *pass) uses(id ResourceID) (read, write, history bool) {
	for _, a := range p.accesses {
		if a.id != id {
			continue
		}
		switch a.mode {
		case accessRead:
			read = true
		case accessWrite:
			write = true
		case accessReadHistory:
			history = true
		}
	}
	return read, write, history
}

// Graph is one frame's declaration of passes and the resources they use.
// A Graph is built by a single goroutine and compiled or executed once
// declaration is complete.
type Graph struct {
	resources []resource
	passes    []pass
	textures  map[ResourceID]*gfx.Texture
	buffers   map[ResourceID]*gfx.Buffer
	errs      []error
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		textures: make(map[ResourceID]*gfx.Texture),
		buffers:  make(map[ResourceID]*gfx.Buffer),
	}
}

func (g *Graph) add(r resource) ResourceID {
	if r.kind == KindTexture {
		r.tex = r.tex.normalized()
	}
	g.resources = append(g.resources, r)
	return ResourceID(len(g.resources) - 1)
}

// CreateTexture declares a transient texture.
func (g *Graph) CreateTexture(name string, desc TextureDesc) ResourceID {
	return g.add(resource{name: name, kind: KindTexture, lifetime: Transient, tex: desc})
}

// CreateBuffer declares a transient buffer.
func (g *Graph) CreateBuffer(name string, desc BufferDesc) ResourceID {
	return g.add(resource{name: name, kind: KindBuffer, lifetime: Transient, buf: desc})
}

// ImportTexture declares a caller-owned texture. Bind it with BindTexture
// before execution.
func (g *Graph) ImportTexture(name string, desc TextureDesc, flags ImportFlags) ResourceID {
	return g.add(resource{name: name, kind: KindTexture, lifetime: Imported, flags: flags, tex: desc})
}

// ImportBuffer declares a caller-owned buffer.
func (g *Graph) ImportBuffer(name string, desc BufferDesc, flags ImportFlags) ResourceID {
	return g.add(resource{name: name, kind: KindBuffer, lifetime: Imported, flags: flags, buf: desc})
}

// CreateHistoryTexture declares a texture that persists across frames.
// Passes write the current frame's image; ReadHistory sees the image
// written by the previous frame.
func (g *Graph) CreateHistoryTexture(name string, desc TextureDesc) ResourceID {
	return g.add(resource{name: name, kind: KindTexture, lifetime: History, tex: desc})
}

// declErr joins the errors recorded while declaring. They are not part of
// the topology hash, so they are checked on every execution.
func (g *Graph) declErr() error {
	return errors.Join(g.errs...)
}

func (g *Graph) valid(id ResourceID) bool {
	return id >= 0 && int(id) < len(g.resources)
}

// BindTexture supplies the object behind an imported texture.
func (g *Graph) BindTexture(id ResourceID, tex *gfx.Texture) {
	if !g.valid(id) || g.resources[id].lifetime != Imported || g.resources[id].kind != KindTexture {
		g.errs = append(g.errs, fmt.Errorf("%w: BindTexture(%d): not an imported texture", ErrInvalidGraph, id))
		return
	}
	g.textures[id] = tex
}

// BindBuffer supplies the object behind an imported buffer.
func (g *Graph) BindBuffer(id ResourceID, buf *gfx.Buffer) {
	if !g.valid(id) || g.resources[id].lifetime != Imported || g.resources[id].kind != KindBuffer {
		g.errs = append(g.errs, fmt.Errorf("%w: BindBuffer(%d): not an imported buffer", ErrInvalidGraph, id))
		return
	}
	g.buffers[id] = buf
}

// Resource returns the name and kind of a declared resource.
func (g *Graph) Resource(id ResourceID) (name string, kind ResourceKind, ok bool) {
	if !g.valid(id) {
		return "", 0, false
	}
	return g.resources[id].name, g.resources[id].kind, true
}

// Lookup finds a resource by name.
func (g *Graph) Lookup(name string) (ResourceID, bool) {
	for i := range g.resources {
		if g.resources[i].name == name {
			return ResourceID(i), true
		}
	}
	return InvalidResource, false
}

// NumPasses returns the number of declared passes.
func (g *Graph) NumPasses() int { return len(g.passes) }

// NumResources returns the number of declared resources.
func (g *Graph) NumResources() int { return len(g.resources) }

// PassBuilder declares one pass's accesses.
type PassBuilder struct {
	g *Graph
	p *pass
}

// AddPass declares a pass. The setup function runs immediately.
func (g *Graph) AddPass(name string, setup func(*PassBuilder)) {
	g.passes = append(g.passes, pass{name: name})
	if setup != nil {
		setup(&PassBuilder{g: g, p: &g.passes[len(g.passes)-1]})
	}
}

func (b *PassBuilder) use(id ResourceID, mode accessMode, op string) *PassBuilder {
	if !b.g.valid(id) {
		b.g.errs = append(b.g.errs, fmt.Errorf("%w: pass %q: %s(%d): unknown resource", ErrInvalidGraph, b.p.name, op, id))
		return b
	}
	b.p.accesses = append(b.p.accesses, access{id: id, mode: mode})
	return b
}

// Read declares a same-frame read of id.
func (b *PassBuilder) Read(id ResourceID) *PassBuilder { return b.use(id, accessRead, "Read") }

// Write declares a write of id.
func (b *PassBuilder) Write(id ResourceID) *PassBuilder { return b.use(id, accessWrite, "Write") }

// ReadHistory declares a read of the previous frame's image of a history
// texture. It orders nothing within the frame.
func (b *PassBuilder) ReadHistory(id ResourceID) *PassBuilder {
	return b.use(id, accessReadHistory, "ReadHistory")
}

// SideEffect keeps the pass even when nothing observable reads its output.
func (b *PassBuilder) SideEffect() *PassBuilder {
	b.p.sideEffect = true
	return b
}

// Execute sets the recording callback.
func (b *PassBuilder) Execute(fn func(*PassContext) error) *PassBuilder {
	b.p.execute = fn
	return b
}

// TopologyHash is an FNV-1a hash of passes, their accesses and the
// resource descriptors. Graphs with equal hashes compile to equal plans.
func (g *Graph) TopologyHash() uint64 {
	h := fnv.New64a()
	var buf [8]byte
	u64 := func(v uint64) {
		binary.LittleEndian.PutUint64(buf[:], v)
		_, _ = h.Write(buf[:])
	}
	str := func(s string) {
		u64(uint64(len(s)))
		_, _ = h.Write([]byte(s))
	}

	u64(uint64(len(g.resources)))
	for i := range g.resources {
		r := &g.resources[i]
		str(r.name)
		u64(uint64(r.kind)<<16 | uint64(r.lifetime)<<8 | uint64(r.flags))
		if r.kind == KindTexture {
			u64(uint64(r.tex.Width)<<32 | uint64(r.tex.Height))
			u64(uint64(r.tex.Format)<<32 | uint64(r.tex.SampleCount))
			u64(uint64(r.tex.Usage))
		} else {
			u64(r.buf.Size)
			u64(uint64(r.buf.Usage))
		}
	}
	u64(uint64(len(g.passes)))
	for i := range g.passes {
		p := &g.passes[i]
		str(p.name)
		if p.sideEffect {
			u64(1)
		} else {
			u64(0)
		}
		u64(uint64(len(p.accesses)))
		for _, a := range p.accesses {
			u64(uint64(a.id)<<8 | uint64(a.mode))
		}
	}
	return h.Sum64()
}
