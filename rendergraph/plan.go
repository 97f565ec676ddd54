// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rendergraph

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/gogpu/gputypes"
)

// interval is a resource's live range in schedule positions.
type interval struct {
	first, last int
}

// slot is one physical allocation shared by transient resources whose
// live ranges do not overlap.
type slot struct {
	kind    ResourceKind
	tex     TextureDesc
	buf     BufferDesc
	last    int
	members []ResourceID
}

// Barrier is a usage transition recorded before a pass runs.
type Barrier struct {
	Resource ResourceID
	Kind     ResourceKind
	// Previous targets the previous-frame image of a history texture.
	Previous bool

	TextureFrom, TextureTo gputypes.TextureUsage
	BufferFrom, BufferTo   gputypes.BufferUsage
}

// Plan is a compiled graph: the schedule of live passes, culling results,
// resource lifetimes, alias slots and barriers. A Plan is immutable and
// may be reused for any graph with the same TopologyHash.
type Plan struct {
	hash      uint64
	passNames []string
	resources []resource

	order  []int // live pass indices in schedule order
	pos    []int // schedule position per pass, -1 if culled
	culled []int
	levels [][]int

	lifetimes []interval
	culledRes []ResourceID
	slotOf    []int
	slots     []slot
	barriers  [][]Barrier
}

// alias assigns transient resources to slots greedily in order of first
// use. A slot is reused only when its last user runs strictly before the
// new first user.
func (p *Plan) alias() {
	p.slotOf = make([]int, len(p.resources))
	var candidates []ResourceID
	for i := range p.resources {
		p.slotOf[i] = -1
		if p.resources[i].lifetime == Transient && p.lifetimes[i].first >= 0 {
			candidates = append(candidates, ResourceID(i))
		}
	}
	slices.SortStableFunc(candidates, func(a, b ResourceID) int {
		return cmp.Compare(p.lifetimes[a].first, p.lifetimes[b].first)
	})

	for _, id := range candidates {
		r := &p.resources[id]
		iv := p.lifetimes[id]
		s := slices.IndexFunc(p.slots, func(s slot) bool {
			if s.kind != r.kind || s.last >= iv.first {
				return false
			}
			if r.kind == KindTexture {
				return s.tex.compatible(r.tex)
			}
			return s.buf.Usage == r.buf.Usage
		})
		if s < 0 {
			p.slots = append(p.slots, slot{kind: r.kind, tex: r.tex, buf: r.buf})
			s = len(p.slots) - 1
		}
		sl := &p.slots[s]
		sl.last = iv.last
		sl.members = append(sl.members, id)
		sl.tex.Usage |= r.tex.Usage
		sl.buf.Size = max(sl.buf.Size, r.buf.Size)
		p.slotOf[id] = s
	}
}

// Hash returns the topology hash the plan was compiled from.
func (p *Plan) Hash() uint64 { return p.hash }

func (p *Plan) names(idx []int) []string {
	out := make([]string, len(idx))
	for i, j := range idx {
		out[i] = p.passNames[j]
	}
	return out
}

// Order returns live pass names in execution order.
func (p *Plan) Order() []string { return p.names(p.order) }

// Culled returns culled pass names in declaration order.
func (p *Plan) Culled() []string { return p.names(p.culled) }

// CulledResources returns the names of resources no live pass uses.
func (p *Plan) CulledResources() []string {
	out := make([]string, len(p.culledRes))
	for i, id := range p.culledRes {
		out[i] = p.resources[id].name
	}
	return out
}

// Levels returns the live passes grouped into dependency wavefronts.
// Passes within one level do not depend on each other.
func (p *Plan) Levels() [][]string {
	out := make([][]string, len(p.levels))
	for i, l := range p.levels {
		out[i] = p.names(l)
	}
	return out
}

// Lifetime returns the first and last schedule positions using id.
func (p *Plan) Lifetime(id ResourceID) (first, last int, ok bool) {
	if id < 0 || int(id) >= len(p.lifetimes) || p.lifetimes[id].first < 0 {
		return -1, -1, false
	}
	return p.lifetimes[id].first, p.lifetimes[id].last, true
}

// Slot returns the alias slot of a transient resource, or -1.
func (p *Plan) Slot(id ResourceID) int {
	if id < 0 || int(id) >= len(p.slotOf) {
		return -1
	}
	return p.slotOf[id]
}

// SlotCount returns the number of physical transient allocations.
func (p *Plan) SlotCount() int { return len(p.slots) }

// Barriers returns the transitions recorded before the named pass.
func (p *Plan) Barriers(passName string) []Barrier {
	i := slices.Index(p.passNames, passName)
	if i < 0 || p.pos[i] < 0 {
		return nil
	}
	return slices.Clone(p.barriers[p.pos[i]])
}

// TransientBytes estimates the memory needed by the alias slots.
func (p *Plan) TransientBytes() uint64 {
	var n uint64
	for _, s := range p.slots {
		if s.kind == KindTexture {
			n += s.tex.sizeBytes()
		} else {
			n += s.buf.Size
		}
	}
	return n
}

func (p *Plan) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "plan %016x: %d passes, %d culled, %d levels, %d slots\n",
		p.hash, len(p.order), len(p.culled), len(p.levels), len(p.slots))
	for l, level := range p.levels {
		fmt.Fprintf(&b, "  level %d: %s\n", l, strings.Join(p.names(level), ", "))
	}
	if len(p.culled) > 0 {
		fmt.Fprintf(&b, "  culled passes: %s\n", strings.Join(p.Culled(), ", "))
	}
	if len(p.culledRes) > 0 {
		fmt.Fprintf(&b, "  culled resources: %s\n", strings.Join(p.CulledResources(), ", "))
	}
	for i := range p.resources {
		iv := p.lifetimes[i]
		if iv.first < 0 {
			continue
		}
		fmt.Fprintf(&b, "  %s [%d..%d]", &p.resources[i], iv.first, iv.last)
		if s := p.slotOf[i]; s >= 0 {
			fmt.Fprintf(&b, " slot %d", s)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
