// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rendergraph

import (
	"fmt"
	"slices"

	"github.com/gogpu/gfx"
	"github.com/gogpu/gputypes"
)

// Compile validates the graph and produces an execution plan. A graph that
// fails to compile never yields a partial plan.
func (g *Graph) Compile() (*Plan, error) {
	if err := g.validate(); err != nil {
		return nil, err
	}

	succ, pred := g.edges()
	order, err := g.schedule(succ)
	if err != nil {
		return nil, err
	}

	p := &Plan{
		hash:      g.TopologyHash(),
		passNames: make([]string, len(g.passes)),
		resources: slices.Clone(g.resources),
		pos:       make([]int, len(g.passes)),
	}
	for i := range g.passes {
		p.passNames[i] = g.passes[i].name
	}

	live := g.cull(order, succ)
	for i := range p.pos {
		p.pos[i] = -1
	}
	for _, idx := range order {
		if live[idx] {
			p.pos[idx] = len(p.order)
			p.order = append(p.order, idx)
		}
	}
	for i := range g.passes {
		if !live[i] {
			p.culled = append(p.culled, i)
		}
	}

	p.levels = levels(p.order, pred)
	g.lifetimes(p)
	g.realizedUsage(p)
	p.alias()
	g.barriers(p)

	gfx.Logger().Debug("rendergraph: compiled",
		"passes", len(p.order), "culled", len(p.culled),
		"levels", len(p.levels), "slots", len(p.slots))
	return p, nil
}

func (g *Graph) validate() error {
	if err := g.declErr(); err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(g.resources))
	for i := range g.resources {
		name := g.resources[i].name
		if name == "" {
			return fmt.Errorf("%w: resource %d has no name", ErrInvalidGraph, i)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("%w: duplicate resource name %q", ErrInvalidGraph, name)
		}
		seen[name] = struct{}{}
	}

	clear(seen)
	for i := range g.passes {
		name := g.passes[i].name
		if name == "" {
			return fmt.Errorf("%w: pass %d has no name", ErrInvalidGraph, i)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("%w: duplicate pass name %q", ErrInvalidGraph, name)
		}
		seen[name] = struct{}{}
	}

	written := make([]bool, len(g.resources))
	for i := range g.passes {
		for _, a := range g.passes[i].accesses {
			if a.mode == accessWrite {
				written[a.id] = true
			}
		}
	}

	for i := range g.passes {
		p := &g.passes[i]
		for _, a := range p.accesses {
			r := &g.resources[a.id]
			switch a.mode {
			case accessReadHistory:
				if r.lifetime != History {
					return fmt.Errorf("%w: pass %q: ReadHistory of %s", ErrInvalidGraph, p.name, r)
				}
			case accessRead:
				if !written[a.id] && r.lifetime != Imported {
					return &DanglingError{Pass: p.name, Resource: r.name}
				}
			}
		}
	}
	return nil
}

// edges returns successor and predecessor lists. Every writer of a
// resource precedes every other pass reading it in the same frame.
func (g *Graph) edges() (succ, pred [][]int) {
	n := len(g.passes)
	succ = make([][]int, n)
	pred = make([][]int, n)

	writers := make([][]int, len(g.resources))
	for i := range g.passes {
		for _, a := range g.passes[i].accesses {
			if a.mode == accessWrite && !slices.Contains(writers[a.id], i) {
				writers[a.id] = append(writers[a.id], i)
			}
		}
	}

	for reader := range g.passes {
		for _, a := range g.passes[reader].accesses {
			if a.mode != accessRead {
				continue
			}
			for _, w := range writers[a.id] {
				if w == reader || slices.Contains(succ[w], reader) {
					continue
				}
				succ[w] = append(succ[w], reader)
				pred[reader] = append(pred[reader], w)
			}
		}
	}
	for i := range n {
		slices.Sort(succ[i])
		slices.Sort(pred[i])
	}
	return succ, pred
}

// schedule runs Kahn's algorithm, breaking ties by declaration order.
func (g *Graph) schedule(succ [][]int) ([]int, error) {
	n := len(g.passes)
	indeg := make([]int, n)
	for _, out := range succ {
		for _, v := range out {
			indeg[v]++
		}
	}

	var ready []int
	for i := range n {
		if indeg[i] == 0 {
			ready = append(ready, i)
		}
	}

	order := make([]int, 0, n)
	for len(ready) > 0 {
		u := ready[0]
		ready = ready[1:]
		order = append(order, u)
		for _, v := range succ[u] {
			indeg[v]--
			if indeg[v] == 0 {
				at, _ := slices.BinarySearch(ready, v)
				ready = slices.Insert(ready, at, v)
			}
		}
	}

	if len(order) < n {
		return nil, g.cycle(indeg, succ)
	}
	return order, nil
}

// cycle extracts one cycle from the passes Kahn's algorithm could not
// schedule. Every such pass has an unscheduled predecessor, so walking
// predecessors must revisit a pass.
func (g *Graph) cycle(indeg []int, succ [][]int) *CycleError {
	stuck := func(i int) bool { return indeg[i] > 0 }
	firstPred := func(v int) int {
		for u := range succ {
			if stuck(u) && slices.Contains(succ[u], v) {
				return u
			}
		}
		return -1
	}

	start := slices.IndexFunc(indeg, func(d int) bool { return d > 0 })
	var walk []int
	at := make(map[int]int)
	v := start
	for {
		if i, ok := at[v]; ok {
			walk = walk[i:]
			break
		}
		at[v] = len(walk)
		walk = append(walk, v)
		v = firstPred(v)
	}

	// walk follows edges backwards; reverse it, then rotate so the
	// earliest declared pass leads.
	slices.Reverse(walk)
	lead := slices.Index(walk, slices.Min(walk))
	walk = slices.Concat(walk[lead:], walk[:lead])

	names := make([]string, 0, len(walk)+1)
	for _, i := range walk {
		names = append(names, g.passes[i].name)
	}
	names = append(names, names[0])
	return &CycleError{Passes: names}
}

// root reports whether a pass has an externally observable effect.
func (g *Graph) root(i int) bool {
	p := &g.passes[i]
	if p.sideEffect {
		return true
	}
	for _, a := range p.accesses {
		if a.mode == accessWrite && g.resources[a.id].observable() {
			return true
		}
	}
	return false
}

// cull marks passes that contribute to a root. Walking the schedule
// backwards visits every successor before its predecessors.
func (g *Graph) cull(order []int, succ [][]int) []bool {
	live := make([]bool, len(g.passes))
	for i := len(order) - 1; i >= 0; i-- {
		u := order[i]
		if g.root(u) {
			live[u] = true
			continue
		}
		for _, v := range succ[u] {
			if live[v] {
				live[u] = true
				break
			}
		}
	}
	return live
}

// levels groups scheduled passes into wavefronts. Predecessors of a live
// pass are always live.
func levels(order []int, pred [][]int) [][]int {
	level := make(map[int]int, len(order))
	var out [][]int
	for _, u := range order {
		l := 0
		for _, w := range pred[u] {
			l = max(l, level[w]+1)
		}
		level[u] = l
		if l == len(out) {
			out = append(out, nil)
		}
		out[l] = append(out[l], u)
	}
	return out
}

func (g *Graph) lifetimes(p *Plan) {
	p.lifetimes = make([]interval, len(g.resources))
	for i := range p.lifetimes {
		p.lifetimes[i] = interval{first: -1, last: -1}
	}
	for at, idx := range p.order {
		for _, a := range g.passes[idx].accesses {
			iv := &p.lifetimes[a.id]
			if iv.first < 0 {
				iv.first = at
			}
			iv.last = at
		}
	}
	for i, iv := range p.lifetimes {
		if iv.first < 0 {
			p.culledRes = append(p.culledRes, ResourceID(i))
		}
	}
}

// realizedUsage adds the usage implied by the plan's accesses to each
// resource descriptor.
func (g *Graph) realizedUsage(p *Plan) {
	for _, idx := range p.order {
		for _, a := range g.passes[idx].accesses {
			r := &p.resources[a.id]
			if r.kind == KindTexture {
				if a.mode == accessWrite {
					r.tex.Usage |= textureWriteUsage
				} else {
					r.tex.Usage |= textureReadUsage
				}
			} else {
				r.buf.Usage |= bufferState(g.resources[a.id].buf.Usage, a.mode == accessWrite)
			}
		}
	}
}

// stateKey names one physical allocation for barrier tracking.
type stateKey struct {
	slot     int
	resource ResourceID
	previous bool
}

func (p *Plan) stateKey(id ResourceID, previous bool) stateKey {
	if s := p.slotOf[id]; s >= 0 {
		return stateKey{slot: s, resource: InvalidResource}
	}
	return stateKey{slot: -1, resource: id, previous: previous}
}

// barriers computes transitions sequentially in schedule order. Aliased
// resources inherit the state their slot was left in.
func (g *Graph) barriers(p *Plan) {
	texState := make(map[stateKey]gputypes.TextureUsage)
	bufState := make(map[stateKey]gputypes.BufferUsage)
	p.barriers = make([][]Barrier, len(p.order))

	for at, idx := range p.order {
		pass := &g.passes[idx]
		var done []stateKey
		for _, a := range pass.accesses {
			previous := a.mode == accessReadHistory
			key := p.stateKey(a.id, previous)
			if slices.Contains(done, key) {
				continue
			}
			done = append(done, key)

			_, write, _ := pass.uses(a.id)
			if previous {
				write = false
			}
			r := &g.resources[a.id]
			b := Barrier{Resource: a.id, Previous: previous, Kind: r.kind}
			if r.kind == KindTexture {
				to := textureReadUsage
				if write {
					to = textureWriteUsage
				}
				from := texState[key]
				if from == to {
					continue
				}
				texState[key] = to
				b.TextureFrom, b.TextureTo = from, to
			} else {
				to := bufferState(r.buf.Usage, write)
				from := bufState[key]
				if from == to {
					continue
				}
				bufState[key] = to
				b.BufferFrom, b.BufferTo = from, to
			}
			p.barriers[at] = append(p.barriers[at], b)
		}
	}
}
