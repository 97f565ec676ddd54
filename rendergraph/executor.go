// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rendergraph

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/gogpu/gfx"
	"github.com/gogpu/gfx/internal/cache"
)

// DefaultScheduleCacheSize is the number of compiled plans an executor keeps.
const DefaultScheduleCacheSize = 32

// renderPassCacheSize bounds the render passes created for PassContext.Framebuffer.
const renderPassCacheSize = 64

type executorOptions struct {
	parallel      bool
	workers       int
	budget        uint64
	scheduleCache int
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*executorOptions)

// WithParallel enables or disables concurrent recording of passes that
// share a dependency level. It is on by default.
func WithParallel(enabled bool) ExecutorOption {
	return func(o *executorOptions) { o.parallel = enabled }
}

// WithWorkers limits how many passes record at once. Non-positive values
// mean GOMAXPROCS.
func WithWorkers(n int) ExecutorOption {
	return func(o *executorOptions) { o.workers = n }
}

// WithTransientBudget sets the transient pool budget in bytes.
func WithTransientBudget(bytes uint64) ExecutorOption {
	return func(o *executorOptions) { o.budget = bytes }
}

// WithScheduleCacheSize sets how many compiled plans are cached.
func WithScheduleCacheSize(n int) ExecutorOption {
	return func(o *executorOptions) { o.scheduleCache = n }
}

// historyPair is the double-buffered storage of one history texture.
type historyPair struct {
	desc     TextureDesc
	current  *gfx.Texture
	previous *gfx.Texture
}

func (h *historyPair) destroy() {
	h.current.Destroy()
	h.previous.Destroy()
}

// FrameResult summarizes one executed frame.
type FrameResult struct {
	Frame uint64

	// Fence signals when the frame's work completes on the GPU. It stays
	// valid until it has completed and a later Execute has run, or until
	// Close.
	Fence *gfx.Fence

	Plan       *Plan
	PlanCached bool

	Passes         int
	Culled         int
	Barriers       int
	CommandBuffers int
	DrawCalls      uint64
	Triangles      uint64
}

// Executor runs graphs on a device. Execute calls are serialized; passes
// within one frame may record concurrently.
type Executor struct {
	mu  sync.Mutex
	dev *gfx.Device
	opt executorOptions

	plans   *cache.Cache[uint64, *Plan]
	passMu  sync.Mutex // orders stale render pass replacement
	passes  *cache.Cache[uint64, *gfx.RenderPass]
	pool    *transientPool
	history map[string]*historyPair
	fences  []*gfx.Fence

	frame  uint64
	closed bool
}

// NewExecutor returns an executor recording on dev.
func NewExecutor(dev *gfx.Device, opts ...ExecutorOption) *Executor {
	o := executorOptions{
		parallel:      true,
		budget:        DefaultTransientBudget,
		scheduleCache: DefaultScheduleCacheSize,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.workers <= 0 {
		o.workers = runtime.GOMAXPROCS(0)
	}

	passes := cache.New[uint64, *gfx.RenderPass](renderPassCacheSize)
	passes.OnEvict(func(_ uint64, rp *gfx.RenderPass) { rp.Destroy() })

	return &Executor{
		dev:     dev,
		opt:     o,
		plans:   cache.New[uint64, *Plan](o.scheduleCache),
		passes:  passes,
		pool:    newTransientPool(dev, o.budget),
		history: make(map[string]*historyPair),
	}
}

// renderPass returns the cached render pass for info. An entry that is no
// longer SUCCESS, for example one a pass destroyed through
// Framebuffer.RenderPass, is replaced.
func (e *Executor) renderPass(info gfx.RenderPassInfo) (*gfx.RenderPass, error) {
	e.passMu.Lock()
	defer e.passMu.Unlock()

	hash := gfx.HashRenderPassInfo(info)
	create := func() (*gfx.RenderPass, error) {
		rp := e.dev.CreateRenderPass(info)
		if err := readyErr(rp); err != nil {
			rp.Destroy()
			return nil, err
		}
		return rp, nil
	}
	rp, err := e.passes.GetOrCreate(hash, create)
	if err != nil {
		return nil, err
	}
	if rp.Status() != gfx.StatusSuccess {
		e.passes.Delete(hash)
		return e.passes.GetOrCreate(hash, create)
	}
	return rp, nil
}

// frameState is everything realized for one Execute call.
type frameState struct {
	graph *Graph
	plan  *Plan

	textures map[ResourceID]*gfx.Texture
	buffers  map[ResourceID]*gfx.Buffer
	previous map[ResourceID]*gfx.Texture
	leased   []*poolEntry

	cbs []*gfx.CommandBuffer // by schedule position

	mu           sync.Mutex
	framebuffers []*gfx.Framebuffer
}

// Execute compiles g (reusing a cached plan when the topology is
// unchanged), realizes its resources, records every live pass and submits
// the frame as one batch. A pass error aborts the frame before submission.
func (e *Executor) Execute(ctx context.Context, g *Graph) (*FrameResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, ErrExecutorClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := g.declErr(); err != nil {
		return nil, err
	}

	hash := g.TopologyHash()
	plan, cached := e.plans.Get(hash)
	if !cached {
		var err error
		if plan, err = g.Compile(); err != nil {
			return nil, err
		}
		e.plans.Set(hash, plan)
	}

	e.retireFences()
	e.dev.Queue().BeginFrame()

	f := &frameState{
		graph:    g,
		plan:     plan,
		textures: make(map[ResourceID]*gfx.Texture),
		buffers:  make(map[ResourceID]*gfx.Buffer),
		previous: make(map[ResourceID]*gfx.Texture),
		cbs:      make([]*gfx.CommandBuffer, len(plan.order)),
	}
	if err := e.realize(f); err != nil {
		e.abort(f)
		return nil, err
	}
	if err := e.record(ctx, f); err != nil {
		e.abort(f)
		return nil, err
	}

	fence := e.dev.CreateFence(fmt.Sprintf("frame %d", e.frame+1))
	if err := e.dev.Queue().Submit(f.cbs, fence); err != nil {
		fence.Destroy()
		e.abort(f)
		return nil, fmt.Errorf("rendergraph: submit: %w", err)
	}
	e.frame++
	e.fences = append(e.fences, fence)

	res := &FrameResult{
		Frame:          e.frame,
		Fence:          fence,
		Plan:           plan,
		PlanCached:     cached,
		Passes:         len(plan.order),
		Culled:         len(plan.culled),
		CommandBuffers: len(f.cbs),
	}
	for at, cb := range f.cbs {
		res.Barriers += len(plan.barriers[at])
		res.DrawCalls += cb.DrawCalls()
		res.Triangles += cb.Triangles()
	}

	e.finish(f, fence.Value())
	e.swapHistory(plan)

	gfx.Logger().Debug("rendergraph: frame submitted",
		"frame", res.Frame, "passes", res.Passes, "culled", res.Culled,
		"draws", res.DrawCalls, "cached", cached)
	return res, nil
}

// realize binds imports, leases alias slots and prepares history pairs.
func (e *Executor) realize(f *frameState) error {
	p := f.plan
	for i := range p.resources {
		id := ResourceID(i)
		r := &p.resources[i]
		if p.lifetimes[i].first < 0 || r.lifetime != Imported {
			continue
		}
		var err error
		if r.kind == KindTexture {
			tex, ok := f.graph.textures[id]
			if !ok || tex == nil {
				return fmt.Errorf("%w: %q", ErrUnbound, r.name)
			}
			err = readyErr(tex)
			f.textures[id] = tex
		} else {
			buf, ok := f.graph.buffers[id]
			if !ok || buf == nil {
				return fmt.Errorf("%w: %q", ErrUnbound, r.name)
			}
			err = readyErr(buf)
			f.buffers[id] = buf
		}
		if err != nil {
			return fmt.Errorf("rendergraph: imported %q: %w", r.name, err)
		}
	}

	for s := range p.slots {
		sl := &p.slots[s]
		entry, err := e.pool.acquire(poolKey{kind: sl.kind, tex: sl.tex, buf: sl.buf}, fmt.Sprintf("transient slot %d", s))
		if err != nil {
			return err
		}
		f.leased = append(f.leased, entry)
		for _, id := range sl.members {
			if entry.tex != nil {
				f.textures[id] = entry.tex
			} else {
				f.buffers[id] = entry.buf
			}
		}
	}

	for i := range p.resources {
		r := &p.resources[i]
		if p.lifetimes[i].first < 0 || r.lifetime != History {
			continue
		}
		pair, err := e.historyPair(r)
		if err != nil {
			return err
		}
		f.textures[ResourceID(i)] = pair.current
		f.previous[ResourceID(i)] = pair.previous
	}
	return nil
}

// historyPair returns the pair for r, recreating it when the descriptor
// changed.
func (e *Executor) historyPair(r *resource) (*historyPair, error) {
	desc := r.tex
	desc.Usage |= textureReadUsage | textureWriteUsage
	if pair, ok := e.history[r.name]; ok {
		if pair.desc == desc {
			return pair, nil
		}
		pair.destroy()
		delete(e.history, r.name)
	}

	create := func(suffix string) *gfx.Texture {
		return e.dev.CreateTexture(gfx.TextureInfo{
			Label:       r.name + suffix,
			Width:       desc.Width,
			Height:      desc.Height,
			SampleCount: desc.SampleCount,
			Format:      desc.Format,
			Usage:       desc.Usage,
		})
	}
	pair := &historyPair{desc: desc, current: create(" (a)"), previous: create(" (b)")}
	if err := readyErr(pair.current); err != nil {
		pair.destroy()
		return nil, fmt.Errorf("rendergraph: history %q: %w", r.name, err)
	}
	if err := readyErr(pair.previous); err != nil {
		pair.destroy()
		return nil, fmt.Errorf("rendergraph: history %q: %w", r.name, err)
	}
	e.history[r.name] = pair
	return pair, nil
}

// record runs the passes level by level. Passes within a level share no
// dependency, so they record concurrently into their own command buffers.
func (e *Executor) record(ctx context.Context, f *frameState) error {
	for _, level := range f.plan.levels {
		if !e.opt.parallel || len(level) == 1 {
			for _, idx := range level {
				if err := e.recordPass(ctx, f, idx); err != nil {
					return err
				}
			}
			continue
		}

		eg, gctx := errgroup.WithContext(ctx)
		eg.SetLimit(e.opt.workers)
		for _, idx := range level {
			eg.Go(func() error { return e.recordPass(gctx, f, idx) })
		}
		if err := eg.Wait(); err != nil {
			return err
		}
	}
	return nil
}

func (e *Executor) recordPass(ctx context.Context, f *frameState, idx int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p := &f.graph.passes[idx]
	at := f.plan.pos[idx]

	cb := e.dev.CreateCommandBuffer(gfx.CommandBufferInfo{Label: p.name})
	f.cbs[at] = cb
	if err := readyErr(cb); err != nil {
		return &PassError{Pass: p.name, Err: err}
	}
	if err := cb.Begin(); err != nil {
		return &PassError{Pass: p.name, Err: err}
	}

	for _, b := range f.plan.barriers[at] {
		var err error
		switch {
		case b.Kind == KindBuffer:
			err = cb.BufferBarrier(f.buffers[b.Resource], b.BufferFrom, b.BufferTo)
		case b.Previous:
			err = cb.TextureBarrier(f.previous[b.Resource], b.TextureFrom, b.TextureTo)
		default:
			err = cb.TextureBarrier(f.textures[b.Resource], b.TextureFrom, b.TextureTo)
		}
		if err != nil {
			return &PassError{Pass: p.name, Err: err}
		}
	}

	if p.execute != nil {
		pc := &PassContext{ctx: ctx, exec: e, frame: f, pass: p, cb: cb}
		if err := p.execute(pc); err != nil {
			return &PassError{Pass: p.name, Err: err}
		}
	}
	if err := cb.End(); err != nil {
		return &PassError{Pass: p.name, Err: err}
	}
	gfx.Logger().Debug("rendergraph: pass recorded",
		"pass", p.name, "position", at, "barriers", len(f.plan.barriers[at]))
	return nil
}

// finish releases per-frame objects after submission. Command buffers and
// framebuffers are destroyed at once; the device defers their release
// until the submission completes.
func (e *Executor) finish(f *frameState, retire uint64) {
	for _, cb := range f.cbs {
		if cb != nil {
			cb.Destroy()
		}
	}
	for _, fb := range f.framebuffers {
		fb.Destroy()
	}
	for _, entry := range f.leased {
		e.pool.release(entry, retire)
	}
}

// abort drops a frame that was never submitted.
func (e *Executor) abort(f *frameState) { e.finish(f, 0) }

// swapHistory exchanges current and previous for every history texture
// the frame used.
func (e *Executor) swapHistory(p *Plan) {
	for i := range p.resources {
		r := &p.resources[i]
		if r.lifetime != History || p.lifetimes[i].first < 0 {
			continue
		}
		if pair, ok := e.history[r.name]; ok {
			pair.current, pair.previous = pair.previous, pair.current
		}
	}
}

// retireFences destroys fences of completed frames, keeping the newest.
func (e *Executor) retireFences() {
	if len(e.fences) <= 1 {
		return
	}
	keep := e.fences[:0]
	last := len(e.fences) - 1
	for i, fence := range e.fences {
		if i != last && fence.Completed() {
			fence.Destroy()
			continue
		}
		keep = append(keep, fence)
	}
	clear(e.fences[len(keep):])
	e.fences = keep
}

// Frame returns the number of frames submitted.
func (e *Executor) Frame() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.frame
}

// PoolStats reports the transient pool.
func (e *Executor) PoolStats() PoolStats { return e.pool.stats() }

// ScheduleCacheStats reports plan cache effectiveness.
func (e *Executor) ScheduleCacheStats() cache.Stats { return e.plans.Stats() }

// Close destroys pooled, history and cached objects. Work already
// submitted completes; the device defers the releases.
func (e *Executor) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}
	e.closed = true
	e.pool.close()
	for name, pair := range e.history {
		pair.destroy()
		delete(e.history, name)
	}
	e.passes.Clear()
	e.plans.Clear()
	for _, fence := range e.fences {
		fence.Destroy()
	}
	e.fences = nil
}
