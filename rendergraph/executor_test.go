// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rendergraph

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gfx"
)

func newDevice(t *testing.T) *gfx.Device {
	t.Helper()
	dev, err := gfx.NewDevice(gfx.WithBackends(gfx.BackendEmpty))
	if err != nil {
		t.Fatalf("NewDevice: %v", err)
	}
	t.Cleanup(dev.Destroy)
	return dev
}

func newExecutor(t *testing.T, dev *gfx.Device, opts ...ExecutorOption) *Executor {
	t.Helper()
	e := NewExecutor(dev, opts...)
	t.Cleanup(e.Close)
	return e
}

func backbuffer(t *testing.T, dev *gfx.Device) *gfx.Texture {
	t.Helper()
	tex := dev.CreateTexture(gfx.TextureInfo{
		Label:  "backbuffer",
		Width:  colorDesc.Width,
		Height: colorDesc.Height,
		Format: colorDesc.Format,
		Usage:  gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageTextureBinding,
	})
	if err := tex.Err(); err != nil {
		t.Fatalf("backbuffer: %v", err)
	}
	return tex
}

// clearTargets records a render pass that clears every attachment.
func clearTargets(pc *PassContext, ids ...ResourceID) error {
	info := gfx.RenderPassInfo{Label: pc.Name()}
	cv := gfx.ClearValues{}
	for _, id := range ids {
		info.ColorAttachments = append(info.ColorAttachments, gfx.ColorAttachment{
			Format:  pc.Texture(id).Format(),
			LoadOp:  gputypes.LoadOpClear,
			StoreOp: gputypes.StoreOpStore,
		})
		cv.Colors = append(cv.Colors, gputypes.Color{A: 1})
	}
	fb, err := pc.Framebuffer(info, ids...)
	if err != nil {
		return err
	}
	cb := pc.CommandBuffer()
	if err := cb.BeginRenderPass(fb, cv); err != nil {
		return err
	}
	return cb.EndRenderPass()
}

// deferredFrame declares a two-pass frame with one culled pass.
func deferredFrame(target *gfx.Texture, ran *atomic.Int32) *Graph {
	g := New()
	out := g.ImportTexture("backbuffer", colorDesc, Present)
	hdr := g.CreateTexture("hdr", colorDesc)
	dbg := g.CreateTexture("debug", colorDesc)

	g.AddPass("scene", func(b *PassBuilder) {
		b.Write(hdr).Execute(func(pc *PassContext) error {
			ran.Add(1)
			return clearTargets(pc, hdr)
		})
	})
	g.AddPass("debug", func(b *PassBuilder) {
		b.Read(hdr).Write(dbg).Execute(func(*PassContext) error {
			return errors.New("culled pass ran")
		})
	})
	g.AddPass("tonemap", func(b *PassBuilder) {
		b.Read(hdr).Write(out).Execute(func(pc *PassContext) error {
			ran.Add(1)
			if pc.Texture(hdr) == nil || pc.Texture(dbg) != nil {
				return errors.New("texture resolution ignores declarations")
			}
			return clearTargets(pc, out)
		})
	})
	g.BindTexture(out, target)
	return g
}

func TestExecutorRunsFrame(t *testing.T) {
	dev := newDevice(t)
	e := newExecutor(t, dev)
	target := backbuffer(t, dev)

	var ran atomic.Int32
	res, err := e.Execute(context.Background(), deferredFrame(target, &ran))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if ran.Load() != 2 {
		t.Errorf("%d passes ran, want 2", ran.Load())
	}
	if res.Frame != 1 || res.Passes != 2 || res.Culled != 1 || res.CommandBuffers != 2 {
		t.Errorf("FrameResult = %+v", res)
	}
	if res.PlanCached {
		t.Error("first frame reported a cached plan")
	}
	if err := res.Fence.Wait(context.Background()); err != nil {
		t.Errorf("Fence.Wait: %v", err)
	}
	if stats := dev.Queue().FrameStats(); stats.Submissions != 1 || stats.CommandBuffers != 2 {
		t.Errorf("queue FrameStats = %+v, want one submission of two buffers", stats)
	}
}

func TestExecutorReusesPlanAndPool(t *testing.T) {
	dev := newDevice(t)
	e := newExecutor(t, dev)
	target := backbuffer(t, dev)

	var ran atomic.Int32
	for frame := range 3 {
		res, err := e.Execute(context.Background(), deferredFrame(target, &ran))
		if err != nil {
			t.Fatalf("frame %d: %v", frame, err)
		}
		if frame > 0 && !res.PlanCached {
			t.Errorf("frame %d recompiled an unchanged topology", frame)
		}
	}
	if cs := e.ScheduleCacheStats(); cs.Misses != 1 || cs.Hits != 2 {
		t.Errorf("schedule cache = %+v, want 1 miss and 2 hits", cs)
	}
	ps := e.PoolStats()
	if ps.Created != 1 || ps.Reused != 2 || ps.InUse != 0 {
		t.Errorf("PoolStats = %+v, want one slot created then reused", ps)
	}
}

func TestExecutorUnboundImport(t *testing.T) {
	dev := newDevice(t)
	e := newExecutor(t, dev)

	g := New()
	out := g.ImportTexture("backbuffer", colorDesc, Present)
	g.AddPass("blit", func(b *PassBuilder) { b.Write(out) })

	if _, err := e.Execute(context.Background(), g); !errors.Is(err, ErrUnbound) {
		t.Fatalf("err = %v, want ErrUnbound", err)
	}

	destroyed := backbuffer(t, dev)
	destroyed.Destroy()
	g.BindTexture(out, destroyed)
	if _, err := e.Execute(context.Background(), g); !errors.Is(err, gfx.ErrNotReady) {
		t.Errorf("destroyed import: err = %v, want ErrNotReady", err)
	}
}

func TestExecutorPassErrorAbortsFrame(t *testing.T) {
	dev := newDevice(t)
	e := newExecutor(t, dev)
	boom := errors.New("boom")

	g := New()
	a := g.ImportBuffer("a", BufferDesc{Size: 64}, Persist)
	b := g.ImportBuffer("b", BufferDesc{Size: 64}, Persist)
	g.AddPass("ok", func(pb *PassBuilder) { pb.Write(a) })
	g.AddPass("fails", func(pb *PassBuilder) {
		pb.Write(b).Execute(func(*PassContext) error { return boom })
	})
	for _, id := range []ResourceID{a, b} {
		g.BindBuffer(id, dev.CreateBuffer(gfx.BufferInfo{Size: 64, Usage: gputypes.BufferUsageStorage}))
	}

	before := dev.Queue().TotalStats()
	_, err := e.Execute(context.Background(), g)
	var pe *PassError
	if !errors.As(err, &pe) || pe.Pass != "fails" || !errors.Is(err, boom) {
		t.Fatalf("err = %v, want PassError for \"fails\" wrapping boom", err)
	}
	if after := dev.Queue().TotalStats(); after.Submissions != before.Submissions {
		t.Error("failed frame was submitted")
	}
	if e.Frame() != 0 {
		t.Errorf("Frame() = %d after an aborted frame", e.Frame())
	}
}

func TestExecutorParallelLevel(t *testing.T) {
	for _, parallel := range []bool{false, true} {
		dev := newDevice(t)
		e := newExecutor(t, dev, WithParallel(parallel), WithWorkers(4))

		const n = 16
		var ran atomic.Int32
		g := New()
		for i := range n {
			id := g.CreateBuffer(string(rune('a'+i)), BufferDesc{Size: 256, Usage: gputypes.BufferUsageStorage})
			g.AddPass(string(rune('A'+i)), func(b *PassBuilder) {
				b.Write(id).SideEffect().Execute(func(pc *PassContext) error {
					if pc.Buffer(id) == nil {
						return errors.New("buffer not resolved")
					}
					ran.Add(1)
					return nil
				})
			})
		}

		res, err := e.Execute(context.Background(), g)
		if err != nil {
			t.Fatalf("parallel=%v: %v", parallel, err)
		}
		if ran.Load() != n || res.CommandBuffers != n {
			t.Errorf("parallel=%v: ran %d passes into %d command buffers, want %d", parallel, ran.Load(), res.CommandBuffers, n)
		}
		if len(res.Plan.Levels()) != 1 {
			t.Errorf("parallel=%v: %d levels, want 1", parallel, len(res.Plan.Levels()))
		}
	}
}

func TestExecutorHistory(t *testing.T) {
	dev := newDevice(t)
	e := newExecutor(t, dev)

	var written, previous []*gfx.Texture
	frame := func() *Graph {
		g := New()
		accum := g.CreateHistoryTexture("accum", colorDesc)
		g.AddPass("taa", func(b *PassBuilder) {
			b.ReadHistory(accum).Write(accum).Execute(func(pc *PassContext) error {
				written = append(written, pc.Texture(accum))
				previous = append(previous, pc.History(accum))
				return clearTargets(pc, accum)
			})
		})
		return g
	}

	for i := range 3 {
		if _, err := e.Execute(context.Background(), frame()); err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
	}
	for i := 1; i < 3; i++ {
		if previous[i] != written[i-1] {
			t.Errorf("frame %d: history does not see the previous frame's image", i)
		}
		if written[i] == written[i-1] {
			t.Errorf("frame %d: wrote the image it reads as history", i)
		}
	}
	if ps := e.PoolStats(); ps.Objects != 0 {
		t.Errorf("history texture entered the transient pool: %+v", ps)
	}
}

func TestExecutorCanceledContext(t *testing.T) {
	dev := newDevice(t)
	e := newExecutor(t, dev)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := e.Execute(ctx, New()); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestExecutorClose(t *testing.T) {
	dev := newDevice(t)
	e := NewExecutor(dev)
	target := backbuffer(t, dev)

	var ran atomic.Int32
	if _, err := e.Execute(context.Background(), deferredFrame(target, &ran)); err != nil {
		t.Fatal(err)
	}
	before := dev.ResourceCount()
	e.Close()
	e.Close()
	if after := dev.ResourceCount(); after >= before {
		t.Errorf("ResourceCount %d -> %d, want pooled objects destroyed", before, after)
	}
	if target.Status() != gfx.StatusSuccess {
		t.Error("Close destroyed an imported texture")
	}
	if _, err := e.Execute(context.Background(), New()); !errors.Is(err, ErrExecutorClosed) {
		t.Errorf("Execute after Close = %v", err)
	}
}

func TestPoolBudgetEvictsFreeEntries(t *testing.T) {
	dev := newDevice(t)
	p := newTransientPool(dev, MinTransientBudget)
	defer p.close()

	// 2048x2048 RGBA8 is exactly the 16 MB minimum budget.
	big := poolKey{kind: KindTexture, tex: TextureDesc{
		Width: 2048, Height: 2048, Format: gputypes.TextureFormatRGBA8Unorm, SampleCount: 1,
		Usage: gputypes.TextureUsageRenderAttachment,
	}}
	first, err := p.acquire(big, "first")
	if err != nil {
		t.Fatal(err)
	}
	p.release(first, 0)

	other := big
	other.tex.Format = gputypes.TextureFormatBGRA8Unorm
	second, err := p.acquire(other, "second")
	if err != nil {
		t.Fatal(err)
	}
	if first.tex.Status() != gfx.StatusUnready {
		t.Error("free entry over budget was not evicted")
	}
	stats := p.stats()
	if stats.Evictions != 1 || stats.Objects != 1 || stats.InUse != 1 {
		t.Errorf("stats = %+v", stats)
	}
	p.release(second, 0)
}

func TestExecutorRejectsDeclarationErrorsWithCachedPlan(t *testing.T) {
	tests := []struct {
		name    string
		corrupt func(g *Graph, target *gfx.Texture)
	}{
		{"bind transient texture", func(g *Graph, target *gfx.Texture) {
			hdr, _ := g.Lookup("hdr")
			g.BindTexture(hdr, target)
		}},
		{"bind buffer to texture", func(g *Graph, _ *gfx.Texture) {
			out, _ := g.Lookup("backbuffer")
			g.BindBuffer(out, nil)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := newDevice(t)
			e := newExecutor(t, dev)
			target := backbuffer(t, dev)

			var ran atomic.Int32
			if _, err := e.Execute(context.Background(), deferredFrame(target, &ran)); err != nil {
				t.Fatalf("valid frame: %v", err)
			}

			bad := deferredFrame(target, &ran)
			tt.corrupt(bad, target)
			ran.Store(0)
			res, err := e.Execute(context.Background(), bad)
			if !errors.Is(err, ErrInvalidGraph) {
				t.Fatalf("Execute = %v, want ErrInvalidGraph", err)
			}
			if res != nil || ran.Load() != 0 {
				t.Errorf("invalid frame ran %d passes", ran.Load())
			}
			if e.Frame() != 1 {
				t.Errorf("Frame() = %d, want 1", e.Frame())
			}
		})
	}
}

// stallQueue completes submissions only when the test says so.
type stallQueue struct {
	hal.Queue
	submitted atomic.Uint64
	completed atomic.Uint64
}

func (q *stallQueue) Submit([]hal.CommandBuffer) (uint64, error) { return q.submitted.Add(1), nil }

func (q *stallQueue) PollCompleted() uint64 { return q.completed.Load() }

func (q *stallQueue) complete() { q.completed.Store(q.submitted.Load()) }

// stallBackend is the empty backend with a manually completed queue.
type stallBackend struct{ queue *stallQueue }

func (stallBackend) Name() string { return "stall" }

func (b stallBackend) Open(cfg gfx.BackendConfig) (*gfx.Connection, error) {
	conn, err := gfx.EmptyBackend().Open(cfg)
	if err != nil {
		return nil, err
	}
	b.queue.Queue = conn.Queue
	conn.Queue = b.queue
	return conn, nil
}

func TestPoolWaitsForFrameCompletion(t *testing.T) {
	q := &stallQueue{}
	dev, err := gfx.NewDevice(gfx.WithBackend(stallBackend{queue: q}), gfx.WithBackends())
	if err != nil {
		t.Fatalf("NewDevice: %v", err)
	}
	t.Cleanup(dev.Destroy)
	e := newExecutor(t, dev)
	target := backbuffer(t, dev)

	var ran atomic.Int32
	for frame := range 2 {
		res, err := e.Execute(context.Background(), deferredFrame(target, &ran))
		if err != nil {
			t.Fatalf("frame %d: %v", frame, err)
		}
		if res.Fence.Completed() {
			t.Fatalf("frame %d: fence completed on a stalled queue", frame)
		}
	}
	if ps := e.PoolStats(); ps.Created != 2 || ps.Reused != 0 {
		t.Fatalf("PoolStats = %+v, want a second object while the first frame is in flight", ps)
	}

	q.complete()
	if _, err := e.Execute(context.Background(), deferredFrame(target, &ran)); err != nil {
		t.Fatalf("frame after completion: %v", err)
	}
	if ps := e.PoolStats(); ps.Created != 2 || ps.Reused != 1 {
		t.Errorf("PoolStats = %+v, want a completed object reused", ps)
	}
}

func TestExecutorReplacesDestroyedRenderPass(t *testing.T) {
	dev := newDevice(t)
	e := newExecutor(t, dev)
	info := gfx.RenderPassInfo{
		Label: "clear",
		ColorAttachments: []gfx.ColorAttachment{{
			Format:  colorDesc.Format,
			LoadOp:  gputypes.LoadOpClear,
			StoreOp: gputypes.StoreOpStore,
		}},
	}

	first, err := e.renderPass(info)
	if err != nil {
		t.Fatalf("renderPass: %v", err)
	}
	if again, _ := e.renderPass(info); again != first {
		t.Fatal("same layout built a second render pass")
	}

	first.Destroy()
	second, err := e.renderPass(info)
	if err != nil {
		t.Fatalf("renderPass after Destroy: %v", err)
	}
	if second == first || second.Status() != gfx.StatusSuccess {
		t.Errorf("destroyed render pass was not replaced: status %s", second.Status())
	}
	if n := e.passes.Len(); n != 1 {
		t.Errorf("render pass cache holds %d entries, want 1", n)
	}
}
