package gfx

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gogpu/gputypes"
)

func TestQueueSubmitArmsFence(t *testing.T) {
	dev := newTestDevice(t)
	tg := newTarget(t, dev)
	fence := dev.CreateFence("frame")

	if !fence.Completed() || fence.Value() != 0 {
		t.Fatal("an unarmed fence should be complete with value 0")
	}

	cb := recordTriangle(t, dev, tg)
	if err := dev.Queue().Submit([]*CommandBuffer{cb}, fence); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if fence.Value() == 0 || fence.Value() != cb.Submission() {
		t.Errorf("fence value %d, command buffer submission %d", fence.Value(), cb.Submission())
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := fence.Wait(ctx); err != nil {
		t.Errorf("Wait: %v", err)
	}
}

func TestQueueSubmitEmptyBatch(t *testing.T) {
	dev := newTestDevice(t)
	fence := dev.CreateFence("")
	if err := dev.Queue().Submit(nil, fence); err != nil {
		t.Fatalf("Submit(nil): %v", err)
	}
	if fence.Value() == 0 {
		t.Error("empty batch should still arm the fence")
	}
}

func TestQueueSubmitIsAllOrNothing(t *testing.T) {
	if DebugAssertions {
		t.Skip("misuse panics in debug builds")
	}
	dev := newTestDevice(t)
	tg := newTarget(t, dev)

	good := recordTriangle(t, dev, tg)
	notEnded := dev.CreateCommandBuffer(CommandBufferInfo{Label: "open"})
	if err := notEnded.Begin(); err != nil {
		t.Fatal(err)
	}

	before := dev.Queue().TotalStats()
	err := dev.Queue().Submit([]*CommandBuffer{good, notEnded}, nil)
	var me *MisuseError
	if !errors.As(err, &me) {
		t.Fatalf("err = %v, want *MisuseError", err)
	}
	if good.State() != CommandBufferExecutable {
		t.Errorf("valid buffer state = %s after a rejected batch, want Executable", good.State())
	}
	if after := dev.Queue().TotalStats(); after != before {
		t.Errorf("rejected batch changed stats: %+v -> %+v", before, after)
	}

	if err := dev.Queue().Submit([]*CommandBuffer{good, good}, nil); !errors.Is(err, ErrMisuse) {
		t.Errorf("duplicate buffer in batch: %v", err)
	}
}

func TestQueueRejectsDestroyedReferences(t *testing.T) {
	if DebugAssertions {
		t.Skip("misuse panics in debug builds")
	}
	dev := newTestDevice(t)
	tg := newTarget(t, dev)
	cb := recordTriangle(t, dev, tg)

	tg.vertices.Destroy()
	err := dev.Queue().Submit([]*CommandBuffer{cb}, nil)
	if !errors.Is(err, ErrNotReady) {
		t.Errorf("Submit with destroyed vertex buffer = %v, want ErrNotReady", err)
	}
}

func TestQueueFrameStats(t *testing.T) {
	dev := newTestDevice(t)
	tg := newTarget(t, dev)
	q := dev.Queue()

	q.BeginFrame()
	for range 2 {
		if err := q.Submit([]*CommandBuffer{recordTriangle(t, dev, tg)}, nil); err != nil {
			t.Fatal(err)
		}
	}
	got := q.FrameStats()
	want := FrameStats{Frame: 1, Submissions: 2, CommandBuffers: 2, DrawCalls: 2, Triangles: 2}
	if got != want {
		t.Errorf("FrameStats() = %+v, want %+v", got, want)
	}

	q.BeginFrame()
	if got := q.FrameStats(); got != (FrameStats{Frame: 2}) {
		t.Errorf("FrameStats() after BeginFrame = %+v", got)
	}
	if total := q.TotalStats(); total.DrawCalls != 2 || total.Frame != 2 {
		t.Errorf("TotalStats() = %+v", total)
	}
}

func TestDeferredDestruction(t *testing.T) {
	dev, sq := newStallDevice(t)
	tg := newTarget(t, dev)
	fence := dev.CreateFence("")
	cb := recordTriangle(t, dev, tg)

	if err := dev.Queue().Submit([]*CommandBuffer{cb}, fence); err != nil {
		t.Fatal(err)
	}
	if fence.Completed() {
		t.Fatal("fence completed before the queue did")
	}
	if err := cb.Reset(); !errors.Is(err, ErrInFlight) {
		t.Errorf("Reset while in flight = %v, want ErrInFlight", err)
	}

	tg.vertices.Destroy()
	if tg.vertices.Status() != StatusUnready {
		t.Error("destroyed buffer should be UNREADY at once")
	}
	dev.mu.Lock()
	pending := len(dev.deferred)
	dev.mu.Unlock()
	if pending != 1 {
		t.Fatalf("deferred releases = %d, want 1", pending)
	}
	if tg.vertices.raw == nil {
		t.Error("backend buffer released while still referenced by the GPU")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := fence.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait on stalled queue = %v, want DeadlineExceeded", err)
	}

	sq.complete()
	if err := fence.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	dev.mu.Lock()
	pending = len(dev.deferred)
	dev.mu.Unlock()
	if pending != 0 || tg.vertices.raw != nil {
		t.Errorf("deferred release did not run: pending %d", pending)
	}
	if err := cb.Reset(); err != nil {
		t.Errorf("Reset after completion: %v", err)
	}
}

func TestConcurrentResourceCreation(t *testing.T) {
	dev := newTestDevice(t)
	done := make(chan *Buffer, 64)
	for i := range 64 {
		go func() {
			done <- dev.CreateBuffer(BufferInfo{Size: uint64(16 + i), Usage: gputypes.BufferUsageUniform})
		}()
	}
	for range 64 {
		if b := <-done; b.Status() != StatusSuccess {
			t.Errorf("buffer: %v", b.Err())
		}
	}
	if got := dev.ResourceCount(); got != 64 {
		t.Errorf("ResourceCount() = %d, want 64", got)
	}
}
