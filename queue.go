package gfx

import (
	"fmt"
	"sync"

	"github.com/gogpu/wgpu/hal"
)

// FrameStats counts work submitted since the last BeginFrame.
type FrameStats struct {
	Frame          uint64
	Submissions    uint64
	CommandBuffers uint64
	DrawCalls      uint64
	Triangles      uint64
}

func (s *FrameStats) add(o FrameStats) {
	s.Submissions += o.Submissions
	s.CommandBuffers += o.CommandBuffers
	s.DrawCalls += o.DrawCalls
	s.Triangles += o.Triangles
}

// Queue submits command buffers to the device. Submission is serialized;
// it never waits for the GPU.
type Queue struct {
	mu  sync.Mutex
	dev *Device
	hal hal.Queue

	frame FrameStats
	total FrameStats
}

// Submit submits cmdBufs in order as one batch and arms fence, if given,
// with the batch's submission index.
//
// Every command buffer must be Executable and every resource it references
// must still be ready. Validation covers the whole batch before anything
// reaches the backend, so a failed Submit submits nothing.
func (q *Queue) Submit(cmdBufs []*CommandBuffer, fence *Fence) error {
	index, stats, err := q.submit(cmdBufs, fence)
	if err != nil {
		return err
	}
	Logger().Debug("gfx: submitted", "index", index, "commandBuffers", len(cmdBufs), "draws", stats.DrawCalls)
	q.dev.Maintain()
	return nil
}

// submit validates and submits under the queue mutex. Resource destruction
// retires under the same mutex, so a resource is either rejected here or
// sees the submission index when it is destroyed.
func (q *Queue) submit(cmdBufs []*CommandBuffer, fence *Fence) (uint64, FrameStats, error) {
	const op = "Queue.Submit"
	q.mu.Lock()
	defer q.mu.Unlock()

	var stats FrameStats
	seen := make(map[*CommandBuffer]struct{}, len(cmdBufs))
	for i, cb := range cmdBufs {
		if cb == nil || !cb.ready() {
			return 0, stats, misuse(op, ErrNotReady, "command buffer %d is not ready", i)
		}
		if _, dup := seen[cb]; dup {
			return 0, stats, misuse(op, nil, "command buffer %q appears twice in the batch", cb.label)
		}
		seen[cb] = struct{}{}
		if st := cb.State(); st != CommandBufferExecutable {
			return 0, stats, misuse(op, nil, "command buffer %q is %s, want %s", cb.label, st, CommandBufferExecutable)
		}
		for r := range cb.refs {
			if r.Status() != StatusSuccess {
				return 0, stats, misuse(op, ErrNotReady, "command buffer %q references %s %q in state %s",
					cb.label, r.kind(), r.Label(), r.Status())
			}
		}
	}
	if fence != nil && !fence.ready() {
		return 0, stats, misuse(op, ErrNotReady, "fence is %s", fence.Status())
	}

	raws := make([]hal.CommandBuffer, len(cmdBufs))
	for i, cb := range cmdBufs {
		raws[i] = cb.raw
		stats.CommandBuffers++
		stats.DrawCalls += cb.drawCalls
		stats.Triangles += cb.triangles
	}
	stats.Submissions = 1

	index, err := q.hal.Submit(raws)
	if err != nil {
		return 0, stats, fmt.Errorf("gfx: queue submit: %w", err)
	}
	q.frame.add(stats)
	q.total.add(stats)

	for _, cb := range cmdBufs {
		cb.submission = index
		cb.markSubmitted(index)
		for r := range cb.refs {
			r.life().markSubmitted(index)
		}
		cb.state.Store(uint32(CommandBufferPending))
	}
	if fence != nil {
		fence.arm(index)
	}
	return index, stats, nil
}

// retire moves lc out of SUCCESS and reports the last submission that
// referenced it together with the completed index. It reports ok=false
// when lc was not live.
func (q *Queue) retire(lc *lifecycle) (last, completed uint64, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !lc.retire() {
		return 0, 0, false
	}
	return lc.lastSubmit.Load(), q.hal.PollCompleted(), true
}

// Completed returns the highest submission index the GPU has finished.
func (q *Queue) Completed() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.hal.PollCompleted()
}

// BeginFrame starts a new frame: it clears the per-frame counters and
// releases resources whose deferred destruction is now safe.
func (q *Queue) BeginFrame() {
	q.mu.Lock()
	q.frame = FrameStats{Frame: q.frame.Frame + 1}
	q.total.Frame = q.frame.Frame
	q.mu.Unlock()
	q.dev.Maintain()
}

// FrameStats returns the counters of the current frame.
func (q *Queue) FrameStats() FrameStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.frame
}

// TotalStats returns counters accumulated since the queue was created.
func (q *Queue) TotalStats() FrameStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.total
}
