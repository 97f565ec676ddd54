package gfx

import (
	"context"
	"sync/atomic"
	"time"
)

// Fence backoff bounds for Wait.
const (
	fenceMinBackoff = 50 * time.Microsecond
	fenceMaxBackoff = 5 * time.Millisecond
)

// Fence tracks completion of one submission. Queue.Submit arms it with the
// submission index; it completes when the queue reports that index done.
// A fence that was never armed counts as complete.
type Fence struct {
	lifecycle
	dev   *Device
	value atomic.Uint64
}

// NewFence returns an uninitialized fence tracked by d.
func (d *Device) NewFence() *Fence {
	f := &Fence{dev: d}
	d.track(f)
	return f
}

// CreateFence creates and initializes a fence.
func (d *Device) CreateFence(label string) *Fence {
	f := d.NewFence()
	_ = f.Initialize(label)
	return f
}

// Initialize readies the fence. Fences need no backend object: completion
// is read from the queue's submission index.
func (f *Fence) Initialize(label string) error {
	if err := f.begin("Fence.Initialize", label); err != nil {
		return err
	}
	return f.dev.initialize(f, func() error { return nil })
}

// Destroy releases the fence. Safe to call more than once.
func (f *Fence) Destroy() { f.dev.destroy(f) }

func (f *Fence) arm(index uint64) { f.value.Store(index) }

// Value returns the submission index the fence waits for, 0 if unarmed.
func (f *Fence) Value() uint64 { return f.value.Load() }

// Completed reports whether the armed submission has finished. It never
// blocks.
func (f *Fence) Completed() bool {
	v := f.value.Load()
	return v == 0 || f.dev.queue.Completed() >= v
}

// Wait blocks until the fence completes or ctx is done. On completion it
// runs Device.Maintain so deferred releases happen promptly.
func (f *Fence) Wait(ctx context.Context) error {
	backoff := fenceMinBackoff
	for !f.Completed() {
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		backoff = min(backoff*2, fenceMaxBackoff)
	}
	f.dev.Maintain()
	return nil
}

func (f *Fence) kind() string { return "Fence" }

func (f *Fence) release() {}
