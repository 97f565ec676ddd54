package gfx

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// BufferInfo describes a GPU buffer.
type BufferInfo struct {
	Label string
	Size  uint64
	Usage gputypes.BufferUsage
}

// Buffer is a linear block of GPU memory.
type Buffer struct {
	lifecycle
	dev  *Device
	info BufferInfo
	raw  hal.Buffer
}

// NewBuffer returns an uninitialized buffer tracked by d.
func (d *Device) NewBuffer() *Buffer {
	b := &Buffer{dev: d}
	d.track(b)
	return b
}

// CreateBuffer creates and initializes a buffer. On failure the returned
// buffer is in StatusFailed and Err reports why.
func (d *Device) CreateBuffer(info BufferInfo) *Buffer {
	b := d.NewBuffer()
	_ = b.Initialize(info)
	return b
}

// Initialize allocates the backend buffer.
func (b *Buffer) Initialize(info BufferInfo) error {
	if err := b.begin("Buffer.Initialize", info.Label); err != nil {
		return err
	}
	b.info = info
	return b.dev.initialize(b, func() error {
		maxSize := b.dev.caps.MaxBufferSize
		if info.Size == 0 || info.Size > maxSize {
			return fmt.Errorf("%w: size %d not in (0, %d]", ErrUnsupported, info.Size, maxSize)
		}
		raw, err := b.dev.halDevice().CreateBuffer(&hal.BufferDescriptor{
			Label: info.Label,
			Size:  info.Size,
			Usage: info.Usage,
		})
		if err != nil {
			return err
		}
		b.raw = raw
		return nil
	})
}

// Destroy releases the buffer. Safe to call more than once.
func (b *Buffer) Destroy() { b.dev.destroy(b) }

// Size returns the buffer size in bytes.
func (b *Buffer) Size() uint64 { return b.info.Size }

// Usage returns the buffer usage flags.
func (b *Buffer) Usage() gputypes.BufferUsage { return b.info.Usage }

// Raw returns the backend buffer, or nil when the buffer is not ready.
func (b *Buffer) Raw() hal.Buffer {
	if !b.ready() {
		return nil
	}
	return b.raw
}

func (b *Buffer) kind() string { return "Buffer" }

func (b *Buffer) release() {
	if b.raw != nil {
		b.dev.halDevice().DestroyBuffer(b.raw)
		b.raw = nil
	}
}
