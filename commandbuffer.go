package gfx

import (
	"fmt"
	"sync/atomic"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// CommandBufferState is the recording state of a command buffer.
type CommandBufferState uint32

const (
	// CommandBufferInitial is the state after Initialize and Reset.
	CommandBufferInitial CommandBufferState = iota

	// CommandBufferRecording is the state between Begin and End.
	CommandBufferRecording

	// CommandBufferExecutable means End succeeded and the buffer can be
	// submitted once.
	CommandBufferExecutable

	// CommandBufferPending means the buffer was submitted. Reset returns
	// it to Initial after the submission completes.
	CommandBufferPending
)

// String returns the state name.
func (s CommandBufferState) String() string {
	switch s {
	case CommandBufferInitial:
		return "Initial"
	case CommandBufferRecording:
		return "Recording"
	case CommandBufferExecutable:
		return "Executable"
	case CommandBufferPending:
		return "Pending"
	default:
		return fmt.Sprintf("CommandBufferState(%d)", uint32(s))
	}
}

// CommandBufferInfo describes a command buffer.
type CommandBufferInfo struct {
	Label string
}

// CommandBuffer records GPU commands for one submission.
//
// Commands are validated as they are recorded and kept in a list; End
// replays the list into a backend encoder. A CommandBuffer is not safe for
// concurrent use. Record different passes on different command buffers.
type CommandBuffer struct {
	lifecycle
	dev   *Device
	state atomic.Uint32

	cmds []command
	refs map[resource]struct{}

	fb         *Framebuffer
	pipeline   *PipelineState
	indexBound bool

	drawCalls uint64
	triangles uint64

	enc        hal.CommandEncoder
	raw        hal.CommandBuffer
	submission uint64
}

// NewCommandBuffer returns an uninitialized command buffer tracked by d.
func (d *Device) NewCommandBuffer() *CommandBuffer {
	cb := &CommandBuffer{dev: d}
	d.track(cb)
	return cb
}

// CreateCommandBuffer creates and initializes a command buffer.
func (d *Device) CreateCommandBuffer(info CommandBufferInfo) *CommandBuffer {
	cb := d.NewCommandBuffer()
	_ = cb.Initialize(info)
	return cb
}

// Initialize prepares the command buffer for recording. No backend object
// exists until End.
func (cb *CommandBuffer) Initialize(info CommandBufferInfo) error {
	if err := cb.begin("CommandBuffer.Initialize", info.Label); err != nil {
		return err
	}
	return cb.dev.initialize(cb, func() error {
		cb.refs = make(map[resource]struct{})
		return nil
	})
}

// Destroy releases the command buffer. If it is pending, the backend
// buffer is freed after the submission completes.
func (cb *CommandBuffer) Destroy() { cb.dev.destroy(cb) }

// State returns the recording state.
func (cb *CommandBuffer) State() CommandBufferState {
	return CommandBufferState(cb.state.Load())
}

// DrawCalls returns the number of draws recorded since Begin.
func (cb *CommandBuffer) DrawCalls() uint64 { return cb.drawCalls }

// Triangles returns the number of triangles recorded since Begin.
func (cb *CommandBuffer) Triangles() uint64 { return cb.triangles }

// Submission returns the queue submission index, or 0 if never submitted.
func (cb *CommandBuffer) Submission() uint64 { return cb.submission }

func (cb *CommandBuffer) expect(op string, want CommandBufferState) error {
	if !cb.ready() {
		return misuse(op, ErrNotReady, "command buffer %q is %s", cb.label, cb.Status())
	}
	if got := cb.State(); got != want {
		return misuse(op, nil, "command buffer is %s, want %s", got, want)
	}
	return nil
}

func (cb *CommandBuffer) inPass(op string) error {
	if err := cb.expect(op, CommandBufferRecording); err != nil {
		return err
	}
	if cb.fb == nil {
		return misuse(op, nil, "not inside a render pass")
	}
	return nil
}

func (cb *CommandBuffer) outsidePass(op string) error {
	if err := cb.expect(op, CommandBufferRecording); err != nil {
		return err
	}
	if cb.fb != nil {
		return misuse(op, nil, "not allowed inside a render pass")
	}
	return nil
}

// bind checks that r can be referenced and records the reference.
func (cb *CommandBuffer) bind(op string, r resource) error {
	if r == nil || r.Status() != StatusSuccess {
		status := StatusUnready
		if r != nil {
			status = r.Status()
		}
		return misuse(op, ErrNotReady, "resource is %s", status)
	}
	cb.refs[r] = struct{}{}
	return nil
}

// Begin starts recording. The buffer must be in the Initial state.
func (cb *CommandBuffer) Begin() error {
	if err := cb.expect("CommandBuffer.Begin", CommandBufferInitial); err != nil {
		return err
	}
	cb.cmds = cb.cmds[:0]
	clear(cb.refs)
	cb.drawCalls, cb.triangles = 0, 0
	cb.state.Store(uint32(CommandBufferRecording))
	return nil
}

// BeginRenderPass starts a render pass on fb.
func (cb *CommandBuffer) BeginRenderPass(fb *Framebuffer, cv ClearValues) error {
	const op = "CommandBuffer.BeginRenderPass"
	if err := cb.outsidePass(op); err != nil {
		return err
	}
	if fb == nil {
		return misuse(op, ErrNotReady, "nil framebuffer")
	}
	if err := cb.bind(op, fb); err != nil {
		return err
	}
	if err := cb.bind(op, fb.renderPass); err != nil {
		return err
	}
	for _, tex := range fb.textures {
		if err := cb.bind(op, tex); err != nil {
			return err
		}
	}

	cv.Colors = append([]gputypes.Color(nil), cv.Colors...)
	cb.cmds = append(cb.cmds, &cmdBeginPass{fb: fb, clear: cv, label: fb.label})
	cb.fb = fb
	cb.pipeline = nil
	cb.indexBound = false
	return nil
}

// BindPipelineState binds ps for subsequent draws. The pipeline's render
// pass must be compatible with the current framebuffer.
func (cb *CommandBuffer) BindPipelineState(ps *PipelineState) error {
	const op = "CommandBuffer.BindPipelineState"
	if err := cb.inPass(op); err != nil {
		return err
	}
	if ps == nil {
		return misuse(op, ErrNotReady, "nil pipeline state")
	}
	if err := cb.bind(op, ps); err != nil {
		return err
	}
	if !ps.Compatible(cb.fb) {
		return misuse(op, ErrIncompatible, "pipeline %q built for render pass %#x, framebuffer uses %#x",
			ps.label, ps.rpHash, cb.fb.renderPass.hash)
	}
	cb.cmds = append(cb.cmds, cmdSetPipeline{ps: ps})
	cb.pipeline = ps
	return nil
}

// BindVertexBuffer binds buf to a vertex buffer slot.
func (cb *CommandBuffer) BindVertexBuffer(slot uint32, buf *Buffer, offset uint64) error {
	const op = "CommandBuffer.BindVertexBuffer"
	if err := cb.inPass(op); err != nil {
		return err
	}
	if slot >= cb.dev.caps.MaxVertexBuffers {
		return misuse(op, nil, "slot %d exceeds max %d", slot, cb.dev.caps.MaxVertexBuffers)
	}
	if buf == nil {
		return misuse(op, ErrNotReady, "nil buffer")
	}
	if err := cb.bind(op, buf); err != nil {
		return err
	}
	if buf.info.Usage&gputypes.BufferUsageVertex == 0 {
		return misuse(op, nil, "buffer %q lacks vertex usage", buf.label)
	}
	if offset > buf.info.Size {
		return misuse(op, nil, "offset %d beyond buffer size %d", offset, buf.info.Size)
	}
	cb.cmds = append(cb.cmds, cmdVertexBuffer{slot: slot, buf: buf, offset: offset})
	return nil
}

// BindIndexBuffer binds buf as the index buffer.
func (cb *CommandBuffer) BindIndexBuffer(buf *Buffer, format gputypes.IndexFormat, offset uint64) error {
	const op = "CommandBuffer.BindIndexBuffer"
	if err := cb.inPass(op); err != nil {
		return err
	}
	if buf == nil {
		return misuse(op, ErrNotReady, "nil buffer")
	}
	if err := cb.bind(op, buf); err != nil {
		return err
	}
	if buf.info.Usage&gputypes.BufferUsageIndex == 0 {
		return misuse(op, nil, "buffer %q lacks index usage", buf.label)
	}
	if format != gputypes.IndexFormatUint16 && format != gputypes.IndexFormatUint32 {
		return misuse(op, nil, "invalid index format %d", format)
	}
	if offset > buf.info.Size {
		return misuse(op, nil, "offset %d beyond buffer size %d", offset, buf.info.Size)
	}
	cb.cmds = append(cb.cmds, cmdIndexBuffer{buf: buf, format: format, offset: offset})
	cb.indexBound = true
	return nil
}

// SetViewport sets the viewport for subsequent draws.
func (cb *CommandBuffer) SetViewport(vp Viewport) error {
	if err := cb.inPass("CommandBuffer.SetViewport"); err != nil {
		return err
	}
	cb.cmds = append(cb.cmds, cmdViewport{vp: vp})
	return nil
}

// SetScissor sets the scissor rectangle for subsequent draws.
func (cb *CommandBuffer) SetScissor(r Rect) error {
	if err := cb.inPass("CommandBuffer.SetScissor"); err != nil {
		return err
	}
	cb.cmds = append(cb.cmds, cmdScissor{r: r})
	return nil
}

// Draw records a non-indexed draw.
func (cb *CommandBuffer) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) error {
	const op = "CommandBuffer.Draw"
	if err := cb.inPass(op); err != nil {
		return err
	}
	if cb.pipeline == nil {
		return misuse(op, nil, "no pipeline state bound")
	}
	cb.cmds = append(cb.cmds, cmdDraw{vertexCount, instanceCount, firstVertex, firstInstance})
	cb.drawCalls++
	cb.triangles += primitives(cb.pipeline.topology, vertexCount, instanceCount)
	return nil
}

// DrawIndexed records an indexed draw.
func (cb *CommandBuffer) DrawIndexed(indexCount, instanceCount, firstIndex uint32, baseVertex int32, firstInstance uint32) error {
	const op = "CommandBuffer.DrawIndexed"
	if err := cb.inPass(op); err != nil {
		return err
	}
	if cb.pipeline == nil {
		return misuse(op, nil, "no pipeline state bound")
	}
	if !cb.indexBound {
		return misuse(op, nil, "no index buffer bound")
	}
	cb.cmds = append(cb.cmds, cmdDrawIndexed{indexCount, instanceCount, firstIndex, baseVertex, firstInstance})
	cb.drawCalls++
	cb.triangles += primitives(cb.pipeline.topology, indexCount, instanceCount)
	return nil
}

// EndRenderPass ends the current render pass.
func (cb *CommandBuffer) EndRenderPass() error {
	if err := cb.inPass("CommandBuffer.EndRenderPass"); err != nil {
		return err
	}
	cb.cmds = append(cb.cmds, cmdEndPass{})
	cb.fb = nil
	cb.pipeline = nil
	cb.indexBound = false
	return nil
}

// TextureBarrier records a usage transition for tex.
func (cb *CommandBuffer) TextureBarrier(tex *Texture, from, to gputypes.TextureUsage) error {
	const op = "CommandBuffer.TextureBarrier"
	if err := cb.outsidePass(op); err != nil {
		return err
	}
	if tex == nil {
		return misuse(op, ErrNotReady, "nil texture")
	}
	if err := cb.bind(op, tex); err != nil {
		return err
	}
	cb.cmds = append(cb.cmds, cmdTextureBarrier{tex: tex, from: from, to: to})
	return nil
}

// BufferBarrier records a usage transition for buf.
func (cb *CommandBuffer) BufferBarrier(buf *Buffer, from, to gputypes.BufferUsage) error {
	const op = "CommandBuffer.BufferBarrier"
	if err := cb.outsidePass(op); err != nil {
		return err
	}
	if buf == nil {
		return misuse(op, ErrNotReady, "nil buffer")
	}
	if err := cb.bind(op, buf); err != nil {
		return err
	}
	cb.cmds = append(cb.cmds, cmdBufferBarrier{buf: buf, from: from, to: to})
	return nil
}

// CopyBuffer copies size bytes from src to dst.
func (cb *CommandBuffer) CopyBuffer(src *Buffer, srcOffset uint64, dst *Buffer, dstOffset, size uint64) error {
	const op = "CommandBuffer.CopyBuffer"
	if err := cb.outsidePass(op); err != nil {
		return err
	}
	if src == nil || dst == nil {
		return misuse(op, ErrNotReady, "nil buffer")
	}
	if err := cb.bind(op, src); err != nil {
		return err
	}
	if err := cb.bind(op, dst); err != nil {
		return err
	}
	switch {
	case src.info.Usage&gputypes.BufferUsageCopySrc == 0:
		return misuse(op, nil, "source %q lacks copy-src usage", src.label)
	case dst.info.Usage&gputypes.BufferUsageCopyDst == 0:
		return misuse(op, nil, "destination %q lacks copy-dst usage", dst.label)
	case srcOffset+size > src.info.Size || srcOffset+size < srcOffset:
		return misuse(op, nil, "source range [%d, +%d) exceeds size %d", srcOffset, size, src.info.Size)
	case dstOffset+size > dst.info.Size || dstOffset+size < dstOffset:
		return misuse(op, nil, "destination range [%d, +%d) exceeds size %d", dstOffset, size, dst.info.Size)
	case src == dst && srcOffset < dstOffset+size && dstOffset < srcOffset+size:
		return misuse(op, nil, "overlapping copy within one buffer")
	}
	cb.cmds = append(cb.cmds, cmdCopyBuffer{src: src, dst: dst, srcOff: srcOffset, dstOff: dstOffset, size: size})
	return nil
}

// End finishes recording and encodes the commands for the backend.
func (cb *CommandBuffer) End() error {
	const op = "CommandBuffer.End"
	if err := cb.outsidePass(op); err != nil {
		return err
	}
	for r := range cb.refs {
		if r.Status() != StatusSuccess {
			return misuse(op, ErrNotReady, "%s %q was destroyed during recording", r.kind(), r.Label())
		}
	}

	var enc hal.CommandEncoder
	err := cb.dev.withLock(func() error {
		var err error
		enc, err = cb.dev.halDevice().CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: cb.label})
		return err
	})
	if err != nil {
		return fmt.Errorf("gfx: command buffer %q: create encoder: %w", cb.label, err)
	}
	if err := enc.BeginEncoding(cb.label); err != nil {
		cb.discard(enc)
		return fmt.Errorf("gfx: command buffer %q: begin encoding: %w", cb.label, err)
	}

	e := &encoder{enc: enc}
	for _, c := range cb.cmds {
		c.encode(e)
	}
	raw, err := enc.EndEncoding()
	if err != nil {
		cb.discard(enc)
		return fmt.Errorf("gfx: command buffer %q: end encoding: %w", cb.label, err)
	}

	cb.enc, cb.raw = enc, raw
	cb.state.Store(uint32(CommandBufferExecutable))
	return nil
}

// discard drops an encoder whose encoding failed. The buffer stays in
// the Recording state so End can be retried or the buffer reset.
func (cb *CommandBuffer) discard(enc hal.CommandEncoder) {
	enc.DiscardEncoding()
	_ = cb.dev.withLock(func() error {
		enc.Destroy()
		return nil
	})
}

// Reset returns the buffer to the Initial state and frees its backend
// buffer. A pending buffer can only be reset after its submission
// completed; otherwise Reset returns ErrInFlight.
func (cb *CommandBuffer) Reset() error {
	if !cb.ready() {
		return misuse("CommandBuffer.Reset", ErrNotReady, "command buffer %q is %s", cb.label, cb.Status())
	}
	if cb.State() == CommandBufferPending && cb.submission > cb.dev.queue.Completed() {
		return fmt.Errorf("%w: command buffer %q, submission %d", ErrInFlight, cb.label, cb.submission)
	}

	if cb.raw != nil || cb.enc != nil {
		_ = cb.dev.withLock(func() error {
			cb.freeEncoding()
			return nil
		})
	}
	cb.cmds = cb.cmds[:0]
	clear(cb.refs)
	cb.fb, cb.pipeline, cb.indexBound = nil, nil, false
	cb.drawCalls, cb.triangles = 0, 0
	cb.state.Store(uint32(CommandBufferInitial))
	return nil
}

func (cb *CommandBuffer) kind() string { return "CommandBuffer" }

// freeEncoding frees the backend buffer and its encoder. Caller holds the
// device mutex.
func (cb *CommandBuffer) freeEncoding() {
	if cb.raw != nil {
		cb.dev.halDevice().FreeCommandBuffer(cb.raw)
		cb.raw = nil
	}
	if cb.enc != nil {
		cb.enc.Destroy()
		cb.enc = nil
	}
}

func (cb *CommandBuffer) release() {
	cb.freeEncoding()
	cb.cmds = nil
	cb.refs = nil
}
