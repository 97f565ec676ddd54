package gfx

import (
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// Viewport is the rasterization rectangle and depth range.
type Viewport struct {
	X, Y, Width, Height float32
	MinDepth, MaxDepth  float32
}

// Rect is a scissor rectangle in pixels.
type Rect struct {
	X, Y, Width, Height uint32
}

// ClearValues holds the values used by Clear load ops. Missing colors
// clear to transparent black.
type ClearValues struct {
	Colors  []gputypes.Color
	Depth   float32
	Stencil uint32
}

// encoder is the replay target of recorded commands.
type encoder struct {
	enc  hal.CommandEncoder
	pass hal.RenderPassEncoder
}

// command is one recorded operation. Recording validates; encode only
// translates to backend calls.
type command interface {
	encode(e *encoder)
}

type cmdBeginPass struct {
	fb    *Framebuffer
	clear ClearValues
	label string
}

func (c *cmdBeginPass) encode(e *encoder) {
	rp := c.fb.renderPass.info
	desc := &hal.RenderPassDescriptor{Label: c.label}
	for i, view := range c.fb.colors {
		att := rp.ColorAttachments[i]
		var clear gputypes.Color
		if i < len(c.clear.Colors) {
			clear = c.clear.Colors[i]
		}
		desc.ColorAttachments = append(desc.ColorAttachments, hal.RenderPassColorAttachment{
			View:       view,
			LoadOp:     att.LoadOp,
			StoreOp:    att.StoreOp,
			ClearValue: clear,
		})
	}
	if ds := rp.DepthStencil; ds != nil && c.fb.depth != nil {
		desc.DepthStencilAttachment = &hal.RenderPassDepthStencilAttachment{
			View:              c.fb.depth,
			DepthLoadOp:       ds.DepthLoadOp,
			DepthStoreOp:      ds.DepthStoreOp,
			DepthClearValue:   c.clear.Depth,
			StencilLoadOp:     ds.StencilLoadOp,
			StencilStoreOp:    ds.StencilStoreOp,
			StencilClearValue: c.clear.Stencil,
		}
	}
	e.pass = e.enc.BeginRenderPass(desc)
}

type cmdEndPass struct{}

func (cmdEndPass) encode(e *encoder) {
	e.pass.End()
	e.pass = nil
}

type cmdSetPipeline struct{ ps *PipelineState }

func (c cmdSetPipeline) encode(e *encoder) { e.pass.SetPipeline(c.ps.pipeline) }

type cmdVertexBuffer struct {
	slot   uint32
	buf    *Buffer
	offset uint64
}

func (c cmdVertexBuffer) encode(e *encoder) { e.pass.SetVertexBuffer(c.slot, c.buf.raw, c.offset) }

type cmdIndexBuffer struct {
	buf    *Buffer
	format gputypes.IndexFormat
	offset uint64
}

func (c cmdIndexBuffer) encode(e *encoder) { e.pass.SetIndexBuffer(c.buf.raw, c.format, c.offset) }

type cmdViewport struct{ vp Viewport }

func (c cmdViewport) encode(e *encoder) {
	e.pass.SetViewport(c.vp.X, c.vp.Y, c.vp.Width, c.vp.Height, c.vp.MinDepth, c.vp.MaxDepth)
}

type cmdScissor struct{ r Rect }

func (c cmdScissor) encode(e *encoder) {
	e.pass.SetScissorRect(c.r.X, c.r.Y, c.r.Width, c.r.Height)
}

type cmdDraw struct {
	vertexCount, instanceCount, firstVertex, firstInstance uint32
}

func (c cmdDraw) encode(e *encoder) {
	e.pass.Draw(c.vertexCount, c.instanceCount, c.firstVertex, c.firstInstance)
}

type cmdDrawIndexed struct {
	indexCount, instanceCount, firstIndex uint32
	baseVertex                            int32
	firstInstance                         uint32
}

func (c cmdDrawIndexed) encode(e *encoder) {
	e.pass.DrawIndexed(c.indexCount, c.instanceCount, c.firstIndex, c.baseVertex, c.firstInstance)
}

type cmdTextureBarrier struct {
	tex      *Texture
	from, to gputypes.TextureUsage
}

func (c cmdTextureBarrier) encode(e *encoder) {
	e.enc.TransitionTextures([]hal.TextureBarrier{{
		Texture: c.tex.raw,
		Range:   hal.TextureRange{Aspect: gputypes.TextureAspectAll},
		Usage:   hal.TextureUsageTransition{OldUsage: c.from, NewUsage: c.to},
	}})
}

type cmdBufferBarrier struct {
	buf      *Buffer
	from, to gputypes.BufferUsage
}

func (c cmdBufferBarrier) encode(e *encoder) {
	e.enc.TransitionBuffers([]hal.BufferBarrier{{
		Buffer: c.buf.raw,
		Usage:  hal.BufferUsageTransition{OldUsage: c.from, NewUsage: c.to},
	}})
}

type cmdCopyBuffer struct {
	src, dst       *Buffer
	srcOff, dstOff uint64
	size           uint64
}

func (c cmdCopyBuffer) encode(e *encoder) {
	e.enc.CopyBufferToBuffer(c.src.raw, c.dst.raw, []hal.BufferCopy{{
		SrcOffset: c.srcOff,
		DstOffset: c.dstOff,
		Size:      c.size,
	}})
}

// primitives returns how many triangles a draw of n vertices produces.
func primitives(topology gputypes.PrimitiveTopology, n, instances uint32) uint64 {
	var per uint64
	switch topology {
	case gputypes.PrimitiveTopologyTriangleList:
		per = uint64(n / 3)
	case gputypes.PrimitiveTopologyTriangleStrip:
		if n > 2 {
			per = uint64(n - 2)
		}
	}
	return per * uint64(instances)
}
