package gfx

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"slices"

	"github.com/gogpu/gputypes"
)

// ColorAttachment describes one color target of a render pass.
type ColorAttachment struct {
	Format      gputypes.TextureFormat
	LoadOp      gputypes.LoadOp
	StoreOp     gputypes.StoreOp
	SampleCount uint32
}

// DepthStencilAttachment describes the depth-stencil target of a render pass.
// Stencil ops are ignored for formats without a stencil aspect.
type DepthStencilAttachment struct {
	Format         gputypes.TextureFormat
	DepthLoadOp    gputypes.LoadOp
	DepthStoreOp   gputypes.StoreOp
	StencilLoadOp  gputypes.LoadOp
	StencilStoreOp gputypes.StoreOp
	SampleCount    uint32
}

// RenderPassInfo describes the attachment layout of a render pass.
type RenderPassInfo struct {
	Label            string
	ColorAttachments []ColorAttachment
	DepthStencil     *DepthStencilAttachment
}

func (info RenderPassInfo) clone() RenderPassInfo {
	out := RenderPassInfo{
		Label:            info.Label,
		ColorAttachments: slices.Clone(info.ColorAttachments),
	}
	if info.DepthStencil != nil {
		ds := *info.DepthStencil
		out.DepthStencil = &ds
	}
	return out
}

// sampleCount returns the shared sample count, treating zero as one.
func (info *RenderPassInfo) sampleCount() uint32 {
	if len(info.ColorAttachments) > 0 {
		return max(info.ColorAttachments[0].SampleCount, 1)
	}
	if info.DepthStencil != nil {
		return max(info.DepthStencil.SampleCount, 1)
	}
	return 1
}

// HashRenderPassInfo returns a 64-bit FNV-1a hash of the attachment layout.
//
// Each color attachment contributes its format, load op, store op and
// sample count in order, followed by a presence marker and the fields of
// the depth-stencil attachment. The label is not hashed. Two infos with the
// same attachments in the same order hash equal.
func HashRenderPassInfo(info RenderPassInfo) uint64 {
	h := fnv.New64a()
	var buf [4]byte
	put := func(v uint32) {
		binary.LittleEndian.PutUint32(buf[:], v)
		_, _ = h.Write(buf[:])
	}

	put(uint32(len(info.ColorAttachments)))
	for _, c := range info.ColorAttachments {
		put(uint32(c.Format))
		put(uint32(c.LoadOp))
		put(uint32(c.StoreOp))
		put(max(c.SampleCount, 1))
	}

	ds := info.DepthStencil
	if ds == nil {
		put(0)
		return h.Sum64()
	}
	put(1)
	put(uint32(ds.Format))
	put(uint32(ds.DepthLoadOp))
	put(uint32(ds.DepthStoreOp))
	put(uint32(ds.StencilLoadOp))
	put(uint32(ds.StencilStoreOp))
	put(max(ds.SampleCount, 1))
	return h.Sum64()
}

// RenderPass is an immutable attachment layout. Framebuffers and pipeline
// states are built against one, and a pipeline may only be bound inside a
// framebuffer whose render pass hashes equal to its own.
type RenderPass struct {
	lifecycle
	dev  *Device
	info RenderPassInfo
	hash uint64
}

// NewRenderPass returns an uninitialized render pass tracked by d.
func (d *Device) NewRenderPass() *RenderPass {
	rp := &RenderPass{dev: d}
	d.track(rp)
	return rp
}

// CreateRenderPass creates and initializes a render pass.
func (d *Device) CreateRenderPass(info RenderPassInfo) *RenderPass {
	rp := d.NewRenderPass()
	_ = rp.Initialize(info)
	return rp
}

// Initialize validates and stores a deep copy of info.
func (rp *RenderPass) Initialize(info RenderPassInfo) error {
	if err := rp.begin("RenderPass.Initialize", info.Label); err != nil {
		return err
	}
	rp.info = info.clone()
	return rp.dev.initialize(rp, func() error {
		if err := rp.dev.validateRenderPass(&rp.info); err != nil {
			return err
		}
		rp.hash = HashRenderPassInfo(rp.info)
		return nil
	})
}

func (d *Device) validateRenderPass(info *RenderPassInfo) error {
	colors := info.ColorAttachments
	if len(colors) == 0 && info.DepthStencil == nil {
		return fmt.Errorf("%w: render pass has no attachments", ErrUnsupported)
	}
	if uint32(len(colors)) > d.caps.MaxColorAttachments {
		return fmt.Errorf("%w: %d color attachments, max %d",
			ErrUnsupported, len(colors), d.caps.MaxColorAttachments)
	}

	samples := info.sampleCount()
	if !validSampleCount(samples) {
		return fmt.Errorf("%w: sample count %d", ErrUnsupported, samples)
	}

	for i, c := range colors {
		switch {
		case c.Format.IsDepthStencil():
			return fmt.Errorf("%w: color attachment %d has depth format %s", ErrUnsupported, i, c.Format)
		case !d.supportsFormat(c.Format, FormatRenderAttachment):
			return fmt.Errorf("%w: color attachment %d format %s not renderable", ErrUnsupported, i, c.Format)
		case max(c.SampleCount, 1) != samples:
			return fmt.Errorf("%w: color attachment %d sample count %d, want %d",
				ErrUnsupported, i, c.SampleCount, samples)
		case c.LoadOp == gputypes.LoadOpUndefined || c.StoreOp == gputypes.StoreOpUndefined:
			return fmt.Errorf("%w: color attachment %d has undefined load/store op", ErrUnsupported, i)
		}
	}

	if ds := info.DepthStencil; ds != nil {
		switch {
		case !ds.Format.IsDepthStencil():
			return fmt.Errorf("%w: depth-stencil format %s", ErrUnsupported, ds.Format)
		case max(ds.SampleCount, 1) != samples:
			return fmt.Errorf("%w: depth-stencil sample count %d, want %d", ErrUnsupported, ds.SampleCount, samples)
		case ds.Format.HasDepth() && (ds.DepthLoadOp == gputypes.LoadOpUndefined || ds.DepthStoreOp == gputypes.StoreOpUndefined):
			return fmt.Errorf("%w: depth attachment has undefined load/store op", ErrUnsupported)
		case ds.Format.HasStencil() && (ds.StencilLoadOp == gputypes.LoadOpUndefined || ds.StencilStoreOp == gputypes.StoreOpUndefined):
			return fmt.Errorf("%w: stencil attachment has undefined load/store op", ErrUnsupported)
		}
	}
	return nil
}

// Destroy releases the render pass. Safe to call more than once.
func (rp *RenderPass) Destroy() { rp.dev.destroy(rp) }

// Info returns a copy of the attachment layout.
func (rp *RenderPass) Info() RenderPassInfo { return rp.info.clone() }

// Hash returns HashRenderPassInfo of the layout.
func (rp *RenderPass) Hash() uint64 { return rp.hash }

// SampleCount returns the sample count shared by every attachment.
func (rp *RenderPass) SampleCount() uint32 { return rp.info.sampleCount() }

// Compatible reports whether other has the same attachment layout.
func (rp *RenderPass) Compatible(other *RenderPass) bool {
	return other != nil && rp.ready() && other.ready() && rp.hash == other.hash
}

func (rp *RenderPass) kind() string { return "RenderPass" }

// release is empty: a render pass is a CPU-side layout description.
func (rp *RenderPass) release() {}
