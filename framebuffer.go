package gfx

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// ExternalView is a view the framebuffer references but does not own,
// typically a swap-chain image acquired for one frame.
type ExternalView struct {
	View   hal.TextureView
	Format gputypes.TextureFormat
	Width  uint32
	Height uint32
}

// FramebufferInfo binds textures to the attachments of a render pass.
//
// Either ColorTextures (plus an optional DepthStencilTexture) or External
// is given. With textures the framebuffer creates and owns one view per
// attachment; with External the views belong to the caller.
type FramebufferInfo struct {
	Label               string
	RenderPass          *RenderPass
	ColorTextures       []*Texture
	DepthStencilTexture *Texture
	External            []ExternalView
}

// Framebuffer is a set of attachment views matching a render pass.
type Framebuffer struct {
	lifecycle
	dev *Device

	renderPass *RenderPass
	width      uint32
	height     uint32
	owned      bool

	textures []*Texture
	colors   []hal.TextureView
	depth    hal.TextureView
	views    []*TextureView
}

// NewFramebuffer returns an uninitialized framebuffer tracked by d.
func (d *Device) NewFramebuffer() *Framebuffer {
	fb := &Framebuffer{dev: d}
	d.track(fb)
	return fb
}

// CreateFramebuffer creates and initializes a framebuffer.
func (d *Device) CreateFramebuffer(info FramebufferInfo) *Framebuffer {
	fb := d.NewFramebuffer()
	_ = fb.Initialize(info)
	return fb
}

// Initialize validates the attachments against the render pass and, for
// offscreen targets, creates the owned views.
func (fb *Framebuffer) Initialize(info FramebufferInfo) error {
	if err := fb.begin("Framebuffer.Initialize", info.Label); err != nil {
		return err
	}
	fb.renderPass = info.RenderPass

	var err error
	if len(info.External) > 0 {
		err = fb.dev.initialize(fb, func() error { return fb.initExternal(info) })
	} else {
		err = fb.initOwned(info)
	}
	return err
}

func (fb *Framebuffer) initExternal(info FramebufferInfo) error {
	rp := info.RenderPass
	if rp == nil || !rp.ready() {
		return fmt.Errorf("framebuffer render pass: %w", ErrNotReady)
	}
	if len(info.ColorTextures) > 0 || info.DepthStencilTexture != nil {
		return fmt.Errorf("%w: both textures and external views given", ErrUnsupported)
	}
	if rp.info.DepthStencil != nil || len(info.External) != len(rp.info.ColorAttachments) {
		return fmt.Errorf("%w: %d external views for %d color attachments",
			ErrUnsupported, len(info.External), len(rp.info.ColorAttachments))
	}

	fb.width, fb.height = info.External[0].Width, info.External[0].Height
	for i, ext := range info.External {
		if ext.View == nil {
			return fmt.Errorf("%w: external view %d is nil", ErrUnsupported, i)
		}
		if ext.Format != rp.info.ColorAttachments[i].Format {
			return fmt.Errorf("%w: external view %d format %s, want %s",
				ErrUnsupported, i, ext.Format, rp.info.ColorAttachments[i].Format)
		}
		if ext.Width != fb.width || ext.Height != fb.height {
			return fmt.Errorf("%w: external view %d size %dx%d, want %dx%d",
				ErrUnsupported, i, ext.Width, ext.Height, fb.width, fb.height)
		}
		fb.colors = append(fb.colors, ext.View)
	}
	return nil
}

// initOwned validates under the device mutex, then creates the views
// outside it because view creation takes the mutex itself.
func (fb *Framebuffer) initOwned(info FramebufferInfo) error {
	var attach []*Texture
	err := fb.dev.withLock(func() error {
		var err error
		attach, err = fb.validateTextures(info)
		return err
	})
	if err != nil {
		return fb.fail(fb.kind(), err)
	}

	for i, tex := range attach {
		v := fb.dev.CreateTextureView(TextureViewInfo{
			Label:   fmt.Sprintf("%s/view%d", info.Label, i),
			Texture: tex,
		})
		if v.Status() != StatusSuccess {
			for _, made := range fb.views {
				made.Destroy()
			}
			fb.views = nil
			return fb.fail(fb.kind(), v.Err())
		}
		fb.views = append(fb.views, v)
	}

	fb.owned = true
	fb.textures = attach
	nColor := len(info.ColorTextures)
	for _, v := range fb.views[:nColor] {
		fb.colors = append(fb.colors, v.raw)
	}
	if nColor < len(fb.views) {
		fb.depth = fb.views[nColor].raw
	}
	fb.succeed()
	return nil
}

func (fb *Framebuffer) validateTextures(info FramebufferInfo) ([]*Texture, error) {
	rp := info.RenderPass
	if rp == nil || !rp.ready() {
		return nil, fmt.Errorf("framebuffer render pass: %w", ErrNotReady)
	}
	if len(info.ColorTextures) != len(rp.info.ColorAttachments) {
		return nil, fmt.Errorf("%w: %d color textures for %d attachments",
			ErrUnsupported, len(info.ColorTextures), len(rp.info.ColorAttachments))
	}
	if (info.DepthStencilTexture != nil) != (rp.info.DepthStencil != nil) {
		return nil, fmt.Errorf("%w: depth-stencil texture does not match render pass", ErrUnsupported)
	}

	attach := append([]*Texture(nil), info.ColorTextures...)
	formats := make([]gputypes.TextureFormat, 0, len(attach)+1)
	for _, c := range rp.info.ColorAttachments {
		formats = append(formats, c.Format)
	}
	if info.DepthStencilTexture != nil {
		attach = append(attach, info.DepthStencilTexture)
		formats = append(formats, rp.info.DepthStencil.Format)
	}

	samples := rp.info.sampleCount()
	for i, tex := range attach {
		switch {
		case tex == nil || !tex.ready():
			return nil, fmt.Errorf("framebuffer attachment %d: %w", i, ErrNotReady)
		case tex.info.Usage&gputypes.TextureUsageRenderAttachment == 0:
			return nil, fmt.Errorf("%w: attachment %d lacks render attachment usage", ErrUnsupported, i)
		case tex.info.Format != formats[i]:
			return nil, fmt.Errorf("%w: attachment %d format %s, want %s",
				ErrUnsupported, i, tex.info.Format, formats[i])
		case tex.info.SampleCount != samples:
			return nil, fmt.Errorf("%w: attachment %d sample count %d, want %d",
				ErrUnsupported, i, tex.info.SampleCount, samples)
		}
		if i == 0 {
			fb.width, fb.height = tex.info.Width, tex.info.Height
		} else if tex.info.Width != fb.width || tex.info.Height != fb.height {
			return nil, fmt.Errorf("%w: attachment %d size %dx%d, want %dx%d",
				ErrUnsupported, i, tex.info.Width, tex.info.Height, fb.width, fb.height)
		}
	}
	return attach, nil
}

// Destroy releases the framebuffer and, if it owns them, its views.
// External views are never destroyed. Safe to call more than once.
func (fb *Framebuffer) Destroy() { fb.dev.destroy(fb) }

// RenderPass returns the render pass the framebuffer was built against.
func (fb *Framebuffer) RenderPass() *RenderPass { return fb.renderPass }

// Width returns the attachment width.
func (fb *Framebuffer) Width() uint32 { return fb.width }

// Height returns the attachment height.
func (fb *Framebuffer) Height() uint32 { return fb.height }

// Owned reports whether the framebuffer created its views. It is false
// for framebuffers over external (swap-chain) views.
func (fb *Framebuffer) Owned() bool { return fb.owned }

// Textures returns the attachment textures of an owned framebuffer,
// color attachments first.
func (fb *Framebuffer) Textures() []*Texture { return fb.textures }

func (fb *Framebuffer) kind() string { return "Framebuffer" }

// release runs with the device mutex held, so owned views are released
// directly instead of through Destroy.
func (fb *Framebuffer) release() {
	for _, v := range fb.views {
		if v.retire() {
			delete(fb.dev.resources, v.id)
			v.release()
		}
	}
	fb.views = nil
	fb.colors = nil
	fb.depth = nil
}
