package gfx

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// TextureInfo describes a 2D texture or texture array.
// Zero DepthOrArrayLayers, MipLevels and SampleCount default to 1.
type TextureInfo struct {
	Label              string
	Width              uint32
	Height             uint32
	DepthOrArrayLayers uint32
	MipLevels          uint32
	SampleCount        uint32
	Format             gputypes.TextureFormat
	Usage              gputypes.TextureUsage
}

func (info *TextureInfo) normalize() {
	if info.DepthOrArrayLayers == 0 {
		info.DepthOrArrayLayers = 1
	}
	if info.MipLevels == 0 {
		info.MipLevels = 1
	}
	if info.SampleCount == 0 {
		info.SampleCount = 1
	}
}

// Texture is an image in GPU memory.
type Texture struct {
	lifecycle
	dev  *Device
	info TextureInfo
	raw  hal.Texture
}

// NewTexture returns an uninitialized texture tracked by d.
func (d *Device) NewTexture() *Texture {
	t := &Texture{dev: d}
	d.track(t)
	return t
}

// CreateTexture creates and initializes a texture.
func (d *Device) CreateTexture(info TextureInfo) *Texture {
	t := d.NewTexture()
	_ = t.Initialize(info)
	return t
}

// Initialize validates info against the device capabilities and creates
// the backend texture.
func (t *Texture) Initialize(info TextureInfo) error {
	if err := t.begin("Texture.Initialize", info.Label); err != nil {
		return err
	}
	info.normalize()
	t.info = info
	return t.dev.initialize(t, func() error {
		if err := t.dev.validateTexture(&info); err != nil {
			return err
		}
		raw, err := t.dev.halDevice().CreateTexture(&hal.TextureDescriptor{
			Label: info.Label,
			Size: hal.Extent3D{
				Width:              info.Width,
				Height:             info.Height,
				DepthOrArrayLayers: info.DepthOrArrayLayers,
			},
			MipLevelCount: info.MipLevels,
			SampleCount:   info.SampleCount,
			Dimension:     gputypes.TextureDimension2D,
			Format:        info.Format,
			Usage:         info.Usage,
		})
		if err != nil {
			return err
		}
		t.raw = raw
		return nil
	})
}

func (d *Device) validateTexture(info *TextureInfo) error {
	maxSize := d.caps.MaxTextureSize
	switch {
	case info.Width == 0 || info.Height == 0:
		return fmt.Errorf("%w: empty texture %dx%d", ErrUnsupported, info.Width, info.Height)
	case info.Width > maxSize || info.Height > maxSize:
		return fmt.Errorf("%w: texture %dx%d exceeds max %d", ErrUnsupported, info.Width, info.Height, maxSize)
	case info.Format == gputypes.TextureFormatUndefined:
		return fmt.Errorf("%w: undefined texture format", ErrUnsupported)
	case !validSampleCount(info.SampleCount):
		return fmt.Errorf("%w: sample count %d", ErrUnsupported, info.SampleCount)
	}

	var need FormatUsage
	if info.Usage&gputypes.TextureUsageTextureBinding != 0 {
		need |= FormatSampled
	}
	if info.Usage&gputypes.TextureUsageStorageBinding != 0 {
		need |= FormatStorage
	}
	if info.Usage&gputypes.TextureUsageRenderAttachment != 0 {
		need |= FormatRenderAttachment
	}
	if info.SampleCount > 1 {
		need |= FormatMultisample
	}
	if !d.supportsFormat(info.Format, need) {
		return fmt.Errorf("%w: format %s for usage %#x", ErrUnsupported, info.Format, uint32(info.Usage))
	}
	return nil
}

func validSampleCount(n uint32) bool {
	switch n {
	case 1, 2, 4, 8, 16:
		return true
	}
	return false
}

// Destroy releases the texture. Safe to call more than once.
func (t *Texture) Destroy() { t.dev.destroy(t) }

// Info returns the normalized descriptor.
func (t *Texture) Info() TextureInfo { return t.info }

// Width returns the texture width in pixels.
func (t *Texture) Width() uint32 { return t.info.Width }

// Height returns the texture height in pixels.
func (t *Texture) Height() uint32 { return t.info.Height }

// Format returns the texture format.
func (t *Texture) Format() gputypes.TextureFormat { return t.info.Format }

// Raw returns the backend texture, or nil when the texture is not ready.
func (t *Texture) Raw() hal.Texture {
	if !t.ready() {
		return nil
	}
	return t.raw
}

func (t *Texture) kind() string { return "Texture" }

func (t *Texture) release() {
	if t.raw != nil {
		t.dev.halDevice().DestroyTexture(t.raw)
		t.raw = nil
	}
}

// TextureViewInfo selects a subresource range of a texture.
// Zero Format inherits the texture format; zero counts mean all remaining.
type TextureViewInfo struct {
	Label      string
	Texture    *Texture
	Format     gputypes.TextureFormat
	BaseMip    uint32
	MipCount   uint32
	BaseLayer  uint32
	LayerCount uint32
}

// TextureView is a typed window onto a texture.
type TextureView struct {
	lifecycle
	dev  *Device
	info TextureViewInfo
	raw  hal.TextureView
}

// NewTextureView returns an uninitialized view tracked by d.
func (d *Device) NewTextureView() *TextureView {
	v := &TextureView{dev: d}
	d.track(v)
	return v
}

// CreateTextureView creates and initializes a texture view.
func (d *Device) CreateTextureView(info TextureViewInfo) *TextureView {
	v := d.NewTextureView()
	_ = v.Initialize(info)
	return v
}

// Initialize creates the backend view. The texture must be ready.
func (v *TextureView) Initialize(info TextureViewInfo) error {
	if err := v.begin("TextureView.Initialize", info.Label); err != nil {
		return err
	}
	v.info = info
	return v.dev.initialize(v, func() error {
		tex := info.Texture
		if tex == nil || !tex.ready() {
			return fmt.Errorf("texture view source: %w", ErrNotReady)
		}
		if info.Format == gputypes.TextureFormatUndefined {
			v.info.Format = tex.info.Format
		}
		if info.BaseMip >= tex.info.MipLevels || info.BaseLayer >= tex.info.DepthOrArrayLayers {
			return fmt.Errorf("%w: view range outside texture", ErrUnsupported)
		}
		raw, err := v.dev.halDevice().CreateTextureView(tex.raw, &hal.TextureViewDescriptor{
			Label:           info.Label,
			Format:          v.info.Format,
			Aspect:          gputypes.TextureAspectAll,
			BaseMipLevel:    info.BaseMip,
			MipLevelCount:   info.MipCount,
			BaseArrayLayer:  info.BaseLayer,
			ArrayLayerCount: info.LayerCount,
		})
		if err != nil {
			return err
		}
		v.raw = raw
		return nil
	})
}

// Destroy releases the view. Safe to call more than once.
func (v *TextureView) Destroy() { v.dev.destroy(v) }

// Texture returns the viewed texture.
func (v *TextureView) Texture() *Texture { return v.info.Texture }

// Format returns the view format.
func (v *TextureView) Format() gputypes.TextureFormat { return v.info.Format }

// Raw returns the backend view, or nil when the view is not ready.
func (v *TextureView) Raw() hal.TextureView {
	if !v.ready() {
		return nil
	}
	return v.raw
}

func (v *TextureView) kind() string { return "TextureView" }

func (v *TextureView) release() {
	if v.raw != nil {
		v.dev.halDevice().DestroyTextureView(v.raw)
		v.raw = nil
	}
}
