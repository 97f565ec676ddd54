package gfx

import (
	"slices"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// FormatUsage is a set of operations a texture format supports.
type FormatUsage uint8

const (
	// FormatSampled means the format can be sampled in shaders.
	FormatSampled FormatUsage = 1 << iota
	// FormatStorage means the format can back storage textures.
	FormatStorage
	// FormatRenderAttachment means the format can be a render target.
	FormatRenderAttachment
	// FormatBlendable means blending works when rendering to the format.
	FormatBlendable
	// FormatMultisample means multisampled textures of the format exist.
	FormatMultisample
)

// probedFormats are the formats whose support is queried at device creation.
var probedFormats = []gputypes.TextureFormat{
	gputypes.TextureFormatR8Unorm,
	gputypes.TextureFormatRG8Unorm,
	gputypes.TextureFormatRGBA8Unorm,
	gputypes.TextureFormatRGBA8UnormSrgb,
	gputypes.TextureFormatBGRA8Unorm,
	gputypes.TextureFormatBGRA8UnormSrgb,
	gputypes.TextureFormatRGB10A2Unorm,
	gputypes.TextureFormatRG11B10Ufloat,
	gputypes.TextureFormatR16Float,
	gputypes.TextureFormatRG16Float,
	gputypes.TextureFormatRGBA16Float,
	gputypes.TextureFormatR32Float,
	gputypes.TextureFormatRGBA32Float,
	gputypes.TextureFormatDepth16Unorm,
	gputypes.TextureFormatDepth24Plus,
	gputypes.TextureFormatDepth24PlusStencil8,
	gputypes.TextureFormatDepth32Float,
	gputypes.TextureFormatStencil8,
}

// Capabilities describes what the selected backend can do. Resource
// initialization validates descriptors against it.
type Capabilities struct {
	// Backend is the registry name of the selected backend.
	Backend string

	// Adapter describes the physical adapter.
	Adapter gputypes.AdapterInfo

	// MaxTextureSize is the maximum 2D texture dimension.
	MaxTextureSize uint32

	// MaxColorAttachments is the maximum number of color attachments per pass.
	MaxColorAttachments uint32

	// MaxVertexBuffers is the maximum number of vertex buffer slots.
	MaxVertexBuffers uint32

	// MaxBufferSize is the maximum buffer size in bytes.
	MaxBufferSize uint64

	// SupportsCompute reports compute shader support.
	SupportsCompute bool

	formats map[gputypes.TextureFormat]FormatUsage
}

// SupportsFormat reports whether format supports every operation in usage.
func (c *Capabilities) SupportsFormat(format gputypes.TextureFormat, usage FormatUsage) bool {
	got, ok := c.formats[format]
	return ok && got&usage == usage
}

// Formats returns the supported formats in ascending enum order.
func (c *Capabilities) Formats() []gputypes.TextureFormat {
	out := make([]gputypes.TextureFormat, 0, len(c.formats))
	for f, u := range c.formats {
		if u != 0 {
			out = append(out, f)
		}
	}
	slices.Sort(out)
	return out
}

// probeCapabilities reads limits and per-format support from a connection.
func probeCapabilities(name string, conn *Connection) Capabilities {
	caps := Capabilities{
		Backend:             name,
		Adapter:             conn.Info,
		MaxTextureSize:      conn.Limits.MaxTextureDimension2D,
		MaxColorAttachments: conn.Limits.MaxColorAttachments,
		MaxVertexBuffers:    conn.Limits.MaxVertexBuffers,
		MaxBufferSize:       conn.Limits.MaxBufferSize,
		SupportsCompute:     conn.Downlevel.Flags&hal.DownlevelFlagsComputeShaders != 0,
		formats:             make(map[gputypes.TextureFormat]FormatUsage, len(probedFormats)),
	}

	for _, f := range probedFormats {
		if conn.Adapter == nil {
			// Providers without an adapter: assume the WebGPU baseline.
			caps.formats[f] = FormatSampled | FormatRenderAttachment | FormatMultisample
			if !f.IsDepthStencil() {
				caps.formats[f] |= FormatBlendable
			}
			continue
		}
		caps.formats[f] = formatUsage(conn.Adapter.TextureFormatCapabilities(f).Flags)
	}
	return caps
}

func formatUsage(flags hal.TextureFormatCapabilityFlags) FormatUsage {
	var u FormatUsage
	if flags&hal.TextureFormatCapabilitySampled != 0 {
		u |= FormatSampled
	}
	if flags&hal.TextureFormatCapabilityStorage != 0 {
		u |= FormatStorage
	}
	if flags&hal.TextureFormatCapabilityRenderAttachment != 0 {
		u |= FormatRenderAttachment
	}
	if flags&hal.TextureFormatCapabilityBlendable != 0 {
		u |= FormatBlendable
	}
	if flags&hal.TextureFormatCapabilityMultisample != 0 {
		u |= FormatMultisample
	}
	return u
}
