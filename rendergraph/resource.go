// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rendergraph

import (
	"fmt"

	"github.com/gogpu/gputypes"
)

// ResourceID identifies a resource declared on a Graph.
type ResourceID int

// InvalidResource is never returned by a successful declaration.
const InvalidResource ResourceID = -1

// ResourceKind distinguishes textures from buffers.
type ResourceKind uint8

const (
	// KindTexture is a 2D texture.
	KindTexture ResourceKind = iota
	// KindBuffer is a linear buffer.
	KindBuffer
)

func (k ResourceKind) String() string {
	if k == KindBuffer {
		return "buffer"
	}
	return "texture"
}

// Lifetime classifies who owns a resource's memory.
type Lifetime uint8

const (
	// Transient resources live within one frame and may share memory.
	Transient Lifetime = iota
	// Imported resources are owned by the caller and bound before execution.
	Imported
	// History resources persist across frames as a current/previous pair.
	History
)

func (l Lifetime) String() string {
	switch l {
	case Imported:
		return "imported"
	case History:
		return "history"
	default:
		return "transient"
	}
}

// ImportFlags mark imported resources as externally observable.
type ImportFlags uint8

const (
	// Present marks a resource shown on screen after the frame.
	Present ImportFlags = 1 << iota
	// Persist marks a resource read by the caller after the frame.
	Persist
)

// TextureDesc describes a graph texture. Usage is the minimum usage; the
// graph adds what its passes need (render attachment for writes, texture
// binding for reads).
type TextureDesc struct {
	Width       uint32
	Height      uint32
	Format      gputypes.TextureFormat
	SampleCount uint32
	Usage       gputypes.TextureUsage
}

func (d TextureDesc) normalized() TextureDesc {
	if d.SampleCount == 0 {
		d.SampleCount = 1
	}
	return d
}

// compatible reports whether two textures can share one allocation.
func (d TextureDesc) compatible(o TextureDesc) bool {
	return d.Width == o.Width && d.Height == o.Height &&
		d.Format == o.Format && d.SampleCount == o.SampleCount
}

// BufferDesc describes a graph buffer.
type BufferDesc struct {
	Size  uint64
	Usage gputypes.BufferUsage
}

// resource is one declared resource.
type resource struct {
	name     string
	kind     ResourceKind
	lifetime Lifetime
	flags    ImportFlags
	tex      TextureDesc
	buf      BufferDesc
}

func (r *resource) observable() bool {
	return r.lifetime == History || (r.lifetime == Imported && r.flags&(Present|Persist) != 0)
}

func (r *resource) String() string {
	if r.kind == KindBuffer {
		return fmt.Sprintf("%s %s %q (%d bytes)", r.lifetime, r.kind, r.name, r.buf.Size)
	}
	return fmt.Sprintf("%s %s %q (%dx%d %s)", r.lifetime, r.kind, r.name, r.tex.Width, r.tex.Height, r.tex.Format)
}

// Texture and buffer states used for barriers.
const (
	textureReadUsage  = gputypes.TextureUsageTextureBinding
	textureWriteUsage = gputypes.TextureUsageRenderAttachment

	bufferReadMask = gputypes.BufferUsageUniform | gputypes.BufferUsageStorage |
		gputypes.BufferUsageVertex | gputypes.BufferUsageIndex | gputypes.BufferUsageIndirect |
		gputypes.BufferUsageCopySrc
	bufferWriteMask = gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst
)

// bufferState returns the usage a buffer access transitions to.
func bufferState(usage gputypes.BufferUsage, write bool) gputypes.BufferUsage {
	if write {
		if u := usage & bufferWriteMask; u != 0 {
			return u
		}
		return gputypes.BufferUsageStorage
	}
	if u := usage & bufferReadMask; u != 0 {
		return u
	}
	return gputypes.BufferUsageStorage
}

// bytesPerPixel estimates the memory footprint of a texel.
func bytesPerPixel(f gputypes.TextureFormat) uint64 {
	switch f {
	case gputypes.TextureFormatR8Unorm, gputypes.TextureFormatStencil8:
		return 1
	case gputypes.TextureFormatRG8Unorm, gputypes.TextureFormatR16Float, gputypes.TextureFormatDepth16Unorm:
		return 2
	case gputypes.TextureFormatRGBA16Float, gputypes.TextureFormatRG32Float:
		return 8
	case gputypes.TextureFormatRGBA32Float:
		return 16
	default:
		return 4
	}
}

func (d TextureDesc) sizeBytes() uint64 {
	return uint64(d.Width) * uint64(d.Height) * uint64(max(d.SampleCount, 1)) * bytesPerPixel(d.Format)
}
