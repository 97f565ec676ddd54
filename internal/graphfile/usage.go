package graphfile

import (
	"fmt"
	"strings"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/gfx/rendergraph"
)

// formats maps lower-case gputypes names ("rgba8unorm", "depth32float") to
// formats.
var formats = func() map[string]gputypes.TextureFormat {
	m := make(map[string]gputypes.TextureFormat)
	for f := gputypes.TextureFormatR8Unorm; f <= gputypes.TextureFormatASTC12x12UnormSrgb; f++ {
		if name := f.String(); name != "Unknown" {
			m[strings.ToLower(name)] = f
		}
	}
	return m
}()

var textureUsages = map[string]gputypes.TextureUsage{
	"copy-src":          gputypes.TextureUsageCopySrc,
	"copy-dst":          gputypes.TextureUsageCopyDst,
	"texture-binding":   gputypes.TextureUsageTextureBinding,
	"storage-binding":   gputypes.TextureUsageStorageBinding,
	"render-attachment": gputypes.TextureUsageRenderAttachment,
}

var bufferUsages = map[string]gputypes.BufferUsage{
	"map-read":  gputypes.BufferUsageMapRead,
	"map-write": gputypes.BufferUsageMapWrite,
	"copy-src":  gputypes.BufferUsageCopySrc,
	"copy-dst":  gputypes.BufferUsageCopyDst,
	"index":     gputypes.BufferUsageIndex,
	"vertex":    gputypes.BufferUsageVertex,
	"uniform":   gputypes.BufferUsageUniform,
	"storage":   gputypes.BufferUsageStorage,
	"indirect":  gputypes.BufferUsageIndirect,
}

// ParseFormat looks up a texture format by its case-insensitive name.
func ParseFormat(name string) (gputypes.TextureFormat, error) {
	f, ok := formats[strings.ToLower(strings.ReplaceAll(name, "-", ""))]
	if !ok {
		return gputypes.TextureFormatUndefined, fmt.Errorf("%w: unknown texture format %q", ErrFormat, name)
	}
	return f, nil
}

func textureDesc(r *Resource) (rendergraph.TextureDesc, error) {
	if r.Size != 0 {
		return rendergraph.TextureDesc{}, fmt.Errorf("%w: texture %q: size applies to buffers", ErrFormat, r.Name)
	}
	if r.Width == 0 || r.Height == 0 {
		return rendergraph.TextureDesc{}, fmt.Errorf("%w: texture %q: width and height are required", ErrFormat, r.Name)
	}
	format, err := ParseFormat(r.Format)
	if err != nil {
		return rendergraph.TextureDesc{}, fmt.Errorf("texture %q: %w", r.Name, err)
	}
	desc := rendergraph.TextureDesc{Width: r.Width, Height: r.Height, Format: format, SampleCount: r.Samples}
	for _, u := range r.Usage {
		bit, ok := textureUsages[strings.ToLower(u)]
		if !ok {
			return rendergraph.TextureDesc{}, fmt.Errorf("%w: texture %q: unknown usage %q", ErrFormat, r.Name, u)
		}
		desc.Usage |= bit
	}
	return desc, nil
}

func bufferDesc(r *Resource) (rendergraph.BufferDesc, error) {
	if r.Size == 0 {
		return rendergraph.BufferDesc{}, fmt.Errorf("%w: buffer %q: size is required", ErrFormat, r.Name)
	}
	if r.Width != 0 || r.Height != 0 || r.Format != "" {
		return rendergraph.BufferDesc{}, fmt.Errorf("%w: buffer %q: width, height and format apply to textures", ErrFormat, r.Name)
	}
	desc := rendergraph.BufferDesc{Size: r.Size}
	for _, u := range r.Usage {
		bit, ok := bufferUsages[strings.ToLower(u)]
		if !ok {
			return rendergraph.BufferDesc{}, fmt.Errorf("%w: buffer %q: unknown usage %q", ErrFormat, r.Name, u)
		}
		desc.Usage |= bit
	}
	return desc, nil
}
