package gfx

import (
	"encoding/binary"
	"fmt"

	"github.com/gogpu/gfx/internal/cache"
	"github.com/gogpu/naga"
)

// ShaderSource is a WGSL program with one vertex and one fragment entry.
// Empty entry names default to vs_main and fs_main.
type ShaderSource struct {
	WGSL          string
	VertexEntry   string
	FragmentEntry string
}

func (s ShaderSource) entries() (vs, fs string) {
	vs, fs = s.VertexEntry, s.FragmentEntry
	if vs == "" {
		vs = "vs_main"
	}
	if fs == "" {
		fs = "fs_main"
	}
	return vs, fs
}

// compileShader returns SPIR-V words for src, compiling at most once per
// distinct source while the entry stays in the device cache.
func (d *Device) compileShader(src string) ([]uint32, error) {
	return d.shaders.GetOrCreate(cache.HashString(src), func() ([]uint32, error) {
		code, err := naga.Compile(src)
		if err != nil {
			return nil, fmt.Errorf("compile WGSL: %w", err)
		}
		if len(code)%4 != 0 {
			return nil, fmt.Errorf("compile WGSL: SPIR-V length %d is not word aligned", len(code))
		}
		// SPIR-V is a stream of little-endian 32-bit words.
		words := make([]uint32, len(code)/4)
		for i := range words {
			words[i] = binary.LittleEndian.Uint32(code[i*4:])
		}
		Logger().Debug("gfx: shader compiled", "words", len(words))
		return words, nil
	})
}

// ShaderCacheStats reports hit and miss counts of the compiled shader cache.
func (d *Device) ShaderCacheStats() cache.Stats { return d.shaders.Stats() }
