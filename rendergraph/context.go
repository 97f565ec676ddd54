// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rendergraph

import (
	"context"
	"fmt"

	"github.com/gogpu/gfx"
)

// PassContext is handed to a pass's execute callback. It resolves the
// resources the pass declared and owns the pass's command buffer, which
// is already begun and must not be ended by the callback.
//
// A PassContext is valid only during the callback.
type PassContext struct {
	ctx   context.Context
	exec  *Executor
	frame *frameState
	pass  *pass
	cb    *gfx.CommandBuffer
}

// Context returns the frame's context. It is canceled when another pass
// in the same level fails.
func (c *PassContext) Context() context.Context { return c.ctx }

// Name returns the pass name.
func (c *PassContext) Name() string { return c.pass.name }

// Frame returns the number of the frame being recorded, starting at 1.
func (c *PassContext) Frame() uint64 { return c.exec.frame + 1 }

// Device returns the executor's device.
func (c *PassContext) Device() *gfx.Device { return c.exec.dev }

// CommandBuffer returns the pass's command buffer.
func (c *PassContext) CommandBuffer() *gfx.CommandBuffer { return c.cb }

// Texture returns the texture behind id, or nil if the pass did not
// declare a Read or Write of it.
func (c *PassContext) Texture(id ResourceID) *gfx.Texture {
	if read, write, _ := c.pass.uses(id); !read && !write {
		return nil
	}
	return c.frame.textures[id]
}

// Buffer returns the buffer behind id, or nil if the pass did not declare
// a Read or Write of it.
func (c *PassContext) Buffer(id ResourceID) *gfx.Buffer {
	if read, write, _ := c.pass.uses(id); !read && !write {
		return nil
	}
	return c.frame.buffers[id]
}

// History returns the previous frame's image of a history texture, or nil
// if the pass did not declare ReadHistory of it.
func (c *PassContext) History(id ResourceID) *gfx.Texture {
	if _, _, history := c.pass.uses(id); !history {
		return nil
	}
	return c.frame.previous[id]
}

// Framebuffer builds a framebuffer over textures the pass writes. The
// attachments are the color targets in order followed by the depth
// target when info has one. Render passes are cached by layout; the
// framebuffer lives until the frame completes.
func (c *PassContext) Framebuffer(info gfx.RenderPassInfo, attachments ...ResourceID) (*gfx.Framebuffer, error) {
	want := len(info.ColorAttachments)
	if info.DepthStencil != nil {
		want++
	}
	if len(attachments) != want {
		return nil, fmt.Errorf("%w: pass %q: %d attachments for a render pass with %d",
			ErrInvalidGraph, c.pass.name, len(attachments), want)
	}

	textures := make([]*gfx.Texture, len(attachments))
	for i, id := range attachments {
		if !c.pass.writes(id) {
			name, _, _ := c.frame.graph.Resource(id)
			return nil, fmt.Errorf("%w: pass %q: attachment %q is not declared as written",
				ErrInvalidGraph, c.pass.name, name)
		}
		if textures[i] = c.frame.textures[id]; textures[i] == nil {
			return nil, fmt.Errorf("%w: pass %q: attachment %d is not a texture", ErrInvalidGraph, c.pass.name, id)
		}
	}

	rp, err := c.exec.renderPass(info)
	if err != nil {
		return nil, err
	}

	fbInfo := gfx.FramebufferInfo{Label: c.pass.name, RenderPass: rp}
	if info.DepthStencil != nil {
		fbInfo.DepthStencilTexture = textures[len(textures)-1]
		textures = textures[:len(textures)-1]
	}
	fbInfo.ColorTextures = textures

	fb := c.exec.dev.CreateFramebuffer(fbInfo)
	if err := readyErr(fb); err != nil {
		fb.Destroy()
		return nil, err
	}
	c.frame.mu.Lock()
	c.frame.framebuffers = append(c.frame.framebuffers, fb)
	c.frame.mu.Unlock()
	return fb, nil
}
