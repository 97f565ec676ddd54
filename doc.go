// Package gfx is the hardware-abstraction core of the gogpu engine renderer.
//
// # Overview
//
// gfx wraps the backends of gogpu/wgpu (Vulkan, Metal, DX12, GLES, software
// and the headless noop backend) behind one Device. The Device selects a
// working backend by probing candidates in priority order and creates every
// GPU-side object: buffers, textures, render passes, framebuffers, pipeline
// states, command buffers and fences.
//
// # Quick Start
//
//	dev, err := gfx.NewDevice(gfx.WithBackends("vulkan", "empty"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer dev.Destroy()
//
//	rp := dev.CreateRenderPass(gfx.RenderPassInfo{
//	    ColorAttachments: []gfx.ColorAttachment{{
//	        Format:      gputypes.TextureFormatRGBA8Unorm,
//	        LoadOp:      gputypes.LoadOpClear,
//	        StoreOp:     gputypes.StoreOpStore,
//	        SampleCount: 1,
//	    }},
//	})
//	if rp.Status() != gfx.StatusSuccess {
//	    log.Fatal(rp.Err())
//	}
//
// # Resource Lifecycle
//
// Every resource moves through the same states:
//
//	UNREADY --Initialize ok--> SUCCESS --Destroy--> UNREADY (terminal)
//	UNREADY --Initialize err--> FAILED (terminal)
//
// Create* functions never return nil. A backend or validation failure
// produces a FAILED object; inspect Status and Err before using it.
// Destroy is idempotent and a no-op on objects that never reached SUCCESS.
//
// # Recording and Submission
//
// A CommandBuffer records commands into an opaque list that is encoded for
// the backend when End is called. Queue.Submit validates a whole batch before
// touching the backend and arms an optional Fence with the submission index.
// Fence.Wait takes a context; gfx never blocks without one.
//
// # Debug Builds
//
// Programmer errors (double initialization, binding a resource that is not
// ready, recording out of order) are reported as *MisuseError. Build with
// the gfxdebug tag to turn them into panics.
//
// See the rendergraph sub-package for pass scheduling on top of gfx.
package gfx
