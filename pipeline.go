package gfx

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// PipelineStateInfo describes a graphics pipeline built against a render
// pass. Color targets and the depth-stencil format come from the pass.
type PipelineStateInfo struct {
	Label         string
	Shader        ShaderSource
	RenderPass    *RenderPass
	VertexBuffers []gputypes.VertexBufferLayout
	Primitive     gputypes.PrimitiveState

	// Blend applies to every color target. Nil disables blending.
	Blend *gputypes.BlendState

	// DepthWrite and DepthCompare are used when the pass has a depth
	// attachment. A zero DepthCompare means Less.
	DepthWrite   bool
	DepthCompare gputypes.CompareFunction
}

// PipelineState is a compiled shader program together with its fixed
// function state.
type PipelineState struct {
	lifecycle
	dev *Device

	rpHash   uint64
	topology gputypes.PrimitiveTopology
	vbSlots  int
	module   hal.ShaderModule
	layout   hal.PipelineLayout
	pipeline hal.RenderPipeline
}

// NewPipelineState returns an uninitialized pipeline state tracked by d.
func (d *Device) NewPipelineState() *PipelineState {
	ps := &PipelineState{dev: d}
	d.track(ps)
	return ps
}

// CreatePipelineState creates and initializes a pipeline state.
func (d *Device) CreatePipelineState(info PipelineStateInfo) *PipelineState {
	ps := d.NewPipelineState()
	_ = ps.Initialize(info)
	return ps
}

// Initialize compiles the shader and creates the backend pipeline.
func (ps *PipelineState) Initialize(info PipelineStateInfo) error {
	if err := ps.begin("PipelineState.Initialize", info.Label); err != nil {
		return err
	}
	rp := info.RenderPass
	if rp == nil || !rp.ready() {
		return ps.fail(ps.kind(), fmt.Errorf("pipeline render pass: %w", ErrNotReady))
	}
	if n := uint32(len(info.VertexBuffers)); n > ps.dev.caps.MaxVertexBuffers {
		return ps.fail(ps.kind(), fmt.Errorf("%w: %d vertex buffers, max %d",
			ErrUnsupported, n, ps.dev.caps.MaxVertexBuffers))
	}
	spirv, err := ps.dev.compileShader(info.Shader.WGSL)
	if err != nil {
		return ps.fail(ps.kind(), err)
	}

	ps.rpHash = rp.hash
	ps.topology = info.Primitive.Topology
	ps.vbSlots = len(info.VertexBuffers)
	return ps.dev.initialize(ps, func() error {
		return ps.create(info, rp.info, spirv)
	})
}

func (ps *PipelineState) create(info PipelineStateInfo, pass RenderPassInfo, spirv []uint32) error {
	dev := ps.dev.halDevice()
	vsEntry, fsEntry := info.Shader.entries()

	module, err := dev.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  info.Label,
		Source: hal.ShaderSource{WGSL: info.Shader.WGSL, SPIRV: spirv},
	})
	if err != nil {
		return fmt.Errorf("create shader module: %w", err)
	}

	layout, err := dev.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{Label: info.Label})
	if err != nil {
		dev.DestroyShaderModule(module)
		return fmt.Errorf("create pipeline layout: %w", err)
	}

	targets := make([]gputypes.ColorTargetState, len(pass.ColorAttachments))
	for i, c := range pass.ColorAttachments {
		targets[i] = gputypes.ColorTargetState{
			Format:    c.Format,
			Blend:     info.Blend,
			WriteMask: gputypes.ColorWriteMaskAll,
		}
	}

	var depth *hal.DepthStencilState
	if ds := pass.DepthStencil; ds != nil {
		compare := info.DepthCompare
		if compare == gputypes.CompareFunctionUndefined {
			compare = gputypes.CompareFunctionLess
		}
		depth = &hal.DepthStencilState{
			Format:            ds.Format,
			DepthWriteEnabled: info.DepthWrite,
			DepthCompare:      compare,
		}
	}

	ms := gputypes.DefaultMultisampleState()
	ms.Count = pass.sampleCount()

	desc := &hal.RenderPipelineDescriptor{
		Label:  info.Label,
		Layout: layout,
		Vertex: hal.VertexState{
			Module:     module,
			EntryPoint: vsEntry,
			Buffers:    info.VertexBuffers,
		},
		Primitive:    info.Primitive,
		DepthStencil: depth,
		Multisample:  ms,
	}
	if len(targets) > 0 {
		desc.Fragment = &hal.FragmentState{
			Module:     module,
			EntryPoint: fsEntry,
			Targets:    targets,
		}
	}

	pipeline, err := dev.CreateRenderPipeline(desc)
	if err != nil {
		dev.DestroyPipelineLayout(layout)
		dev.DestroyShaderModule(module)
		return fmt.Errorf("create render pipeline: %w", err)
	}

	ps.module, ps.layout, ps.pipeline = module, layout, pipeline
	return nil
}

// Destroy releases the pipeline. Safe to call more than once.
func (ps *PipelineState) Destroy() { ps.dev.destroy(ps) }

// RenderPassHash returns the hash of the render pass the pipeline was
// built against.
func (ps *PipelineState) RenderPassHash() uint64 { return ps.rpHash }

// Topology returns the primitive topology.
func (ps *PipelineState) Topology() gputypes.PrimitiveTopology { return ps.topology }

// Compatible reports whether the pipeline may be bound inside fb.
func (ps *PipelineState) Compatible(fb *Framebuffer) bool {
	return fb != nil && fb.renderPass != nil && fb.renderPass.hash == ps.rpHash
}

func (ps *PipelineState) kind() string { return "PipelineState" }

func (ps *PipelineState) release() {
	dev := ps.dev.halDevice()
	if ps.pipeline != nil {
		dev.DestroyRenderPipeline(ps.pipeline)
		ps.pipeline = nil
	}
	if ps.layout != nil {
		dev.DestroyPipelineLayout(ps.layout)
		ps.layout = nil
	}
	if ps.module != nil {
		dev.DestroyShaderModule(ps.module)
		ps.module = nil
	}
}
