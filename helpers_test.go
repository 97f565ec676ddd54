package gfx

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

const triangleWGSL = `
@vertex
fn vs_main(@location(0) pos: vec2<f32>) -> @builtin(position) vec4<f32> {
    return vec4<f32>(pos, 0.0, 1.0);
}

@fragment
fn fs_main() -> @location(0) vec4<f32> {
    return vec4<f32>(1.0, 0.0, 0.0, 1.0);
}
`

var errProbe = errors.New("probe failed")

// failingBackend never opens.
type failingBackend struct{ name string }

func (b failingBackend) Name() string { return b.name }

func (b failingBackend) Open(BackendConfig) (*Connection, error) { return nil, errProbe }

// stallQueue completes submissions only when the test says so.
type stallQueue struct {
	hal.Queue
	submitted atomic.Uint64
	completed atomic.Uint64
}

func (q *stallQueue) Submit([]hal.CommandBuffer) (uint64, error) { return q.submitted.Add(1), nil }

func (q *stallQueue) PollCompleted() uint64 { return q.completed.Load() }

func (q *stallQueue) complete() { q.completed.Store(q.submitted.Load()) }

// stallBackend is the empty backend with a manually completed queue.
type stallBackend struct{ queue *stallQueue }

func (stallBackend) Name() string { return "stall" }

func (b stallBackend) Open(cfg BackendConfig) (*Connection, error) {
	conn, err := EmptyBackend().Open(cfg)
	if err != nil {
		return nil, err
	}
	b.queue.Queue = conn.Queue
	conn.Queue = b.queue
	return conn, nil
}

func newTestDevice(t *testing.T, opts ...DeviceOption) *Device {
	t.Helper()
	opts = append([]DeviceOption{WithBackends(BackendEmpty)}, opts...)
	dev, err := NewDevice(opts...)
	if err != nil {
		t.Fatalf("NewDevice: %v", err)
	}
	t.Cleanup(dev.Destroy)
	return dev
}

func newStallDevice(t *testing.T) (*Device, *stallQueue) {
	t.Helper()
	q := &stallQueue{}
	dev, err := NewDevice(WithBackend(stallBackend{queue: q}), WithBackends())
	if err != nil {
		t.Fatalf("NewDevice: %v", err)
	}
	t.Cleanup(dev.Destroy)
	return dev, q
}

func colorPassInfo(label string) RenderPassInfo {
	return RenderPassInfo{
		Label: label,
		ColorAttachments: []ColorAttachment{{
			Format:  gputypes.TextureFormatRGBA8Unorm,
			LoadOp:  gputypes.LoadOpClear,
			StoreOp: gputypes.StoreOpStore,
		}},
	}
}

// target is a ready render pass, framebuffer and pipeline.
type target struct {
	pass     *RenderPass
	color    *Texture
	fb       *Framebuffer
	pipeline *PipelineState
	vertices *Buffer
	indices  *Buffer
}

func newTarget(t *testing.T, dev *Device) *target {
	t.Helper()
	tg := &target{}
	tg.pass = dev.CreateRenderPass(colorPassInfo("main"))
	tg.color = dev.CreateTexture(TextureInfo{
		Label:  "color",
		Width:  64,
		Height: 64,
		Format: gputypes.TextureFormatRGBA8Unorm,
		Usage:  gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopySrc,
	})
	tg.fb = dev.CreateFramebuffer(FramebufferInfo{
		Label:         "main",
		RenderPass:    tg.pass,
		ColorTextures: []*Texture{tg.color},
	})
	tg.pipeline = dev.CreatePipelineState(PipelineStateInfo{
		Label:      "triangle",
		Shader:     ShaderSource{WGSL: triangleWGSL},
		RenderPass: tg.pass,
		VertexBuffers: []gputypes.VertexBufferLayout{{
			ArrayStride: 8,
			StepMode:    gputypes.VertexStepModeVertex,
			Attributes: []gputypes.VertexAttribute{{
				Format:         gputypes.VertexFormatFloat32x2,
				ShaderLocation: 0,
			}},
		}},
	})
	tg.vertices = dev.CreateBuffer(BufferInfo{Label: "vb", Size: 1024, Usage: gputypes.BufferUsageVertex | gputypes.BufferUsageCopyDst})
	tg.indices = dev.CreateBuffer(BufferInfo{Label: "ib", Size: 256, Usage: gputypes.BufferUsageIndex})

	for name, r := range map[string]resource{
		"pass": tg.pass, "color": tg.color, "fb": tg.fb,
		"pipeline": tg.pipeline, "vertices": tg.vertices, "indices": tg.indices,
	} {
		if r.Status() != StatusSuccess {
			t.Fatalf("%s status = %s, err = %v", name, r.Status(), r.life().Err())
		}
	}
	return tg
}

// recordTriangle records one draw of three vertices into a fresh buffer.
func recordTriangle(t *testing.T, dev *Device, tg *target) *CommandBuffer {
	t.Helper()
	cb := dev.CreateCommandBuffer(CommandBufferInfo{Label: "frame"})
	steps := []func() error{
		cb.Begin,
		func() error { return cb.BeginRenderPass(tg.fb, ClearValues{Colors: []gputypes.Color{{A: 1}}}) },
		func() error { return cb.BindPipelineState(tg.pipeline) },
		func() error { return cb.BindVertexBuffer(0, tg.vertices, 0) },
		func() error { return cb.Draw(3, 1, 0, 0) },
		cb.EndRenderPass,
		cb.End,
	}
	for i, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
	return cb
}
