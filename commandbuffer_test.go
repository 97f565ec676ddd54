package gfx

import (
	"errors"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

func TestCommandBufferStateMachine(t *testing.T) {
	dev := newTestDevice(t)
	tg := newTarget(t, dev)

	cb := recordTriangle(t, dev, tg)
	if cb.State() != CommandBufferExecutable {
		t.Fatalf("State() = %s, want Executable", cb.State())
	}
	if cb.DrawCalls() != 1 || cb.Triangles() != 1 {
		t.Errorf("draws/triangles = %d/%d, want 1/1", cb.DrawCalls(), cb.Triangles())
	}

	if err := dev.Queue().Submit([]*CommandBuffer{cb}, nil); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if cb.State() != CommandBufferPending {
		t.Fatalf("State() = %s, want Pending", cb.State())
	}
	if err := cb.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if cb.State() != CommandBufferInitial || cb.DrawCalls() != 0 {
		t.Errorf("after Reset: state %s, draws %d", cb.State(), cb.DrawCalls())
	}
	if err := cb.Begin(); err != nil {
		t.Errorf("Begin after Reset: %v", err)
	}
}

func TestCommandBufferMisuse(t *testing.T) {
	if DebugAssertions {
		t.Skip("misuse panics in debug builds")
	}
	dev := newTestDevice(t)
	tg := newTarget(t, dev)
	copyBuf := func(size uint64) *Buffer {
		return dev.CreateBuffer(BufferInfo{Size: size, Usage: gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst})
	}

	otherPass := dev.CreateRenderPass(RenderPassInfo{ColorAttachments: []ColorAttachment{{
		Format: gputypes.TextureFormatRGBA16Float, LoadOp: gputypes.LoadOpLoad, StoreOp: gputypes.StoreOpStore,
	}}})
	otherPipeline := dev.CreatePipelineState(PipelineStateInfo{Shader: ShaderSource{WGSL: triangleWGSL}, RenderPass: otherPass})
	failed := dev.CreateBuffer(BufferInfo{Size: 0, Usage: gputypes.BufferUsageVertex})
	destroyed := dev.CreateBuffer(BufferInfo{Size: 16, Usage: gputypes.BufferUsageVertex})
	destroyed.Destroy()

	begin := func(cb *CommandBuffer) error { return cb.Begin() }
	inPass := func(cb *CommandBuffer) error {
		if err := cb.Begin(); err != nil {
			return err
		}
		return cb.BeginRenderPass(tg.fb, ClearValues{})
	}
	withPipeline := func(cb *CommandBuffer) error {
		if err := inPass(cb); err != nil {
			return err
		}
		return cb.BindPipelineState(tg.pipeline)
	}

	tests := []struct {
		name  string
		setup func(*CommandBuffer) error
		op    func(*CommandBuffer) error
		also  error
	}{
		{"record before Begin", nil, func(cb *CommandBuffer) error { return cb.BeginRenderPass(tg.fb, ClearValues{}) }, nil},
		{"Begin twice", begin, func(cb *CommandBuffer) error { return cb.Begin() }, nil},
		{"End inside pass", inPass, func(cb *CommandBuffer) error { return cb.End() }, nil},
		{"nested pass", inPass, func(cb *CommandBuffer) error { return cb.BeginRenderPass(tg.fb, ClearValues{}) }, nil},
		{"EndRenderPass outside pass", begin, func(cb *CommandBuffer) error { return cb.EndRenderPass() }, nil},
		{"draw outside pass", begin, func(cb *CommandBuffer) error { return cb.Draw(3, 1, 0, 0) }, nil},
		{"draw without pipeline", inPass, func(cb *CommandBuffer) error { return cb.Draw(3, 1, 0, 0) }, nil},
		{"indexed draw without index buffer", withPipeline, func(cb *CommandBuffer) error { return cb.DrawIndexed(3, 1, 0, 0, 0) }, nil},
		{"incompatible pipeline", inPass, func(cb *CommandBuffer) error { return cb.BindPipelineState(otherPipeline) }, ErrIncompatible},
		{"bind failed buffer", inPass, func(cb *CommandBuffer) error { return cb.BindVertexBuffer(0, failed, 0) }, ErrNotReady},
		{"bind destroyed buffer", inPass, func(cb *CommandBuffer) error { return cb.BindVertexBuffer(0, destroyed, 0) }, ErrNotReady},
		{"bind index buffer as vertex", inPass, func(cb *CommandBuffer) error { return cb.BindVertexBuffer(0, tg.indices, 0) }, nil},
		{"vertex slot out of range", inPass, func(cb *CommandBuffer) error {
			return cb.BindVertexBuffer(dev.Capabilities().MaxVertexBuffers, tg.vertices, 0)
		}, nil},
		{"barrier inside pass", inPass, func(cb *CommandBuffer) error {
			return cb.TextureBarrier(tg.color, gputypes.TextureUsageRenderAttachment, gputypes.TextureUsageCopySrc)
		}, nil},
		{"copy inside pass", inPass, func(cb *CommandBuffer) error { return cb.CopyBuffer(copyBuf(64), 0, copyBuf(64), 0, 16) }, nil},
		{"copy out of range", begin, func(cb *CommandBuffer) error { return cb.CopyBuffer(copyBuf(64), 32, copyBuf(64), 0, 64) }, nil},
		{"copy without usage", begin, func(cb *CommandBuffer) error { return cb.CopyBuffer(tg.vertices, 0, copyBuf(64), 0, 16) }, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cb := dev.CreateCommandBuffer(CommandBufferInfo{Label: tt.name})
			if tt.setup != nil {
				if err := tt.setup(cb); err != nil {
					t.Fatalf("setup: %v", err)
				}
			}
			err := tt.op(cb)
			var me *MisuseError
			if !errors.As(err, &me) {
				t.Fatalf("err = %v, want *MisuseError", err)
			}
			if tt.also != nil && !errors.Is(err, tt.also) {
				t.Errorf("err = %v, want it to match %v", err, tt.also)
			}
		})
	}
}

func TestCommandBufferFailedResourceNeverBinds(t *testing.T) {
	if DebugAssertions {
		t.Skip("misuse panics in debug builds")
	}
	dev := newTestDevice(t)
	tg := newTarget(t, dev)
	badPipeline := dev.CreatePipelineState(PipelineStateInfo{Shader: ShaderSource{WGSL: "not wgsl"}, RenderPass: tg.pass})
	badFB := dev.CreateFramebuffer(FramebufferInfo{RenderPass: tg.pass})

	cb := dev.CreateCommandBuffer(CommandBufferInfo{})
	if err := cb.Begin(); err != nil {
		t.Fatal(err)
	}
	if err := cb.BeginRenderPass(badFB, ClearValues{}); !errors.Is(err, ErrNotReady) {
		t.Errorf("BeginRenderPass(failed fb) = %v, want ErrNotReady", err)
	}
	if err := cb.BeginRenderPass(tg.fb, ClearValues{}); err != nil {
		t.Fatal(err)
	}
	if err := cb.BindPipelineState(badPipeline); !errors.Is(err, ErrNotReady) {
		t.Errorf("BindPipelineState(failed) = %v, want ErrNotReady", err)
	}
}

func TestCommandBufferTriangleCounting(t *testing.T) {
	tests := []struct {
		topology  gputypes.PrimitiveTopology
		vertices  uint32
		instances uint32
		want      uint64
	}{
		{gputypes.PrimitiveTopologyTriangleList, 9, 1, 3},
		{gputypes.PrimitiveTopologyTriangleList, 8, 2, 4},
		{gputypes.PrimitiveTopologyTriangleStrip, 5, 1, 3},
		{gputypes.PrimitiveTopologyTriangleStrip, 2, 4, 0},
		{gputypes.PrimitiveTopologyLineList, 6, 1, 0},
		{gputypes.PrimitiveTopologyPointList, 6, 1, 0},
	}
	for _, tt := range tests {
		if got := primitives(tt.topology, tt.vertices, tt.instances); got != tt.want {
			t.Errorf("primitives(%d, %d, %d) = %d, want %d", tt.topology, tt.vertices, tt.instances, got, tt.want)
		}
	}
}

func TestCommandBufferIndexedDrawAndCopy(t *testing.T) {
	dev := newTestDevice(t)
	tg := newTarget(t, dev)
	src := dev.CreateBuffer(BufferInfo{Size: 128, Usage: gputypes.BufferUsageCopySrc})

	cb := dev.CreateCommandBuffer(CommandBufferInfo{Label: "indexed"})
	steps := []func() error{
		cb.Begin,
		func() error { return cb.CopyBuffer(src, 0, tg.vertices, 0, 128) },
		func() error {
			return cb.BufferBarrier(tg.vertices, gputypes.BufferUsageCopyDst, gputypes.BufferUsageVertex)
		},
		func() error { return cb.BeginRenderPass(tg.fb, ClearValues{}) },
		func() error { return cb.BindPipelineState(tg.pipeline) },
		func() error { return cb.BindVertexBuffer(0, tg.vertices, 0) },
		func() error { return cb.BindIndexBuffer(tg.indices, gputypes.IndexFormatUint16, 0) },
		func() error { return cb.SetViewport(Viewport{Width: 64, Height: 64, MaxDepth: 1}) },
		func() error { return cb.SetScissor(Rect{Width: 64, Height: 64}) },
		func() error { return cb.DrawIndexed(6, 2, 0, 0, 0) },
		cb.EndRenderPass,
		func() error {
			return cb.TextureBarrier(tg.color, gputypes.TextureUsageRenderAttachment, gputypes.TextureUsageCopySrc)
		},
		cb.End,
	}
	for i, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
	if cb.DrawCalls() != 1 || cb.Triangles() != 4 {
		t.Errorf("draws/triangles = %d/%d, want 1/4", cb.DrawCalls(), cb.Triangles())
	}
}

func TestCommandBufferEndAfterResourceDestroyed(t *testing.T) {
	if DebugAssertions {
		t.Skip("misuse panics in debug builds")
	}
	dev := newTestDevice(t)
	tg := newTarget(t, dev)

	cb := dev.CreateCommandBuffer(CommandBufferInfo{})
	if err := cb.Begin(); err != nil {
		t.Fatal(err)
	}
	if err := cb.BeginRenderPass(tg.fb, ClearValues{}); err != nil {
		t.Fatal(err)
	}
	if err := cb.EndRenderPass(); err != nil {
		t.Fatal(err)
	}
	tg.fb.Destroy()
	if err := cb.End(); !errors.Is(err, ErrNotReady) {
		t.Errorf("End with destroyed framebuffer = %v, want ErrNotReady", err)
	}
}

var errEncode = errors.New("encoding failed")

// faultyEncoder fails BeginEncoding or EndEncoding and records cleanup.
type faultyEncoder struct {
	hal.CommandEncoder
	failBegin bool
	discarded int
	destroyed int
}

func (e *faultyEncoder) BeginEncoding(string) error {
	if e.failBegin {
		return errEncode
	}
	return nil
}

func (e *faultyEncoder) EndEncoding() (hal.CommandBuffer, error) { return nil, errEncode }

func (e *faultyEncoder) DiscardEncoding() { e.discarded++ }

func (e *faultyEncoder) Destroy() { e.destroyed++ }

type faultyEncoderDevice struct {
	hal.Device
	enc *faultyEncoder
}

func (d faultyEncoderDevice) CreateCommandEncoder(*hal.CommandEncoderDescriptor) (hal.CommandEncoder, error) {
	return d.enc, nil
}

// faultyEncoderBackend is the empty backend with a failing encoder.
type faultyEncoderBackend struct{ enc *faultyEncoder }

func (faultyEncoderBackend) Name() string { return "faulty-encoder" }

func (b faultyEncoderBackend) Open(cfg BackendConfig) (*Connection, error) {
	conn, err := EmptyBackend().Open(cfg)
	if err != nil {
		return nil, err
	}
	conn.Device = faultyEncoderDevice{Device: conn.Device, enc: b.enc}
	return conn, nil
}

func TestCommandBufferEndDiscardsFailedEncoder(t *testing.T) {
	tests := []struct {
		name      string
		failBegin bool
	}{
		{"begin encoding", true},
		{"end encoding", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc := &faultyEncoder{failBegin: tt.failBegin}
			dev, err := NewDevice(WithBackend(faultyEncoderBackend{enc: enc}), WithBackends())
			if err != nil {
				t.Fatalf("NewDevice: %v", err)
			}
			t.Cleanup(dev.Destroy)

			cb := dev.CreateCommandBuffer(CommandBufferInfo{Label: "faulty"})
			if err := cb.Begin(); err != nil {
				t.Fatal(err)
			}
			if err := cb.End(); !errors.Is(err, errEncode) {
				t.Fatalf("End = %v, want %v", err, errEncode)
			}
			if enc.discarded != 1 || enc.destroyed != 1 {
				t.Errorf("encoder discarded %d, destroyed %d times, want 1 and 1", enc.discarded, enc.destroyed)
			}
			if cb.State() != CommandBufferRecording {
				t.Errorf("State() = %s, want Recording", cb.State())
			}
			if err := cb.Reset(); err != nil {
				t.Errorf("Reset after failed End: %v", err)
			}
		})
	}
}
