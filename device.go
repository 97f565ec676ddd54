package gfx

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/gogpu/gfx/internal/cache"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// DefaultShaderCacheSize is the number of compiled shaders a device keeps.
const DefaultShaderCacheSize = 64

// Device is the single entry point for creating and destroying GPU objects.
//
// Creation and destruction are serialized by the device mutex. Reading a
// resource's status, which is all binding needs, takes no lock.
//
// A Device is passed explicitly to the code that needs it; gfx keeps no
// global device.
type Device struct {
	mu sync.Mutex

	label   string
	backend string
	conn    *Connection
	caps    Capabilities
	queue   *Queue
	shaders *cache.Cache[uint64, []uint32]

	resources map[uint64]resource
	nextID    uint64
	deferred  []deferredRelease
	destroyed bool
}

// deferredRelease is a destroyed resource still referenced by a submission.
type deferredRelease struct {
	index uint64
	res   resource
}

// NewDevice probes backends in priority order and opens the first one that
// succeeds. Each candidate is tried exactly once; a failure is logged and
// the next candidate is probed.
//
// If every candidate fails, NewDevice returns an error matching ErrNoBackend
// that joins every probe error. No partially opened device is returned.
func NewDevice(opts ...DeviceOption) (*Device, error) {
	o := defaultDeviceOptions()
	for _, opt := range opts {
		opt(&o)
	}

	cfg := BackendConfig{Limits: o.limits, Debug: o.debug}
	var errs []error
	for _, b := range o.candidates() {
		conn, err := b.Open(cfg)
		if err != nil {
			Logger().Warn("gfx: backend probe failed", "backend", b.Name(), "err", err)
			errs = append(errs, err)
			continue
		}
		d := newDevice(b.Name(), conn, o)
		Logger().Info("gfx: device created",
			"label", d.label,
			"backend", d.backend,
			"adapter", conn.Info.Name,
			"maxTexture", d.caps.MaxTextureSize)
		return d, nil
	}

	if len(errs) == 0 {
		return nil, fmt.Errorf("%w: no candidate backends", ErrNoBackend)
	}
	return nil, fmt.Errorf("%w: %w", ErrNoBackend, errors.Join(errs...))
}

// MustNewDevice is like NewDevice but panics on error.
func MustNewDevice(opts ...DeviceOption) *Device {
	d, err := NewDevice(opts...)
	if err != nil {
		panic(err)
	}
	return d
}

// candidates returns explicit backends followed by registry lookups.
func (o *deviceOptions) candidates() []Backend {
	names := o.priority
	if names == nil {
		names = Backends()
	}
	out := slices.Clone(o.explicit)
	for _, name := range names {
		b := lookupBackend(name)
		if b == nil {
			Logger().Warn("gfx: unknown backend in priority list", "backend", name)
			continue
		}
		out = append(out, b)
	}
	return out
}

func newDevice(name string, conn *Connection, o deviceOptions) *Device {
	d := &Device{
		label:     o.label,
		backend:   name,
		conn:      conn,
		caps:      probeCapabilities(name, conn),
		shaders:   cache.New[uint64, []uint32](o.shaderCacheSize),
		resources: make(map[uint64]resource),
	}
	d.queue = &Queue{dev: d, hal: conn.Queue}
	return d
}

// Label returns the device debug label.
func (d *Device) Label() string { return d.label }

// Backend returns the registry name of the selected backend.
func (d *Device) Backend() string { return d.backend }

// Capabilities returns what the selected backend supports.
func (d *Device) Capabilities() Capabilities { return d.caps }

// Queue returns the device's queue.
func (d *Device) Queue() *Queue { return d.queue }

// HalDevice returns the backend device for interop with gogpu/wgpu code.
// It returns any so the method set matches the gogpu provider convention.
func (d *Device) HalDevice() any { return d.conn.Device }

// HalQueue returns the backend queue for interop with gogpu/wgpu code.
func (d *Device) HalQueue() any { return d.conn.Queue }

// ResourceCount returns the number of live resources the device tracks.
func (d *Device) ResourceCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.resources)
}

// supportsFormat checks a format against probed capabilities, asking the
// adapter directly for formats outside the probed set.
func (d *Device) supportsFormat(f gputypes.TextureFormat, u FormatUsage) bool {
	if _, ok := d.caps.formats[f]; ok || d.conn.Adapter == nil {
		return d.caps.SupportsFormat(f, u)
	}
	got := formatUsage(d.conn.Adapter.TextureFormatCapabilities(f).Flags)
	return got&u == u
}

// track registers a new resource and assigns its id.
func (d *Device) track(r resource) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.destroyed {
		return
	}
	d.nextID++
	r.life().id = d.nextID
	d.resources[d.nextID] = r
}

// initialize runs fn under the device mutex. fn performs backend creation.
// A failure moves the resource to StatusFailed.
func (d *Device) initialize(r resource, fn func() error) error {
	if err := d.withLock(fn); err != nil {
		return r.life().fail(r.kind(), err)
	}
	r.life().succeed()
	return nil
}

// withLock runs fn under the device mutex unless the device is destroyed.
func (d *Device) withLock(fn func() error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.destroyed {
		return ErrDeviceDestroyed
	}
	return fn()
}

// destroy retires r and releases its backend objects, now or once the
// last submission that referenced it completes.
func (d *Device) destroy(r resource) {
	lc := r.life()
	idx, completed, ok := d.queue.retire(lc)

	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.resources, lc.id)
	if !ok {
		// Failed or never initialized: no backend objects to release.
		return
	}

	if idx > completed && !d.destroyed {
		d.deferred = append(d.deferred, deferredRelease{index: idx, res: r})
		Logger().Debug("gfx: release deferred until submission completes",
			"kind", r.kind(), "label", r.Label(), "submission", idx)
		return
	}
	r.release()
}

// Maintain releases destroyed resources whose last submission completed.
// Queue.Submit, Queue.BeginFrame and Fence.Wait call it; applications that
// do neither for a long time may call it directly.
func (d *Device) Maintain() {
	completed := d.queue.Completed()

	d.mu.Lock()
	defer d.mu.Unlock()

	kept := d.deferred[:0]
	for _, dr := range d.deferred {
		if dr.index <= completed {
			dr.res.release()
			continue
		}
		kept = append(kept, dr)
	}
	clear(d.deferred[len(kept):])
	d.deferred = kept
}

// Destroy waits for the GPU to finish, destroys every live resource in
// reverse creation order and closes the backend. Destroy is idempotent.
func (d *Device) Destroy() {
	d.mu.Lock()
	if d.destroyed {
		d.mu.Unlock()
		return
	}
	d.destroyed = true

	ids := make([]uint64, 0, len(d.resources))
	for id := range d.resources {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	slices.Reverse(ids)
	live := make([]resource, 0, len(ids))
	for _, id := range ids {
		live = append(live, d.resources[id])
	}
	d.resources = make(map[uint64]resource)
	deferred := d.deferred
	d.deferred = nil
	d.mu.Unlock()

	if err := d.conn.Device.WaitIdle(); err != nil {
		Logger().Warn("gfx: wait idle before destroy", "err", err)
	}

	d.mu.Lock()
	for _, dr := range deferred {
		dr.res.release()
	}
	for _, r := range live {
		if r.life().retire() {
			r.release()
		}
	}
	d.mu.Unlock()

	d.shaders.Clear()
	if d.conn.Close != nil {
		d.conn.Close()
	}
	Logger().Info("gfx: device destroyed", "label", d.label, "released", len(live)+len(deferred))
}

// halDevice returns the backend device. Callers hold d.mu.
func (d *Device) halDevice() hal.Device { return d.conn.Device }
