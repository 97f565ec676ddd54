package gfx

import (
	"errors"
	"fmt"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
)

// Backend names registered by default, in probe order.
const (
	BackendVulkan = "vulkan"
	BackendMetal  = "metal"
	BackendDX12   = "dx12"
	BackendGL     = "gl"
	BackendEmpty  = "empty"

	// BackendProvider is the name used by WithDeviceProvider.
	BackendProvider = "provider"
)

// Backend errors.
var (
	// ErrBackendUnavailable is returned by Backend.Open when the backend
	// is not compiled in or has no adapters.
	ErrBackendUnavailable = errors.New("gfx: backend unavailable")
)

// Backend opens a logical device on one graphics API.
//
// Backends are the variants of one capability set: the Device never type
// switches on them, it only probes them in priority order and keeps the
// first Connection that opens.
type Backend interface {
	// Name returns the registry name (e.g. "vulkan", "empty").
	Name() string

	// Open creates a device and queue. It is called at most once per
	// NewDevice probe.
	Open(cfg BackendConfig) (*Connection, error)
}

// BackendConfig carries device options that backends need to open.
type BackendConfig struct {
	// Limits are the requested device limits.
	Limits gputypes.Limits

	// Debug requests validation layers where the backend has them.
	Debug bool
}

// Connection is an opened backend device.
type Connection struct {
	// Device is the logical device.
	Device hal.Device

	// Queue is the device queue.
	Queue hal.Queue

	// Adapter is the physical adapter. May be nil for provider backends.
	Adapter hal.Adapter

	// Info describes the adapter.
	Info gputypes.AdapterInfo

	// Limits are the limits the device was opened with.
	Limits gputypes.Limits

	// Downlevel reports missing features on lower-tier hardware.
	Downlevel hal.DownlevelCapabilities

	// Close releases the device, adapter and instance. May be nil.
	Close func()
}

// HALBackend returns a Backend that opens the best adapter of the given
// gogpu/wgpu HAL variant. The variant must be registered with the hal
// registry, which importing github.com/gogpu/wgpu/hal/allbackends does.
func HALBackend(name string, variant gputypes.Backend) Backend {
	return &halBackend{name: name, variant: variant}
}

type halBackend struct {
	name    string
	variant gputypes.Backend
}

func (b *halBackend) Name() string { return b.name }

func (b *halBackend) Open(cfg BackendConfig) (*Connection, error) {
	api, ok := hal.GetBackend(b.variant)
	if !ok {
		return nil, fmt.Errorf("%s: %w", b.name, ErrBackendUnavailable)
	}
	return openHAL(b.name, api, cfg)
}

// EmptyBackend returns the headless backend backed by hal/noop. It always
// opens, records nothing and completes every submission immediately.
func EmptyBackend() Backend {
	return emptyBackend{}
}

type emptyBackend struct{}

func (emptyBackend) Name() string { return BackendEmpty }

func (emptyBackend) Open(cfg BackendConfig) (*Connection, error) {
	return openHAL(BackendEmpty, noop.API{}, cfg)
}

// openHAL walks instance, adapter enumeration and device open for one API.
func openHAL(name string, api hal.Backend, cfg BackendConfig) (*Connection, error) {
	desc := &hal.InstanceDescriptor{
		Backends: gputypes.BackendsAll,
	}
	if cfg.Debug {
		desc.Flags = gputypes.InstanceFlagsDebug | gputypes.InstanceFlagsValidation
	}

	instance, err := api.CreateInstance(desc)
	if err != nil {
		return nil, fmt.Errorf("%s: create instance: %w", name, err)
	}

	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, fmt.Errorf("%s: no adapters: %w", name, ErrBackendUnavailable)
	}
	exposed := pickAdapter(adapters)

	limits := cfg.Limits
	if limits == (gputypes.Limits{}) {
		limits = exposed.Capabilities.Limits
	}

	opened, err := exposed.Adapter.Open(0, limits)
	if err != nil {
		for _, a := range adapters {
			a.Adapter.Destroy()
		}
		instance.Destroy()
		return nil, fmt.Errorf("%s: open %q: %w", name, exposed.Info.Name, err)
	}

	return &Connection{
		Device:    opened.Device,
		Queue:     opened.Queue,
		Adapter:   exposed.Adapter,
		Info:      exposed.Info,
		Limits:    limits,
		Downlevel: exposed.Capabilities.DownlevelCapabilities,
		Close: func() {
			opened.Device.Destroy()
			for _, a := range adapters {
				a.Adapter.Destroy()
			}
			instance.Destroy()
		},
	}, nil
}

// adapterRank orders device types: discrete first, CPU and unknown last.
func adapterRank(t gputypes.DeviceType) int {
	switch t {
	case gputypes.DeviceTypeDiscreteGPU:
		return 0
	case gputypes.DeviceTypeIntegratedGPU:
		return 1
	case gputypes.DeviceTypeVirtualGPU:
		return 2
	case gputypes.DeviceTypeCPU:
		return 3
	default:
		return 4
	}
}

func pickAdapter(adapters []hal.ExposedAdapter) hal.ExposedAdapter {
	best := adapters[0]
	for _, a := range adapters[1:] {
		if adapterRank(a.Info.DeviceType) < adapterRank(best.Info.DeviceType) {
			best = a
		}
	}
	return best
}

// ProviderBackend returns a Backend that adopts the device and queue of a
// platform DeviceProvider, such as a gogpu window. The provider must expose
// HalDevice() and HalQueue() returning hal.Device and hal.Queue. The
// connection does not own them: closing the gfx Device leaves them open.
func ProviderBackend(p gpucontext.DeviceProvider) Backend {
	return &providerBackend{provider: p}
}

type providerBackend struct {
	provider gpucontext.DeviceProvider
}

func (b *providerBackend) Name() string { return BackendProvider }

func (b *providerBackend) Open(cfg BackendConfig) (*Connection, error) {
	if b.provider == nil {
		return nil, fmt.Errorf("%s: nil provider: %w", BackendProvider, ErrBackendUnavailable)
	}

	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := b.provider.(halProvider)
	if !ok {
		return nil, fmt.Errorf("%s: provider does not expose HAL handles: %w",
			BackendProvider, ErrBackendUnavailable)
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("%s: HalDevice is not hal.Device: %w", BackendProvider, ErrBackendUnavailable)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%s: HalQueue is not hal.Queue: %w", BackendProvider, ErrBackendUnavailable)
	}

	adapter, _ := b.provider.Adapter().(hal.Adapter)

	limits := cfg.Limits
	if limits == (gputypes.Limits{}) {
		limits = gputypes.DefaultLimits()
	}

	pinfo := b.provider.AdapterInfo()
	return &Connection{
		Device:  device,
		Queue:   queue,
		Adapter: adapter,
		Info: gputypes.AdapterInfo{
			Name:       pinfo.Name,
			DeviceType: providerDeviceType(pinfo.Type),
		},
		Limits: limits,
	}, nil
}

func providerDeviceType(t gpucontext.AdapterType) gputypes.DeviceType {
	switch t {
	case gpucontext.AdapterTypeDiscrete:
		return gputypes.DeviceTypeDiscreteGPU
	case gpucontext.AdapterTypeIntegrated:
		return gputypes.DeviceTypeIntegratedGPU
	case gpucontext.AdapterTypeSoftware:
		return gputypes.DeviceTypeCPU
	default:
		return gputypes.DeviceTypeOther
	}
}
