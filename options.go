package gfx

import (
	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
)

// DeviceOption configures a Device during creation.
//
// Example:
//
//	// Headless device for tests and tools
//	dev, err := gfx.NewDevice(gfx.WithBackends(gfx.BackendEmpty))
//
//	// Adopt the device of a platform window
//	dev, err := gfx.NewDevice(gfx.WithDeviceProvider(app))
type DeviceOption func(*deviceOptions)

// deviceOptions holds optional configuration for Device creation.
type deviceOptions struct {
	label           string
	priority        []string
	explicit        []Backend
	limits          gputypes.Limits
	debug           bool
	shaderCacheSize int
}

// defaultDeviceOptions returns the default device options.
func defaultDeviceOptions() deviceOptions {
	return deviceOptions{
		label:           "gfx",
		shaderCacheSize: DefaultShaderCacheSize,
	}
}

// WithBackends sets the probe order by registry name. Backends not listed
// are never tried. Unknown names are skipped with a warning. With no names,
// only backends given through WithBackend are probed.
func WithBackends(names ...string) DeviceOption {
	return func(o *deviceOptions) {
		o.priority = append([]string{}, names...)
	}
}

// WithBackend adds an explicit backend variant that is probed before any
// registered backend. Multiple WithBackend options are probed in order.
func WithBackend(b Backend) DeviceOption {
	return func(o *deviceOptions) {
		if b != nil {
			o.explicit = append(o.explicit, b)
		}
	}
}

// WithDeviceProvider adopts the device and queue of a platform provider.
// The provider is probed first; registered backends remain as fallbacks.
func WithDeviceProvider(p gpucontext.DeviceProvider) DeviceOption {
	return WithBackend(ProviderBackend(p))
}

// WithLimits requests specific device limits. The zero value requests the
// adapter's reported limits.
func WithLimits(l gputypes.Limits) DeviceOption {
	return func(o *deviceOptions) {
		o.limits = l
	}
}

// WithDebug enables backend validation layers where available.
func WithDebug(enabled bool) DeviceOption {
	return func(o *deviceOptions) {
		o.debug = enabled
	}
}

// WithLabel sets the device debug label used in log records.
func WithLabel(label string) DeviceOption {
	return func(o *deviceOptions) {
		o.label = label
	}
}

// WithShaderCacheSize sets how many compiled shaders the device keeps.
// Values <= 0 keep the default.
func WithShaderCacheSize(n int) DeviceOption {
	return func(o *deviceOptions) {
		if n > 0 {
			o.shaderCacheSize = n
		}
	}
}
