package gfx

import (
	"slices"
	"sync"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
)

// BackendFactory creates a Backend for probing.
type BackendFactory func() Backend

// DefaultPriority is the probe order used when WithBackends is not given:
// high-capability native APIs first, the headless empty backend last.
var DefaultPriority = []string{BackendVulkan, BackendMetal, BackendDX12, BackendGL, BackendEmpty}

var (
	registryMu sync.RWMutex
	backends   = gpucontext.NewRegistry[Backend](gpucontext.WithPriority(DefaultPriority...))

	// extraNames keeps registration order for names outside DefaultPriority.
	extraNames []string
)

func init() {
	RegisterBackend(BackendVulkan, func() Backend { return HALBackend(BackendVulkan, gputypes.BackendVulkan) })
	RegisterBackend(BackendMetal, func() Backend { return HALBackend(BackendMetal, gputypes.BackendMetal) })
	RegisterBackend(BackendDX12, func() Backend { return HALBackend(BackendDX12, gputypes.BackendDX12) })
	RegisterBackend(BackendGL, func() Backend { return HALBackend(BackendGL, gputypes.BackendGL) })
	RegisterBackend(BackendEmpty, EmptyBackend)
}

// RegisterBackend registers a backend factory under name.
// An existing registration with the same name is replaced.
func RegisterBackend(name string, factory BackendFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	backends.Register(name, factory)
	if !slices.Contains(DefaultPriority, name) && !slices.Contains(extraNames, name) {
		extraNames = append(extraNames, name)
	}
}

// UnregisterBackend removes a backend from the registry.
// This is useful for testing.
func UnregisterBackend(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	backends.Unregister(name)
	extraNames = slices.DeleteFunc(extraNames, func(n string) bool { return n == name })
}

// IsRegistered reports whether a backend with the given name is registered.
func IsRegistered(name string) bool {
	return backends.Has(name)
}

// Backends returns registered backend names in default probe order.
// Names outside DefaultPriority follow in registration order.
func Backends() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, backends.Count())
	for _, name := range DefaultPriority {
		if backends.Has(name) {
			names = append(names, name)
		}
	}
	for _, name := range extraNames {
		if backends.Has(name) {
			names = append(names, name)
		}
	}
	return names
}

// lookupBackend instantiates a registered backend. Returns nil if absent.
func lookupBackend(name string) Backend {
	return backends.Get(name)
}
