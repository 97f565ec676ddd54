package gfx

import (
	"errors"
	"fmt"
)

// Device and resource errors.
var (
	// ErrNoBackend is returned by NewDevice when every candidate backend
	// failed to open.
	ErrNoBackend = errors.New("gfx: no usable backend")

	// ErrInitialization marks a resource whose backend setup failed.
	// The resource is left in StatusFailed.
	ErrInitialization = errors.New("gfx: initialization failed")

	// ErrUnsupported is returned when a descriptor asks for more than the
	// device capabilities allow.
	ErrUnsupported = errors.New("gfx: unsupported by device")

	// ErrDeviceDestroyed is returned when creating objects on a destroyed device.
	ErrDeviceDestroyed = errors.New("gfx: device destroyed")

	// ErrMisuse is matched by every *MisuseError.
	ErrMisuse = errors.New("gfx: misuse")

	// ErrNotReady is returned when a resource that is not in StatusSuccess
	// is bound or submitted.
	ErrNotReady = errors.New("gfx: resource not ready")

	// ErrIncompatible is returned when a pipeline state is bound inside a
	// render pass with a different attachment layout.
	ErrIncompatible = errors.New("gfx: incompatible render pass")

	// ErrInFlight is returned when resetting a command buffer whose
	// submission has not completed.
	ErrInFlight = errors.New("gfx: command buffer in flight")
)

// MisuseError reports a programmer error: double initialization, use after
// destroy, binding a resource that is not ready, or recording commands out
// of order.
//
// In builds with the gfxdebug tag, misuse panics with a *MisuseError instead
// of returning it.
type MisuseError struct {
	// Op is the operation that was misused, e.g. "CommandBuffer.Draw".
	Op string

	// Reason describes what was wrong.
	Reason string

	// Err is an optional more specific sentinel (ErrNotReady, ErrIncompatible).
	Err error
}

func (e *MisuseError) Error() string {
	return fmt.Sprintf("gfx: %s: %s", e.Op, e.Reason)
}

// Unwrap returns ErrMisuse and the specific cause, if any.
func (e *MisuseError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrMisuse, e.Err}
	}
	return []error{ErrMisuse}
}

// misuse builds a MisuseError and asserts it in debug builds.
func misuse(op string, cause error, format string, args ...any) error {
	err := &MisuseError{Op: op, Reason: fmt.Sprintf(format, args...), Err: cause}
	assertMisuse(err)
	return err
}

// InitError is stored on a resource whose Initialize failed.
type InitError struct {
	// Kind is the resource type, e.g. "Texture".
	Kind string

	// Label is the resource debug label.
	Label string

	// Err is the underlying cause.
	Err error
}

func (e *InitError) Error() string {
	if e.Label != "" {
		return fmt.Sprintf("gfx: %s %q: initialization failed: %v", e.Kind, e.Label, e.Err)
	}
	return fmt.Sprintf("gfx: %s: initialization failed: %v", e.Kind, e.Err)
}

// Unwrap returns ErrInitialization and the cause.
func (e *InitError) Unwrap() []error {
	return []error{ErrInitialization, e.Err}
}
