package gfx

import "sync/atomic"

// Status is the lifecycle state of a GPU resource.
type Status uint32

const (
	// StatusUnready is the state before Initialize and after Destroy.
	StatusUnready Status = iota

	// StatusSuccess means the resource is initialized and may be used.
	StatusSuccess

	// StatusFailed means Initialize failed. The state is terminal.
	StatusFailed
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusUnready:
		return "UNREADY"
	case StatusSuccess:
		return "SUCCESS"
	case StatusFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// lifecycle is embedded by every resource. Reads are lock-free so that
// binding does not contend with creation on the device mutex.
type lifecycle struct {
	id    uint64
	label string

	status  atomic.Uint32
	started atomic.Bool

	// lastSubmit is the highest submission index that referenced the
	// resource. Destroy defers the backend release until it completes.
	lastSubmit atomic.Uint64

	// err is written once before status is published as StatusFailed.
	err error
}

// Status returns the current lifecycle state.
func (l *lifecycle) Status() Status { return Status(l.status.Load()) }

// Label returns the debug label given at initialization.
func (l *lifecycle) Label() string { return l.label }

// Err returns the initialization failure, or nil.
func (l *lifecycle) Err() error {
	if l.Status() != StatusFailed {
		return nil
	}
	return l.err
}

func (l *lifecycle) life() *lifecycle { return l }

func (l *lifecycle) ready() bool { return l.Status() == StatusSuccess }

// begin claims the single Initialize call.
func (l *lifecycle) begin(op, label string) error {
	if !l.started.CompareAndSwap(false, true) {
		return misuse(op, nil, "already initialized (status %s)", l.Status())
	}
	l.label = label
	return nil
}

func (l *lifecycle) succeed() {
	l.status.Store(uint32(StatusSuccess))
}

// fail moves the resource to StatusFailed and returns the stored error.
func (l *lifecycle) fail(kind string, cause error) error {
	err := &InitError{Kind: kind, Label: l.label, Err: cause}
	l.err = err
	l.status.Store(uint32(StatusFailed))
	Logger().Warn("gfx: resource initialization failed",
		"kind", kind, "label", l.label, "err", cause)
	return err
}

// retire moves SUCCESS to the terminal UNREADY state. It reports false
// when there is nothing to release.
func (l *lifecycle) retire() bool {
	return l.status.CompareAndSwap(uint32(StatusSuccess), uint32(StatusUnready))
}

func (l *lifecycle) markSubmitted(index uint64) {
	for {
		cur := l.lastSubmit.Load()
		if index <= cur || l.lastSubmit.CompareAndSwap(cur, index) {
			return
		}
	}
}

// resource is the device-side view of every object the device tracks.
type resource interface {
	Status() Status
	Label() string
	life() *lifecycle
	kind() string

	// release frees backend handles. Called at most once, with the
	// device mutex held.
	release()
}
