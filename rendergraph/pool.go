// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rendergraph

import (
	"container/list"
	"fmt"
	"sync"

	"github.com/gogpu/gfx"
)

// Transient pool limits.
const (
	// DefaultTransientBudget is the default size of the transient pool (256 MB).
	DefaultTransientBudget = 256 << 20

	// MinTransientBudget is the smallest accepted budget (16 MB).
	MinTransientBudget = 16 << 20
)

// PoolStats describes the transient pool.
type PoolStats struct {
	// BudgetBytes is the pool's memory budget.
	BudgetBytes uint64

	// UsedBytes is the estimated size of every pooled object.
	UsedBytes uint64

	// Objects is the number of pooled textures and buffers.
	Objects int

	// InUse is the number of objects leased by the frame being recorded.
	InUse int

	Created   uint64
	Reused    uint64
	Evictions uint64
}

// Utilization is UsedBytes as a fraction of the budget.
func (s PoolStats) Utilization() float64 {
	if s.BudgetBytes == 0 {
		return 0
	}
	return float64(s.UsedBytes) / float64(s.BudgetBytes)
}

func (s PoolStats) String() string {
	return fmt.Sprintf("Pool[%.1f%% used, %d/%d MB, %d objects, %d reused, %d evictions]",
		s.Utilization()*100,
		s.UsedBytes/(1024*1024),
		s.BudgetBytes/(1024*1024),
		s.Objects, s.Reused, s.Evictions)
}

// poolKey identifies interchangeable allocations.
type poolKey struct {
	kind ResourceKind
	tex  TextureDesc
	buf  BufferDesc
}

func (k poolKey) sizeBytes() uint64 {
	if k.kind == KindTexture {
		return k.tex.sizeBytes()
	}
	return k.buf.Size
}

// poolEntry is one pooled object. Free entries sit in the LRU list.
type poolEntry struct {
	key     poolKey
	tex     *gfx.Texture
	buf     *gfx.Buffer
	size    uint64
	retire  uint64 // submission index after which the entry may be reused
	element *list.Element
}

func (e *poolEntry) destroy() {
	if e.tex != nil {
		e.tex.Destroy()
	}
	if e.buf != nil {
		e.buf.Destroy()
	}
}

// transientPool recycles transient textures and buffers across frames.
// Free entries are evicted least recently used first when the pool grows
// past its budget. Evicted objects are destroyed through the device, which
// defers the release while the GPU may still use them.
//
// transientPool is safe for concurrent use.
type transientPool struct {
	mu sync.Mutex

	dev    *gfx.Device
	budget uint64
	used   uint64

	entries map[*poolEntry]struct{}
	free    *list.List // front = most recently released

	created   uint64
	reused    uint64
	evictions uint64

	closed bool
}

func newTransientPool(dev *gfx.Device, budget uint64) *transientPool {
	if budget < MinTransientBudget {
		budget = MinTransientBudget
	}
	return &transientPool{
		dev:     dev,
		budget:  budget,
		entries: make(map[*poolEntry]struct{}),
		free:    list.New(),
	}
}

// acquire leases an object matching key. Only entries whose last frame has
// completed on the GPU are reused.
func (p *transientPool) acquire(key poolKey, label string) (*poolEntry, error) {
	completed := p.dev.Queue().Completed()

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrExecutorClosed
	}

	for el := p.free.Front(); el != nil; el = el.Next() {
		e := el.Value.(*poolEntry)
		if e.key == key && e.retire <= completed {
			p.free.Remove(el)
			e.element = nil
			p.reused++
			return e, nil
		}
	}

	size := key.sizeBytes()
	p.evictIfNeeded(size)

	e := &poolEntry{key: key, size: size}
	if key.kind == KindTexture {
		e.tex = p.dev.CreateTexture(gfx.TextureInfo{
			Label:       label,
			Width:       key.tex.Width,
			Height:      key.tex.Height,
			SampleCount: key.tex.SampleCount,
			Format:      key.tex.Format,
			Usage:       key.tex.Usage,
		})
		if err := readyErr(e.tex); err != nil {
			e.tex.Destroy()
			return nil, fmt.Errorf("rendergraph: transient %q: %w", label, err)
		}
	} else {
		e.buf = p.dev.CreateBuffer(gfx.BufferInfo{Label: label, Size: key.buf.Size, Usage: key.buf.Usage})
		if err := readyErr(e.buf); err != nil {
			e.buf.Destroy()
			return nil, fmt.Errorf("rendergraph: transient %q: %w", label, err)
		}
	}

	p.entries[e] = struct{}{}
	p.used += size
	p.created++
	return e, nil
}

// release returns a leased entry. A non-zero retire records the submission
// that last used it.
func (p *transientPool) release(e *poolEntry, retire uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		e.destroy()
		return
	}
	if retire != 0 {
		e.retire = retire
	}
	e.element = p.free.PushFront(e)
	p.evictIfNeeded(0)
}

// evictIfNeeded destroys free entries until requested bytes fit in the
// budget. Leased entries are never evicted, so the pool may exceed its
// budget while a frame needs more than it allows. Caller must hold mu.
func (p *transientPool) evictIfNeeded(requested uint64) {
	for p.used+requested > p.budget && p.free.Len() > 0 {
		el := p.free.Back()
		e := el.Value.(*poolEntry)
		p.free.Remove(el)
		delete(p.entries, e)
		p.used -= e.size
		p.evictions++
		e.destroy()
	}
	if p.used+requested > p.budget {
		gfx.Logger().Debug("rendergraph: transient budget exceeded",
			"used", p.used, "requested", requested, "budget", p.budget)
	}
}

func (p *transientPool) stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PoolStats{
		BudgetBytes: p.budget,
		UsedBytes:   p.used,
		Objects:     len(p.entries),
		InUse:       len(p.entries) - p.free.Len(),
		Created:     p.created,
		Reused:      p.reused,
		Evictions:   p.evictions,
	}
}

// close destroys every pooled object.
func (p *transientPool) close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	for e := range p.entries {
		e.destroy()
	}
	p.entries = nil
	p.free.Init()
	p.used = 0
	p.closed = true
}

// statusErr is implemented by every gfx resource.
type statusErr interface {
	Status() gfx.Status
	Err() error
}

func readyErr(r statusErr) error {
	switch r.Status() {
	case gfx.StatusSuccess:
		return nil
	case gfx.StatusFailed:
		return r.Err()
	default:
		return gfx.ErrNotReady
	}
}
