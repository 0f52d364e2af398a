// Copyright 2025 the Hetseq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package alloc supplies the containers with fixed-size, highly aligned
// memory pages and arbitrary byte blocks. The memory it hands out is
// not scanned by the garbage collector.
//
// Pages are PageSize bytes and aligned to PageAlignment. Because the
// alignment is not smaller than the size, the page owning any interior
// address is recovered by masking the address; nothing inside a page
// needs to store a back pointer.
package alloc

import (
	"sync/atomic"
	"unsafe"

	"github.com/pkg/errors"

	"github.com/densepack/hetseq/internal/arith"
)

const paranoia = true

const (
	// PageSize is the total size in bytes of a page, header included.
	PageSize = 1 << 16

	// PageAlignment is the alignment of every page. It is not smaller
	// than PageSize so that PageOf can mask interior addresses.
	PageAlignment = PageSize

	// MinAlign divides PageAlignment and is the smallest alignment the
	// allocator guarantees for page interiors and raw blocks.
	MinAlign = 16

	pageHeaderSize = 64
)

// Progress is the progress guarantee under which an allocation runs.
type Progress int

const (
	// Blocking operations may take locks and call into the kernel.
	Blocking Progress = iota

	// LockFree operations complete in a bounded number of steps unless
	// another thread is making progress.
	LockFree

	// WaitFree operations complete in a bounded number of steps,
	// unconditionally.
	WaitFree
)

func (p Progress) String() string {
	switch p {
	case Blocking:
		return "blocking"
	case LockFree:
		return "lock-free"
	case WaitFree:
		return "wait-free"
	}
	return "unknown"
}

// ErrOutOfMemory is returned by blocking allocations when the kernel
// refuses to map more memory.
var ErrOutOfMemory = errors.New("alloc: out of memory")

// ErrExhausted is returned when an allocation cannot be satisfied under
// the requested progress guarantee. It is never returned by Blocking
// allocations.
var ErrExhausted = errors.New("alloc: guarantee cannot be honored")

// Allocator is the paged allocator contract the containers build on.
type Allocator interface {
	// AllocatePage returns a zeroed page. Under LockFree or WaitFree it
	// may fail with ErrExhausted instead of calling into the kernel.
	AllocatePage(g Progress) (*Page, error)

	// DeallocatePage returns a page to the allocator. It does not fail.
	// The page must contain no live elements.
	DeallocatePage(p *Page)

	// Allocate returns a block of at least size bytes aligned to align.
	// Only Blocking honors kernel calls; other guarantees may fail with
	// ErrExhausted.
	Allocate(size, align uintptr, g Progress) (unsafe.Pointer, error)

	// Deallocate releases a block obtained from Allocate. The size and
	// align must match the allocation.
	Deallocate(ptr unsafe.Pointer, size, align uintptr)
}

// Statser is implemented by allocators that expose usage statistics.
type Statser interface {
	Stats() Stats
}

// Page state machine for reclamation. A page is live while a container
// writes or reads it, retired once its owner has logically abandoned
// it, and freed by whoever observes a retired page with no pins.
const (
	pageLive uint32 = iota
	pageRetired
	pageFreed
)

// Page overlays the header at the start of every page. The pin counter
// survives recycling through the free-page cache; stale pin/unpin pairs
// from a consumer that lost a race therefore net out to zero instead of
// corrupting the next owner's count.
type Page struct {
	pins  atomic.Int32
	state atomic.Uint32
	_     [pageHeaderSize - 8]byte
}

// PageOf returns the page owning an interior address.
func PageOf(ptr unsafe.Pointer) *Page {
	return (*Page)(unsafe.Pointer(arith.LowerAlign(uintptr(ptr), PageAlignment)))
}

// Begin returns the first usable byte of the page, aligned to MinAlign.
func (p *Page) Begin() unsafe.Pointer {
	return unsafe.Add(unsafe.Pointer(p), pageHeaderSize)
}

// End returns one past the last usable byte of the page.
func (p *Page) End() unsafe.Pointer {
	return unsafe.Add(unsafe.Pointer(p), PageSize)
}

// Pin prevents the page from being reclaimed until the matching Unpin.
func (p *Page) Pin() {
	p.pins.Add(1)
}

// Unpin releases a pin and returns the remaining pin count.
func (p *Page) Unpin() int32 {
	return p.pins.Add(-1)
}

// PinCount returns the current pin count.
func (p *Page) PinCount() int32 {
	return p.pins.Load()
}

// Retire marks the page as logically abandoned by its owner. After
// Retire, the first caller of ClaimFree that observes a zero pin count
// is responsible for deallocating the page.
func (p *Page) Retire() {
	p.state.Store(pageRetired)
}

// ClaimFree attempts to take ownership of deallocating a retired page.
// It returns true at most once per retirement, and only when the pin
// count is zero.
func (p *Page) ClaimFree() bool {
	if p.pins.Load() != 0 {
		return false
	}
	return p.state.CompareAndSwap(pageRetired, pageFreed)
}

// resetForReuse prepares a recycled page for a new owner. Pins are
// deliberately left alone.
func (p *Page) resetForReuse() {
	p.state.Store(pageLive)
}

// zeroUsable clears the usable area of the page.
func (p *Page) zeroUsable() {
	b := unsafe.Slice((*byte)(p.Begin()), PageSize-pageHeaderSize)
	clear(b)
}

func init() {
	if pageHeaderSize%MinAlign != 0 {
		panic("alloc: page header breaks MinAlign")
	}
	var p Page
	if unsafe.Sizeof(p) != pageHeaderSize {
		panic("alloc: page header size mismatch")
	}
}
