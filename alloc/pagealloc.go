// Copyright 2025 the Hetseq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package alloc

import (
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/pkg/errors"
)

// cacheSlots bounds the lock-free portion of the free-page cache.
// Within this capacity page allocation and deallocation are a bounded
// scan of atomic slots.
const cacheSlots = 64

// Stats is a snapshot of allocator counters.
type Stats struct {
	PagesMapped    uint64
	PagesUnmapped  uint64
	PageAllocs     uint64
	PageFrees      uint64
	CacheHits      uint64
	ExternalAllocs uint64
	ExternalFrees  uint64
	ExternalBytes  uint64
}

// PageAllocator is the default Allocator: pages are anonymous memory
// mappings recycled through a lock-free cache. Pages stay mapped until
// Trim, so a consumer that loses a reclamation race touches
// recycled memory, never unmapped memory.
type PageAllocator struct {
	cache [cacheSlots]atomic.Uintptr

	mu       sync.Mutex
	overflow []uintptr

	pagesMapped   atomic.Uint64
	pagesUnmapped atomic.Uint64
	pageAllocs    atomic.Uint64
	pageFrees     atomic.Uint64
	cacheHits     atomic.Uint64
	extAllocs     atomic.Uint64
	extFrees      atomic.Uint64
	extBytes      atomic.Uint64
}

var defaultAllocator *PageAllocator

func init() {
	defaultAllocator = New()
}

// Default returns the process-wide allocator. Its lifecycle is bound to
// the process; it is never closed.
func Default() *PageAllocator {
	return defaultAllocator
}

// New returns an empty PageAllocator.
func New() *PageAllocator {
	return &PageAllocator{}
}

// AllocatePage implements Allocator.
func (a *PageAllocator) AllocatePage(g Progress) (*Page, error) {
	a.pageAllocs.Add(1)
	for i := range a.cache {
		addr := a.cache[i].Load()
		if addr == 0 {
			continue
		}
		if a.cache[i].CompareAndSwap(addr, 0) {
			a.cacheHits.Add(1)
			p := (*Page)(unsafe.Pointer(addr))
			p.resetForReuse()
			p.zeroUsable()
			return p, nil
		}
		if g == WaitFree {
			return nil, errors.WithStack(ErrExhausted)
		}
	}
	if g != Blocking {
		// Both the overflow list and the kernel are off limits.
		return nil, errors.WithStack(ErrExhausted)
	}

	a.mu.Lock()
	if n := len(a.overflow); n > 0 {
		addr := a.overflow[n-1]
		a.overflow = a.overflow[:n-1]
		a.mu.Unlock()
		a.cacheHits.Add(1)
		p := (*Page)(unsafe.Pointer(addr))
		p.resetForReuse()
		p.zeroUsable()
		return p, nil
	}
	a.mu.Unlock()

	ptr, err := mmapAligned(PageSize, PageAlignment)
	if err != nil {
		return nil, errors.Wrap(ErrOutOfMemory, err.Error())
	}
	a.pagesMapped.Add(1)
	return (*Page)(ptr), nil
}

// DeallocatePage implements Allocator. The page goes back to the cache;
// it is not unmapped.
func (a *PageAllocator) DeallocatePage(p *Page) {
	if paranoia && p.pins.Load() != 0 {
		panic("alloc: page deallocated with live pins")
	}
	a.pageFrees.Add(1)
	addr := uintptr(unsafe.Pointer(p))
	for i := range a.cache {
		if a.cache[i].Load() == 0 && a.cache[i].CompareAndSwap(0, addr) {
			return
		}
	}
	a.mu.Lock()
	a.overflow = append(a.overflow, addr)
	a.mu.Unlock()
}

// Allocate implements Allocator. Blocks come from their own anonymous
// mapping, so only Blocking can succeed.
func (a *PageAllocator) Allocate(size, align uintptr, g Progress) (unsafe.Pointer, error) {
	if g != Blocking {
		return nil, errors.WithStack(ErrExhausted)
	}
	if align < MinAlign {
		align = MinAlign
	}
	ptr, err := mmapAligned(size, align)
	if err != nil {
		return nil, errors.Wrap(ErrOutOfMemory, err.Error())
	}
	a.extAllocs.Add(1)
	a.extBytes.Add(uint64(size))
	return ptr, nil
}

// Deallocate implements Allocator.
func (a *PageAllocator) Deallocate(ptr unsafe.Pointer, size, align uintptr) {
	if ptr == nil {
		return
	}
	a.extFrees.Add(1)
	munmapAligned(ptr, size)
}

// Trim unmaps every cached page. It must not run concurrently with
// container operations on this allocator: consumers that lose a
// reclamation race may still touch recycled pages.
func (a *PageAllocator) Trim() {
	for i := range a.cache {
		addr := a.cache[i].Swap(0)
		if addr != 0 {
			munmapAligned(unsafe.Pointer(addr), PageSize)
			a.pagesUnmapped.Add(1)
		}
	}
	a.mu.Lock()
	over := a.overflow
	a.overflow = nil
	a.mu.Unlock()
	for _, addr := range over {
		munmapAligned(unsafe.Pointer(addr), PageSize)
		a.pagesUnmapped.Add(1)
	}
}

// Stats implements Statser.
func (a *PageAllocator) Stats() Stats {
	return Stats{
		PagesMapped:    a.pagesMapped.Load(),
		PagesUnmapped:  a.pagesUnmapped.Load(),
		PageAllocs:     a.pageAllocs.Load(),
		PageFrees:      a.pageFrees.Load(),
		CacheHits:      a.cacheHits.Load(),
		ExternalAllocs: a.extAllocs.Load(),
		ExternalFrees:  a.extFrees.Load(),
		ExternalBytes:  a.extBytes.Load(),
	}
}
