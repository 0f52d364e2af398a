// Copyright 2025 the Hetseq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package alloc

import (
	"testing"
	"unsafe"

	"github.com/pkg/errors"
)

func TestAllocatePageAlignment(t *testing.T) {
	a := New()
	p, err := a.AllocatePage(Blocking)
	if err != nil {
		t.Fatalf("AllocatePage: %v", err)
	}
	defer a.DeallocatePage(p)

	addr := uintptr(unsafe.Pointer(p))
	if addr%PageAlignment != 0 {
		t.Errorf("page at %#x not aligned to %#x", addr, PageAlignment)
	}
	if got := uintptr(p.End()) - uintptr(p.Begin()); got != PageSize-pageHeaderSize {
		t.Errorf("usable size %d, want %d", got, PageSize-pageHeaderSize)
	}
}

func TestPageOf(t *testing.T) {
	a := New()
	p, err := a.AllocatePage(Blocking)
	if err != nil {
		t.Fatalf("AllocatePage: %v", err)
	}
	defer a.DeallocatePage(p)

	mid := unsafe.Add(p.Begin(), 1234)
	if PageOf(mid) != p {
		t.Errorf("PageOf(%p) = %p, want %p", mid, PageOf(mid), p)
	}
	if PageOf(unsafe.Add(p.End(), -1)) != p {
		t.Error("PageOf at last byte should return the page")
	}
}

func TestPageZeroedOnReuse(t *testing.T) {
	a := New()
	p, err := a.AllocatePage(Blocking)
	if err != nil {
		t.Fatalf("AllocatePage: %v", err)
	}
	b := unsafe.Slice((*byte)(p.Begin()), 64)
	for i := range b {
		b[i] = 0xAB
	}
	a.DeallocatePage(p)

	q, err := a.AllocatePage(Blocking)
	if err != nil {
		t.Fatalf("AllocatePage: %v", err)
	}
	defer a.DeallocatePage(q)
	if q != p {
		t.Skip("page not recycled from cache")
	}
	b = unsafe.Slice((*byte)(q.Begin()), 64)
	for i := range b {
		if b[i] != 0 {
			t.Fatalf("byte %d not zeroed on reuse", i)
		}
	}
}

func TestNonBlockingExhaustion(t *testing.T) {
	a := New()
	if _, err := a.AllocatePage(LockFree); !errors.Is(err, ErrExhausted) {
		t.Errorf("LockFree with empty cache: err = %v, want ErrExhausted", err)
	}
	if _, err := a.AllocatePage(WaitFree); !errors.Is(err, ErrExhausted) {
		t.Errorf("WaitFree with empty cache: err = %v, want ErrExhausted", err)
	}

	// Once the cache holds a page, lock-free allocation succeeds.
	p, err := a.AllocatePage(Blocking)
	if err != nil {
		t.Fatalf("AllocatePage: %v", err)
	}
	a.DeallocatePage(p)
	q, err := a.AllocatePage(LockFree)
	if err != nil {
		t.Fatalf("LockFree with warm cache: %v", err)
	}
	a.DeallocatePage(q)
}

func TestPinRetireClaim(t *testing.T) {
	a := New()
	p, err := a.AllocatePage(Blocking)
	if err != nil {
		t.Fatalf("AllocatePage: %v", err)
	}

	p.Pin()
	p.Retire()
	if p.ClaimFree() {
		t.Error("ClaimFree succeeded with a live pin")
	}
	if n := p.Unpin(); n != 0 {
		t.Errorf("Unpin = %d, want 0", n)
	}
	if !p.ClaimFree() {
		t.Error("ClaimFree failed with no pins on a retired page")
	}
	if p.ClaimFree() {
		t.Error("ClaimFree succeeded twice")
	}
	a.DeallocatePage(p)
}

func TestAllocateBlock(t *testing.T) {
	a := New()
	for _, align := range []uintptr{16, 64, 1 << 12, 1 << 17} {
		ptr, err := a.Allocate(1000, align, Blocking)
		if err != nil {
			t.Fatalf("Allocate(align=%d): %v", align, err)
		}
		if uintptr(ptr)%align != 0 {
			t.Errorf("block %p not aligned to %d", ptr, align)
		}
		b := unsafe.Slice((*byte)(ptr), 1000)
		for i := range b {
			b[i] = byte(i)
		}
		a.Deallocate(ptr, 1000, align)
	}

	if _, err := a.Allocate(1000, 16, LockFree); !errors.Is(err, ErrExhausted) {
		t.Errorf("non-blocking Allocate: err = %v, want ErrExhausted", err)
	}
}

func TestStats(t *testing.T) {
	a := New()
	p, err := a.AllocatePage(Blocking)
	if err != nil {
		t.Fatalf("AllocatePage: %v", err)
	}
	a.DeallocatePage(p)
	if _, err := a.AllocatePage(Blocking); err != nil {
		t.Fatalf("AllocatePage: %v", err)
	}

	s := a.Stats()
	if s.PageAllocs != 2 || s.PageFrees != 1 {
		t.Errorf("allocs/frees = %d/%d, want 2/1", s.PageAllocs, s.PageFrees)
	}
	if s.CacheHits != 1 {
		t.Errorf("cache hits = %d, want 1", s.CacheHits)
	}
	if s.PagesMapped != 1 {
		t.Errorf("pages mapped = %d, want 1", s.PagesMapped)
	}
}
