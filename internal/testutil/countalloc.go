// Copyright 2025 the Hetseq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package testutil

import (
	"sync/atomic"
	"testing"
	"unsafe"

	"github.com/densepack/hetseq/alloc"
)

// CountingAllocator wraps an allocator and counts what goes in and
// out, for leak checks in container tests.
type CountingAllocator struct {
	Inner alloc.Allocator

	Pages      atomic.Int64
	Blocks     atomic.Int64
	BlockBytes atomic.Int64
}

// NewCountingAllocator wraps the process-wide default allocator.
func NewCountingAllocator() *CountingAllocator {
	return &CountingAllocator{Inner: alloc.Default()}
}

func (c *CountingAllocator) AllocatePage(g alloc.Progress) (*alloc.Page, error) {
	p, err := c.Inner.AllocatePage(g)
	if err == nil {
		c.Pages.Add(1)
	}
	return p, err
}

func (c *CountingAllocator) DeallocatePage(p *alloc.Page) {
	c.Pages.Add(-1)
	c.Inner.DeallocatePage(p)
}

func (c *CountingAllocator) Allocate(size, align uintptr, g alloc.Progress) (unsafe.Pointer, error) {
	ptr, err := c.Inner.Allocate(size, align, g)
	if err == nil {
		c.Blocks.Add(1)
		c.BlockBytes.Add(int64(size))
	}
	return ptr, err
}

func (c *CountingAllocator) Deallocate(ptr unsafe.Pointer, size, align uintptr) {
	if ptr == nil {
		return
	}
	c.Blocks.Add(-1)
	c.BlockBytes.Add(-int64(size))
	c.Inner.Deallocate(ptr, size, align)
}

// CheckBalanced fails the test if any page or block is outstanding.
func (c *CountingAllocator) CheckBalanced(t *testing.T) {
	t.Helper()
	if n := c.Pages.Load(); n != 0 {
		t.Errorf("leaked %d pages", n)
	}
	if n := c.Blocks.Load(); n != 0 {
		t.Errorf("leaked %d blocks (%d bytes)", n, c.BlockBytes.Load())
	}
}
