// Copyright 2025 the Hetseq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hetq

import (
	"sync/atomic"
	"unsafe"

	"github.com/densepack/hetseq/alloc"
	"github.com/densepack/hetseq/internal/arith"
	"github.com/densepack/hetseq/runtype"
)

const paranoia = true

// Control word encoding. The word of a control block packs the address
// of the next control block with state bits in the low bits; control
// blocks are granularity-aligned, so the low four bits of any next
// address are zero.
//
//	0                      tail boundary: nothing here yet, or not linked
//	addr | ctlBusy         element being produced, or claimed by a consumer
//	addr | ctlDead         terminal; skipped by consumers
//	addr                   element ready to be consumed
//	addr | ctlPageEnd      end of page; addr is the first control block
//	                       of the successor page, immutable once written
//
// ctlExternal marks a block whose payload lives in a separately
// allocated external block; it is orthogonal to the state bits.
const (
	ctlBusy     uintptr = 1
	ctlDead     uintptr = 2
	ctlExternal uintptr = 4
	ctlPageEnd  uintptr = 8
	ctlFlagMask uintptr = 15

	granularity = alloc.MinAlign

	// ctlSize is the control word plus the descriptor slot.
	ctlSize = 2 * unsafe.Sizeof(uintptr(0))

	// endReserve keeps the last chunk of every page free for the
	// end-of-page word.
	endReserve = granularity
)

// maxInline is the largest inline block a put may occupy in a page.
// Bigger elements move their payload to an external block.
const maxInline = (alloc.PageSize - 64 - endReserve) / 2

// control overlays a control block.
type control struct {
	next atomic.Uintptr
}

func ctl(addr uintptr) *control {
	return (*control)(unsafe.Pointer(addr))
}

// rtdSlot returns the descriptor slot of an element control block.
func rtdSlot(cb uintptr) *runtype.Type {
	return (*runtype.Type)(unsafe.Pointer(cb + unsafe.Sizeof(uintptr(0))))
}

// external is the payload indirection stored in place of an inline
// payload when ctlExternal is set.
type external struct {
	data  unsafe.Pointer
	size  uintptr
	align uintptr
}

func externalRec(cb uintptr) *external {
	return (*external)(unsafe.Pointer(cb + ctlSize))
}

// endLimit returns the highest address a block in the page may end at,
// leaving room for the end-of-page word.
func endLimit(p *alloc.Page) uintptr {
	return uintptr(p.End()) - endReserve
}

// inlineEnd computes the end of an inline block whose control sits at
// cb: control word, descriptor slot, payload at its own alignment,
// rounded up so the next control block is granularity-aligned.
func inlineEnd(cb, size, align uintptr) uintptr {
	payload := arith.UpperAlign(cb+ctlSize, align)
	return arith.UpperAlign(payload+size, granularity)
}

// rawEnd is inlineEnd for blocks without a descriptor slot.
func rawEnd(cb, size, align uintptr) uintptr {
	payload := arith.UpperAlign(cb+unsafe.Sizeof(uintptr(0)), align)
	return arith.UpperAlign(payload+size, granularity)
}

// externEnd is the end of the in-page part of an external block.
func externEnd(cb uintptr) uintptr {
	return arith.UpperAlign(cb+ctlSize+unsafe.Sizeof(external{}), granularity)
}

// fitsInline reports whether an element of the given size and
// alignment may be stored inline, judged from the worst-case block
// start.
func fitsInline(size, align uintptr) bool {
	worst := inlineEnd(0, size, align)
	if align > granularity {
		worst += align - granularity
	}
	return worst <= maxInline
}

// slot is a reserved, not yet committed element or raw block.
type slot struct {
	cb      uintptr
	next    uintptr
	payload unsafe.Pointer
	flags   uintptr // ctlExternal if the payload is external
}

func (s *slot) empty() bool { return s.cb == 0 }

// word builds the control word for the given state bits.
func (s *slot) word(state uintptr) uintptr {
	return s.next | s.flags | state
}
