// Copyright 2025 the Hetseq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package dense implements a dense heterogeneous buffer: a sequence of
// values of different concrete types packed in one memory block, with
// a runtime type descriptor per element.
//
// The block stores no per-element offsets. The payload address of
// element i is re-derived by forward-aligning past the payload of
// element i-1, which keeps the block maximally compact at the cost of
// forward-only iteration.
//
// Containers in this package are not safe for concurrent use.
package dense

import (
	"unsafe"

	"github.com/pkg/errors"

	"github.com/densepack/hetseq/alloc"
	"github.com/densepack/hetseq/internal/arith"
	"github.com/densepack/hetseq/runtype"
)

const paranoia = true

const (
	headerSize = unsafe.Sizeof(header{})
	typeSize   = unsafe.Sizeof(runtype.Type{})
)

// header sits immediately before the descriptor array in every block.
type header struct {
	count uintptr
}

// buffer is the erased engine. The zero buffer is the empty sentinel:
// it owns no block. Any mutation builds a fresh block and swaps it in
// atomically with respect to failures: on error the old block is
// untouched.
type buffer struct {
	// types points at the first descriptor of the block. The header
	// lives immediately before it. nil means empty.
	types unsafe.Pointer
	a     alloc.Allocator
}

func (b *buffer) allocator() alloc.Allocator {
	if b.a == nil {
		return alloc.Default()
	}
	return b.a
}

func (b *buffer) size() int {
	if b.types == nil {
		return 0
	}
	h := (*header)(unsafe.Add(b.types, -int(headerSize)))
	return int(h.count)
}

func (b *buffer) typeAt(i int) runtype.Type {
	return *(*runtype.Type)(unsafe.Add(b.types, uintptr(i)*typeSize))
}

// payloadAt walks the descriptor sequence to the payload of element i.
func (b *buffer) payloadAt(i int) unsafe.Pointer {
	n := b.size()
	cur := uintptr(unsafe.Add(b.types, uintptr(n)*typeSize))
	for k := 0; ; k++ {
		t := b.typeAt(k)
		cur = arith.UpperAlign(cur, t.Alignment())
		if k == i {
			return unsafe.Pointer(cur)
		}
		cur += t.Size()
	}
}

// blockExtent recomputes the size and alignment of the current block
// from its descriptor sequence.
func blockExtent(types unsafe.Pointer, n int) (size, align uintptr) {
	align = 8
	cur := headerSize + uintptr(n)*typeSize
	for i := 0; i < n; i++ {
		t := *(*runtype.Type)(unsafe.Add(types, uintptr(i)*typeSize))
		if t.Alignment() > align {
			align = t.Alignment()
		}
		cur = arith.UpperAlign(cur, t.Alignment())
		cur += t.Size()
	}
	return cur, align
}

// source describes one element of the block being built.
type source struct {
	rtd runtype.Type

	// Exactly one of the two is used. construct builds a fresh element
	// and may fail; moveFrom is the payload of a surviving element in
	// the old block, transferred by the move feature.
	construct func(dst unsafe.Pointer) error
	moveFrom  unsafe.Pointer
}

// rebuild allocates and populates a new block from sources. On failure
// every fresh element already constructed is destroyed in reverse
// order, the new block is released, and the error is returned; moved
// elements are left owned by the old block, which rebuild never
// touches. On success the new block is installed and the old one is
// returned for the caller to release.
func (b *buffer) rebuild(sources []source) (oldTypes unsafe.Pointer, err error) {
	n := len(sources)
	if n == 0 {
		old := b.types
		b.types = nil
		return old, nil
	}

	// Layout pass.
	blockAlign := uintptr(8)
	cur := headerSize + uintptr(n)*typeSize
	for _, s := range sources {
		if s.rtd.Alignment() > blockAlign {
			blockAlign = s.rtd.Alignment()
		}
		cur = arith.UpperAlign(cur, s.rtd.Alignment())
		cur += s.rtd.Size()
	}
	blockSize := cur

	block, err := b.allocator().Allocate(blockSize, blockAlign, alloc.Blocking)
	if err != nil {
		return nil, errors.Wrap(err, "dense: block allocation")
	}

	types := unsafe.Add(block, headerSize)
	(*header)(block).count = uintptr(n)
	for i, s := range sources {
		*(*runtype.Type)(unsafe.Add(types, uintptr(i)*typeSize)) = s.rtd
	}

	// Construction pass.
	cur = uintptr(types) + uintptr(n)*typeSize
	payloads := make([]unsafe.Pointer, n)
	for i, s := range sources {
		cur = arith.UpperAlign(cur, s.rtd.Alignment())
		dst := unsafe.Pointer(cur)
		payloads[i] = dst
		if s.construct != nil {
			if cerr := s.construct(dst); cerr != nil {
				// Unwind fresh elements in reverse construction order.
				for k := i - 1; k >= 0; k-- {
					if sources[k].construct != nil {
						sources[k].rtd.Destroy(payloads[k])
					}
				}
				b.allocator().Deallocate(block, blockSize, blockAlign)
				return nil, cerr
			}
		} else {
			s.rtd.MoveConstruct(dst, s.moveFrom)
		}
		cur += s.rtd.Size()
	}

	old := b.types
	b.types = types
	return old, nil
}

// releaseBlock frees a detached block without destroying elements.
func (b *buffer) releaseBlock(types unsafe.Pointer) {
	if types == nil {
		return
	}
	h := (*header)(unsafe.Add(types, -int(headerSize)))
	size, align := blockExtent(types, int(h.count))
	b.allocator().Deallocate(unsafe.Add(types, -int(headerSize)), size, align)
}

// destroyAll destroys every element of the current block and releases
// it, returning the buffer to the empty sentinel.
func (b *buffer) destroyAll() {
	if b.types == nil {
		return
	}
	for it := b.iter(); !it.Done(); it.Next() {
		it.Type().Destroy(it.Element())
	}
	old := b.types
	b.types = nil
	b.releaseBlock(old)
}

// insertN builds a block with items constructed at position pos.
// Surviving elements are moved. Strong guarantee.
func (b *buffer) insertN(pos int, items []Item) error {
	n := b.size()
	if pos < 0 || pos > n {
		if paranoia {
			panic("dense: insert position out of range")
		}
		return nil
	}
	if len(items) == 0 {
		return nil
	}

	sources := make([]source, 0, n+len(items))
	for i := 0; i < pos; i++ {
		sources = append(sources, source{rtd: b.typeAt(i), moveFrom: b.payloadAt(i)})
	}
	for _, it := range items {
		sources = append(sources, it.source())
	}
	for i := pos; i < n; i++ {
		sources = append(sources, source{rtd: b.typeAt(i), moveFrom: b.payloadAt(i)})
	}

	old, err := b.rebuild(sources)
	if err != nil {
		return err
	}
	b.releaseBlock(old)
	return nil
}

// eraseRange builds a block without elements [from, to). The erased
// elements are destroyed only after the new block is in place. Strong
// guarantee.
func (b *buffer) eraseRange(from, to int) error {
	n := b.size()
	if from < 0 || to < from || to > n {
		if paranoia {
			panic("dense: erase range out of range")
		}
		return nil
	}
	if from == to {
		return nil
	}

	dropped := make([]int, 0, to-from)
	sources := make([]source, 0, n-(to-from))
	for i := 0; i < n; i++ {
		if i >= from && i < to {
			dropped = append(dropped, i)
			continue
		}
		sources = append(sources, source{rtd: b.typeAt(i), moveFrom: b.payloadAt(i)})
	}

	// Destroy the dropped elements before the old block goes away.
	// payloadAt needs the old block intact, so collect pointers first.
	ptrs := make([]unsafe.Pointer, len(dropped))
	rtds := make([]runtype.Type, len(dropped))
	for k, i := range dropped {
		ptrs[k] = b.payloadAt(i)
		rtds[k] = b.typeAt(i)
	}

	old, err := b.rebuild(sources)
	if err != nil {
		return err
	}
	for k := range ptrs {
		rtds[k].Destroy(ptrs[k])
	}
	b.releaseBlock(old)
	return nil
}

// destroyDetached destroys every element of a detached block and
// frees it.
func (b *buffer) destroyDetached(types unsafe.Pointer) {
	if types == nil {
		return
	}
	tmp := buffer{types: types, a: b.a}
	for it := tmp.iter(); !it.Done(); it.Next() {
		it.Type().Destroy(it.Element())
	}
	b.releaseBlock(types)
}

// cloneFrom replaces the contents of b with a copy of src, element by
// element through the copy feature. Strong guarantee on b.
func (b *buffer) cloneFrom(src *buffer) error {
	n := src.size()
	sources := make([]source, n)
	for i := 0; i < n; i++ {
		rtd := src.typeAt(i)
		from := src.payloadAt(i)
		sources[i] = source{rtd: rtd, construct: func(dst unsafe.Pointer) error {
			return rtd.CopyConstruct(dst, from)
		}}
	}
	old, err := b.rebuild(sources)
	if err != nil {
		return err
	}
	b.destroyDetached(old)
	return nil
}

func (b *buffer) iter() Iterator {
	if b.types == nil {
		return Iterator{}
	}
	n := b.size()
	return Iterator{
		unaligned: unsafe.Add(b.types, uintptr(n)*typeSize),
		ty:        (*runtype.Type)(b.types),
		end:       (*runtype.Type)(unsafe.Add(b.types, uintptr(n)*typeSize)),
	}
}
