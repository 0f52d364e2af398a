// Copyright 2025 the Hetseq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dense

import (
	"unsafe"

	"github.com/densepack/hetseq/alloc"
	"github.com/densepack/hetseq/runtype"
)

// Item pairs a descriptor with a source value for insertion into a
// container. Build one with Val, Ref or Typed.
type Item struct {
	rtd  runtype.Type
	src  unsafe.Pointer
	move bool
}

// Val captures a copy source: inserting the item copy-constructs from
// v through the descriptor's copy feature.
func Val[C any](v C) Item {
	return Item{rtd: runtype.MakeDefault[C](), src: unsafe.Pointer(&v)}
}

// ValAs is Val with the descriptor constrained to the common base B.
func ValAs[B any, C any](v C) Item {
	return Item{rtd: runtype.MakeAs[B, C](runtype.AllFeatures), src: unsafe.Pointer(&v)}
}

// Ref captures a move source: inserting the item transfers the value
// out of *p, leaving it in a valid but unspecified state.
func Ref[C any](p *C) Item {
	return Item{rtd: runtype.MakeDefault[C](), src: unsafe.Pointer(p), move: true}
}

// Typed captures a copy source through a descriptor chosen at runtime.
// src must point at a live value of the described type.
func Typed(rtd runtype.Type, src unsafe.Pointer) Item {
	return Item{rtd: rtd, src: src}
}

func (it Item) source() source {
	rtd, src := it.rtd, it.src
	if it.move {
		return source{rtd: rtd, construct: func(dst unsafe.Pointer) error {
			rtd.MoveConstruct(dst, src)
			return nil
		}}
	}
	return source{rtd: rtd, construct: func(dst unsafe.Pointer) error {
		return rtd.CopyConstruct(dst, src)
	}}
}

// Array is a dense heterogeneous sequence with value semantics. The
// zero Array is empty and uses the default allocator. Arrays are not
// safe for concurrent use.
//
// Every mutation rebuilds the backing block, so element addresses are
// stable only between mutations, and all iterators are invalidated by
// any mutation. All mutating operations provide the strong guarantee:
// on error the array is unchanged.
type Array struct {
	buf buffer
}

// NewArray returns an empty array backed by the given allocator. A nil
// allocator selects the process-wide default.
func NewArray(a alloc.Allocator) *Array {
	return &Array{buf: buffer{a: a}}
}

// Of builds an array holding the given items in order.
func Of(items ...Item) (*Array, error) {
	arr := &Array{}
	if err := arr.buf.insertN(0, items); err != nil {
		return nil, err
	}
	return arr, nil
}

// Size returns the number of elements.
func (a *Array) Size() int { return a.buf.size() }

// Empty reports whether the array has no elements.
func (a *Array) Empty() bool { return a.buf.size() == 0 }

// Clear destroys every element and releases the block.
func (a *Array) Clear() { a.buf.destroyAll() }

// PushBack appends an element.
func (a *Array) PushBack(it Item) error {
	return a.buf.insertN(a.buf.size(), []Item{it})
}

// PushFront prepends an element.
func (a *Array) PushFront(it Item) error {
	return a.buf.insertN(0, []Item{it})
}

// Insert places an element before position pos.
func (a *Array) Insert(pos int, it Item) error {
	return a.buf.insertN(pos, []Item{it})
}

// InsertN places items before position pos. Inserting zero items is a
// no-op.
func (a *Array) InsertN(pos int, items ...Item) error {
	return a.buf.insertN(pos, items)
}

// InsertCount places count copies of the item's value before position
// pos. A zero count is a no-op. The item must be a copy source (Val or
// Typed), not a move source.
func (a *Array) InsertCount(pos, count int, it Item) error {
	items := make([]Item, count)
	for i := range items {
		items[i] = it
	}
	return a.buf.insertN(pos, items)
}

// Erase removes the element at position i.
func (a *Array) Erase(i int) error {
	return a.buf.eraseRange(i, i+1)
}

// EraseRange removes elements [from, to). An empty range is a no-op;
// erasing every element returns the array to the empty state.
func (a *Array) EraseRange(from, to int) error {
	return a.buf.eraseRange(from, to)
}

// Iter returns a forward iterator positioned at the first element.
func (a *Array) Iter() Iterator { return a.buf.iter() }

// Front returns the descriptor and payload of the first element. The
// array must not be empty.
func (a *Array) Front() (runtype.Type, unsafe.Pointer) {
	if paranoia && a.Empty() {
		panic("dense: Front on empty array")
	}
	it := a.buf.iter()
	return it.Type(), it.Element()
}

// Clone returns an independent copy of the array, copy-constructing
// every element.
func (a *Array) Clone() (*Array, error) {
	out := &Array{buf: buffer{a: a.buf.a}}
	if err := out.buf.cloneFrom(&a.buf); err != nil {
		return nil, err
	}
	return out, nil
}

// Assign replaces the contents of a with a copy of src. Strong
// guarantee: on error a is unchanged.
func (a *Array) Assign(src *Array) error {
	return a.buf.cloneFrom(&src.buf)
}

// Swap exchanges the contents of two arrays by swapping their block
// pointers.
func (a *Array) Swap(o *Array) {
	a.buf.types, o.buf.types = o.buf.types, a.buf.types
	a.buf.a, o.buf.a = o.buf.a, a.buf.a
}

// Equal reports deep equality: same length, per-position identical
// complete types and equal payloads through the equals feature. The
// descriptors involved must carry the equals feature.
func (a *Array) Equal(o *Array) bool {
	if a.Size() != o.Size() {
		return false
	}
	ita, ito := a.buf.iter(), o.buf.iter()
	for !ita.Done() {
		ta, to := ita.Type(), ito.Type()
		if !ta.Same(to) {
			return false
		}
		if !ta.Equals(ita.Element(), ito.Element()) {
			return false
		}
		ita.Next()
		ito.Next()
	}
	return true
}
