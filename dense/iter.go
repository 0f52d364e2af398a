// Copyright 2025 the Hetseq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dense

import (
	"unsafe"

	"github.com/densepack/hetseq/internal/arith"
	"github.com/densepack/hetseq/runtype"
)

// Iterator walks a dense buffer forward. It holds an unaligned payload
// cursor and a descriptor cursor; the aligned payload address is
// re-derived from the current descriptor on demand. Any mutation of
// the owning container invalidates it.
type Iterator struct {
	unaligned unsafe.Pointer
	ty        *runtype.Type
	end       *runtype.Type
}

// Done reports whether the iterator is past the last element.
func (it *Iterator) Done() bool {
	return it.ty == it.end
}

// Next advances to the following element.
func (it *Iterator) Next() {
	size := it.ty.Size()
	it.unaligned = unsafe.Add(it.Element(), size)
	it.ty = (*runtype.Type)(unsafe.Add(unsafe.Pointer(it.ty), typeSize))
}

// Type returns the descriptor of the current element.
func (it *Iterator) Type() runtype.Type {
	return *it.ty
}

// Element returns the payload address of the current element, aligned
// to its type's alignment.
func (it *Iterator) Element() unsafe.Pointer {
	return arith.AlignPointer(it.unaligned, it.ty.Alignment())
}

// UnalignedElement returns the raw payload cursor, which is the end of
// the previous element's payload (for the first element, the end of the
// descriptor array).
func (it *Iterator) UnalignedElement() unsafe.Pointer {
	return it.unaligned
}

// As returns the current element as a typed pointer. The caller
// asserts that the element's complete type is C.
func As[C any](it *Iterator) *C {
	if paranoia {
		want := runtype.MakeDefault[C]()
		if !it.Type().Same(want) {
			panic("dense: element is not of the requested type")
		}
	}
	return (*C)(it.Element())
}
