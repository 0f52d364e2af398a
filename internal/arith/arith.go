// Copyright 2025 the Hetseq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package arith provides the address arithmetic used to pack sequences
// of mixed-alignment values.
package arith

import "unsafe"

// IsPowerOfTwo reports whether n is a power of two. Zero is not.
func IsPowerOfTwo(n uintptr) bool {
	return n != 0 && n&(n-1) == 0
}

// IsAligned reports whether addr is aligned to align, which must be a
// power of two.
func IsAligned(addr, align uintptr) bool {
	return addr&(align-1) == 0
}

// UpperAlign rounds addr up to the next multiple of align, which must
// be a power of two.
func UpperAlign(addr, align uintptr) uintptr {
	return (addr + align - 1) &^ (align - 1)
}

// LowerAlign rounds addr down to the previous multiple of align, which
// must be a power of two.
func LowerAlign(addr, align uintptr) uintptr {
	return addr &^ (align - 1)
}

// Add offsets a pointer by n bytes.
func Add(p unsafe.Pointer, n uintptr) unsafe.Pointer {
	return unsafe.Add(p, n)
}

// AlignPointer rounds a pointer up to the next multiple of align.
func AlignPointer(p unsafe.Pointer, align uintptr) unsafe.Pointer {
	return unsafe.Pointer(UpperAlign(uintptr(p), align))
}
