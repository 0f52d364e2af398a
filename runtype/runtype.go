// Copyright 2025 the Hetseq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package runtype implements runtime type descriptors: small immutable
// values that describe one concrete Go type through a selectable set of
// features (construction, destruction, hashing, equality, stream I/O).
//
// A descriptor is a pointer-sized handle to an interned per-type feature
// table. Containers in this repository manipulate type-erased elements
// exclusively through descriptors; they never look inside a payload.
//
// Calling a feature that is not part of a descriptor's feature set is a
// contract violation. It is not a runtime condition the caller may rely
// on being detected; this implementation panics to make the bug loud.
package runtype

import (
	"io"
	"reflect"
	"unsafe"
)

// Feature identifies one optional capability of a descriptor. Size and
// alignment are always present and have no Feature bit.
type Feature uint32

const (
	DefaultConstruct Feature = 1 << iota
	CopyConstruct
	MoveConstruct
	Destroy
	Hash
	Equals
	StreamWrite
	StreamRead
	RTTI

	// AllFeatures selects every feature.
	AllFeatures Feature = 1<<iota - 1
)

const paranoia = true

// Hooks. A concrete type may customize the fallible or resource-owning
// features by implementing these on its pointer receiver. Types that do
// not implement them get the defaults: bitwise copy, no-op destroy,
// xxhash over the value representation (over the JSON encoding for
// types containing pointers), deep equality.

// Copier replaces the default copy-construction. CopyFrom receives a
// pointer to the source value (same concrete type) and may fail; on
// failure the destination is treated as not constructed.
type Copier interface {
	CopyFrom(src any) error
}

// Disposer is invoked by the destroy feature. It must not fail and must
// not be invoked twice for the same value.
type Disposer interface {
	Dispose()
}

// Hasher64 replaces the default hash feature.
type Hasher64 interface {
	Hash64() uint64
}

// Equaler replaces the default equality feature. The argument is a
// pointer to the other value, of the same concrete type.
type Equaler interface {
	EqualTo(other any) bool
}

// table is the per-type feature table. Tables are interned and live for
// the whole process, so a Type stored in memory the garbage collector
// does not scan stays valid.
type table struct {
	size    uintptr
	align   uintptr
	feats   Feature
	rt      reflect.Type
	ptrFree bool

	defaultConstruct func(dst unsafe.Pointer) error
	copyConstruct    func(dst, src unsafe.Pointer) error
	moveConstruct    func(dst, src unsafe.Pointer)
	destroy          func(obj unsafe.Pointer)
	hash             func(obj unsafe.Pointer) uint64
	equals           func(a, b unsafe.Pointer) bool
	streamWrite      func(w io.Writer, obj unsafe.Pointer) error
	streamRead       func(r io.Reader, dst unsafe.Pointer) error
}

// Type is a runtime type descriptor. The zero Type is invalid.
type Type struct {
	t *table
}

// TypeID identifies a concrete type. It supports equality and has a
// display name.
type TypeID struct {
	rt reflect.Type
}

func (id TypeID) Name() string { return id.rt.String() }

// Valid reports whether the descriptor describes a type.
func (t Type) Valid() bool { return t.t != nil }

// Size returns the size in bytes of the described type. It is a
// non-zero multiple of Alignment.
func (t Type) Size() uintptr { return t.t.size }

// Alignment returns the alignment of the described type, a power of two.
func (t Type) Alignment() uintptr { return t.t.align }

// Has reports whether every feature in f is part of the feature set.
func (t Type) Has(f Feature) bool { return t.t.feats&f == f }

// PointerFree reports whether values of the described type contain no
// Go pointers. Pointer-free values may be stored in memory the garbage
// collector does not scan without further precautions.
func (t Type) PointerFree() bool { return t.t.ptrFree }

// Same reports whether the two descriptors describe the same concrete
// type, regardless of their feature sets.
func (t Type) Same(o Type) bool {
	if t.t == nil || o.t == nil {
		return t.t == o.t
	}
	return t.t == o.t || t.t.rt == o.t.rt
}

// TypeID returns the identity of the described type. Requires RTTI.
func (t Type) TypeID() TypeID {
	t.need(RTTI)
	return TypeID{t.t.rt}
}

// Name returns the display name of the described type. Requires RTTI.
func (t Type) Name() string {
	t.need(RTTI)
	return t.t.rt.String()
}

// ReflectType returns the reflect.Type behind the descriptor. Requires
// RTTI.
func (t Type) ReflectType() reflect.Type {
	t.need(RTTI)
	return t.t.rt
}

// DefaultConstruct constructs a value at dst, which must be Size bytes
// of memory aligned to Alignment. On error no value exists at dst.
func (t Type) DefaultConstruct(dst unsafe.Pointer) error {
	t.need(DefaultConstruct)
	return t.t.defaultConstruct(dst)
}

// CopyConstruct constructs at dst a copy of the value at src. On error
// no value exists at dst and src is unchanged.
func (t Type) CopyConstruct(dst, src unsafe.Pointer) error {
	t.need(CopyConstruct)
	return t.t.copyConstruct(dst, src)
}

// MoveConstruct moves the value at src into dst. It cannot fail.
// Ownership transfers to dst; the caller must not destroy src.
func (t Type) MoveConstruct(dst, src unsafe.Pointer) {
	t.need(MoveConstruct)
	t.t.moveConstruct(dst, src)
}

// Destroy ends the lifetime of the value at obj. It cannot fail and
// must be called at most once per constructed value.
func (t Type) Destroy(obj unsafe.Pointer) {
	t.need(Destroy)
	t.t.destroy(obj)
}

// Hash returns a 64-bit hash of the value at obj.
func (t Type) Hash(obj unsafe.Pointer) uint64 {
	t.need(Hash)
	return t.t.hash(obj)
}

// Equals reports whether the values at a and b are equal.
func (t Type) Equals(a, b unsafe.Pointer) bool {
	t.need(Equals)
	return t.t.equals(a, b)
}

// StreamWrite writes a textual representation of the value at obj.
func (t Type) StreamWrite(w io.Writer, obj unsafe.Pointer) error {
	t.need(StreamWrite)
	return t.t.streamWrite(w, obj)
}

// StreamRead constructs a value at dst from the representation read
// from r. On error no value exists at dst.
func (t Type) StreamRead(r io.Reader, dst unsafe.Pointer) error {
	t.need(StreamRead)
	return t.t.streamRead(r, dst)
}

func (t Type) need(f Feature) {
	if paranoia && !t.Has(f) {
		panic("runtype: feature not in the descriptor's feature set")
	}
}
