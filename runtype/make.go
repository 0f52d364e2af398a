// Copyright 2025 the Hetseq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package runtype

import (
	"fmt"
	"io"
	"reflect"
	"sync"
	"unsafe"

	"github.com/cespare/xxhash/v2"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

// ErrConstruct is the kind wrapped around failures of the construction
// features.
var ErrConstruct = errors.New("runtype: construction failed")

// ErrStream is the kind wrapped around failures of the stream features.
var ErrStream = errors.New("runtype: stream feature failed")

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type internKey struct {
	rt    reflect.Type
	feats Feature
}

var tables sync.Map // internKey -> *table

// Make returns the descriptor of C with the requested feature set.
// Descriptors are interned: repeated calls with the same C and feature
// set return the same handle.
//
// C must have non-zero size. Zero-size elements cannot be stored by the
// containers in this repository, whose packing derives payload addresses
// from descriptor sizes.
func Make[C any](feats Feature) Type {
	rt := reflect.TypeOf((*C)(nil)).Elem()
	if v, ok := tables.Load(internKey{rt, feats}); ok {
		return Type{v.(*table)}
	}

	size := unsafe.Sizeof(*new(C))
	align := unsafe.Alignof(*new(C))
	if size == 0 {
		panic("runtype: zero-size types are not supported")
	}
	if size%align != 0 {
		// Cannot happen for Go types, the compiler pads sizes to
		// alignment. Guards against a future layout change.
		panic("runtype: size is not a multiple of alignment")
	}

	tbl := &table{
		size:    size,
		align:   align,
		feats:   feats,
		rt:      rt,
		ptrFree: pointerFree(rt),
	}

	if feats&DefaultConstruct != 0 {
		tbl.defaultConstruct = func(dst unsafe.Pointer) error {
			var zero C
			*(*C)(dst) = zero
			return nil
		}
	}
	if feats&CopyConstruct != 0 {
		if _, ok := any((*C)(nil)).(Copier); ok {
			tbl.copyConstruct = func(dst, src unsafe.Pointer) error {
				var zero C
				*(*C)(dst) = zero
				if err := any((*C)(dst)).(Copier).CopyFrom((*C)(src)); err != nil {
					return fmt.Errorf("%w: %w", ErrConstruct, err)
				}
				return nil
			}
		} else {
			tbl.copyConstruct = func(dst, src unsafe.Pointer) error {
				*(*C)(dst) = *(*C)(src)
				return nil
			}
		}
	}
	if feats&MoveConstruct != 0 {
		tbl.moveConstruct = func(dst, src unsafe.Pointer) {
			*(*C)(dst) = *(*C)(src)
		}
	}
	if feats&Destroy != 0 {
		if _, ok := any((*C)(nil)).(Disposer); ok {
			tbl.destroy = func(obj unsafe.Pointer) {
				any((*C)(obj)).(Disposer).Dispose()
			}
		} else {
			tbl.destroy = func(unsafe.Pointer) {}
		}
	}
	if feats&Hash != 0 {
		tbl.hash = hashImpl[C](tbl)
	}
	if feats&Equals != 0 {
		if _, ok := any((*C)(nil)).(Equaler); ok {
			tbl.equals = func(a, b unsafe.Pointer) bool {
				return any((*C)(a)).(Equaler).EqualTo((*C)(b))
			}
		} else {
			tbl.equals = func(a, b unsafe.Pointer) bool {
				return reflect.DeepEqual(*(*C)(a), *(*C)(b))
			}
		}
	}
	if feats&StreamWrite != 0 {
		tbl.streamWrite = func(w io.Writer, obj unsafe.Pointer) error {
			if err := json.NewEncoder(w).Encode((*C)(obj)); err != nil {
				return fmt.Errorf("%w: %w", ErrStream, err)
			}
			return nil
		}
	}
	if feats&StreamRead != 0 {
		tbl.streamRead = func(r io.Reader, dst unsafe.Pointer) error {
			var v C
			if err := json.NewDecoder(r).Decode(&v); err != nil {
				return fmt.Errorf("%w: %w", ErrStream, err)
			}
			*(*C)(dst) = v
			return nil
		}
	}

	v, _ := tables.LoadOrStore(internKey{rt, feats}, tbl)
	return Type{v.(*table)}
}

// MakeDefault returns the descriptor of C with every feature.
func MakeDefault[C any]() Type {
	return Make[C](AllFeatures)
}

// MakeAs is Make constrained to a common base: it panics unless C
// satisfies the interface type B. Containers that advertise a common
// base derive their descriptors through MakeAs so that covariance is
// checked where the descriptor is made, not where the element is read.
func MakeAs[B any, C any](feats Feature) Type {
	bt := reflect.TypeOf((*B)(nil)).Elem()
	if bt.Kind() != reflect.Interface {
		panic("runtype: common base must be an interface type")
	}
	if !reflect.TypeOf((*C)(nil)).Elem().Implements(bt) && !reflect.PointerTo(reflect.TypeOf((*C)(nil)).Elem()).Implements(bt) {
		panic("runtype: " + reflect.TypeOf((*C)(nil)).Elem().String() + " does not satisfy base " + bt.String())
	}
	return Make[C](feats)
}

// As reads the value described by t at obj as the interface type B.
// If the value type itself satisfies B the value is copied into the
// interface; otherwise a pointer to the stored element is boxed, and
// the result aliases container memory until the element is destroyed.
func As[B any](t Type, obj unsafe.Pointer) B {
	pv := reflect.NewAt(t.t.rt, obj)
	if v, ok := pv.Elem().Interface().(B); ok {
		return v
	}
	return pv.Interface().(B)
}

func hashImpl[C any](tbl *table) func(obj unsafe.Pointer) uint64 {
	if _, ok := any((*C)(nil)).(Hasher64); ok {
		return func(obj unsafe.Pointer) uint64 {
			return any((*C)(obj)).(Hasher64).Hash64()
		}
	}
	if tbl.ptrFree {
		size := tbl.size
		return func(obj unsafe.Pointer) uint64 {
			return xxhash.Sum64(unsafe.Slice((*byte)(obj), size))
		}
	}
	// Pointerful values hash their encoded form, which is consistent
	// with the deep-equality default.
	return func(obj unsafe.Pointer) uint64 {
		b, err := json.Marshal((*C)(obj))
		if err != nil {
			return 0
		}
		return xxhash.Sum64(b)
	}
}

func pointerFree(rt reflect.Type) bool {
	switch rt.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Uintptr, reflect.Float32, reflect.Float64,
		reflect.Complex64, reflect.Complex128:
		return true
	case reflect.Array:
		return pointerFree(rt.Elem())
	case reflect.Struct:
		for i := 0; i < rt.NumField(); i++ {
			if !pointerFree(rt.Field(i).Type) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
