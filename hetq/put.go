// Copyright 2025 the Hetseq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hetq

import (
	"unsafe"

	"github.com/pkg/errors"

	"github.com/densepack/hetseq/alloc"
	"github.com/densepack/hetseq/runtype"
)

// exhausted reports a contention or allocator outcome that a Try
// operation encodes as an empty result rather than an error.
func exhausted(err error) bool {
	return errors.Is(err, alloc.ErrExhausted)
}

// putImmediate is the fused allocate-construct-commit path shared by
// every immediate put.
func (q *Queue) putImmediate(g alloc.Progress, rtd runtype.Type, construct func(dst unsafe.Pointer) error) error {
	s, err := q.putSlot(g, rtd)
	if err != nil {
		return err
	}
	if !q.tail.earlyBusy() {
		// Relaxed link: the slot becomes visible, busy, before the
		// element exists.
		publish(&s, ctlBusy)
	}
	if err := construct(s.payload); err != nil {
		publish(&s, ctlDead)
		return err
	}
	publish(&s, 0)
	return nil
}

// putStart is the shared transactional allocate-construct path. The
// slot stays uncommitted: busy and linked under sequential tails,
// invisible under the relaxed tail.
func (q *Queue) putStart(g alloc.Progress, rtd runtype.Type, construct func(dst unsafe.Pointer) error) (PutTransaction, error) {
	s, err := q.putSlot(g, rtd)
	if err != nil {
		return PutTransaction{}, err
	}
	if construct != nil {
		if err := construct(s.payload); err != nil {
			publish(&s, ctlDead)
			return PutTransaction{}, err
		}
	}
	return PutTransaction{q: q, s: s, rtd: rtd, g: g}, nil
}

// Push appends a copy of v. Blocking; propagates construction and
// allocation failures with the queue unchanged.
func Push[C any](q *Queue, v C) error {
	rtd := runtype.MakeDefault[C]()
	return q.putImmediate(alloc.Blocking, rtd, func(dst unsafe.Pointer) error {
		return rtd.CopyConstruct(dst, unsafe.Pointer(&v))
	})
}

// TryPush is Push under a progress guarantee. ok is false, with a nil
// error, when the guarantee could not be honored.
func TryPush[C any](q *Queue, g alloc.Progress, v C) (ok bool, err error) {
	rtd := runtype.MakeDefault[C]()
	err = q.putImmediate(g, rtd, func(dst unsafe.Pointer) error {
		return rtd.CopyConstruct(dst, unsafe.Pointer(&v))
	})
	if err != nil {
		if exhausted(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Emplace appends a default-constructed C.
func Emplace[C any](q *Queue) error {
	rtd := runtype.MakeDefault[C]()
	return q.putImmediate(alloc.Blocking, rtd, rtd.DefaultConstruct)
}

// TryEmplace is Emplace under a progress guarantee.
func TryEmplace[C any](q *Queue, g alloc.Progress) (ok bool, err error) {
	rtd := runtype.MakeDefault[C]()
	err = q.putImmediate(g, rtd, rtd.DefaultConstruct)
	if err != nil {
		if exhausted(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// StartPush begins a transactional put of a copy of v. The element is
// constructed immediately but stays invisible to consumers until
// Commit.
func StartPush[C any](q *Queue, v C) (PutTransaction, error) {
	rtd := runtype.MakeDefault[C]()
	return q.putStart(alloc.Blocking, rtd, func(dst unsafe.Pointer) error {
		return rtd.CopyConstruct(dst, unsafe.Pointer(&v))
	})
}

// TryStartPush is StartPush under a progress guarantee; the returned
// transaction is empty, with a nil error, when the guarantee could not
// be honored.
func TryStartPush[C any](q *Queue, g alloc.Progress, v C) (PutTransaction, error) {
	rtd := runtype.MakeDefault[C]()
	tx, err := q.putStart(g, rtd, func(dst unsafe.Pointer) error {
		return rtd.CopyConstruct(dst, unsafe.Pointer(&v))
	})
	if err != nil && exhausted(err) {
		return PutTransaction{}, nil
	}
	return tx, err
}

// StartEmplace begins a transactional put of a default-constructed C.
func StartEmplace[C any](q *Queue) (PutTransaction, error) {
	rtd := runtype.MakeDefault[C]()
	return q.putStart(alloc.Blocking, rtd, rtd.DefaultConstruct)
}

// TryStartEmplace is StartEmplace under a progress guarantee.
func TryStartEmplace[C any](q *Queue, g alloc.Progress) (PutTransaction, error) {
	rtd := runtype.MakeDefault[C]()
	tx, err := q.putStart(g, rtd, rtd.DefaultConstruct)
	if err != nil && exhausted(err) {
		return PutTransaction{}, nil
	}
	return tx, err
}

// DynPush appends a default-constructed element of a type known only
// at runtime.
func (q *Queue) DynPush(rtd runtype.Type) error {
	return q.putImmediate(alloc.Blocking, rtd, rtd.DefaultConstruct)
}

// DynPushCopy appends a copy of the value at src, of the descriptor's
// type.
func (q *Queue) DynPushCopy(rtd runtype.Type, src unsafe.Pointer) error {
	return q.putImmediate(alloc.Blocking, rtd, func(dst unsafe.Pointer) error {
		return rtd.CopyConstruct(dst, src)
	})
}

// DynPushMove appends the value at src by moving it. Ownership of the
// source value transfers to the queue.
func (q *Queue) DynPushMove(rtd runtype.Type, src unsafe.Pointer) error {
	return q.putImmediate(alloc.Blocking, rtd, func(dst unsafe.Pointer) error {
		rtd.MoveConstruct(dst, src)
		return nil
	})
}

// TryDynPush is DynPush under a progress guarantee.
func (q *Queue) TryDynPush(g alloc.Progress, rtd runtype.Type) (bool, error) {
	err := q.putImmediate(g, rtd, rtd.DefaultConstruct)
	if err != nil {
		if exhausted(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// TryDynPushCopy is DynPushCopy under a progress guarantee.
func (q *Queue) TryDynPushCopy(g alloc.Progress, rtd runtype.Type, src unsafe.Pointer) (bool, error) {
	err := q.putImmediate(g, rtd, func(dst unsafe.Pointer) error {
		return rtd.CopyConstruct(dst, src)
	})
	if err != nil {
		if exhausted(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// TryDynPushMove is DynPushMove under a progress guarantee.
func (q *Queue) TryDynPushMove(g alloc.Progress, rtd runtype.Type, src unsafe.Pointer) (bool, error) {
	err := q.putImmediate(g, rtd, func(dst unsafe.Pointer) error {
		rtd.MoveConstruct(dst, src)
		return nil
	})
	if err != nil {
		if exhausted(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// StartDynPush begins a transactional put of a default-constructed
// element of the descriptor's type.
func (q *Queue) StartDynPush(rtd runtype.Type) (PutTransaction, error) {
	return q.putStart(alloc.Blocking, rtd, rtd.DefaultConstruct)
}

// StartDynPushCopy begins a transactional put of a copy of the value
// at src.
func (q *Queue) StartDynPushCopy(rtd runtype.Type, src unsafe.Pointer) (PutTransaction, error) {
	return q.putStart(alloc.Blocking, rtd, func(dst unsafe.Pointer) error {
		return rtd.CopyConstruct(dst, src)
	})
}

// StartDynPushMove begins a transactional put moving the value at src.
func (q *Queue) StartDynPushMove(rtd runtype.Type, src unsafe.Pointer) (PutTransaction, error) {
	return q.putStart(alloc.Blocking, rtd, func(dst unsafe.Pointer) error {
		rtd.MoveConstruct(dst, src)
		return nil
	})
}

// TryStartDynPush is StartDynPush under a progress guarantee.
func (q *Queue) TryStartDynPush(g alloc.Progress, rtd runtype.Type) (PutTransaction, error) {
	tx, err := q.putStart(g, rtd, rtd.DefaultConstruct)
	if err != nil && exhausted(err) {
		return PutTransaction{}, nil
	}
	return tx, err
}

// TryStartDynPushCopy is StartDynPushCopy under a progress guarantee.
func (q *Queue) TryStartDynPushCopy(g alloc.Progress, rtd runtype.Type, src unsafe.Pointer) (PutTransaction, error) {
	tx, err := q.putStart(g, rtd, func(dst unsafe.Pointer) error {
		return rtd.CopyConstruct(dst, src)
	})
	if err != nil && exhausted(err) {
		return PutTransaction{}, nil
	}
	return tx, err
}

// TryStartDynPushMove is StartDynPushMove under a progress guarantee.
func (q *Queue) TryStartDynPushMove(g alloc.Progress, rtd runtype.Type, src unsafe.Pointer) (PutTransaction, error) {
	tx, err := q.putStart(g, rtd, func(dst unsafe.Pointer) error {
		rtd.MoveConstruct(dst, src)
		return nil
	})
	if err != nil && exhausted(err) {
		return PutTransaction{}, nil
	}
	return tx, err
}

// PutTransaction is an in-progress put. The element is constructed
// and modifiable through ElementPtr, but not yet observable. It must
// be finished with exactly one Commit or Cancel.
//
// A transaction obtained from a non-reentrant start forbids any other
// call on the same queue from this goroutine before it finishes; the
// Reentrant variants lift that restriction.
type PutTransaction struct {
	q    *Queue
	s    slot
	rtd  runtype.Type
	g    alloc.Progress
	done bool
}

// Empty reports whether the handle holds no transaction.
func (tx *PutTransaction) Empty() bool { return tx.q == nil }

// Queue returns the queue the transaction belongs to.
func (tx *PutTransaction) Queue() *Queue { return tx.q }

// ElementPtr returns the address of the element under construction.
func (tx *PutTransaction) ElementPtr() unsafe.Pointer {
	tx.check()
	return tx.s.payload
}

// CompleteType returns the descriptor of the element.
func (tx *PutTransaction) CompleteType() runtype.Type {
	tx.check()
	return tx.rtd
}

// RawAllocate reserves size bytes, aligned to align, bound to the
// lifetime of the element: the bytes are reclaimed when the element's
// control block is. The result is aligned at least to the allocator's
// minimum alignment.
func (tx *PutTransaction) RawAllocate(size, align uintptr) (unsafe.Pointer, error) {
	tx.check()
	if align < granularity {
		align = granularity
	}
	if fitsInline(size, align) {
		s, err := tx.q.tail.reserve(tx.g, kindRaw, size, align)
		if err != nil {
			return nil, err
		}
		publish(&s, ctlDead)
		return s.payload, nil
	}

	s, err := tx.q.tail.reserve(tx.g, kindExtern, size, align)
	if err != nil {
		return nil, err
	}
	data, err := tx.q.a.Allocate(size, align, tx.g)
	if err != nil {
		publish(&s, ctlDead)
		return nil, err
	}
	*externalRec(s.cb) = external{data: data, size: size, align: align}
	s.flags |= ctlExternal
	publish(&s, ctlDead)
	return data, nil
}

// RawAllocateCopy is RawAllocate of len(b) bytes initialized with a
// copy of b.
func (tx *PutTransaction) RawAllocateCopy(b []byte) (unsafe.Pointer, error) {
	ptr, err := tx.RawAllocate(uintptr(len(b)), granularity)
	if err != nil {
		return nil, err
	}
	copy(unsafe.Slice((*byte)(ptr), len(b)), b)
	return ptr, nil
}

// Commit publishes the element. After Commit the element is
// observable and the transaction is finished.
func (tx *PutTransaction) Commit() {
	tx.check()
	publish(&tx.s, 0)
	tx.done = true
}

// Cancel destroys the element and buries its slot. The queue is left
// as if the put had never started.
func (tx *PutTransaction) Cancel() {
	tx.check()
	if tx.rtd.Has(runtype.Destroy) {
		tx.rtd.Destroy(tx.s.payload)
	}
	publish(&tx.s, ctlDead)
	tx.done = true
}

func (tx *PutTransaction) check() {
	if paranoia && (tx.q == nil || tx.done) {
		panic("hetq: use of empty or finished put transaction")
	}
}

// TxElement returns the element under construction as a typed
// pointer. The caller asserts the complete type is C.
func TxElement[C any](tx *PutTransaction) *C {
	tx.check()
	if paranoia && !tx.rtd.Same(runtype.MakeDefault[C]()) {
		panic("hetq: element is not of the requested type")
	}
	return (*C)(tx.s.payload)
}
