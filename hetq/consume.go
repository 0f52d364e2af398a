// Copyright 2025 the Hetseq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hetq

import (
	"unsafe"

	"github.com/densepack/hetseq/runtype"
)

// TryStartConsume claims the first consumable element. The returned
// handle is empty when nothing is consumable; otherwise the claim must
// be finished with exactly one Commit, CommitNodestroy or Cancel.
func (q *Queue) TryStartConsume() Consume {
	cs, ok := q.head.tryStartConsume()
	if !ok {
		return Consume{}
	}
	return Consume{q: q, cs: cs}
}

// TryPop consumes and destroys the first consumable element. It
// reports whether an element was consumed.
func (q *Queue) TryPop() bool {
	c := q.TryStartConsume()
	if c.Empty() {
		return false
	}
	c.Commit()
	return true
}

// Consume is a claimed element. While the claim is held the element
// is exclusively owned by this consumer; Cancel returns it to the
// queue, Commit destroys and releases it.
type Consume struct {
	q    *Queue
	cs   cslot
	done bool
}

// Empty reports whether the handle holds no claim.
func (c *Consume) Empty() bool { return c.q == nil }

// Queue returns the queue the claim belongs to.
func (c *Consume) Queue() *Queue { return c.q }

// CompleteType returns the descriptor of the claimed element.
func (c *Consume) CompleteType() runtype.Type {
	c.check()
	return c.cs.rtd
}

// ElementPtr returns the payload address of the claimed element.
func (c *Consume) ElementPtr() unsafe.Pointer {
	c.check()
	return c.cs.payload
}

// UnalignedElementPtr returns the start of the element's storage,
// before alignment padding. Never dereference it as the element type.
func (c *Consume) UnalignedElementPtr() unsafe.Pointer {
	c.check()
	if c.cs.w&ctlExternal != 0 {
		return c.cs.payload
	}
	return unsafe.Pointer(c.cs.cb + ctlSize)
}

// Commit destroys the element and releases its slot. The consume is
// finished.
func (c *Consume) Commit() {
	c.check()
	if c.cs.rtd.Has(runtype.Destroy) {
		c.cs.rtd.Destroy(c.cs.payload)
	}
	c.finish(true)
}

// CommitNodestroy releases the slot without destroying the element.
// The caller promises the element has already been destroyed, for
// example by moving it out.
func (c *Consume) CommitNodestroy() {
	c.check()
	c.finish(true)
}

// Cancel returns the element to the queue unconsumed.
func (c *Consume) Cancel() {
	c.check()
	c.finish(false)
}

func (c *Consume) finish(dead bool) {
	if dead {
		ctl(c.cs.cb).next.Store((c.cs.w &^ ctlBusy) | ctlDead)
	} else {
		ctl(c.cs.cb).next.Store(c.cs.w &^ ctlBusy)
	}
	if c.cs.page != nil {
		unpinPage(c.q, c.cs.page)
	}
	c.done = true
	if dead {
		c.q.head.clean()
	}
}

func (c *Consume) check() {
	if paranoia && (c.q == nil || c.done) {
		panic("hetq: use of empty or finished consume")
	}
}

// ElementAs returns the claimed element as a typed pointer. The caller
// asserts the complete type is C.
func ElementAs[C any](c *Consume) *C {
	c.check()
	if paranoia && !c.cs.rtd.Same(runtype.MakeDefault[C]()) {
		panic("hetq: element is not of the requested type")
	}
	return (*C)(c.cs.payload)
}

// ElementBase returns the claimed element as the interface type B.
func ElementBase[B any](c *Consume) B {
	c.check()
	return runtype.As[B](c.cs.rtd, c.cs.payload)
}
