// Copyright 2025 the Hetseq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hetq

import (
	"unsafe"

	"github.com/pkg/errors"

	"github.com/densepack/hetseq/alloc"
	"github.com/densepack/hetseq/internal/arith"
	"github.com/densepack/hetseq/runtype"
)

// Cardinality states how many goroutines act on one side of the queue.
type Cardinality int

const (
	// Single restricts the side to one goroutine at a time.
	Single Cardinality = iota

	// Multiple allows any number of concurrent goroutines.
	Multiple
)

// Consistency selects the consistency model of a multiple-producer
// queue. It has no effect with a single producer.
type Consistency int

const (
	// Sequential totally orders put reservations across goroutines.
	Sequential Consistency = iota

	// Relaxed defers visibility of a slot to its explicit link step.
	Relaxed
)

// Config selects a queue configuration. The zero Config is a
// single-producer single-consumer sequential queue on the default
// allocator.
type Config struct {
	Producers   Cardinality
	Consumers   Cardinality
	Consistency Consistency
	Allocator   alloc.Allocator
}

// blockKind distinguishes the in-page layouts a tail can reserve.
type blockKind int

const (
	kindElem   blockKind = iota // control word, descriptor, inline payload
	kindRaw                     // control word, payload
	kindExtern                  // control word, descriptor, external record
)

// blockEnd computes the end address of a block of the given kind whose
// control word sits at cb.
func blockEnd(kind blockKind, cb, size, align uintptr) uintptr {
	switch kind {
	case kindElem:
		return inlineEnd(cb, size, align)
	case kindRaw:
		return rawEnd(cb, size, align)
	default:
		return externEnd(cb)
	}
}

// blockPayload computes the inline payload address of a block.
func blockPayload(kind blockKind, cb, align uintptr) unsafe.Pointer {
	if kind == kindRaw {
		return unsafe.Pointer(arith.UpperAlign(cb+unsafe.Sizeof(uintptr(0)), align))
	}
	return unsafe.Pointer(arith.UpperAlign(cb+ctlSize, align))
}

// producerSide is one of the tail algorithms.
type producerSide interface {
	// reserve claims a block of the given kind. For sequential tails
	// the block is immediately visible as busy (unless raw); for the
	// relaxed tail it stays invisible until the first publish.
	reserve(g alloc.Progress, kind blockKind, size, align uintptr) (slot, error)

	// earlyBusy reports whether reserve links element blocks as busy.
	earlyBusy() bool
}

// consumerSide is one of the head algorithms.
type consumerSide interface {
	tryStartConsume() (cslot, bool)

	// clean advances the head past dead blocks, best effort.
	clean()

	// peekEmpty reports whether no element is pending or consumable.
	peekEmpty() bool

	// headAddr returns the current head position.
	headAddr() uintptr
}

// cslot is a claimed element.
type cslot struct {
	cb      uintptr
	w       uintptr // control word at claim time, busy bit set
	rtd     runtype.Type
	payload unsafe.Pointer
	page    *alloc.Page // pinned by multiple-consumer heads
}

// Queue is a lock-free heterogeneous FIFO queue. Construct with New;
// the zero Queue is not usable.
//
// The cardinalities and the consistency model fixed by the Config
// bound what callers may do concurrently; see the package
// documentation.
type Queue struct {
	a    alloc.Allocator
	cfg  Config
	tail producerSide
	head consumerSide
}

// New builds a queue in the given configuration. The first page is
// allocated eagerly.
func New(cfg Config) (*Queue, error) {
	a := cfg.Allocator
	if a == nil {
		a = alloc.Default()
	}
	q := &Queue{a: a, cfg: cfg}

	pg, err := a.AllocatePage(alloc.Blocking)
	if err != nil {
		return nil, errors.Wrap(err, "hetq: initial page")
	}
	first := uintptr(pg.Begin())

	if cfg.Producers == Single {
		q.tail = &spTail{q: q, tail: first}
	} else if cfg.Consistency == Relaxed {
		t := &mpRelaxedTail{q: q}
		t.tail.Store(first)
		q.tail = t
	} else {
		t := &mpSeqTail{q: q}
		t.tail.Store(first)
		q.tail = t
	}

	skipBusy := cfg.Producers == Multiple && cfg.Consistency == Relaxed
	if cfg.Consumers == Single {
		q.head = &scHead{q: q, head: first, skipBusy: skipBusy}
	} else {
		h := &mcHead{q: q, skipBusy: skipBusy}
		h.head.Store(first)
		q.head = h
	}
	return q, nil
}

// MustNew is New for configurations that cannot fail in tests.
func MustNew(cfg Config) *Queue {
	q, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return q
}

// Config returns the configuration the queue was built with.
func (q *Queue) Config() Config {
	return q.cfg
}

// Empty reports whether no element is consumable or pending. With
// concurrent producers the answer is naturally racy.
func (q *Queue) Empty() bool {
	return q.head.peekEmpty()
}

// Clear consumes and destroys every consumable element. Elements still
// being produced are not waited for.
func (q *Queue) Clear() {
	for {
		c := q.TryStartConsume()
		if c.Empty() {
			return
		}
		c.Commit()
	}
}

// Close drains the queue and releases its pages. The queue must be
// idle: no concurrent calls and no open transactions.
func (q *Queue) Close() {
	q.Clear()
	retirePage(q, alloc.PageOf(unsafe.Pointer(q.head.headAddr())))
}

// publish stores a control word, making the slot's state visible.
func publish(s *slot, state uintptr) {
	ctl(s.cb).next.Store(s.word(state))
}

// retirePage marks a page abandoned and frees it unless pins defer
// that to the last unpinner.
func retirePage(q *Queue, p *alloc.Page) {
	p.Retire()
	if p.ClaimFree() {
		q.a.DeallocatePage(p)
	}
}

// unpinPage releases a pin, freeing the page if it was the last pin on
// a retired page.
func unpinPage(q *Queue, p *alloc.Page) {
	if p.Unpin() == 0 && p.ClaimFree() {
		q.a.DeallocatePage(p)
	}
}

// putSlot reserves a slot for an element of the descriptor's size and
// alignment, switching to an external payload block when the element
// exceeds the inline limit (maxInline), and stores the descriptor in
// the slot.
func (q *Queue) putSlot(g alloc.Progress, rtd runtype.Type) (slot, error) {
	size, align := rtd.Size(), rtd.Alignment()
	if fitsInline(size, align) {
		s, err := q.tail.reserve(g, kindElem, size, align)
		if err != nil {
			return slot{}, err
		}
		*rtdSlot(s.cb) = rtd
		return s, nil
	}

	s, err := q.tail.reserve(g, kindExtern, size, align)
	if err != nil {
		return slot{}, err
	}
	data, err := q.a.Allocate(size, align, g)
	if err != nil {
		// The in-page part is already reserved; bury it.
		publish(&s, ctlDead)
		return slot{}, err
	}
	*rtdSlot(s.cb) = rtd
	*externalRec(s.cb) = external{data: data, size: size, align: align}
	s.flags |= ctlExternal
	s.payload = data
	return s, nil
}

// freeExternalOf releases the external payload of a dead block, if any.
func (q *Queue) freeExternalOf(cb, w uintptr) {
	if w&ctlExternal == 0 {
		return
	}
	rec := externalRec(cb)
	q.a.Deallocate(rec.data, rec.size, rec.align)
}
