// Copyright 2025 the Hetseq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hetq

import (
	"sync/atomic"
	"unsafe"

	"github.com/densepack/hetseq/alloc"
)

// mpSeqTail is the multiple-producer tail under sequential
// consistency. Reservation is a compare-and-swap advance of the shared
// tail cursor; the winning producer immediately writes its control
// word, so all reservations form a single global order and consumers
// observe elements in it, waiting out busy slots.
//
// The compare-and-swap is immune to recycling: a reservation is
// derived purely from the cursor value it read, so a cursor that
// returns to an old address after a full wrap yields a reservation
// identical to a fresh one.
type mpSeqTail struct {
	q    *Queue
	tail atomic.Uintptr
}

func (t *mpSeqTail) earlyBusy() bool { return true }

func (t *mpSeqTail) reserve(g alloc.Progress, kind blockKind, size, align uintptr) (slot, error) {
	for {
		cb := t.tail.Load()
		end := blockEnd(kind, cb, size, align)
		if end <= endLimit(alloc.PageOf(unsafe.Pointer(cb))) {
			if !t.tail.CompareAndSwap(cb, end) {
				if g == alloc.WaitFree {
					return slot{}, alloc.ErrExhausted
				}
				continue
			}
			s := slot{
				cb:      cb,
				next:    end,
				payload: blockPayload(kind, cb, align),
			}
			if kind == kindExtern {
				s.payload = nil
			}
			if kind != kindRaw {
				publish(&s, ctlBusy)
			}
			return s, nil
		}

		// Page exhausted. Every contender brings a page; the one whose
		// compare-and-swap lands installs it and seals the old page,
		// the others return theirs to the allocator and retry.
		np, err := t.q.a.AllocatePage(g)
		if err != nil {
			return slot{}, err
		}
		first := uintptr(np.Begin())
		if t.tail.CompareAndSwap(cb, first) {
			ctl(cb).next.Store(first | ctlPageEnd)
		} else {
			t.q.a.DeallocatePage(np)
			if g == alloc.WaitFree {
				return slot{}, alloc.ErrExhausted
			}
		}
	}
}
