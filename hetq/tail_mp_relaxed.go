// Copyright 2025 the Hetseq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hetq

import (
	"sync/atomic"
	"unsafe"

	"github.com/densepack/hetseq/alloc"
)

// mpRelaxedTail is the multiple-producer tail under relaxed
// consistency. Reservation advances the shared cursor but leaves the
// control word zero: the slot, and every slot reserved after it, stays
// invisible to consumers until this producer links it with its first
// publish. The truncation window this opens is usually tiny but has no
// guaranteed bound.
type mpRelaxedTail struct {
	q    *Queue
	tail atomic.Uintptr
}

func (t *mpRelaxedTail) earlyBusy() bool { return false }

func (t *mpRelaxedTail) reserve(g alloc.Progress, kind blockKind, size, align uintptr) (slot, error) {
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
			return s, nil
		}

		np, err := t.q.a.AllocatePage(g)
		if err != nil {
			return slot{}, err
		}
		first := uintptr(np.Begin())
		if t.tail.CompareAndSwap(cb, first) {
			// The end-of-page word is linked eagerly even under the
			// relaxed model; only element words defer their link.
			ctl(cb).next.Store(first | ctlPageEnd)
		} else {
			t.q.a.DeallocatePage(np)
			if g == alloc.WaitFree {
				return slot{}, alloc.ErrExhausted
			}
		}
	}
}
