// Copyright 2025 the Hetseq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hetq

import (
	"unsafe"

	"github.com/densepack/hetseq/alloc"
)

// spTail is the single-producer tail: the cursor is a plain pointer
// advanced only by the owning goroutine. Element blocks are written
// with a busy control word at allocation; the release semantics of the
// atomic store publish the block to consumers.
type spTail struct {
	q    *Queue
	tail uintptr
}

func (t *spTail) earlyBusy() bool { return true }

func (t *spTail) reserve(g alloc.Progress, kind blockKind, size, align uintptr) (slot, error) {
	for {
		cb := t.tail
		end := blockEnd(kind, cb, size, align)
		if end <= endLimit(alloc.PageOf(unsafe.Pointer(cb))) {
			s := slot{
				cb:      cb,
				next:    end,
				payload: blockPayload(kind, cb, align),
			}
			if kind == kindExtern {
				s.payload = nil
			}
			t.tail = end
			if kind != kindRaw {
				publish(&s, ctlBusy)
			}
			return s, nil
		}

		// Page exhausted: chain a fresh one and seal the old page with
		// the end-of-page word, immutable from here on.
		np, err := t.q.a.AllocatePage(g)
		if err != nil {
			return slot{}, err
		}
		first := uintptr(np.Begin())
		ctl(cb).next.Store(first | ctlPageEnd)
		t.tail = first
	}
}
