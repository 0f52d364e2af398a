// Copyright 2025 the Hetseq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hetq

import (
	"unsafe"

	"github.com/densepack/hetseq/alloc"
)

// scHead is the single-consumer head: the cursor is a plain pointer
// advanced only by the owning goroutine, and pages never need pinning
// because nothing races the reclamation decision.
type scHead struct {
	q        *Queue
	head     uintptr
	skipBusy bool
}

func (h *scHead) headAddr() uintptr { return h.head }

// step consumes one chain link at the head position: frees external
// payloads of dead blocks and retires fully crossed pages.
func (h *scHead) step(w uintptr) {
	next := w &^ ctlFlagMask
	if w&ctlPageEnd != 0 {
		old := alloc.PageOf(unsafe.Pointer(h.head))
		h.head = next
		retirePage(h.q, old)
		return
	}
	h.q.freeExternalOf(h.head, w)
	h.head = next
}

func (h *scHead) tryStartConsume() (cslot, bool) {
	scan := h.head
	for {
		w := ctl(scan).next.Load()
		if w == 0 {
			return cslot{}, false
		}
		next := w &^ ctlFlagMask

		switch {
		case w&ctlPageEnd != 0, w&ctlDead != 0:
			if scan == h.head {
				h.step(w)
			}
			scan = next

		case w&ctlBusy != 0:
			if h.skipBusy && next != 0 {
				scan = next
				continue
			}
			return cslot{}, false

		default: // ready
			if !ctl(scan).next.CompareAndSwap(w, w|ctlBusy) {
				continue // producer-side state change, reload
			}
			rtd := *rtdSlot(scan)
			return cslot{
				cb:      scan,
				w:       w | ctlBusy,
				rtd:     rtd,
				payload: claimedPayload(scan, w, rtd.Alignment()),
			}, true
		}
	}
}

func (h *scHead) clean() {
	for {
		w := ctl(h.head).next.Load()
		if w == 0 || w&(ctlDead|ctlPageEnd) == 0 {
			return
		}
		h.step(w)
	}
}

func (h *scHead) peekEmpty() bool {
	scan := h.head
	for {
		w := ctl(scan).next.Load()
		if w == 0 {
			return true
		}
		if w&(ctlPageEnd|ctlDead) != 0 {
			scan = w &^ ctlFlagMask
			continue
		}
		// Busy or ready: an element is pending or consumable.
		return false
	}
}

// claimedPayload locates the payload of a claimed block.
func claimedPayload(cb, w, align uintptr) unsafe.Pointer {
	if w&ctlExternal != 0 {
		return externalRec(cb).data
	}
	return blockPayload(kindElem, cb, align)
}
