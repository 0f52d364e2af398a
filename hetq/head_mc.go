// Copyright 2025 the Hetseq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hetq

import (
	"sync/atomic"
	"unsafe"

	"github.com/densepack/hetseq/alloc"
)

// mcHead is the multiple-consumer head. Consumers pin the page they
// scan so reclamation cannot pull it out from under them; the claim of
// an element is a compare-and-swap of its control word from ready to
// busy, which makes double consumption impossible. The pin travels
// with the consume handle until commit or cancel.
type mcHead struct {
	q        *Queue
	head     atomic.Uintptr
	skipBusy bool
}

func (h *mcHead) headAddr() uintptr { return h.head.Load() }

// pinHead pins the page currently containing the head. A page is
// retired only after the head has left it, so once the pin is in
// place and the head is re-read inside the same page, the page is
// stable until the matching unpin.
func (h *mcHead) pinHead() (uintptr, *alloc.Page) {
	for {
		hd := h.head.Load()
		pg := alloc.PageOf(unsafe.Pointer(hd))
		pg.Pin()
		if cur := h.head.Load(); alloc.PageOf(unsafe.Pointer(cur)) == pg {
			return cur, pg
		}
		unpinPage(h.q, pg)
	}
}

// advance moves the head from a dead or end-of-page block to its
// successor. Only the winning consumer cleans the block: it frees the
// external payload, or retires the crossed page.
func (h *mcHead) advance(from, w uintptr) {
	next := w &^ ctlFlagMask
	if !h.head.CompareAndSwap(from, next) {
		return
	}
	if w&ctlPageEnd != 0 {
		retirePage(h.q, alloc.PageOf(unsafe.Pointer(from)))
		return
	}
	h.q.freeExternalOf(from, w)
}

func (h *mcHead) tryStartConsume() (cslot, bool) {
	scan, pg := h.pinHead()
	for {
		w := ctl(scan).next.Load()
		if w == 0 {
			unpinPage(h.q, pg)
			return cslot{}, false
		}
		next := w &^ ctlFlagMask

		switch {
		case w&ctlPageEnd != 0:
			np := alloc.PageOf(unsafe.Pointer(next))
			np.Pin()
			h.advance(scan, w)
			unpinPage(h.q, pg)
			pg = np
			scan = next

		case w&ctlDead != 0:
			h.advance(scan, w)
			scan = next

		case w&ctlBusy != 0:
			if h.skipBusy && next != 0 {
				scan = next
				continue
			}
			unpinPage(h.q, pg)
			return cslot{}, false

		default: // ready
			if !ctl(scan).next.CompareAndSwap(w, w|ctlBusy) {
				continue // claimed or changed under us, reload
			}
			rtd := *rtdSlot(scan)
			return cslot{
				cb:      scan,
				w:       w | ctlBusy,
				rtd:     rtd,
				payload: claimedPayload(scan, w, rtd.Alignment()),
				page:    pg,
			}, true
		}
	}
}

func (h *mcHead) clean() {
	scan, pg := h.pinHead()
	for {
		w := ctl(scan).next.Load()
		if w == 0 || w&(ctlDead|ctlPageEnd) == 0 {
			unpinPage(h.q, pg)
			return
		}
		next := w &^ ctlFlagMask
		if w&ctlPageEnd != 0 {
			np := alloc.PageOf(unsafe.Pointer(next))
			np.Pin()
			h.advance(scan, w)
			unpinPage(h.q, pg)
			pg = np
		} else {
			h.advance(scan, w)
		}
		scan = next
	}
}

func (h *mcHead) peekEmpty() bool {
	scan, pg := h.pinHead()
	for {
		w := ctl(scan).next.Load()
		if w == 0 {
			unpinPage(h.q, pg)
			return true
		}
		next := w &^ ctlFlagMask
		if w&ctlPageEnd != 0 {
			np := alloc.PageOf(unsafe.Pointer(next))
			np.Pin()
			unpinPage(h.q, pg)
			pg = np
			scan = next
			continue
		}
		if w&ctlDead != 0 {
			scan = next
			continue
		}
		unpinPage(h.q, pg)
		return false
	}
}
