// Copyright 2025 the Hetseq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package hetq implements a lock-free heterogeneous FIFO queue: a
// page-based queue whose elements may each have a different concrete
// type, described by a runtime type descriptor stored next to the
// payload.
//
// Producers and consumers synchronize exclusively through atomic
// control words on per-element headers; there are no mutexes, condition
// variables or futexes anywhere in the hot path. Waiting, where a
// caller wants it, is expressed by retrying, or avoided entirely with
// the Try family and its progress guarantee parameter.
//
// # Configurations
//
// A queue is configured at construction with a producer cardinality,
// a consumer cardinality and, for multiple producers, a consistency
// model:
//
//   - Sequential: put reservations are totally ordered across threads
//     and consumers observe elements in that order. A consumer never
//     consumes past an element that is still being produced or is
//     claimed by another consumer.
//   - Relaxed: a reserved slot becomes observable only when its
//     producer explicitly links it. Until then the queue appears
//     truncated at that slot, later elements included; the window is
//     small in practice but has no guaranteed bound. Consumers may
//     scan past linked busy slots, so multiple consumers proceed in
//     parallel.
//
// Go's sync/atomic operations are sequentially consistent, so the two
// models differ algorithmically, in when a slot is linked into the
// consumer-visible chain, not in the fences they emit.
//
// # Puts and consumes
//
// A put runs in three phases: allocate a slot, construct the element,
// commit. The immediate forms (Push, Emplace, DynPush...) fuse the
// phases; the transactional forms (StartPush, StartEmplace...) return
// a transaction that exposes the slot for field population and extra
// raw allocations before Commit or Cancel. A consume runs in two:
// claim (TryStartConsume) and commit or cancel.
//
// Non-reentrant transactions forbid any other call on the same queue
// from the same goroutine until commit or cancel; the Reentrant forms
// lift that restriction.
//
// # Memory
//
// Elements live in pages the garbage collector does not scan. Types
// whose values contain Go pointers are supported only if the caller
// keeps the referents reachable for the element's lifetime.
package hetq
