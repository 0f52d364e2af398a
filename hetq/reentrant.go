// Copyright 2025 the Hetseq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hetq

import (
	"unsafe"

	"github.com/densepack/hetseq/alloc"
	"github.com/densepack/hetseq/runtype"
)

// Reentrant put and consume variants. A transaction obtained from the
// plain Start functions forbids any other call on the same queue from
// the same goroutine until it finishes; the functions below lift that
// restriction: the goroutine may keep putting and consuming while the
// transaction is open.
//
// The restriction is contractual, not structural: both families run
// the same slot protocol, and this implementation keeps them
// identical. The non-reentrant contract is still the one callers
// should prefer, since it leaves future implementations free to take
// single-threaded fast paths.

// ReentrantPush is Push without the reentrancy restriction.
func ReentrantPush[C any](q *Queue, v C) error {
	return Push(q, v)
}

// TryReentrantPush is TryPush without the reentrancy restriction.
func TryReentrantPush[C any](q *Queue, g alloc.Progress, v C) (bool, error) {
	return TryPush(q, g, v)
}

// ReentrantEmplace is Emplace without the reentrancy restriction.
func ReentrantEmplace[C any](q *Queue) error {
	return Emplace[C](q)
}

// ReentrantDynPush is DynPush without the reentrancy restriction.
func (q *Queue) ReentrantDynPush(rtd runtype.Type) error {
	return q.DynPush(rtd)
}

// ReentrantDynPushCopy is DynPushCopy without the reentrancy
// restriction.
func (q *Queue) ReentrantDynPushCopy(rtd runtype.Type, src unsafe.Pointer) error {
	return q.DynPushCopy(rtd, src)
}

// ReentrantDynPushMove is DynPushMove without the reentrancy
// restriction.
func (q *Queue) ReentrantDynPushMove(rtd runtype.Type, src unsafe.Pointer) error {
	return q.DynPushMove(rtd, src)
}

// StartReentrantPush is StartPush without the reentrancy restriction.
func StartReentrantPush[C any](q *Queue, v C) (PutTransaction, error) {
	return StartPush(q, v)
}

// TryStartReentrantPush is TryStartPush without the reentrancy
// restriction.
func TryStartReentrantPush[C any](q *Queue, g alloc.Progress, v C) (PutTransaction, error) {
	return TryStartPush(q, g, v)
}

// StartReentrantEmplace is StartEmplace without the reentrancy
// restriction.
func StartReentrantEmplace[C any](q *Queue) (PutTransaction, error) {
	return StartEmplace[C](q)
}

// TryStartReentrantEmplace is TryStartEmplace without the reentrancy
// restriction.
func TryStartReentrantEmplace[C any](q *Queue, g alloc.Progress) (PutTransaction, error) {
	return TryStartEmplace[C](q, g)
}

// StartReentrantDynPush is StartDynPush without the reentrancy
// restriction.
func (q *Queue) StartReentrantDynPush(rtd runtype.Type) (PutTransaction, error) {
	return q.StartDynPush(rtd)
}

// StartReentrantDynPushCopy is StartDynPushCopy without the
// reentrancy restriction.
func (q *Queue) StartReentrantDynPushCopy(rtd runtype.Type, src unsafe.Pointer) (PutTransaction, error) {
	return q.StartDynPushCopy(rtd, src)
}

// StartReentrantDynPushMove is StartDynPushMove without the
// reentrancy restriction.
func (q *Queue) StartReentrantDynPushMove(rtd runtype.Type, src unsafe.Pointer) (PutTransaction, error) {
	return q.StartDynPushMove(rtd, src)
}

// TryStartReentrantDynPush is TryStartDynPush without the reentrancy
// restriction.
func (q *Queue) TryStartReentrantDynPush(g alloc.Progress, rtd runtype.Type) (PutTransaction, error) {
	return q.TryStartDynPush(g, rtd)
}

// TryStartReentrantDynPushCopy is TryStartDynPushCopy without the
// reentrancy restriction.
func (q *Queue) TryStartReentrantDynPushCopy(g alloc.Progress, rtd runtype.Type, src unsafe.Pointer) (PutTransaction, error) {
	return q.TryStartDynPushCopy(g, rtd, src)
}

// TryStartReentrantDynPushMove is TryStartDynPushMove without the
// reentrancy restriction.
func (q *Queue) TryStartReentrantDynPushMove(g alloc.Progress, rtd runtype.Type, src unsafe.Pointer) (PutTransaction, error) {
	return q.TryStartDynPushMove(g, rtd, src)
}

// TryStartReentrantConsume is TryStartConsume without the reentrancy
// restriction.
func (q *Queue) TryStartReentrantConsume() Consume {
	return q.TryStartConsume()
}
