// Copyright 2025 the Hetseq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hetq

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/densepack/hetseq/alloc"
	"github.com/densepack/hetseq/internal/testutil"
	"github.com/densepack/hetseq/runtype"
)

func newSPSC(t *testing.T) (*Queue, *testutil.CountingAllocator) {
	t.Helper()
	ca := testutil.NewCountingAllocator()
	q, err := New(Config{Allocator: ca})
	require.NoError(t, err)
	return q, ca
}

func TestFIFO(t *testing.T) {
	q, ca := newSPSC(t)
	for _, v := range []int{1, 2, 3} {
		require.NoError(t, Push(q, v))
	}

	for _, want := range []int{1, 2, 3} {
		c := q.TryStartConsume()
		require.False(t, c.Empty())
		assert.Equal(t, want, *ElementAs[int](&c))
		c.Commit()
	}
	assert.True(t, q.Empty())

	q.Close()
	ca.CheckBalanced(t)
}

func TestRoundTripValue(t *testing.T) {
	type record struct {
		A int64
		B float64
	}
	q, ca := newSPSC(t)

	v := record{A: 42, B: 2.5}
	require.NoError(t, Push(q, v))

	c := q.TryStartConsume()
	require.False(t, c.Empty())
	assert.True(t, c.CompleteType().Same(runtype.MakeDefault[record]()))
	assert.Equal(t, v, *ElementAs[record](&c))
	c.Commit()

	assert.True(t, q.Empty())
	q.Close()
	ca.CheckBalanced(t)
}

func TestMixedTypes(t *testing.T) {
	q, ca := newSPSC(t)
	require.NoError(t, Push(q, int32(7)))
	require.NoError(t, Push(q, 3.5))
	require.NoError(t, Push(q, [3]byte{1, 2, 3}))

	c := q.TryStartConsume()
	require.False(t, c.Empty())
	assert.Equal(t, int32(7), *ElementAs[int32](&c))
	c.Commit()

	c = q.TryStartConsume()
	assert.Equal(t, 3.5, *ElementAs[float64](&c))
	c.Commit()

	c = q.TryStartConsume()
	assert.Equal(t, [3]byte{1, 2, 3}, *ElementAs[[3]byte](&c))
	c.Commit()

	q.Close()
	ca.CheckBalanced(t)
}

func TestEmplaceAndDyn(t *testing.T) {
	q, ca := newSPSC(t)

	require.NoError(t, Emplace[int64](q))

	rtd := runtype.MakeDefault[int32]()
	require.NoError(t, q.DynPush(rtd))

	src := int32(5)
	require.NoError(t, q.DynPushCopy(rtd, unsafe.Pointer(&src)))
	moved := int32(9)
	require.NoError(t, q.DynPushMove(rtd, unsafe.Pointer(&moved)))

	c := q.TryStartConsume()
	assert.Equal(t, int64(0), *ElementAs[int64](&c))
	c.Commit()
	c = q.TryStartConsume()
	assert.Equal(t, int32(0), *ElementAs[int32](&c))
	c.Commit()
	c = q.TryStartConsume()
	assert.Equal(t, int32(5), *ElementAs[int32](&c))
	c.Commit()
	c = q.TryStartConsume()
	assert.Equal(t, int32(9), *ElementAs[int32](&c))
	c.Commit()

	q.Close()
	ca.CheckBalanced(t)
}

func TestTransactionalPut(t *testing.T) {
	q, ca := newSPSC(t)

	tx, err := StartPush(q, 10)
	require.NoError(t, err)
	require.False(t, tx.Empty())

	// Uncommitted: not observable.
	c := q.TryStartConsume()
	assert.True(t, c.Empty())

	// The slot is modifiable until commit.
	*(*int)(tx.ElementPtr()) = 11
	assert.True(t, tx.CompleteType().Same(runtype.MakeDefault[int]()))
	tx.Commit()

	c = q.TryStartConsume()
	require.False(t, c.Empty())
	assert.Equal(t, 11, *ElementAs[int](&c))
	c.Commit()

	q.Close()
	ca.CheckBalanced(t)
}

func TestPutCancel(t *testing.T) {
	q, ca := newSPSC(t)

	tx, err := StartPush(q, 10)
	require.NoError(t, err)
	tx.Cancel()
	assert.True(t, q.Empty())

	c := q.TryStartConsume()
	assert.True(t, c.Empty())

	q.Close()
	ca.CheckBalanced(t)
}

func TestConsumeCancel(t *testing.T) {
	q, ca := newSPSC(t)
	require.NoError(t, Push(q, 77))

	c := q.TryStartConsume()
	require.False(t, c.Empty())
	c.Cancel()

	// The element is consumable again.
	c = q.TryStartConsume()
	require.False(t, c.Empty())
	assert.Equal(t, 77, *ElementAs[int](&c))
	c.Commit()

	q.Close()
	ca.CheckBalanced(t)
}

type counted struct {
	V     int64
	count *int64
}

func (c *counted) Dispose() {
	if c.count != nil {
		*c.count++
	}
}

func TestCommitDestroys(t *testing.T) {
	q, ca := newSPSC(t)
	var disposed int64
	require.NoError(t, Push(q, counted{V: 1, count: &disposed}))

	c := q.TryStartConsume()
	require.False(t, c.Empty())
	c.Commit()
	assert.Equal(t, int64(1), disposed)

	// CommitNodestroy skips the destroy feature.
	require.NoError(t, Push(q, counted{V: 2, count: &disposed}))
	c = q.TryStartConsume()
	require.False(t, c.Empty())
	c.CommitNodestroy()
	assert.Equal(t, int64(1), disposed)

	q.Close()
	ca.CheckBalanced(t)
}

func TestTryPop(t *testing.T) {
	q, ca := newSPSC(t)
	require.NoError(t, Push(q, 1))
	assert.True(t, q.TryPop())
	assert.False(t, q.TryPop())
	q.Close()
	ca.CheckBalanced(t)
}

func TestExternalPayload(t *testing.T) {
	type big struct {
		Data [40000]byte
	}
	q, ca := newSPSC(t)

	v := big{}
	v.Data[0], v.Data[39999] = 0xAA, 0xBB
	require.NoError(t, Push(q, v))
	assert.Equal(t, int64(1), ca.Blocks.Load())

	c := q.TryStartConsume()
	require.False(t, c.Empty())
	got := ElementAs[big](&c)
	assert.Equal(t, byte(0xAA), got.Data[0])
	assert.Equal(t, byte(0xBB), got.Data[39999])
	c.Commit()

	// The external block is reclaimed with the control block.
	assert.True(t, q.Empty())
	q.Close()
	ca.CheckBalanced(t)
}

func TestExternalTryPutFailsNonBlocking(t *testing.T) {
	type big struct {
		Data [40000]byte
	}
	q, ca := newSPSC(t)

	ok, err := TryPush(q, alloc.LockFree, big{})
	require.NoError(t, err)
	assert.False(t, ok, "oversize put cannot be lock-free on this allocator")

	assert.True(t, q.Empty())
	q.Close()
	ca.CheckBalanced(t)
}

func TestTryPushInPage(t *testing.T) {
	q, ca := newSPSC(t)

	// Within the current page no guarantee needs the allocator.
	ok, err := TryPush(q, alloc.WaitFree, 123)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, q.TryPop())

	q.Close()
	ca.CheckBalanced(t)
}

func TestRawAllocate(t *testing.T) {
	q, ca := newSPSC(t)

	tx, err := StartPush(q, 5)
	require.NoError(t, err)
	raw, err := tx.RawAllocate(100, 32)
	require.NoError(t, err)
	assert.Zero(t, uintptr(raw)%32)
	b := unsafe.Slice((*byte)(raw), 100)
	for i := range b {
		b[i] = byte(i)
	}

	cp, err := tx.RawAllocateCopy([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(unsafe.Slice((*byte)(cp), 5)))
	tx.Commit()

	c := q.TryStartConsume()
	require.False(t, c.Empty())
	assert.Equal(t, 5, *ElementAs[int](&c))
	assert.Equal(t, byte(42), b[42])
	c.Commit()

	q.Close()
	ca.CheckBalanced(t)
}

func TestPageRollover(t *testing.T) {
	q, ca := newSPSC(t)

	type chunk struct {
		Data [1024]byte
	}
	const n = 500 // several pages worth
	for i := 0; i < n; i++ {
		v := chunk{}
		v.Data[0] = byte(i)
		require.NoError(t, Push(q, v))
	}
	for i := 0; i < n; i++ {
		c := q.TryStartConsume()
		require.False(t, c.Empty(), "element %d", i)
		assert.Equal(t, byte(i), ElementAs[chunk](&c).Data[0])
		c.Commit()
	}
	assert.True(t, q.Empty())

	q.Close()
	ca.CheckBalanced(t)
}

func TestConstructorFailureBuriesSlot(t *testing.T) {
	q, ca := newSPSC(t)

	restore := testutil.FailCopiesAfter(0)
	err := Push(q, testutil.Flaky{Value: 1})
	restore()
	require.Error(t, err)
	assert.ErrorIs(t, err, runtype.ErrConstruct)
	assert.True(t, q.Empty())

	// The queue keeps working after the failure.
	require.NoError(t, Push(q, testutil.Flaky{Value: 2}))
	c := q.TryStartConsume()
	require.False(t, c.Empty())
	assert.Equal(t, int64(2), ElementAs[testutil.Flaky](&c).Value)
	c.Commit()

	q.Close()
	ca.CheckBalanced(t)
}

func TestClear(t *testing.T) {
	q, ca := newSPSC(t)
	for i := 0; i < 10; i++ {
		require.NoError(t, Push(q, i))
	}
	q.Clear()
	assert.True(t, q.Empty())
	q.Close()
	ca.CheckBalanced(t)
}

type shape interface{ Area() float64 }

type square struct{ Side float64 }

func (s *square) Area() float64 { return s.Side * s.Side }

func TestElementBase(t *testing.T) {
	q, ca := newSPSC(t)
	require.NoError(t, Push(q, square{Side: 3}))

	c := q.TryStartConsume()
	require.False(t, c.Empty())
	got := ElementBase[shape](&c)
	assert.Equal(t, 9.0, got.Area())
	c.Commit()

	q.Close()
	ca.CheckBalanced(t)
}

func TestReentrantPut(t *testing.T) {
	q, ca := newSPSC(t)

	tx, err := StartReentrantPush(q, 1)
	require.NoError(t, err)

	// The queue stays usable while the transaction is open.
	require.NoError(t, Push(q, 2))
	tx.Commit()

	c := q.TryStartConsume()
	require.False(t, c.Empty())
	assert.Equal(t, 1, *ElementAs[int](&c))
	c.Commit()
	c = q.TryStartConsume()
	require.False(t, c.Empty())
	assert.Equal(t, 2, *ElementAs[int](&c))
	c.Commit()

	q.Close()
	ca.CheckBalanced(t)
}
