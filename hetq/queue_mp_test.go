// Copyright 2025 the Hetseq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hetq

import (
	"runtime"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/densepack/hetseq/alloc"
	"github.com/densepack/hetseq/internal/testutil"
)

// message encodes producer identity and per-producer sequence so
// consumers can verify per-producer FIFO.
type message struct {
	Producer int64
	Seq      int64
}

// TestMultiProducerOrder checks that with two producers and one
// consumer, the observed total order respects each producer's order.
func TestMultiProducerOrder(t *testing.T) {
	for _, consistency := range []Consistency{Sequential, Relaxed} {
		ca := testutil.NewCountingAllocator()
		q, err := New(Config{
			Producers:   Multiple,
			Consumers:   Single,
			Consistency: consistency,
			Allocator:   ca,
		})
		require.NoError(t, err)

		const perProducer = 300
		var g errgroup.Group
		for p := 0; p < 2; p++ {
			p := int64(p)
			g.Go(func() error {
				for i := 0; i < perProducer; i++ {
					if err := Push(q, message{Producer: p, Seq: int64(i)}); err != nil {
						return err
					}
				}
				return nil
			})
		}

		lastSeq := map[int64]int64{0: -1, 1: -1}
		seen := 0
		for seen < 2*perProducer {
			c := q.TryStartConsume()
			if c.Empty() {
				runtime.Gosched()
				continue
			}
			m := *ElementAs[message](&c)
			c.Commit()
			if m.Seq != lastSeq[m.Producer]+1 {
				t.Fatalf("producer %d: seq %d after %d", m.Producer, m.Seq, lastSeq[m.Producer])
			}
			lastSeq[m.Producer] = m.Seq
			seen++
		}
		require.NoError(t, g.Wait())
		assert.True(t, q.Empty())

		q.Close()
		ca.CheckBalanced(t)
	}
}

// TestRelaxedObservability: an uncommitted transactional put is
// invisible; commit makes it observable.
func TestRelaxedObservability(t *testing.T) {
	ca := testutil.NewCountingAllocator()
	q, err := New(Config{
		Producers:   Multiple,
		Consumers:   Single,
		Consistency: Relaxed,
		Allocator:   ca,
	})
	require.NoError(t, err)

	tx, err := StartPush(q, 42)
	require.NoError(t, err)

	c := q.TryStartConsume()
	assert.True(t, c.Empty(), "uncommitted put must not be observable")

	tx.Commit()
	c = q.TryStartConsume()
	require.False(t, c.Empty())
	assert.Equal(t, 42, *ElementAs[int](&c))
	c.Commit()

	q.Close()
	ca.CheckBalanced(t)
}

// TestRelaxedTruncation: an unlinked reservation truncates the queue
// from the consumer's point of view; elements reserved after it stay
// unobservable until the slot is linked.
func TestRelaxedTruncation(t *testing.T) {
	ca := testutil.NewCountingAllocator()
	q, err := New(Config{
		Producers:   Multiple,
		Consumers:   Single,
		Consistency: Relaxed,
		Allocator:   ca,
	})
	require.NoError(t, err)

	tx, err := StartPush(q, 1)
	require.NoError(t, err)
	tx.Commit() // commit the first so the chain is linked past it
	tx2, err := StartPush(q, 2)
	require.NoError(t, err)
	require.NoError(t, Push(q, 3))

	// 1 is ready, 2 is reserved but unlinked, 3 is linked after it:
	// consuming 1 works, then the chain truncates at 2.
	c := q.TryStartConsume()
	require.False(t, c.Empty())
	assert.Equal(t, 1, *ElementAs[int](&c))
	c.Commit()
	c = q.TryStartConsume()
	assert.True(t, c.Empty(), "chain must truncate at the unlinked slot")

	tx2.Commit()
	for _, want := range []int{2, 3} {
		c = q.TryStartConsume()
		require.False(t, c.Empty())
		assert.Equal(t, want, *ElementAs[int](&c))
		c.Commit()
	}

	q.Close()
	ca.CheckBalanced(t)
}

func TestMPMCStress(t *testing.T) {
	for _, consistency := range []Consistency{Sequential, Relaxed} {
		ca := testutil.NewCountingAllocator()
		q, err := New(Config{
			Producers:   Multiple,
			Consumers:   Multiple,
			Consistency: consistency,
			Allocator:   ca,
		})
		require.NoError(t, err)

		const (
			producers   = 4
			consumers   = 4
			perProducer = 500
		)

		var g errgroup.Group
		for p := 0; p < producers; p++ {
			p := int64(p)
			g.Go(func() error {
				for i := 0; i < perProducer; i++ {
					if err := Push(q, message{Producer: p, Seq: int64(i)}); err != nil {
						return err
					}
				}
				return nil
			})
		}

		var mu sync.Mutex
		got := make(map[message]int)
		var consumed int
		var cg errgroup.Group
		for cidx := 0; cidx < consumers; cidx++ {
			cg.Go(func() error {
				for {
					mu.Lock()
					done := consumed >= producers*perProducer
					mu.Unlock()
					if done {
						return nil
					}
					c := q.TryStartConsume()
					if c.Empty() {
						runtime.Gosched()
						continue
					}
					m := *ElementAs[message](&c)
					c.Commit()
					mu.Lock()
					got[m]++
					consumed++
					mu.Unlock()
				}
			})
		}

		require.NoError(t, g.Wait())
		require.NoError(t, cg.Wait())

		assert.Len(t, got, producers*perProducer)
		for m, n := range got {
			if n != 1 {
				t.Errorf("message %+v consumed %d times", m, n)
			}
		}
		assert.True(t, q.Empty())

		q.Close()
		ca.CheckBalanced(t)
	}
}

// TestConsumeCancelMultiConsumer: a cancelled claim returns the
// element to the queue with the pin released.
func TestConsumeCancelMultiConsumer(t *testing.T) {
	ca := testutil.NewCountingAllocator()
	q, err := New(Config{
		Producers: Single,
		Consumers: Multiple,
		Allocator: ca,
	})
	require.NoError(t, err)

	require.NoError(t, Push(q, 9))
	c := q.TryStartConsume()
	require.False(t, c.Empty())
	c.Cancel()

	c = q.TryStartConsume()
	require.False(t, c.Empty())
	assert.Equal(t, 9, *ElementAs[int](&c))
	c.Commit()

	q.Close()
	ca.CheckBalanced(t)
}

// TestTryPushWaitFreeContention: wait-free puts either succeed or
// fail without effect; never both, never an error.
func TestTryPushWaitFreeContention(t *testing.T) {
	ca := testutil.NewCountingAllocator()
	q, err := New(Config{
		Producers: Multiple,
		Consumers: Multiple,
		Allocator: ca,
	})
	require.NoError(t, err)

	const goroutines = 4
	var ok64, fail64 int64
	var mu sync.Mutex
	var g errgroup.Group
	for i := 0; i < goroutines; i++ {
		g.Go(func() error {
			for n := 0; n < 200; n++ {
				ok, err := TryPush(q, alloc.WaitFree, n)
				if err != nil {
					return err
				}
				mu.Lock()
				if ok {
					ok64++
				} else {
					fail64++
				}
				mu.Unlock()
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	var drained int64
	for q.TryPop() {
		drained++
	}
	assert.Equal(t, ok64, drained, "every successful wait-free put must be observable exactly once")

	q.Close()
	ca.CheckBalanced(t)
}
