// Copyright 2025 the Hetseq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Benchmarks for the heterogeneous queue and the dense buffer.
package benchmark

import (
	"runtime"
	"testing"

	"github.com/densepack/hetseq/dense"
	"github.com/densepack/hetseq/hetq"
)

type payload struct {
	A, B, C int64
}

func benchConfig(producers, consumers hetq.Cardinality, consistency hetq.Consistency) hetq.Config {
	return hetq.Config{Producers: producers, Consumers: consumers, Consistency: consistency}
}

func BenchmarkPushPopSPSC(b *testing.B) {
	q := hetq.MustNew(benchConfig(hetq.Single, hetq.Single, hetq.Sequential))
	defer q.Close()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := hetq.Push(q, payload{A: int64(i)}); err != nil {
			b.Fatal(err)
		}
		if !q.TryPop() {
			b.Fatal("pop failed")
		}
	}
}

func BenchmarkPushPopMPMC(b *testing.B) {
	for _, bc := range []struct {
		name        string
		consistency hetq.Consistency
	}{
		{"sequential", hetq.Sequential},
		{"relaxed", hetq.Relaxed},
	} {
		b.Run(bc.name, func(b *testing.B) {
			q := hetq.MustNew(benchConfig(hetq.Multiple, hetq.Multiple, bc.consistency))
			defer q.Close()
			b.RunParallel(func(pb *testing.PB) {
				for pb.Next() {
					if err := hetq.Push(q, payload{}); err != nil {
						b.Fatal(err)
					}
					for !q.TryPop() {
						runtime.Gosched()
					}
				}
			})
		})
	}
}

func BenchmarkTransactionalPut(b *testing.B) {
	q := hetq.MustNew(benchConfig(hetq.Single, hetq.Single, hetq.Sequential))
	defer q.Close()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		tx, err := hetq.StartPush(q, payload{A: int64(i)})
		if err != nil {
			b.Fatal(err)
		}
		tx.Commit()
		if !q.TryPop() {
			b.Fatal("pop failed")
		}
	}
}

func BenchmarkDensePushBack(b *testing.B) {
	a := dense.NewArray(nil)
	defer a.Clear()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := a.PushBack(dense.Val(payload{A: int64(i)})); err != nil {
			b.Fatal(err)
		}
		if a.Size() > 256 {
			b.StopTimer()
			a.Clear()
			b.StartTimer()
		}
	}
}

func BenchmarkDenseIterate(b *testing.B) {
	a := dense.NewArray(nil)
	defer a.Clear()
	for i := 0; i < 128; i++ {
		if err := a.PushBack(dense.Val(payload{A: int64(i)})); err != nil {
			b.Fatal(err)
		}
	}
	b.ResetTimer()
	var sum int64
	for i := 0; i < b.N; i++ {
		for it := a.Iter(); !it.Done(); it.Next() {
			sum += dense.As[payload](&it).A
		}
	}
	_ = sum
}
