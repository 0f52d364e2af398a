// Copyright 2025 the Hetseq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package testutil

import (
	"sync/atomic"

	"github.com/pkg/errors"
)

// ErrInjected is returned by injected failures.
var ErrInjected = errors.New("testutil: injected failure")

// flakyBudget is the number of Flaky copies that will still succeed.
// Negative means unlimited.
var flakyBudget atomic.Int64

func init() {
	flakyBudget.Store(-1)
}

// FailCopiesAfter arranges for the next n Flaky copy-constructions to
// succeed and every following one to fail. Call with n < 0 to disable
// injection. Returns a restore function for defer.
func FailCopiesAfter(n int64) func() {
	old := flakyBudget.Swap(n)
	return func() { flakyBudget.Store(old) }
}

// Flaky is an element type whose copy-construction fails on command.
// Used to exercise strong failure guarantees.
type Flaky struct {
	Value int64
}

// CopyFrom implements runtype.Copier.
func (f *Flaky) CopyFrom(src any) error {
	for {
		budget := flakyBudget.Load()
		if budget < 0 {
			break
		}
		if budget == 0 {
			return errors.WithStack(ErrInjected)
		}
		if flakyBudget.CompareAndSwap(budget, budget-1) {
			break
		}
	}
	f.Value = src.(*Flaky).Value
	return nil
}
