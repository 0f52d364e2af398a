// Copyright 2025 the Hetseq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/densepack/hetseq/alloc"
)

func TestCollector(t *testing.T) {
	a := alloc.New()
	p, err := a.AllocatePage(alloc.Blocking)
	if err != nil {
		t.Fatalf("AllocatePage: %v", err)
	}
	a.DeallocatePage(p)

	c := NewCollector(a)
	reg := prometheus.NewRegistry()
	if err := reg.Register(c); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if n := testutil.CollectAndCount(c); n != 8 {
		t.Errorf("collected %d metrics, want 8", n)
	}

	expected := strings.NewReader(`
# HELP hetseq_alloc_page_allocs_total Page allocations served.
# TYPE hetseq_alloc_page_allocs_total counter
hetseq_alloc_page_allocs_total 1
# HELP hetseq_alloc_page_frees_total Page deallocations received.
# TYPE hetseq_alloc_page_frees_total counter
hetseq_alloc_page_frees_total 1
`)
	if err := testutil.CollectAndCompare(c, expected,
		"hetseq_alloc_page_allocs_total", "hetseq_alloc_page_frees_total"); err != nil {
		t.Error(err)
	}
}
