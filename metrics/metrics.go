// Copyright 2025 the Hetseq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package metrics exports allocator statistics as Prometheus
// collectors. The core packages never import it; it observes any
// allocator implementing alloc.Statser.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/densepack/hetseq/alloc"
)

type collector struct {
	s alloc.Statser

	pagesMapped    *prometheus.Desc
	pagesUnmapped  *prometheus.Desc
	pageAllocs     *prometheus.Desc
	pageFrees      *prometheus.Desc
	cacheHits      *prometheus.Desc
	externalAllocs *prometheus.Desc
	externalFrees  *prometheus.Desc
	externalBytes  *prometheus.Desc
}

// NewCollector returns a prometheus.Collector over the allocator's
// statistics. Register it with a prometheus registry to graph page
// churn and external-block usage.
func NewCollector(s alloc.Statser) prometheus.Collector {
	return &collector{
		s: s,
		pagesMapped: prometheus.NewDesc(
			"hetseq_alloc_pages_mapped_total",
			"Pages mapped from the kernel.", nil, nil),
		pagesUnmapped: prometheus.NewDesc(
			"hetseq_alloc_pages_unmapped_total",
			"Pages returned to the kernel.", nil, nil),
		pageAllocs: prometheus.NewDesc(
			"hetseq_alloc_page_allocs_total",
			"Page allocations served.", nil, nil),
		pageFrees: prometheus.NewDesc(
			"hetseq_alloc_page_frees_total",
			"Page deallocations received.", nil, nil),
		cacheHits: prometheus.NewDesc(
			"hetseq_alloc_page_cache_hits_total",
			"Page allocations served from the free-page cache.", nil, nil),
		externalAllocs: prometheus.NewDesc(
			"hetseq_alloc_external_allocs_total",
			"External block allocations.", nil, nil),
		externalFrees: prometheus.NewDesc(
			"hetseq_alloc_external_frees_total",
			"External block deallocations.", nil, nil),
		externalBytes: prometheus.NewDesc(
			"hetseq_alloc_external_bytes_total",
			"Bytes handed out in external blocks.", nil, nil),
	}
}

func (c *collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.pagesMapped
	ch <- c.pagesUnmapped
	ch <- c.pageAllocs
	ch <- c.pageFrees
	ch <- c.cacheHits
	ch <- c.externalAllocs
	ch <- c.externalFrees
	ch <- c.externalBytes
}

func (c *collector) Collect(ch chan<- prometheus.Metric) {
	s := c.s.Stats()
	ch <- prometheus.MustNewConstMetric(c.pagesMapped, prometheus.CounterValue, float64(s.PagesMapped))
	ch <- prometheus.MustNewConstMetric(c.pagesUnmapped, prometheus.CounterValue, float64(s.PagesUnmapped))
	ch <- prometheus.MustNewConstMetric(c.pageAllocs, prometheus.CounterValue, float64(s.PageAllocs))
	ch <- prometheus.MustNewConstMetric(c.pageFrees, prometheus.CounterValue, float64(s.PageFrees))
	ch <- prometheus.MustNewConstMetric(c.cacheHits, prometheus.CounterValue, float64(s.CacheHits))
	ch <- prometheus.MustNewConstMetric(c.externalAllocs, prometheus.CounterValue, float64(s.ExternalAllocs))
	ch <- prometheus.MustNewConstMetric(c.externalFrees, prometheus.CounterValue, float64(s.ExternalFrees))
	ch <- prometheus.MustNewConstMetric(c.externalBytes, prometheus.CounterValue, float64(s.ExternalBytes))
}
