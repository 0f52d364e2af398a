// Copyright 2025 the Hetseq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build unix

package alloc

import (
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/densepack/hetseq/internal/arith"
)

// The kernel only guarantees OS-page alignment, so mappings that need
// more are over-sized and the aligned block is carved out of the
// middle. unix.Munmap can only release the exact slice unix.Mmap
// returned, so the surrounding slack cannot be trimmed; the full
// mapping is kept, keyed by the aligned start address, and released
// whole.
var (
	mapMu    sync.Mutex
	mappings = map[uintptr][]byte{}
)

// mmapAligned maps size bytes of zeroed anonymous memory aligned to
// align.
func mmapAligned(size, align uintptr) (unsafe.Pointer, error) {
	osPage := uintptr(unix.Getpagesize())
	size = arith.UpperAlign(size, osPage)
	length := size
	if align > osPage {
		length = size + align
	}
	b, err := unix.Mmap(-1, 0, int(length),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, err
	}
	start := arith.UpperAlign(uintptr(unsafe.Pointer(unsafe.SliceData(b))), align)

	mapMu.Lock()
	mappings[start] = b
	mapMu.Unlock()
	return unsafe.Pointer(start), nil
}

// munmapAligned releases a block obtained from mmapAligned.
func munmapAligned(ptr unsafe.Pointer, _ uintptr) {
	mapMu.Lock()
	b, ok := mappings[uintptr(ptr)]
	delete(mappings, uintptr(ptr))
	mapMu.Unlock()
	if ok {
		_ = unix.Munmap(b)
	}
}
