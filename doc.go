// Copyright 2025 the Hetseq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package lib is the root of the hetseq repository, containing heterogeneous sequence
// containers for Go: containers that store values of different concrete
// types, tightly packed, in a single memory region.
//
// Go to https://godoc.org/github.com/densepack/hetseq/hetq for the
// lock-free heterogeneous queue, and to
// https://godoc.org/github.com/densepack/hetseq/dense for the dense
// heterogeneous buffer.
//
// Runtime type descriptors, the mechanism through which both containers
// manipulate type-erased elements, live in
// https://godoc.org/github.com/densepack/hetseq/runtype.
package lib
