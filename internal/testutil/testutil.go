// Copyright 2025 the Hetseq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package testutil

import (
	"log"
	"os"
)

func init() {
	// For test, the date is irrelevant, but microseconds are.
	log.SetFlags(log.Lmicroseconds)
}

// VerboseTest returns true if the testing framework is run with DEBUG=1.
func VerboseTest() bool {
	return os.Getenv("DEBUG") == "1"
}
