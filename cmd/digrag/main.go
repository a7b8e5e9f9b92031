// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command digrag is a thin CLI over the hybrid retrieval core: build an
// index from a corpus, run a single query against it, or watch a corpus
// for changes and rebuild incrementally.
//
// Usage:
//
//	digrag build --corpus changelog.txt --index-dir ./index
//	digrag query "vimconf keynote" --mode hybrid --top-k 5
//	digrag watch --corpus changelog.txt --index-dir ./index
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
