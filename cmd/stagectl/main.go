// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Command stagectl inspects and previews stage scenes.
//
// Usage:
//
//	stagectl layout type:1 dir:2 coords:4     # plan a std140 struct
//	stagectl layout --wgsl shader.wgsl --struct Params
//	stagectl eval scene.yaml --param glow     # sample a parameter track
//	stagectl play scene.yaml --duration 8     # simulate frames, print dispatches
//	stagectl watch scene.yaml                 # reload on change
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "stagectl:", err)
		os.Exit(1)
	}
}
