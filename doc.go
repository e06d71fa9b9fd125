// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package stage drives animated GPU scenes from scripts.
//
// # Overview
//
// A scene is a set of packed struct blocks consumed by shaders, animated
// parameters that write into them, and timed events that fire field writes
// or text phrases into block members. The sub-packages each own one piece:
//
//   - [github.com/gogpu/stage/std140] plans std140 struct layouts.
//   - [github.com/gogpu/stage/packer] packs member structs into float
//     buffers and reports dirty ranges to an upload sink.
//   - [github.com/gogpu/stage/gpusink] uploads those ranges to wgpu HAL
//     buffers and textures.
//   - [github.com/gogpu/stage/automation] evaluates keyframe tracks.
//   - [github.com/gogpu/stage/events] schedules events against scene time.
//   - [github.com/gogpu/stage/glyphs] lays text out into glyph members.
//   - [github.com/gogpu/stage/clock] tracks scene time from frames or audio.
//   - [github.com/gogpu/stage/script] loads YAML scene files.
//
// # Quick Start
//
//	scene, err := script.LoadFile("scene.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	s, err := stage.NewSession(stage.Config{Scene: scene, Dir: "."})
//	if err != nil {
//	    log.Print(err) // the session is usable, broken parts were skipped
//	}
//	defer s.Close()
//
//	// Once per animation frame:
//	s.Frame(timestamp)
//
// # Logging
//
// stage is silent by default. [SetLogger] installs a [log/slog] logger for
// this package and every sub-package.
package stage
