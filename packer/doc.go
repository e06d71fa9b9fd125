// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package packer lays out many instances of one struct in a single contiguous
// float32 buffer and uploads only the parts that change.
//
// A [Buffer] owns the storage. Each instance is a [Member], a fixed window
// into that storage, one struct size apart. Members are updated by field name
// with [Member.UpdateFields]; a change is written through the [Sink] at once,
// or marked dirty and coalesced by [Buffer.Flush] when [Options.Deferred] is
// set.
//
// Two memory modes are supported:
//
//   - [ModeUniformBlock]: the buffer backs a uniform block holding Count
//     structs back to back. An optional int32 metadata region follows the
//     members.
//   - [ModeDataTexture]: the buffer backs an RGBA32F texture with one row per
//     member. The stride is rounded up to whole texels.
//
// Construction never fails outright. [New] always returns a usable buffer;
// configuration problems are logged and returned as a joined error.
package packer
