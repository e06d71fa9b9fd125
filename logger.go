// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package stage

import (
	"log/slog"

	"github.com/gogpu/stage/automation"
	"github.com/gogpu/stage/clock"
	"github.com/gogpu/stage/events"
	"github.com/gogpu/stage/glyphs"
	"github.com/gogpu/stage/gpusink"
	"github.com/gogpu/stage/internal/logx"
	"github.com/gogpu/stage/packer"
	"github.com/gogpu/stage/script"
)

var logger = logx.New()

// SetLogger configures the logger for stage and all its sub-packages.
// By default, stage produces no log output. Call SetLogger to enable logging.
//
// SetLogger is safe for concurrent use: it stores the new logger atomically.
// Pass nil to disable logging (restore default silent behavior).
//
// Log levels used by stage:
//   - [slog.LevelDebug]: per-frame diagnostics (dispatches, uploads)
//   - [slog.LevelInfo]: lifecycle events (scene built, audio clock ready)
//   - [slog.LevelWarn]: non-fatal issues (layout conflicts, missing glyphs, clock fallback)
//   - [slog.LevelError]: rejected configuration (reserved fields, bars without tempo)
//
// Example:
//
//	// Enable debug-level logging to stderr:
//	stage.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	logger.Store(l)
	l = logger.Load()
	for _, set := range []func(*slog.Logger){
		automation.SetLogger,
		clock.SetLogger,
		events.SetLogger,
		glyphs.SetLogger,
		gpusink.SetLogger,
		packer.SetLogger,
		script.SetLogger,
	} {
		set(l)
	}
}

// Logger returns the current logger used by stage.
//
// Logger is safe for concurrent use.
func Logger() *slog.Logger {
	return logger.Load()
}
