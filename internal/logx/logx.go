// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package logx holds the silent-by-default slog logger shared by every
// stage package.
package logx

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// nopHandler is a slog.Handler that silently discards all log records.
// Enabled returns false so callers skip message formatting entirely.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

// Nop returns a logger that discards everything.
func Nop() *slog.Logger { return slog.New(nopHandler{}) }

// Ptr stores a package logger. Accessed atomically so Set may race with
// logging from any goroutine.
type Ptr struct {
	p atomic.Pointer[slog.Logger]
}

// New returns a Ptr holding a silent logger.
func New() *Ptr {
	lp := &Ptr{}
	lp.p.Store(Nop())
	return lp
}

// Load returns the current logger. Never nil.
func (lp *Ptr) Load() *slog.Logger {
	return lp.p.Load()
}

// Store replaces the logger. Nil restores the silent default.
func (lp *Ptr) Store(l *slog.Logger) {
	if l == nil {
		l = Nop()
	}
	lp.p.Store(l)
}
