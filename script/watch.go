// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package script

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ReloadDelay coalesces the burst of events editors produce when saving.
const ReloadDelay = 50 * time.Millisecond

// Watch loads the scene at path, calls fn with the result, then calls fn
// again after every change to the file until ctx is done. The directory is
// watched rather than the file so editors that replace the file on save
// keep being followed. Watch returns nil when ctx is done and an error only
// when the watch cannot be set up.
func Watch(ctx context.Context, path string, fn func(*Scene, error)) error {
	path, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("script: watch: %w", err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("script: watch: %w", err)
	}
	defer w.Close()
	if err := w.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("script: watch %s: %w", filepath.Dir(path), err)
	}

	fn(LoadFile(path))

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path ||
				event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			logger.Load().Debug("script: scene changed", "path", path, "op", event.Op.String())
			if timer == nil {
				timer = time.NewTimer(ReloadDelay)
			} else {
				timer.Reset(ReloadDelay)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			s, err := LoadFile(path)
			if err != nil {
				logger.Load().Warn("script: reload failed", "path", path, "err", err)
			} else {
				logger.Load().Info("script: scene reloaded", "path", path)
			}
			fn(s, err)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			fn(nil, fmt.Errorf("script: watch: %w", err))
		}
	}
}
