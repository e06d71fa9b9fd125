// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package automation

import (
	"log/slog"

	"github.com/gogpu/stage/internal/logx"
)

var logger = logx.New()

// SetLogger sets the logger used by the automation package.
// Pass nil to restore silence.
func SetLogger(l *slog.Logger) { logger.Store(l) }
