// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gogpu/stage/script"
)

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <scene>",
		Short: "Rebuild a scene whenever its file changes",
		Long: `Watch a scene file and rebuild it on every save, reporting what was
built or why the file does not load. Stops on interrupt.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runWatch(ctx, args[0], cmd.OutOrStdout())
		},
	}
	return cmd
}

func runWatch(ctx context.Context, path string, w io.Writer) error {
	dir := filepath.Dir(path)
	return script.Watch(ctx, path, func(scene *script.Scene, err error) {
		if err != nil {
			fmt.Fprintf(w, "error: %v\n", err)
			return
		}
		built, err := scene.Build(script.BuildOptions{Dir: dir})
		fmt.Fprintf(w, "loaded %q: %d blocks, %d params, %d events\n",
			scene.Name, len(built.Buffers), len(built.Automator.Names()), len(built.Events))
		if err != nil {
			fmt.Fprintf(w, "error: %v\n", err)
		}
	})
}
