// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/gogpu/stage"
	"github.com/gogpu/stage/events"
	"github.com/gogpu/stage/script"
)

// PlayOptions holds flags for the play command.
type PlayOptions struct {
	Duration float64
	FPS      int
}

type dispatchJSON struct {
	Time      float64 `json:"t"`
	Kind      string  `json:"kind"`
	Receivers int     `json:"receivers"`
	ID        string  `json:"id"`
	Parent    string  `json:"parent,omitempty"`
}

// NewPlayCommand creates the play command.
func NewPlayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PlayOptions{}

	cmd := &cobra.Command{
		Use:   "play <scene>",
		Short: "Simulate scene playback and print dispatched events",
		Long: `Run a scene session on a simulated frame clock without a GPU and print
every event dispatch. Dispatches produced by an expiry are marked.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlay(rootOpts, opts, args[0], cmd.OutOrStdout())
		},
	}

	cmd.Flags().Float64VarP(&opts.Duration, "duration", "d", 8, "seconds to simulate")
	cmd.Flags().IntVar(&opts.FPS, "fps", 60, "simulated frame rate")

	return cmd
}

func runPlay(rootOpts *RootOptions, opts *PlayOptions, path string, w io.Writer) error {
	if opts.FPS <= 0 || opts.Duration < 0 {
		return errors.New("--fps must be positive and --duration not negative")
	}
	scene, err := script.LoadFile(path)
	if err != nil {
		return err
	}

	var (
		total   int
		failure error
	)
	enc := json.NewEncoder(w)
	report := func(d events.Dispatch) {
		total++
		if failure != nil {
			return
		}
		if rootOpts.Format == "json" {
			out := dispatchJSON{Time: d.Now, Kind: d.Kind.String(), Receivers: d.Receivers, ID: d.ID.String()}
			if d.Parent != uuid.Nil {
				out.Parent = d.Parent.String()
			}
			failure = enc.Encode(out)
			return
		}
		suffix := ""
		if d.Parent != uuid.Nil {
			suffix = " expiry"
		}
		_, failure = fmt.Fprintf(w, "t=%.3f %s receivers=%d%s\n", d.Now, d.Kind, d.Receivers, suffix)
	}

	s, err := stage.NewSession(stage.Config{
		Scene:      scene,
		Dir:        filepath.Dir(path),
		OnDispatch: report,
	})
	if err != nil {
		return err
	}
	defer s.Close()

	frames := int(opts.Duration*float64(opts.FPS)) + 1
	for i := range frames {
		s.Frame(time.Duration(i) * time.Second / time.Duration(opts.FPS))
	}
	if failure != nil {
		return failure
	}
	if rootOpts.Format == "json" {
		return nil
	}
	_, err = fmt.Fprintf(w, "frames=%d dispatched=%d\n", frames, total)
	return err
}
