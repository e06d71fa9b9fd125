// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"slices"

	"github.com/spf13/cobra"

	"github.com/gogpu/stage/script"
)

// EvalOptions holds flags for the eval command.
type EvalOptions struct {
	Params []string
	From   float64
	To     float64
	Step   float64
}

type sampleJSON struct {
	Time   float64            `json:"t"`
	Values map[string]float32 `json:"values"`
}

// NewEvalCommand creates the eval command.
func NewEvalCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EvalOptions{}

	cmd := &cobra.Command{
		Use:   "eval <scene>",
		Short: "Sample automated parameters over time",
		Long: `Evaluate parameter tracks of a scene at regular times, from --from to
--to inclusive. Without --param every declared parameter is sampled.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEval(rootOpts, opts, args[0], cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringSliceVarP(&opts.Params, "param", "p", nil, "parameters to sample (repeatable)")
	cmd.Flags().Float64Var(&opts.From, "from", 0, "first sample time in seconds")
	cmd.Flags().Float64Var(&opts.To, "to", 4, "last sample time in seconds")
	cmd.Flags().Float64Var(&opts.Step, "step", 0.5, "seconds between samples")

	return cmd
}

func runEval(rootOpts *RootOptions, opts *EvalOptions, path string, w io.Writer) error {
	if opts.Step <= 0 {
		return errors.New("--step must be positive")
	}
	scene, err := script.LoadFile(path)
	if err != nil {
		return err
	}
	built, err := scene.Build(script.BuildOptions{Dir: filepath.Dir(path)})
	if err != nil {
		return err
	}
	a := built.Automator

	params := opts.Params
	if len(params) == 0 {
		params = a.Names()
	}
	for _, p := range params {
		if !slices.Contains(a.Names(), p) {
			return fmt.Errorf("unknown parameter %q", p)
		}
	}

	enc := json.NewEncoder(w)
	for i := 0; ; i++ {
		t := opts.From + float64(i)*opts.Step
		if t > opts.To+1e-9 {
			break
		}
		if rootOpts.Format == "json" {
			s := sampleJSON{Time: t, Values: make(map[string]float32, len(params))}
			for _, p := range params {
				s.Values[p] = a.Evaluate(p, t)
			}
			if err := enc.Encode(s); err != nil {
				return err
			}
			continue
		}
		if _, err := fmt.Fprintf(w, "t=%.3f", t); err != nil {
			return err
		}
		for _, p := range params {
			fmt.Fprintf(w, " %s=%.4f", p, a.Evaluate(p, t))
		}
		fmt.Fprintln(w)
	}
	return nil
}
