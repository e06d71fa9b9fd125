// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gogpu/stage/shaderlayout"
	"github.com/gogpu/stage/std140"
)

// LayoutOptions holds flags for the layout command.
type LayoutOptions struct {
	Name   string
	WGSL   string
	Struct string
}

type layoutJSON struct {
	Name          string      `json:"name"`
	BaseAlignment int         `json:"baseAlignment"`
	Floats        int         `json:"floats"`
	Bytes         int         `json:"bytes"`
	Fields        []fieldJSON `json:"fields"`
	Conflicts     []string    `json:"conflicts,omitempty"`
}

type fieldJSON struct {
	Name   string `json:"name"`
	Offset int    `json:"offset"`
	Size   int    `json:"size"`
}

// NewLayoutCommand creates the layout command.
func NewLayoutCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LayoutOptions{}

	cmd := &cobra.Command{
		Use:   "layout [name:size...]",
		Short: "Print the std140 layout of a struct",
		Long: `Plan the std140 offsets of a struct from its field sizes in floats, or
reflect a struct declared in a WGSL shader.

Fields are given as name:size, or as a bare size named after its position.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.WGSL != "" {
				return runLayoutWGSL(rootOpts, opts, cmd.OutOrStdout())
			}
			return runLayout(rootOpts, opts, args, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.Name, "name", "Params", "struct name used in the output")
	cmd.Flags().StringVar(&opts.WGSL, "wgsl", "", "WGSL file to reflect instead of planning")
	cmd.Flags().StringVar(&opts.Struct, "struct", "", "struct to reflect from --wgsl (default: --name)")

	return cmd
}

func parseDecls(args []string) ([]std140.Decl, error) {
	if len(args) == 0 {
		return nil, errors.New("no fields given")
	}
	decls := make([]std140.Decl, len(args))
	for i, arg := range args {
		name, size, found := strings.Cut(arg, ":")
		if !found {
			name, size = fmt.Sprintf("f%d", i), arg
		}
		n, err := strconv.Atoi(size)
		if err != nil {
			return nil, fmt.Errorf("field %q: size %q is not an integer", arg, size)
		}
		decls[i] = std140.Decl{Name: name, Size: n}
	}
	return decls, nil
}

func runLayout(rootOpts *RootOptions, opts *LayoutOptions, args []string, w io.Writer) error {
	decls, err := parseDecls(args)
	if err != nil {
		return err
	}
	layout, err := std140.Plan(decls)
	if err != nil {
		return err
	}
	return writeLayout(rootOpts, opts.Name, layout, w)
}

func runLayoutWGSL(rootOpts *RootOptions, opts *LayoutOptions, w io.Writer) error {
	name := opts.Struct
	if name == "" {
		name = opts.Name
	}
	refl, err := shaderlayout.LoadFile(opts.WGSL)
	if err != nil {
		return err
	}
	st, ok := refl.Struct(name)
	if !ok {
		return fmt.Errorf("%w: %q in %s", shaderlayout.ErrUnknownStruct, name, opts.WGSL)
	}
	layout := std140.Layout{
		BaseAlignment: 4,
		Size:          st.Size / std140.FloatSize,
		Fields:        st.Fields(),
	}
	return writeLayout(rootOpts, name, layout, w)
}

func writeLayout(rootOpts *RootOptions, name string, layout std140.Layout, w io.Writer) error {
	conflicts := std140.Conflicts(layout.Fields)
	if rootOpts.Format == "json" {
		out := layoutJSON{
			Name:          name,
			BaseAlignment: layout.BaseAlignment,
			Floats:        layout.Size,
			Bytes:         layout.Bytes(),
			Fields:        make([]fieldJSON, len(layout.Fields)),
		}
		for i, f := range layout.Fields {
			out.Fields[i] = fieldJSON{Name: f.Name, Offset: f.Offset, Size: f.Size}
		}
		for _, c := range conflicts {
			out.Conflicts = append(out.Conflicts, c.String())
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	if err := layout.WriteTable(w, name); err != nil {
		return err
	}
	for _, c := range conflicts {
		if _, err := fmt.Fprintf(w, "conflict %s\n", c); err != nil {
			return err
		}
	}
	return nil
}
