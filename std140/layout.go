// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package std140 plans struct layouts for uniform-block style GPU memory.
//
// All sizes and offsets are in float units (4 bytes each). The planner walks
// the fields left to right and packs them into slots of the base alignment,
// which is the size of the largest field:
//
//   - a field as large as the base alignment always gets its own slot
//   - a field that exactly fills the current slot closes it
//   - a field that would overflow the slot starts the next one
//   - a field larger than the field packed before it starts the next slot
//   - anything else is appended to the current slot
//
// This reproduces the std140 rules that a structure is aligned to its largest
// member and that no member straddles an alignment boundary.
//
// Reference: GLSL 4.5 specification, section 7.6.2.2.
package std140

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

// FloatSize is the size of one layout unit in bytes.
const FloatSize = 4

// ErrInvalidSize is returned when a field size is not positive.
var ErrInvalidSize = errors.New("std140: field size must be positive")

// Field describes one struct member. Offset and Size are in floats.
type Field struct {
	Name   string
	Offset int
	Size   int
}

// End returns the first float offset after the field.
func (f Field) End() int { return f.Offset + f.Size }

// Decl declares a field by name and size, before offsets are known.
type Decl struct {
	Name string
	Size int
}

// Layout is the planned shape of one struct instance.
type Layout struct {
	// BaseAlignment is the largest field size, in floats.
	BaseAlignment int

	// Size is the struct size in floats, a multiple of BaseAlignment.
	Size int

	// Fields in declaration order.
	Fields []Field
}

// Bytes returns the struct size in bytes.
func (l Layout) Bytes() int { return l.Size * FloatSize }

// Field looks up a field by name.
func (l Layout) Field(name string) (Field, bool) {
	for _, f := range l.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Sizes returns the field sizes in declaration order.
func (l Layout) Sizes() []int {
	sizes := make([]int, len(l.Fields))
	for i, f := range l.Fields {
		sizes[i] = f.Size
	}
	return sizes
}

// WriteTable prints the layout as an offset table.
func (l Layout) WriteTable(w io.Writer, name string) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "struct %s: base alignment %d, %d floats, %d bytes\n",
		name, l.BaseAlignment, l.Size, l.Bytes())
	fmt.Fprintf(&sb, "%8s %6s  %s\n", "offset", "size", "field")
	for _, f := range l.Fields {
		fmt.Fprintf(&sb, "%8d %6d  %s\n", f.Offset, f.Size, f.Name)
	}
	_, err := io.WriteString(w, sb.String())
	return err
}

// TotalSize returns the std140 size in bytes of a struct whose fields have
// the given sizes (in floats, declaration order). Non-positive sizes are
// ignored.
func TotalSize(sizes []int) int {
	valid := make([]int, 0, len(sizes))
	for _, s := range sizes {
		if s > 0 {
			valid = append(valid, s)
		}
	}
	_, slots, base := walk(valid)
	return slots * base * FloatSize
}

// Plan computes offsets for the declared fields.
func Plan(decls []Decl) (Layout, error) {
	sizes := make([]int, len(decls))
	for i, d := range decls {
		if d.Size <= 0 {
			return Layout{}, fmt.Errorf("%w: %q has size %d", ErrInvalidSize, d.Name, d.Size)
		}
		sizes[i] = d.Size
	}
	offsets, slots, base := walk(sizes)
	layout := Layout{
		BaseAlignment: base,
		Size:          slots * base,
		Fields:        make([]Field, len(decls)),
	}
	for i, d := range decls {
		layout.Fields[i] = Field{Name: d.Name, Offset: offsets[i], Size: d.Size}
	}
	return layout, nil
}

// walk runs the slot packing and returns per-field offsets, the number of
// base slots used and the base alignment.
func walk(sizes []int) (offsets []int, slots, base int) {
	for _, s := range sizes {
		base = max(base, s)
	}
	offsets = make([]int, len(sizes))
	cursor := 0
	previous := base
	flush := func() {
		slots++
		cursor = 0
		previous = base
	}

	for i, size := range sizes {
		switch {
		case size == base:
			if cursor > 0 {
				flush()
			}
			offsets[i] = slots * base
			flush()
		case cursor+size == base:
			offsets[i] = slots*base + cursor
			flush()
		case cursor+size > base:
			flush()
			offsets[i] = slots * base
			cursor = size
		case size > previous:
			// A larger field may not sit behind a smaller one.
			flush()
			offsets[i] = slots * base
			cursor = size
		default:
			offsets[i] = slots*base + cursor
			cursor += size
			previous = size
		}
	}
	if cursor > 0 {
		flush()
	}
	return offsets, slots, base
}
