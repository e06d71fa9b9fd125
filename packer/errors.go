// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package packer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gogpu/stage/std140"
)

// Construction and validation errors.
var (
	// ErrMissingName is returned when a buffer is declared without a block name.
	ErrMissingName = errors.New("packer: block name is required")

	// ErrReservedField is returned when a field uses a reserved name.
	ErrReservedField = errors.New("packer: reserved field name")

	// ErrSizeMismatch is returned when the externally reported block size
	// differs from the computed one.
	ErrSizeMismatch = errors.New("packer: reported block size differs from computed size")

	// ErrInvalidField is returned for fields with a negative offset or a
	// non-positive size.
	ErrInvalidField = errors.New("packer: invalid field")

	// ErrMetadataMode is returned when metadata is declared for a data texture.
	ErrMetadataMode = errors.New("packer: metadata requires uniform block mode")

	// ErrUnknownField is returned by Validate for names missing from the layout.
	ErrUnknownField = errors.New("packer: unknown field")

	// ErrFieldOverflow is returned by Validate when a value is longer than its field.
	ErrFieldOverflow = errors.New("packer: value longer than field")

	// ErrUnknownMember is returned when a member map entry is out of range.
	ErrUnknownMember = errors.New("packer: member index out of range")
)

// ReservedField is the field name the packer refuses to lay out.
const ReservedField = "reset"

// LayoutConflictError reports fields whose float ranges overlap.
type LayoutConflictError struct {
	Block     string
	Conflicts []std140.Conflict
}

func (e *LayoutConflictError) Error() string {
	parts := make([]string, len(e.Conflicts))
	for i, c := range e.Conflicts {
		parts[i] = c.String()
	}
	return fmt.Sprintf("packer: %s: overlapping fields %s", e.Block, strings.Join(parts, ", "))
}

// Names returns every field involved in a conflict, without duplicates.
func (e *LayoutConflictError) Names() []string {
	seen := make(map[string]bool)
	var names []string
	for _, c := range e.Conflicts {
		for _, n := range c.Names {
			if !seen[n] {
				seen[n] = true
				names = append(names, n)
			}
		}
	}
	return names
}
