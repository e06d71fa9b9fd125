// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package std140

import (
	"fmt"
	"slices"
	"strings"
)

// Conflict is a run of floats claimed by more than one field.
type Conflict struct {
	// Offset and Size delimit the shared floats.
	Offset int
	Size   int

	// Names lists every field touching the run, in declaration order.
	Names []string
}

func (c Conflict) String() string {
	return fmt.Sprintf("[%d,%d) %s", c.Offset, c.Offset+c.Size, strings.Join(c.Names, "|"))
}

// Conflicts reports overlapping byte ranges among explicitly placed fields.
// Adjacent floats claimed by the same set of fields are merged into one
// Conflict. The result is nil when the layout is clean.
func Conflicts(fields []Field) []Conflict {
	end := 0
	for _, f := range fields {
		end = max(end, f.End())
	}
	if end == 0 {
		return nil
	}
	claims := make([][]string, end)
	for _, f := range fields {
		for s := max(f.Offset, 0); s < f.End(); s++ {
			claims[s] = append(claims[s], f.Name)
		}
	}

	var out []Conflict
	for s := 0; s < end; s++ {
		if len(claims[s]) < 2 {
			continue
		}
		if n := len(out); n > 0 {
			last := &out[n-1]
			if last.Offset+last.Size == s && slices.Equal(last.Names, claims[s]) {
				last.Size++
				continue
			}
		}
		out = append(out, Conflict{Offset: s, Size: 1, Names: claims[s]})
	}
	return out
}
