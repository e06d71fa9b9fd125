// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package std140

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestTotalSize(t *testing.T) {
	tests := []struct {
		name  string
		sizes []int
		want  int
	}{
		{"monotonic sizes", []int{1, 1, 4, 4}, 48},
		{"nonmonotonic sizes", []int{1, 2, 1, 4, 4}, 64},
		{"single vec4", []int{4}, 16},
		{"scalars only", []int{1, 1, 1}, 12},
		{"scalars fill a vec2 slot", []int{2, 1, 1}, 16},
		{"vec3 then scalar", []int{3, 1}, 12},
		{"scalar then vec3", []int{1, 3}, 12},
		{"overflow starts new slot", []int{4, 3, 2}, 48},
		{"empty", nil, 0},
		{"ignores non-positive", []int{0, 4, -1}, 16},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TotalSize(tt.sizes); got != tt.want {
				t.Errorf("TotalSize(%v) = %d, want %d", tt.sizes, got, tt.want)
			}
		})
	}
}

func TestPlanOffsets(t *testing.T) {
	layout, err := Plan([]Decl{
		{"type", 1}, {"dir", 2}, {"subtype", 1}, {"coords", 4}, {"args", 4},
	})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if layout.BaseAlignment != 4 {
		t.Errorf("BaseAlignment = %d, want 4", layout.BaseAlignment)
	}
	if layout.Size != 16 || layout.Bytes() != 64 {
		t.Errorf("Size = %d floats / %d bytes, want 16 / 64", layout.Size, layout.Bytes())
	}
	want := map[string]int{"type": 0, "dir": 4, "subtype": 6, "coords": 8, "args": 12}
	for _, f := range layout.Fields {
		if f.Offset != want[f.Name] {
			t.Errorf("%s offset = %d, want %d", f.Name, f.Offset, want[f.Name])
		}
	}
	if c := Conflicts(layout.Fields); c != nil {
		t.Errorf("planned layout has conflicts: %v", c)
	}
}

func TestPlanMatchesTotalSize(t *testing.T) {
	cases := [][]int{{1, 1, 4, 4}, {1, 2, 1, 4, 4}, {3, 1, 2, 2}, {2, 1, 1, 2, 4, 1}}
	for _, sizes := range cases {
		decls := make([]Decl, len(sizes))
		for i, s := range sizes {
			decls[i] = Decl{Name: string(rune('a' + i)), Size: s}
		}
		layout, err := Plan(decls)
		if err != nil {
			t.Fatalf("Plan(%v): %v", sizes, err)
		}
		if layout.Bytes() != TotalSize(sizes) {
			t.Errorf("Plan(%v).Bytes() = %d, TotalSize = %d", sizes, layout.Bytes(), TotalSize(sizes))
		}
		for _, f := range layout.Fields {
			if f.End() > layout.Size {
				t.Errorf("field %s ends at %d beyond size %d", f.Name, f.End(), layout.Size)
			}
			slotStart := f.Offset / layout.BaseAlignment * layout.BaseAlignment
			if f.End() > slotStart+layout.BaseAlignment {
				t.Errorf("field %s straddles a slot boundary (offset %d size %d)", f.Name, f.Offset, f.Size)
			}
		}
	}
}

func TestPlanRejectsInvalidSize(t *testing.T) {
	_, err := Plan([]Decl{{"ok", 1}, {"bad", 0}})
	if !errors.Is(err, ErrInvalidSize) {
		t.Fatalf("Plan error = %v, want ErrInvalidSize", err)
	}
	if !strings.Contains(err.Error(), `"bad"`) {
		t.Errorf("error %q should name the field", err)
	}
}

func TestConflicts(t *testing.T) {
	fields := []Field{
		{Name: "pos", Offset: 0, Size: 2},
		{Name: "color", Offset: 1, Size: 4},
		{Name: "scale", Offset: 5, Size: 1},
	}
	got := Conflicts(fields)
	if len(got) != 1 {
		t.Fatalf("Conflicts = %v, want one conflict", got)
	}
	c := got[0]
	if c.Offset != 1 || c.Size != 1 {
		t.Errorf("conflict range = [%d,+%d), want [1,+1)", c.Offset, c.Size)
	}
	if len(c.Names) != 2 || c.Names[0] != "pos" || c.Names[1] != "color" {
		t.Errorf("conflict names = %v, want [pos color]", c.Names)
	}
	if s := c.String(); s != "[1,2) pos|color" {
		t.Errorf("String() = %q", s)
	}
}

func TestConflictsMergesRuns(t *testing.T) {
	got := Conflicts([]Field{
		{Name: "a", Offset: 0, Size: 4},
		{Name: "b", Offset: 0, Size: 4},
	})
	if len(got) != 1 || got[0].Size != 4 {
		t.Fatalf("Conflicts = %v, want one run of 4 floats", got)
	}
}

func TestWriteTable(t *testing.T) {
	layout, _ := Plan([]Decl{{"time", 1}, {"color", 4}})
	var buf bytes.Buffer
	if err := layout.WriteTable(&buf, "Params"); err != nil {
		t.Fatal(err)
	}
	want := "struct Params: base alignment 4, 8 floats, 32 bytes\n" +
		"  offset   size  field\n" +
		"       0      1  time\n" +
		"       4      4  color\n"
	if buf.String() != want {
		t.Errorf("WriteTable =\n%s\nwant\n%s", buf.String(), want)
	}
}
