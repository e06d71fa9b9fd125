// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package packer

import "slices"

// Member is one struct instance inside a Buffer. Its window never moves.
type Member struct {
	buf   *Buffer
	index int
}

// Index returns the member position in its buffer.
func (m *Member) Index() int { return m.index }

// Buffer returns the owning buffer.
func (m *Member) Buffer() *Buffer { return m.buf }

func (m *Member) window() []float32 {
	off := m.index * m.buf.stride
	return m.buf.data[off : off+m.buf.stride]
}

// Has reports whether the layout declares a field called name.
func (m *Member) Has(name string) bool {
	_, ok := m.buf.fields[name]
	return ok
}

// Validate checks f against the layout. See Buffer.Validate.
func (m *Member) Validate(f Fields) error { return m.buf.Validate(f) }

// UpdateFields writes f into the member. With reset the whole window is
// zeroed first. Unknown names are skipped with a warning and values longer
// than their field are truncated. When anything changed the member is
// written back, or marked dirty in deferred mode.
func (m *Member) UpdateFields(f Fields, reset bool) {
	w := m.window()
	changed := false
	if reset {
		for i := range w {
			if w[i] != 0 {
				w[i] = 0
				changed = true
			}
		}
	}
	for name, vals := range f {
		fd, ok := m.buf.fields[name]
		if !ok {
			logger.Load().Warn("packer: unknown field", "block", m.buf.name, "field", name)
			continue
		}
		dst := w[fd.Offset:fd.End()]
		if len(vals) == 0 {
			for i := range dst {
				if dst[i] != 0 {
					dst[i] = 0
					changed = true
				}
			}
			continue
		}
		if len(vals) > len(dst) {
			logger.Load().Warn("packer: value truncated",
				"block", m.buf.name, "field", name, "values", len(vals), "size", len(dst))
			vals = vals[:len(dst)]
		}
		for i, v := range vals {
			if dst[i] != v {
				dst[i] = v
				changed = true
			}
		}
	}
	if changed {
		m.buf.commit(m.index)
	}
}

// Get returns a copy of one field's values, or nil for an unknown name.
func (m *Member) Get(name string) []float32 {
	fd, ok := m.buf.fields[name]
	if !ok {
		return nil
	}
	return slices.Clone(m.window()[fd.Offset:fd.End()])
}

// Values returns a copy of the member window.
func (m *Member) Values() []float32 { return slices.Clone(m.window()) }

// Write uploads the member regardless of changes.
func (m *Member) Write() { m.buf.WritePartial(m.index, 1) }
