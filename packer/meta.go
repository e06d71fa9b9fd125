// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package packer

import "github.com/gogpu/stage/std140"

// MetaField is a handle to one int32 metadata field. The zero value, returned
// for unknown names, ignores Set.
type MetaField struct {
	buf   *Buffer
	field std140.Field
}

// Meta returns the metadata field called name.
func (b *Buffer) Meta(name string) MetaField {
	f, ok := b.metaFields[name]
	if !ok {
		logger.Load().Warn("packer: unknown metadata field", "block", b.name, "field", name)
		return MetaField{}
	}
	return MetaField{buf: b, field: f}
}

// Valid reports whether the handle refers to a declared field.
func (m MetaField) Valid() bool { return m.buf != nil }

// Set fills every slot of the field with v and writes the metadata region,
// or marks it dirty in deferred mode.
func (m MetaField) Set(v int32) {
	if m.buf == nil {
		return
	}
	dst := m.buf.meta[m.field.Offset:m.field.End()]
	for i := range dst {
		dst[i] = v
	}
	if m.buf.deferred {
		m.buf.metaDirty = true
		return
	}
	m.buf.writeMetadata()
}

// Get returns the first slot of the field.
func (m MetaField) Get() int32 {
	if m.buf == nil {
		return 0
	}
	return m.buf.meta[m.field.Offset]
}
