// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package packer

import (
	"encoding/binary"
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"

	"github.com/gogpu/stage/std140"
)

// texelFloats is the number of floats in one RGBA32F texel and in one std140
// vec4 slot. Strides are always a multiple of it.
const texelFloats = 4

// Fields maps field names to values. A single value sets the first float of
// the field; longer slices fill it in order. A nil or empty slice clears the
// field to zero.
type Fields map[string][]float32

// Scalar returns a one-value field entry.
func Scalar(v float32) []float32 { return []float32{v} }

// Mode selects how the buffer memory is consumed on the GPU.
type Mode int

const (
	// ModeUniformBlock backs a std140 uniform block.
	ModeUniformBlock Mode = iota

	// ModeDataTexture backs an RGBA32F texture, one row per member.
	ModeDataTexture
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeUniformBlock:
		return "UniformBlock"
	case ModeDataTexture:
		return "DataTexture"
	default:
		return fmt.Sprintf("Unknown(%d)", int(m))
	}
}

// Region identifies the bytes of one upload.
type Region struct {
	// Offset and Size are in bytes from the start of the buffer.
	Offset int
	Size   int

	// First and Count are the members covered. First is -1 for the
	// metadata region.
	First int
	Count int
}

// IsMetadata reports whether the region is the metadata block.
func (r Region) IsMetadata() bool { return r.First < 0 }

// Sink receives uploads from a Buffer. The data slice is only valid for the
// duration of the call.
type Sink interface {
	Upload(r Region, data []byte)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(r Region, data []byte)

// Upload calls f(r, data).
func (f SinkFunc) Upload(r Region, data []byte) { f(r, data) }

// SizeReporter reports the size in bytes of a named block as seen by the
// shader toolchain.
type SizeReporter interface {
	BlockSize(name string) (bytes int, ok bool)
}

// Metadata declares an int32 region placed after the members.
type Metadata struct {
	// Size in int32 slots. Zero derives it from the fields.
	Size int

	// Fields with offsets and sizes in int32 slots.
	Fields []std140.Field
}

// Options configures a Buffer.
type Options struct {
	// Name is the block name. Required.
	Name string

	// Fields is the member layout with offsets in floats.
	Fields []std140.Field

	// StructSize in floats. Zero derives it from Fields: the std140 size for
	// uniform blocks, the furthest field end for data textures.
	StructSize int

	// Count is the number of members. Default: 1.
	Count int

	// MemberMap gives members names for Named.
	MemberMap map[string]int

	// Mode selects the memory mode. Default: ModeUniformBlock.
	Mode Mode

	// Metadata adds an int32 region after the members (uniform blocks only).
	Metadata *Metadata

	// Reporter cross-checks the computed size. Optional.
	Reporter SizeReporter

	// Deferred makes member changes mark dirty instead of uploading at once.
	// Call Flush to upload them.
	Deferred bool
}

// Buffer is a contiguous float32 buffer holding Count struct instances.
//
// Buffer is not safe for concurrent use.
type Buffer struct {
	name   string
	mode   Mode
	sink   Sink
	fields map[string]std140.Field
	order  []std140.Field

	structSize int
	stride     int
	data       []float32
	members    []Member
	named      map[string]int
	deferred   bool
	dirty      []bool

	meta       []int32
	metaFields map[string]std140.Field
	metaDirty  bool

	scratch []byte
}

// New lays out a buffer and returns it together with any configuration
// problems joined into one error. The buffer is usable even when the error
// is non-nil: invalid fields are dropped and conflicting ones kept as
// declared. A nil sink discards uploads.
func New(opts Options, sink Sink) (*Buffer, error) {
	l := logger.Load()
	var errs []error

	if opts.Name == "" {
		l.Error("packer: buffer declared without a block name")
		errs = append(errs, ErrMissingName)
	}

	b := &Buffer{
		name:     opts.Name,
		mode:     opts.Mode,
		sink:     sink,
		fields:   make(map[string]std140.Field, len(opts.Fields)),
		named:    make(map[string]int, len(opts.MemberMap)),
		deferred: opts.Deferred,
	}

	sizes := make([]int, 0, len(opts.Fields))
	maxEnd := 0
	for _, f := range opts.Fields {
		if err := checkField(f); err != nil {
			l.Error("packer: field rejected", "block", b.name, "field", f.Name, "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", b.name, err))
			continue
		}
		b.fields[f.Name] = f
		b.order = append(b.order, f)
		sizes = append(sizes, f.Size)
		maxEnd = max(maxEnd, f.End())
	}

	if c := std140.Conflicts(b.order); c != nil {
		err := &LayoutConflictError{Block: b.name, Conflicts: c}
		l.Warn("packer: overlapping fields", "block", b.name, "fields", err.Names())
		errs = append(errs, err)
	}

	b.structSize = opts.StructSize
	if b.structSize <= 0 {
		if b.mode == ModeDataTexture {
			b.structSize = maxEnd
		} else {
			b.structSize = std140.TotalSize(sizes) / std140.FloatSize
		}
	}
	if b.structSize < maxEnd {
		l.Warn("packer: struct size grown to fit fields",
			"block", b.name, "declared", b.structSize, "needed", maxEnd)
		b.structSize = maxEnd
	}
	b.stride = max(b.structSize, 1)
	if b.mode == ModeDataTexture {
		b.stride = alignUp(b.stride, texelFloats)
	}

	count := max(opts.Count, 1)
	b.data = make([]float32, count*b.stride)
	b.dirty = make([]bool, count)
	b.members = make([]Member, count)
	for i := range b.members {
		b.members[i] = Member{buf: b, index: i}
	}

	for _, name := range slices.Sorted(maps.Keys(opts.MemberMap)) {
		i := opts.MemberMap[name]
		if i < 0 || i >= count {
			l.Error("packer: member map entry out of range", "block", b.name, "member", name, "index", i)
			errs = append(errs, fmt.Errorf("%w: %q -> %d (count %d)", ErrUnknownMember, name, i, count))
			continue
		}
		b.named[name] = i
	}

	if opts.Metadata != nil {
		if b.mode != ModeUniformBlock {
			l.Error("packer: metadata ignored", "block", b.name, "mode", b.mode)
			errs = append(errs, fmt.Errorf("%s: %w", b.name, ErrMetadataMode))
		} else if err := b.initMetadata(*opts.Metadata); err != nil {
			errs = append(errs, err)
		}
	}

	if opts.Reporter != nil && b.name != "" {
		if reported, ok := opts.Reporter.BlockSize(b.name); ok && reported != b.Bytes() {
			l.Warn("packer: block size mismatch",
				"block", b.name, "reported", reported, "computed", b.Bytes())
			errs = append(errs, fmt.Errorf("%w: %s reported %d bytes, computed %d",
				ErrSizeMismatch, b.name, reported, b.Bytes()))
		}
	}

	l.Debug("packer: buffer created",
		"block", b.name,
		"mode", b.mode,
		"members", count,
		"stride", b.stride,
		"bytes", b.Bytes())

	return b, errors.Join(errs...)
}

func checkField(f std140.Field) error {
	switch {
	case f.Name == ReservedField:
		return fmt.Errorf("%w: %q", ErrReservedField, f.Name)
	case f.Name == "":
		return fmt.Errorf("%w: empty name", ErrInvalidField)
	case f.Offset < 0 || f.Size <= 0:
		return fmt.Errorf("%w: %q offset %d size %d", ErrInvalidField, f.Name, f.Offset, f.Size)
	}
	return nil
}

func (b *Buffer) initMetadata(m Metadata) error {
	l := logger.Load()
	var errs []error
	b.metaFields = make(map[string]std140.Field, len(m.Fields))
	var valid []std140.Field
	size := m.Size
	for _, f := range m.Fields {
		if err := checkField(f); err != nil {
			l.Error("packer: metadata field rejected", "block", b.name, "field", f.Name, "err", err)
			errs = append(errs, fmt.Errorf("%s metadata: %w", b.name, err))
			continue
		}
		b.metaFields[f.Name] = f
		valid = append(valid, f)
		size = max(size, f.End())
	}
	if c := std140.Conflicts(valid); c != nil {
		err := &LayoutConflictError{Block: b.name + " metadata", Conflicts: c}
		l.Warn("packer: overlapping metadata fields", "block", b.name, "fields", err.Names())
		errs = append(errs, err)
	}
	b.meta = make([]int32, alignUp(size, texelFloats))
	return errors.Join(errs...)
}

// Attach replaces the upload sink. Nil discards uploads.
func (b *Buffer) Attach(sink Sink) { b.sink = sink }

// Name returns the block name.
func (b *Buffer) Name() string { return b.name }

// Mode returns the memory mode.
func (b *Buffer) Mode() Mode { return b.mode }

// Len returns the number of members.
func (b *Buffer) Len() int { return len(b.members) }

// StructSize returns the struct size in floats.
func (b *Buffer) StructSize() int { return b.structSize }

// Stride returns the distance between members in floats.
func (b *Buffer) Stride() int { return b.stride }

// Texels returns the number of RGBA32F texels per member row.
func (b *Buffer) Texels() int { return b.stride / texelFloats }

// Bytes returns the total buffer size in bytes, metadata included.
func (b *Buffer) Bytes() int {
	return (len(b.data) + len(b.meta)) * std140.FloatSize
}

// Fields returns the accepted fields in declaration order.
func (b *Buffer) Fields() []std140.Field { return slices.Clone(b.order) }

// Field looks up a field by name.
func (b *Buffer) Field(name string) (std140.Field, bool) {
	f, ok := b.fields[name]
	return f, ok
}

// Member returns the i-th member, or nil when i is out of range.
func (b *Buffer) Member(i int) *Member {
	if i < 0 || i >= len(b.members) {
		return nil
	}
	return &b.members[i]
}

// Named returns the member registered under name in the member map.
func (b *Buffer) Named(name string) (*Member, bool) {
	i, ok := b.named[name]
	if !ok {
		return nil, false
	}
	return &b.members[i], true
}

// Validate checks that every name in f is a field of the layout and that no
// value is longer than its field.
func (b *Buffer) Validate(f Fields) error {
	var errs []error
	for _, name := range slices.Sorted(maps.Keys(f)) {
		fd, ok := b.fields[name]
		if !ok {
			errs = append(errs, fmt.Errorf("%w: %s.%s", ErrUnknownField, b.name, name))
			continue
		}
		if n := len(f[name]); n > fd.Size {
			errs = append(errs, fmt.Errorf("%w: %s.%s has %d values, size %d",
				ErrFieldOverflow, b.name, name, n, fd.Size))
		}
	}
	return errors.Join(errs...)
}

// Values returns a copy of the whole member storage.
func (b *Buffer) Values() []float32 { return slices.Clone(b.data) }

// WritePartial uploads count members starting at first. The range is
// clamped to the buffer.
func (b *Buffer) WritePartial(first, count int) {
	first = max(first, 0)
	end := min(first+count, len(b.members))
	if end <= first {
		return
	}
	lo, hi := first*b.stride, end*b.stride
	r := Region{
		Offset: lo * std140.FloatSize,
		Size:   (hi - lo) * std140.FloatSize,
		First:  first,
		Count:  end - first,
	}
	b.upload(r, b.encodeFloats(b.data[lo:hi]))
	clear(b.dirty[first:end])
}

// WriteWhole uploads every member and the metadata region.
func (b *Buffer) WriteWhole() {
	b.WritePartial(0, len(b.members))
	b.writeMetadata()
}

// Dirty reports whether any member or the metadata awaits Flush.
func (b *Buffer) Dirty() bool {
	return b.metaDirty || slices.Contains(b.dirty, true)
}

// Flush uploads dirty members, one WritePartial per contiguous run, then
// the metadata if it changed. It returns the number of uploads issued.
func (b *Buffer) Flush() int {
	uploads := 0
	for i := 0; i < len(b.dirty); {
		if !b.dirty[i] {
			i++
			continue
		}
		j := i + 1
		for j < len(b.dirty) && b.dirty[j] {
			j++
		}
		b.WritePartial(i, j-i)
		uploads++
		i = j
	}
	if b.metaDirty {
		b.writeMetadata()
		uploads++
	}
	return uploads
}

func (b *Buffer) commit(i int) {
	if b.deferred {
		b.dirty[i] = true
		return
	}
	b.WritePartial(i, 1)
}

func (b *Buffer) writeMetadata() {
	b.metaDirty = false
	if len(b.meta) == 0 {
		return
	}
	r := Region{
		Offset: len(b.data) * std140.FloatSize,
		Size:   len(b.meta) * std140.FloatSize,
		First:  -1,
	}
	b.upload(r, b.encodeInts(b.meta))
}

func (b *Buffer) upload(r Region, data []byte) {
	if b.sink == nil {
		return
	}
	logger.Load().Debug("packer: upload",
		"block", b.name, "offset", r.Offset, "size", r.Size, "first", r.First, "count", r.Count)
	b.sink.Upload(r, data)
}

func (b *Buffer) grow(n int) []byte {
	if cap(b.scratch) < n {
		b.scratch = make([]byte, n)
	}
	return b.scratch[:n]
}

func (b *Buffer) encodeFloats(src []float32) []byte {
	out := b.grow(len(src) * 4)
	for i, v := range src {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}

func (b *Buffer) encodeInts(src []int32) []byte {
	out := b.grow(len(src) * 4)
	for i, v := range src {
		binary.LittleEndian.PutUint32(out[i*4:], uint32(v))
	}
	return out
}

func alignUp(n, a int) int { return (n + a - 1) / a * a }
