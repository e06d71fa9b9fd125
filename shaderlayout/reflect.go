// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package shaderlayout reads struct layouts back out of compiled shaders.
//
// WGSL source is compiled to SPIR-V with naga. The module is then scanned
// for debug names, member offsets and type sizes, which gives the layout the
// shader actually expects. A [Reflection] reports block sizes to the packer
// so that a hand-declared layout that drifted from the shader is caught at
// construction.
package shaderlayout

import (
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/gogpu/naga"

	"github.com/gogpu/stage/internal/lru"
	"github.com/gogpu/stage/std140"
)

var (
	// ErrNotSPIRV is returned when the module header is missing or wrong.
	ErrNotSPIRV = errors.New("shaderlayout: not a SPIR-V module")

	// ErrTruncated is returned when an instruction runs past the module end.
	ErrTruncated = errors.New("shaderlayout: truncated instruction")

	// ErrUnknownStruct is returned for struct names missing from the module.
	ErrUnknownStruct = errors.New("shaderlayout: unknown struct")
)

const (
	spirvMagic  = 0x07230203
	headerWords = 5

	// std140 rounds struct sizes and matrix columns to 16 bytes.
	structAlign = 16
)

// SPIR-V opcodes and decorations used by the scan.
const (
	opName           = 5
	opMemberName     = 6
	opTypeBool       = 20
	opTypeInt        = 21
	opTypeFloat      = 22
	opTypeVector     = 23
	opTypeMatrix     = 24
	opTypeArray      = 28
	opTypeRuntimeArr = 29
	opTypeStruct     = 30
	opConstant       = 43
	opDecorate       = 71
	opMemberDecorate = 72

	decArrayStride  = 6
	decMatrixStride = 7
	decOffset       = 35
)

// Member is one struct member. Offset and Size are in bytes.
type Member struct {
	Name   string
	Offset int
	Size   int
}

// Struct is a reflected struct type.
type Struct struct {
	Name string

	// Size in bytes, rounded up to 16.
	Size int

	Members []Member
}

// Fields converts the members to packer fields in float units.
// Unnamed members are called m<index>.
func (s Struct) Fields() []std140.Field {
	out := make([]std140.Field, len(s.Members))
	for i, m := range s.Members {
		name := m.Name
		if name == "" {
			name = fmt.Sprintf("m%d", i)
		}
		out[i] = std140.Field{
			Name:   name,
			Offset: m.Offset / std140.FloatSize,
			Size:   (m.Size + std140.FloatSize - 1) / std140.FloatSize,
		}
	}
	return out
}

// Reflection holds the named structs of one module.
type Reflection struct {
	structs map[string]Struct
	order   []string
}

type compiled struct {
	refl *Reflection
	err  error
}

// cache holds reflections by WGSL source; scene reloads recompile the same
// shaders over and over.
var cache = lru.New[string, compiled](32)

// Compile compiles WGSL source and reflects the result. Results, failures
// included, are cached by source. Safe for concurrent use.
func Compile(wgsl string) (*Reflection, error) {
	c := cache.GetOrCreate(wgsl, func() compiled {
		spirv, err := naga.Compile(wgsl)
		if err != nil {
			return compiled{err: fmt.Errorf("shaderlayout: compile: %w", err)}
		}
		r, err := Reflect(words(spirv))
		return compiled{refl: r, err: err}
	})
	return c.refl, c.err
}

// LoadFile reads and compiles a WGSL file.
func LoadFile(path string) (*Reflection, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("shaderlayout: %w", err)
	}
	return Compile(string(src))
}

// words converts little-endian SPIR-V bytes to 32-bit words.
func words(b []byte) []uint32 {
	out := make([]uint32, len(b)/4)
	for i := range out {
		out[i] = uint32(b[i*4]) |
			uint32(b[i*4+1])<<8 |
			uint32(b[i*4+2])<<16 |
			uint32(b[i*4+3])<<24
	}
	return out
}

// Struct returns the struct called name.
func (r *Reflection) Struct(name string) (Struct, bool) {
	s, ok := r.structs[name]
	s.Members = slices.Clone(s.Members)
	return s, ok
}

// Structs returns every named struct in module order.
func (r *Reflection) Structs() []Struct {
	out := make([]Struct, 0, len(r.order))
	for _, name := range r.order {
		s, _ := r.Struct(name)
		out = append(out, s)
	}
	return out
}

// BlockSize reports the size in bytes of the named struct. It satisfies
// packer.SizeReporter.
func (r *Reflection) BlockSize(name string) (int, bool) {
	s, ok := r.structs[name]
	return s.Size, ok
}

// Fields returns the packer fields of the named struct.
func (r *Reflection) Fields(name string) ([]std140.Field, error) {
	s, ok := r.structs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStruct, name)
	}
	return s.Fields(), nil
}

// typeInfo is what the scan records for each result id.
type typeInfo struct {
	op      uint32
	operand []uint32
}

type scan struct {
	names       map[uint32]string
	memberNames map[uint32]map[uint32]string
	offsets     map[uint32]map[uint32]int
	matStride   map[uint32]map[uint32]int
	arrStride   map[uint32]int
	constants   map[uint32]uint32
	types       map[uint32]typeInfo
	structs     []uint32
	sizes       map[uint32]int
}

// Reflect scans a SPIR-V module given as words.
func Reflect(module []uint32) (*Reflection, error) {
	if len(module) < headerWords || module[0] != spirvMagic {
		return nil, ErrNotSPIRV
	}
	sc := &scan{
		names:       make(map[uint32]string),
		memberNames: make(map[uint32]map[uint32]string),
		offsets:     make(map[uint32]map[uint32]int),
		matStride:   make(map[uint32]map[uint32]int),
		arrStride:   make(map[uint32]int),
		constants:   make(map[uint32]uint32),
		types:       make(map[uint32]typeInfo),
		sizes:       make(map[uint32]int),
	}
	for pc := headerWords; pc < len(module); {
		count := int(module[pc] >> 16)
		op := module[pc] & 0xffff
		if count == 0 || pc+count > len(module) {
			return nil, fmt.Errorf("%w at word %d", ErrTruncated, pc)
		}
		sc.visit(op, module[pc+1:pc+count])
		pc += count
	}

	r := &Reflection{structs: make(map[string]Struct)}
	for _, id := range sc.structs {
		name, ok := sc.names[id]
		if !ok || name == "" {
			continue
		}
		if _, dup := r.structs[name]; dup {
			continue
		}
		r.structs[name] = sc.structAt(id)
		r.order = append(r.order, name)
	}
	return r, nil
}

func (sc *scan) visit(op uint32, args []uint32) {
	switch op {
	case opName:
		if len(args) >= 2 {
			sc.names[args[0]] = literal(args[1:])
		}
	case opMemberName:
		if len(args) >= 3 {
			sub(sc.memberNames, args[0])[args[1]] = literal(args[2:])
		}
	case opDecorate:
		if len(args) >= 3 && args[1] == decArrayStride {
			sc.arrStride[args[0]] = int(args[2])
		}
	case opMemberDecorate:
		if len(args) < 4 {
			return
		}
		switch args[2] {
		case decOffset:
			sub(sc.offsets, args[0])[args[1]] = int(args[3])
		case decMatrixStride:
			sub(sc.matStride, args[0])[args[1]] = int(args[3])
		}
	case opConstant:
		if len(args) >= 3 {
			sc.constants[args[1]] = args[2]
		}
	case opTypeBool, opTypeInt, opTypeFloat, opTypeVector, opTypeMatrix,
		opTypeArray, opTypeRuntimeArr, opTypeStruct:
		if len(args) == 0 {
			return
		}
		sc.types[args[0]] = typeInfo{op: op, operand: slices.Clone(args[1:])}
		if op == opTypeStruct {
			sc.structs = append(sc.structs, args[0])
		}
	}
}

func sub[V any](m map[uint32]map[uint32]V, id uint32) map[uint32]V {
	inner, ok := m[id]
	if !ok {
		inner = make(map[uint32]V)
		m[id] = inner
	}
	return inner
}

// literal decodes a nul-terminated SPIR-V string.
func literal(ws []uint32) string {
	b := make([]byte, 0, len(ws)*4)
	for _, w := range ws {
		for i := 0; i < 4; i++ {
			c := byte(w >> (8 * i))
			if c == 0 {
				return string(b)
			}
			b = append(b, c)
		}
	}
	return string(b)
}

func (sc *scan) structAt(id uint32) Struct {
	t := sc.types[id]
	s := Struct{Name: sc.names[id], Members: make([]Member, len(t.operand))}
	end := 0
	for i, mt := range t.operand {
		idx := uint32(i)
		m := Member{
			Name:   sc.memberNames[id][idx],
			Offset: sc.offsets[id][idx],
			Size:   sc.sizeOf(mt, sc.matStride[id][idx]),
		}
		s.Members[i] = m
		end = max(end, m.Offset+m.Size)
	}
	s.Size = (end + structAlign - 1) / structAlign * structAlign
	return s
}

// sizeOf returns the byte size of a type. matrixStride overrides the column
// stride of a matrix when non-zero.
func (sc *scan) sizeOf(id uint32, matrixStride int) int {
	t, ok := sc.types[id]
	if !ok {
		return 0
	}
	switch t.op {
	case opTypeBool:
		return 4
	case opTypeInt, opTypeFloat:
		if len(t.operand) > 0 {
			return int(t.operand[0]) / 8
		}
	case opTypeVector:
		if len(t.operand) >= 2 {
			return sc.sizeOf(t.operand[0], 0) * int(t.operand[1])
		}
	case opTypeMatrix:
		if len(t.operand) >= 2 {
			stride := matrixStride
			if stride == 0 {
				col := sc.sizeOf(t.operand[0], 0)
				stride = (col + structAlign - 1) / structAlign * structAlign
			}
			return stride * int(t.operand[1])
		}
	case opTypeArray:
		if len(t.operand) >= 2 {
			stride := sc.arrStride[id]
			if stride == 0 {
				stride = sc.sizeOf(t.operand[0], 0)
			}
			return stride * int(sc.constants[t.operand[1]])
		}
	case opTypeStruct:
		if size, ok := sc.sizes[id]; ok {
			return size
		}
		size := sc.structAt(id).Size
		sc.sizes[id] = size
		return size
	}
	return 0
}
