// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package script loads scene files.
//
// A scene is a YAML document declaring the tempo, the animated parameters
// with their keyframe tracks, the packed struct blocks and the events fired
// into them. [Load] parses and checks a scene; [Scene.Build] turns it into
// an automator, packer buffers and events ready for a session. [Watch]
// reloads a scene file whenever it changes on disk.
//
// Example:
//
//	bpm: 120
//	params:
//	  - name: glow
//	    default: 0.2
//	    bind: Globals.glow
//	tracks:
//	  - param: glow
//	    keys:
//	      - {time: 0, value: 0, interp: smoothstep}
//	      - {bar: 2, value: 1}
//	blocks:
//	  - name: Globals
//	    fields:
//	      - {name: glow, size: 1}
//	events:
//	  - to: [Globals]
//	    fields: {glow: 1}
//	    at: 4
package script

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Scene file errors.
var (
	// ErrInvalidScene is returned when a scene fails validation.
	ErrInvalidScene = errors.New("script: invalid scene")

	// ErrBadRef is returned for malformed receiver or bind references.
	ErrBadRef = errors.New("script: malformed reference")

	// ErrUnknownBlock is returned when a reference names an undeclared block.
	ErrUnknownBlock = errors.New("script: unknown block")
)

// Scene is the root of a scene file.
type Scene struct {
	// Name is informational.
	Name string `yaml:"name,omitempty"`

	// BPM is the tempo used by bar positions. Zero disables bars.
	BPM float64 `yaml:"bpm,omitempty"`

	// Range is the scene length in seconds. Zero means open ended.
	Range float64 `yaml:"range,omitempty"`

	// Loop activates looping between two times.
	Loop *LoopSpec `yaml:"loop,omitempty"`

	Params  []Param     `yaml:"params,omitempty"`
	Tracks  []Track     `yaml:"tracks,omitempty"`
	Blocks  []Block     `yaml:"blocks,omitempty"`
	Phrases *PhraseSpec `yaml:"phrases,omitempty"`
	Events  []EventSpec `yaml:"events,omitempty"`
}

// LoopSpec is a loop range in seconds.
type LoopSpec struct {
	Start float64 `yaml:"start"`
	End   float64 `yaml:"end"`
}

// Param declares an animated parameter.
type Param struct {
	Name    string  `yaml:"name"`
	Default float32 `yaml:"default,omitempty"`

	// Bind writes the value into a block field, as "Block.field" for
	// member 0 or "Block:member.field".
	Bind string `yaml:"bind,omitempty"`
}

// Track lists the keyframes of one parameter.
type Track struct {
	Param string `yaml:"param"`
	Keys  []Key  `yaml:"keys"`
}

// Key is one keyframe. Exactly one of Time and Bar should be set; a key
// with neither sits at time zero.
type Key struct {
	Time  *float64 `yaml:"time,omitempty"`
	Bar   *float64 `yaml:"bar,omitempty"`
	Value float32  `yaml:"value"`

	// Interp names the curve of the segment starting here. Default: linear.
	Interp string  `yaml:"interp,omitempty"`
	Arg    float32 `yaml:"arg,omitempty"`
	Label  string  `yaml:"label,omitempty"`
}

// Block declares a packer buffer.
type Block struct {
	Name string `yaml:"name"`

	// Mode is "uniform" (default) or "texture".
	Mode string `yaml:"mode,omitempty"`

	Count int `yaml:"count,omitempty"`

	// Size overrides the struct size in floats.
	Size int `yaml:"size,omitempty"`

	// Fields without an offset are placed by the std140 planner.
	Fields []FieldSpec `yaml:"fields"`

	Members  map[string]int `yaml:"members,omitempty"`
	Metadata *MetadataSpec  `yaml:"metadata,omitempty"`

	// Shader is a WGSL file declaring a struct with the block's name. Its
	// size cross-checks the planned one.
	Shader string `yaml:"shader,omitempty"`
}

// FieldSpec is a field with its size and optional offset, both in floats
// (int32 slots for metadata).
type FieldSpec struct {
	Name   string `yaml:"name"`
	Size   int    `yaml:"size"`
	Offset *int   `yaml:"offset,omitempty"`
}

// MetadataSpec declares the int32 region after the members.
type MetadataSpec struct {
	Size   int         `yaml:"size,omitempty"`
	Fields []FieldSpec `yaml:"fields"`
}

// PhraseSpec lays phrase events out into a block.
type PhraseSpec struct {
	Block string `yaml:"block"`

	// Atlas is an msdf-bmfont JSON file.
	Atlas string `yaml:"atlas"`

	// Font, when set, is a TrueType file shaped for advances instead of
	// the atlas metrics.
	Font string `yaml:"font,omitempty"`

	Seed uint64 `yaml:"seed,omitempty"`
}

// EventSpec declares one event.
type EventSpec struct {
	// To lists receivers: "Block" for every member, "Block:name" or
	// "Block:3" for one.
	To []string `yaml:"to,omitempty"`

	// Kind is "fields", "phrase" or "deactivate". Default: "phrase" when
	// Text is set, "fields" otherwise.
	Kind string `yaml:"kind,omitempty"`

	Fields map[string]Values `yaml:"fields,omitempty"`
	Text   string            `yaml:"text,omitempty"`

	// At, In and Bar place the event. At and Bar are absolute, In is
	// relative to the launch time, or to At when both are set. None
	// dispatches at the next tick.
	At  *float64 `yaml:"at,omitempty"`
	In  *float64 `yaml:"in,omitempty"`
	Bar *float64 `yaml:"bar,omitempty"`

	// Expire relaunches the event with its type cleared this many seconds
	// after dispatch.
	Expire *float64 `yaml:"expire,omitempty"`

	Patch bool `yaml:"patch,omitempty"`
}

// Values is a field value written as a scalar or a list.
type Values []float32

// UnmarshalYAML accepts both "1" and "[1, 2]".
func (v *Values) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		var f float32
		if err := node.Decode(&f); err != nil {
			return err
		}
		*v = Values{f}
		return nil
	}
	var fs []float32
	if err := node.Decode(&fs); err != nil {
		return err
	}
	*v = fs
	return nil
}

// Load parses a scene. Unknown keys are rejected.
func Load(r io.Reader) (*Scene, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var s Scene
	if err := dec.Decode(&s); err != nil {
		if errors.Is(err, io.EOF) {
			return &s, nil
		}
		return nil, fmt.Errorf("script: parse: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// LoadFile reads and parses a scene file.
func LoadFile(path string) (*Scene, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("script: read scene: %w", err)
	}
	s, err := Load(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Validate checks names and references without building anything.
func (s *Scene) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidScene}, args...)...))
	}

	blocks := make(map[string]bool, len(s.Blocks))
	for i, b := range s.Blocks {
		switch {
		case b.Name == "":
			fail("block %d has no name", i)
		case blocks[b.Name]:
			fail("block %q declared twice", b.Name)
		}
		blocks[b.Name] = true
		if _, err := parseMode(b.Mode); err != nil {
			errs = append(errs, fmt.Errorf("block %q: %w", b.Name, err))
		}
	}
	for i, p := range s.Params {
		if p.Name == "" {
			fail("param %d has no name", i)
		}
		if p.Bind != "" {
			if _, _, err := parseBind(p.Bind, blocks); err != nil {
				errs = append(errs, fmt.Errorf("param %q: %w", p.Name, err))
			}
		}
	}
	for i, t := range s.Tracks {
		if t.Param == "" {
			fail("track %d has no param", i)
		}
		for j, k := range t.Keys {
			if k.Time != nil && k.Bar != nil {
				fail("track %q key %d sets both time and bar", t.Param, j)
			}
		}
	}
	if s.Loop != nil && s.Loop.End != 0 && s.Loop.End <= s.Loop.Start {
		fail("loop end %g is not after start %g", s.Loop.End, s.Loop.Start)
	}
	if s.Phrases != nil && !blocks[s.Phrases.Block] {
		errs = append(errs, fmt.Errorf("phrases: %w %q", ErrUnknownBlock, s.Phrases.Block))
	}
	for i, ev := range s.Events {
		for _, to := range ev.To {
			r, err := parseRef(to)
			if err != nil {
				errs = append(errs, fmt.Errorf("event %d: %w", i, err))
				continue
			}
			if !blocks[r.block] {
				errs = append(errs, fmt.Errorf("event %d: %w %q", i, ErrUnknownBlock, r.block))
			}
		}
		if _, err := ev.kind(); err != nil {
			errs = append(errs, fmt.Errorf("event %d: %w", i, err))
		}
		if ev.Bar != nil && ev.At != nil {
			fail("event %d sets both at and bar", i)
		}
	}
	return errors.Join(errs...)
}

// ref addresses a block, or one member of it.
type ref struct {
	block  string
	member string
	index  int
	all    bool
}

func (r ref) String() string {
	if r.all {
		return r.block
	}
	return r.block + ":" + r.member
}

// parseRef parses "Block", "Block:name" and "Block:3".
func parseRef(s string) (ref, error) {
	block, member, found := strings.Cut(s, ":")
	if block == "" || (found && member == "") {
		return ref{}, fmt.Errorf("%w: %q", ErrBadRef, s)
	}
	if !found {
		return ref{block: block, all: true}, nil
	}
	r := ref{block: block, member: member, index: -1}
	if n, err := strconv.Atoi(member); err == nil {
		if n < 0 {
			return ref{}, fmt.Errorf("%w: negative member in %q", ErrBadRef, s)
		}
		r.index = n
	}
	return r, nil
}

// parseBind parses "Block.field" and "Block:member.field". A bare block
// binds member 0.
func parseBind(s string, blocks map[string]bool) (ref, string, error) {
	i := strings.LastIndexByte(s, '.')
	if i <= 0 || i == len(s)-1 {
		return ref{}, "", fmt.Errorf("%w: bind %q", ErrBadRef, s)
	}
	r, err := parseRef(s[:i])
	if err != nil {
		return ref{}, "", err
	}
	if r.all {
		r = ref{block: r.block, member: "0", index: 0}
	}
	if blocks != nil && !blocks[r.block] {
		return ref{}, "", fmt.Errorf("%w %q", ErrUnknownBlock, r.block)
	}
	return r, s[i+1:], nil
}
