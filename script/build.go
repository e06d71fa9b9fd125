// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package script

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gogpu/stage/automation"
	"github.com/gogpu/stage/clock"
	"github.com/gogpu/stage/events"
	"github.com/gogpu/stage/glyphs"
	"github.com/gogpu/stage/packer"
	"github.com/gogpu/stage/shaderlayout"
	"github.com/gogpu/stage/std140"
)

var (
	// ErrUnknownMode is returned for block modes other than uniform and
	// texture.
	ErrUnknownMode = errors.New("script: unknown block mode")

	// ErrUnknownKind is returned for unrecognised event kinds.
	ErrUnknownKind = errors.New("script: unknown event kind")

	// ErrUnknownMember is returned when a reference names a member the
	// block does not have.
	ErrUnknownMember = errors.New("script: unknown member")
)

// BuildOptions configures Scene.Build.
type BuildOptions struct {
	// Dir resolves relative shader, atlas and font paths. Default: the
	// working directory.
	Dir string

	// Deferred builds buffers whose member writes wait for Flush.
	Deferred bool

	// Sink returns the upload sink for a block. Optional; buffers without
	// a sink discard uploads until one is attached.
	Sink func(block string) packer.Sink
}

// Built is a scene turned into live objects.
type Built struct {
	Automator *automation.Automator

	// Buffers in declaration order.
	Buffers []*packer.Buffer

	// Events ready to launch, in declaration order.
	Events []*events.Event

	// Phrases lays out phrase events. Nil when the scene declares none.
	Phrases *glyphs.PhraseWriter

	byName map[string]*packer.Buffer
}

// Buffer returns the buffer built for the named block.
func (b *Built) Buffer(name string) (*packer.Buffer, bool) {
	buf, ok := b.byName[name]
	return buf, ok
}

// ClockOptions returns the clock settings of the scene.
func (s *Scene) ClockOptions() clock.Options {
	opts := clock.Options{RangeEnd: s.Range}
	if s.Loop != nil {
		opts.Loop = &clock.Loop{Start: s.Loop.Start, End: s.Loop.End}
	}
	return opts
}

// Build creates the automator, buffers and events of the scene. Like
// packer.New it returns a usable result together with every problem found:
// broken parts are skipped, the rest is built.
func (s *Scene) Build(opts BuildOptions) (*Built, error) {
	var errs []error
	b := &Built{
		Automator: automation.New(automation.Options{BPM: s.BPM}),
		byName:    make(map[string]*packer.Buffer, len(s.Blocks)),
	}

	for _, blk := range s.Blocks {
		buf, err := s.buildBlock(blk, opts)
		if err != nil {
			errs = append(errs, fmt.Errorf("block %q: %w", blk.Name, err))
		}
		if buf == nil {
			continue
		}
		b.Buffers = append(b.Buffers, buf)
		b.byName[blk.Name] = buf
	}

	for _, p := range s.Params {
		set, err := b.binding(p)
		if err != nil {
			errs = append(errs, fmt.Errorf("param %q: %w", p.Name, err))
		}
		b.Automator.Declare(p.Name, p.Default, set)
	}

	for _, tr := range s.Tracks {
		keys := make([]automation.Keyframe, 0, len(tr.Keys))
		for _, k := range tr.Keys {
			kf, err := k.keyframe()
			if err != nil {
				errs = append(errs, fmt.Errorf("track %q: %w", tr.Param, err))
				continue
			}
			keys = append(keys, kf)
		}
		if err := b.Automator.AddKeyframes(tr.Param, keys...); err != nil {
			errs = append(errs, err)
		}
	}

	if s.Phrases != nil {
		pw, err := b.phrases(*s.Phrases, opts.Dir)
		if err != nil {
			errs = append(errs, fmt.Errorf("phrases: %w", err))
		}
		b.Phrases = pw
	}

	for i, spec := range s.Events {
		ev, err := b.event(spec)
		if err != nil {
			errs = append(errs, fmt.Errorf("event %d: %w", i, err))
			continue
		}
		b.Events = append(b.Events, ev)
	}

	err := errors.Join(errs...)
	if err != nil {
		logger.Load().Warn("script: scene built with errors", "scene", s.Name, "err", err)
	} else {
		logger.Load().Info("script: scene built", "scene", s.Name,
			"buffers", len(b.Buffers), "params", len(b.Automator.Names()), "events", len(b.Events))
	}
	return b, err
}

func parseMode(s string) (packer.Mode, error) {
	switch s {
	case "", "uniform":
		return packer.ModeUniformBlock, nil
	case "texture":
		return packer.ModeDataTexture, nil
	default:
		return 0, fmt.Errorf("%w %q", ErrUnknownMode, s)
	}
}

func (s *Scene) buildBlock(blk Block, opts BuildOptions) (*packer.Buffer, error) {
	mode, err := parseMode(blk.Mode)
	if err != nil {
		return nil, err
	}
	fields, err := placeFields(blk.Fields, true)
	if err != nil {
		return nil, err
	}

	var errs []error
	popts := packer.Options{
		Name:       blk.Name,
		Fields:     fields,
		StructSize: blk.Size,
		Count:      blk.Count,
		MemberMap:  blk.Members,
		Mode:       mode,
		Deferred:   opts.Deferred,
	}
	if blk.Metadata != nil {
		mf, err := placeFields(blk.Metadata.Fields, false)
		if err != nil {
			errs = append(errs, fmt.Errorf("metadata: %w", err))
		} else {
			popts.Metadata = &packer.Metadata{Size: blk.Metadata.Size, Fields: mf}
		}
	}
	if blk.Shader != "" {
		refl, err := shaderlayout.LoadFile(resolve(opts.Dir, blk.Shader))
		if err != nil {
			errs = append(errs, err)
		} else {
			popts.Reporter = refl
		}
	}

	var sink packer.Sink
	if opts.Sink != nil {
		sink = opts.Sink(blk.Name)
	}
	buf, err := packer.New(popts, sink)
	errs = append(errs, err)
	return buf, errors.Join(errs...)
}

// placeFields turns field specs into packer fields. Fields without an
// offset take the std140 planned one when planned is set, or follow the
// previous field otherwise.
func placeFields(specs []FieldSpec, planned bool) ([]std140.Field, error) {
	var layout std140.Layout
	if planned {
		decls := make([]std140.Decl, len(specs))
		for i, f := range specs {
			decls[i] = std140.Decl{Name: f.Name, Size: f.Size}
		}
		l, err := std140.Plan(decls)
		if err != nil {
			return nil, err
		}
		layout = l
	}
	out := make([]std140.Field, len(specs))
	next := 0
	for i, f := range specs {
		off := next
		if planned {
			off = layout.Fields[i].Offset
		}
		if f.Offset != nil {
			off = *f.Offset
		}
		out[i] = std140.Field{Name: f.Name, Offset: off, Size: f.Size}
		next = off + f.Size
	}
	return out, nil
}

func resolve(dir, path string) string {
	if dir == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}

func (k Key) keyframe() (automation.Keyframe, error) {
	interp, err := automation.ParseInterpolation(k.Interp)
	if err != nil {
		return automation.Keyframe{}, err
	}
	kf := automation.Keyframe{
		Value:  k.Value,
		Interp: interp,
		Arg:    k.Arg,
		Label:  k.Label,
	}
	switch {
	case k.Bar != nil:
		kf.Bar, kf.ByBar = *k.Bar, true
	case k.Time != nil:
		kf.Time = *k.Time
	}
	return kf, nil
}

// members resolves a reference to packer members.
func (b *Built) members(r ref) ([]*packer.Member, error) {
	buf, ok := b.byName[r.block]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownBlock, r.block)
	}
	if r.all {
		out := make([]*packer.Member, buf.Len())
		for i := range out {
			out[i] = buf.Member(i)
		}
		return out, nil
	}
	var m *packer.Member
	if r.index >= 0 {
		m = buf.Member(r.index)
	} else {
		m, _ = buf.Named(r.member)
	}
	if m == nil {
		return nil, fmt.Errorf("%w %s", ErrUnknownMember, r)
	}
	return []*packer.Member{m}, nil
}

func (b *Built) binding(p Param) (func(float32), error) {
	if p.Bind == "" {
		return nil, nil
	}
	r, field, err := parseBind(p.Bind, nil)
	if err != nil {
		return nil, err
	}
	ms, err := b.members(r)
	if err != nil {
		return nil, err
	}
	m := ms[0]
	if !m.Has(field) {
		return nil, fmt.Errorf("%w: %s has no field %q", packer.ErrUnknownField, r, field)
	}
	return func(v float32) {
		m.UpdateFields(packer.Fields{field: {v}}, false)
	}, nil
}

func (b *Built) phrases(spec PhraseSpec, dir string) (*glyphs.PhraseWriter, error) {
	buf, ok := b.byName[spec.Block]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownBlock, spec.Block)
	}
	atlas, err := glyphs.LoadAtlas(resolve(dir, spec.Atlas))
	if err != nil {
		return nil, err
	}
	opts := glyphs.PhraseOptions{Seed: spec.Seed}
	if spec.Font != "" {
		ttf, err := os.ReadFile(resolve(dir, spec.Font))
		if err != nil {
			return nil, fmt.Errorf("script: read font: %w", err)
		}
		sh, err := glyphs.NewShaper(ttf, atlas.Info.Size)
		if err != nil {
			return nil, err
		}
		opts.Advancer = sh
	}
	return glyphs.NewPhraseWriter(atlas, buf, opts), nil
}

func (ev EventSpec) kind() (events.Kind, error) {
	switch ev.Kind {
	case "":
		if ev.Text != "" {
			return events.KindPhrase, nil
		}
		return events.KindFields, nil
	case "fields":
		return events.KindFields, nil
	case "phrase":
		return events.KindPhrase, nil
	case "deactivate":
		return events.KindDeactivate, nil
	default:
		return 0, fmt.Errorf("%w %q", ErrUnknownKind, ev.Kind)
	}
}

func (b *Built) event(spec EventSpec) (*events.Event, error) {
	kind, err := spec.kind()
	if err != nil {
		return nil, err
	}
	ev := &events.Event{
		Payload: events.Payload{Kind: kind, Text: spec.Text},
		Patch:   spec.Patch,
	}
	if len(spec.Fields) > 0 {
		ev.Payload.Fields = make(packer.Fields, len(spec.Fields))
		for name, v := range spec.Fields {
			ev.Payload.Fields[name] = []float32(v)
		}
	}
	for _, to := range spec.To {
		r, err := parseRef(to)
		if err != nil {
			return nil, err
		}
		ms, err := b.members(r)
		if err != nil {
			return nil, err
		}
		for _, m := range ms {
			ev.Receivers = append(ev.Receivers, m)
		}
	}

	at, hasAt := 0.0, false
	switch {
	case spec.Bar != nil:
		t, err := b.Automator.BarTime(*spec.Bar)
		if err != nil {
			return nil, err
		}
		at, hasAt = t, true
	case spec.At != nil:
		at, hasAt = *spec.At, true
	}
	switch {
	case hasAt && spec.In != nil:
		ev.Launch = events.InAfter(*spec.In, at)
	case hasAt:
		ev.Launch = events.At(at)
	case spec.In != nil:
		ev.Launch = events.In(*spec.In)
	}
	if spec.Expire != nil {
		ev.Expire = events.In(*spec.Expire)
	}
	return ev, nil
}
