// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package automation animates named parameters from keyframe tracks.
//
// An [Automator] owns one track per parameter. Each frame the render driver
// calls [Automator.Update] with the scene time; every track is evaluated at
// that time and the bound setter runs when the value changed. Evaluation is
// total: missing tracks, times before the first keyframe and degenerate
// segments all resolve to a value without error.
package automation

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/gogpu/stage/internal/ordered"
)

var (
	// ErrNoTempo is returned when a keyframe is placed by bar and the
	// automator has no valid tempo.
	ErrNoTempo = errors.New("automation: bar position requires a tempo")

	// ErrUnknownInterpolation is returned for unrecognised curve names.
	ErrUnknownInterpolation = errors.New("automation: unknown interpolation")

	// ErrBadTime is returned for keyframes at a NaN or infinite time.
	ErrBadTime = errors.New("automation: keyframe time is not finite")
)

// RemoveEpsilon is the tolerance in seconds used by RemoveKeyframes.
const RemoveEpsilon = 0.001

// Keyframe is one control point of a track.
type Keyframe struct {
	// Time in seconds. Ignored when ByBar is set.
	Time float64

	// Bar position, converted to seconds with the tempo when ByBar is set.
	Bar   float64
	ByBar bool

	Value float32

	// Interp shapes the segment that starts at this keyframe.
	Interp Interpolation

	// Arg is the curve parameter.
	Arg float32

	Label string
}

// Options configures an Automator.
type Options struct {
	// BPM is the tempo for bar positioned keyframes. Zero disables bars.
	BPM float64
}

type track struct {
	keys *ordered.Sequence[Keyframe]
}

func newTrack() *track {
	return &track{keys: ordered.New(func(k Keyframe) float64 { return k.Time })}
}

type param struct {
	def    float32
	set    func(float32)
	value  float32
	primed bool
}

// Automator evaluates keyframe tracks. It is not safe for concurrent use.
type Automator struct {
	params    map[string]*param
	tracks    map[string]*track
	order     []string
	barSec    float64
	updatedAt float64
}

// New creates an Automator. An invalid tempo is logged and leaves bar
// keyframes disabled.
func New(opts Options) *Automator {
	a := &Automator{
		params: make(map[string]*param),
		tracks: make(map[string]*track),
	}
	if opts.BPM != 0 {
		if err := a.SetTempo(opts.BPM); err != nil {
			logger.Load().Error("automation: invalid tempo", "bpm", opts.BPM, "err", err)
		}
	}
	return a
}

// SetTempo sets beats per minute and re-times bar keyframes.
// A bar is four beats, so one bar lasts 240/bpm seconds.
func (a *Automator) SetTempo(bpm float64) error {
	if !(bpm > 0) || math.IsInf(bpm, 0) {
		a.barSec = 0
		return fmt.Errorf("%w: bpm %v", ErrNoTempo, bpm)
	}
	a.barSec = 240 / bpm
	for _, tr := range a.tracks {
		keys := tr.keys.Slice()
		tr.keys.Clear()
		for _, k := range keys {
			if k.ByBar {
				k.Time = k.Bar * a.barSec
			}
			tr.keys.Insert(k)
		}
	}
	return nil
}

// SecondsPerBar returns the bar length, or 0 without a tempo.
func (a *Automator) SecondsPerBar() float64 { return a.barSec }

// BarTime converts a bar position to seconds.
func (a *Automator) BarTime(bar float64) (float64, error) {
	if a.barSec == 0 {
		return 0, ErrNoTempo
	}
	return bar * a.barSec, nil
}

func (a *Automator) remember(name string) {
	if !slices.Contains(a.order, name) {
		a.order = append(a.order, name)
	}
}

// Declare registers a parameter with its default value and an optional
// setter called by Update whenever the value changes.
func (a *Automator) Declare(name string, def float32, set func(float32)) {
	p, ok := a.params[name]
	if !ok {
		p = &param{}
		a.params[name] = p
	}
	p.def = def
	p.set = set
	p.primed = false
	a.remember(name)
}

// AddKeyframes inserts keyframes into the named track, creating it on first
// use. Bar keyframes without a tempo are skipped and reported with
// ErrNoTempo; the rest are still added.
func (a *Automator) AddKeyframes(name string, keys ...Keyframe) error {
	tr, ok := a.tracks[name]
	if !ok {
		tr = newTrack()
		a.tracks[name] = tr
		a.remember(name)
	}
	var errs []error
	for _, k := range keys {
		if k.ByBar {
			t, err := a.BarTime(k.Bar)
			if err != nil {
				logger.Load().Error("automation: bar keyframe without tempo",
					"track", name, "bar", k.Bar, "label", k.Label)
				errs = append(errs, fmt.Errorf("%s at bar %v: %w", name, k.Bar, err))
				continue
			}
			k.Time = t
		}
		if math.IsNaN(k.Time) || math.IsInf(k.Time, 0) {
			logger.Load().Error("automation: keyframe rejected",
				"track", name, "time", k.Time, "label", k.Label)
			errs = append(errs, fmt.Errorf("%s at %v: %w", name, k.Time, ErrBadTime))
			continue
		}
		tr.keys.Insert(k)
	}
	return errors.Join(errs...)
}

// RemoveKeyframes deletes every keyframe of the track within RemoveEpsilon
// of t and returns how many were removed.
func (a *Automator) RemoveKeyframes(name string, t float64) int {
	tr, ok := a.tracks[name]
	if !ok {
		return 0
	}
	return tr.keys.RemoveFunc(func(k Keyframe) bool {
		return math.Abs(k.Time-t) <= RemoveEpsilon
	})
}

// Keyframes returns a copy of the named track in time order.
func (a *Automator) Keyframes(name string) []Keyframe {
	tr, ok := a.tracks[name]
	if !ok {
		return nil
	}
	return tr.keys.Slice()
}

// Names returns declared parameters and tracks in first-seen order.
func (a *Automator) Names() []string { return slices.Clone(a.order) }

func (a *Automator) defaultOf(name string) float32 {
	if p, ok := a.params[name]; ok {
		return p.def
	}
	return 0
}

// Evaluate returns the value of the named parameter at time t. Times
// before the first keyframe, and NaN, give the default.
func (a *Automator) Evaluate(name string, t float64) float32 {
	tr, ok := a.tracks[name]
	if !ok || tr.keys.Len() == 0 {
		return a.defaultOf(name)
	}
	keys := tr.keys
	n := keys.Len()
	// Written negated so NaN also falls back to the default.
	if !(t >= keys.Key(0)) {
		return a.defaultOf(name)
	}
	if n < 2 || t >= keys.Key(n-1) {
		return keys.At(n - 1).Value
	}

	i := keys.SearchLeft(t)
	start, end := keys.At(i), keys.At(i+1)
	dt := end.Time - start.Time
	if dt <= 0 {
		return end.Value
	}
	u := float32((t - start.Time) / dt)

	if start.Interp == CatmullRom {
		prev, next := start, end
		if i > 0 {
			prev = keys.At(i - 1)
		}
		if i+2 < n {
			next = keys.At(i + 2)
		}
		return catmullRom(prev.Value, start.Value, end.Value, next.Value, u)
	}
	return start.Value + start.Interp.Ease(u, start.Arg)*(end.Value-start.Value)
}

// Update evaluates every parameter at t and calls setters whose value
// changed since the previous Update.
func (a *Automator) Update(t float64) {
	a.updatedAt = t
	for _, name := range a.order {
		v := a.Evaluate(name, t)
		p, ok := a.params[name]
		if !ok {
			p = &param{}
			a.params[name] = p
		}
		if p.primed && p.value == v {
			continue
		}
		p.value = v
		p.primed = true
		if p.set != nil {
			p.set(v)
		}
	}
}

// Value returns the value computed by the last Update.
func (a *Automator) Value(name string) (float32, bool) {
	p, ok := a.params[name]
	if !ok || !p.primed {
		return 0, false
	}
	return p.value, true
}

// UpdatedAt returns the time passed to the last Update.
func (a *Automator) UpdatedAt() float64 { return a.updatedAt }
