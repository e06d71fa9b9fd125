// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package glyphs

import (
	"math/rand/v2"

	"github.com/gogpu/stage/packer"
)

// Member fields written by PhraseWriter.
const (
	FieldASCII  = "ascii"
	FieldScale  = "scale"
	FieldPos    = "pos"
	FieldColor  = "color"
	FieldEffect = "effect"

	// MetaLettersUsed is the metadata field holding the letter count.
	MetaLettersUsed = "lettersUsed"
)

// PhraseOptions tunes the phrase layout. Zero values select the defaults
// noted on each field.
type PhraseOptions struct {
	// Seed makes the random scale and jitter reproducible. Default: 1.
	Seed uint64

	// ScaleMin and ScaleMax bound the random per-letter scale.
	// Default: 0.7 and 1.3.
	ScaleMin, ScaleMax float32

	// Baseline is the vertical position in clip space. Default: -0.8.
	Baseline float32

	// Jitter is the total vertical random spread. Default: 0.1.
	Jitter float32

	// Color and Effect are written to every letter.
	// Default: (0.5, 0, 0.7, 1) and (1, 2, 3, 4).
	Color  []float32
	Effect []float32

	// Advancer measures advances. Default: the atlas.
	Advancer Advancer
}

func (o *PhraseOptions) defaults(a *Atlas) {
	if o.Seed == 0 {
		o.Seed = 1
	}
	if o.ScaleMin == 0 && o.ScaleMax == 0 {
		o.ScaleMin, o.ScaleMax = 0.7, 1.3
	}
	if o.Baseline == 0 {
		o.Baseline = -0.8
	}
	if o.Jitter == 0 {
		o.Jitter = 0.1
	}
	if o.Color == nil {
		o.Color = []float32{0.5, 0, 0.7, 1}
	}
	if o.Effect == nil {
		o.Effect = []float32{1, 2, 3, 4}
	}
	if o.Advancer == nil {
		o.Advancer = a
	}
}

// PhraseWriter lays phrases out into the members of a glyph instance
// buffer, one member per visible character.
type PhraseWriter struct {
	atlas *Atlas
	buf   *packer.Buffer
	opts  PhraseOptions
	rng   *rand.Rand
	used  int
}

// NewPhraseWriter creates a writer for buf, whose layout should declare the
// ascii, scale, pos, color and effect fields and a lettersUsed metadata
// field.
func NewPhraseWriter(atlas *Atlas, buf *packer.Buffer, opts PhraseOptions) *PhraseWriter {
	opts.defaults(atlas)
	return &PhraseWriter{
		atlas: atlas,
		buf:   buf,
		opts:  opts,
		rng:   rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15)),
	}
}

// LettersUsed returns the number of members the last phrase occupied.
func (w *PhraseWriter) LettersUsed() int { return w.used }

// ReplacePhrase lays out text starting left of center. Spaces only move the
// cursor, characters missing from the atlas are skipped with a warning, and
// members left over from a longer previous phrase are cleared.
func (w *PhraseWriter) ReplacePhrase(text string) {
	runes := []rune(text)
	advances := w.opts.Advancer.Advances(runes)
	unit := w.atlas.PixelUnit()
	cursor := -float32(len(runes)) * 0.1
	used := 0

	for i, r := range runes {
		if r == ' ' {
			cursor += w.atlas.SpaceWidth() * unit
			continue
		}
		if _, ok := w.atlas.Glyph(r); !ok {
			logger.Load().Warn("glyphs: character not in atlas", "char", string(r), "phrase", text)
			continue
		}
		if used >= w.buf.Len() {
			logger.Load().Warn("glyphs: phrase truncated", "phrase", text, "capacity", w.buf.Len())
			break
		}
		scale := w.opts.ScaleMin + (w.opts.ScaleMax-w.opts.ScaleMin)*w.rng.Float32()
		y := (w.rng.Float32()-0.5)*w.opts.Jitter + w.opts.Baseline
		w.buf.Member(used).UpdateFields(packer.Fields{
			FieldASCII:  {float32(r)},
			FieldScale:  {scale},
			FieldPos:    {cursor, y},
			FieldColor:  w.opts.Color,
			FieldEffect: w.opts.Effect,
		}, true)
		cursor += advances[i] * unit / scale
		used++
	}

	for j := used; j < w.used; j++ {
		w.buf.Member(j).UpdateFields(nil, true)
	}
	w.used = used
	w.buf.Meta(MetaLettersUsed).Set(int32(used))
	logger.Load().Debug("glyphs: phrase replaced", "phrase", text, "letters", used)
}
