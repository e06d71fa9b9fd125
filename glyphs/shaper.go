// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package glyphs

import (
	"bytes"
	"fmt"
	"slices"
	"unicode"

	"github.com/go-text/typesetting/di"
	"github.com/go-text/typesetting/font"
	"github.com/go-text/typesetting/language"
	"github.com/go-text/typesetting/shaping"
	"golang.org/x/image/math/fixed"
	"golang.org/x/text/unicode/bidi"

	"github.com/gogpu/stage/internal/lru"
)

// shapeCacheSize bounds the phrases whose advances a Shaper remembers.
const shapeCacheSize = 128

// Advancer measures how far the pen moves after each character, in atlas
// pixels.
type Advancer interface {
	Advances(text []rune) []float32
}

// Shaper measures advances with HarfBuzz shaping, so kerning and complex
// scripts are taken into account. Each bidi run is shaped in its own
// direction.
//
// Shaper is not safe for concurrent use.
type Shaper struct {
	font  *font.Font
	size  fixed.Int26_6
	lang  language.Language
	hb    shaping.HarfbuzzShaper
	cache *lru.Cache[string, []float32]
}

// NewShaper parses a TrueType or OpenType font. size is the pixel size the
// advances are measured at, normally the atlas Info.Size.
func NewShaper(ttf []byte, size float32) (*Shaper, error) {
	face, err := font.ParseTTF(bytes.NewReader(ttf))
	if err != nil {
		return nil, fmt.Errorf("glyphs: parse font: %w", err)
	}
	return &Shaper{
		font:  face.Font,
		size:  fixed.Int26_6(size * 64),
		lang:  language.NewLanguage("en"),
		cache: lru.New[string, []float32](shapeCacheSize),
	}, nil
}

// Advances implements Advancer. Advances of a cluster are attributed to the
// first character of the cluster. Results are memoised per text.
func (s *Shaper) Advances(text []rune) []float32 {
	adv := s.cache.GetOrCreate(string(text), func() []float32 { return s.shape(text) })
	return slices.Clone(adv)
}

// CacheStats reports how often Advances was served from memory.
func (s *Shaper) CacheStats() lru.Stats { return s.cache.Stats() }

func (s *Shaper) shape(text []rune) []float32 {
	out := make([]float32, len(text))
	if len(text) == 0 {
		return out
	}
	face := font.NewFace(s.font)
	for _, r := range runs(text) {
		input := shaping.Input{
			Text:      text,
			RunStart:  r.start,
			RunEnd:    r.end,
			Direction: r.dir,
			Face:      face,
			Size:      s.size,
			Script:    scriptOf(text[r.start:r.end]),
			Language:  s.lang,
		}
		shaped := s.hb.Shape(input)
		for _, g := range shaped.Glyphs {
			if i := g.TextIndex(); i >= 0 && i < len(out) {
				out[i] += float32(g.Advance) / 64
			}
		}
	}
	return out
}

type run struct {
	start, end int
	dir        di.Direction
}

// runs splits text into bidi runs. On failure the whole text is one
// left-to-right run.
func runs(text []rune) []run {
	whole := []run{{start: 0, end: len(text), dir: di.DirectionLTR}}
	var p bidi.Paragraph
	if _, err := p.SetString(string(text), bidi.DefaultDirection(bidi.Neutral)); err != nil {
		return whole
	}
	ordering, err := p.Order()
	if err != nil || ordering.NumRuns() == 0 {
		return whole
	}
	out := make([]run, 0, ordering.NumRuns())
	for i := 0; i < ordering.NumRuns(); i++ {
		br := ordering.Run(i)
		start, end := br.Pos()
		if start < 0 || end >= len(text) || end < start {
			continue
		}
		dir := di.DirectionLTR
		if br.Direction() == bidi.RightToLeft {
			dir = di.DirectionRTL
		}
		out = append(out, run{start: start, end: end + 1, dir: dir})
	}
	if len(out) == 0 {
		return whole
	}
	return out
}

func scriptOf(text []rune) language.Script {
	for _, r := range text {
		if !unicode.IsSpace(r) {
			return language.LookupScript(r)
		}
	}
	return language.Latin
}
