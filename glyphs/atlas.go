// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package glyphs lays out text phrases as instanced MSDF glyphs.
//
// An [Atlas] is read from the JSON written by msdf-bmfont. Its glyph table
// ([Atlas.GlyphDefs]) is uploaded once; a [PhraseWriter] then writes one
// packer member per visible character and records the number of letters in
// the buffer metadata.
package glyphs

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

var (
	// ErrInvalidAtlas is returned when the atlas has no usable dimensions.
	ErrInvalidAtlas = errors.New("glyphs: atlas has no texture size")
)

// DefsPerGlyph is the number of floats GlyphDefs writes per character:
// center (2), half size (2), offset (2), advance (1) and padding (1).
const DefsPerGlyph = 8

// Char is one glyph entry of the atlas, in atlas pixels.
type Char struct {
	ID       rune    `json:"id"`
	X        float32 `json:"x"`
	Y        float32 `json:"y"`
	Width    float32 `json:"width"`
	Height   float32 `json:"height"`
	XOffset  float32 `json:"xoffset"`
	YOffset  float32 `json:"yoffset"`
	XAdvance float32 `json:"xadvance"`
	Page     int     `json:"page"`
}

// Charset lists the characters the atlas was generated for. It decodes from
// either a JSON string or an array of one-character strings.
type Charset []rune

// UnmarshalJSON implements json.Unmarshaler.
func (c *Charset) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*c = []rune(s)
		return nil
	}
	var list []string
	if err := json.Unmarshal(b, &list); err != nil {
		return fmt.Errorf("glyphs: charset: %w", err)
	}
	out := make([]rune, 0, len(list))
	for _, s := range list {
		out = append(out, []rune(s)...)
	}
	*c = out
	return nil
}

// Info is the font section of the atlas.
type Info struct {
	Face    string  `json:"face"`
	Size    float32 `json:"size"`
	Charset Charset `json:"charset"`
}

// Common holds the shared metrics of the atlas texture.
type Common struct {
	LineHeight float32 `json:"lineHeight"`
	Base       float32 `json:"base"`
	ScaleW     float32 `json:"scaleW"`
	ScaleH     float32 `json:"scaleH"`
}

// Atlas is an MSDF font atlas description.
type Atlas struct {
	Info   Info   `json:"info"`
	Common Common `json:"common"`
	Chars  []Char `json:"chars"`

	byID map[rune]Char
}

// ParseAtlas decodes msdf-bmfont JSON.
func ParseAtlas(r io.Reader) (*Atlas, error) {
	var a Atlas
	if err := json.NewDecoder(r).Decode(&a); err != nil {
		return nil, fmt.Errorf("glyphs: decode atlas: %w", err)
	}
	if a.Common.ScaleW <= 0 || a.Common.ScaleH <= 0 {
		return nil, fmt.Errorf("%w: %vx%v", ErrInvalidAtlas, a.Common.ScaleW, a.Common.ScaleH)
	}
	a.byID = make(map[rune]Char, len(a.Chars))
	for _, c := range a.Chars {
		a.byID[c.ID] = c
	}
	return &a, nil
}

// LoadAtlas reads an atlas JSON file.
func LoadAtlas(path string) (*Atlas, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("glyphs: %w", err)
	}
	defer f.Close()
	return ParseAtlas(f)
}

// Glyph looks up a character.
func (a *Atlas) Glyph(r rune) (Char, bool) {
	c, ok := a.byID[r]
	return c, ok
}

// PixelUnit is the size of one atlas pixel in clip space.
func (a *Atlas) PixelUnit() float32 { return 2 / a.Common.ScaleH }

// SpaceWidth is the width of a space in atlas pixels.
func (a *Atlas) SpaceWidth() float32 { return 0.667 * a.Info.Size }

// GlyphDefs packs DefsPerGlyph floats for every charset character found in
// the chars table, in charset order. UV values are relative to the atlas
// texture; offsets and advance pass through in pixels. Characters missing
// from the table are skipped with a warning.
func (a *Atlas) GlyphDefs() []float32 {
	w, h := a.Common.ScaleW, a.Common.ScaleH
	defs := make([]float32, 0, len(a.Info.Charset)*DefsPerGlyph)
	for _, r := range a.Info.Charset {
		g, ok := a.byID[r]
		if !ok {
			logger.Load().Warn("glyphs: charset character missing from chars", "char", string(r))
			continue
		}
		halfW := 0.5 * g.Width / w
		halfH := 0.5 * g.Height / h
		defs = append(defs,
			g.X/w+halfW, g.Y/h+halfH,
			halfW, halfH,
			g.XOffset, g.YOffset,
			g.XAdvance, 0,
		)
	}
	return defs
}

// Advances implements Advancer with the atlas advance widths. Characters
// missing from the atlas advance by zero.
func (a *Atlas) Advances(text []rune) []float32 {
	out := make([]float32, len(text))
	for i, r := range text {
		if r == ' ' {
			out[i] = a.SpaceWidth()
			continue
		}
		out[i] = a.byID[r].XAdvance
	}
	return out
}
