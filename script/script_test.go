// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package script

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gogpu/stage/events"
	"github.com/gogpu/stage/packer"
)

func loadDemo(t *testing.T) *Scene {
	t.Helper()
	s, err := LoadFile(filepath.Join("testdata", "scene.yaml"))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	return s
}

func buildDemo(t *testing.T) *Built {
	t.Helper()
	b, err := loadDemo(t).Build(BuildOptions{Dir: "testdata"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return b
}

func TestLoadFile(t *testing.T) {
	s := loadDemo(t)
	if s.Name != "demo" || s.BPM != 120 {
		t.Errorf("name/bpm = %q/%v", s.Name, s.BPM)
	}
	if len(s.Blocks) != 3 || len(s.Events) != 4 || len(s.Tracks) != 2 {
		t.Fatalf("blocks/events/tracks = %d/%d/%d", len(s.Blocks), len(s.Events), len(s.Tracks))
	}
	if got := s.Events[0].Fields["type"]; len(got) != 1 || got[0] != 1 {
		t.Errorf("scalar field = %v, want [1]", got)
	}
	if got := s.Events[0].Fields["pos"]; len(got) != 4 {
		t.Errorf("list field = %v", got)
	}
	if k := s.Tracks[0].Keys[1]; k.Bar == nil || *k.Bar != 1 || k.Time != nil {
		t.Errorf("bar key = %+v", k)
	}
}

func TestLoadEmpty(t *testing.T) {
	s, err := Load(strings.NewReader(""))
	if err != nil || s == nil {
		t.Fatalf("Load(\"\") = %v, %v", s, err)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	_, err := Load(strings.NewReader("bmp: 120\n"))
	if err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want error
	}{
		{"duplicate block", "blocks: [{name: A}, {name: A}]", ErrInvalidScene},
		{"unnamed block", "blocks: [{fields: []}]", ErrInvalidScene},
		{"bad mode", "blocks: [{name: A, mode: storage}]", ErrUnknownMode},
		{"unknown receiver block", "events: [{to: [B]}]", ErrUnknownBlock},
		{"empty member", "blocks: [{name: A}]\nevents: [{to: [\"A:\"]}]", ErrBadRef},
		{"unknown kind", "events: [{kind: explode}]", ErrUnknownKind},
		{"time and bar", "tracks: [{param: p, keys: [{time: 1, bar: 1, value: 0}]}]", ErrInvalidScene},
		{"backwards loop", "loop: {start: 4, end: 2}", ErrInvalidScene},
		{"bind without field", "blocks: [{name: A}]\nparams: [{name: p, bind: A}]", ErrBadRef},
		{"bind unknown block", "params: [{name: p, bind: B.x}]", ErrUnknownBlock},
		{"phrases unknown block", "phrases: {block: L, atlas: a.json}", ErrUnknownBlock},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(tt.yaml))
			if !errors.Is(err, tt.want) {
				t.Errorf("Load error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestParseRef(t *testing.T) {
	tests := []struct {
		in    string
		all   bool
		index int
		err   bool
	}{
		{"Particles", true, 0, false},
		{"Particles:hero", false, -1, false},
		{"Particles:3", false, 3, false},
		{"Particles:-1", false, 0, true},
		{":hero", false, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			r, err := parseRef(tt.in)
			if (err != nil) != tt.err {
				t.Fatalf("err = %v, want error %v", err, tt.err)
			}
			if err != nil {
				return
			}
			if r.all != tt.all || (!r.all && r.index != tt.index) {
				t.Errorf("ref = %+v", r)
			}
		})
	}
}

func TestBuildAutomator(t *testing.T) {
	b := buildDemo(t)
	a := b.Automator
	if got := a.Evaluate("glow", 1); got != 0.5 {
		t.Errorf("glow(1) = %v, want 0.5 (bar 1 is 2s at 120 bpm)", got)
	}
	if got := a.Evaluate("speed", 5); got != 3 {
		t.Errorf("speed(5) = %v, want 3", got)
	}

	a.Update(1)
	globals, ok := b.Buffer("Globals")
	if !ok {
		t.Fatal("Globals not built")
	}
	if got := globals.Member(0).Get("glow"); len(got) != 1 || got[0] != 0.5 {
		t.Errorf("bound glow = %v, want [0.5]", got)
	}
}

func TestBuildBuffers(t *testing.T) {
	b := buildDemo(t)
	if len(b.Buffers) != 3 {
		t.Fatalf("buffers = %d, want 3", len(b.Buffers))
	}
	globals, _ := b.Buffer("Globals")
	if f, _ := globals.Field("tint"); f.Offset != 4 {
		t.Errorf("tint offset = %d, want 4 (planned)", f.Offset)
	}
	particles, _ := b.Buffer("Particles")
	if particles.Len() != 4 || particles.Stride() != 8 {
		t.Errorf("particles len/stride = %d/%d, want 4/8", particles.Len(), particles.Stride())
	}
	if m, ok := particles.Named("hero"); !ok || m.Index() != 0 {
		t.Errorf("hero = %v, %v", m, ok)
	}
	letters, _ := b.Buffer("Letters")
	if !letters.Meta("lettersUsed").Valid() {
		t.Error("lettersUsed metadata missing")
	}
}

func TestBuildEvents(t *testing.T) {
	b := buildDemo(t)
	if len(b.Events) != 4 {
		t.Fatalf("events = %d, want 4", len(b.Events))
	}
	particles, _ := b.Buffer("Particles")

	hero := b.Events[0]
	if hero.Launch.Resolve(0) != 1 || hero.Expire == nil || hero.Expire.Resolve(1) != 3 {
		t.Errorf("hero launch/expire = %v/%v", hero.Launch, hero.Expire)
	}
	if len(hero.Receivers) != 1 || hero.Receivers[0] != events.Receiver(particles.Member(0)) {
		t.Errorf("hero receivers = %v", hero.Receivers)
	}

	if got := b.Events[1].Launch.Resolve(0); got != 4 {
		t.Errorf("bar 2 event at %v, want 4", got)
	}

	phrase := b.Events[2]
	if phrase.Payload.Kind != events.KindPhrase || phrase.Payload.Text != "ABC" {
		t.Errorf("phrase payload = %+v", phrase.Payload)
	}
	if got := phrase.Launch.Resolve(3); got != 3.5 {
		t.Errorf("relative launch = %v, want 3.5", got)
	}

	off := b.Events[3]
	if off.Payload.Kind != events.KindDeactivate || len(off.Receivers) != 4 {
		t.Errorf("deactivate = %v with %d receivers", off.Payload.Kind, len(off.Receivers))
	}
}

func TestBuildPhrases(t *testing.T) {
	b := buildDemo(t)
	if b.Phrases == nil {
		t.Fatal("phrase writer not built")
	}
	b.Phrases.ReplacePhrase("AB C")
	if got := b.Phrases.LettersUsed(); got != 3 {
		t.Errorf("LettersUsed = %d, want 3", got)
	}
	letters, _ := b.Buffer("Letters")
	if got := letters.Meta("lettersUsed").Get(); got != 3 {
		t.Errorf("lettersUsed = %d, want 3", got)
	}
}

func TestBuildKeepsGoodParts(t *testing.T) {
	s := &Scene{
		Blocks: []Block{
			{Name: "A", Fields: []FieldSpec{{Name: "x", Size: 1}}, Shader: "missing.wgsl"},
		},
		Params: []Param{{Name: "p", Bind: "A.nope"}},
		Events: []EventSpec{
			{To: []string{"A:ghost"}},
			{To: []string{"A"}, Fields: map[string]Values{"x": {1}}},
		},
	}
	b, err := s.Build(BuildOptions{Dir: t.TempDir()})
	if err == nil {
		t.Fatal("expected errors")
	}
	if !errors.Is(err, ErrUnknownMember) || !errors.Is(err, packer.ErrUnknownField) {
		t.Errorf("err = %v", err)
	}
	if _, ok := b.Buffer("A"); !ok {
		t.Error("buffer A dropped despite shader error")
	}
	if len(b.Events) != 1 {
		t.Errorf("events = %d, want 1", len(b.Events))
	}
	if got := b.Automator.Evaluate("p", 0); got != 0 {
		t.Errorf("p = %v", got)
	}
}

func TestBuildDeferredWithSink(t *testing.T) {
	uploads := 0
	b, err := loadDemo(t).Build(BuildOptions{
		Dir:      "testdata",
		Deferred: true,
		Sink: func(block string) packer.Sink {
			if block != "Globals" {
				return nil
			}
			return packer.SinkFunc(func(packer.Region, []byte) { uploads++ })
		},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	b.Automator.Update(1)
	if uploads != 0 {
		t.Fatalf("deferred buffer uploaded %d times before Flush", uploads)
	}
	globals, _ := b.Buffer("Globals")
	if n := globals.Flush(); n != 1 || uploads != 1 {
		t.Errorf("Flush = %d, uploads = %d, want 1/1", n, uploads)
	}
}

func TestPlaceFieldsSequential(t *testing.T) {
	off := 5
	got, err := placeFields([]FieldSpec{{Name: "a", Size: 2}, {Name: "b", Size: 1, Offset: &off}, {Name: "c", Size: 1}}, false)
	if err != nil {
		t.Fatal(err)
	}
	want := []int{0, 5, 6}
	for i, f := range got {
		if f.Offset != want[i] {
			t.Errorf("%s offset = %d, want %d", f.Name, f.Offset, want[i])
		}
	}
}

func TestClockOptions(t *testing.T) {
	opts := loadDemo(t).ClockOptions()
	if opts.RangeEnd != 16 || opts.Loop == nil || opts.Loop.End != 8 {
		t.Errorf("ClockOptions = %+v", opts)
	}
}

func TestWatchReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scene.yaml")
	if err := os.WriteFile(path, []byte("bpm: 120\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	got := make(chan *Scene, 8)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, func(s *Scene, err error) {
			if err == nil {
				got <- s
			}
		})
	}()

	wait := func(bpm float64) {
		t.Helper()
		deadline := time.After(5 * time.Second)
		for {
			select {
			case s := <-got:
				if s.BPM == bpm {
					return
				}
			case <-deadline:
				t.Fatalf("no scene with bpm %v", bpm)
			}
		}
	}
	wait(120)

	if err := os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("bpm: 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("bpm: 140\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	wait(140)

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Watch = %v", err)
	}
}

func TestWatchMissingDir(t *testing.T) {
	err := Watch(context.Background(), filepath.Join(t.TempDir(), "nope", "scene.yaml"), func(*Scene, error) {})
	if err == nil {
		t.Fatal("expected error for missing directory")
	}
}
