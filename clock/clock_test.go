// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package clock

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"
)

const ms = time.Millisecond

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

// fakeAudio is an AudioSource controlled by the test.
type fakeAudio struct {
	ready    chan struct{}
	pos      float64
	playing  bool
	duration float64
	seeks    []float64
}

func (f *fakeAudio) Ready(ctx context.Context) error {
	select {
	case <-f.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeAudio) Position() float64 { return f.pos }
func (f *fakeAudio) Playing() bool     { return f.playing }
func (f *fakeAudio) Duration() float64 { return f.duration }

func (f *fakeAudio) Seek(s float64) {
	f.seeks = append(f.seeks, s)
	f.pos = s
}

func readyAudio() *fakeAudio {
	f := &fakeAudio{ready: make(chan struct{}), playing: true, duration: 30}
	close(f.ready)
	return f
}

func TestAdvanceByTimestamps(t *testing.T) {
	c := New(Options{})
	if c.Frame() != -1 {
		t.Errorf("Frame = %d before first Advance", c.Frame())
	}
	// The first frame only anchors the timer.
	if got := c.Advance(1000 * ms); got != 0 {
		t.Errorf("first Advance = %v, want 0", got)
	}
	c.Advance(1016 * ms)
	got := c.Advance(1050 * ms)
	if !approx(got, 0.05) {
		t.Errorf("time = %v, want 0.05", got)
	}
	if !approx(c.DT(), 0.034) {
		t.Errorf("DT = %v, want 0.034", c.DT())
	}
	if c.Frame() != 2 {
		t.Errorf("Frame = %d, want 2", c.Frame())
	}
}

func TestPausedClockHolds(t *testing.T) {
	c := New(Options{Paused: true})
	c.Advance(0)
	c.Advance(500 * ms)
	if c.Time() != 0 || c.DT() != 0 {
		t.Errorf("paused clock moved to %v", c.Time())
	}
	c.SetRunning(true)
	c.Advance(600 * ms)
	if !approx(c.Time(), 0.1) {
		t.Errorf("time after resume = %v, want 0.1 (pause gap skipped)", c.Time())
	}
}

func TestLoopJumpsBack(t *testing.T) {
	c := New(Options{Loop: &Loop{Start: 1, End: 2}})
	c.Advance(0)
	c.Advance(1500 * ms)
	if !approx(c.Time(), 1.5) {
		t.Fatalf("time = %v, want 1.5", c.Time())
	}
	c.Advance(2100 * ms)
	if c.Time() != 1 {
		t.Errorf("time after loop end = %v, want loop start 1", c.Time())
	}

	c.ClearLoop()
	c.Advance(3200 * ms)
	if !approx(c.Time(), 2.1) {
		t.Errorf("time without loop = %v, want 2.1", c.Time())
	}
}

func TestLoopUsesRangeEnd(t *testing.T) {
	c := New(Options{RangeEnd: 1, Loop: &Loop{}})
	c.Advance(0)
	c.Advance(1200 * ms)
	if c.Time() != 0 {
		t.Errorf("time = %v, want 0 after passing range end", c.Time())
	}
}

func TestStartWithAudio(t *testing.T) {
	a := readyAudio()
	c := New(Options{Audio: a, Loop: &Loop{}})
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !c.Clocked() {
		t.Fatal("clock not driven by audio")
	}

	c.Advance(0)
	a.pos = 2.5
	if got := c.Advance(16 * ms); got != 2.5 {
		t.Errorf("time = %v, want audio position 2.5", got)
	}
	a.pos = 31
	c.Advance(32 * ms)
	if c.Time() != 31 {
		t.Errorf("clocked time looped to %v; audio handles its own looping", c.Time())
	}

	a.playing = false
	c.Advance(48 * ms)
	if c.Running() {
		t.Error("clock still running after audio stopped")
	}

	c.Jump(4)
	if last := a.seeks[len(a.seeks)-1]; last != 4 {
		t.Errorf("Jump seeked to %v, want 4", last)
	}
}

func TestStartFallsBackOnTimeout(t *testing.T) {
	a := &fakeAudio{ready: make(chan struct{})}
	c := New(Options{Audio: a, ReadyTimeout: 10 * ms})
	err := c.Start(context.Background())
	if !errors.Is(err, ErrAudioFallback) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Start = %v, want fallback after deadline", err)
	}
	if c.Clocked() {
		t.Error("clock uses audio after timeout")
	}
	c.Advance(0)
	if got := c.Advance(250 * ms); !approx(got, 0.25) {
		t.Errorf("fallback time = %v, want 0.25", got)
	}
}

func TestStartWithoutAudio(t *testing.T) {
	if err := New(Options{}).Start(context.Background()); err != nil {
		t.Errorf("Start without audio = %v", err)
	}
}

func TestReset(t *testing.T) {
	a := readyAudio()
	c := New(Options{Audio: a})
	c.Advance(0)
	c.SetRunning(false)
	c.Reset()
	if c.Time() != 0 || c.Frame() != -1 || !c.Running() {
		t.Errorf("after Reset: time %v frame %d running %v", c.Time(), c.Frame(), c.Running())
	}
	if len(a.seeks) == 0 || a.seeks[len(a.seeks)-1] != 0 {
		t.Error("Reset did not rewind the audio")
	}
}

func TestFPS(t *testing.T) {
	c := New(Options{FPSWindow: 4})
	if c.FPS() != 0 {
		t.Errorf("FPS before frames = %v", c.FPS())
	}
	for i := 0; i <= 10; i++ {
		c.Advance(time.Duration(i) * 20 * ms)
	}
	if got := c.FPS(); math.Abs(got-50) > 1e-6 {
		t.Errorf("FPS = %v, want 50", got)
	}
}
