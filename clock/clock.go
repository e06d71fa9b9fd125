// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package clock advances scene time from frame timestamps or from an audio
// track.
//
// Without audio the clock integrates the gaps between frame timestamps and
// can loop over a range. With audio the playback position is the time
// source; if the audio does not become ready within the timeout the clock
// falls back to frame timestamps.
package clock

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrAudioFallback is returned by Start when the audio source could not be
// used and the clock runs on frame timestamps instead.
var ErrAudioFallback = errors.New("clock: audio not ready, using frame timer")

// DefaultReadyTimeout bounds how long Start waits for audio.
const DefaultReadyTimeout = 5 * time.Second

// AudioSource is a playable track whose position drives the clock.
type AudioSource interface {
	// Ready blocks until the track can play or ctx is done.
	Ready(ctx context.Context) error

	// Position returns the playback position in seconds.
	Position() float64

	// Playing reports whether the track is advancing.
	Playing() bool

	// Duration returns the track length in seconds, or 0 when unknown.
	Duration() float64

	// Seek moves the playback position.
	Seek(seconds float64)
}

// Loop is a time range the unclocked timer repeats.
type Loop struct {
	Start float64

	// End of the loop. Zero uses the clock's range end.
	End float64
}

// Options configures a Clock.
type Options struct {
	// Audio drives the clock once Start succeeds. Optional.
	Audio AudioSource

	// ReadyTimeout bounds Start. Default: DefaultReadyTimeout.
	ReadyTimeout time.Duration

	// RangeEnd is the scene length in seconds, used as the loop end when
	// the loop has none. Zero means open ended.
	RangeEnd float64

	// Loop, when set, activates looping.
	Loop *Loop

	// Paused starts the clock paused.
	Paused bool

	// FPSWindow is the number of samples averaged by FPS. Default: 100.
	FPSWindow int
}

// Clock tracks scene time. It is driven from the frame loop and is not
// safe for concurrent use.
type Clock struct {
	audio    AudioSource
	clocked  bool
	timeout  time.Duration
	rangeEnd float64

	time    float64
	dt      float64
	frame   int
	prev    time.Duration
	hasPrev bool
	running bool

	loop       Loop
	loopActive bool

	fps *fpsMeter
}

// New creates a clock at time zero.
func New(opts Options) *Clock {
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = DefaultReadyTimeout
	}
	if opts.FPSWindow <= 0 {
		opts.FPSWindow = 100
	}
	c := &Clock{
		audio:    opts.Audio,
		timeout:  opts.ReadyTimeout,
		rangeEnd: opts.RangeEnd,
		frame:    -1,
		running:  !opts.Paused,
		fps:      newFPSMeter(opts.FPSWindow),
	}
	if opts.Loop != nil {
		c.loop = *opts.Loop
		c.loopActive = true
	}
	return c
}

// Start waits for the audio source, if any. On success the audio position
// drives the clock and an open loop end adopts the track duration. On
// failure or timeout the clock keeps the frame timer and ErrAudioFallback
// is returned; the clock is usable either way.
func (c *Clock) Start(ctx context.Context) error {
	if c.audio == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.audio.Ready(ctx); err != nil {
		c.clocked = false
		logger.Load().Warn("clock: audio unavailable, falling back to frame timer", "err", err)
		return fmt.Errorf("%w: %w", ErrAudioFallback, err)
	}
	c.clocked = true
	if d := c.audio.Duration(); d > 0 && c.loop.End == 0 {
		c.loop.End = d
	}
	if c.running {
		c.audio.Seek(c.time)
	}
	logger.Load().Info("clock: driven by audio", "duration", c.audio.Duration())
	return nil
}

// Clocked reports whether the audio position drives the clock.
func (c *Clock) Clocked() bool { return c.clocked }

// Advance moves the clock to the frame at timestamp, measured from any
// fixed origin, and returns the scene time.
func (c *Clock) Advance(timestamp time.Duration) float64 {
	c.frame++
	if !c.hasPrev {
		c.prev = timestamp
		c.hasPrev = true
	}
	if !c.running {
		c.dt = 0
		c.prev = timestamp
		return c.time
	}

	if c.clocked {
		c.dt = c.audio.Position() - c.time
		c.running = c.audio.Playing()
	} else {
		c.dt = (timestamp - c.prev).Seconds()
	}
	c.time += c.dt
	c.fps.sample(c.time, c.frame)

	if c.loopActive && !c.clocked {
		end := c.loop.End
		if end == 0 {
			end = c.rangeEnd
		}
		if end > 0 && c.time >= end {
			c.Jump(c.loop.Start)
		}
	}
	c.prev = timestamp
	return c.time
}

// Jump sets the scene time, seeking the audio when clocked.
func (c *Clock) Jump(to float64) {
	c.time = to
	if c.clocked {
		c.audio.Seek(to)
	}
}

// Reset returns to time zero and resumes.
func (c *Clock) Reset() {
	c.hasPrev = false
	c.running = true
	c.time = 0
	c.dt = 0
	c.frame = -1
	c.fps.reset()
	if c.audio != nil {
		c.audio.Seek(0)
	}
}

// SetRunning pauses or resumes the clock.
func (c *Clock) SetRunning(running bool) { c.running = running }

// Running reports whether the clock advances.
func (c *Clock) Running() bool { return c.running }

// SetLoop activates looping over [start, end).
func (c *Clock) SetLoop(l Loop) {
	c.loop = l
	c.loopActive = true
}

// ClearLoop stops looping.
func (c *Clock) ClearLoop() { c.loopActive = false }

// Time returns the scene time in seconds.
func (c *Clock) Time() float64 { return c.time }

// DT returns the step of the last Advance in seconds.
func (c *Clock) DT() float64 { return c.dt }

// Frame returns the index of the last frame, -1 before the first.
func (c *Clock) Frame() int { return c.frame }

// FPS returns the averaged frame rate, 0 until two frames were timed.
func (c *Clock) FPS() float64 { return c.fps.value() }

// fpsMeter averages frames per scene second over a ring of samples.
type fpsMeter struct {
	samples   []float64
	index     int
	taken     int
	sum       float64
	lastTime  float64
	lastFrame int
	hasLast   bool
}

func newFPSMeter(n int) *fpsMeter { return &fpsMeter{samples: make([]float64, n)} }

func (m *fpsMeter) sample(t float64, frame int) {
	if m.hasLast {
		if dt := t - m.lastTime; dt > 0 {
			cur := float64(frame-m.lastFrame) / dt
			m.sum += cur - m.samples[m.index]
			m.samples[m.index] = cur
			m.taken = min(m.taken+1, len(m.samples))
			m.index = (m.index + 1) % len(m.samples)
		}
	}
	m.lastTime, m.lastFrame, m.hasLast = t, frame, true
}

func (m *fpsMeter) value() float64 {
	if m.taken == 0 {
		return 0
	}
	return m.sum / float64(m.taken)
}

func (m *fpsMeter) reset() {
	clear(m.samples)
	m.index, m.taken, m.sum, m.hasLast = 0, 0, 0, false
}
