// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package stage

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/gogpu/stage/automation"
	"github.com/gogpu/stage/clock"
	"github.com/gogpu/stage/events"
	"github.com/gogpu/stage/gpusink"
	"github.com/gogpu/stage/packer"
	"github.com/gogpu/stage/script"
)

// ErrClosed is returned by operations on a closed session.
var ErrClosed = errors.New("stage: session closed")

// Config configures a Session. The zero value is an empty scene with a
// frame timer clock.
type Config struct {
	// Scene is built into the session. Optional.
	Scene *script.Scene

	// Dir resolves relative paths in the scene.
	Dir string

	// Clock overrides the scene's clock settings. RangeEnd and Loop fall
	// back to the scene's when unset.
	Clock clock.Options

	// Immediate makes member writes upload at once instead of at the end
	// of each frame.
	Immediate bool

	// GPU, when set, backs every block with a wgpu HAL buffer or texture
	// matching its mode. It takes precedence over Sink.
	GPU *gpusink.Target

	// Sink returns the upload sink for a block. Sinks with a Close method
	// are closed with the session.
	Sink func(block string) packer.Sink

	// OnDispatch observes every dispatched event.
	OnDispatch func(events.Dispatch)
}

// FrameStats summarises one Frame.
type FrameStats struct {
	Frame      int
	Time       float64
	Dispatched int
	Uploads    int
}

// Session runs a scene: each frame it advances the clock, updates the
// automated parameters, dispatches due events and flushes dirty buffers.
//
// Session is not safe for concurrent use; drive it from the frame loop.
type Session struct {
	cfg       Config
	clock     *clock.Clock
	automator *automation.Automator
	scheduler *events.Scheduler
	buffers   []*packer.Buffer
	byName    map[string]*packer.Buffer
	sinks     []packer.Sink

	dispatched int
	closed     bool
}

// NewSession builds the configured scene. Problems found while building
// are returned joined; the session is usable either way with the broken
// parts left out.
func NewSession(cfg Config) (*Session, error) {
	s := &Session{cfg: cfg}
	opts := cfg.Clock
	if cfg.Scene != nil {
		so := cfg.Scene.ClockOptions()
		if opts.RangeEnd == 0 {
			opts.RangeEnd = so.RangeEnd
		}
		if opts.Loop == nil {
			opts.Loop = so.Loop
		}
	}
	s.clock = clock.New(opts)
	err := s.load(cfg.Scene)
	return s, err
}

// load replaces the automator, scheduler and buffers with those of scene.
func (s *Session) load(scene *script.Scene) error {
	s.closeSinks()
	s.buffers = nil
	s.byName = make(map[string]*packer.Buffer)
	s.scheduler = events.New(events.Options{OnDispatch: s.observe})

	if scene == nil {
		s.automator = automation.New(automation.Options{})
		return nil
	}
	built, err := scene.Build(script.BuildOptions{
		Dir:      s.cfg.Dir,
		Deferred: !s.cfg.Immediate,
		Sink:     s.sink,
	})
	s.automator = built.Automator
	errs := []error{err}
	for _, b := range built.Buffers {
		s.addBuffer(b)
		if s.cfg.GPU == nil {
			continue
		}
		sk, err := gpusink.Attach(*s.cfg.GPU, b)
		if err != nil {
			errs = append(errs, fmt.Errorf("stage: block %q: %w", b.Name(), err))
			continue
		}
		s.sinks = append(s.sinks, sk)
	}
	if built.Phrases != nil {
		s.scheduler.SetPhraseHandler(built.Phrases)
	}
	for _, ev := range built.Events {
		s.scheduler.Launch(ev)
	}
	return errors.Join(errs...)
}

func (s *Session) sink(block string) packer.Sink {
	if s.cfg.Sink == nil || s.cfg.GPU != nil {
		return nil
	}
	sk := s.cfg.Sink(block)
	if sk != nil {
		s.sinks = append(s.sinks, sk)
	}
	return sk
}

func (s *Session) observe(d events.Dispatch) {
	s.dispatched++
	if s.cfg.OnDispatch != nil {
		s.cfg.OnDispatch(d)
	}
}

func (s *Session) addBuffer(b *packer.Buffer) {
	s.buffers = append(s.buffers, b)
	s.byName[b.Name()] = b
	for i := range b.Len() {
		s.scheduler.Register(b.Member(i))
	}
}

// AddBuffer adds a buffer built outside the scene. Its members become
// known to the scheduler and it is flushed every frame.
func (s *Session) AddBuffer(b *packer.Buffer) {
	s.addBuffer(b)
}

// Start waits for the clock's audio source. See clock.Clock.Start.
func (s *Session) Start(ctx context.Context) error {
	if s.closed {
		return ErrClosed
	}
	return s.clock.Start(ctx)
}

// Frame runs one frame at the animation timestamp.
func (s *Session) Frame(timestamp time.Duration) FrameStats {
	if s.closed {
		return FrameStats{Frame: s.clock.Frame(), Time: s.clock.Time()}
	}
	t := s.clock.Advance(timestamp)
	s.automator.Update(t)

	s.dispatched = 0
	s.scheduler.Manage(t)

	uploads := 0
	for _, b := range s.buffers {
		uploads += b.Flush()
	}
	stats := FrameStats{
		Frame:      s.clock.Frame(),
		Time:       t,
		Dispatched: s.dispatched,
		Uploads:    uploads,
	}
	logger.Load().Debug("stage: frame",
		"frame", stats.Frame, "time", t, "dispatched", stats.Dispatched, "uploads", uploads)
	return stats
}

// Launch queues an event. See events.Scheduler.Launch.
func (s *Session) Launch(ev *events.Event) uuid.UUID {
	return s.scheduler.Launch(ev)
}

// Reload replaces the scene and restarts the clock. Sinks of the previous
// scene are closed and new ones requested from Config.Sink.
func (s *Session) Reload(scene *script.Scene) error {
	if s.closed {
		return ErrClosed
	}
	err := s.load(scene)
	s.clock.Reset()
	logger.Load().Info("stage: scene reloaded", "buffers", len(s.buffers))
	return err
}

// Clock returns the session clock.
func (s *Session) Clock() *clock.Clock { return s.clock }

// Automator returns the parameter automator.
func (s *Session) Automator() *automation.Automator { return s.automator }

// Scheduler returns the event scheduler.
func (s *Session) Scheduler() *events.Scheduler { return s.scheduler }

// Buffers returns the session buffers in declaration order.
func (s *Session) Buffers() []*packer.Buffer { return slices.Clone(s.buffers) }

// Buffer returns the buffer of the named block.
func (s *Session) Buffer(name string) (*packer.Buffer, bool) {
	b, ok := s.byName[name]
	return b, ok
}

type closer interface {
	Close()
}

func (s *Session) closeSinks() {
	for _, sk := range s.sinks {
		if c, ok := sk.(closer); ok {
			c.Close()
		}
	}
	s.sinks = nil
}

// Close flushes pending writes and closes the sinks. Close is idempotent.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	for _, b := range s.buffers {
		b.Flush()
	}
	s.closeSinks()
	s.closed = true
	return nil
}
