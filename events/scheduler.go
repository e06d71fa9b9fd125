// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package events fires scripted writes into packer members against the scene
// clock.
//
// Events without a launch time go to the immediate queue and dispatch at the
// next [Scheduler.Manage]. Timed events wait in a queue ordered by time and
// dispatch once the clock reaches them; events due at the same time keep
// their scheduling order.
package events

import (
	"maps"
	"slices"

	"github.com/google/uuid"

	"github.com/gogpu/stage/internal/ordered"
	"github.com/gogpu/stage/packer"
)

// Default field names.
const (
	// TypeField is cleared on expiry and set to DeactivateValue by Clear.
	TypeField = "type"

	// TimeStartField receives the dispatch time.
	TimeStartField = "timeStart"
)

// DeactivateValue is the type written into every receiver after Clear.
const DeactivateValue = -1

// Dispatch describes one delivered event.
type Dispatch struct {
	ID     uuid.UUID
	Parent uuid.UUID
	Kind   Kind

	// Due is the event's resolved time, Now the Manage time it ran at.
	Due float64
	Now float64

	Receivers int
}

// Options configures a Scheduler.
type Options struct {
	// Phrases lays out KindPhrase payloads. Optional.
	Phrases PhraseHandler

	// TimeField receives the dispatch time. Default: TimeStartField.
	TimeField string

	// OnDispatch is called after each dispatch. Optional.
	OnDispatch func(Dispatch)
}

// Scheduler dispatches events. It is not safe for concurrent use; call it
// from the frame loop.
type Scheduler struct {
	opts      Options
	immediate []*Event
	scheduled *ordered.Sequence[*Event]
	known     []Receiver
	now       float64
	clearReq  bool
}

// New creates a Scheduler.
func New(opts Options) *Scheduler {
	if opts.TimeField == "" {
		opts.TimeField = TimeStartField
	}
	return &Scheduler{
		opts:      opts,
		scheduled: ordered.New(func(ev *Event) float64 { return ev.TimeSec }),
	}
}

// SetPhraseHandler replaces the phrase handler.
func (s *Scheduler) SetPhraseHandler(h PhraseHandler) { s.opts.Phrases = h }

// Now returns the time of the last Manage.
func (s *Scheduler) Now() float64 { return s.now }

// Pending returns the number of queued events.
func (s *Scheduler) Pending() int { return len(s.immediate) + s.scheduled.Len() }

// Register adds receivers to the set that Clear deactivates. Receivers of
// launched events are registered automatically.
func (s *Scheduler) Register(rs ...Receiver) {
	for _, r := range rs {
		if r != nil && !slices.Contains(s.known, r) {
			s.known = append(s.known, r)
		}
	}
}

// Launch resolves the event time and queues it. The payload is checked once
// against every receiver that can validate it; problems are logged and the
// event is still queued. Nil receivers are dropped. Launch returns the
// event ID.
func (s *Scheduler) Launch(ev *Event) uuid.UUID {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if slices.Contains(ev.Receivers, nil) {
		logger.Load().Warn("events: nil receivers dropped", "event", ev.ID)
		ev.Receivers = slices.DeleteFunc(slices.Clone(ev.Receivers), func(r Receiver) bool { return r == nil })
	}
	s.Register(ev.Receivers...)
	for _, r := range ev.Receivers {
		v, ok := r.(Validator)
		if !ok {
			continue
		}
		if err := v.Validate(ev.Payload.Fields); err != nil {
			logger.Load().Warn("events: payload does not match receiver layout",
				"event", ev.ID, "err", err)
		}
	}
	if ev.Launch != nil {
		ev.TimeSec = ev.Launch.Resolve(s.now)
	}
	s.enqueue(ev)
	return ev.ID
}

func (s *Scheduler) enqueue(ev *Event) {
	if ev.TimeSec <= 0 {
		s.immediate = append(s.immediate, ev)
		return
	}
	s.scheduled.Insert(ev)
}

// Clear requests that the scheduled queue be emptied and every known
// receiver deactivated at the next Manage.
func (s *Scheduler) Clear() { s.clearReq = true }

// Manage advances the scheduler to now. Immediate events dispatch first in
// launch order, then scheduled events due at or before now in time order.
// A pending Clear runs last.
func (s *Scheduler) Manage(now float64) {
	s.now = now

	batch := s.immediate
	s.immediate = nil
	for _, ev := range batch {
		s.dispatch(ev, now)
	}

	for {
		head, ok := s.scheduled.Front()
		if !ok || head.TimeSec > now {
			break
		}
		s.scheduled.PopFront()
		s.dispatch(head, now)
	}

	if s.clearReq {
		s.clearReq = false
		dropped := s.scheduled.Len()
		s.scheduled.Clear()
		s.dispatch(&Event{
			ID:        uuid.New(),
			Receivers: s.known,
			Payload: Payload{
				Kind:   KindDeactivate,
				Fields: packer.Fields{TypeField: {DeactivateValue}},
			},
			Patch:   true,
			TimeSec: now,
		}, now)
		logger.Load().Debug("events: cleared", "dropped", dropped, "receivers", len(s.known))
	}
}

func (s *Scheduler) dispatch(ev *Event, now float64) {
	switch ev.Payload.Kind {
	case KindFields, KindDeactivate:
		s.deliver(ev, now)
	case KindPhrase:
		if s.opts.Phrases == nil {
			logger.Load().Warn("events: phrase event without a phrase handler", "event", ev.ID)
		} else {
			s.opts.Phrases.ReplacePhrase(ev.Payload.Text)
		}
		if len(ev.Receivers) > 0 {
			s.deliver(ev, now)
		}
	default:
		logger.Load().Warn("events: unknown payload kind", "event", ev.ID, "kind", ev.Payload.Kind)
		return
	}

	logger.Load().Debug("events: dispatched",
		"event", ev.ID, "kind", ev.Payload.Kind, "due", ev.TimeSec, "now", now)
	if s.opts.OnDispatch != nil {
		s.opts.OnDispatch(Dispatch{
			ID:        ev.ID,
			Parent:    ev.Parent,
			Kind:      ev.Payload.Kind,
			Due:       ev.TimeSec,
			Now:       now,
			Receivers: len(ev.Receivers),
		})
	}

	if ev.Expire != nil {
		s.enqueue(ev.expiry(now))
	}
}

func (s *Scheduler) deliver(ev *Event, now float64) {
	base := ev.Payload.Fields
	if ev.Payload.Kind == KindDeactivate {
		base = maps.Clone(base)
		if base == nil {
			base = packer.Fields{}
		}
		base[TypeField] = []float32{DeactivateValue}
	}
	withTime := maps.Clone(base)
	if withTime == nil {
		withTime = packer.Fields{}
	}
	withTime[s.opts.TimeField] = []float32{float32(now)}

	for _, r := range ev.Receivers {
		fields := withTime
		if fc, ok := r.(fieldChecker); ok && !fc.Has(s.opts.TimeField) {
			fields = base
		}
		r.UpdateFields(fields, !ev.Patch)
	}
}
