// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package events

import (
	"fmt"
	"maps"

	"github.com/google/uuid"

	"github.com/gogpu/stage/packer"
)

// Receiver accepts field writes from dispatched events. *packer.Member is
// the usual receiver. Receivers are compared by identity and must be of a
// comparable type.
type Receiver interface {
	UpdateFields(fields packer.Fields, reset bool)
}

// Validator is implemented by receivers that can check a payload against
// their layout.
type Validator interface {
	Validate(fields packer.Fields) error
}

// fieldChecker is implemented by receivers that can tell whether a field
// exists, so the scheduler only injects the start time where it fits.
type fieldChecker interface {
	Has(name string) bool
}

// PhraseHandler lays out phrase payloads.
type PhraseHandler interface {
	ReplacePhrase(text string)
}

// Kind tags the payload variant.
type Kind int

const (
	// KindFields writes Fields into every receiver.
	KindFields Kind = iota

	// KindPhrase sends Text to the phrase handler, then writes Fields into
	// the receivers, if any.
	KindPhrase

	// KindDeactivate writes the deactivation marker into every receiver.
	KindDeactivate
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindFields:
		return "Fields"
	case KindPhrase:
		return "Phrase"
	case KindDeactivate:
		return "Deactivate"
	default:
		return fmt.Sprintf("Unknown(%d)", int(k))
	}
}

// Payload is what an event carries.
type Payload struct {
	Kind   Kind
	Fields packer.Fields
	Text   string
}

// Schedule places an event in time, either absolutely (At), relative to
// the scheduler's current time (In), or relative to an absolute base
// (InAfter).
type Schedule struct {
	at, in       float64
	hasAt, hasIn bool
}

// At schedules at absolute time t.
func At(t float64) *Schedule { return &Schedule{at: t, hasAt: true} }

// In schedules d seconds after the scheduler's current time.
func In(d float64) *Schedule { return &Schedule{in: d, hasIn: true} }

// InAfter schedules d seconds after absolute time base.
func InAfter(d, base float64) *Schedule {
	return &Schedule{at: base, in: d, hasAt: true, hasIn: true}
}

// Resolve returns the absolute time of the schedule given the current time.
func (s *Schedule) Resolve(current float64) float64 {
	if s.hasIn {
		base := current
		if s.hasAt {
			base = s.at
		}
		return base + s.in
	}
	return s.at
}

// String formats the schedule as it would appear in a scene file.
func (s *Schedule) String() string {
	switch {
	case s.hasAt && s.hasIn:
		return fmt.Sprintf("in %gs after %gs", s.in, s.at)
	case s.hasIn:
		return fmt.Sprintf("in %gs", s.in)
	default:
		return fmt.Sprintf("at %gs", s.at)
	}
}

// Event is a scheduled write into one or more receivers.
type Event struct {
	// ID identifies the event. Assigned by Launch when zero.
	ID uuid.UUID

	// Parent is the ID of the event whose expiry produced this one.
	Parent uuid.UUID

	Receivers []Receiver
	Payload   Payload

	// Launch places the event. Nil keeps TimeSec as given.
	Launch *Schedule

	// Expire relaunches a copy with the type field cleared, timed relative
	// to the dispatch.
	Expire *Schedule

	// Patch keeps the receivers' other fields. By default each receiver is
	// reset before the payload is written.
	Patch bool

	// TimeSec is the resolved dispatch time. Zero or less dispatches at the
	// next Manage.
	TimeSec float64
}

// expiry builds the follow-up event launched when ev expires.
func (ev *Event) expiry(now float64) *Event {
	fields := maps.Clone(ev.Payload.Fields)
	if fields == nil {
		fields = packer.Fields{}
	}
	fields[TypeField] = nil
	return &Event{
		ID:        uuid.New(),
		Parent:    ev.ID,
		Receivers: ev.Receivers,
		Payload:   Payload{Kind: KindFields, Fields: fields},
		Patch:     ev.Patch,
		TimeSec:   ev.Expire.Resolve(now),
	}
}
