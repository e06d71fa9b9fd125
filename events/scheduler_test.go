// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package events

import (
	"testing"

	"github.com/google/uuid"

	"github.com/gogpu/stage/packer"
	"github.com/gogpu/stage/std140"
)

type call struct {
	fields packer.Fields
	reset  bool
}

// recorder is a Receiver that records every write.
type recorder struct {
	name  string
	calls []call
}

func (p *recorder) UpdateFields(f packer.Fields, reset bool) {
	p.calls = append(p.calls, call{fields: f, reset: reset})
}

func (p *recorder) last(t *testing.T) call {
	t.Helper()
	if len(p.calls) == 0 {
		t.Fatalf("%s received nothing", p.name)
	}
	return p.calls[len(p.calls)-1]
}

type phrases struct{ texts []string }

func (p *phrases) ReplacePhrase(text string) { p.texts = append(p.texts, text) }

func fieldsEvent(r Receiver, typ float32) *Event {
	return &Event{
		Receivers: []Receiver{r},
		Payload:   Payload{Kind: KindFields, Fields: packer.Fields{"type": {typ}}},
	}
}

func TestImmediateDispatchesOnNextManage(t *testing.T) {
	s := New(Options{})
	p := &recorder{name: "p"}
	s.Manage(100)

	s.Launch(fieldsEvent(p, 1))
	if len(p.calls) != 0 {
		t.Fatal("dispatched before Manage")
	}
	s.Manage(100.01)
	c := p.last(t)
	if c.fields["type"][0] != 1 || !c.reset {
		t.Errorf("call = %+v, want type 1 with reset", c)
	}
	if got := c.fields[TimeStartField]; len(got) != 1 || got[0] != float32(100.01) {
		t.Errorf("timeStart = %v, want [100.01]", got)
	}
	s.Manage(101)
	if len(p.calls) != 1 {
		t.Errorf("immediate event dispatched %d times", len(p.calls))
	}
}

func TestScheduledWaitsForTime(t *testing.T) {
	s := New(Options{})
	p := &recorder{name: "p"}
	ev := fieldsEvent(p, 2)
	ev.Launch = At(5)
	s.Launch(ev)

	s.Manage(4)
	if len(p.calls) != 0 {
		t.Fatal("dispatched at t=4")
	}
	s.Manage(5)
	if len(p.calls) != 1 {
		t.Fatalf("calls at t=5 = %d, want 1", len(p.calls))
	}
	if s.Pending() != 0 {
		t.Errorf("Pending = %d, want 0", s.Pending())
	}
}

func TestLaunchResolvesSchedules(t *testing.T) {
	s := New(Options{})
	s.Manage(10)
	tests := []struct {
		name string
		sch  *Schedule
		want float64
	}{
		{"at", At(3), 3},
		{"in", In(2), 12},
		{"in after", InAfter(2, 20), 22},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := fieldsEvent(&recorder{}, 1)
			ev.Launch = tt.sch
			s.Launch(ev)
			if ev.TimeSec != tt.want {
				t.Errorf("TimeSec = %v, want %v", ev.TimeSec, tt.want)
			}
		})
	}
}

func TestOrderingIsStable(t *testing.T) {
	var order []float32
	s := New(Options{})
	rec := &orderRecorder{out: &order}
	for i, at := range []float64{3, 1, 2, 1, 3} {
		ev := fieldsEvent(rec, float32(i))
		ev.Launch = At(at)
		s.Launch(ev)
	}
	s.Manage(10)
	want := []float32{1, 3, 2, 0, 4}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

type orderRecorder struct{ out *[]float32 }

func (o *orderRecorder) UpdateFields(f packer.Fields, _ bool) { *o.out = append(*o.out, f["type"][0]) }

func TestExpiryRelaunches(t *testing.T) {
	var trace []Dispatch
	s := New(Options{OnDispatch: func(d Dispatch) { trace = append(trace, d) }})
	p := &recorder{name: "p"}
	ev := fieldsEvent(p, 3)
	ev.Payload.Fields["color"] = []float32{1, 0, 0, 1}
	ev.Launch = At(5)
	ev.Expire = In(2)
	id := s.Launch(ev)

	s.Manage(5)
	if s.Pending() != 1 {
		t.Fatalf("Pending after dispatch = %d, want the expiry", s.Pending())
	}
	s.Manage(6.9)
	if len(p.calls) != 1 {
		t.Fatal("expiry dispatched early")
	}
	s.Manage(7)
	if len(trace) != 2 {
		t.Fatalf("dispatches = %d, want 2", len(trace))
	}
	exp := trace[1]
	if exp.Due != 7 || exp.Parent != id || exp.ID == id {
		t.Errorf("expiry dispatch = %+v, want due 7 with parent %v", exp, id)
	}
	c := p.last(t)
	if typ, ok := c.fields["type"]; !ok || typ != nil {
		t.Errorf("expiry type = %v, want nil (cleared)", typ)
	}
	if c.fields["color"][0] != 1 {
		t.Errorf("expiry lost other fields: %v", c.fields)
	}
	// The original payload is untouched.
	if ev.Payload.Fields["type"][0] != 3 {
		t.Error("expiry mutated the original payload")
	}
}

func TestClearDeactivatesKnownReceivers(t *testing.T) {
	s := New(Options{})
	a, b, c := &recorder{name: "a"}, &recorder{name: "b"}, &recorder{name: "c"}
	s.Register(c)

	s.Launch(fieldsEvent(a, 1))
	late := fieldsEvent(b, 1)
	late.Launch = At(50)
	s.Launch(late)

	s.Clear()
	s.Manage(1)

	if s.Pending() != 0 {
		t.Errorf("Pending = %d after Clear", s.Pending())
	}
	for _, p := range []*recorder{a, b, c} {
		last := p.last(t)
		if last.fields["type"][0] != DeactivateValue || last.reset {
			t.Errorf("%s last call = %+v, want deactivate patch", p.name, last)
		}
	}
	// a got its immediate event first.
	if len(a.calls) != 2 {
		t.Errorf("a calls = %d, want event + deactivate", len(a.calls))
	}

	s.Manage(60)
	if len(b.calls) != 1 {
		t.Error("cleared event still dispatched")
	}
}

func TestDeactivateEventWritesMarker(t *testing.T) {
	s := New(Options{})
	p := &recorder{name: "p"}
	s.Launch(&Event{Receivers: []Receiver{p}, Payload: Payload{Kind: KindDeactivate}, Patch: true})
	s.Manage(2)

	last := p.last(t)
	if got := last.fields[TypeField]; len(got) != 1 || got[0] != DeactivateValue {
		t.Errorf("type = %v, want [%d]", got, DeactivateValue)
	}
	if got := last.fields[TimeStartField]; len(got) != 1 || got[0] != 2 {
		t.Errorf("timeStart = %v, want [2]", got)
	}
}

func TestPhraseRouting(t *testing.T) {
	ph := &phrases{}
	s := New(Options{Phrases: ph})
	p := &recorder{name: "p"}

	s.Launch(&Event{Payload: Payload{Kind: KindPhrase, Text: "hello"}})
	s.Launch(&Event{
		Receivers: []Receiver{p},
		Payload:   Payload{Kind: KindPhrase, Text: "world", Fields: packer.Fields{"type": {1}}},
	})
	s.Manage(0.5)

	if len(ph.texts) != 2 || ph.texts[0] != "hello" || ph.texts[1] != "world" {
		t.Errorf("phrases = %v", ph.texts)
	}
	if len(p.calls) != 1 {
		t.Errorf("receiver calls = %d, want 1", len(p.calls))
	}

	// No handler: logged and skipped.
	s2 := New(Options{})
	s2.Launch(&Event{Payload: Payload{Kind: KindPhrase, Text: "lost"}})
	s2.Manage(1)
}

func TestPatchKeepsFields(t *testing.T) {
	b, err := packer.New(packer.Options{
		Name: "Things",
		Fields: []std140.Field{
			{Name: "type", Offset: 0, Size: 1},
			{Name: "timeStart", Offset: 1, Size: 1},
			{Name: "pos", Offset: 4, Size: 2},
		},
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	m := b.Member(0)
	s := New(Options{})

	s.Launch(&Event{Receivers: []Receiver{m}, Payload: Payload{Fields: packer.Fields{"pos": {3, 4}}}})
	s.Manage(1)
	s.Launch(&Event{Receivers: []Receiver{m}, Payload: Payload{Fields: packer.Fields{"type": {2}}}, Patch: true})
	s.Manage(2)
	if got := m.Get("pos"); got[0] != 3 || got[1] != 4 {
		t.Errorf("patch lost pos: %v", got)
	}
	if got := m.Get("timeStart"); got[0] != 2 {
		t.Errorf("timeStart = %v, want 2", got)
	}

	s.Launch(&Event{Receivers: []Receiver{m}, Payload: Payload{Fields: packer.Fields{"type": {5}}}})
	s.Manage(3)
	if got := m.Get("pos"); got[0] != 0 || got[1] != 0 {
		t.Errorf("reset kept pos: %v", got)
	}
}

func TestTimeFieldSkippedWhenAbsent(t *testing.T) {
	b, _ := packer.New(packer.Options{
		Name:   "NoTime",
		Fields: []std140.Field{{Name: "type", Offset: 0, Size: 1}},
	}, nil)
	m := b.Member(0)
	s := New(Options{})
	s.Launch(&Event{Receivers: []Receiver{m}, Payload: Payload{Fields: packer.Fields{"type": {1}, "bogus": {1}}}})
	s.Manage(1)
	if got := m.Get("type"); got[0] != 1 {
		t.Errorf("type = %v, want 1", got)
	}
}

func TestLaunchAssignsID(t *testing.T) {
	s := New(Options{})
	ev := fieldsEvent(&recorder{}, 1)
	id := s.Launch(ev)
	if id == uuid.Nil || ev.ID != id {
		t.Errorf("Launch id = %v, event id = %v", id, ev.ID)
	}
	fixed := uuid.New()
	ev2 := fieldsEvent(&recorder{}, 1)
	ev2.ID = fixed
	if got := s.Launch(ev2); got != fixed {
		t.Errorf("Launch replaced an explicit id")
	}
}

func TestKindString(t *testing.T) {
	for k, want := range map[Kind]string{
		KindFields:     "Fields",
		KindPhrase:     "Phrase",
		KindDeactivate: "Deactivate",
		Kind(7):        "Unknown(7)",
	} {
		if got := k.String(); got != want {
			t.Errorf("Kind(%d) = %q, want %q", int(k), got, want)
		}
	}
}

func BenchmarkManage(b *testing.B) {
	s := New(Options{})
	r := &orderRecorder{out: new([]float32)}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ev := fieldsEvent(r, 1)
		ev.Launch = In(float64(i%8) * 0.01)
		s.Launch(ev)
		s.Manage(float64(i) * 0.01)
		if i%1024 == 0 {
			*r.out = (*r.out)[:0]
		}
	}
}

func TestLaunchDropsNilReceivers(t *testing.T) {
	s := New(Options{})
	r := &recorder{name: "r"}
	ev := &Event{
		Receivers: []Receiver{nil, r, nil},
		Payload:   Payload{Kind: KindFields, Fields: packer.Fields{"type": {3}}},
	}
	s.Launch(ev)
	if len(ev.Receivers) != 1 {
		t.Fatalf("receivers = %d, want 1", len(ev.Receivers))
	}
	s.Manage(1)
	if c := r.last(t); c.fields["type"][0] != 3 {
		t.Errorf("call = %+v, want type 3", c)
	}
	s.Clear()
	s.Manage(2)
}
