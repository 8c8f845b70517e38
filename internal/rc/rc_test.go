// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package rc

import (
	"testing"

	"github.com/relabs-tech/cypilot/internal/store"
	"github.com/relabs-tech/cypilot/internal/values"
)

type fixedReceiver struct {
	order int
	ok    bool
}

func (f fixedReceiver) Poll() (int, bool) { return f.order, f.ok }

func newTestStore() *store.Store {
	st := store.New()
	st.Register(values.NewBooleanProperty("ap.enabled", false))
	st.Register(values.NewPlain("ap.heading", 90.0))
	st.Register(values.NewPlain("ap.heading_command", 0.0))
	st.Register(values.NewEnumProperty("ap.mode", "compass", []string{"compass", "gps", "wind", "true wind"}))
	st.Register(values.NewEnumProperty("ap.tack.state", "none", []string{"none", "begin", "waiting", "tacking"}))
	st.Register(values.NewEnumProperty("ap.tack.direction", "starboard", []string{"port", "starboard"}))
	return st
}

func TestEngageSnapsHeadingCommand(t *testing.T) {
	st := newTestStore()
	c := New(st, fixedReceiver{order: OrderEngage, ok: true})
	c.Poll()

	if enabled := st.Lookup("ap.enabled").Get(); enabled != true {
		t.Fatalf("ap.enabled = %v, want true", enabled)
	}
	if cmd := st.Lookup("ap.heading_command").Get(); cmd != 90.0 {
		t.Fatalf("ap.heading_command = %v, want 90.0", cmd)
	}
}

func TestNudgeHeading(t *testing.T) {
	st := newTestStore()
	c := New(st, fixedReceiver{order: OrderHeadingPlus10, ok: true})
	c.Poll()

	if cmd := st.Lookup("ap.heading_command").Get(); cmd != 10.0 {
		t.Fatalf("ap.heading_command = %v, want 10.0", cmd)
	}
}

func TestTackRequiresEnabled(t *testing.T) {
	st := newTestStore()
	c := New(st, fixedReceiver{order: OrderTackPort, ok: true})
	c.Poll()

	if state := st.Lookup("ap.tack.state").Get(); state != "none" {
		t.Fatalf("ap.tack.state = %v, want none (autopilot not engaged)", state)
	}

	st.Lookup("ap.enabled").Set(true)
	c.Poll()
	if state := st.Lookup("ap.tack.state").Get(); state != "begin" {
		t.Fatalf("ap.tack.state = %v, want begin", state)
	}
	if dir := st.Lookup("ap.tack.direction").Get(); dir != "port" {
		t.Fatalf("ap.tack.direction = %v, want port", dir)
	}
}

func TestChangeModeCycles(t *testing.T) {
	st := newTestStore()
	c := New(st, fixedReceiver{order: OrderChangeMode, ok: true})
	c.Poll()
	if mode := st.Lookup("ap.mode").Get(); mode != "gps" {
		t.Fatalf("ap.mode = %v, want gps", mode)
	}
}

func TestNoneReceiverNeverFires(t *testing.T) {
	st := newTestStore()
	c := New(st, None{})
	c.Poll()
	if cmd := st.Lookup("ap.heading_command").Get(); cmd != 0.0 {
		t.Fatalf("ap.heading_command = %v, want unchanged 0.0", cmd)
	}
}
