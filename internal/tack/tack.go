// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package tack implements the tack/gybe state machine: a control
// surface asks for a tack by moving ap.tack.state to "begin", and the
// autopilot's heading_command is nudged one degree per rate tick until
// the requested tack angle has been covered.
package tack

import (
	"log"
	"time"

	"github.com/relabs-tech/cypilot/internal/store"
	"github.com/relabs-tech/cypilot/internal/values"
)

// Tack drives the none -> begin -> waiting -> tacking state machine.
// Call Process once per autopilot iteration.
type Tack struct {
	st *store.Store

	State     *values.EnumProperty
	Delay     *values.RangeSetting
	Angle     *values.RangeSetting
	Rate      *values.RangeSetting
	Direction *values.EnumProperty

	tackAllowed   bool
	angleUsed     float64
	directionUsed string

	waitingTimer time.Time
	tackingTimer time.Time
	counter      int

	// lock prevents a new tack from starting before the current one
	// finishes; lastState lets process() revert a blocked "begin".
	lock      bool
	lastState string
}

// New constructs the tack state machine and registers its values under
// "ap.tack.*".
func New(st *store.Store) *Tack {
	t := &Tack{
		st:           st,
		State:        values.NewEnumProperty("ap.tack.state", "none", []string{"none", "begin", "waiting", "tacking"}),
		Delay:        values.NewRangeSetting("ap.tack.delay", 0, 0, 60, "sec"),
		Angle:        values.NewRangeSetting("ap.tack.angle", 100, 10, 180, "deg"),
		Rate:         values.NewRangeSetting("ap.tack.rate", 10, 1, 100, "deg/s"),
		Direction:    values.NewEnumProperty("ap.tack.direction", "port", []string{"port", "starboard"}),
		waitingTimer: time.Now(),
		tackingTimer: time.Now(),
	}
	t.angleUsed = t.Angle.Get().(float64)
	t.directionUsed = t.Direction.Get().(string)
	t.lastState = t.State.Get().(string)

	for _, v := range []values.Value{t.State, t.Delay, t.Angle, t.Rate, t.Direction} {
		st.Register(v)
	}
	return t
}

// tackPreparation derives angle_used/direction_used from the current
// autopilot mode and heading command, setting tackAllowed if a tack
// makes sense from the boat's current point of sail.
func (t *Tack) tackPreparation() {
	t.tackAllowed = false
	t.lock = true

	mode, _ := t.lookupString("ap.mode")
	headingCommand, _ := t.lookupFloat("ap.heading_command")

	switch mode {
	case "true wind", "wind":
		if headingCommand > 0 {
			if headingCommand < 60 {
				t.angleUsed = 2 * headingCommand
				t.tackAllowed = true
				t.directionUsed = "port"
			}
			if headingCommand > 120 {
				t.angleUsed = 2 * (180 - headingCommand)
				t.tackAllowed = true
				t.directionUsed = "starboard"
			}
		} else if headingCommand < 0 {
			if headingCommand > -60 {
				t.angleUsed = 2 * absFloat(headingCommand)
				t.tackAllowed = true
				t.directionUsed = "starboard"
			}
			if headingCommand < -120 {
				t.angleUsed = 2 * (180 + headingCommand)
				t.tackAllowed = true
				t.directionUsed = "port"
			}
		}
	case "compass":
		t.tackAllowed = true
		t.directionUsed = t.Direction.Get().(string)
		t.angleUsed = t.Angle.Get().(float64)
	}
}

// Process advances the state machine by one step; call once per
// autopilot iteration.
func (t *Tack) Process() {
	state := t.State.Get().(string)
	if state == "none" {
		return
	}

	if state == "begin" {
		if t.lock {
			t.State.Update(t.lastState)
			return
		}

		t.tackPreparation()

		if !t.tackAllowed {
			t.State.Update("none")
			t.lastState = t.State.Get().(string)
			t.lock = false
			log.Printf("tack: not allowed in this mode/wind angle")
		} else {
			t.State.Update("waiting")
			t.lastState = t.State.Get().(string)
			t.waitingTimer = time.Now()
		}
		state = t.State.Get().(string)
	}

	if state == "waiting" {
		delay := time.Duration(t.Delay.Get().(float64) * float64(time.Second))
		if time.Since(t.waitingTimer) < delay {
			return
		}
		t.State.Update("tacking")
		t.lastState = t.State.Get().(string)
		t.counter = 0
		t.tackingTimer = time.Now()
		state = t.State.Get().(string)
	}

	if state == "tacking" {
		enabled, _ := t.lookupBool("ap.enabled")
		mode, _ := t.lookupString("ap.mode")
		if !enabled || mode == "rudder angle" {
			t.lock = false
			t.State.Update("none")
			t.lastState = t.State.Get().(string)
			return
		}

		tick := time.Duration(float64(time.Second) / t.Rate.Get().(float64))
		if time.Since(t.tackingTimer) > tick {
			t.tackingTimer = time.Now()
			t.counter++
			heading := t.st.Lookup("ap.heading_command")
			if heading != nil {
				cur, _ := heading.Get().(float64)
				switch t.directionUsed {
				case "port":
					heading.Set(cur - 1)
				case "starboard":
					heading.Set(cur + 1)
				}
			}
		}
		if float64(t.counter) >= t.angleUsed {
			t.lock = false
			t.State.Update("none")
			t.lastState = t.State.Get().(string)
		}
	}
}

func (t *Tack) lookupString(name string) (string, bool) {
	v := t.st.Lookup(name)
	if v == nil {
		return "", false
	}
	s, ok := v.Get().(string)
	return s, ok
}

func (t *Tack) lookupFloat(name string) (float64, bool) {
	v := t.st.Lookup(name)
	if v == nil {
		return 0, false
	}
	f, ok := v.Get().(float64)
	return f, ok
}

func (t *Tack) lookupBool(name string) (bool, bool) {
	v := t.st.Lookup(name)
	if v == nil {
		return false, false
	}
	b, ok := v.Get().(bool)
	return b, ok
}

func absFloat(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
