// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package pilot

import (
	"testing"

	"github.com/relabs-tech/cypilot/internal/store"
	"github.com/relabs-tech/cypilot/internal/values"
)

func newTestStore() *store.Store {
	st := store.New()
	st.Register(values.NewEnumProperty("ap.mode", "compass", []string{
		"compass", "gps", "wind", "true wind", "rudder angle",
	}))
	st.Register(values.NewPlain("ap.heading", 0.0))
	st.Register(values.NewPlain("ap.heading_command", 0.0))
	st.Register(values.NewPlain("ap.true_wind_angle", 0.0))
	st.Register(values.NewPlain("ap.wind_angle_smoothed", 0.0))
	st.Register(values.NewPlain("gps.track", 0.0))
	st.Register(values.NewPlain("imu.heading", 0.0))
	st.Register(values.NewStringValue("gps.source", "none"))
	st.Register(values.NewStringValue("wind.source", "none"))
	st.Register(values.NewPlain("gps.speed", 0.0))
	st.Register(values.NewPlain("rudder.angle", 0.0))
	st.Register(values.NewBooleanProperty("ap.enabled", true))
	st.Register(values.NewPlain("imu.headingrate", 0.0))
	st.Register(values.NewPlain("imu.roll", 0.0))
	st.Register(values.NewPlain("ap.heading_error", 0.0))
	st.Register(values.NewPlain("ap.heading_error_int", 0.0))
	st.Register(values.NewStringValue("ap.speed_mode", "none"))
	st.Register(values.NewProperty("servo.position_command", 0.0))
	return st
}

func TestComputeHeadingTracksModeSource(t *testing.T) {
	st := newTestStore()
	p := &AutopilotPilot{st: st, gains: map[string]*Gain{}}

	st.Lookup("imu.heading").Set(42.0)
	p.ComputeHeading()
	if got := st.Lookup("ap.heading").Get(); got != 42.0 {
		t.Fatalf("compass mode: ap.heading = %v, want 42.0", got)
	}

	st.Lookup("ap.mode").Set("gps")
	st.Lookup("gps.track").Set(99.0)
	p.ComputeHeading()
	if got := st.Lookup("ap.heading").Get(); got != 99.0 {
		t.Fatalf("gps mode: ap.heading = %v, want 99.0", got)
	}

	st.Lookup("ap.mode").Set("rudder angle")
	st.Lookup("rudder.angle").Set(5.6)
	p.ComputeHeading()
	if got := st.Lookup("ap.heading").Get(); got != 6.0 {
		t.Fatalf("rudder angle mode: ap.heading = %v, want rounded 6.0", got)
	}
}

func TestBestModeDowngradesWithoutSensors(t *testing.T) {
	st := newTestStore()
	p := &AutopilotPilot{st: st, gains: map[string]*Gain{}}

	if got := p.BestMode("true wind"); got != "compass" {
		t.Fatalf("BestMode(true wind) with no wind/gps = %v, want compass", got)
	}

	st.Lookup("wind.source").Set("serial")
	if got := p.BestMode("true wind"); got != "wind" {
		t.Fatalf("BestMode(true wind) with wind but no gps = %v, want wind", got)
	}

	st.Lookup("gps.source").Set("gpsd")
	st.Lookup("gps.speed").Set(3.0)
	if got := p.BestMode("true wind"); got != "true wind" {
		t.Fatalf("BestMode(true wind) with wind+gps = %v, want true wind", got)
	}
}

func TestBestModeRequiresMinimumGPSSpeed(t *testing.T) {
	st := newTestStore()
	p := &AutopilotPilot{st: st, gains: map[string]*Gain{}}

	st.Lookup("gps.source").Set("gpsd")
	st.Lookup("gps.speed").Set(0.2)
	if got := p.BestMode("gps"); got != "compass" {
		t.Fatalf("BestMode(gps) below 1kt = %v, want compass", got)
	}
}

func TestSimplePilotProcessSendsPositionCommandWhenEnabled(t *testing.T) {
	st := newTestStore()
	sp := NewSimplePilot(st)

	st.Lookup("ap.heading_error").Set(10.0)
	sp.Process(false)

	cmd := st.Lookup("servo.position_command").Get().(float64)
	if cmd == 0 {
		t.Fatalf("servo.position_command = %v, want nonzero from P gain on heading error", cmd)
	}
}

func TestSimplePilotProcessSkipsWhenDisabled(t *testing.T) {
	st := newTestStore()
	sp := NewSimplePilot(st)
	st.Lookup("ap.enabled").Set(false)
	st.Lookup("ap.heading_error").Set(10.0)

	sp.Process(false)

	if cmd := st.Lookup("servo.position_command").Get(); cmd != 0.0 {
		t.Fatalf("servo.position_command = %v, want untouched 0.0 while disabled", cmd)
	}
}

func TestSimplePilotRudderAngleModeBypassesGains(t *testing.T) {
	st := newTestStore()
	sp := NewSimplePilot(st)
	st.Lookup("ap.mode").Set("rudder angle")
	st.Lookup("ap.heading_command").Set(15.0)

	sp.Process(false)

	if cmd := st.Lookup("servo.position_command").Get(); cmd != 15.0 {
		t.Fatalf("servo.position_command = %v, want 15.0 passthrough", cmd)
	}
}
