// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package autopilot

import (
	"math"
	"testing"
	"time"

	"github.com/relabs-tech/cypilot/internal/store"
)

func TestMinmaxClamps(t *testing.T) {
	if got := minmax(5, 3); got != 3 {
		t.Errorf("minmax(5,3) = %v, want 3", got)
	}
	if got := minmax(-5, 3); got != -3 {
		t.Errorf("minmax(-5,3) = %v, want -3", got)
	}
	if got := minmax(1, 3); got != 1 {
		t.Errorf("minmax(1,3) = %v, want 1", got)
	}
}

func TestParseRate(t *testing.T) {
	if v, ok := parseRate("10"); !ok || v != 10 {
		t.Errorf("parseRate(10) = %v,%v want 10,true", v, ok)
	}
	if v, ok := parseRate("20"); !ok || v != 20 {
		t.Errorf("parseRate(20) = %v,%v want 20,true", v, ok)
	}
	if _, ok := parseRate("bogus"); ok {
		t.Error("parseRate(bogus) should fail")
	}
}

func TestComputeTrueWindStationaryBoatMatchesApparent(t *testing.T) {
	// boat stationary: true wind equals apparent wind.
	dir, speed := computeTrueWind(0, 0, 10, 45)
	if math.Abs(speed-10) > 1e-9 {
		t.Errorf("speed = %v, want 10", speed)
	}
	if math.Abs(dir-45) > 1e-9 {
		t.Errorf("dir = %v, want 45", dir)
	}
}

func newTestAutopilot(t *testing.T) (*store.Store, *Autopilot) {
	t.Helper()
	st := store.New()
	a := New(st, nil, nil, nil, nil, map[string]Pilot{}, "simple")
	return st, a
}

func TestHeadingPropertyWrapsByMode(t *testing.T) {
	_, a := newTestAutopilot(t)

	a.HeadingCommand.Set(370.0)
	if got := a.HeadingCommand.Get().(float64); got < 0 || got >= 360 {
		t.Errorf("compass-mode heading_command = %v, want wrapped into [0,360)", got)
	}

	a.Mode.setInternal("wind")
	a.HeadingCommand.Set(200.0)
	if got := a.HeadingCommand.Get().(float64); got <= -180 || got > 180 {
		t.Errorf("wind-mode heading_command = %v, want wrapped into (-180,180]", got)
	}
}

func TestModeSetUpdatesPreferredMode(t *testing.T) {
	_, a := newTestAutopilot(t)

	a.Mode.Set("gps")
	if got := a.PreferredMode.Get().(string); got != "gps" {
		t.Errorf("PreferredMode = %q, want gps after Mode.Set", got)
	}
	if got := a.Mode.Get().(string); got != "gps" {
		t.Errorf("Mode = %q, want gps", got)
	}
}

func TestComputeHeadingErrorClampsAndIntegrates(t *testing.T) {
	_, a := newTestAutopilot(t)

	a.Heading.Set(90.0)
	a.HeadingCommand.Set(0.0)
	now := time.Now()
	a.headingErrorIntTime = now.Add(-500 * time.Millisecond)
	a.computeHeadingError(now)

	if got := a.HeadingError.Get().(float64); got != 60.0 {
		t.Fatalf("HeadingError = %v, want clamped to 60", got)
	}
	if got := a.HeadingErrorInt.Get().(float64); got <= 0 {
		t.Fatalf("HeadingErrorInt = %v, want positive accumulation", got)
	}
}

func TestComputeHeadingErrorSnapsHeadingCommandOnModeChange(t *testing.T) {
	_, a := newTestAutopilot(t)

	a.Heading.Set(45.0)
	a.HeadingCommand.Set(45.0)
	a.computeHeadingError(time.Now())

	a.Mode.setInternal("gps")
	a.computeHeadingError(time.Now())

	if got := a.HeadingCommand.Get().(float64); got != 45.0 {
		t.Fatalf("HeadingCommand after mode switch = %v, want snapped to current heading 45.0", got)
	}
}
