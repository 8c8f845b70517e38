// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package values

import (
	"math"
	"testing"
)

func TestRangePropertyClampsAndIgnoresInvalid(t *testing.T) {
	r := NewRangeProperty("servo.speed.max", 0.5, 0, 1)

	r.Set(2.0)
	if r.Get() != 0.5 {
		t.Fatalf("out-of-range Set should be ignored, got %v", r.Get())
	}

	r.Set(0.7)
	if r.Get() != 0.7 {
		t.Fatalf("Get() = %v, want 0.7", r.Get())
	}

	r.Set("not a number")
	if r.Get() != 0.7 {
		t.Fatalf("unparsable Set should be ignored, got %v", r.Get())
	}
}

func TestRangePropertySetMaxPullsValueDown(t *testing.T) {
	r := NewRangeProperty("servo.speed.max", 0.9, 0, 1)
	r.SetMax(0.5)
	if r.Get() != 0.5 {
		t.Fatalf("SetMax should clamp current value down, got %v", r.Get())
	}
	if r.Max != 0.5 {
		t.Fatalf("Max = %v, want 0.5", r.Max)
	}
}

func TestEnumPropertyAcceptsOnlyChoices(t *testing.T) {
	e := NewEnumProperty("ap.mode", "compass", []string{"compass", "gps", "wind", "true wind"})

	e.Set("gps")
	if e.Get() != "gps" {
		t.Fatalf("Get() = %v, want gps", e.Get())
	}

	e.Set("bogus")
	if e.Get() != "gps" {
		t.Fatalf("invalid choice should be ignored, got %v", e.Get())
	}
}

func TestEnumPropertyNumericChoicesCompareByFloat(t *testing.T) {
	e := NewEnumProperty("servo.rate", "10", []string{"10", "20"})
	e.Set("10.0")
	if e.Get() != "10.0" {
		t.Fatalf("numeric choice should accept float-equivalent string, got %v", e.Get())
	}
}

func TestBooleanPropertyCoercesMultipleInputTypes(t *testing.T) {
	b := NewBooleanProperty("ap.enabled", false)

	b.Set("true")
	if b.Get() != true {
		t.Fatalf("string \"true\" should set true, got %v", b.Get())
	}
	b.Set(float64(0))
	if b.Get() != false {
		t.Fatalf("float64(0) should set false, got %v", b.Get())
	}
	b.Set(true)
	if b.Get() != true {
		t.Fatalf("bool true should set true, got %v", b.Get())
	}
}

func TestResettableValueRevertsOnFalsy(t *testing.T) {
	r := NewResettableValue("imu.alignmentQ", []float64{1, 0, 0, 0})
	r.Set([]float64{0.5, 0.5, 0.5, 0.5})
	if got := r.Get().([]float64); got[0] != 0.5 {
		t.Fatalf("Set should apply non-falsy value, got %v", got)
	}

	r.Set(nil)
	got := r.Get().([]float64)
	if got[0] != 1 || got[1] != 0 {
		t.Fatalf("Set(nil) should reset to initial, got %v", got)
	}
}

func TestUpdateOnlyWritesOnChange(t *testing.T) {
	p := NewPlain("ap.low_wind_limit", 5.0)
	p.Update(5.0)
	if p.Get() != 5.0 {
		t.Fatalf("Update with same value should be a no-op, got %v", p.Get())
	}
	p.Update(7.0)
	if p.Get() != 7.0 {
		t.Fatalf("Update with new value should apply, got %v", p.Get())
	}
}

func TestSensorValueMsgFormatsNaNAndDirectional(t *testing.T) {
	s := NewSensorValue("imu.heading", Directional())
	if !s.Directional() {
		t.Fatalf("Directional() should be true")
	}
	s.Set(math.NaN())
	if s.Msg() != `"nan"` {
		t.Fatalf(`Msg() = %q, want "nan"`, s.Msg())
	}
}

func TestBooleanSettingIsPersistent(t *testing.T) {
	b := NewBooleanSetting("ap.enabled", false)
	if !b.Persistent() {
		t.Fatalf("BooleanSetting must be persistent")
	}
	if b.Msg() != "false" {
		t.Fatalf("Msg() = %q, want false", b.Msg())
	}
}
