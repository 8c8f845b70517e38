// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package fusion

import (
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/relabs-tech/cypilot/internal/store"
)

func newTestSensors(t *testing.T) *Sensors {
	t.Helper()
	st := store.New()
	path := filepath.Join(t.TempDir(), "sensors.conf")
	return NewSensors(st, path)
}

func TestWriteAcceptsHigherPrioritySource(t *testing.T) {
	s := newTestSensors(t)

	if !s.Write("gps", Reading{Device: "serial0", Fields: map[string]any{"speed": 5.0}}, "serial") {
		t.Fatal("serial reading should be accepted when nothing else has reported")
	}
	if got := s.GPS.Source(); got != "serial" {
		t.Fatalf("GPS.Source() = %q, want serial", got)
	}

	if !s.Write("gps", Reading{Device: "gpsd0", Fields: map[string]any{"speed": 6.0}}, "gpsd") {
		t.Fatal("gpsd (priority 1) should win over serial (priority 2)")
	}
	if got := s.GPS.Source(); got != "gpsd" {
		t.Fatalf("GPS.Source() = %q, want gpsd", got)
	}
	if got := s.GPS.Speed.Get(); got != 6.0 {
		t.Fatalf("gps.speed = %v, want 6.0", got)
	}
}

func TestWriteRejectsLowerPrioritySource(t *testing.T) {
	s := newTestSensors(t)

	s.Write("gps", Reading{Device: "gpsd0", Fields: map[string]any{"speed": 6.0}}, "gpsd")

	if s.Write("gps", Reading{Device: "serial0", Fields: map[string]any{"speed": 9.0}}, "serial") {
		t.Fatal("serial (priority 2) should not override gpsd (priority 1)")
	}
	if got := s.GPS.Speed.Get(); got != 6.0 {
		t.Fatalf("gps.speed = %v, want unchanged 6.0", got)
	}
}

func TestWriteSameSourceDifferentDeviceTieBreak(t *testing.T) {
	s := newTestSensors(t)

	s.Write("gps", Reading{Device: "serial0", Fields: map[string]any{"speed": 5.0}}, "serial")

	if s.Write("gps", Reading{Device: "serial1", Fields: map[string]any{"speed": 8.0}}, "serial") {
		t.Fatal("a second device at the same priority should not override the first until it is lost")
	}

	s.LostDevice("serial0")

	if !s.Write("gps", Reading{Device: "serial1", Fields: map[string]any{"speed": 8.0}}, "serial") {
		t.Fatal("once the original device is lost, another at the same priority should be accepted")
	}
}

func TestLostDeviceResetsToNone(t *testing.T) {
	s := newTestSensors(t)
	s.Write("gps", Reading{Device: "gpsd0", Fields: map[string]any{"speed": 6.0}}, "gpsd")

	s.LostDevice("gpsd0")

	if got := s.GPS.Source(); got != "none" {
		t.Fatalf("GPS.Source() = %q, want none after LostDevice", got)
	}
	if got := s.GPS.Speed.Get(); got != false {
		t.Fatalf("gps.speed after loss = %v, want false (cleared)", got)
	}
}

func TestSOWAppliesCoefficient(t *testing.T) {
	s := newTestSensors(t)
	s.SOW.Coef.Set(110.0)

	s.Write("sow", Reading{Device: "paddlewheel", Fields: map[string]any{"speed": 10.0}}, "serial")

	if got := s.SOW.Speed.Get(); got != 11.0 {
		t.Fatalf("sow.speed = %v, want 11.0 (10 * 110%%)", got)
	}
}

func TestUnknownSensorNameIsRejected(t *testing.T) {
	s := newTestSensors(t)
	if s.Write("depth", Reading{}, "serial") {
		t.Fatal("unknown sensor name should be rejected")
	}
}

func TestSensorTimeoutFallsBackToNone(t *testing.T) {
	s := newTestSensors(t)
	s.Write("wind", Reading{Device: "tcp0", Fields: map[string]any{"direction": 45.0, "speed": 10.0}}, "tcp")

	s.Wind.lastUpdate = time.Now().Add(-9 * time.Second)
	s.Poll()

	if got := s.Wind.Source(); got != "none" {
		t.Fatalf("wind source after timeout = %q, want none", got)
	}
	if got := s.Wind.Speed.Get(); got != false {
		t.Fatalf("wind.speed after timeout = %v, want cleared", got)
	}

	if !s.Write("wind", Reading{Device: "tcp0", Fields: map[string]any{"direction": 45.0, "speed": 10.0}}, "tcp") {
		t.Fatal("a fresh reading after timeout should be accepted again")
	}
	if got := s.Wind.Source(); got != "tcp" {
		t.Fatalf("wind source after recovery = %q, want tcp", got)
	}
}

func TestRudderCalibrationSolveThreePoints(t *testing.T) {
	s := newTestSensors(t)
	r := s.Rudder
	r.Range.Set(40.0)

	r.Calibrate("reset")
	r.raw = 0.50
	r.Calibrate("centered")
	r.raw = 0.10
	r.Calibrate("starboard range")
	r.raw = 0.90
	r.Calibrate("port range")

	if !r.Calibrated.Get().(bool) {
		t.Fatal("three well-separated samples should complete calibration")
	}
	if got := r.Scale.Get().(float64); math.Abs(got-100) > 1e-9 {
		t.Fatalf("scale = %v, want 100", got)
	}
	if got := r.Offset.Get().(float64); math.Abs(got+50) > 1e-9 {
		t.Fatalf("offset = %v, want -50", got)
	}
	if got := r.Nonlinearity.Get().(float64); math.Abs(got) > 1e-9 {
		t.Fatalf("nonlinearity = %v, want 0", got)
	}
	if got := r.Raw2Angle(0.70); math.Abs(got-20) > 0.01 {
		t.Fatalf("Raw2Angle(0.70) = %v, want 20", got)
	}
}

func TestRudderCalibrationResetRestoresIdentity(t *testing.T) {
	s := newTestSensors(t)
	r := s.Rudder
	r.Scale.Set(80.0)
	r.Offset.Set(-40.0)
	r.Nonlinearity.Set(2.0)

	r.Calibrate("reset")

	if got := r.Scale.Get().(float64); got != 100.0 {
		t.Fatalf("scale after reset = %v, want 100", got)
	}
	if got := r.Offset.Get().(float64); got != 0.0 {
		t.Fatalf("offset after reset = %v, want 0", got)
	}
	if got := r.Nonlinearity.Get().(float64); got != 0.0 {
		t.Fatalf("nonlinearity after reset = %v, want 0", got)
	}
	if r.Calibrated.Get().(bool) {
		t.Fatal("reset must clear the calibrated flag")
	}
	if got := r.Raw2Angle(0.2); got != 20.0 {
		t.Fatalf("Raw2Angle(0.2) after reset = %v, want 20 (identity times 100)", got)
	}
}

func TestRudderCalibrationRejectsCollapsedSamples(t *testing.T) {
	s := newTestSensors(t)
	r := s.Rudder

	r.Calibrate("reset")
	r.raw = 0.5
	r.Calibrate("centered")
	r.Calibrate("starboard range")
	r.Calibrate("port range")

	if r.Calibrated.Get().(bool) {
		t.Fatal("samples at the same raw value must not calibrate")
	}
}
