// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package servo

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/relabs-tech/cypilot/internal/fusion"
	"github.com/relabs-tech/cypilot/internal/store"
)

type fakeDriver struct {
	lastCommand    float64
	commandCalled  bool
	lastAngle      float64
	angleCalled    bool
	disengageCalls int
	params         DriverParams
	fault          bool
	telemetry      Telemetry
	telemetryOK    bool
	pollErr        error
}

func (f *fakeDriver) Command(raw float64) error { f.commandCalled = true; f.lastCommand = raw; return nil }
func (f *fakeDriver) Angle(raw float64) error   { f.angleCalled = true; f.lastAngle = raw; return nil }
func (f *fakeDriver) Disengage() error          { f.disengageCalls++; return nil }
func (f *fakeDriver) Params(p DriverParams) error { f.params = p; return nil }
func (f *fakeDriver) Poll() (Telemetry, bool, error) { return f.telemetry, f.telemetryOK, f.pollErr }
func (f *fakeDriver) Reset() error                   { f.fault = false; return nil }
func (f *fakeDriver) Fault() bool                    { return f.fault }
func (f *fakeDriver) Close() error                    { return nil }

func noProbe() (io.ReadWriteCloser, string, error) { return nil, "", errors.New("no hardware") }

func newTestServo(t *testing.T) (*store.Store, *Servo, *fakeDriver) {
	t.Helper()
	st := store.New()
	rudder := fusion.NewRudder(st, map[string]int{"servo": 1})
	s := New(st, rudder, noProbe)
	fd := &fakeDriver{}
	s.driver = fd
	return st, s, fd
}

func TestFlagsMsgRendersSetBitNames(t *testing.T) {
	st := store.New()
	f := NewFlags(st)
	f.SetBit(FlagEngaged, true)
	f.SetBit(FlagOvertempFault, true)

	msg := f.Msg()
	if msg != `"OVERTEMP_FAULT ENGAGED"` {
		t.Fatalf("Msg() = %s, want OVERTEMP_FAULT before ENGAGED in bit order", msg)
	}
}

func TestFlagsPortOvercurrentClearsOpposite(t *testing.T) {
	st := store.New()
	f := NewFlags(st)
	f.StarboardOvercurrentFault()
	f.PortOvercurrentFault()

	if f.bits()&FlagStarboardOvercurrentFault != 0 {
		t.Fatal("PortOvercurrentFault should clear the starboard fault")
	}
	if f.bits()&FlagPortOvercurrentFault == 0 {
		t.Fatal("PortOvercurrentFault should set the port fault")
	}
}

func TestLowerUpperRangeSettingCoupling(t *testing.T) {
	lower := NewLowerRangeSetting("test.lower", 10, 0, 100, "")
	upper := NewUpperRangeSetting("test.upper", 50, 0, 100, "", lower)

	lower.Set(60.0)
	if got := upper.Get().(float64); got != 60.0 {
		t.Fatalf("raising lower above upper should drag upper up, got %v", got)
	}

	upper.Set(30.0)
	if got := upper.Get().(float64); got != 60.0 {
		t.Fatalf("upper should refuse to drop below floor 60, got %v", got)
	}
}

func TestTimeoutSensorValueRevertsAfterStale(t *testing.T) {
	v := NewTimeoutSensorValue("test.temp")
	v.Set(55.0)
	v.At = time.Now().Add(-9 * time.Second)

	v.Timeout()

	if got := v.Get(); got != false {
		t.Fatalf("Timeout should revert a stale value to false, got %v", got)
	}
}

func TestServoSendCommandShapesSpeedIntoDriver(t *testing.T) {
	_, s, fd := newTestServo(t)
	s.apEngaged = true
	s.SpeedMin.Set(0.0)
	s.Command.Set(0.5)

	s.SendCommand()

	if !fd.commandCalled {
		t.Fatal("SendCommand should forward a nonzero speed command to the driver")
	}
	want := 0.2 + 0.5*0.8
	if diff := fd.lastCommand - want; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("driver.Command = %v, want %v", fd.lastCommand, want)
	}
	if got := s.State.Get().(string); got != "forward" {
		t.Fatalf("servo.state = %q, want forward", got)
	}
}

func TestServoSendCommandUsesPositionWhenRudderValid(t *testing.T) {
	_, s, fd := newTestServo(t)
	s.apEngaged = true
	s.rudder.Angle.Set(0.0)
	s.Position.Set(0.0)
	s.PositionCommand.Set(10.0)

	s.SendCommand()

	if !fd.angleCalled {
		t.Fatal("SendCommand should dispatch to the position path when the rudder sensor is valid")
	}
}

func TestServoDoCommandZeroesOnFault(t *testing.T) {
	_, s, fd := newTestServo(t)
	s.apEngaged = true
	fd.fault = true
	s.Command.Set(0.8)

	s.SendCommand()

	if fd.commandCalled {
		t.Fatal("a faulted driver should never receive a nonzero speed command")
	}
}

func TestServoApplyTelemetryUpdatesVoltageWithFactorAndOffset(t *testing.T) {
	_, s, _ := newTestServo(t)
	s.VoltageFactor.Set(1.1)
	s.VoltageOffset.Set(0.5)

	s.applyTelemetry(Telemetry{Fields: TelemetryVoltage, Voltage: 12.0}, time.Now())

	want := 1.1*12.0 + 0.5
	if got := s.Voltage.Get().(float64); got != want {
		t.Fatalf("servo.voltage = %v, want %v", got, want)
	}
}

func TestServoApplyTelemetryAccumulatesAmpHours(t *testing.T) {
	_, s, _ := newTestServo(t)
	now := time.Now()
	s.currentLastTime = now.Add(-time.Hour)

	s.applyTelemetry(Telemetry{Fields: TelemetryCurrent, Current: 2.0}, now)

	ah := s.AmpHours.Get().(float64)
	if ah < 1.9 || ah > 2.1 {
		t.Fatalf("servo.amp_hours = %v, want ~2.0 for 2A over 1 hour", ah)
	}
}
