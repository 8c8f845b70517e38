// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package servo

import (
	"io"
	"log"
	"math"
	"time"

	serial "github.com/jacobsa/go-serial/serial"

	"github.com/relabs-tech/cypilot/internal/fusion"
	"github.com/relabs-tech/cypilot/internal/store"
	"github.com/relabs-tech/cypilot/internal/values"
)

// positionTimeout is how long a position command stays live before it
// is abandoned and the rudder motor stops.
const positionTimeout = 10 * time.Second

// commandTimeout is how long a raw speed command stays live.
const commandTimeout = 1 * time.Second

// Servo arbitrates between a position command and a speed command for
// the rudder motor, shapes the winning command into the driver's
// dead-band, and tracks fault/telemetry state from the controller.
type Servo struct {
	st      *store.Store
	rudder  *fusion.Rudder
	devPath string

	VersionFirmware *values.Plain
	PositionCommand *TimedProperty
	Command         *TimedProperty
	Faults          *values.ResettableValue

	Voltage        *values.SensorValue
	Current        *values.SensorValue
	ControllerTemp *TimeoutSensorValue
	MotorTemp      *TimeoutSensorValue

	Engaged            *values.BooleanValue
	MaxCurrent         *values.RangeSetting
	CurrentFactor      *values.RangeSetting
	CurrentOffset      *values.RangeSetting
	VoltageFactor      *values.RangeSetting
	VoltageOffset      *values.RangeSetting
	MaxControllerTemp  *values.RangeSetting
	MaxMotorTemp       *values.RangeSetting

	MaxSlewSpeed *LowerRangeSetting
	MaxSlewSlow  *UpperRangeSetting

	Brake    *values.RangeSetting
	Gain     *values.RangeSetting
	Period   *values.RangeSetting
	AmpHours *values.ResettableValue
	Watts    *values.SensorValue

	Speed    *values.SensorValue
	SpeedMin *LowerRangeSetting
	SpeedMax *UpperRangeSetting

	Position   *values.SensorValue
	RawCommand *values.SensorValue
	UseEEPROM  *values.BooleanSetting
	State      *values.StringValue
	Controller *values.StringValue
	Flags      *Flags

	driver            Driver
	disengaged        bool
	apEngaged         bool
	forceEngaged      bool
	lastDir           int
	lastPollTime      time.Time
	lastZeroCmdTime   time.Time
	commandTimeoutAt  time.Time
	driverTimeoutAt   time.Time
	currentLastTime   time.Time
	probe             func() (io.ReadWriteCloser, string, error)
}

// New constructs the servo control surface and registers its values.
// probeSerial opens the next candidate serial device, or returns a nil
// port when nothing is attached; pass ProbeSerial to use the real
// hardware path.
func New(st *store.Store, rudder *fusion.Rudder, probeSerial func() (io.ReadWriteCloser, string, error)) *Servo {
	s := &Servo{
		st:                st,
		rudder:            rudder,
		probe:             probeSerial,
		VersionFirmware:   values.NewPlain("servo.version_firmware", 0.0),
		PositionCommand:   NewTimedProperty("servo.position_command"),
		Command:           NewTimedProperty("servo.command"),
		Faults:            values.NewResettableValue("servo.faults", 0.0),
		Voltage:           values.NewSensorValue("servo.voltage"),
		Current:           values.NewSensorValue("servo.current"),
		ControllerTemp:    NewTimeoutSensorValue("servo.controller_temp"),
		MotorTemp:         NewTimeoutSensorValue("servo.motor_temp"),
		Engaged:           values.NewBooleanValue("servo.engaged", false),
		MaxCurrent:        values.NewRangeSetting("servo.max_current", 7, 0, 60, "amps"),
		CurrentFactor:     values.NewRangeSetting("servo.current.factor", 1, 0.8, 1.2, ""),
		CurrentOffset:     values.NewRangeSetting("servo.current.offset", 0, -1.2, 1.2, ""),
		VoltageFactor:     values.NewRangeSetting("servo.voltage.factor", 1, 0.8, 1.2, ""),
		VoltageOffset:     values.NewRangeSetting("servo.voltage.offset", 0, -1.2, 1.2, ""),
		MaxControllerTemp: values.NewRangeSetting("servo.max_controller_temp", 60, 45, 80, ""),
		MaxMotorTemp:      values.NewRangeSetting("servo.max_motor_temp", 60, 30, 80, ""),
		Brake:             values.NewRangeSetting("servo.brake", 1, 1, 20, "%"),
		Gain:              values.NewRangeSetting("servo.gain", 1, -10, 10, ""),
		Period:            values.NewRangeSetting("servo.period", 0.4, 0.1, 3, "sec"),
		AmpHours:          values.NewResettableValue("servo.amp_hours", 0.0),
		Watts:             values.NewSensorValue("servo.watts"),
		Speed:             values.NewSensorValue("servo.speed"),
		Position:          values.NewSensorValue("servo.position"),
		RawCommand:        values.NewSensorValue("servo.raw_command"),
		UseEEPROM:         values.NewBooleanSetting("servo.use_eeprom", true),
		State:             values.NewStringValue("servo.state", "none"),
		Controller:        values.NewStringValue("servo.controller", "none"),
		Flags:             NewFlags(st),
		disengaged:        true,
	}

	s.MaxSlewSpeed = NewLowerRangeSetting("servo.max_slew_speed", 18, 0, 100, "")
	s.MaxSlewSlow = NewUpperRangeSetting("servo.max_slew_slow", 28, 0, 100, "", s.MaxSlewSpeed)
	s.SpeedMin = NewLowerRangeSetting("servo.speed.min", 100, 0, 100, "%")
	s.SpeedMax = NewUpperRangeSetting("servo.speed.max", 100, 0, 100, "%", s.SpeedMin)

	for _, v := range []values.Value{
		s.VersionFirmware, s.PositionCommand, s.Command, s.Faults, s.Voltage, s.Current,
		s.ControllerTemp, s.MotorTemp, s.Engaged, s.MaxCurrent, s.CurrentFactor, s.CurrentOffset,
		s.VoltageFactor, s.VoltageOffset, s.MaxControllerTemp, s.MaxMotorTemp, s.MaxSlewSpeed,
		s.MaxSlewSlow, s.Brake, s.Gain, s.Period, s.AmpHours, s.Watts, s.Speed, s.SpeedMin,
		s.SpeedMax, s.Position, s.RawCommand, s.UseEEPROM, s.State, s.Controller,
	} {
		st.Register(v)
	}

	s.Position.Set(0.0)
	now := time.Now()
	s.lastZeroCmdTime = now
	s.commandTimeoutAt = now
	s.currentLastTime = now
	s.RawCommand.Set(0.0)
	return s
}

// SetForceEngaged allows a position command to move the rudder even
// while the autopilot is disabled (the servo test harness wants this).
func (s *Servo) SetForceEngaged(v bool) { s.forceEngaged = v }

// SetAutopilotEngaged tells the servo whether the autopilot currently
// owns the rudder; called once per iteration by the autopilot loop.
func (s *Servo) SetAutopilotEngaged(v bool) { s.apEngaged = v }

// SendCommand picks between the position command and the speed command
// (whichever was set most recently), expiring and shaping it.
func (s *Servo) SendCommand() {
	now := time.Now()
	dp := now.Sub(s.PositionCommand.At)
	dc := now.Sub(s.Command.At)

	if dp < dc && !s.rudder.Invalid() {
		if now.Sub(s.PositionCommand.At) > positionTimeout {
			s.Command.Set(0.0)
			s.setRawCommand(0)
		} else {
			s.disengaged = false
			pos, _ := s.Position.Get().(float64)
			cmd, _ := s.PositionCommand.Get().(float64)
			if math.Abs(pos-cmd) < 0.5 {
				s.Command.Set(0.0)
			} else {
				s.doPositionCommand(cmd)
				return
			}
		}
	} else if cmd, _ := s.Command.Get().(float64); cmd != 0 && !s.Fault() {
		if now.Sub(s.Command.At) > commandTimeout {
			s.Command.Set(0.0)
		}
		s.disengaged = false
	}

	speed, _ := s.Command.Get().(float64)
	s.doCommand(speed)
}

func (s *Servo) doPositionCommand(position float64) {
	flags := s.Flags.bits()
	if (!s.apEngaged && !s.forceEngaged) || s.Fault() ||
		flags&(FlagPortOvercurrentFault|FlagBadVoltageFault|FlagOvertempFault) != 0 {
		s.disengaged = true
		s.setRawCommand(0)
		return
	}
	raw := s.rudder.Angle2Raw(position)
	s.rawAngle(raw)
}

func (s *Servo) doCommand(speed float64) {
	if speed == 0 || s.Fault() {
		period := time.Duration(s.Period.Get().(float64) * float64(time.Second))
		if !s.apEngaged && time.Since(s.commandTimeoutAt) > 3*period {
			s.disengaged = true
		}
		s.setRawCommand(0)
		return
	}

	speed *= s.Gain.Get().(float64)

	flags := s.Flags.bits()
	if (flags&(FlagPortOvercurrentFault|FlagMaxRudderFault) != 0 && speed > 0) ||
		(flags&(FlagStarboardOvercurrentFault|FlagMinRudderFault) != 0 && speed < 0) {
		s.setRawCommand(0)
		return
	}

	rudderRange := s.rudder.Range.Get().(float64)
	pos, _ := s.Position.Get().(float64)
	if pos < 0.9*rudderRange {
		s.Flags.ClearBit(FlagPortOvercurrentFault)
	}
	if pos > -0.9*rudderRange {
		s.Flags.ClearBit(FlagStarboardOvercurrentFault)
	}

	minSpeed := s.SpeedMin.Get().(float64) / 100.0
	maxSpeed := s.SpeedMax.Get().(float64) / 100.0
	minSpeed = math.Min(minSpeed, maxSpeed)

	magnitude := math.Min(math.Max(math.Abs(speed), minSpeed), maxSpeed)
	if speed < 0 {
		speed = -magnitude
	} else {
		speed = magnitude
	}
	s.Speed.Set(speed)

	if speed == 0 {
		s.setRawCommand(0)
		return
	}
	command := 0.2 + math.Abs(speed)*0.8
	if speed < 0 {
		command = -command
	}
	s.setRawCommand(command)
}

// setRawCommand sends a shaped raw command in [-1, 1] to the driver,
// tracking the servo's forward/reverse/idle state.
func (s *Servo) setRawCommand(command float64) {
	s.RawCommand.Set(command)
	switch {
	case command < 0:
		s.State.Update("reverse")
		s.lastDir = -1
	case command == 0:
		s.Speed.Set(0.0)
		s.State.Update("idle")
	default:
		s.State.Update("forward")
		s.lastDir = 1
	}

	now := time.Now()
	if command == 0 {
		if now.After(s.commandTimeoutAt.Add(time.Second)) && now.Sub(s.lastZeroCmdTime) < 200*time.Millisecond {
			return
		}
		s.lastZeroCmdTime = now
	} else {
		s.commandTimeoutAt = now
	}

	if s.driver == nil {
		return
	}
	if s.disengaged {
		s.sendDriverParams(1)
		s.driver.Disengage()
		return
	}
	mul := 1.0
	if s.Flags.bits()&(FlagPortOvercurrentFault|FlagStarboardOvercurrentFault) != 0 {
		mul = 2
	}
	s.sendDriverParams(mul)
	s.driver.Command(command)

	if cur, _ := s.Current.Get().(float64); cur != 0 {
		s.Flags.ClearBit(FlagDriverTimeout)
		s.driverTimeoutAt = time.Time{}
	} else if command != 0 {
		if !s.driverTimeoutAt.IsZero() {
			if time.Since(s.driverTimeoutAt) > time.Second {
				s.Flags.SetBit(FlagDriverTimeout, true)
			}
		} else {
			s.driverTimeoutAt = time.Now()
		}
	}
}

func (s *Servo) rawAngle(angle float64) {
	if s.driver == nil {
		return
	}
	if s.disengaged {
		s.sendDriverParams(1)
		s.driver.Disengage()
		return
	}
	s.sendDriverParams(1)
	s.driver.Angle(angle)
}

// Reset clears a latched fault on the motor controller.
func (s *Servo) Reset() {
	if s.driver != nil {
		s.driver.Reset()
	}
}

// CloseDriver drops the current serial connection, e.g. after a
// read/write error, so the next Poll re-probes for the controller.
func (s *Servo) CloseDriver() {
	s.Controller.Update("none")
	s.rudder.Invalidate()
	if s.driver != nil {
		s.driver.Close()
	}
	s.driver = nil
}

func (s *Servo) sendDriverParams(mul float64) {
	if s.driver == nil {
		return
	}
	uncorrectedMaxCurrent := math.Max(0, s.MaxCurrent.Get().(float64)-s.CurrentOffset.Get().(float64)) / s.CurrentFactor.Get().(float64)
	minRaw, maxRaw := s.rudder.MinMax()
	s.driver.Params(DriverParams{
		MaxCurrent:          mul * uncorrectedMaxCurrent,
		MinRaw:              minRaw,
		MaxRaw:              maxRaw,
		AbsMaxCurrent:       s.MaxCurrent.Get().(float64),
		MaxControllerTemp:   s.MaxControllerTemp.Get().(float64),
		MaxMotorTemp:        s.MaxMotorTemp.Get().(float64),
		RudderRange:         s.rudder.Range.Get().(float64),
		RudderOffset:        s.rudder.Offset.Get().(float64),
		RudderScale:         s.rudder.Scale.Get().(float64),
		RudderNonlinearity:  s.rudder.Nonlinearity.Get().(float64),
		MaxSlewSpeed:        s.MaxSlewSpeed.Get().(float64),
		MaxSlewSlow:         s.MaxSlewSlow.Get().(float64),
		CurrentFactor:       s.CurrentFactor.Get().(float64),
		CurrentOffset:       s.CurrentOffset.Get().(float64),
		VoltageFactor:       s.VoltageFactor.Get().(float64),
		VoltageOffset:       s.VoltageOffset.Get().(float64),
		SpeedMin:            s.SpeedMin.Get().(float64),
		SpeedMax:            s.SpeedMax.Get().(float64),
		Gain:                s.Gain.Get().(float64),
		Brake:               s.Brake.Get().(float64),
	})
}

// Fault reports whether the controller link is currently faulted.
func (s *Servo) Fault() bool {
	if s.driver == nil {
		return false
	}
	return s.driver.Fault()
}

// Poll probes for the controller if not yet connected, reads pending
// telemetry, applies it, and sends the next shaped command.
func (s *Servo) Poll() {
	if s.driver == nil {
		rw, path, err := s.probe()
		if err != nil || rw == nil {
			return
		}
		s.driver = NewSerialDriver(rw)
		s.devPath = path
		s.sendDriverParams(1)
		s.lastPollTime = time.Now()
		log.Printf("servo: controller link opened on %s", path)
	}

	t, ok, err := s.driver.Poll()
	if err != nil {
		log.Printf("servo: lost controller link: %v", err)
		s.CloseDriver()
		return
	}
	now := time.Now()
	if !ok {
		if now.Sub(s.lastPollTime) > 4*time.Second {
			s.CloseDriver()
		}
	} else {
		s.lastPollTime = now
		if s.Controller.Get().(string) == "none" {
			log.Printf("servo: controller found on %s", s.devPath)
			s.Controller.Set("Servo")
			s.driver.Command(0)
		}
	}

	s.applyTelemetry(t, now)

	if s.Fault() {
		flags := s.Flags.bits()
		if flags&FlagPortOvercurrentFault == 0 && flags&FlagStarboardOvercurrentFault == 0 {
			f, _ := s.Faults.Get().(float64)
			s.Faults.Set(f + 1)
		}
		if flags&FlagOvercurrentFault != 0 {
			if s.lastDir > 0 {
				s.Flags.PortOvercurrentFault()
			} else if s.lastDir < 0 {
				s.Flags.StarboardOvercurrentFault()
			}
		}
		s.Reset()
	}

	if !s.rudder.Invalid() {
		angle, _ := s.rudder.Angle.Get().(float64)
		s.Position.Set(angle)
	}

	s.SendCommand()
	s.ControllerTemp.Timeout()
	s.MotorTemp.Timeout()
}

func (s *Servo) applyTelemetry(t Telemetry, now time.Time) {
	if t.Fields&TelemetryVoltage != 0 {
		v := s.VoltageFactor.Get().(float64)*t.Voltage + s.VoltageOffset.Get().(float64)
		s.Voltage.Set(math.Round(v*1000) / 1000)
	}
	if t.Fields&TelemetryControllerTemp != 0 {
		s.ControllerTemp.Set(t.ControllerTemp)
	}
	if t.Fields&TelemetryMotorTemp != 0 {
		s.MotorTemp.Set(t.MotorTemp)
	}
	if t.Fields&TelemetryRudder != 0 {
		if math.IsNaN(t.Rudder) {
			if s.rudder.Source() == "servo" {
				s.rudder.Invalidate()
			}
		} else if t.Rudder != 0 {
			s.rudder.Write(fusion.Reading{Device: s.devPath, Fields: map[string]any{"angle": t.Rudder}}, "servo")
		}
	}
	if t.Fields&TelemetryCurrent != 0 {
		corrected := s.CurrentFactor.Get().(float64) * t.Current
		if t.Current != 0 {
			corrected = math.Max(0, corrected+s.CurrentOffset.Get().(float64))
		}
		s.Current.Set(math.Round(corrected*1000) / 1000)

		dt := now.Sub(s.currentLastTime).Seconds()
		s.currentLastTime = now
		if cur, _ := s.Current.Get().(float64); cur != 0 {
			ah, _ := s.AmpHours.Get().(float64)
			s.AmpHours.Set(ah + cur*dt/3600)
		}
		lp := 0.003 * dt
		prevWatts, _ := s.Watts.Get().(float64)
		volt, _ := s.Voltage.Get().(float64)
		cur, _ := s.Current.Get().(float64)
		s.Watts.Set((1-lp)*prevWatts + lp*volt*cur)
	}
	if t.Fields&TelemetryFlags != 0 {
		flags := s.Flags.bits()&^FlagDriverMask | t.Flags
		if angle, ok := s.rudder.Angle.Get().(float64); ok && angle != 0 {
			if math.Abs(angle) > s.rudder.Range.Get().(float64) && s.rudder.Calibrated.Get().(bool) {
				if angle > 0 {
					flags |= FlagMaxRudderFault
				} else {
					flags |= FlagMinRudderFault
				}
			}
		}
		s.Flags.Update(flags)
		s.Engaged.Update(t.Flags&FlagEngaged != 0)
	}
	if t.Fields&TelemetryVersionFirmware != 0 {
		s.VersionFirmware.Set(float64(t.VersionFirmware))
	}
}

// ProbeSerial returns a probe that opens the serial device at
// devicePath, matching the NMEA bridges' use of the same
// jacobsa/go-serial port abstraction. The probe returns (nil, "", nil)
// when the port cannot be opened.
func ProbeSerial(devicePath string, baud uint) func() (io.ReadWriteCloser, string, error) {
	return func() (io.ReadWriteCloser, string, error) {
		opts := serial.OpenOptions{
			PortName:              devicePath,
			BaudRate:              baud,
			DataBits:              8,
			StopBits:              1,
			MinimumReadSize:       0,
			InterCharacterTimeout: 100,
			ParityMode:            serial.PARITY_NONE,
		}
		port, err := serial.Open(opts)
		if err != nil {
			return nil, "", nil
		}
		return port, devicePath, nil
	}
}
