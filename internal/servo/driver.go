// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package servo

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// DriverParams is one frame of operating limits sent down to the motor
// controller; the driver re-sends it on every command so a controller
// reboot mid-session picks the limits back up without a restart.
type DriverParams struct {
	MaxCurrent                          float64
	MinRaw, MaxRaw                      float64
	AbsMaxCurrent                       float64
	MaxControllerTemp, MaxMotorTemp     float64
	RudderRange, RudderOffset           float64
	RudderScale, RudderNonlinearity     float64
	MaxSlewSpeed, MaxSlewSlow           float64
	CurrentFactor, CurrentOffset        float64
	VoltageFactor, VoltageOffset        float64
	SpeedMin, SpeedMax                  float64
	Gain, Brake                         float64
}

// Telemetry is one decoded poll result from the controller.
type Telemetry struct {
	Fields int // bitmask of Telemetry* constants present below

	Flags                                int
	Voltage, Current                     float64
	ControllerTemp, MotorTemp            float64
	Rudder                               float64
	MaxCurrent, MaxControllerTemp        float64
	MaxMotorTemp                         float64
	MaxSlewSpeed, MaxSlewSlow            float64
	RudderScale, RudderNonlinearity      float64
	RudderOffset, RudderRange            float64
	CurrentFactor, CurrentOffset         float64
	VoltageFactor, VoltageOffset         float64
	MinSpeed, MaxSpeed, Gain, RudderBrake float64
	VersionFirmware                      int
}

// Driver abstracts the motor-controller link so Servo's arbitration
// logic can be tested without real hardware.
type Driver interface {
	// Command drives the motor at raw speed in [-1, 1].
	Command(raw float64) error
	// Angle commands the rudder to raw position in [-0.5, 0.5].
	Angle(raw float64) error
	// Disengage stops the motor but keeps the link alive.
	Disengage() error
	// Params pushes the current operating-limit frame.
	Params(p DriverParams) error
	// Poll reads any pending telemetry frame; ok is false if nothing
	// new arrived this cycle, and err is non-nil if the link died.
	Poll() (t Telemetry, ok bool, err error)
	// Reset clears a latched fault condition on the controller.
	Reset() error
	// Fault reports whether the controller is currently faulted.
	Fault() bool
	// Close releases the underlying link.
	Close() error
}

// serialDriver implements Driver over the simple line protocol spoken
// by the Arduino rudder-motor firmware: one ASCII command per line out,
// one ASCII telemetry line back, "field:value" pairs comma-separated.
type serialDriver struct {
	rw     io.ReadWriteCloser
	faulty bool
	buf    []byte
}

// NewSerialDriver wraps an already-opened serial port.
func NewSerialDriver(rw io.ReadWriteCloser) Driver {
	return &serialDriver{rw: rw}
}

func (d *serialDriver) Command(raw float64) error {
	_, err := fmt.Fprintf(d.rw, "C%.4f\n", raw)
	return err
}

func (d *serialDriver) Angle(raw float64) error {
	_, err := fmt.Fprintf(d.rw, "A%.4f\n", raw)
	return err
}

func (d *serialDriver) Disengage() error {
	_, err := fmt.Fprint(d.rw, "D\n")
	return err
}

func (d *serialDriver) Params(p DriverParams) error {
	_, err := fmt.Fprintf(d.rw, "P%.4f,%.4f,%.4f,%.4f,%.4f,%.4f,%.4f,%.4f,%.4f,%.4f,%.4f,%.4f,%.4f,%.4f,%.4f,%.4f,%.4f,%.4f,%.4f,%.4f\n",
		p.MaxCurrent, p.MinRaw, p.MaxRaw, p.AbsMaxCurrent, p.MaxControllerTemp, p.MaxMotorTemp,
		p.RudderRange, p.RudderOffset, p.RudderScale, p.RudderNonlinearity,
		p.MaxSlewSpeed, p.MaxSlewSlow, p.CurrentFactor, p.CurrentOffset,
		p.VoltageFactor, p.VoltageOffset, p.SpeedMin, p.SpeedMax, p.Gain, p.Brake)
	return err
}

func (d *serialDriver) Reset() error {
	d.faulty = false
	_, err := fmt.Fprint(d.rw, "R\n")
	return err
}

func (d *serialDriver) Fault() bool { return d.faulty }

func (d *serialDriver) Close() error { return d.rw.Close() }

// Poll reads whatever bytes are available and decodes a complete
// telemetry line if one has arrived; it never blocks, matching the
// nonblocking fcntl/termios setup the firmware link expects.
func (d *serialDriver) Poll() (Telemetry, bool, error) {
	chunk := make([]byte, 256)
	n, err := d.rw.Read(chunk)
	if err != nil && n == 0 {
		if err == io.EOF {
			return Telemetry{}, false, err
		}
		return Telemetry{}, false, nil
	}
	d.buf = append(d.buf, chunk[:n]...)

	idx := bytes.IndexByte(d.buf, '\n')
	if idx < 0 {
		return Telemetry{}, false, nil
	}
	line := d.buf[:idx]
	d.buf = d.buf[idx+1:]

	t, ok := decodeTelemetry(string(line))
	if !ok {
		return Telemetry{}, false, nil
	}
	if t.Flags&FlagOvercurrentFault != 0 || t.Flags&FlagOvertempFault != 0 || t.Flags&FlagBadVoltageFault != 0 {
		d.faulty = true
	}
	return t, true, nil
}

// decodeTelemetry parses a "field:value,field:value" line into a
// Telemetry frame. Unknown lines are rejected, not panicked on.
func decodeTelemetry(line string) (Telemetry, bool) {
	var t Telemetry
	for _, field := range strings.Split(line, ",") {
		kv := strings.SplitN(field, ":", 2)
		if len(kv) != 2 {
			continue
		}
		f, err := strconv.ParseFloat(kv[1], 64)
		if err != nil {
			continue
		}
		switch kv[0] {
		case "flags":
			t.Flags = int(f)
			t.Fields |= TelemetryFlags
		case "voltage":
			t.Voltage = f
			t.Fields |= TelemetryVoltage
		case "current":
			t.Current = f
			t.Fields |= TelemetryCurrent
		case "ctemp":
			t.ControllerTemp = f
			t.Fields |= TelemetryControllerTemp
		case "mtemp":
			t.MotorTemp = f
			t.Fields |= TelemetryMotorTemp
		case "rudder":
			t.Rudder = f
			t.Fields |= TelemetryRudder
		case "version":
			t.VersionFirmware = int(f)
			t.Fields |= TelemetryVersionFirmware
		}
	}
	return t, t.Fields != 0
}
