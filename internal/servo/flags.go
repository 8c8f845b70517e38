// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package servo drives the rudder motor controller over a serial link:
// it arbitrates between a position command and a speed command, shapes
// speed into the driver's dead-band, tracks fault bits, and integrates
// amp-hour/wattage telemetry from the controller.
package servo

import (
	"strings"

	"github.com/relabs-tech/cypilot/internal/store"
	"github.com/relabs-tech/cypilot/internal/values"
)

// Driver motor-controller fault/status bits, packed the same way the
// controller firmware reports them over the wire.
const (
	FlagSync                = 1 << 0
	FlagOvertempFault       = 1 << 1
	FlagOvercurrentFault    = 1 << 2
	FlagEngaged             = 1 << 3
	FlagInvalid             = 1 << 4
	FlagPortPinFault        = 1 << 5
	FlagStarboardPinFault   = 1 << 6
	FlagBadVoltageFault     = 1 << 7

	FlagMinRudderFault = 1 << 8
	FlagMaxRudderFault = 1 << 9
	FlagCurrentRange   = 1 << 10
	FlagBadFuses       = 1 << 11
	FlagRebooted       = 1 << 15

	FlagDriverMask = 0xFFFF

	// Servo-level flags layered above the driver's own bits.
	FlagPortOvercurrentFault      = 1 << 16
	FlagStarboardOvercurrentFault = 1 << 17
	FlagDriverTimeout             = 1 << 18
	FlagSaturated                 = 1 << 19
)

// Telemetry frame bits, indicating which fields a poll's result carries.
const (
	TelemetryFlags           = 1 << 0
	TelemetryCurrent         = 1 << 1
	TelemetryVoltage         = 1 << 2
	TelemetrySpeed           = 1 << 3
	TelemetryPosition        = 1 << 4
	TelemetryControllerTemp  = 1 << 5
	TelemetryMotorTemp       = 1 << 6
	TelemetryRudder          = 1 << 7
	TelemetryEEPROM          = 1 << 8
	TelemetryVersionFirmware = 1 << 9
)

// Flags is a writable bit-vector value rendering itself as a
// space-joined list of set fault-flag names on the wire.
type Flags struct {
	values.Property
}

// NewFlags registers a "servo.flags" value initialized to zero.
func NewFlags(st *store.Store) *Flags {
	f := &Flags{Property: *values.NewProperty("servo.flags", 0)}
	st.Register(f)
	return f
}

func (f *Flags) bits() int {
	v, _ := f.Get().(int)
	return v
}

// Set bit in the flag vector (or clears it when t is false).
func (f *Flags) SetBit(bit int, t bool) {
	if t {
		f.Update(f.bits() | bit)
	} else {
		f.Update(f.bits() &^ bit)
	}
}

// ClearBit clears bit in the flag vector.
func (f *Flags) ClearBit(bit int) { f.SetBit(bit, false) }

// PortOvercurrentFault records an overcurrent while driving to port,
// clearing the opposite-direction fault (only one can be active).
func (f *Flags) PortOvercurrentFault() {
	f.Update((f.bits() | FlagPortOvercurrentFault) &^ FlagStarboardOvercurrentFault)
}

// StarboardOvercurrentFault is the mirror of PortOvercurrentFault.
func (f *Flags) StarboardOvercurrentFault() {
	f.Update((f.bits() | FlagStarboardOvercurrentFault) &^ FlagPortOvercurrentFault)
}

// Msg renders the flag vector as the set of active fault names,
// matching the wire format of pypilot's ServoFlags.get_msg.
func (f *Flags) Msg() string {
	bits := f.bits()
	var names []string
	add := func(bit int, name string) {
		if bits&bit != 0 {
			names = append(names, name)
		}
	}
	add(FlagSync, "SYNC")
	add(FlagOvertempFault, "OVERTEMP_FAULT")
	add(FlagOvercurrentFault, "OVERCURRENT_FAULT")
	add(FlagEngaged, "ENGAGED")
	add(FlagInvalid, "INVALID")
	add(FlagPortPinFault, "PORT_PIN_FAULT")
	add(FlagStarboardPinFault, "STARBOARD_PIN_FAULT")
	add(FlagBadVoltageFault, "BADVOLTAGE_FAULT")
	add(FlagMinRudderFault, "MIN_RUDDER_FAULT")
	add(FlagMaxRudderFault, "MAX_RUDDER_FAULT")
	add(FlagBadFuses, "BAD_FUSES")
	add(FlagPortOvercurrentFault, "PORT_OVERCURRENT_FAULT")
	add(FlagStarboardOvercurrentFault, "STARBOARD_OVERCURRENT_FAULT")
	add(FlagDriverTimeout, "DRIVER_TIMEOUT")
	add(FlagSaturated, "SATURATED")
	add(FlagRebooted, "REBOOTED")
	return `"` + strings.Join(names, " ") + `"`
}
