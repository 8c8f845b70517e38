// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package pilot

import (
	"github.com/relabs-tech/cypilot/internal/store"
)

// SimplePilot steers with:
//
//	command = S*(P*error + D*rotation + I*sum-of-errors + H*heel) + O
//
// where S is the speed correction G/speed (speed read from the
// ap.speed_mode sensor, taken as 1 below 1), clamped to [0.3, 2], so
// the rudder swing widens at low boat speed; S is 1 when
// ap.speed_mode is "none" or G is 0. The command is written straight
// to the servo as a position command. Rudder angle mode bypasses all of this and passes
// ap.heading_command through unchanged.
type SimplePilot struct {
	AutopilotPilot
}

// NewSimplePilot registers the P/I/D/H/G/O gains under "ap.pilot.simple.*".
func NewSimplePilot(st *store.Store) *SimplePilot {
	p := &SimplePilot{AutopilotPilot: newAutopilotPilot(st, "simple")}
	p.apGain("P", 1, 0, 5, nil)
	p.apGain("I", 0, 0, 1, nil)
	p.apGain("D", .3, 0, 1, nil)
	p.apGain("H", 0.3, 0, 1, nil)
	p.apGain("G", 6, 0, 40, nil)
	p.apGain("O", 0, -10, 10, nil)
	return p
}

// Process computes the next rudder command and, if the autopilot is
// enabled, sends it to the servo as a position command. reset is
// unused by this pilot (the simple algorithm has no per-enable
// reinitialization of its own beyond the shared heading_error_int
// reset the autopilot loop already performs).
func (p *SimplePilot) Process(reset bool) {
	mode, _ := p.lookupString("ap.mode")

	var command float64
	if mode == "rudder angle" {
		command, _ = p.lookupFloat("ap.heading_command")
	} else {
		headingRate, _ := p.lookupFloat("imu.headingrate")
		roll, _ := p.lookupFloat("imu.roll")
		headingError, _ := p.lookupFloat("ap.heading_error")
		headingErrorInt, _ := p.lookupFloat("ap.heading_error_int")

		gainValues := map[string]float64{
			"P": headingError,
			"I": headingErrorInt,
			"D": headingRate,
			"H": -roll,
		}

		speedMode, _ := p.lookupString("ap.speed_mode")
		speedCorrection := 1.0
		gainG := p.gains["G"].AP.Get().(float64)
		if speedMode != "none" && gainG != 0 {
			speed, ok := p.lookupFloat(speedMode)
			if !ok || speed < 1 {
				speed = 1
			}
			speedCorrection = gainG / speed
			if speedCorrection > 2 {
				speedCorrection = 2
			}
			if speedCorrection < 0.3 {
				speedCorrection = 0.3
			}
		}

		rudderAngleOffset := p.gains["O"].AP.Get().(float64)
		pid := p.apCompute(gainValues)
		command = speedCorrection*pid + rudderAngleOffset
	}

	if !p.lookupBool("ap.enabled") {
		return
	}
	positionCommand := p.st.Lookup("servo.position_command")
	if positionCommand == nil {
		return
	}
	positionCommand.Set(command)
}
