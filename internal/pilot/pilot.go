// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package pilot implements the steering algorithms that turn a heading
// error into a rudder command. AutopilotPilot is the shared base every
// concrete pilot embeds; SimplePilot is the PID+heel+speed-adaptive
// algorithm used by default.
package pilot

import (
	"math"

	"github.com/relabs-tech/cypilot/internal/store"
	"github.com/relabs-tech/cypilot/internal/values"
)

// Gain couples a tunable AutopilotGain setting with the SensorValue
// that reports its last computed contribution, and the function used
// to turn a raw input into that contribution.
type Gain struct {
	AP      *values.RangeSetting
	Sensor  *values.SensorValue
	Compute func(value float64) float64
}

// AutopilotPilot is the shared machinery every concrete pilot embeds:
// named gain registration, weighted-sum computation, and the
// mode-to-heading dispatch every pilot uses to decide what course to
// steer towards.
type AutopilotPilot struct {
	st    *store.Store
	Name  string
	gains map[string]*Gain
}

func newAutopilotPilot(st *store.Store, name string) AutopilotPilot {
	return AutopilotPilot{st: st, Name: name, gains: map[string]*Gain{}}
}

// apGain registers a tunable gain named "ap.pilot.<name>.<gain>" plus
// its "...<gain>gain" readback sensor. A nil compute defaults to
// value*gain, the common case; pilots with a different relationship
// (e.g. a fixed offset) pass their own.
func (p *AutopilotPilot) apGain(name string, initial, min, max float64, compute func(value float64) float64) {
	prefix := "ap.pilot." + p.Name + "."
	apg := values.NewRangeSetting(prefix+name, initial, min, max, "")
	apg.Info()["AutopilotGain"] = true
	sensor := values.NewSensorValue(prefix + name + "gain")
	p.st.Register(apg)
	p.st.Register(sensor)

	if compute == nil {
		compute = func(value float64) float64 { return value * p.gains[name].AP.Get().(float64) }
	}
	p.gains[name] = &Gain{AP: apg, Sensor: sensor, Compute: compute}
}

// apCompute evaluates every registered gain present in gainValues,
// updating each gain's readback sensor, and returns their sum.
func (p *AutopilotPilot) apCompute(gainValues map[string]float64) float64 {
	var command float64
	for name, g := range p.gains {
		value, ok := gainValues[name]
		if !ok {
			continue
		}
		g.Sensor.Set(g.Compute(value))
		f, _ := g.Sensor.Get().(float64)
		command += f
	}
	return command
}

// ComputeHeading derives "ap.heading" from the current steering mode:
// true wind/wind modes track the apparent or true wind angle, gps
// tracks COG, compass steers a fixed magnetic course, and rudder angle
// mode just mirrors the current rudder position.
func (p *AutopilotPilot) ComputeHeading() {
	heading := p.st.Lookup("ap.heading")
	if heading == nil {
		return
	}
	mode, _ := p.lookupString("ap.mode")
	switch mode {
	case "true wind":
		v, _ := p.lookupFloat("ap.true_wind_angle")
		heading.Set(v)
	case "wind":
		v, _ := p.lookupFloat("ap.wind_angle_smoothed")
		heading.Set(v)
	case "gps":
		v, _ := p.lookupFloat("gps.track")
		heading.Set(v)
	case "compass":
		v, _ := p.lookupFloat("imu.heading")
		heading.Set(v)
	case "rudder angle":
		v, _ := p.lookupFloat("rudder.angle")
		heading.Set(math.Round(v))
	}
}

// BestMode downgrades mode to one the currently-available sensors can
// actually support: true wind needs both wind and gps, wind and gps
// modes each need their own sensor, and compass is always available.
func (p *AutopilotPilot) BestMode(mode string) string {
	noWind := p.lookupSource("wind.source") == "none"
	noGPS := p.lookupSource("gps.source") == "none"
	if !noGPS {
		speed, _ := p.lookupFloat("gps.speed")
		noGPS = speed < 1
	}

	switch mode {
	case "true wind":
		if noWind {
			return "compass"
		}
		if noGPS {
			return "wind"
		}
	case "wind":
		if noWind {
			return "compass"
		}
	case "gps":
		if noGPS {
			return "compass"
		}
	}
	return mode
}

func (p *AutopilotPilot) lookupSource(name string) string {
	v := p.st.Lookup(name)
	if v == nil {
		return "none"
	}
	s, _ := v.Get().(string)
	return s
}

func (p *AutopilotPilot) lookupString(name string) (string, bool) {
	v := p.st.Lookup(name)
	if v == nil {
		return "", false
	}
	s, ok := v.Get().(string)
	return s, ok
}

func (p *AutopilotPilot) lookupFloat(name string) (float64, bool) {
	v := p.st.Lookup(name)
	if v == nil {
		return 0, false
	}
	f, ok := v.Get().(float64)
	return f, ok
}

func (p *AutopilotPilot) lookupBool(name string) bool {
	v := p.st.Lookup(name)
	if v == nil {
		return false
	}
	b, _ := v.Get().(bool)
	return b
}
