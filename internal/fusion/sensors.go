// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package fusion arbitrates between competing sensor sources (gpsd,
// serial NMEA, BLE transducers, SignalK, servo telemetry) for each of
// the boat's measured quantities, applying the highest-priority live
// reading and falling each quantity back to "none" after it goes
// quiet for too long.
package fusion

import (
	"log"
	"time"

	"github.com/relabs-tech/cypilot/internal/store"
)

// pollWarnInterval flags a poll cycle that took unexpectedly long,
// the way sensors.py logs when poll() overruns its budget.
const pollWarnInterval = 50 * time.Millisecond

// Sensors owns every arbitrated sensor and the shared priority table
// that decides which source wins when more than one reports the same
// quantity.
type Sensors struct {
	store    *store.Store
	priority map[string]int

	GPS    *GPS
	Wind   *Wind
	Rudder *Rudder
	APB    *APB
	SOW    *SOW

	lastPoll time.Time
}

// NewSensors constructs every sensor and registers its values, loading
// the source priority table from priorityPath (creating it with
// defaults if absent).
func NewSensors(st *store.Store, priorityPath string) *Sensors {
	priority := LoadSourcePriority(priorityPath)
	return &Sensors{
		store:    st,
		priority: priority,
		GPS:      NewGPS(st, priority),
		Wind:     NewWind(st, priority),
		Rudder:   NewRudder(st, priority),
		APB:      NewAPB(st, priority),
		SOW:      NewSOW(st, priority),
		lastPoll: time.Now(),
	}
}

// Write dispatches one reading to the named sensor ("gps", "wind",
// "rudder", "apb", "sow"), returning whether it was accepted.
func (s *Sensors) Write(name string, reading Reading, source string) bool {
	switch name {
	case "gps":
		return s.GPS.Write(reading, source)
	case "wind":
		return s.Wind.Write(reading, source)
	case "rudder":
		return s.Rudder.Write(reading, source)
	case "apb":
		return s.APB.Write(reading, source)
	case "sow":
		return s.SOW.Write(reading, source)
	default:
		log.Printf("fusion: unknown sensor %q", name)
		return false
	}
}

// Poll runs the per-cycle maintenance: rudder calibration steps and the
// 8-second lost-sensor sweep. Called once per autopilot iteration.
func (s *Sensors) Poll() {
	start := time.Now()

	s.Rudder.Poll()
	s.checkLost(&s.GPS.sensor, s.GPS)
	s.checkLost(&s.Wind.sensor, s.Wind)
	s.checkLost(&s.Rudder.sensor, s.Rudder)
	s.checkLost(&s.APB.sensor, s.APB)
	s.checkLost(&s.SOW.sensor, s.SOW)

	if elapsed := time.Since(start); elapsed > pollWarnInterval {
		log.Printf("fusion: poll took %s, longer than expected", elapsed)
	}
	s.lastPoll = start
}

func (s *Sensors) checkLost(sn *sensor, u updater) {
	if sn.source.Get().(string) == "none" {
		return
	}
	if time.Since(sn.lastUpdate) > lostTimeout {
		log.Printf("fusion: %s lost, no data for %s", sn.name, lostTimeout)
		sn.lost(u)
	}
}

// LostGPSD resets every sensor currently sourced from gpsd, used when a
// gpsd producer disconnects.
func (s *Sensors) LostGPSD() {
	for _, entry := range []struct {
		sn *sensor
		u  updater
	}{
		{&s.GPS.sensor, s.GPS},
		{&s.Wind.sensor, s.Wind},
		{&s.Rudder.sensor, s.Rudder},
		{&s.APB.sensor, s.APB},
		{&s.SOW.sensor, s.SOW},
	} {
		if entry.sn.Source() == "gpsd" {
			entry.sn.lost(entry.u)
		}
	}
}

// LostDevice resets every sensor currently sourced from device.
func (s *Sensors) LostDevice(device string) {
	for _, entry := range []struct {
		sn *sensor
		u  updater
	}{
		{&s.GPS.sensor, s.GPS},
		{&s.Wind.sensor, s.Wind},
		{&s.Rudder.sensor, s.Rudder},
		{&s.APB.sensor, s.APB},
		{&s.SOW.sensor, s.SOW},
	} {
		if entry.sn.device == device {
			entry.sn.lost(entry.u)
		}
	}
}
