// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package fusion

import (
	"time"

	"github.com/relabs-tech/cypilot/internal/store"
	"github.com/relabs-tech/cypilot/internal/values"
)

// lostTimeout is how long a sensor may go without an update before it
// is declared lost and reset to source "none".
const lostTimeout = 8 * time.Second

// Reading is one inbound measurement from a producer (NMEA bridge,
// servo telemetry, SignalK, gpsd, BLE wind transducer, ...).
type Reading struct {
	Device string
	Fields map[string]any
}

// updater is implemented by every concrete sensor (Wind, APB, gps, sow,
// Rudder) to apply a Reading's fields onto its own registered values.
type updater interface {
	update(f map[string]any)
	reset()
	dataList() []values.Value
}

// sensor is the priority-arbitration base every concrete sensor embeds,
// grounded on sensors.py's Sensor class.
type sensor struct {
	name       string
	source     *values.StringValue
	device     string
	lastUpdate time.Time
	priority   map[string]int
}

func newSensor(st *store.Store, priority map[string]int, name string) sensor {
	return sensor{
		name:     name,
		source:   registerString(st, name+".source", "none"),
		priority: priority,
	}
}

func registerString(st *store.Store, name, initial string) *values.StringValue {
	v := values.NewStringValue(name, initial)
	st.Register(v)
	return v
}

// write applies r to u if source has priority over (or matches, from
// the same device as) the sensor's current source, returning whether
// the data was accepted.
func (s *sensor) write(u updater, r Reading, source string) bool {
	current := s.priority[s.source.Get().(string)]
	incoming := s.priority[source]
	if current < incoming {
		return false
	}
	if current == incoming && r.Device != s.device {
		return false
	}

	u.update(r.Fields)

	if s.source.Get().(string) != source {
		s.source.Set(source)
		s.device = r.Device
	}
	s.lastUpdate = time.Now()
	return true
}

// Source reports the name of the source currently winning arbitration
// for this sensor ("none" if nothing has reported in).
func (s *sensor) Source() string { return s.source.Get().(string) }

func (s *sensor) lost(u updater) {
	s.source.Set("none")
	for _, item := range u.dataList() {
		item.Set(nil)
	}
	u.reset()
	s.device = ""
}

func floatField(f map[string]any, key string) (float64, bool) {
	v, ok := f[key]
	if !ok {
		return 0, false
	}
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	}
	return 0, false
}

func stringField(f map[string]any, key string) (string, bool) {
	v, ok := f[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
