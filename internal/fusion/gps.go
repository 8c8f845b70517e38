// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package fusion

import (
	"github.com/relabs-tech/cypilot/internal/store"
	"github.com/relabs-tech/cypilot/internal/values"
)

// GPS holds the arbitrated position fix: track, speed over ground,
// and lat/lon at full precision.
type GPS struct {
	sensor
	Track *values.SensorValue
	Speed *values.SensorValue
	Lat   *values.SensorValue
	Lon   *values.SensorValue
}

// NewGPS registers the "gps.*" values.
func NewGPS(st *store.Store, priority map[string]int) *GPS {
	g := &GPS{
		sensor: newSensor(st, priority, "gps"),
		Track:  values.NewSensorValue("gps.track", values.Directional()),
		Speed:  values.NewSensorValue("gps.speed"),
		Lat:    values.NewSensorValue("gps.lat", values.WithFormat("%.11f")),
		Lon:    values.NewSensorValue("gps.lon", values.WithFormat("%.11f")),
	}
	st.Register(g.Track)
	st.Register(g.Speed)
	st.Register(g.Lat)
	st.Register(g.Lon)
	return g
}

// Write offers a reading from source.
func (g *GPS) Write(r Reading, source string) bool { return g.sensor.write(g, r, source) }

func (g *GPS) update(f map[string]any) {
	if speed, ok := floatField(f, "speed"); ok {
		g.Speed.Set(speed)
	}
	if track, ok := floatField(f, "track"); ok {
		g.Track.Set(track)
	}
	lat, latOK := floatField(f, "lat")
	lon, lonOK := floatField(f, "lon")
	if latOK && lonOK {
		g.Lat.Set(lat)
		g.Lon.Set(lon)
	}
}

func (g *GPS) reset() {
	g.Track.Set(false)
	g.Speed.Set(false)
}

func (g *GPS) dataList() []values.Value {
	return []values.Value{g.Track, g.Speed, g.Lat, g.Lon}
}

// SOW is speed-through-water, from a paddlewheel or ultrasonic log.
type SOW struct {
	sensor
	Speed *values.SensorValue
	Coef  *values.RangeSetting
}

// NewSOW registers the "sow.*" values.
func NewSOW(st *store.Store, priority map[string]int) *SOW {
	s := &SOW{
		sensor: newSensor(st, priority, "sow"),
		Speed:  values.NewSensorValue("sow.speed"),
		Coef:   values.NewRangeSetting("sow.coefficient", 100, 0, 200, "%"),
	}
	st.Register(s.Speed)
	st.Register(s.Coef)
	return s
}

// Write offers a reading from source.
func (s *SOW) Write(r Reading, source string) bool { return s.sensor.write(s, r, source) }

func (s *SOW) update(f map[string]any) {
	if speed, ok := floatField(f, "speed"); ok {
		coef := s.Coef.Get().(float64)
		s.Speed.Set(speed * coef / 100)
	}
}

func (s *SOW) reset() { s.Speed.Set(false) }

func (s *SOW) dataList() []values.Value { return []values.Value{s.Speed} }
