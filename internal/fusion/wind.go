// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package fusion

import (
	"github.com/relabs-tech/cypilot/internal/resolv"
	"github.com/relabs-tech/cypilot/internal/store"
	"github.com/relabs-tech/cypilot/internal/values"
)

// Wind holds apparent wind direction/angle/speed, corrected by a
// calibration offset and a speed coefficient.
type Wind struct {
	sensor
	Direction *values.SensorValue
	Angle     *values.SensorValue
	Speed     *values.SensorValue
	Offset    *values.RangeSetting
	Coef      *values.RangeSetting

	// Updated flags a new reading for the autopilot loop's
	// compute_wind to act on exactly once.
	Updated bool
}

// NewWind registers the wind sensor's values under "wind.*".
func NewWind(st *store.Store, priority map[string]int) *Wind {
	w := &Wind{
		sensor:    newSensor(st, priority, "wind"),
		Direction: values.NewSensorValue("wind.direction", values.Directional()),
		Angle:     values.NewSensorValue("wind.angle", values.Directional()),
		Speed:     values.NewSensorValue("wind.speed"),
		Offset:    values.NewRangeSetting("wind.offset", 0, -180, 180, "deg"),
		Coef:      values.NewRangeSetting("wind.coefficient", 100, 0, 200, "%"),
	}
	st.Register(w.Direction)
	st.Register(w.Angle)
	st.Register(w.Speed)
	st.Register(w.Offset)
	st.Register(w.Coef)
	return w
}

// Write offers a reading from source; it is accepted or dropped per
// the sensor's priority arbitration.
func (w *Wind) Write(r Reading, source string) bool { return w.sensor.write(w, r, source) }

func (w *Wind) update(f map[string]any) {
	if direction, ok := floatField(f, "direction"); ok {
		w.Direction.Set(resolv.Resolv(direction+w.Offset.Get().(float64), 0))
		d := w.Direction.Get().(float64)
		w.Angle.Set(-d)
		w.Updated = true
	}
	if speed, ok := floatField(f, "speed"); ok {
		coef := w.Coef.Get().(float64)
		w.Speed.Set(speed * coef / 100)
		w.Updated = true
	}
}

func (w *Wind) reset() {
	w.Direction.Set(false)
	w.Speed.Set(false)
}

func (w *Wind) dataList() []values.Value {
	return []values.Value{w.Direction, w.Angle, w.Speed}
}
