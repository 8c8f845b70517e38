// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package fusion

import (
	"log"
	"math"
	"time"

	"github.com/relabs-tech/cypilot/internal/store"
	"github.com/relabs-tech/cypilot/internal/values"
)

// calibrationPoint is one 3-point calibration sample: the raw reading
// and the true rudder angle it corresponds to.
type calibrationPoint struct {
	raw, rudder float64
}

// Rudder is the arbitrated rudder-angle sensor plus its 3-point
// calibration state machine (centered / starboard range / port range).
type Rudder struct {
	sensor
	Angle             *values.SensorValue
	Speed             *values.SensorValue
	Offset            *values.Plain
	Scale             *values.Plain
	Nonlinearity      *values.Plain
	Range             *values.RangeProperty
	Calibrated        *values.BooleanProperty
	CalibrationState  *values.EnumProperty

	last      float64
	lastTime  time.Time
	lastRange float64
	minmax    [2]float64
	raw       float64

	calibrationRaw map[string]calibrationPoint
}

// NewRudder registers the "rudder.*" values.
func NewRudder(st *store.Store, priority map[string]int) *Rudder {
	r := &Rudder{
		sensor:           newSensor(st, priority, "rudder"),
		Angle:            values.NewSensorValue("rudder.angle"),
		Speed:            values.NewSensorValue("rudder.speed"),
		Offset:           values.NewPlain("rudder.offset", 0.0),
		Scale:            values.NewPlain("rudder.scale", 100.0),
		Nonlinearity:     values.NewPlain("rudder.nonlinearity", 0.0),
		Range:            values.NewRangeProperty("rudder.range", 45, 10, 100),
		Calibrated:       values.NewBooleanProperty("rudder.calibrated", false),
		CalibrationState: values.NewEnumProperty("rudder.calibration_state", "idle", []string{"idle", "reset", "centered", "starboard range", "port range"}),
		lastTime:         time.Now(),
		minmax:           [2]float64{-0.5, 0.5},
		calibrationRaw:   make(map[string]calibrationPoint),
	}
	for _, v := range []values.Value{r.Angle, r.Speed, r.Offset, r.Scale, r.Nonlinearity, r.Range, r.Calibrated, r.CalibrationState} {
		st.Register(v)
	}
	return r
}

// Write offers a reading from source (angle, device, timestamp).
func (r *Rudder) Write(reading Reading, source string) bool { return r.sensor.write(r, reading, source) }

// UpdateMinMax recomputes the raw-value range corresponding to
// [-Range, Range] once calibration or range settings change.
func (r *Rudder) UpdateMinMax() {
	scale := r.Scale.Get().(float64)
	offset := r.Offset.Get().(float64)
	rangeVal := r.Range.Get().(float64)
	r.lastRange = rangeVal
	if r.Calibrated.Get().(bool) {
		r.minmax = [2]float64{(-rangeVal - offset) / scale, (rangeVal - offset) / scale}
	} else {
		r.minmax = [2]float64{-0.5, 0.5}
	}
}

// Calibrate applies one calibration step. command is one of "reset",
// "centered", "starboard range", "port range".
func (r *Rudder) Calibrate(command string) {
	if command == "reset" {
		r.Nonlinearity.Set(0.0)
		r.Scale.Set(100.0)
		r.Offset.Set(0.0)
		r.calibrationRaw = make(map[string]calibrationPoint)
		r.Calibrated.Set(false)
		r.UpdateMinMax()
		return
	}

	var trueAngle float64
	switch command {
	case "centered":
		trueAngle = 0
	case "port range":
		trueAngle = r.Range.Get().(float64)
	case "starboard range":
		trueAngle = -r.Range.Get().(float64)
	default:
		log.Printf("fusion: unhandled rudder calibration command %q", command)
		return
	}

	r.calibrationRaw[command] = calibrationPoint{raw: r.raw, rudder: trueAngle}

	var pts []calibrationPoint
	for _, name := range []string{"starboard range", "centered", "port range"} {
		if p, ok := r.calibrationRaw[name]; ok {
			pts = append(pts, p)
		}
	}
	if len(pts) < 3 {
		log.Printf("fusion: need 3 points to calibrate rudder, have %d", len(pts))
		return
	}

	rudder0, rudder1, rudder2 := pts[0].rudder, pts[1].rudder, pts[2].rudder
	raw0, raw1, raw2 := pts[0].raw, pts[1].raw, pts[2].raw

	sep := math.Min(math.Abs(raw1-raw0), math.Min(math.Abs(raw2-raw0), math.Abs(raw2-raw1)))
	if sep <= 0.001 {
		log.Printf("fusion: bad rudder calibration, raw samples too close")
		delete(r.calibrationRaw, command)
		return
	}

	scale := (rudder2 - rudder0) / (raw2 - raw0)
	offset := rudder0 - scale*raw0
	nonlinearity := (rudder1 - scale*raw1 - offset) / (raw0 - raw1) / (raw2 - raw1)

	if math.Abs(scale) <= 0.01 {
		log.Printf("fusion: bad rudder calibration, scale %.4f too small", scale)
		for name := range r.calibrationRaw {
			if name != command {
				delete(r.calibrationRaw, name)
				break
			}
		}
		return
	}

	r.Offset.Set(offset)
	r.Scale.Set(scale)
	r.Nonlinearity.Set(nonlinearity)
	r.Calibrated.Set(true)
	r.UpdateMinMax()
}

// MinMax returns the raw-value range currently corresponding to
// [-Range, Range], for the servo driver's parameter frame.
func (r *Rudder) MinMax() (float64, float64) { return r.minmax[0], r.minmax[1] }

// Invalid reports whether the rudder angle is unavailable (no sensor,
// or it reported NaN).
func (r *Rudder) Invalid() bool {
	v := r.Angle.Get()
	b, isBool := v.(bool)
	return v == nil || (isBool && !b)
}

// Poll runs the per-cycle calibration-step and range-lock checks;
// called once per fusion poll.
func (r *Rudder) Poll() {
	if r.Calibrated.Get().(bool) && r.lastRange != r.Range.Get().(float64) {
		r.Range.Update(r.lastRange)
	}
	if state := r.CalibrationState.Get().(string); state != "idle" {
		r.Calibrate(state)
		r.CalibrationState.Set("idle")
	}
}

// Raw2Angle converts a raw [-0.5,0.5] reading to a true rudder angle
// in degrees, via the quadratic nonlinearity correction.
func (r *Rudder) Raw2Angle(raw float64) float64 {
	scale := r.Scale.Get().(float64)
	offset := r.Offset.Get().(float64)
	nlin := r.Nonlinearity.Get().(float64)
	mn, mx := r.minmax[0], r.minmax[1]
	angle := scale*raw + offset + nlin*(mn-raw)*(mx-raw)
	return math.Round(angle*100) / 100
}

// Angle2Raw inverts Raw2Angle, solving the quadratic for raw given a
// target angle; returns 0 if no solution lies in [-0.5, 0.5].
func (r *Rudder) Angle2Raw(angle float64) float64 {
	scale := r.Scale.Get().(float64)
	offset := r.Offset.Get().(float64)
	nlin := r.Nonlinearity.Get().(float64)
	mn, mx := r.minmax[0], r.minmax[1]

	a := nlin
	b := scale - nlin*(mn+mx)
	c := offset - angle + nlin*mn*mx
	d := b*b - a*c*4
	raw := 0.0

	if a == 0 {
		if b != 0 {
			raw = -c / b
		}
	} else if d >= 0 {
		raw = (-b - math.Sqrt(d)) / (2 * a)
		if raw < -0.5 || raw > 0.5 {
			raw = (-b + math.Sqrt(d)) / (2 * a)
		}
	}
	if raw < -0.5 || raw > 0.5 {
		raw = 0
	}
	return raw
}

func (r *Rudder) update(f map[string]any) {
	if f == nil {
		r.Angle.Update(false)
		return
	}
	raw, ok := floatField(f, "angle")
	if !ok || math.IsNaN(raw) {
		r.Angle.Update(false)
		return
	}
	r.raw = raw

	angle := r.Raw2Angle(raw)
	r.Angle.Set(angle)

	now := time.Now()
	dt := now.Sub(r.lastTime).Seconds()
	if dt > 1 {
		dt = 1
	}
	if dt > 0 {
		speed := (angle - r.last) / dt
		r.lastTime = now
		r.last = angle
		if r.Speed.Get() == nil {
			r.Speed.Set(speed)
		} else {
			prev := r.Speed.Get().(float64)
			r.Speed.Set(0.9*prev + 0.1*speed)
		}
	}
}

func (r *Rudder) reset() { r.Angle.Set(false) }

// Invalidate forces the rudder angle to unavailable, bypassing source
// priority arbitration — used when the servo link that was feeding it
// closes.
func (r *Rudder) Invalidate() { r.reset() }

func (r *Rudder) dataList() []values.Value { return []values.Value{r.Angle, r.Speed} }
