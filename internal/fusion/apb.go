// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package fusion

import (
	"log"
	"time"

	"github.com/relabs-tech/cypilot/internal/store"
	"github.com/relabs-tech/cypilot/internal/values"
)

// apbRateLimit caps APB-derived heading commands at 2Hz, matching
// autopilots that resend the same XTE sentence far faster than a
// helmsman could react to.
const apbRateLimit = 500 * time.Millisecond

// APB cross-track-error autopilot remote control (NMEA APB sentences):
// derives a heading command from track + gain*cross-track-error,
// writing it into the store's ap.heading_command only while the
// autopilot is enabled and in a GPS-capable mode.
type APB struct {
	sensor
	Track    *values.SensorValue
	XTE      *values.SensorValue
	Gain     *values.RangeProperty
	lastTime time.Time

	store *store.Store
}

// NewAPB registers the "apb.*" values and binds the sensor to st so it
// can read/write ap.enabled, ap.mode, ap.heading_command by name.
func NewAPB(st *store.Store, priority map[string]int) *APB {
	a := &APB{
		sensor: newSensor(st, priority, "apb"),
		Track:  values.NewSensorValue("apb.track", values.Directional()),
		XTE:    values.NewSensorValue("apb.xte"),
		// 300 is 30 degrees per 1/10th mile of cross-track error.
		Gain:  values.NewRangeProperty("apb.xte.gain", 300, 0, 3000),
		store: st,
	}
	st.Register(a.Track)
	st.Register(a.XTE)
	st.Register(a.Gain)
	return a
}

// Write offers a reading from source.
func (a *APB) Write(r Reading, source string) bool { return a.sensor.write(a, r, source) }

func (a *APB) update(f map[string]any) {
	now := time.Now()
	if now.Sub(a.lastTime) < apbRateLimit {
		return
	}
	a.lastTime = now

	track, _ := floatField(f, "track")
	xte, _ := floatField(f, "xte")
	a.Track.Update(track)
	a.XTE.Update(xte)

	enabled := a.store.Lookup("ap.enabled")
	if enabled == nil || enabled.Get() != true {
		return
	}

	mode := a.store.Lookup("ap.mode")
	dataMode, _ := stringField(f, "mode")
	if mode != nil && mode.Get() != dataMode {
		if isgp, _ := stringField(f, "isgp"); isgp != "GP" {
			mode.Set(dataMode)
		} else {
			return
		}
	}

	gain := a.Gain.Get().(float64)
	command := track + gain*xte
	log.Printf("fusion: apb command %.2f track=%.2f xte=%.3f gain=%.1f", command, track, xte, gain)

	headingCommand := a.store.Lookup("ap.heading_command")
	if headingCommand == nil {
		return
	}
	current, _ := headingCommand.Get().(float64)
	if abs(current-command) > 0.1 {
		headingCommand.Set(command)
	}
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

func (a *APB) reset() { a.XTE.Update(0.0) }

func (a *APB) dataList() []values.Value {
	return []values.Value{a.Track, a.XTE}
}
