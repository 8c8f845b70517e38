// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package autopilot wires the sensor fusion, IMU, servo, tack and
// pilot packages into the single control loop that turns a desired
// heading into rudder motion: read IMU, receive client writes, poll
// sensors, compute wind/VMG/CMG and heading error, run the selected
// pilot, poll the servo.
package autopilot

import (
	"log"
	"math"
	"os"
	"time"

	"github.com/relabs-tech/cypilot/internal/fusion"
	"github.com/relabs-tech/cypilot/internal/imu"
	"github.com/relabs-tech/cypilot/internal/resolv"
	"github.com/relabs-tech/cypilot/internal/servo"
	"github.com/relabs-tech/cypilot/internal/store"
	"github.com/relabs-tech/cypilot/internal/tack"
	"github.com/relabs-tech/cypilot/internal/values"
)

// Pilot is the interface any steering algorithm plugged into Autopilot
// must satisfy; pilot.SimplePilot is the only one shipped today.
type Pilot interface {
	ComputeHeading()
	BestMode(mode string) string
	Process(reset bool)
}

func minmax(value, r float64) float64 {
	if value > r {
		return r
	}
	if value < -r {
		return -r
	}
	return value
}

// computeTrueWind combines apparent wind and boat-over-ground velocity
// (both as vectors) to recover the true wind direction/speed.
func computeTrueWind(gpsSpeed, gpsTrack, windSpeed, windDirection float64) (dir, speed float64) {
	rwd := windDirection * math.Pi / 180
	rgpst := gpsTrack * math.Pi / 180
	windX, windY := windSpeed*math.Sin(rwd), windSpeed*math.Cos(rwd)
	gpsX, gpsY := gpsSpeed*math.Sin(rgpst), gpsSpeed*math.Cos(rgpst)
	speed = math.Hypot(windY-gpsY, windX-gpsX)
	dir = math.Atan2(windX-gpsX, windY-gpsY) * 180 / math.Pi
	return dir, speed
}

// ModeProperty is the "ap.mode" enum: compass/gps/wind/true wind/rudder
// angle. Setting it from outside also records the newly-requested mode
// as the preferred mode the autopilot will try to return to once its
// sensors allow it.
type ModeProperty struct {
	values.EnumSetting
	ap *Autopilot
}

func newModeProperty(name string) *ModeProperty {
	return &ModeProperty{EnumSetting: *values.NewEnumSetting(name, "compass",
		[]string{"compass", "gps", "wind", "true wind", "rudder angle"})}
}

func (m *ModeProperty) Set(v any) {
	if m.ap != nil {
		m.ap.PreferredMode.Update(v)
	}
	m.setInternal(v)
}

// setInternal applies the mode change without touching preferredMode,
// used by adjustMode to step through sensor-driven downgrades.
func (m *ModeProperty) setInternal(v any) {
	m.EnumSetting.Set(v)
}

// HeadingProperty is a heading command/target: wind-relative modes
// keep it in (-180,180], compass/gps modes keep it in [0,360).
type HeadingProperty struct {
	values.RangeProperty
	mode *ModeProperty
}

func newHeadingProperty(name string, mode *ModeProperty) *HeadingProperty {
	return &HeadingProperty{RangeProperty: *values.NewRangeProperty(name, 0, -180, 360), mode: mode}
}

func (h *HeadingProperty) Set(v any) {
	f, ok := v.(float64)
	if !ok {
		h.RangeProperty.Set(v)
		return
	}
	switch h.mode.Get().(string) {
	case "wind", "true wind", "rudder angle":
		f = resolv.Resolv180(f, 0)
	case "compass", "gps":
		f = resolv.Resolv360(f, 0)
	}
	h.RangeProperty.Set(f)
}

// Autopilot owns the entire control loop: it reads the IMU, polls
// sensors, computes wind/VMG/CMG and heading error, runs the selected
// pilot, and polls the servo, once per Iteration call.
type Autopilot struct {
	store   *store.Store
	BoatIMU *imu.BoatIMU
	Sensors *fusion.Sensors
	Servo   *servo.Servo
	Tack    *tack.Tack
	Pilots  map[string]Pilot

	Version                 *values.Plain
	Features                *values.EnumSetting
	Mode                    *ModeProperty
	PreferredMode           *values.Property
	PreferredHeadingCommand *HeadingProperty
	LowWindLimit            *values.Plain
	HeadingCommand          *HeadingProperty
	Enabled                 *values.BooleanProperty
	SpeedMode               *values.EnumSetting
	PilotName               *values.EnumSetting

	Heading         *values.SensorValue
	HeadingError    *values.SensorValue
	HeadingErrorInt *values.SensorValue

	WindSpeed               *values.Plain
	WindAngle               *values.SensorValue
	WindDirection           *values.SensorValue
	WindDirectionSmoothed   *values.SensorValue
	TrueWindDirection       *values.SensorValue
	WindAngleSmoothed       *values.SensorValue
	WindSpeedSmoothed       *values.Plain
	TrueWindAngle           *values.SensorValue
	TrueWindSpeed           *values.Plain
	SmoothFactorWind        *values.RangeSetting
	WindNoiseReduction      *values.BooleanProperty
	WindAltitude            *values.Plain

	VMG       *values.Plain
	CMG       *values.Plain
	Timings   *values.SensorValue
	Timestamp *values.SensorValue

	lastMode            string
	lastEnabled         bool
	headingErrorIntTime time.Time
	startTime           time.Time

	watchdog *os.File
}

// New wires the full control loop together: all sensor fusion,
// servo driver, tack, and pilot components must already be
// constructed against st.
func New(st *store.Store, boatimu *imu.BoatIMU, sensors *fusion.Sensors, srv *servo.Servo, tk *tack.Tack, pilots map[string]Pilot, defaultPilot string) *Autopilot {
	a := &Autopilot{
		store:   st,
		BoatIMU: boatimu,
		Sensors: sensors,
		Servo:   srv,
		Tack:    tk,
		Pilots:  pilots,

		Version:  values.NewPlain("ap.version", "cypilot"),
		Features: values.NewEnumSetting("ap.features", "basic", []string{"basic", "advance", "development"}),

		PreferredMode: values.NewProperty("ap.preferred_mode", "compass"),
		LowWindLimit:  values.NewPlain("ap.low_wind_limit", 2.0),
		Enabled:       values.NewBooleanProperty("ap.enabled", false),
		SpeedMode:     values.NewEnumSetting("ap.speed_mode", "gps.speed", []string{"gps.speed", "sow.speed", "none"}),

		Heading:         values.NewSensorValue("ap.heading", values.Directional()),
		HeadingError:    values.NewSensorValue("ap.heading_error"),
		HeadingErrorInt: values.NewSensorValue("ap.heading_error_int"),

		WindSpeed:             values.NewPlain("ap.wind_speed", 0.0),
		WindAngle:             values.NewSensorValue("ap.wind_angle", values.Directional()),
		WindDirection:         values.NewSensorValue("ap.wind_direction", values.Directional()),
		WindDirectionSmoothed: values.NewSensorValue("ap.wind_direction_smoothed", values.Directional()),
		TrueWindDirection:     values.NewSensorValue("ap.true_wind_direction", values.Directional()),
		WindAngleSmoothed:     values.NewSensorValue("ap.wind_angle_smoothed", values.Directional()),
		WindSpeedSmoothed:     values.NewPlain("ap.wind_speed_smoothed", 0.0),
		TrueWindAngle:         values.NewSensorValue("ap.true_wind_angle", values.Directional()),
		TrueWindSpeed:         values.NewPlain("ap.true_wind_speed", 0.0),
		SmoothFactorWind:      values.NewRangeSetting("ap.smooth_factor_wind", 0.3, 0.01, 1, ""),
		WindNoiseReduction:    values.NewBooleanProperty("ap.wind_noise_reduction", false),
		WindAltitude:          values.NewPlain("ap.wind_altitude", 16.0),

		VMG:       values.NewPlain("ap.vmg", 0.0),
		CMG:       values.NewPlain("ap.cmg", 0.0),
		Timings:   values.NewSensorValue("ap.timings", values.WithFormat("%.3f")),
		Timestamp: values.NewSensorValue("ap.timestamp"),

		startTime:           time.Now(),
		headingErrorIntTime: time.Now(),
	}

	a.Mode = newModeProperty("ap.mode")
	a.Mode.ap = a
	a.PreferredHeadingCommand = newHeadingProperty("ap.preferred_heading_command", a.Mode)
	a.HeadingCommand = newHeadingProperty("ap.heading_command", a.Mode)

	names := make([]string, 0, len(pilots))
	for name := range pilots {
		names = append(names, name)
	}
	if _, ok := pilots[defaultPilot]; !ok && len(names) > 0 {
		defaultPilot = names[0]
	}
	a.PilotName = values.NewEnumSetting("ap.pilot", defaultPilot, names)

	for _, v := range []values.Value{
		a.Version, a.Features, a.Mode, a.PreferredMode, a.PreferredHeadingCommand, a.LowWindLimit,
		a.HeadingCommand, a.Enabled, a.SpeedMode, a.PilotName, a.Heading, a.HeadingError, a.HeadingErrorInt,
		a.WindSpeed, a.WindAngle, a.WindDirection, a.WindDirectionSmoothed, a.TrueWindDirection,
		a.WindAngleSmoothed, a.WindSpeedSmoothed, a.TrueWindAngle, a.TrueWindSpeed, a.SmoothFactorWind,
		a.WindNoiseReduction, a.WindAltitude, a.VMG, a.CMG, a.Timings, a.Timestamp,
	} {
		st.Register(v)
	}

	if f, err := os.OpenFile("/dev/watchdog0", os.O_WRONLY, 0); err == nil {
		a.watchdog = f
	} else {
		log.Printf("autopilot: warning: failed to open /dev/watchdog0, cannot stroke the watchdog")
	}

	a.lastMode = a.Mode.Get().(string)
	return a
}

// Close releases the watchdog device, writing the magic 'V' character
// that tells the kernel driver to disarm without rebooting.
func (a *Autopilot) Close() {
	if a.watchdog != nil {
		a.watchdog.WriteString("V")
		a.watchdog.Close()
	}
}

// adjustMode steers "ap.mode" towards what the selected pilot reports
// as the best achievable mode given current sensor availability,
// preserving the user's preferred heading command across the switch.
func (a *Autopilot) adjustMode(p Pilot) {
	newMode := p.BestMode(a.PreferredMode.Get().(string))
	mode := a.Mode.Get().(string)
	if mode == newMode {
		return
	}
	if a.lastMode == newMode {
		return
	}
	preferred := a.PreferredMode.Get().(string)
	switch {
	case a.lastMode == preferred:
		a.PreferredHeadingCommand.Set(a.HeadingCommand.Get())
		a.Mode.setInternal(newMode)
	case newMode == preferred:
		a.Mode.setInternal(newMode)
		a.HeadingCommand.Set(a.PreferredHeadingCommand.Get())
		a.lastMode = newMode
	default:
		a.Mode.setInternal(newMode)
	}
}

// adjustSpeedMode falls back to "none" or the other speed source when
// the one currently selected has no sensor behind it.
func (a *Autopilot) adjustSpeedMode() {
	gpsSource := a.Sensors.GPS.Source()
	sowSource := a.Sensors.SOW.Source()
	speedMode := a.SpeedMode.Get().(string)

	if gpsSource == "none" && sowSource == "none" && speedMode != "none" {
		a.SpeedMode.Set("none")
		return
	}
	if gpsSource == "none" && speedMode == "gps.speed" {
		a.SpeedMode.Set("sow.speed")
	} else if sowSource == "none" && speedMode == "sow.speed" {
		a.SpeedMode.Set("gps.speed")
	}
}

const msToKnots = 1.94384

// computeWind derives apparent/true wind angle, direction and speed
// from the latest wind reading, applying a single-pole smoothing
// filter and, with windNoiseReduction, a boat-motion correction that
// removes roll/pitch-rate contamination from a masthead sensor.
func (a *Autopilot) computeWind() {
	compass := a.boatimuFloat("imu.heading")
	roll := a.boatimuFloat("imu.roll")
	pitch := a.boatimuFloat("imu.pitch")
	rollRate := a.boatimuFloat("imu.rollrate")
	pitchRate := a.boatimuFloat("imu.pitchrate")
	smoothFactor := a.SmoothFactorWind.Get().(float64)
	noiseReduction := a.WindNoiseReduction.Get().(bool)
	altitude := a.WindAltitude.Get().(float64)

	if a.Sensors.Wind.Source() == "none" {
		a.WindSpeed.Set(0.0)
		a.WindAngle.Set(0.0)
		a.WindDirection.Set(0.0)
		a.TrueWindAngle.Set(0.0)
		a.TrueWindSpeed.Set(0.0)
		a.TrueWindDirection.Set(0.0)
		return
	}
	if !a.Sensors.Wind.Updated {
		return
	}
	a.Sensors.Wind.Updated = false

	windSpeed, _ := a.Sensors.Wind.Speed.Get().(float64)
	windAngle, _ := a.Sensors.Wind.Angle.Get().(float64)

	if noiseReduction {
		pitchLimit := math.Min(45, pitch)
		rollLimit := math.Min(45, roll)
		fw := (math.Cos(windAngle*math.Pi/180)*windSpeed + msToKnots*2*math.Pi*altitude*(pitchRate/360)) / math.Cos(pitchLimit*math.Pi/180)
		lw := (math.Sin(windAngle*math.Pi/180)*windSpeed - msToKnots*2*math.Pi*altitude*(rollRate/360)) / math.Cos(rollLimit*math.Pi/180)
		windAngle = math.Atan2(lw, fw) * 180 / math.Pi
		windSpeed = math.Hypot(lw, fw)
	}

	a.WindSpeed.Set(windSpeed)
	a.WindAngle.Set(windAngle)
	a.WindDirection.Set(resolv.Resolv360(compass, -windAngle))

	windSpeedSmoothed := a.WindSpeedSmoothed.Get().(float64)
	a.WindSpeedSmoothed.Set((1-smoothFactor)*windSpeedSmoothed + smoothFactor*windSpeed)

	windAngleSmoothed, _ := a.WindAngleSmoothed.Get().(float64)
	windAngleSmoothed = (1-smoothFactor)*windAngleSmoothed + smoothFactor*windAngle
	windAngleSmoothed = resolv.Resolv180(windAngleSmoothed, 0)
	a.WindAngleSmoothed.Set(windAngleSmoothed)

	windDirection := resolv.Resolv360(compass, -windAngleSmoothed)
	a.WindDirectionSmoothed.Set(windDirection)

	if a.Sensors.GPS.Source() == "none" {
		a.TrueWindAngle.Set(0.0)
		a.TrueWindSpeed.Set(0.0)
		a.TrueWindDirection.Set(0.0)
		return
	}

	gpsSpeed, _ := a.Sensors.GPS.Speed.Get().(float64)
	gpsTrack, _ := a.Sensors.GPS.Track.Get().(float64)
	trueWindDir, trueWindSpeed := computeTrueWind(gpsSpeed, gpsTrack, windSpeed, windDirection)
	trueWindDir = resolv.Resolv360(trueWindDir, 0)
	trueWindAngle := resolv.Resolv180(compass, -trueWindDir)

	prevAngle, _ := a.TrueWindAngle.Get().(float64)
	a.TrueWindAngle.Set((1-smoothFactor)*prevAngle + smoothFactor*trueWindAngle)
	prevSpeed, _ := a.TrueWindSpeed.Get().(float64)
	a.TrueWindSpeed.Set((1-smoothFactor)*prevSpeed + smoothFactor*trueWindSpeed)
	prevDir, _ := a.TrueWindDirection.Get().(float64)
	a.TrueWindDirection.Set((1-smoothFactor)*prevDir + smoothFactor*trueWindDir)
}

// computeVMG derives velocity made good towards the true wind
// direction from boat speed over ground and heading.
func (a *Autopilot) computeVMG() {
	if a.Sensors.GPS.Source() == "none" || a.Sensors.Wind.Source() == "none" {
		a.VMG.Set(0.0)
		return
	}
	gpsSpeed, _ := a.Sensors.GPS.Speed.Get().(float64)
	trueWindDirection := a.TrueWindDirection.Get().(float64)
	compass := a.boatimuFloat("imu.heading")
	a.VMG.Set(math.Cos((trueWindDirection-compass)*math.Pi/180) * gpsSpeed)
}

// computeCMG derives velocity made good towards the commanded heading.
func (a *Autopilot) computeCMG() {
	if a.Sensors.GPS.Source() == "none" {
		a.CMG.Set(0.0)
		return
	}
	heading, _ := a.Heading.Get().(float64)
	headingCommand, _ := a.HeadingCommand.Get().(float64)
	gpsSpeed, _ := a.Sensors.GPS.Speed.Get().(float64)
	a.CMG.Set(math.Cos((headingCommand-heading)*math.Pi/180) * gpsSpeed)
}

// computeHeadingError computes the signed error between the current
// heading and heading_command, clamped to +-60 degrees, and its
// time-integral clamped to +-10, used as the pilot's P and I terms.
// On a mode change heading_command is set to heading minus the previous
// heading error, so the error carries over into the new mode; entering
// rudder angle mode sets heading_command to heading.
func (a *Autopilot) computeHeadingError(t time.Time) {
	heading, _ := a.Heading.Get().(float64)
	mode := a.Mode.Get().(string)
	ruddermode := mode == "rudder angle"

	if mode != a.lastMode {
		err, _ := a.HeadingError.Get().(float64)
		if ruddermode {
			a.HeadingCommand.Set(heading)
		} else {
			a.HeadingCommand.Set(heading - err)
		}
		a.lastMode = mode
	}

	headingCommand, _ := a.HeadingCommand.Get().(float64)
	err := minmax(resolv.Resolv(heading-headingCommand, 0), 60)
	a.HeadingError.Set(err)

	dt := t.Sub(a.headingErrorIntTime).Seconds()
	if dt > 1 {
		dt = 1
	}
	a.headingErrorIntTime = t
	prevInt, _ := a.HeadingErrorInt.Get().(float64)
	a.HeadingErrorInt.Set(minmax(prevInt+err/10*dt, 10))
}

func (a *Autopilot) boatimuFloat(name string) float64 {
	v := a.store.Lookup(name)
	if v == nil {
		return 0
	}
	f, _ := v.Get().(float64)
	return f
}

// Iteration runs one full control-loop cycle: read IMU, poll sensors,
// compute wind/VMG/mode/heading, run the tack state machine and
// selected pilot, poll the servo, and stroke the watchdog.
func (a *Autopilot) Iteration() error {
	t0 := time.Now()
	if err := a.BoatIMU.Read(); err != nil {
		return err
	}

	t1 := time.Now()
	t2 := time.Now()
	a.Sensors.Poll()

	t3 := time.Now()
	a.adjustSpeedMode()
	a.computeWind()
	a.computeVMG()

	p := a.Pilots[a.PilotName.Get().(string)]
	if p != nil {
		a.adjustMode(p)
		p.ComputeHeading()
	}
	a.computeCMG()

	a.Tack.Process()
	a.computeHeadingError(t0)

	reset := false
	enabled := a.Enabled.Get().(bool)
	if enabled != a.lastEnabled {
		a.lastEnabled = enabled
		if enabled {
			a.HeadingErrorInt.Set(0.0)
			reset = true
		}
	}

	if p != nil {
		p.Process(reset)
	}
	a.Servo.SetAutopilotEngaged(enabled)

	t4 := time.Now()
	a.Servo.Poll()
	t5 := time.Now()

	a.Timings.Set([]float64{
		t1.Sub(t0).Seconds(), t2.Sub(t1).Seconds(), t3.Sub(t2).Seconds(),
		t4.Sub(t3).Seconds(), t5.Sub(t4).Seconds(), t5.Sub(t1).Seconds(),
	})
	a.Timestamp.Set(t1.Sub(a.startTime).Seconds())

	if a.watchdog != nil {
		a.watchdog.WriteString("c")
	}

	rate := a.BoatIMU.Rate.Get().(string)
	rateHz, _ := parseRate(rate)
	if rateHz > 0 {
		period := 1 / rateHz
		apTime := t5.Sub(t1).Seconds()
		imuTime := t1.Sub(t0).Seconds()
		if apTime > period {
			log.Printf("autopilot: processing time %.2f > %.2f: sensors=%.2f pilot=%.2f servo=%.2f",
				apTime, period, t3.Sub(t2).Seconds(), t4.Sub(t3).Seconds(), t5.Sub(t4).Seconds())
		}
		if imuTime > period*1.5 {
			log.Printf("autopilot: IMU report long delay, device seems too slow: delay=%.2f period=%.2f", imuTime, period)
		} else if imuTime < 0.02 {
			log.Printf("autopilot: IMU report short delay, processor seems too busy: delay=%.2f period=%.2f", imuTime, period)
		}
	}
	return nil
}

func parseRate(rate string) (float64, bool) {
	switch rate {
	case "10":
		return 10, true
	case "20":
		return 20, true
	}
	return 0, false
}
