// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package imu

import (
	"fmt"
	"math"
	"time"

	"github.com/relabs-tech/cypilot/internal/quaternion"
	"github.com/relabs-tech/cypilot/internal/store"
	"github.com/relabs-tech/cypilot/internal/values"
)

// QuaternionValue is a ResettableValue that normalizes whatever
// quaternion it's given (imu.alignmentQ).
type QuaternionValue struct {
	values.ResettableValue
}

// NewQuaternionValue returns a resettable alignment quaternion value
// starting at initial.
func NewQuaternionValue(name string, initial quaternion.Quaternion) *QuaternionValue {
	return &QuaternionValue{ResettableValue: *values.NewResettableValue(name, initial)}
}

func (q *QuaternionValue) Set(v any) {
	switch t := v.(type) {
	case quaternion.Quaternion:
		v = quaternion.Normalize(t)
	case []float64:
		if len(t) == 4 {
			v = quaternion.Normalize(quaternion.Quaternion{t[0], t[1], t[2], t[3]})
		}
	case []any:
		if quat, ok := quatFromList(t); ok {
			v = quaternion.Normalize(quat)
		}
	}
	q.ResettableValue.Set(v)
}

func (q *QuaternionValue) Msg() string {
	if quat, ok := q.Get().(quaternion.Quaternion); ok {
		return fmt.Sprintf("[%.8f, %.8f, %.8f, %.8f]", quat[0], quat[1], quat[2], quat[3])
	}
	return q.ResettableValue.Msg()
}

// quatFromList converts a JSON-decoded 4-element list into a
// quaternion, the form a wire write of imu.alignmentQ arrives in.
func quatFromList(list []any) (quaternion.Quaternion, bool) {
	if len(list) != 4 {
		return quaternion.Quaternion{}, false
	}
	var out quaternion.Quaternion
	for i, item := range list {
		f, ok := item.(float64)
		if !ok {
			return quaternion.Quaternion{}, false
		}
		out[i] = f
	}
	return out, true
}

// BoatIMU fuses raw device samples into boat orientation: roll, pitch,
// heading (magnetic + deviation-corrected), heel (low-pass filtered
// roll), and the gyro-derived rate channels, applying the installation
// alignment quaternion derived during the alignment procedure.
type BoatIMU struct {
	device    Device
	deviation [360]int

	Rate             *values.EnumProperty
	AlignmentQ       *QuaternionValue
	HeadingOffset    *values.RangeProperty
	AlignmentCounter *values.Property

	AccelX, AccelY, AccelZ *values.SensorValue
	Pitch, Roll            *values.SensorValue
	PitchRate, RollRate    *values.SensorValue
	HeadingRate, Heel      *values.SensorValue
	Heading                *values.SensorValue
	FusionQPose            *values.SensorValue

	heel             float64
	alignmentPose    quaternion.Quaternion
	lastAlignmentCnt float64
	lastHeadingOff   float64
	lastAlignmentQ   quaternion.Quaternion
	haveLast         bool
	lastRead         time.Time
}

// NewBoatIMU constructs the fusion pipeline, registers its values
// under "imu.*", and loads the heading deviation table from
// deviationPath (created with defaults if absent).
func NewBoatIMU(st *store.Store, device Device, deviationPath string) *BoatIMU {
	b := &BoatIMU{
		device:           device,
		deviation:        ReadDeviation(deviationPath),
		Rate:             values.NewEnumProperty("imu.rate", "10", []string{"10", "20"}),
		HeadingOffset:    values.NewRangeProperty("imu.heading_offset", 0, -180, 180),
		AlignmentCounter: values.NewProperty("imu.alignmentCounter", 0.0),
		AccelX:           values.NewSensorValue("imu.accel_X"),
		AccelY:           values.NewSensorValue("imu.accel_Y"),
		AccelZ:           values.NewSensorValue("imu.accel_Z"),
		Pitch:            values.NewSensorValue("imu.pitch"),
		Roll:             values.NewSensorValue("imu.roll"),
		PitchRate:        values.NewSensorValue("imu.pitchrate"),
		RollRate:         values.NewSensorValue("imu.rollrate"),
		HeadingRate:      values.NewSensorValue("imu.headingrate"),
		Heel:             values.NewSensorValue("imu.heel"),
		Heading:          values.NewSensorValue("imu.heading", values.Directional()),
		FusionQPose:      values.NewSensorValue("imu.fusionQPose", values.WithFormat("%.8f")),
		lastAlignmentCnt: -1,
		lastHeadingOff:   3000, // invalid, forces the first read() to realign
	}
	b.AlignmentQ = NewQuaternionValue("imu.alignmentQ", quaternion.Quaternion{1, 0, 0, 0})

	for _, v := range []values.Value{
		b.Rate, b.AlignmentQ, b.HeadingOffset, b.AlignmentCounter, b.AccelX, b.AccelY, b.AccelZ,
		b.Pitch, b.Roll, b.PitchRate, b.RollRate, b.HeadingRate, b.Heel, b.Heading, b.FusionQPose,
	} {
		st.Register(v)
	}
	return b
}

// UpdateAlignment derives a new alignment quaternion from q so that
// its heading component matches HeadingOffset, the way the alignment
// wizard commits a freshly-measured installation pose.
func (b *BoatIMU) UpdateAlignment(q quaternion.Quaternion) {
	a2 := 2 * math.Atan2(q[3], q[0])
	headingOffset := a2 * 180 / math.Pi
	off := b.HeadingOffset.Get().(float64) - headingOffset
	o := quaternion.AngVec2Quat(off*math.Pi/180, quaternion.Vector{0, 0, 1})
	b.AlignmentQ.Set(quaternion.Normalize(quaternion.Multiply(q, o)))
}

// Read pulls the next sample off the device, applies the alignment
// quaternion and deviation table, updates every registered sensor
// value, and advances the alignment-capture countdown if active.
func (b *BoatIMU) Read() error {
	sample, err := b.device.Read()
	if err != nil {
		return err
	}
	b.lastRead = time.Now()

	alignQ, _ := b.AlignmentQ.Get().(quaternion.Quaternion)
	pAligned := quaternion.Normalize(quaternion.Multiply(sample.FusionQPose, alignQ))
	roll, pitch, heading := quaternion.ToEuler(pAligned)
	roll, pitch, heading = roll*180/math.Pi, pitch*180/math.Pi, heading*180/math.Pi

	rollRate := sample.Gyro[0] * 180 / math.Pi
	pitchRate := sample.Gyro[1] * 180 / math.Pi
	headingRate := sample.Gyro[2] * 180 / math.Pi

	if heading < 0 {
		heading += 360
	}
	idx := int(heading)
	if idx < 0 {
		idx = 0
	}
	if idx > 359 {
		idx = 359
	}
	heading += float64(b.deviation[idx])

	b.heel = roll*0.03 + b.heel*0.97

	b.AccelX.Set(sample.Accel[0])
	b.AccelY.Set(sample.Accel[1])
	b.AccelZ.Set(sample.Accel[2])
	b.Pitch.Set(pitch)
	b.Roll.Set(roll)
	b.PitchRate.Set(pitchRate)
	b.RollRate.Set(rollRate)
	b.HeadingRate.Set(headingRate)
	b.Heel.Set(b.heel)
	b.Heading.Set(heading)
	b.FusionQPose.Set(sample.FusionQPose[:])

	b.advanceAlignment(pAligned)

	headingOff := b.HeadingOffset.Get().(float64)
	curAlignQ, _ := b.AlignmentQ.Get().(quaternion.Quaternion)
	if headingOff != b.lastHeadingOff || !b.haveLast || curAlignQ != b.lastAlignmentQ {
		b.UpdateAlignment(curAlignQ)
		b.lastHeadingOff = headingOff
		b.lastAlignmentQ = curAlignQ
		b.haveLast = true
	}
	return nil
}

func (b *BoatIMU) advanceAlignment(pAligned quaternion.Quaternion) {
	counter := b.AlignmentCounter.Get().(float64)
	if counter != b.lastAlignmentCnt {
		b.alignmentPose = quaternion.Quaternion{}
	}
	if counter <= 0 {
		return
	}

	for i := range b.alignmentPose {
		b.alignmentPose[i] += pAligned[i]
	}
	b.AlignmentCounter.Set(counter - 1)

	if counter-1 == 0 {
		b.alignmentPose = quaternion.Normalize(b.alignmentPose)
		aDown := quaternion.RotVecQuat(quaternion.Vector{0, 0, 1}, quaternion.Conjugate(b.alignmentPose))
		alignment := quaternion.Vec2Vec2Quat(quaternion.Vector{0, 0, 1}, aDown)
		alignQ, _ := b.AlignmentQ.Get().(quaternion.Quaternion)
		alignment = quaternion.Multiply(alignQ, alignment)
		b.UpdateAlignment(alignment)
	}

	b.lastAlignmentCnt = counter
}
