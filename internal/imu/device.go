// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package imu reads the fused orientation quaternion off the boat's
// inertial sensor, applies the installation-alignment correction and
// heading-deviation table, and publishes roll/pitch/heading/heel and
// gyro-rate sensor values.
package imu

import (
	"encoding/binary"
	"fmt"

	"periph.io/x/conn/v3/i2c"

	"github.com/relabs-tech/cypilot/internal/quaternion"
)

// bno08xAddr is the BNO08x's default 7-bit I2C address.
const bno08xAddr = 0x4A

// Sample is one fused reading off the device: orientation quaternion,
// angular rate (rad/s), and linear acceleration (g).
type Sample struct {
	FusionQPose quaternion.Quaternion
	Gyro        [3]float64
	Accel       [3]float64
}

// Device reads fused samples from the physical sensor.
type Device interface {
	Read() (Sample, error)
}

// i2cDevice talks to a BNO08x over the SHTP-over-I2C transport: each
// read pulls the latest rotation-vector and gyro/accel reports the
// sensor streams at its configured output rate.
type i2cDevice struct {
	dev i2c.Dev

	// last is the most recently decoded Sample, the starting point for
	// the next read.
	last Sample
}

// NewI2CDevice wraps an already-opened I2C bus at the BNO08x's address.
func NewI2CDevice(bus i2c.Bus) Device {
	return &i2cDevice{dev: i2c.Dev{Bus: bus, Addr: bno08xAddr}}
}

// Read pulls one SHTP report header plus payload and decodes whichever
// of the rotation-vector / gyroscope / accelerometer reports it carries.
// Reports not present in this cycle keep the previous Sample's values,
// since the sensor streams each at its own configured rate.
func (d *i2cDevice) Read() (Sample, error) {
	header := make([]byte, 4)
	if err := d.dev.Tx(nil, header); err != nil {
		return Sample{}, fmt.Errorf("imu: shtp header read: %w", err)
	}
	length := int(binary.LittleEndian.Uint16(header[:2])) &^ 0x8000
	if length < 4 {
		return Sample{}, fmt.Errorf("imu: short shtp frame (%d bytes)", length)
	}
	payload := make([]byte, length-4)
	if err := d.dev.Tx(nil, payload); err != nil {
		return Sample{}, fmt.Errorf("imu: shtp payload read: %w", err)
	}
	d.last = decodeSHTPReports(payload, d.last)
	return d.last, nil
}

// decodeSHTPReports walks a batch of SH-2 sensor reports, each prefixed
// by a one-byte report id, overwriting in s whichever quaternion/gyro/accel
// fields it finds. Q-point scaling follows the BNO08x datasheet:
// rotation vector Q14, gyroscope Q9 (rad/s), accelerometer Q8 (m/s^2).
func decodeSHTPReports(payload []byte, s Sample) Sample {
	const (
		reportRotationVector = 0x05
		reportGyroscope       = 0x02
		reportAccelerometer   = 0x01
	)
	for i := 0; i+1 < len(payload); {
		id := payload[i]
		switch id {
		case reportRotationVector:
			if i+14 > len(payload) {
				return s
			}
			i2, j, k, real := le16(payload, i+4), le16(payload, i+6), le16(payload, i+8), le16(payload, i+10)
			s.FusionQPose = quaternion.Quaternion{
				qscale(real, 14), qscale(i2, 14), qscale(j, 14), qscale(k, 14),
			}
			i += 14
		case reportGyroscope:
			if i+10 > len(payload) {
				return s
			}
			x, y, z := le16(payload, i+4), le16(payload, i+6), le16(payload, i+8)
			s.Gyro = [3]float64{qscale(x, 9), qscale(y, 9), qscale(z, 9)}
			i += 10
		case reportAccelerometer:
			if i+10 > len(payload) {
				return s
			}
			x, y, z := le16(payload, i+4), le16(payload, i+6), le16(payload, i+8)
			s.Accel = [3]float64{qscale(x, 8) / 9.80665, qscale(y, 8) / 9.80665, qscale(z, 8) / 9.80665}
			i += 10
		default:
			i++
		}
	}
	return s
}

func le16(b []byte, off int) int16 {
	return int16(binary.LittleEndian.Uint16(b[off : off+2]))
}

func qscale(v int16, q uint) float64 {
	return float64(v) / float64(int64(1)<<q)
}
