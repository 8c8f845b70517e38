// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package servo

import (
	"time"

	"github.com/relabs-tech/cypilot/internal/values"
)

// TimedProperty records the monotonic time of its last Set, so callers
// can tell how stale a command is (servo.position_command/servo.command).
type TimedProperty struct {
	values.Property
	At time.Time
}

// NewTimedProperty creates a writable property starting at zero.
func NewTimedProperty(name string) *TimedProperty {
	return &TimedProperty{Property: *values.NewProperty(name, 0.0)}
}

func (t *TimedProperty) Set(v any) {
	t.At = time.Now()
	t.Property.Set(v)
}

// TimeoutSensorValue is a SensorValue that reverts itself to false if
// it hasn't been refreshed in 8 seconds (controller/motor temperature
// readings, which stop arriving if the telemetry frame drops).
type TimeoutSensorValue struct {
	values.SensorValue
	At time.Time
}

// NewTimeoutSensorValue creates a read-only sensor value.
func NewTimeoutSensorValue(name string) *TimeoutSensorValue {
	return &TimeoutSensorValue{SensorValue: *values.NewSensorValue(name)}
}

func (t *TimeoutSensorValue) Set(v any) {
	t.At = time.Now()
	t.SensorValue.Set(v)
}

// Timeout reverts the value to false if it has gone stale.
func (t *TimeoutSensorValue) Timeout() {
	if v := t.Get(); v != nil && v != false && time.Since(t.At) > 8*time.Second {
		t.Set(false)
	}
}
