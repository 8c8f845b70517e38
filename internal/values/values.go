// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package values implements the tagged value hierarchy shared by every
// named item in the pilot's data store: sensor readings, writable
// properties, persistent settings, and booleans. Every concrete type
// knows how to format itself on the wire and how to describe itself for
// a "values=" listing.
package values

import (
	"fmt"
	"math"
	"strconv"
)

// Value is the common interface implemented by every registered item.
// Name is fixed at registration. Get/Set operate on the untyped
// representation a client would see; concrete types narrow what Set
// accepts.
type Value interface {
	Name() string
	Get() any
	// Set assigns a new value, applying whatever type coercion or range
	// clamping the concrete type requires. Invalid input is ignored,
	// matching the original's "ignore invalid value" behavior rather
	// than returning an error to the wire.
	Set(v any)
	// Update sets only if v differs from the current value.
	Update(v any)
	// Msg renders the current value the way it appears after "name=" on
	// the wire.
	Msg() string
	// Info describes the value's type/metadata for a "values=" listing.
	Info() map[string]any
	// Writable reports whether external clients may Set this value.
	Writable() bool
	// Persistent reports whether the store should snapshot this value
	// to disk.
	Persistent() bool
}

// base is embedded by every concrete value type.
type base struct {
	name       string
	value      any
	writable   bool
	persistent bool
	info       map[string]any
	notify     func()
}

func newBase(name string, initial any, writable, persistent bool, typ string) base {
	info := map[string]any{"type": typ}
	if persistent {
		info["persistent"] = true
	}
	if writable {
		info["writable"] = true
	}
	return base{name: name, value: initial, writable: writable, persistent: persistent, info: info}
}

func (b *base) Name() string          { return b.name }
func (b *base) Get() any              { return b.value }
func (b *base) Writable() bool        { return b.writable }
func (b *base) Persistent() bool      { return b.persistent }
func (b *base) Info() map[string]any  { return b.info }
func (b *base) Update(v any) {
	if !equal(b.value, v) {
		b.setRaw(v)
	}
}
func (b *base) setRaw(v any) {
	b.value = v
	if b.notify != nil {
		b.notify()
	}
}

// SetNotify registers fn to run after every successful Set/Update. The
// store uses this to drive immediate (period-0) watch delivery without
// every concrete value type knowing anything about connections.
func (b *base) SetNotify(fn func()) { b.notify = fn }

func equal(a, b any) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case bool:
		return 0, false
	}
	return 0, false
}

// roundValue formats v the way the wire protocol renders sensor values:
// NaN as the string "nan", lists recursively, everything else via fmt.
func roundValue(v any, format string) string {
	switch t := v.(type) {
	case []float64:
		out := "["
		for i, item := range t {
			if i > 0 {
				out += ", "
			}
			out += roundValue(item, format)
		}
		return out + "]"
	case bool:
		if t {
			return "true"
		}
		return "false"
	case nil:
		return "null"
	case float64:
		if math.IsNaN(t) {
			return `"nan"`
		}
		return fmt.Sprintf(format, t)
	default:
		f, ok := toFloat(v)
		if ok {
			return fmt.Sprintf(format, f)
		}
		return fmt.Sprint(v)
	}
}

// Plain is a read-only informational value, the default item type
// (e.g. ap.low_wind_limit).
type Plain struct{ base }

// NewPlain creates a non-writable, non-persistent plain value.
func NewPlain(name string, initial any) *Plain {
	return &Plain{newBase(name, initial, false, false, "Value")}
}
func (p *Plain) Set(v any) { p.setRaw(v) }
func (p *Plain) Msg() string {
	if s, ok := p.value.(string); ok {
		return strconv.Quote(s)
	}
	return fmt.Sprint(p.value)
}

// TimeStamp is a plain numeric sensor timestamp (seconds, monotonic).
type TimeStamp struct{ base }

// NewTimeStamp creates a non-writable sensor timestamp value.
func NewTimeStamp(name string) *TimeStamp {
	return &TimeStamp{newBase(name, 0.0, false, false, "SensorValue")}
}
func (t *TimeStamp) Set(v any) { t.setRaw(v) }
func (t *TimeStamp) Msg() string {
	f, _ := toFloat(t.value)
	return fmt.Sprintf("%.3f", f)
}

// StringValue holds free text (e.g. ap.pilot, the active pilot name).
type StringValue struct{ base }

// NewStringValue creates a writable string value.
func NewStringValue(name, initial string) *StringValue {
	return &StringValue{newBase(name, initial, true, false, "StringValue")}
}
func (s *StringValue) Set(v any) {
	if str, ok := v.(string); ok {
		s.setRaw(str)
	}
}
func (s *StringValue) Msg() string {
	if b, ok := s.value.(bool); ok {
		if b {
			return "true"
		}
		return "false"
	}
	return strconv.Quote(fmt.Sprint(s.value))
}

// SensorValue is a read-only measurement, rounded to fmt on the wire.
// Directional values (e.g. heading) are flagged in Info so a UI knows
// to wrap them modulo 360 rather than average them naively.
type SensorValue struct {
	base
	format      string
	directional bool
}

// SensorValueOption configures a SensorValue at registration.
type SensorValueOption func(*SensorValue)

// WithFormat overrides the default "%.3f" wire format.
func WithFormat(format string) SensorValueOption {
	return func(s *SensorValue) { s.format = format }
}

// Directional marks the value as an angle that wraps at 360 degrees.
func Directional() SensorValueOption {
	return func(s *SensorValue) {
		s.directional = true
		s.info["directional"] = true
	}
}

// NewSensorValue creates a read-only sensor value.
func NewSensorValue(name string, opts ...SensorValueOption) *SensorValue {
	s := &SensorValue{base: newBase(name, false, false, false, "SensorValue"), format: "%.3f"}
	for _, opt := range opts {
		opt(s)
	}
	return s
}
func (s *SensorValue) Set(v any)    { s.setRaw(v) }
func (s *SensorValue) Msg() string  { return roundValue(s.value, s.format) }
func (s *SensorValue) Directional() bool { return s.directional }

// Property is a writable value with no further constraint, e.g.
// ap.servo.flags_ack.
type Property struct{ base }

// NewProperty creates a writable, non-persistent property.
func NewProperty(name string, initial any) *Property {
	return &Property{newBase(name, initial, true, false, "Property")}
}
func (p *Property) Set(v any) { p.setRaw(v) }
func (p *Property) Msg() string {
	if s, ok := p.value.(string); ok {
		return strconv.Quote(s)
	}
	return fmt.Sprint(p.value)
}

// ResettableValue reverts to its initial value whenever it is set to a
// falsy value (zero, empty, nil) — used by imu.alignmentQ so clients can
// trigger a reset by writing zero.
type ResettableValue struct {
	Property
	initial any
}

// NewResettableValue creates a resettable property.
func NewResettableValue(name string, initial any) *ResettableValue {
	r := &ResettableValue{Property: Property{newBase(name, initial, true, false, "ResettableValue")}, initial: initial}
	return r
}
func (r *ResettableValue) Set(v any) {
	if isFalsy(v) {
		v = r.initial
	}
	r.setRaw(v)
}

func isFalsy(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case bool:
		return !t
	case float64:
		return t == 0
	case string:
		return t == ""
	case []float64:
		return len(t) == 0
	}
	return false
}

// RangeProperty is a writable numeric value clamped to [Min, Max].
// Values outside the range, or that fail to parse as a number, are
// silently ignored rather than erroring, matching the wire protocol's
// best-effort semantics.
type RangeProperty struct {
	base
	Min, Max float64
}

// NewRangeProperty creates a writable, non-persistent ranged value.
func NewRangeProperty(name string, initial, min, max float64) *RangeProperty {
	r := &RangeProperty{base: newBase(name, initial, true, false, "RangeProperty"), Min: min, Max: max}
	r.info["min"] = min
	r.info["max"] = max
	return r
}
func (r *RangeProperty) Set(v any) {
	f, ok := coerceFloat(v)
	if !ok || f < r.Min || f > r.Max {
		return
	}
	r.setRaw(f)
}
func (r *RangeProperty) Msg() string {
	f, _ := toFloat(r.value)
	return fmt.Sprintf("%.4f", f)
}

// SetMax lowers Max, clamping the current value down with it if needed.
func (r *RangeProperty) SetMax(max float64) {
	if f, ok := toFloat(r.value); ok && f > max {
		r.setRaw(max)
	}
	r.Max = max
	r.info["max"] = max
}

func coerceFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// RangeSetting is a RangeProperty that persists across restarts and
// carries a unit string for display.
type RangeSetting struct {
	RangeProperty
	Units string
}

// NewRangeSetting creates a persistent ranged value.
func NewRangeSetting(name string, initial, min, max float64, units string) *RangeSetting {
	r := &RangeSetting{RangeProperty: *NewRangeProperty(name, initial, min, max), Units: units}
	r.persistent = true
	r.info["type"] = "RangeSetting"
	r.info["persistent"] = true
	r.info["units"] = units
	return r
}

// EnumProperty is a writable value constrained to a fixed set of
// choices. Numeric choices are compared by float equivalence (10 == "10.0"),
// everything else by string equality, mirroring the original's dual
// comparison rule.
type EnumProperty struct {
	base
	Choices []string
}

// NewEnumProperty creates a writable, non-persistent enum value.
func NewEnumProperty(name, initial string, choices []string) *EnumProperty {
	e := &EnumProperty{base: newBase(name, initial, true, false, "EnumProperty"), Choices: choices}
	e.info["choices"] = choices
	return e
}
func (e *EnumProperty) Set(v any) {
	s := fmt.Sprint(v)
	for _, choice := range e.Choices {
		if cf, err1 := strconv.ParseFloat(choice, 64); err1 == nil {
			if sf, err2 := strconv.ParseFloat(s, 64); err2 == nil && cf == sf {
				e.setRaw(v)
				return
			}
			continue
		}
		if choice == s {
			e.setRaw(v)
			return
		}
	}
}
func (e *EnumProperty) Msg() string { return strconv.Quote(fmt.Sprint(e.value)) }

// EnumSetting is a persistent EnumProperty.
type EnumSetting struct{ EnumProperty }

// NewEnumSetting creates a persistent enum value.
func NewEnumSetting(name, initial string, choices []string) *EnumSetting {
	e := &EnumSetting{EnumProperty: *NewEnumProperty(name, initial, choices)}
	e.persistent = true
	e.info["type"] = "EnumSetting"
	e.info["persistent"] = true
	return e
}

// BooleanValue is a read-only boolean, e.g. servo fault flags.
type BooleanValue struct{ base }

// NewBooleanValue creates a non-writable boolean value.
func NewBooleanValue(name string, initial bool) *BooleanValue {
	return &BooleanValue{newBase(name, initial, false, false, "BooleanValue")}
}
func (b *BooleanValue) Set(v any) { b.setRaw(v) }
func (b *BooleanValue) Msg() string {
	if t, _ := b.value.(bool); t {
		return "true"
	}
	return "false"
}

// BooleanProperty is a writable boolean, e.g. ap.enabled.
type BooleanProperty struct{ BooleanValue }

// NewBooleanProperty creates a writable, non-persistent boolean.
func NewBooleanProperty(name string, initial bool) *BooleanProperty {
	b := &BooleanProperty{BooleanValue: BooleanValue{newBase(name, initial, true, false, "BooleanProperty")}}
	return b
}
func (b *BooleanProperty) Set(v any) {
	switch t := v.(type) {
	case bool:
		b.setRaw(t)
	case string:
		b.setRaw(t == "true" || t == "1")
	case float64:
		b.setRaw(t != 0)
	}
}

// BooleanSetting is a persistent BooleanProperty.
type BooleanSetting struct{ BooleanProperty }

// NewBooleanSetting creates a persistent boolean.
func NewBooleanSetting(name string, initial bool) *BooleanSetting {
	b := &BooleanSetting{BooleanProperty: *NewBooleanProperty(name, initial)}
	b.persistent = true
	b.info["type"] = "BooleanSetting"
	b.info["persistent"] = true
	return b
}
