// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package servo

import "github.com/relabs-tech/cypilot/internal/values"

// LowerRangeSetting is the floor half of a coupled min/max pair
// (max_slew_speed/max_slew_slow, speed.min/speed.max): raising it above
// its paired ceiling drags the ceiling up with it.
type LowerRangeSetting struct {
	values.RangeSetting
	ceiling *UpperRangeSetting
}

// NewLowerRangeSetting creates the floor setting of a coupled pair.
// Pair it with NewUpperRangeSetting once both exist.
func NewLowerRangeSetting(name string, initial, min, max float64, units string) *LowerRangeSetting {
	return &LowerRangeSetting{RangeSetting: *values.NewRangeSetting(name, initial, min, max, units)}
}

func (l *LowerRangeSetting) Set(v any) {
	l.RangeSetting.Set(v)
	if l.ceiling != nil {
		if cur, ok := l.Get().(float64); ok {
			if ceil, ok2 := l.ceiling.Get().(float64); ok2 && cur > ceil {
				l.ceiling.Set(cur)
			}
		}
	}
}

// UpperRangeSetting is the ceiling half of a coupled min/max pair: it
// refuses to go below its paired floor, clamping up to it instead.
type UpperRangeSetting struct {
	values.RangeSetting
	floor *LowerRangeSetting
}

// NewUpperRangeSetting creates the ceiling setting and binds floor as
// its paired lower bound, completing the coupling both directions.
func NewUpperRangeSetting(name string, initial, min, max float64, units string, floor *LowerRangeSetting) *UpperRangeSetting {
	u := &UpperRangeSetting{RangeSetting: *values.NewRangeSetting(name, initial, min, max, units), floor: floor}
	floor.ceiling = u
	return u
}

func (u *UpperRangeSetting) Set(v any) {
	f, ok := toFloatArg(v)
	if ok {
		if floorVal, ok2 := u.floor.Get().(float64); ok2 && f < floorVal {
			v = floorVal
		}
	}
	u.RangeSetting.Set(v)
}

func toFloatArg(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	}
	return 0, false
}
