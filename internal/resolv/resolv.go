// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package resolv normalizes angles into the ranges the autopilot's
// heading math depends on: signed error relative to an offset, or a
// fixed [0,360) / (-180,180] window.
package resolv

// Resolv returns angle wrapped to within half a turn of offset, the
// signed error of angle relative to offset. An angle exactly half a
// turn ahead of offset folds to the negative side.
func Resolv(angle, offset float64) float64 {
	for offset-angle > 180 {
		angle += 360
	}
	for offset-angle <= -180 {
		angle -= 360
	}
	return angle
}

// Resolv360 wraps angle+offset into [0, 360).
func Resolv360(angle, offset float64) float64 {
	angle += offset
	for angle >= 360 {
		angle -= 360
	}
	for angle < 0 {
		angle += 360
	}
	return angle
}

// Resolv180 wraps angle+offset into (-180, 180].
func Resolv180(angle, offset float64) float64 {
	angle += offset
	for angle > 180 {
		angle -= 360
	}
	for angle <= -180 {
		angle += 360
	}
	return angle
}
