// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package quaternion implements the small set of quaternion operations
// the IMU fusion pipeline needs: building a rotation from an
// angle/axis or from one vector onto another, composing rotations,
// rotating a vector, and converting to/from Euler angles.
package quaternion

import "math"

// Quaternion is [w, x, y, z].
type Quaternion [4]float64

// Vector is a 3-space vector.
type Vector [3]float64

func norm(v Vector) float64 {
	return math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
}

func dot(a, b Vector) float64 {
	return a[0]*b[0] + a[1]*b[1] + a[2]*b[2]
}

func cross(a, b Vector) Vector {
	return Vector{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

// AngVec2Quat builds the quaternion that rotates by angle (radians)
// about axis v.
func AngVec2Quat(angle float64, v Vector) Quaternion {
	n := norm(v)
	fac := 0.0
	if n != 0 {
		fac = math.Sin(angle/2) / n
	}
	return Quaternion{math.Cos(angle / 2), v[0] * fac, v[1] * fac, v[2] * fac}
}

// Angle returns the rotation angle (radians) encoded by q.
func Angle(q Quaternion) float64 {
	return 2 * math.Acos(q[0])
}

// Vec2Vec2Quat builds the quaternion that rotates vector a onto b.
func Vec2Vec2Quat(a, b Vector) Quaternion {
	n := cross(a, b)
	fac := dot(a, b) / norm(a) / norm(b)
	fac = math.Min(math.Max(fac, -1), 1)
	ang := math.Acos(fac)
	return AngVec2Quat(ang, n)
}

// Multiply composes two rotations, q1 applied after q2.
func Multiply(q1, q2 Quaternion) Quaternion {
	return Quaternion{
		q1[0]*q2[0] - q1[1]*q2[1] - q1[2]*q2[2] - q1[3]*q2[3],
		q1[0]*q2[1] + q1[1]*q2[0] + q1[2]*q2[3] - q1[3]*q2[2],
		q1[0]*q2[2] - q1[1]*q2[3] + q1[2]*q2[0] + q1[3]*q2[1],
		q1[0]*q2[3] + q1[1]*q2[2] - q1[2]*q2[1] + q1[3]*q2[0],
	}
}

// RotVecQuat rotates vector v by quaternion q.
func RotVecQuat(v Vector, q Quaternion) Vector {
	w := Quaternion{0, v[0], v[1], v[2]}
	r := Conjugate(q)
	p := Multiply(Multiply(q, w), r)
	return Vector{p[1], p[2], p[3]}
}

// ToEuler decomposes q into roll, pitch, heading (radians), the same
// rotation order the original BNO08x fusion pipeline assumes.
func ToEuler(q Quaternion) (roll, pitch, heading float64) {
	roll = math.Atan2(2*(q[2]*q[3]+q[0]*q[1]), 1-2*(q[1]*q[1]+q[2]*q[2]))
	pitch = math.Asin(clamp(2*(q[0]*q[2]-q[1]*q[3]), -1, 1))
	heading = math.Atan2(2*(q[1]*q[2]+q[0]*q[3]), 1-2*(q[2]*q[2]+q[3]*q[3]))
	return
}

// ToQuaternion composes roll, pitch, heading (radians) into a quaternion.
func ToQuaternion(roll, pitch, heading float64) Quaternion {
	rsin, rcos := math.Sin(roll/2), math.Cos(roll/2)
	psin, pcos := math.Sin(pitch/2), math.Cos(pitch/2)
	hsin, hcos := math.Sin(heading/2), math.Cos(heading/2)

	return Quaternion{
		rcos*pcos*hcos + rsin*psin*hsin,
		rsin*pcos*hcos - rcos*psin*hsin,
		rcos*psin*hcos + rsin*pcos*hsin,
		rcos*pcos*hsin - rsin*psin*hcos,
	}
}

// Conjugate returns the inverse rotation of a unit quaternion.
func Conjugate(q Quaternion) Quaternion {
	return Quaternion{q[0], -q[1], -q[2], -q[3]}
}

// Normalize scales q to unit length, returning q unchanged if it is
// already zero.
func Normalize(q Quaternion) Quaternion {
	total := 0.0
	for _, v := range q {
		total += v * v
	}
	d := math.Sqrt(total)
	if d == 0 {
		return q
	}
	return Quaternion{q[0] / d, q[1] / d, q[2] / d, q[3] / d}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
