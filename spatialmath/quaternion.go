package spatialmath

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
)

type quaternion quat.Number

// NewQuaternion wraps a unit quaternion given as (w, x, y, z) into an Orientation. The input is
// normalized so that callers may pass slightly non-unit values read off the wire.
func NewQuaternion(w, x, y, z float64) Orientation {
	q := quaternion(Normalize(quat.Number{Real: w, Imag: x, Jmag: y, Kmag: z}))
	return &q
}

// Quaternion returns orientation in quaternion representation.
func (q *quaternion) Quaternion() quat.Number {
	return quat.Number(*q)
}

// AxisAngles returns the orientation in axis angle representation.
func (q *quaternion) AxisAngles() *R4AA {
	return QuatToR4AA(q.Quaternion())
}

// EulerAngles returns orientation in Euler angle representation.
func (q *quaternion) EulerAngles() *EulerAngles {
	return QuatToEulerAngles(q.Quaternion())
}

// Normalize scales a quaternion to unit length. The zero quaternion is mapped to the identity.
func Normalize(q quat.Number) quat.Number {
	norm := quat.Abs(q)
	if norm == 0 {
		return quat.Number{Real: 1}
	}
	return quat.Scale(1/norm, q)
}

// Flip will multiply a quaternion by -1, returning a quaternion representing the same orientation
// but in the opposing octant.
func Flip(q quat.Number) quat.Number {
	return quat.Number{Real: -q.Real, Imag: -q.Imag, Jmag: -q.Jmag, Kmag: -q.Kmag}
}

// QuaternionAlmostEqual is an equality test for all the float components of a quaternion. Quaternions have double coverage, q == -q, and
// this function will *not* account for this. Use OrientationAlmostEqual unless you're certain this is what you want.
func QuaternionAlmostEqual(a, b quat.Number, tol float64) bool {
	return math.Abs(a.Real-b.Real) < tol &&
		math.Abs(a.Imag-b.Imag) < tol &&
		math.Abs(a.Jmag-b.Jmag) < tol &&
		math.Abs(a.Kmag-b.Kmag) < tol
}

// QuatToR4AA converts a quat to an R4 axis angle in the same way the C++ Eigen library does.
// https://eigen.tuxfamily.org/dox/AngleAxis_8h_source.html
func QuatToR4AA(q quat.Number) *R4AA {
	denom := math.Hypot(q.Imag, math.Hypot(q.Jmag, q.Kmag))

	if denom < 1e-12 {
		return NewR4AA()
	}
	angle := 2 * math.Atan2(denom, math.Abs(q.Real))
	if q.Real < 0 {
		denom *= -1
	}
	return &R4AA{Theta: angle, RX: q.Imag / denom, RY: q.Jmag / denom, RZ: q.Kmag / denom}
}

// Yaw returns the rotation of `q` about the vertical axis in radians, in the range (-π, π].
func Yaw(q quat.Number) float64 {
	return math.Atan2(2*(q.Real*q.Kmag+q.Imag*q.Jmag), 1-2*(q.Jmag*q.Jmag+q.Kmag*q.Kmag))
}
