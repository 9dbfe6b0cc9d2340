// Package spatialmath holds the orientation and pose types used to describe where a planar robot
// is in its map.
package spatialmath

import (
	"gonum.org/v1/gonum/num/quat"
)

// Orientation is an interface used to express the different parameterizations of the orientation
// of a rigid object or a frame of reference in 3D Euclidean space.
type Orientation interface {
	AxisAngles() *R4AA
	Quaternion() quat.Number
	EulerAngles() *EulerAngles
}

// NewZeroOrientation returns an orientatation which signifies no rotation.
func NewZeroOrientation() Orientation {
	return &quaternion{1, 0, 0, 0}
}

// NewYawOrientation returns a rotation of `yaw` radians about the vertical (+Z) axis. Roll and
// pitch are zero, which is all a planar robot can express.
func NewYawOrientation(yaw float64) Orientation {
	return &R4AA{Theta: yaw, RX: 0, RY: 0, RZ: 1}
}

// OrientationAlmostEqual will return a bool describing whether 2 poses have approximately the same orientation.
// Both covers of the rotation (q and -q) compare equal.
func OrientationAlmostEqual(o1, o2 Orientation) bool {
	return OrientationAlmostEqualEps(o1, o2, 1e-5)
}

// OrientationAlmostEqualEps is OrientationAlmostEqual with a caller supplied tolerance.
func OrientationAlmostEqualEps(o1, o2 Orientation, epsilon float64) bool {
	q1, q2 := o1.Quaternion(), o2.Quaternion()
	return QuaternionAlmostEqual(q1, q2, epsilon) || QuaternionAlmostEqual(q1, Flip(q2), epsilon)
}

