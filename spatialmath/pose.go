package spatialmath

import (
	"fmt"

	"github.com/golang/geo/r3"
)

// Pose represents a 6dof pose, position and orientation, with respect to the origin.
// The Point() method returns the position in (x,y,z) meters.
type Pose interface {
	Point() r3.Vector
	Orientation() Orientation
}

type pose struct {
	point       r3.Vector
	orientation Orientation
}

// NewZeroPose returns a pose at (0,0,0) with same orientation as whatever frame it is placed in.
func NewZeroPose() Pose {
	return &pose{orientation: NewZeroOrientation()}
}

// NewPose takes in a position and orientation and returns a Pose. A nil orientation is treated as
// no rotation.
func NewPose(p r3.Vector, o Orientation) Pose {
	if o == nil {
		o = NewZeroOrientation()
	}
	return &pose{point: p, orientation: o}
}

func (p *pose) Point() r3.Vector {
	return p.point
}

func (p *pose) Orientation() Orientation {
	return p.orientation
}

func (p *pose) String() string {
	ea := p.orientation.EulerAngles()
	return fmt.Sprintf("{X:%.3f Y:%.3f Z:%.3f Yaw:%.4f}", p.point.X, p.point.Y, p.point.Z, ea.Yaw)
}

// PoseAlmostEqual will return a bool describing whether 2 poses are approximately the same.
func PoseAlmostEqual(a, b Pose) bool {
	return PoseAlmostEqualEps(a, b, 1e-8)
}

// PoseAlmostEqualEps will return a bool describing whether 2 poses are approximately the same.
func PoseAlmostEqualEps(a, b Pose, epsilon float64) bool {
	return PoseAlmostCoincidentEps(a, b, epsilon) && OrientationAlmostEqual(a.Orientation(), b.Orientation())
}

// PoseAlmostCoincidentEps will return a bool describing whether 2 poses approximately are at the
// same 3D coordinate location, using the passed in epsilon value.
func PoseAlmostCoincidentEps(a, b Pose, epsilon float64) bool {
	return a.Point().Sub(b.Point()).Norm() < epsilon
}
