package spatialmath

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func TestPoseAlmostEqual(t *testing.T) {
	p1 := NewPose(r3.Vector{X: 1, Y: -2}, NewYawOrientation(math.Pi/2))
	p2 := NewPose(r3.Vector{X: 1, Y: -2}, NewYawOrientation(math.Pi/2+2*math.Pi))
	test.That(t, PoseAlmostEqual(p1, p2), test.ShouldBeTrue)

	p3 := NewPose(r3.Vector{X: 1, Y: -2.1}, NewYawOrientation(math.Pi/2))
	test.That(t, PoseAlmostEqual(p1, p3), test.ShouldBeFalse)
	test.That(t, PoseAlmostEqualEps(p1, p3, 0.2), test.ShouldBeTrue)

	p4 := NewPose(r3.Vector{X: 1, Y: -2}, NewYawOrientation(-math.Pi/2))
	test.That(t, PoseAlmostEqual(p1, p4), test.ShouldBeFalse)
	test.That(t, PoseAlmostCoincidentEps(p1, p4, 1e-9), test.ShouldBeTrue)
}

func TestZeroPose(t *testing.T) {
	zero := NewZeroPose()
	test.That(t, zero.Point(), test.ShouldResemble, r3.Vector{})
	test.That(t, OrientationAlmostEqual(zero.Orientation(), NewZeroOrientation()), test.ShouldBeTrue)

	// A nil orientation is no rotation.
	atPoint := NewPose(r3.Vector{X: 3}, nil)
	test.That(t, atPoint.Point().X, test.ShouldEqual, 3.)
	test.That(t, atPoint.Orientation().Quaternion().Real, test.ShouldEqual, 1.)
}
