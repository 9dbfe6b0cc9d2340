package bridge

import (
	"github.com/golang/geo/r3"

	"go.viam.com/navbridge/arnl"
	"go.viam.com/navbridge/spatialmath"
	"go.viam.com/navbridge/utils"
)

const mmPerMeter = 1000.

// ToExternal converts an SDK pose (mm, degrees) into a pose in meters whose orientation is a pure
// rotation about +Z.
func ToExternal(p arnl.Pose) spatialmath.Pose {
	return spatialmath.NewPose(
		r3.Vector{X: p.X / mmPerMeter, Y: p.Y / mmPerMeter, Z: 0},
		spatialmath.NewYawOrientation(utils.DegToRad(p.Th)),
	)
}

// ToInternal converts a pose in meters back to SDK units. Only the yaw of the orientation is
// kept; the heading comes back in (-180, 180].
func ToInternal(p spatialmath.Pose) arnl.Pose {
	pt := p.Point()
	yaw := spatialmath.Yaw(p.Orientation().Quaternion())
	return arnl.Pose{
		X:  pt.X * mmPerMeter,
		Y:  pt.Y * mmPerMeter,
		Th: utils.NormalizeDeg(utils.RadToDeg(yaw)),
	}
}

// CovarianceFromVariance lays out the localizer's planar uncertainty as a 6x6 row-major pose
// covariance in m² and rad². The z, roll and pitch rows stay zero.
func CovarianceFromVariance(v arnl.Variance) [36]float64 {
	const mm2PerM2 = mmPerMeter * mmPerMeter
	radPerDeg := utils.DegToRad(1)

	var cov [36]float64
	cov[0] = v.XX / mm2PerM2
	cov[1] = v.XY / mm2PerM2
	cov[6] = v.XY / mm2PerM2
	cov[7] = v.YY / mm2PerM2
	cov[35] = v.ThTh * radPerDeg * radPerDeg
	return cov
}
