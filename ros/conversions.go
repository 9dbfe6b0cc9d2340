package ros

import (
	"github.com/golang/geo/r3"

	"go.viam.com/navbridge/spatialmath"
	"go.viam.com/navbridge/utils"
)

// CovarianceUnknown is the covariance published when the localizer cannot say how certain it is:
// a -1 in the first element marks the matrix as unavailable rather than as perfect certainty.
func CovarianceUnknown() [36]float64 {
	var cov [36]float64
	cov[0] = -1
	return cov
}

// IsCovarianceUnknown reports whether cov carries the unavailable marker.
func IsCovarianceUnknown(cov [36]float64) bool {
	return cov[0] < 0
}

// ToSpatial converts the message to a pose. The quaternion is normalized on the way in.
func (p Pose) ToSpatial() spatialmath.Pose {
	q := p.Orientation
	return spatialmath.NewPose(
		r3.Vector{X: p.Position.X, Y: p.Position.Y, Z: p.Position.Z},
		spatialmath.NewQuaternion(q.W, q.X, q.Y, q.Z),
	)
}

// PoseFromSpatial converts a pose to its message form.
func PoseFromSpatial(p spatialmath.Pose) Pose {
	pt := p.Point()
	q := p.Orientation().Quaternion()
	return Pose{
		Position:    Point{X: pt.X, Y: pt.Y, Z: pt.Z},
		Orientation: Quaternion{X: q.Imag, Y: q.Jmag, Z: q.Kmag, W: q.Real},
	}
}

// Finite reports whether every number in the pose is finite.
func (p Pose) Finite() bool {
	return utils.AllFinite(p.Position.X, p.Position.Y, p.Position.Z,
		p.Orientation.X, p.Orientation.Y, p.Orientation.Z, p.Orientation.W)
}
