package referenceframe

import (
	"fmt"

	"go.viam.com/navbridge/spatialmath"
)

// PoseInFrame is a data structure that packages a pose with the name of the
// frame in which it was observed.
type PoseInFrame struct {
	frame string
	pose  spatialmath.Pose
}

// NewPoseInFrame generates a new PoseInFrame.
func NewPoseInFrame(frame string, pose spatialmath.Pose) *PoseInFrame {
	return &PoseInFrame{
		frame: frame,
		pose:  pose,
	}
}

// FrameName returns the name of the frame in which the pose was observed.
func (pF *PoseInFrame) FrameName() string {
	return pF.frame
}

// Pose returns the pose that was observed.
func (pF *PoseInFrame) Pose() spatialmath.Pose {
	return pF.pose
}

func (pF *PoseInFrame) String() string {
	return fmt.Sprintf("%s@%v", pF.frame, pF.pose)
}
