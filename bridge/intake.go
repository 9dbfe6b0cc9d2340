package bridge

import (
	"github.com/pkg/errors"

	"go.viam.com/navbridge/referenceframe"
	"go.viam.com/navbridge/ros"
)

// SetInitialPose makes the localizer adopt msg as the robot's true pose. The covariance is
// ignored and any finite pose is accepted. The robot lock is not taken; the localizer
// synchronizes itself.
func (n *Node) SetInitialPose(msg ros.PoseWithCovarianceStamped) error {
	if n.isClosed() {
		return ErrClosed
	}
	n.logger.Infow("Init localization pose received", "frame_id", msg.Header.FrameID, "seq", msg.Header.Seq)
	if !msg.Pose.Pose.Finite() {
		return errors.Wrapf(ErrNonFinitePose, "%+v", msg.Pose.Pose)
	}
	correction := referenceframe.NewPoseInFrame(msg.Header.FrameID, msg.Pose.Pose.ToSpatial())
	if correction.FrameName() != n.frameID {
		n.logger.Debugw("initial pose frame differs from published frame, using it as is",
			"pose", correction.String(), "published_frame_id", n.frameID)
	}
	p := ToInternal(correction.Pose())
	if err := n.localizer.ForceUpdatePose(p); err != nil {
		return errors.Wrap(err, "forcing pose update")
	}
	return nil
}

func (n *Node) onInitialPose(msg ros.PoseWithCovarianceStamped) {
	if err := n.SetInitialPose(msg); err != nil {
		n.logger.Warnw("Rejected initial pose", "error", err)
	}
}
