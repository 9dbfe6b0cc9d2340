// Package bridge connects an ARNL navigation system to ROS style topics and services: it publishes
// the localized pose and the motor state every sensor-interpretation cycle, accepts pose
// corrections, and offers commands to enable or disable the motors and relocalize.
package bridge

import (
	"context"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/navbridge/arnl"
	"go.viam.com/navbridge/logging"
	"go.viam.com/navbridge/pubsub"
	"go.viam.com/navbridge/referenceframe"
	"go.viam.com/navbridge/ros"
)

// Option configures optional behavior of a Node.
type Option func(*Node)

// WithClock makes the node stamp published poses with clk instead of the wall clock.
func WithClock(clk clock.Clock) Option {
	return func(n *Node) {
		n.clk = clk
	}
}

// WithFatalHandler replaces what happens when the publication cycle cannot publish. The default
// logs the error and exits the process, since the cycle runs on the SDK's thread and has no
// caller to report to. If handler returns, the cycle goes on with the remaining steps and the next
// cycle publishes again.
func WithFatalHandler(handler func(err error)) Option {
	return func(n *Node) {
		n.fatal = handler
	}
}

// Node is a running bridge.
type Node struct {
	robot     arnl.Robot
	localizer arnl.Localizer
	ps        pubsub.Node
	cfg       Config
	frameID   string
	logger    logging.Logger
	clk       clock.Clock
	fatal     func(err error)

	// Only touched by the publication cycle, which the SDK serializes under the robot lock.
	seq    uint32
	motors MotorStateTracker

	posePub        pubsub.Publisher
	motorsPub      pubsub.Publisher
	initialPoseSub pubsub.Subscription

	mu     sync.Mutex
	closed bool
}

// New advertises the node's topics and services on ps, subscribes to pose corrections and
// registers the publication cycle with the robot.
func New(
	robot arnl.Robot,
	localizer arnl.Localizer,
	ps pubsub.Node,
	cfg Config,
	logger logging.Logger,
	opts ...Option,
) (_ *Node, err error) {
	if err := cfg.Validate("bridge"); err != nil {
		return nil, err
	}
	n := &Node{
		robot:     robot,
		localizer: localizer,
		ps:        ps,
		cfg:       cfg,
		frameID:   cfg.ResolvedFrameID(),
		logger:    logger,
		clk:       clock.New(),
	}
	n.fatal = func(err error) {
		n.logger.Fatalw("cannot publish from sensor interpretation task", "error", err)
	}
	for _, opt := range opts {
		opt(n)
	}

	var undo []func() error
	defer func() {
		if err == nil {
			return
		}
		for i := len(undo) - 1; i >= 0; i-- {
			err = multierr.Combine(err, undo[i]())
		}
	}()

	if n.motorsPub, err = ps.NewPublisher(MotorsStateTopic, motorsStateQueueSize, true); err != nil {
		return nil, errors.Wrap(err, "advertising motors state")
	}
	undo = append(undo, n.motorsPub.Close)
	if n.posePub, err = ps.NewPublisher(PoseTopic, poseQueueSize, false); err != nil {
		return nil, errors.Wrap(err, "advertising pose")
	}
	undo = append(undo, n.posePub.Close)

	for name, cmd := range map[string]func(context.Context) (CommandResult, error){
		EnableMotorsService:       n.EnableMotors,
		DisableMotorsService:      n.DisableMotors,
		GlobalLocalizationService: n.GlobalLocalization,
	} {
		if err := pubsub.AdvertiseServiceTyped(ps, name, n.commandService(cmd)); err != nil {
			return nil, errors.Wrapf(err, "advertising %s", name)
		}
		undo = append(undo, func() error { return ps.UnadvertiseService(name) })
	}

	if n.initialPoseSub, err = pubsub.SubscribeTyped(
		ps, InitialPoseTopic, initialPoseQueueSize, n.onInitialPose,
	); err != nil {
		return nil, errors.Wrap(err, "subscribing to initial pose")
	}
	undo = append(undo, n.initialPoseSub.Close)

	if err := robot.Locked(func(h arnl.Handle) error {
		return h.AddSensorInterpTask(cfg.TaskName, cfg.TaskPriority, n.publish)
	}); err != nil {
		return nil, errors.Wrap(err, "registering publication cycle")
	}

	n.logger.Infow("Running node", "frame_id", n.frameID, "namespace", ps.Namespace())
	return n, nil
}

// FrameID returns the frame published poses are stamped with.
func (n *Node) FrameID() string {
	return n.frameID
}

// publish is the sensor-interpretation task. The SDK calls it with the robot locked. A failed pose
// publish does not skip the motors state; a failed motors state is announced again next cycle.
func (n *Node) publish(h arnl.Handle) {
	msg := n.poseEstimate(h.Pose())
	if err := n.posePub.Publish(msg); err != nil {
		n.fail(errors.Wrap(err, "publishing pose"))
	} else {
		n.logger.Debugw("publish",
			"time", msg.Header.Stamp.ToSec(),
			"x", msg.Pose.Pose.Position.X,
			"y", msg.Pose.Pose.Position.Y,
			"w", msg.Pose.Pose.Orientation.W,
		)
	}

	announced := n.motors
	if announce, enabled := n.motors.Observe(h.AreMotorsEnabled()); announce {
		n.logger.Infof("publishing new motors state %v", enabled)
		if err := n.motorsPub.Publish(ros.Bool{Data: enabled}); err != nil {
			n.motors = announced
			n.fail(errors.Wrap(err, "publishing motors state"))
		}
	}
}

func (n *Node) poseEstimate(p arnl.Pose) ros.PoseWithCovarianceStamped {
	estimate := referenceframe.NewPoseInFrame(n.frameID, ToExternal(p))
	n.seq++
	return ros.PoseWithCovarianceStamped{
		Header: ros.Header{
			Seq:     n.seq,
			Stamp:   ros.NewTime(n.clk.Now()),
			FrameID: estimate.FrameName(),
		},
		Pose: ros.PoseWithCovariance{
			Pose:       ros.PoseFromSpatial(estimate.Pose()),
			Covariance: n.covariance(),
		},
	}
}

// covariance reports the localizer's uncertainty when it can, and marks it unknown otherwise.
func (n *Node) covariance() [36]float64 {
	if reporter, ok := n.localizer.(arnl.CovarianceReporter); ok {
		if v, ok := reporter.PoseVariance(); ok {
			return CovarianceFromVariance(v)
		}
	}
	return ros.CovarianceUnknown()
}

func (n *Node) fail(err error) {
	n.logger.Errorw("publication cycle failed", "error", err)
	n.fatal(err)
}

func (n *Node) isClosed() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.closed
}

// Close unregisters the publication cycle and withdraws the node's topics. Services stay
// advertised until the pubsub node itself is closed; after Close they fail with ErrClosed.
func (n *Node) Close(ctx context.Context) error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	n.mu.Unlock()

	n.logger.CInfo(ctx, "Quitting")
	err := n.robot.Locked(func(h arnl.Handle) error {
		h.RemoveSensorInterpTask(n.cfg.TaskName)
		return nil
	})
	if errors.Is(err, arnl.ErrClosed) {
		err = nil
	}
	return multierr.Combine(
		err,
		n.initialPoseSub.Close(),
		n.posePub.Close(),
		n.motorsPub.Close(),
	)
}
