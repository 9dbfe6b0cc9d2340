// Package arnl defines the part of the ARNL navigation SDK that navbridge consumes: the robot
// handle with its lock, the localization task, the laser map and the SDK's log levels.
package arnl

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"go.viam.com/navbridge/utils"
)

var (
	// ErrSetupFailed is returned (wrapped) when the SDK could not connect to the robot, load its
	// map or start localization.
	ErrSetupFailed = errors.New("ARNL and ARIA setup failed")
	// ErrClosed is returned by operations on a system that has been closed.
	ErrClosed = errors.New("ARNL system closed")
)

// Pose is a pose in SDK units: millimeters and degrees. Th is not restricted to any range.
type Pose struct {
	X  float64 `json:"x_mm"`
	Y  float64 `json:"y_mm"`
	Th float64 `json:"th_deg"`
}

// IsFinite reports whether every component of the pose is a finite number.
func (p Pose) IsFinite() bool {
	return utils.AllFinite(p.X, p.Y, p.Th)
}

func (p Pose) String() string {
	return fmt.Sprintf("(%.1fmm, %.1fmm, %.2fdeg)", p.X, p.Y, p.Th)
}

// Handle is the robot as seen while its lock is held. A Handle must not be retained or used after
// the function it was handed to returns.
type Handle interface {
	Pose() Pose
	AreMotorsEnabled() bool
	IsEStopPressed() bool
	EnableMotors()
	DisableMotors()

	// AddSensorInterpTask registers `task` to run once per sensor-interpretation cycle. Tasks run
	// in descending priority order with the robot already locked.
	AddSensorInterpTask(name string, priority int, task SensorInterpTask) error
	RemoveSensorInterpTask(name string)
}

// SensorInterpTask is run by the SDK on its own thread once per sensor-interpretation cycle. It is
// handed the already locked robot and must not try to lock it again.
type SensorInterpTask func(h Handle)

// Robot is the SDK's robot object. Its state is only reachable through Locked.
type Robot interface {
	// Locked acquires the robot's lock, calls fn with a Handle valid for the duration of the call
	// and releases the lock on every exit path. The error fn returns is passed through.
	Locked(fn func(h Handle) error) error
	AddDisconnectOnErrorCB(cb func())
	Lasers() map[int]Laser
}

// Laser is one of the robot's range devices.
type Laser interface {
	Name() string
	AddDisconnectOnErrorCB(cb func())
}

// Localizer is the SDK's localization task. It synchronizes itself; callers do not hold the
// robot lock.
type Localizer interface {
	// ForceUpdatePose makes the localizer adopt `p` as the robot's true pose.
	ForceUpdatePose(p Pose) error
	// LocalizeAtHome blocks until the localizer has tried to find the robot near its home pose and
	// reports whether it succeeded.
	LocalizeAtHome(ctx context.Context) (bool, error)
}

// Variance is the localizer's uncertainty about the current pose in SDK units: mm² for the
// position terms and deg² for the heading.
type Variance struct {
	XX   float64 `json:"xx"`
	XY   float64 `json:"xy"`
	YY   float64 `json:"yy"`
	ThTh float64 `json:"thth"`
}

// CovarianceReporter is implemented by localizers that can report how uncertain their current
// estimate is. The bool is false while no estimate is available.
type CovarianceReporter interface {
	PoseVariance() (Variance, bool)
}

// System is a set up SDK: a connected robot plus its localization task.
type System interface {
	Robot() Robot
	Localizer() Localizer
	Close(ctx context.Context) error
}
