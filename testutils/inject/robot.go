package inject

import (
	"context"

	"go.viam.com/navbridge/arnl"
)

// Robot is an injected ARNL robot.
type Robot struct {
	arnl.Robot
	LockedFunc                 func(fn func(h arnl.Handle) error) error
	AddDisconnectOnErrorCBFunc func(cb func())
	LasersFunc                 func() map[int]arnl.Laser
}

// Locked calls the injected Locked or the real version.
func (r *Robot) Locked(fn func(h arnl.Handle) error) error {
	if r.LockedFunc == nil {
		return r.Robot.Locked(fn)
	}
	return r.LockedFunc(fn)
}

// AddDisconnectOnErrorCB calls the injected AddDisconnectOnErrorCB or the real version.
func (r *Robot) AddDisconnectOnErrorCB(cb func()) {
	if r.AddDisconnectOnErrorCBFunc == nil {
		r.Robot.AddDisconnectOnErrorCB(cb)
		return
	}
	r.AddDisconnectOnErrorCBFunc(cb)
}

// Lasers calls the injected Lasers or the real version.
func (r *Robot) Lasers() map[int]arnl.Laser {
	if r.LasersFunc == nil {
		return r.Robot.Lasers()
	}
	return r.LasersFunc()
}

// Handle is an injected locked robot handle.
type Handle struct {
	arnl.Handle
	PoseFunc                   func() arnl.Pose
	AreMotorsEnabledFunc       func() bool
	IsEStopPressedFunc         func() bool
	EnableMotorsFunc           func()
	DisableMotorsFunc          func()
	AddSensorInterpTaskFunc    func(name string, priority int, task arnl.SensorInterpTask) error
	RemoveSensorInterpTaskFunc func(name string)
}

// Pose calls the injected Pose or the real version.
func (h *Handle) Pose() arnl.Pose {
	if h.PoseFunc == nil {
		return h.Handle.Pose()
	}
	return h.PoseFunc()
}

// AreMotorsEnabled calls the injected AreMotorsEnabled or the real version.
func (h *Handle) AreMotorsEnabled() bool {
	if h.AreMotorsEnabledFunc == nil {
		return h.Handle.AreMotorsEnabled()
	}
	return h.AreMotorsEnabledFunc()
}

// IsEStopPressed calls the injected IsEStopPressed or the real version.
func (h *Handle) IsEStopPressed() bool {
	if h.IsEStopPressedFunc == nil {
		return h.Handle.IsEStopPressed()
	}
	return h.IsEStopPressedFunc()
}

// EnableMotors calls the injected EnableMotors or the real version.
func (h *Handle) EnableMotors() {
	if h.EnableMotorsFunc == nil {
		h.Handle.EnableMotors()
		return
	}
	h.EnableMotorsFunc()
}

// DisableMotors calls the injected DisableMotors or the real version.
func (h *Handle) DisableMotors() {
	if h.DisableMotorsFunc == nil {
		h.Handle.DisableMotors()
		return
	}
	h.DisableMotorsFunc()
}

// AddSensorInterpTask calls the injected AddSensorInterpTask or the real version.
func (h *Handle) AddSensorInterpTask(name string, priority int, task arnl.SensorInterpTask) error {
	if h.AddSensorInterpTaskFunc == nil {
		return h.Handle.AddSensorInterpTask(name, priority, task)
	}
	return h.AddSensorInterpTaskFunc(name, priority, task)
}

// RemoveSensorInterpTask calls the injected RemoveSensorInterpTask or the real version.
func (h *Handle) RemoveSensorInterpTask(name string) {
	if h.RemoveSensorInterpTaskFunc == nil {
		h.Handle.RemoveSensorInterpTask(name)
		return
	}
	h.RemoveSensorInterpTaskFunc(name)
}

// Localizer is an injected ARNL localization task. It always implements arnl.CovarianceReporter;
// without PoseVarianceFunc it reports what the embedded localizer reports, or nothing.
type Localizer struct {
	arnl.Localizer
	ForceUpdatePoseFunc func(p arnl.Pose) error
	LocalizeAtHomeFunc  func(ctx context.Context) (bool, error)
	PoseVarianceFunc    func() (arnl.Variance, bool)
}

// ForceUpdatePose calls the injected ForceUpdatePose or the real version.
func (l *Localizer) ForceUpdatePose(p arnl.Pose) error {
	if l.ForceUpdatePoseFunc == nil {
		return l.Localizer.ForceUpdatePose(p)
	}
	return l.ForceUpdatePoseFunc(p)
}

// LocalizeAtHome calls the injected LocalizeAtHome or the real version.
func (l *Localizer) LocalizeAtHome(ctx context.Context) (bool, error) {
	if l.LocalizeAtHomeFunc == nil {
		return l.Localizer.LocalizeAtHome(ctx)
	}
	return l.LocalizeAtHomeFunc(ctx)
}

// PoseVariance calls the injected PoseVariance or the real version.
func (l *Localizer) PoseVariance() (arnl.Variance, bool) {
	if l.PoseVarianceFunc != nil {
		return l.PoseVarianceFunc()
	}
	if reporter, ok := l.Localizer.(arnl.CovarianceReporter); ok {
		return reporter.PoseVariance()
	}
	return arnl.Variance{}, false
}
