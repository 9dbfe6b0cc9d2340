package fake

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"

	"go.viam.com/navbridge/arnl"
)

var (
	_ arnl.Localizer          = &Localizer{}
	_ arnl.CovarianceReporter = &Localizer{}
)

// Localizer is an in-memory arnl.Localizer. Localizing moves the robot it is attached to.
type Localizer struct {
	robot *Robot
	clk   clock.Clock
	log   arnl.LogHandler

	mu          sync.Mutex
	home        arnl.Pose
	delay       time.Duration
	fails       bool
	variance    *arnl.Variance
	forcedPoses []arnl.Pose
}

// ForceUpdatePose makes `p` the robot's pose. It takes the robot lock itself, so it must not be
// called from inside a sensor-interpretation task.
func (l *Localizer) ForceUpdatePose(p arnl.Pose) error {
	if !p.IsFinite() {
		return errors.Errorf("cannot force non-finite pose %v", p)
	}
	l.mu.Lock()
	l.forcedPoses = append(l.forcedPoses, p)
	l.mu.Unlock()

	l.log("Forcing pose "+p.String(), arnl.Normal)
	return l.robot.Locked(func(h arnl.Handle) error {
		l.robot.pose = p
		return nil
	})
}

// LocalizeAtHome waits for the configured localization delay and then either puts the robot at
// its home pose or, if configured to fail, reports failure. Cancelling ctx abandons the attempt.
func (l *Localizer) LocalizeAtHome(ctx context.Context) (bool, error) {
	l.mu.Lock()
	home, delay, fails := l.home, l.delay, l.fails
	l.mu.Unlock()

	l.log("Localizing at home "+home.String(), arnl.Normal)
	if delay > 0 {
		timer := l.clk.Timer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-timer.C:
		}
	}
	if fails {
		l.log("Localization at home failed", arnl.Terse)
		return false, nil
	}
	if err := l.robot.Locked(func(h arnl.Handle) error {
		l.robot.pose = home
		return nil
	}); err != nil {
		return false, err
	}
	return true, nil
}

// PoseVariance returns the configured uncertainty, if any.
func (l *Localizer) PoseVariance() (arnl.Variance, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.variance == nil {
		return arnl.Variance{}, false
	}
	return *l.variance, true
}

// SetLocalizeFails controls whether LocalizeAtHome succeeds.
func (l *Localizer) SetLocalizeFails(fails bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fails = fails
}

// SetVariance changes the reported uncertainty. nil means none is available.
func (l *Localizer) SetVariance(v *arnl.Variance) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.variance = v
}

// ForcedPoses returns every pose passed to ForceUpdatePose, oldest first.
func (l *Localizer) ForcedPoses() []arnl.Pose {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]arnl.Pose(nil), l.forcedPoses...)
}
