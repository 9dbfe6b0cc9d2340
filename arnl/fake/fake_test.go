package fake

import (
	"context"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.viam.com/test"
	"go.viam.com/utils/testutils"

	"go.viam.com/navbridge/arnl"
	"go.viam.com/navbridge/logging"
)

func newTestSystem(t *testing.T, cfg Config) *System {
	t.Helper()
	logger := logging.NewTestLogger(t)
	s, err := NewSystem(cfg, clock.NewMock(), arnl.ForwardLogs(logger.Sublogger("ARNL")))
	test.That(t, err, test.ShouldBeNil)
	t.Cleanup(func() {
		test.That(t, s.Close(context.Background()), test.ShouldBeNil)
	})
	return s
}

func TestConfigValidate(t *testing.T) {
	for _, tc := range []struct {
		name   string
		cfg    Config
		errStr string
	}{
		{"valid", Config{SensorInterpPeriodMs: 100, Lasers: []string{"lms2xx_1", "urg_1"}}, ""},
		{"negative period", Config{SensorInterpPeriodMs: -1}, "fake.sensor_interp_period_ms must not be negative"},
		{"negative delay", Config{LocalizeDelayMs: -5}, "localize_delay_ms"},
		{"nan home", Config{Home: arnl.Pose{Th: math.NaN()}}, "home must be finite"},
		{"inf initial", Config{InitialPose: arnl.Pose{X: math.Inf(1)}}, "initial_pose must be finite"},
		{"negative variance", Config{Variance: &arnl.Variance{XX: -1}}, "variance"},
		{"empty laser", Config{Lasers: []string{""}}, "names must not be empty"},
		{"duplicate laser", Config{Lasers: []string{"a", "a"}}, "duplicate laser a"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate("fake")
			if tc.errStr == "" {
				test.That(t, err, test.ShouldBeNil)
				return
			}
			test.That(t, err, test.ShouldNotBeNil)
			test.That(t, errors.Is(err, arnl.ErrSetupFailed), test.ShouldBeTrue)
			test.That(t, err.Error(), test.ShouldContainSubstring, tc.errStr)
		})
	}

	_, err := NewSystem(Config{LocalizeDelayMs: -1}, nil, nil)
	test.That(t, errors.Is(err, arnl.ErrSetupFailed), test.ShouldBeTrue)
}

func TestConfigFromAttributes(t *testing.T) {
	cfg, err := ConfigFromAttributes(map[string]interface{}{
		"sensor_interp_period_ms": 100,
		"estop_pressed":           true,
		"initial_pose":            map[string]interface{}{"x_mm": 1000.0, "th_deg": "90"},
		"lasers":                  []interface{}{"laser_1"},
	})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.SensorInterpPeriodMs, test.ShouldEqual, 100)
	test.That(t, cfg.EStopPressed, test.ShouldBeTrue)
	test.That(t, cfg.InitialPose, test.ShouldResemble, arnl.Pose{X: 1000, Th: 90})
	test.That(t, cfg.Lasers, test.ShouldResemble, []string{"laser_1"})

	_, err = ConfigFromAttributes(map[string]interface{}{"estop": true})
	test.That(t, errors.Is(err, arnl.ErrSetupFailed), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, "estop")

	_, err = ConfigFromAttributes(map[string]interface{}{"localize_delay_ms": -1})
	test.That(t, errors.Is(err, arnl.ErrSetupFailed), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, "sim.localize_delay_ms")
}

func TestLockedReleasesOnEveryPath(t *testing.T) {
	s := newTestSystem(t, Config{})
	robot := s.Robot()

	errBoom := errors.New("boom")
	err := robot.Locked(func(h arnl.Handle) error { return errBoom })
	test.That(t, err, test.ShouldEqual, errBoom)

	func() {
		defer func() {
			test.That(t, recover(), test.ShouldNotBeNil)
		}()
		robot.Locked(func(h arnl.Handle) error { panic("task blew up") })
	}()

	// Would deadlock if either path above had kept the lock.
	test.That(t, robot.Locked(func(h arnl.Handle) error { return nil }), test.ShouldBeNil)
}

func TestMotorsAndEStop(t *testing.T) {
	s := newTestSystem(t, Config{})
	robot := s.FakeRobot()

	enabled := func() bool {
		var on bool
		test.That(t, robot.Locked(func(h arnl.Handle) error {
			on = h.AreMotorsEnabled()
			return nil
		}), test.ShouldBeNil)
		return on
	}

	test.That(t, enabled(), test.ShouldBeFalse)
	robot.Locked(func(h arnl.Handle) error { h.EnableMotors(); return nil })
	test.That(t, enabled(), test.ShouldBeTrue)

	robot.SetEStop(true)
	test.That(t, enabled(), test.ShouldBeFalse)
	robot.Locked(func(h arnl.Handle) error {
		test.That(t, h.IsEStopPressed(), test.ShouldBeTrue)
		h.EnableMotors()
		return nil
	})
	test.That(t, enabled(), test.ShouldBeFalse)

	robot.SetEStop(false)
	robot.Locked(func(h arnl.Handle) error { h.EnableMotors(); return nil })
	test.That(t, enabled(), test.ShouldBeTrue)
	robot.Locked(func(h arnl.Handle) error { h.DisableMotors(); return nil })
	test.That(t, enabled(), test.ShouldBeFalse)

	estopped := newTestSystem(t, Config{MotorsEnabled: true, EStopPressed: true})
	estopped.Robot().Locked(func(h arnl.Handle) error {
		test.That(t, h.AreMotorsEnabled(), test.ShouldBeFalse)
		return nil
	})
}

func TestSensorInterpTasks(t *testing.T) {
	s := newTestSystem(t, Config{InitialPose: arnl.Pose{X: 10}})
	robot := s.FakeRobot()

	var order []string
	add := func(name string, priority int) error {
		return robot.Locked(func(h arnl.Handle) error {
			return h.AddSensorInterpTask(name, priority, func(h arnl.Handle) {
				order = append(order, name)
			})
		})
	}
	test.That(t, add("low", 10), test.ShouldBeNil)
	test.That(t, add("high", 100), test.ShouldBeNil)
	test.That(t, add("mid", 50), test.ShouldBeNil)

	err := add("mid", 1)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "already registered")

	test.That(t, robot.TaskNames(), test.ShouldResemble, []string{"high", "mid", "low"})
	test.That(t, robot.RunSensorInterp(), test.ShouldBeNil)
	test.That(t, order, test.ShouldResemble, []string{"high", "mid", "low"})

	robot.Locked(func(h arnl.Handle) error {
		h.RemoveSensorInterpTask("mid")
		return nil
	})
	order = nil
	test.That(t, robot.RunSensorInterp(), test.ShouldBeNil)
	test.That(t, order, test.ShouldResemble, []string{"high", "low"})
	test.That(t, robot.Cycles(), test.ShouldEqual, 2)
}

func TestSensorInterpTaskSeesLockedPose(t *testing.T) {
	s := newTestSystem(t, Config{InitialPose: arnl.Pose{X: 1000, Y: -2000, Th: 90}})
	robot := s.FakeRobot()

	var seen []arnl.Pose
	test.That(t, robot.Locked(func(h arnl.Handle) error {
		return h.AddSensorInterpTask("recorder", 1, func(h arnl.Handle) {
			seen = append(seen, h.Pose())
		})
	}), test.ShouldBeNil)

	robot.SetPoseTrack([]arnl.Pose{{X: 1}, {X: 2}})
	test.That(t, robot.PoseTrackRemaining(), test.ShouldEqual, 2)
	for i := 0; i < 3; i++ {
		test.That(t, robot.RunSensorInterp(), test.ShouldBeNil)
	}
	test.That(t, seen, test.ShouldResemble, []arnl.Pose{{X: 1}, {X: 2}, {X: 2}})
	test.That(t, robot.PoseTrackRemaining(), test.ShouldEqual, 0)

	robot.SetPose(arnl.Pose{Y: 5})
	test.That(t, robot.RunSensorInterp(), test.ShouldBeNil)
	test.That(t, seen[3], test.ShouldResemble, arnl.Pose{Y: 5})
}

func TestSensorInterpLoop(t *testing.T) {
	clk := clock.NewMock()
	s, err := NewSystem(Config{SensorInterpPeriodMs: 100}, clk, nil)
	test.That(t, err, test.ShouldBeNil)

	var runs atomic.Int32
	test.That(t, s.Robot().Locked(func(h arnl.Handle) error {
		return h.AddSensorInterpTask("counter", 1, func(arnl.Handle) { runs.Add(1) })
	}), test.ShouldBeNil)

	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		clk.Add(100 * time.Millisecond)
		test.That(tb, runs.Load(), test.ShouldBeGreaterThanOrEqualTo, 3)
	})

	test.That(t, s.Close(context.Background()), test.ShouldBeNil)
	test.That(t, s.Close(context.Background()), test.ShouldBeNil)
	after := runs.Load()
	clk.Add(time.Second)
	test.That(t, runs.Load(), test.ShouldEqual, after)
	test.That(t, s.Robot().Locked(func(arnl.Handle) error { return nil }), test.ShouldEqual, arnl.ErrClosed)
	test.That(t, s.FakeRobot().RunSensorInterp(), test.ShouldEqual, arnl.ErrClosed)
}

func TestLocalizer(t *testing.T) {
	home := arnl.Pose{X: 500, Y: 250, Th: 180}
	s := newTestSystem(t, Config{Home: home, Variance: &arnl.Variance{XX: 100, YY: 400, ThTh: 4}})
	robot := s.FakeRobot()
	localizer := s.FakeLocalizer()

	pose := func() arnl.Pose {
		var p arnl.Pose
		robot.Locked(func(h arnl.Handle) error { p = h.Pose(); return nil })
		return p
	}

	test.That(t, localizer.ForceUpdatePose(arnl.Pose{X: 1500, Th: 90}), test.ShouldBeNil)
	test.That(t, pose(), test.ShouldResemble, arnl.Pose{X: 1500, Th: 90})
	test.That(t, localizer.ForcedPoses(), test.ShouldResemble, []arnl.Pose{{X: 1500, Th: 90}})
	test.That(t, localizer.ForceUpdatePose(arnl.Pose{X: math.NaN()}), test.ShouldNotBeNil)

	ok, err := localizer.LocalizeAtHome(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, pose(), test.ShouldResemble, home)

	robot.SetPose(arnl.Pose{})
	localizer.SetLocalizeFails(true)
	ok, err = localizer.LocalizeAtHome(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ok, test.ShouldBeFalse)
	test.That(t, pose(), test.ShouldResemble, arnl.Pose{})

	variance, ok := localizer.PoseVariance()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, variance.YY, test.ShouldEqual, 400.)
	localizer.SetVariance(nil)
	_, ok = localizer.PoseVariance()
	test.That(t, ok, test.ShouldBeFalse)
}

func TestLocalizeAtHomeHonorsContext(t *testing.T) {
	s, err := NewSystem(Config{LocalizeDelayMs: int(time.Hour / time.Millisecond)}, clock.New(), nil)
	test.That(t, err, test.ShouldBeNil)
	defer s.Close(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	ok, err := s.Localizer().LocalizeAtHome(ctx)
	test.That(t, ok, test.ShouldBeFalse)
	test.That(t, errors.Is(err, context.DeadlineExceeded), test.ShouldBeTrue)
}

func TestDisconnectCallbacks(t *testing.T) {
	s := newTestSystem(t, Config{Lasers: []string{"lms2xx_1", "urg_1"}})
	robot := s.FakeRobot()

	var fired []string
	robot.AddDisconnectOnErrorCB(func() { fired = append(fired, "robot") })
	lasers := robot.Lasers()
	test.That(t, lasers, test.ShouldHaveLength, 2)
	test.That(t, lasers[1].Name(), test.ShouldEqual, "lms2xx_1")
	for _, laser := range lasers {
		name := laser.Name()
		laser.AddDisconnectOnErrorCB(func() { fired = append(fired, name) })
	}

	robot.TriggerDisconnect()
	test.That(t, fired, test.ShouldResemble, []string{"robot", "lms2xx_1", "urg_1"})

	fired = nil
	lasers[2].(*Laser).TriggerDisconnect()
	test.That(t, fired, test.ShouldResemble, []string{"urg_1"})
}

func TestSetupLogsThroughHandler(t *testing.T) {
	logger, logs := logging.NewObservedTestLogger(t)
	s, err := NewSystem(Config{Lasers: []string{"lms2xx_1"}}, nil, arnl.ForwardLogs(logger.Sublogger("ARNL")))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, s.Close(context.Background()), test.ShouldBeNil)

	test.That(t, logs.FilterMessage("Connected to simulated robot").Len(), test.ShouldEqual, 1)
	test.That(t, logs.FilterMessage("Connected to laser 1 lms2xx_1").Len(), test.ShouldEqual, 1)
	test.That(t, logs.FilterMessage("Disconnected from simulated robot").Len(), test.ShouldEqual, 1)
}
