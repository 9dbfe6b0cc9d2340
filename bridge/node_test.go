package bridge

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"go.uber.org/zap/zaptest/observer"
	"go.viam.com/test"
	"go.viam.com/utils/testutils"

	"go.viam.com/navbridge/arnl"
	"go.viam.com/navbridge/arnl/fake"
	"go.viam.com/navbridge/logging"
	"go.viam.com/navbridge/pubsub"
	"go.viam.com/navbridge/ros"
	"go.viam.com/navbridge/testutils/inject"
)

var testEpoch = time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)

type collector[T any] struct {
	mu   sync.Mutex
	msgs []T
}

func (c *collector[T]) add(msg T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
}

func (c *collector[T]) all() []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]T(nil), c.msgs...)
}

type envOptions struct {
	sys       fake.Config
	cfg       *Config
	robot     func(*fake.Robot) arnl.Robot
	localizer func(arnl.Localizer) arnl.Localizer
	ps        func(pubsub.Node) pubsub.Node
	opts      []Option
}

type testEnv struct {
	sys       *fake.System
	robot     *fake.Robot
	localizer *fake.Localizer
	psNode    *pubsub.LocalNode
	client    *pubsub.LocalNode
	clk       *clock.Mock
	logs      *observer.ObservedLogs
	node      *Node
}

func newTestEnv(t *testing.T, eo envOptions) *testEnv {
	t.Helper()
	logger, logs := logging.NewObservedTestLogger(t)

	sys, err := fake.NewSystem(eo.sys, nil, arnl.ForwardLogs(logger.Sublogger("ARNL")))
	test.That(t, err, test.ShouldBeNil)

	bus := pubsub.NewBus()
	psNode, err := pubsub.NewLocalNode(bus, "rosarnl_node", pubsub.PrivateNamespace, logger.Sublogger("pubsub"))
	test.That(t, err, test.ShouldBeNil)
	client, err := pubsub.NewLocalNode(bus, "client", "", logger.Sublogger("client"))
	test.That(t, err, test.ShouldBeNil)

	clk := clock.NewMock()
	clk.Set(testEpoch)

	env := &testEnv{
		sys:       sys,
		robot:     sys.FakeRobot(),
		localizer: sys.FakeLocalizer(),
		psNode:    psNode,
		client:    client,
		clk:       clk,
		logs:      logs,
	}

	cfg := DefaultConfig()
	if eo.cfg != nil {
		cfg = *eo.cfg
	}
	var robot arnl.Robot = env.robot
	if eo.robot != nil {
		robot = eo.robot(env.robot)
	}
	var localizer arnl.Localizer = env.localizer
	if eo.localizer != nil {
		localizer = eo.localizer(env.localizer)
	}
	var ps pubsub.Node = psNode
	if eo.ps != nil {
		ps = eo.ps(psNode)
	}

	opts := append([]Option{WithClock(clk)}, eo.opts...)
	env.node, err = New(robot, localizer, ps, cfg, logger.Sublogger("rosarnl_node"), opts...)
	test.That(t, err, test.ShouldBeNil)

	t.Cleanup(func() {
		test.That(t, env.node.Close(context.Background()), test.ShouldBeNil)
		test.That(t, client.Close(), test.ShouldBeNil)
		test.That(t, psNode.Close(), test.ShouldBeNil)
		test.That(t, sys.Close(context.Background()), test.ShouldBeNil)
	})
	return env
}

func (env *testEnv) subscribePoses(t *testing.T) *collector[ros.PoseWithCovarianceStamped] {
	t.Helper()
	var poses collector[ros.PoseWithCovarianceStamped]
	_, err := pubsub.SubscribeTyped(env.client, "/rosarnl_node/amcl_pose", 100, poses.add)
	test.That(t, err, test.ShouldBeNil)
	return &poses
}

func (env *testEnv) subscribeMotors(t *testing.T) *collector[ros.Bool] {
	t.Helper()
	var motors collector[ros.Bool]
	_, err := pubsub.SubscribeTyped(env.client, "/rosarnl_node/motors_state", 100, motors.add)
	test.That(t, err, test.ShouldBeNil)
	return &motors
}

func (env *testEnv) cycle(t *testing.T) {
	t.Helper()
	test.That(t, env.robot.RunSensorInterp(), test.ShouldBeNil)
}

func TestRegistersPublicationCycle(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	test.That(t, env.robot.TaskNames(), test.ShouldResemble, []string{"ROSPublishingTask"})
	test.That(t, env.node.FrameID(), test.ShouldEqual, "map")
	test.That(t, env.logs.FilterMessage("Running node").Len(), test.ShouldEqual, 1)
}

func TestPublicationCycle(t *testing.T) {
	env := newTestEnv(t, envOptions{sys: fake.Config{InitialPose: arnl.Pose{X: 1000, Y: -2000, Th: 90}}})
	poses := env.subscribePoses(t)
	motors := env.subscribeMotors(t)

	env.cycle(t)
	env.clk.Add(100 * time.Millisecond)
	env.cycle(t)

	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		test.That(tb, poses.all(), test.ShouldHaveLength, 2)
		test.That(tb, motors.all(), test.ShouldHaveLength, 1)
	})

	expected := ros.PoseWithCovarianceStamped{
		Header: ros.Header{Seq: 1, Stamp: ros.NewTime(testEpoch), FrameID: "map"},
		Pose: ros.PoseWithCovariance{
			Pose: ros.Pose{
				Position:    ros.Point{X: 1, Y: -2},
				Orientation: ros.Quaternion{Z: math.Sqrt2 / 2, W: math.Sqrt2 / 2},
			},
			Covariance: ros.CovarianceUnknown(),
		},
	}
	approx := cmp.Comparer(func(a, b float64) bool { return math.Abs(a-b) < 1e-9 })
	got := poses.all()
	if diff := cmp.Diff(expected, got[0], approx); diff != "" {
		t.Fatalf("unexpected pose estimate (-want +got):\n%s", diff)
	}
	test.That(t, got[1].Header.Seq, test.ShouldEqual, uint32(2))
	test.That(t, got[1].Header.Stamp, test.ShouldResemble, ros.NewTime(testEpoch.Add(100*time.Millisecond)))

	// Startup announces "disabled" even though it equals the initial value.
	test.That(t, motors.all(), test.ShouldResemble, []ros.Bool{{Data: false}})
	test.That(t, env.logs.FilterMessage("publishing new motors state false").Len(), test.ShouldEqual, 1)
}

func TestPosePublishedEveryCycle(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	poses := env.subscribePoses(t)

	for i := 0; i < 5; i++ {
		env.cycle(t)
	}
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		test.That(tb, poses.all(), test.ShouldHaveLength, 5)
	})
	for i, msg := range poses.all() {
		test.That(t, msg.Header.Seq, test.ShouldEqual, uint32(i+1))
		test.That(t, msg.Pose.Pose, test.ShouldResemble, poses.all()[0].Pose.Pose)
	}
}

func TestMotorsStateOnChangeOnly(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	motors := env.subscribeMotors(t)

	setMotors := func(on bool) {
		test.That(t, env.robot.Locked(func(h arnl.Handle) error {
			if on {
				h.EnableMotors()
			} else {
				h.DisableMotors()
			}
			return nil
		}), test.ShouldBeNil)
	}

	for _, live := range []bool{true, true, false, false, true} {
		setMotors(live)
		env.cycle(t)
	}
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		test.That(tb, motors.all(), test.ShouldResemble, []ros.Bool{{Data: true}, {Data: false}, {Data: true}})
	})
}

func TestMotorsStateLatched(t *testing.T) {
	env := newTestEnv(t, envOptions{sys: fake.Config{MotorsEnabled: true}})
	env.cycle(t)
	env.cycle(t)

	late := env.subscribeMotors(t)
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		test.That(tb, late.all(), test.ShouldResemble, []ros.Bool{{Data: true}})
	})
}

func TestCovarianceFromLocalizer(t *testing.T) {
	env := newTestEnv(t, envOptions{sys: fake.Config{Variance: &arnl.Variance{XX: 10000, YY: 10000, ThTh: 1}}})
	poses := env.subscribePoses(t)

	env.cycle(t)
	env.localizer.SetVariance(nil)
	env.cycle(t)

	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		test.That(tb, poses.all(), test.ShouldHaveLength, 2)
	})
	got := poses.all()
	test.That(t, got[0].Pose.Covariance[0], test.ShouldAlmostEqual, 0.01)
	test.That(t, got[0].Pose.Covariance[7], test.ShouldAlmostEqual, 0.01)
	test.That(t, ros.IsCovarianceUnknown(got[0].Pose.Covariance), test.ShouldBeFalse)
	test.That(t, ros.IsCovarianceUnknown(got[1].Pose.Covariance), test.ShouldBeTrue)
}

func TestFramePrefix(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TFPrefix = "robot1"
	env := newTestEnv(t, envOptions{cfg: &cfg})
	poses := env.subscribePoses(t)

	env.cycle(t)
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		test.That(tb, poses.all(), test.ShouldHaveLength, 1)
	})
	test.That(t, poses.all()[0].Header.FrameID, test.ShouldEqual, "robot1/map")
}

func TestPublishFailureIsFatal(t *testing.T) {
	errTransport := errors.New("transport gone")
	var fatalErrs []error
	env := newTestEnv(t, envOptions{
		ps: func(real pubsub.Node) pubsub.Node {
			return &inject.PubSubNode{
				Node: real,
				NewPublisherFunc: func(topic string, queueSize int, latch bool) (pubsub.Publisher, error) {
					pub, err := real.NewPublisher(topic, queueSize, latch)
					if err != nil || topic != PoseTopic {
						return pub, err
					}
					return &inject.Publisher{
						Publisher:   pub,
						PublishFunc: func(interface{}) error { return errTransport },
					}, nil
				},
			}
		},
		opts: []Option{WithFatalHandler(func(err error) { fatalErrs = append(fatalErrs, err) })},
	})

	motors := env.subscribeMotors(t)

	env.cycle(t)
	test.That(t, fatalErrs, test.ShouldHaveLength, 1)
	test.That(t, errors.Is(fatalErrs[0], errTransport), test.ShouldBeTrue)
	test.That(t, env.logs.FilterMessage("publication cycle failed").Len(), test.ShouldEqual, 1)
	// The motors state is still announced when the pose could not be published.
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		test.That(tb, motors.all(), test.ShouldResemble, []ros.Bool{{Data: false}})
	})
}

func TestMotorsStateRetriedAfterPublishFailure(t *testing.T) {
	errTransport := errors.New("transport gone")
	var fatalErrs []error
	failures := 1
	env := newTestEnv(t, envOptions{
		ps: func(real pubsub.Node) pubsub.Node {
			return &inject.PubSubNode{
				Node: real,
				NewPublisherFunc: func(topic string, queueSize int, latch bool) (pubsub.Publisher, error) {
					pub, err := real.NewPublisher(topic, queueSize, latch)
					if err != nil || topic != MotorsStateTopic {
						return pub, err
					}
					return &inject.Publisher{
						Publisher: pub,
						PublishFunc: func(msg interface{}) error {
							if failures > 0 {
								failures--
								return errTransport
							}
							return pub.Publish(msg)
						},
					}, nil
				},
			}
		},
		opts: []Option{WithFatalHandler(func(err error) { fatalErrs = append(fatalErrs, err) })},
	})
	poses := env.subscribePoses(t)
	motors := env.subscribeMotors(t)

	env.cycle(t)
	test.That(t, fatalErrs, test.ShouldHaveLength, 1)
	test.That(t, errors.Is(fatalErrs[0], errTransport), test.ShouldBeTrue)

	env.cycle(t)
	test.That(t, fatalErrs, test.ShouldHaveLength, 1)
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		test.That(tb, poses.all(), test.ShouldHaveLength, 2)
		test.That(tb, motors.all(), test.ShouldResemble, []ros.Bool{{Data: false}})
	})
	test.That(t, env.logs.FilterMessage("publishing new motors state false").Len(), test.ShouldEqual, 2)
}

func TestNewFailsCleanly(t *testing.T) {
	logger := logging.NewTestLogger(t)
	sys, err := fake.NewSystem(fake.Config{}, nil, nil)
	test.That(t, err, test.ShouldBeNil)
	defer sys.Close(context.Background())

	bus := pubsub.NewBus()
	psNode, err := pubsub.NewLocalNode(bus, "rosarnl_node", pubsub.PrivateNamespace, logger)
	test.That(t, err, test.ShouldBeNil)
	defer psNode.Close()

	test.That(t, sys.Robot().Locked(func(h arnl.Handle) error {
		return h.AddSensorInterpTask(DefaultTaskName, 1, func(arnl.Handle) {})
	}), test.ShouldBeNil)

	_, err = New(sys.Robot(), sys.Localizer(), psNode, DefaultConfig(), logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "registering publication cycle")

	badCfg := DefaultConfig()
	badCfg.FrameID = ""
	_, err = New(sys.Robot(), sys.Localizer(), psNode, badCfg, logger)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestClose(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	poses := env.subscribePoses(t)

	test.That(t, env.node.Close(context.Background()), test.ShouldBeNil)
	test.That(t, env.robot.TaskNames(), test.ShouldBeEmpty)
	env.cycle(t)
	time.Sleep(10 * time.Millisecond)
	test.That(t, poses.all(), test.ShouldBeEmpty)

	_, err := env.node.EnableMotors(context.Background())
	test.That(t, err, test.ShouldEqual, ErrClosed)
	test.That(t, env.node.SetInitialPose(ros.PoseWithCovarianceStamped{}), test.ShouldEqual, ErrClosed)
	test.That(t, env.logs.FilterMessage("Quitting").Len(), test.ShouldEqual, 1)
}
