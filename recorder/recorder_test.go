package recorder

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"go.viam.com/test"
	"go.viam.com/utils/testutils"

	"go.viam.com/navbridge/logging"
	"go.viam.com/navbridge/protoutils"
	"go.viam.com/navbridge/pubsub"
	"go.viam.com/navbridge/ros"
)

func TestRecorderRoundTrip(t *testing.T) {
	logger := logging.NewTestLogger(t)
	bus := pubsub.NewBus()
	bridge, err := pubsub.NewLocalNode(bus, "rosarnl_node", pubsub.PrivateNamespace, logger)
	test.That(t, err, test.ShouldBeNil)
	defer bridge.Close()

	clk := clock.NewMock()
	start := time.Date(2024, 5, 1, 9, 30, 0, 250, time.UTC)
	clk.Set(start)

	path := filepath.Join(t.TempDir(), "session.capture")
	rec, err := New(bridge, path, []string{"amcl_pose", "motors_state"}, clk, logger)
	test.That(t, err, test.ShouldBeNil)

	posePub, err := bridge.NewPublisher("amcl_pose", 30, false)
	test.That(t, err, test.ShouldBeNil)
	motorsPub, err := bridge.NewPublisher("motors_state", 5, true)
	test.That(t, err, test.ShouldBeNil)

	pose := ros.PoseWithCovarianceStamped{
		Header: ros.Header{Seq: 1, Stamp: ros.NewTime(start), FrameID: "map"},
		Pose: ros.PoseWithCovariance{
			Pose:       ros.Pose{Position: ros.Point{X: 1.5}, Orientation: ros.Quaternion{W: 1}},
			Covariance: ros.CovarianceUnknown(),
		},
	}
	test.That(t, motorsPub.Publish(ros.Bool{Data: true}), test.ShouldBeNil)
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		test.That(tb, rec.Count(), test.ShouldEqual, 1)
	})
	clk.Add(time.Second)
	test.That(t, posePub.Publish(pose), test.ShouldBeNil)
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		test.That(tb, rec.Count(), test.ShouldEqual, 2)
	})

	_, err = os.Stat(path + InProgressExt)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, rec.Close(), test.ShouldBeNil)
	test.That(t, rec.Close(), test.ShouldBeNil)
	_, err = os.Stat(path + InProgressExt)
	test.That(t, os.IsNotExist(err), test.ShouldBeTrue)

	records, err := ReadFile(rec.Path())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, records, test.ShouldHaveLength, 2)

	test.That(t, records[0].Topic, test.ShouldEqual, "/rosarnl_node/motors_state")
	test.That(t, records[0].Stamp.Equal(start), test.ShouldBeTrue)
	motors, err := protoutils.StructToMessage[ros.Bool](records[0].Message)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, motors.Data, test.ShouldBeTrue)

	test.That(t, records[1].Topic, test.ShouldEqual, "/rosarnl_node/amcl_pose")
	test.That(t, records[1].Stamp.Equal(start.Add(time.Second)), test.ShouldBeTrue)
	gotPose, err := protoutils.StructToMessage[ros.PoseWithCovarianceStamped](records[1].Message)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, gotPose, test.ShouldResemble, pose)

	// Nothing is recorded after Close.
	test.That(t, motorsPub.Publish(ros.Bool{Data: false}), test.ShouldBeNil)
	time.Sleep(10 * time.Millisecond)
	test.That(t, rec.Count(), test.ShouldEqual, 2)
}

func TestRecorderUnencodableMessage(t *testing.T) {
	logger, logs := logging.NewObservedTestLogger(t)
	bus := pubsub.NewBus()
	node, err := pubsub.NewLocalNode(bus, "recorder", "", logger)
	test.That(t, err, test.ShouldBeNil)
	defer node.Close()

	rec, err := New(node, filepath.Join(t.TempDir(), "bad.capture"), []string{"/chatter"}, nil, logger)
	test.That(t, err, test.ShouldBeNil)
	defer rec.Close()

	pub, err := node.NewPublisher("/chatter", 1, false)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pub.Publish(42), test.ShouldBeNil)

	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		test.That(tb, rec.Failures(), test.ShouldEqual, 1)
	})
	test.That(t, rec.Count(), test.ShouldEqual, 0)
	test.That(t, logs.FilterMessage("failed to record message").Len(), test.ShouldEqual, 1)
}

func TestRecorderCloseWhileRecording(t *testing.T) {
	logger := logging.NewTestLogger(t)
	node, err := pubsub.NewLocalNode(pubsub.NewBus(), "rosarnl_node", "", logger)
	test.That(t, err, test.ShouldBeNil)
	defer node.Close()

	rec, err := New(node, filepath.Join(t.TempDir(), "busy.capture"), []string{"/amcl_pose"}, nil, logger)
	test.That(t, err, test.ShouldBeNil)
	pub, err := node.NewPublisher("/amcl_pose", 30, false)
	test.That(t, err, test.ShouldBeNil)

	for i := 0; i < 500; i++ {
		test.That(t, pub.Publish(ros.Bool{Data: i%2 == 0}), test.ShouldBeNil)
	}
	test.That(t, rec.Close(), test.ShouldBeNil)

	// Writes still in flight when Close starts finish before the file is closed.
	test.That(t, rec.Failures(), test.ShouldEqual, 0)
	records, err := ReadFile(rec.Path())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, records, test.ShouldHaveLength, rec.Count())

	test.That(t, pub.Publish(ros.Bool{Data: true}), test.ShouldBeNil)
	test.That(t, rec.Count(), test.ShouldEqual, len(records))
}

func TestRecorderErrors(t *testing.T) {
	logger := logging.NewTestLogger(t)
	node, err := pubsub.NewLocalNode(pubsub.NewBus(), "recorder", "", logger)
	test.That(t, err, test.ShouldBeNil)
	defer node.Close()

	dir := t.TempDir()
	_, err = New(node, filepath.Join(dir, "none.capture"), nil, nil, logger)
	test.That(t, err, test.ShouldNotBeNil)

	_, err = New(node, filepath.Join(dir, "missing", "x.capture"), []string{"/chatter"}, nil, logger)
	test.That(t, err, test.ShouldNotBeNil)

	_, err = New(node, filepath.Join(dir, "badtopic.capture"), []string{"bad topic"}, nil, logger)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = os.Stat(filepath.Join(dir, "badtopic.capture"+InProgressExt))
	test.That(t, os.IsNotExist(err), test.ShouldBeTrue)

	_, err = ReadFile(filepath.Join(dir, "nope"))
	test.That(t, err, test.ShouldNotBeNil)
}
