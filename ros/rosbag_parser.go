// Package ros holds the ROS message shapes navbridge publishes and consumes, and reads recorded
// rosbags.
package ros

import (
	"encoding/json"
	"io"
	"os"

	"github.com/edaniels/gobag/rosbag"
	"github.com/pkg/errors"
	"go.viam.com/utils"
)

// ReadBag reads the contents of a rosbag into a gobag data structure.
func ReadBag(filename string) (*rosbag.RosBag, error) {
	//nolint:gosec
	f, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open input file")
	}
	defer utils.UncheckedErrorFunc(f.Close)

	rb := rosbag.NewRosBag()
	if err := rb.Read(f); err != nil {
		return nil, errors.Wrapf(err, "unable to create ros bag, error")
	}

	return rb, nil
}

// AllMessagesForTopic returns all messages for a specific topic in the ros bag.
func AllMessagesForTopic(rb *rosbag.RosBag, topic string) ([]map[string]interface{}, error) {
	if err := rb.ParseTopicsToJSON(
		"",
		func(int64) bool { return true },
		func(t string) bool { return t == topic },
		false,
	); err != nil {
		return nil, errors.Wrapf(err, "error while parsing bag to JSON")
	}

	msgs := rb.TopicsAsJSON[topic]
	if msgs == nil {
		return nil, errors.Errorf("no messages for topic %s", topic)
	}

	all := []map[string]interface{}{}

	for {
		data, err := msgs.ReadBytes('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
		message := map[string]interface{}{}
		err = json.Unmarshal(data, &message)
		if err != nil {
			return nil, err
		}

		all = append(all, message)
	}

	return all, nil
}

// DecodeMessages converts the generic messages returned by AllMessagesForTopic into typed ones.
func DecodeMessages[T any](msgs []map[string]interface{}) ([]BagMessage[T], error) {
	decoded := make([]BagMessage[T], 0, len(msgs))
	for i, msg := range msgs {
		raw, err := json.Marshal(msg)
		if err != nil {
			return nil, errors.Wrapf(err, "message %d", i)
		}
		var typed BagMessage[T]
		if err := json.Unmarshal(raw, &typed); err != nil {
			return nil, errors.Wrapf(err, "message %d", i)
		}
		decoded = append(decoded, typed)
	}
	return decoded, nil
}

// PosesFromMessages decodes a geometry_msgs/PoseWithCovarianceStamped topic, such as a recorded
// amcl_pose, skipping messages whose pose is not finite.
func PosesFromMessages(msgs []map[string]interface{}) ([]PoseWithCovarianceStamped, error) {
	decoded, err := DecodeMessages[PoseWithCovarianceStamped](msgs)
	if err != nil {
		return nil, err
	}
	poses := make([]PoseWithCovarianceStamped, 0, len(decoded))
	for _, msg := range decoded {
		if !msg.Data.Pose.Pose.Finite() {
			continue
		}
		poses = append(poses, msg.Data)
	}
	return poses, nil
}

// ReadPoseTrack reads every pose recorded on `topic` in the bag at `filename`.
func ReadPoseTrack(filename, topic string) ([]PoseWithCovarianceStamped, error) {
	rb, err := ReadBag(filename)
	if err != nil {
		return nil, err
	}
	msgs, err := AllMessagesForTopic(rb, topic)
	if err != nil {
		return nil, err
	}
	return PosesFromMessages(msgs)
}
