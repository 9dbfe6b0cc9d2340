package ros

import (
	"time"
)

// Time is a ROS time: seconds and nanoseconds since the Unix epoch.
type Time struct {
	Secs  uint32 `json:"secs"`
	Nsecs uint32 `json:"nsecs"`
}

// NewTime converts a wall clock time to a ROS time.
func NewTime(t time.Time) Time {
	nanos := t.UnixNano()
	return Time{Secs: uint32(nanos / int64(time.Second)), Nsecs: uint32(nanos % int64(time.Second))}
}

// Time converts back to a wall clock time in UTC.
func (t Time) Time() time.Time {
	return time.Unix(int64(t.Secs), int64(t.Nsecs)).UTC()
}

// ToSec returns the time as fractional seconds.
func (t Time) ToSec() float64 {
	return float64(t.Secs) + float64(t.Nsecs)/1e9
}

// Header is std_msgs/Header.
type Header struct {
	Seq     uint32 `json:"seq"`
	Stamp   Time   `json:"stamp"`
	FrameID string `json:"frame_id"`
}

// Point is geometry_msgs/Point, in meters.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Quaternion is geometry_msgs/Quaternion.
type Quaternion struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

// Pose is geometry_msgs/Pose.
type Pose struct {
	Position    Point      `json:"position"`
	Orientation Quaternion `json:"orientation"`
}

// PoseWithCovariance is geometry_msgs/PoseWithCovariance. Covariance is the row-major 6x6 matrix
// over (x, y, z, rot x, rot y, rot z).
type PoseWithCovariance struct {
	Pose       Pose        `json:"pose"`
	Covariance [36]float64 `json:"covariance"`
}

// PoseWithCovarianceStamped is geometry_msgs/PoseWithCovarianceStamped, the type of amcl_pose and
// initialpose.
type PoseWithCovarianceStamped struct {
	Header Header             `json:"header"`
	Pose   PoseWithCovariance `json:"pose"`
}

// Bool is std_msgs/Bool.
type Bool struct {
	Data bool `json:"data"`
}

// EmptyRequest is the request half of std_srvs/Empty.
type EmptyRequest struct{}

// EmptyResponse is the response half of std_srvs/Empty.
type EmptyResponse struct{}

// BagMessage is one message of a topic as gobag renders it to JSON: the record time plus the
// decoded message.
type BagMessage[T any] struct {
	Meta Time `json:"meta"`
	Data T    `json:"data"`
}
