// Package recorder captures messages seen on pubsub topics into a file of length-delimited
// protobuf records.
package recorder

import (
	"os"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"
	"google.golang.org/protobuf/types/known/structpb"

	"go.viam.com/navbridge/logging"
	"go.viam.com/navbridge/protoutils"
	"go.viam.com/navbridge/pubsub"
	"go.viam.com/navbridge/ros"
)

// InProgressExt is appended to the capture path while the recorder is still writing to it.
const InProgressExt = ".prog"

// Record field names.
const (
	topicKey   = "topic"
	stampKey   = "stamp"
	messageKey = "message"
)

// queueSize bounds how far the recorder may fall behind a topic before dropping messages.
const queueSize = 100

// Recorder subscribes to a set of topics and appends every message it receives to a capture
// file.
type Recorder struct {
	path   string
	file   *os.File
	writer *protoutils.DelimitedProtoWriter[*structpb.Struct]
	clk    clock.Clock
	logger logging.Logger

	subs []pubsub.Subscription

	mu       sync.Mutex
	count    int
	failures int
	closed   bool
}

// New starts recording `topics` as seen by node `ps` into `path`. The file is written as
// path+InProgressExt and renamed to path on Close.
func New(ps pubsub.Node, path string, topics []string, clk clock.Clock, logger logging.Logger) (_ *Recorder, err error) {
	if len(topics) == 0 {
		return nil, errors.New("no topics to record")
	}
	if clk == nil {
		clk = clock.New()
	}
	//nolint:gosec
	f, err := os.OpenFile(path+InProgressExt, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return nil, errors.Wrap(err, "opening capture file")
	}
	r := &Recorder{
		path:   path,
		file:   f,
		writer: protoutils.NewDelimitedProtoWriter[*structpb.Struct](f),
		clk:    clk,
		logger: logger,
	}
	defer func() {
		if err != nil {
			err = multierr.Combine(err, r.closeSubscriptions(), f.Close(), os.Remove(f.Name()))
		}
	}()

	for _, topic := range topics {
		resolved := ps.ResolveName(topic)
		sub, err := ps.Subscribe(topic, queueSize, func(msg interface{}) {
			r.record(resolved, msg)
		})
		if err != nil {
			return nil, errors.Wrapf(err, "subscribing to %s", topic)
		}
		r.subs = append(r.subs, sub)
	}
	logger.Infow("recording", "path", path, "topics", topics)
	return r, nil
}

func (r *Recorder) record(topic string, msg interface{}) {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return
	}

	rec, err := NewRecord(topic, r.clk.Now(), msg)
	if err == nil {
		err = r.writer.Append(rec)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.failures++
		r.logger.Warnw("failed to record message", "topic", topic, "error", err)
		return
	}
	r.count++
}

// Path returns where the capture file ends up once the recorder is closed.
func (r *Recorder) Path() string {
	return r.path
}

// Count returns how many messages were recorded so far.
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Failures returns how many messages could not be recorded.
func (r *Recorder) Failures() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failures
}

func (r *Recorder) closeSubscriptions() error {
	var errs error
	for _, sub := range r.subs {
		errs = multierr.Combine(errs, sub.Close())
	}
	r.subs = nil
	return errs
}

// Close stops recording, flushes the capture file and moves it to its final path.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	err := multierr.Combine(
		r.closeSubscriptions(),
		r.file.Sync(),
		r.writer.Close(),
	)
	if err != nil {
		return err
	}
	if err := os.Rename(r.file.Name(), r.path); err != nil {
		return errors.Wrap(err, "finalizing capture file")
	}
	r.logger.Infow("recording finished", "path", r.path, "messages", r.Count())
	return nil
}

// Record is one captured message.
type Record struct {
	Topic   string
	Stamp   time.Time
	Message *structpb.Struct
}

// NewRecord encodes a message seen on `topic` at `stamp`.
func NewRecord(topic string, stamp time.Time, msg interface{}) (*structpb.Struct, error) {
	message, err := protoutils.MessageToStruct(msg)
	if err != nil {
		return nil, errors.Wrapf(err, "encoding %T", msg)
	}
	rosStamp, err := protoutils.MessageToStruct(ros.NewTime(stamp))
	if err != nil {
		return nil, err
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		topicKey:   structpb.NewStringValue(topic),
		stampKey:   structpb.NewStructValue(rosStamp),
		messageKey: structpb.NewStructValue(message),
	}}, nil
}

// RecordFromStruct decodes a record written by a Recorder.
func RecordFromStruct(s *structpb.Struct) (Record, error) {
	topic, ok := s.GetFields()[topicKey]
	if !ok {
		return Record{}, errors.Errorf("record missing %q", topicKey)
	}
	stamp, err := protoutils.StructToMessage[ros.Time](s.GetFields()[stampKey].GetStructValue())
	if err != nil {
		return Record{}, errors.Wrapf(err, "record %q", stampKey)
	}
	message := s.GetFields()[messageKey].GetStructValue()
	if message == nil {
		return Record{}, errors.Errorf("record missing %q", messageKey)
	}
	return Record{
		Topic:   topic.GetStringValue(),
		Stamp:   stamp.Time(),
		Message: message,
	}, nil
}

// ReadFile returns every record of a capture file, oldest first.
func ReadFile(path string) ([]Record, error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	reader := protoutils.NewDelimitedProtoReader[structpb.Struct](f)
	defer goutils.UncheckedErrorFunc(reader.Close)

	var records []Record
	for s, err := range reader.All() {
		if err != nil {
			return records, errors.Wrapf(err, "reading %s", path)
		}
		rec, err := RecordFromStruct(s)
		if err != nil {
			return records, err
		}
		records = append(records, rec)
	}
	return records, nil
}
