package protoutils

import (
	"bufio"
	"encoding/binary"
	"io"
	"iter"
	"math"
	"sync"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/proto"
)

// ErrTruncated is yielded when a stream ends in the middle of a message.
var ErrTruncated = errors.New("truncated delimited proto stream")

// lengthPrefixSize is the size of the little endian uint32 preceding each message.
const lengthPrefixSize = 4

// DelimitedProtoWriter writes proto messages to an [io.Writer]. Each message is prefixed by its
// size in bytes so individual messages can later be retrieved. It is safe for concurrent use.
// See also: [DelimitedProtoReader].
type DelimitedProtoWriter[M proto.Message] struct {
	mu     sync.Mutex
	writer io.Writer
}

// NewDelimitedProtoWriter creates a [DelimitedProtoWriter].
func NewDelimitedProtoWriter[M proto.Message](writer io.Writer) *DelimitedProtoWriter[M] {
	return &DelimitedProtoWriter[M]{writer: writer}
}

// Append marshals the provided message and writes it to the underlying [io.Writer]. The length
// prefix and the message go out in a single write.
func (o *DelimitedProtoWriter[M]) Append(message M) error {
	messageBytes, err := proto.Marshal(message)
	if err != nil {
		return err
	}
	if uint64(len(messageBytes)) > math.MaxUint32 {
		return errors.Errorf("message of %d bytes is too large", len(messageBytes))
	}
	buf := make([]byte, lengthPrefixSize, lengthPrefixSize+len(messageBytes))
	binary.LittleEndian.PutUint32(buf, uint32(len(messageBytes)))
	buf = append(buf, messageBytes...)

	o.mu.Lock()
	defer o.mu.Unlock()
	_, err = o.writer.Write(buf)
	return err
}

// Close will close the underlying writer if it is a [io.Closer]. Otherwise it is a noop.
func (o *DelimitedProtoWriter[_]) Close() error {
	if closer, ok := o.writer.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// DelimitedProtoReader iterates over proto messages from an [io.Reader] with contents created by
// [DelimitedProtoWriter], unmarshalling each one into a new T.
type DelimitedProtoReader[T any, M interface {
	*T
	proto.Message
}] struct {
	reader io.Reader
}

// NewDelimitedProtoReader creates a [DelimitedProtoReader].
func NewDelimitedProtoReader[T any, M interface {
	*T
	proto.Message
}](reader io.Reader) *DelimitedProtoReader[T, M] {
	return &DelimitedProtoReader[T, M]{reader: reader}
}

// All returns an [iter.Seq2] over the messages of the stream. A read or decode failure is
// yielded once as a nil message with the error and ends the iteration.
func (o *DelimitedProtoReader[T, M]) All() iter.Seq2[M, error] {
	return func(yield func(M, error) bool) {
		for messageBytes, err := range rawMessages(o.reader) {
			if err != nil {
				yield(nil, err)
				return
			}
			message := M(new(T))
			if err := proto.Unmarshal(messageBytes, message); err != nil {
				yield(nil, errors.Wrap(err, "unmarshalling delimited message"))
				return
			}
			if !yield(message, nil) {
				return
			}
		}
	}
}

// Close will close the underlying reader if it is a [io.Closer]. Otherwise it is a noop.
func (o *DelimitedProtoReader[_, _]) Close() error {
	if closer, ok := o.reader.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// rawMessages yields the encoded messages of a delimited stream. The yielded slice is only valid
// until the next iteration.
func rawMessages(reader io.Reader) iter.Seq2[[]byte, error] {
	// 2 GiB, as defined by the protobuf spec, plus the length header. Fall back to max int so
	// 32-bit builds work.
	const realMaxSize = min(1024*1024*1024*2+lengthPrefixSize, math.MaxInt)
	return func(yield func([]byte, error) bool) {
		scanner := bufio.NewScanner(reader)
		scanner.Buffer(nil, realMaxSize)
		scanner.Split(splitMessages)
		for scanner.Scan() {
			if !yield(scanner.Bytes(), nil) {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			yield(nil, err)
		}
	}
}

func splitMessages(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if len(data) < lengthPrefixSize {
		if atEOF && len(data) > 0 {
			return 0, nil, ErrTruncated
		}
		// Need at least the length header.
		return 0, nil, nil
	}
	messageSize := int(binary.LittleEndian.Uint32(data[:lengthPrefixSize]))
	if len(data)-lengthPrefixSize < messageSize {
		if atEOF {
			return 0, nil, ErrTruncated
		}
		return 0, nil, nil
	}
	return lengthPrefixSize + messageSize, data[lengthPrefixSize : lengthPrefixSize+messageSize], nil
}
