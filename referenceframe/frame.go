// Package referenceframe names the coordinate frames poses are expressed in.
package referenceframe

import (
	"strconv"
	"strings"
	"unicode"
)

// Map is the fixed frame the localizer reports poses in, and the default frame of every published
// pose estimate.
const Map = "map"

// ResolveFrameID prefixes `frame` with `tfPrefix` so that several robots can share one set of
// topics, e.g. ResolveFrameID("robot1", "map") == "robot1/map". A frame that starts with "/" is
// already fully qualified and is only stripped of its leading slash. Empty prefixes are a no-op.
func ResolveFrameID(tfPrefix, frame string) string {
	if strings.HasPrefix(frame, "/") {
		return strings.TrimLeft(frame, "/")
	}
	prefix := strings.Trim(tfPrefix, "/")
	if prefix == "" {
		return frame
	}
	return prefix + "/" + frame
}

// ValidateFrameName checks that `name` can be used as a frame id: non-empty, free of whitespace
// and not a bare number.
func ValidateFrameName(name string) error {
	if name == "" {
		return NewInvalidFrameNameError(name, "must not be empty")
	}
	if strings.IndexFunc(name, unicode.IsSpace) >= 0 {
		return NewInvalidFrameNameError(name, "must not contain whitespace")
	}
	if _, err := strconv.ParseFloat(strings.Trim(name, "/"), 64); err == nil {
		return NewInvalidFrameNameError(name, "must be a name, not a number")
	}
	return nil
}
