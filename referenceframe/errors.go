package referenceframe

import "github.com/pkg/errors"

// NewInvalidFrameNameError returns an error indicating that `name` cannot be used as a frame id.
func NewInvalidFrameNameError(name, reason string) error {
	return errors.Errorf("invalid frame name %q: %s", name, reason)
}
