package bridge

import "github.com/pkg/errors"

var (
	// ErrEStopPressed is the reason an enable command had no effect: the emergency stop is
	// pressed, so the motors stay off.
	ErrEStopPressed = errors.New("e-stop pressed, motors will not enable")
	// ErrLocalizationFailed is the reason a global localization command had no effect.
	ErrLocalizationFailed = errors.New("localization at home failed")
	// ErrNonFinitePose is returned for pose corrections containing NaN or infinite values.
	ErrNonFinitePose = errors.New("pose is not finite")
	// ErrClosed is returned by commands on a closed node.
	ErrClosed = errors.New("bridge node closed")
)
