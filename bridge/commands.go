package bridge

import (
	"context"

	"github.com/pkg/errors"

	"go.viam.com/navbridge/arnl"
	"go.viam.com/navbridge/ros"
)

// Command names a Command Surface operation.
type Command string

// The commands a Node accepts.
const (
	CommandEnableMotors       Command = EnableMotorsService
	CommandDisableMotors      Command = DisableMotorsService
	CommandGlobalLocalization Command = GlobalLocalizationService
)

// CommandResult separates issuing a command from the command having its intended effect. An
// issued command that had no effect carries the reason.
type CommandResult struct {
	Command   Command
	Issued    bool
	Effective bool
	Reason    error
}

// Err returns nil for an effective command and otherwise an error describing why it was not.
func (r CommandResult) Err() error {
	switch {
	case r.Effective:
		return nil
	case r.Reason != nil:
		return errors.Wrapf(r.Reason, "%s", r.Command)
	case !r.Issued:
		return errors.Errorf("%s was not issued", r.Command)
	default:
		return errors.Errorf("%s had no effect", r.Command)
	}
}

// EnableMotors asks the robot to enable its motors. The enable is issued even while the e-stop is
// pressed, in which case a warning is logged and the result says it had no effect.
func (n *Node) EnableMotors(ctx context.Context) (CommandResult, error) {
	res := CommandResult{Command: CommandEnableMotors}
	if err := n.checkIssuable(ctx); err != nil {
		return res, err
	}
	n.logger.CInfo(ctx, "Enable motors request")

	var eStopPressed bool
	if err := n.robot.Locked(func(h arnl.Handle) error {
		eStopPressed = h.IsEStopPressed()
		if eStopPressed {
			n.logger.CWarn(ctx, "Enable motors requested, but robot also has E-Stop button pressed. Motors will not enable.")
		}
		h.EnableMotors()
		return nil
	}); err != nil {
		return res, errors.Wrap(err, "enabling motors")
	}

	res.Issued = true
	res.Effective = !eStopPressed
	if eStopPressed {
		res.Reason = ErrEStopPressed
	}
	return res, nil
}

// DisableMotors asks the robot to disable its motors.
func (n *Node) DisableMotors(ctx context.Context) (CommandResult, error) {
	res := CommandResult{Command: CommandDisableMotors}
	if err := n.checkIssuable(ctx); err != nil {
		return res, err
	}
	n.logger.CInfo(ctx, "Disable motors request")

	if err := n.robot.Locked(func(h arnl.Handle) error {
		h.DisableMotors()
		return nil
	}); err != nil {
		return res, errors.Wrap(err, "disabling motors")
	}

	res.Issued = true
	res.Effective = true
	return res, nil
}

// GlobalLocalization blocks while the localizer relocalizes the robot at its home pose. The node
// imposes no deadline; only ctx can cut it short. A failed localization is logged as a warning
// and reported in the result.
func (n *Node) GlobalLocalization(ctx context.Context) (CommandResult, error) {
	res := CommandResult{Command: CommandGlobalLocalization}
	if err := n.checkIssuable(ctx); err != nil {
		return res, err
	}
	n.logger.CInfo(ctx, "Localize init (global_localization service) request")

	res.Issued = true
	ok, err := n.localizer.LocalizeAtHome(ctx)
	switch {
	case err != nil:
		res.Reason = errors.Wrap(err, ErrLocalizationFailed.Error())
	case !ok:
		res.Reason = ErrLocalizationFailed
	default:
		res.Effective = true
		return res, nil
	}
	n.logger.CWarnw(ctx, "Error in initial localization", "reason", res.Reason)
	return res, nil
}

func (n *Node) checkIssuable(ctx context.Context) error {
	if n.isClosed() {
		return ErrClosed
	}
	return ctx.Err()
}

// commandService adapts a command to a std_srvs/Empty service. Unless StrictCommands is set, a
// command that was issued but had no effect still answers successfully.
func (n *Node) commandService(
	cmd func(context.Context) (CommandResult, error),
) func(context.Context, ros.EmptyRequest) (ros.EmptyResponse, error) {
	return func(ctx context.Context, _ ros.EmptyRequest) (ros.EmptyResponse, error) {
		res, err := cmd(ctx)
		if err != nil {
			return ros.EmptyResponse{}, err
		}
		if n.cfg.StrictCommands {
			return ros.EmptyResponse{}, res.Err()
		}
		return ros.EmptyResponse{}, nil
	}
}
