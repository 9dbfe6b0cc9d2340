// Package main runs a bridge node between a simulated ARNL navigation system and in-process ROS
// style topics, optionally recording the bridged messages and serving them over gRPC.
package main

import (
	"context"
	"net"
	"os"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	goutils "go.viam.com/utils"
	"google.golang.org/grpc"

	"go.viam.com/navbridge/arnl"
	"go.viam.com/navbridge/arnl/fake"
	"go.viam.com/navbridge/bridge"
	"go.viam.com/navbridge/grpc/server"
	"go.viam.com/navbridge/logging"
	"go.viam.com/navbridge/pubsub"
	"go.viam.com/navbridge/recorder"
	"go.viam.com/navbridge/ros"
)

// Process exit codes.
const (
	exitSetupFailed = 2
	exitDisconnect  = 9
)

var logger = logging.NewLogger("navbridge")

func main() {
	goutils.ContextualMain(mainWithArgs, logger)
}

// Arguments for the command.
type Arguments struct {
	Name        string `flag:"name,default=rosarnl_node,usage=node name"`
	Frame       string `flag:"frame,default=map,usage=frame published poses are expressed in"`
	TFPrefix    string `flag:"tf-prefix,usage=prefix applied to the frame"`
	Strict      bool   `flag:"strict,usage=fail command services that do not take effect"`
	SimPeriod   int    `flag:"sim-period,default=100,usage=simulated sensor interpretation period in milliseconds"`
	EStop       bool   `flag:"estop,usage=start with the simulated e-stop pressed"`
	Replay      string `flag:"replay,usage=rosbag whose poses the simulated robot follows"`
	ReplayTopic string `flag:"replay-topic,default=/amcl_pose,usage=topic of the replayed poses"`
	Record      string `flag:"record,usage=file to record bridged messages into"`
	GRPC        string `flag:"grpc,usage=address to serve the grpc api on"`
	LogFile     string `flag:"log-file,usage=also write logs to this file"`
	LogLevel    string `flag:"log-level,default=info,usage=one of debug info warn or error"`
	Debug       bool   `flag:"debug"`
}

func mainWithArgs(ctx context.Context, args []string, logger logging.Logger) error {
	var argsParsed Arguments
	if err := goutils.ParseFlags(args, &argsParsed); err != nil {
		return err
	}
	logger, err := processLogger(argsParsed, logger)
	if err != nil {
		return err
	}
	if argsParsed.LogFile != "" {
		fileAppender := logging.NewFileAppender(argsParsed.LogFile, 100, 3)
		defer goutils.UncheckedErrorFunc(fileAppender.Close)
		logger.AddAppender(fileAppender)
	}
	return runNode(ctx, argsParsed, logger, os.Exit)
}

// processLogger applies the logging flags. --debug turns on debug output everywhere and wins over
// --log-level.
func processLogger(args Arguments, logger logging.Logger) (logging.Logger, error) {
	if args.Debug {
		logging.GlobalLogLevel.SetLevel(zap.DebugLevel)
		return logging.NewDebugLogger("navbridge"), nil
	}
	level, err := logging.LevelFromString(args.LogLevel)
	if err != nil {
		return nil, errors.Wrap(err, "--log-level")
	}
	logger.SetLevel(level)
	return logger, nil
}

func simConfig(args Arguments) (fake.Config, error) {
	return fake.ConfigFromAttributes(map[string]interface{}{
		"sensor_interp_period_ms": args.SimPeriod,
		"estop_pressed":           args.EStop,
		"lasers":                  []interface{}{"laser_1"},
	})
}

func bridgeConfig(args Arguments) (bridge.Config, error) {
	return bridge.ConfigFromAttributes(map[string]interface{}{
		"frame_id":        args.Frame,
		"tf_prefix":       args.TFPrefix,
		"strict_commands": args.Strict,
	})
}

// runNode connects to the robot, runs the bridge until ctx is done and then shuts it down. exit
// is called when the robot cannot be set up or disconnects.
func runNode(ctx context.Context, args Arguments, logger logging.Logger, exit func(code int)) (err error) {
	bridgeCfg, err := bridgeConfig(args)
	if err != nil {
		return err
	}

	simCfg, err := simConfig(args)
	if err != nil {
		logger.Errorw("ARNL server setup failed", "error", err)
		exit(exitSetupFailed)
		return err
	}
	sys, err := fake.NewSystem(simCfg, nil, arnl.ForwardLogs(logger.Sublogger("ARNL")))
	if err != nil {
		logger.Errorw("ARNL server setup failed", "error", err)
		exit(exitSetupFailed)
		return err
	}
	defer func() {
		err = multierr.Combine(err, sys.Close(context.Background()))
	}()

	robot := sys.Robot()
	exitOnDisconnect(robot, logger, exit)

	if args.Replay != "" {
		if err := replay(sys.FakeRobot(), args.Replay, args.ReplayTopic, logger); err != nil {
			return err
		}
	}

	psNode, err := pubsub.NewLocalNode(pubsub.NewBus(), args.Name, pubsub.PrivateNamespace, logger.Sublogger("pubsub"))
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, psNode.Close())
	}()

	node, err := bridge.New(robot, sys.Localizer(), psNode, bridgeCfg, logger.Sublogger(args.Name))
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, node.Close(context.Background()))
	}()

	if args.Record != "" {
		rec, err := recorder.New(psNode, args.Record,
			[]string{bridge.PoseTopic, bridge.MotorsStateTopic, bridge.InitialPoseTopic},
			nil, logger.Sublogger("recorder"))
		if err != nil {
			return err
		}
		defer func() {
			err = multierr.Combine(err, rec.Close())
		}()
	}

	if args.GRPC != "" {
		stop, err := serveGRPC(args.GRPC, node, psNode, logger.Sublogger("grpc"))
		if err != nil {
			return err
		}
		defer stop()
	}

	goutils.ContextMainReadyFunc(ctx)()
	<-ctx.Done()
	return nil
}

// exitOnDisconnect ends the process when the robot or any of its lasers loses its connection.
func exitOnDisconnect(robot arnl.Robot, logger logging.Logger, exit func(code int)) {
	robot.AddDisconnectOnErrorCB(func() {
		logger.Error("Error: Connection to robot lost, exiting")
		exit(exitDisconnect)
	})
	for num, laser := range robot.Lasers() {
		laser.AddDisconnectOnErrorCB(func() {
			logger.Errorf("Error: Connection to laser %d %s lost, exiting", num, laser.Name())
			exit(exitDisconnect)
		})
	}
}

func replay(robot *fake.Robot, filename, topic string, logger logging.Logger) error {
	msgs, err := ros.ReadPoseTrack(filename, topic)
	if err != nil {
		return errors.Wrapf(err, "reading replay %s", filename)
	}
	track := make([]arnl.Pose, 0, len(msgs))
	for _, msg := range msgs {
		track = append(track, bridge.ToInternal(msg.Pose.Pose.ToSpatial()))
	}
	robot.SetPoseTrack(track)
	logger.Infow("replaying poses", "file", filename, "topic", topic, "poses", len(track))
	return nil
}

func serveGRPC(address string, node *bridge.Node, ps pubsub.Node, logger logging.Logger) (func(), error) {
	lis, err := net.Listen("tcp", address)
	if err != nil {
		return nil, errors.Wrapf(err, "listening on %s", address)
	}
	srv := server.New(node, ps, logger)
	gs := grpc.NewServer(server.ServerOptions()...)
	srv.Register(gs)

	served := make(chan struct{})
	goutils.PanicCapturingGo(func() {
		defer close(served)
		if err := gs.Serve(lis); err != nil {
			logger.Errorw("grpc server stopped", "error", err)
		}
	})
	logger.Infow("serving grpc", "address", lis.Addr().String())
	return func() {
		srv.Close()
		gs.GracefulStop()
		<-served
	}, nil
}
