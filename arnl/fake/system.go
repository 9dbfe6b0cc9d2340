package fake

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"go.viam.com/navbridge/arnl"
	"go.viam.com/navbridge/utils"
)

var _ arnl.System = &System{}

// System is an in-memory arnl.System.
type System struct {
	robot     *Robot
	localizer *Localizer
	log       arnl.LogHandler

	closeOnce sync.Once
	workers   utils.StoppableWorkers
}

// NewSystem validates cfg and sets up a simulated robot. SDK log lines are handed to `log`, which
// may be nil. When cfg has a sensor-interpretation period the tasks run on `clk`'s ticker until
// Close.
func NewSystem(cfg Config, clk clock.Clock, log arnl.LogHandler) (*System, error) {
	if err := cfg.Validate(""); err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.New()
	}
	if log == nil {
		log = func(string, arnl.LogLevel) {}
	}

	robot := newRobot(&cfg)
	s := &System{
		robot: robot,
		localizer: &Localizer{
			robot:    robot,
			clk:      clk,
			log:      log,
			home:     cfg.Home,
			delay:    cfg.localizeDelay(),
			fails:    cfg.LocalizeFails,
			variance: cfg.Variance,
		},
		log: log,
	}
	log("Connected to simulated robot", arnl.Normal)
	for num, laser := range robot.lasers {
		log(laserConnectedMsg(num, laser.name), arnl.Verbose)
	}

	if period := cfg.sensorInterpPeriod(); period > 0 {
		s.workers = utils.NewStoppableWorkers(func(ctx context.Context) {
			s.sensorInterpLoop(ctx, clk, period)
		})
	}
	return s, nil
}

func laserConnectedMsg(num int, name string) string {
	return "Connected to laser " + strconv.Itoa(num) + " " + name
}

func (s *System) sensorInterpLoop(ctx context.Context, clk clock.Clock, period time.Duration) {
	ticker := clk.Ticker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if err := s.robot.RunSensorInterp(); err != nil {
			return
		}
	}
}

// Robot returns the simulated robot.
func (s *System) Robot() arnl.Robot {
	return s.robot
}

// Localizer returns the simulated localization task.
func (s *System) Localizer() arnl.Localizer {
	return s.localizer
}

// FakeRobot returns the simulated robot with its test controls.
func (s *System) FakeRobot() *Robot {
	return s.robot
}

// FakeLocalizer returns the simulated localizer with its test controls.
func (s *System) FakeLocalizer() *Localizer {
	return s.localizer
}

// Close stops the sensor-interpretation loop and closes the robot. It is safe to call more than
// once.
func (s *System) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		if s.workers != nil {
			s.workers.Stop()
		}
		s.robot.close()
		s.log("Disconnected from simulated robot", arnl.Normal)
	})
	return nil
}
