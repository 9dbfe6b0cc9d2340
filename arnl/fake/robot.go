package fake

import (
	"sort"
	"sync"

	"github.com/pkg/errors"

	"go.viam.com/navbridge/arnl"
)

var _ arnl.Robot = &Robot{}

type sensorInterpTask struct {
	name     string
	priority int
	run      arnl.SensorInterpTask
}

// Robot is an in-memory arnl.Robot. All of its state is guarded by a single mutex that is held
// while sensor-interpretation tasks run, just like the SDK's robot lock.
type Robot struct {
	mu            sync.Mutex
	pose          arnl.Pose
	motorsEnabled bool
	eStopPressed  bool
	tasks         []sensorInterpTask
	poseTrack     []arnl.Pose
	cycles        int
	closed        bool

	cbMu          sync.Mutex
	disconnectCBs []func()
	lasers        map[int]*Laser
}

func newRobot(cfg *Config) *Robot {
	r := &Robot{
		pose:          cfg.InitialPose,
		motorsEnabled: cfg.MotorsEnabled && !cfg.EStopPressed,
		eStopPressed:  cfg.EStopPressed,
		lasers:        make(map[int]*Laser, len(cfg.Lasers)),
	}
	for i, name := range cfg.Lasers {
		r.lasers[i+1] = &Laser{name: name}
	}
	return r
}

// Locked calls fn with the robot locked. The lock is released however fn returns, including by
// panicking.
func (r *Robot) Locked(fn func(h arnl.Handle) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return arnl.ErrClosed
	}
	return fn(&handle{r: r})
}

// RunSensorInterp runs one sensor-interpretation cycle: the next pose of the replay track (if
// any) becomes the robot's pose, then every task runs in priority order under the lock.
func (r *Robot) RunSensorInterp() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return arnl.ErrClosed
	}

	if len(r.poseTrack) > 0 {
		r.pose = r.poseTrack[0]
		r.poseTrack = r.poseTrack[1:]
	}
	r.cycles++

	h := &handle{r: r}
	for _, task := range append([]sensorInterpTask(nil), r.tasks...) {
		task.run(h)
	}
	return nil
}

// Cycles returns how many sensor-interpretation cycles have run.
func (r *Robot) Cycles() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cycles
}

// SetEStop presses or releases the emergency stop. Pressing it cuts the motors.
func (r *Robot) SetEStop(pressed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.eStopPressed = pressed
	if pressed {
		r.motorsEnabled = false
	}
}

// SetPose moves the robot, as if odometry had reported it somewhere new.
func (r *Robot) SetPose(p arnl.Pose) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pose = p
}

// SetPoseTrack queues poses to be adopted one per sensor-interpretation cycle.
func (r *Robot) SetPoseTrack(track []arnl.Pose) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.poseTrack = append([]arnl.Pose(nil), track...)
}

// PoseTrackRemaining returns how many replay poses have not been adopted yet.
func (r *Robot) PoseTrackRemaining() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.poseTrack)
}

// TaskNames returns the registered sensor-interpretation tasks in the order they run.
func (r *Robot) TaskNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.tasks))
	for _, task := range r.tasks {
		names = append(names, task.name)
	}
	return names
}

// AddDisconnectOnErrorCB registers cb to be called when the connection to the robot is lost.
func (r *Robot) AddDisconnectOnErrorCB(cb func()) {
	r.cbMu.Lock()
	defer r.cbMu.Unlock()
	r.disconnectCBs = append(r.disconnectCBs, cb)
}

// Lasers returns the robot's lasers keyed by their SDK number, starting at 1.
func (r *Robot) Lasers() map[int]arnl.Laser {
	r.cbMu.Lock()
	defer r.cbMu.Unlock()
	lasers := make(map[int]arnl.Laser, len(r.lasers))
	for num, laser := range r.lasers {
		lasers[num] = laser
	}
	return lasers
}

// TriggerDisconnect simulates losing the robot connection: the robot's callbacks fire, then every
// laser's.
func (r *Robot) TriggerDisconnect() {
	r.cbMu.Lock()
	cbs := append([]func(){}, r.disconnectCBs...)
	nums := make([]int, 0, len(r.lasers))
	for num := range r.lasers {
		nums = append(nums, num)
	}
	r.cbMu.Unlock()

	for _, cb := range cbs {
		cb()
	}
	sort.Ints(nums)
	for _, num := range nums {
		r.lasers[num].TriggerDisconnect()
	}
}

func (r *Robot) close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.tasks = nil
}

// handle is only used while Robot.mu is held.
type handle struct {
	r *Robot
}

func (h *handle) Pose() arnl.Pose {
	return h.r.pose
}

func (h *handle) AreMotorsEnabled() bool {
	return h.r.motorsEnabled
}

func (h *handle) IsEStopPressed() bool {
	return h.r.eStopPressed
}

// EnableMotors has no effect while the e-stop is pressed.
func (h *handle) EnableMotors() {
	if h.r.eStopPressed {
		return
	}
	h.r.motorsEnabled = true
}

func (h *handle) DisableMotors() {
	h.r.motorsEnabled = false
}

func (h *handle) AddSensorInterpTask(name string, priority int, task arnl.SensorInterpTask) error {
	if task == nil {
		return errors.Errorf("sensor interp task %q is nil", name)
	}
	for _, existing := range h.r.tasks {
		if existing.name == name {
			return errors.Errorf("sensor interp task %q already registered", name)
		}
	}
	h.r.tasks = append(h.r.tasks, sensorInterpTask{name: name, priority: priority, run: task})
	sort.SliceStable(h.r.tasks, func(i, j int) bool {
		return h.r.tasks[i].priority > h.r.tasks[j].priority
	})
	return nil
}

func (h *handle) RemoveSensorInterpTask(name string) {
	for i, existing := range h.r.tasks {
		if existing.name == name {
			h.r.tasks = append(h.r.tasks[:i], h.r.tasks[i+1:]...)
			return
		}
	}
}

// Laser is an in-memory arnl.Laser.
type Laser struct {
	name string

	mu            sync.Mutex
	disconnectCBs []func()
}

// Name returns the laser's name.
func (l *Laser) Name() string {
	return l.name
}

// AddDisconnectOnErrorCB registers cb to be called when the laser stops responding.
func (l *Laser) AddDisconnectOnErrorCB(cb func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.disconnectCBs = append(l.disconnectCBs, cb)
}

// TriggerDisconnect simulates the laser failing.
func (l *Laser) TriggerDisconnect() {
	l.mu.Lock()
	cbs := append([]func(){}, l.disconnectCBs...)
	l.mu.Unlock()
	for _, cb := range cbs {
		cb()
	}
}
