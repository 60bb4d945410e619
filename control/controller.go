package control

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/ranhaber/car-x/calibration"
	"github.com/ranhaber/car-x/command"
	"github.com/ranhaber/car-x/motion"
	"github.com/ranhaber/car-x/odometry"
	"github.com/ranhaber/car-x/picar"
	"github.com/ranhaber/car-x/pool"
)

// Config holds the controller's timing knobs.
type Config struct {
	TickHz float64

	// LostCycles is the number of consecutive invalid tracker cycles
	// before the target counts as lost. A single miss never does.
	LostCycles int

	// GotoTimeout bounds the directed drive toward a commanded position.
	GotoTimeout time.Duration
	// LostSearchTimeout bounds the re-acquire search before widening to
	// a full search.
	LostSearchTimeout time.Duration

	// StaleHorizon is how old frame or tracker data may get before the
	// controller assumes a pipeline thread died and forces a stop.
	StaleHorizon time.Duration

	// ReconcileEveryK freezes the detector snapshot every K'th tick.
	ReconcileEveryK int
}

// DefaultConfig returns the timing used on the car.
func DefaultConfig() Config {
	return Config{
		TickHz:            30,
		LostCycles:        15,
		GotoTimeout:       20 * time.Second,
		LostSearchTimeout: 10 * time.Second,
		StaleHorizon:      time.Second,
		ReconcileEveryK:   10,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.TickHz <= 0 {
		c.TickHz = d.TickHz
	}
	if c.LostCycles <= 0 {
		c.LostCycles = d.LostCycles
	}
	if c.GotoTimeout <= 0 {
		c.GotoTimeout = d.GotoTimeout
	}
	if c.LostSearchTimeout <= 0 {
		c.LostSearchTimeout = d.LostSearchTimeout
	}
	if c.StaleHorizon <= 0 {
		c.StaleHorizon = d.StaleHorizon
	}
	if c.ReconcileEveryK <= 0 {
		c.ReconcileEveryK = d.ReconcileEveryK
	}
	return c
}

// CycleCounter reports how many cycles a loop has completed. Satisfied by
// the tracker and the detector; used for cadence reporting only.
type CycleCounter interface {
	Cycles() uint64
}

// Status is the read-only snapshot exposed to external observers. Polling
// it never mutates controller state.
type Status struct {
	State        string  `json:"state"`
	PoseXCm      float64 `json:"pose_x_cm"`
	PoseYCm      float64 `json:"pose_y_cm"`
	HeadingDeg   float64 `json:"heading_deg"`
	BoxX         float64 `json:"box_x"`
	BoxY         float64 `json:"box_y"`
	BoxW         float64 `json:"box_w"`
	BoxH         float64 `json:"box_h"`
	BoxValid     bool    `json:"box_valid"`
	BoxConf      float64 `json:"box_confidence"`
	DistanceCm   float64 `json:"distance_cm"`
	DistanceOK   bool    `json:"distance_ok"`
	TrackerHz    float64 `json:"tracker_hz"`
	DetectorHz   float64 `json:"detector_hz"`
	CaptureHz    float64 `json:"capture_hz"`
	FrameSeq     uint64  `json:"frame_seq"`
	UptimeSec    float64 `json:"uptime_sec"`
	TargetXCm    float64 `json:"target_x_cm"`
	TargetYCm    float64 `json:"target_y_cm"`
	TargetSet    bool    `json:"target_set"`
	SteerDeg     float64 `json:"steer_deg"`
	Speed        int     `json:"speed"`
}

// Controller runs the deterministic tick: poll commands, dispatch the
// state machine, plan motion, actuate, integrate odometry, publish status.
// It never blocks on vision latency; every input is a bounded read from
// the pool.
type Controller struct {
	cfg     Config
	sm      *Machine
	shared  *pool.Pool
	cmds    *command.Channel
	planner *motion.Planner
	act     picar.Actuator
	ranger  picar.Ranger
	odo     *odometry.Estimator
	calib   *calibration.Calibration

	tracker  CycleCounter
	detector CycleCounter

	tick         uint64
	lostCount    int
	stateEntered time.Time
	lastDrive    motion.Drive
	started      time.Time

	// cadence sampling
	lastSample   time.Time
	lastTrackerN uint64
	lastDetectN  uint64
	lastFrameN   uint64
	trackerHz    float64
	detectorHz   float64
	captureHz    float64

	muStatus sync.RWMutex
	status   Status

	now func() time.Time
}

// New wires the controller. All collaborators are passed in; the
// controller owns none of their lifecycles except the actuator halt on
// shutdown.
func New(cfg Config, shared *pool.Pool, cmds *command.Channel, planner *motion.Planner,
	act picar.Actuator, ranger picar.Ranger, odo *odometry.Estimator,
	calib *calibration.Calibration, tracker, detector CycleCounter) *Controller {
	return &Controller{
		cfg:      cfg.withDefaults(),
		sm:       NewMachine(),
		shared:   shared,
		cmds:     cmds,
		planner:  planner,
		act:      act,
		ranger:   ranger,
		odo:      odo,
		calib:    calib,
		tracker:  tracker,
		detector: detector,
		now:      time.Now,
	}
}

// Machine exposes the state machine for inspection.
func (c *Controller) Machine() *Machine { return c.sm }

// Snapshot returns the latest status for external observers.
func (c *Controller) Snapshot() Status {
	c.muStatus.RLock()
	defer c.muStatus.RUnlock()
	return c.status
}

// Run executes the controller loop until ctx is cancelled, then halts the
// car.
func (c *Controller) Run(ctx context.Context) {
	period := time.Duration(float64(time.Second) / c.cfg.TickHz)
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	c.started = c.now()
	c.stateEntered = c.started
	c.lastSample = c.started
	last := c.started

	for {
		select {
		case <-ctx.Done():
			c.act.Halt()
			return
		case <-ticker.C:
			now := c.now()
			c.Step(now.Sub(last).Seconds())
			last = now
		}
	}
}

// dispatch applies an event and tracks state-entry time for timeouts and
// search phases.
func (c *Controller) dispatch(ev Event) State {
	before := c.sm.State()
	after := c.sm.Dispatch(ev)
	if after != before {
		log.Printf("[control] %s --%s--> %s", before, ev, after)
		c.stateEntered = c.now()
	}
	return after
}

// Step executes one controller tick. Exposed so tests can drive the
// controller deterministically without the ticker.
func (c *Controller) Step(dtSec float64) {
	now := c.now()
	c.tick++

	// 1. External commands. Stop overrides everything this tick.
	if cmd, ok := c.cmds.Poll(); ok {
		switch cmd.Kind {
		case command.KindStop:
			c.forceStop("stop command")
		case command.KindTarget:
			before := c.sm.State()
			if c.sm.DispatchSetTarget(cmd.X, cmd.Y) != before {
				log.Printf("[control] %s --set_target(%.0f,%.0f)--> %s", before, cmd.X, cmd.Y, c.sm.State())
				c.stateEntered = now
			}
		}
	}

	// 2. Freeze a detector snapshot every K'th tick.
	if c.tick%uint64(c.cfg.ReconcileEveryK) == 0 {
		c.shared.CopyLatestToSnapshot()
	}

	// 3. Staleness watchdog: a dead capture or tracker thread must not
	// leave the car acting on old data.
	if c.sm.State() != StateIdle && c.pipelineStale(now) {
		log.Printf("[control] pipeline data stale beyond %v, forcing stop", c.cfg.StaleHorizon)
		c.forceStop("stale pipeline")
	}

	box := c.shared.TrackerBox()
	distCm, distOK := c.distance(box)

	drive := c.stepState(now, box, distCm, distOK)

	// 5. Actuate. Idle issues only a halt.
	if c.sm.State() == StateIdle {
		c.act.Halt()
		drive = motion.Drive{}
	} else {
		c.act.SetSteerDeg(drive.SteerDeg)
		c.act.SetSpeed(drive.Speed)
	}
	c.lastDrive = drive

	// 6. Integrate odometry from the commanded motion and publish.
	c.odo.Update(dtSec, drive.Speed, drive.SteerDeg)
	c.shared.SetPose(c.odo.Pose())

	c.sampleCadence(now)
	c.publishStatus(now, box, distCm, distOK, drive)
}

// stepState runs the per-state behavior and returns the tick's drive.
func (c *Controller) stepState(now time.Time, box pool.Box, distCm float64, distOK bool) motion.Drive {
	switch c.sm.State() {
	case StateIdle:
		return motion.Drive{}

	case StateGoToTarget:
		if box.Valid {
			c.lostCount = 0
			c.sm.DispatchAcquired(box)
			c.stateEntered = now
			return c.planner.Follow(box, distCm, distOK, false)
		}
		if now.Sub(c.stateEntered) > c.cfg.GotoTimeout {
			c.dispatch(EventTimeout)
			return c.planner.SearchArc(0)
		}
		tx, ty, ok := c.sm.Target()
		if !ok {
			c.dispatch(EventStop)
			return motion.Drive{}
		}
		drive, arrived := c.planner.GoTo(c.odo.Pose(), tx, ty)
		if arrived {
			c.dispatch(EventAtTarget)
		}
		return drive

	case StateSearch:
		if box.Valid {
			c.lostCount = 0
			c.sm.DispatchAcquired(box)
			c.stateEntered = now
			return c.planner.Follow(box, distCm, distOK, false)
		}
		return c.planner.SearchArc(now.Sub(c.stateEntered).Seconds())

	case StateLostSearch:
		if box.Valid {
			c.lostCount = 0
			c.sm.DispatchAcquired(box)
			c.stateEntered = now
			return c.planner.Follow(box, distCm, distOK, false)
		}
		if now.Sub(c.stateEntered) > c.cfg.LostSearchTimeout {
			c.dispatch(EventTimeout)
		}
		return c.planner.SearchArc(now.Sub(c.stateEntered).Seconds())

	case StateApproach:
		if !box.Valid {
			return c.missedTarget()
		}
		c.lostCount = 0
		if distOK && distCm <= c.calib.TargetDistanceCm() {
			c.dispatch(EventDistanceReached)
			return c.planner.Follow(box, distCm, distOK, true)
		}
		return c.planner.Follow(box, distCm, distOK, false)

	case StateTrack:
		if !box.Valid {
			return c.missedTarget()
		}
		c.lostCount = 0
		return c.planner.Follow(box, distCm, distOK, true)
	}
	return motion.Drive{}
}

// missedTarget counts an invalid tracker cycle in Approach/Track. Below
// the loss threshold the car holds steering and stops moving; at the
// threshold it transitions to LostSearch.
func (c *Controller) missedTarget() motion.Drive {
	c.lostCount++
	if c.lostCount >= c.cfg.LostCycles {
		c.lostCount = 0
		c.dispatch(EventTargetLost)
		return c.planner.SearchArc(0)
	}
	return motion.Drive{SteerDeg: c.lastDrive.SteerDeg}
}

// forceStop dispatches Stop, halts the car, and clears transient counters.
func (c *Controller) forceStop(reason string) {
	before := c.sm.State()
	c.sm.Dispatch(EventStop)
	if before != StateIdle {
		log.Printf("[control] %s --stop (%s)--> idle", before, reason)
	}
	c.stateEntered = c.now()
	c.lostCount = 0
	c.lastDrive = motion.Drive{}
	c.act.Halt()
}

// distance resolves the configured primary distance source. The other
// source is entirely unused. A missing reading is "no distance", never an
// error: the planner falls back to centering-only.
func (c *Controller) distance(box pool.Box) (float64, bool) {
	switch c.calib.Source() {
	case calibration.SourceBBox:
		if !box.Valid {
			return 0, false
		}
		return c.calib.DistanceFromArea(box.Area())
	default:
		return c.ranger.DistanceCm()
	}
}

// pipelineStale reports whether frame or tracker data has aged beyond the
// configured horizon. Before the first frame arrives nothing is stale.
func (c *Controller) pipelineStale(now time.Time) bool {
	seq, frameStamp := c.shared.FrameSeq()
	if seq == 0 {
		return false
	}
	if now.Sub(frameStamp) > c.cfg.StaleHorizon {
		return true
	}
	box := c.shared.TrackerBox()
	if !box.Timestamp.IsZero() && now.Sub(box.Timestamp) > c.cfg.StaleHorizon {
		return true
	}
	return false
}

// sampleCadence refreshes the reported loop rates about once a second.
func (c *Controller) sampleCadence(now time.Time) {
	elapsed := now.Sub(c.lastSample).Seconds()
	if elapsed < 1.0 {
		return
	}
	trackerN := c.tracker.Cycles()
	detectN := c.detector.Cycles()
	frameN, _ := c.shared.FrameSeq()

	c.trackerHz = float64(trackerN-c.lastTrackerN) / elapsed
	c.detectorHz = float64(detectN-c.lastDetectN) / elapsed
	c.captureHz = float64(frameN-c.lastFrameN) / elapsed

	c.lastTrackerN = trackerN
	c.lastDetectN = detectN
	c.lastFrameN = frameN
	c.lastSample = now
}

func (c *Controller) publishStatus(now time.Time, box pool.Box, distCm float64, distOK bool, drive motion.Drive) {
	ps := c.odo.Pose()
	seq, _ := c.shared.FrameSeq()
	tx, ty, targetSet := c.sm.Target()

	s := Status{
		State:      c.sm.State().String(),
		PoseXCm:    ps.X,
		PoseYCm:    ps.Y,
		HeadingDeg: ps.HeadingDeg,
		BoxX:       box.X,
		BoxY:       box.Y,
		BoxW:       box.W,
		BoxH:       box.H,
		BoxValid:   box.Valid,
		BoxConf:    box.Confidence,
		DistanceCm: distCm,
		DistanceOK: distOK,
		TrackerHz:  c.trackerHz,
		DetectorHz: c.detectorHz,
		CaptureHz:  c.captureHz,
		FrameSeq:   seq,
		UptimeSec:  now.Sub(c.started).Seconds(),
		TargetXCm:  tx,
		TargetYCm:  ty,
		TargetSet:  targetSet,
		SteerDeg:   drive.SteerDeg,
		Speed:      drive.Speed,
	}
	c.muStatus.Lock()
	c.status = s
	c.muStatus.Unlock()
}
