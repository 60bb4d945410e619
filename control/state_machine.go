// Package control holds the finite-state controller: the single arbiter
// of intent. It consumes tracker/detector output, odometry, and external
// commands, and emits motion intents through the planner. No other
// component decides what the car should be doing.
package control

import "github.com/ranhaber/car-x/pool"

// State is the controller's behavior mode.
type State int

const (
	StateIdle State = iota
	StateGoToTarget
	StateSearch
	StateApproach
	StateTrack
	StateLostSearch
)

// String returns the lowercase state name used in logs and status output.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateGoToTarget:
		return "goto_target"
	case StateSearch:
		return "search"
	case StateApproach:
		return "approach"
	case StateTrack:
		return "track"
	case StateLostSearch:
		return "lost_search"
	default:
		return "unknown"
	}
}

// Event drives state transitions.
type Event int

const (
	// EventSetTarget carries a new target position from the command channel.
	EventSetTarget Event = iota
	// EventStop is accepted from every state and always yields Idle.
	EventStop
	// EventAtTarget fires when odometry reaches the target position.
	EventAtTarget
	// EventTimeout fires when the current state's time budget runs out.
	EventTimeout
	// EventTargetAcquired fires when the tracker reports a valid box.
	EventTargetAcquired
	// EventTargetLost fires after N consecutive invalid tracker cycles.
	EventTargetLost
	// EventDistanceReached fires when the distance estimate drops to the
	// hold threshold.
	EventDistanceReached
)

// String returns the event name.
func (e Event) String() string {
	switch e {
	case EventSetTarget:
		return "set_target"
	case EventStop:
		return "stop"
	case EventAtTarget:
		return "at_target"
	case EventTimeout:
		return "timeout"
	case EventTargetAcquired:
		return "target_acquired"
	case EventTargetLost:
		return "target_lost"
	case EventDistanceReached:
		return "distance_reached"
	default:
		return "unknown"
	}
}

type transitionKey struct {
	from State
	on   Event
}

// transitions is the full table. An unknown (state, event) pair leaves the
// state unchanged. Target acquisition during GoToTarget short-circuits the
// search: if the target walks into view on the way, follow it.
var transitions = map[transitionKey]State{
	{StateIdle, EventSetTarget}: StateGoToTarget,
	{StateIdle, EventStop}:      StateIdle,

	{StateGoToTarget, EventAtTarget}:       StateSearch,
	{StateGoToTarget, EventTimeout}:        StateSearch,
	{StateGoToTarget, EventTargetAcquired}: StateApproach,
	{StateGoToTarget, EventStop}:           StateIdle,

	{StateSearch, EventTargetAcquired}: StateApproach,
	{StateSearch, EventStop}:           StateIdle,

	{StateApproach, EventDistanceReached}: StateTrack,
	{StateApproach, EventTargetLost}:      StateLostSearch,
	{StateApproach, EventStop}:            StateIdle,

	{StateTrack, EventTargetLost}: StateLostSearch,
	{StateTrack, EventStop}:       StateIdle,

	{StateLostSearch, EventTargetAcquired}: StateApproach,
	{StateLostSearch, EventTimeout}:        StateSearch,
	{StateLostSearch, EventStop}:           StateIdle,
}

// Machine is the state machine plus the payload it carries: the commanded
// target position and the last acquisition box. It is owned by the
// controller and touched from the controller tick only.
type Machine struct {
	state      State
	targetX    float64 // cm
	targetY    float64
	haveTarget bool
	lastBox    pool.Box
}

// NewMachine returns a machine resting in Idle.
func NewMachine() *Machine {
	return &Machine{state: StateIdle}
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// Target returns the commanded target position, if one is set.
func (m *Machine) Target() (x, y float64, ok bool) {
	return m.targetX, m.targetY, m.haveTarget
}

// LastBox returns the box recorded at the last acquisition.
func (m *Machine) LastBox() pool.Box { return m.lastBox }

// Dispatch applies an event. Unknown (state, event) pairs leave the state
// unchanged. A Stop transition resets the carried payload to its initial
// values; nothing else clears it.
func (m *Machine) Dispatch(ev Event) State {
	next, ok := transitions[transitionKey{m.state, ev}]
	if !ok {
		return m.state
	}
	m.state = next
	if ev == EventStop {
		m.targetX, m.targetY = 0, 0
		m.haveTarget = false
		m.lastBox = pool.Box{}
	}
	return m.state
}

// DispatchSetTarget records the target position and applies EventSetTarget.
func (m *Machine) DispatchSetTarget(xCm, yCm float64) State {
	if _, ok := transitions[transitionKey{m.state, EventSetTarget}]; ok {
		m.targetX, m.targetY = xCm, yCm
		m.haveTarget = true
	}
	return m.Dispatch(EventSetTarget)
}

// DispatchAcquired records the acquisition box and applies
// EventTargetAcquired.
func (m *Machine) DispatchAcquired(box pool.Box) State {
	if _, ok := transitions[transitionKey{m.state, EventTargetAcquired}]; ok {
		m.lastBox = box
	}
	return m.Dispatch(EventTargetAcquired)
}
