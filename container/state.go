package container

import (
	"github.com/ginta1337/porto/domain"
	"github.com/ginta1337/porto/portoerr"
)

// legalTransitions enumerates the state machine of spec.md §4.2. Unknown is
// reachable only via restore (SetFromRestore bypasses this table) and any
// live state can be removed directly by destroy/aging, which is a Holder
// operation rather than a State transition.
var legalTransitions = map[domain.State]map[domain.State]bool{
	domain.StateStopped: {domain.StateRunning: true, domain.StateMeta: true},
	domain.StateRunning: {domain.StatePaused: true, domain.StateDead: true},
	domain.StateMeta:    {domain.StatePaused: true, domain.StateDead: true},
	domain.StatePaused:  {domain.StateRunning: true, domain.StateMeta: true, domain.StateDead: true},
	domain.StateDead:    {domain.StateStopped: true},
}

// CanTransition reports whether moving from one state directly to another
// is a legal transition.
func CanTransition(from, to domain.State) bool {
	return legalTransitions[from][to]
}

// Transition moves the container to the requested state, rejecting illegal
// moves. It does not itself decide *when* a transition should happen
// (that's external orchestration, per spec.md §4.2) — it only enforces
// legality for a request that has already been decided.
func (c *Container) Transition(to domain.State) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == to {
		return nil
	}
	if !CanTransition(c.state, to) {
		return portoerr.New(portoerr.InvalidState, "cannot transition %s -> %s for %s", c.state, to, c.Name)
	}
	c.state = to
	return nil
}

// Gating primitives shared by every property handler before mutation
// (spec.md §4.1). Each takes the current state and returns a *portoerr.Error
// (or nil) so handlers can return it unchanged.

// GateStoppedOnly rejects everything but Stopped/Unknown: used for
// configuration properties that may only be set before a container runs.
func GateStoppedOnly(s domain.State) error {
	if s == domain.StateDead {
		return portoerr.New(portoerr.InvalidState, "container is dead")
	}
	if s != domain.StateStopped && s != domain.StateUnknown {
		return portoerr.New(portoerr.InvalidState, "container must be stopped")
	}
	return nil
}

// GateAlive rejects only Dead: used for properties that may change any
// time the container isn't gone yet.
func GateAlive(s domain.State) error {
	if s == domain.StateDead {
		return portoerr.New(portoerr.InvalidState, "container is dead")
	}
	return nil
}

// GateDeadOnly requires the container to be Dead: used for fields that only
// make sense once the task has exited (exit_status, oom_killed).
func GateDeadOnly(s domain.State) error {
	if s != domain.StateDead {
		return portoerr.New(portoerr.InvalidState, "container is not dead")
	}
	return nil
}

// GateRunningReadable rejects Stopped: used for counters that only exist
// once the container has run at least once.
func GateRunningReadable(s domain.State) error {
	if s == domain.StateStopped {
		return portoerr.New(portoerr.InvalidState, "container has not started")
	}
	return nil
}

// IsRuntimeImmutable reports whether the given state rejects mutation of a
// "configuration" property (spec.md §3: "states Running/Meta/Paused reject
// configuration properties").
func IsRuntimeImmutable(s domain.State) bool {
	return s == domain.StateRunning || s == domain.StateMeta || s == domain.StatePaused
}

// IsRuntimeRejecting reports whether the given state rejects mutation of a
// "runtime" property (spec.md §3: "states Dead and Stopped reject all
// runtime property mutations").
func IsRuntimeRejecting(s domain.State) bool {
	return s == domain.StateDead || s == domain.StateStopped
}
