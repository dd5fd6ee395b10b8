package maintainer

// Lifecycle is a property id's index state, mirroring the transitions
// named in spec §4.5.
type Lifecycle string

const (
	LifecycleAbsent    Lifecycle = "absent"
	LifecycleIndexed   Lifecycle = "indexed"
	LifecycleRepairing Lifecycle = "repairing"
)

// ValidTransitions enumerates the lifecycle's legal moves. A rebuild may
// additionally jump straight from any state to LifecycleAbsent before
// re-entering LifecycleIndexed, so that transition is permitted from every
// source state rather than listed per-state below.
var ValidTransitions = map[Lifecycle][]Lifecycle{
	LifecycleAbsent:    {LifecycleIndexed},
	LifecycleIndexed:   {LifecycleIndexed, LifecycleAbsent, LifecycleRepairing},
	LifecycleRepairing: {LifecycleIndexed},
}

// CanTransitionTo reports whether moving from l to target is a legal
// lifecycle transition.
func (l Lifecycle) CanTransitionTo(target Lifecycle) bool {
	if target == LifecycleAbsent {
		return true
	}
	for _, valid := range ValidTransitions[l] {
		if valid == target {
			return true
		}
	}
	return false
}
