// Package goap implements three-valued world-state logic (C1) and an A*
// Goal-Oriented Action Planner (C2) over it, per spec.md §§3-4.2. The A*
// search itself is grounded on the min-heap / f=g+h structure found in the
// pack's own GOAP reference implementation (see
// _examples/other_examples/..._internal-goap-planner.go.go), generalized
// here to three-valued logic, lazy UNKNOWN resolution, and goal-relevance
// pruning.
package goap

// ConditionDetermination is a three-valued logic value: TRUE, FALSE, or
// UNKNOWN. Equality between two determinations is exact — there is no
// lifting between UNKNOWN and TRUE/FALSE.
type ConditionDetermination int8

const (
	// Unknown means the condition has not been established one way or the
	// other. It never satisfies a specific TRUE/FALSE requirement.
	Unknown ConditionDetermination = iota
	True
	False
)

// FromBool lifts a boolean literal to the corresponding determination.
func FromBool(b bool) ConditionDetermination {
	if b {
		return True
	}
	return False
}

func (d ConditionDetermination) String() string {
	switch d {
	case True:
		return "TRUE"
	case False:
		return "FALSE"
	default:
		return "UNKNOWN"
	}
}

// And implements three-valued conjunction: TRUE iff both TRUE, FALSE if
// either is FALSE, otherwise UNKNOWN.
func And(a, b ConditionDetermination) ConditionDetermination {
	if a == False || b == False {
		return False
	}
	if a == True && b == True {
		return True
	}
	return Unknown
}

// WorldState is an immutable mapping from condition name to
// ConditionDetermination. Missing keys are treated as Unknown. Transitions
// (via Apply) always produce a new WorldState; the receiver is never
// mutated.
type WorldState struct {
	values map[string]ConditionDetermination
}

// NewWorldState builds a WorldState from the given initial values. The
// supplied map is copied; later mutation of it does not affect the returned
// state.
func NewWorldState(initial map[string]ConditionDetermination) WorldState {
	values := make(map[string]ConditionDetermination, len(initial))
	for k, v := range initial {
		values[k] = v
	}
	return WorldState{values: values}
}

// Get returns the determination bound to key, or Unknown if key is absent.
func (s WorldState) Get(key string) ConditionDetermination {
	if s.values == nil {
		return Unknown
	}
	if v, ok := s.values[key]; ok {
		return v
	}
	return Unknown
}

// With returns a new WorldState identical to s except that key is bound to
// value. s is left unmodified.
func (s WorldState) With(key string, value ConditionDetermination) WorldState {
	next := make(map[string]ConditionDetermination, len(s.values)+1)
	for k, v := range s.values {
		next[k] = v
	}
	next[key] = value
	return WorldState{values: next}
}

// Apply returns a new WorldState with every key in effects overlaid onto s.
// Keys not present in effects are unchanged.
func (s WorldState) Apply(effects map[string]ConditionDetermination) WorldState {
	next := make(map[string]ConditionDetermination, len(s.values)+len(effects))
	for k, v := range s.values {
		next[k] = v
	}
	for k, v := range effects {
		next[k] = v
	}
	return WorldState{values: next}
}

// CompatibleWithGoal reports whether s satisfies every precondition of goal:
// every key's value in s must exactly equal the goal's required value.
// UNKNOWN never satisfies a specific TRUE/FALSE requirement.
func (s WorldState) CompatibleWithGoal(preconditions map[string]ConditionDetermination) bool {
	for k, want := range preconditions {
		if s.Get(k) != want {
			return false
		}
	}
	return true
}

// key returns a canonical string representation of s restricted to the
// given condition names, used as the A* closed-set / priority-queue
// dedup key. Keys are sorted so that logically identical states hash
// identically regardless of map iteration order.
func (s WorldState) key(knownConditions []string) string {
	buf := make([]byte, 0, 16*len(knownConditions))
	for _, k := range knownConditions {
		buf = append(buf, k...)
		buf = append(buf, '=')
		buf = append(buf, byte('0'+s.Get(k)))
		buf = append(buf, '|')
	}
	return string(buf)
}
