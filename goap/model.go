package goap

import "sort"

// Determiner resolves a condition key to a concrete determination on demand.
// The planner calls DetermineCondition only when a precondition or goal key
// is Unknown in the state under consideration and that key's value would
// change whether the precondition is satisfied (spec.md §4.2 "UNKNOWN
// handling"). Implementations typically derive the answer from a blackboard
// (see the determiner package); this interface lives in goap, not
// determiner, so the planner has no dependency on the blackboard package.
type Determiner interface {
	DetermineCondition(key string) ConditionDetermination
}

// DeterminerFunc adapts a function to Determiner.
type DeterminerFunc func(key string) ConditionDetermination

// DetermineCondition implements Determiner.
func (f DeterminerFunc) DetermineCondition(key string) ConditionDetermination { return f(key) }

type (
	// Action is a named step with preconditions, effects, a cost, and a
	// value, per spec.md §3. Names must be unique within a PlanningSystem.
	Action struct {
		Name          string
		Preconditions map[string]ConditionDetermination
		Effects       map[string]ConditionDetermination
		Cost          float64
		Value         float64
	}

	// Goal is a named target set of preconditions with a value.
	Goal struct {
		Name          string
		Preconditions map[string]ConditionDetermination
		Value         float64
	}

	// Plan is an ordered sequence of actions plus the goal it targets.
	Plan struct {
		Goal    Goal
		Actions []Action
	}

	// PlanningSystem is the (actions, goals) pair a Planner operates on.
	PlanningSystem struct {
		Actions []Action
		Goals   []Goal
	}
)

// resolver closes over a Determiner and a per-planning-call cache so that a
// given key is resolved via the Determiner at most once per planToGoal
// invocation (spec.md §4.2).
type resolver struct {
	determiner Determiner
	cache      map[string]ConditionDetermination
}

func newResolver(d Determiner) *resolver {
	return &resolver{determiner: d, cache: make(map[string]ConditionDetermination)}
}

// valueAt returns the effective determination of key in state, consulting
// (and memoizing) the Determiner if state itself leaves key Unknown.
func (r *resolver) valueAt(state WorldState, key string) ConditionDetermination {
	if v := state.Get(key); v != Unknown {
		return v
	}
	if v, ok := r.cache[key]; ok {
		return v
	}
	if r.determiner == nil {
		return Unknown
	}
	v := r.determiner.DetermineCondition(key)
	r.cache[key] = v
	return v
}

// satisfies reports whether every key in preconditions resolves (via r) to
// its required value in state. Strict: Unknown never satisfies a specific
// TRUE/FALSE requirement.
func (r *resolver) satisfies(state WorldState, preconditions map[string]ConditionDetermination) bool {
	for k, want := range preconditions {
		if r.valueAt(state, k) != want {
			return false
		}
	}
	return true
}

// unsatisfiedCount returns the number of preconditions not currently met —
// the A* heuristic h(s, goal) of spec.md §4.2.
func (r *resolver) unsatisfiedCount(state WorldState, preconditions map[string]ConditionDetermination) int {
	n := 0
	for k, want := range preconditions {
		if r.valueAt(state, k) != want {
			n++
		}
	}
	return n
}

// applicable reports whether a is applicable in state: every precondition
// key strictly matches, with Unknown state values resolved via r when
// necessary.
func (a Action) applicable(state WorldState, r *resolver) bool {
	return r.satisfies(state, a.Preconditions)
}

// apply returns the WorldState that results from executing a in state.
func (a Action) apply(state WorldState) WorldState {
	return state.Apply(a.Effects)
}

// achieves reports whether state satisfies every precondition of g, with
// Unknown state values resolved via r when necessary.
func (g Goal) achieves(state WorldState, r *resolver) bool {
	return r.satisfies(state, g.Preconditions)
}

// Cost is the sum of each action's cost.
func (p Plan) Cost() float64 {
	var total float64
	for _, a := range p.Actions {
		total += a.Cost
	}
	return total
}

// ActionsValue is the sum of each action's value.
func (p Plan) ActionsValue() float64 {
	var total float64
	for _, a := range p.Actions {
		total += a.Value
	}
	return total
}

// NetValue is goal.Value + ActionsValue - Cost.
func (p Plan) NetValue() float64 {
	return p.Goal.Value + p.ActionsValue() - p.Cost()
}

// Complete reports whether the plan is empty, i.e. the goal already held in
// the state the plan was computed from.
func (p Plan) Complete() bool {
	return len(p.Actions) == 0
}

// ActionNames returns the ordered list of action names in the plan, useful
// for event payloads and assertions.
func (p Plan) ActionNames() []string {
	names := make([]string, len(p.Actions))
	for i, a := range p.Actions {
		names[i] = a.Name
	}
	return names
}

// KnownConditions returns the union of every condition name appearing in any
// action's preconditions/effects or any goal's preconditions, sorted.
func (s PlanningSystem) KnownConditions() []string {
	set := make(map[string]struct{})
	for _, a := range s.Actions {
		for k := range a.Preconditions {
			set[k] = struct{}{}
		}
		for k := range a.Effects {
			set[k] = struct{}{}
		}
	}
	for _, g := range s.Goals {
		for k := range g.Preconditions {
			set[k] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// GoalByName returns the goal with the given name and true, or the zero
// Goal and false if no such goal exists.
func (s PlanningSystem) GoalByName(name string) (Goal, bool) {
	for _, g := range s.Goals {
		if g.Name == name {
			return g, true
		}
	}
	return Goal{}, false
}

