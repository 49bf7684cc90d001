package goap

import (
	"container/heap"
	"sort"

	"github.com/kaelion/agentkit/agenterrors"
)

// Planner finds minimum-cost action sequences to goals via A* search over
// world states (spec.md §4.2).
type Planner struct {
	determiner Determiner
}

// NewPlanner constructs a Planner. determiner may be nil, in which case
// Unknown conditions are never resolved and simply fail to satisfy
// TRUE/FALSE requirements.
func NewPlanner(determiner Determiner) *Planner {
	return &Planner{determiner: determiner}
}

// node is one A* search state: the world state reached, how we got there,
// and the cost so far. Kept on the open-set heap ordered by f = g + h.
type node struct {
	state   WorldState
	parent  *node
	action  *Action // action taken from parent to reach this node; nil for the root
	gCost   float64
	hCost   float64
	index   int // heap.Interface bookkeeping
}

func (n *node) fCost() float64 { return n.gCost + n.hCost }

// actionName returns the name of the action that produced this node, or ""
// for the root — used purely for the lexicographic A* tie-break.
func (n *node) actionName() string {
	if n.action == nil {
		return ""
	}
	return n.action.Name
}

// openSet is a min-heap on (fCost, gCost, action name) — spec.md §4.2's
// tie-break order: lower f, then lower g, then action name lexicographic.
type openSet []*node

func (pq openSet) Len() int { return len(pq) }

func (pq openSet) Less(i, j int) bool {
	a, b := pq[i], pq[j]
	if a.fCost() != b.fCost() {
		return a.fCost() < b.fCost()
	}
	if a.gCost != b.gCost {
		return a.gCost < b.gCost
	}
	return a.actionName() < b.actionName()
}

func (pq openSet) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}

func (pq *openSet) Push(x any) {
	n := x.(*node)
	n.index = len(*pq)
	*pq = append(*pq, n)
}

func (pq *openSet) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*pq = old[:n-1]
	return item
}

// PlanToGoal runs A* from current to the nearest state satisfying goal,
// using the given candidate actions. Returns nil (not an error) if goal is
// unreachable; returns a *agenterrors.PlanningError only for malformed
// input (duplicate action names).
func (p *Planner) PlanToGoal(actions []Action, goal Goal, current WorldState) (*Plan, error) {
	if err := checkDuplicateNames(actions); err != nil {
		return nil, err
	}

	r := newResolver(p.determiner)

	if goal.achieves(current, r) {
		return &Plan{Goal: goal, Actions: []Action{}}, nil
	}

	known := unionConditions(actions, goal)

	start := &node{state: current, hCost: float64(r.unsatisfiedCount(current, goal.Preconditions))}
	open := &openSet{start}
	heap.Init(open)
	closed := make(map[string]bool)

	// Successors are expanded in action-name order so that equal-f/-g ties
	// resolve deterministically regardless of input action order.
	ordered := make([]Action, len(actions))
	copy(ordered, actions)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Name < ordered[j].Name })

	for open.Len() > 0 {
		cur := heap.Pop(open).(*node)
		stateKey := cur.state.key(known)
		if closed[stateKey] {
			continue
		}
		closed[stateKey] = true

		if goal.achieves(cur.state, r) {
			return &Plan{Goal: goal, Actions: reconstruct(cur)}, nil
		}

		for i := range ordered {
			a := ordered[i]
			if !a.applicable(cur.state, r) {
				continue
			}
			next := a.apply(cur.state)
			nextKey := next.key(known)
			if closed[nextKey] {
				continue
			}
			heap.Push(open, &node{
				state:  next,
				parent: cur,
				action: &ordered[i],
				gCost:  cur.gCost + a.Cost,
				hCost:  float64(r.unsatisfiedCount(next, goal.Preconditions)),
			})
		}
	}

	return nil, nil
}

// PlansToGoals returns, for every goal in system reachable from current, the
// best plan to it, ordered by NetValue descending, ties broken by lower
// Cost, then alphabetical goal name (spec.md §4.2).
func (p *Planner) PlansToGoals(system PlanningSystem, current WorldState) ([]Plan, error) {
	var plans []Plan
	for _, g := range system.Goals {
		plan, err := p.PlanToGoal(system.Actions, g, current)
		if err != nil {
			return nil, err
		}
		if plan != nil {
			plans = append(plans, *plan)
		}
	}
	sort.Slice(plans, func(i, j int) bool {
		a, b := plans[i], plans[j]
		if a.NetValue() != b.NetValue() {
			return a.NetValue() > b.NetValue()
		}
		if a.Cost() != b.Cost() {
			return a.Cost() < b.Cost()
		}
		return a.Goal.Name < b.Goal.Name
	})
	return plans, nil
}

// BestValuePlanToAnyGoal returns the first element of PlansToGoals, or nil
// if no goal is reachable.
func (p *Planner) BestValuePlanToAnyGoal(system PlanningSystem, current WorldState) (*Plan, error) {
	plans, err := p.PlansToGoals(system, current)
	if err != nil {
		return nil, err
	}
	if len(plans) == 0 {
		return nil, nil
	}
	return &plans[0], nil
}

func reconstruct(n *node) []Action {
	var actions []Action
	for cur := n; cur.parent != nil; cur = cur.parent {
		actions = append([]Action{*cur.action}, actions...)
	}
	return actions
}

func unionConditions(actions []Action, goal Goal) []string {
	set := make(map[string]struct{})
	for _, a := range actions {
		for k := range a.Preconditions {
			set[k] = struct{}{}
		}
		for k := range a.Effects {
			set[k] = struct{}{}
		}
	}
	for k := range goal.Preconditions {
		set[k] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func checkDuplicateNames(actions []Action) error {
	seen := make(map[string]bool, len(actions))
	for _, a := range actions {
		if seen[a.Name] {
			return &agenterrors.PlanningError{Kind: agenterrors.DuplicateActionName, Detail: a.Name}
		}
		seen[a.Name] = true
	}
	return nil
}
