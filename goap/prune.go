package goap

// Prune restricts system's actions to those whose effects directly or
// transitively contribute to any goal's preconditions (spec.md §4.2). This
// keeps "irrelevant" actions (e.g. hundreds of unrelated padding actions)
// from inflating the A* search space.
//
// The algorithm computes a fixpoint: start with the condition keys named by
// any goal's preconditions, then repeatedly add the preconditions of any
// action whose effects intersect the current relevant set, until no more
// keys are added. Only actions whose effects touch the final relevant set
// are retained.
func Prune(system PlanningSystem) PlanningSystem {
	relevant := make(map[string]struct{})
	for _, g := range system.Goals {
		for k := range g.Preconditions {
			relevant[k] = struct{}{}
		}
	}

	for {
		grew := false
		for _, a := range system.Actions {
			if !effectsIntersect(a.Effects, relevant) {
				continue
			}
			for k := range a.Preconditions {
				if _, ok := relevant[k]; !ok {
					relevant[k] = struct{}{}
					grew = true
				}
			}
		}
		if !grew {
			break
		}
	}

	var kept []Action
	for _, a := range system.Actions {
		if effectsIntersect(a.Effects, relevant) {
			kept = append(kept, a)
		}
	}

	return PlanningSystem{Actions: kept, Goals: system.Goals}
}

func effectsIntersect(effects map[string]ConditionDetermination, relevant map[string]struct{}) bool {
	for k := range effects {
		if _, ok := relevant[k]; ok {
			return true
		}
	}
	return false
}
