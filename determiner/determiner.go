// Package determiner implements goap.Determiner against a blackboard and an
// agent's named conditions, per spec.md §4.3. It is the seam between the
// condition-agnostic A* planner in goap and the concrete, agent-defined
// meaning of a condition name.
package determiner

import (
	"reflect"
	"strings"

	"github.com/kaelion/agentkit/blackboard"
	"github.com/kaelion/agentkit/goap"
)

// History reports which actions have already run in the current process, to
// back "hasRun_<actionName>" conditions. process.AgentProcess implements
// this without determiner importing process, avoiding a cycle.
type History interface {
	HasRun(actionName string) bool
}

// Evaluator computes a named, agent-defined condition's value against the
// blackboard. The second return reports whether the evaluator has an
// opinion at all; false defers to the next rule in the evaluation order.
type Evaluator func(bb *blackboard.Blackboard) (value bool, ok bool)

// Determiner resolves condition keys using the evaluation order from
// spec.md §4.3:
//
//  1. Binding/typed conditions, keyed "variable:Type" — true iff
//     blackboard.GetValue(variable, Type, domainTypes) finds a value.
//     The special key "all" always resolves TRUE regardless of blackboard
//     state — an intentional quirk carried over as-is (see DESIGN.md).
//  2. "hasRun_<actionName>" — backed by History, when provided.
//  3. Named agent conditions registered via RegisterEvaluator.
//  4. Explicit overrides set via Blackboard.SetCondition. Absent here
//     defaults to FALSE, not UNKNOWN — an unrecognized or never-set
//     condition must not stall planning indefinitely on UNKNOWN.
type Determiner struct {
	bb          *blackboard.Blackboard
	history     History
	domainTypes map[string]reflect.Type
	evaluators  map[string]Evaluator
}

// New constructs a Determiner bound to bb. history and domainTypes may be
// nil/empty; rules that need them simply never match in that case.
func New(bb *blackboard.Blackboard, history History, domainTypes map[string]reflect.Type) *Determiner {
	return &Determiner{
		bb:          bb,
		history:     history,
		domainTypes: domainTypes,
		evaluators:  make(map[string]Evaluator),
	}
}

// RegisterEvaluator binds a named, agent-defined condition to an Evaluator.
// Later registrations for the same name replace earlier ones.
func (d *Determiner) RegisterEvaluator(name string, eval Evaluator) {
	d.evaluators[name] = eval
}

// DetermineCondition implements goap.Determiner.
func (d *Determiner) DetermineCondition(key string) goap.ConditionDetermination {
	if key == "all" {
		return goap.True
	}

	if variable, typeName, ok := splitBindingKey(key); ok {
		if typeName == "List" {
			return goap.FromBool(d.isBoundList(variable))
		}
		if _, found := d.bb.GetValue(variable, typeName, d.domainTypes); found {
			return goap.True
		}
		return goap.False
	}

	if actionName, ok := strings.CutPrefix(key, "hasRun_"); ok {
		if d.history == nil {
			return goap.Unknown
		}
		return goap.FromBool(d.history.HasRun(actionName))
	}

	if eval, ok := d.evaluators[key]; ok {
		if value, valid := eval(d.bb); valid {
			return goap.FromBool(value)
		}
	}

	if value, ok := d.bb.GetCondition(key); ok {
		return goap.FromBool(value)
	}

	return goap.False
}

// isBoundList reports whether variable is bound to a slice or array value,
// per spec.md §4.4 rule 1's "variable:List" special case: TRUE iff the
// bound value is a list, regardless of any domainTypes registration.
func (d *Determiner) isBoundList(variable string) bool {
	v, ok := d.bb.Get(variable)
	if !ok {
		return false
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Slice, reflect.Array:
		return true
	default:
		return false
	}
}

// splitBindingKey recognizes the "variable:Type" key form, including the
// special-cased "variable:List" suffix handled directly in
// DetermineCondition via isBoundList rather than through
// blackboard.GetValue/domainTypes.
func splitBindingKey(key string) (variable, typeName string, ok bool) {
	i := strings.LastIndex(key, ":")
	if i <= 0 || i == len(key)-1 {
		return "", "", false
	}
	return key[:i], key[i+1:], true
}
