// Package agent defines the static description of an agent — its actions,
// goals, conditions, domain types, and tool groups — plus the per-run
// options an AgentProcess is created with, per spec.md §6.
//
// The YAML struct-tag convention is grounded on the teacher's scenario
// loader (integration_tests/framework/runner.go), which decodes a nested
// document into plain Go structs with gopkg.in/yaml.v3 the same way.
package agent

import (
	"fmt"
	"os"
	"reflect"

	"gopkg.in/yaml.v3"

	"github.com/kaelion/agentkit/agenterrors"
	"github.com/kaelion/agentkit/goap"
)

// ActionSpec is the YAML-facing description of a goap.Action, before
// resolution against a ToolGroup/domain type registry.
type ActionSpec struct {
	Name          string          `yaml:"name"`
	Preconditions map[string]bool `yaml:"preconditions"`
	Effects       map[string]bool `yaml:"effects"`
	Cost          float64         `yaml:"cost"`
	Value         float64         `yaml:"value"`
	ToolGroup     string          `yaml:"toolGroup,omitempty"`
}

// GoalSpec is the YAML-facing description of a goap.Goal.
type GoalSpec struct {
	Name          string          `yaml:"name"`
	Preconditions map[string]bool `yaml:"preconditions"`
	Value         float64         `yaml:"value"`
}

// ConditionSpec names an agent-defined condition. Neither the platform nor
// process.Tick registers a determiner.Evaluator for it, so during planning
// its value comes from Blackboard.SetCondition overrides (FALSE when unset).
type ConditionSpec struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
}

// ToolGroup names a set of tools an action may invoke. ResolvedTools turns
// the groups into tool names each time process.Tick executes an action; the
// names are not checked against the llm facade's tool registry.
type ToolGroup struct {
	Name  string   `yaml:"name"`
	Tools []string `yaml:"tools"`
}

// Definition is the static, reusable description of an agent: its goal-
// oriented action planning system plus the domain types and tool groups
// its actions operate over.
type Definition struct {
	Name        string          `yaml:"name"`
	Description string          `yaml:"description,omitempty"`
	Actions     []ActionSpec    `yaml:"actions"`
	Goals       []GoalSpec      `yaml:"goals"`
	Conditions  []ConditionSpec `yaml:"conditions,omitempty"`
	ToolGroups  []ToolGroup     `yaml:"toolGroups,omitempty"`

	// AgentToolGroups names ToolGroups, by name, available to every action
	// of this agent regardless of the action's own ToolGroup (spec.md §4.5:
	// "agent-level tool groups").
	AgentToolGroups []string `yaml:"agentToolGroups,omitempty"`

	// DomainTypes maps a type name referenced by blackboard.GetValue (via
	// "variable:Type" condition keys) to its concrete Go type. Populated
	// programmatically — YAML cannot name a Go type — typically by the
	// process embedding this Definition before process creation.
	DomainTypes map[string]reflect.Type `yaml:"-"`
}

// LoadYAML parses a Definition from YAML bytes.
func LoadYAML(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("agent: parse definition: %w", err)
	}
	if def.Name == "" {
		return nil, fmt.Errorf("agent: definition missing required name")
	}
	return &def, nil
}

// LoadYAMLFile reads and parses a Definition from a YAML file on disk.
func LoadYAMLFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("agent: read definition file: %w", err)
	}
	return LoadYAML(data)
}

// MarshalYAML serializes d back to YAML, e.g. for round-tripping a
// programmatically constructed Definition to disk.
func (d *Definition) MarshalYAML() ([]byte, error) {
	return yaml.Marshal(d)
}

// PlanningSystem builds the goap.PlanningSystem this definition describes,
// translating each ActionSpec/GoalSpec's plain bool maps into three-valued
// ConditionDetermination maps (every explicit YAML bool lifts to TRUE/FALSE
// — YAML has no way to author an UNKNOWN precondition).
func (d *Definition) PlanningSystem() goap.PlanningSystem {
	actions := make([]goap.Action, len(d.Actions))
	for i, a := range d.Actions {
		actions[i] = goap.Action{
			Name:          a.Name,
			Preconditions: liftBoolMap(a.Preconditions),
			Effects:       liftBoolMap(a.Effects),
			Cost:          a.Cost,
			Value:         a.Value,
		}
	}
	goals := make([]goap.Goal, len(d.Goals))
	for i, g := range d.Goals {
		goals[i] = goap.Goal{
			Name:          g.Name,
			Preconditions: liftBoolMap(g.Preconditions),
			Value:         g.Value,
		}
	}
	return goap.PlanningSystem{Actions: actions, Goals: goals}
}

// ActionByName returns the action spec named name, and whether it exists.
func (d *Definition) ActionByName(name string) (ActionSpec, bool) {
	for _, a := range d.Actions {
		if a.Name == name {
			return a, true
		}
	}
	return ActionSpec{}, false
}

// ToolGroupByName returns the tool group named name, and whether it exists.
func (d *Definition) ToolGroupByName(name string) (ToolGroup, bool) {
	for _, g := range d.ToolGroups {
		if g.Name == name {
			return g, true
		}
	}
	return ToolGroup{}, false
}

// interactionToolGroup is the reserved ToolGroup name for tools available to
// every action regardless of AgentToolGroups/ActionSpec.ToolGroup (spec.md
// §4.5: "interaction tools"), e.g. a conversational agent's "ask the user a
// question" tool.
const interactionToolGroup = "interaction"

// ResolvedTools computes the tool-callback set an execution of action may
// invoke: the union of the reserved "interaction" group, every group named
// in AgentToolGroups, and action's own ToolGroup, deduplicated by tool name
// and returned in that precedence order (spec.md §4.5's "resolve tool
// callbacks by unioning interaction tools, agent-level tool groups, and
// action-level tool groups, deduplicated by tool name").
func (d *Definition) ResolvedTools(action ActionSpec) []string {
	var groupNames []string
	groupNames = append(groupNames, interactionToolGroup)
	groupNames = append(groupNames, d.AgentToolGroups...)
	if action.ToolGroup != "" {
		groupNames = append(groupNames, action.ToolGroup)
	}

	seen := make(map[string]bool)
	var tools []string
	for _, gn := range groupNames {
		group, ok := d.ToolGroupByName(gn)
		if !ok {
			continue
		}
		for _, tool := range group.Tools {
			if seen[tool] {
				continue
			}
			seen[tool] = true
			tools = append(tools, tool)
		}
	}
	return tools
}

// Validate reports the first structural problem found in d, abort-worthy
// before any process of d is ever created (spec.md §7: "Validation errors
// abort agent registration"). Checks run in this order: EmptyAgent, MissingGoals,
// InvalidActionSignature (duplicate/unnamed action), MissingPrecondition
// (a goal with a nil preconditions map — YAML cannot distinguish "no
// requirements" from "forgot to write any"), NoActionsToGoals, and finally
// NoPathToGoal, which actually runs the planner with every action's
// explicit effects to see whether any goal is reachable at all.
func (d *Definition) Validate() error {
	if len(d.Actions) == 0 && len(d.Goals) == 0 {
		return &agenterrors.ValidationError{Kind: agenterrors.EmptyAgent, Detail: "agent \"" + d.Name + "\" defines no actions and no goals"}
	}
	if len(d.Goals) == 0 {
		return &agenterrors.ValidationError{Kind: agenterrors.MissingGoals, Detail: "agent \"" + d.Name + "\" defines no goals"}
	}

	seen := make(map[string]bool, len(d.Actions))
	for _, a := range d.Actions {
		if a.Name == "" {
			return &agenterrors.ValidationError{Kind: agenterrors.InvalidActionSignature, Detail: "agent \"" + d.Name + "\" has an action with no name"}
		}
		if seen[a.Name] {
			return &agenterrors.ValidationError{Kind: agenterrors.InvalidActionSignature, Detail: "agent \"" + d.Name + "\" declares action \"" + a.Name + "\" more than once"}
		}
		seen[a.Name] = true
	}

	for _, g := range d.Goals {
		if g.Name == "" {
			return &agenterrors.ValidationError{Kind: agenterrors.InvalidActionSignature, Detail: "agent \"" + d.Name + "\" has a goal with no name"}
		}
		if g.Preconditions == nil {
			return &agenterrors.ValidationError{Kind: agenterrors.MissingPrecondition, Detail: "goal \"" + g.Name + "\" has no preconditions map"}
		}
	}

	if len(d.Actions) == 0 {
		for _, g := range d.Goals {
			if len(g.Preconditions) > 0 {
				return &agenterrors.ValidationError{Kind: agenterrors.NoActionsToGoals, Detail: "agent \"" + d.Name + "\" has goal \"" + g.Name + "\" requiring preconditions but defines no actions to establish them"}
			}
		}
		// Every goal's precondition map is empty, so each is trivially
		// satisfied by any starting state — a valid (if inert) agent.
	}

	system := d.PlanningSystem()
	planner := goap.NewPlanner(nil)
	plans, err := planner.PlansToGoals(system, goap.NewWorldState(nil))
	if err != nil {
		return &agenterrors.ValidationError{Kind: agenterrors.InvalidActionSignature, Detail: err.Error()}
	}
	if len(plans) == 0 {
		return &agenterrors.ValidationError{Kind: agenterrors.NoPathToGoal, Detail: "agent \"" + d.Name + "\" has no action sequence that can reach any goal from an empty world state"}
	}
	return nil
}

func liftBoolMap(in map[string]bool) map[string]goap.ConditionDetermination {
	out := make(map[string]goap.ConditionDetermination, len(in))
	for k, v := range in {
		out[k] = goap.FromBool(v)
	}
	return out
}
