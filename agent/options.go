package agent

import "github.com/kaelion/agentkit/blackboard"

// Verbosity controls how much an AgentProcess surfaces about its own
// internal LLM traffic while running, per spec.md §6.
type Verbosity struct {
	ShowPrompts      bool
	ShowLlmResponses bool
	Debug            bool
}

// ProcessOptions configures an individual AgentProcess at creation time.
// Zero value is a sensible default: no verbosity, goal changes disallowed,
// not a test run, fresh blackboard.
type ProcessOptions struct {
	Verbosity       Verbosity
	AllowGoalChange bool
	Test            bool

	// Blackboard, when non-nil, seeds the process with an existing
	// blackboard (e.g. a spawned child's parent-derived state) instead of
	// a fresh one.
	Blackboard *blackboard.Blackboard

	// OutputChannel, when non-nil, receives human-facing output/questions
	// the process wants to surface (spec.md §4.5 WAITING transitions).
	OutputChannel chan<- string

	// Identities carries caller-supplied identity/authorization context
	// threaded through to tool invocations; opaque to the process itself.
	Identities map[string]string
}

// DefaultProcessOptions returns the zero-value ProcessOptions: a fresh
// blackboard is not allocated here since process.New allocates one when
// Blackboard is nil.
func DefaultProcessOptions() ProcessOptions {
	return ProcessOptions{}
}
