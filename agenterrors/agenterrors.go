// Package agenterrors codifies the platform's error taxonomy. Each error
// category carries a closed set of Kind values so callers can switch on
// failure mode without string matching, while still composing with the
// standard errors.Is/As machinery via wrapping.
package agenterrors

import (
	"errors"
	"fmt"
)

// PlanningKind enumerates the ways the planner (C2) can fail.
type PlanningKind string

const (
	NoPlanFound           PlanningKind = "no_plan_found"
	DuplicateActionName   PlanningKind = "duplicate_action_name"
	GoalChangeDisallowed  PlanningKind = "goal_change_disallowed"
	CyclicUnknownResolve  PlanningKind = "cyclic_unknown_resolution"
)

// ValidationKind enumerates agent-structure problems caught before execution.
type ValidationKind string

const (
	EmptyAgent            ValidationKind = "empty_agent"
	MissingGoals          ValidationKind = "missing_goals"
	MissingPrecondition   ValidationKind = "missing_precondition"
	NoPathToGoal          ValidationKind = "no_path_to_goal"
	InvalidActionSignature ValidationKind = "invalid_action_signature"
	NoActionsToGoals      ValidationKind = "no_actions_to_goals"
)

// ExecutionKind enumerates action-execution failures (C5).
type ExecutionKind string

const (
	ActionFailed ExecutionKind = "action_failed"
	Timeout      ExecutionKind = "timeout"
	Cancelled    ExecutionKind = "cancelled"
)

// LlmKind enumerates LLM operations facade failures (C6).
type LlmKind string

const (
	ProviderUnavailable  LlmKind = "provider_unavailable"
	ParseFailure         LlmKind = "parse_failure"
	RetryBudgetExhausted LlmKind = "retry_budget_exhausted"
)

// RagKind enumerates RAG pipeline failures (C7). These are non-fatal: the
// pipeline logs and continues with the last good response.
type RagKind string

const (
	UpstreamUnavailable RagKind = "upstream_unavailable"
	EnhancerFailed      RagKind = "enhancer_failed"
)

type (
	// PlanningError reports a planner-level failure. AgentProcess.Tick sets
	// the process to FAILED and returns the PlanningError to its caller (Run
	// returns it as well); the process keeps no separate failureInfo record.
	// A planner that finds no plan returns nil rather than an error, and the
	// process goes STUCK. Callers of the planner package directly (e.g.
	// tests) also receive this type.
	PlanningError struct {
		Kind   PlanningKind
		Detail string
	}

	// ValidationError reports a structural problem with an agent definition,
	// detected before any process is created. Validation errors abort
	// platform.RegisterAgent.
	ValidationError struct {
		Kind   ValidationKind
		Detail string
	}

	// ExecutionError reports a failure while dispatching or running an
	// action. The containing AgentProcess wraps the action's returned error
	// in one of these before transitioning to FAILED (spec.md §7); Kind
	// distinguishes an ordinary action failure from a context timeout or
	// cancellation.
	ExecutionError struct {
		Kind   ExecutionKind
		Action string
		Err    error
	}

	// LlmError reports a failure in the LLM operations facade (C6).
	LlmError struct {
		Kind     LlmKind
		Provider string
		Attempts int
		Err      error
	}

	// RagError reports a non-fatal failure in one enhancement stage of the
	// RAG pipeline (C7). The pipeline logs this and skips the stage.
	RagError struct {
		Kind     RagKind
		Enhancer string
		Err      error
	}
)

func (e *PlanningError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("planning error: %s", e.Kind)
	}
	return fmt.Sprintf("planning error: %s: %s", e.Kind, e.Detail)
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("validation error: %s", e.Kind)
	}
	return fmt.Sprintf("validation error: %s: %s", e.Kind, e.Detail)
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execution error: action %q: %s: %v", e.Action, e.Kind, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

func (e *LlmError) Error() string {
	return fmt.Sprintf("llm error: provider %q: %s (attempts=%d): %v", e.Provider, e.Kind, e.Attempts, e.Err)
}

func (e *LlmError) Unwrap() error { return e.Err }

func (e *RagError) Error() string {
	return fmt.Sprintf("rag error: enhancer %q: %s: %v", e.Enhancer, e.Kind, e.Err)
}

func (e *RagError) Unwrap() error { return e.Err }

// IsKind reports whether err wraps a *PlanningError, *ValidationError,
// *ExecutionError, *LlmError, or *RagError with the given stringified kind.
// It is a convenience used by tests that do not want to import every
// concrete Kind type.
func IsKind(err error, kind string) bool {
	var pe *PlanningError
	if errors.As(err, &pe) && string(pe.Kind) == kind {
		return true
	}
	var ve *ValidationError
	if errors.As(err, &ve) && string(ve.Kind) == kind {
		return true
	}
	var ee *ExecutionError
	if errors.As(err, &ee) && string(ee.Kind) == kind {
		return true
	}
	var le *LlmError
	if errors.As(err, &le) && string(le.Kind) == kind {
		return true
	}
	var re *RagError
	if errors.As(err, &re) && string(re.Kind) == kind {
		return true
	}
	return false
}
