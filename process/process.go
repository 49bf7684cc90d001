// Package process implements C5, the stateful AgentProcess: a single
// plan→act→replan (OODA) loop over a Definition's planning system, driven
// by a status machine, with pause/resume/kill control and an append-only
// execution history, per spec.md §4.5.
//
// The goroutine-driven run loop with a mutex-guarded status and a
// done/kill channel pair is grounded on the teacher's in-memory workflow
// engine (runtime/agent/engine/inmem/engine.go): a handle with a done
// channel the caller waits on, status tracked in a map guarded by a mutex,
// generalized here to a single long-lived process instead of a workflow
// engine managing many named runs.
package process

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kaelion/agentkit/agent"
	"github.com/kaelion/agentkit/agenterrors"
	"github.com/kaelion/agentkit/blackboard"
	"github.com/kaelion/agentkit/determiner"
	"github.com/kaelion/agentkit/goap"
	"github.com/kaelion/agentkit/hooks"
	"github.com/kaelion/agentkit/namegen"
)

// Status is a value in the AgentProcess status machine (spec.md §4.5).
type Status string

const (
	StatusRunning    Status = "RUNNING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	StatusStuck      Status = "STUCK"
	StatusWaiting    Status = "WAITING"
	StatusPaused     Status = "PAUSED"
	StatusTerminated Status = "TERMINATED"
)

// idlePollInterval bounds how long Run sleeps between ticks while PAUSED or
// WAITING, so a Pause/Resume or OnUserResponse call is noticed promptly
// without busy-spinning.
const idlePollInterval = 20 * time.Millisecond

// HistoryEntry records one executed action, in the order it was attempted.
// An entry is appended before any status transition its outcome causes
// takes effect, so History always reflects what ran by the time a terminal
// status is externally observable (spec.md §5).
type HistoryEntry struct {
	ActionName string
	Timestamp  int64
	Err        error
}

// ActionExecutor performs one action's real-world (or LLM) effect and
// reports any error. Implementations typically mutate bb to record the
// action's effects as new objects/bindings. tools is the resolved
// tool-callback name set (spec.md §4.5) the action may invoke via the LLM
// facade this tick.
//
// Returning an error satisfying errors.Is(err, ErrWaiting) or
// errors.Is(err, ErrPaused) transitions the process to WAITING/PAUSED
// instead of FAILED (spec.md §4.5's suspension points); any other non-nil
// error is a genuine action failure.
type ActionExecutor interface {
	Execute(ctx context.Context, bb *blackboard.Blackboard, action goap.Action, tools []string) error
}

// ActionExecutorFunc adapts a function to ActionExecutor.
type ActionExecutorFunc func(ctx context.Context, bb *blackboard.Blackboard, action goap.Action, tools []string) error

// Execute implements ActionExecutor.
func (f ActionExecutorFunc) Execute(ctx context.Context, bb *blackboard.Blackboard, action goap.Action, tools []string) error {
	return f(ctx, bb, action, tools)
}

// ErrWaiting, returned (or wrapped, via *WaitingRequest) by an
// ActionExecutor, suspends the process into WAITING rather than failing it
// (spec.md §4.5: "(a) WAITING for external input").
var ErrWaiting = errors.New("process: action is waiting for external input")

// ErrPaused, returned by an ActionExecutor, suspends the process into
// PAUSED rather than failing it (spec.md §4.5: "(b) PAUSED by scheduler").
var ErrPaused = errors.New("process: action requests pause")

// WaitingRequest wraps ErrWaiting with the human-facing prompt an action
// wants delivered on ProcessOptions.OutputChannel before the process
// suspends.
type WaitingRequest struct {
	Message string
}

func (e *WaitingRequest) Error() string { return e.Message }
func (e *WaitingRequest) Unwrap() error { return ErrWaiting }

type identitiesContextKey struct{}

// WithIdentities returns a context carrying identities, recoverable via
// IdentitiesFromContext. Tick calls this before every ActionExecutor.Execute
// so tool invocations reached through the call can recover
// agent.ProcessOptions.Identities without widening ActionExecutor's
// signature per-identity.
func WithIdentities(ctx context.Context, identities map[string]string) context.Context {
	if len(identities) == 0 {
		return ctx
	}
	return context.WithValue(ctx, identitiesContextKey{}, identities)
}

// IdentitiesFromContext returns the identities a containing Tick attached
// via WithIdentities, if any.
func IdentitiesFromContext(ctx context.Context) (map[string]string, bool) {
	v, ok := ctx.Value(identitiesContextKey{}).(map[string]string)
	return v, ok
}

// AgentProcess is a single running (or terminal) instance of an
// agent.Definition planning toward its goals against a blackboard.
type AgentProcess struct {
	id       string
	parentID string
	agentDef *agent.Definition
	options  agent.ProcessOptions
	bb       *blackboard.Blackboard
	bus      hooks.Bus
	executor ActionExecutor

	mu             sync.Mutex
	status         Status
	history        []HistoryEntry
	llmInvocations int
	currentGoal    *goap.Goal
	createdAt      int64

	killOnce   sync.Once
	killCh     chan struct{}
	killReason string
}

// New constructs a top-level AgentProcess with a freshly generated
// human-friendly ID. bus and executor may be nil; a nil bus is replaced
// with a local, unshared hooks.Bus, and a nil executor makes every action
// immediately fail with an ExecutionError wrapping errNoExecutor.
func New(def *agent.Definition, opts agent.ProcessOptions, bus hooks.Bus, executor ActionExecutor) *AgentProcess {
	return newProcess(namegen.NewUnique(), "", def, opts, bus, executor)
}

func newProcess(id, parentID string, def *agent.Definition, opts agent.ProcessOptions, bus hooks.Bus, executor ActionExecutor) *AgentProcess {
	bb := opts.Blackboard
	if bb == nil {
		bb = blackboard.New()
	}
	if bus == nil {
		bus = hooks.NewBus()
	}
	if executor == nil {
		executor = ActionExecutorFunc(func(context.Context, *blackboard.Blackboard, goap.Action, []string) error {
			return errNoExecutor
		})
	}
	return &AgentProcess{
		id:        id,
		parentID:  parentID,
		agentDef:  def,
		options:   opts,
		bb:        bb,
		bus:       bus,
		executor:  executor,
		status:    StatusRunning,
		killCh:    make(chan struct{}),
		createdAt: time.Now().UnixNano(),
	}
}

var errNoExecutor = fmt.Errorf("process: no ActionExecutor configured")

// CreateChild spawns a child AgentProcess for childDef, seeded with a
// Spawn()-ed copy of this process's blackboard so the child's subsequent
// writes never affect the parent (spec.md §8 scenario 4). The child's ID
// is "<this process's agent name> >> <freshId>", per spec.md §4.5.
func (p *AgentProcess) CreateChild(childDef *agent.Definition, opts agent.ProcessOptions, executor ActionExecutor) *AgentProcess {
	opts.Blackboard = p.bb.Spawn()
	childID := p.agentDef.Name + " >> " + namegen.NewUnique()
	if executor == nil {
		executor = p.executor
	}
	child := newProcess(childID, p.id, childDef, opts, p.bus, executor)
	_ = p.bus.Publish(context.Background(), hooks.NewAgentProcessCreationEvent(child.id, childDef.Name, p.id))
	return child
}

// ID returns this process's identifier.
func (p *AgentProcess) ID() string { return p.id }

// ParentID returns the parent process's identifier, or "" for a top-level
// process.
func (p *AgentProcess) ParentID() string { return p.parentID }

// Blackboard returns this process's blackboard.
func (p *AgentProcess) Blackboard() *blackboard.Blackboard { return p.bb }

// Status returns the current status.
func (p *AgentProcess) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// History returns a defensive copy of the actions attempted so far, in
// execution order.
func (p *AgentProcess) History() []HistoryEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]HistoryEntry, len(p.history))
	copy(out, p.history)
	return out
}

// HasRun implements determiner.History: reports whether actionName has
// previously executed without error.
func (p *AgentProcess) HasRun(actionName string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, h := range p.history {
		if h.ActionName == actionName && h.Err == nil {
			return true
		}
	}
	return false
}

// CurrentGoal returns the goal the most recent plan targeted, and whether
// one has been formulated yet.
func (p *AgentProcess) CurrentGoal() (goap.Goal, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.currentGoal == nil {
		return goap.Goal{}, false
	}
	return *p.currentGoal, true
}

// Pause transitions a RUNNING process to PAUSED. No-op otherwise.
func (p *AgentProcess) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status == StatusRunning {
		p.status = StatusPaused
	}
}

// Resume transitions a PAUSED process back to RUNNING. No-op otherwise.
func (p *AgentProcess) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status == StatusPaused {
		p.status = StatusRunning
	}
}

// OnUserResponse feeds a human response back into a WAITING process,
// binding it on the blackboard as "lastUserResponse" and transitioning back
// to RUNNING. No-op if the process is not currently WAITING.
func (p *AgentProcess) OnUserResponse(response string) {
	p.mu.Lock()
	if p.status != StatusWaiting {
		p.mu.Unlock()
		return
	}
	p.status = StatusRunning
	p.mu.Unlock()
	p.bb.Bind("lastUserResponse", response)
}

// Kill transitions a non-terminal process to TERMINATED and publishes
// exactly one AgentProcessKillEvent, regardless of how many times or how
// concurrently Kill is called (spec.md §8 scenario 6). On a process that is
// already COMPLETED, FAILED or TERMINATED it does nothing.
func (p *AgentProcess) Kill(ctx context.Context, reason string) {
	p.killOnce.Do(func() {
		p.mu.Lock()
		if isTerminal(p.status) {
			p.mu.Unlock()
			return
		}
		p.status = StatusTerminated
		p.killReason = reason
		p.mu.Unlock()
		close(p.killCh)
		_ = p.bus.Publish(ctx, hooks.NewAgentProcessKillEvent(p.id, reason))
	})
}

// isTerminal reports whether status has no further transitions out of it.
// STUCK is deliberately excluded: spec.md §4.5's status table has STUCK
// transition back to RUNNING once the determiner newly resolves an
// UNKNOWN, which this implementation discovers by simply re-planning on
// the next tick rather than tracking which conditions were UNKNOWN.
func isTerminal(s Status) bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusTerminated:
		return true
	}
	return false
}

// Run drives the process's plan→act→replan loop until it reaches a
// terminal status, ctx is canceled, or Kill is called. It returns the last
// Tick error encountered, if any; reaching a terminal status is not itself
// an error.
func (p *AgentProcess) Run(ctx context.Context) error {
	if p.parentID == "" {
		_ = p.bus.Publish(ctx, hooks.NewAgentProcessCreationEvent(p.id, p.agentDef.Name, ""))
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.killCh:
			return nil
		default:
		}

		status := p.Status()
		if isTerminal(status) {
			return nil
		}
		if status == StatusPaused || status == StatusWaiting {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-p.killCh:
				return nil
			case <-time.After(idlePollInterval):
			}
			continue
		}
		if status == StatusStuck {
			// Pace re-planning attempts instead of busy-spinning: nothing
			// about this process changes the blackboard while STUCK, so
			// only an external actor (another process, a tool completing
			// asynchronously) can make the next Tick's replan succeed.
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-p.killCh:
				return nil
			case <-time.After(idlePollInterval):
			}
		}

		if err := p.Tick(ctx); err != nil && !errors.Is(err, ErrWaiting) && !errors.Is(err, ErrPaused) {
			return err
		}
	}
}

// Tick performs a single plan→act step: replan from scratch, and if the
// best plan is non-empty, execute its first action. A nil error does not
// imply progress was made — it may mean the process went STUCK, COMPLETED,
// or simply wasn't RUNNING when called. A non-nil error does not always
// mean the process failed: errors.Is(err, ErrWaiting) or
// errors.Is(err, ErrPaused) mean the process merely suspended; callers
// driving a loop around Tick (see Run) must check for these before treating
// the return value as fatal.
func (p *AgentProcess) Tick(ctx context.Context) error {
	switch p.Status() {
	case StatusRunning, StatusStuck:
	default:
		return nil
	}

	system := p.agentDef.PlanningSystem()
	det := determiner.New(p.bb, p, p.agentDef.DomainTypes)
	planner := goap.NewPlanner(det)

	plan, err := planner.BestValuePlanToAnyGoal(system, goap.NewWorldState(nil))
	if err != nil {
		p.mu.Lock()
		if !isTerminal(p.status) {
			p.status = StatusFailed
		}
		p.mu.Unlock()
		return err
	}
	if plan == nil {
		p.mu.Lock()
		if !isTerminal(p.status) {
			p.status = StatusStuck
		}
		p.mu.Unlock()
		return nil
	}

	goal := plan.Goal
	p.mu.Lock()
	if isTerminal(p.status) {
		p.mu.Unlock()
		return nil
	}
	if p.currentGoal != nil && p.currentGoal.Name != goal.Name && !p.options.AllowGoalChange {
		changeErr := &agenterrors.PlanningError{
			Kind:   agenterrors.GoalChangeDisallowed,
			Detail: fmt.Sprintf("replanning would change the goal from %q to %q, but AllowGoalChange is false", p.currentGoal.Name, goal.Name),
		}
		p.status = StatusFailed
		p.mu.Unlock()
		return changeErr
	}
	p.currentGoal = &goal
	p.mu.Unlock()

	if plan.Complete() {
		_ = p.bus.Publish(ctx, hooks.NewGoalAchievedEvent(p.id, goal.Name))
		p.mu.Lock()
		if !isTerminal(p.status) {
			p.status = StatusCompleted
		}
		p.mu.Unlock()
		return nil
	}

	_ = p.bus.Publish(ctx, hooks.NewPlanFormulatedEvent(p.id, goal.Name, plan.ActionNames(), plan.Cost(), plan.NetValue()))

	action := plan.Actions[0]
	spec, _ := p.agentDef.ActionByName(action.Name)
	tools := p.agentDef.ResolvedTools(spec)

	execErr := p.executor.Execute(WithIdentities(ctx, p.options.Identities), p.bb, action, tools)

	var newStatus Status
	var recordedErr error
	switch {
	case execErr == nil:
		newStatus = StatusRunning
	case errors.Is(execErr, ErrWaiting):
		newStatus = StatusWaiting
		recordedErr = execErr
		var wr *WaitingRequest
		if errors.As(execErr, &wr) && p.options.OutputChannel != nil {
			select {
			case p.options.OutputChannel <- wr.Message:
			default:
			}
		}
	case errors.Is(execErr, ErrPaused):
		newStatus = StatusPaused
		recordedErr = execErr
	default:
		newStatus = StatusFailed
		kind := agenterrors.ActionFailed
		switch {
		case errors.Is(execErr, context.DeadlineExceeded):
			kind = agenterrors.Timeout
		case errors.Is(execErr, context.Canceled):
			kind = agenterrors.Cancelled
		}
		recordedErr = &agenterrors.ExecutionError{Kind: kind, Action: action.Name, Err: execErr}
	}

	p.mu.Lock()
	p.history = append(p.history, HistoryEntry{
		ActionName: action.Name,
		Timestamp:  time.Now().UnixNano(),
		Err:        recordedErr,
	})
	if !isTerminal(p.status) {
		p.status = newStatus
	}
	p.mu.Unlock()

	return recordedErr
}
