package process_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaelion/agentkit/agent"
	"github.com/kaelion/agentkit/agenterrors"
	"github.com/kaelion/agentkit/blackboard"
	"github.com/kaelion/agentkit/goap"
	"github.com/kaelion/agentkit/hooks"
	"github.com/kaelion/agentkit/process"
)

func simpleDefinition() *agent.Definition {
	return &agent.Definition{
		Name: "courier",
		Actions: []agent.ActionSpec{
			{Name: "pickUp", Preconditions: map[string]bool{}, Effects: map[string]bool{"hasPackage": true}, Cost: 1},
			{Name: "deliver", Preconditions: map[string]bool{"hasPackage": true}, Effects: map[string]bool{"delivered": true}, Cost: 1},
		},
		Goals: []agent.GoalSpec{
			{Name: "completeDelivery", Preconditions: map[string]bool{"delivered": true}, Value: 5},
		},
	}
}

// recordingExecutor applies each action's effects onto the blackboard as
// condition overrides, so subsequent Determiner lookups see progress.
type recordingExecutor struct {
	mu  sync.Mutex
	ran []string
}

func (e *recordingExecutor) Execute(_ context.Context, bb *blackboard.Blackboard, action goap.Action, _ []string) error {
	e.mu.Lock()
	e.ran = append(e.ran, action.Name)
	e.mu.Unlock()
	for k, v := range action.Effects {
		bb.SetCondition(k, v == goap.True)
	}
	return nil
}

func TestRun_ReachesCompleted(t *testing.T) {
	executor := &recordingExecutor{}
	p := process.New(simpleDefinition(), agent.ProcessOptions{}, nil, executor)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := p.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, process.StatusCompleted, p.Status())
	assert.Equal(t, []string{"pickUp", "deliver"}, executor.ran)
}

func TestTick_NoApplicableActionsGoesStuck(t *testing.T) {
	def := &agent.Definition{
		Name: "stuck",
		Actions: []agent.ActionSpec{
			{Name: "needsImpossible", Preconditions: map[string]bool{"neverTrue": true}, Effects: map[string]bool{"done": true}},
		},
		Goals: []agent.GoalSpec{{Name: "g", Preconditions: map[string]bool{"done": true}}},
	}
	p := process.New(def, agent.ProcessOptions{}, nil, &recordingExecutor{})
	require.NoError(t, p.Tick(context.Background()))
	assert.Equal(t, process.StatusStuck, p.Status())
}

func TestTick_AlreadySatisfiedGoalCompletesImmediately(t *testing.T) {
	def := &agent.Definition{
		Name:    "trivial",
		Actions: []agent.ActionSpec{},
		Goals:   []agent.GoalSpec{{Name: "g", Preconditions: map[string]bool{}}},
	}
	p := process.New(def, agent.ProcessOptions{}, nil, &recordingExecutor{})
	require.NoError(t, p.Tick(context.Background()))
	assert.Equal(t, process.StatusCompleted, p.Status())
}

func TestPauseResume(t *testing.T) {
	p := process.New(simpleDefinition(), agent.ProcessOptions{}, nil, &recordingExecutor{})
	p.Pause()
	assert.Equal(t, process.StatusPaused, p.Status())
	// Tick must not progress while paused.
	require.NoError(t, p.Tick(context.Background()))
	assert.Equal(t, process.StatusPaused, p.Status())

	p.Resume()
	assert.Equal(t, process.StatusRunning, p.Status())
}

func TestOnUserResponse_OnlyAppliesWhileWaiting(t *testing.T) {
	p := process.New(simpleDefinition(), agent.ProcessOptions{}, nil, &recordingExecutor{})
	p.OnUserResponse("ignored, not waiting")
	v, ok := p.Blackboard().Get("lastUserResponse")
	assert.False(t, ok)
	assert.Nil(t, v)
}

func TestCreateChild_SpawnsIndependentBlackboardAndIDFormat(t *testing.T) {
	parent := process.New(simpleDefinition(), agent.ProcessOptions{}, nil, &recordingExecutor{})
	parent.Blackboard().Bind("k", "parent-value")

	child := parent.CreateChild(simpleDefinition(), agent.ProcessOptions{}, &recordingExecutor{})
	assert.Contains(t, child.ID(), "courier >> ")
	assert.Equal(t, parent.ID(), child.ParentID())

	child.Blackboard().Bind("k", "child-value")
	v, _ := parent.Blackboard().Get("k")
	assert.Equal(t, "parent-value", v)
}

// countingListener counts how many times each event type is observed.
type countingListener struct {
	mu     sync.Mutex
	counts map[hooks.EventType]int
}

func newCountingListener() *countingListener {
	return &countingListener{counts: make(map[hooks.EventType]int)}
}

func (l *countingListener) HandleEvent(_ context.Context, event hooks.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.counts[event.Type()]++
	return nil
}

func (l *countingListener) count(t hooks.EventType) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.counts[t]
}

// noOpExecutor "executes" an action without ever applying its effects to
// the blackboard — used below to keep a process perpetually RUNNING (the
// planner keeps finding the same hypothetical plan every tick, since the
// real blackboard state it replans from never advances) so Kill has
// something to interrupt instead of the process reaching STUCK/COMPLETED
// on its own.
type noOpExecutor struct{}

func (noOpExecutor) Execute(context.Context, *blackboard.Blackboard, goap.Action, []string) error {
	return nil
}

// Scenario 6 (spec.md §8): kill semantics — concurrent Run() and many
// concurrent Kill() calls still produce exactly one AgentProcessKillEvent,
// and Run returns.
func TestKill_ConcurrentCallsProduceExactlyOneEvent(t *testing.T) {
	def := &agent.Definition{
		Name: "immortal",
		Actions: []agent.ActionSpec{
			{Name: "loopForever", Preconditions: map[string]bool{}, Effects: map[string]bool{"done": true}, Cost: 1},
		},
		Goals: []agent.GoalSpec{{Name: "g", Preconditions: map[string]bool{"done": true}}},
	}

	bus := hooks.NewBus()
	listener := newCountingListener()
	_, err := bus.Register(listener)
	require.NoError(t, err)

	p := process.New(def, agent.ProcessOptions{}, bus, noOpExecutor{})

	var runErr error
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		runErr = p.Run(context.Background())
	}()

	var killersDone sync.WaitGroup
	var killCalls int32
	for i := 0; i < 20; i++ {
		killersDone.Add(1)
		go func() {
			defer killersDone.Done()
			atomic.AddInt32(&killCalls, 1)
			p.Kill(context.Background(), "operator requested shutdown")
		}()
	}
	killersDone.Wait()
	wg.Wait()

	require.NoError(t, runErr)
	assert.Equal(t, process.StatusTerminated, p.Status())
	assert.Equal(t, int32(20), killCalls)
	assert.Equal(t, 1, listener.count(hooks.AgentProcessKill))
}

// doorAlarmDef models a plan whose first action ("openDoor") incidentally
// locks the door it would later need unlocked, making its original goal
// ("goalFinish") unreachable by the next tick and leaving only a lower-value
// goal ("goalBackup", already satisfied by "progressed") reachable — forcing
// a goal change on replan.
func doorAlarmDef() *agent.Definition {
	return &agent.Definition{
		Name: "vault",
		Actions: []agent.ActionSpec{
			{Name: "openDoor", Preconditions: map[string]bool{}, Effects: map[string]bool{"progressed": true}, Cost: 1},
			{Name: "crossRoom", Preconditions: map[string]bool{"progressed": true, "doorLocked": false}, Effects: map[string]bool{"done": true}, Cost: 1},
		},
		Goals: []agent.GoalSpec{
			{Name: "goalFinish", Preconditions: map[string]bool{"done": true}, Value: 10},
			{Name: "goalBackup", Preconditions: map[string]bool{"progressed": true}, Value: 3},
		},
	}
}

// alarmingExecutor applies an action's declared effects like recordingExecutor,
// but openDoor additionally locks the door as an undeclared side effect, so
// the plan it was chosen for becomes unreachable on the next tick.
type alarmingExecutor struct{}

func (alarmingExecutor) Execute(_ context.Context, bb *blackboard.Blackboard, action goap.Action, _ []string) error {
	for k, v := range action.Effects {
		bb.SetCondition(k, v == goap.True)
	}
	if action.Name == "openDoor" {
		bb.SetCondition("doorLocked", true)
	}
	return nil
}

// TestTick_GoalChangeDisallowedFails pins spec.md §4.5 step 4: when replanning
// would target a different goal than currentGoal and AllowGoalChange is
// false, Tick fails the process with a GoalChangeDisallowed PlanningError
// instead of silently retargeting.
func TestTick_GoalChangeDisallowedFails(t *testing.T) {
	p := process.New(doorAlarmDef(), agent.ProcessOptions{}, nil, alarmingExecutor{})

	require.NoError(t, p.Tick(context.Background()))
	assert.Equal(t, process.StatusRunning, p.Status())
	goal, ok := p.CurrentGoal()
	require.True(t, ok)
	assert.Equal(t, "goalFinish", goal.Name)

	err := p.Tick(context.Background())
	require.Error(t, err)
	assert.True(t, agenterrors.IsKind(err, string(agenterrors.GoalChangeDisallowed)))
	assert.Equal(t, process.StatusFailed, p.Status())
}

// TestTick_GoalChangeAllowedSwitches pins the converse: with
// AllowGoalChange=true, the same unreachable-original-goal situation
// retargets instead of failing.
func TestTick_GoalChangeAllowedSwitches(t *testing.T) {
	p := process.New(doorAlarmDef(), agent.ProcessOptions{AllowGoalChange: true}, nil, alarmingExecutor{})

	require.NoError(t, p.Tick(context.Background()))
	require.NoError(t, p.Tick(context.Background()))
	assert.Equal(t, process.StatusCompleted, p.Status())
	goal, ok := p.CurrentGoal()
	require.True(t, ok)
	assert.Equal(t, "goalBackup", goal.Name)
}

// waitingExecutor always asks for external input.
type waitingExecutor struct{ message string }

func (e waitingExecutor) Execute(context.Context, *blackboard.Blackboard, goap.Action, []string) error {
	return &process.WaitingRequest{Message: e.message}
}

// TestTick_ExecutorWaitingTransitionsToWaitingAndSurfacesMessage pins the
// WAITING suspension point (spec.md §4.5): an ActionExecutor signaling
// ErrWaiting (via *WaitingRequest) suspends the process and, when
// ProcessOptions.OutputChannel is set, delivers the human-facing message.
func TestTick_ExecutorWaitingTransitionsToWaitingAndSurfacesMessage(t *testing.T) {
	out := make(chan string, 1)
	p := process.New(simpleDefinition(), agent.ProcessOptions{OutputChannel: out}, nil, waitingExecutor{message: "which package?"})

	err := p.Tick(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, process.ErrWaiting))
	assert.Equal(t, process.StatusWaiting, p.Status())

	select {
	case msg := <-out:
		assert.Equal(t, "which package?", msg)
	default:
		t.Fatal("expected a message on OutputChannel")
	}
}

// pausingExecutor always asks to pause.
type pausingExecutor struct{}

func (pausingExecutor) Execute(context.Context, *blackboard.Blackboard, goap.Action, []string) error {
	return process.ErrPaused
}

// TestTick_ExecutorPausedTransitionsToPaused pins the PAUSED suspension
// point (spec.md §4.5).
func TestTick_ExecutorPausedTransitionsToPaused(t *testing.T) {
	p := process.New(simpleDefinition(), agent.ProcessOptions{}, nil, pausingExecutor{})

	err := p.Tick(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, process.ErrPaused))
	assert.Equal(t, process.StatusPaused, p.Status())
}

// failingExecutor always fails with a plain error.
type failingExecutor struct{}

func (failingExecutor) Execute(context.Context, *blackboard.Blackboard, goap.Action, []string) error {
	return errors.New("boom")
}

// TestTick_ExecutorFailureWrapsExecutionError pins spec.md §7's typed
// taxonomy: an ordinary action failure is wrapped in an
// *agenterrors.ExecutionError{Kind: ActionFailed} rather than surfaced raw.
func TestTick_ExecutorFailureWrapsExecutionError(t *testing.T) {
	p := process.New(simpleDefinition(), agent.ProcessOptions{}, nil, failingExecutor{})

	err := p.Tick(context.Background())
	require.Error(t, err)
	assert.True(t, agenterrors.IsKind(err, string(agenterrors.ActionFailed)))
	assert.Equal(t, process.StatusFailed, p.Status())

	history := p.History()
	require.Len(t, history, 1)
	assert.True(t, agenterrors.IsKind(history[0].Err, string(agenterrors.ActionFailed)))
}

// TestTick_ResolvesActionToolsFromAgentAndInteractionGroups pins spec.md
// §4.5's tool-callback union being computed and handed to the executor.
func TestTick_ResolvesActionToolsFromAgentAndInteractionGroups(t *testing.T) {
	def := simpleDefinition()
	def.ToolGroups = []agent.ToolGroup{
		{Name: "interaction", Tools: []string{"askUser"}},
		{Name: "logistics", Tools: []string{"trackPackage"}},
	}
	def.AgentToolGroups = []string{"logistics"}

	var gotTools []string
	executor := process.ActionExecutorFunc(func(_ context.Context, bb *blackboard.Blackboard, action goap.Action, tools []string) error {
		gotTools = tools
		bb.SetCondition("hasPackage", true)
		return nil
	})
	p := process.New(def, agent.ProcessOptions{}, nil, executor)
	require.NoError(t, p.Tick(context.Background()))
	assert.Equal(t, []string{"askUser", "trackPackage"}, gotTools)
}

func TestHasRun(t *testing.T) {
	executor := &recordingExecutor{}
	p := process.New(simpleDefinition(), agent.ProcessOptions{}, nil, executor)
	assert.False(t, p.HasRun("pickUp"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, p.Run(ctx))
	assert.True(t, p.HasRun("pickUp"))
	assert.True(t, p.HasRun("deliver"))
}
