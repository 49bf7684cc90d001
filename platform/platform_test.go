package platform_test

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaelion/agentkit/agent"
	"github.com/kaelion/agentkit/agenterrors"
	"github.com/kaelion/agentkit/blackboard"
	"github.com/kaelion/agentkit/goap"
	"github.com/kaelion/agentkit/llm"
	"github.com/kaelion/agentkit/platform"
	"github.com/kaelion/agentkit/process"
	"github.com/kaelion/agentkit/rag"
	"github.com/kaelion/agentkit/store"
)

func trivialAgent(name string) *agent.Definition {
	return &agent.Definition{
		Name:    name,
		Actions: []agent.ActionSpec{},
		Goals:   []agent.GoalSpec{{Name: "g", Preconditions: map[string]bool{}}},
	}
}

func oneStepAgent(name string) *agent.Definition {
	return &agent.Definition{
		Name: name,
		Actions: []agent.ActionSpec{
			{Name: "work", Preconditions: map[string]bool{}, Effects: map[string]bool{"done": true}},
		},
		Goals: []agent.GoalSpec{{Name: "g", Preconditions: map[string]bool{"done": true}}},
	}
}

func TestRegisterAgent_Succeeds(t *testing.T) {
	ap := platform.New(platform.Options{})
	require.NoError(t, ap.RegisterAgent(trivialAgent("a")))

	def, ok := ap.AgentByName("a")
	require.True(t, ok)
	assert.Equal(t, "a", def.Name)
}

func TestRegisterAgent_RejectsInvalidDefinition(t *testing.T) {
	ap := platform.New(platform.Options{})
	err := ap.RegisterAgent(&agent.Definition{Name: "empty"})
	require.Error(t, err)
	assert.True(t, agenterrors.IsKind(err, string(agenterrors.EmptyAgent)))
}

func TestRegisterAgent_RejectsDuplicateName(t *testing.T) {
	ap := platform.New(platform.Options{})
	require.NoError(t, ap.RegisterAgent(trivialAgent("dup")))
	err := ap.RegisterAgent(trivialAgent("dup"))
	require.Error(t, err)
}

func TestAgentByName_Missing(t *testing.T) {
	ap := platform.New(platform.Options{})
	_, ok := ap.AgentByName("nope")
	assert.False(t, ok)
}

func TestCreateAgentProcess_UnknownAgentErrors(t *testing.T) {
	ap := platform.New(platform.Options{})
	_, err := ap.CreateAgentProcess(context.Background(), "nope", nil, agent.ProcessOptions{Test: true}, nil)
	require.Error(t, err)
}

func TestCreateAgentProcess_SeedsBindingsOntoBlackboard(t *testing.T) {
	ap := platform.New(platform.Options{})
	require.NoError(t, ap.RegisterAgent(trivialAgent("a")))

	p, err := ap.CreateAgentProcess(context.Background(), "a", map[string]any{"target": "alice"}, agent.ProcessOptions{Test: true}, nil)
	require.NoError(t, err)

	v, ok := p.Blackboard().Get("target")
	require.True(t, ok)
	assert.Equal(t, "alice", v)
}

func TestCreateAgentProcess_SavesIntoRepository(t *testing.T) {
	repo := store.NewInMemoryRepository(10)
	ap := platform.New(platform.Options{Repository: repo})
	require.NoError(t, ap.RegisterAgent(trivialAgent("a")))

	p, err := ap.CreateAgentProcess(context.Background(), "a", nil, agent.ProcessOptions{Test: true}, nil)
	require.NoError(t, err)

	got, ok, err := repo.FindByID(context.Background(), p.ID())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, p.ID(), got.ID())
}

func TestFacade_NonTestWithoutModelClientErrors(t *testing.T) {
	ap := platform.New(platform.Options{})
	_, err := ap.Facade(false)
	require.Error(t, err)
}

func TestFacade_TestModeAlwaysAvailable(t *testing.T) {
	ap := platform.New(platform.Options{})
	f, err := ap.Facade(true)
	require.NoError(t, err)
	require.NotNil(t, f)
}

func TestCreateAgentProcess_TestModeWiresStubFacadeIntoExecutorFactory(t *testing.T) {
	ap := platform.New(platform.Options{})
	require.NoError(t, ap.RegisterAgent(oneStepAgent("a")))

	var gotFacade *llm.Facade
	var gotPipeline *rag.Pipeline
	factory := func(facade *llm.Facade, pipeline *rag.Pipeline) process.ActionExecutor {
		gotFacade = facade
		gotPipeline = pipeline
		return process.ActionExecutorFunc(func(ctx context.Context, bb *blackboard.Blackboard, action goap.Action, tools []string) error {
			bb.SetCondition("done", true)
			return nil
		})
	}

	p, err := ap.CreateAgentProcess(context.Background(), "a", nil, agent.ProcessOptions{Test: true}, factory)
	require.NoError(t, err)
	assert.NotNil(t, gotFacade)
	assert.Nil(t, gotPipeline)

	text, err := gotFacade.Generate(context.Background(), p.ID(), "work", "hello", nil)
	require.NoError(t, err)
	assert.Equal(t, "lorem ipsum", text)
}

func TestCreateAgentProcess_RagPipelinePassedThrough(t *testing.T) {
	pipeline := rag.NewPipeline(nil, nil)
	ap := platform.New(platform.Options{RagPipeline: pipeline})
	require.NoError(t, ap.RegisterAgent(trivialAgent("a")))

	var gotPipeline *rag.Pipeline
	factory := func(_ *llm.Facade, p *rag.Pipeline) process.ActionExecutor {
		gotPipeline = p
		return nil
	}
	_, err := ap.CreateAgentProcess(context.Background(), "a", nil, agent.ProcessOptions{Test: true}, factory)
	require.NoError(t, err)
	assert.Same(t, pipeline, gotPipeline)
}

func TestRunProcess_DrivesToCompletion(t *testing.T) {
	ap := platform.New(platform.Options{})
	require.NoError(t, ap.RegisterAgent(oneStepAgent("a")))

	factory := func(*llm.Facade, *rag.Pipeline) process.ActionExecutor {
		return process.ActionExecutorFunc(func(ctx context.Context, bb *blackboard.Blackboard, action goap.Action, tools []string) error {
			bb.SetCondition("done", true)
			return nil
		})
	}
	p, err := ap.CreateAgentProcess(context.Background(), "a", nil, agent.ProcessOptions{Test: true}, factory)
	require.NoError(t, err)

	require.NoError(t, ap.RunProcess(context.Background(), p))
	assert.Equal(t, process.StatusCompleted, p.Status())
}

// denyThenAllowScheduler disallows its first N calls, then allows.
type denyThenAllowScheduler struct {
	denyCount int32
	calls     int32
}

func (s *denyThenAllowScheduler) Allow(context.Context, string) (bool, error) {
	n := atomic.AddInt32(&s.calls, 1)
	return n > s.denyCount, nil
}

func TestRunProcess_PausesWhileSchedulerDisallowsThenResumes(t *testing.T) {
	sched := &denyThenAllowScheduler{denyCount: 2}
	ap := platform.New(platform.Options{Scheduler: sched})
	require.NoError(t, ap.RegisterAgent(oneStepAgent("a")))

	factory := func(*llm.Facade, *rag.Pipeline) process.ActionExecutor {
		return process.ActionExecutorFunc(func(ctx context.Context, bb *blackboard.Blackboard, action goap.Action, tools []string) error {
			bb.SetCondition("done", true)
			return nil
		})
	}
	p, err := ap.CreateAgentProcess(context.Background(), "a", nil, agent.ProcessOptions{Test: true}, factory)
	require.NoError(t, err)

	require.NoError(t, ap.RunProcess(context.Background(), p))
	assert.Equal(t, process.StatusCompleted, p.Status())
	assert.GreaterOrEqual(t, atomic.LoadInt32(&sched.calls), int32(3))
}
