// Package platform implements AgentPlatform, the top-level object spec.md
// §2 describes as the entry point a user intent enters through: agent
// registration, process creation, and the scheduler-aware run loop that
// drives a created process to completion. It is the wiring point for every
// other component (C1-C8) — grounded on the teacher's runtime.Runtime,
// generalized from a durable Temporal-workflow orchestrator to an in-process
// one, since this module carries no distributed-workflow stack (see
// DESIGN.md).
package platform

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kaelion/agentkit/agent"
	"github.com/kaelion/agentkit/blackboard"
	"github.com/kaelion/agentkit/hooks"
	"github.com/kaelion/agentkit/llm"
	"github.com/kaelion/agentkit/process"
	"github.com/kaelion/agentkit/rag"
	"github.com/kaelion/agentkit/store"
	"github.com/kaelion/agentkit/telemetry"
)

// idlePollInterval bounds how long RunProcess sleeps between scheduler
// checks while a process is PAUSED or WAITING, mirroring process.Run's own
// poll interval for the same reason: notice a state change promptly
// without busy-spinning.
const idlePollInterval = 20 * time.Millisecond

// ExecutorFactory builds the process.ActionExecutor for a newly created
// process, given the LLM facade and RAG pipeline CreateAgentProcess has
// already selected for it (the real facade, or the deterministic stub when
// opts.Test is set). Action executors close over these to service
// LLM-backed actions, the same way the teacher's planners retrieve a
// model.Client via AgentContext.ModelClient() rather than constructing
// their own.
type ExecutorFactory func(facade *llm.Facade, pipeline *rag.Pipeline) process.ActionExecutor

// Options configures an AgentPlatform. Every field is optional; New
// substitutes an in-memory, noop-telemetry default for anything left zero,
// mirroring the teacher's runtime.New default-substitution behavior.
type Options struct {
	Bus         hooks.Bus
	Repository  store.ProcessRepository
	Scheduler   store.Scheduler
	Logger      telemetry.Logger
	Metrics     telemetry.Metrics
	Tracer      telemetry.Tracer

	// ModelClient backs the real (non-test) LLM facade. Left nil,
	// CreateAgentProcess returns an error for every process created with
	// ProcessOptions.Test == false, whether or not its actions use an LLM,
	// rather than silently falling back to the stub.
	ModelClient llm.ModelClient
	// MaxLlmAttempts bounds llm.Facade retries; <= 0 defaults to 3.
	MaxLlmAttempts int

	// RagPipeline is handed to every created process's ExecutorFactory
	// verbatim; nil is valid for agents with no RAG-backed actions.
	RagPipeline *rag.Pipeline
}

// AgentPlatform is the central registry for agent definitions and the
// factory for the processes that run them, per spec.md §2's control-flow
// summary: "a user intent enters via AgentPlatform.createAgentProcess
// (agent, bindings)".
type AgentPlatform struct {
	bus        hooks.Bus
	repository store.ProcessRepository
	scheduler  store.Scheduler
	logger     telemetry.Logger
	metrics    telemetry.Metrics
	tracer     telemetry.Tracer

	liveFacade *llm.Facade
	testFacade *llm.Facade
	ragPipeline *rag.Pipeline

	mu     sync.RWMutex
	agents map[string]*agent.Definition
}

// New constructs an AgentPlatform, substituting defaults for every zero
// field in opts: an in-process hooks.Bus, a 1000-entry InMemoryRepository,
// ProntoScheduler, and noop telemetry.
func New(opts Options) *AgentPlatform {
	bus := opts.Bus
	if bus == nil {
		bus = hooks.NewBus()
	}
	repo := opts.Repository
	if repo == nil {
		repo = store.NewInMemoryRepository(0)
	}
	sched := opts.Scheduler
	if sched == nil {
		sched = store.ProntoScheduler{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = telemetry.NewNoopTracer()
	}

	maxAttempts := opts.MaxLlmAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	var liveFacade *llm.Facade
	if opts.ModelClient != nil {
		liveFacade = llm.NewFacade(opts.ModelClient, bus, maxAttempts)
	}
	testFacade := llm.NewFacade(llm.NewStub(nil, "lorem ipsum"), bus, maxAttempts)

	return &AgentPlatform{
		bus:         bus,
		repository:  repo,
		scheduler:   sched,
		logger:      logger,
		metrics:     metrics,
		tracer:      tracer,
		liveFacade:  liveFacade,
		testFacade:  testFacade,
		ragPipeline: opts.RagPipeline,
		agents:      make(map[string]*agent.Definition),
	}
}

// Bus returns the platform's shared event bus, for callers that want to
// register additional listeners (loggers, UIs, test probes).
func (ap *AgentPlatform) Bus() hooks.Bus { return ap.bus }

// Repository returns the platform's process repository.
func (ap *AgentPlatform) Repository() store.ProcessRepository { return ap.repository }

// Facade returns the LLM facade CreateAgentProcess would select for the
// given test flag: the real, ModelClient-backed facade when test is false,
// or the deterministic stub facade when true (spec.md §6).
func (ap *AgentPlatform) Facade(test bool) (*llm.Facade, error) {
	if test {
		return ap.testFacade, nil
	}
	if ap.liveFacade == nil {
		return nil, errors.New("platform: no ModelClient configured; cannot serve a non-test LLM facade")
	}
	return ap.liveFacade, nil
}

// RegisterAgent validates def (agent.Definition.Validate) and makes it
// available to CreateAgentProcess under def.Name, publishing an
// AgentDeploymentEvent on success. Registering the same name twice is an
// error; callers that want to replace a definition must not reuse this
// method (spec.md says nothing about redefinition, and silently replacing
// a deployed agent out from under running processes would be surprising).
func (ap *AgentPlatform) RegisterAgent(def *agent.Definition) error {
	if def == nil {
		return errors.New("platform: definition is required")
	}
	if err := def.Validate(); err != nil {
		return err
	}

	ap.mu.Lock()
	if _, exists := ap.agents[def.Name]; exists {
		ap.mu.Unlock()
		return fmt.Errorf("platform: agent %q is already registered", def.Name)
	}
	ap.agents[def.Name] = def
	ap.mu.Unlock()

	return ap.bus.Publish(context.Background(), hooks.NewAgentDeploymentEvent(def.Name))
}

// AgentByName returns the registered definition named name, and whether it
// exists.
func (ap *AgentPlatform) AgentByName(name string) (*agent.Definition, bool) {
	ap.mu.RLock()
	defer ap.mu.RUnlock()
	def, ok := ap.agents[name]
	return def, ok
}

// CreateAgentProcess creates a top-level AgentProcess for the registered
// agent named agentName, seeding its blackboard with bindings (spec.md
// §2's createAgentProcess(agent, bindings)), selecting the real or test LLM
// facade per opts.Test, and saving the resulting process into the
// platform's repository. newExecutor builds the process's ActionExecutor
// from that facade and the platform's RAG pipeline.
func (ap *AgentPlatform) CreateAgentProcess(ctx context.Context, agentName string, bindings map[string]any, opts agent.ProcessOptions, newExecutor ExecutorFactory) (*process.AgentProcess, error) {
	def, ok := ap.AgentByName(agentName)
	if !ok {
		return nil, fmt.Errorf("platform: agent %q is not registered", agentName)
	}

	facade, err := ap.Facade(opts.Test)
	if err != nil {
		return nil, err
	}

	if opts.Blackboard == nil {
		opts.Blackboard = blackboardWithBindings(bindings)
	} else {
		for k, v := range bindings {
			opts.Blackboard.Bind(k, v)
		}
	}

	var executor process.ActionExecutor
	if newExecutor != nil {
		executor = newExecutor(facade, ap.ragPipeline)
	}

	p := process.New(def, opts, ap.bus, executor)
	if err := ap.repository.Save(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// RunProcess drives p's plan-act-replan loop to a terminal status,
// consulting the platform's Scheduler before every tick (spec.md §4.8: the
// scheduler "decides whether a process may proceed now, or should instead
// be left PAUSED") — the seam process.Run itself does not implement, since
// process has no dependency on store. Callers that don't need scheduling
// (e.g. a single-tenant demo) may call p.Run(ctx) directly instead.
func (ap *AgentPlatform) RunProcess(ctx context.Context, p *process.AgentProcess) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		status := p.Status()
		if terminal(status) {
			return nil
		}

		allow, err := ap.scheduler.Allow(ctx, p.ID())
		if err != nil {
			return err
		}
		if !allow {
			p.Pause()
			if !sleep(ctx) {
				return ctx.Err()
			}
			continue
		}
		if status == process.StatusPaused {
			p.Resume()
			continue
		}
		if status == process.StatusWaiting {
			if !sleep(ctx) {
				return ctx.Err()
			}
			continue
		}
		if status == process.StatusStuck {
			// Pace re-planning attempts the same way process.Run paces its
			// own STUCK retries, instead of busy-spinning Tick calls that
			// are overwhelmingly likely to replan to the same STUCK result.
			if !sleep(ctx) {
				return ctx.Err()
			}
		}

		if err := p.Tick(ctx); err != nil {
			_ = ap.repository.Save(ctx, p)
			if !errors.Is(err, process.ErrWaiting) && !errors.Is(err, process.ErrPaused) {
				return err
			}
			continue
		}
		if err := ap.repository.Save(ctx, p); err != nil {
			return err
		}
	}
}

// blackboardWithBindings builds a fresh blackboard and binds each entry of
// bindings into it, for CreateAgentProcess's (agent, bindings) call shape
// (spec.md §2).
func blackboardWithBindings(bindings map[string]any) *blackboard.Blackboard {
	bb := blackboard.New()
	for k, v := range bindings {
		bb.Bind(k, v)
	}
	return bb
}

// terminal reports whether status has no further transitions out of it,
// duplicated from process's own unexported helper (and store's) since
// Status carries no exported predicate.
func terminal(status process.Status) bool {
	switch status {
	case process.StatusCompleted, process.StatusFailed, process.StatusTerminated:
		return true
	default:
		return false
	}
}

// sleep waits idlePollInterval or until ctx is canceled, returning false in
// the latter case.
func sleep(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(idlePollInterval):
		return true
	}
}
