package hooks

import "time"

// EventType enumerates the well-known events published on the Bus. Every
// concrete event listed in spec.md §6 has a corresponding EventType and Go
// struct below.
type EventType string

const (
	AgentDeployment       EventType = "agent_deployment"
	AgentProcessCreation  EventType = "agent_process_creation"
	PlanFormulated        EventType = "plan_formulated"
	GoalAchieved          EventType = "goal_achieved"
	LlmRequest            EventType = "llm_request"
	LlmResponse           EventType = "llm_response"
	ToolInvocation        EventType = "tool_invocation"
	AgentProcessKill      EventType = "agent_process_kill"
	RagRequestReceived    EventType = "rag_request_received"
	RagResponse           EventType = "rag_response"
	EnhancementStarting   EventType = "enhancement_starting"
	EnhancementCompleted  EventType = "enhancement_completed"
)

// Event is the interface every published event satisfies. Concrete types
// embed baseEvent to get Type/ProcessID/Timestamp for free.
type Event interface {
	Type() EventType
	ProcessID() string
	Timestamp() int64
}

type baseEvent struct {
	eventType EventType
	processID string
	timestamp int64
}

func newBase(t EventType, processID string) baseEvent {
	return baseEvent{eventType: t, processID: processID, timestamp: time.Now().UnixNano()}
}

func (b baseEvent) Type() EventType   { return b.eventType }
func (b baseEvent) ProcessID() string { return b.processID }
func (b baseEvent) Timestamp() int64  { return b.timestamp }

type (
	// AgentDeploymentEvent fires when an agent definition is registered with
	// the platform.
	AgentDeploymentEvent struct {
		baseEvent
		AgentName string
	}

	// AgentProcessCreationEvent fires when CreateChild creates a child
	// process, and when Run starts a top-level process (once per Run call);
	// process.New and platform.CreateAgentProcess do not publish it.
	AgentProcessCreationEvent struct {
		baseEvent
		AgentName string
		ParentID  string
	}

	// PlanFormulatedEvent fires each time the planner returns a non-empty
	// plan that the process is about to execute the first action of.
	PlanFormulatedEvent struct {
		baseEvent
		GoalName    string
		ActionNames []string
		Cost        float64
		NetValue    float64
	}

	// GoalAchievedEvent fires when a process reaches COMPLETED because the
	// chosen plan was already empty (the goal held in the current state).
	GoalAchievedEvent struct {
		baseEvent
		GoalName string
	}

	// LlmRequestEvent fires immediately before an LLM facade call is
	// dispatched to the model.
	LlmRequestEvent struct {
		baseEvent
		LlmID       string
		ActionName  string
		Prompt      string
		ToolCount   int
	}

	// LlmResponseEvent fires after an LLM facade call returns, successfully
	// or not.
	LlmResponseEvent struct {
		baseEvent
		LlmID      string
		DurationMs int64
		PromptTok  int
		CompleteTok int
		Err        string
	}

	// ToolInvocationEvent fires whenever a tool callback made available to
	// the LLM facade is invoked.
	ToolInvocationEvent struct {
		baseEvent
		ToolName   string
		DurationMs int64
		Err        string
	}

	// AgentProcessKillEvent fires exactly once per successful kill()
	// transition (spec.md §8 scenario 6).
	AgentProcessKillEvent struct {
		baseEvent
		Reason string
	}

	// RagRequestReceivedEvent fires when a RagRequest enters the enhancement
	// pipeline.
	RagRequestReceivedEvent struct {
		baseEvent
		Query string
		TopK  int
	}

	// RagResponseEvent fires when the pipeline returns its final response.
	RagResponseEvent struct {
		baseEvent
		ResultCount  int
		ElapsedMs    int64
		QualityScore float64
	}

	// EnhancementStartingEvent fires immediately before an enhancer is
	// applied.
	EnhancementStartingEvent struct {
		baseEvent
		Enhancer string
	}

	// EnhancementCompletedEvent fires after an enhancer finishes (or is
	// skipped due to an error, per spec.md §7's RagError policy).
	EnhancementCompletedEvent struct {
		baseEvent
		Enhancer      string
		DurationMs    int64
		TokensUsed    int
		Skipped       bool
		SkippedReason string
	}
)

func NewAgentDeploymentEvent(agentName string) *AgentDeploymentEvent {
	return &AgentDeploymentEvent{baseEvent: newBase(AgentDeployment, ""), AgentName: agentName}
}

func NewAgentProcessCreationEvent(processID, agentName, parentID string) *AgentProcessCreationEvent {
	return &AgentProcessCreationEvent{baseEvent: newBase(AgentProcessCreation, processID), AgentName: agentName, ParentID: parentID}
}

func NewPlanFormulatedEvent(processID, goalName string, actionNames []string, cost, netValue float64) *PlanFormulatedEvent {
	return &PlanFormulatedEvent{baseEvent: newBase(PlanFormulated, processID), GoalName: goalName, ActionNames: actionNames, Cost: cost, NetValue: netValue}
}

func NewGoalAchievedEvent(processID, goalName string) *GoalAchievedEvent {
	return &GoalAchievedEvent{baseEvent: newBase(GoalAchieved, processID), GoalName: goalName}
}

func NewLlmRequestEvent(processID, llmID, actionName, prompt string, toolCount int) *LlmRequestEvent {
	return &LlmRequestEvent{baseEvent: newBase(LlmRequest, processID), LlmID: llmID, ActionName: actionName, Prompt: prompt, ToolCount: toolCount}
}

func NewLlmResponseEvent(processID, llmID string, durationMs int64, promptTok, completeTok int, err error) *LlmResponseEvent {
	e := ""
	if err != nil {
		e = err.Error()
	}
	return &LlmResponseEvent{baseEvent: newBase(LlmResponse, processID), LlmID: llmID, DurationMs: durationMs, PromptTok: promptTok, CompleteTok: completeTok, Err: e}
}

func NewToolInvocationEvent(processID, toolName string, durationMs int64, err error) *ToolInvocationEvent {
	e := ""
	if err != nil {
		e = err.Error()
	}
	return &ToolInvocationEvent{baseEvent: newBase(ToolInvocation, processID), ToolName: toolName, DurationMs: durationMs, Err: e}
}

func NewAgentProcessKillEvent(processID, reason string) *AgentProcessKillEvent {
	return &AgentProcessKillEvent{baseEvent: newBase(AgentProcessKill, processID), Reason: reason}
}

func NewRagRequestReceivedEvent(query string, topK int) *RagRequestReceivedEvent {
	return &RagRequestReceivedEvent{baseEvent: newBase(RagRequestReceived, ""), Query: query, TopK: topK}
}

func NewRagResponseEvent(resultCount int, elapsedMs int64, qualityScore float64) *RagResponseEvent {
	return &RagResponseEvent{baseEvent: newBase(RagResponse, ""), ResultCount: resultCount, ElapsedMs: elapsedMs, QualityScore: qualityScore}
}

func NewEnhancementStartingEvent(enhancer string) *EnhancementStartingEvent {
	return &EnhancementStartingEvent{baseEvent: newBase(EnhancementStarting, ""), Enhancer: enhancer}
}

func NewEnhancementCompletedEvent(enhancer string, durationMs int64, tokensUsed int, skipped bool, skippedReason string) *EnhancementCompletedEvent {
	return &EnhancementCompletedEvent{baseEvent: newBase(EnhancementCompleted, ""), Enhancer: enhancer, DurationMs: durationMs, TokensUsed: tokensUsed, Skipped: skipped, SkippedReason: skippedReason}
}
