package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/kaelion/agentkit/agenterrors"
	"github.com/kaelion/agentkit/hooks"
)

// Facade is the single seam actions call through to talk to an LLM: it
// wraps a ModelClient with retry, event emission, and typed-object
// extraction, and owns the tool registry actions draw callbacks from.
type Facade struct {
	client      ModelClient
	bus         hooks.Bus
	maxAttempts int

	mu    sync.Mutex
	tools map[string]registeredTool
	stats map[string]*toolStats
}

type registeredTool struct {
	def      ToolDefinition
	callback ToolCallback
}

type toolStats struct {
	invocations int
	errors      int
	totalMs     int64
}

// NewFacade constructs a Facade. maxAttempts bounds Generate/CreateObject
// retries on transient errors; values <= 0 are treated as 1 (no retry).
func NewFacade(client ModelClient, bus hooks.Bus, maxAttempts int) *Facade {
	if bus == nil {
		bus = hooks.NewBus()
	}
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return &Facade{
		client:      client,
		bus:         bus,
		maxAttempts: maxAttempts,
		tools:       make(map[string]registeredTool),
		stats:       make(map[string]*toolStats),
	}
}

// RegisterTool makes a tool available to subsequent Generate/CreateObject
// calls that include its name. Re-registering a name replaces its callback.
func (f *Facade) RegisterTool(def ToolDefinition, callback ToolCallback) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tools[def.Name] = registeredTool{def: def, callback: callback}
}

// InvokeTool decorates a registered tool's callback with stats recording
// and ToolInvocationEvent emission, then invokes it. Unknown tool names
// return an error without consulting the model again. Actions dispatch a
// model's requested ToolCalls through this method.
func (f *Facade) InvokeTool(ctx context.Context, processID, name string, args []byte) (any, error) {
	f.mu.Lock()
	rt, ok := f.tools[name]
	st, statsOK := f.stats[name]
	if !statsOK {
		st = &toolStats{}
		f.stats[name] = st
	}
	f.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("llm: tool %q not registered", name)
	}

	start := time.Now()
	result, err := rt.callback(ctx, args)
	elapsed := time.Since(start).Milliseconds()

	f.mu.Lock()
	st.invocations++
	st.totalMs += elapsed
	if err != nil {
		st.errors++
	}
	f.mu.Unlock()

	_ = f.bus.Publish(ctx, hooks.NewToolInvocationEvent(processID, name, elapsed, err))
	return result, err
}

// ToolStats reports the invocation count, error count, and cumulative
// duration recorded for a registered tool.
func (f *Facade) ToolStats(name string) (invocations, errors int, totalMs int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.stats[name]
	if !ok {
		return 0, 0, 0
	}
	return st.invocations, st.errors, st.totalMs
}

// Generate sends prompt as a single user message (with any prior
// transcript in history) to the model and returns its text response,
// retrying transient failures up to maxAttempts times.
func (f *Facade) Generate(ctx context.Context, processID, actionName, prompt string, history []Message) (string, error) {
	req := &Request{Messages: append(append([]Message{}, history...), Message{Role: RoleUser, Text: prompt})}

	resp, err := f.complete(ctx, processID, actionName, req)
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// CreateObject prompts the model to produce a JSON object matching schema
// (a JSON Schema document) and unmarshals it into target, retrying on
// transient provider failures or schema-validation failures up to
// maxAttempts times. Returns *agenterrors.LlmError{Kind: ParseFailure} if
// every attempt's output fails to validate.
func (f *Facade) CreateObject(ctx context.Context, processID, actionName, prompt string, schema []byte, target any) error {
	compiled, err := compileSchema(schema)
	if err != nil {
		return fmt.Errorf("llm: compile schema: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= f.maxAttempts; attempt++ {
		resp, err := f.complete(ctx, processID, actionName, &Request{
			Messages: []Message{{Role: RoleUser, Text: prompt}},
		})
		if err != nil {
			// complete has already retried the provider maxAttempts times.
			lastErr = err
			break
		}
		if err := validateAndDecode(compiled, resp.Text, target); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return &agenterrors.LlmError{Kind: agenterrors.ParseFailure, Provider: "facade", Attempts: f.maxAttempts, Err: lastErr}
}

// CreateObjectIfPossible behaves like CreateObject but treats a schema-
// validation failure on every attempt as a non-error "the model could not
// comply" outcome: it returns ok=false, nil rather than an error, while
// still surfacing genuine provider failures as errors.
func (f *Facade) CreateObjectIfPossible(ctx context.Context, processID, actionName, prompt string, schema []byte, target any) (ok bool, err error) {
	compiled, err := compileSchema(schema)
	if err != nil {
		return false, fmt.Errorf("llm: compile schema: %w", err)
	}

	var sawProviderErr error
	for attempt := 1; attempt <= f.maxAttempts; attempt++ {
		resp, err := f.complete(ctx, processID, actionName, &Request{
			Messages: []Message{{Role: RoleUser, Text: prompt}},
		})
		if err != nil {
			// complete has already retried the provider maxAttempts times.
			sawProviderErr = err
			break
		}
		if err := validateAndDecode(compiled, resp.Text, target); err != nil {
			continue // validation failure: keep trying, then give up gracefully
		}
		return true, nil
	}
	if sawProviderErr != nil {
		return false, &agenterrors.LlmError{Kind: agenterrors.ProviderUnavailable, Provider: "facade", Attempts: f.maxAttempts, Err: sawProviderErr}
	}
	return false, nil
}

// complete performs one retried ModelClient.Complete call, publishing
// LlmRequestEvent/LlmResponseEvent around every attempt.
func (f *Facade) complete(ctx context.Context, processID, actionName string, req *Request) (*Response, error) {
	var lastErr error
	for attempt := 1; attempt <= f.maxAttempts; attempt++ {
		prompt := lastUserMessage(req)
		_ = f.bus.Publish(ctx, hooks.NewLlmRequestEvent(processID, "facade", actionName, prompt, len(req.Tools)))

		start := time.Now()
		resp, err := f.client.Complete(ctx, req)
		elapsed := time.Since(start).Milliseconds()

		if err != nil {
			_ = f.bus.Publish(ctx, hooks.NewLlmResponseEvent(processID, "facade", elapsed, 0, 0, err))
			lastErr = err
			continue
		}
		_ = f.bus.Publish(ctx, hooks.NewLlmResponseEvent(processID, "facade", elapsed, resp.Usage.InputTokens, resp.Usage.OutputTokens, nil))
		return resp, nil
	}
	return nil, &agenterrors.LlmError{Kind: agenterrors.ProviderUnavailable, Provider: "facade", Attempts: f.maxAttempts, Err: lastErr}
}

func compileSchema(schema []byte) (*jsonschema.Schema, error) {
	var doc any
	if err := json.Unmarshal(schema, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	return c.Compile("schema.json")
}

func validateAndDecode(schema *jsonschema.Schema, text string, target any) error {
	var doc any
	if err := json.Unmarshal([]byte(text), &doc); err != nil {
		return fmt.Errorf("llm: model output is not valid JSON: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("llm: model output failed schema validation: %w", err)
	}
	return json.Unmarshal([]byte(text), target)
}
