package llm_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaelion/agentkit/agenterrors"
	"github.com/kaelion/agentkit/hooks"
	"github.com/kaelion/agentkit/llm"
)

const targetSchema = `{
	"type": "object",
	"properties": {
		"name": {"type": "string"},
		"count": {"type": "integer"}
	},
	"required": ["name", "count"]
}`

type target struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestGenerate_ReturnsStubResponse(t *testing.T) {
	client := llm.NewStub(map[string]string{"hello": "world"}, "fallback")
	f := llm.NewFacade(client, nil, 1)

	text, err := f.Generate(context.Background(), "proc-1", "greet", "hello", nil)
	require.NoError(t, err)
	assert.Equal(t, "world", text)
}

func TestGenerate_FallsBackToDefaultResponse(t *testing.T) {
	client := llm.NewStub(map[string]string{"hello": "world"}, "fallback")
	f := llm.NewFacade(client, nil, 1)

	text, err := f.Generate(context.Background(), "proc-1", "greet", "unmapped prompt", nil)
	require.NoError(t, err)
	assert.Equal(t, "fallback", text)
}

func TestGenerate_RetriesThenFailsWithLlmError(t *testing.T) {
	client := llm.NewUnavailableStub(errors.New("boom"))
	f := llm.NewFacade(client, nil, 3)

	_, err := f.Generate(context.Background(), "proc-1", "greet", "hello", nil)
	require.Error(t, err)

	var llmErr *agenterrors.LlmError
	require.ErrorAs(t, err, &llmErr)
	assert.Equal(t, agenterrors.ProviderUnavailable, llmErr.Kind)
	assert.Equal(t, 3, llmErr.Attempts)
}

func TestCreateObject_ValidatesAndDecodes(t *testing.T) {
	reply := `{"name":"widget","count":3}`
	client := llm.NewStub(map[string]string{"describe it": reply}, "")
	f := llm.NewFacade(client, nil, 1)

	var got target
	err := f.CreateObject(context.Background(), "proc-1", "describe", "describe it", []byte(targetSchema), &got)
	require.NoError(t, err)
	assert.Equal(t, target{Name: "widget", Count: 3}, got)
}

func TestCreateObject_SchemaViolationReturnsParseFailure(t *testing.T) {
	reply := `{"name":"widget"}` // missing required "count"
	client := llm.NewStub(map[string]string{"describe it": reply}, "")
	f := llm.NewFacade(client, nil, 2)

	var got target
	err := f.CreateObject(context.Background(), "proc-1", "describe", "describe it", []byte(targetSchema), &got)
	require.Error(t, err)

	var llmErr *agenterrors.LlmError
	require.ErrorAs(t, err, &llmErr)
	assert.Equal(t, agenterrors.ParseFailure, llmErr.Kind)
}

func TestCreateObjectIfPossible_ReturnsFalseWithoutErrorOnPersistentNonCompliance(t *testing.T) {
	reply := `{"name":"widget"}` // always invalid
	client := llm.NewStub(map[string]string{"describe it": reply}, "")
	f := llm.NewFacade(client, nil, 2)

	var got target
	ok, err := f.CreateObjectIfPossible(context.Background(), "proc-1", "describe", "describe it", []byte(targetSchema), &got)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCreateObjectIfPossible_ReturnsErrorOnProviderOutage(t *testing.T) {
	client := llm.NewUnavailableStub(errors.New("boom"))
	f := llm.NewFacade(client, nil, 2)

	var got target
	ok, err := f.CreateObjectIfPossible(context.Background(), "proc-1", "describe", "describe it", []byte(targetSchema), &got)
	assert.False(t, ok)
	require.Error(t, err)
}

func TestCreateObjectIfPossible_SucceedsWhenValid(t *testing.T) {
	reply := `{"name":"widget","count":9}`
	client := llm.NewStub(map[string]string{"describe it": reply}, "")
	f := llm.NewFacade(client, nil, 1)

	var got target
	ok, err := f.CreateObjectIfPossible(context.Background(), "proc-1", "describe", "describe it", []byte(targetSchema), &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 9, got.Count)
}

// recordingListener records every event type published, in order.
type recordingListener struct {
	types []hooks.EventType
}

func (l *recordingListener) HandleEvent(_ context.Context, event hooks.Event) error {
	l.types = append(l.types, event.Type())
	return nil
}

func TestGenerate_PublishesRequestAndResponseEvents(t *testing.T) {
	bus := hooks.NewBus()
	listener := &recordingListener{}
	_, err := bus.Register(listener)
	require.NoError(t, err)

	client := llm.NewStub(nil, "ok")
	f := llm.NewFacade(client, bus, 1)

	_, err = f.Generate(context.Background(), "proc-1", "greet", "hi", nil)
	require.NoError(t, err)

	assert.Equal(t, []hooks.EventType{hooks.LlmRequest, hooks.LlmResponse}, listener.types)
}

func TestInvokeTool_RecordsStatsAndPublishesEvent(t *testing.T) {
	bus := hooks.NewBus()
	listener := &recordingListener{}
	_, err := bus.Register(listener)
	require.NoError(t, err)

	f := llm.NewFacade(llm.NewStub(nil, "ok"), bus, 1)
	f.RegisterTool(
		llm.ToolDefinition{Name: "lookup", Description: "looks things up"},
		func(_ context.Context, args []byte) (any, error) {
			var in struct{ Query string `json:"query"` }
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, err
			}
			return in.Query + "-result", nil
		},
	)

	result, err := f.InvokeTool(context.Background(), "proc-1", "lookup", []byte(`{"query":"widgets"}`))
	require.NoError(t, err)
	assert.Equal(t, "widgets-result", result)

	invocations, errs, _ := f.ToolStats("lookup")
	assert.Equal(t, 1, invocations)
	assert.Equal(t, 0, errs)
	assert.Contains(t, listener.types, hooks.ToolInvocation)
}

func TestInvokeTool_UnknownNameErrorsWithoutInvokingModel(t *testing.T) {
	f := llm.NewFacade(llm.NewStub(nil, "ok"), nil, 1)
	_, err := f.InvokeTool(context.Background(), "proc-1", "nonexistent", nil)
	require.Error(t, err)
}
