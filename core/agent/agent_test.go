package agent

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/embermind/engram/core/config"
	"github.com/embermind/engram/core/embedding"
	"github.com/embermind/engram/core/graph"
	"github.com/embermind/engram/core/identity"
	"github.com/embermind/engram/core/retrieval"
	"github.com/embermind/engram/core/tools"
)

// scriptedCompleter returns canned responses in order and records every
// request it saw.
type scriptedCompleter struct {
	responses []*Response
	requests  []*Request
}

func (c *scriptedCompleter) Complete(ctx context.Context, req *Request) (*Response, error) {
	c.requests = append(c.requests, req)
	if len(c.requests) > len(c.responses) {
		return c.responses[len(c.responses)-1], nil
	}
	return c.responses[len(c.requests)-1], nil
}

func (c *scriptedCompleter) ModelName() string { return "scripted" }

func setupAgent(t *testing.T, completer Completer, maxIter int) (*Agent, *graph.Store, *tools.Registry) {
	t.Helper()

	store, err := graph.Open(filepath.Join(t.TempDir(), "agent.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	svc := identity.NewService(store, nil)
	_, _, err = svc.EnsurePersona(identity.Seed{
		Name:    "Iris",
		Tagline: "a curious companion",
	})
	require.NoError(t, err)

	engine, err := retrieval.NewEngine(store, svc, embedding.NewLocalProvider(32), nil)
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	registry, err := tools.NewRegistry(t.TempDir(), nil, nil)
	require.NoError(t, err)

	a := New(engine, registry, svc, completer, Options{MaxIterations: maxIter})
	return a, store, registry
}

func TestRespondDirectAnswer(t *testing.T) {
	completer := &scriptedCompleter{responses: []*Response{
		{Content: "Hello there.", StopReason: "end_turn"},
	}}
	a, _, _ := setupAgent(t, completer, 5)

	reply, err := a.Respond(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "Hello there.", reply.Text)
	assert.Equal(t, 1, reply.Iterations)
	assert.False(t, reply.Fallback)
	assert.Empty(t, reply.ToolsUsed)

	// The retrieved identity flows into the system prompt.
	require.Len(t, completer.requests, 1)
	assert.Contains(t, completer.requests[0].System, "You are Iris")
}

func TestRespondRunsToolsThenAnswers(t *testing.T) {
	completer := &scriptedCompleter{responses: []*Response{
		{
			ToolCalls:  []ToolCall{{ID: "call_1", Name: "lookup", Input: map[string]any{"q": "weather"}}},
			StopReason: "tool_use",
		},
		{Content: "It is sunny.", StopReason: "end_turn"},
	}}
	a, _, registry := setupAgent(t, completer, 5)

	require.NoError(t, registry.RegisterTool(tools.ToolDef{
		Name:        "lookup",
		Description: "looks things up",
		InputSchema: map[string]any{"type": "object"},
		Tier:        tools.TierCore,
	}, false))
	registry.RegisterHandler("lookup", func(ctx context.Context, input map[string]any) (any, error) {
		return map[string]any{"answer": "sunny", "query": input["q"]}, nil
	})

	reply, err := a.Respond(context.Background(), "what's the weather?")
	require.NoError(t, err)
	assert.Equal(t, "It is sunny.", reply.Text)
	assert.Equal(t, []string{"lookup"}, reply.ToolsUsed)
	assert.Equal(t, 2, reply.Iterations)

	// Second request carries the assistant tool call and its result.
	require.Len(t, completer.requests, 2)
	msgs := completer.requests[1].Messages
	require.Len(t, msgs, 3)
	assert.Equal(t, RoleAssistant, msgs[1].Role)
	require.Len(t, msgs[1].ToolCalls, 1)
	assert.Equal(t, RoleTool, msgs[2].Role)
	assert.Equal(t, "call_1", msgs[2].ToolCallID)
	assert.Contains(t, msgs[2].Content, "sunny")
	assert.False(t, msgs[2].IsError)
}

func TestRespondToolErrorFlowsBack(t *testing.T) {
	completer := &scriptedCompleter{responses: []*Response{
		{ToolCalls: []ToolCall{{ID: "call_1", Name: "no_such_tool"}}, StopReason: "tool_use"},
		{Content: "I could not look that up.", StopReason: "end_turn"},
	}}
	a, _, _ := setupAgent(t, completer, 5)

	reply, err := a.Respond(context.Background(), "try a tool")
	require.NoError(t, err)
	assert.Equal(t, "I could not look that up.", reply.Text)

	msgs := completer.requests[1].Messages
	require.Len(t, msgs, 3)
	assert.True(t, msgs[2].IsError)
	assert.Contains(t, msgs[2].Content, "unknown tool")
}

func TestRespondMaxIterations(t *testing.T) {
	// The model never stops asking for tools.
	completer := &scriptedCompleter{responses: []*Response{
		{ToolCalls: []ToolCall{{ID: "c", Name: "missing"}}, StopReason: "tool_use"},
	}}
	a, _, _ := setupAgent(t, completer, 3)

	_, err := a.Respond(context.Background(), "loop forever")
	assert.ErrorIs(t, err, ErrMaxIterations)
	assert.Len(t, completer.requests, 3)
}

func TestRespondFallsBackWhenRetrievalFails(t *testing.T) {
	completer := &scriptedCompleter{responses: []*Response{
		{Content: "Answering from scratch.", StopReason: "end_turn"},
	}}
	a, store, _ := setupAgent(t, completer, 5)

	// A closed store makes every retrieval fail.
	require.NoError(t, store.Close())

	reply, err := a.Respond(context.Background(), "hello?")
	require.NoError(t, err)
	assert.True(t, reply.Fallback)
	assert.Equal(t, "Answering from scratch.", reply.Text)
	assert.Equal(t, fallbackSystemPrompt, completer.requests[0].System)
}

func TestRespondMarksMemoriesUsed(t *testing.T) {
	completer := &scriptedCompleter{responses: []*Response{
		{Content: "Noted.", StopReason: "end_turn"},
	}}
	a, store, _ := setupAgent(t, completer, 5)

	svc := identity.NewService(store, nil)
	mem, err := svc.RecordMemory("long walks", "the user enjoys long walks", "episodic", "warm")
	require.NoError(t, err)

	vec, err := embedding.NewLocalProvider(32).Embed(context.Background(), "the user enjoys long walks")
	require.NoError(t, err)
	require.NoError(t, store.SetEmbedding(mem.ID, vec))

	_, err = a.Respond(context.Background(), "the user enjoys long walks")
	require.NoError(t, err)

	node, err := store.GetNode(mem.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, node.Props.Int("times_used"))
}

func TestNewAnthropicCompleterRequiresKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	_, err := NewAnthropicCompleter(config.AgentConfig{})
	assert.ErrorIs(t, err, ErrMissingAPIKey)

	c, err := NewAnthropicCompleter(config.AgentConfig{APIKey: "test-key"})
	require.NoError(t, err)
	assert.Equal(t, defaultModel, c.ModelName())
}
