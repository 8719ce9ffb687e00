package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/embermind/engram/core/identity"
	"github.com/embermind/engram/core/retrieval"
	"github.com/embermind/engram/core/tools"
)

// ErrMaxIterations indicates the model kept requesting tools past the
// iteration ceiling.
var ErrMaxIterations = errors.New("agent: tool loop exceeded max iterations")

const defaultMaxIterations = 10

// fallbackSystemPrompt is used when context retrieval fails. The agent
// still answers, it just does so without its memory.
const fallbackSystemPrompt = "You are a thoughtful AI assistant. " +
	"Your long-term memory is temporarily unavailable, so rely on the current conversation only."

// Agent wires retrieval, the tool registry, and a model into one
// conversation loop.
type Agent struct {
	engine        *retrieval.Engine
	registry      *tools.Registry
	identities    *identity.Service
	completer     Completer
	logger        *slog.Logger
	maxIterations int
}

// Options configures an Agent.
type Options struct {
	MaxIterations int
	Logger        *slog.Logger
}

// Reply is the outcome of one user turn.
type Reply struct {
	Text       string
	ToolsUsed  []string
	Iterations int

	// Fallback is true when the reply was produced without retrieved
	// context because retrieval failed.
	Fallback bool
}

// New creates an agent. identities may be nil, in which case memory
// usage tracking is skipped.
func New(engine *retrieval.Engine, registry *tools.Registry, identities *identity.Service, completer Completer, opts Options) *Agent {
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = defaultMaxIterations
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Agent{
		engine:        engine,
		registry:      registry,
		identities:    identities,
		completer:     completer,
		logger:        opts.Logger,
		maxIterations: opts.MaxIterations,
	}
}

// Respond handles one user message: retrieve context, complete, and run
// any requested tools until the model produces a final answer.
func (a *Agent) Respond(ctx context.Context, userMessage string) (*Reply, error) {
	system, fallback := a.systemPrompt(ctx, userMessage)

	messages := []Message{{Role: RoleUser, Content: userMessage}}
	schemas := a.registry.CoreSchemasForAPI()
	reply := &Reply{Fallback: fallback}

	for i := 0; i < a.maxIterations; i++ {
		reply.Iterations = i + 1

		resp, err := a.completer.Complete(ctx, &Request{
			System:   system,
			Messages: messages,
			Tools:    schemas,
		})
		if err != nil {
			return nil, fmt.Errorf("completion: %w", err)
		}

		if len(resp.ToolCalls) == 0 {
			reply.Text = resp.Content
			a.finishTurn()
			return reply, nil
		}

		messages = append(messages, Message{
			Role:      RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		for _, tc := range resp.ToolCalls {
			messages = append(messages, a.runTool(ctx, tc))
			reply.ToolsUsed = append(reply.ToolsUsed, tc.Name)
		}
	}

	return nil, ErrMaxIterations
}

// systemPrompt retrieves context for the turn, falling back to a static
// prompt when the memory layer is unavailable.
func (a *Agent) systemPrompt(ctx context.Context, userMessage string) (string, bool) {
	rctx, err := a.engine.Retrieve(ctx, retrieval.Options{Query: userMessage})
	if err != nil {
		a.logger.Warn("context retrieval failed, using fallback prompt", "error", err)
		return fallbackSystemPrompt, true
	}

	if a.identities != nil {
		for _, mem := range rctx.Memories {
			if err := a.identities.MarkMemoryUsed(mem.ID); err != nil {
				a.logger.Warn("mark memory used failed", "memory_id", mem.ID, "error", err)
			}
		}
	}
	return rctx.ToSystemPrompt(), false
}

// runTool executes one tool call and formats its result as a transcript
// message for the next completion.
func (a *Agent) runTool(ctx context.Context, tc ToolCall) Message {
	result := a.registry.ExecuteTool(ctx, tc.Name, tc.Input)

	content := result.Error
	if !result.IsError {
		switch v := result.Content.(type) {
		case string:
			content = v
		default:
			data, err := json.Marshal(v)
			if err != nil {
				content = fmt.Sprintf("%v", v)
			} else {
				content = string(data)
			}
		}
	}

	return Message{
		Role:       RoleTool,
		ToolCallID: tc.ID,
		Content:    content,
		IsError:    result.IsError,
	}
}

func (a *Agent) finishTurn() {
	if a.identities == nil {
		return
	}
	err := a.identities.IncrementConversationCount()
	if err != nil && !errors.Is(err, identity.ErrNoPersona) {
		a.logger.Warn("conversation count update failed", "error", err)
	}
}
