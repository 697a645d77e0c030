package ollama

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ollama/ollama/api"
	"github.com/xpanvictor/xarvis-gateway/pkg/assistant"
	"github.com/xpanvictor/xarvis-gateway/pkg/assistant/adapters"
	"github.com/xpanvictor/xarvis-gateway/pkg/assistant/providers/ollama"
	toolsystem "github.com/xpanvictor/xarvis-gateway/pkg/tool_system"
)

// Chatter is the part of the provider the adapter needs.
type Chatter interface {
	Chat(ctx context.Context, req api.ChatRequest, fn api.ChatResponseFunc) error
}

type ollamaAdapter struct {
	op     Chatter
	model  string
	system string
	cfg    adapters.ContractLLMCfg
}

func New(provider *ollama.OllamaProvider, system string, cfg adapters.ContractLLMCfg) assistant.Generator {
	return NewWithChatter(provider, provider.Model(), system, cfg)
}

func NewWithChatter(c Chatter, model, system string, cfg adapters.ContractLLMCfg) assistant.Generator {
	return &ollamaAdapter{op: c, model: model, system: system, cfg: cfg}
}

func (o *ollamaAdapter) Generate(ctx context.Context, input assistant.GenerateInput) (<-chan assistant.Event, error) {
	tools, err := ConvertTools(input.Functions)
	if err != nil {
		return nil, err
	}
	req := api.ChatRequest{
		Model:    o.model,
		Messages: o.convertMsgs(input.UserInput),
		Tools:    tools,
	}

	return adapters.Stream(ctx, o.cfg, func(ctx context.Context, emit func(assistant.Event) bool) error {
		return o.op.Chat(ctx, req, func(cr api.ChatResponse) error {
			for _, ev := range convertBackward(cr) {
				if !emit(ev) {
					return ctx.Err()
				}
			}
			return nil
		})
	}), nil
}

func (o *ollamaAdapter) convertMsgs(userInput string) []api.Message {
	var msgs []api.Message
	if o.system != "" {
		msgs = append(msgs, api.Message{Role: string(assistant.SYSTEM), Content: o.system})
	}
	return append(msgs, api.Message{Role: string(assistant.USER), Content: userInput})
}

func convertBackward(cr api.ChatResponse) []assistant.Event {
	var evs []assistant.Event
	for _, tc := range cr.Message.ToolCalls {
		evs = append(evs, assistant.Event{FunctionCall: &toolsystem.FunctionCall{
			Name:       tc.Function.Name,
			Parameters: map[string]any(tc.Function.Arguments),
		}})
	}
	if cr.Message.Content != "" {
		evs = append(evs, assistant.Event{Text: cr.Message.Content})
	}
	return evs
}

// ConvertTools renders function definitions in ollama's tool format.
func ConvertTools(defs []toolsystem.FunctionDef) ([]api.Tool, error) {
	if len(defs) == 0 {
		return nil, nil
	}
	raw := make([]map[string]any, 0, len(defs))
	for _, d := range defs {
		raw = append(raw, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        d.Name,
				"description": d.Description,
				"parameters":  d.Parameters.AsMap(),
			},
		})
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var tools []api.Tool
	if err := json.Unmarshal(b, &tools); err != nil {
		return nil, fmt.Errorf("convert tools: %w", err)
	}
	return tools, nil
}
