package openai

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/xpanvictor/xarvis-gateway/internal/config"
	"github.com/xpanvictor/xarvis-gateway/pkg/assistant"
	"github.com/xpanvictor/xarvis-gateway/pkg/assistant/adapters"
	toolsystem "github.com/xpanvictor/xarvis-gateway/pkg/tool_system"
)

type openAIAdapter struct {
	client openai.Client
	model  string
	system string
	cfg    adapters.ContractLLMCfg
}

// New builds the adapter. Extra request options are appended after the
// API key, so a test can point the client at a local server.
func New(cfg config.OpenAIConfig, system string, lc adapters.ContractLLMCfg, opts ...option.RequestOption) assistant.Generator {
	opts = append([]option.RequestOption{option.WithAPIKey(cfg.APIKey)}, opts...)
	return &openAIAdapter{
		client: openai.NewClient(opts...),
		model:  cfg.Model,
		system: system,
		cfg:    lc,
	}
}

func (o *openAIAdapter) Generate(ctx context.Context, input assistant.GenerateInput) (<-chan assistant.Event, error) {
	var msgs []openai.ChatCompletionMessageParamUnion
	if o.system != "" {
		msgs = append(msgs, openai.SystemMessage(o.system))
	}
	msgs = append(msgs, openai.UserMessage(input.UserInput))

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(o.model),
		Messages: msgs,
		Tools:    ConvertTools(input.Functions),
	}

	return adapters.Stream(ctx, o.cfg, func(ctx context.Context, emit func(assistant.Event) bool) error {
		stream := o.client.Chat.Completions.NewStreaming(ctx, params)
		defer stream.Close()

		acc := openai.ChatCompletionAccumulator{}
		for stream.Next() {
			chunk := stream.Current()
			acc.AddChunk(chunk)

			if tool, ok := acc.JustFinishedToolCall(); ok {
				args := map[string]any{}
				if tool.Arguments != "" {
					if err := json.Unmarshal([]byte(tool.Arguments), &args); err != nil {
						return fmt.Errorf("tool %s arguments: %w", tool.Name, err)
					}
				}
				if !emit(assistant.Event{FunctionCall: &toolsystem.FunctionCall{Name: tool.Name, Parameters: args}}) {
					return ctx.Err()
				}
			}
			if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
				if !emit(assistant.Event{Text: chunk.Choices[0].Delta.Content}) {
					return ctx.Err()
				}
			}
		}
		return stream.Err()
	}), nil
}

func ConvertTools(defs []toolsystem.FunctionDef) []openai.ChatCompletionToolParam {
	if len(defs) == 0 {
		return nil
	}
	tools := make([]openai.ChatCompletionToolParam, 0, len(defs))
	for _, d := range defs {
		tools = append(tools, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        d.Name,
				Description: openai.String(d.Description),
				Parameters:  openai.FunctionParameters(d.Parameters.AsMap()),
			},
		})
	}
	return tools
}
