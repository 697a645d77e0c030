package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/xpanvictor/xarvis-gateway/internal/config"
	"github.com/xpanvictor/xarvis-gateway/pkg/assistant"
	"github.com/xpanvictor/xarvis-gateway/pkg/assistant/adapters"
	toolsystem "github.com/xpanvictor/xarvis-gateway/pkg/tool_system"
)

const defaultMaxTokens = 1024

type anthropicAdapter struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	system    string
	cfg       adapters.ContractLLMCfg
}

// New builds the adapter. Extra request options follow the API key.
func New(cfg config.AnthropicConfig, system string, lc adapters.ContractLLMCfg, opts ...option.RequestOption) assistant.Generator {
	opts = append([]option.RequestOption{option.WithAPIKey(cfg.APIKey)}, opts...)
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &anthropicAdapter{
		client:    anthropic.NewClient(opts...),
		model:     cfg.Model,
		maxTokens: maxTokens,
		system:    system,
		cfg:       lc,
	}
}

// toolBlock collects a tool_use block while its input streams in.
type toolBlock struct {
	name  string
	input strings.Builder
}

func (a *anthropicAdapter) Generate(ctx context.Context, input assistant.GenerateInput) (<-chan assistant.Event, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: a.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(input.UserInput)),
		},
		Tools: ConvertTools(input.Functions),
	}
	if a.system != "" {
		params.System = []anthropic.TextBlockParam{{Text: a.system}}
	}

	return adapters.Stream(ctx, a.cfg, func(ctx context.Context, emit func(assistant.Event) bool) error {
		stream := a.client.Messages.NewStreaming(ctx, params)
		defer stream.Close()

		tools := map[int64]*toolBlock{}
		for stream.Next() {
			event := stream.Current()
			switch event.Type {
			case "content_block_start":
				start := event.AsContentBlockStart()
				if start.ContentBlock.Type == "tool_use" {
					tools[start.Index] = &toolBlock{name: start.ContentBlock.Name}
				}
			case "content_block_delta":
				delta := event.AsContentBlockDelta()
				switch delta.Delta.Type {
				case "text_delta":
					if delta.Delta.Text != "" && !emit(assistant.Event{Text: delta.Delta.Text}) {
						return ctx.Err()
					}
				case "input_json_delta":
					if tb, ok := tools[delta.Index]; ok {
						tb.input.WriteString(delta.Delta.PartialJSON)
					}
				}
			case "content_block_stop":
				stop := event.AsContentBlockStop()
				tb, ok := tools[stop.Index]
				if !ok {
					continue
				}
				delete(tools, stop.Index)
				call, err := toolCall(tb)
				if err != nil {
					return err
				}
				if !emit(assistant.Event{FunctionCall: call}) {
					return ctx.Err()
				}
			}
		}
		return stream.Err()
	}), nil
}

func toolCall(tb *toolBlock) (*toolsystem.FunctionCall, error) {
	args := map[string]any{}
	if raw := tb.input.String(); raw != "" {
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			return nil, fmt.Errorf("tool %s arguments: %w", tb.name, err)
		}
	}
	return &toolsystem.FunctionCall{Name: tb.name, Parameters: args}, nil
}

func ConvertTools(defs []toolsystem.FunctionDef) []anthropic.ToolUnionParam {
	if len(defs) == 0 {
		return nil
	}
	tools := make([]anthropic.ToolUnionParam, 0, len(defs))
	for _, d := range defs {
		schema := d.Parameters.AsMap()
		tools = append(tools, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        d.Name,
				Description: anthropic.String(d.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: schema["properties"],
				},
			},
		})
	}
	return tools
}
