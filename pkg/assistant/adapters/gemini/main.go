package gemini

import (
	"context"

	"github.com/google/generative-ai-go/genai"
	"github.com/xpanvictor/xarvis-gateway/pkg/assistant"
	"github.com/xpanvictor/xarvis-gateway/pkg/assistant/adapters"
	"github.com/xpanvictor/xarvis-gateway/pkg/assistant/providers/gemini"
	toolsystem "github.com/xpanvictor/xarvis-gateway/pkg/tool_system"
)

type geminiAdapter struct {
	gp     *gemini.GeminiProvider
	system string
	cfg    adapters.ContractLLMCfg
}

func New(provider *gemini.GeminiProvider, system string, cfg adapters.ContractLLMCfg) assistant.Generator {
	return &geminiAdapter{gp: provider, system: system, cfg: cfg}
}

func (g *geminiAdapter) Generate(ctx context.Context, input assistant.GenerateInput) (<-chan assistant.Event, error) {
	model := g.gp.GetModel()
	model.Tools = ConvertTools(input.Functions)
	if g.system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(g.system)}}
	}

	return adapters.Stream(ctx, g.cfg, func(ctx context.Context, emit func(assistant.Event) bool) error {
		iter := model.GenerateContentStream(ctx, genai.Text(input.UserInput))
		return gemini.Stream(iter, func(resp *genai.GenerateContentResponse) error {
			for _, ev := range ConvertBackward(resp) {
				if !emit(ev) {
					return ctx.Err()
				}
			}
			return nil
		})
	}), nil
}

// ConvertBackward flattens the first candidate of a response into events.
func ConvertBackward(resp *genai.GenerateContentResponse) []assistant.Event {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil
	}
	var evs []assistant.Event
	for _, part := range resp.Candidates[0].Content.Parts {
		switch p := part.(type) {
		case genai.Text:
			if p != "" {
				evs = append(evs, assistant.Event{Text: string(p)})
			}
		case genai.FunctionCall:
			evs = append(evs, assistant.Event{FunctionCall: &toolsystem.FunctionCall{
				Name:       p.Name,
				Parameters: p.Args,
			}})
		}
	}
	return evs
}

func ConvertTools(defs []toolsystem.FunctionDef) []*genai.Tool {
	if len(defs) == 0 {
		return nil
	}
	decls := make([]*genai.FunctionDeclaration, 0, len(defs))
	for _, d := range defs {
		schema := &genai.Schema{Type: genai.TypeObject, Properties: map[string]*genai.Schema{}}
		if d.Parameters != nil {
			for name, arg := range d.Parameters.Properties {
				schema.Properties[name] = &genai.Schema{
					Type:        schemaType(arg.Type),
					Description: arg.Description,
					Enum:        arg.Enum,
				}
			}
			schema.Required = d.Parameters.Required
		}
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  schema,
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func schemaType(t toolsystem.JSONType) genai.Type {
	switch t {
	case toolsystem.JSONInteger:
		return genai.TypeInteger
	case toolsystem.JSONNumber:
		return genai.TypeNumber
	case toolsystem.JSONBool:
		return genai.TypeBoolean
	case toolsystem.JSONArray:
		return genai.TypeArray
	case toolsystem.JSONObject:
		return genai.TypeObject
	default:
		return genai.TypeString
	}
}
