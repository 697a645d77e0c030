package gemini

import (
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	toolsystem "github.com/xpanvictor/xarvis-gateway/pkg/tool_system"
)

func TestConvertBackward(t *testing.T) {
	resp := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content: &genai.Content{Parts: []genai.Part{
			genai.Text("Hello "),
			genai.FunctionCall{Name: "timer", Args: map[string]any{"minutes": float64(5)}},
			genai.Text(""),
		}},
	}}}

	evs := ConvertBackward(resp)
	require.Len(t, evs, 2)
	assert.Equal(t, "Hello ", evs[0].Text)
	require.NotNil(t, evs[1].FunctionCall)
	assert.Equal(t, "timer", evs[1].FunctionCall.Name)
	assert.Equal(t, float64(5), evs[1].FunctionCall.Parameters["minutes"])

	assert.Nil(t, ConvertBackward(nil))
	assert.Nil(t, ConvertBackward(&genai.GenerateContentResponse{}))
}

func TestConvertTools(t *testing.T) {
	def := toolsystem.NewFunctionBuilder("timer", "start a timer").
		AddNumberParameter("minutes", "length", true).
		AddBooleanParameter("loud", "ring loudly", false).
		Build()

	tools := ConvertTools([]toolsystem.FunctionDef{def, {Name: "bare"}})
	require.Len(t, tools, 1)
	decls := tools[0].FunctionDeclarations
	require.Len(t, decls, 2)
	assert.Equal(t, "timer", decls[0].Name)
	assert.Equal(t, genai.TypeNumber, decls[0].Parameters.Properties["minutes"].Type)
	assert.Equal(t, genai.TypeBoolean, decls[0].Parameters.Properties["loud"].Type)
	assert.Equal(t, []string{"minutes"}, decls[0].Parameters.Required)
	assert.Empty(t, decls[1].Parameters.Properties)

	assert.Nil(t, ConvertTools(nil))
}
