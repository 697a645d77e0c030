package openai

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"github.com/xpanvictor/xarvis-gateway/internal/config"
	"github.com/xpanvictor/xarvis-gateway/pkg/assistant"
	"github.com/xpanvictor/xarvis-gateway/pkg/assistant/adapters"
	toolsystem "github.com/xpanvictor/xarvis-gateway/pkg/tool_system"
)

func chunk(delta string) string {
	return fmt.Sprintf(`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"gpt-test","choices":[{"index":0,"delta":%s,"finish_reason":null}]}`, delta)
}

func sseServer(t *testing.T, body *string, events ...string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		*body = string(raw)
		w.Header().Set("Content-Type", "text/event-stream")
		for _, ev := range events {
			fmt.Fprintf(w, "data: %s\n\n", ev)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
}

func TestGenerateStreamsDeltas(t *testing.T) {
	var body string
	srv := sseServer(t, &body,
		chunk(`{"role":"assistant","content":"Hel"}`),
		chunk(`{"content":"lo."}`),
	)
	defer srv.Close()

	gen := New(config.OpenAIConfig{APIKey: "k", Model: "gpt-test"}, "sys", adapters.ContractLLMCfg{},
		option.WithBaseURL(srv.URL), option.WithMaxRetries(0))

	ch, err := gen.Generate(context.Background(), assistant.GenerateInput{UserInput: "hi"})
	require.NoError(t, err)

	var text string
	for ev := range ch {
		require.NoError(t, ev.Err)
		text += ev.Text
	}
	assert.Equal(t, "Hello.", text)
	assert.Equal(t, "gpt-test", gjson.Get(body, "model").String())
	assert.True(t, gjson.Get(body, "stream").Bool())
	assert.Equal(t, "hi", gjson.Get(body, "messages.1.content").String())
}

func TestGenerateServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"nope"}}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	gen := New(config.OpenAIConfig{APIKey: "k", Model: "gpt-test"}, "", adapters.ContractLLMCfg{},
		option.WithBaseURL(srv.URL), option.WithMaxRetries(0))
	ch, err := gen.Generate(context.Background(), assistant.GenerateInput{UserInput: "hi"})
	require.NoError(t, err)

	var last assistant.Event
	for ev := range ch {
		last = ev
	}
	assert.Error(t, last.Err)
}

func TestConvertTools(t *testing.T) {
	def := toolsystem.NewFunctionBuilder("lookup", "find a thing").
		AddStringParameter("q", "query", true).Build()
	tools := ConvertTools([]toolsystem.FunctionDef{def})
	require.Len(t, tools, 1)
	assert.Equal(t, "lookup", tools[0].Function.Name)
	assert.Equal(t, "object", tools[0].Function.Parameters["type"])
	assert.Nil(t, ConvertTools(nil))
}
