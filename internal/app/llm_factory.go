package app

import (
	"context"
	"fmt"

	"github.com/xpanvictor/xarvis-gateway/internal/config"
	"github.com/xpanvictor/xarvis-gateway/pkg/Logger"
	"github.com/xpanvictor/xarvis-gateway/pkg/assistant/adapters"
	anthropicAdapter "github.com/xpanvictor/xarvis-gateway/pkg/assistant/adapters/anthropic"
	geminiAdapter "github.com/xpanvictor/xarvis-gateway/pkg/assistant/adapters/gemini"
	ollamaAdapter "github.com/xpanvictor/xarvis-gateway/pkg/assistant/adapters/ollama"
	openaiAdapter "github.com/xpanvictor/xarvis-gateway/pkg/assistant/adapters/openai"
	"github.com/xpanvictor/xarvis-gateway/pkg/assistant/providers/gemini"
	"github.com/xpanvictor/xarvis-gateway/pkg/assistant/providers/ollama"
	"github.com/xpanvictor/xarvis-gateway/pkg/assistant/router"
)

// Provider names accepted in llm.provider.
const (
	ProviderOpenAI    = "openai"
	ProviderOllama    = "ollama"
	ProviderGemini    = "gemini"
	ProviderAnthropic = "anthropic"
)

// LLMRouterFactory creates LLM routers with different provider configurations
type LLMRouterFactory struct {
	config config.LLMConfig
	logger *Logger.Logger
}

// NewLLMRouterFactory creates a new LLM router factory
func NewLLMRouterFactory(cfg config.LLMConfig, logger *Logger.Logger) *LLMRouterFactory {
	return &LLMRouterFactory{
		config: cfg,
		logger: logger,
	}
}

// CreateRouter builds an adapter for every provider with credentials and
// routes all turns to llm.provider. The returned closers release provider
// clients.
func (f *LLMRouterFactory) CreateRouter(ctx context.Context) (*router.Mux, []func() error, error) {
	lc := adapters.ContractLLMCfg{
		DeltaBufferLimit: f.config.EventBuffer,
		RequestTimeout:   f.config.RequestTimeout,
	}
	system := f.config.SystemPrompt

	var (
		packs   []router.AdapterPack
		closers []func() error
	)

	if f.config.OpenAI.APIKey != "" {
		packs = append(packs, router.AdapterPack{
			Name:    ProviderOpenAI,
			Adapter: openaiAdapter.New(f.config.OpenAI, system, lc),
		})
		f.logger.Infof("OpenAI adapter created, model %s", f.config.OpenAI.Model)
	}

	if len(f.config.Ollama.URLs) > 0 {
		provider := ollama.New(f.config.Ollama, f.logger)
		packs = append(packs, router.AdapterPack{
			Name:    ProviderOllama,
			Adapter: ollamaAdapter.New(provider, system, lc),
		})
		f.logger.Infof("Ollama adapter created for %v, model %s", f.config.Ollama.URLs, f.config.Ollama.Model)
	}

	if f.config.Gemini.APIKey != "" {
		provider, err := gemini.New(ctx, f.config.Gemini)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create Gemini provider: %w", err)
		}
		closers = append(closers, provider.Close)
		packs = append(packs, router.AdapterPack{
			Name:    ProviderGemini,
			Adapter: geminiAdapter.New(provider, system, lc),
		})
		f.logger.Infof("Gemini adapter created, model %s", f.config.Gemini.Model)
	}

	if f.config.Anthropic.APIKey != "" {
		packs = append(packs, router.AdapterPack{
			Name:    ProviderAnthropic,
			Adapter: anthropicAdapter.New(f.config.Anthropic, system, lc),
		})
		f.logger.Infof("Anthropic adapter created, model %s", f.config.Anthropic.Model)
	}

	if len(packs) == 0 {
		return nil, nil, fmt.Errorf("no LLM adapters configured")
	}

	selected := f.config.Provider
	if !hasPack(packs, selected) {
		f.logger.Warnf("llm.provider %q is not configured, falling back to %s", selected, packs[0].Name)
		selected = packs[0].Name
	}

	mux := router.New(router.StaticRP{Provider: selected}, packs...)
	f.logger.Infof("LLM router created with %d adapter(s), routing to %s", len(packs), selected)
	return mux, closers, nil
}

func hasPack(packs []router.AdapterPack, name string) bool {
	for _, p := range packs {
		if p.Name == name {
			return true
		}
	}
	return false
}
