package ollama

import (
	"context"
	"errors"

	"github.com/ollama/ollama/api"
	"github.com/presbrey/ollamafarm"
	"github.com/xpanvictor/xarvis-gateway/internal/config"
	"github.com/xpanvictor/xarvis-gateway/pkg/Logger"
)

var ErrNoServer = errors.New("no ollama server online")

// OllamaProvider spreads chat calls over a farm of ollama servers.
type OllamaProvider struct {
	farm  *ollamafarm.Farm
	model string
}

func New(cfg config.OllamaConfig, logger *Logger.Logger) *OllamaProvider {
	farm := ollamafarm.New()
	for _, url := range cfg.URLs {
		if err := farm.RegisterURL(url, nil); err != nil {
			logger.Warnf("ollama server %s not registered: %v", url, err)
		}
	}
	return &OllamaProvider{farm: farm, model: cfg.Model}
}

func (o *OllamaProvider) Model() string {
	return o.model
}

// Chat sends req to the first online server.
func (o *OllamaProvider) Chat(ctx context.Context, req api.ChatRequest, fn api.ChatResponseFunc) error {
	srv := o.farm.First(&ollamafarm.Where{Offline: false})
	if srv == nil {
		return ErrNoServer
	}
	return srv.Client().Chat(ctx, &req, fn)
}
