package gemini

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"github.com/xpanvictor/xarvis-gateway/internal/config"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

type GeminiProvider struct {
	client *genai.Client
	model  string
}

func New(ctx context.Context, cfg config.GeminiConfig) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini API key is not configured")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini API client: %w", err)
	}
	return &GeminiProvider{client: client, model: cfg.Model}, nil
}

func (gp *GeminiProvider) GetModel() *genai.GenerativeModel {
	return gp.client.GenerativeModel(gp.model)
}

// Stream feeds every response of a streaming call to fn until the
// iterator is exhausted.
func Stream(iter *genai.GenerateContentResponseIterator, fn func(*genai.GenerateContentResponse) error) error {
	for {
		resp, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("gemini stream: %w", err)
		}
		if err := fn(resp); err != nil {
			return err
		}
	}
}

func (gp *GeminiProvider) Close() error {
	return gp.client.Close()
}
