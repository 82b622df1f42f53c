package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/askdb/askdb/internal/config"
	"github.com/askdb/askdb/internal/observability"
)

// New builds the configured provider's client wrapped with request metrics.
func New(ctx context.Context, cfg config.AIConfig) (ChatModel, error) {
	var (
		model ChatModel
		err   error
	)
	switch cfg.Provider {
	case config.ProviderGemini, "":
		model, err = NewGeminiClient(ctx, GeminiConfig{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout,
		})
	case config.ProviderOpenAI:
		model, err = NewOpenAIClient(OpenAIConfig{
			BaseURL:     cfg.BaseURL,
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout,
		})
	default:
		return nil, fmt.Errorf("unsupported ai provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("%s client: %w", cfg.Provider, err)
	}
	return Instrument(model), nil
}

// Instrument records one metric sample per call made through model.
func Instrument(model ChatModel) ChatModel {
	if _, ok := model.(*instrumented); ok {
		return model
	}
	return &instrumented{inner: model}
}

type instrumented struct {
	inner ChatModel
}

func (m *instrumented) Info() Info {
	return m.inner.Info()
}

func (m *instrumented) Generate(ctx context.Context, messages []Message) (string, error) {
	start := time.Now()
	text, err := m.inner.Generate(ctx, messages)
	observability.ObserveModelRequest(m.inner.Info().Provider, err)
	observability.ObserveStage("model", time.Since(start))
	return text, err
}
