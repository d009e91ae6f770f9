package nl2sql

import (
	"fmt"
	"log/slog"

	"github.com/textsql/textsql/internal/config"
	"github.com/textsql/textsql/internal/observability"
)

// NewModel returns the completion client for cfg, or Disabled with a single
// warning when no key is configured.
func NewModel(cfg config.AIConfig, logger *slog.Logger) (Model, error) {
	if logger == nil {
		logger = observability.DiscardLogger()
	}
	if !cfg.Enabled() {
		logger.Warn("model API key is not configured; SQL generation is disabled",
			slog.String("error", ErrNotConfigured.Error()),
		)
		return Disabled{}, nil
	}
	client, err := NewOpenAIClient(OpenAIConfig{
		BaseURL:   cfg.BaseURL,
		APIKey:    cfg.APIKey,
		SQLModel:  cfg.SQLModel,
		ChatModel: cfg.ChatModel,
		MaxTokens: cfg.MaxTokens,
		Timeout:   cfg.Timeout,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create completion client: %w", err)
	}
	return client, nil
}
