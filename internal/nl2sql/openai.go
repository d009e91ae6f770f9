package nl2sql

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/textsql/textsql/internal/observability"
)

const (
	translateTemperature = 0.0
	explainTemperature   = 0.3
	chatTemperature      = 0.7
)

type OpenAIConfig struct {
	BaseURL   string
	APIKey    string
	SQLModel  string
	ChatModel string
	MaxTokens int
	// Timeout of zero leaves requests bounded only by their context.
	Timeout time.Duration
	Logger  *slog.Logger
}

// OpenAIClient talks to any OpenAI-compatible chat completions endpoint,
// Groq included.
type OpenAIClient struct {
	baseURL   string
	apiKey    string
	sqlModel  string
	chatModel string
	maxTokens int
	client    *http.Client
	logger    *slog.Logger
}

func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrNotConfigured
	}
	sqlModel := strings.TrimSpace(cfg.SQLModel)
	if sqlModel == "" {
		sqlModel = "llama-3.1-8b-instant"
	}
	chatModel := strings.TrimSpace(cfg.ChatModel)
	if chatModel == "" {
		chatModel = sqlModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 512
	}
	logger := cfg.Logger
	if logger == nil {
		logger = observability.DiscardLogger()
	}
	return &OpenAIClient{
		baseURL:   strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:    strings.TrimSpace(cfg.APIKey),
		sqlModel:  sqlModel,
		chatModel: chatModel,
		maxTokens: maxTokens,
		client:    &http.Client{Timeout: cfg.Timeout},
		logger:    logger,
	}, nil
}

func (c *OpenAIClient) Translate(ctx context.Context, req Request) (Result, error) {
	content, err := c.complete(ctx, ModeSQL, c.sqlModel, translateSystemPrompt, BuildPrompt(req.Question, req.Schema), translateTemperature)
	if err != nil {
		return Result{}, err
	}
	return Result{
		SQL:      StripCodeFences(content),
		Provider: "openai-compatible",
		Model:    c.sqlModel,
	}, nil
}

func (c *OpenAIClient) Explain(ctx context.Context, sqlText string) (string, error) {
	content, err := c.complete(ctx, ModeExplain, c.sqlModel, explainSystemPrompt, BuildExplainPrompt(sqlText), explainTemperature)
	if err != nil {
		return "", err
	}
	return StripCodeFences(content), nil
}

func (c *OpenAIClient) Chat(ctx context.Context, message string) (string, error) {
	content, err := c.complete(ctx, ModeChat, c.chatModel, chatSystemPrompt, message, chatTemperature)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(content), nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *OpenAIClient) complete(ctx context.Context, mode, model, system, user string, temperature float64) (content string, err error) {
	start := time.Now()
	defer func() {
		observability.ObserveCompletion(mode, err, time.Since(start))
		c.logger.DebugContext(ctx, "completion finished",
			slog.String("trace_id", observability.TraceIDFromContext(ctx)),
			slog.String("mode", mode),
			slog.String("model", model),
			slog.Duration("duration", time.Since(start)),
			slog.Bool("failed", err != nil),
		)
	}()

	body, err := json.Marshal(chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("request chat completion: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	rawRespBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read chat response body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("chat completion failed status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(rawRespBody)))
	}

	var parsed chatResponse
	if err := json.Unmarshal(rawRespBody, &parsed); err != nil {
		return "", fmt.Errorf("decode chat completion response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("empty chat completion choices")
	}
	return parsed.Choices[0].Message.Content, nil
}
