package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"storybook-server/shared/logger"
)

// OpenAIClient - legacy провайдер текста на chat completions.
type OpenAIClient struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

// NewOpenAIClient создает клиента OpenAI. baseURL позволяет ходить в совместимые API.
func NewOpenAIClient(apiKey, baseURL, model string, log *zap.Logger) *OpenAIClient {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	log.Info("OpenAI text client created", zap.String("base_url", cfg.BaseURL), zap.String("model", model))
	return &OpenAIClient{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		logger: log.Named("OpenAIClient"),
	}
}

func (c *OpenAIClient) Name() string { return "openai" }

func (c *OpenAIClient) Complete(ctx context.Context, userID, systemPrompt, userInput string, params GenerationParams) (string, UsageInfo, error) {
	var usage UsageInfo
	if strings.TrimSpace(systemPrompt) == "" {
		aiRequestsTotal.WithLabelValues(c.Name(), c.model, "error").Inc()
		return "", usage, fmt.Errorf("%w: %w", ErrGenerationFailed, ErrEmptyPrompt)
	}

	messages := []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleSystem, Content: systemPrompt}}
	if userInput != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: userInput})
	}
	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: float32Val(params.Temperature),
		MaxTokens:   intVal(params.MaxTokens),
	}
	if params.JSONMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, req)
	duration := time.Since(start)
	if err != nil {
		c.logger.Error("OpenAI request failed", logger.UserField(userID), zap.Duration("duration", duration), zap.Error(err))
		aiRequestsTotal.WithLabelValues(c.Name(), c.model, "error").Inc()
		return "", usage, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		aiRequestsTotal.WithLabelValues(c.Name(), c.model, "error_empty_response").Inc()
		return "", usage, fmt.Errorf("%w: empty response", ErrGenerationFailed)
	}

	aiRequestsTotal.WithLabelValues(c.Name(), c.model, "success").Inc()
	aiRequestDuration.WithLabelValues(c.Name(), c.model).Observe(duration.Seconds())

	usage = UsageInfo{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}
	observeUsage(c.Name(), c.model, usage)
	c.logger.Debug("OpenAI response received",
		logger.UserField(userID),
		zap.Duration("duration", duration),
		zap.Int("total_tokens", usage.TotalTokens))
	return resp.Choices[0].Message.Content, usage, nil
}
