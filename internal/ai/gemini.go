package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"storybook-server/shared/logger"
)

// GeminiClient - next-gen провайдер текста.
type GeminiClient struct {
	client *genai.Client
	model  string
	logger *zap.Logger
}

// NewGeminiClient создает клиента Gemini по API ключу.
func NewGeminiClient(ctx context.Context, apiKey, model string, log *zap.Logger) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	log.Info("Gemini client created", zap.String("model", model))
	return &GeminiClient{client: client, model: model, logger: log.Named("GeminiClient")}, nil
}

// Close освобождает gRPC соединение клиента.
func (c *GeminiClient) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

func (c *GeminiClient) Name() string { return "gemini" }

func (c *GeminiClient) Complete(ctx context.Context, userID, systemPrompt, userInput string, params GenerationParams) (string, UsageInfo, error) {
	var usage UsageInfo
	if strings.TrimSpace(systemPrompt) == "" {
		aiRequestsTotal.WithLabelValues(c.Name(), c.model, "error").Inc()
		return "", usage, fmt.Errorf("%w: %w", ErrGenerationFailed, ErrEmptyPrompt)
	}

	model := c.client.GenerativeModel(c.model)
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(systemPrompt)}}
	if params.Temperature != nil {
		model.SetTemperature(float32(*params.Temperature))
	}
	if params.MaxTokens != nil {
		model.SetMaxOutputTokens(int32(*params.MaxTokens))
	}
	if params.JSONMode {
		model.ResponseMIMEType = "application/json"
	}

	input := userInput
	if input == "" {
		input = "Begin."
	}

	start := time.Now()
	resp, err := model.GenerateContent(ctx, genai.Text(input))
	duration := time.Since(start)
	if err != nil {
		c.logger.Error("Gemini request failed", logger.UserField(userID), zap.Duration("duration", duration), zap.Error(err))
		aiRequestsTotal.WithLabelValues(c.Name(), c.model, "error").Inc()
		return "", usage, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		aiRequestsTotal.WithLabelValues(c.Name(), c.model, "error_empty_response").Inc()
		return "", usage, fmt.Errorf("%w: no candidates", ErrGenerationFailed)
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}
	if strings.TrimSpace(text.String()) == "" {
		aiRequestsTotal.WithLabelValues(c.Name(), c.model, "error_empty_response").Inc()
		return "", usage, fmt.Errorf("%w: empty response", ErrGenerationFailed)
	}

	aiRequestsTotal.WithLabelValues(c.Name(), c.model, "success").Inc()
	aiRequestDuration.WithLabelValues(c.Name(), c.model).Observe(duration.Seconds())
	if resp.UsageMetadata != nil {
		usage = UsageInfo{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
		observeUsage(c.Name(), c.model, usage)
	}
	return text.String(), usage, nil
}
