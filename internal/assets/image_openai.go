package assets

import (
	"context"
	"encoding/base64"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// OpenAIImageClient - next-gen провайдер изображений.
type OpenAIImageClient struct {
	client *openai.Client
	model  string
	size   string
	logger *zap.Logger
}

// NewOpenAIImageClient создает клиента генерации изображений OpenAI.
func NewOpenAIImageClient(apiKey, baseURL, model, size string, log *zap.Logger) *OpenAIImageClient {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIImageClient{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		size:   size,
		logger: log.Named("OpenAIImageClient"),
	}
}

func (c *OpenAIImageClient) Name() string { return "openai-image" }

func (c *OpenAIImageClient) Generate(ctx context.Context, req ImageRequest) (*ImageResult, error) {
	resp, err := c.client.CreateImage(ctx, openai.ImageRequest{
		Prompt:         req.FullPrompt(),
		Model:          c.model,
		Size:           c.size,
		N:              1,
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageGenerationFailed, err)
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return nil, fmt.Errorf("%w: empty image data", ErrImageGenerationFailed)
	}
	data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("%w: decode image: %v", ErrImageGenerationFailed, err)
	}
	return &ImageResult{Data: data, ContentType: "image/png"}, nil
}
