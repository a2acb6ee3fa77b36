package assets

import (
	"context"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// OpenAISpeechClient - next-gen провайдер речи. SSML не поддерживается, разметка снимается.
type OpenAISpeechClient struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

// NewOpenAISpeechClient создает клиента синтеза речи OpenAI.
func NewOpenAISpeechClient(apiKey, baseURL, model string, log *zap.Logger) *OpenAISpeechClient {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAISpeechClient{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		logger: log.Named("OpenAISpeechClient"),
	}
}

func (c *OpenAISpeechClient) Name() string { return "openai-speech" }

func (c *OpenAISpeechClient) Synthesize(ctx context.Context, req SpeechRequest) (*SpeechResult, error) {
	speed := req.Voice.Speed
	if speed <= 0 {
		speed = 1.0
	}
	resp, err := c.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(c.model),
		Input:          StripMarkup(req.SSML),
		Voice:          openai.SpeechVoice(req.Voice.OpenAIVoice),
		ResponseFormat: openai.SpeechResponseFormatMp3,
		Speed:          speed,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSpeechSynthesisFailed, err)
	}
	defer resp.Close()

	audio, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("%w: read audio: %v", ErrSpeechSynthesisFailed, err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("%w: empty audio", ErrSpeechSynthesisFailed)
	}
	return &SpeechResult{Audio: audio, ContentType: "audio/mpeg", Format: "mp3"}, nil
}
