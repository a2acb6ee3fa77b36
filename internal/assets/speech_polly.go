package assets

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	"github.com/aws/aws-sdk-go-v2/service/polly/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	"storybook-server/shared/models"
)

type pollyAPI interface {
	SynthesizeSpeech(ctx context.Context, params *polly.SynthesizeSpeechInput, optFns ...func(*polly.Options)) (*polly.SynthesizeSpeechOutput, error)
}

// PollyClient - legacy провайдер речи с поддержкой SSML.
type PollyClient struct {
	api    pollyAPI
	engine types.Engine
	logger *zap.Logger
}

// NewPollyClient загружает AWS конфигурацию по умолчанию для региона.
func NewPollyClient(ctx context.Context, region, engine string, log *zap.Logger) (*PollyClient, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &PollyClient{
		api:    polly.NewFromConfig(cfg),
		engine: types.Engine(engine),
		logger: log.Named("PollyClient"),
	}, nil
}

func (c *PollyClient) Name() string { return "polly" }

func (c *PollyClient) Synthesize(ctx context.Context, req SpeechRequest) (*SpeechResult, error) {
	out, err := c.api.SynthesizeSpeech(ctx, &polly.SynthesizeSpeechInput{
		Engine:       c.engine,
		OutputFormat: types.OutputFormatMp3,
		Text:         aws.String(req.SSML),
		TextType:     types.TextTypeSsml,
		VoiceId:      types.VoiceId(req.Voice.PollyVoice),
	})
	if err != nil {
		return nil, c.classify(err)
	}
	defer out.AudioStream.Close()

	audio, err := io.ReadAll(out.AudioStream)
	if err != nil {
		return nil, fmt.Errorf("%w: read audio stream: %v", ErrSpeechSynthesisFailed, err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("%w: empty audio stream", ErrSpeechSynthesisFailed)
	}
	return &SpeechResult{Audio: audio, ContentType: "audio/mpeg", Format: "mp3"}, nil
}

// classify разделяет ошибки AWS: неверный запрос против сбоя сервиса.
func (c *PollyClient) classify(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		c.logger.Error("Polly API error",
			zap.String("code", apiErr.ErrorCode()),
			zap.String("fault", apiErr.ErrorFault().String()),
			zap.String("message", apiErr.ErrorMessage()))
		switch apiErr.ErrorCode() {
		case "InvalidSsmlException", "TextLengthExceededException", "SsmlMarksNotSupportedForTextTypeException":
			return fmt.Errorf("%w: %w: %s", ErrSpeechSynthesisFailed, models.ErrInvalidField, apiErr.ErrorMessage())
		}
		return fmt.Errorf("%w: %s: %s", ErrSpeechSynthesisFailed, apiErr.ErrorCode(), apiErr.ErrorMessage())
	}
	return fmt.Errorf("%w: %v", ErrSpeechSynthesisFailed, err)
}
