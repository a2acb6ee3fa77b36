package assets

import (
	"context"
	"errors"
	"fmt"

	"storybook-server/shared/models"
)

// ErrImageGenerationFailed - провайдер изображений не вернул картинку.
var ErrImageGenerationFailed = fmt.Errorf("%w: image generation failed", models.ErrAIProvider)

// ErrSpeechSynthesisFailed - провайдер речи не вернул аудио.
var ErrSpeechSynthesisFailed = fmt.Errorf("%w: speech synthesis failed", models.ErrAIProvider)

// ErrMediaSaveFailed - не удалось сохранить файл ассета.
var ErrMediaSaveFailed = errors.New("media save failed")

// ImageRequest - запрос иллюстрации.
type ImageRequest struct {
	Prompt   string
	ArtStyle string
}

// FullPrompt добавляет стиль к компактному промпту.
func (r ImageRequest) FullPrompt() string {
	if r.ArtStyle == "" {
		return r.Prompt + ", children's book illustration"
	}
	return r.Prompt + ", " + r.ArtStyle + " style children's book illustration"
}

// ImageResult - сгенерированное изображение.
type ImageResult struct {
	Data        []byte
	ContentType string
}

// ImageClient - провайдер изображений.
type ImageClient interface {
	Name() string
	Generate(ctx context.Context, req ImageRequest) (*ImageResult, error)
}

// SpeechRequest - запрос синтеза: разметка для SSML-провайдеров и голос.
type SpeechRequest struct {
	SSML  string
	Voice VoiceProfile
}

// SpeechResult - синтезированное аудио.
type SpeechResult struct {
	Audio       []byte
	ContentType string
	Format      string
}

// SpeechClient - провайдер речи.
type SpeechClient interface {
	Name() string
	Synthesize(ctx context.Context, req SpeechRequest) (*SpeechResult, error)
}

func extensionFor(contentType string) string {
	switch contentType {
	case "image/png":
		return "png"
	case "image/jpeg":
		return "jpg"
	case "image/webp":
		return "webp"
	case "audio/mpeg":
		return "mp3"
	case "audio/ogg":
		return "ogg"
	default:
		return "bin"
	}
}
