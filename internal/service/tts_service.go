package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"storybook-server/internal/assets"
	"storybook-server/shared/logger"
	"storybook-server/shared/models"
)

// Причины, по которым клиенту предлагается озвучка на устройстве.
const (
	FallbackProviderUnavailable = "provider_unavailable"
	FallbackProviderFailed      = "provider_failed"
)

// SpeechNarrator синтезирует речь через контроллер миграции аудио.
type SpeechNarrator interface {
	Available() bool
	Narrate(ctx context.Context, userID string, req assets.NarrationRequest) (*assets.Narration, error)
}

// TTSResult - либо готовое аудио, либо указание озвучить текст на устройстве.
type TTSResult struct {
	Narration *assets.Narration
	Fallback  bool
	Reason    string
	Text      string
	Voice     assets.VoiceProfile
	StoryType string
	Emotion   string
}

// TTSService - синхронная озвучка произвольного текста.
type TTSService struct {
	narrator SpeechNarrator
	logger   *zap.Logger
}

// NewTTSService создает сервис озвучки. narrator может быть nil.
func NewTTSService(narrator SpeechNarrator, log *zap.Logger) *TTSService {
	return &TTSService{narrator: narrator, logger: log.Named("TTSService")}
}

// Synthesize озвучивает текст. Ошибки валидации возвращаются как есть,
// недоступность провайдера превращается в fallback-ответ без ошибки.
func (s *TTSService) Synthesize(ctx context.Context, user models.AuthUser, req assets.NarrationRequest) (*TTSResult, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, models.ValidationError("text", true)
	}
	if r := []rune(text); len(r) > assets.MaxNarrationLength {
		text = string(r[:assets.MaxNarrationLength])
	}
	req.Text = text

	voice, _ := assets.ResolveVoice(req.Voice)
	fallback := &TTSResult{
		Fallback:  true,
		Text:      text,
		Voice:     voice,
		StoryType: req.StoryType,
		Emotion:   req.Emotion,
	}

	if s.narrator == nil || !s.narrator.Available() {
		fallback.Reason = FallbackProviderUnavailable
		return fallback, nil
	}

	n, err := s.narrator.Narrate(ctx, user.ID, req)
	if err != nil {
		if errors.Is(err, models.ErrMissingField) || errors.Is(err, models.ErrInvalidField) {
			return nil, err
		}
		s.logger.Warn("Speech provider failed, client will use device TTS", logger.UserField(user.ID), zap.Error(err))
		if errors.Is(err, models.ErrMisconfigured) {
			fallback.Reason = FallbackProviderUnavailable
		} else {
			fallback.Reason = FallbackProviderFailed
		}
		return fallback, nil
	}
	return &TTSResult{Narration: n, Text: text, Voice: n.Voice, StoryType: req.StoryType, Emotion: req.Emotion}, nil
}
