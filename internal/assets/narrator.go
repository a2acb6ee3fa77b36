package assets

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"storybook-server/internal/rollout"
	"storybook-server/shared/logger"
	"storybook-server/shared/models"
)

// MaxNarrationLength - предел текста одного запроса синтеза в символах.
const MaxNarrationLength = 3000

// NarrationRequest - текст и параметры голоса.
type NarrationRequest struct {
	Text      string
	Voice     string
	StoryType string
	Emotion   string
}

// Narration - результат синтеза.
type Narration struct {
	Audio        []byte
	ContentType  string
	Format       string
	Voice        VoiceProfile
	VoiceMatched bool
	Provider     string
	Version      rollout.Version
	Cached       bool
}

// Narrator синтезирует речь через контроллер миграции аудио, с кэшем одинаковых запросов.
type Narrator struct {
	controller *rollout.Controller
	legacy     SpeechClient
	next       SpeechClient
	cache      AudioCache
	timeout    time.Duration
	logger     *zap.Logger
}

// NewNarrator создает синтезатор. cache может быть nil.
func NewNarrator(controller *rollout.Controller, legacy, next SpeechClient, cache AudioCache, timeout time.Duration, log *zap.Logger) *Narrator {
	return &Narrator{
		controller: controller,
		legacy:     legacy,
		next:       next,
		cache:      cache,
		timeout:    timeout,
		logger:     log.Named("Narrator"),
	}
}

// Available сообщает, настроен ли хотя бы один провайдер.
func (n *Narrator) Available() bool {
	return n != nil && (n.legacy != nil || n.next != nil)
}

// Narrate синтезирует текст. Неизвестный голос заменяется рассказчиком.
func (n *Narrator) Narrate(ctx context.Context, userID string, req NarrationRequest) (*Narration, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, models.ValidationError("text", true)
	}
	if len([]rune(text)) > MaxNarrationLength {
		text = string([]rune(text)[:MaxNarrationLength])
	}

	voice, matched := ResolveVoice(req.Voice)
	if !matched && req.Voice != "" {
		n.logger.Warn("Unknown voice, using default narrator", zap.String("voice", req.Voice))
	}

	key := AudioCacheKey(text, voice.Key, req.StoryType, req.Emotion)
	if n.cache != nil {
		audio, ok, err := n.cache.Get(ctx, key)
		switch {
		case err != nil:
			ttsCacheLookups.WithLabelValues("error").Inc()
			n.logger.Warn("TTS cache lookup failed", zap.Error(err))
		case ok:
			ttsCacheLookups.WithLabelValues("hit").Inc()
			return &Narration{Audio: audio, ContentType: "audio/mpeg", Format: "mp3", Voice: voice, VoiceMatched: matched, Cached: true}, nil
		default:
			ttsCacheLookups.WithLabelValues("miss").Inc()
		}
	}

	speech := SpeechRequest{SSML: BuildSSML(text, voice, req.StoryType, req.Emotion), Voice: voice}
	res, err := rollout.Execute(ctx, n.controller, "speech", userID, n.timeout,
		speechPath(n.legacy, speech), speechPath(n.next, speech))
	if err != nil {
		n.logger.Error("Speech synthesis failed", logger.UserField(userID), zap.Error(err))
		return nil, err
	}

	if n.cache != nil {
		if err := n.cache.Set(ctx, key, res.Value.Audio); err != nil {
			n.logger.Warn("TTS cache store failed", zap.Error(err))
		}
	}
	return &Narration{
		Audio:        res.Value.Audio,
		ContentType:  res.Value.ContentType,
		Format:       res.Value.Format,
		Voice:        voice,
		VoiceMatched: matched,
		Provider:     res.Provider,
		Version:      res.VersionUsed,
	}, nil
}

func speechPath(client SpeechClient, req SpeechRequest) rollout.Path[*SpeechResult] {
	if client == nil {
		return rollout.Path[*SpeechResult]{}
	}
	return rollout.Path[*SpeechResult]{
		Provider: client.Name(),
		Call: func(ctx context.Context) (*SpeechResult, error) {
			return client.Synthesize(ctx, req)
		},
	}
}

// Illustration - результат генерации изображения.
type Illustration struct {
	Image    *ImageResult
	Provider string
	Version  rollout.Version
}

// Illustrator генерирует изображения через контроллер миграции изображений.
type Illustrator struct {
	controller *rollout.Controller
	legacy     ImageClient
	next       ImageClient
	timeout    time.Duration
	logger     *zap.Logger
}

// NewIllustrator создает генератор иллюстраций.
func NewIllustrator(controller *rollout.Controller, legacy, next ImageClient, timeout time.Duration, log *zap.Logger) *Illustrator {
	return &Illustrator{controller: controller, legacy: legacy, next: next, timeout: timeout, logger: log.Named("Illustrator")}
}

// Illustrate генерирует картинку по компактному промпту.
func (i *Illustrator) Illustrate(ctx context.Context, userID string, req ImageRequest) (*Illustration, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, fmt.Errorf("%w: empty image prompt", models.ErrMissingField)
	}
	res, err := rollout.Execute(ctx, i.controller, "illustration", userID, i.timeout,
		imagePath(i.legacy, req), imagePath(i.next, req))
	if err != nil {
		return nil, err
	}
	return &Illustration{Image: res.Value, Provider: res.Provider, Version: res.VersionUsed}, nil
}

func imagePath(client ImageClient, req ImageRequest) rollout.Path[*ImageResult] {
	if client == nil {
		return rollout.Path[*ImageResult]{}
	}
	return rollout.Path[*ImageResult]{
		Provider: client.Name(),
		Call: func(ctx context.Context) (*ImageResult, error) {
			return client.Generate(ctx, req)
		},
	}
}
