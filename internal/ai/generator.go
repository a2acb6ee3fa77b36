package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"storybook-server/internal/rollout"
	"storybook-server/shared/logger"
	"storybook-server/shared/models"
)

// GeneratedSegment - нормализованный ответ провайдера вместе с метаданными выбора.
type GeneratedSegment struct {
	Draft    models.SegmentDraft
	Version  rollout.Version
	Provider string
	WasError bool
	Usage    UsageInfo
	Duration time.Duration
}

// GeneratorOptions - настройки генератора глав.
type GeneratorOptions struct {
	Timeout          time.Duration
	MaxContextTokens int
	Temperature      float64
}

// StoryGenerator пишет главы через контроллер миграции текста: legacy и next-gen клиенты.
type StoryGenerator struct {
	controller *rollout.Controller
	legacy     TextClient
	next       TextClient
	counter    *TokenCounter
	opts       GeneratorOptions
	logger     *zap.Logger
}

// NewStoryGenerator создает генератор. Любой из клиентов может быть nil, если провайдер не настроен.
func NewStoryGenerator(controller *rollout.Controller, legacy, next TextClient, counter *TokenCounter, opts GeneratorOptions, log *zap.Logger) *StoryGenerator {
	if opts.MaxContextTokens <= 0 {
		opts.MaxContextTokens = 2500
	}
	if opts.Temperature == 0 {
		opts.Temperature = 0.8
	}
	return &StoryGenerator{
		controller: controller,
		legacy:     legacy,
		next:       next,
		counter:    counter,
		opts:       opts,
		logger:     log.Named("StoryGenerator"),
	}
}

// GenerateSegment генерирует одну главу. Невалидный ответ модели считается сбоем провайдера
// и уходит в fallback так же, как сетевая ошибка.
func (g *StoryGenerator) GenerateSegment(ctx context.Context, userID string, req StoryRequest) (*GeneratedSegment, error) {
	if req.Story == nil {
		return nil, fmt.Errorf("%w: story is required", models.ErrBadRequest)
	}

	systemPrompt := BuildSystemPrompt(req.Story)
	userPrompt := BuildUserPrompt(req, g.counter, g.opts.MaxContextTokens)
	final := req.Final()

	op := "story_segment"
	if req.Position <= 1 {
		op = "story_opening"
	}

	res, err := rollout.Execute(ctx, g.controller, op, userID, g.opts.Timeout,
		g.path(userID, g.legacy, systemPrompt, userPrompt, final),
		g.path(userID, g.next, systemPrompt, userPrompt, final))
	if err != nil {
		g.logger.Error("Segment generation failed",
			logger.UserField(userID),
			zap.String("story_id", req.Story.ID.String()),
			zap.Int("position", req.Position),
			zap.Error(err))
		if !errors.Is(err, models.ErrAIProvider) && !errors.Is(err, models.ErrTimeout) && !errors.Is(err, models.ErrMisconfigured) {
			err = fmt.Errorf("%w: %w", models.ErrAIProvider, err)
		}
		return nil, err
	}

	out := res.Value
	out.Version = res.VersionUsed
	out.Provider = res.Provider
	out.WasError = res.WasError
	out.Duration = res.Duration
	return &out, nil
}

func (g *StoryGenerator) path(userID string, client TextClient, systemPrompt, userPrompt string, final bool) rollout.Path[GeneratedSegment] {
	if client == nil {
		return rollout.Path[GeneratedSegment]{}
	}
	temperature := g.opts.Temperature
	return rollout.Path[GeneratedSegment]{
		Provider: client.Name(),
		Call: func(ctx context.Context) (GeneratedSegment, error) {
			raw, usage, err := client.Complete(ctx, userID, systemPrompt, userPrompt, GenerationParams{
				Temperature: &temperature,
				JSONMode:    true,
			})
			if err != nil {
				return GeneratedSegment{}, err
			}
			draft, err := ParseSegment(raw, final)
			if err != nil {
				var invalid *InvalidResponseError
				if errors.As(err, &invalid) {
					aiInvalidResponses.WithLabelValues(client.Name(), invalid.Reason).Inc()
				}
				return GeneratedSegment{}, err
			}
			return GeneratedSegment{Draft: draft, Usage: usage}, nil
		},
	}
}
