package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"storybook-server/internal/ai"
	"storybook-server/internal/assets"
	"storybook-server/internal/ledger"
	"storybook-server/shared/interfaces"
	"storybook-server/shared/logger"
	"storybook-server/shared/models"
)

// Пределы параметров истории.
const (
	DefaultWordsPerChapter = 150
	MinWordsPerChapter     = 50
	MaxWordsPerChapter     = 600
	MaxTitleLength         = 120
	MaxCharacters          = 8

	DefaultListLimit = 10
	MaxListLimit     = 50
)

// SegmentGenerator пишет очередную главу через контроллер миграции текста.
type SegmentGenerator interface {
	GenerateSegment(ctx context.Context, userID string, req ai.StoryRequest) (*ai.GeneratedSegment, error)
}

// AssetDispatcher ставит задачи иллюстраций и озвучки в очередь.
type AssetDispatcher interface {
	Enqueue(ctx context.Context, story *models.Story, seg *models.Segment, kind models.AssetKind, opts assets.EnqueueOptions) (*models.Segment, error)
}

// CreditLedger - списания и возвраты кредитов.
type CreditLedger interface {
	Debit(ctx context.Context, userID string, amount int64, reason models.CreditReason, ref *string) (*models.CreditTransaction, error)
	Refund(ctx context.Context, userID string, amount int64, ref *string) error
}

// StoryService - движок оркестрации: кредиты, генерация текста, граф сегментов и ассеты.
type StoryService interface {
	CreateStory(ctx context.Context, user models.AuthUser, in CreateStoryInput) (*CreateStoryResult, error)
	GenerateSegment(ctx context.Context, user models.AuthUser, in GenerateSegmentInput) (*GenerateSegmentResult, error)
	GetStory(ctx context.Context, user models.AuthUser, storyID uuid.UUID) (*models.Story, error)
	ListStories(ctx context.Context, user models.AuthUser, filter models.StoryFilter) (models.StoryPage, models.StoryFilter, error)
	RequestAsset(ctx context.Context, user models.AuthUser, segmentID uuid.UUID, kind models.AssetKind, opts assets.EnqueueOptions) (*models.Segment, error)
}

// CreateStoryInput - параметры новой истории и ключ идемпотентности клиента.
type CreateStoryInput struct {
	Params         models.StoryParams
	IdempotencyKey string
}

// CreateStoryResult - созданная история с первой главой.
type CreateStoryResult struct {
	Story        *models.Story
	FirstSegment *models.Segment
	Quote        models.CostQuote
	Provider     string
	Version      string
}

// GenerateSegmentInput - запрос следующей главы.
type GenerateSegmentInput struct {
	StoryID     uuid.UUID
	ChoiceIndex *int
}

// GenerateSegmentResult - новая глава и обновленная история.
type GenerateSegmentResult struct {
	Segment  *models.Segment
	Story    *models.Story
	Provider string
	Version  string
}

type storyServiceImpl struct {
	stories    interfaces.StoryRepository
	segments   interfaces.SegmentRepository
	generator  SegmentGenerator
	dispatcher AssetDispatcher
	credits    CreditLedger
	logger     *zap.Logger
}

// NewStoryService создает движок. dispatcher может быть nil: тогда истории с иллюстрациями или озвучкой отклоняются.
func NewStoryService(
	stories interfaces.StoryRepository,
	segments interfaces.SegmentRepository,
	generator SegmentGenerator,
	dispatcher AssetDispatcher,
	credits CreditLedger,
	log *zap.Logger,
) StoryService {
	return &storyServiceImpl{
		stories:    stories,
		segments:   segments,
		generator:  generator,
		dispatcher: dispatcher,
		credits:    credits,
		logger:     log.Named("StoryService"),
	}
}

// CreateStory списывает полную стоимость истории, генерирует первую главу и сохраняет их.
// Если генерация или сохранение не удались, списание компенсируется возвратом.
func (s *storyServiceImpl) CreateStory(ctx context.Context, user models.AuthUser, in CreateStoryInput) (*CreateStoryResult, error) {
	story, err := s.buildStory(user.ID, in.Params)
	if err != nil {
		return nil, err
	}
	// Дополнения оплачиваются только при настроенной очереди ассетов.
	if (story.IncludeImages || story.IncludeAudio) && s.dispatcher == nil {
		return nil, fmt.Errorf("%w: asset queue is not configured", models.ErrMisconfigured)
	}
	quote := ledger.Quote(story.Length, story.IncludeImages, story.IncludeAudio)
	story.TargetChapters = quote.Chapters

	log := s.logger.With(logger.UserField(user.ID), zap.String("story_id", story.ID.String()))

	ref := strings.TrimSpace(in.IdempotencyKey)
	if ref == "" {
		ref = story.ID.String()
	}
	if _, err := s.credits.Debit(ctx, user.ID, quote.TotalCost, models.ReasonStoryCreation, &ref); err != nil {
		return nil, err
	}

	gen, err := s.generator.GenerateSegment(ctx, user.ID, ai.StoryRequest{Story: story, Position: 1})
	if err != nil {
		s.refund(ctx, log, user.ID, quote.TotalCost, ref)
		return nil, err
	}

	gen.Draft.TargetChapters = story.TargetChapters
	first := gen.Draft.Finalize(story.ID, 1, nil)
	if err := s.stories.CreateWithFirstSegment(ctx, story, &first); err != nil {
		s.refund(ctx, log, user.ID, quote.TotalCost, ref)
		return nil, err
	}
	log.Info("Story created",
		zap.Int64("cost", quote.TotalCost),
		zap.Int("target_chapters", story.TargetChapters),
		zap.String("provider", gen.Provider),
		zap.String("version", string(gen.Version)),
		zap.Bool("fallback", gen.WasError))

	firstSeg := s.enqueueAssets(ctx, story, &first)
	story.Segments = []models.Segment{*firstSeg}
	deriveAssetStatus(story)

	return &CreateStoryResult{
		Story:        story,
		FirstSegment: firstSeg,
		Quote:        quote,
		Provider:     gen.Provider,
		Version:      string(gen.Version),
	}, nil
}

func (s *storyServiceImpl) refund(ctx context.Context, log *zap.Logger, userID string, amount int64, ref string) {
	if err := s.credits.Refund(context.WithoutCancel(ctx), userID, amount, &ref); err != nil {
		log.Error("Failed to refund story credits", zap.Int64("amount", amount), zap.Error(err))
		return
	}
	log.Warn("Story credits refunded after failed creation", zap.Int64("amount", amount))
}

func (s *storyServiceImpl) buildStory(userID string, p models.StoryParams) (*models.Story, error) {
	title := strings.TrimSpace(p.Title)
	if title == "" {
		return nil, models.ValidationError("title", true)
	}
	if len([]rune(title)) > MaxTitleLength {
		return nil, models.ValidationError("title", false)
	}

	words := p.WordsPerChapter
	if words == 0 {
		words = DefaultWordsPerChapter
	}
	if words < MinWordsPerChapter || words > MaxWordsPerChapter {
		return nil, fmt.Errorf("%w: words_per_chapter must be between %d and %d",
			models.ErrInvalidField, MinWordsPerChapter, MaxWordsPerChapter)
	}

	length, ok := models.ParseStoryLength(string(p.Length))
	if !ok {
		return nil, models.ValidationError("length", false)
	}

	age, known := models.NormalizeAgeGroup(string(p.AgeGroup), nil)
	if !known && p.AgeGroup != "" {
		s.logger.Warn("Unknown age group, using default", zap.String("age_group", string(p.AgeGroup)))
	}

	var characters []models.StoryCharacter
	for _, c := range p.Characters {
		c.Name = strings.TrimSpace(c.Name)
		if c.Name == "" {
			continue
		}
		characters = append(characters, c)
	}
	if len(characters) > MaxCharacters {
		return nil, fmt.Errorf("%w: at most %d characters", models.ErrInvalidField, MaxCharacters)
	}

	return &models.Story{
		ID:              uuid.New(),
		UserID:          userID,
		Title:           title,
		Description:     strings.TrimSpace(p.Description),
		Genre:           models.NormalizeGenre(p.Genre, ""),
		AgeGroup:        age,
		Theme:           strings.TrimSpace(p.Theme),
		Setting:         strings.TrimSpace(p.Setting),
		Characters:      characters,
		Conflict:        strings.TrimSpace(p.Conflict),
		Quest:           strings.TrimSpace(p.Quest),
		MoralLesson:     strings.TrimSpace(p.MoralLesson),
		WordsPerChapter: words,
		Length:          length,
		IncludeImages:   p.IncludeImages,
		IncludeAudio:    p.IncludeAudio,
		ArtStyle:        strings.TrimSpace(p.ArtStyle),
		IsPublic:        p.IsPublic,
	}, nil
}

// GenerateSegment дописывает следующую главу по выбору читателя.
func (s *storyServiceImpl) GenerateSegment(ctx context.Context, user models.AuthUser, in GenerateSegmentInput) (*GenerateSegmentResult, error) {
	story, err := s.ownedStory(ctx, user, in.StoryID)
	if err != nil {
		return nil, err
	}
	if story.IsCompleted {
		return nil, models.ErrStoryCompleted
	}

	history, err := s.segments.ListByStory(ctx, story.ID)
	if err != nil {
		return nil, err
	}

	req := ai.StoryRequest{Story: story, History: history, Position: len(history) + 1}
	if in.ChoiceIndex != nil {
		if len(history) == 0 {
			return nil, fmt.Errorf("%w: story has no segments", models.ErrInvalidChoice)
		}
		latest := history[len(history)-1]
		idx := *in.ChoiceIndex
		if idx < 0 || idx >= len(latest.Choices) {
			return nil, fmt.Errorf("%w: index %d, available %d", models.ErrInvalidChoice, idx, len(latest.Choices))
		}
		req.ChoiceText = latest.Choices[idx].Text
	}

	gen, err := s.generator.GenerateSegment(ctx, user.ID, req)
	if err != nil {
		return nil, err
	}
	gen.Draft.ChoiceIndex = in.ChoiceIndex

	seg, updated, err := s.segments.Append(ctx, story.ID, gen.Draft)
	if errors.Is(err, models.ErrPositionConflict) {
		s.logger.Warn("Segment position conflict, retrying append",
			zap.String("story_id", story.ID.String()), logger.UserField(user.ID))
		seg, updated, err = s.segments.Append(ctx, story.ID, gen.Draft)
	}
	if err != nil {
		return nil, err
	}

	seg = s.enqueueAssets(ctx, updated, seg)
	return &GenerateSegmentResult{
		Segment:  seg,
		Story:    updated,
		Provider: gen.Provider,
		Version:  string(gen.Version),
	}, nil
}

// GetStory возвращает историю со всеми главами по порядку позиций.
func (s *storyServiceImpl) GetStory(ctx context.Context, user models.AuthUser, storyID uuid.UUID) (*models.Story, error) {
	story, err := s.ownedStory(ctx, user, storyID)
	if err != nil {
		return nil, err
	}
	segments, err := s.segments.ListByStory(ctx, story.ID)
	if err != nil {
		return nil, err
	}
	story.Segments = segments
	deriveAssetStatus(story)
	return story, nil
}

// ListStories возвращает страницу историй пользователя и примененный фильтр.
func (s *storyServiceImpl) ListStories(ctx context.Context, user models.AuthUser, filter models.StoryFilter) (models.StoryPage, models.StoryFilter, error) {
	if filter.Limit <= 0 {
		filter.Limit = DefaultListLimit
	}
	if filter.Limit > MaxListLimit {
		filter.Limit = MaxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	switch filter.Status {
	case models.StoryStatusAny, models.StoryStatusCompleted, models.StoryStatusInProgress:
	default:
		return models.StoryPage{}, filter, models.ValidationError("status", false)
	}
	if g := strings.TrimSpace(filter.Genre); g != "" {
		filter.Genre = models.NormalizeGenre(g, "")
	}

	page, err := s.stories.ListByUser(ctx, user.ID, filter)
	if err != nil {
		return models.StoryPage{}, filter, err
	}
	return page, filter, nil
}

// RequestAsset - явный запрос иллюстрации или озвучки сегмента, в том числе повтор после failed.
func (s *storyServiceImpl) RequestAsset(ctx context.Context, user models.AuthUser, segmentID uuid.UUID, kind models.AssetKind, opts assets.EnqueueOptions) (*models.Segment, error) {
	if kind != models.AssetKindImage && kind != models.AssetKindAudio {
		return nil, models.ValidationError("kind", false)
	}
	if s.dispatcher == nil {
		return nil, fmt.Errorf("%w: asset queue is not configured", models.ErrMisconfigured)
	}
	seg, err := s.segments.GetByID(ctx, segmentID)
	if err != nil {
		return nil, err
	}
	story, err := s.ownedStory(ctx, user, seg.StoryID)
	if err != nil {
		return nil, err
	}

	if !assetIncluded(story, kind) {
		// Ассет вне тарифа истории оплачивается один раз на сегмент.
		ref := fmt.Sprintf("%s:%s", seg.ID, kind)
		_, err := s.credits.Debit(ctx, user.ID, assetPrice(kind), models.ReasonAssetRequest, &ref)
		if err != nil && !errors.Is(err, models.ErrDuplicateTransaction) {
			return nil, err
		}
	}

	opts.Explicit = true
	return s.dispatcher.Enqueue(ctx, story, seg, kind, opts)
}

func (s *storyServiceImpl) ownedStory(ctx context.Context, user models.AuthUser, storyID uuid.UUID) (*models.Story, error) {
	story, err := s.stories.GetByID(ctx, storyID)
	if err != nil {
		return nil, err
	}
	if !user.CanAccess(story.UserID) {
		s.logger.Warn("Access to foreign story denied",
			logger.UserField(user.ID), zap.String("story_id", storyID.String()))
		return nil, models.ErrNotResourceOwner
	}
	return story, nil
}

// enqueueAssets ставит оплаченные ассеты новой главы в очередь. Ошибки не отменяют сохраненный текст.
func (s *storyServiceImpl) enqueueAssets(ctx context.Context, story *models.Story, seg *models.Segment) *models.Segment {
	if s.dispatcher == nil {
		return seg
	}
	for _, kind := range []models.AssetKind{models.AssetKindImage, models.AssetKindAudio} {
		if !assetIncluded(story, kind) {
			continue
		}
		updated, err := s.dispatcher.Enqueue(ctx, story, seg, kind, assets.EnqueueOptions{})
		if err != nil {
			s.logger.Warn("Asset not queued",
				zap.String("segment_id", seg.ID.String()),
				zap.String("kind", string(kind)),
				zap.Error(err))
		}
		if updated != nil {
			seg = updated
		}
	}
	return seg
}

func assetIncluded(story *models.Story, kind models.AssetKind) bool {
	if kind == models.AssetKindAudio {
		return story.IncludeAudio
	}
	return story.IncludeImages
}

func assetPrice(kind models.AssetKind) int64 {
	if kind == models.AssetKindAudio {
		return ledger.CreditsPerChapterAudio
	}
	return ledger.CreditsPerChapterImage
}

func deriveAssetStatus(story *models.Story) {
	images := make([]models.AssetStatus, 0, len(story.Segments))
	audio := make([]models.AssetStatus, 0, len(story.Segments))
	for _, seg := range story.Segments {
		images = append(images, seg.ImageStatus)
		audio = append(audio, seg.AudioStatus)
	}
	story.ImageStatus = models.AggregateAssetStatus(images)
	story.AudioStatus = models.AggregateAssetStatus(audio)
}
