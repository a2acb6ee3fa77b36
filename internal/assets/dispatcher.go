package assets

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"storybook-server/internal/ai"
	"storybook-server/shared/interfaces"
	"storybook-server/shared/logger"
	"storybook-server/shared/messaging"
	"storybook-server/shared/models"
	"storybook-server/shared/utils"
)

// EnqueueOptions - параметры постановки задачи.
type EnqueueOptions struct {
	// Explicit - явный запрос пользователя, разрешает повтор после failed.
	Explicit  bool
	Voice     string
	StoryType string
}

// Dispatcher переводит ассет сегмента в in_progress и публикует задачу воркеру.
// Запись текста сегмента к этому моменту уже закоммичена и не откатывается.
type Dispatcher struct {
	segments  interfaces.SegmentRepository
	publisher messaging.AssetTaskPublisher
	logger    *zap.Logger
}

// NewDispatcher создает диспетчер. publisher может быть nil, если очередь не настроена.
func NewDispatcher(segments interfaces.SegmentRepository, publisher messaging.AssetTaskPublisher, log *zap.Logger) *Dispatcher {
	return &Dispatcher{segments: segments, publisher: publisher, logger: log.Named("AssetDispatcher")}
}

// Enqueue ставит задачу генерации ассета. Возвращает сегмент с новым статусом.
func (d *Dispatcher) Enqueue(ctx context.Context, story *models.Story, seg *models.Segment, kind models.AssetKind, opts EnqueueOptions) (*models.Segment, error) {
	if d.publisher == nil {
		return nil, fmt.Errorf("%w: asset queue is not configured", models.ErrMisconfigured)
	}
	log := d.logger.With(
		zap.String("segment_id", seg.ID.String()),
		zap.String("kind", string(kind)),
		logger.UserField(story.UserID))

	updated, err := d.segments.TransitionAsset(ctx, seg.ID, kind,
		models.AllowedSources(models.AssetStatusInProgress, opts.Explicit), models.AssetStatusInProgress, nil, nil)
	if err != nil {
		log.Warn("Asset task not started", zap.Error(err))
		return nil, err
	}

	payload := messaging.AssetTaskPayload{
		TaskID:    uuid.NewString(),
		Kind:      kind,
		StoryID:   story.ID.String(),
		SegmentID: seg.ID.String(),
		UserID:    story.UserID,
	}
	switch kind {
	case models.AssetKindImage:
		prompt := ""
		if seg.ImagePrompt != nil {
			prompt = *seg.ImagePrompt
		}
		payload.Prompt = ai.CompactImagePrompt(prompt, seg.Content)
		payload.ArtStyle = story.ArtStyle
	case models.AssetKindAudio:
		payload.Text = seg.Content
		payload.Voice = opts.Voice
		payload.StoryType = opts.StoryType
		if payload.StoryType == "" {
			payload.StoryType = story.Genre
		}
	default:
		return nil, fmt.Errorf("%w: unknown asset kind %q", models.ErrInvalidField, kind)
	}

	if err := d.publisher.PublishAssetTask(ctx, payload); err != nil {
		tasksDispatched.WithLabelValues(string(kind), "error").Inc()
		log.Error("Failed to publish asset task, marking failed", zap.Error(err))
		msg := utils.StringShort("enqueue failed: "+err.Error(), 500)
		if failed, tErr := d.segments.TransitionAsset(ctx, seg.ID, kind,
			[]models.AssetStatus{models.AssetStatusInProgress}, models.AssetStatusFailed, nil, &msg); tErr == nil {
			updated = failed
		} else {
			log.Error("Failed to mark asset as failed", zap.Error(tErr))
		}
		return updated, fmt.Errorf("publish asset task: %w", err)
	}

	tasksDispatched.WithLabelValues(string(kind), "published").Inc()
	log.Info("Asset task published", zap.String("task_id", payload.TaskID))
	return updated, nil
}
