package assets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"storybook-server/shared/interfaces"
	"storybook-server/shared/messaging"
	"storybook-server/shared/models"
	"storybook-server/shared/utils"
)

// Worker обрабатывает задачи ассетов из очереди.
type Worker struct {
	segments    interfaces.SegmentRepository
	illustrator *Illustrator
	narrator    *Narrator
	store       MediaStore
	pusher      *push.Pusher
	logger      *zap.Logger
}

// NewWorker создает обработчик. Пустой pushGatewayURL отключает отправку метрик в Pushgateway.
func NewWorker(segments interfaces.SegmentRepository, illustrator *Illustrator, narrator *Narrator, store MediaStore, pushGatewayURL string, log *zap.Logger) *Worker {
	w := &Worker{
		segments:    segments,
		illustrator: illustrator,
		narrator:    narrator,
		store:       store,
		logger:      log.Named("AssetWorker"),
	}
	if pushGatewayURL != "" {
		hostname, _ := os.Hostname()
		w.pusher = push.New(pushGatewayURL, "asset-worker").
			Grouping("instance", hostname).
			Gatherer(prometheus.DefaultGatherer)
		log.Info("Prometheus Pusher initialized", zap.String("url", pushGatewayURL), zap.String("instance", hostname))
	}
	return w
}

var _ messaging.DeliveryHandler = (*Worker)(nil)

// HandleDelivery возвращает true, если сообщение нужно подтвердить.
// false отправляет сообщение в DLQ без повторной доставки.
func (w *Worker) HandleDelivery(ctx context.Context, msg amqp.Delivery) bool {
	if w.pusher != nil {
		defer func() {
			if err := w.pusher.Push(); err != nil {
				w.logger.Error("Failed to push metrics to Pushgateway", zap.Error(err))
			}
		}()
	}

	var task messaging.AssetTaskPayload
	if err := json.Unmarshal(msg.Body, &task); err != nil {
		w.logger.Error("Failed to unmarshal asset task", zap.Error(err), zap.ByteString("body", msg.Body))
		tasksProcessed.WithLabelValues("unknown", "error_unmarshal").Inc()
		return false
	}
	return w.Process(ctx, task)
}

// Process выполняет одну задачу. Дубликаты и задачи для ассетов не в in_progress подтверждаются без работы.
func (w *Worker) Process(ctx context.Context, task messaging.AssetTaskPayload) bool {
	kind := string(task.Kind)
	log := w.logger.With(
		zap.String("task_id", task.TaskID),
		zap.String("segment_id", task.SegmentID),
		zap.String("kind", kind))

	segmentID, err := uuid.Parse(task.SegmentID)
	if err != nil {
		log.Error("Invalid segment id in task", zap.Error(err))
		tasksProcessed.WithLabelValues(kind, "error_unmarshal").Inc()
		return false
	}

	seg, err := w.segments.GetByID(ctx, segmentID)
	if err != nil {
		if errors.Is(err, models.ErrSegmentNotFound) || errors.Is(err, models.ErrNotFound) {
			log.Warn("Segment for asset task no longer exists")
			tasksProcessed.WithLabelValues(kind, "skipped").Inc()
			return true
		}
		log.Error("Failed to load segment", zap.Error(err))
		tasksProcessed.WithLabelValues(kind, "error_db").Inc()
		return false
	}
	if seg.AssetStatus(task.Kind) != models.AssetStatusInProgress {
		log.Info("Asset is not in progress, skipping duplicate task", zap.String("status", string(seg.AssetStatus(task.Kind))))
		tasksProcessed.WithLabelValues(kind, "skipped").Inc()
		return true
	}

	start := time.Now()
	url, genErr := w.generate(ctx, task, seg)
	taskDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())

	inProgress := []models.AssetStatus{models.AssetStatusInProgress}
	if genErr != nil {
		log.Error("Asset generation failed", zap.Error(genErr))
		msg := utils.StringShort(genErr.Error(), 500)
		_, err = w.segments.TransitionAsset(ctx, segmentID, task.Kind, inProgress, models.AssetStatusFailed, nil, &msg)
		tasksProcessed.WithLabelValues(kind, "failed").Inc()
	} else {
		_, err = w.segments.TransitionAsset(ctx, segmentID, task.Kind, inProgress, models.AssetStatusCompleted, &url, nil)
		if err == nil {
			log.Info("Asset completed", zap.String("url", url))
			tasksProcessed.WithLabelValues(kind, "completed").Inc()
		}
	}
	if err != nil {
		if errors.Is(err, models.ErrInvalidAssetTransition) {
			log.Warn("Asset status changed concurrently, result dropped")
			return true
		}
		log.Error("Failed to record asset status", zap.Error(err))
		tasksProcessed.WithLabelValues(kind, "error_db").Inc()
		return false
	}
	return true
}

func (w *Worker) generate(ctx context.Context, task messaging.AssetTaskPayload, seg *models.Segment) (string, error) {
	switch task.Kind {
	case models.AssetKindImage:
		if w.illustrator == nil {
			return "", fmt.Errorf("%w: image providers are not configured", models.ErrMisconfigured)
		}
		prompt := task.Prompt
		if prompt == "" && seg.ImagePrompt != nil {
			prompt = *seg.ImagePrompt
		}
		ill, err := w.illustrator.Illustrate(ctx, task.UserID, ImageRequest{Prompt: prompt, ArtStyle: task.ArtStyle})
		if err != nil {
			return "", err
		}
		key := fmt.Sprintf("images/%s/%s.%s", seg.StoryID, seg.ID, extensionFor(ill.Image.ContentType))
		return w.store.Save(ctx, key, ill.Image.Data)

	case models.AssetKindAudio:
		if !w.narrator.Available() {
			return "", fmt.Errorf("%w: speech providers are not configured", models.ErrMisconfigured)
		}
		text := task.Text
		if text == "" {
			text = seg.Content
		}
		n, err := w.narrator.Narrate(ctx, task.UserID, NarrationRequest{Text: text, Voice: task.Voice, StoryType: task.StoryType})
		if err != nil {
			return "", err
		}
		key := fmt.Sprintf("audio/%s/%s.%s", seg.StoryID, seg.ID, extensionFor(n.ContentType))
		return w.store.Save(ctx, key, n.Audio)

	default:
		return "", fmt.Errorf("%w: unknown asset kind %q", models.ErrInvalidField, task.Kind)
	}
}
