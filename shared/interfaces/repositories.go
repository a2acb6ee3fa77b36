package interfaces

import (
	"context"

	"github.com/google/uuid"

	"storybook-server/shared/models"
)

// StoryRepository хранит истории.
type StoryRepository interface {
	// CreateWithFirstSegment атомарно сохраняет историю и её первый сегмент.
	CreateWithFirstSegment(ctx context.Context, story *models.Story, first *models.Segment) error
	// GetByID возвращает историю без сегментов, но с агрегированными статусами ассетов.
	GetByID(ctx context.Context, id uuid.UUID) (*models.Story, error)
	// ListByUser возвращает страницу историй пользователя, новые первыми.
	ListByUser(ctx context.Context, userID string, filter models.StoryFilter) (models.StoryPage, error)
}

// SegmentRepository хранит граф сегментов.
type SegmentRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Segment, error)
	// ListByStory возвращает сегменты по возрастанию позиции.
	ListByStory(ctx context.Context, storyID uuid.UUID) ([]models.Segment, error)
	// GetLatest возвращает сегмент с наибольшей позицией.
	GetLatest(ctx context.Context, storyID uuid.UUID) (*models.Segment, error)
	// Append добавляет сегмент на следующую свободную позицию и обновляет историю.
	// Если draft.ChoiceIndex задан, выбор родителя получает ссылку на новый сегмент.
	Append(ctx context.Context, storyID uuid.UUID, draft models.SegmentDraft) (*models.Segment, *models.Story, error)
	// TransitionAsset меняет статус ассета, только если текущий статус входит в from.
	TransitionAsset(ctx context.Context, segmentID uuid.UUID, kind models.AssetKind, from []models.AssetStatus, to models.AssetStatus, url, errMsg *string) (*models.Segment, error)
}

// CreditRepository хранит счета и журнал транзакций.
type CreditRepository interface {
	// GetAccount возвращает счет. Для нового пользователя это нулевой счет, не ошибка.
	GetAccount(ctx context.Context, userID string) (*models.CreditAccount, error)
	// Apply атомарно записывает транзакцию. Списание сверх баланса дает ErrInsufficientCredits,
	// повтор (userID, reason, reference) дает ErrDuplicateTransaction.
	Apply(ctx context.Context, userID string, amount int64, reason models.CreditReason, reference *string) (*models.CreditTransaction, int64, error)
	ListTransactions(ctx context.Context, userID string, limit, offset int) ([]models.CreditTransaction, int, error)
}
