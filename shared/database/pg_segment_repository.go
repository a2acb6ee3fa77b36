package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"storybook-server/shared/interfaces"
	"storybook-server/shared/models"
)

var _ interfaces.SegmentRepository = (*pgSegmentRepository)(nil)

type pgSegmentRepository struct {
	db     interfaces.TxBeginner
	logger *zap.Logger
}

func NewPgSegmentRepository(db interfaces.TxBeginner, logger *zap.Logger) interfaces.SegmentRepository {
	return &pgSegmentRepository{
		db:     db,
		logger: logger.Named("PgSegmentRepo"),
	}
}

const segmentColumns = `
	id, story_id, position, content, word_count, choices, is_end, parent_segment_id,
	image_prompt, image_url, image_status, image_error, audio_url, audio_status, audio_error, created_at`

const insertSegmentQuery = `
INSERT INTO story_segments (
	id, story_id, position, content, word_count, choices, is_end, parent_segment_id,
	image_prompt, image_status, audio_status, created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

const (
	getSegmentByIDQuery        = `SELECT ` + segmentColumns + ` FROM story_segments WHERE id = $1`
	listSegmentsByStoryQuery   = `SELECT ` + segmentColumns + ` FROM story_segments WHERE story_id = $1 ORDER BY position`
	listSegmentsByStoriesQuery = `SELECT ` + segmentColumns + ` FROM story_segments WHERE story_id = ANY($1) ORDER BY story_id, position`
	getLatestSegmentQuery      = `SELECT ` + segmentColumns + ` FROM story_segments WHERE story_id = $1 ORDER BY position DESC LIMIT 1`
)

const (
	lockStoryQuery         = `SELECT target_chapters, is_completed FROM stories WHERE id = $1 FOR UPDATE`
	updateChoicesQuery     = `UPDATE story_segments SET choices = $2 WHERE id = $1`
	updateStoryAfterAppend = `UPDATE stories SET segment_count = segment_count + 1, is_completed = $2, updated_at = NOW() WHERE id = $1`
	segmentExistsQuery     = `SELECT EXISTS (SELECT 1 FROM story_segments WHERE id = $1)`
)

const transitionImageQuery = `
UPDATE story_segments
SET image_status = $2, image_url = COALESCE($3, image_url), image_error = $4
WHERE id = $1 AND image_status = ANY($5)
RETURNING ` + segmentColumns

const transitionAudioQuery = `
UPDATE story_segments
SET audio_status = $2, audio_url = COALESCE($3, audio_url), audio_error = $4
WHERE id = $1 AND audio_status = ANY($5)
RETURNING ` + segmentColumns

func (r *pgSegmentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Segment, error) {
	var seg models.Segment
	if err := pgxscan.Get(ctx, r.db, &seg, getSegmentByIDQuery, id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrSegmentNotFound
		}
		r.logger.Error("Failed to get segment by ID", zap.String("segmentID", id.String()), zap.Error(err))
		return nil, fmt.Errorf("%w: get segment %s: %v", models.ErrDatabase, id, err)
	}
	return &seg, nil
}

func (r *pgSegmentRepository) ListByStory(ctx context.Context, storyID uuid.UUID) ([]models.Segment, error) {
	segments, err := selectSegments(ctx, r.db, listSegmentsByStoryQuery, storyID)
	if err != nil {
		r.logger.Error("Failed to list segments", zap.String("storyID", storyID.String()), zap.Error(err))
		return nil, fmt.Errorf("%w: list segments: %v", models.ErrDatabase, err)
	}
	return segments, nil
}

func (r *pgSegmentRepository) GetLatest(ctx context.Context, storyID uuid.UUID) (*models.Segment, error) {
	var seg models.Segment
	if err := pgxscan.Get(ctx, r.db, &seg, getLatestSegmentQuery, storyID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrSegmentNotFound
		}
		return nil, fmt.Errorf("%w: get latest segment: %v", models.ErrDatabase, err)
	}
	return &seg, nil
}

// Append блокирует строку истории, поэтому параллельные добавления выстраиваются в очередь
// и получают последовательные позиции. Уникальный индекс (story_id, position) страхует остальное.
func (r *pgSegmentRepository) Append(ctx context.Context, storyID uuid.UUID, draft models.SegmentDraft) (*models.Segment, *models.Story, error) {
	var (
		created models.Segment
		story   storyRow
	)
	logFields := []zap.Field{zap.String("storyID", storyID.String())}

	err := WithTransaction(ctx, r.db, r.logger, func(tx pgx.Tx) error {
		var targetChapters int
		var completed bool
		if err := tx.QueryRow(ctx, lockStoryQuery, storyID).Scan(&targetChapters, &completed); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return models.ErrStoryNotFound
			}
			return fmt.Errorf("%w: lock story: %v", models.ErrDatabase, err)
		}
		if completed {
			return models.ErrStoryCompleted
		}

		position := 1
		var parentID *uuid.UUID
		var parent models.Segment
		err := pgxscan.Get(ctx, tx, &parent, getLatestSegmentQuery, storyID)
		switch {
		case err == nil:
			position = parent.Position + 1
			parentID = &parent.ID
		case errors.Is(err, pgx.ErrNoRows):
		default:
			return fmt.Errorf("%w: load parent segment: %v", models.ErrDatabase, err)
		}

		draft.TargetChapters = targetChapters
		created = draft.Finalize(storyID, position, parentID)

		if draft.ChoiceIndex != nil {
			idx := *draft.ChoiceIndex
			if parentID == nil || idx < 0 || idx >= len(parent.Choices) {
				return fmt.Errorf("%w: index %d", models.ErrInvalidChoice, idx)
			}
			parent.Choices[idx].NextSegmentID = &created.ID
			choices, err := json.Marshal(parent.Choices)
			if err != nil {
				return fmt.Errorf("marshal parent choices: %w", err)
			}
			if _, err := tx.Exec(ctx, updateChoicesQuery, parent.ID, choices); err != nil {
				return fmt.Errorf("%w: link parent choice: %v", models.ErrDatabase, err)
			}
		}

		if err := insertSegment(ctx, tx, &created); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, updateStoryAfterAppend, storyID, created.IsEnd); err != nil {
			return fmt.Errorf("%w: update story: %v", models.ErrDatabase, err)
		}
		if err := pgxscan.Get(ctx, tx, &story, getStoryByIDQuery, storyID); err != nil {
			return fmt.Errorf("%w: reload story: %v", models.ErrDatabase, err)
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, models.ErrStoryCompleted) && !errors.Is(err, models.ErrInvalidChoice) {
			r.logger.Error("Failed to append segment", append(logFields, zap.Error(err))...)
		}
		return nil, nil, err
	}

	r.logger.Info("Segment appended", append(logFields,
		zap.String("segmentID", created.ID.String()),
		zap.Int("position", created.Position),
		zap.Bool("isEnd", created.IsEnd))...)

	st := normalizeStoryRow(story, r.logger)
	return &created, &st, nil
}

func (r *pgSegmentRepository) TransitionAsset(
	ctx context.Context,
	segmentID uuid.UUID,
	kind models.AssetKind,
	from []models.AssetStatus,
	to models.AssetStatus,
	url, errMsg *string,
) (*models.Segment, error) {
	query := transitionImageQuery
	if kind == models.AssetKindAudio {
		query = transitionAudioQuery
	}
	fromStr := make([]string, len(from))
	for i, s := range from {
		fromStr[i] = string(s)
	}
	logFields := []zap.Field{
		zap.String("segmentID", segmentID.String()),
		zap.String("kind", string(kind)),
		zap.String("to", string(to)),
	}

	var seg models.Segment
	err := pgxscan.Get(ctx, r.db, &seg, query, segmentID, string(to), url, errMsg, fromStr)
	if err == nil {
		r.logger.Debug("Asset status changed", logFields...)
		return &seg, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		r.logger.Error("Failed to transition asset status", append(logFields, zap.Error(err))...)
		return nil, fmt.Errorf("%w: transition asset: %v", models.ErrDatabase, err)
	}

	var exists bool
	if err := r.db.QueryRow(ctx, segmentExistsQuery, segmentID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("%w: check segment: %v", models.ErrDatabase, err)
	}
	if !exists {
		return nil, models.ErrSegmentNotFound
	}
	r.logger.Debug("Asset transition rejected", logFields...)
	return nil, models.ErrInvalidAssetTransition
}

func insertSegment(ctx context.Context, db interfaces.DBTX, seg *models.Segment) error {
	if seg.Choices == nil {
		seg.Choices = []models.Choice{}
	}
	choices, err := json.Marshal(seg.Choices)
	if err != nil {
		return fmt.Errorf("marshal choices: %w", err)
	}
	_, err = db.Exec(ctx, insertSegmentQuery,
		seg.ID, seg.StoryID, seg.Position, seg.Content, seg.WordCount, choices, seg.IsEnd,
		seg.ParentSegmentID, seg.ImagePrompt, string(seg.ImageStatus), string(seg.AudioStatus), seg.CreatedAt,
	)
	if err != nil {
		if constraint, ok := uniqueViolation(err); ok && constraint == "uq_story_segments_position" {
			return fmt.Errorf("%w: position %d", models.ErrPositionConflict, seg.Position)
		}
		return fmt.Errorf("%w: insert segment: %v", models.ErrDatabase, err)
	}
	return nil
}

func selectSegments(ctx context.Context, db interfaces.DBTX, query string, args ...any) ([]models.Segment, error) {
	var segments []models.Segment
	if err := pgxscan.Select(ctx, db, &segments, query, args...); err != nil {
		return nil, err
	}
	for i := range segments {
		if segments[i].Choices == nil {
			segments[i].Choices = []models.Choice{}
		}
	}
	return segments, nil
}
