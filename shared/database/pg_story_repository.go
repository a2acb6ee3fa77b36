package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"storybook-server/shared/interfaces"
	"storybook-server/shared/models"
)

var _ interfaces.StoryRepository = (*pgStoryRepository)(nil)

type pgStoryRepository struct {
	db     interfaces.TxBeginner
	logger *zap.Logger
}

func NewPgStoryRepository(db interfaces.TxBeginner, logger *zap.Logger) interfaces.StoryRepository {
	return &pgStoryRepository{
		db:     db,
		logger: logger.Named("PgStoryRepo"),
	}
}

const storyColumns = `
	s.id, s.user_id, s.title, s.description, s.genre, s.mode, s.age_group, s.target_age,
	s.theme, s.setting, s.characters, s.conflict, s.quest, s.moral_lesson, s.words_per_chapter,
	s.length, s.target_chapters, s.include_images, s.include_audio, s.art_style,
	s.is_public, s.is_completed, s.segment_count, s.created_at, s.updated_at,
	ARRAY(SELECT ss.image_status FROM story_segments ss WHERE ss.story_id = s.id) AS image_statuses,
	ARRAY(SELECT ss.audio_status FROM story_segments ss WHERE ss.story_id = s.id) AS audio_statuses`

const insertStoryQuery = `
INSERT INTO stories (
	id, user_id, title, description, genre, mode, age_group, theme, setting, characters,
	conflict, quest, moral_lesson, words_per_chapter, length, target_chapters,
	include_images, include_audio, art_style, is_public, is_completed, segment_count,
	created_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $22)`

const getStoryByIDQuery = `SELECT ` + storyColumns + ` FROM stories s WHERE s.id = $1`

// storyRow - строка выборки истории вместе со статусами ассетов её сегментов.
type storyRow struct {
	models.Story
	ImageStatuses []string `db:"image_statuses"`
	AudioStatuses []string `db:"audio_statuses"`
}

func (r *pgStoryRepository) CreateWithFirstSegment(ctx context.Context, story *models.Story, first *models.Segment) error {
	if story.ID == uuid.Nil {
		story.ID = uuid.New()
	}
	now := time.Now().UTC()
	story.CreatedAt, story.UpdatedAt = now, now
	story.SegmentCount = 1
	story.IsCompleted = first.IsEnd
	first.StoryID = story.ID
	first.Position = 1

	characters, err := json.Marshal(nonNilCharacters(story.Characters))
	if err != nil {
		return fmt.Errorf("marshal characters: %w", err)
	}
	logFields := []zap.Field{zap.String("storyID", story.ID.String()), zap.String("userID", story.UserID)}

	err = WithTransaction(ctx, r.db, r.logger, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, insertStoryQuery,
			story.ID, story.UserID, story.Title, story.Description, story.Genre, string(story.AgeGroup),
			story.Theme, story.Setting, characters, story.Conflict, story.Quest, story.MoralLesson,
			story.WordsPerChapter, string(story.Length), story.TargetChapters,
			story.IncludeImages, story.IncludeAudio, story.ArtStyle, story.IsPublic, story.IsCompleted,
			story.SegmentCount, now,
		); err != nil {
			return fmt.Errorf("insert story: %w", err)
		}
		return insertSegment(ctx, tx, first)
	})
	if err != nil {
		r.logger.Error("Failed to create story", append(logFields, zap.Error(err))...)
		return fmt.Errorf("%w: create story: %v", models.ErrDatabase, err)
	}
	r.logger.Info("Story created", append(logFields, zap.Int("targetChapters", story.TargetChapters))...)
	return nil
}

func (r *pgStoryRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Story, error) {
	var row storyRow
	if err := pgxscan.Get(ctx, r.db, &row, getStoryByIDQuery, id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrStoryNotFound
		}
		r.logger.Error("Failed to get story by ID", zap.String("storyID", id.String()), zap.Error(err))
		return nil, fmt.Errorf("%w: get story %s: %v", models.ErrDatabase, id, err)
	}
	story := normalizeStoryRow(row, r.logger)
	return &story, nil
}

func (r *pgStoryRepository) ListByUser(ctx context.Context, userID string, filter models.StoryFilter) (models.StoryPage, error) {
	where := []string{"s.user_id = $1"}
	args := []any{userID}
	switch filter.Status {
	case models.StoryStatusCompleted:
		where = append(where, "s.is_completed = TRUE")
	case models.StoryStatusInProgress:
		where = append(where, "s.is_completed = FALSE")
	}
	if g := strings.TrimSpace(filter.Genre); g != "" {
		args = append(args, strings.ToLower(g))
		where = append(where, fmt.Sprintf("LOWER(COALESCE(NULLIF(s.genre, ''), s.mode)) = $%d", len(args)))
	}
	whereSQL := strings.Join(where, " AND ")

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM stories s WHERE "+whereSQL, args...).Scan(&total); err != nil {
		r.logger.Error("Failed to count stories", zap.String("userID", userID), zap.Error(err))
		return models.StoryPage{}, fmt.Errorf("%w: count stories: %v", models.ErrDatabase, err)
	}

	args = append(args, filter.Limit, filter.Offset)
	query := fmt.Sprintf(`SELECT %s FROM stories s WHERE %s ORDER BY s.created_at DESC, s.id LIMIT $%d OFFSET $%d`,
		storyColumns, whereSQL, len(args)-1, len(args))

	var rows []storyRow
	if err := pgxscan.Select(ctx, r.db, &rows, query, args...); err != nil {
		r.logger.Error("Failed to list stories", zap.String("userID", userID), zap.Error(err))
		return models.StoryPage{}, fmt.Errorf("%w: list stories: %v", models.ErrDatabase, err)
	}

	page := models.StoryPage{Stories: make([]models.Story, 0, len(rows)), Total: total}
	ids := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		page.Stories = append(page.Stories, normalizeStoryRow(row, r.logger))
		ids = append(ids, row.ID)
	}

	if filter.IncludeSegments && len(ids) > 0 {
		segments, err := selectSegments(ctx, r.db, listSegmentsByStoriesQuery, ids)
		if err != nil {
			r.logger.Error("Failed to load segments for story list", zap.String("userID", userID), zap.Error(err))
			return models.StoryPage{}, fmt.Errorf("%w: list segments: %v", models.ErrDatabase, err)
		}
		byStory := make(map[uuid.UUID][]models.Segment, len(ids))
		for _, seg := range segments {
			byStory[seg.StoryID] = append(byStory[seg.StoryID], seg)
		}
		for i := range page.Stories {
			page.Stories[i].Segments = byStory[page.Stories[i].ID]
		}
	}
	return page, nil
}

// normalizeStoryRow приводит поля старых записей к публичному виду.
func normalizeStoryRow(row storyRow, logger *zap.Logger) models.Story {
	story := row.Story
	story.Genre = models.NormalizeGenre(story.Genre, story.Mode)

	ageGroup, ok := models.NormalizeAgeGroup(string(story.AgeGroup), story.TargetAge)
	if !ok {
		logger.Warn("Unrecognized stored age group, using default",
			zap.String("storyID", story.ID.String()),
			zap.String("stored", string(story.AgeGroup)),
			zap.String("default", string(ageGroup)))
	}
	story.AgeGroup = ageGroup
	if story.Characters == nil {
		story.Characters = []models.StoryCharacter{}
	}

	story.ImageStatus = models.AggregateAssetStatus(toAssetStatuses(row.ImageStatuses))
	story.AudioStatus = models.AggregateAssetStatus(toAssetStatuses(row.AudioStatuses))
	return story
}

func toAssetStatuses(in []string) []models.AssetStatus {
	out := make([]models.AssetStatus, len(in))
	for i, s := range in {
		out[i] = models.AssetStatus(s)
	}
	return out
}

func nonNilCharacters(c []models.StoryCharacter) []models.StoryCharacter {
	if c == nil {
		return []models.StoryCharacter{}
	}
	return c
}
