package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// AssetKind - тип асинхронного ассета сегмента.
type AssetKind string

const (
	AssetKindImage AssetKind = "image"
	AssetKindAudio AssetKind = "audio"
)

// AssetStatus - статус генерации ассета.
type AssetStatus string

const (
	AssetStatusNotStarted AssetStatus = "not_started"
	AssetStatusInProgress AssetStatus = "in_progress"
	AssetStatusCompleted  AssetStatus = "completed"
	AssetStatusFailed     AssetStatus = "failed"
)

// IsTerminal - completed и failed больше не меняются без нового явного запроса.
func (s AssetStatus) IsTerminal() bool {
	return s == AssetStatusCompleted || s == AssetStatusFailed
}

// CanTransitionTo проверяет переход статуса.
// explicit=true означает новый явный запрос пользователя: только он может перезапустить failed.
func (s AssetStatus) CanTransitionTo(next AssetStatus, explicit bool) bool {
	switch s {
	case AssetStatusNotStarted, "":
		return next == AssetStatusInProgress
	case AssetStatusInProgress:
		return next == AssetStatusCompleted || next == AssetStatusFailed
	case AssetStatusFailed:
		return explicit && next == AssetStatusInProgress
	default:
		return false
	}
}

// AllowedSources возвращает статусы, из которых допустим переход в next.
func AllowedSources(next AssetStatus, explicit bool) []AssetStatus {
	var out []AssetStatus
	for _, s := range []AssetStatus{AssetStatusNotStarted, AssetStatusInProgress, AssetStatusCompleted, AssetStatusFailed} {
		if s.CanTransitionTo(next, explicit) {
			out = append(out, s)
		}
	}
	return out
}

// AggregateAssetStatus сворачивает статусы сегментов в статус истории.
func AggregateAssetStatus(statuses []AssetStatus) AssetStatus {
	if len(statuses) == 0 {
		return AssetStatusNotStarted
	}
	var started, completed, failed int
	for _, s := range statuses {
		switch s {
		case AssetStatusInProgress:
			return AssetStatusInProgress
		case AssetStatusCompleted:
			started++
			completed++
		case AssetStatusFailed:
			started++
			failed++
		}
	}
	switch {
	case started == 0:
		return AssetStatusNotStarted
	case failed > 0:
		return AssetStatusFailed
	case completed == len(statuses):
		return AssetStatusCompleted
	default:
		return AssetStatusInProgress
	}
}

// Choice - вариант продолжения. NextSegmentID заполняется, когда сегмент по нему сгенерирован.
type Choice struct {
	ID            string     `json:"id"`
	Text          string     `json:"text"`
	NextSegmentID *uuid.UUID `json:"next_segment_id,omitempty"`
	IsTerminal    bool       `json:"is_terminal,omitempty"`
}

// Segment - узел повествования.
type Segment struct {
	ID              uuid.UUID   `db:"id" json:"id"`
	StoryID         uuid.UUID   `db:"story_id" json:"story_id"`
	Position        int         `db:"position" json:"position"`
	Content         string      `db:"content" json:"content"`
	WordCount       int         `db:"word_count" json:"word_count"`
	Choices         []Choice    `db:"choices" json:"choices"`
	IsEnd           bool        `db:"is_end" json:"is_end"`
	ParentSegmentID *uuid.UUID  `db:"parent_segment_id" json:"parent_segment_id,omitempty"`
	ImagePrompt     *string     `db:"image_prompt" json:"image_prompt,omitempty"`
	ImageURL        *string     `db:"image_url" json:"image_url"`
	ImageStatus     AssetStatus `db:"image_status" json:"image_status"`
	ImageError      *string     `db:"image_error" json:"image_error,omitempty"`
	AudioURL        *string     `db:"audio_url" json:"audio_url"`
	AudioStatus     AssetStatus `db:"audio_status" json:"audio_status"`
	AudioError      *string     `db:"audio_error" json:"audio_error,omitempty"`
	CreatedAt       time.Time   `db:"created_at" json:"created_at"`
}

// AssetStatus возвращает статус ассета заданного типа.
func (s *Segment) AssetStatus(kind AssetKind) AssetStatus {
	if kind == AssetKindAudio {
		return s.AudioStatus
	}
	return s.ImageStatus
}

// SegmentDraft - нормализованный результат генерации текста до сохранения.
type SegmentDraft struct {
	Content     string
	Choices     []string
	IsEnd       bool
	ImagePrompt string

	// Индекс выбора в родительском сегменте, по которому написан этот сегмент.
	ChoiceIndex *int
	// Сколько глав всего в истории; последняя глава всегда концовка.
	TargetChapters int
}

// Finalize собирает Segment для указанной позиции.
// На последней позиции сегмент принудительно становится концовкой без выборов.
func (d SegmentDraft) Finalize(storyID uuid.UUID, position int, parentID *uuid.UUID) Segment {
	seg := Segment{
		ID:              uuid.New(),
		StoryID:         storyID,
		Position:        position,
		Content:         strings.TrimSpace(d.Content),
		ParentSegmentID: parentID,
		ImageStatus:     AssetStatusNotStarted,
		AudioStatus:     AssetStatusNotStarted,
		CreatedAt:       time.Now().UTC(),
	}
	seg.WordCount = CountWords(seg.Content)

	// При известном числе глав концовка определяется только позицией.
	isEnd := d.IsEnd
	if d.TargetChapters > 0 {
		isEnd = position >= d.TargetChapters
	}
	seg.IsEnd = isEnd
	seg.Choices = []Choice{}
	if !isEnd {
		for i, text := range d.Choices {
			seg.Choices = append(seg.Choices, Choice{
				ID:   choiceID(seg.ID, i),
				Text: strings.TrimSpace(text),
			})
		}
	}
	if p := strings.TrimSpace(d.ImagePrompt); p != "" {
		seg.ImagePrompt = &p
	}
	return seg
}

func choiceID(segmentID uuid.UUID, idx int) string {
	return uuid.NewSHA1(segmentID, []byte{byte(idx)}).String()
}

// CountWords считает слова, разделенные пробельными символами.
func CountWords(text string) int {
	return len(strings.Fields(text))
}
