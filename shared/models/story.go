package models

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AgeGroup - каноническая возрастная группа читателя.
type AgeGroup string

const (
	AgeGroup4to6   AgeGroup = "4-6"
	AgeGroup7to9   AgeGroup = "7-9"
	AgeGroup10to12 AgeGroup = "10-12"

	DefaultAgeGroup = AgeGroup7to9
)

// StoryLength - тариф длины истории, определяет число глав и стоимость.
type StoryLength string

const (
	StoryLengthShort  StoryLength = "short"
	StoryLengthMedium StoryLength = "medium"
	StoryLengthLong   StoryLength = "long"
)

// StoryStatusFilter - фильтр списка историй по завершенности.
type StoryStatusFilter string

const (
	StoryStatusAny        StoryStatusFilter = ""
	StoryStatusCompleted  StoryStatusFilter = "completed"
	StoryStatusInProgress StoryStatusFilter = "in_progress"
)

// StoryCharacter - персонаж, переданный автором истории.
type StoryCharacter struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Role        string `json:"role,omitempty"`
}

// Story - история пользователя с упорядоченными сегментами.
type Story struct {
	ID              uuid.UUID        `db:"id" json:"id"`
	UserID          string           `db:"user_id" json:"user_id"`
	Title           string           `db:"title" json:"title"`
	Description     string           `db:"description" json:"description"`
	Genre           string           `db:"genre" json:"genre"`
	Mode            string           `db:"mode" json:"-"`
	AgeGroup        AgeGroup         `db:"age_group" json:"age_group"`
	TargetAge       *int             `db:"target_age" json:"-"`
	Theme           string           `db:"theme" json:"theme,omitempty"`
	Setting         string           `db:"setting" json:"setting,omitempty"`
	Characters      []StoryCharacter `db:"characters" json:"characters"`
	Conflict        string           `db:"conflict" json:"conflict,omitempty"`
	Quest           string           `db:"quest" json:"quest,omitempty"`
	MoralLesson     string           `db:"moral_lesson" json:"moral_lesson,omitempty"`
	WordsPerChapter int              `db:"words_per_chapter" json:"words_per_chapter"`
	Length          StoryLength      `db:"length" json:"length"`
	TargetChapters  int              `db:"target_chapters" json:"target_chapters"`
	IncludeImages   bool             `db:"include_images" json:"include_images"`
	IncludeAudio    bool             `db:"include_audio" json:"include_audio"`
	ArtStyle        string           `db:"art_style" json:"art_style,omitempty"`
	IsPublic        bool             `db:"is_public" json:"is_public"`
	IsCompleted     bool             `db:"is_completed" json:"is_completed"`
	SegmentCount    int              `db:"segment_count" json:"segment_count"`
	CreatedAt       time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time        `db:"updated_at" json:"updated_at"`

	// Агрегируются по сегментам при чтении.
	ImageStatus AssetStatus `db:"-" json:"image_status"`
	AudioStatus AssetStatus `db:"-" json:"audio_status"`

	Segments []Segment `db:"-" json:"segments,omitempty"`
}

// StoryParams - входные данные для создания истории.
type StoryParams struct {
	Title           string
	Description     string
	Genre           string
	AgeGroup        AgeGroup
	Theme           string
	Setting         string
	Characters      []StoryCharacter
	Conflict        string
	Quest           string
	MoralLesson     string
	WordsPerChapter int
	Length          StoryLength
	IncludeImages   bool
	IncludeAudio    bool
	ArtStyle        string
	IsPublic        bool
}

// StoryFilter - параметры выборки списка историй.
type StoryFilter struct {
	Status          StoryStatusFilter
	Genre           string
	IncludeSegments bool
	Limit           int
	Offset          int
}

// StoryPage - страница списка историй.
type StoryPage struct {
	Stories []Story
	Total   int
}

// NormalizeGenre возвращает публичную метку жанра. Старые записи хранили её в mode.
func NormalizeGenre(genre, mode string) string {
	g := strings.TrimSpace(genre)
	if g == "" {
		g = strings.TrimSpace(mode)
	}
	if g == "" {
		return "adventure"
	}
	return strings.ToLower(g)
}

var ageNumberRe = regexp.MustCompile(`\d+`)

// NormalizeAgeGroup приводит сохраненную строку возраста к каноническому набору.
// Второй результат false означает, что строку распознать не удалось и применен дефолт.
func NormalizeAgeGroup(stored string, targetAge *int) (AgeGroup, bool) {
	s := strings.ToLower(strings.TrimSpace(stored))
	switch AgeGroup(s) {
	case AgeGroup4to6, AgeGroup7to9, AgeGroup10to12:
		return AgeGroup(s), true
	}

	if m := ageNumberRe.FindString(s); m != "" {
		if n, err := strconv.Atoi(m); err == nil {
			if g, ok := ageGroupForAge(n); ok {
				return g, true
			}
		}
	}

	switch {
	case strings.Contains(s, "toddler"), strings.Contains(s, "preschool"), strings.Contains(s, "little"):
		return AgeGroup4to6, true
	case strings.Contains(s, "early reader"), strings.Contains(s, "kids"):
		return AgeGroup7to9, true
	case strings.Contains(s, "tween"), strings.Contains(s, "preteen"), strings.Contains(s, "middle grade"):
		return AgeGroup10to12, true
	}

	if targetAge != nil {
		if g, ok := ageGroupForAge(*targetAge); ok {
			return g, true
		}
	}
	return DefaultAgeGroup, false
}

func ageGroupForAge(age int) (AgeGroup, bool) {
	switch {
	case age >= 3 && age <= 6:
		return AgeGroup4to6, true
	case age >= 7 && age <= 9:
		return AgeGroup7to9, true
	case age >= 10 && age <= 13:
		return AgeGroup10to12, true
	}
	return "", false
}

// ParseStoryLength разбирает тариф длины; пустое значение означает medium.
func ParseStoryLength(s string) (StoryLength, bool) {
	switch StoryLength(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return StoryLengthMedium, true
	case StoryLengthShort:
		return StoryLengthShort, true
	case StoryLengthMedium:
		return StoryLengthMedium, true
	case StoryLengthLong:
		return StoryLengthLong, true
	}
	return "", false
}
