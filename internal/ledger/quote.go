package ledger

import "storybook-server/shared/models"

// Число глав по тарифам длины.
const (
	ChaptersShort  = 5
	ChaptersMedium = 10
	ChaptersLong   = 15
)

// Цены в кредитах за одну главу.
const (
	CreditsPerChapterText  int64 = 1
	CreditsPerChapterImage int64 = 1
	CreditsPerChapterAudio int64 = 1
)

// ChaptersFor возвращает число глав для тарифа; неизвестный тариф считается medium.
func ChaptersFor(length models.StoryLength) int {
	switch length {
	case models.StoryLengthShort:
		return ChaptersShort
	case models.StoryLengthLong:
		return ChaptersLong
	default:
		return ChaptersMedium
	}
}

// Quote считает стоимость истории. Одна и та же функция используется для
// предварительной оценки и для списания при создании.
func Quote(length models.StoryLength, includeImages, includeAudio bool) models.CostQuote {
	if length == "" {
		length = models.StoryLengthMedium
	}
	chapters := int64(ChaptersFor(length))

	storyCost := chapters * CreditsPerChapterText
	if includeImages {
		storyCost += chapters * CreditsPerChapterImage
	}
	var audioCost int64
	if includeAudio {
		audioCost = chapters * CreditsPerChapterAudio
	}

	return models.CostQuote{
		StoryType:     length,
		Chapters:      int(chapters),
		IncludeImages: includeImages,
		IncludeAudio:  includeAudio,
		StoryCost:     storyCost,
		AudioCost:     audioCost,
		TotalCost:     storyCost + audioCost,
	}
}
