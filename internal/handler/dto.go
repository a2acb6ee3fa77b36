package handler

import (
	"encoding/json"
	"strings"

	"storybook-server/internal/rollout"
	"storybook-server/shared/models"
)

// characterList принимает персонажей и объектами, и просто строками с именем.
type characterList []models.StoryCharacter

func (l *characterList) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(characterList, 0, len(raw))
	for _, item := range raw {
		var name string
		if err := json.Unmarshal(item, &name); err == nil {
			out = append(out, models.StoryCharacter{Name: name})
			continue
		}
		var c models.StoryCharacter
		if err := json.Unmarshal(item, &c); err != nil {
			return err
		}
		out = append(out, c)
	}
	*l = out
	return nil
}

// CreateStoryRequest - тело POST /create-story.
type CreateStoryRequest struct {
	Title           string        `json:"title"`
	Description     string        `json:"description"`
	Genre           string        `json:"genre"`
	AgeGroup        string        `json:"age_group"`
	Theme           string        `json:"theme"`
	Setting         string        `json:"setting"`
	Characters      characterList `json:"characters"`
	Conflict        string        `json:"conflict"`
	Quest           string        `json:"quest"`
	MoralLesson     string        `json:"moral_lesson"`
	WordsPerChapter int           `json:"words_per_chapter"`
	Length          string        `json:"length"`
	IncludeImages   bool          `json:"include_images"`
	IncludeAudio    bool          `json:"include_audio"`
	ArtStyle        string        `json:"art_style"`
	IsPublic        bool          `json:"is_public"`
}

func (r CreateStoryRequest) toParams() (models.StoryParams, error) {
	length, ok := models.ParseStoryLength(r.Length)
	if !ok {
		return models.StoryParams{}, models.ValidationError("length", false)
	}
	return models.StoryParams{
		Title:           r.Title,
		Description:     r.Description,
		Genre:           r.Genre,
		AgeGroup:        models.AgeGroup(strings.TrimSpace(r.AgeGroup)),
		Theme:           r.Theme,
		Setting:         r.Setting,
		Characters:      []models.StoryCharacter(r.Characters),
		Conflict:        r.Conflict,
		Quest:           r.Quest,
		MoralLesson:     r.MoralLesson,
		WordsPerChapter: r.WordsPerChapter,
		Length:          length,
		IncludeImages:   r.IncludeImages,
		IncludeAudio:    r.IncludeAudio,
		ArtStyle:        r.ArtStyle,
		IsPublic:        r.IsPublic,
	}, nil
}

// CreateStoryResponse - созданная история, первая глава и списанная стоимость.
type CreateStoryResponse struct {
	Story    *models.Story    `json:"story"`
	Segment  *models.Segment  `json:"segment"`
	Cost     models.CostQuote `json:"cost"`
	Provider string           `json:"provider"`
	Version  string           `json:"version"`
}

// StoryIDRequest - тело с идентификатором истории.
type StoryIDRequest struct {
	StoryID string `json:"storyId"`
}

// GenerateSegmentRequest - тело POST /generate-story-segment.
type GenerateSegmentRequest struct {
	StoryID     string `json:"storyId"`
	ChoiceIndex *int   `json:"choiceIndex"`
}

// GenerateSegmentResponse - новая глава с image_prompt для опроса готовности иллюстрации.
type GenerateSegmentResponse struct {
	Segment  *models.Segment `json:"segment"`
	Story    *models.Story   `json:"story"`
	Provider string          `json:"provider"`
	Version  string          `json:"version"`
}

// ListStoriesResponse - страница историй.
type ListStoriesResponse struct {
	Stories []models.Story `json:"stories"`
	models.PageInfo
}

// AssetRequest - необязательное тело POST /segments/:id/audio.
type AssetRequest struct {
	Voice     string `json:"voice"`
	StoryType string `json:"storyType"`
}

// TTSRequest - тело POST /generate-tts-audio.
type TTSRequest struct {
	Text      string `json:"text"`
	StoryType string `json:"storyType"`
	Voice     string `json:"voice"`
	Character string `json:"characterVoice"`
	Emotion   string `json:"emotion"`
}

// TTSResponse - аудио в base64 и метаданные.
type TTSResponse struct {
	Audio        string `json:"audio"`
	ContentType  string `json:"contentType"`
	Format       string `json:"format"`
	Voice        string `json:"voice"`
	VoiceMatched bool   `json:"voiceMatched"`
	Provider     string `json:"provider,omitempty"`
	Version      string `json:"version,omitempty"`
	Cached       bool   `json:"cached"`
}

// VoiceSettings - параметры, с которыми клиенту стоит озвучить текст на устройстве.
type VoiceSettings struct {
	Voice string  `json:"voice"`
	Rate  string  `json:"rate"`
	Pitch string  `json:"pitch"`
	Speed float64 `json:"speed"`
}

// TTSFallbackResponse - инструкция озвучить текст средствами устройства.
type TTSFallbackResponse struct {
	Fallback      bool          `json:"fallback"`
	UseDeviceTTS  bool          `json:"useDeviceTTS"`
	Reason        string        `json:"reason"`
	Text          string        `json:"text"`
	StoryType     string        `json:"storyType,omitempty"`
	Emotion       string        `json:"emotion,omitempty"`
	VoiceSettings VoiceSettings `json:"voiceSettings"`
}

// QuoteRequest - тело POST /credits/quote.
type QuoteRequest struct {
	StoryType     string `json:"storyType"`
	IncludeImages bool   `json:"includeImages"`
	IncludeAudio  bool   `json:"includeAudio"`
}

// TransactionsResponse - страница журнала кредитов.
type TransactionsResponse struct {
	Transactions []models.CreditTransaction `json:"transactions"`
	models.PageInfo
}

// GrantRequest - тело POST /admin/credits/grant.
type GrantRequest struct {
	UserID    string `json:"userId"`
	Amount    int64  `json:"amount"`
	Reason    string `json:"reason"`
	Reference string `json:"reference"`
}

// RolloutRequest - тело POST /admin/migration/:kind/rollout.
type RolloutRequest struct {
	Action string `json:"action"`
	Step   int    `json:"step"`
}

// PresetRequest - тело POST /admin/migration/:kind/preset.
type PresetRequest struct {
	Name string `json:"name"`
}

// MigrationStatusResponse - текущее состояние контроллера миграции.
type MigrationStatusResponse struct {
	Kind    string         `json:"kind"`
	Config  rollout.Config `json:"config"`
	Presets []string       `json:"presets"`
}
