package messaging

import (
	"storybook-server/shared/models"
)

// Имена очередей и exchange для задач ассетов.
const (
	AssetTaskQueueName   = "story_asset_tasks"
	AssetTaskDLXName     = "story_asset_tasks_dlx"
	AssetTaskDLQName     = "story_asset_tasks_dlq"
	AssetTaskDLQRouteKey = "dlq"
)

// AssetTaskPayload - задача на генерацию изображения или озвучки сегмента.
type AssetTaskPayload struct {
	TaskID    string           `json:"taskId"`
	Kind      models.AssetKind `json:"kind"`
	StoryID   string           `json:"storyId"`
	SegmentID string           `json:"segmentId"`
	UserID    string           `json:"userId"`

	// image
	Prompt   string `json:"prompt,omitempty"`
	ArtStyle string `json:"artStyle,omitempty"`

	// audio
	Text      string `json:"text,omitempty"`
	Voice     string `json:"voice,omitempty"`
	StoryType string `json:"storyType,omitempty"`
	Language  string `json:"language,omitempty"`
}
