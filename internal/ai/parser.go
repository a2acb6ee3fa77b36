package ai

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"storybook-server/shared/models"
	"storybook-server/shared/utils"
)

const segmentSchemaURL = "segment.json"

const segmentSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["content"],
  "properties": {
    "content": {"type": "string", "minLength": 1},
    "choices": {
      "type": "array",
      "maxItems": 4,
      "items": {
        "anyOf": [
          {"type": "string"},
          {"type": "object", "required": ["text"], "properties": {"text": {"type": "string"}}}
        ]
      }
    },
    "is_end": {"type": "boolean"},
    "image_prompt": {"type": "string"}
  }
}`

// fillerPhrases - тексты, которыми модели подменяют настоящие варианты при сбое.
var fillerPhrases = []string{
	"continue the story",
	"continue the adventure",
	"continue reading",
	"what happens next?",
	"what happens next",
	"next chapter",
	"choice 1",
	"choice 2",
	"choice 3",
	"option 1",
	"option 2",
	"option 3",
}

var compiledSegmentSchema = mustCompileSegmentSchema()

func mustCompileSegmentSchema() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(segmentSchemaURL, strings.NewReader(segmentSchema)); err != nil {
		panic(fmt.Sprintf("add segment schema: %v", err))
	}
	return compiler.MustCompile(segmentSchemaURL)
}

// InvalidResponseError - ответ провайдера не прошел проверку.
type InvalidResponseError struct {
	Reason string
	Detail string
}

func (e *InvalidResponseError) Error() string {
	if e.Detail == "" {
		return "invalid AI response: " + e.Reason
	}
	return fmt.Sprintf("invalid AI response: %s: %s", e.Reason, e.Detail)
}

func (e *InvalidResponseError) Unwrap() error { return models.ErrAIProvider }

type rawChoice struct {
	Text string `json:"text"`
}

type rawSegment struct {
	Content     string            `json:"content"`
	Choices     []json.RawMessage `json:"choices"`
	IsEnd       bool              `json:"is_end"`
	ImagePrompt string            `json:"image_prompt"`
}

// ParseSegment превращает сырой ответ модели в черновик сегмента.
// final=true означает последнюю главу: варианты выбора не нужны.
// Концовку определяет только final, поле is_end модели игнорируется.
func ParseSegment(raw string, final bool) (models.SegmentDraft, error) {
	var draft models.SegmentDraft

	body := utils.ExtractJSONObject(raw)
	if body == "" {
		return draft, &InvalidResponseError{Reason: "no_json", Detail: utils.StringShort(raw, 120)}
	}

	var doc any
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return draft, &InvalidResponseError{Reason: "malformed_json", Detail: err.Error()}
	}
	if err := compiledSegmentSchema.Validate(doc); err != nil {
		return draft, &InvalidResponseError{Reason: "schema", Detail: err.Error()}
	}

	var seg rawSegment
	if err := json.Unmarshal([]byte(body), &seg); err != nil {
		return draft, &InvalidResponseError{Reason: "malformed_json", Detail: err.Error()}
	}

	content := strings.TrimSpace(seg.Content)
	if isPlaceholder(content) {
		return draft, &InvalidResponseError{Reason: "placeholder_content", Detail: utils.StringShort(content, 80)}
	}

	isEnd := final
	choices := make([]string, 0, len(seg.Choices))
	if !isEnd {
		for _, rc := range seg.Choices {
			text := choiceText(rc)
			if text == "" {
				return draft, &InvalidResponseError{Reason: "empty_choice"}
			}
			if IsFillerChoice(text) {
				return draft, &InvalidResponseError{Reason: "filler_choice", Detail: text}
			}
			choices = append(choices, text)
		}
		if len(choices) == 0 {
			return draft, &InvalidResponseError{Reason: "missing_choices"}
		}
	}

	draft = models.SegmentDraft{
		Content:     content,
		Choices:     choices,
		IsEnd:       isEnd,
		ImagePrompt: CompactImagePrompt(seg.ImagePrompt, content),
	}
	return draft, nil
}

func choiceText(rc json.RawMessage) string {
	var s string
	if err := json.Unmarshal(rc, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var c rawChoice
	if err := json.Unmarshal(rc, &c); err == nil {
		return strings.TrimSpace(c.Text)
	}
	return ""
}

// IsFillerChoice сообщает, что текст выбора является заглушкой модели.
func IsFillerChoice(text string) bool {
	normalized := strings.ToLower(strings.TrimSpace(text))
	normalized = strings.TrimRight(normalized, ".!")
	for _, f := range fillerPhrases {
		if normalized == strings.TrimRight(f, ".!") {
			return true
		}
	}
	return false
}

func isPlaceholder(content string) bool {
	if len(strings.Fields(content)) < 5 {
		return true
	}
	lower := strings.ToLower(content)
	return strings.HasPrefix(lower, "lorem ipsum") || IsFillerChoice(content)
}
