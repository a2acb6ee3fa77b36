package ai

import (
	"fmt"
	"strings"

	"storybook-server/shared/models"
	"storybook-server/shared/utils"
)

// MaxImagePromptLength - предел длины промпта иллюстрации в символах.
const MaxImagePromptLength = 300

// StoryRequest - вход генерации очередной главы.
type StoryRequest struct {
	Story *models.Story
	// History - уже сохраненные сегменты по возрастанию позиции. Пусто для первой главы.
	History []models.Segment
	// ChoiceText - выбор читателя, который привел к новой главе.
	ChoiceText string
	Position   int
}

// Final сообщает, что запрошенная глава последняя.
func (r StoryRequest) Final() bool {
	return r.Story != nil && r.Story.TargetChapters > 0 && r.Position >= r.Story.TargetChapters
}

var ageGuidance = map[models.AgeGroup]string{
	models.AgeGroup4to6:   "Use very short sentences and simple everyday words. Keep everything gentle and reassuring.",
	models.AgeGroup7to9:   "Use clear sentences with a few new words explained by context. Mild suspense is fine.",
	models.AgeGroup10to12: "Use richer vocabulary and more complex plot turns, but keep the tone age-appropriate.",
}

// BuildSystemPrompt описывает модели правила и формат ответа.
func BuildSystemPrompt(story *models.Story) string {
	var b strings.Builder
	b.WriteString("You are a children's book author writing an interactive, branching illustrated story.\n")
	fmt.Fprintf(&b, "Reader age group: %s. %s\n", story.AgeGroup, ageGuidance[story.AgeGroup])
	fmt.Fprintf(&b, "Write about %d words per chapter.\n", story.WordsPerChapter)
	b.WriteString("Never include violence, fear-inducing scenes or unsafe behavior.\n")
	b.WriteString("Respond ONLY with a JSON object of the form ")
	b.WriteString(`{"content": "chapter text", "choices": ["choice A", "choice B"], "is_end": false, "image_prompt": "short visual description"}`)
	b.WriteString(".\nGive 2 or 3 concrete choices that name what the characters do next. ")
	b.WriteString(`Never use generic choices such as "Continue the story" or "What happens next?".`)
	b.WriteString("\nThe image_prompt must describe one scene in under 40 words without character dialogue.")
	return b.String()
}

func storyBrief(story *models.Story) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Title: %s\n", story.Title)
	if story.Description != "" {
		fmt.Fprintf(&b, "Premise: %s\n", story.Description)
	}
	fmt.Fprintf(&b, "Genre: %s\n", story.Genre)
	for _, f := range []struct{ label, value string }{
		{"Theme", story.Theme},
		{"Setting", story.Setting},
		{"Conflict", story.Conflict},
		{"Quest", story.Quest},
		{"Moral lesson", story.MoralLesson},
		{"Art style", story.ArtStyle},
	} {
		if f.value != "" {
			fmt.Fprintf(&b, "%s: %s\n", f.label, f.value)
		}
	}
	if len(story.Characters) > 0 {
		b.WriteString("Characters:\n")
		for _, c := range story.Characters {
			line := "- " + c.Name
			if c.Role != "" {
				line += " (" + c.Role + ")"
			}
			if c.Description != "" {
				line += ": " + c.Description
			}
			b.WriteString(line + "\n")
		}
	}
	return b.String()
}

// BuildUserPrompt собирает бриф истории, последние главы в пределах бюджета токенов и выбор читателя.
// Главы добавляются от последней к первой, пока влезают в maxTokens.
func BuildUserPrompt(req StoryRequest, counter *TokenCounter, maxTokens int) string {
	story := req.Story
	brief := storyBrief(story)

	var instruction string
	switch {
	case len(req.History) == 0:
		instruction = fmt.Sprintf("Write chapter 1 of %d. Introduce the characters and the setting.", story.TargetChapters)
	case req.Final():
		instruction = fmt.Sprintf("Write chapter %d, the final chapter. Resolve the quest, show the moral lesson and set is_end to true with no choices.", req.Position)
	default:
		instruction = fmt.Sprintf("Write chapter %d of %d, continuing from the reader's choice.", req.Position, story.TargetChapters)
	}
	if req.ChoiceText != "" {
		instruction += fmt.Sprintf("\nThe reader chose: %q.", req.ChoiceText)
	}

	budget := maxTokens - counter.Count(brief) - counter.Count(instruction)
	var chapters []string
	for i := len(req.History) - 1; i >= 0; i-- {
		seg := req.History[i]
		text := fmt.Sprintf("Chapter %d:\n%s", seg.Position, seg.Content)
		cost := counter.Count(text)
		if cost > budget {
			if len(chapters) == 0 {
				// Последняя глава нужна всегда, хотя бы сокращенной.
				chapters = append(chapters, fmt.Sprintf("Chapter %d (summary):\n%s", seg.Position, utils.FirstSentences(seg.Content, 3)))
			}
			break
		}
		budget -= cost
		chapters = append(chapters, text)
	}

	var b strings.Builder
	b.WriteString(brief)
	if len(chapters) > 0 {
		b.WriteString("\nStory so far:\n")
		for i := len(chapters) - 1; i >= 0; i-- {
			b.WriteString(chapters[i])
			b.WriteString("\n\n")
		}
	}
	b.WriteString("\n")
	b.WriteString(instruction)
	return b.String()
}

// CompactImagePrompt возвращает короткий промпт иллюстрации: предложенный моделью
// или первые предложения текста главы.
func CompactImagePrompt(suggested, content string) string {
	prompt := strings.TrimSpace(suggested)
	if prompt == "" {
		prompt = utils.FirstSentences(content, 2)
	}
	return utils.StringShort(prompt, MaxImagePromptLength)
}
