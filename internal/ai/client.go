package ai

import (
	"context"
	"errors"
	"fmt"

	"storybook-server/shared/models"
)

// ErrGenerationFailed - провайдер не вернул пригодный ответ.
var ErrGenerationFailed = fmt.Errorf("%w: text generation failed", models.ErrAIProvider)

// ErrEmptyPrompt - системный промпт пуст, запрос не отправляется.
var ErrEmptyPrompt = errors.New("system prompt is empty")

// GenerationParams - параметры генерации. Указатели отличают ноль от отсутствия.
type GenerationParams struct {
	Temperature *float64
	MaxTokens   *int
	JSONMode    bool
}

// UsageInfo - потребление токенов одного запроса.
type UsageInfo struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// TextClient - чат-провайдер текста.
type TextClient interface {
	// Name возвращает метку провайдера для логов и метрик.
	Name() string
	// Complete отправляет системный промпт и ввод пользователя, возвращает сырой текст ответа.
	Complete(ctx context.Context, userID, systemPrompt, userInput string, params GenerationParams) (string, UsageInfo, error)
}

func float32Val(f *float64) float32 {
	if f == nil {
		return 0
	}
	return float32(*f)
}

func intVal(i *int) int {
	if i == nil {
		return 0
	}
	return *i
}
