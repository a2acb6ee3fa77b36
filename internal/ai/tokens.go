package ai

import (
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"
)

// TokenCounter считает токены для бюджета контекста.
// Если словарь BPE недоступен, используется оценка ~4 символа на токен.
type TokenCounter struct {
	enc *tiktoken.Tiktoken
}

// NewTokenCounter загружает кодировку модели, при неизвестной модели - cl100k_base.
func NewTokenCounter(model string, log *zap.Logger) *TokenCounter {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
	}
	if err != nil {
		log.Warn("Tokenizer unavailable, falling back to character estimate", zap.String("model", model), zap.Error(err))
		return &TokenCounter{}
	}
	return &TokenCounter{enc: enc}
}

// Count возвращает число токенов в тексте.
func (t *TokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	if t != nil && t.enc != nil {
		return len(t.enc.Encode(text, nil, nil))
	}
	n := utf8.RuneCountInString(text) / 4
	if n == 0 {
		n = 1
	}
	return n
}
