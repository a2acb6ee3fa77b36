package utils

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	fencedJSONRe = regexp.MustCompile("(?s)```(?:json)?\\s*([\\s\\S]*?)\\s*```")
	sentenceRe   = regexp.MustCompile(`[^.!?]+[.!?]+`)
)

// ExtractJSONObject достает JSON-объект из ответа модели:
// сначала из блока ```json```, затем между первой { и последней }.
// Пустая строка означает, что объекта нет.
func ExtractJSONObject(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if json.Valid([]byte(raw)) {
		return raw
	}

	if m := fencedJSONRe.FindStringSubmatch(raw); len(m) > 1 {
		if candidate := repairJSON(m[1]); candidate != "" {
			return candidate
		}
	}

	start := strings.Index(raw, "{")
	if start == -1 {
		return ""
	}
	end := strings.LastIndex(raw, "}")
	candidate := raw[start:]
	if end > start {
		candidate = raw[start : end+1]
	}
	return repairJSON(candidate)
}

// repairJSON дописывает недостающие закрывающие скобки, если модель оборвала ответ.
func repairJSON(s string) string {
	s = strings.TrimSpace(s)
	if json.Valid([]byte(s)) {
		return s
	}

	var stack []rune
	inString, escape := false, false
	for _, r := range s {
		if escape {
			escape = false
			continue
		}
		switch {
		case r == '\\' && inString:
			escape = true
		case r == '"':
			inString = !inString
		case inString:
		case r == '{':
			stack = append(stack, '}')
		case r == '[':
			stack = append(stack, ']')
		case r == '}' || r == ']':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}

	var b strings.Builder
	b.WriteString(s)
	if inString {
		b.WriteByte('"')
	}
	for i := len(stack) - 1; i >= 0; i-- {
		b.WriteRune(stack[i])
	}
	if repaired := b.String(); json.Valid([]byte(repaired)) {
		return repaired
	}
	return ""
}

// StringShort обрезает строку до maxLen рун, добавляя многоточие.
func StringShort(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return "..."
	}
	return string(r[:maxLen-3]) + "..."
}

// FirstSentences возвращает первые n предложений текста.
func FirstSentences(text string, n int) string {
	text = strings.TrimSpace(text)
	matches := sentenceRe.FindAllString(text, n)
	if len(matches) == 0 {
		return text
	}
	return strings.TrimSpace(strings.Join(matches, ""))
}
