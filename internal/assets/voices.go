package assets

import (
	"bytes"
	"encoding/xml"
	"regexp"
	"strings"
)

// DefaultVoice - ключ профиля рассказчика по умолчанию.
const DefaultVoice = "narrator"

// VoiceProfile - голос персонажа: идентификаторы у провайдеров и базовая просодия.
type VoiceProfile struct {
	Key         string  `json:"key"`
	PollyVoice  string  `json:"pollyVoice"`
	OpenAIVoice string  `json:"openaiVoice"`
	Rate        string  `json:"rate"`
	Pitch       string  `json:"pitch"`
	Speed       float64 `json:"speed"`
}

// Prosody - шаблон интонации для типа истории или эмоции.
type Prosody struct {
	Rate   string `json:"rate,omitempty"`
	Pitch  string `json:"pitch,omitempty"`
	Volume string `json:"volume,omitempty"`
}

var characterVoices = map[string]VoiceProfile{
	"narrator": {Key: "narrator", PollyVoice: "Joanna", OpenAIVoice: "nova", Rate: "95%", Pitch: "+0%", Speed: 0.95},
	"grandma":  {Key: "grandma", PollyVoice: "Ruth", OpenAIVoice: "shimmer", Rate: "85%", Pitch: "-5%", Speed: 0.85},
	"wizard":   {Key: "wizard", PollyVoice: "Matthew", OpenAIVoice: "onyx", Rate: "90%", Pitch: "-10%", Speed: 0.9},
	"princess": {Key: "princess", PollyVoice: "Ivy", OpenAIVoice: "shimmer", Rate: "100%", Pitch: "+10%", Speed: 1.0},
	"dragon":   {Key: "dragon", PollyVoice: "Stephen", OpenAIVoice: "onyx", Rate: "85%", Pitch: "-15%", Speed: 0.85},
	"fairy":    {Key: "fairy", PollyVoice: "Salli", OpenAIVoice: "alloy", Rate: "110%", Pitch: "+15%", Speed: 1.1},
	"robot":    {Key: "robot", PollyVoice: "Joey", OpenAIVoice: "echo", Rate: "100%", Pitch: "-5%", Speed: 1.0},
	"hero":     {Key: "hero", PollyVoice: "Kevin", OpenAIVoice: "fable", Rate: "105%", Pitch: "+5%", Speed: 1.05},
}

var storyTypeProsody = map[string]Prosody{
	"bedtime":     {Rate: "85%", Volume: "soft"},
	"adventure":   {Rate: "105%", Volume: "medium"},
	"funny":       {Rate: "110%", Pitch: "+5%"},
	"mystery":     {Rate: "90%", Pitch: "-5%", Volume: "soft"},
	"educational": {Rate: "95%", Volume: "medium"},
}

var emotionProsody = map[string]Prosody{
	"happy":   {Pitch: "+10%"},
	"excited": {Rate: "115%", Pitch: "+10%"},
	"sad":     {Rate: "85%", Pitch: "-10%"},
	"calm":    {Rate: "90%"},
	"scared":  {Rate: "110%", Volume: "soft"},
}

// ResolveVoice возвращает профиль по ключу. Неизвестный ключ дает рассказчика и false.
func ResolveVoice(key string) (VoiceProfile, bool) {
	if v, ok := characterVoices[strings.ToLower(strings.TrimSpace(key))]; ok {
		return v, true
	}
	return characterVoices[DefaultVoice], false
}

// BuildSSML собирает разметку для синтеза: внешняя просодия типа истории,
// затем эмоция, внутри голос персонажа. Неизвестные типы и эмоции пропускаются.
func BuildSSML(text string, voice VoiceProfile, storyType, emotion string) string {
	var escaped bytes.Buffer
	_ = xml.EscapeText(&escaped, []byte(strings.TrimSpace(text)))

	inner := prosodyTag(Prosody{Rate: voice.Rate, Pitch: voice.Pitch}, escaped.String())
	if p, ok := emotionProsody[strings.ToLower(emotion)]; ok {
		inner = prosodyTag(p, inner)
	}
	if p, ok := storyTypeProsody[strings.ToLower(storyType)]; ok {
		inner = prosodyTag(p, inner)
	}
	return "<speak>" + inner + "</speak>"
}

func prosodyTag(p Prosody, body string) string {
	var attrs []string
	if p.Rate != "" {
		attrs = append(attrs, `rate="`+p.Rate+`"`)
	}
	if p.Pitch != "" {
		attrs = append(attrs, `pitch="`+p.Pitch+`"`)
	}
	if p.Volume != "" {
		attrs = append(attrs, `volume="`+p.Volume+`"`)
	}
	if len(attrs) == 0 {
		return body
	}
	return "<prosody " + strings.Join(attrs, " ") + ">" + body + "</prosody>"
}

var markupRe = regexp.MustCompile(`<[^>]+>`)

// StripMarkup убирает SSML теги для провайдеров, принимающих только текст.
func StripMarkup(ssml string) string {
	plain := markupRe.ReplaceAllString(ssml, "")
	replacer := strings.NewReplacer("&lt;", "<", "&gt;", ">", "&#34;", `"`, "&#39;", "'", "&quot;", `"`, "&apos;", "'", "&#xA;", "\n", "&#x9;", "\t", "&amp;", "&")
	return strings.TrimSpace(replacer.Replace(plain))
}
