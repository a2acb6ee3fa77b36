package handler

import (
	"encoding/base64"
	"net/http"

	"github.com/gin-gonic/gin"

	"storybook-server/internal/assets"
	"storybook-server/shared/middleware"
)

func (h *Handler) generateTTS(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var req TTSRequest
	if !bindJSON(c, &req) {
		return
	}
	voice := req.Voice
	if voice == "" {
		voice = req.Character
	}

	res, err := h.tts.Synthesize(c.Request.Context(), user, assets.NarrationRequest{
		Text:      req.Text,
		Voice:     voice,
		StoryType: req.StoryType,
		Emotion:   req.Emotion,
	})
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	if res.Fallback {
		c.JSON(http.StatusOK, TTSFallbackResponse{
			Fallback:     true,
			UseDeviceTTS: true,
			Reason:       res.Reason,
			Text:         res.Text,
			StoryType:    res.StoryType,
			Emotion:      res.Emotion,
			VoiceSettings: VoiceSettings{
				Voice: res.Voice.Key,
				Rate:  res.Voice.Rate,
				Pitch: res.Voice.Pitch,
				Speed: res.Voice.Speed,
			},
		})
		return
	}

	n := res.Narration
	c.JSON(http.StatusOK, TTSResponse{
		Audio:        base64.StdEncoding.EncodeToString(n.Audio),
		ContentType:  n.ContentType,
		Format:       n.Format,
		Voice:        n.Voice.Key,
		VoiceMatched: n.VoiceMatched,
		Provider:     n.Provider,
		Version:      string(n.Version),
		Cached:       n.Cached,
	})
}
