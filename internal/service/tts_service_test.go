package service_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"storybook-server/internal/assets"
	"storybook-server/internal/service"
	"storybook-server/shared/models"
)

type fakeNarrator struct {
	available bool
	err       error
}

func (f *fakeNarrator) Available() bool { return f.available }

func (f *fakeNarrator) Narrate(_ context.Context, _ string, req assets.NarrationRequest) (*assets.Narration, error) {
	if f.err != nil {
		return nil, f.err
	}
	voice, matched := assets.ResolveVoice(req.Voice)
	return &assets.Narration{Audio: []byte("mp3"), ContentType: "audio/mpeg", Format: "mp3", Voice: voice, VoiceMatched: matched, Provider: "polly"}, nil
}

func TestTTSService_Synthesize(t *testing.T) {
	ctx := context.Background()
	user := models.AuthUser{ID: "u1"}

	t.Run("аудио от провайдера", func(t *testing.T) {
		svc := service.NewTTSService(&fakeNarrator{available: true}, zap.NewNop())
		res, err := svc.Synthesize(ctx, user, assets.NarrationRequest{Text: "Hello, moon", Voice: "fairy", StoryType: "bedtime"})
		require.NoError(t, err)
		assert.False(t, res.Fallback)
		require.NotNil(t, res.Narration)
		assert.Equal(t, "fairy", res.Voice.Key)
	})

	t.Run("провайдер не настроен", func(t *testing.T) {
		svc := service.NewTTSService(nil, zap.NewNop())
		res, err := svc.Synthesize(ctx, user, assets.NarrationRequest{Text: "Hello", Voice: "unknown"})
		require.NoError(t, err)
		assert.True(t, res.Fallback)
		assert.Equal(t, service.FallbackProviderUnavailable, res.Reason)
		assert.Equal(t, assets.DefaultVoice, res.Voice.Key)
		assert.Equal(t, "Hello", res.Text)
	})

	t.Run("сбой провайдера", func(t *testing.T) {
		svc := service.NewTTSService(&fakeNarrator{available: true, err: fmt.Errorf("%w: throttled", models.ErrAIProvider)}, zap.NewNop())
		res, err := svc.Synthesize(ctx, user, assets.NarrationRequest{Text: "Hello"})
		require.NoError(t, err)
		assert.True(t, res.Fallback)
		assert.Equal(t, service.FallbackProviderFailed, res.Reason)
	})

	t.Run("пустой текст", func(t *testing.T) {
		svc := service.NewTTSService(&fakeNarrator{available: true}, zap.NewNop())
		_, err := svc.Synthesize(ctx, user, assets.NarrationRequest{Text: "   "})
		assert.ErrorIs(t, err, models.ErrMissingField)
	})
}
