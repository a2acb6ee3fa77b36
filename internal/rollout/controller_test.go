package rollout

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"storybook-server/shared/models"
)

func okPath(provider, value string) Path[string] {
	return Path[string]{Provider: provider, Call: func(context.Context) (string, error) { return value, nil }}
}

func failPath(provider string, err error) Path[string] {
	return Path[string]{Provider: provider, Call: func(context.Context) (string, error) { return "", err }}
}

func TestUserBucket(t *testing.T) {
	cases := map[string]int{
		"":                0,
		"a":               97,
		"abc":             54,
		"user-123":        72,
		"firebase-uid-42": 35,
		"пользователь":    81,
	}
	for id, want := range cases {
		assert.Equal(t, want, UserBucket(id), "bucket for %q", id)
	}
}

func TestSelectVersion_Deterministic(t *testing.T) {
	c := NewController(KindText, Config{NewBackendEnabled: true, RolloutPercentage: 50}, zap.NewNop())

	for i := 0; i < 100; i++ {
		id := fmt.Sprintf("user-%d", i)
		first := c.SelectVersion(id)
		for j := 0; j < 5; j++ {
			assert.Equal(t, first, c.SelectVersion(id))
		}
		if UserBucket(id) < 50 {
			assert.Equal(t, VersionNext, first)
		} else {
			assert.Equal(t, VersionLegacy, first)
		}
	}
}

func TestSelectVersion_RolloutShare(t *testing.T) {
	const users = 10000
	for _, pct := range []int{10, 25, 50} {
		c := NewController(KindText, Config{NewBackendEnabled: true, RolloutPercentage: pct}, zap.NewNop())
		routed := 0
		for i := 0; i < users; i++ {
			if c.SelectVersion(fmt.Sprintf("user-%d", i)) == VersionNext {
				routed++
			}
		}
		share := float64(routed) * 100 / users
		assert.InDelta(t, float64(pct), share, 2.0, "rollout %d%% routed %.2f%%", pct, share)
	}
}

func TestSelectVersion_Flags(t *testing.T) {
	t.Run("новый бэкенд выключен", func(t *testing.T) {
		c := NewController(KindText, Config{NewBackendEnabled: false, RolloutPercentage: 100}, zap.NewNop())
		assert.Equal(t, VersionLegacy, c.SelectVersion("user-123"))
	})

	t.Run("ForceNewInDev перекрывает процент", func(t *testing.T) {
		c := NewController(KindText, Config{ForceNewInDev: true}, zap.NewNop())
		assert.Equal(t, VersionNext, c.SelectVersion("user-123"))
	})

	t.Run("0% и 100%", func(t *testing.T) {
		c := NewController(KindText, Config{NewBackendEnabled: true, RolloutPercentage: 0}, zap.NewNop())
		assert.Equal(t, VersionLegacy, c.SelectVersion("a"))
		c.IncreaseRollout(100)
		assert.Equal(t, VersionNext, c.SelectVersion("a"))
	})

	t.Run("анонимный вызов использует случайное значение", func(t *testing.T) {
		c := NewController(KindText, Config{NewBackendEnabled: true, RolloutPercentage: 30}, zap.NewNop())
		c.bucket = func() int { return 10 }
		assert.Equal(t, VersionNext, c.SelectVersion(""))
		c.bucket = func() int { return 30 }
		assert.Equal(t, VersionLegacy, c.SelectVersion(""))
	})
}

func TestAdminOperations(t *testing.T) {
	c := NewController(KindImage, DefaultConfig(), zap.NewNop())
	assert.Equal(t, DefaultConfig(), c.Snapshot())

	cfg := c.IncreaseRollout(30)
	assert.Equal(t, 30, cfg.RolloutPercentage)
	assert.True(t, cfg.NewBackendEnabled)

	cfg = c.IncreaseRollout(500)
	assert.Equal(t, 100, cfg.RolloutPercentage)

	cfg = c.DecreaseRollout(250)
	assert.Equal(t, 0, cfg.RolloutPercentage)

	cfg = c.CompleteMigration()
	assert.Equal(t, Config{NewBackendEnabled: true, RolloutPercentage: 100, FallbackToLegacy: false, LoggingEnabled: true}, cfg)

	cfg = c.EmergencyFallback()
	assert.False(t, cfg.NewBackendEnabled)
	assert.Equal(t, 0, cfg.RolloutPercentage)
	assert.True(t, cfg.FallbackToLegacy)
	assert.Equal(t, VersionLegacy, c.SelectVersion("user-123"))
}

func TestApplyPreset(t *testing.T) {
	c := NewController(KindAudio, DefaultConfig(), zap.NewNop())

	for _, name := range PresetNames() {
		cfg, err := c.ApplyPreset(name)
		require.NoError(t, err)
		want, _ := PresetConfig(name)
		assert.Equal(t, want, cfg)
		assert.Equal(t, want, c.Snapshot())
	}

	cfg, err := c.ApplyPreset(" Beta ")
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.RolloutPercentage)

	_, err = c.ApplyPreset("canary")
	assert.ErrorIs(t, err, models.ErrInvalidField)
	assert.Equal(t, 10, c.Snapshot().RolloutPercentage)
}

func TestExecute(t *testing.T) {
	ctx := context.Background()
	nextErr := errors.New("gemini unavailable")
	legacyErr := errors.New("openai unavailable")

	t.Run("legacy по умолчанию", func(t *testing.T) {
		c := NewController(KindText, DefaultConfig(), zap.NewNop())
		res, err := Execute(ctx, c, "story", "user-123", 0, okPath("openai", "legacy"), okPath("gemini", "next"))
		require.NoError(t, err)
		assert.Equal(t, "legacy", res.Value)
		assert.Equal(t, VersionLegacy, res.VersionUsed)
		assert.Equal(t, "openai", res.Provider)
		assert.False(t, res.WasError)
	})

	t.Run("next успешно", func(t *testing.T) {
		c := NewController(KindText, Config{ForceNewInDev: true, FallbackToLegacy: true}, zap.NewNop())
		res, err := Execute(ctx, c, "story", "user-123", 0, okPath("openai", "legacy"), okPath("gemini", "next"))
		require.NoError(t, err)
		assert.Equal(t, "next", res.Value)
		assert.Equal(t, VersionNext, res.VersionUsed)
	})

	t.Run("сбой next уходит в legacy", func(t *testing.T) {
		c := NewController(KindText, Config{ForceNewInDev: true, FallbackToLegacy: true}, zap.NewNop())
		res, err := Execute(ctx, c, "story", "user-123", 0, okPath("openai", "legacy"), failPath("gemini", nextErr))
		require.NoError(t, err)
		assert.Equal(t, "legacy", res.Value)
		assert.Equal(t, VersionLegacy, res.VersionUsed)
		assert.True(t, res.WasError)
		assert.Equal(t, nextErr.Error(), res.ErrorMessage)
	})

	t.Run("fallback выключен: исходная ошибка", func(t *testing.T) {
		c := NewController(KindText, Config{ForceNewInDev: true, FallbackToLegacy: false}, zap.NewNop())
		called := false
		legacy := Path[string]{Provider: "openai", Call: func(context.Context) (string, error) {
			called = true
			return "legacy", nil
		}}
		_, err := Execute(ctx, c, "story", "user-123", 0, legacy, failPath("gemini", nextErr))
		assert.Same(t, nextErr, err)
		assert.False(t, called)
	})

	t.Run("обе ветки отказали", func(t *testing.T) {
		c := NewController(KindText, Config{ForceNewInDev: true, FallbackToLegacy: true}, zap.NewNop())
		res, err := Execute(ctx, c, "story", "user-123", 0, failPath("openai", legacyErr), failPath("gemini", nextErr))
		require.Error(t, err)
		var fbErr *FallbackError
		require.ErrorAs(t, err, &fbErr)
		assert.ErrorIs(t, err, nextErr)
		assert.ErrorIs(t, err, legacyErr)
		assert.Contains(t, err.Error(), "gemini unavailable")
		assert.Contains(t, err.Error(), "openai unavailable")
		assert.True(t, res.WasError)
	})

	t.Run("сбой legacy без повтора", func(t *testing.T) {
		c := NewController(KindText, DefaultConfig(), zap.NewNop())
		calls := 0
		next := Path[string]{Provider: "gemini", Call: func(context.Context) (string, error) {
			calls++
			return "next", nil
		}}
		_, err := Execute(ctx, c, "story", "user-123", 0, failPath("openai", legacyErr), next)
		assert.Same(t, legacyErr, err)
		assert.Zero(t, calls)
	})

	t.Run("не настроенный next заменяется legacy", func(t *testing.T) {
		c := NewController(KindText, Config{ForceNewInDev: true, FallbackToLegacy: true}, zap.NewNop())
		res, err := Execute(ctx, c, "story", "user-123", 0, okPath("openai", "legacy"), Path[string]{Provider: "gemini"})
		require.NoError(t, err)
		assert.Equal(t, VersionLegacy, res.VersionUsed)
		assert.False(t, res.WasError)
	})

	t.Run("emergency не уходит в next без legacy", func(t *testing.T) {
		c := NewController(KindText, Config{NewBackendEnabled: true, RolloutPercentage: 100, FallbackToLegacy: true}, zap.NewNop())
		c.EmergencyFallback()
		calls := 0
		next := Path[string]{Provider: "gemini", Call: func(context.Context) (string, error) {
			calls++
			return "next", nil
		}}
		_, err := Execute(ctx, c, "story", "user-123", 0, Path[string]{Provider: "openai"}, next)
		assert.ErrorIs(t, err, models.ErrMisconfigured)
		assert.Zero(t, calls)
	})

	t.Run("выключенный next не подменяет legacy", func(t *testing.T) {
		c := NewController(KindText, DefaultConfig(), zap.NewNop())
		_, err := Execute(ctx, c, "story", "user-123", 0, Path[string]{Provider: "openai"}, okPath("gemini", "next"))
		assert.ErrorIs(t, err, models.ErrMisconfigured)
	})

	t.Run("legacy вне раскатки заменяется next", func(t *testing.T) {
		c := NewController(KindText, Config{NewBackendEnabled: true, RolloutPercentage: 0, FallbackToLegacy: true}, zap.NewNop())
		res, err := Execute(ctx, c, "story", "user-123", 0, Path[string]{Provider: "openai"}, okPath("gemini", "next"))
		require.NoError(t, err)
		assert.Equal(t, VersionNext, res.VersionUsed)
	})

	t.Run("после complete не настроенный next не уходит в legacy", func(t *testing.T) {
		c := NewController(KindText, DefaultConfig(), zap.NewNop())
		c.CompleteMigration()
		_, err := Execute(ctx, c, "story", "user-123", 0, okPath("openai", "legacy"), Path[string]{Provider: "gemini"})
		assert.ErrorIs(t, err, models.ErrMisconfigured)
	})

	t.Run("версия и fallback из одного снимка", func(t *testing.T) {
		c := NewController(KindText, Config{NewBackendEnabled: true, RolloutPercentage: 100, FallbackToLegacy: true}, zap.NewNop())
		// Админ меняет конфигурацию во время выбора версии анонимного вызова.
		c.bucket = func() int {
			c.CompleteMigration()
			return 0
		}
		res, err := Execute(ctx, c, "story", "", 0, okPath("openai", "legacy"), failPath("gemini", nextErr))
		require.NoError(t, err)
		assert.Equal(t, VersionLegacy, res.VersionUsed)
		assert.True(t, res.WasError)
		assert.False(t, c.Snapshot().FallbackToLegacy)
	})

	t.Run("ни одного провайдера", func(t *testing.T) {
		c := NewController(KindText, DefaultConfig(), zap.NewNop())
		_, err := Execute(ctx, c, "story", "user-123", 0, Path[string]{}, Path[string]{})
		assert.ErrorIs(t, err, models.ErrMisconfigured)
	})

	t.Run("таймаут вызова", func(t *testing.T) {
		c := NewController(KindText, DefaultConfig(), zap.NewNop())
		slow := Path[string]{Provider: "openai", Call: func(ctx context.Context) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		}}
		_, err := Execute(ctx, c, "story", "user-123", 20*time.Millisecond, slow, Path[string]{})
		assert.ErrorIs(t, err, models.ErrTimeout)
	})
}
