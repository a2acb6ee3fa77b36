// Package app собирает общие зависимости API и воркера ассетов из конфигурации.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"storybook-server/internal/ai"
	"storybook-server/internal/assets"
	"storybook-server/internal/config"
	"storybook-server/internal/rollout"
)

// SetupDatabase создает пул соединений и проверяет доступность базы.
func SetupDatabase(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("ошибка парсинга DSN: %w", err)
	}
	poolConfig.MaxConns = cfg.DBMaxConns
	poolConfig.MaxConnIdleTime = cfg.DBIdleTimeout

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания пула соединений: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ошибка подключения к базе данных (ping): %w", err)
	}
	logger.Info("Database connection pool established")
	return pool, nil
}

// Migrations - контроллеры миграции провайдеров по семействам операций.
type Migrations struct {
	Text  *rollout.Controller
	Image *rollout.Controller
	Audio *rollout.Controller
}

// All возвращает контроллеры в порядке text, image, audio.
func (m Migrations) All() []*rollout.Controller {
	return []*rollout.Controller{m.Text, m.Image, m.Audio}
}

// NewMigrations создает контроллеры с пресетами из конфигурации.
// Пустое имя пресета означает консервативные настройки по умолчанию.
func NewMigrations(cfg *config.Config, logger *zap.Logger) (Migrations, error) {
	text, err := newController(rollout.KindText, cfg.TextRolloutPreset, logger)
	if err != nil {
		return Migrations{}, err
	}
	image, err := newController(rollout.KindImage, cfg.ImageRolloutPreset, logger)
	if err != nil {
		return Migrations{}, err
	}
	audio, err := newController(rollout.KindAudio, cfg.AudioRolloutPreset, logger)
	if err != nil {
		return Migrations{}, err
	}
	return Migrations{Text: text, Image: image, Audio: audio}, nil
}

func newController(kind, preset string, logger *zap.Logger) (*rollout.Controller, error) {
	cfg := rollout.DefaultConfig()
	if preset != "" {
		var err error
		if cfg, err = rollout.PresetConfig(preset); err != nil {
			return nil, fmt.Errorf("%s rollout preset: %w", kind, err)
		}
	}
	return rollout.NewController(kind, cfg, logger), nil
}

// TextClients возвращает legacy и next клиентов текста. Ненастроенный провайдер
// возвращается как nil интерфейс. closeFn освобождает клиента Gemini.
func TextClients(ctx context.Context, cfg *config.Config, logger *zap.Logger) (legacy, next ai.TextClient, closeFn func(), err error) {
	closeFn = func() {}

	switch cfg.LegacyTextProvider {
	case "ollama":
		if cfg.OllamaURL != "" {
			ollama, err := ai.NewOllamaClient(cfg.OllamaURL, cfg.OllamaModel, cfg.TextTimeout, logger)
			if err != nil {
				return nil, nil, closeFn, err
			}
			legacy = ollama
		}
	case "openai", "":
		if cfg.OpenAIAPIKey != "" {
			legacy = ai.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAITextModel, logger)
		}
	default:
		return nil, nil, closeFn, fmt.Errorf("unknown legacy text provider %q", cfg.LegacyTextProvider)
	}

	if cfg.GeminiAPIKey != "" {
		gemini, err := ai.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, logger)
		if err != nil {
			return nil, nil, closeFn, err
		}
		next = gemini
		closeFn = func() {
			if err := gemini.Close(); err != nil {
				logger.Warn("Failed to close Gemini client", zap.Error(err))
			}
		}
	}
	if legacy == nil && next == nil {
		logger.Warn("No text provider configured, story generation will fail")
	}
	return legacy, next, closeFn, nil
}

// ImageClients возвращает Sana как legacy и OpenAI Images как next.
func ImageClients(cfg *config.Config, logger *zap.Logger) (legacy, next assets.ImageClient) {
	if cfg.SanaServerURL != "" {
		legacy = assets.NewSanaClient(cfg.SanaServerURL, logger)
	}
	if cfg.OpenAIAPIKey != "" {
		next = assets.NewOpenAIImageClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.ImageModel, cfg.ImageSize, logger)
	}
	return legacy, next
}

// SpeechClients возвращает Polly как legacy и OpenAI TTS как next.
func SpeechClients(ctx context.Context, cfg *config.Config, logger *zap.Logger) (legacy, next assets.SpeechClient, err error) {
	if cfg.AWSRegion != "" {
		polly, err := assets.NewPollyClient(ctx, cfg.AWSRegion, cfg.PollyEngine, logger)
		if err != nil {
			return nil, nil, err
		}
		legacy = polly
	}
	if cfg.OpenAIAPIKey != "" {
		next = assets.NewOpenAISpeechClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAISpeechModel, logger)
	}
	return legacy, next, nil
}

// AudioCache подключает Redis для кэша озвучки. Без REDIS_ADDR кэш выключен.
// Недоступный Redis не блокирует старт: озвучка работает без кэша.
func AudioCache(ctx context.Context, cfg *config.Config, logger *zap.Logger) (assets.AudioCache, func()) {
	if cfg.RedisAddr == "" {
		logger.Info("REDIS_ADDR not set, TTS cache disabled")
		return nil, func() {}
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	closeFn := func() {
		if err := client.Close(); err != nil {
			logger.Warn("Failed to close Redis client", zap.Error(err))
		}
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("Redis unavailable, TTS cache disabled", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		closeFn()
		return nil, func() {}
	}
	logger.Info("Redis connected", zap.String("addr", cfg.RedisAddr))
	return assets.NewRedisAudioCache(client, cfg.TTSCacheTTL), closeFn
}

// NewNarrator собирает синтезатор речи с контроллером audio.
func NewNarrator(ctx context.Context, cfg *config.Config, ctrl *rollout.Controller, cache assets.AudioCache, logger *zap.Logger) (*assets.Narrator, error) {
	legacy, next, err := SpeechClients(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return assets.NewNarrator(ctrl, legacy, next, cache, cfg.SpeechTimeout, logger), nil
}
