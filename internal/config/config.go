package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap"

	"storybook-server/shared/logger"
	"storybook-server/shared/utils"
)

// Config - конфигурация API и воркера ассетов. Секреты читаются из Docker Secrets
// или из переменных окружения, если файла нет.
type Config struct {
	AppEnv string `envconfig:"APP_ENV" default:"development"`

	// HTTP
	ServerPort        string        `envconfig:"SERVER_PORT" default:"8080"`
	WorkerMetricsPort string        `envconfig:"WORKER_METRICS_PORT" default:"9091"`
	ReadTimeout       time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout      time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"120s"`
	AllowedOrigins    []string      `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
	AdminAPIURL       string        `envconfig:"ADMIN_API_URL" default:"http://localhost:8080"`

	// Логгер
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	LogEncoding string `envconfig:"LOG_ENCODING" default:"json"`

	// PostgreSQL
	DatabaseURL   string        `envconfig:"DATABASE_URL"`
	DBHost        string        `envconfig:"DB_HOST" default:"localhost"`
	DBPort        string        `envconfig:"DB_PORT" default:"5432"`
	DBUser        string        `envconfig:"DB_USER" default:"postgres"`
	DBName        string        `envconfig:"DB_NAME" default:"storybook"`
	DBSSLMode     string        `envconfig:"DB_SSL_MODE" default:"disable"`
	DBMaxConns    int32         `envconfig:"DB_MAX_CONNECTIONS" default:"10"`
	DBIdleTimeout time.Duration `envconfig:"DB_MAX_IDLE" default:"5m"`
	DBPassword    string        `ignored:"true"`

	// RabbitMQ
	RabbitMQURL    string `envconfig:"RABBITMQ_URL"`
	WorkerPrefetch int    `envconfig:"WORKER_PREFETCH" default:"2"`
	PushGatewayURL string `envconfig:"PUSHGATEWAY_URL"`

	// Redis (кэш TTS)
	RedisAddr     string        `envconfig:"REDIS_ADDR"`
	RedisDB       int           `envconfig:"REDIS_DB" default:"0"`
	TTSCacheTTL   time.Duration `envconfig:"TTS_CACHE_TTL" default:"24h"`
	RedisPassword string        `ignored:"true"`

	// Провайдер идентификации
	JWTAudience             string `envconfig:"AUTH_JWT_AUDIENCE"`
	FirebaseProjectID       string `envconfig:"FIREBASE_PROJECT_ID"`
	FirebaseCredentialsPath string `envconfig:"FIREBASE_CREDENTIALS_PATH"`
	JWTSecret               string `ignored:"true"`

	// Текст
	LegacyTextProvider string        `envconfig:"LEGACY_TEXT_PROVIDER" default:"openai"`
	OpenAIBaseURL      string        `envconfig:"OPENAI_BASE_URL"`
	OpenAITextModel    string        `envconfig:"OPENAI_TEXT_MODEL" default:"gpt-4o-mini"`
	OllamaURL          string        `envconfig:"OLLAMA_URL"`
	OllamaModel        string        `envconfig:"OLLAMA_MODEL" default:"llama3.1"`
	GeminiModel        string        `envconfig:"GEMINI_MODEL" default:"gemini-1.5-flash"`
	TextTimeout        time.Duration `envconfig:"TEXT_AI_TIMEOUT" default:"60s"`
	MaxContextTokens   int           `envconfig:"TEXT_MAX_CONTEXT_TOKENS" default:"2500"`
	OpenAIAPIKey       string        `ignored:"true"`
	GeminiAPIKey       string        `ignored:"true"`

	// Изображения
	SanaServerURL string        `envconfig:"SANA_SERVER_URL"`
	ImageModel    string        `envconfig:"IMAGE_MODEL" default:"dall-e-3"`
	ImageSize     string        `envconfig:"IMAGE_SIZE" default:"1024x1024"`
	ImageTimeout  time.Duration `envconfig:"IMAGE_AI_TIMEOUT" default:"120s"`

	// Озвучка
	AWSRegion         string        `envconfig:"AWS_REGION"`
	PollyEngine       string        `envconfig:"POLLY_ENGINE" default:"neural"`
	OpenAISpeechModel string        `envconfig:"OPENAI_SPEECH_MODEL" default:"tts-1"`
	SpeechTimeout     time.Duration `envconfig:"AUDIO_AI_TIMEOUT" default:"30s"`

	// Хранилище медиа
	MediaDir     string `envconfig:"MEDIA_DIR"`
	MediaBaseURL string `envconfig:"MEDIA_BASE_URL"`

	// Миграция провайдеров: имя пресета на старте, пусто = консервативные дефолты.
	TextRolloutPreset  string `envconfig:"TEXT_ROLLOUT_PRESET"`
	ImageRolloutPreset string `envconfig:"IMAGE_ROLLOUT_PRESET"`
	AudioRolloutPreset string `envconfig:"AUDIO_ROLLOUT_PRESET"`

	// Кредиты
	SignupBonusCredits int64 `envconfig:"SIGNUP_BONUS_CREDITS" default:"0"`
}

// Load загружает конфигурацию из переменных окружения и секретов.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("ошибка загрузки конфигурации: %w", err)
	}

	cfg.DBPassword = utils.SecretOrEnv("db_password", "DB_PASSWORD")
	cfg.RedisPassword = utils.SecretOrEnv("redis_password", "REDIS_PASSWORD")
	cfg.JWTSecret = utils.SecretOrEnv("jwt_secret", "AUTH_JWT_SECRET")
	cfg.OpenAIAPIKey = utils.SecretOrEnv("openai_api_key", "OPENAI_API_KEY")
	cfg.GeminiAPIKey = utils.SecretOrEnv("gemini_api_key", "GEMINI_API_KEY")

	cfg.LegacyTextProvider = strings.ToLower(strings.TrimSpace(cfg.LegacyTextProvider))
	return &cfg, nil
}

// IsDevelopment сообщает, запущен ли процесс в dev окружении.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development" || c.AppEnv == "dev"
}

// LoggerConfig возвращает настройки логгера для бинаря service.
func (c *Config) LoggerConfig(service string) logger.Config {
	return logger.Config{Level: c.LogLevel, Encoding: c.LogEncoding, Service: service}
}

// GetDSN возвращает строку подключения к PostgreSQL.
func (c *Config) GetDSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
}

// getMaskedDSN возвращает DSN с замаскированным паролем для логирования.
func (c *Config) getMaskedDSN() string {
	dsn := c.GetDSN()
	at := strings.LastIndex(dsn, "@")
	scheme := strings.Index(dsn, "://")
	if at == -1 || scheme == -1 {
		return "[invalid dsn format]"
	}
	userInfo := dsn[scheme+3 : at]
	if colon := strings.Index(userInfo, ":"); colon != -1 {
		userInfo = userInfo[:colon] + ":********"
	}
	return dsn[:scheme+3] + userInfo + dsn[at:]
}

// LogSummary пишет в лог загруженную конфигурацию без секретов.
func (c *Config) LogSummary(log *zap.Logger) {
	loaded := func(v string) string {
		if v == "" {
			return "[НЕ ЗАДАН]"
		}
		return "[ЗАГРУЖЕН]"
	}
	log.Info("Конфигурация загружена",
		zap.String("env", c.AppEnv),
		zap.String("port", c.ServerPort),
		zap.String("db_dsn", c.getMaskedDSN()),
		zap.Bool("rabbitmq", c.RabbitMQURL != ""),
		zap.String("redis_addr", c.RedisAddr),
		zap.String("legacy_text_provider", c.LegacyTextProvider),
		zap.String("openai_text_model", c.OpenAITextModel),
		zap.String("gemini_model", c.GeminiModel),
		zap.Duration("text_timeout", c.TextTimeout),
		zap.Duration("image_timeout", c.ImageTimeout),
		zap.Duration("speech_timeout", c.SpeechTimeout),
		zap.String("media_base_url", c.MediaBaseURL),
		zap.String("jwt_secret", loaded(c.JWTSecret)),
		zap.String("openai_api_key", loaded(c.OpenAIAPIKey)),
		zap.String("gemini_api_key", loaded(c.GeminiAPIKey)),
	)
}
