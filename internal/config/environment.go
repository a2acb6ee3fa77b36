package config

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"storybook-server/shared/models"
)

// Capability - внешняя зависимость, без которой часть API не работает.
type Capability string

const (
	CapDatabase     Capability = "database"
	CapIdentity     Capability = "identity"
	CapTextAI       Capability = "text_ai"
	CapImageAI      Capability = "image_ai"
	CapAudioAI      Capability = "audio_ai"
	CapQueue        Capability = "queue"
	CapMediaStorage Capability = "media_storage"
	CapCache        Capability = "cache"
)

// EnvStatus - результат проверки окружения. Missing содержит имена переменных.
type EnvStatus struct {
	OK      bool     `json:"ok"`
	Missing []string `json:"missing"`
}

// ValidateEnvironment проверяет, что для каждой capability задана конфигурация.
func ValidateEnvironment(cfg *Config, caps ...Capability) EnvStatus {
	var missing []string
	for _, c := range caps {
		switch c {
		case CapDatabase:
			if cfg.DatabaseURL == "" && (cfg.DBHost == "" || cfg.DBName == "") {
				missing = append(missing, "DATABASE_URL|DB_HOST")
			}
		case CapIdentity:
			if cfg.JWTSecret == "" && cfg.FirebaseCredentialsPath == "" {
				missing = append(missing, "AUTH_JWT_SECRET|FIREBASE_CREDENTIALS_PATH")
			}
		case CapTextAI:
			if !cfg.HasLegacyText() && cfg.GeminiAPIKey == "" {
				missing = append(missing, "OPENAI_API_KEY|OLLAMA_URL|GEMINI_API_KEY")
			}
		case CapImageAI:
			if cfg.SanaServerURL == "" && cfg.OpenAIAPIKey == "" {
				missing = append(missing, "SANA_SERVER_URL|OPENAI_API_KEY")
			}
		case CapAudioAI:
			if cfg.AWSRegion == "" && cfg.OpenAIAPIKey == "" {
				missing = append(missing, "AWS_REGION|OPENAI_API_KEY")
			}
		case CapQueue:
			if cfg.RabbitMQURL == "" {
				missing = append(missing, "RABBITMQ_URL")
			}
		case CapMediaStorage:
			if cfg.MediaDir == "" {
				missing = append(missing, "MEDIA_DIR")
			}
			if cfg.MediaBaseURL == "" {
				missing = append(missing, "MEDIA_BASE_URL")
			}
		case CapCache:
			if cfg.RedisAddr == "" {
				missing = append(missing, "REDIS_ADDR")
			}
		}
	}
	return EnvStatus{OK: len(missing) == 0, Missing: missing}
}

// HasLegacyText - настроен ли legacy провайдер текста.
func (c *Config) HasLegacyText() bool {
	if c.LegacyTextProvider == "ollama" {
		return c.OllamaURL != ""
	}
	return c.OpenAIAPIKey != ""
}

// RequireCapabilities возвращает gin middleware, которое отвечает 500 SERVICE_CONFIGURATION_ERROR,
// если окружение не содержит нужных настроек. Проверка идет до любых вызовов наружу.
func RequireCapabilities(cfg *Config, caps ...Capability) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := ValidateEnvironment(cfg, caps...)
		if !status.OK {
			appErr := models.NewAppError(models.CodeConfiguration, http.StatusInternalServerError,
				"Service configuration error: missing "+strings.Join(status.Missing, ", "), models.ErrMisconfigured)
			c.AbortWithStatusJSON(appErr.Status, models.NewErrorResponse(appErr))
			return
		}
		c.Next()
	}
}
