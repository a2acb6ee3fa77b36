package handler

import (
	"context"
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"storybook-server/internal/assets"
	"storybook-server/internal/config"
	"storybook-server/internal/rollout"
	"storybook-server/internal/service"
	"storybook-server/shared/authutils"
	"storybook-server/shared/middleware"
	"storybook-server/shared/models"
)

// Synthesizer - синхронная озвучка текста.
type Synthesizer interface {
	Synthesize(ctx context.Context, user models.AuthUser, req assets.NarrationRequest) (*service.TTSResult, error)
}

// CreditService - операции над счетом, доступные через API.
type CreditService interface {
	GetAccount(ctx context.Context, userID string) (*models.CreditAccount, error)
	Transactions(ctx context.Context, userID string, limit, offset int) ([]models.CreditTransaction, int, error)
	Grant(ctx context.Context, userID string, amount int64, reason models.CreditReason, ref *string) (*models.CreditTransaction, error)
}

// Pinger проверяет доступность хранилища для /health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps - зависимости HTTP слоя.
type Deps struct {
	Stories    service.StoryService
	TTS        Synthesizer
	Credits    CreditService
	Migrations []*rollout.Controller
	Verifier   authutils.TokenVerifier
	DB         Pinger
	Config     *config.Config
}

// Handler обрабатывает HTTP запросы движка историй.
type Handler struct {
	stories    service.StoryService
	tts        Synthesizer
	credits    CreditService
	migrations map[string]*rollout.Controller
	verifier   authutils.TokenVerifier
	db         Pinger
	cfg        *config.Config
	logger     *zap.Logger
}

// NewHandler создает Handler.
func NewHandler(d Deps, logger *zap.Logger) *Handler {
	migrations := make(map[string]*rollout.Controller, len(d.Migrations))
	for _, c := range d.Migrations {
		migrations[c.Kind()] = c
	}
	return &Handler{
		stories:    d.Stories,
		tts:        d.TTS,
		credits:    d.Credits,
		migrations: migrations,
		verifier:   d.Verifier,
		db:         d.DB,
		cfg:        d.Config,
		logger:     logger.Named("StoryHandler"),
	}
}

// CORS разрешает любой origin, если в CORS_ALLOWED_ORIGINS есть "*".
// Preflight OPTIONS получает только CORS заголовки.
func CORS(allowed []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{"Authorization", "Content-Type", "Idempotency-Key", "X-Request-ID", "apikey", "x-client-info"},
		ExposeHeaders:    []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	if len(allowed) == 0 || slices.Contains(allowed, "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = allowed
	}
	return cors.New(cfg)
}

// RegisterRoutes регистрирует маршруты.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.Use(CORS(h.cfg.AllowedOrigins))
	r.GET("/health", h.health)

	guard := func(caps ...config.Capability) gin.HandlerFunc {
		return config.RequireCapabilities(h.cfg, caps...)
	}
	auth := middleware.AuthMiddleware(h.verifier, h.logger)
	base := []config.Capability{config.CapIdentity, config.CapDatabase}

	api := r.Group("/")
	api.POST("/create-story", guard(append(base, config.CapTextAI)...), auth, h.createStory)
	api.POST("/generate-story-segment", guard(append(base, config.CapTextAI)...), auth, h.generateSegment)
	api.POST("/get-story", guard(base...), auth, h.getStory)
	api.GET("/list-stories", guard(base...), auth, h.listStories)
	api.POST("/generate-tts-audio", guard(config.CapIdentity), auth, h.generateTTS)
	api.POST("/generate-tts", guard(config.CapIdentity), auth, h.generateTTS)

	segments := r.Group("/segments", guard(append(base, config.CapQueue)...), auth)
	{
		segments.POST("/:id/image", h.requestImage)
		segments.POST("/:id/audio", h.requestAudio)
	}

	credits := r.Group("/credits", guard(base...), auth)
	{
		credits.GET("/balance", h.getBalance)
		credits.GET("/transactions", h.listTransactions)
	}
	// Оценка стоимости - чистая функция, хранилище ей не нужно.
	r.POST("/credits/quote", guard(config.CapIdentity), auth, h.quote)

	admin := r.Group("/admin", guard(config.CapIdentity), auth, middleware.RequireRole(models.RoleAdmin))
	{
		admin.POST("/credits/grant", guard(config.CapDatabase), h.grantCredits)
		admin.GET("/migration/:kind", h.getMigration)
		admin.POST("/migration/:kind/rollout", h.changeRollout)
		admin.POST("/migration/:kind/preset", h.applyPreset)
		admin.POST("/migration/:kind/emergency", h.emergencyFallback)
		admin.POST("/migration/:kind/complete", h.completeMigration)
	}
}

func (h *Handler) health(c *gin.Context) {
	env := config.ValidateEnvironment(h.cfg,
		config.CapDatabase, config.CapIdentity, config.CapTextAI, config.CapImageAI,
		config.CapAudioAI, config.CapQueue, config.CapMediaStorage, config.CapCache)

	status, code := "ok", http.StatusOK
	if h.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			h.logger.Warn("Health check: database ping failed", zap.Error(err))
			status, code = "degraded", http.StatusServiceUnavailable
		}
	}
	c.JSON(code, gin.H{"status": status, "environment": env})
}

// currentUser достает пользователя, положенного AuthMiddleware.
func currentUser(c *gin.Context) (models.AuthUser, bool) {
	user, ok := middleware.GetUser(c)
	if !ok {
		middleware.AbortWithError(c, models.ErrUnauthorized)
	}
	return user, ok
}

// bindJSON разбирает тело запроса. Ошибка разбора - это 400 INVALID_FIELD_VALUE.
func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		middleware.AbortWithError(c, models.NewAppError(models.CodeInvalidField, http.StatusBadRequest, "Invalid request body", err))
		return false
	}
	return true
}
