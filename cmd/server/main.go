package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	amqp "github.com/rabbitmq/amqp091-go"
	ginprometheus "github.com/zsais/go-gin-prometheus"
	"go.uber.org/zap"

	"storybook-server/internal/ai"
	"storybook-server/internal/app"
	"storybook-server/internal/assets"
	"storybook-server/internal/config"
	"storybook-server/internal/handler"
	"storybook-server/internal/ledger"
	"storybook-server/internal/service"
	"storybook-server/shared/authutils"
	"storybook-server/shared/database"
	sharedLogger "storybook-server/shared/logger"
	"storybook-server/shared/messaging"
	sharedMiddleware "storybook-server/shared/middleware"
)

func main() {
	_ = godotenv.Load()
	log.Println("Запуск Storybook API...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	logger, err := sharedLogger.New(cfg.LoggerConfig("storybook-api"))
	if err != nil {
		log.Fatalf("Не удалось инициализировать логгер: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	cfg.LogSummary(logger)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// --- PostgreSQL ---
	dbPool, err := app.SetupDatabase(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Не удалось подключиться к БД", zap.Error(err))
	}
	defer dbPool.Close()
	if err := database.ApplyMigrations(cfg.GetDSN(), logger); err != nil {
		logger.Fatal("Не удалось применить миграции", zap.Error(err))
	}

	storyRepo := database.NewPgStoryRepository(dbPool, logger)
	segmentRepo := database.NewPgSegmentRepository(dbPool, logger)
	creditRepo := database.NewPgCreditRepository(dbPool, logger)

	// --- RabbitMQ (очередь ассетов, опционально) ---
	var dispatcher service.AssetDispatcher
	var rabbitConn *amqp.Connection
	if cfg.RabbitMQURL != "" {
		rabbitConn, err = messaging.Dial(ctx, cfg.RabbitMQURL, 5, 5*time.Second, logger)
		if err != nil {
			logger.Fatal("Не удалось подключиться к RabbitMQ", zap.Error(err))
		}
		defer rabbitConn.Close()
		publisher, err := messaging.NewRabbitMQAssetPublisher(rabbitConn, logger)
		if err != nil {
			logger.Fatal("Не удалось создать AssetTaskPublisher", zap.Error(err))
		}
		dispatcher = assets.NewDispatcher(segmentRepo, publisher, logger)
	} else {
		logger.Warn("RABBITMQ_URL not set, asset generation disabled")
	}

	// --- Идентификация ---
	var verifiers authutils.ChainVerifier
	if cfg.JWTSecret != "" {
		jwtVerifier, err := authutils.NewJWTVerifier(cfg.JWTSecret, cfg.JWTAudience, logger)
		if err != nil {
			logger.Fatal("Не удалось создать JWT верификатор", zap.Error(err))
		}
		verifiers = append(verifiers, jwtVerifier)
	}
	if cfg.FirebaseCredentialsPath != "" {
		fbVerifier, err := authutils.NewFirebaseVerifier(ctx, cfg.FirebaseProjectID, cfg.FirebaseCredentialsPath, logger)
		if err != nil {
			logger.Fatal("Не удалось создать Firebase верификатор", zap.Error(err))
		}
		verifiers = append(verifiers, fbVerifier)
	}

	// --- Провайдеры и миграция ---
	migrations, err := app.NewMigrations(cfg, logger)
	if err != nil {
		logger.Fatal("Некорректный пресет миграции", zap.Error(err))
	}

	legacyText, nextText, closeText, err := app.TextClients(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Не удалось создать текстовых провайдеров", zap.Error(err))
	}
	defer closeText()
	generator := ai.NewStoryGenerator(migrations.Text, legacyText, nextText,
		ai.NewTokenCounter(cfg.OpenAITextModel, logger),
		ai.GeneratorOptions{Timeout: cfg.TextTimeout, MaxContextTokens: cfg.MaxContextTokens},
		logger)

	audioCache, closeCache := app.AudioCache(ctx, cfg, logger)
	defer closeCache()
	narrator, err := app.NewNarrator(ctx, cfg, migrations.Audio, audioCache, logger)
	if err != nil {
		logger.Fatal("Не удалось создать провайдеров речи", zap.Error(err))
	}

	// --- Сервисы ---
	credits := ledger.NewService(creditRepo, cfg.SignupBonusCredits, logger)
	storyService := service.NewStoryService(storyRepo, segmentRepo, generator, dispatcher, credits, logger)
	ttsService := service.NewTTSService(narrator, logger)

	h := handler.NewHandler(handler.Deps{
		Stories:    storyService,
		TTS:        ttsService,
		Credits:    credits,
		Migrations: migrations.All(),
		Verifier:   verifiers,
		DB:         dbPool,
		Config:     cfg,
	}, logger)

	// --- HTTP ---
	gin.SetMode(gin.ReleaseMode)
	if cfg.IsDevelopment() {
		gin.SetMode(gin.DebugMode)
	}
	router := gin.New()
	router.Use(sharedMiddleware.GinZapLogger(logger))
	router.Use(gin.Recovery())

	// Метрики до маршрутов: middleware gin применяется только к маршрутам, зарегистрированным после него.
	ginprometheus.NewPrometheus("gin").Use(router)
	h.RegisterRoutes(router)

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server listen error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Получен сигнал завершения, начинаем graceful shutdown...")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Ошибка при graceful shutdown HTTP сервера", zap.Error(err))
	}
	logger.Info("Storybook API остановлен")
}
