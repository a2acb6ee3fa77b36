package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"storybook-server/internal/app"
	"storybook-server/internal/assets"
	"storybook-server/internal/config"
	"storybook-server/shared/database"
	sharedLogger "storybook-server/shared/logger"
	"storybook-server/shared/messaging"
)

func main() {
	_ = godotenv.Load()
	log.Println("Запуск Asset Worker...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	logger, err := sharedLogger.New(cfg.LoggerConfig("asset-worker"))
	if err != nil {
		log.Fatalf("Не удалось инициализировать логгер: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	cfg.LogSummary(logger)

	if cfg.RabbitMQURL == "" {
		logger.Fatal("RABBITMQ_URL is required for the asset worker")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbPool, err := app.SetupDatabase(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Не удалось подключиться к БД", zap.Error(err))
	}
	defer dbPool.Close()
	segmentRepo := database.NewPgSegmentRepository(dbPool, logger)

	// Воркер держит собственные контроллеры миграции: стартовый пресет берется из окружения.
	migrations, err := app.NewMigrations(cfg, logger)
	if err != nil {
		logger.Fatal("Некорректный пресет миграции", zap.Error(err))
	}

	legacyImage, nextImage := app.ImageClients(cfg, logger)
	illustrator := assets.NewIllustrator(migrations.Image, legacyImage, nextImage, cfg.ImageTimeout, logger)

	audioCache, closeCache := app.AudioCache(ctx, cfg, logger)
	defer closeCache()
	narrator, err := app.NewNarrator(ctx, cfg, migrations.Audio, audioCache, logger)
	if err != nil {
		logger.Fatal("Не удалось создать провайдеров речи", zap.Error(err))
	}

	store, err := assets.NewLocalMediaStore(cfg.MediaDir, cfg.MediaBaseURL)
	if err != nil {
		logger.Fatal("Не удалось инициализировать хранилище медиа", zap.Error(err))
	}

	worker := assets.NewWorker(segmentRepo, illustrator, narrator, store, cfg.PushGatewayURL, logger)

	rabbitConn, err := messaging.Dial(ctx, cfg.RabbitMQURL, 5, 5*time.Second, logger)
	if err != nil {
		logger.Fatal("Не удалось подключиться к RabbitMQ", zap.Error(err))
	}
	defer rabbitConn.Close()

	metricsSrv := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("Starting metrics server", zap.String("port", cfg.WorkerMetricsPort))
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server error", zap.Error(err))
		}
	}()

	consumeDone := make(chan error, 1)
	go func() {
		consumeDone <- messaging.Consume(ctx, rabbitConn, "asset-worker", cfg.WorkerPrefetch, worker, logger)
	}()

	select {
	case <-ctx.Done():
		logger.Info("Получен сигнал завершения, останавливаем воркер...")
		select {
		case <-consumeDone:
		case <-time.After(10 * time.Second):
			logger.Warn("Consumer did not stop in time")
		}
	case err := <-consumeDone:
		if err != nil {
			logger.Error("Consumer stopped with error", zap.Error(err))
		} else {
			logger.Warn("Consumer stopped")
		}
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Ошибка при остановке сервера метрик", zap.Error(err))
	}
	logger.Info("Asset Worker остановлен")
}

// Проверка совместимости на этапе компиляции.
var _ messaging.DeliveryHandler = (*assets.Worker)(nil)
