package rollout

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"
	"unicode/utf16"

	"go.uber.org/zap"

	"storybook-server/shared/logger"
	"storybook-server/shared/models"
)

// Семейства операций.
const (
	KindText  = "text"
	KindImage = "image"
	KindAudio = "audio"
)

// Version - выбранная ветка бэкенда.
type Version string

const (
	VersionLegacy Version = "legacy"
	VersionNext   Version = "next"
)

// Controller выбирает между legacy и новым бэкендом и переключается на legacy при сбое.
// Один контроллер на семейство операций (text, image, audio), передается явно.
type Controller struct {
	mu     sync.RWMutex
	kind   string
	cfg    Config
	logger *zap.Logger
	bucket func() int
}

// NewController создает контроллер с начальной конфигурацией.
func NewController(kind string, cfg Config, log *zap.Logger) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	cfg.RolloutPercentage = clampPercentage(cfg.RolloutPercentage)
	rolloutPercentage.WithLabelValues(kind).Set(float64(cfg.RolloutPercentage))
	return &Controller{
		kind:   kind,
		cfg:    cfg,
		logger: log.Named("MigrationController").With(zap.String("kind", kind)),
		bucket: func() int { return rand.IntN(100) },
	}
}

// Kind возвращает семейство операций контроллера.
func (c *Controller) Kind() string { return c.kind }

// Snapshot возвращает копию текущей конфигурации.
func (c *Controller) Snapshot() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg
}

func (c *Controller) update(action string, fn func(cfg *Config)) Config {
	c.mu.Lock()
	fn(&c.cfg)
	c.cfg.RolloutPercentage = clampPercentage(c.cfg.RolloutPercentage)
	snapshot := c.cfg
	c.mu.Unlock()

	rolloutPercentage.WithLabelValues(c.kind).Set(float64(snapshot.RolloutPercentage))
	c.logger.Info("Migration config changed",
		zap.String("action", action),
		zap.Bool("new_backend_enabled", snapshot.NewBackendEnabled),
		zap.Int("rollout_percentage", snapshot.RolloutPercentage),
		zap.Bool("fallback_to_legacy", snapshot.FallbackToLegacy),
		zap.Bool("force_new_in_dev", snapshot.ForceNewInDev))
	return snapshot
}

// IncreaseRollout увеличивает процент раскатки, не выходя за 100.
func (c *Controller) IncreaseRollout(step int) Config {
	return c.update("increase", func(cfg *Config) {
		cfg.RolloutPercentage += step
		if cfg.RolloutPercentage > 0 {
			cfg.NewBackendEnabled = true
		}
	})
}

// DecreaseRollout уменьшает процент раскатки, не опускаясь ниже 0.
func (c *Controller) DecreaseRollout(step int) Config {
	return c.update("decrease", func(cfg *Config) {
		cfg.RolloutPercentage -= step
	})
}

// EmergencyFallback отключает новый бэкенд полностью.
func (c *Controller) EmergencyFallback() Config {
	return c.update("emergency", func(cfg *Config) {
		cfg.NewBackendEnabled = false
		cfg.RolloutPercentage = 0
		cfg.ForceNewInDev = false
		cfg.FallbackToLegacy = true
	})
}

// CompleteMigration переводит весь трафик на новый бэкенд без fallback.
func (c *Controller) CompleteMigration() Config {
	return c.update("complete", func(cfg *Config) {
		cfg.NewBackendEnabled = true
		cfg.RolloutPercentage = 100
		cfg.FallbackToLegacy = false
	})
}

// ApplyPreset атомарно применяет именованный пресет.
func (c *Controller) ApplyPreset(name string) (Config, error) {
	preset, err := PresetConfig(name)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %v", models.ErrInvalidField, err)
	}
	return c.update("preset:"+name, func(cfg *Config) { *cfg = preset }), nil
}

// SelectVersion решает, какой бэкенд обслужит вызов.
// Для известного пользователя выбор детерминирован: одна и та же корзина при одинаковой конфигурации.
func (c *Controller) SelectVersion(userID string) Version {
	return c.selectFrom(c.Snapshot(), userID)
}

func (c *Controller) selectFrom(cfg Config, userID string) Version {
	if cfg.ForceNewInDev {
		return VersionNext
	}
	if !cfg.NewBackendEnabled {
		return VersionLegacy
	}
	var value int
	if userID != "" {
		value = UserBucket(userID)
	} else {
		value = c.bucket()
	}
	if value < cfg.RolloutPercentage {
		return VersionNext
	}
	return VersionLegacy
}

// UserBucket переводит ID пользователя в число [0,100).
// Хэш h = h*31 + c по UTF-16 кодам в int32, как у клиентских приложений, чтобы корзины совпадали.
func UserBucket(userID string) int {
	var h int32
	for _, unit := range utf16.Encode([]rune(userID)) {
		h = (h << 5) - h + int32(unit)
	}
	v := int64(h)
	if v < 0 {
		v = -v
	}
	return int(v % 100)
}

// Path - одна ветка исполнения. Call == nil означает, что провайдер не настроен.
type Path[T any] struct {
	Provider string
	Call     func(ctx context.Context) (T, error)
}

// Result - результат исполнения с метаданными выбора.
type Result[T any] struct {
	Value        T
	VersionUsed  Version
	Provider     string
	WasError     bool
	ErrorMessage string
	Duration     time.Duration
}

// FallbackError - обе ветки отказали. Сообщение содержит обе причины.
type FallbackError struct {
	Primary  error
	Fallback error
}

func (e *FallbackError) Error() string {
	return fmt.Sprintf("primary backend failed: %v; legacy fallback failed: %v", e.Primary, e.Fallback)
}

func (e *FallbackError) Unwrap() []error { return []error{e.Primary, e.Fallback} }

// Execute исполняет операцию через контроллер.
// Сбой новой ветки при включенном fallback уходит в legacy с WasError=true,
// при выключенном fallback исходная ошибка возвращается как есть.
// Сбой legacy, выбранной первой, возвращается без повторов.
func Execute[T any](ctx context.Context, c *Controller, op, userID string, timeout time.Duration, legacy, next Path[T]) (Result[T], error) {
	start := time.Now()
	cfg := c.Snapshot()

	version := c.selectFrom(cfg, userID)
	// Ненастроенная ветка заменяется другой, только если конфигурация сама допускает эту ветку.
	if version == VersionNext && next.Call == nil && cfg.FallbackToLegacy {
		version = VersionLegacy
	}
	if version == VersionLegacy && legacy.Call == nil && next.Call != nil && cfg.NewBackendEnabled {
		version = VersionNext
	}

	primary, secondary := legacy, Path[T]{}
	if version == VersionNext {
		primary = next
		if cfg.FallbackToLegacy {
			secondary = legacy
		}
	}
	if primary.Call == nil {
		return Result[T]{}, fmt.Errorf("%w: no %s provider configured for %s", models.ErrMisconfigured, c.kind, op)
	}

	value, err := runWithTimeout(ctx, timeout, primary.Call)
	if err == nil {
		res := Result[T]{Value: value, VersionUsed: version, Provider: primary.Provider, Duration: time.Since(start)}
		record(c, op, userID, res, nil)
		return res, nil
	}

	if version == VersionLegacy || secondary.Call == nil {
		res := Result[T]{VersionUsed: version, Provider: primary.Provider, WasError: true, ErrorMessage: err.Error(), Duration: time.Since(start)}
		record(c, op, userID, res, err)
		return res, err
	}

	c.logger.Warn("Next-gen backend failed, falling back to legacy",
		zap.String("operation", op),
		zap.String("provider", primary.Provider),
		logger.UserField(userID),
		zap.Error(err))
	fallbackTotal.WithLabelValues(c.kind, op).Inc()

	fbValue, fbErr := runWithTimeout(ctx, timeout, secondary.Call)
	if fbErr != nil {
		total := &FallbackError{Primary: err, Fallback: fbErr}
		res := Result[T]{VersionUsed: VersionLegacy, Provider: secondary.Provider, WasError: true, ErrorMessage: total.Error(), Duration: time.Since(start)}
		record(c, op, userID, res, total)
		return res, total
	}

	res := Result[T]{
		Value:        fbValue,
		VersionUsed:  VersionLegacy,
		Provider:     secondary.Provider,
		WasError:     true,
		ErrorMessage: err.Error(),
		Duration:     time.Since(start),
	}
	record(c, op, userID, res, nil)
	return res, nil
}

func runWithTimeout[T any](ctx context.Context, timeout time.Duration, call func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return call(ctx)
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	v, err := call(callCtx)
	if err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, models.ErrTimeout) {
		err = fmt.Errorf("%w: %v", models.ErrTimeout, err)
	}
	return v, err
}

func record[T any](c *Controller, op, userID string, res Result[T], err error) {
	status := "success"
	switch {
	case err != nil:
		status = "error"
	case res.WasError:
		status = "fallback"
	}
	executionsTotal.WithLabelValues(c.kind, op, string(res.VersionUsed), status).Inc()
	executionDuration.WithLabelValues(c.kind, op, string(res.VersionUsed)).Observe(res.Duration.Seconds())

	if !c.Snapshot().LoggingEnabled {
		return
	}
	fields := []zap.Field{
		zap.String("operation", op),
		zap.String("version", string(res.VersionUsed)),
		zap.String("provider", res.Provider),
		zap.Bool("was_error", res.WasError),
		zap.Duration("duration", res.Duration),
		logger.UserField(userID),
	}
	if err != nil {
		c.logger.Error("AI operation failed", append(fields, zap.Error(err))...)
		return
	}
	c.logger.Info("AI operation executed", fields...)
}
