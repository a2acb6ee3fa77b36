package rollout

import (
	"fmt"
	"strings"
)

// Config - состояние миграции одного семейства AI операций.
type Config struct {
	NewBackendEnabled bool `json:"newBackendEnabled"`
	RolloutPercentage int  `json:"rolloutPercentage"`
	FallbackToLegacy  bool `json:"fallbackToLegacy"`
	ForceNewInDev     bool `json:"forceNewInDev"`
	LoggingEnabled    bool `json:"loggingEnabled"`
}

// DefaultConfig - консервативные настройки при старте процесса: только legacy.
func DefaultConfig() Config {
	return Config{
		NewBackendEnabled: false,
		RolloutPercentage: 0,
		FallbackToLegacy:  true,
		ForceNewInDev:     false,
		LoggingEnabled:    true,
	}
}

// Имена пресетов.
const (
	PresetDevelopment = "development"
	PresetBeta        = "beta"
	PresetGradual     = "gradual"
	PresetFull        = "full"
	PresetEmergency   = "emergency"
)

var presets = map[string]Config{
	PresetDevelopment: {NewBackendEnabled: true, RolloutPercentage: 100, FallbackToLegacy: true, ForceNewInDev: true, LoggingEnabled: true},
	PresetBeta:        {NewBackendEnabled: true, RolloutPercentage: 10, FallbackToLegacy: true, ForceNewInDev: false, LoggingEnabled: true},
	PresetGradual:     {NewBackendEnabled: true, RolloutPercentage: 50, FallbackToLegacy: true, ForceNewInDev: false, LoggingEnabled: true},
	PresetFull:        {NewBackendEnabled: true, RolloutPercentage: 100, FallbackToLegacy: true, ForceNewInDev: false, LoggingEnabled: false},
	PresetEmergency:   {NewBackendEnabled: false, RolloutPercentage: 0, FallbackToLegacy: true, ForceNewInDev: false, LoggingEnabled: true},
}

// PresetConfig возвращает конфигурацию пресета по имени.
func PresetConfig(name string) (Config, error) {
	cfg, ok := presets[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Config{}, fmt.Errorf("unknown rollout preset %q", name)
	}
	return cfg, nil
}

// PresetNames возвращает имена пресетов в фиксированном порядке.
func PresetNames() []string {
	return []string{PresetDevelopment, PresetBeta, PresetGradual, PresetFull, PresetEmergency}
}

func clampPercentage(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
