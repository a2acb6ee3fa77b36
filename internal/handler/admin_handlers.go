package handler

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"storybook-server/internal/rollout"
	"storybook-server/shared/middleware"
	"storybook-server/shared/models"
)

const defaultRolloutStep = 10

func (h *Handler) controller(c *gin.Context) (*rollout.Controller, bool) {
	kind := strings.ToLower(c.Param("kind"))
	ctrl, ok := h.migrations[kind]
	if !ok {
		middleware.AbortWithError(c, fmt.Errorf("%w: unknown migration kind %q", models.ErrNotFound, kind))
		return nil, false
	}
	return ctrl, true
}

func (h *Handler) migrationStatus(c *gin.Context, ctrl *rollout.Controller, cfg rollout.Config) {
	c.JSON(http.StatusOK, MigrationStatusResponse{
		Kind:    ctrl.Kind(),
		Config:  cfg,
		Presets: rollout.PresetNames(),
	})
}

func (h *Handler) getMigration(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}
	h.migrationStatus(c, ctrl, ctrl.Snapshot())
}

func (h *Handler) changeRollout(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}
	var req RolloutRequest
	if !bindJSON(c, &req) {
		return
	}
	step := req.Step
	if step == 0 {
		step = defaultRolloutStep
	}
	if step < 0 {
		middleware.AbortWithError(c, models.ValidationError("step", false))
		return
	}

	var cfg rollout.Config
	switch strings.ToLower(req.Action) {
	case "increase":
		cfg = ctrl.IncreaseRollout(step)
	case "decrease":
		cfg = ctrl.DecreaseRollout(step)
	default:
		middleware.AbortWithError(c, models.ValidationError("action", req.Action == ""))
		return
	}
	h.auditLog(c, ctrl, "rollout_"+strings.ToLower(req.Action))
	h.migrationStatus(c, ctrl, cfg)
}

func (h *Handler) applyPreset(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}
	var req PresetRequest
	if !bindJSON(c, &req) {
		return
	}
	cfg, err := ctrl.ApplyPreset(req.Name)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	h.auditLog(c, ctrl, "preset_"+req.Name)
	h.migrationStatus(c, ctrl, cfg)
}

func (h *Handler) emergencyFallback(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}
	cfg := ctrl.EmergencyFallback()
	h.auditLog(c, ctrl, "emergency_fallback")
	h.migrationStatus(c, ctrl, cfg)
}

func (h *Handler) completeMigration(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}
	cfg := ctrl.CompleteMigration()
	h.auditLog(c, ctrl, "complete_migration")
	h.migrationStatus(c, ctrl, cfg)
}

func (h *Handler) auditLog(c *gin.Context, ctrl *rollout.Controller, action string) {
	admin, _ := middleware.GetUser(c)
	h.logger.Info("Migration admin action",
		zap.String("kind", ctrl.Kind()),
		zap.String("action", action),
		zap.String("admin_id", admin.ID))
}
