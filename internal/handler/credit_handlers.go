package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"storybook-server/internal/ledger"
	"storybook-server/shared/logger"
	"storybook-server/shared/middleware"
	"storybook-server/shared/models"
)

func (h *Handler) getBalance(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	acc, err := h.credits.GetAccount(c.Request.Context(), user.ID)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, acc)
}

func (h *Handler) listTransactions(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	limit, err1 := queryInt(c, "limit")
	offset, err2 := queryInt(c, "offset")
	if err1 != nil || err2 != nil {
		middleware.AbortWithError(c, models.ValidationError("limit/offset", false))
		return
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	txs, total, err := h.credits.Transactions(c.Request.Context(), user.ID, limit, offset)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	if txs == nil {
		txs = []models.CreditTransaction{}
	}
	c.JSON(http.StatusOK, TransactionsResponse{
		Transactions: txs,
		PageInfo:     models.NewPageInfo(total, limit, offset),
	})
}

// quote использует ту же функцию, что и списание при создании истории.
func (h *Handler) quote(c *gin.Context) {
	var req QuoteRequest
	if !bindJSON(c, &req) {
		return
	}
	length, ok := models.ParseStoryLength(req.StoryType)
	if !ok {
		middleware.AbortWithError(c, models.ValidationError("storyType", false))
		return
	}
	c.JSON(http.StatusOK, ledger.Quote(length, req.IncludeImages, req.IncludeAudio))
}

func (h *Handler) grantCredits(c *gin.Context) {
	admin, ok := currentUser(c)
	if !ok {
		return
	}
	var req GrantRequest
	if !bindJSON(c, &req) {
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		middleware.AbortWithError(c, models.ValidationError("userId", true))
		return
	}
	reason := models.CreditReason(req.Reason)
	if reason == "" {
		reason = models.ReasonAdminGrant
	}
	var ref *string
	if r := strings.TrimSpace(req.Reference); r != "" {
		ref = &r
	}

	tx, err := h.credits.Grant(c.Request.Context(), req.UserID, req.Amount, reason, ref)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	h.logger.Info("Credits granted by admin",
		zap.String("admin_id", admin.ID), logger.UserField(req.UserID), zap.Int64("amount", req.Amount))
	c.JSON(http.StatusCreated, tx)
}
