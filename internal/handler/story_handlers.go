package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"storybook-server/internal/assets"
	"storybook-server/internal/service"
	"storybook-server/shared/logger"
	"storybook-server/shared/middleware"
	"storybook-server/shared/models"
)

func (h *Handler) createStory(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var req CreateStoryRequest
	if !bindJSON(c, &req) {
		return
	}
	params, err := req.toParams()
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	res, err := h.stories.CreateStory(c.Request.Context(), user, service.CreateStoryInput{
		Params:         params,
		IdempotencyKey: c.GetHeader("Idempotency-Key"),
	})
	if err != nil {
		h.logger.Warn("Create story failed", logger.UserField(user.ID), zap.Error(err))
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, CreateStoryResponse{
		Story:    res.Story,
		Segment:  res.FirstSegment,
		Cost:     res.Quote,
		Provider: res.Provider,
		Version:  res.Version,
	})
}

func (h *Handler) generateSegment(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var req GenerateSegmentRequest
	if !bindJSON(c, &req) {
		return
	}
	storyID, ok := parseStoryID(c, req.StoryID)
	if !ok {
		return
	}

	res, err := h.stories.GenerateSegment(c.Request.Context(), user, service.GenerateSegmentInput{
		StoryID:     storyID,
		ChoiceIndex: req.ChoiceIndex,
	})
	if err != nil {
		h.logger.Warn("Generate segment failed",
			logger.UserField(user.ID), zap.String("story_id", storyID.String()), zap.Error(err))
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, GenerateSegmentResponse{
		Segment:  res.Segment,
		Story:    res.Story,
		Provider: res.Provider,
		Version:  res.Version,
	})
}

func (h *Handler) getStory(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var req StoryIDRequest
	if !bindJSON(c, &req) {
		return
	}
	storyID, ok := parseStoryID(c, req.StoryID)
	if !ok {
		return
	}

	story, err := h.stories.GetStory(c.Request.Context(), user, storyID)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, story)
}

func (h *Handler) listStories(c *gin.Context) {
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
	includeSegments, _ := strconv.ParseBool(c.DefaultQuery("include_segments", "false"))

	page, applied, err := h.stories.ListStories(c.Request.Context(), user, models.StoryFilter{
		Status:          models.StoryStatusFilter(strings.ToLower(c.Query("status"))),
		Genre:           c.Query("genre"),
		IncludeSegments: includeSegments,
		Limit:           limit,
		Offset:          offset,
	})
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	stories := page.Stories
	if stories == nil {
		stories = []models.Story{}
	}
	c.JSON(http.StatusOK, ListStoriesResponse{
		Stories:  stories,
		PageInfo: models.NewPageInfo(page.Total, applied.Limit, applied.Offset),
	})
}

func (h *Handler) requestImage(c *gin.Context) {
	h.requestAsset(c, models.AssetKindImage)
}

func (h *Handler) requestAudio(c *gin.Context) {
	h.requestAsset(c, models.AssetKindAudio)
}

func (h *Handler) requestAsset(c *gin.Context, kind models.AssetKind) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	segmentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		middleware.AbortWithError(c, models.ValidationError("id", false))
		return
	}
	var req AssetRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}

	seg, err := h.stories.RequestAsset(c.Request.Context(), user, segmentID, kind, assets.EnqueueOptions{
		Voice:     req.Voice,
		StoryType: req.StoryType,
	})
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, seg)
}

func parseStoryID(c *gin.Context, raw string) (uuid.UUID, bool) {
	if strings.TrimSpace(raw) == "" {
		middleware.AbortWithError(c, models.ValidationError("storyId", true))
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		middleware.AbortWithError(c, models.ValidationError("storyId", false))
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(c *gin.Context, key string) (int, error) {
	v := c.Query(key)
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}
