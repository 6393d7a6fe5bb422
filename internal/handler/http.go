package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/hanzidex/hanzidex/internal/models"
	"github.com/hanzidex/hanzidex/internal/service"
	"github.com/hanzidex/hanzidex/pkg/utils"
)

// Service is what the HTTP layer needs from the application core.
type Service interface {
	RegisterUser(ctx context.Context, username string) (*models.User, error)
	GetUser(ctx context.Context, userID int64) (*models.User, error)
	LinkTelegram(ctx context.Context, userID, chatID int64) error

	GetItem(ctx context.Context, userID int64, value string) (*models.ItemWithStatus, error)
	ListItemsByStatus(ctx context.Context, userID int64, status models.ItemStatus) ([]*models.ItemWithStatus, error)
	Discover(ctx context.Context, userID int64, value string, now time.Time) (*service.DiscoverResult, error)
	GenerateDailyDiscoverables(ctx context.Context, userID int64) ([]*models.Item, error)

	ListItemSkills(ctx context.Context, userID, itemID int64, now time.Time) ([]*service.SkillView, error)
	TrainSkill(ctx context.Context, userID, itemID int64, skillCode, rating string, durationMs *int, now time.Time) (*service.TrainResult, error)
	Undo(ctx context.Context, userID, itemID int64, skillCode string, now time.Time) (*service.UndoResult, error)
	SuspendSkill(ctx context.Context, userID, itemID int64, skillCode string, suspended bool) error
	BuildQueue(ctx context.Context, userID int64, now time.Time) (*service.Queue, error)
	SubmitBatch(ctx context.Context, userID int64, events []service.BatchEvent, now time.Time) (int, error)

	GetOptions(ctx context.Context, userID int64) (*models.UserOptions, error)
	SaveOptions(ctx context.Context, opts *models.UserOptions) (*models.UserOptions, error)
	Stats(ctx context.Context, userID int64, now time.Time) (*service.StatsOverview, error)
	StatsDaily(ctx context.Context, userID int64, days int, now time.Time) ([]*models.DailyStat, error)
	ExportReviews(ctx context.Context, userID int64, days int, now time.Time) ([]models.ReviewEvent, error)
	ImportReviews(ctx context.Context, userID int64, events []models.ReviewEvent, dryRun bool) (int, error)
}

type HTTPHandler struct {
	service Service
	now     func() time.Time
}

func NewHTTPHandler(service Service) *HTTPHandler {
	return &HTTPHandler{service: service, now: utils.NowUTC}
}

// NewRouter builds the gin engine with all API routes registered.
func NewRouter(service Service) *gin.Engine {
	h := NewHTTPHandler(service)
	router := gin.New()
	router.Use(gin.Recovery())
	h.registerRoutes(router)
	return router
}

func (h *HTTPHandler) registerRoutes(router *gin.Engine) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.POST("/api/users", h.handleRegister)

	api := router.Group("/api", h.requireUser)

	api.GET("/users/me", h.handleGetUser)
	api.POST("/users/telegram", h.handleLinkTelegram)

	api.POST("/discover", h.handleDiscover)
	api.GET("/items", h.handleListItems)
	api.GET("/items/:value", h.handleGetItem)
	api.GET("/items/:value/skills", h.handleListSkills)
	api.POST("/items/:value/skills/:skill/train", h.handleTrain)
	api.POST("/items/:value/skills/:skill/undo", h.handleUndo)
	api.POST("/items/:value/skills/:skill/suspend", h.handleSuspend)
	api.POST("/generate-discoverables", h.handleGenerateDiscoverables)

	api.GET("/queue", h.handleQueue)
	api.POST("/reviews/batch", h.handleBatch)
	api.GET("/reviews/export", h.handleExport)
	api.POST("/reviews/import", h.handleImport)

	api.GET("/options", h.handleGetOptions)
	api.PUT("/options", h.handleSaveOptions)
	api.GET("/stats/overview", h.handleStats)
	api.GET("/stats/daily", h.handleStatsDaily)
}

// requireUser resolves the acting user from the X-User-ID header.
func (h *HTTPHandler) requireUser(c *gin.Context) {
	raw := c.GetHeader("X-User-ID")
	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || userID <= 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "X-User-ID header required"})
		return
	}
	c.Set("user_id", userID)
	c.Next()
}

func userID(c *gin.Context) int64 {
	return c.GetInt64("user_id")
}

func (h *HTTPHandler) handleRegister(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Username == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username required"})
		return
	}
	user, err := h.service.RegisterUser(c.Request.Context(), req.Username)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

func (h *HTTPHandler) handleGetUser(c *gin.Context) {
	user, err := h.service.GetUser(c.Request.Context(), userID(c))
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *HTTPHandler) handleLinkTelegram(c *gin.Context) {
	var req struct {
		ChatID int64 `json:"chat_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	if err := h.service.LinkTelegram(c.Request.Context(), userID(c), req.ChatID); err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"linked": true})
}

func (h *HTTPHandler) handleDiscover(c *gin.Context) {
	var req struct {
		Value string `json:"value"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	result, err := h.service.Discover(c.Request.Context(), userID(c), req.Value, h.now())
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *HTTPHandler) handleListItems(c *gin.Context) {
	status := models.ItemStatus(c.DefaultQuery("status", string(models.StatusDiscovered)))
	switch status {
	case models.StatusLocked, models.StatusDiscoverable, models.StatusDiscovered:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status"})
		return
	}
	items, err := h.service.ListItemsByStatus(c.Request.Context(), userID(c), status)
	if err != nil {
		h.renderError(c, err)
		return
	}
	if items == nil {
		items = []*models.ItemWithStatus{}
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *HTTPHandler) handleGetItem(c *gin.Context) {
	item, err := h.service.GetItem(c.Request.Context(), userID(c), c.Param("value"))
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (h *HTTPHandler) handleListSkills(c *gin.Context) {
	ctx := c.Request.Context()
	uid := userID(c)
	item, err := h.service.GetItem(ctx, uid, c.Param("value"))
	if err != nil {
		h.renderError(c, err)
		return
	}
	skills, err := h.service.ListItemSkills(ctx, uid, item.ID, h.now())
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"value": item.Value, "skills": skills})
}

func (h *HTTPHandler) handleTrain(c *gin.Context) {
	var req struct {
		Rating     string `json:"rating"`
		DurationMs *int   `json:"duration_ms"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Rating == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "rating required"})
		return
	}
	ctx := c.Request.Context()
	uid := userID(c)
	item, err := h.service.GetItem(ctx, uid, c.Param("value"))
	if err != nil {
		h.renderError(c, err)
		return
	}
	result, err := h.service.TrainSkill(ctx, uid, item.ID, c.Param("skill"), req.Rating, req.DurationMs, h.now())
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *HTTPHandler) handleUndo(c *gin.Context) {
	ctx := c.Request.Context()
	uid := userID(c)
	item, err := h.service.GetItem(ctx, uid, c.Param("value"))
	if err != nil {
		h.renderError(c, err)
		return
	}
	result, err := h.service.Undo(ctx, uid, item.ID, c.Param("skill"), h.now())
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *HTTPHandler) handleSuspend(c *gin.Context) {
	var req struct {
		Suspended bool `json:"suspended"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	ctx := c.Request.Context()
	uid := userID(c)
	item, err := h.service.GetItem(ctx, uid, c.Param("value"))
	if err != nil {
		h.renderError(c, err)
		return
	}
	if err := h.service.SuspendSkill(ctx, uid, item.ID, c.Param("skill"), req.Suspended); err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"suspended": req.Suspended})
}

func (h *HTTPHandler) handleGenerateDiscoverables(c *gin.Context) {
	items, err := h.service.GenerateDailyDiscoverables(c.Request.Context(), userID(c))
	if err != nil {
		h.renderError(c, err)
		return
	}
	if items == nil {
		items = []*models.Item{}
	}
	c.JSON(http.StatusOK, gin.H{"generated": items})
}

func (h *HTTPHandler) handleQueue(c *gin.Context) {
	queue, err := h.service.BuildQueue(c.Request.Context(), userID(c), h.now())
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, queue)
}

func (h *HTTPHandler) handleBatch(c *gin.Context) {
	var req struct {
		Events []service.BatchEvent `json:"events"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	processed, err := h.service.SubmitBatch(c.Request.Context(), userID(c), req.Events, h.now())
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"processed": processed})
}

func (h *HTTPHandler) handleExport(c *gin.Context) {
	days, _ := strconv.Atoi(c.DefaultQuery("days", "0"))
	events, err := h.service.ExportReviews(c.Request.Context(), userID(c), days, h.now())
	if err != nil {
		h.renderError(c, err)
		return
	}
	if c.Query("format") == "csv" {
		h.renderCSV(c, events)
		return
	}
	if events == nil {
		events = []models.ReviewEvent{}
	}
	c.JSON(http.StatusOK, gin.H{"reviews": events})
}

func (h *HTTPHandler) handleImport(c *gin.Context) {
	var req struct {
		Reviews []models.ReviewEvent `json:"reviews"`
		DryRun  bool                 `json:"dry_run"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	inserted, err := h.service.ImportReviews(c.Request.Context(), userID(c), req.Reviews, req.DryRun)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"imported": inserted, "dry_run": req.DryRun})
}

func (h *HTTPHandler) handleGetOptions(c *gin.Context) {
	opts, err := h.service.GetOptions(c.Request.Context(), userID(c))
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, opts)
}

func (h *HTTPHandler) handleSaveOptions(c *gin.Context) {
	uid := userID(c)
	opts, err := h.service.GetOptions(c.Request.Context(), uid)
	if err != nil {
		h.renderError(c, err)
		return
	}
	if err := c.ShouldBindJSON(opts); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	opts.UserID = uid
	saved, err := h.service.SaveOptions(c.Request.Context(), opts)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, saved)
}

func (h *HTTPHandler) handleStats(c *gin.Context) {
	overview, err := h.service.Stats(c.Request.Context(), userID(c), h.now())
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, overview)
}

func (h *HTTPHandler) handleStatsDaily(c *gin.Context) {
	days, _ := strconv.Atoi(c.DefaultQuery("days", "30"))
	series, err := h.service.StatsDaily(c.Request.Context(), userID(c), days, h.now())
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"days": len(series), "series": series})
}

func (h *HTTPHandler) renderError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrNotDiscovered):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	default:
		zap.S().Errorw("request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
