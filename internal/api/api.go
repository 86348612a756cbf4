// Package api serves the read-only HTTP view of the pipeline's data and the
// live websocket feed.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"csgo-arbitrage/internal/metrics"
	"csgo-arbitrage/internal/models"
	"csgo-arbitrage/internal/store"
)

// Reader is the subset of the store the API reads.
type Reader interface {
	ListItems(ctx context.Context) ([]models.Item, error)
	GetItem(ctx context.Context, itemID uint) (*models.Item, error)
	LatestSteamSnapshot(ctx context.Context, itemID uint) (*models.SteamSnapshot, error)
	LatestBuffSnapshot(ctx context.Context, itemID uint) (*models.BuffSnapshot, error)
	SteamHistory(ctx context.Context, itemID uint, since time.Time) ([]models.SteamSnapshot, error)
	BuffHistory(ctx context.Context, itemID uint, since time.Time) ([]models.BuffSnapshot, error)
	FetchLogSummary(ctx context.Context, since time.Time) ([]store.FetchLogStat, error)
	LatestCandidates(ctx context.Context, filter store.CandidateFilter) ([]models.TradeCandidate, error)
}

const (
	defaultHistoryDays = 7
	maxHistoryDays     = 90
	defaultLimit       = 50
	maxLimit           = 500
)

// APIHandler API处理器
type APIHandler struct {
	store Reader
	log   *zap.Logger
	now   func() time.Time
}

// NewRouter builds the gin engine with every route mounted.
func NewRouter(reader Reader, hub *Hub, log *zap.Logger) *gin.Engine {
	if log == nil {
		log = zap.NewNop()
	}
	r := gin.New()
	r.Use(gin.Recovery(), metrics.GinMiddleware(), corsMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	if hub != nil {
		r.GET("/ws", hub.HandleWS)
	}
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	SetupRoutes(r.Group("/api/v1"), reader, log)
	return r
}

// SetupRoutes 注册 /api/v1 路由
func SetupRoutes(r *gin.RouterGroup, reader Reader, log *zap.Logger) *APIHandler {
	handler := &APIHandler{store: reader, log: log.Named("api"), now: time.Now}

	items := r.Group("/items")
	{
		items.GET("", handler.ListItems)
		items.GET("/:id/history", handler.GetItemHistory)
	}
	r.GET("/candidates", handler.ListCandidates)
	r.GET("/fetch-logs/summary", handler.FetchLogSummary)
	return handler
}

type itemView struct {
	models.Item
	LatestSteam *models.SteamSnapshot `json:"latest_steam"`
	LatestBuff  *models.BuffSnapshot  `json:"latest_buff"`
}

// ListItems 所有追踪的商品及其最新快照
func (h *APIHandler) ListItems(c *gin.Context) {
	ctx := c.Request.Context()
	items, err := h.store.ListItems(ctx)
	if err != nil {
		h.dbError(c, err)
		return
	}

	out := make([]itemView, 0, len(items))
	for _, it := range items {
		v := itemView{Item: it}
		if v.LatestSteam, err = h.store.LatestSteamSnapshot(ctx, it.ItemID); err != nil {
			h.dbError(c, err)
			return
		}
		if v.LatestBuff, err = h.store.LatestBuffSnapshot(ctx, it.ItemID); err != nil {
			h.dbError(c, err)
			return
		}
		if v.LatestSteam != nil {
			v.LatestSteam.RawResponse = nil
		}
		if v.LatestBuff != nil {
			v.LatestBuff.RawResponse = nil
		}
		out = append(out, v)
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "msg": "ok", "data": out})
}

// GetItemHistory Steam/Buff 快照历史 ?days=
func (h *APIHandler) GetItemHistory(c *gin.Context) {
	ctx := c.Request.Context()
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	days, err := boundedInt(c.Query("days"), defaultHistoryDays, maxHistoryDays)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid days"})
		return
	}

	item, err := h.store.GetItem(ctx, uint(id))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "item not found"})
		return
	}
	if err != nil {
		h.dbError(c, err)
		return
	}

	since := h.now().UTC().AddDate(0, 0, -days)
	steam, err := h.store.SteamHistory(ctx, item.ItemID, since)
	if err != nil {
		h.dbError(c, err)
		return
	}
	buff, err := h.store.BuffHistory(ctx, item.ItemID, since)
	if err != nil {
		h.dbError(c, err)
		return
	}
	for i := range steam {
		steam[i].RawResponse = nil
	}
	for i := range buff {
		buff[i].RawResponse = nil
	}
	if steam == nil {
		steam = []models.SteamSnapshot{}
	}
	if buff == nil {
		buff = []models.BuffSnapshot{}
	}

	c.JSON(http.StatusOK, gin.H{"code": 200, "msg": "ok", "data": gin.H{
		"item":  item,
		"days":  days,
		"steam": steam,
		"buff":  buff,
	}})
}

// ListCandidates 每个商品最近一次评估 ?action=&limit=
func (h *APIHandler) ListCandidates(c *gin.Context) {
	action := models.Action(strings.ToLower(strings.TrimSpace(c.Query("action"))))
	switch action {
	case "", models.ActionSkip, models.ActionMonitor, models.ActionCandidate:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "action must be one of skip, monitor, candidate"})
		return
	}
	limit, err := boundedInt(c.Query("limit"), defaultLimit, maxLimit)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}

	out, err := h.store.LatestCandidates(c.Request.Context(), store.CandidateFilter{Action: action, Limit: limit})
	if err != nil {
		h.dbError(c, err)
		return
	}
	if out == nil {
		out = []models.TradeCandidate{}
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "msg": "ok", "data": out})
}

// FetchLogSummary 按来源统计请求成功/失败 ?hours=
func (h *APIHandler) FetchLogSummary(c *gin.Context) {
	hours, err := boundedInt(c.Query("hours"), 24, 24*30)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid hours"})
		return
	}
	since := h.now().UTC().Add(-time.Duration(hours) * time.Hour)
	stats, err := h.store.FetchLogSummary(c.Request.Context(), since)
	if err != nil {
		h.dbError(c, err)
		return
	}
	if stats == nil {
		stats = []store.FetchLogStat{}
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "msg": "ok", "hours": hours, "data": stats})
}

func (h *APIHandler) dbError(c *gin.Context, err error) {
	h.log.Error("store query failed", zap.String("path", c.FullPath()), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
}

// boundedInt parses a positive query value, capping it at max.
func boundedInt(raw string, def, max int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errors.New("not a positive integer")
	}
	if n > max {
		n = max
	}
	return n, nil
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
