package handler

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/eidos-exchange/eidos/eidos-retention/internal/model"
	"github.com/eidos-exchange/eidos/eidos-retention/internal/retention"
)

const (
	defaultTrendDays    = 7
	defaultHistoryLimit = 20
)

// RetentionService 数据保留服务接口, 实现见 internal/retention
type RetentionService interface {
	RunManual(ctx context.Context, dataType *model.DataType, dryRun bool) (*model.FullCleanupResult, error)
	GetStatistics(ctx context.Context) (map[model.DataType]*model.DataStatistics, error)
	GetMetrics() (model.RetentionMetrics, error)
	RecentResults(limit int) ([]*model.CleanupResult, error)
	GetStorageUsage(ctx context.Context) (*model.StorageUsage, error)
	GetGrowthTrend(dataType model.DataType, days int) ([]model.GrowthPoint, error)
	ListArchives(ctx context.Context, dataType *model.DataType) ([]model.ArchiveInfo, error)
	IsSchedulerRunning() bool
	NextRun() time.Time
}

// SchedulerStatus 调度器状态
type SchedulerStatus struct {
	Running bool       `json:"running"`
	NextRun *time.Time `json:"next_run,omitempty"`
}

// RetentionHandler 数据保留管理接口
type RetentionHandler struct {
	svc RetentionService
}

// NewRetentionHandler 创建处理器
func NewRetentionHandler(svc RetentionService) *RetentionHandler {
	return &RetentionHandler{svc: svc}
}

// RegisterRoutes 注册路由
func (h *RetentionHandler) RegisterRoutes(r gin.IRouter) {
	g := r.Group("/retention")
	g.GET("/statistics", h.GetStatistics)
	g.GET("/metrics", h.GetMetrics)
	g.GET("/history", h.GetHistory)
	g.GET("/storage", h.GetStorageUsage)
	g.GET("/growth", h.GetGrowthTrend)
	g.GET("/archives", h.ListArchives)
	g.GET("/scheduler", h.GetScheduler)
	g.POST("/run", h.Run)
}

// GetStatistics 在线数据分层统计
// GET /retention/statistics
func (h *RetentionHandler) GetStatistics(c *gin.Context) {
	stats, err := h.svc.GetStatistics(c.Request.Context())
	if err != nil {
		handleServiceError(c, err)
		return
	}
	Success(c, stats)
}

// GetMetrics 运行指标
// GET /retention/metrics
func (h *RetentionHandler) GetMetrics(c *gin.Context) {
	metrics, err := h.svc.GetMetrics()
	if err != nil {
		handleServiceError(c, err)
		return
	}
	Success(c, metrics)
}

// GetHistory 最近的清理结果
// GET /retention/history?limit=20
func (h *RetentionHandler) GetHistory(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultHistoryLimit)))
	if err != nil || limit <= 0 {
		BadRequest(c, "limit must be a positive integer")
		return
	}
	results, err := h.svc.RecentResults(limit)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	Success(c, results)
}

// GetStorageUsage 归档存储占用
// GET /retention/storage
func (h *RetentionHandler) GetStorageUsage(c *gin.Context) {
	usage, err := h.svc.GetStorageUsage(c.Request.Context())
	if err != nil {
		handleServiceError(c, err)
		return
	}
	Success(c, usage)
}

// GetGrowthTrend 数据增长趋势
// GET /retention/growth?data_type=raw_candles&days=7
func (h *RetentionHandler) GetGrowthTrend(c *gin.Context) {
	dataType, ok := h.requiredDataType(c)
	if !ok {
		return
	}
	days, err := strconv.Atoi(c.DefaultQuery("days", strconv.Itoa(defaultTrendDays)))
	if err != nil || days <= 0 {
		BadRequest(c, "days must be a positive integer")
		return
	}

	points, err := h.svc.GetGrowthTrend(dataType, days)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	Success(c, points)
}

// ListArchives 归档列表
// GET /retention/archives?data_type=signals
func (h *RetentionHandler) ListArchives(c *gin.Context) {
	dataType, ok := h.optionalDataType(c)
	if !ok {
		return
	}
	archives, err := h.svc.ListArchives(c.Request.Context(), dataType)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	Success(c, archives)
}

// GetScheduler 调度器状态
// GET /retention/scheduler
func (h *RetentionHandler) GetScheduler(c *gin.Context) {
	status := SchedulerStatus{Running: h.svc.IsSchedulerRunning()}
	if next := h.svc.NextRun(); !next.IsZero() {
		status.NextRun = &next
	}
	Success(c, status)
}

// Run 手动执行清理
// POST /retention/run?data_type=signals&dry_run=true
func (h *RetentionHandler) Run(c *gin.Context) {
	dataType, ok := h.optionalDataType(c)
	if !ok {
		return
	}
	dryRun, err := strconv.ParseBool(c.DefaultQuery("dry_run", "false"))
	if err != nil {
		BadRequest(c, "dry_run must be a boolean")
		return
	}

	result, err := h.svc.RunManual(c.Request.Context(), dataType, dryRun)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	Success(c, result)
}

func (h *RetentionHandler) optionalDataType(c *gin.Context) (*model.DataType, bool) {
	raw := c.Query("data_type")
	if raw == "" {
		return nil, true
	}
	dt, err := model.ParseDataType(raw)
	if err != nil {
		BadRequest(c, err.Error())
		return nil, false
	}
	return &dt, true
}

func (h *RetentionHandler) requiredDataType(c *gin.Context) (model.DataType, bool) {
	raw := c.Query("data_type")
	if raw == "" {
		BadRequest(c, "data_type is required")
		return "", false
	}
	dt, err := model.ParseDataType(raw)
	if err != nil {
		BadRequest(c, err.Error())
		return "", false
	}
	return dt, true
}

var _ RetentionService = (*retention.Service)(nil)
