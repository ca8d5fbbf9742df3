// Package monitoring 汇总清理与归档操作的运行指标
package monitoring

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/eidos-exchange/eidos/eidos-retention/internal/model"
)

const (
	defaultHistoryLimit = 100
	defaultGrowthLimit  = 720
)

// ArchiveLister 存储占用统计所需的归档列表
type ArchiveLister interface {
	ListArchives(ctx context.Context, dataType *model.DataType) ([]model.ArchiveInfo, error)
}

// Aggregator 运行指标聚合器
//
// 计数器为原子变量, 平均值、按类型指标、历史和增长序列由 mu 保护。
// 快照读取不加全局锁, 并发写入时可能观察到部分更新。
type Aggregator struct {
	archives   ArchiveLister
	collectors *collectors
	now        func() time.Time
	startedAt  time.Time

	historyLimit int
	growthLimit  int

	totalOps         atomic.Int64
	successOps       atomic.Int64
	failedOps        atomic.Int64
	dryRunOps        atomic.Int64
	recordsProcessed atomic.Int64
	recordsArchived  atomic.Int64
	recordsDeleted   atomic.Int64
	archivesCreated  atomic.Int64
	failedArchives   atomic.Int64
	archiveBytes     atomic.Int64

	mu                 sync.Mutex
	avgDurationMs      float64
	durationSamples    int64
	avgCompression     float64
	compressionSamples int64
	lastOperationAt    time.Time
	perType            map[model.DataType]*model.DataTypeMetrics
	compressionByType  map[model.DataType]int64
	history            []*model.CleanupResult
	growth             map[model.DataType][]model.GrowthPoint
}

// Option 聚合器选项
type Option func(*Aggregator)

// WithRegisterer 指定 Prometheus 注册器, 默认使用独立注册器
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(a *Aggregator) {
		a.collectors = newCollectors(reg)
	}
}

// WithClock 设置时钟
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		a.now = now
	}
}

// WithHistoryLimit 历史结果保留条数
func WithHistoryLimit(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.historyLimit = n
		}
	}
}

// WithGrowthLimit 每个数据类型的增长采样点上限
func WithGrowthLimit(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.growthLimit = n
		}
	}
}

// NewAggregator 创建聚合器, archives 为 nil 时存储占用为空
func NewAggregator(archives ArchiveLister, opts ...Option) *Aggregator {
	a := &Aggregator{
		archives:          archives,
		now:               time.Now,
		historyLimit:      defaultHistoryLimit,
		growthLimit:       defaultGrowthLimit,
		perType:           make(map[model.DataType]*model.DataTypeMetrics),
		compressionByType: make(map[model.DataType]int64),
		growth:            make(map[model.DataType][]model.GrowthPoint),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.collectors == nil {
		a.collectors = newCollectors(prometheus.NewRegistry())
	}
	a.startedAt = a.now()
	return a
}

func (a *Aggregator) typeMetrics(dt model.DataType) *model.DataTypeMetrics {
	m, ok := a.perType[dt]
	if !ok {
		m = &model.DataTypeMetrics{DataType: dt}
		a.perType[dt] = m
	}
	return m
}

// RecordCleanupOperation 记录一次清理结果
//
// dry-run 结果计入操作次数, 但不计入记录数。
func (a *Aggregator) RecordCleanupOperation(result *model.CleanupResult) {
	if result == nil {
		return
	}
	dt := result.DataType.String()
	op := string(result.Operation)

	a.totalOps.Add(1)
	status := "success"
	if result.Success {
		a.successOps.Add(1)
	} else {
		a.failedOps.Add(1)
		status = "failed"
	}
	if result.DryRun {
		a.dryRunOps.Add(1)
		if result.Success {
			status = "dry_run"
		}
	} else {
		a.recordsProcessed.Add(int64(result.RecordsProcessed))
		a.recordsArchived.Add(int64(result.RecordsArchived))
		a.recordsDeleted.Add(int64(result.RecordsDeleted))

		a.collectors.Records.WithLabelValues(dt, "processed").Add(float64(result.RecordsProcessed))
		a.collectors.Records.WithLabelValues(dt, "archived").Add(float64(result.RecordsArchived))
		a.collectors.Records.WithLabelValues(dt, "deleted").Add(float64(result.RecordsDeleted))
	}
	a.collectors.CleanupOperations.WithLabelValues(dt, op, status).Inc()
	a.collectors.CleanupDuration.WithLabelValues(dt, op).Observe(float64(result.DurationMs) / 1000)

	now := a.now()
	duration := float64(result.DurationMs)

	a.mu.Lock()
	defer a.mu.Unlock()

	a.durationSamples++
	a.avgDurationMs = runningMean(a.avgDurationMs, a.durationSamples, duration)
	a.lastOperationAt = now

	m := a.typeMetrics(result.DataType)
	m.Operations++
	m.AverageDurationMs = runningMean(m.AverageDurationMs, m.Operations, duration)
	m.LastRunAt = now
	if result.Success {
		m.SuccessfulOperations++
		m.LastSuccessAt = now
	} else {
		m.FailedOperations++
		m.LastError = result.Error
	}
	if !result.DryRun {
		m.RecordsProcessed += int64(result.RecordsProcessed)
		m.RecordsArchived += int64(result.RecordsArchived)
		m.RecordsDeleted += int64(result.RecordsDeleted)
	}

	a.history = append(a.history, result)
	if over := len(a.history) - a.historyLimit; over > 0 {
		a.history = append(a.history[:0:0], a.history[over:]...)
	}
}

// RecordArchiveOperation 记录一次归档写入
func (a *Aggregator) RecordArchiveOperation(result *model.ArchiveResult) {
	if result == nil {
		return
	}
	dt := result.DataType.String()

	if !result.Success {
		a.failedArchives.Add(1)
		a.collectors.ArchiveOperations.WithLabelValues(dt, "failed").Inc()
		return
	}
	if result.RecordCount == 0 {
		return
	}

	a.archivesCreated.Add(1)
	a.archiveBytes.Add(result.SizeBytes)
	a.collectors.ArchiveOperations.WithLabelValues(dt, "success").Inc()
	a.collectors.ArchiveBytes.WithLabelValues(dt).Add(float64(result.SizeBytes))

	a.mu.Lock()
	defer a.mu.Unlock()

	a.compressionSamples++
	a.avgCompression = runningMean(a.avgCompression, a.compressionSamples, result.CompressionRatio)

	m := a.typeMetrics(result.DataType)
	m.ArchivesCreated++
	m.ArchiveBytes += result.SizeBytes
	a.compressionByType[result.DataType]++
	m.AverageCompression = runningMean(m.AverageCompression, a.compressionByType[result.DataType], result.CompressionRatio)
}

// RecordDataGrowth 记录一次在线数据量采样
func (a *Aggregator) RecordDataGrowth(stats *model.DataStatistics) {
	if stats == nil {
		return
	}
	dt := stats.DataType.String()
	a.collectors.LiveRecords.WithLabelValues(dt, "hot").Set(float64(stats.HotRecords))
	a.collectors.LiveRecords.WithLabelValues(dt, "warm").Set(float64(stats.WarmRecords))
	a.collectors.LiveRecords.WithLabelValues(dt, "cold").Set(float64(stats.ColdRecords))

	at := stats.CollectedAt
	if at.IsZero() {
		at = a.now()
	}
	point := model.GrowthPoint{
		DataType:           stats.DataType,
		Timestamp:          at,
		RecordCount:        stats.TotalRecords,
		EstimatedSizeBytes: stats.EstimatedSizeBytes,
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	points := append(a.growth[stats.DataType], point)
	if over := len(points) - a.growthLimit; over > 0 {
		points = append(points[:0:0], points[over:]...)
	}
	a.growth[stats.DataType] = points
}

// GetGrowthTrend 返回最近 days 天内的增长采样点 (按时间升序), days <= 0 返回全部
func (a *Aggregator) GetGrowthTrend(dataType model.DataType, days int) []model.GrowthPoint {
	a.mu.Lock()
	defer a.mu.Unlock()

	points := a.growth[dataType]
	out := make([]model.GrowthPoint, 0, len(points))
	if days <= 0 {
		return append(out, points...)
	}
	since := a.now().AddDate(0, 0, -days)
	for _, p := range points {
		if !p.Timestamp.Before(since) {
			out = append(out, p)
		}
	}
	return out
}

// RecentResults 最近的清理结果 (最新在后), limit <= 0 返回全部
func (a *Aggregator) RecentResults(limit int) []*model.CleanupResult {
	a.mu.Lock()
	defer a.mu.Unlock()

	history := a.history
	if limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}
	out := make([]*model.CleanupResult, len(history))
	copy(out, history)
	return out
}

// GetRetentionMetrics 返回当前指标快照
func (a *Aggregator) GetRetentionMetrics() model.RetentionMetrics {
	total := a.totalOps.Load()
	success := a.successOps.Load()

	snapshot := model.RetentionMetrics{
		TotalOperations:       total,
		SuccessfulOperations:  success,
		FailedOperations:      a.failedOps.Load(),
		DryRunOperations:      a.dryRunOps.Load(),
		TotalRecordsProcessed: a.recordsProcessed.Load(),
		TotalRecordsArchived:  a.recordsArchived.Load(),
		TotalRecordsDeleted:   a.recordsDeleted.Load(),
		TotalArchivesCreated:  a.archivesCreated.Load(),
		FailedArchives:        a.failedArchives.Load(),
		TotalArchiveBytes:     a.archiveBytes.Load(),
		StartedAt:             a.startedAt,
	}
	if total > 0 {
		snapshot.SuccessRate = float64(success) / float64(total)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	snapshot.AverageDurationMs = a.avgDurationMs
	snapshot.AverageCompressionRatio = a.avgCompression
	snapshot.LastOperationAt = a.lastOperationAt
	snapshot.DataTypes = make(map[model.DataType]model.DataTypeMetrics, len(a.perType))
	for dt, m := range a.perType {
		snapshot.DataTypes[dt] = *m
	}
	return snapshot
}

// GetStorageUsage 统计归档存储占用, 每次调用重新列出归档
func (a *Aggregator) GetStorageUsage(ctx context.Context) (*model.StorageUsage, error) {
	usage := &model.StorageUsage{
		ByDataType:  make(map[model.DataType]model.DataTypeUsage),
		CollectedAt: a.now(),
	}
	if a.archives == nil {
		return usage, nil
	}

	infos, err := a.archives.ListArchives(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("list archives: %w", err)
	}

	for _, info := range infos {
		usage.TotalArchives++
		usage.TotalBytes += info.SizeBytes
		usage.TotalRecords += int64(info.RecordCount)

		u := usage.ByDataType[info.DataType]
		u.ArchiveCount++
		u.TotalBytes += info.SizeBytes
		u.RecordCount += int64(info.RecordCount)
		created := info.CreatedAt
		if u.Oldest == nil || created.Before(*u.Oldest) {
			u.Oldest = &created
		}
		if u.Newest == nil || created.After(*u.Newest) {
			u.Newest = &created
		}
		usage.ByDataType[info.DataType] = u
	}

	for _, dt := range model.AllDataTypes {
		a.collectors.ArchiveStorageBytes.WithLabelValues(dt.String()).Set(float64(usage.ByDataType[dt].TotalBytes))
	}
	return usage, nil
}

// runningMean 增量平均: (old*(n-1) + v) / n
func runningMean(old float64, n int64, v float64) float64 {
	if n <= 1 {
		return v
	}
	return (old*float64(n-1) + v) / float64(n)
}
