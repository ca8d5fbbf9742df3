package cleanup

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/eidos-exchange/eidos/eidos-retention/internal/archive"
	"github.com/eidos-exchange/eidos/eidos-retention/internal/model"
	"github.com/eidos-exchange/eidos/eidos-retention/pkg/logger"
)

// ArchiveRecorder 接收每次归档写入的结果
type ArchiveRecorder interface {
	RecordArchiveOperation(result *model.ArchiveResult)
}

// Service 清理服务
//
// 每次调用最多处理一个批次; 同一批次先归档再按 id 删除, 归档失败时不删除。
type Service struct {
	config   *model.RetentionConfig
	store    archive.Store
	data     DataAccess
	recorder ArchiveRecorder
	now      func() time.Time
	log      *zap.Logger
}

// Option 清理服务选项
type Option func(*Service)

// WithClock 设置时钟
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithArchiveRecorder 设置归档结果接收者
func WithArchiveRecorder(r ArchiveRecorder) Option {
	return func(s *Service) {
		s.recorder = r
	}
}

// NewService 创建清理服务, 归档关闭时 store 可以为 nil
func NewService(config *model.RetentionConfig, store archive.Store, data DataAccess, opts ...Option) *Service {
	s := &Service{
		config: config,
		store:  store,
		data:   data,
		now:    time.Now,
		log:    logger.Named("cleanup"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// archivingAvailable 全局归档开关
func (s *Service) archivingAvailable() bool {
	return s.config.Archive().Enabled && s.store != nil
}

func (s *Service) newResult(dataType model.DataType, op model.CleanupOperation, dryRun bool) *model.CleanupResult {
	return &model.CleanupResult{
		DataType:  dataType,
		Operation: op,
		DryRun:    dryRun,
	}
}

func (s *Service) finish(result *model.CleanupResult, start time.Time, err error) *model.CleanupResult {
	result.DurationMs = time.Since(start).Milliseconds()
	result.FinishedAt = s.now()
	if err != nil {
		result.Success = false
		result.Error = err.Error()
		s.log.Error("cleanup failed",
			zap.String("data_type", result.DataType.String()),
			zap.String("operation", string(result.Operation)),
			zap.Bool("dry_run", result.DryRun),
			zap.Int("processed", result.RecordsProcessed),
			zap.Int("archived", result.RecordsArchived),
			zap.Error(err))
		return result
	}

	result.Success = true
	s.log.Info("cleanup finished",
		zap.String("data_type", result.DataType.String()),
		zap.String("operation", string(result.Operation)),
		zap.Bool("dry_run", result.DryRun),
		zap.Int("processed", result.RecordsProcessed),
		zap.Int("archived", result.RecordsArchived),
		zap.Int("deleted", result.RecordsDeleted),
		zap.Int64("duration_ms", result.DurationMs))
	return result
}

// CleanupExpiredData 清理早于冷阈值的数据
//
// 策略开启归档时先归档, 归档失败则不删除。
func (s *Service) CleanupExpiredData(ctx context.Context, dataType model.DataType, dryRun bool) *model.CleanupResult {
	start := time.Now()
	result := s.newResult(dataType, model.OperationCleanupExpired, dryRun)

	policy, ok := s.config.Policy(dataType)
	if !ok {
		return s.finish(result, start, fmt.Errorf("%w for data type %s", model.ErrMissingPolicy, dataType))
	}

	threshold := policy.ThresholdsAt(s.now()).Cold
	records, err := s.data.SelectOlderThan(ctx, dataType, threshold, policy.BatchSize())
	if err != nil {
		return s.finish(result, start, fmt.Errorf("select expired records: %w", err))
	}
	result.RecordsProcessed = len(records)

	if len(records) == 0 || dryRun {
		return s.finish(result, start, nil)
	}

	if policy.ArchiveEnabled() && s.archivingAvailable() {
		archived, err := s.archive(ctx, dataType, records)
		if err != nil {
			return s.finish(result, start, err)
		}
		result.RecordsArchived = archived.RecordCount
		result.ArchiveID = archived.ArchiveID
	}

	deleted, err := s.data.DeleteByIDs(ctx, dataType, recordIDs(records))
	result.RecordsDeleted = int(deleted)
	if err != nil {
		return s.finish(result, start, fmt.Errorf("delete expired records: %w", err))
	}

	return s.finish(result, start, nil)
}

// ArchiveAndCleanup 归档温数据 (温阈值与冷阈值之间) 后从在线表删除
//
// 不受策略 archiveEnabled 影响; 全局归档关闭时跳过。
func (s *Service) ArchiveAndCleanup(ctx context.Context, dataType model.DataType, dryRun bool) *model.CleanupResult {
	start := time.Now()
	result := s.newResult(dataType, model.OperationArchiveAndCleanup, dryRun)

	policy, ok := s.config.Policy(dataType)
	if !ok {
		return s.finish(result, start, fmt.Errorf("%w for data type %s", model.ErrMissingPolicy, dataType))
	}
	if !s.archivingAvailable() {
		s.log.Debug("archiving disabled, skip warm data promotion",
			zap.String("data_type", dataType.String()))
		return s.finish(result, start, nil)
	}

	th := policy.ThresholdsAt(s.now())
	records, err := s.data.SelectBetween(ctx, dataType, th.Cold, th.Warm, policy.BatchSize())
	if err != nil {
		return s.finish(result, start, fmt.Errorf("select warm records: %w", err))
	}
	result.RecordsProcessed = len(records)

	if len(records) == 0 || dryRun {
		return s.finish(result, start, nil)
	}

	archived, err := s.archive(ctx, dataType, records)
	if err != nil {
		return s.finish(result, start, err)
	}
	result.RecordsArchived = archived.RecordCount
	result.ArchiveID = archived.ArchiveID

	deleted, err := s.data.DeleteByIDs(ctx, dataType, recordIDs(records))
	result.RecordsDeleted = int(deleted)
	if err != nil {
		return s.finish(result, start, fmt.Errorf("delete archived records: %w", err))
	}

	return s.finish(result, start, nil)
}

// archive 写入归档并上报结果
func (s *Service) archive(ctx context.Context, dataType model.DataType, records []model.ArchivableData) (*model.ArchiveResult, error) {
	archived := s.store.ArchiveData(ctx, dataType, records)
	if s.recorder != nil {
		s.recorder.RecordArchiveOperation(archived)
	}
	if !archived.Success {
		return archived, fmt.Errorf("archive failed: %s", archived.Error)
	}
	return archived, nil
}

func recordIDs(records []model.ArchivableData) []int64 {
	ids := make([]int64, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	return ids
}

// GetDataStatistics 按冷热分层统计在线数据
//
// hot: ts >= hot; warm: warm <= ts < hot; cold: ts < warm
func (s *Service) GetDataStatistics(ctx context.Context, dataType model.DataType) (*model.DataStatistics, error) {
	policy, ok := s.config.Policy(dataType)
	if !ok {
		return nil, fmt.Errorf("%w for data type %s", model.ErrMissingPolicy, dataType)
	}

	th := policy.ThresholdsAt(s.now())
	stats := &model.DataStatistics{DataType: dataType}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := s.data.Count(gctx, dataType, model.TimeRange{From: &th.Hot})
		stats.HotRecords = n
		return err
	})
	g.Go(func() error {
		n, err := s.data.Count(gctx, dataType, model.TimeRange{From: &th.Warm, To: &th.Hot})
		stats.WarmRecords = n
		return err
	})
	g.Go(func() error {
		n, err := s.data.Count(gctx, dataType, model.TimeRange{To: &th.Warm})
		stats.ColdRecords = n
		return err
	})
	g.Go(func() error {
		ts, err := s.data.MinTimestamp(gctx, dataType)
		stats.OldestTimestamp = ts
		return err
	})
	g.Go(func() error {
		ts, err := s.data.MaxTimestamp(gctx, dataType)
		stats.NewestTimestamp = ts
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("collect statistics for %s: %w", dataType, err)
	}

	stats.TotalRecords = stats.HotRecords + stats.WarmRecords + stats.ColdRecords
	stats.EstimatedSizeBytes = stats.TotalRecords * dataType.EstimatedRecordSize()
	stats.CollectedAt = s.now()
	return stats, nil
}
