// Package retention 数据保留服务入口, 组装归档、清理、调度与监控
package retention

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/eidos-exchange/eidos/eidos-retention/internal/archive"
	"github.com/eidos-exchange/eidos/eidos-retention/internal/cleanup"
	"github.com/eidos-exchange/eidos/eidos-retention/internal/model"
	"github.com/eidos-exchange/eidos/eidos-retention/internal/monitoring"
	"github.com/eidos-exchange/eidos/eidos-retention/internal/notify"
	"github.com/eidos-exchange/eidos/eidos-retention/internal/scheduler"
	"github.com/eidos-exchange/eidos/eidos-retention/pkg/logger"
)

// statisticsConcurrency 统计时并发查询的数据类型数
const statisticsConcurrency = 3

// ErrArchiveUnavailable 归档关闭, 无法访问归档存储
var ErrArchiveUnavailable = errors.New("archive store unavailable: archiving is disabled")

// Service 数据保留服务
type Service struct {
	config      *model.RetentionConfig
	data        cleanup.DataAccess
	registerer  prometheus.Registerer
	notifier    notify.Notifier
	locker      scheduler.RunLocker
	location    *time.Location
	gracePeriod time.Duration
	manualOnly  bool
	now         func() time.Time
	log         *zap.Logger

	mu          sync.RWMutex
	initialized bool
	store       archive.Store
	cleaner     *cleanup.Service
	monitor     *monitoring.Aggregator
	scheduler   *scheduler.Scheduler
}

// Option 服务选项
type Option func(*Service)

// WithRegisterer 指定 Prometheus 注册器
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(s *Service) { s.registerer = reg }
}

// WithNotifier 指定定时清理完成通知, 默认写日志
func WithNotifier(n notify.Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithRunLocker 指定数据类型级运行锁
func WithRunLocker(l scheduler.RunLocker) Option {
	return func(s *Service) { s.locker = l }
}

// WithLocation 调度时区
func WithLocation(loc *time.Location) Option {
	return func(s *Service) { s.location = loc }
}

// WithGracePeriod 停止调度时等待执行中任务的时间
func WithGracePeriod(d time.Duration) Option {
	return func(s *Service) { s.gracePeriod = d }
}

// WithManualOnly 不启动定时调度, 只响应手动执行
func WithManualOnly() Option {
	return func(s *Service) { s.manualOnly = true }
}

// WithClock 设置时钟, 同时作用于阈值计算、归档 id 和监控
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New 创建数据保留服务, 调用 Initialize 后可用
func New(config *model.RetentionConfig, data cleanup.DataAccess, opts ...Option) *Service {
	s := &Service{
		config: config,
		data:   data,
		now:    time.Now,
		log:    logger.Named("retention"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.notifier == nil {
		s.notifier = notify.NewLogNotifier()
	}
	return s
}

// Initialize 校验配置, 创建各组件并启动调度 (WithManualOnly 时不启动)
//
// 配置有误时返回 *model.ValidationError, 包含全部违规项, 调度不会启动。
func (s *Service) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		return nil
	}
	if s.config == nil {
		return fmt.Errorf("%w: retention config is nil", model.ErrInvalidConfig)
	}
	if s.data == nil {
		return fmt.Errorf("%w: data access is nil", model.ErrInvalidConfig)
	}
	if err := s.config.ValidateErr(); err != nil {
		s.log.Error("retention config validation failed", zap.Error(err))
		return err
	}

	archiveCfg := s.config.Archive()
	var store archive.Store
	if archiveCfg.Enabled {
		st, err := archive.NewStore(archiveCfg, archive.WithClock(s.now))
		if err != nil {
			return fmt.Errorf("create archive store: %w", err)
		}
		store = st
		if archiveCfg.EncryptionEnabled {
			s.log.Warn("archive encryption is not supported, archives are written unencrypted")
		}
	}

	monitorOpts := []monitoring.Option{monitoring.WithClock(s.now)}
	if s.registerer != nil {
		monitorOpts = append(monitorOpts, monitoring.WithRegisterer(s.registerer))
	}
	var lister monitoring.ArchiveLister
	if store != nil {
		lister = store
	}
	monitor := monitoring.NewAggregator(lister, monitorOpts...)

	cleaner := cleanup.NewService(s.config, store, s.data,
		cleanup.WithClock(s.now),
		cleanup.WithArchiveRecorder(monitor))

	schedOpts := []scheduler.Option{
		scheduler.WithRecorder(monitor),
		scheduler.WithNotifier(s.notifier),
		scheduler.WithClock(s.now),
		scheduler.WithGracePeriod(s.gracePeriod),
		scheduler.WithLocation(s.location),
	}
	if s.locker != nil {
		schedOpts = append(schedOpts, scheduler.WithRunLocker(s.locker))
	}
	sched := scheduler.NewScheduler(s.config, cleaner, schedOpts...)
	if !s.manualOnly {
		if err := sched.Start(); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
	}

	s.store = store
	s.monitor = monitor
	s.cleaner = cleaner
	s.scheduler = sched
	s.initialized = true

	s.log.Info("retention service initialized",
		zap.Int("enabled_data_types", len(s.config.EnabledDataTypes())),
		zap.Bool("archive_enabled", archiveCfg.Enabled),
		zap.String("archive_backend", string(archiveCfg.Backend)),
		zap.Bool("scheduler_running", sched.IsRunning()))
	return nil
}

// Shutdown 停止调度, 查询接口仍可使用
func (s *Service) Shutdown() {
	s.mu.RLock()
	sched := s.scheduler
	s.mu.RUnlock()
	if sched == nil {
		return
	}
	sched.Stop()
	s.log.Info("retention service shut down")
}

func (s *Service) components() (*scheduler.Scheduler, *cleanup.Service, *monitoring.Aggregator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.initialized {
		return nil, nil, nil, model.ErrNotInitialized
	}
	return s.scheduler, s.cleaner, s.monitor, nil
}

// RunFullCleanup 对所有开启清理的数据类型执行清理
func (s *Service) RunFullCleanup(ctx context.Context, dryRun bool) (*model.FullCleanupResult, error) {
	return s.RunManual(ctx, nil, dryRun)
}

// RunCleanupForDataType 对单个数据类型执行清理
func (s *Service) RunCleanupForDataType(ctx context.Context, dataType model.DataType, dryRun bool) (*model.FullCleanupResult, error) {
	if !dataType.IsValid() {
		return nil, fmt.Errorf("unknown data type %q", dataType)
	}
	return s.RunManual(ctx, &dataType, dryRun)
}

// RunManual 手动执行清理, dataType 为 nil 时处理全部开启清理的数据类型
func (s *Service) RunManual(ctx context.Context, dataType *model.DataType, dryRun bool) (*model.FullCleanupResult, error) {
	sched, _, _, err := s.components()
	if err != nil {
		return nil, err
	}

	start := s.now()
	results := sched.RunCleanupNow(ctx, dataType, dryRun)
	full := model.NewFullCleanupResult(results, dryRun, s.now().Sub(start))

	fields := []zap.Field{
		zap.Bool("dry_run", dryRun),
		zap.Bool("success", full.Success),
		zap.Int("processed", full.TotalProcessed),
		zap.Int("archived", full.TotalArchived),
		zap.Int("deleted", full.TotalDeleted),
		zap.Int("failures", full.FailureCount),
	}
	if dataType != nil {
		fields = append(fields, zap.String("data_type", dataType.String()))
	}
	s.log.Info("manual cleanup finished", fields...)
	return full, nil
}

// GetStatistics 统计每个数据类型的在线数据分布, 并记录一个增长采样点
func (s *Service) GetStatistics(ctx context.Context) (map[model.DataType]*model.DataStatistics, error) {
	_, cleaner, monitor, err := s.components()
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	stats := make(map[model.DataType]*model.DataStatistics, len(model.AllDataTypes))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(statisticsConcurrency)
	for _, dt := range model.AllDataTypes {
		if _, ok := s.config.Policy(dt); !ok {
			continue
		}
		g.Go(func() error {
			st, err := cleaner.GetDataStatistics(gctx, dt)
			if err != nil {
				return err
			}
			mu.Lock()
			stats[dt] = st
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, dt := range model.AllDataTypes {
		if st, ok := stats[dt]; ok {
			monitor.RecordDataGrowth(st)
		}
	}
	return stats, nil
}

// GetMetrics 运行指标快照
func (s *Service) GetMetrics() (model.RetentionMetrics, error) {
	_, _, monitor, err := s.components()
	if err != nil {
		return model.RetentionMetrics{}, err
	}
	return monitor.GetRetentionMetrics(), nil
}

// RecentResults 最近的清理结果, 按执行顺序
func (s *Service) RecentResults(limit int) ([]*model.CleanupResult, error) {
	_, _, monitor, err := s.components()
	if err != nil {
		return nil, err
	}
	return monitor.RecentResults(limit), nil
}

// GetStorageUsage 归档存储占用
func (s *Service) GetStorageUsage(ctx context.Context) (*model.StorageUsage, error) {
	_, _, monitor, err := s.components()
	if err != nil {
		return nil, err
	}
	return monitor.GetStorageUsage(ctx)
}

// GetGrowthTrend 最近 days 天内的增长采样点
func (s *Service) GetGrowthTrend(dataType model.DataType, days int) ([]model.GrowthPoint, error) {
	_, _, monitor, err := s.components()
	if err != nil {
		return nil, err
	}
	return monitor.GetGrowthTrend(dataType, days), nil
}

// IsSchedulerRunning 调度器是否运行中
func (s *Service) IsSchedulerRunning() bool {
	sched, _, _, err := s.components()
	if err != nil {
		return false
	}
	return sched.IsRunning()
}

// NextRun 下次定时清理时间, 调度未运行时为零值
func (s *Service) NextRun() time.Time {
	sched, _, _, err := s.components()
	if err != nil {
		return time.Time{}
	}
	return sched.NextRun()
}

func (s *Service) archiveStore() (archive.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.initialized {
		return nil, model.ErrNotInitialized
	}
	if s.store == nil {
		return nil, ErrArchiveUnavailable
	}
	return s.store, nil
}

// ListArchives 列出归档单元, dataType 为 nil 时列出全部
func (s *Service) ListArchives(ctx context.Context, dataType *model.DataType) ([]model.ArchiveInfo, error) {
	store, err := s.archiveStore()
	if err != nil {
		return nil, err
	}
	return store.ListArchives(ctx, dataType)
}

// RestoreArchive 读取归档单元中的记录, 不写回在线表
func (s *Service) RestoreArchive(ctx context.Context, archiveID string) ([]model.ArchivableData, bool, error) {
	store, err := s.archiveStore()
	if err != nil {
		return nil, false, err
	}
	return store.RestoreData(ctx, archiveID)
}

// DeleteArchive 删除归档单元
func (s *Service) DeleteArchive(ctx context.Context, archiveID string) (bool, error) {
	store, err := s.archiveStore()
	if err != nil {
		return false, err
	}
	deleted, err := store.DeleteArchive(ctx, archiveID)
	if err == nil && deleted {
		s.log.Info("archive deleted", zap.String("archive_id", archiveID))
	}
	return deleted, err
}
