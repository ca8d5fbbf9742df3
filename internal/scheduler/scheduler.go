// Package scheduler 每日定时触发保留策略清理
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/eidos-exchange/eidos/eidos-retention/internal/model"
	"github.com/eidos-exchange/eidos/eidos-retention/internal/notify"
	"github.com/eidos-exchange/eidos/eidos-retention/pkg/logger"
)

const defaultGracePeriod = 30 * time.Second

// Cleaner 单个数据类型的两步清理
type Cleaner interface {
	ArchiveAndCleanup(ctx context.Context, dataType model.DataType, dryRun bool) *model.CleanupResult
	CleanupExpiredData(ctx context.Context, dataType model.DataType, dryRun bool) *model.CleanupResult
}

// ResultRecorder 接收每个清理结果
type ResultRecorder interface {
	RecordCleanupOperation(result *model.CleanupResult)
}

// Scheduler 清理调度器
//
// 调度表达式只取分钟和小时, 每天固定时刻触发一次。
// 手动执行与定时执行之间默认不互斥, 配置 RunLocker 后按数据类型互斥。
type Scheduler struct {
	config   *model.RetentionConfig
	cleaner  Cleaner
	recorder ResultRecorder
	notifier notify.Notifier
	locker   RunLocker
	grace    time.Duration
	location *time.Location
	now      func() time.Time
	log      *zap.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	entryID cron.EntryID
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Option 调度器选项
type Option func(*Scheduler)

// WithRecorder 设置结果接收者
func WithRecorder(r ResultRecorder) Option {
	return func(s *Scheduler) { s.recorder = r }
}

// WithNotifier 设置定时执行完成后的通知
func WithNotifier(n notify.Notifier) Option {
	return func(s *Scheduler) { s.notifier = n }
}

// WithRunLocker 设置数据类型级运行锁
func WithRunLocker(l RunLocker) Option {
	return func(s *Scheduler) { s.locker = l }
}

// WithGracePeriod 设置停止时等待执行中任务的时间
func WithGracePeriod(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.grace = d
		}
	}
}

// WithLocation 设置调度时区, 默认本地时区
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) {
		if loc != nil {
			s.location = loc
		}
	}
}

// WithClock 设置时钟
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// NewScheduler 创建调度器
func NewScheduler(config *model.RetentionConfig, cleaner Cleaner, opts ...Option) *Scheduler {
	s := &Scheduler{
		config:   config,
		cleaner:  cleaner,
		grace:    defaultGracePeriod,
		location: time.Local,
		now:      time.Now,
		log:      logger.Named("scheduler"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start 启动调度, 已运行或清理关闭时不做任何事
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}
	cleanupCfg := s.config.Cleanup()
	if !cleanupCfg.Enabled {
		s.log.Info("cleanup disabled, scheduler not started")
		return nil
	}

	schedule, err := model.ParseSchedule(cleanupCfg.Schedule)
	if err != nil {
		return err
	}

	cronLogger := newCronLogger(s.log)
	c := cron.New(
		cron.WithLocation(s.location),
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)
	entryID, err := c.AddFunc(schedule.CronSpec(), s.runScheduled)
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrInvalidSchedule, err)
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.cron = c
	s.entryID = entryID
	s.running = true
	c.Start()

	s.log.Info("scheduler started",
		zap.String("daily_at", schedule.String()),
		zap.String("location", s.location.String()),
		zap.Time("next_run", c.Entry(entryID).Next))
	return nil
}

// Stop 停止调度, 等待执行中的任务最多 grace 时间后取消
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	c, cancel := s.cron, s.cancel
	s.running = false
	s.cron = nil
	s.mu.Unlock()

	stopCtx := c.Stop()
	timer := time.NewTimer(s.grace)
	defer timer.Stop()

	select {
	case <-stopCtx.Done():
	case <-timer.C:
		s.log.Warn("in-flight cleanup exceeded grace period, cancelling",
			zap.Duration("grace", s.grace))
	}
	cancel()

	s.log.Info("scheduler stopped")
}

// IsRunning 调度器是否运行中
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun 下次触发时间, 未运行时返回零值
func (s *Scheduler) NextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return time.Time{}
	}
	return s.cron.Entry(s.entryID).Next
}

// runScheduled 定时触发: 处理所有开启清理的数据类型, 完成后通知
func (s *Scheduler) runScheduled() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil {
		return
	}

	cleanupCfg := s.config.Cleanup()
	start := s.now()
	s.log.Info("scheduled cleanup started", zap.Bool("dry_run", cleanupCfg.DryRun))

	results := s.runDataTypes(ctx, s.config.EnabledDataTypes(), cleanupCfg.DryRun)
	summary := notify.Summarize(results, cleanupCfg.DryRun, s.now())

	s.log.Info("scheduled cleanup finished",
		zap.Int("success", summary.SuccessCount),
		zap.Int("failed", summary.FailureCount),
		zap.Duration("duration", s.now().Sub(start)))

	if cleanupCfg.NotificationEnabled && s.notifier != nil {
		if err := s.notifier.Notify(ctx, summary); err != nil {
			s.log.Error("failed to send cleanup notification", zap.Error(err))
		}
	}
}

// RunCleanupNow 同步执行清理, 与调度器是否运行无关
//
// dataType 为 nil 时处理所有开启清理的数据类型; 指定类型时即使该类型关闭清理也会执行。
func (s *Scheduler) RunCleanupNow(ctx context.Context, dataType *model.DataType, dryRun bool) []*model.CleanupResult {
	types := s.config.EnabledDataTypes()
	if dataType != nil {
		types = []model.DataType{*dataType}
	}
	return s.runDataTypes(ctx, types, dryRun)
}

// runDataTypes 按顺序处理数据类型, 单个类型失败不影响后续类型
func (s *Scheduler) runDataTypes(ctx context.Context, types []model.DataType, dryRun bool) []*model.CleanupResult {
	results := make([]*model.CleanupResult, 0, len(types)*2)
	for _, dt := range types {
		if err := ctx.Err(); err != nil {
			s.log.Warn("cleanup cancelled, data type skipped",
				zap.String("data_type", dt.String()),
				zap.Error(err))
			results = append(results, s.record(s.failedResult(dt, model.OperationDataTypeRun, dryRun,
				fmt.Errorf("cleanup cancelled: %w", err))))
			continue
		}
		results = append(results, s.runDataType(ctx, dt, dryRun)...)
	}
	return results
}

// runDataType 先归档温数据, 再清理冷数据; panic 转换为失败结果
func (s *Scheduler) runDataType(ctx context.Context, dataType model.DataType, dryRun bool) (results []*model.CleanupResult) {
	op := model.OperationDataTypeRun
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("cleanup panicked",
				zap.String("data_type", dataType.String()),
				zap.Any("panic", r),
				zap.Stack("stack"))
			results = append(results, s.record(s.failedResult(dataType, op, dryRun, fmt.Errorf("cleanup panicked: %v", r))))
		}
	}()

	if s.locker != nil {
		release, ok, err := s.locker.Acquire(ctx, dataType)
		if err != nil {
			return []*model.CleanupResult{s.record(s.failedResult(dataType, op, dryRun, err))}
		}
		if !ok {
			return []*model.CleanupResult{s.record(s.failedResult(dataType, op, dryRun,
				fmt.Errorf("cleanup for %s is already running", dataType)))}
		}
		defer func() {
			if err := release(context.Background()); err != nil {
				s.log.Error("failed to release run lock",
					zap.String("data_type", dataType.String()),
					zap.Error(err))
			}
		}()
	}

	op = model.OperationArchiveAndCleanup
	results = append(results, s.record(s.cleaner.ArchiveAndCleanup(ctx, dataType, dryRun)))
	op = model.OperationCleanupExpired
	results = append(results, s.record(s.cleaner.CleanupExpiredData(ctx, dataType, dryRun)))
	return results
}

func (s *Scheduler) failedResult(dataType model.DataType, op model.CleanupOperation, dryRun bool, err error) *model.CleanupResult {
	return &model.CleanupResult{
		DataType:   dataType,
		Operation:  op,
		Success:    false,
		Error:      err.Error(),
		DryRun:     dryRun,
		FinishedAt: s.now(),
	}
}

func (s *Scheduler) record(result *model.CleanupResult) *model.CleanupResult {
	if s.recorder != nil && result != nil {
		s.recorder.RecordCleanupOperation(result)
	}
	return result
}
