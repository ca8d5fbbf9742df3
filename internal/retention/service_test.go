package retention

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/eidos-exchange/eidos/eidos-retention/internal/model"
	"github.com/eidos-exchange/eidos/eidos-retention/internal/repository"
)

var fixedNow = time.Date(2026, 6, 1, 2, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

func setupRepo(t *testing.T) (*gorm.DB, *repository.RetentionRepository) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(model.LiveTables()...))

	repo, err := repository.NewRetentionRepository(db, nil)
	require.NoError(t, err)
	return db, repo
}

func testConfig(t *testing.T) *model.RetentionConfig {
	archiveCfg := model.DefaultArchiveConfig()
	archiveCfg.BasePath = t.TempDir()
	return model.NewRetentionConfig(model.DefaultPolicies(), archiveCfg, model.DefaultCleanupConfig())
}

func newTestService(t *testing.T, cfg *model.RetentionConfig, data *repository.RetentionRepository) *Service {
	svc := New(cfg, data,
		WithClock(clock),
		WithLocation(time.UTC),
		WithRegisterer(prometheus.NewRegistry()))
	t.Cleanup(svc.Shutdown)
	return svc
}

func candleAt(ts int64) model.Candle {
	return model.Candle{
		Symbol:   "BTC-USDC",
		Interval: "1m",
		OpenTime: ts,
		Open:     decimal.RequireFromString("64000.5"),
		High:     decimal.RequireFromString("64100"),
		Low:      decimal.RequireFromString("63900"),
		Close:    decimal.RequireFromString("64050.25"),
		Volume:   decimal.RequireFromString("1.5"),
	}
}

func daysAgo(n int) int64 {
	return fixedNow.AddDate(0, 0, -n).UnixMilli()
}

func TestService_NotInitialized(t *testing.T) {
	_, repo := setupRepo(t)
	svc := New(testConfig(t), repo)
	ctx := context.Background()

	_, err := svc.RunFullCleanup(ctx, true)
	assert.ErrorIs(t, err, model.ErrNotInitialized)
	_, err = svc.GetStatistics(ctx)
	assert.ErrorIs(t, err, model.ErrNotInitialized)
	_, err = svc.GetMetrics()
	assert.ErrorIs(t, err, model.ErrNotInitialized)
	_, err = svc.GetStorageUsage(ctx)
	assert.ErrorIs(t, err, model.ErrNotInitialized)
	_, err = svc.GetGrowthTrend(model.DataTypeSignals, 7)
	assert.ErrorIs(t, err, model.ErrNotInitialized)
	_, err = svc.ListArchives(ctx, nil)
	assert.ErrorIs(t, err, model.ErrNotInitialized)
	assert.False(t, svc.IsSchedulerRunning())
	assert.True(t, svc.NextRun().IsZero())

	svc.Shutdown()
}

func TestService_InitializeReportsAllViolations(t *testing.T) {
	_, repo := setupRepo(t)
	policies := model.DefaultPolicies()
	delete(policies, model.DataTypeAuditLogs)
	archiveCfg := model.DefaultArchiveConfig()
	archiveCfg.BasePath = "  "
	cleanupCfg := model.DefaultCleanupConfig()
	cleanupCfg.Schedule = ""
	cfg := model.NewRetentionConfig(policies, archiveCfg, cleanupCfg)

	svc := newTestService(t, cfg, repo)
	err := svc.Initialize(context.Background())

	var verr *model.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Violations, 3)
	assert.ErrorIs(t, err, model.ErrMissingPolicy)
	assert.ErrorIs(t, err, model.ErrInvalidConfig)
	assert.ErrorIs(t, err, model.ErrInvalidSchedule)
	assert.Contains(t, err.Error(), "audit_logs")
	assert.False(t, svc.IsSchedulerRunning())
}

func TestService_InitializeUnimplementedBackend(t *testing.T) {
	_, repo := setupRepo(t)
	archiveCfg := model.DefaultArchiveConfig()
	archiveCfg.Backend = model.StorageS3
	archiveCfg.BasePath = t.TempDir()
	cfg := model.NewRetentionConfig(model.DefaultPolicies(), archiveCfg, model.DefaultCleanupConfig())

	svc := newTestService(t, cfg, repo)
	err := svc.Initialize(context.Background())

	assert.ErrorIs(t, err, model.ErrBackendNotImplemented)
	assert.False(t, svc.IsSchedulerRunning())
}

func TestService_InitializeStartsScheduler(t *testing.T) {
	_, repo := setupRepo(t)
	svc := newTestService(t, testConfig(t), repo)

	require.NoError(t, svc.Initialize(context.Background()))
	require.NoError(t, svc.Initialize(context.Background()))
	assert.True(t, svc.IsSchedulerRunning())

	next := svc.NextRun().UTC()
	assert.Equal(t, 2, next.Hour())
	assert.Equal(t, 0, next.Minute())

	svc.Shutdown()
	assert.False(t, svc.IsSchedulerRunning())
}

func TestService_ManualOnlySkipsScheduler(t *testing.T) {
	db, repo := setupRepo(t)
	svc := New(testConfig(t), repo,
		WithClock(clock),
		WithLocation(time.UTC),
		WithRegisterer(prometheus.NewRegistry()),
		WithManualOnly())
	t.Cleanup(svc.Shutdown)

	require.NoError(t, svc.Initialize(context.Background()))
	assert.False(t, svc.IsSchedulerRunning())
	assert.True(t, svc.NextRun().IsZero())

	c := candleAt(daysAgo(120))
	require.NoError(t, db.Create(&c).Error)

	full, err := svc.RunCleanupForDataType(context.Background(), model.DataTypeRawCandles, false)
	require.NoError(t, err)
	assert.True(t, full.Success)
	assert.Equal(t, 1, full.TotalDeleted)
}

func TestService_RunCleanupForDataType(t *testing.T) {
	db, repo := setupRepo(t)
	svc := newTestService(t, testConfig(t), repo)
	ctx := context.Background()
	require.NoError(t, svc.Initialize(ctx))

	warm := candleAt(daysAgo(40))
	cold := candleAt(daysAgo(120))
	hot := candleAt(daysAgo(2))
	require.NoError(t, db.Create(&warm).Error)
	require.NoError(t, db.Create(&cold).Error)
	require.NoError(t, db.Create(&hot).Error)

	full, err := svc.RunCleanupForDataType(ctx, model.DataTypeRawCandles, false)
	require.NoError(t, err)
	require.Len(t, full.Results, 2)
	assert.True(t, full.Success)
	assert.Equal(t, 2, full.TotalArchived)
	assert.Equal(t, 2, full.TotalDeleted)
	assert.Equal(t, 0, full.FailureCount)

	var remaining int64
	require.NoError(t, db.Model(&model.Candle{}).Count(&remaining).Error)
	assert.Equal(t, int64(1), remaining)

	archives, err := svc.ListArchives(ctx, nil)
	require.NoError(t, err)
	require.Len(t, archives, 2)

	restored, found, err := svc.RestoreArchive(ctx, full.Results[0].ArchiveID)
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, restored, 1)
	assert.Equal(t, warm.ID, restored[0].ID)

	metrics, err := svc.GetMetrics()
	require.NoError(t, err)
	assert.Equal(t, int64(2), metrics.TotalOperations)
	assert.Equal(t, int64(2), metrics.SuccessfulOperations)
	assert.Equal(t, int64(2), metrics.TotalArchivesCreated)
	assert.InDelta(t, 1.0, metrics.SuccessRate, 1e-9)

	usage, err := svc.GetStorageUsage(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, usage.TotalArchives)
	assert.Equal(t, int64(2), usage.TotalRecords)

	deleted, err := svc.DeleteArchive(ctx, full.Results[0].ArchiveID)
	require.NoError(t, err)
	assert.True(t, deleted)
	deleted, err = svc.DeleteArchive(ctx, full.Results[0].ArchiveID)
	require.NoError(t, err)
	assert.False(t, deleted)

	recent, err := svc.RecentResults(10)
	require.NoError(t, err)
	assert.Len(t, recent, 2)
}

func TestService_RunFullCleanupDryRun(t *testing.T) {
	db, repo := setupRepo(t)
	svc := newTestService(t, testConfig(t), repo)
	ctx := context.Background()
	require.NoError(t, svc.Initialize(ctx))

	c := candleAt(daysAgo(120))
	require.NoError(t, db.Create(&c).Error)

	full, err := svc.RunFullCleanup(ctx, true)
	require.NoError(t, err)
	assert.True(t, full.Success)
	assert.True(t, full.DryRun)
	assert.Len(t, full.Results, 2*len(model.AllDataTypes))
	assert.Equal(t, 1, full.TotalProcessed)
	assert.Equal(t, 0, full.TotalDeleted)

	var remaining int64
	require.NoError(t, db.Model(&model.Candle{}).Count(&remaining).Error)
	assert.Equal(t, int64(1), remaining)

	archives, err := svc.ListArchives(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, archives)

	metrics, err := svc.GetMetrics()
	require.NoError(t, err)
	assert.Equal(t, int64(len(full.Results)), metrics.DryRunOperations)
	assert.Equal(t, int64(0), metrics.TotalRecordsProcessed)
}

func TestService_RunFullCleanupCancelled(t *testing.T) {
	db, repo := setupRepo(t)
	svc := newTestService(t, testConfig(t), repo)
	require.NoError(t, svc.Initialize(context.Background()))

	c := candleAt(daysAgo(120))
	require.NoError(t, db.Create(&c).Error)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	full, err := svc.RunFullCleanup(ctx, false)
	require.NoError(t, err)
	assert.False(t, full.Success)
	assert.Len(t, full.Results, len(model.AllDataTypes))
	assert.Equal(t, len(model.AllDataTypes), full.FailureCount)
	assert.Equal(t, 0, full.TotalDeleted)

	var remaining int64
	require.NoError(t, db.Model(&model.Candle{}).Count(&remaining).Error)
	assert.Equal(t, int64(1), remaining)

	metrics, err := svc.GetMetrics()
	require.NoError(t, err)
	assert.Equal(t, int64(len(model.AllDataTypes)), metrics.FailedOperations)
}

func TestService_RunCleanupForUnknownType(t *testing.T) {
	_, repo := setupRepo(t)
	svc := newTestService(t, testConfig(t), repo)
	require.NoError(t, svc.Initialize(context.Background()))

	_, err := svc.RunCleanupForDataType(context.Background(), model.DataType("trades"), false)
	assert.Error(t, err)
}

func TestService_GetStatisticsRecordsGrowth(t *testing.T) {
	db, repo := setupRepo(t)
	svc := newTestService(t, testConfig(t), repo)
	ctx := context.Background()
	require.NoError(t, svc.Initialize(ctx))

	for _, age := range []int{1, 3, 10, 60} {
		c := candleAt(daysAgo(age))
		require.NoError(t, db.Create(&c).Error)
	}

	stats, err := svc.GetStatistics(ctx)
	require.NoError(t, err)
	require.Len(t, stats, len(model.AllDataTypes))

	candles := stats[model.DataTypeRawCandles]
	assert.Equal(t, int64(4), candles.TotalRecords)
	assert.Equal(t, int64(2), candles.HotRecords)
	assert.Equal(t, int64(1), candles.WarmRecords)
	assert.Equal(t, int64(1), candles.ColdRecords)
	require.NotNil(t, candles.OldestTimestamp)
	assert.Equal(t, daysAgo(60), *candles.OldestTimestamp)
	assert.Equal(t, int64(4*200), candles.EstimatedSizeBytes)

	assert.Zero(t, stats[model.DataTypeAuditLogs].TotalRecords)
	assert.Nil(t, stats[model.DataTypeAuditLogs].OldestTimestamp)

	trend, err := svc.GetGrowthTrend(model.DataTypeRawCandles, 7)
	require.NoError(t, err)
	require.Len(t, trend, 1)
	assert.Equal(t, int64(4), trend[0].RecordCount)
}

func TestService_ArchivingDisabled(t *testing.T) {
	db, repo := setupRepo(t)
	archiveCfg := model.DefaultArchiveConfig()
	archiveCfg.Enabled = false
	archiveCfg.BasePath = ""
	cfg := model.NewRetentionConfig(model.DefaultPolicies(), archiveCfg, model.DefaultCleanupConfig())
	svc := newTestService(t, cfg, repo)
	ctx := context.Background()
	require.NoError(t, svc.Initialize(ctx))

	c := candleAt(daysAgo(120))
	require.NoError(t, db.Create(&c).Error)

	full, err := svc.RunCleanupForDataType(ctx, model.DataTypeRawCandles, false)
	require.NoError(t, err)
	assert.True(t, full.Success)
	assert.Equal(t, 1, full.TotalDeleted)
	assert.Equal(t, 0, full.TotalArchived)

	_, err = svc.ListArchives(ctx, nil)
	assert.ErrorIs(t, err, ErrArchiveUnavailable)

	usage, err := svc.GetStorageUsage(ctx)
	require.NoError(t, err)
	assert.Zero(t, usage.TotalArchives)
}
