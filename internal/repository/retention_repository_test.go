package repository

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/eidos-exchange/eidos/eidos-retention/internal/model"
)

// setupTestDB 创建测试数据库
func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// 内存库每个连接独立, 固定单连接
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(model.LiveTables()...))
	return db
}

func insertCandles(t *testing.T, db *gorm.DB, times ...int64) []model.Candle {
	candles := make([]model.Candle, 0, len(times))
	for _, ts := range times {
		candles = append(candles, model.Candle{
			Symbol:   "BTC-USDC",
			Interval: "1m",
			OpenTime: ts,
			Open:     decimal.RequireFromString("100.5"),
			High:     decimal.RequireFromString("101"),
			Low:      decimal.RequireFromString("99.25"),
			Close:    decimal.RequireFromString("100"),
			Volume:   decimal.RequireFromString("12.75"),
		})
	}
	require.NoError(t, db.Create(&candles).Error)
	return candles
}

func newRepo(t *testing.T, db *gorm.DB) *RetentionRepository {
	repo, err := NewRetentionRepository(db, nil)
	require.NoError(t, err)
	return repo
}

func TestRetentionRepository_SelectOlderThan(t *testing.T) {
	db := setupTestDB(t)
	repo := newRepo(t, db)
	ctx := context.Background()
	insertCandles(t, db, 300, 100, 200, 400)

	records, err := repo.SelectOlderThan(ctx, model.DataTypeRawCandles, 300, 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, int64(100), records[0].Timestamp)
	assert.Equal(t, int64(200), records[1].Timestamp)

	v, ok := records[0].Data.Get("symbol")
	require.True(t, ok)
	s, _ := v.Str()
	assert.Equal(t, "BTC-USDC", s)

	id, ok := records[0].Data.Get("id")
	require.True(t, ok)
	idVal, _ := id.Int64()
	assert.Equal(t, records[0].ID, idVal)

	limited, err := repo.SelectOlderThan(ctx, model.DataTypeRawCandles, 1000, 3)
	require.NoError(t, err)
	assert.Len(t, limited, 3)
}

func TestRetentionRepository_SelectBetweenExclusive(t *testing.T) {
	db := setupTestDB(t)
	repo := newRepo(t, db)
	ctx := context.Background()
	insertCandles(t, db, 100, 150, 200, 250, 300)

	records, err := repo.SelectBetween(ctx, model.DataTypeRawCandles, 100, 300, 10)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, int64(150), records[0].Timestamp)
	assert.Equal(t, int64(250), records[2].Timestamp)
}

func TestRetentionRepository_DeleteByIDs(t *testing.T) {
	db := setupTestDB(t)
	repo := newRepo(t, db)
	ctx := context.Background()
	candles := insertCandles(t, db, 100, 200, 300)

	deleted, err := repo.DeleteByIDs(ctx, model.DataTypeRawCandles, []int64{candles[0].ID, candles[2].ID, 9999})
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	var remaining []model.Candle
	require.NoError(t, db.Find(&remaining).Error)
	require.Len(t, remaining, 1)
	assert.Equal(t, int64(200), remaining[0].OpenTime)

	deleted, err = repo.DeleteByIDs(ctx, model.DataTypeRawCandles, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), deleted)
}

func TestRetentionRepository_CountAndBounds(t *testing.T) {
	db := setupTestDB(t)
	repo := newRepo(t, db)
	ctx := context.Background()

	minTs, err := repo.MinTimestamp(ctx, model.DataTypeRawCandles)
	require.NoError(t, err)
	assert.Nil(t, minTs)

	insertCandles(t, db, 100, 200, 300, 400)

	from, to := int64(200), int64(400)
	total, err := repo.Count(ctx, model.DataTypeRawCandles, model.TimeRange{})
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)

	inRange, err := repo.Count(ctx, model.DataTypeRawCandles, model.TimeRange{From: &from, To: &to})
	require.NoError(t, err)
	assert.Equal(t, int64(2), inRange)

	before, err := repo.Count(ctx, model.DataTypeRawCandles, model.TimeRange{To: &from})
	require.NoError(t, err)
	assert.Equal(t, int64(1), before)

	minTs, err = repo.MinTimestamp(ctx, model.DataTypeRawCandles)
	require.NoError(t, err)
	require.NotNil(t, minTs)
	assert.Equal(t, int64(100), *minTs)

	maxTs, err := repo.MaxTimestamp(ctx, model.DataTypeRawCandles)
	require.NoError(t, err)
	require.NotNil(t, maxTs)
	assert.Equal(t, int64(400), *maxTs)
}

func TestRetentionRepository_AuditLogNulls(t *testing.T) {
	db := setupTestDB(t)
	repo := newRepo(t, db)
	ctx := context.Background()

	detail := "login"
	require.NoError(t, db.Create(&[]model.AuditLog{
		{Actor: "alice", Action: "login", Detail: &detail, Success: true, CreatedAt: 10},
		{Actor: "bob", Action: "logout", Detail: nil, Success: false, CreatedAt: 20},
	}).Error)

	records, err := repo.SelectOlderThan(ctx, model.DataTypeAuditLogs, 100, 10)
	require.NoError(t, err)
	require.Len(t, records, 2)

	v, ok := records[1].Data.Get("detail")
	require.True(t, ok)
	assert.True(t, v.IsNull())
}

func TestNewRetentionRepository_Overrides(t *testing.T) {
	db := setupTestDB(t)

	repo, err := NewRetentionRepository(db, map[model.DataType]TableSpec{
		model.DataTypeSignals: {Table: "trading.signals_v2"},
	})
	require.NoError(t, err)
	spec, ok := repo.Spec(model.DataTypeSignals)
	require.True(t, ok)
	assert.Equal(t, "trading.signals_v2", spec.Table)
	assert.Equal(t, "created_at", spec.TimestampColumn)

	_, err = NewRetentionRepository(db, map[model.DataType]TableSpec{
		model.DataTypeSignals: {Table: "signals; DROP TABLE candles"},
	})
	assert.Error(t, err)

	_, err = NewRetentionRepository(db, map[model.DataType]TableSpec{
		model.DataType("orders"): {Table: "orders"},
	})
	assert.Error(t, err)
}
