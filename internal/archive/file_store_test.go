package archive

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eidos-exchange/eidos/eidos-retention/internal/model"
)

func sampleRecords(n int, base int64) []model.ArchivableData {
	records := make([]model.ArchivableData, 0, n)
	for i := 0; i < n; i++ {
		id := int64(i + 1)
		ts := base + int64(i)*60_000
		records = append(records, model.ArchivableData{
			ID:        id,
			Timestamp: ts,
			Data: model.Row{
				{Name: "id", Value: model.IntValue(id)},
				{Name: "symbol", Value: model.StringValue("BTC-USDC")},
				{Name: "open_time", Value: model.IntValue(ts)},
				{Name: "close", Value: model.NumberValue(decimal.RequireFromString("64000.123456789012345678"))},
				{Name: "note", Value: model.Null()},
			},
		})
	}
	return records
}

func TestFileStore_ArchiveEmpty(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir, true)

	result := store.ArchiveData(context.Background(), model.DataTypeRawCandles, nil)

	assert.True(t, result.Success)
	assert.Empty(t, result.ArchiveID)
	assert.Equal(t, 0, result.RecordCount)
	assert.Equal(t, int64(0), result.SizeBytes)
	assert.Equal(t, 0.0, result.CompressionRatio)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFileStore_ArchiveWriteFailure(t *testing.T) {
	base := filepath.Join(t.TempDir(), "archives")
	require.NoError(t, os.WriteFile(base, []byte("not a directory"), 0o644))
	store := NewFileStore(base, true)

	var result *model.ArchiveResult
	require.NotPanics(t, func() {
		result = store.ArchiveData(context.Background(), model.DataTypeSignals, sampleRecords(3, 1_700_000_000_000))
	})

	require.NotNil(t, result)
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Error)
	assert.Contains(t, result.Error, "create archive dir")
	assert.Empty(t, result.ArchiveID)
	assert.Equal(t, 0, result.RecordCount)
}

func TestFileStore_ArchiveCancelled(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir, false)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := store.ArchiveData(ctx, model.DataTypeSignals, sampleRecords(2, 1_700_000_000_000))

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, context.Canceled.Error())
	assert.Empty(t, result.ArchiveID)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFileStore_RoundTrip(t *testing.T) {
	for _, compressed := range []bool{true, false} {
		name := "plain"
		if compressed {
			name = "gzip"
		}
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			store := NewFileStore(dir, compressed)
			ctx := context.Background()
			records := sampleRecords(25, 1_700_000_000_000)

			result := store.ArchiveData(ctx, model.DataTypeRawCandles, records)
			require.True(t, result.Success, result.Error)
			assert.Equal(t, 25, result.RecordCount)
			assert.Greater(t, result.SizeBytes, int64(0))
			assert.Greater(t, result.CompressionRatio, 0.0)
			assert.LessOrEqual(t, result.CompressionRatio, 1.0)
			assert.True(t, strings.HasPrefix(result.ArchiveID, "raw_candles_"))

			ext := ".json"
			if compressed {
				ext = ".json.gz"
				assert.Less(t, result.CompressionRatio, 1.0)
			}
			assert.Equal(t, filepath.Join(dir, "raw_candles", result.ArchiveID+ext), result.Path)

			restored, found, err := store.RestoreData(ctx, result.ArchiveID)
			require.NoError(t, err)
			require.True(t, found)
			require.Len(t, restored, len(records))
			for i := range records {
				assert.True(t, records[i].Equal(restored[i]), "record %d differs", i)
			}
		})
	}
}

func TestFileStore_RestoreMissing(t *testing.T) {
	store := NewFileStore(t.TempDir(), true)
	ctx := context.Background()

	for _, id := range []string{"raw_candles_20260101_000000_1234", "garbage", "../etc/passwd", ""} {
		records, found, err := store.RestoreData(ctx, id)
		assert.NoError(t, err, id)
		assert.False(t, found, id)
		assert.Nil(t, records, id)
	}
}

func TestFileStore_Delete(t *testing.T) {
	store := NewFileStore(t.TempDir(), true)
	ctx := context.Background()
	dt := model.DataTypeSignals

	result := store.ArchiveData(ctx, dt, sampleRecords(3, 1_700_000_000_000))
	require.True(t, result.Success)

	deleted, err := store.DeleteArchive(ctx, result.ArchiveID)
	require.NoError(t, err)
	assert.True(t, deleted)

	infos, err := store.ListArchives(ctx, &dt)
	require.NoError(t, err)
	assert.Empty(t, infos)

	deleted, err = store.DeleteArchive(ctx, result.ArchiveID)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestFileStore_ListPartitionsByType(t *testing.T) {
	store := NewFileStore(t.TempDir(), true)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]*model.ArchiveResult, 2)
	types := []model.DataType{model.DataTypeRawCandles, model.DataTypeAuditLogs}
	for i, dt := range types {
		wg.Add(1)
		go func(i int, dt model.DataType) {
			defer wg.Done()
			results[i] = store.ArchiveData(ctx, dt, sampleRecords(i+2, 1_700_000_000_000))
		}(i, dt)
	}
	wg.Wait()

	for _, r := range results {
		require.True(t, r.Success, r.Error)
	}

	all, err := store.ListArchives(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	for i, dt := range types {
		dt := dt
		infos, err := store.ListArchives(ctx, &dt)
		require.NoError(t, err)
		require.Len(t, infos, 1)
		assert.Equal(t, results[i].ArchiveID, infos[0].ArchiveID)
		assert.Equal(t, dt, infos[0].DataType)
		assert.Equal(t, i+2, infos[0].RecordCount)
		assert.True(t, infos[0].Compressed)
	}
}

func TestFileStore_ListSortedAndSkipsForeignFiles(t *testing.T) {
	dir := t.TempDir()
	clock := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	store := NewFileStore(dir, false, WithClock(func() time.Time { return clock }))
	ctx := context.Background()

	first := store.ArchiveData(ctx, model.DataTypeSignals, sampleRecords(1, 0))
	clock = clock.Add(time.Hour)
	second := store.ArchiveData(ctx, model.DataTypeSignals, sampleRecords(2, 0))
	require.True(t, first.Success)
	require.True(t, second.Success)

	sigDir := filepath.Join(dir, "signals")
	require.NoError(t, os.WriteFile(filepath.Join(sigDir, "legacy-export.json"), []byte("{}\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(sigDir, "signals_20260101_000000_1234.json.tmp"), []byte("{}\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(sigDir, "README"), []byte("x"), 0o644))

	infos, err := store.ListArchives(ctx, nil)
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, second.ArchiveID, infos[0].ArchiveID)
	assert.Equal(t, first.ArchiveID, infos[1].ArchiveID)
	assert.Equal(t, clock, infos[0].CreatedAt)
	assert.False(t, infos[0].Compressed)
}

func TestFileStore_ListEmptyRoot(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "missing"), true)

	infos, err := store.ListArchives(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, infos)
}

func TestFileStore_RestoreSkipsBlankLines(t *testing.T) {
	dir := t.TempDir()
	sigDir := filepath.Join(dir, "signals")
	require.NoError(t, os.MkdirAll(sigDir, 0o755))

	content := "\n{\"id\":1,\"timestamp\":5,\"data\":{\"id\":1}}\n\n{\"id\":2,\"timestamp\":6,\"data\":{\"id\":2}}\n"
	id := "signals_20260102_030405_4321"
	require.NoError(t, os.WriteFile(filepath.Join(sigDir, id+".json"), []byte(content), 0o644))

	store := NewFileStore(dir, true)
	records, found, err := store.RestoreData(context.Background(), id)
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, records, 2)
	assert.Equal(t, int64(2), records[1].ID)
}

func TestNewStore_Backends(t *testing.T) {
	cfg := model.DefaultArchiveConfig()
	cfg.BasePath = t.TempDir()

	store, err := NewStore(cfg)
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, store)

	for _, b := range []model.StorageBackend{model.StorageS3, model.StorageAzure, model.StorageGCS} {
		cfg.Backend = b
		_, err := NewStore(cfg)
		assert.ErrorIs(t, err, model.ErrBackendNotImplemented)
	}
}

func TestParseArchiveID(t *testing.T) {
	p, err := parseArchiveID("aggregated_signals_20260315_231501_9999")
	require.NoError(t, err)
	assert.Equal(t, model.DataTypeAggregatedSignals, p.DataType)
	assert.Equal(t, time.Date(2026, 3, 15, 23, 15, 1, 0, time.UTC), p.CreatedAt)

	for _, bad := range []string{
		"signals_20260315_231501",
		"signals_20260315_231501_999",
		"signals_2026031_231501_1234",
		"signals_20261315_231501_1234",
		"orders_20260315_231501_1234",
	} {
		_, err := parseArchiveID(bad)
		assert.Error(t, err, bad)
	}
}

func TestNewArchiveID_Format(t *testing.T) {
	now := time.Date(2026, 7, 4, 1, 2, 3, 0, time.UTC)
	for i := 0; i < 50; i++ {
		id := newArchiveID(model.DataTypeAnalysisResults, now)
		p, err := parseArchiveID(id)
		require.NoError(t, err, id)
		assert.Equal(t, now, p.CreatedAt)
		assert.True(t, strings.HasPrefix(id, "analysis_results_20260704_010203_"))
	}
}
