package model

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRetentionPolicy_Ordering(t *testing.T) {
	tests := []struct {
		name    string
		params  PolicyParams
		wantErr bool
	}{
		{"valid", PolicyParams{HotDays: 7, WarmDays: 30, ColdDays: 90, BatchSize: 100}, false},
		{"zero hot", PolicyParams{HotDays: 0, WarmDays: 1, ColdDays: 2, BatchSize: 1}, false},
		{"hot equals warm", PolicyParams{HotDays: 30, WarmDays: 30, ColdDays: 90, BatchSize: 100}, true},
		{"warm after cold", PolicyParams{HotDays: 7, WarmDays: 100, ColdDays: 90, BatchSize: 100}, true},
		{"negative hot", PolicyParams{HotDays: -1, WarmDays: 30, ColdDays: 90, BatchSize: 100}, true},
		{"zero batch", PolicyParams{HotDays: 7, WarmDays: 30, ColdDays: 90, BatchSize: 0}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewRetentionPolicy(DataTypeRawCandles, tt.params)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidPolicy))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.params.HotDays, p.HotDays())
			assert.Equal(t, tt.params.ColdDays, p.ColdDays())
		})
	}
}

func TestNewRetentionPolicy_UnknownType(t *testing.T) {
	_, err := NewRetentionPolicy(DataType("orders"), PolicyParams{HotDays: 1, WarmDays: 2, ColdDays: 3, BatchSize: 1})
	assert.ErrorIs(t, err, ErrInvalidPolicy)
}

func TestRetentionPolicy_ThresholdsAt(t *testing.T) {
	p := MustNewRetentionPolicy(DataTypeRawCandles, PolicyParams{HotDays: 7, WarmDays: 30, ColdDays: 90, BatchSize: 10})
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	th := p.ThresholdsAt(now)

	assert.Equal(t, now.AddDate(0, 0, -7).UnixMilli(), th.Hot)
	assert.Equal(t, now.AddDate(0, 0, -30).UnixMilli(), th.Warm)
	assert.Equal(t, now.AddDate(0, 0, -90).UnixMilli(), th.Cold)
	assert.Greater(t, th.Hot, th.Warm)
	assert.Greater(t, th.Warm, th.Cold)
}

func TestParseSchedule(t *testing.T) {
	s, err := ParseSchedule("30 3 * * *")
	require.NoError(t, err)
	assert.Equal(t, DailySchedule{Hour: 3, Minute: 30}, s)
	assert.Equal(t, "30 3 * * *", s.CronSpec())
	assert.Equal(t, "03:30", s.String())

	// 日/月/周字段被忽略
	s, err = ParseSchedule("5 23 1 6 MON")
	require.NoError(t, err)
	assert.Equal(t, DailySchedule{Hour: 23, Minute: 5}, s)

	for _, bad := range []string{"", "0 2 * *", "*/5 2 * * *", "0 24 * * *", "60 1 * * *", "0 2 * * * *"} {
		_, err := ParseSchedule(bad)
		assert.ErrorIs(t, err, ErrInvalidSchedule, bad)
	}
}

func TestRetentionConfig_ValidateMissingPolicy(t *testing.T) {
	policies := DefaultPolicies()
	delete(policies, DataTypeAuditLogs)

	cfg := NewRetentionConfig(policies, DefaultArchiveConfig(), DefaultCleanupConfig())
	violations := cfg.Validate()

	require.Len(t, violations, 1)
	assert.ErrorIs(t, violations[0], ErrMissingPolicy)
	assert.Contains(t, violations[0].Error(), "audit_logs")
}

func TestRetentionConfig_ValidateReportsAll(t *testing.T) {
	archive := DefaultArchiveConfig()
	archive.BasePath = "  "
	archive.Backend = StorageS3
	cleanup := DefaultCleanupConfig()
	cleanup.Schedule = ""

	cfg := NewRetentionConfig(map[DataType]RetentionPolicy{}, archive, cleanup)
	violations := cfg.Validate()

	// 空策略 + 6 个缺失类型 + 路径 + 后端 + 调度
	assert.Len(t, violations, 10)

	err := cfg.ValidateErr()
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.ErrorIs(t, err, ErrMissingPolicy)
	assert.ErrorIs(t, err, ErrBackendNotImplemented)
	assert.ErrorIs(t, err, ErrInvalidSchedule)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestRetentionConfig_DisabledSectionsSkipChecks(t *testing.T) {
	archive := DefaultArchiveConfig()
	archive.Enabled = false
	archive.BasePath = ""
	cleanup := DefaultCleanupConfig()
	cleanup.Enabled = false
	cleanup.Schedule = ""

	cfg := NewRetentionConfig(DefaultPolicies(), archive, cleanup)
	assert.Empty(t, cfg.Validate())
	assert.NoError(t, cfg.ValidateErr())
}

func TestRetentionConfig_Immutable(t *testing.T) {
	policies := DefaultPolicies()
	cfg := NewRetentionConfig(policies, DefaultArchiveConfig(), DefaultCleanupConfig())

	delete(policies, DataTypeSignals)

	_, ok := cfg.Policy(DataTypeSignals)
	assert.True(t, ok)
}

func TestRetentionConfig_EnabledDataTypesOrder(t *testing.T) {
	policies := DefaultPolicies()
	policies[DataTypeSignals] = MustNewRetentionPolicy(DataTypeSignals, PolicyParams{
		HotDays: 7, WarmDays: 30, ColdDays: 180, CleanupEnabled: false, BatchSize: 10,
	})
	cfg := NewRetentionConfig(policies, DefaultArchiveConfig(), DefaultCleanupConfig())

	assert.Equal(t, []DataType{
		DataTypeRawCandles,
		DataTypeAggregatedCandles,
		DataTypeAggregatedSignals,
		DataTypeAnalysisResults,
		DataTypeAuditLogs,
	}, cfg.EnabledDataTypes())
}

func TestDefaultRetentionConfig_Valid(t *testing.T) {
	cfg := DefaultRetentionConfig()
	assert.Empty(t, cfg.Validate())
	assert.Equal(t, StorageFileSystem, cfg.Archive().Backend)

	p, ok := cfg.Policy(DataTypeAnalysisResults)
	require.True(t, ok)
	assert.False(t, p.ArchiveEnabled())
}

func TestParseStorageBackend(t *testing.T) {
	b, err := ParseStorageBackend("")
	require.NoError(t, err)
	assert.Equal(t, StorageFileSystem, b)

	b, err = ParseStorageBackend("GCS")
	require.NoError(t, err)
	assert.Equal(t, StorageGCS, b)
	assert.False(t, b.Implemented())

	_, err = ParseStorageBackend("ftp")
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestParseDataType(t *testing.T) {
	dt, err := ParseDataType("Raw-Candles")
	require.NoError(t, err)
	assert.Equal(t, DataTypeRawCandles, dt)
	assert.Equal(t, int64(200), dt.EstimatedRecordSize())

	_, err = ParseDataType("orders")
	assert.Error(t, err)
}
