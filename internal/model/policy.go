package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const dayMillis = int64(24 * time.Hour / time.Millisecond)

// RetentionPolicy 单个数据类型的保留策略
//
// 字段只能通过 NewRetentionPolicy 设置, 保证 hotDays < warmDays < coldDays。
type RetentionPolicy struct {
	dataType       DataType
	hotDays        int
	warmDays       int
	coldDays       int
	archiveEnabled bool
	cleanupEnabled bool
	batchSize      int
}

// PolicyParams 构造保留策略的参数
type PolicyParams struct {
	HotDays        int
	WarmDays       int
	ColdDays       int
	ArchiveEnabled bool
	CleanupEnabled bool
	BatchSize      int
}

// NewRetentionPolicy 创建保留策略
func NewRetentionPolicy(dataType DataType, p PolicyParams) (RetentionPolicy, error) {
	if !dataType.IsValid() {
		return RetentionPolicy{}, fmt.Errorf("%w: unknown data type %q", ErrInvalidPolicy, dataType)
	}
	if p.HotDays < 0 {
		return RetentionPolicy{}, fmt.Errorf("%w: %s hot_days must not be negative, got %d", ErrInvalidPolicy, dataType, p.HotDays)
	}
	if p.HotDays >= p.WarmDays || p.WarmDays >= p.ColdDays {
		return RetentionPolicy{}, fmt.Errorf("%w: %s requires hot_days < warm_days < cold_days, got %d/%d/%d",
			ErrInvalidPolicy, dataType, p.HotDays, p.WarmDays, p.ColdDays)
	}
	if p.BatchSize <= 0 {
		return RetentionPolicy{}, fmt.Errorf("%w: %s batch_size must be positive, got %d", ErrInvalidPolicy, dataType, p.BatchSize)
	}
	return RetentionPolicy{
		dataType:       dataType,
		hotDays:        p.HotDays,
		warmDays:       p.WarmDays,
		coldDays:       p.ColdDays,
		archiveEnabled: p.ArchiveEnabled,
		cleanupEnabled: p.CleanupEnabled,
		batchSize:      p.BatchSize,
	}, nil
}

// MustNewRetentionPolicy 创建保留策略, 参数非法时 panic (仅用于内置默认值)
func MustNewRetentionPolicy(dataType DataType, p PolicyParams) RetentionPolicy {
	policy, err := NewRetentionPolicy(dataType, p)
	if err != nil {
		panic(err)
	}
	return policy
}

func (p RetentionPolicy) DataType() DataType   { return p.dataType }
func (p RetentionPolicy) HotDays() int         { return p.hotDays }
func (p RetentionPolicy) WarmDays() int        { return p.warmDays }
func (p RetentionPolicy) ColdDays() int        { return p.coldDays }
func (p RetentionPolicy) ArchiveEnabled() bool { return p.archiveEnabled }
func (p RetentionPolicy) CleanupEnabled() bool { return p.cleanupEnabled }
func (p RetentionPolicy) BatchSize() int       { return p.batchSize }

// Thresholds 三个分层阈值 (epoch 毫秒)
type Thresholds struct {
	Hot  int64
	Warm int64
	Cold int64
}

// ThresholdsAt 以 now 为基准计算阈值
//
// 阈值在调用时计算, 不缓存; 同一次操作内应只计算一次并复用结果。
func (p RetentionPolicy) ThresholdsAt(now time.Time) Thresholds {
	ms := now.UnixMilli()
	return Thresholds{
		Hot:  ms - int64(p.hotDays)*dayMillis,
		Warm: ms - int64(p.warmDays)*dayMillis,
		Cold: ms - int64(p.coldDays)*dayMillis,
	}
}

// HotThreshold 当前时刻的热数据阈值
func (p RetentionPolicy) HotThreshold() int64 { return p.ThresholdsAt(time.Now()).Hot }

// WarmThreshold 当前时刻的温数据阈值
func (p RetentionPolicy) WarmThreshold() int64 { return p.ThresholdsAt(time.Now()).Warm }

// ColdThreshold 当前时刻的冷数据阈值
func (p RetentionPolicy) ColdThreshold() int64 { return p.ThresholdsAt(time.Now()).Cold }

// StorageBackend 归档存储后端
type StorageBackend string

const (
	StorageFileSystem StorageBackend = "filesystem"
	StorageS3         StorageBackend = "s3"
	StorageAzure      StorageBackend = "azure"
	StorageGCS        StorageBackend = "gcs"
)

// Implemented 后端是否已实现 (目前仅文件系统)
func (b StorageBackend) Implemented() bool {
	return b == StorageFileSystem
}

// ParseStorageBackend 解析存储后端, 空值视为文件系统
func ParseStorageBackend(s string) (StorageBackend, error) {
	switch b := StorageBackend(strings.ToLower(strings.TrimSpace(s))); b {
	case "", "file", "file_system", StorageFileSystem:
		return StorageFileSystem, nil
	case StorageS3, StorageAzure, StorageGCS:
		return b, nil
	default:
		return "", fmt.Errorf("%w: unknown storage backend %q", ErrInvalidConfig, s)
	}
}

// ArchiveConfig 全局归档配置
type ArchiveConfig struct {
	Enabled            bool
	Backend            StorageBackend
	CompressionEnabled bool
	BasePath           string
	// MaxFileSizeMB 仅作展示, 不强制
	MaxFileSizeMB int
	// RetentionYears 归档文件自身的保留年限, 本服务不主动清理
	RetentionYears int
	// EncryptionEnabled 未实现, 开启时仅记录告警
	EncryptionEnabled bool
}

// CleanupConfig 全局清理配置
type CleanupConfig struct {
	Enabled bool
	// Schedule 5 段 cron 表达式, 仅取分钟与小时字段
	Schedule  string
	BatchSize int
	// MaxExecutionMinutes 仅作参考, 不作为超时强制执行
	MaxExecutionMinutes int
	DryRun              bool
	NotificationEnabled bool
}

// DailySchedule 每日固定触发时刻
type DailySchedule struct {
	Hour   int
	Minute int
}

// CronSpec 转换为标准 5 段 cron 表达式 (每日 HH:MM)
func (s DailySchedule) CronSpec() string {
	return fmt.Sprintf("%d %d * * *", s.Minute, s.Hour)
}

// String 实现 fmt.Stringer
func (s DailySchedule) String() string {
	return fmt.Sprintf("%02d:%02d", s.Hour, s.Minute)
}

// ParseSchedule 解析清理调度表达式
//
// 表达式必须是 5 段 (分 时 日 月 周), 只有分钟和小时生效且必须为固定数字;
// 日/月/周字段被解析但忽略, 任务每天在 HH:MM 触发一次。
func ParseSchedule(spec string) (DailySchedule, error) {
	fields := strings.Fields(spec)
	if len(fields) != 5 {
		return DailySchedule{}, fmt.Errorf("%w: expected 5 fields, got %d in %q", ErrInvalidSchedule, len(fields), spec)
	}
	minute, err := strconv.Atoi(fields[0])
	if err != nil || minute < 0 || minute > 59 {
		return DailySchedule{}, fmt.Errorf("%w: minute field %q must be 0-59", ErrInvalidSchedule, fields[0])
	}
	hour, err := strconv.Atoi(fields[1])
	if err != nil || hour < 0 || hour > 23 {
		return DailySchedule{}, fmt.Errorf("%w: hour field %q must be 0-23", ErrInvalidSchedule, fields[1])
	}
	return DailySchedule{Hour: hour, Minute: minute}, nil
}

// RetentionConfig 保留配置聚合根, 创建后不可修改
type RetentionConfig struct {
	policies map[DataType]RetentionPolicy
	archive  ArchiveConfig
	cleanup  CleanupConfig
}

// NewRetentionConfig 创建保留配置 (复制 policies, 调用方后续修改不影响配置)
func NewRetentionConfig(policies map[DataType]RetentionPolicy, archive ArchiveConfig, cleanup CleanupConfig) *RetentionConfig {
	copied := make(map[DataType]RetentionPolicy, len(policies))
	for t, p := range policies {
		copied[t] = p
	}
	if archive.Backend == "" {
		archive.Backend = StorageFileSystem
	}
	return &RetentionConfig{
		policies: copied,
		archive:  archive,
		cleanup:  cleanup,
	}
}

// Policy 获取数据类型的保留策略
func (c *RetentionConfig) Policy(t DataType) (RetentionPolicy, bool) {
	p, ok := c.policies[t]
	return p, ok
}

// Archive 归档配置
func (c *RetentionConfig) Archive() ArchiveConfig { return c.archive }

// Cleanup 清理配置
func (c *RetentionConfig) Cleanup() CleanupConfig { return c.cleanup }

// EnabledDataTypes 按固定顺序返回开启清理的数据类型
func (c *RetentionConfig) EnabledDataTypes() []DataType {
	types := make([]DataType, 0, len(AllDataTypes))
	for _, t := range AllDataTypes {
		if p, ok := c.policies[t]; ok && p.cleanupEnabled {
			types = append(types, t)
		}
	}
	return types
}

// Validate 校验配置, 返回全部违规项 (无违规时返回 nil)
func (c *RetentionConfig) Validate() []error {
	var violations []error

	if len(c.policies) == 0 {
		violations = append(violations, fmt.Errorf("%w: no retention policies configured", ErrMissingPolicy))
	}
	for _, t := range AllDataTypes {
		if _, ok := c.policies[t]; !ok {
			violations = append(violations, fmt.Errorf("%w for data type %s", ErrMissingPolicy, t))
		}
	}

	if c.archive.Enabled {
		if strings.TrimSpace(c.archive.BasePath) == "" {
			violations = append(violations, fmt.Errorf("%w: archive base path is required when archiving is enabled", ErrInvalidConfig))
		}
		if !c.archive.Backend.Implemented() {
			violations = append(violations, fmt.Errorf("%w: %s", ErrBackendNotImplemented, c.archive.Backend))
		}
	}

	if c.cleanup.Enabled {
		if strings.TrimSpace(c.cleanup.Schedule) == "" {
			violations = append(violations, fmt.Errorf("%w: schedule is required when cleanup is enabled", ErrInvalidSchedule))
		} else if _, err := ParseSchedule(c.cleanup.Schedule); err != nil {
			violations = append(violations, err)
		}
	}

	return violations
}

// ValidateErr 校验配置, 有违规时返回 *ValidationError
func (c *RetentionConfig) ValidateErr() error {
	if v := c.Validate(); len(v) > 0 {
		return &ValidationError{Violations: v}
	}
	return nil
}

// DefaultPolicies 内置默认保留策略
func DefaultPolicies() map[DataType]RetentionPolicy {
	return map[DataType]RetentionPolicy{
		DataTypeRawCandles: MustNewRetentionPolicy(DataTypeRawCandles, PolicyParams{
			HotDays: 7, WarmDays: 30, ColdDays: 90, ArchiveEnabled: true, CleanupEnabled: true, BatchSize: 1000,
		}),
		DataTypeAggregatedCandles: MustNewRetentionPolicy(DataTypeAggregatedCandles, PolicyParams{
			HotDays: 30, WarmDays: 180, ColdDays: 730, ArchiveEnabled: true, CleanupEnabled: true, BatchSize: 1000,
		}),
		DataTypeSignals: MustNewRetentionPolicy(DataTypeSignals, PolicyParams{
			HotDays: 7, WarmDays: 30, ColdDays: 180, ArchiveEnabled: true, CleanupEnabled: true, BatchSize: 500,
		}),
		DataTypeAggregatedSignals: MustNewRetentionPolicy(DataTypeAggregatedSignals, PolicyParams{
			HotDays: 14, WarmDays: 90, ColdDays: 365, ArchiveEnabled: true, CleanupEnabled: true, BatchSize: 500,
		}),
		DataTypeAnalysisResults: MustNewRetentionPolicy(DataTypeAnalysisResults, PolicyParams{
			HotDays: 7, WarmDays: 30, ColdDays: 90, ArchiveEnabled: false, CleanupEnabled: true, BatchSize: 500,
		}),
		DataTypeAuditLogs: MustNewRetentionPolicy(DataTypeAuditLogs, PolicyParams{
			HotDays: 30, WarmDays: 365, ColdDays: 2555, ArchiveEnabled: true, CleanupEnabled: true, BatchSize: 1000,
		}),
	}
}

// DefaultArchiveConfig 默认归档配置
func DefaultArchiveConfig() ArchiveConfig {
	return ArchiveConfig{
		Enabled:            true,
		Backend:            StorageFileSystem,
		CompressionEnabled: true,
		BasePath:           "data/archives",
		MaxFileSizeMB:      100,
		RetentionYears:     7,
	}
}

// DefaultCleanupConfig 默认清理配置 (每日 02:00)
func DefaultCleanupConfig() CleanupConfig {
	return CleanupConfig{
		Enabled:             true,
		Schedule:            "0 2 * * *",
		BatchSize:           1000,
		MaxExecutionMinutes: 60,
		DryRun:              false,
		NotificationEnabled: true,
	}
}

// DefaultRetentionConfig 默认保留配置
func DefaultRetentionConfig() *RetentionConfig {
	return NewRetentionConfig(DefaultPolicies(), DefaultArchiveConfig(), DefaultCleanupConfig())
}
