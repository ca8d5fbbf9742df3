package model

import "time"

// CleanupOperation 清理操作类型
type CleanupOperation string

const (
	// OperationArchiveAndCleanup 温数据归档后删除
	OperationArchiveAndCleanup CleanupOperation = "archive_and_cleanup"
	// OperationCleanupExpired 冷数据过期删除
	OperationCleanupExpired CleanupOperation = "cleanup_expired"
	// OperationDataTypeRun 整个数据类型未执行 (运行锁被占用、已取消)
	OperationDataTypeRun CleanupOperation = "data_type_run"
)

// CleanupResult 单个数据类型一次策略执行的结果
type CleanupResult struct {
	DataType         DataType         `json:"data_type"`
	Operation        CleanupOperation `json:"operation"`
	RecordsProcessed int              `json:"records_processed"`
	RecordsArchived  int              `json:"records_archived"`
	RecordsDeleted   int              `json:"records_deleted"`
	ArchiveID        string           `json:"archive_id,omitempty"`
	DurationMs       int64            `json:"duration_ms"`
	Success          bool             `json:"success"`
	Error            string           `json:"error,omitempty"`
	DryRun           bool             `json:"dry_run"`
	FinishedAt       time.Time        `json:"finished_at"`
}

// FullCleanupResult 多个清理结果的汇总
type FullCleanupResult struct {
	Success        bool             `json:"success"`
	DryRun         bool             `json:"dry_run"`
	Results        []*CleanupResult `json:"results"`
	TotalProcessed int              `json:"total_processed"`
	TotalArchived  int              `json:"total_archived"`
	TotalDeleted   int              `json:"total_deleted"`
	FailureCount   int              `json:"failure_count"`
	DurationMs     int64            `json:"duration_ms"`
}

// NewFullCleanupResult 汇总清理结果, 全部成功时 Success 为 true
func NewFullCleanupResult(results []*CleanupResult, dryRun bool, duration time.Duration) *FullCleanupResult {
	full := &FullCleanupResult{
		Success:    true,
		DryRun:     dryRun,
		Results:    results,
		DurationMs: duration.Milliseconds(),
	}
	for _, r := range results {
		full.TotalProcessed += r.RecordsProcessed
		full.TotalArchived += r.RecordsArchived
		full.TotalDeleted += r.RecordsDeleted
		if !r.Success {
			full.Success = false
			full.FailureCount++
		}
	}
	return full
}

// DataStatistics 单个数据类型的分层统计
type DataStatistics struct {
	DataType           DataType  `json:"data_type"`
	TotalRecords       int64     `json:"total_records"`
	HotRecords         int64     `json:"hot_records"`
	WarmRecords        int64     `json:"warm_records"`
	ColdRecords        int64     `json:"cold_records"`
	OldestTimestamp    *int64    `json:"oldest_timestamp,omitempty"`
	NewestTimestamp    *int64    `json:"newest_timestamp,omitempty"`
	EstimatedSizeBytes int64     `json:"estimated_size_bytes"`
	CollectedAt        time.Time `json:"collected_at"`
}

// DataTypeMetrics 单个数据类型的累计指标
type DataTypeMetrics struct {
	DataType             DataType  `json:"data_type"`
	Operations           int64     `json:"operations"`
	SuccessfulOperations int64     `json:"successful_operations"`
	FailedOperations     int64     `json:"failed_operations"`
	RecordsProcessed     int64     `json:"records_processed"`
	RecordsArchived      int64     `json:"records_archived"`
	RecordsDeleted       int64     `json:"records_deleted"`
	AverageDurationMs    float64   `json:"average_duration_ms"`
	ArchivesCreated      int64     `json:"archives_created"`
	ArchiveBytes         int64     `json:"archive_bytes"`
	AverageCompression   float64   `json:"average_compression_ratio"`
	LastRunAt            time.Time `json:"last_run_at"`
	LastSuccessAt        time.Time `json:"last_success_at"`
	LastError            string    `json:"last_error,omitempty"`
}

// RetentionMetrics 进程级累计指标快照
type RetentionMetrics struct {
	TotalOperations         int64                        `json:"total_operations"`
	SuccessfulOperations    int64                        `json:"successful_operations"`
	FailedOperations        int64                        `json:"failed_operations"`
	DryRunOperations        int64                        `json:"dry_run_operations"`
	SuccessRate             float64                      `json:"success_rate"`
	TotalRecordsProcessed   int64                        `json:"total_records_processed"`
	TotalRecordsArchived    int64                        `json:"total_records_archived"`
	TotalRecordsDeleted     int64                        `json:"total_records_deleted"`
	TotalArchivesCreated    int64                        `json:"total_archives_created"`
	FailedArchives          int64                        `json:"failed_archives"`
	TotalArchiveBytes       int64                        `json:"total_archive_bytes"`
	AverageCompressionRatio float64                      `json:"average_compression_ratio"`
	AverageDurationMs       float64                      `json:"average_duration_ms"`
	LastOperationAt         time.Time                    `json:"last_operation_at"`
	StartedAt               time.Time                    `json:"started_at"`
	DataTypes               map[DataType]DataTypeMetrics `json:"data_types"`
}

// DataTypeUsage 单个数据类型的归档占用
type DataTypeUsage struct {
	ArchiveCount int        `json:"archive_count"`
	TotalBytes   int64      `json:"total_bytes"`
	RecordCount  int64      `json:"record_count"`
	Oldest       *time.Time `json:"oldest,omitempty"`
	Newest       *time.Time `json:"newest,omitempty"`
}

// StorageUsage 归档存储占用
type StorageUsage struct {
	TotalArchives int                        `json:"total_archives"`
	TotalBytes    int64                      `json:"total_bytes"`
	TotalRecords  int64                      `json:"total_records"`
	ByDataType    map[DataType]DataTypeUsage `json:"by_data_type"`
	CollectedAt   time.Time                  `json:"collected_at"`
}

// GrowthPoint 数据增长采样点
type GrowthPoint struct {
	DataType           DataType  `json:"data_type"`
	Timestamp          time.Time `json:"timestamp"`
	RecordCount        int64     `json:"record_count"`
	EstimatedSizeBytes int64     `json:"estimated_size_bytes"`
}

// TimeRange 时间戳范围 [From, To), nil 表示该侧不限
type TimeRange struct {
	From *int64
	To   *int64
}
