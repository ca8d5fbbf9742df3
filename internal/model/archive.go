package model

import "time"

// ArchivableData 一条待归档的数据库行快照
type ArchivableData struct {
	ID        int64 `json:"id"`
	Timestamp int64 `json:"timestamp"`
	Data      Row   `json:"data"`
}

// Equal id、时间戳和全部列都相同
func (d ArchivableData) Equal(o ArchivableData) bool {
	return d.ID == o.ID && d.Timestamp == o.Timestamp && d.Data.Equal(o.Data)
}

// ArchiveResult 一次归档写入的结果
type ArchiveResult struct {
	Success          bool     `json:"success"`
	ArchiveID        string   `json:"archive_id"`
	DataType         DataType `json:"data_type"`
	RecordCount      int      `json:"record_count"`
	SizeBytes        int64    `json:"size_bytes"`
	OriginalBytes    int64    `json:"original_bytes"`
	CompressionRatio float64  `json:"compression_ratio"`
	Path             string   `json:"path,omitempty"`
	DurationMs       int64    `json:"duration_ms"`
	Error            string   `json:"error,omitempty"`
}

// ArchiveInfo 已持久化归档文件的元数据
type ArchiveInfo struct {
	ArchiveID   string    `json:"archive_id"`
	DataType    DataType  `json:"data_type"`
	RecordCount int       `json:"record_count"`
	SizeBytes   int64     `json:"size_bytes"`
	CreatedAt   time.Time `json:"created_at"`
	Compressed  bool      `json:"compressed"`
	Path        string    `json:"path"`
}

// CompressionRatio 计算压缩率 compressed/original, 限制在 (0, 1]
//
// 原始大小为 0 时定义为 1.0。
func CompressionRatio(compressed, original int64) float64 {
	if original <= 0 {
		return 1.0
	}
	ratio := float64(compressed) / float64(original)
	if ratio > 1.0 {
		return 1.0
	}
	return ratio
}
