package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "eidos_retention"

// collectors 保留服务的 Prometheus 指标
type collectors struct {
	// CleanupOperations 清理操作次数
	CleanupOperations *prometheus.CounterVec
	// CleanupDuration 清理操作耗时
	CleanupDuration *prometheus.HistogramVec
	// Records 处理/归档/删除的记录数
	Records *prometheus.CounterVec
	// ArchiveOperations 归档写入次数
	ArchiveOperations *prometheus.CounterVec
	// ArchiveBytes 归档写入字节数
	ArchiveBytes *prometheus.CounterVec
	// ArchiveStorageBytes 归档目录当前占用
	ArchiveStorageBytes *prometheus.GaugeVec
	// LiveRecords 在线表记录数 (最近一次统计)
	LiveRecords *prometheus.GaugeVec
}

func newCollectors(reg prometheus.Registerer) *collectors {
	factory := promauto.With(reg)

	return &collectors{
		CleanupOperations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cleanup_operations_total",
				Help:      "清理操作总数",
			},
			[]string{"data_type", "operation", "status"}, // status: success, failed, dry_run
		),
		CleanupDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "cleanup_duration_seconds",
				Help:      "清理操作耗时(秒)",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
			},
			[]string{"data_type", "operation"},
		),
		Records: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "records_total",
				Help:      "清理涉及的记录数",
			},
			[]string{"data_type", "action"}, // action: processed, archived, deleted
		),
		ArchiveOperations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "archive_operations_total",
				Help:      "归档写入总数",
			},
			[]string{"data_type", "status"},
		),
		ArchiveBytes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "archive_bytes_total",
				Help:      "归档写入字节数",
			},
			[]string{"data_type"},
		),
		ArchiveStorageBytes: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "archive_storage_bytes",
				Help:      "归档存储当前占用字节数",
			},
			[]string{"data_type"},
		),
		LiveRecords: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "live_records",
				Help:      "在线表记录数",
			},
			[]string{"data_type", "tier"},
		),
	}
}
