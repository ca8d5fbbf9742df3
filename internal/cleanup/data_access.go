// Package cleanup 按保留策略归档并清理在线数据
package cleanup

import (
	"context"

	"github.com/eidos-exchange/eidos/eidos-retention/internal/model"
)

// DataAccess 在线数据访问接口
//
// 时间参数均为 epoch 毫秒; Select 系列返回的行顺序不作保证。
type DataAccess interface {
	// SelectOlderThan 查询时间戳早于 threshold 的记录, 最多 limit 条
	SelectOlderThan(ctx context.Context, dataType model.DataType, threshold int64, limit int) ([]model.ArchivableData, error)
	// SelectBetween 查询时间戳在 (lower, upper) 之间的记录, 两端均不包含
	SelectBetween(ctx context.Context, dataType model.DataType, lower, upper int64, limit int) ([]model.ArchivableData, error)
	// DeleteByIDs 按 id 删除记录, 返回实际删除数
	DeleteByIDs(ctx context.Context, dataType model.DataType, ids []int64) (int64, error)
	// Count 统计时间范围内的记录数
	Count(ctx context.Context, dataType model.DataType, r model.TimeRange) (int64, error)
	// MinTimestamp 最早记录时间, 表为空时返回 nil
	MinTimestamp(ctx context.Context, dataType model.DataType) (*int64, error)
	// MaxTimestamp 最新记录时间, 表为空时返回 nil
	MaxTimestamp(ctx context.Context, dataType model.DataType) (*int64, error)
}
