// Package repository 在线数据表访问
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/eidos-exchange/eidos/eidos-retention/internal/cleanup"
	"github.com/eidos-exchange/eidos/eidos-retention/internal/model"
	"github.com/eidos-exchange/eidos/eidos-retention/pkg/logger"
)

// TableSpec 数据类型对应的表结构
type TableSpec struct {
	// Table 表名
	Table string `yaml:"table"`
	// IDColumn 主键列名
	IDColumn string `yaml:"id_column"`
	// TimestampColumn 时间戳列名 (epoch 毫秒)
	TimestampColumn string `yaml:"timestamp_column"`
}

// DefaultTableSpecs 默认表结构
var DefaultTableSpecs = map[model.DataType]TableSpec{
	model.DataTypeRawCandles:        {Table: "candles", IDColumn: "id", TimestampColumn: "open_time"},
	model.DataTypeAggregatedCandles: {Table: "aggregated_candles", IDColumn: "id", TimestampColumn: "open_time"},
	model.DataTypeSignals:           {Table: "signals", IDColumn: "id", TimestampColumn: "created_at"},
	model.DataTypeAggregatedSignals: {Table: "aggregated_signals", IDColumn: "id", TimestampColumn: "created_at"},
	model.DataTypeAnalysisResults:   {Table: "analysis_results", IDColumn: "id", TimestampColumn: "created_at"},
	model.DataTypeAuditLogs:         {Table: "audit_logs", IDColumn: "id", TimestampColumn: "created_at"},
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

func (s TableSpec) validate() error {
	for _, ident := range []string{s.Table, s.IDColumn, s.TimestampColumn} {
		if !identifierPattern.MatchString(ident) {
			return fmt.Errorf("invalid sql identifier %q", ident)
		}
	}
	return nil
}

// RetentionRepository 基于 gorm 的在线数据访问实现
type RetentionRepository struct {
	db    *gorm.DB
	specs map[model.DataType]TableSpec
	log   *zap.Logger
}

// NewRetentionRepository 创建仓储, overrides 中的表结构覆盖默认值 (空字段沿用默认)
func NewRetentionRepository(db *gorm.DB, overrides map[model.DataType]TableSpec) (*RetentionRepository, error) {
	specs := make(map[model.DataType]TableSpec, len(DefaultTableSpecs))
	for dt, spec := range DefaultTableSpecs {
		specs[dt] = spec
	}
	for dt, o := range overrides {
		if !dt.IsValid() {
			return nil, fmt.Errorf("table spec for unknown data type %q", dt)
		}
		spec := specs[dt]
		if o.Table != "" {
			spec.Table = o.Table
		}
		if o.IDColumn != "" {
			spec.IDColumn = o.IDColumn
		}
		if o.TimestampColumn != "" {
			spec.TimestampColumn = o.TimestampColumn
		}
		specs[dt] = spec
	}
	for dt, spec := range specs {
		if err := spec.validate(); err != nil {
			return nil, fmt.Errorf("table spec for %s: %w", dt, err)
		}
	}

	return &RetentionRepository{
		db:    db,
		specs: specs,
		log:   logger.Named("repository"),
	}, nil
}

// Spec 获取数据类型对应的表结构
func (r *RetentionRepository) Spec(dataType model.DataType) (TableSpec, bool) {
	spec, ok := r.specs[dataType]
	return spec, ok
}

func (r *RetentionRepository) spec(dataType model.DataType) (TableSpec, error) {
	spec, ok := r.specs[dataType]
	if !ok {
		return TableSpec{}, fmt.Errorf("no table mapping for data type %q", dataType)
	}
	return spec, nil
}

// SelectOlderThan 查询早于阈值的记录
func (r *RetentionRepository) SelectOlderThan(ctx context.Context, dataType model.DataType, threshold int64, limit int) ([]model.ArchivableData, error) {
	spec, err := r.spec(dataType)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(
		"SELECT * FROM %s WHERE %s < ? ORDER BY %s ASC, %s ASC LIMIT ?",
		spec.Table, spec.TimestampColumn, spec.TimestampColumn, spec.IDColumn,
	)
	return r.selectRows(ctx, spec, query, threshold, limit)
}

// SelectBetween 查询 (lower, upper) 区间内的记录
func (r *RetentionRepository) SelectBetween(ctx context.Context, dataType model.DataType, lower, upper int64, limit int) ([]model.ArchivableData, error) {
	spec, err := r.spec(dataType)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(
		"SELECT * FROM %s WHERE %s > ? AND %s < ? ORDER BY %s ASC, %s ASC LIMIT ?",
		spec.Table, spec.TimestampColumn, spec.TimestampColumn, spec.TimestampColumn, spec.IDColumn,
	)
	return r.selectRows(ctx, spec, query, lower, upper, limit)
}

// selectRows 执行查询并按列顺序转换为 ArchivableData
func (r *RetentionRepository) selectRows(ctx context.Context, spec TableSpec, query string, args ...any) ([]model.ArchivableData, error) {
	rows, err := r.db.WithContext(ctx).Raw(query, args...).Rows()
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", spec.Table, err)
	}
	defer rows.Close()

	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("column types %s: %w", spec.Table, err)
	}
	numeric := make([]bool, len(columnTypes))
	idIdx, tsIdx := -1, -1
	for i, ct := range columnTypes {
		typeName := strings.ToUpper(ct.DatabaseTypeName())
		numeric[i] = strings.Contains(typeName, "DECIMAL") || strings.Contains(typeName, "NUMERIC")
		switch ct.Name() {
		case spec.IDColumn:
			idIdx = i
		case spec.TimestampColumn:
			tsIdx = i
		}
	}
	if idIdx < 0 || tsIdx < 0 {
		return nil, fmt.Errorf("table %s is missing %s or %s column", spec.Table, spec.IDColumn, spec.TimestampColumn)
	}

	var records []model.ArchivableData
	for rows.Next() {
		raw := make([]any, len(columnTypes))
		ptrs := make([]any, len(columnTypes))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", spec.Table, err)
		}

		row := make(model.Row, len(columnTypes))
		for i, ct := range columnTypes {
			row[i] = model.Column{Name: ct.Name(), Value: model.ValueFromDB(raw[i], numeric[i])}
		}

		id, ok := row[idIdx].Value.Int64()
		if !ok {
			return nil, fmt.Errorf("table %s: non-integer id %s", spec.Table, row[idIdx].Value.GoString())
		}
		ts, ok := row[tsIdx].Value.Int64()
		if !ok {
			return nil, fmt.Errorf("table %s: non-integer timestamp %s", spec.Table, row[tsIdx].Value.GoString())
		}

		records = append(records, model.ArchivableData{ID: id, Timestamp: ts, Data: row})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", spec.Table, err)
	}

	return records, nil
}

// DeleteByIDs 按 id 删除
func (r *RetentionRepository) DeleteByIDs(ctx context.Context, dataType model.DataType, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	spec, err := r.spec(dataType)
	if err != nil {
		return 0, err
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE %s IN ?", spec.Table, spec.IDColumn)
	result := r.db.WithContext(ctx).Exec(query, ids)
	if result.Error != nil {
		return 0, fmt.Errorf("delete from %s: %w", spec.Table, result.Error)
	}

	r.log.Debug("deleted rows",
		zap.String("table", spec.Table),
		zap.Int("requested", len(ids)),
		zap.Int64("deleted", result.RowsAffected))

	return result.RowsAffected, nil
}

// Count 统计时间范围内的记录数
func (r *RetentionRepository) Count(ctx context.Context, dataType model.DataType, tr model.TimeRange) (int64, error) {
	spec, err := r.spec(dataType)
	if err != nil {
		return 0, err
	}

	q := r.db.WithContext(ctx).Table(spec.Table)
	if tr.From != nil {
		q = q.Where(fmt.Sprintf("%s >= ?", spec.TimestampColumn), *tr.From)
	}
	if tr.To != nil {
		q = q.Where(fmt.Sprintf("%s < ?", spec.TimestampColumn), *tr.To)
	}

	var count int64
	if err := q.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count %s: %w", spec.Table, err)
	}
	return count, nil
}

// MinTimestamp 最早记录时间
func (r *RetentionRepository) MinTimestamp(ctx context.Context, dataType model.DataType) (*int64, error) {
	return r.aggregateTimestamp(ctx, dataType, "MIN")
}

// MaxTimestamp 最新记录时间
func (r *RetentionRepository) MaxTimestamp(ctx context.Context, dataType model.DataType) (*int64, error) {
	return r.aggregateTimestamp(ctx, dataType, "MAX")
}

func (r *RetentionRepository) aggregateTimestamp(ctx context.Context, dataType model.DataType, fn string) (*int64, error) {
	spec, err := r.spec(dataType)
	if err != nil {
		return nil, err
	}

	var ts sql.NullInt64
	query := fmt.Sprintf("SELECT %s(%s) FROM %s", fn, spec.TimestampColumn, spec.Table)
	if err := r.db.WithContext(ctx).Raw(query).Row().Scan(&ts); err != nil {
		return nil, fmt.Errorf("%s timestamp %s: %w", strings.ToLower(fn), spec.Table, err)
	}
	if !ts.Valid {
		return nil, nil
	}
	return &ts.Int64, nil
}

var _ cleanup.DataAccess = (*RetentionRepository)(nil)
