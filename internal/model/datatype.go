package model

import (
	"fmt"
	"strings"
)

// DataType 受保留策略管理的数据类型
type DataType string

const (
	DataTypeRawCandles        DataType = "raw_candles"
	DataTypeAggregatedCandles DataType = "aggregated_candles"
	DataTypeSignals           DataType = "signals"
	DataTypeAggregatedSignals DataType = "aggregated_signals"
	DataTypeAnalysisResults   DataType = "analysis_results"
	DataTypeAuditLogs         DataType = "audit_logs"
)

// AllDataTypes 所有数据类型 (固定处理顺序)
var AllDataTypes = []DataType{
	DataTypeRawCandles,
	DataTypeAggregatedCandles,
	DataTypeSignals,
	DataTypeAggregatedSignals,
	DataTypeAnalysisResults,
	DataTypeAuditLogs,
}

// estimatedRecordBytes 单条记录的估算字节数
var estimatedRecordBytes = map[DataType]int64{
	DataTypeRawCandles:        200,
	DataTypeAggregatedCandles: 250,
	DataTypeSignals:           500,
	DataTypeAggregatedSignals: 800,
	DataTypeAnalysisResults:   2048,
	DataTypeAuditLogs:         300,
}

// String 实现 fmt.Stringer
func (t DataType) String() string {
	return string(t)
}

// Lower 归档目录和文件名使用的小写名称
func (t DataType) Lower() string {
	return strings.ToLower(string(t))
}

// IsValid 是否为已知数据类型
func (t DataType) IsValid() bool {
	_, ok := estimatedRecordBytes[t]
	return ok
}

// EstimatedRecordSize 单条记录估算大小 (字节), 仅用于统计展示
func (t DataType) EstimatedRecordSize() int64 {
	return estimatedRecordBytes[t]
}

// ParseDataType 解析数据类型名称 (不区分大小写, 支持 '-' 分隔)
func ParseDataType(s string) (DataType, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	name = strings.ReplaceAll(name, "-", "_")
	t := DataType(name)
	if !t.IsValid() {
		return "", fmt.Errorf("unknown data type %q", s)
	}
	return t, nil
}
