package model

import "github.com/shopspring/decimal"

// Candle 原始 K 线
type Candle struct {
	ID       int64           `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	Symbol   string          `json:"symbol" gorm:"type:varchar(20);not null"`
	Interval string          `json:"interval" gorm:"type:varchar(5);not null"`
	OpenTime int64           `json:"open_time" gorm:"type:bigint;not null;index"`
	Open     decimal.Decimal `json:"open" gorm:"type:decimal(36,18);not null"`
	High     decimal.Decimal `json:"high" gorm:"type:decimal(36,18);not null"`
	Low      decimal.Decimal `json:"low" gorm:"type:decimal(36,18);not null"`
	Close    decimal.Decimal `json:"close" gorm:"type:decimal(36,18);not null"`
	Volume   decimal.Decimal `json:"volume" gorm:"type:decimal(36,18);not null"`
}

// TableName 表名
func (Candle) TableName() string { return "candles" }

// AggregatedCandle 聚合 K 线
type AggregatedCandle struct {
	ID         int64           `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	Symbol     string          `json:"symbol" gorm:"type:varchar(20);not null"`
	Period     string          `json:"period" gorm:"type:varchar(5);not null"`
	OpenTime   int64           `json:"open_time" gorm:"type:bigint;not null;index"`
	Open       decimal.Decimal `json:"open" gorm:"type:decimal(36,18);not null"`
	High       decimal.Decimal `json:"high" gorm:"type:decimal(36,18);not null"`
	Low        decimal.Decimal `json:"low" gorm:"type:decimal(36,18);not null"`
	Close      decimal.Decimal `json:"close" gorm:"type:decimal(36,18);not null"`
	Volume     decimal.Decimal `json:"volume" gorm:"type:decimal(36,18);not null"`
	TradeCount int32           `json:"trade_count" gorm:"type:int;not null;default:0"`
}

// TableName 表名
func (AggregatedCandle) TableName() string { return "aggregated_candles" }

// Signal 交易信号
type Signal struct {
	ID         int64           `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	Symbol     string          `json:"symbol" gorm:"type:varchar(20);not null"`
	SignalType string          `json:"signal_type" gorm:"type:varchar(32);not null"`
	Strength   decimal.Decimal `json:"strength" gorm:"type:decimal(10,4);not null"`
	Payload    *string         `json:"payload" gorm:"type:text"`
	CreatedAt  int64           `json:"created_at" gorm:"column:created_at;type:bigint;not null;index;autoCreateTime:false"`
}

// TableName 表名
func (Signal) TableName() string { return "signals" }

// AggregatedSignal 聚合信号
type AggregatedSignal struct {
	ID          int64           `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	Symbol      string          `json:"symbol" gorm:"type:varchar(20);not null"`
	WindowSize  string          `json:"window_size" gorm:"type:varchar(10);not null"`
	Score       decimal.Decimal `json:"score" gorm:"type:decimal(10,4);not null"`
	SignalCount int32           `json:"signal_count" gorm:"type:int;not null;default:0"`
	CreatedAt   int64           `json:"created_at" gorm:"column:created_at;type:bigint;not null;index;autoCreateTime:false"`
}

// TableName 表名
func (AggregatedSignal) TableName() string { return "aggregated_signals" }

// AnalysisResult 分析结果
type AnalysisResult struct {
	ID        int64  `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	Symbol    string `json:"symbol" gorm:"type:varchar(20);not null"`
	Analyzer  string `json:"analyzer" gorm:"type:varchar(64);not null"`
	Result    string `json:"result" gorm:"type:text;not null"`
	CreatedAt int64  `json:"created_at" gorm:"column:created_at;type:bigint;not null;index;autoCreateTime:false"`
}

// TableName 表名
func (AnalysisResult) TableName() string { return "analysis_results" }

// AuditLog 审计日志
type AuditLog struct {
	ID        int64   `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	Actor     string  `json:"actor" gorm:"type:varchar(64);not null"`
	Action    string  `json:"action" gorm:"type:varchar(64);not null"`
	Detail    *string `json:"detail" gorm:"type:text"`
	Success   bool    `json:"success" gorm:"not null"`
	CreatedAt int64   `json:"created_at" gorm:"column:created_at;type:bigint;not null;index;autoCreateTime:false"`
}

// TableName 表名
func (AuditLog) TableName() string { return "audit_logs" }

// LiveTables 受保留策略管理的在线表模型, 用于 AutoMigrate
func LiveTables() []any {
	return []any{
		&Candle{},
		&AggregatedCandle{},
		&Signal{},
		&AggregatedSignal{},
		&AnalysisResult{},
		&AuditLog{},
	}
}
