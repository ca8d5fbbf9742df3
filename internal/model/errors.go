package model

import (
	"errors"
	"strings"
)

var (
	// ErrInvalidPolicy 保留策略参数非法
	ErrInvalidPolicy = errors.New("invalid retention policy")
	// ErrMissingPolicy 数据类型缺少保留策略
	ErrMissingPolicy = errors.New("missing retention policy")
	// ErrInvalidConfig 全局归档/清理配置非法
	ErrInvalidConfig = errors.New("invalid retention config")
	// ErrBackendNotImplemented 存储后端未实现
	ErrBackendNotImplemented = errors.New("storage backend not implemented")
	// ErrInvalidSchedule 调度表达式非法
	ErrInvalidSchedule = errors.New("invalid cleanup schedule")
	// ErrNotInitialized 服务未初始化
	ErrNotInitialized = errors.New("retention service not initialized")
)

// ValidationError 配置校验错误, 包含全部违规项
type ValidationError struct {
	Violations []error
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		msgs = append(msgs, v.Error())
	}
	return "retention config validation failed: " + strings.Join(msgs, "; ")
}

// Unwrap 支持 errors.Is 匹配任一违规项
func (e *ValidationError) Unwrap() []error {
	return e.Violations
}
