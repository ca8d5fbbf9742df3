package config

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/eidos-exchange/eidos/eidos-retention/internal/model"
	"github.com/eidos-exchange/eidos/eidos-retention/internal/repository"
)

// 运行锁模式
const (
	RunLockNone  = "none"
	RunLockRedis = "redis"
)

// RetentionSection retention 配置段
type RetentionSection struct {
	// Policies 按数据类型名覆盖默认策略, 未出现的数据类型沿用默认值
	Policies map[string]PolicySection        `yaml:"policies" json:"policies"`
	Archive  ArchiveSection                  `yaml:"archive" json:"archive"`
	Cleanup  CleanupSection                  `yaml:"cleanup" json:"cleanup"`
	Tables   map[string]repository.TableSpec `yaml:"tables" json:"tables"`
}

// PolicySection 单个数据类型的策略, 未配置的字段取该类型默认值
type PolicySection struct {
	HotDays        *int  `yaml:"hot_days" json:"hot_days"`
	WarmDays       *int  `yaml:"warm_days" json:"warm_days"`
	ColdDays       *int  `yaml:"cold_days" json:"cold_days"`
	ArchiveEnabled *bool `yaml:"archive_enabled" json:"archive_enabled"`
	CleanupEnabled *bool `yaml:"cleanup_enabled" json:"cleanup_enabled"`
	BatchSize      *int  `yaml:"batch_size" json:"batch_size"`
}

type ArchiveSection struct {
	Enabled            *bool  `yaml:"enabled" json:"enabled"`
	Backend            string `yaml:"backend" json:"backend"`
	CompressionEnabled *bool  `yaml:"compression_enabled" json:"compression_enabled"`
	BasePath           string `yaml:"base_path" json:"base_path"`
	MaxFileSizeMB      int    `yaml:"max_file_size_mb" json:"max_file_size_mb"`
	RetentionYears     int    `yaml:"retention_years" json:"retention_years"`
	EncryptionEnabled  bool   `yaml:"encryption_enabled" json:"encryption_enabled"`
}

type CleanupSection struct {
	Enabled             *bool  `yaml:"enabled" json:"enabled"`
	Schedule            string `yaml:"schedule" json:"schedule"`
	Timezone            string `yaml:"timezone" json:"timezone"`
	BatchSize           int    `yaml:"batch_size" json:"batch_size"`
	MaxExecutionMinutes int    `yaml:"max_execution_minutes" json:"max_execution_minutes"`
	DryRun              bool   `yaml:"dry_run" json:"dry_run"`
	NotificationEnabled *bool  `yaml:"notification_enabled" json:"notification_enabled"`
	GracePeriodSeconds  int    `yaml:"grace_period_seconds" json:"grace_period_seconds"`
	RunLock             string `yaml:"run_lock" json:"run_lock"`
	RunLockTTLSeconds   int    `yaml:"run_lock_ttl_seconds" json:"run_lock_ttl_seconds"`
}

func (r *RetentionSection) applyDefaults() {
	archive := model.DefaultArchiveConfig()
	if r.Archive.Enabled == nil {
		r.Archive.Enabled = boolPtr(archive.Enabled)
	}
	if r.Archive.Backend == "" {
		r.Archive.Backend = string(archive.Backend)
	}
	if r.Archive.CompressionEnabled == nil {
		r.Archive.CompressionEnabled = boolPtr(archive.CompressionEnabled)
	}
	if r.Archive.BasePath == "" {
		r.Archive.BasePath = archive.BasePath
	}
	if r.Archive.MaxFileSizeMB == 0 {
		r.Archive.MaxFileSizeMB = archive.MaxFileSizeMB
	}
	if r.Archive.RetentionYears == 0 {
		r.Archive.RetentionYears = archive.RetentionYears
	}

	cleanup := model.DefaultCleanupConfig()
	if r.Cleanup.Enabled == nil {
		r.Cleanup.Enabled = boolPtr(cleanup.Enabled)
	}
	if r.Cleanup.Schedule == "" {
		r.Cleanup.Schedule = cleanup.Schedule
	}
	if r.Cleanup.BatchSize == 0 {
		r.Cleanup.BatchSize = cleanup.BatchSize
	}
	if r.Cleanup.MaxExecutionMinutes == 0 {
		r.Cleanup.MaxExecutionMinutes = cleanup.MaxExecutionMinutes
	}
	if r.Cleanup.NotificationEnabled == nil {
		r.Cleanup.NotificationEnabled = boolPtr(cleanup.NotificationEnabled)
	}
	if r.Cleanup.GracePeriodSeconds == 0 {
		r.Cleanup.GracePeriodSeconds = 30
	}
	if r.Cleanup.RunLock == "" {
		r.Cleanup.RunLock = RunLockNone
	}
	if r.Cleanup.RunLockTTLSeconds == 0 {
		r.Cleanup.RunLockTTLSeconds = 300
	}
}

// Build 构建不可变的保留配置, 收集全部错误后以 *model.ValidationError 返回
func (r *RetentionSection) Build() (*model.RetentionConfig, error) {
	var violations []error

	policies := model.DefaultPolicies()
	for _, name := range slices.Sorted(maps.Keys(r.Policies)) {
		dt, err := model.ParseDataType(name)
		if err != nil {
			violations = append(violations, fmt.Errorf("%w: policies: %v", model.ErrInvalidPolicy, err))
			continue
		}
		policy, err := r.Policies[name].build(dt, policies[dt])
		if err != nil {
			violations = append(violations, err)
			continue
		}
		policies[dt] = policy
	}

	backend, err := model.ParseStorageBackend(r.Archive.Backend)
	if err != nil {
		violations = append(violations, err)
	}
	archive := model.ArchiveConfig{
		Enabled:            deref(r.Archive.Enabled),
		Backend:            backend,
		CompressionEnabled: deref(r.Archive.CompressionEnabled),
		BasePath:           r.Archive.BasePath,
		MaxFileSizeMB:      r.Archive.MaxFileSizeMB,
		RetentionYears:     r.Archive.RetentionYears,
		EncryptionEnabled:  r.Archive.EncryptionEnabled,
	}

	cleanup := model.CleanupConfig{
		Enabled:             deref(r.Cleanup.Enabled),
		Schedule:            r.Cleanup.Schedule,
		BatchSize:           r.Cleanup.BatchSize,
		MaxExecutionMinutes: r.Cleanup.MaxExecutionMinutes,
		DryRun:              r.Cleanup.DryRun,
		NotificationEnabled: deref(r.Cleanup.NotificationEnabled),
	}

	if _, err := r.RunLockMode(); err != nil {
		violations = append(violations, err)
	}
	if _, err := r.Location(); err != nil {
		violations = append(violations, err)
	}
	if _, err := r.TableOverrides(); err != nil {
		violations = append(violations, err)
	}

	cfg := model.NewRetentionConfig(policies, archive, cleanup)
	violations = append(violations, cfg.Validate()...)
	if len(violations) > 0 {
		return nil, &model.ValidationError{Violations: violations}
	}
	return cfg, nil
}

func (p PolicySection) build(dt model.DataType, def model.RetentionPolicy) (model.RetentionPolicy, error) {
	params := model.PolicyParams{
		HotDays:        orInt(p.HotDays, def.HotDays()),
		WarmDays:       orInt(p.WarmDays, def.WarmDays()),
		ColdDays:       orInt(p.ColdDays, def.ColdDays()),
		ArchiveEnabled: def.ArchiveEnabled(),
		CleanupEnabled: def.CleanupEnabled(),
		BatchSize:      orInt(p.BatchSize, def.BatchSize()),
	}
	if p.ArchiveEnabled != nil {
		params.ArchiveEnabled = *p.ArchiveEnabled
	}
	if p.CleanupEnabled != nil {
		params.CleanupEnabled = *p.CleanupEnabled
	}
	return model.NewRetentionPolicy(dt, params)
}

// RunLockMode 运行锁模式: none 或 redis
func (r *RetentionSection) RunLockMode() (string, error) {
	switch mode := strings.ToLower(strings.TrimSpace(r.Cleanup.RunLock)); mode {
	case "", RunLockNone:
		return RunLockNone, nil
	case RunLockRedis:
		return RunLockRedis, nil
	default:
		return "", fmt.Errorf("%w: unknown run_lock %q", model.ErrInvalidConfig, r.Cleanup.RunLock)
	}
}

// RunLockTTL 运行锁过期时间
func (r *RetentionSection) RunLockTTL() time.Duration {
	return time.Duration(r.Cleanup.RunLockTTLSeconds) * time.Second
}

// GracePeriod 停止调度时的等待时间
func (r *RetentionSection) GracePeriod() time.Duration {
	return time.Duration(r.Cleanup.GracePeriodSeconds) * time.Second
}

// Location 调度时区, 未配置时为本地时区
func (r *RetentionSection) Location() (*time.Location, error) {
	if r.Cleanup.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(r.Cleanup.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: timezone %q: %v", model.ErrInvalidConfig, r.Cleanup.Timezone, err)
	}
	return loc, nil
}

// TableOverrides 按数据类型解析表结构覆盖
func (r *RetentionSection) TableOverrides() (map[model.DataType]repository.TableSpec, error) {
	if len(r.Tables) == 0 {
		return nil, nil
	}
	out := make(map[model.DataType]repository.TableSpec, len(r.Tables))
	for name, spec := range r.Tables {
		dt, err := model.ParseDataType(name)
		if err != nil {
			return nil, fmt.Errorf("tables: %w", err)
		}
		out[dt] = spec
	}
	return out, nil
}

func boolPtr(b bool) *bool { return &b }

func deref(b *bool) bool { return b != nil && *b }

func orInt(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}
