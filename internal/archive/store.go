// Package archive 归档文件存储
package archive

import (
	"context"
	"fmt"

	"github.com/eidos-exchange/eidos/eidos-retention/internal/model"
)

// Store 归档存储接口
//
// ArchiveData 不返回 error, 写入失败通过 ArchiveResult.Success/Error 表示。
// 归档不存在时 RestoreData 返回 found=false, DeleteArchive 返回 false, 均不是错误。
type Store interface {
	// ArchiveData 将一批记录写入新的归档单元
	ArchiveData(ctx context.Context, dataType model.DataType, records []model.ArchivableData) *model.ArchiveResult
	// RestoreData 读取归档单元中的全部记录
	RestoreData(ctx context.Context, archiveID string) ([]model.ArchivableData, bool, error)
	// DeleteArchive 删除归档单元
	DeleteArchive(ctx context.Context, archiveID string) (bool, error)
	// ListArchives 列出归档单元 (按创建时间倒序), dataType 为 nil 时列出全部
	ListArchives(ctx context.Context, dataType *model.DataType) ([]model.ArchiveInfo, error)
}

// NewStore 按配置创建归档存储
//
// 仅文件系统后端已实现, 其他后端直接返回 ErrBackendNotImplemented。
func NewStore(cfg model.ArchiveConfig, opts ...Option) (Store, error) {
	backend := cfg.Backend
	if backend == "" {
		backend = model.StorageFileSystem
	}
	if !backend.Implemented() {
		return nil, fmt.Errorf("%w: %s", model.ErrBackendNotImplemented, backend)
	}
	if cfg.BasePath == "" {
		return nil, fmt.Errorf("%w: archive base path is empty", model.ErrInvalidConfig)
	}
	return NewFileStore(cfg.BasePath, cfg.CompressionEnabled, opts...), nil
}
