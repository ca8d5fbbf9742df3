package archive

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/eidos-exchange/eidos/eidos-retention/internal/model"
	"github.com/eidos-exchange/eidos/eidos-retention/pkg/logger"
)

const maxIDAttempts = 5

// FileStore 基于本地文件系统的归档存储
//
// 目录布局: {basePath}/{datatype}/{archiveID}.json[.gz], 每行一条 JSON 记录。
type FileStore struct {
	basePath    string
	compression bool
	now         func() time.Time
	log         *zap.Logger
}

// Option FileStore 选项
type Option func(*FileStore)

// WithClock 设置时钟 (测试使用)
func WithClock(now func() time.Time) Option {
	return func(s *FileStore) {
		s.now = now
	}
}

// NewFileStore 创建文件系统归档存储
func NewFileStore(basePath string, compression bool, opts ...Option) *FileStore {
	s := &FileStore{
		basePath:    basePath,
		compression: compression,
		now:         time.Now,
		log:         logger.Named("archive"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BasePath 归档根目录
func (s *FileStore) BasePath() string {
	return s.basePath
}

// ArchiveData 写入归档
func (s *FileStore) ArchiveData(ctx context.Context, dataType model.DataType, records []model.ArchivableData) *model.ArchiveResult {
	start := time.Now()
	result := &model.ArchiveResult{DataType: dataType}

	if len(records) == 0 {
		result.Success = true
		return result
	}

	fail := func(err error) *model.ArchiveResult {
		result.Success = false
		result.Error = err.Error()
		result.DurationMs = time.Since(start).Milliseconds()
		s.log.Error("archive write failed",
			zap.String("data_type", dataType.String()),
			zap.Int("records", len(records)),
			zap.Error(err))
		return result
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	dir := filepath.Join(s.basePath, dataType.Lower())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fail(fmt.Errorf("create archive dir: %w", err))
	}

	payload, err := encodeRecords(records)
	if err != nil {
		return fail(err)
	}

	var (
		archiveID string
		path      string
		size      int64
	)
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		archiveID = newArchiveID(dataType, s.now())
		path = filepath.Join(dir, archiveFileName(archiveID, s.compression))
		size, err = s.writeFile(path, payload)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		break
	}
	if err != nil {
		return fail(err)
	}

	result.Success = true
	result.ArchiveID = archiveID
	result.RecordCount = len(records)
	result.SizeBytes = size
	result.OriginalBytes = int64(len(payload))
	result.CompressionRatio = model.CompressionRatio(size, int64(len(payload)))
	result.Path = path
	result.DurationMs = time.Since(start).Milliseconds()

	s.log.Info("archive written",
		zap.String("data_type", dataType.String()),
		zap.String("archive_id", archiveID),
		zap.Int("records", result.RecordCount),
		zap.Int64("size_bytes", size),
		zap.Float64("compression_ratio", result.CompressionRatio))

	return result
}

// encodeRecords 每条记录编码为一行 JSON
func encodeRecords(records []model.ArchivableData) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i := range records {
		if err := enc.Encode(records[i]); err != nil {
			return nil, fmt.Errorf("encode record %d: %w", records[i].ID, err)
		}
	}
	return buf.Bytes(), nil
}

// writeFile 先写临时文件, 再以硬链接方式发布到最终路径
//
// 目标已存在时返回 fs.ErrExist, 不覆盖已有归档。
func (s *FileStore) writeFile(path string, payload []byte) (int64, error) {
	if _, err := os.Stat(path); err == nil {
		return 0, fs.ErrExist
	}

	tmp := path + extTmp
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return 0, fmt.Errorf("create archive file: %w", err)
	}
	defer os.Remove(tmp)

	if err := writePayload(f, payload, s.compression); err != nil {
		f.Close()
		return 0, err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return 0, fmt.Errorf("sync archive file: %w", err)
	}
	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("close archive file: %w", err)
	}

	if err := os.Link(tmp, path); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return 0, fs.ErrExist
		}
		return 0, fmt.Errorf("publish archive file: %w", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("stat archive file: %w", err)
	}
	return info.Size(), nil
}

func writePayload(w io.Writer, payload []byte, compress bool) error {
	if !compress {
		if _, err := w.Write(payload); err != nil {
			return fmt.Errorf("write archive: %w", err)
		}
		return nil
	}

	gz := gzip.NewWriter(w)
	if _, err := gz.Write(payload); err != nil {
		gz.Close()
		return fmt.Errorf("write gzip archive: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("flush gzip archive: %w", err)
	}
	return nil
}

// RestoreData 读取归档
func (s *FileStore) RestoreData(ctx context.Context, archiveID string) ([]model.ArchivableData, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	path, compressed, found, err := s.locate(archiveID)
	if err != nil || !found {
		return nil, false, err
	}

	var records []model.ArchivableData
	err = scanLines(path, compressed, func(line []byte) error {
		var rec model.ArchivableData
		if err := json.Unmarshal(line, &rec); err != nil {
			return fmt.Errorf("decode archive record: %w", err)
		}
		records = append(records, rec)
		return nil
	})
	if err != nil {
		s.log.Error("archive restore failed",
			zap.String("archive_id", archiveID),
			zap.Error(err))
		return nil, true, err
	}

	s.log.Info("archive restored",
		zap.String("archive_id", archiveID),
		zap.Int("records", len(records)))
	return records, true, nil
}

// DeleteArchive 删除归档
func (s *FileStore) DeleteArchive(ctx context.Context, archiveID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	path, _, found, err := s.locate(archiveID)
	if err != nil || !found {
		return false, err
	}

	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		s.log.Error("archive delete failed",
			zap.String("archive_id", archiveID),
			zap.Error(err))
		return false, fmt.Errorf("delete archive %s: %w", archiveID, err)
	}

	s.log.Info("archive deleted", zap.String("archive_id", archiveID))
	return true, nil
}

// locate 查找归档 id 对应的文件 (文件名以 "{id}." 开头, 忽略 .tmp)
func (s *FileStore) locate(archiveID string) (string, bool, bool, error) {
	if archiveID == "" || strings.ContainsAny(archiveID, `/\`) || strings.Contains(archiveID, "..") {
		return "", false, false, nil
	}
	parsed, err := parseArchiveID(archiveID)
	if err != nil {
		return "", false, false, nil
	}

	dir := filepath.Join(s.basePath, parsed.DataType.Lower())
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", false, false, nil
		}
		return "", false, false, fmt.Errorf("read archive dir: %w", err)
	}

	prefix := archiveID + "."
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix) || strings.HasSuffix(name, extTmp) {
			continue
		}
		p, err := parseArchiveFileName(name)
		if err != nil || p.ID != archiveID {
			continue
		}
		return filepath.Join(dir, name), p.Compressed, true, nil
	}
	return "", false, false, nil
}

// ListArchives 列出归档
//
// 无法解析的文件记录日志后跳过, 记录数每次读取时重新统计。
func (s *FileStore) ListArchives(ctx context.Context, dataType *model.DataType) ([]model.ArchiveInfo, error) {
	root := s.basePath
	if dataType != nil {
		root = filepath.Join(s.basePath, dataType.Lower())
	}

	infos := make([]model.ArchiveInfo, 0)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == root {
				return fs.SkipAll
			}
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || strings.HasSuffix(d.Name(), extTmp) {
			return nil
		}

		parsed, err := parseArchiveFileName(d.Name())
		if err != nil {
			s.log.Warn("skip unrecognized archive file",
				zap.String("path", path),
				zap.Error(err))
			return nil
		}
		if dataType != nil && parsed.DataType != *dataType {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			s.log.Warn("skip unreadable archive file", zap.String("path", path), zap.Error(err))
			return nil
		}
		count, err := countRecords(path, parsed.Compressed)
		if err != nil {
			s.log.Warn("skip corrupt archive file", zap.String("path", path), zap.Error(err))
			return nil
		}

		infos = append(infos, model.ArchiveInfo{
			ArchiveID:   parsed.ID,
			DataType:    parsed.DataType,
			RecordCount: count,
			SizeBytes:   info.Size(),
			CreatedAt:   parsed.CreatedAt,
			Compressed:  parsed.Compressed,
			Path:        path,
		})
		return nil
	})
	if err != nil {
		s.log.Error("list archives failed", zap.String("root", root), zap.Error(err))
		return nil, fmt.Errorf("list archives: %w", err)
	}

	sort.SliceStable(infos, func(i, j int) bool {
		if infos[i].CreatedAt.Equal(infos[j].CreatedAt) {
			return infos[i].ArchiveID > infos[j].ArchiveID
		}
		return infos[i].CreatedAt.After(infos[j].CreatedAt)
	})
	return infos, nil
}

// countRecords 统计归档文件中的非空行数
func countRecords(path string, compressed bool) (int, error) {
	n := 0
	err := scanLines(path, compressed, func([]byte) error {
		n++
		return nil
	})
	return n, err
}

// scanLines 逐行读取归档文件, 跳过空行
func scanLines(path string, compressed bool, fn func(line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if compressed {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("open gzip archive: %w", err)
		}
		defer gz.Close()
		r = gz
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 64*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if err := fn(line); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read archive: %w", err)
	}
	return nil
}

var _ Store = (*FileStore)(nil)
