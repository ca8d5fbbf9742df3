package archive

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/eidos-exchange/eidos/eidos-retention/internal/model"
)

const (
	idDateLayout = "20060102"
	idTimeLayout = "150405"

	extJSON   = ".json"
	extGzip   = ".json.gz"
	extTmp    = ".tmp"
	randomMin = 1000
	randomMax = 9999
)

// newArchiveID 生成归档 id: {datatype}_{yyyyMMdd}_{HHmmss}_{4位随机数}
func newArchiveID(dataType model.DataType, now time.Time) string {
	now = now.UTC()
	n := randomMin + rand.IntN(randomMax-randomMin+1)
	return fmt.Sprintf("%s_%s_%s_%d", dataType.Lower(), now.Format(idDateLayout), now.Format(idTimeLayout), n)
}

// archiveFileName 归档 id 对应的文件名
func archiveFileName(archiveID string, compressed bool) string {
	if compressed {
		return archiveID + extGzip
	}
	return archiveID + extJSON
}

// parsedID 文件名解析结果
type parsedID struct {
	ID         string
	DataType   model.DataType
	CreatedAt  time.Time
	Compressed bool
}

// parseArchiveID 解析归档 id
//
// 数据类型名本身含下划线, 因此从右侧取最后三段。
func parseArchiveID(id string) (parsedID, error) {
	parts := strings.Split(id, "_")
	if len(parts) < 4 {
		return parsedID{}, fmt.Errorf("archive id %q: expected {type}_{date}_{time}_{nnnn}", id)
	}
	n := len(parts)
	datePart, timePart, randPart := parts[n-3], parts[n-2], parts[n-1]

	if len(randPart) != 4 {
		return parsedID{}, fmt.Errorf("archive id %q: random suffix must have 4 digits", id)
	}
	if r, err := strconv.Atoi(randPart); err != nil || r < randomMin || r > randomMax {
		return parsedID{}, fmt.Errorf("archive id %q: invalid random suffix %q", id, randPart)
	}
	createdAt, err := time.ParseInLocation(idDateLayout+idTimeLayout, datePart+timePart, time.UTC)
	if err != nil || len(datePart) != 8 || len(timePart) != 6 {
		return parsedID{}, fmt.Errorf("archive id %q: invalid timestamp %s_%s", id, datePart, timePart)
	}
	dataType, err := model.ParseDataType(strings.Join(parts[:n-3], "_"))
	if err != nil {
		return parsedID{}, fmt.Errorf("archive id %q: %w", id, err)
	}

	return parsedID{ID: id, DataType: dataType, CreatedAt: createdAt}, nil
}

// parseArchiveFileName 解析归档文件名, .tmp 等非归档文件返回错误
func parseArchiveFileName(name string) (parsedID, error) {
	var (
		id         string
		compressed bool
	)
	switch {
	case strings.HasSuffix(name, extGzip):
		id, compressed = strings.TrimSuffix(name, extGzip), true
	case strings.HasSuffix(name, extJSON):
		id = strings.TrimSuffix(name, extJSON)
	default:
		return parsedID{}, fmt.Errorf("file %q is not an archive", name)
	}

	p, err := parseArchiveID(id)
	if err != nil {
		return parsedID{}, err
	}
	p.Compressed = compressed
	return p, nil
}
