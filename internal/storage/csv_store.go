// Package storage 抓取结果的CSV持久化
package storage

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/RecoveryAshes/ytcrawl/internal/models"
	"github.com/rs/zerolog/log"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ErrMissingColumn 输入CSV缺少必需的列
var ErrMissingColumn = errors.New("CSV缺少必需的列")

// CSVStore 单个输出文件的CSV存储
// Save与已有文件合并并按键列去重,写入使用临时文件+重命名
type CSVStore struct {
	path string
	mu   sync.Mutex
}

// NewCSVStore 创建CSV存储
func NewCSVStore(path string) *CSVStore {
	return &CSVStore{path: path}
}

// Path 输出文件路径
func (s *CSVStore) Path() string {
	return s.path
}

// Save 合并records与已有文件后写回,返回写入的行数
// 键列相同的行只保留一行,本次的记录优先于文件中已有的记录
func (s *CSVStore) Save(records []models.Record, keyColumns []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existingHeader, existingRows, err := readTable(s.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return 0, err
	}

	var columns []string
	switch {
	case len(records) > 0:
		columns = records[0].Columns()
	case len(existingHeader) > 0:
		columns = existingHeader
	default:
		return 0, nil
	}

	keyIdx, err := indexOf(columns, keyColumns)
	if err != nil {
		return 0, err
	}

	rows := make([][]string, 0, len(records)+len(existingRows))
	for _, r := range records {
		rows = append(rows, r.Row())
	}
	if len(existingHeader) > 0 {
		reordered, err := reorder(existingHeader, existingRows, columns)
		if err != nil {
			return 0, fmt.Errorf("已有文件与当前记录格式不一致: %w", err)
		}
		rows = append(rows, reordered...)
	}

	merged := dedupRows(rows, keyIdx)
	if err := writeTable(s.path, columns, merged); err != nil {
		return 0, err
	}

	log.Info().
		Str("path", s.path).
		Int("new", len(records)).
		Int("existing", len(existingRows)).
		Int("written", len(merged)).
		Msg("结果已保存")
	return len(merged), nil
}

// LoadChannelTargets 从视频CSV中读取频道目标,按频道链接去重
// 链接无效的行跳过
func LoadChannelTargets(path string) ([]models.ChannelTarget, error) {
	header, rows, err := readTable(path)
	if err != nil {
		return nil, err
	}
	idx, err := indexOf(header, []string{"channel_name", "channel_link"})
	if err != nil {
		return nil, fmt.Errorf("读取频道列表失败 [%s]: %w", path, err)
	}

	seen := make(map[string]bool)
	targets := make([]models.ChannelTarget, 0)
	skipped := 0
	for _, row := range rows {
		target, err := models.NewChannelTarget(row[idx[0]], row[idx[1]])
		if err != nil {
			skipped++
			continue
		}
		if seen[target.Key()] {
			continue
		}
		seen[target.Key()] = true
		targets = append(targets, target)
	}

	if skipped > 0 {
		log.Warn().Int("skipped", skipped).Str("path", path).Msg("跳过无效的频道链接")
	}
	log.Debug().Int("channels", len(targets)).Str("path", path).Msg("已加载频道列表")
	return targets, nil
}

// readTable 读取表头和数据行,跳过UTF-8 BOM,短行补齐到表头长度
func readTable(path string) ([]string, [][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("打开CSV失败: %w", err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	if head, _ := br.Peek(len(utf8BOM)); string(head) == string(utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}

	r := csv.NewReader(br)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err == io.EOF {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("读取CSV表头失败: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var rows [][]string
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("读取CSV失败 [%s]: %w", path, err)
		}
		for len(row) < len(header) {
			row = append(row, "")
		}
		rows = append(rows, row)
	}
	return header, rows, nil
}

// writeTable 写入临时文件后重命名,中断时不会留下半个文件
func writeTable(path string, header []string, rows [][]string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("创建输出目录失败: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("创建临时文件失败: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	w := csv.NewWriter(tmp)
	if err := w.Write(header); err != nil {
		tmp.Close()
		return fmt.Errorf("写入CSV表头失败: %w", err)
	}
	if err := w.WriteAll(rows); err != nil {
		tmp.Close()
		return fmt.Errorf("写入CSV失败: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("替换输出文件失败: %w", err)
	}
	return nil
}

func indexOf(header, names []string) ([]int, error) {
	positions := make(map[string]int, len(header))
	for i, h := range header {
		positions[h] = i
	}

	idx := make([]int, 0, len(names))
	for _, name := range names {
		i, ok := positions[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, name)
		}
		idx = append(idx, i)
	}
	return idx, nil
}

// reorder 按目标列顺序重排已有行
func reorder(header []string, rows [][]string, columns []string) ([][]string, error) {
	idx, err := indexOf(header, columns)
	if err != nil {
		return nil, err
	}

	out := make([][]string, 0, len(rows))
	for _, row := range rows {
		cells := make([]string, len(columns))
		for i, j := range idx {
			cells[i] = row[j]
		}
		out = append(out, cells)
	}
	return out, nil
}

// dedupRows 按键列去重,保留第一次出现的行
func dedupRows(rows [][]string, keyIdx []int) [][]string {
	seen := make(map[string]bool, len(rows))
	out := make([][]string, 0, len(rows))
	for _, row := range rows {
		parts := make([]string, len(keyIdx))
		for i, j := range keyIdx {
			parts[i] = row[j]
		}
		key := strings.Join(parts, "\x00")
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, row)
	}
	return out
}
