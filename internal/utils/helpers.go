package utils

import (
	"bufio"
	"fmt"
	"math/rand"
	"os"
	"strings"
)

// ReadLinesFromFile 从文件中读取非空行
// 跳过空行和以#开头的注释行,重复行只保留第一次出现
func ReadLinesFromFile(filepath string) ([]string, error) {
	file, err := os.Open(filepath)
	if err != nil {
		return nil, fmt.Errorf("打开文件失败: %w", err)
	}
	defer file.Close()

	lines := make([]string, 0)
	seen := make(map[string]bool)
	scanner := bufio.NewScanner(file)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// 跳过空行和注释行
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if seen[line] {
			continue
		}
		seen[line] = true
		lines = append(lines, line)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("读取文件失败: %w", err)
	}

	if len(lines) == 0 {
		return nil, fmt.Errorf("文件中没有有效内容: %s", filepath)
	}

	Debugf("从文件加载了 %d 行: %s", len(lines), filepath)
	return lines, nil
}

// SampleLines 不放回地随机抽取n行
// n大于等于总数时返回全部(顺序打乱)
func SampleLines(lines []string, n int, rng *rand.Rand) []string {
	shuffled := make([]string, len(lines))
	copy(shuffled, lines)
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	if n < 0 || n >= len(shuffled) {
		return shuffled
	}
	return shuffled[:n]
}
