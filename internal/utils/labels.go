package utils

import (
	"math"
	"strconv"
	"strings"
	"unicode"
)

// ParseCountLabel 将页面上的计数文本转换为整数
// 例如 "1,234 views" -> 1234, "1.2K views" -> 1200, "3.4M subscribers" -> 3400000
// 逗号忽略,遇到K/M/B确定倍数后停止,遇到其他字符停止; 无数字时返回0
func ParseCountLabel(label string) int64 {
	var digits strings.Builder
	multiplier := 1.0

scan:
	for _, r := range strings.TrimSpace(label) {
		if unicode.IsDigit(r) || r == '.' {
			digits.WriteRune(r)
			continue
		}
		if r == ',' {
			continue
		}

		switch unicode.ToLower(r) {
		case 'k':
			multiplier = 1e3
		case 'm':
			multiplier = 1e6
		case 'b':
			multiplier = 1e9
		}
		break scan
	}

	if digits.Len() == 0 {
		return 0
	}

	value, err := strconv.ParseFloat(digits.String(), 64)
	if err != nil {
		return 0
	}
	return int64(math.Round(value * multiplier))
}
