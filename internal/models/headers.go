package models

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// CliHeaders 表示命令行传递的头部列表
// 每个字符串格式为 "Name: Value"
type CliHeaders []string

// Parse 将字符串列表解析为 http.Header
func (ch CliHeaders) Parse() (http.Header, error) {
	result := make(http.Header)
	for i, s := range ch {
		name, value, err := parseHeaderString(s)
		if err != nil {
			return nil, fmt.Errorf("参数 --header 第%d项格式错误: %w", i+1, err)
		}
		result.Set(name, value)
	}
	return result, nil
}

// parseHeaderString 解析单个头部字符串 "Name: Value"
func parseHeaderString(s string) (name, value string, err error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("格式错误: 缺少冒号分隔符,应为 'Name: Value'")
	}

	name = strings.TrimSpace(parts[0])
	value = strings.TrimSpace(parts[1])

	if name == "" {
		return "", "", fmt.Errorf("头部名称不能为空")
	}
	if strings.ContainsAny(name, " \t\r\n") {
		return "", "", fmt.Errorf("头部名称不能包含空白字符: %q", name)
	}
	if strings.ContainsAny(value, "\r\n") {
		return "", "", fmt.Errorf("头部值不能包含换行: %s", name)
	}

	return name, value, nil
}

// HeaderProvider 定义HTTP头部提供者接口
// 浏览器会话打开页面前通过它获取额外请求头
type HeaderProvider interface {
	// GetHeaders 返回按优先级合并后的头部(默认 < 配置 < 命令行)
	GetHeaders() (http.Header, error)
}

// HeaderPairs 将头部展开为 name, value, name, value... 形式
// 名称按字母排序,多值头部只取第一个值
func HeaderPairs(h http.Header) []string {
	names := make([]string, 0, len(h))
	for name := range h {
		names = append(names, name)
	}
	sort.Strings(names)

	pairs := make([]string, 0, len(names)*2)
	for _, name := range names {
		pairs = append(pairs, name, h.Get(name))
	}
	return pairs
}
