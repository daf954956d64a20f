package core

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/RecoveryAshes/ytcrawl/internal/models"
	"github.com/RecoveryAshes/ytcrawl/internal/utils"
)

const (
	// DefaultUserAgent 默认User-Agent
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
		"AppleWebKit/537.36 (KHTML, like Gecko) " +
		"Chrome/120.0.0.0 Safari/537.36"
)

var (
	// 由浏览器管理,不允许覆盖
	forbiddenHeaders = map[string]bool{
		"host":              true,
		"content-length":    true,
		"transfer-encoding": true,
		"connection":        true,
		"cookie":            true,
	}

	sensitiveKeywords = []string{"authorization", "token", "key", "secret", "password", "credential"}

	headerNameRegex = regexp.MustCompile(`^[A-Za-z0-9!#$%&'*+.^_|~-]+$`)
)

const maxHeaderValueLength = 8192

// HeaderManager 浏览器会话请求头管理
// 实现 models.HeaderProvider, 优先级: 默认 < 配置文件 < 命令行
type HeaderManager struct {
	defaults http.Header
	config   http.Header
	cli      http.Header
}

// NewHeaderManager 创建头部管理器
// configHeaders 来自配置文件的 headers 段, cliHeaders 为 -H 参数
func NewHeaderManager(configHeaders map[string]string, cliHeaders []string) (*HeaderManager, error) {
	cli, err := models.CliHeaders(cliHeaders).Parse()
	if err != nil {
		return nil, err
	}

	config := make(http.Header, len(configHeaders))
	for name, value := range configHeaders {
		config.Set(name, value)
	}

	return &HeaderManager{
		defaults: http.Header{
			"User-Agent":      []string{DefaultUserAgent},
			"Accept-Language": []string{"en-US,en;q=0.9"},
		},
		config: config,
		cli:    cli,
	}, nil
}

// Validate 验证所有来源的头部
func (hm *HeaderManager) Validate() error {
	for source, headers := range map[string]http.Header{"配置文件": hm.config, "命令行": hm.cli} {
		for name, values := range headers {
			if err := validateHeader(name, values); err != nil {
				return fmt.Errorf("%s头部验证失败: %w", source, err)
			}
		}
	}
	return nil
}

func validateHeader(name string, values []string) error {
	if !headerNameRegex.MatchString(name) {
		return fmt.Errorf("头部名称不合法: %q", name)
	}
	if forbiddenHeaders[strings.ToLower(name)] {
		return fmt.Errorf("头部 %s 由浏览器管理,不能手动设置", name)
	}
	for _, value := range values {
		if len(value) > maxHeaderValueLength {
			return fmt.Errorf("头部 %s 的值超过%d字节", name, maxHeaderValueLength)
		}
		if strings.ContainsAny(value, "\r\n\x00") {
			return fmt.Errorf("头部 %s 的值包含控制字符", name)
		}
	}
	return nil
}

// GetMergedHeaders 按优先级合并头部
func (hm *HeaderManager) GetMergedHeaders() http.Header {
	result := make(http.Header)
	for _, layer := range []http.Header{hm.defaults, hm.config, hm.cli} {
		for name, values := range layer {
			result[name] = values
		}
	}
	return result
}

// GetHeaders 实现 HeaderProvider 接口
func (hm *HeaderManager) GetHeaders() (http.Header, error) {
	if err := hm.Validate(); err != nil {
		return nil, err
	}
	merged := hm.GetMergedHeaders()
	utils.Debugf("浏览器请求头: %v", RedactHeaders(merged))
	return merged, nil
}

// RedactHeaders 返回脱敏后的头部,用于日志
func RedactHeaders(headers http.Header) map[string]string {
	result := make(map[string]string, len(headers))
	for name, values := range headers {
		if len(values) == 0 {
			continue
		}
		result[name] = redactValue(name, values[0])
	}
	return result
}

func redactValue(name, value string) string {
	lower := strings.ToLower(name)
	sensitive := false
	for _, keyword := range sensitiveKeywords {
		if strings.Contains(lower, keyword) {
			sensitive = true
			break
		}
	}
	switch {
	case !sensitive:
		return value
	case strings.HasPrefix(value, "Bearer "):
		return "Bearer ***"
	case len(value) > 8:
		return value[:4] + "***" + value[len(value)-4:]
	default:
		return "***"
	}
}
