package crawlers

import (
	"fmt"
	"net/url"
	"strings"
)

// CandidateFilter 候选链接过滤器
// 只保留指向平台域名的http(s)链接
type CandidateFilter struct {
	// 平台域名, 例如 youtube.com
	platformHost string
}

// NewCandidateFilter 从搜索地址模板推导平台域名
func NewCandidateFilter(searchURLTemplate string) (*CandidateFilter, error) {
	parsed, err := url.Parse(fmt.Sprintf(searchURLTemplate, "x"))
	if err != nil {
		return nil, fmt.Errorf("解析搜索地址失败: %w", err)
	}
	host := strings.TrimPrefix(strings.ToLower(parsed.Hostname()), "www.")
	if host == "" {
		return nil, fmt.Errorf("搜索地址缺少主机名: %s", searchURLTemplate)
	}
	return &CandidateFilter{platformHost: host}, nil
}

// ShouldFollowLink 判断候选链接是否可以点击
// 返回是否跟随和过滤原因
func (f *CandidateFilter) ShouldFollowLink(href string) (bool, string) {
	if href == "" {
		return false, "链接为空"
	}

	parsed, err := url.Parse(href)
	if err != nil {
		return false, fmt.Sprintf("URL解析失败: %v", err)
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return false, fmt.Sprintf("不支持的协议: %s", parsed.Scheme)
	}

	host := strings.ToLower(parsed.Hostname())
	if host != f.platformHost && !strings.HasSuffix(host, "."+f.platformHost) {
		return false, fmt.Sprintf("非平台链接: %s", host)
	}

	return true, ""
}

// tailWindowStart 返回候选池起始下标
// 滚动了scrolls次之后,只在最后 ceil(total/(scrolls+1)) 个候选中选择
func tailWindowStart(total, scrolls int) int {
	if total <= 0 {
		return 0
	}
	if scrolls < 0 {
		scrolls = 0
	}
	size := (total + scrolls) / (scrolls + 1)
	if size < 1 {
		size = 1
	}
	return total - size
}
