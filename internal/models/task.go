package models

import (
	"fmt"
	"strings"
	"time"
)

// CrawlMode 爬取模式
type CrawlMode string

const (
	ModeSearch   CrawlMode = "search"   // 开放搜索: 关键词 + 推荐链随机游走
	ModeChannels CrawlMode = "channels" // 频道模式: 逐个抓取频道视频列表
)

// TaskKind 任务类型
type TaskKind string

const (
	TaskKindSearch  TaskKind = "search"
	TaskKindChannel TaskKind = "channel"
)

// Task 分配给单个agent的工作单元
// 只有SearchSeed和ChannelTarget两种实现,创建后不可修改
type Task interface {
	// Key 任务的唯一标识,用于判断任务是否已在运行
	Key() string
	Kind() TaskKind
	String() string
}

// SearchSeed 开放搜索模式的种子关键词
type SearchSeed struct {
	Term string `json:"term"`
}

// NewSearchSeed 创建搜索种子
func NewSearchSeed(term string) (SearchSeed, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return SearchSeed{}, fmt.Errorf("搜索关键词不能为空")
	}
	return SearchSeed{Term: term}, nil
}

func (s SearchSeed) Key() string    { return "search:" + s.Term }
func (s SearchSeed) Kind() TaskKind { return TaskKindSearch }
func (s SearchSeed) String() string { return s.Term }

// ChannelTarget 频道模式的抓取目标
type ChannelTarget struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// NewChannelTarget 创建频道目标,URL必须是http(s)地址
func NewChannelTarget(name, channelURL string) (ChannelTarget, error) {
	channelURL = strings.TrimRight(strings.TrimSpace(channelURL), "/")
	if err := ValidateURL(channelURL); err != nil {
		return ChannelTarget{}, fmt.Errorf("频道链接无效 [%s]: %w", name, err)
	}
	return ChannelTarget{Name: strings.TrimSpace(name), URL: channelURL}, nil
}

func (c ChannelTarget) Key() string    { return "channel:" + c.URL }
func (c ChannelTarget) Kind() TaskKind { return TaskKindChannel }
func (c ChannelTarget) String() string { return c.Name + " <" + c.URL + ">" }

// CrawlConfig 爬取配置
type CrawlConfig struct {
	Workers             int     `json:"workers" mapstructure:"workers"`                             // 开放搜索并发agent数 (默认:4)
	PoolSize            int     `json:"pool_size" mapstructure:"pool_size"`                         // 频道模式agent池大小 (默认:8)
	Headless            bool    `json:"headless" mapstructure:"headless"`                           // 无头模式 (默认:true)
	BrowserBin          string  `json:"browser_bin,omitempty" mapstructure:"browser_bin"`           // 浏览器可执行文件,为空时自动查找
	LoadTimeout         int     `json:"load_timeout" mapstructure:"load_timeout"`                   // 元素等待超时(秒) (默认:15)
	ActionDelayMs       int     `json:"action_delay_ms" mapstructure:"action_delay_ms"`             // 页面操作后的等待(毫秒) (默认:500)
	RetryAttempts       int     `json:"retry_attempts" mapstructure:"retry_attempts"`               // 最大尝试次数 (默认:3)
	RetryDelay          int     `json:"retry_delay" mapstructure:"retry_delay"`                     // 重试间隔(秒) (默认:3)
	ScrollChance        float64 `json:"scroll_chance" mapstructure:"scroll_chance"`                 // 每步继续滚动的概率 (默认:0.5)
	MaxSearchScrolls    int     `json:"max_search_scrolls" mapstructure:"max_search_scrolls"`       // 搜索结果页最大滚动次数 (默认:15)
	MaxSuggestedScrolls int     `json:"max_suggested_scrolls" mapstructure:"max_suggested_scrolls"` // 推荐栏最大滚动次数 (默认:5)
	FlushInterval       int     `json:"flush_interval" mapstructure:"flush_interval"`               // 缓冲区汇总间隔(秒) (默认:2)
	PollIntervalMs      int     `json:"poll_interval_ms" mapstructure:"poll_interval_ms"`           // 频道池调度轮询间隔(毫秒) (默认:200)
	StatusInterval      int     `json:"status_interval" mapstructure:"status_interval"`             // 状态输出间隔(秒) (默认:5)
	SearchURL           string  `json:"search_url" mapstructure:"search_url"`                       // 搜索地址模板,%s为关键词
	PlatformMarker      string  `json:"platform_marker" mapstructure:"platform_marker"`             // 页面标题/链接中必须包含的平台标识
}

// DefaultCrawlConfig 默认爬取配置
func DefaultCrawlConfig() CrawlConfig {
	return CrawlConfig{
		Workers:             4,
		PoolSize:            8,
		Headless:            true,
		LoadTimeout:         15,
		ActionDelayMs:       500,
		RetryAttempts:       3,
		RetryDelay:          3,
		ScrollChance:        0.5,
		MaxSearchScrolls:    15,
		MaxSuggestedScrolls: 5,
		FlushInterval:       2,
		PollIntervalMs:      200,
		StatusInterval:      5,
		SearchURL:           "https://www.youtube.com/results?search_query=%s",
		PlatformMarker:      "youtube",
	}
}

// Validate 验证配置
func (c *CrawlConfig) Validate() error {
	if c.Workers < 1 || c.Workers > 64 {
		return fmt.Errorf("并发agent数必须在1-64之间")
	}
	if c.PoolSize < 1 || c.PoolSize > 64 {
		return fmt.Errorf("agent池大小必须在1-64之间")
	}
	if c.LoadTimeout < 1 || c.LoadTimeout > 120 {
		return fmt.Errorf("加载超时必须在1-120秒之间")
	}
	if c.ActionDelayMs < 0 || c.ActionDelayMs > 10000 {
		return fmt.Errorf("操作等待必须在0-10000毫秒之间")
	}
	if c.RetryAttempts < 1 || c.RetryAttempts > 10 {
		return fmt.Errorf("最大尝试次数必须在1-10之间")
	}
	if c.RetryDelay < 0 || c.RetryDelay > 60 {
		return fmt.Errorf("重试间隔必须在0-60秒之间")
	}
	if c.ScrollChance < 0.0 || c.ScrollChance > 1.0 {
		return fmt.Errorf("滚动概率必须在0.0-1.0之间")
	}
	if c.MaxSearchScrolls < 0 || c.MaxSuggestedScrolls < 0 {
		return fmt.Errorf("最大滚动次数不能为负数")
	}
	if c.FlushInterval < 1 || c.FlushInterval > 60 {
		return fmt.Errorf("汇总间隔必须在1-60秒之间")
	}
	if c.PollIntervalMs < 10 || c.PollIntervalMs > 5000 {
		return fmt.Errorf("轮询间隔必须在10-5000毫秒之间")
	}
	if strings.Count(c.SearchURL, "%s") != 1 {
		return fmt.Errorf("搜索地址模板必须包含且仅包含一个%%s")
	}
	if c.PlatformMarker == "" {
		return fmt.Errorf("平台标识不能为空")
	}
	return nil
}

func (c *CrawlConfig) ActionDelay() time.Duration {
	return time.Duration(c.ActionDelayMs) * time.Millisecond
}

func (c *CrawlConfig) LoadTimeoutDuration() time.Duration {
	return time.Duration(c.LoadTimeout) * time.Second
}

func (c *CrawlConfig) RetryDelayDuration() time.Duration {
	return time.Duration(c.RetryDelay) * time.Second
}

func (c *CrawlConfig) FlushIntervalDuration() time.Duration {
	return time.Duration(c.FlushInterval) * time.Second
}

func (c *CrawlConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// RunStats 一次运行的统计
type RunStats struct {
	Mode     CrawlMode `json:"mode"`
	Tasks    int       `json:"tasks"`    // 输入任务数
	Records  int       `json:"records"`  // 收集到的记录数(合并前)
	Saved    int       `json:"saved"`    // 合并去重后写入的总行数
	Workers  int       `json:"workers"`  // 结束时的worker数
	Respawns int       `json:"respawns"` // 重启的worker数
	Recorded int       `json:"recorded"` // 频道模式: 产出记录的任务
	Skipped  int       `json:"skipped"`  // 频道模式: 跳过的任务
	Failed   int       `json:"failed"`   // 频道模式: 失败的任务
	Duration float64   `json:"duration"` // 总耗时(秒)
}
