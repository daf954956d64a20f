package models

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestValidateURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"有效的HTTP URL", "http://example.com", false},
		{"有效的HTTPS URL", "https://www.youtube.com/@channel", false},
		{"无效的协议", "ftp://example.com", true},
		{"无效的URL", "not a url", true},
		{"空URL", "", true},
		{"无协议", "youtube.com/@channel", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateURL() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCrawlConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(c *CrawlConfig)
		wantErr bool
	}{
		{"默认配置", func(c *CrawlConfig) {}, false},
		{"并发数为0", func(c *CrawlConfig) { c.Workers = 0 }, true},
		{"池大小过大", func(c *CrawlConfig) { c.PoolSize = 65 }, true},
		{"滚动概率无效", func(c *CrawlConfig) { c.ScrollChance = 1.5 }, true},
		{"尝试次数为0", func(c *CrawlConfig) { c.RetryAttempts = 0 }, true},
		{"搜索模板缺少占位符", func(c *CrawlConfig) { c.SearchURL = "https://www.youtube.com/results" }, true},
		{"轮询间隔过小", func(c *CrawlConfig) { c.PollIntervalMs = 1 }, true},
		{"操作等待为0", func(c *CrawlConfig) { c.ActionDelayMs = 0 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultCrawlConfig()
			tt.modify(&config)
			err := config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCrawlConfig_Durations(t *testing.T) {
	config := DefaultCrawlConfig()

	if got := config.ActionDelay(); got != 500*time.Millisecond {
		t.Errorf("ActionDelay() = %v, want 500ms", got)
	}
	if got := config.RetryDelayDuration(); got != 3*time.Second {
		t.Errorf("RetryDelayDuration() = %v, want 3s", got)
	}
	if got := config.FlushIntervalDuration(); got != 2*time.Second {
		t.Errorf("FlushIntervalDuration() = %v, want 2s", got)
	}
	if got := config.PollInterval(); got != 200*time.Millisecond {
		t.Errorf("PollInterval() = %v, want 200ms", got)
	}
}

func TestTaskKeys(t *testing.T) {
	seed, err := NewSearchSeed("  lofi beats ")
	if err != nil {
		t.Fatalf("NewSearchSeed() error = %v", err)
	}
	if seed.Key() != "search:lofi beats" {
		t.Errorf("Key() = %q", seed.Key())
	}

	target, err := NewChannelTarget("Some Channel", "https://www.youtube.com/@some/")
	if err != nil {
		t.Fatalf("NewChannelTarget() error = %v", err)
	}
	if target.URL != "https://www.youtube.com/@some" {
		t.Errorf("末尾斜杠未去除: %q", target.URL)
	}
	if target.Key() != "channel:https://www.youtube.com/@some" {
		t.Errorf("Key() = %q", target.Key())
	}

	var tasks []Task = []Task{seed, target}
	if tasks[0].Kind() != TaskKindSearch || tasks[1].Kind() != TaskKindChannel {
		t.Errorf("任务类型不正确")
	}

	if _, err := NewSearchSeed("   "); err == nil {
		t.Error("空关键词应返回错误")
	}
	if _, err := NewChannelTarget("x", "www.youtube.com/@x"); err == nil {
		t.Error("缺少协议的频道链接应返回错误")
	}
}

func TestNewVideoRecord(t *testing.T) {
	sel := SelectionOutcome{ThumbnailLink: "https://i.ytimg.com/vi/abc/hq.jpg"}
	ext := ExtractionOutcome{
		ViewCount:  1200,
		Title:      "标题",
		VideoURL:   "https://www.youtube.com/watch?v=abc",
		ScrapeDate: "Oct 18, 2026",
	}

	record, err := NewVideoRecord(sel, ext)
	if err != nil {
		t.Fatalf("NewVideoRecord() error = %v", err)
	}
	if record.ThumbnailLink != sel.ThumbnailLink {
		t.Errorf("ThumbnailLink = %q", record.ThumbnailLink)
	}
	if len(record.Row()) != len(record.Columns()) {
		t.Errorf("行长度 %d 与列数 %d 不一致", len(record.Row()), len(record.Columns()))
	}

	ext.Title = ""
	ext.VideoURL = ""
	_, err = NewVideoRecord(sel, ext)
	if !errors.Is(err, ErrIncompleteRecord) {
		t.Fatalf("期望ErrIncompleteRecord, got %v", err)
	}
	if !strings.Contains(err.Error(), "video_url") || !strings.Contains(err.Error(), "title") {
		t.Errorf("错误信息应列出缺失字段: %v", err)
	}
}

func TestNewChannelRecord(t *testing.T) {
	tests := []struct {
		name    string
		titles  []string
		dates   []string
		views   []int64
		wantErr error
		wantLen int
	}{
		{"长度一致", []string{"a", "b", "c"}, []string{"1 day ago", "2 days ago", "1 week ago"}, []int64{1, 2, 3}, nil, 3},
		{"日期缺一条", []string{"a", "b", "c"}, []string{"1 day ago", "2 days ago"}, []int64{1, 2, 3}, ErrMisalignedChannelData, 0},
		{"标题为空", nil, []string{"1 day ago"}, []int64{1}, ErrEmptyChannelData, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record, err := NewChannelRecord("ch", "https://www.youtube.com/@ch", tt.titles, tt.dates, tt.views, "Oct 18, 2026")
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewChannelRecord() error = %v", err)
			}
			if record.Len() != tt.wantLen {
				t.Errorf("Len() = %d, want %d", record.Len(), tt.wantLen)
			}
			row := record.Row()
			if row[2] != `["a","b","c"]` {
				t.Errorf("标题单元格 = %s", row[2])
			}
			if row[4] != `[1,2,3]` {
				t.Errorf("播放量单元格 = %s", row[4])
			}
		})
	}
}

func TestVideoIdentity(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want string
	}{
		{"观看页", "https://www.youtube.com/watch?v=abc123&t=10s", "abc123"},
		{"同一视频不同参数", "https://www.youtube.com/watch?list=PL1&v=abc123", "abc123"},
		{"短视频页", "https://www.youtube.com/shorts/xyz", "https://www.youtube.com/shorts/xyz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := VideoIdentity(tt.url); got != tt.want {
				t.Errorf("VideoIdentity() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCliHeaders_Parse(t *testing.T) {
	headers, err := CliHeaders{"Accept-Language: en-US", "X-Test:  value "}.Parse()
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if headers.Get("Accept-Language") != "en-US" || headers.Get("X-Test") != "value" {
		t.Errorf("解析结果不正确: %v", headers)
	}

	pairs := HeaderPairs(headers)
	if len(pairs) != 4 || pairs[0] != "Accept-Language" || pairs[3] != "value" {
		t.Errorf("HeaderPairs() = %v", pairs)
	}

	for _, bad := range []string{"NoColon", ": value", "Bad Name: v"} {
		if _, err := (CliHeaders{bad}).Parse(); err == nil {
			t.Errorf("%q 应解析失败", bad)
		}
	}
}

func TestRunReport_JSON(t *testing.T) {
	report := NewRunReport(ModeSearch, "data/out.csv", DefaultCrawlConfig(), time.Now())
	if report.RunID == "" {
		t.Fatal("运行ID不应为空")
	}

	data, err := report.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON() error = %v", err)
	}

	var decoded RunReport
	if err := decoded.FromJSON(data); err != nil {
		t.Fatalf("FromJSON() error = %v", err)
	}
	if decoded.RunID != report.RunID || decoded.Mode != ModeSearch {
		t.Errorf("解码结果不匹配: %+v", decoded)
	}
}

func TestChannelVideosURL(t *testing.T) {
	if got := ChannelVideosURL("https://www.youtube.com/@x/"); got != "https://www.youtube.com/@x/videos" {
		t.Errorf("ChannelVideosURL() = %q", got)
	}
}
