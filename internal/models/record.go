package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// ScrapeDateLayout 抓取日期格式,例如 "Jan 02, 2006"
const ScrapeDateLayout = "Jan 02, 2006"

var (
	ErrIncompleteRecord      = errors.New("视频记录字段不完整")
	ErrEmptyChannelData      = errors.New("频道视频列表为空")
	ErrMisalignedChannelData = errors.New("频道视频列表长度不一致")
)

// 持久化列定义
var (
	VideoColumns = []string{
		"view_count", "date", "title", "description", "channel_name", "channel_link",
		"subscriber_count", "likes", "video_url", "thumbnail_link", "scrape_date",
	}
	VideoKeyColumns = []string{"video_url"}

	ChannelColumns = []string{
		"channel_name", "channel_link", "video_titles", "video_upload_dates", "video_views", "scrape_date",
	}
	ChannelKeyColumns = []string{"channel_link"}
)

// Record 可持久化的抓取结果
type Record interface {
	Columns() []string
	Row() []string
}

// SelectionOutcome 选择阶段的结果
type SelectionOutcome struct {
	ThumbnailLink string `json:"thumbnail_link"`
	CandidateURL  string `json:"candidate_url"`
}

// ExtractionOutcome 视频页字段提取结果
type ExtractionOutcome struct {
	ViewCount       int64  `json:"view_count"`
	Date            string `json:"date"`
	Title           string `json:"title"`
	Description     string `json:"description"`
	ChannelName     string `json:"channel_name"`
	ChannelLink     string `json:"channel_link"`
	SubscriberCount int64  `json:"subscriber_count"`
	Likes           int64  `json:"likes"`
	VideoURL        string `json:"video_url"`
	ScrapeDate      string `json:"scrape_date"`
}

// VideoRecord 单个视频的元数据
type VideoRecord struct {
	ViewCount       int64  `json:"view_count"`
	Date            string `json:"date"`
	Title           string `json:"title"`
	Description     string `json:"description"`
	ChannelName     string `json:"channel_name"`
	ChannelLink     string `json:"channel_link"`
	SubscriberCount int64  `json:"subscriber_count"`
	Likes           int64  `json:"likes"`
	VideoURL        string `json:"video_url"`
	ThumbnailLink   string `json:"thumbnail_link"`
	ScrapeDate      string `json:"scrape_date"`
}

// NewVideoRecord 合并选择结果和提取结果
// 缺少视频地址、标题或抓取日期时返回ErrIncompleteRecord
func NewVideoRecord(sel SelectionOutcome, ext ExtractionOutcome) (VideoRecord, error) {
	var missing []string
	if ext.VideoURL == "" {
		missing = append(missing, "video_url")
	}
	if ext.Title == "" {
		missing = append(missing, "title")
	}
	if ext.ScrapeDate == "" {
		missing = append(missing, "scrape_date")
	}
	if len(missing) > 0 {
		return VideoRecord{}, fmt.Errorf("%w: 缺少 %s", ErrIncompleteRecord, strings.Join(missing, ", "))
	}

	return VideoRecord{
		ViewCount:       ext.ViewCount,
		Date:            ext.Date,
		Title:           ext.Title,
		Description:     ext.Description,
		ChannelName:     ext.ChannelName,
		ChannelLink:     ext.ChannelLink,
		SubscriberCount: ext.SubscriberCount,
		Likes:           ext.Likes,
		VideoURL:        ext.VideoURL,
		ThumbnailLink:   sel.ThumbnailLink,
		ScrapeDate:      ext.ScrapeDate,
	}, nil
}

func (r VideoRecord) Columns() []string { return VideoColumns }

func (r VideoRecord) Row() []string {
	return []string{
		strconv.FormatInt(r.ViewCount, 10),
		r.Date,
		r.Title,
		r.Description,
		r.ChannelName,
		r.ChannelLink,
		strconv.FormatInt(r.SubscriberCount, 10),
		strconv.FormatInt(r.Likes, 10),
		r.VideoURL,
		r.ThumbnailLink,
		r.ScrapeDate,
	}
}

// ChannelRecord 频道视频列表快照,三个序列按下标一一对应
type ChannelRecord struct {
	ChannelName string   `json:"channel_name"`
	ChannelLink string   `json:"channel_link"`
	Titles      []string `json:"video_titles"`
	UploadDates []string `json:"video_upload_dates"`
	ViewCounts  []int64  `json:"video_views"`
	ScrapeDate  string   `json:"scrape_date"`
}

// NewChannelRecord 创建频道记录
// 任一序列为空返回ErrEmptyChannelData,长度不一致返回ErrMisalignedChannelData
func NewChannelRecord(name, link string, titles, uploadDates []string, viewCounts []int64, scrapeDate string) (ChannelRecord, error) {
	if len(titles) == 0 || len(uploadDates) == 0 || len(viewCounts) == 0 {
		return ChannelRecord{}, ErrEmptyChannelData
	}
	if len(titles) != len(uploadDates) || len(titles) != len(viewCounts) {
		return ChannelRecord{}, fmt.Errorf("%w: 标题%d, 日期%d, 播放量%d",
			ErrMisalignedChannelData, len(titles), len(uploadDates), len(viewCounts))
	}

	return ChannelRecord{
		ChannelName: name,
		ChannelLink: link,
		Titles:      titles,
		UploadDates: uploadDates,
		ViewCounts:  viewCounts,
		ScrapeDate:  scrapeDate,
	}, nil
}

// Len 返回视频条目数
func (r ChannelRecord) Len() int {
	return len(r.Titles)
}

func (r ChannelRecord) Columns() []string { return ChannelColumns }

// Row 序列字段以JSON数组写入单元格
func (r ChannelRecord) Row() []string {
	return []string{
		r.ChannelName,
		r.ChannelLink,
		mustJSON(r.Titles),
		mustJSON(r.UploadDates),
		mustJSON(r.ViewCounts),
		r.ScrapeDate,
	}
}

func mustJSON(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}
	return string(data)
}

// VideoIdentity 返回视频页的去重标识
// 观看页使用v参数,其他地址原样返回
func VideoIdentity(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	if v := parsed.Query().Get("v"); v != "" {
		return v
	}
	return rawURL
}
