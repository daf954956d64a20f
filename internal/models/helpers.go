package models

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// ValidateURL 验证URL
func ValidateURL(urlStr string) error {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("无效的URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("URL必须是HTTP或HTTPS协议")
	}
	if parsed.Host == "" {
		return fmt.Errorf("URL必须包含主机名")
	}
	return nil
}

// ChannelVideosURL 返回频道的视频列表页地址
func ChannelVideosURL(channelURL string) string {
	return strings.TrimRight(channelURL, "/") + "/videos"
}

// generateID 生成唯一ID
func generateID() string {
	return uuid.New().String()
}
