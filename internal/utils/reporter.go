package utils

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/RecoveryAshes/ytcrawl/internal/models"
	"github.com/schollz/progressbar/v3"
)

// Reporter 运行报告生成器
type Reporter struct {
	outputFile string
}

// NewReporter 创建报告生成器,报告与输出文件放在同一目录
func NewReporter(outputFile string) *Reporter {
	return &Reporter{outputFile: outputFile}
}

// ReportPath 返回报告文件路径, 例如 data/yt_video_data.csv -> data/yt_video_data_report.json
func (r *Reporter) ReportPath() string {
	ext := filepath.Ext(r.outputFile)
	return strings.TrimSuffix(r.outputFile, ext) + "_report.json"
}

// GenerateReport 写入运行报告
func (r *Reporter) GenerateReport(report *models.RunReport) error {
	path := r.ReportPath()
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("创建报告目录失败: %w", err)
		}
	}

	jsonData, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化JSON失败: %w", err)
	}

	if err := os.WriteFile(path, jsonData, 0644); err != nil {
		return fmt.Errorf("写入报告文件失败: %w", err)
	}

	Infof("✅ 报告已生成: %s", path)
	return nil
}

// NewProgressBar 创建进度条
func NewProgressBar(max int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(max,
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}
