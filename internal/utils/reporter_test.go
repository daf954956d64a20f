package utils

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/RecoveryAshes/ytcrawl/internal/models"
)

func TestReporter_GenerateReport(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "data", "yt_video_data.csv")
	reporter := NewReporter(output)

	if got, want := reporter.ReportPath(), filepath.Join(dir, "data", "yt_video_data_report.json"); got != want {
		t.Fatalf("ReportPath() = %s, want %s", got, want)
	}

	report := models.NewRunReport(models.ModeSearch, output, models.DefaultCrawlConfig(), time.Now())
	report.Stats.Records = 7
	if err := reporter.GenerateReport(report); err != nil {
		t.Fatalf("GenerateReport() error = %v", err)
	}

	data, err := os.ReadFile(reporter.ReportPath())
	if err != nil {
		t.Fatalf("读取报告失败: %v", err)
	}
	var decoded models.RunReport
	if err := decoded.FromJSON(data); err != nil {
		t.Fatalf("解析报告失败: %v", err)
	}
	if decoded.Stats.Records != 7 {
		t.Errorf("Records = %d, want 7", decoded.Stats.Records)
	}
}

func TestNewProgressBar(t *testing.T) {
	bar := NewProgressBar(3, "测试")
	if err := bar.Add(1); err != nil {
		t.Errorf("Add() error = %v", err)
	}
	_ = bar.Finish()
}
