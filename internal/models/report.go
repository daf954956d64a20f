package models

import (
	"encoding/json"
	"time"
)

// RunReport 运行报告
type RunReport struct {
	RunID      string    `json:"run_id"`
	Mode       CrawlMode `json:"mode"`
	OutputFile string    `json:"output_file"`

	// 时间信息
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`

	Stats RunStats `json:"stats"`

	// 运行结束时仍在工作的任务
	ActiveTasks []string `json:"active_tasks,omitempty"`
	// 致命错误(如agent池耗尽)
	FatalError string `json:"fatal_error,omitempty"`

	// 配置快照
	Config CrawlConfig `json:"config"`
}

// NewRunReport 创建运行报告
func NewRunReport(mode CrawlMode, outputFile string, config CrawlConfig, startTime time.Time) *RunReport {
	return &RunReport{
		RunID:      generateID(),
		Mode:       mode,
		OutputFile: outputFile,
		StartTime:  startTime,
		Config:     config,
	}
}

// ToJSON 序列化为JSON
func (r *RunReport) ToJSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// FromJSON 从JSON反序列化
func (r *RunReport) FromJSON(data []byte) error {
	return json.Unmarshal(data, r)
}
