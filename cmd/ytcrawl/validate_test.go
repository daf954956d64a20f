package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestValidateSearchFlags(t *testing.T) {
	dir := t.TempDir()
	seeds := filepath.Join(dir, "seeds.txt")
	if err := os.WriteFile(seeds, []byte("cats\ndogs\n"), 0644); err != nil {
		t.Fatalf("写入种子文件失败: %v", err)
	}

	tests := []struct {
		name     string
		seedFile string
		workers  int
		autosave int
		duration time.Duration
		wantErr  bool
	}{
		{"合法参数", seeds, 4, 60, 0, false},
		{"带运行时长", seeds, 1, 0, 2 * time.Hour, false},
		{"种子文件为空", "", 4, 60, 0, true},
		{"种子文件不存在", filepath.Join(dir, "missing.txt"), 4, 60, 0, true},
		{"种子文件是目录", dir, 4, 60, 0, true},
		{"worker数为0", seeds, 0, 60, 0, true},
		{"worker数过大", seeds, 65, 60, 0, true},
		{"自动保存为负数", seeds, 4, -1, 0, true},
		{"运行时长为负数", seeds, 4, 60, -time.Second, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSearchFlags(tt.seedFile, tt.workers, tt.autosave, tt.duration)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateSearchFlags() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateChannelFlags(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "videos.csv")
	if err := os.WriteFile(input, []byte("channel_name,channel_link\n"), 0644); err != nil {
		t.Fatalf("写入视频结果失败: %v", err)
	}

	tests := []struct {
		name     string
		input    string
		poolSize int
		wantErr  bool
	}{
		{"合法参数", input, 8, false},
		{"输入文件不存在", filepath.Join(dir, "none.csv"), 8, true},
		{"池大小为0", input, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateChannelFlags(tt.input, tt.poolSize, 0, 0)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateChannelFlags() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
