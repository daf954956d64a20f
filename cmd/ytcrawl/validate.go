package main

import (
	"fmt"
	"os"
	"time"
)

// ValidateSearchFlags 验证开放搜索的命令行参数
func ValidateSearchFlags(seedFile string, workers int, autosave int, duration time.Duration) error {
	if err := ValidateInputFile(seedFile, "种子文件"); err != nil {
		return err
	}

	// 验证并发数
	if workers < 1 || workers > 64 {
		return fmt.Errorf("worker数必须在1-64之间,当前值: %d", workers)
	}

	return validateRunFlags(autosave, duration)
}

// ValidateChannelFlags 验证频道模式的命令行参数
func ValidateChannelFlags(inputFile string, poolSize int, autosave int, duration time.Duration) error {
	if err := ValidateInputFile(inputFile, "视频结果文件"); err != nil {
		return err
	}

	// 验证池大小
	if poolSize < 1 || poolSize > 64 {
		return fmt.Errorf("agent池大小必须在1-64之间,当前值: %d", poolSize)
	}

	return validateRunFlags(autosave, duration)
}

func validateRunFlags(autosave int, duration time.Duration) error {
	if autosave < 0 {
		return fmt.Errorf("自动保存间隔不能为负数,当前值: %d", autosave)
	}
	if duration < 0 {
		return fmt.Errorf("运行时长不能为负数,当前值: %s", duration)
	}
	return nil
}

// ValidateInputFile 验证输入文件存在且不是目录
func ValidateInputFile(path, what string) error {
	if path == "" {
		return fmt.Errorf("%s路径不能为空", what)
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%s不可用: %w", what, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s是目录: %s", what, path)
	}
	return nil
}
