package crawlers

import (
	"context"
	"errors"
)

// 错误类型定义
var (
	// ErrTransient 元素暂时不可用(已失效/被遮挡/尚未渲染),可重试
	ErrTransient = errors.New("页面元素暂时不可用")
	// ErrLoadTimeout 等待元素超过加载超时,由调用方决定如何处理
	ErrLoadTimeout = errors.New("页面加载超时")
	// ErrCanceled agent已终止,正在进行的操作被取消
	ErrCanceled = errors.New("操作已取消")
	// ErrSearchFailed 搜索页未能加载,开放搜索循环无法开始
	ErrSearchFailed = errors.New("搜索失败")
	// ErrSessionLost 浏览器会话已断开,agent不可再使用
	ErrSessionLost = errors.New("浏览器会话已断开")

	ErrAgentBusy       = errors.New("agent已分配任务")
	ErrNoTask          = errors.New("agent未分配任务")
	ErrUnsupportedTask = errors.New("不支持的任务类型")

	// ErrCapacityExhausted agent池已无可用agent但仍有任务
	ErrCapacityExhausted = errors.New("agent池容量耗尽")
)

// fatalError 标记不可重试的错误
type fatalError struct {
	err error
}

func (e *fatalError) Error() string { return e.err.Error() }
func (e *fatalError) Unwrap() error { return e.err }

// Fatal 包装错误,RunWithRetry遇到它会立即返回
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &fatalError{err: err}
}

// IsFatal 判断错误是否被标记为不可重试
func IsFatal(err error) bool {
	var fe *fatalError
	return errors.As(err, &fe)
}

// IsCanceled 判断是否为取消类错误
func IsCanceled(err error) bool {
	return errors.Is(err, ErrCanceled) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
