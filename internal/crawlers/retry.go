package crawlers

import (
	"context"
	"errors"
	"time"

	"github.com/RecoveryAshes/ytcrawl/internal/metrics"
	"github.com/rs/zerolog/log"
)

// RetryPolicy 重试策略: 固定间隔,最后一次尝试不再捕获错误
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

// DefaultRetryPolicy 默认3次尝试,间隔3秒
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Delay:       3 * time.Second,
	}
}

// ShouldRetry 判断错误是否可重试
// 取消、加载超时、会话断开和Fatal标记的错误直接返回给调用方
func (p RetryPolicy) ShouldRetry(err error, attempt int) bool {
	if err == nil || attempt >= p.MaxAttempts {
		return false
	}
	if IsCanceled(err) || IsFatal(err) {
		return false
	}
	if errors.Is(err, ErrLoadTimeout) || errors.Is(err, ErrSessionLost) {
		return false
	}
	return true
}

// RunWithRetry 执行op,失败时在两次尝试之间调用recoverFn(可为nil)并等待Delay
// 前MaxAttempts-1次失败被吞掉,最后一次尝试的结果原样返回
func RunWithRetry[T any](ctx context.Context, policy RetryPolicy, op func() (T, error), recoverFn func() error) (T, error) {
	maxAttempts := policy.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var zero T
	for attempt := 1; attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := op()
		if err == nil {
			return result, nil
		}
		if !policy.ShouldRetry(err, attempt) {
			return zero, err
		}

		metrics.ObserveRetry()
		log.Debug().Err(err).Int("attempt", attempt).Int("max_attempts", maxAttempts).Msg("操作失败,准备重试")

		if recoverFn != nil {
			if rerr := recoverFn(); rerr != nil {
				if IsCanceled(rerr) {
					return zero, rerr
				}
				log.Warn().Err(rerr).Msg("重试前恢复操作失败")
			}
		}

		if err := sleepContext(ctx, policy.Delay); err != nil {
			return zero, err
		}
	}

	if err := ctx.Err(); err != nil {
		return zero, err
	}
	return op()
}

// sleepContext 等待d或ctx结束
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
