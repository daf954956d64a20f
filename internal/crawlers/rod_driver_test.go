package crawlers

import (
	"context"
	"testing"
	"time"

	"github.com/go-rod/rod"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRodElementOperationsCarryLoadTimeout(t *testing.T) {
	timeout := 200 * time.Millisecond
	e := &rodElement{el: (&rod.Element{}).Context(context.Background()), timeout: timeout}

	before := time.Now()
	deadline, ok := e.timed().GetContext().Deadline()
	require.True(t, ok, "元素操作必须带超时")
	assert.WithinDuration(t, before.Add(timeout), deadline, 100*time.Millisecond)

	// 原元素不受影响,每次操作重新计时
	_, ok = e.el.GetContext().Deadline()
	assert.False(t, ok)
}

func TestRodDriverPageOperationsCarryLoadTimeout(t *testing.T) {
	d := &RodDriver{page: (&rod.Page{}).Context(context.Background()), loadTimeout: time.Second}

	deadline, ok := d.timed().GetContext().Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(time.Second), deadline, 200*time.Millisecond)

	_, ok = d.page.GetContext().Deadline()
	assert.False(t, ok)
}

func TestClassifyRodTimeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	// 超时的点击被当作加载超时,不会被重试
	err := classifyRodError(ctx.Err())
	assert.ErrorIs(t, err, ErrLoadTimeout)
	assert.False(t, RetryPolicy{MaxAttempts: 3}.ShouldRetry(err, 1))
}
