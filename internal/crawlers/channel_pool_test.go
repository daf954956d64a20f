package crawlers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/RecoveryAshes/ytcrawl/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func channelDriver() *fakeDriver {
	return newFakeDriver().withChannelPage(
		[]string{"1K views", "20 views"},
		[]string{"1 day ago", "1 year ago"},
		[]string{"one", "two"},
	)
}

func channelTargets(t *testing.T, n int) []models.ChannelTarget {
	t.Helper()
	targets := make([]models.ChannelTarget, 0, n)
	for i := 0; i < n; i++ {
		target, err := models.NewChannelTarget(
			fmt.Sprintf("channel %d", i),
			fmt.Sprintf("https://www.youtube.com/@channel%d", i),
		)
		require.NoError(t, err)
		targets = append(targets, target)
	}
	return targets
}

type outcomeLog struct {
	mu       sync.Mutex
	outcomes map[Outcome]int
	total    int
}

func (l *outcomeLog) record(_ models.ChannelTarget, outcome Outcome, _ error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.outcomes == nil {
		l.outcomes = make(map[Outcome]int)
	}
	l.outcomes[outcome]++
	l.total++
}

func (l *outcomeLog) count(outcome Outcome) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.outcomes[outcome]
}

func (l *outcomeLog) sum() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total
}

func newTestPool(t *testing.T, size int, f *testFactory, log *outcomeLog) *ChannelPool {
	t.Helper()
	pool, err := NewChannelPool(ChannelPoolConfig{
		Size:          size,
		Factory:       f.factory(t),
		PollInterval:  5 * time.Millisecond,
		FlushInterval: 20 * time.Millisecond,
		OnOutcome:     log.record,
	})
	require.NoError(t, err)
	return pool
}

func TestChannelPoolBoundsConcurrency(t *testing.T) {
	f := &testFactory{build: func(int) (*fakeDriver, error) { return channelDriver(), nil }}
	log := &outcomeLog{}
	pool := newTestPool(t, 2, f, log)

	require.NoError(t, pool.Run(context.Background(), channelTargets(t, 5)))

	assert.LessOrEqual(t, pool.PeakActive(), 2)
	assert.Equal(t, 5, log.sum(), "每个任务恰好一个终态")
	assert.Equal(t, 5, log.count(OutcomeRecorded))
	assert.Equal(t, 2, f.calls, "agent只在启动时创建")
	assert.True(t, f.allClosed())

	records := pool.Collect()
	assert.Len(t, records, 5)
	links := make(map[string]bool)
	for _, r := range records {
		channel, ok := r.(models.ChannelRecord)
		require.True(t, ok)
		assert.Equal(t, []int64{1000, 20}, channel.ViewCounts)
		links[channel.ChannelLink] = true
	}
	assert.Len(t, links, 5)

	status := pool.Status()
	assert.Equal(t, 5, status.Records)
	assert.Equal(t, 5, status.Recorded)
	assert.Equal(t, 0, status.Workers)
}

func TestChannelPoolDeduplicatesTargets(t *testing.T) {
	f := &testFactory{build: func(int) (*fakeDriver, error) { return channelDriver(), nil }}
	log := &outcomeLog{}
	pool := newTestPool(t, 2, f, log)

	targets := channelTargets(t, 2)
	targets = append(targets, targets[0])
	require.NoError(t, pool.Run(context.Background(), targets))

	assert.Equal(t, 2, log.sum())
	assert.Len(t, pool.Collect(), 2)
}

func TestChannelPoolDropsLostSessions(t *testing.T) {
	f := &testFactory{build: func(n int) (*fakeDriver, error) {
		d := channelDriver()
		if n == 1 {
			d.navigateFailures = 100
			d.navigateErr = ErrSessionLost
		}
		return d, nil
	}}
	log := &outcomeLog{}
	pool := newTestPool(t, 2, f, log)

	require.NoError(t, pool.Run(context.Background(), channelTargets(t, 5)))

	assert.Equal(t, 5, log.sum())
	assert.Equal(t, 1, log.count(OutcomeFailed))
	assert.Equal(t, 4, log.count(OutcomeRecorded))
	assert.Equal(t, 1, f.drivers[0].navigationCount(), "断开的会话不再分配任务")
	assert.True(t, f.allClosed())
}

func TestChannelPoolCapacityExhausted(t *testing.T) {
	t.Run("无法创建agent", func(t *testing.T) {
		f := &testFactory{build: func(int) (*fakeDriver, error) {
			return nil, errors.New("浏览器启动失败")
		}}
		pool := newTestPool(t, 3, f, &outcomeLog{})

		err := pool.Run(context.Background(), channelTargets(t, 2))
		assert.ErrorIs(t, err, ErrCapacityExhausted)
		assert.Equal(t, 3, f.calls)
	})

	t.Run("唯一的agent会话断开", func(t *testing.T) {
		f := &testFactory{build: func(int) (*fakeDriver, error) {
			d := channelDriver()
			d.navigateFailures = 100
			d.navigateErr = ErrSessionLost
			return d, nil
		}}
		log := &outcomeLog{}
		pool := newTestPool(t, 1, f, log)

		err := pool.Run(context.Background(), channelTargets(t, 3))
		assert.ErrorIs(t, err, ErrCapacityExhausted)
		assert.Equal(t, 1, log.count(OutcomeFailed))
		assert.True(t, f.allClosed())
	})
}

func TestChannelPoolStop(t *testing.T) {
	f := &testFactory{build: func(int) (*fakeDriver, error) { return channelDriver(), nil }}
	log := &outcomeLog{}
	pool := newTestPool(t, 1, f, log)

	runErr := make(chan error, 1)
	go func() {
		runErr <- pool.Run(context.Background(), channelTargets(t, 200))
	}()

	require.Eventually(t, func() bool { return log.sum() > 0 }, 5*time.Second, 5*time.Millisecond)
	pool.Stop()

	select {
	case err := <-runErr:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Stop返回后Run仍未结束")
	}

	assert.Less(t, log.sum(), 200)
	assert.Equal(t, log.sum(), len(pool.Collect())+log.count(OutcomeSkipped)+log.count(OutcomeFailed))
	assert.True(t, f.allClosed())

	// 未运行时Stop直接返回
	pool.Stop()
}

func TestChannelPoolCanceledContext(t *testing.T) {
	f := &testFactory{build: func(int) (*fakeDriver, error) { return channelDriver(), nil }}
	log := &outcomeLog{}
	pool := newTestPool(t, 1, f, log)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, pool.Run(ctx, channelTargets(t, 60)))
	assert.Equal(t, 0, log.sum(), "ctx已取消时不分配任何任务")
	assert.Empty(t, pool.Collect())
	assert.Equal(t, 0, f.calls)
}

func TestChannelPoolContextCanceledDuringRun(t *testing.T) {
	f := &testFactory{build: func(int) (*fakeDriver, error) { return channelDriver(), nil }}
	log := &outcomeLog{}
	pool := newTestPool(t, 1, f, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runErr := make(chan error, 1)
	go func() {
		runErr <- pool.Run(ctx, channelTargets(t, 200))
	}()

	require.Eventually(t, func() bool { return log.sum() > 0 }, 5*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-runErr:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("ctx取消后Run仍未结束")
	}
	assert.Less(t, log.sum(), 200)
	assert.True(t, f.allClosed())
}

func TestChannelPoolStopBeforeRun(t *testing.T) {
	f := &testFactory{build: func(int) (*fakeDriver, error) { return channelDriver(), nil }}
	log := &outcomeLog{}
	pool := newTestPool(t, 1, f, log)

	// Run尚未开始时的停止请求不能被Run清除
	pool.Stop()
	require.NoError(t, pool.Run(context.Background(), channelTargets(t, 60)))
	assert.Equal(t, 0, log.sum())
	assert.Equal(t, 0, f.calls)

	// 停止标志随Run结束清除,之后可以再次运行
	require.NoError(t, pool.Run(context.Background(), channelTargets(t, 2)))
	assert.Equal(t, 2, log.count(OutcomeRecorded))
}

func TestNewChannelPoolValidation(t *testing.T) {
	_, err := NewChannelPool(ChannelPoolConfig{Size: 1})
	assert.Error(t, err)

	f := &testFactory{build: func(int) (*fakeDriver, error) { return channelDriver(), nil }}
	_, err = NewChannelPool(ChannelPoolConfig{Size: 0, Factory: f.factory(t)})
	assert.Error(t, err)
}
