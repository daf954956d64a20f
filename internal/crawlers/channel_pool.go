package crawlers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/RecoveryAshes/ytcrawl/internal/metrics"
	"github.com/RecoveryAshes/ytcrawl/internal/models"
	"github.com/RecoveryAshes/ytcrawl/internal/utils"
	"github.com/rs/zerolog"
)

// ChannelPoolConfig 频道池配置
type ChannelPoolConfig struct {
	Size          int // 预先创建的agent数,即最大并发数
	Factory       AgentFactory
	PollInterval  time.Duration // 调度轮询间隔 (默认:200ms)
	FlushInterval time.Duration // 缓冲区汇总间隔 (默认:2s)

	// OnOutcome 每个任务到达终态时调用(可为nil)
	OnOutcome func(target models.ChannelTarget, outcome Outcome, err error)
}

// ChannelPool 频道模式的有界agent池
// 职责: 预先创建N个agent,从队列逐个分配频道任务,回收空闲agent,汇总结果
type ChannelPool struct {
	cfg    ChannelPoolConfig
	logger zerolog.Logger

	// 保护available/active/accumulator/running
	mu          sync.Mutex
	available   []*Agent
	active      map[string]*Worker
	accumulator []models.Record
	running     bool
	runDone     chan struct{}

	stopping atomic.Bool

	recordCount atomic.Int64
	workerCount atomic.Int64
	peakActive  atomic.Int64
	recorded    atomic.Int64
	skipped     atomic.Int64
	failed      atomic.Int64
}

// NewChannelPool 创建频道池
func NewChannelPool(cfg ChannelPoolConfig) (*ChannelPool, error) {
	if cfg.Factory == nil {
		return nil, fmt.Errorf("agent工厂不能为空")
	}
	if cfg.Size < 1 {
		return nil, fmt.Errorf("agent池大小必须大于0")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 200 * time.Millisecond
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 2 * time.Second
	}

	return &ChannelPool{
		cfg:    cfg,
		logger: utils.Component("channel_pool"),
		active: make(map[string]*Worker),
	}, nil
}

// Run 处理全部频道目标,直到队列耗尽、Stop被调用、ctx取消或容量耗尽
// 容量耗尽返回ErrCapacityExhausted,已收集的结果仍可通过Collect取得
// Run开始前已请求的停止同样生效,停止标志在Run返回时清除
func (p *ChannelPool) Run(ctx context.Context, targets []models.ChannelTarget) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("频道池已在运行")
	}
	p.running = true
	p.runDone = make(chan struct{})
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.running = false
		p.stopping.Store(false)
		close(p.runDone)
		p.mu.Unlock()
	}()

	if p.stopRequested(ctx) {
		p.logger.Info().Int("tasks", len(targets)).Msg("运行前已收到停止请求,不分配任务")
		return nil
	}

	tasks := make([]models.Task, 0, len(targets))
	for _, target := range targets {
		tasks = append(tasks, target)
	}
	queue := NewTaskQueue(tasks)
	if queue.Len() == 0 {
		return nil
	}

	agents := p.provision(ctx)
	if len(agents) == 0 {
		if p.stopRequested(ctx) {
			return nil
		}
		return fmt.Errorf("%w: 无法创建任何agent", ErrCapacityExhausted)
	}
	p.mu.Lock()
	p.available = agents
	p.mu.Unlock()

	p.logger.Info().Int("agents", len(agents)).Int("tasks", queue.Len()).Msg("频道池开始运行")

	flushCtx, cancel := context.WithCancel(context.Background())
	monitorDone := make(chan struct{})
	go p.flushLoop(flushCtx, monitorDone)

	err := p.drain(ctx, queue)
	p.finish()

	cancel()
	<-monitorDone

	p.logger.Info().
		Int64("recorded", p.recorded.Load()).
		Int64("skipped", p.skipped.Load()).
		Int64("failed", p.failed.Load()).
		Msg("频道池运行结束")
	return err
}

// stopRequested Stop已调用或ctx已取消
func (p *ChannelPool) stopRequested(ctx context.Context) bool {
	return p.stopping.Load() || ctx.Err() != nil
}

// provision 创建至多Size个agent,失败的跳过
func (p *ChannelPool) provision(ctx context.Context) []*Agent {
	agents := make([]*Agent, 0, p.cfg.Size)
	for i := 0; i < p.cfg.Size; i++ {
		if p.stopRequested(ctx) {
			for _, agent := range agents {
				agent.Terminate()
			}
			return nil
		}
		agent, err := p.cfg.Factory()
		if err != nil {
			p.logger.Warn().Err(err).Int("index", i).Msg("创建agent失败")
			continue
		}
		agents = append(agents, agent)
	}
	if len(agents) < p.cfg.Size {
		p.logger.Warn().Int("requested", p.cfg.Size).Int("created", len(agents)).Msg("agent池未满额创建")
	}
	return agents
}

// drain 分配任务直到队列为空且所有worker结束
func (p *ChannelPool) drain(ctx context.Context, queue *TaskQueue) error {
	for {
		if p.stopRequested(ctx) {
			p.logger.Info().Int("remaining", queue.Remaining()).Msg("收到停止请求,不再分配新任务")
			return nil
		}

		p.mu.Lock()
		for queue.Remaining() > 0 && len(p.available) > 0 {
			agent := p.available[0]
			p.available = p.available[1:]
			task, _ := queue.Next()
			p.startLocked(agent, task.(models.ChannelTarget))
		}
		if queue.Remaining() > 0 && len(p.available) == 0 && len(p.active) == 0 {
			p.mu.Unlock()
			return fmt.Errorf("%w: 剩余%d个任务", ErrCapacityExhausted, queue.Remaining())
		}
		idle := queue.Remaining() == 0 && len(p.active) == 0
		p.mu.Unlock()

		if idle {
			return nil
		}

		select {
		case <-ctx.Done():
		case <-time.After(p.cfg.PollInterval):
		}
		p.reclaim()
	}
}

func (p *ChannelPool) startLocked(agent *Agent, target models.ChannelTarget) {
	w := newWorker(target, agent)
	if err := agent.Assign(target); err != nil {
		// 被回收的agent总是已释放任务,这里只会在agent已终止时发生
		w.start(func() error { return err })
	} else {
		w.start(func() error {
			record, err := agent.ScrapeChannel(target.Name, target.URL)
			w.produced = err == nil && record != nil
			return err
		})
	}

	p.active[w.ID] = w
	if n := int64(len(p.active)); n > p.peakActive.Load() {
		p.peakActive.Store(n)
	}
	p.updateCountsLocked()
}

// reclaim 回收已结束的worker,agent放回可用列表
// 会话断开或已终止的agent不再复用
func (p *ChannelPool) reclaim() {
	p.mu.Lock()
	var finished []*Worker
	var broken []*Agent
	for id, w := range p.active {
		if w.Alive() {
			continue
		}
		delete(p.active, id)
		finished = append(finished, w)

		records := w.Agent.Flush()
		p.accumulator = append(p.accumulator, records...)
		metrics.ObserveFlush(string(models.ModeChannels), len(records))

		if err := w.Err(); errors.Is(err, ErrSessionLost) || IsCanceled(err) {
			broken = append(broken, w.Agent)
			continue
		}
		w.Agent.Release()
		p.available = append(p.available, w.Agent)
	}
	p.updateCountsLocked()
	p.mu.Unlock()

	for _, agent := range broken {
		p.logger.Warn().Str("agent_id", agent.ID()).Msg("agent会话已断开,从池中移除")
		agent.Terminate()
	}
	for _, w := range finished {
		p.report(w)
	}
}

// report 记录任务终态
func (p *ChannelPool) report(w *Worker) {
	outcome := w.outcome()
	switch outcome {
	case OutcomeRecorded:
		p.recorded.Add(1)
	case OutcomeSkipped:
		p.skipped.Add(1)
	case OutcomeFailed:
		p.failed.Add(1)
		p.logger.Warn().Err(w.Err()).Str("task", w.Task.String()).Msg("频道抓取失败")
	}
	metrics.ObserveChannelOutcome(string(outcome))

	if p.cfg.OnOutcome != nil {
		target, _ := w.Task.(models.ChannelTarget)
		p.cfg.OnOutcome(target, outcome, w.Err())
	}
}

// finish 等待进行中的worker,汇总缓冲区并关闭全部agent
func (p *ChannelPool) finish() {
	p.mu.Lock()
	finished := make([]*Worker, 0, len(p.active))
	for _, w := range p.active {
		w.Wait()
		finished = append(finished, w)
	}

	agents := make([]*Agent, 0, len(p.active)+len(p.available))
	for _, w := range finished {
		agents = append(agents, w.Agent)
	}
	agents = append(agents, p.available...)

	total := 0
	for _, agent := range agents {
		records := agent.Flush()
		p.accumulator = append(p.accumulator, records...)
		total += len(records)
	}
	metrics.ObserveFlush(string(models.ModeChannels), total)

	p.active = make(map[string]*Worker)
	p.available = nil
	p.updateCountsLocked()
	p.mu.Unlock()

	for _, w := range finished {
		p.report(w)
	}
	for _, agent := range agents {
		agent.Terminate()
	}
}

// flushLoop 定期把进行中worker的缓冲区移入累加器
func (p *ChannelPool) flushLoop(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.mu.Lock()
			total := 0
			for _, w := range p.active {
				records := w.Agent.Flush()
				p.accumulator = append(p.accumulator, records...)
				total += len(records)
			}
			p.updateCountsLocked()
			p.mu.Unlock()
			metrics.ObserveFlush(string(models.ModeChannels), total)
		}
	}
}

func (p *ChannelPool) updateCountsLocked() {
	p.recordCount.Store(int64(len(p.accumulator)))
	p.workerCount.Store(int64(len(p.active)))
	metrics.SetLiveWorkers(string(models.ModeChannels), len(p.active))
}

// Stop 停止分配新任务并等待Run返回
// 未运行时调用,下一次Run不分配任何任务
func (p *ChannelPool) Stop() {
	p.stopping.Store(true)

	p.mu.Lock()
	running, done := p.running, p.runDone
	p.mu.Unlock()

	if running {
		<-done
	}
}

// Collect 返回累加器的副本
func (p *ChannelPool) Collect() []models.Record {
	p.mu.Lock()
	defer p.mu.Unlock()

	records := make([]models.Record, len(p.accumulator))
	copy(records, p.accumulator)
	return records
}

// Status 返回状态快照
func (p *ChannelPool) Status() Status {
	return Status{
		Records:  int(p.recordCount.Load()),
		Workers:  int(p.workerCount.Load()),
		Recorded: int(p.recorded.Load()),
		Skipped:  int(p.skipped.Load()),
		Failed:   int(p.failed.Load()),
	}
}

// PeakActive 运行期间同时进行的最大任务数
func (p *ChannelPool) PeakActive() int {
	return int(p.peakActive.Load())
}
